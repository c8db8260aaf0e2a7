package risk

import "github.com/rawblock/swap-resolver/pkg/chain"

// Profile is the Risk Manager's configured limits and thresholds.
type Profile struct {
	MaxExposurePerChain  map[chain.ID]chain.Amount
	MaxExposurePerToken  map[chain.PoolKey]chain.Amount
	MaxSingleOrderSize   chain.Amount
	MaxDailyVolume       chain.Amount
	MaxConcurrentOrders  int
	MinConfidenceScore   float64
	MaxRiskScore         float64

	// PositionSizing parameters. BaseSize and MaxSize feed the
	// recommended-size formula; ConfidenceMultiplier and RiskDivisor are
	// loaded from config but the formula does not read them.
	BaseSize             chain.Amount
	MaxSize              chain.Amount
	ConfidenceMultiplier float64
	RiskDivisor          float64

	// VolatilityThresholds bands used by the market-risk step.
	VolatilityLow    float64
	VolatilityMedium float64
	VolatilityHigh   float64

	// ExposureAlertThreshold triggers exposureLimitReached once
	// utilisation crosses it (e.g. 0.8).
	ExposureAlertThreshold float64
}

// DefaultProfile returns conservative defaults sufficient for tests
// and local operation; production deployments load a Profile from
// internal/config's YAML.
func DefaultProfile() Profile {
	return Profile{
		MaxExposurePerChain:    make(map[chain.ID]chain.Amount),
		MaxExposurePerToken:    make(map[chain.PoolKey]chain.Amount),
		MaxSingleOrderSize:     chain.NewAmount(1_000_000_000_000_000_000),
		MaxDailyVolume:         chain.NewAmount(1_000_000_000_000_000_000).MulRat(10, 1),
		MaxConcurrentOrders:    20,
		MinConfidenceScore:     50,
		MaxRiskScore:           70,
		BaseSize:               chain.NewAmount(100_000_000_000_000_000),
		MaxSize:                chain.NewAmount(1_000_000_000_000_000_000),
		ConfidenceMultiplier:   1.0,
		RiskDivisor:            1.0,
		VolatilityLow:          0.02,
		VolatilityMedium:       0.05,
		VolatilityHigh:         0.10,
		ExposureAlertThreshold: 0.8,
	}
}
