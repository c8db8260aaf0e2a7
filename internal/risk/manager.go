// Package risk implements the resolver's pre-trade assessment, live
// exposure accounting, and circuit-breaker protection. Risk is scored
// additively: each check contributes points to a running total rather
// than vetoing independently, so a borderline order can still be
// rejected by the combination of several small concerns even when none
// of them alone crosses a hard limit.
package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/rawblock/swap-resolver/pkg/chain"
	"github.com/rawblock/swap-resolver/pkg/models"
)

// Manager assesses orders and tracks the exposure they create.
type Manager struct {
	mu sync.Mutex

	profile  Profile
	watchlist *CounterpartyList

	chainExposure        map[chain.ID]chain.Amount
	tokenExposure        map[chain.PoolKey]chain.Amount
	counterpartyExposure map[chain.Address]chain.Amount
	dailyVolume          map[string]chain.Amount

	activeOrders map[string]bool

	emergencyStopped bool
	totalAssessments int
	rejectedOrders   int

	onExposureLimitReached func(pool chain.PoolKey, ratio float64)
}

// NewManager constructs a Manager with the given profile and
// counterparty list.
func NewManager(profile Profile, watchlist *CounterpartyList) *Manager {
	return &Manager{
		profile:              profile,
		watchlist:            watchlist,
		chainExposure:        make(map[chain.ID]chain.Amount),
		tokenExposure:        make(map[chain.PoolKey]chain.Amount),
		counterpartyExposure: make(map[chain.Address]chain.Amount),
		dailyVolume:          make(map[string]chain.Amount),
		activeOrders:         make(map[string]bool),
	}
}

// OnExposureLimitReached registers a callback fired (synchronously,
// within UpdateOrderStatus) whenever activating an order leaves its
// source chain's utilisation at or above the profile's alert
// threshold; the callback receives the order's source pool and that
// chain ratio.
func (m *Manager) OnExposureLimitReached(fn func(pool chain.PoolKey, ratio float64)) {
	m.onExposureLimitReached = fn
}

// chainLimit returns the configured max exposure for a chain, or the
// zero Amount if unconfigured. A zero limit skips the chain exposure
// check in AssessOrderRisk and makes ChainUtilisation report 0, so an
// unconfigured chain is not capped.
func (m *Manager) chainLimit(c chain.ID) chain.Amount {
	if lim, ok := m.profile.MaxExposurePerChain[c]; ok {
		return lim
	}
	return chain.ZeroAmount()
}

func (m *Manager) tokenLimit(pool chain.PoolKey) (chain.Amount, bool) {
	lim, ok := m.profile.MaxExposurePerToken[pool]
	return lim, ok
}

func dateKey(t time.Time) string { return t.UTC().Format("2006-01-02") }

// AssessOrderRisk runs the five additive risk steps, position sizing,
// and the final accept/reduce/reject decision. confidence and
// volatility are supplied by the caller (Strategy Engine output and
// Market Data, respectively) since the Risk Manager does not poll
// either directly.
func (m *Manager) AssessOrderRisk(order models.CrossChainSwapState, confidence float64, volatility float64, now time.Time) models.RiskAssessment {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalAssessments++

	assessment := models.RiskAssessment{
		OrderID:    order.OrderID,
		AssessedAt: now,
	}
	var score float64
	var rejected bool
	addSignal := func(name string, points float64, detail string, rejects bool) {
		score += points
		assessment.Signals = append(assessment.Signals, models.RiskSignal{Name: name, Points: points, Detail: detail})
		if rejects {
			rejected = true
		}
	}

	if m.emergencyStopped {
		assessment.Score = 100
		assessment.Level = models.RiskCritical
		assessment.Recommend = models.RecommendReject
		assessment.Signals = append(assessment.Signals, models.RiskSignal{Name: "emergency_stop", Points: 100, Detail: "emergency stop active"})
		m.rejectedOrders++
		return assessment
	}

	// 1. Basic validity.
	if order.Amounts.Source.GreaterThan(m.profile.MaxSingleOrderSize) {
		addSignal("max_order_size", 30, "amount exceeds maxSingleOrderSize", true)
	}
	if len(m.activeOrders) >= m.profile.MaxConcurrentOrders {
		addSignal("max_concurrent_orders", 30, "concurrent order limit reached", true)
	}
	if m.watchlist != nil && m.watchlist.IsBlocked(order.Maker) {
		addSignal("blocked_counterparty", 30, "maker is blocked", true)
	}

	// 2. Exposure pre-check.
	srcChainLimit := m.chainLimit(order.Source.ChainID)
	if !srcChainLimit.IsZero() {
		newExposure := m.chainExposure[order.Source.ChainID].Add(order.Amounts.Source)
		ratio := newExposure.ToFloat64ForScore() / srcChainLimit.ToFloat64ForScore()
		if ratio > 1 {
			ratio = 1
		}
		assessment.ExposureImpactChain = ratio
		if newExposure.GreaterThan(srcChainLimit) {
			addSignal("chain_exposure_limit", 25, fmt.Sprintf("%s exposure would exceed limit", order.Source.ChainID), true)
		}
	}
	srcPool := chain.PoolKey{Chain: order.Source.ChainID, Token: order.Source.Token}
	if lim, ok := m.tokenLimit(srcPool); ok {
		newExposure := m.tokenExposure[srcPool].Add(order.Amounts.Source)
		ratio := newExposure.ToFloat64ForScore() / lim.ToFloat64ForScore()
		if ratio > 1 {
			ratio = 1
		}
		assessment.ExposureImpactToken = ratio
		if newExposure.GreaterThan(lim) {
			addSignal("token_exposure_limit", 25, fmt.Sprintf("%s exposure would exceed limit", srcPool), true)
		}
	}
	if !m.profile.MaxDailyVolume.IsZero() {
		today := m.dailyVolume[dateKey(now)]
		newVolume := today.Add(order.Amounts.Source)
		ratio := newVolume.ToFloat64ForScore() / m.profile.MaxDailyVolume.ToFloat64ForScore()
		if ratio > 1 {
			ratio = 1
		}
		assessment.ExposureImpactVolume = ratio
		if newVolume.GreaterThan(m.profile.MaxDailyVolume) {
			addSignal("daily_volume_limit", 25, "daily volume would exceed limit", true)
		}
	}

	// 3. Counterparty risk.
	if order.Maker == "" {
		addSignal("invalid_counterparty", 25, "missing maker address", true)
	} else if m.watchlist != nil && !m.watchlist.Known(order.Maker) {
		addSignal("unknown_counterparty", 10, "maker has no trust history", false)
	}

	// 4. Market risk.
	if order.Source.ChainID.IsBitcoin() || order.Destination.ChainID.IsBitcoin() {
		addSignal("bitcoin_leg", 10, "Bitcoin-side legs carry confirmation-time risk", false)
	}
	untilExpiry := time.Unix(order.Timelocks.Destination, 0).Sub(now)
	switch {
	case untilExpiry < time.Hour:
		addSignal("time_pressure_critical", 20, "destination timelock expires within 1h", false)
	case untilExpiry < 2*time.Hour:
		addSignal("time_pressure_high", 10, "destination timelock expires within 2h", false)
	default:
		addSignal("time_pressure_low", 2, "destination timelock has ample headroom", false)
	}
	switch {
	case volatility >= m.profile.VolatilityHigh:
		addSignal("volatility_high", 15, "volatility above high threshold", false)
	case volatility >= m.profile.VolatilityMedium:
		addSignal("volatility_medium", 8, "volatility above medium threshold", false)
	case volatility >= m.profile.VolatilityLow:
		addSignal("volatility_low", 3, "volatility above low threshold", false)
	}

	// 5. Technical risk (congestion / gas-volatility proxy — reuses the
	// same volatility signal since MD does not separately expose gas
	// congestion in this deployment).
	if volatility >= m.profile.VolatilityHigh {
		addSignal("technical_congestion", 5, "elevated network volatility suggests congestion", false)
	}

	if score > 100 {
		score = 100
	}
	assessment.Score = score
	assessment.Level = levelFor(score)

	// Position sizing.
	confMult := 0.5 + confidence/100
	riskDiv := 1 - score/100*0.9
	if riskDiv < 0.1 {
		riskDiv = 0.1
	}
	scaled := m.profile.BaseSize.ToFloat64ForScore() * confMult * riskDiv
	recommended := floatToAmount(scaled)
	recommended = recommended.Min(m.profile.MaxSize).Min(order.Amounts.Source)
	assessment.PositionSize = recommended

	// Final decision.
	if rejected {
		assessment.Recommend = models.RecommendReject
		m.rejectedOrders++
	} else if score <= m.profile.MaxRiskScore && confidence >= m.profile.MinConfidenceScore {
		assessment.Recommend = models.RecommendAccept
	} else if score <= m.profile.MaxRiskScore*1.2 {
		assessment.Recommend = models.RecommendReduce
	} else {
		assessment.Recommend = models.RecommendReject
		m.rejectedOrders++
	}

	return assessment
}

func levelFor(score float64) models.RiskLevel {
	switch {
	case score >= 76:
		return models.RiskCritical
	case score >= 51:
		return models.RiskHigh
	case score >= 31:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

func floatToAmount(v float64) chain.Amount {
	if v < 0 {
		return chain.ZeroAmount()
	}
	return chain.NewAmount(int64(v))
}

// UpdateOrderStatus registers an order's status transition, activating
// or deactivating its exposure footprint so chain/token/counterparty
// limits reflect only orders currently in flight.
func (m *Manager) UpdateOrderStatus(orderID string, order models.CrossChainSwapState, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wasActive := m.activeOrders[orderID]
	isActive := order.Status.IsActive()

	if isActive && !wasActive {
		m.activeOrders[orderID] = true
		m.chainExposure[order.Source.ChainID] = m.chainExposure[order.Source.ChainID].Add(order.Amounts.Source)
		pool := chain.PoolKey{Chain: order.Source.ChainID, Token: order.Source.Token}
		m.tokenExposure[pool] = m.tokenExposure[pool].Add(order.Amounts.Source)
		m.counterpartyExposure[order.Maker] = m.counterpartyExposure[order.Maker].Add(order.Amounts.Source)

		if lim := m.chainLimit(order.Source.ChainID); !lim.IsZero() {
			ratio := m.chainExposure[order.Source.ChainID].ToFloat64ForScore() / lim.ToFloat64ForScore()
			if ratio >= m.profile.ExposureAlertThreshold && m.onExposureLimitReached != nil {
				m.onExposureLimitReached(pool, ratio)
			}
		}
	} else if !isActive && wasActive {
		delete(m.activeOrders, orderID)
		m.chainExposure[order.Source.ChainID] = m.chainExposure[order.Source.ChainID].Sub(order.Amounts.Source)
		pool := chain.PoolKey{Chain: order.Source.ChainID, Token: order.Source.Token}
		m.tokenExposure[pool] = m.tokenExposure[pool].Sub(order.Amounts.Source)
		m.counterpartyExposure[order.Maker] = m.counterpartyExposure[order.Maker].Sub(order.Amounts.Source)

		if order.Status == models.StatusCompleted {
			key := dateKey(now)
			m.dailyVolume[key] = m.dailyVolume[key].Add(order.Amounts.Source)
		}
	}
}

// ChainExposure returns the current tracked exposure for a chain;
// must be zero once every order is terminal.
func (m *Manager) ChainExposure(c chain.ID) chain.Amount {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chainExposure[c]
}

// TokenExposure returns the current tracked exposure for a pool.
func (m *Manager) TokenExposure(pool chain.PoolKey) chain.Amount {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokenExposure[pool]
}

// ChainUtilisation returns a chain's current exposure as a fraction of
// its configured limit (0 if the chain has no configured limit), for
// feeding the exposure_threshold circuit breaker.
func (m *Manager) ChainUtilisation(c chain.ID) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	lim := m.chainLimit(c)
	if lim.IsZero() {
		return 0
	}
	return m.chainExposure[c].ToFloat64ForScore() / lim.ToFloat64ForScore()
}

// DailyVolumeRatio returns today's completed volume as a fraction of
// MaxDailyVolume (0 if unconfigured), for the volume_spike breaker.
func (m *Manager) DailyVolumeRatio(now time.Time) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.profile.MaxDailyVolume.IsZero() {
		return 0
	}
	return m.dailyVolume[dateKey(now)].ToFloat64ForScore() / m.profile.MaxDailyVolume.ToFloat64ForScore()
}

// SetEmergencyStopped sets or clears the global emergency-stop flag.
func (m *Manager) SetEmergencyStopped(stopped bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emergencyStopped = stopped
}

// IsEmergencyStopped reports the current emergency-stop state.
func (m *Manager) IsEmergencyStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.emergencyStopped
}

// ErrorRate returns rejectedOrders / totalAssessments, or 0 if no
// assessments have been made yet.
func (m *Manager) ErrorRate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.totalAssessments == 0 {
		return 0
	}
	return float64(m.rejectedOrders) / float64(m.totalAssessments)
}

// ReduceLimits multiplies every configured MaxExposure by factor
// (the circuit breaker's reduce_limits action).
func (m *Manager) ReduceLimits(factor float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for c, lim := range m.profile.MaxExposurePerChain {
		m.profile.MaxExposurePerChain[c] = lim.MulRat(int64(factor*1_000_000), 1_000_000)
	}
	for p, lim := range m.profile.MaxExposurePerToken {
		m.profile.MaxExposurePerToken[p] = lim.MulRat(int64(factor*1_000_000), 1_000_000)
	}
}
