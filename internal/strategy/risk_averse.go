package strategy

import (
	"fmt"
	"time"

	"github.com/rawblock/swap-resolver/pkg/models"
)

// RiskAverseMinMargin is the minimum timelock margin RiskAverse
// requires before it will price an order at all.
const RiskAverseMinMargin = 2 * time.Hour

// RiskAverse deliberately undervalues an order's profitability,
// subtracting a risk buffer and capping confidence so a noisy price
// feed can't push the resolver into an overconfident bid.
type RiskAverse struct {
	weight float64
	params Params
}

func NewRiskAverse(weight float64, params Params) *RiskAverse {
	return &RiskAverse{weight: weight, params: params}
}

func (s *RiskAverse) Name() string    { return "risk_averse" }
func (s *RiskAverse) Weight() float64 { return s.weight }
func (s *RiskAverse) Params() Params  { return s.params }

func (s *RiskAverse) Analyze(order models.CrossChainSwapState, srcMD, dstMD models.MarketData, now time.Time) (Analysis, error) {
	margin := time.Unix(order.Timelocks.Source, 0).Sub(now)
	if margin < RiskAverseMinMargin {
		return Analysis{}, fmt.Errorf("strategy: risk_averse requires >= %s timelock margin, got %s", RiskAverseMinMargin, margin)
	}

	srcAmount := displayUnits(order.Amounts.Source, order.Source.ChainID)
	destAmount := displayUnits(order.Amounts.Destination, order.Destination.ChainID)

	grossProfit := (destAmount*dstMD.PriceUSD - srcAmount*srcMD.PriceUSD)
	if grossProfit < 0 {
		grossProfit = 0
	}
	profit := grossProfit * 0.8 // 20% risk buffer

	notional := srcAmount * srcMD.PriceUSD
	var netMargin float64
	if notional > 0 {
		netMargin = profit / notional
	}

	risk := clampScore(30 + (srcMD.BaseFeeRate+dstMD.BaseFeeRate)*50)

	confidence := 80.0
	if c := 100 - risk; c < confidence {
		confidence = c
	}

	return Analysis{
		Strategy:   s.Name(),
		ProfitUSD:  profit,
		Margin:     netMargin,
		Risk:       risk,
		Confidence: confidence,
	}, nil
}
