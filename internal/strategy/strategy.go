// Package strategy implements the Strategy Engine: a pluggable
// ensemble of profitability strategies whose weighted combination
// drives the accept/monitor/reject recommendation for a candidate
// swap order.
package strategy

import (
	"time"

	"github.com/rawblock/swap-resolver/pkg/models"
)

// Params are the per-strategy pricing tunables shared across all
// Strategy Engine implementations.
type Params struct {
	MinProfitMargin     float64
	MaxRiskScore        float64
	ConfidenceThreshold float64
	GasBuffer           float64
}

// Analysis is one strategy's independent evaluation of an order.
type Analysis struct {
	Strategy   string
	ProfitUSD  float64
	Margin     float64
	Risk       float64
	Confidence float64
}

// Strategy is a pure evaluator: given an order and the market data for
// both legs, it produces an Analysis or an error (logged and skipped
// by the Engine, never fatal to the overall assessment).
type Strategy interface {
	Name() string
	Weight() float64
	Params() Params
	Analyze(order models.CrossChainSwapState, srcMD, dstMD models.MarketData, now time.Time) (Analysis, error)
}
