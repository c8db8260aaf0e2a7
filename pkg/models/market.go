package models

import (
	"time"

	"github.com/rawblock/swap-resolver/pkg/chain"
)

// MarketData is the cached price/liquidity/fee snapshot for a single
// (chain, token) pool, refreshed by internal/market's poll loop.
type MarketData struct {
	Pool          chain.PoolKey
	PriceUSD      float64
	LiquidityUSD  float64
	BaseFeeRate   float64
	FetchedAt     time.Time
	SourceLatency time.Duration
}

// Age returns how long ago the snapshot was fetched, relative to now.
func (m MarketData) Age(now time.Time) time.Duration {
	return now.Sub(m.FetchedAt)
}

// Stale reports whether the snapshot is older than maxAge.
func (m MarketData) Stale(now time.Time, maxAge time.Duration) bool {
	return m.Age(now) > maxAge
}

// ProfitabilityAnalysis is the Strategy Engine's per-order evaluation
// of a candidate swap, produced before any recommendation is made.
type ProfitabilityAnalysis struct {
	OrderID            string
	GrossMarginUSD     float64
	EstimatedGasCostUSD float64
	EstimatedFeeCostUSD float64
	NetMarginUSD       float64
	NetMarginRatio     float64
	SourcePrice        MarketData
	DestinationPrice   MarketData
}

// Profitable reports whether the analysis clears minMarginRatio.
func (p ProfitabilityAnalysis) Profitable(minMarginRatio float64) bool {
	return p.NetMarginRatio >= minMarginRatio
}
