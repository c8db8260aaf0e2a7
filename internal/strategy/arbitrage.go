package strategy

import (
	"time"

	"github.com/rawblock/swap-resolver/pkg/models"
)

// Arbitrage prices an order purely on the spread between the order's
// implied rate and the current market rate.
type Arbitrage struct {
	weight float64
	params Params
}

func NewArbitrage(weight float64, params Params) *Arbitrage {
	return &Arbitrage{weight: weight, params: params}
}

func (s *Arbitrage) Name() string    { return "arbitrage" }
func (s *Arbitrage) Weight() float64 { return s.weight }
func (s *Arbitrage) Params() Params  { return s.params }

func (s *Arbitrage) Analyze(order models.CrossChainSwapState, srcMD, dstMD models.MarketData, now time.Time) (Analysis, error) {
	srcAmount := displayUnits(order.Amounts.Source, order.Source.ChainID)
	destAmount := displayUnits(order.Amounts.Destination, order.Destination.ChainID)

	var orderRatio, marketRatio float64
	if srcAmount > 0 {
		orderRatio = destAmount / srcAmount
	}
	if srcMD.PriceUSD > 0 {
		marketRatio = dstMD.PriceUSD / srcMD.PriceUSD
	}
	spread := orderRatio - marketRatio

	var profit float64
	if spread > 0 {
		profit = spread * srcAmount * srcMD.PriceUSD
	}

	notional := srcAmount * srcMD.PriceUSD
	var margin float64
	if notional > 0 {
		margin = profit / notional
	}

	remaining := time.Unix(order.Timelocks.Source, 0).Sub(now)
	executionRisk := clampScore(100 - remaining.Hours()*10)

	confidence := 100.0
	if spread <= 0 {
		confidence = 20
	}

	return Analysis{
		Strategy:   s.Name(),
		ProfitUSD:  profit,
		Margin:     margin,
		Risk:       executionRisk,
		Confidence: confidence,
	}, nil
}
