package strategy

import (
	"math"
	"time"

	"github.com/rawblock/swap-resolver/pkg/models"
)

// MarketMaking prices an order by combining a spread-capture
// component with an opportunistic arbitrage component.
type MarketMaking struct {
	weight   float64
	params   Params
	avgSpread float64
}

// NewMarketMaking constructs the MarketMaking strategy. avgSpread is
// the assumed market-making spread (e.g. 0.002 for 20bps).
func NewMarketMaking(weight float64, params Params, avgSpread float64) *MarketMaking {
	return &MarketMaking{weight: weight, params: params, avgSpread: avgSpread}
}

func (s *MarketMaking) Name() string     { return "market_making" }
func (s *MarketMaking) Weight() float64  { return s.weight }
func (s *MarketMaking) Params() Params   { return s.params }

func (s *MarketMaking) Analyze(order models.CrossChainSwapState, srcMD, dstMD models.MarketData, now time.Time) (Analysis, error) {
	srcAmount := displayUnits(order.Amounts.Source, order.Source.ChainID)
	destAmount := displayUnits(order.Amounts.Destination, order.Destination.ChainID)

	spreadProfit := srcAmount * srcMD.PriceUSD * s.avgSpread

	var arbitrageProfit float64
	if srcAmount > 0 && srcMD.PriceUSD > 0 {
		orderRatio := destAmount / srcAmount
		marketRatio := dstMD.PriceUSD / srcMD.PriceUSD
		if diff := orderRatio - marketRatio; diff > 0 {
			arbitrageProfit = diff * srcAmount * srcMD.PriceUSD
		}
	}

	profit := spreadProfit + arbitrageProfit
	notional := srcAmount * srcMD.PriceUSD
	var margin float64
	if notional > 0 {
		margin = profit / notional
	}

	volatilityRisk := (srcMD.BaseFeeRate + dstMD.BaseFeeRate) * 50
	liquidityRisk := 0.0
	if srcMD.LiquidityUSD > 0 {
		depthRatio := notional / srcMD.LiquidityUSD
		liquidityRisk = depthRatio * 30
	}
	risk := clampScore(volatilityRisk + liquidityRisk)

	age := now.Sub(srcMD.FetchedAt)
	if dstAge := now.Sub(dstMD.FetchedAt); dstAge > age {
		age = dstAge
	}
	ageDecay := halfLifeDecay(age, 5*time.Minute)
	volatilityDecay := 1 - clamp01((srcMD.BaseFeeRate+dstMD.BaseFeeRate)/2)
	confidence := 100 * ageDecay * volatilityDecay

	return Analysis{
		Strategy:   s.Name(),
		ProfitUSD:  profit,
		Margin:     margin,
		Risk:       risk,
		Confidence: confidence,
	}, nil
}

func halfLifeDecay(age, halfLife time.Duration) float64 {
	if halfLife <= 0 {
		return 1
	}
	t := age.Seconds() / halfLife.Seconds()
	return math.Exp2(-t)
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
