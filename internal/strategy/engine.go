package strategy

import (
	"log"
	"time"

	"github.com/rawblock/swap-resolver/pkg/models"
)

// Recommendation is the Engine's final accept/monitor/reject verdict.
type Recommendation string

const (
	RecommendAccept  Recommendation = "accept"
	RecommendMonitor Recommendation = "monitor"
	RecommendReject  Recommendation = "reject"
)

// GasEstimator supplies the USD-valued fee estimate for each leg of an
// order, used to compute the ensemble's net profit. The one
// implementation, StaticGasEstimator, answers from a fixed per-chain
// USD table; no implementation queries the chain clients or current
// market prices.
type GasEstimator interface {
	EstimateFeeUSD(order models.CrossChainSwapState) (sourceFeeUSD, destFeeUSD float64, err error)
}

// Engine runs every enabled Strategy, combines the results by weight,
// and applies the five ordered recommendation rules.
type Engine struct {
	strategies []Strategy
	gas        GasEstimator
}

// NewEngine constructs an Engine over strategies, in priority order
// (ties break toward the first-declared strategy).
func NewEngine(strategies []Strategy, gas GasEstimator) *Engine {
	return &Engine{strategies: strategies, gas: gas}
}

// Result is the Engine's combined profitability analysis and
// recommendation for one order.
type Result struct {
	Analysis       models.ProfitabilityAnalysis
	WeightedProfit float64
	WeightedMargin float64
	WeightedRisk   float64
	Confidence     float64
	NetProfitUSD   float64
	Recommendation Recommendation
	PerStrategy    []Analysis
}

// Analyze runs all enabled strategies against order, combines them by
// normalised weight, and produces the final recommendation.
func (e *Engine) Analyze(order models.CrossChainSwapState, srcMD, dstMD models.MarketData, now time.Time) (Result, error) {
	var ran []Analysis
	var weights []float64
	var totalWeight float64

	for _, s := range e.strategies {
		a, err := s.Analyze(order, srcMD, dstMD, now)
		if err != nil {
			log.Printf("[strategy] %s skipped for order %s: %v", s.Name(), order.OrderID, err)
			continue
		}
		ran = append(ran, a)
		weights = append(weights, s.Weight())
		totalWeight += s.Weight()
	}

	var res Result
	res.PerStrategy = ran

	if len(ran) == 0 || totalWeight <= 0 {
		res.Recommendation = RecommendReject
		return res, nil
	}

	for i, a := range ran {
		w := weights[i] / totalWeight
		res.WeightedProfit += w * a.ProfitUSD
		res.WeightedMargin += w * a.Margin
		res.WeightedRisk += w * a.Risk
		res.Confidence += w * a.Confidence
	}

	var sourceFeeUSD, destFeeUSD float64
	if e.gas != nil {
		var err error
		sourceFeeUSD, destFeeUSD, err = e.gas.EstimateFeeUSD(order)
		if err != nil {
			log.Printf("[strategy] gas estimation failed for order %s: %v", order.OrderID, err)
		}
	}
	totalGasCost := sourceFeeUSD + destFeeUSD
	res.NetProfitUSD = res.WeightedProfit - totalGasCost

	minMargin := minOf(e.strategies, ran, func(p Params) float64 { return p.MinProfitMargin })
	maxRisk := maxOf(e.strategies, ran, func(p Params) float64 { return p.MaxRiskScore })
	minConfidence := minOf(e.strategies, ran, func(p Params) float64 { return p.ConfidenceThreshold })

	switch {
	case res.NetProfitUSD <= 0:
		res.Recommendation = RecommendReject
	case res.WeightedMargin < minMargin:
		res.Recommendation = RecommendReject
	case res.WeightedRisk > maxRisk:
		res.Recommendation = RecommendReject
	case res.Confidence < minConfidence:
		res.Recommendation = RecommendMonitor
	default:
		res.Recommendation = RecommendAccept
	}

	res.Analysis = models.ProfitabilityAnalysis{
		OrderID:             order.OrderID,
		GrossMarginUSD:      res.WeightedProfit,
		EstimatedGasCostUSD: sourceFeeUSD,
		EstimatedFeeCostUSD: destFeeUSD,
		NetMarginUSD:        res.NetProfitUSD,
		NetMarginRatio:      res.WeightedMargin,
		SourcePrice:         srcMD,
		DestinationPrice:    dstMD,
	}

	return res, nil
}

// minOf/maxOf fold over only the strategies that actually produced an
// analysis (ran), looking each one's Params up by its strategy name.
func minOf(strategies []Strategy, ran []Analysis, sel func(Params) float64) float64 {
	var v float64
	first := true
	byName := indexByName(strategies)
	for _, a := range ran {
		s, ok := byName[a.Strategy]
		if !ok {
			continue
		}
		x := sel(s.Params())
		if first || x < v {
			v = x
			first = false
		}
	}
	return v
}

func maxOf(strategies []Strategy, ran []Analysis, sel func(Params) float64) float64 {
	var v float64
	first := true
	byName := indexByName(strategies)
	for _, a := range ran {
		s, ok := byName[a.Strategy]
		if !ok {
			continue
		}
		x := sel(s.Params())
		if first || x > v {
			v = x
			first = false
		}
	}
	return v
}

func indexByName(strategies []Strategy) map[string]Strategy {
	m := make(map[string]Strategy, len(strategies))
	for _, s := range strategies {
		m[s.Name()] = s
	}
	return m
}
