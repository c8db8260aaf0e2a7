package strategy

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rawblock/swap-resolver/pkg/chain"
	"github.com/rawblock/swap-resolver/pkg/models"
)

var errStrategyFailed = errors.New("strategy exploded")

// fakeStrategy returns a fixed Analysis regardless of order/MD, so
// tests can drive the ensemble's combination logic directly without
// needing realistic market data.
type fakeStrategy struct {
	name    string
	weight  float64
	params  Params
	result  Analysis
}

func (f *fakeStrategy) Name() string    { return f.name }
func (f *fakeStrategy) Weight() float64 { return f.weight }
func (f *fakeStrategy) Params() Params  { return f.params }
func (f *fakeStrategy) Analyze(order models.CrossChainSwapState, srcMD, dstMD models.MarketData, now time.Time) (Analysis, error) {
	a := f.result
	a.Strategy = f.name
	return a, nil
}

func testOrder() models.CrossChainSwapState {
	return models.CrossChainSwapState{
		OrderID: "order-1",
		Source:  models.ChainLeg{ChainID: chain.EMainnet, Token: chain.Native},
		Destination: models.ChainLeg{ChainID: chain.BMainnet, Token: chain.Native},
		Amounts: models.Amounts{
			Source:      chain.NewAmount(1_000_000_000_000_000_000),
			Destination: chain.NewAmount(4_000_000),
		},
	}
}

func TestEngineAnalyzeAcceptsProfitableLowRiskOrder(t *testing.T) {
	s := &fakeStrategy{
		name: "s1", weight: 1,
		params: Params{MinProfitMargin: 0.01, MaxRiskScore: 50, ConfidenceThreshold: 0.5},
		result: Analysis{ProfitUSD: 100, Margin: 0.05, Risk: 10, Confidence: 0.9},
	}
	e := NewEngine([]Strategy{s}, NewStaticGasEstimator(map[chain.ID]float64{}))

	res, err := e.Analyze(testOrder(), models.MarketData{}, models.MarketData{}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, RecommendAccept, res.Recommendation)
}

func TestEngineAnalyzeRejectsWhenNetProfitNonPositive(t *testing.T) {
	s := &fakeStrategy{
		name: "s1", weight: 1,
		params: Params{MinProfitMargin: 0.01, MaxRiskScore: 50, ConfidenceThreshold: 0.5},
		result: Analysis{ProfitUSD: 5, Margin: 0.05, Risk: 10, Confidence: 0.9},
	}
	e := NewEngine([]Strategy{s}, NewStaticGasEstimator(map[chain.ID]float64{chain.EMainnet: 10, chain.BMainnet: 10}))

	res, err := e.Analyze(testOrder(), models.MarketData{}, models.MarketData{}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, RecommendReject, res.Recommendation)
}

func TestEngineAnalyzeMonitorsOnLowConfidence(t *testing.T) {
	s := &fakeStrategy{
		name: "s1", weight: 1,
		params: Params{MinProfitMargin: 0.01, MaxRiskScore: 50, ConfidenceThreshold: 0.8},
		result: Analysis{ProfitUSD: 100, Margin: 0.05, Risk: 10, Confidence: 0.3},
	}
	e := NewEngine([]Strategy{s}, NewStaticGasEstimator(map[chain.ID]float64{}))

	res, err := e.Analyze(testOrder(), models.MarketData{}, models.MarketData{}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, RecommendMonitor, res.Recommendation)
}

func TestEngineSkipsErroringStrategyButStillAnalyzes(t *testing.T) {
	good := &fakeStrategy{
		name: "good", weight: 1,
		params: Params{MinProfitMargin: 0.01, MaxRiskScore: 50, ConfidenceThreshold: 0.5},
		result: Analysis{ProfitUSD: 100, Margin: 0.05, Risk: 10, Confidence: 0.9},
	}
	bad := erroringStrategy{name: "bad"}
	e := NewEngine([]Strategy{good, bad}, NewStaticGasEstimator(map[chain.ID]float64{}))

	res, err := e.Analyze(testOrder(), models.MarketData{}, models.MarketData{}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, RecommendAccept, res.Recommendation)
	assert.Len(t, res.PerStrategy, 1)
}

type erroringStrategy struct{ name string }

func (e erroringStrategy) Name() string    { return e.name }
func (e erroringStrategy) Weight() float64 { return 1 }
func (e erroringStrategy) Params() Params  { return Params{} }
func (e erroringStrategy) Analyze(order models.CrossChainSwapState, srcMD, dstMD models.MarketData, now time.Time) (Analysis, error) {
	return Analysis{}, errStrategyFailed
}

// If strategy inputs improve (higher profit, lower risk, higher
// confidence) without any parameter change, the ensemble recommendation
// cannot regress accept -> monitor -> reject.
func TestRecommendationMonotonicity(t *testing.T) {
	rank := map[Recommendation]int{RecommendReject: 0, RecommendMonitor: 1, RecommendAccept: 2}

	params := Params{MinProfitMargin: 0.01, MaxRiskScore: 50, ConfidenceThreshold: 0.6}
	gas := NewStaticGasEstimator(map[chain.ID]float64{chain.EMainnet: 5, chain.BMainnet: 5})

	base := Analysis{ProfitUSD: 20, Margin: 0.005, Risk: 60, Confidence: 0.4}
	better := Analysis{ProfitUSD: 200, Margin: 0.05, Risk: 10, Confidence: 0.95}

	baseEngine := NewEngine([]Strategy{&fakeStrategy{name: "s", weight: 1, params: params, result: base}}, gas)
	betterEngine := NewEngine([]Strategy{&fakeStrategy{name: "s", weight: 1, params: params, result: better}}, gas)

	baseRes, err := baseEngine.Analyze(testOrder(), models.MarketData{}, models.MarketData{}, time.Now())
	require.NoError(t, err)
	betterRes, err := betterEngine.Analyze(testOrder(), models.MarketData{}, models.MarketData{}, time.Now())
	require.NoError(t, err)

	assert.GreaterOrEqual(t, rank[betterRes.Recommendation], rank[baseRes.Recommendation])
}

func TestEngineRejectsWhenAllStrategiesFail(t *testing.T) {
	e := NewEngine([]Strategy{erroringStrategy{name: "bad"}}, nil)
	res, err := e.Analyze(testOrder(), models.MarketData{}, models.MarketData{}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, RecommendReject, res.Recommendation)
	assert.Empty(t, res.PerStrategy)
}
