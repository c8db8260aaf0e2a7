package auction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rawblock/swap-resolver/pkg/models"
)

func testAuction(start, end time.Time) models.AuctionInfo {
	return models.AuctionInfo{
		OrderID:   "order-1",
		StartRate: 100,
		EndRate:   80,
		StartTime: start,
		EndTime:   end,
	}
}

func TestSelectStrategyPicksHighestPriorityThatSatisfies(t *testing.T) {
	strategies := []BiddingStrategy{
		{Name: "low-priority", Priority: 1, Enabled: true, MinProfitMargin: 0.01, RiskTolerance: 80},
		{Name: "high-priority", Priority: 10, Enabled: true, MinProfitMargin: 0.01, RiskTolerance: 80},
		{Name: "disabled", Priority: 20, Enabled: false, MinProfitMargin: 0.01, RiskTolerance: 80},
	}
	selected, ok := SelectStrategy(strategies, 0.05, 20, 100)
	assert.True(t, ok)
	assert.Equal(t, "high-priority", selected.Name)
}

func TestSelectStrategyReturnsFalseWhenNoneSatisfy(t *testing.T) {
	strategies := []BiddingStrategy{
		{Name: "strict", Priority: 1, Enabled: true, MinProfitMargin: 0.5, RiskTolerance: 5},
	}
	_, ok := SelectStrategy(strategies, 0.01, 50, 100)
	assert.False(t, ok)
}

func TestComputeBidDecisionWaitsWhenPriceTooHigh(t *testing.T) {
	now := time.Now()
	auction := testAuction(now.Add(-time.Minute), now.Add(time.Minute))
	strategy := BiddingStrategy{Name: "dynamic", Timing: models.TimingDynamic}

	decision := ComputeBidDecision(strategy, auction, 1000, 900, 10, 0.9, now)
	assert.False(t, decision.ShouldBid)
	assert.Equal(t, TimingWait, decision.Timing)
}

func TestComputeBidDecisionEarlyStrategyWithinWindow(t *testing.T) {
	now := time.Now()
	start := now.Add(-1 * time.Minute)
	end := now.Add(9 * time.Minute) // progress = 0.1, within early's <0.3 window
	strategy := BiddingStrategy{Name: "early", Timing: models.TimingEarly, MaxBidPrice: 1000}

	decision := ComputeBidDecision(strategy, testAuction(start, end), 100, 200, 20, 0.9, now)
	assert.Equal(t, TimingImmediate, decision.Timing)
	assert.Greater(t, decision.BidPrice, 100.0)
}

func TestComputeBidDecisionEarlyStrategyOutsideWindowWaits(t *testing.T) {
	now := time.Now()
	start := now.Add(-8 * time.Minute)
	end := now.Add(2 * time.Minute) // progress = 0.8
	strategy := BiddingStrategy{Name: "early", Timing: models.TimingEarly}

	decision := ComputeBidDecision(strategy, testAuction(start, end), 100, 200, 20, 0.9, now)
	assert.Equal(t, TimingWait, decision.Timing)
}

func TestComputeBidDecisionLateStrategySchedulesBeforeWindow(t *testing.T) {
	now := time.Now()
	start := now
	end := now.Add(10 * time.Minute) // progress = 0
	strategy := BiddingStrategy{Name: "late", Timing: models.TimingLate}

	decision := ComputeBidDecision(strategy, testAuction(start, end), 100, 200, 20, 0.9, now)
	assert.Equal(t, TimingScheduled, decision.Timing)
	assert.True(t, decision.ScheduledAt.After(now))
}

func TestComputeBidDecisionMiddleStrategyBidsWithinWindow(t *testing.T) {
	now := time.Now()
	start := now.Add(-5 * time.Minute)
	end := now.Add(5 * time.Minute) // progress = 0.5
	strategy := BiddingStrategy{Name: "middle", Timing: models.TimingMiddle}

	decision := ComputeBidDecision(strategy, testAuction(start, end), 100, 200, 20, 0.9, now)
	assert.Equal(t, TimingImmediate, decision.Timing)
	assert.Equal(t, 100.0, decision.BidPrice)
}

func TestComputeBidDecisionClampsToMaxBidPrice(t *testing.T) {
	now := time.Now()
	start := now
	end := now.Add(10 * time.Minute)
	strategy := BiddingStrategy{Name: "dynamic", Timing: models.TimingDynamic, Aggressiveness: 1, MaxBidPrice: 105}

	decision := ComputeBidDecision(strategy, testAuction(start, end), 100, 10000, 1000, 0.9, now)
	assert.LessOrEqual(t, decision.BidPrice, 105.0)
	assert.Contains(t, decision.Reasoning, "clamped to strategy.maxBidPrice")
}

func TestComputeBidDecisionConfidenceFormula(t *testing.T) {
	now := time.Now()
	start := now.Add(-5 * time.Minute)
	end := now.Add(5 * time.Minute)
	strategy := BiddingStrategy{Name: "middle", Timing: models.TimingMiddle}

	decision := ComputeBidDecision(strategy, testAuction(start, end), 100, 200, 20, 1.0, now)
	assert.True(t, decision.Confidence > 0 && decision.Confidence <= 1)
}
