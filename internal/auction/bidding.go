package auction

import (
	"fmt"
	"time"

	"github.com/rawblock/swap-resolver/pkg/models"
)

// BiddingStrategy is one configured bid-timing policy.
type BiddingStrategy struct {
	Name                string
	Priority            int
	Enabled             bool
	Timing              models.BidTiming
	MinProfitMargin     float64
	RiskTolerance       float64
	MaxBidPrice         float64
	Aggressiveness      float64 // used by TimingDynamic, in [0,1]
}

// Satisfies reports whether an analysis clears this strategy's gates.
func (b BiddingStrategy) Satisfies(margin, riskScore, expectedProfit float64) bool {
	return b.Enabled && margin >= b.MinProfitMargin && riskScore <= b.RiskTolerance && expectedProfit > 0
}

// SelectStrategy returns the highest-priority enabled strategy (by
// descending Priority) whose gates are satisfied, or false if none
// qualify.
func SelectStrategy(strategies []BiddingStrategy, margin, riskScore, expectedProfit float64) (BiddingStrategy, bool) {
	var best BiddingStrategy
	found := false
	for _, s := range strategies {
		if !s.Satisfies(margin, riskScore, expectedProfit) {
			continue
		}
		if !found || s.Priority > best.Priority {
			best = s
			found = true
		}
	}
	return best, found
}

// BidTimingMode is the resolved action for a computed BidDecision.
type BidTimingMode string

const (
	TimingImmediate BidTimingMode = "immediate"
	TimingScheduled BidTimingMode = "scheduled"
	TimingWait      BidTimingMode = "wait"
)

// BidDecision is the Auction Participant's computed bid plan for one
// polling pass over an active auction.
type BidDecision struct {
	ShouldBid    bool
	BidPrice     float64
	Confidence   float64
	Strategy     string
	Reasoning    []string
	Timing       BidTimingMode
	ScheduledAt  time.Time
}

// ComputeBidDecision applies the bid-timing formulas and clamps that
// decide whether, and when, to bid on a Dutch auction as its price
// decays toward the maker's floor. expectedProfit and currentPrice are
// denominated in the destination chain's display unit; destAmount is
// the order's full destination amount in the same unit.
func ComputeBidDecision(strategy BiddingStrategy, auction models.AuctionInfo, currentPrice, destAmount, expectedProfit, analysisConfidence float64, now time.Time) BidDecision {
	var reasoning []string

	total := auction.EndTime.Sub(auction.StartTime).Seconds()
	var progress float64
	if total > 0 {
		progress = now.Sub(auction.StartTime).Seconds() / total
	}
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}

	maxAcceptableBid := destAmount - expectedProfit

	if currentPrice > maxAcceptableBid {
		return BidDecision{
			ShouldBid: false,
			Timing:    TimingWait,
			Strategy:  strategy.Name,
			Reasoning: []string{"currentPrice exceeds maxAcceptableBid"},
		}
	}

	var bidPrice float64
	timing := TimingImmediate
	var scheduledAt time.Time

	switch strategy.Timing {
	case models.TimingEarly:
		if progress < 0.3 {
			bidPrice = currentPrice + 0.1*expectedProfit
		} else {
			timing = TimingWait
			reasoning = append(reasoning, "early strategy out of window, waiting")
		}
	case models.TimingLate:
		if progress > 0.8 {
			bidPrice = currentPrice
		} else {
			timing = TimingScheduled
			scheduledAt = timeAtProgress(auction, 0.8)
			reasoning = append(reasoning, "late strategy scheduling at progress=0.8")
		}
	case models.TimingMiddle:
		switch {
		case progress >= 0.4 && progress <= 0.7:
			bidPrice = currentPrice
		case progress < 0.4:
			timing = TimingScheduled
			scheduledAt = timeAtProgress(auction, 0.5)
			reasoning = append(reasoning, "middle strategy scheduling at progress=0.5")
		default:
			timing = TimingWait
			reasoning = append(reasoning, "middle strategy window passed, waiting")
		}
	default: // dynamic
		bidPrice = currentPrice + strategy.Aggressiveness*0.2*expectedProfit
	}

	if timing == TimingImmediate {
		if strategy.MaxBidPrice > 0 && bidPrice > strategy.MaxBidPrice {
			bidPrice = strategy.MaxBidPrice
			reasoning = append(reasoning, "clamped to strategy.maxBidPrice")
		}
		if bidPrice > maxAcceptableBid {
			bidPrice = maxAcceptableBid
			reasoning = append(reasoning, "clamped to maxAcceptableBid")
		}
	}

	timeConf := 1 - progress
	var priceConf float64
	if maxAcceptableBid > 0 {
		priceConf = (maxAcceptableBid - currentPrice) / maxAcceptableBid
	}
	confidence := (timeConf + priceConf + analysisConfidence) / 3

	shouldBid := timing == TimingImmediate && bidPrice > 0 && confidence > 0.5

	return BidDecision{
		ShouldBid:   shouldBid,
		BidPrice:    bidPrice,
		Confidence:  confidence,
		Strategy:    strategy.Name,
		Reasoning:   reasoning,
		Timing:      timing,
		ScheduledAt: scheduledAt,
	}
}

func timeAtProgress(a models.AuctionInfo, progress float64) time.Time {
	total := a.EndTime.Sub(a.StartTime)
	return a.StartTime.Add(time.Duration(float64(total) * progress))
}

func (d BidDecision) String() string {
	return fmt.Sprintf("BidDecision{shouldBid=%v price=%.6f timing=%s strategy=%s}", d.ShouldBid, d.BidPrice, d.Timing, d.Strategy)
}
