package models

import (
	"time"

	"github.com/rawblock/swap-resolver/pkg/chain"
)

// AuctionInfo describes a Dutch-auction round the relayer is running
// for an order: the resolver's fill price starts at StartRate and
// decays linearly toward EndRate by EndTime.
type AuctionInfo struct {
	OrderID   string
	StartRate float64
	EndRate   float64
	StartTime time.Time
	EndTime   time.Time
}

// RateAt returns the auction's linearly-interpolated clearing rate at t,
// clamped to [EndRate, StartRate] outside the auction window (assumes
// StartRate >= EndRate, a decaying auction).
func (a AuctionInfo) RateAt(t time.Time) float64 {
	if !t.After(a.StartTime) {
		return a.StartRate
	}
	if !t.Before(a.EndTime) {
		return a.EndRate
	}
	total := a.EndTime.Sub(a.StartTime).Seconds()
	if total <= 0 {
		return a.EndRate
	}
	elapsed := t.Sub(a.StartTime).Seconds()
	frac := elapsed / total
	return a.StartRate - frac*(a.StartRate-a.EndRate)
}

// BidTiming is the strategy the Auction Participant uses to pick when,
// within an auction window, to submit its bid.
type BidTiming string

const (
	TimingEarly   BidTiming = "early"
	TimingLate    BidTiming = "late"
	TimingMiddle  BidTiming = "middle"
	TimingDynamic BidTiming = "dynamic"
)

// AuctionBid is a single bid submission attempt.
type AuctionBid struct {
	OrderID     string
	SubmittedAt time.Time
	Rate        float64
	Timing      BidTiming
}

// BidOutcome is the relayer's resolution of a submitted bid.
type BidOutcome string

const (
	OutcomePending BidOutcome = "pending"
	OutcomeWon     BidOutcome = "won"
	OutcomeLost    BidOutcome = "lost"
	OutcomeExpired BidOutcome = "expired"
)

// AuctionParticipation tracks one order's full auction lifecycle, from
// scheduling through outcome.
type AuctionParticipation struct {
	OrderID string
	Auction AuctionInfo
	Bid     *AuctionBid
	Outcome BidOutcome
}

// HTLCParams are the parameters needed to construct either chain leg's
// hash-timelock contract.
type HTLCParams struct {
	SecretHash chain.Hash
	Sender     chain.Address
	Recipient  chain.Address
	Amount     chain.Amount
	Timelock   int64
}

// HTLCOutput is the constructed, chain-specific contract output ready
// for funding: an opaque locking script/bytecode plus the derived
// address or identifier a counterparty funds into.
type HTLCOutput struct {
	Params  HTLCParams
	Script  []byte
	Address chain.Address
}
