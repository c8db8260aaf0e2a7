// Package models holds the entities shared across the resolver's
// components: the cross-chain swap order, analyses, assessments, and
// the execution/transaction records that track a swap to completion.
package models

import (
	"fmt"
	"time"

	"github.com/rawblock/swap-resolver/pkg/chain"
)

// SafetyMarginSeconds is Δ_safety from invariant T1: the source
// timelock must exceed the destination timelock by more than this many
// seconds.
const SafetyMarginSeconds = 600

// ChainLeg describes one side (source or destination) of a swap order.
type ChainLeg struct {
	ChainID chain.ID
	Token   chain.Token
	Address chain.Address
}

// Timelocks holds the absolute Unix-second deadlines for each leg.
type Timelocks struct {
	Source      int64
	Destination int64
}

// Amounts holds the two legs' transfer amounts.
type Amounts struct {
	Source      chain.Amount
	Destination chain.Amount
}

// SwapStatus is the CrossChainSwapState lifecycle status.
type SwapStatus string

const (
	StatusDiscovered         SwapStatus = "discovered"
	StatusAuctionStarted     SwapStatus = "auction_started"
	StatusResolverSelected   SwapStatus = "resolver_selected"
	StatusSourceFunding      SwapStatus = "source_funding"
	StatusSourceFunded       SwapStatus = "source_funded"
	StatusDestinationFunding SwapStatus = "destination_funding"
	StatusDestinationFunded  SwapStatus = "destination_funded"
	StatusBothFunded         SwapStatus = "both_funded"
	StatusRevealingSecret    SwapStatus = "revealing_secret"
	StatusRedeeming          SwapStatus = "redeeming"
	StatusCompleted          SwapStatus = "completed"
	StatusFailed             SwapStatus = "failed"
	StatusExpired            SwapStatus = "expired"
)

// IsActive reports whether an order in this status holds live
// exposure: activated on entry to any of these, deactivated on exit to
// a terminal status.
func (s SwapStatus) IsActive() bool {
	switch s {
	case StatusAuctionStarted, StatusResolverSelected, StatusSourceFunding,
		StatusSourceFunded, StatusDestinationFunding, StatusDestinationFunded,
		StatusBothFunded, StatusRevealingSecret, StatusRedeeming:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status is one of the swap's terminal
// states (completed, failed, expired).
func (s SwapStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusExpired:
		return true
	default:
		return false
	}
}

// CrossChainSwapState is the shared, relayer-published order record.
// It is passed by value; the Swap Executor keeps its own copy in
// SwapExecution.Order and updates that copy's Status and Secret as the
// swap advances, while executed transactions and the reveal time live
// on SwapExecution itself.
type CrossChainSwapState struct {
	OrderID     string
	Maker       chain.Address
	Source      ChainLeg
	Destination ChainLeg
	Amounts     Amounts
	Timelocks   Timelocks
	SecretHash  chain.Hash
	Status      SwapStatus
	// Secret is nil until the resolver generates or is given the
	// preimage; the Swap Executor sets it on its copy at Start, before
	// any reveal.
	Secret *chain.Secret
}

// ValidateInvariants checks T1 (the source timelock exceeds the
// destination timelock by more than SafetyMarginSeconds) and T2 (both
// amounts are positive). It does not compare the timelocks with the
// current time.
// Implementations must reject orders violating either before any
// reservation or execution begins.
func (s CrossChainSwapState) ValidateInvariants() error {
	if s.Timelocks.Source <= s.Timelocks.Destination+SafetyMarginSeconds {
		return fmt.Errorf("timelock ordering violates T1: source=%d destination=%d safetyMargin=%d",
			s.Timelocks.Source, s.Timelocks.Destination, SafetyMarginSeconds)
	}
	if s.Amounts.Source.IsZero() {
		return fmt.Errorf("amounts.source violates T2: must be > 0")
	}
	if s.Amounts.Destination.IsZero() {
		return fmt.Errorf("amounts.destination violates T2: must be > 0")
	}
	return nil
}

// SourceExpiry returns the source leg's timelock as a time.Time.
func (s CrossChainSwapState) SourceExpiry() time.Time {
	return time.Unix(s.Timelocks.Source, 0)
}

// DestinationExpiry returns the destination leg's timelock as a time.Time.
func (s CrossChainSwapState) DestinationExpiry() time.Time {
	return time.Unix(s.Timelocks.Destination, 0)
}
