package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/rawblock/swap-resolver/pkg/chain"
)

func baseOrder(now int64) CrossChainSwapState {
	return CrossChainSwapState{
		OrderID: "order-1",
		Maker:   chain.Address("bc1qmaker"),
		Source: ChainLeg{
			ChainID: chain.EMainnet,
			Token:   chain.Native,
			Address: chain.Address("0xresolver"),
		},
		Destination: ChainLeg{
			ChainID: chain.BMainnet,
			Token:   chain.Native,
			Address: chain.Address("bc1qdest"),
		},
		Amounts: Amounts{
			Source:      chain.NewAmount(1_000_000_000_000_000_000),
			Destination: chain.NewAmount(4_000_000),
		},
		Timelocks: Timelocks{
			Source:      now + 7200,
			Destination: now + 3600,
		},
		SecretHash: chain.HashSecret(chain.Secret{}),
		Status:     StatusDiscovered,
	}
}

// For every accepted order, timelocks.source must exceed
// timelocks.destination by more than the safety margin.
func TestValidateInvariantsAcceptsSafeTimelocks(t *testing.T) {
	order := baseOrder(1000)
	assert.NoError(t, order.ValidateInvariants())
}

// Equal timelocks leave no safety margin between the two legs and
// must be rejected.
func TestValidateInvariantsRejectsEqualTimelocks(t *testing.T) {
	order := baseOrder(1000)
	order.Timelocks.Destination = order.Timelocks.Source
	err := order.ValidateInvariants()
	assert.Error(t, err)
}

func TestValidateInvariantsRejectsInsufficientSafetyMargin(t *testing.T) {
	order := baseOrder(1000)
	order.Timelocks.Source = order.Timelocks.Destination + SafetyMarginSeconds
	assert.Error(t, order.ValidateInvariants())

	order.Timelocks.Source = order.Timelocks.Destination + SafetyMarginSeconds + 1
	assert.NoError(t, order.ValidateInvariants())
}

// T2: both amounts must be strictly positive.
func TestValidateInvariantsRejectsZeroAmounts(t *testing.T) {
	order := baseOrder(1000)
	order.Amounts.Source = chain.ZeroAmount()
	assert.Error(t, order.ValidateInvariants())

	order = baseOrder(1000)
	order.Amounts.Destination = chain.ZeroAmount()
	assert.Error(t, order.ValidateInvariants())
}

func TestSwapStatusIsActiveLifecycle(t *testing.T) {
	active := []SwapStatus{
		StatusAuctionStarted, StatusResolverSelected, StatusSourceFunding,
		StatusSourceFunded, StatusDestinationFunding, StatusDestinationFunded,
		StatusBothFunded, StatusRevealingSecret, StatusRedeeming,
	}
	for _, s := range active {
		assert.Truef(t, s.IsActive(), "expected %s to be active", s)
		assert.Falsef(t, s.IsTerminal(), "expected %s to be non-terminal", s)
	}

	terminal := []SwapStatus{StatusCompleted, StatusFailed, StatusExpired}
	for _, s := range terminal {
		assert.Falsef(t, s.IsActive(), "expected %s to be inactive", s)
		assert.Truef(t, s.IsTerminal(), "expected %s to be terminal", s)
	}

	assert.False(t, StatusDiscovered.IsActive())
	assert.False(t, StatusDiscovered.IsTerminal())
}
