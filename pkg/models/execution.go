package models

import (
	"sync"
	"time"

	"github.com/rawblock/swap-resolver/pkg/chain"
)

// TxRole identifies which stage of the atomic-swap protocol an
// ExecutedTransaction belongs to.
type TxRole string

const (
	RoleSourceFund     TxRole = "source_fund"
	RoleDestinationFund TxRole = "destination_fund"
	RoleRedeem         TxRole = "redeem"
	RoleRefund         TxRole = "refund"
)

// ExecutedTransaction records one on-chain transaction the Swap
// Executor submitted, independent of its confirmation status.
type ExecutedTransaction struct {
	Role        TxRole
	ChainID     chain.ID
	TxID        string
	SubmittedAt time.Time
	Confirmed   bool
	ConfirmedAt time.Time
}

// SwapExecution is the Swap Executor's per-order working state: the
// order it owns, the HTLCs it has built, the transactions it has
// submitted, and the secret once revealed. Its stages run in one
// goroutine, but the redemption and refund steps each touch it from two
// goroutines at once, so AddTransaction and TransactionsByRole
// serialise access to Transactions.
type SwapExecution struct {
	Order        CrossChainSwapState
	SourceHTLC   *HTLCOutput
	DestHTLC     *HTLCOutput
	Transactions []ExecutedTransaction
	RevealedAt   time.Time
	FailReason   string

	txMu sync.Mutex
}

// AddTransaction appends a submitted transaction to the execution record.
func (e *SwapExecution) AddTransaction(tx ExecutedTransaction) {
	e.txMu.Lock()
	defer e.txMu.Unlock()
	e.Transactions = append(e.Transactions, tx)
}

// TransactionsByRole returns all recorded transactions matching role,
// in submission order.
func (e *SwapExecution) TransactionsByRole(role TxRole) []ExecutedTransaction {
	e.txMu.Lock()
	defer e.txMu.Unlock()
	var out []ExecutedTransaction
	for _, tx := range e.Transactions {
		if tx.Role == role {
			out = append(out, tx)
		}
	}
	return out
}
