package swap

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rawblock/swap-resolver/internal/events"
	"github.com/rawblock/swap-resolver/internal/liquidity"
	"github.com/rawblock/swap-resolver/pkg/chain"
	"github.com/rawblock/swap-resolver/pkg/models"
)

// recordingEChain implements EChainClientInterface, flagging whether
// the destination side has confirmed before it is asked to redeem.
type recordingEChain struct {
	t            *testing.T
	dstConfirmed *atomic.Bool
}

func (c *recordingEChain) FundEscrow(ctx context.Context, order models.CrossChainSwapState, side EscrowSide) (models.ExecutedTransaction, error) {
	return models.ExecutedTransaction{Role: models.RoleSourceFund, ChainID: order.Source.ChainID, TxID: "src-tx", SubmittedAt: time.Now()}, nil
}

func (c *recordingEChain) RedeemEscrow(ctx context.Context, txHash string, secret chain.Secret) (models.ExecutedTransaction, error) {
	assert.True(c.t, c.dstConfirmed.Load(), "E-chain redeem must not run before the destination side has confirmed")
	return models.ExecutedTransaction{Role: models.RoleRedeem, TxID: "redeem-e"}, nil
}

func (c *recordingEChain) RefundEscrow(ctx context.Context, txHash string) (models.ExecutedTransaction, error) {
	return models.ExecutedTransaction{Role: models.RoleRefund, TxID: "refund-e"}, nil
}

func (c *recordingEChain) WaitForConfirmation(ctx context.Context, txHash string, confirmations int, timeout time.Duration) error {
	return nil
}

// recordingBChain implements BChainClientInterface, flipping
// dstConfirmed once WaitForConfirmation is called for the destination
// funding transaction.
type recordingBChain struct {
	t            *testing.T
	dstConfirmed *atomic.Bool
}

func (c *recordingBChain) BuildHTLC(ctx context.Context, params models.HTLCParams) (models.HTLCOutput, error) {
	return models.HTLCOutput{Params: params, Script: []byte{0x01}, Address: chain.Address("bc1qhtlc")}, nil
}

func (c *recordingBChain) SelectUTXOs(ctx context.Context, addr chain.Address, minAmount chain.Amount) ([]UTXO, error) {
	return []UTXO{{TxID: "utxo-1", Value: minAmount.Int64() + 1000}}, nil
}

func (c *recordingBChain) FundHTLC(ctx context.Context, output models.HTLCOutput, amount chain.Amount, utxos []UTXO, privKey []byte, changeAddr chain.Address, feeRate int64) (string, error) {
	return "dst-tx", nil
}

func (c *recordingBChain) RedeemHTLC(ctx context.Context, utxo UTXO, output models.HTLCOutput, secret chain.Secret, privKey []byte, addr chain.Address, feeRate int64) (string, error) {
	assert.True(c.t, c.dstConfirmed.Load(), "B-chain redeem must not run before the destination side has confirmed")
	return "redeem-b", nil
}

func (c *recordingBChain) RefundHTLC(ctx context.Context, utxo UTXO, output models.HTLCOutput, privKey []byte, addr chain.Address, timelock int64, feeRate int64) (string, error) {
	return "refund-b", nil
}

func (c *recordingBChain) Broadcast(ctx context.Context, txHex string) (string, error) {
	return "broadcast-tx", nil
}

func (c *recordingBChain) GetUTXOs(ctx context.Context, addr chain.Address, minConf int) ([]UTXO, error) {
	return nil, nil
}

func (c *recordingBChain) ExtractSecret(ctx context.Context, txHex string, redeemScript []byte) (*chain.Secret, error) {
	return nil, nil
}

func (c *recordingBChain) WaitForConfirmation(ctx context.Context, txid string, confirmations int, timeout time.Duration) error {
	c.dstConfirmed.Store(true)
	return nil
}

func buildTestSwapOrder(t *testing.T) (models.CrossChainSwapState, chain.Secret) {
	secret, err := chain.GenerateSecret()
	require.NoError(t, err)
	now := time.Now().Unix()
	order := models.CrossChainSwapState{
		OrderID: "order-1",
		Maker:   chain.Address("bc1qmaker"),
		Source: models.ChainLeg{
			ChainID: chain.EMainnet,
			Token:   chain.Native,
			Address: chain.Address("0xresolver"),
		},
		Destination: models.ChainLeg{
			ChainID: chain.BMainnet,
			Token:   chain.Native,
			Address: chain.Address("bc1qdest"),
		},
		Amounts: models.Amounts{
			Source:      chain.NewAmount(1_000_000_000_000_000_000),
			Destination: chain.NewAmount(4_000_000),
		},
		Timelocks: models.Timelocks{
			Source:      now + 7200,
			Destination: now + 3600,
		},
		SecretHash: chain.HashSecret(secret),
		Status:     models.StatusDiscovered,
	}
	return order, secret
}

// The redemption step that publishes the witness containing the secret
// must never run before both funding transactions reach their required
// confirmations.
func TestExecutorNeverRedeemsBeforeBothSidesConfirm(t *testing.T) {
	order, secret := buildTestSwapOrder(t)

	var dstConfirmed atomic.Bool
	cc := &recordingEChain{t: t, dstConfirmed: &dstConfirmed}
	cb := &recordingBChain{t: t, dstConfirmed: &dstConfirmed}

	pool := chain.PoolKey{Chain: order.Source.ChainID, Token: order.Source.Token}
	lm := liquidity.NewManager(map[chain.PoolKey]chain.Amount{pool: order.Amounts.Source})
	reservationID, err := lm.ReserveLiquidity(order.OrderID, pool, order.Amounts.Source, time.Now().Add(time.Hour))
	require.NoError(t, err)

	bus := events.NewBus(nil)
	var revealed atomic.Bool
	bus.On(events.SecretRevealed, func(events.Event) { revealed.Store(true) })

	cfg := Config{
		EthereumConfirmations: 1,
		BitcoinConfirmations:  1,
		MaxRetries:            1,
		RetryBaseDelay:        time.Millisecond,
		RetryBackoffFactor:    2,
		TransactionTimeout:    time.Second,
		SecretRevealDelay:     0,
	}
	executor := NewExecutor(cfg, cc, cb, lm, bus)

	exec := &models.SwapExecution{Order: order}
	exec.Order.Secret = &secret

	executor.run(context.Background(), exec, reservationID)

	assert.True(t, dstConfirmed.Load())
	assert.True(t, revealed.Load())
	assert.Equal(t, models.StatusCompleted, exec.Order.Status)

	_, stillHeld := lm.Get(reservationID)
	assert.True(t, stillHeld)
}

func TestExecutorFailsOnInvariantViolation(t *testing.T) {
	order, secret := buildTestSwapOrder(t)
	order.Timelocks.Destination = order.Timelocks.Source // violates T1

	var dstConfirmed atomic.Bool
	cc := &recordingEChain{t: t, dstConfirmed: &dstConfirmed}
	cb := &recordingBChain{t: t, dstConfirmed: &dstConfirmed}

	pool := chain.PoolKey{Chain: order.Source.ChainID, Token: order.Source.Token}
	lm := liquidity.NewManager(map[chain.PoolKey]chain.Amount{pool: order.Amounts.Source})
	reservationID, err := lm.ReserveLiquidity(order.OrderID, pool, order.Amounts.Source, time.Now().Add(time.Hour))
	require.NoError(t, err)

	cfg := Config{EthereumConfirmations: 1, BitcoinConfirmations: 1, MaxRetries: 1, RetryBaseDelay: time.Millisecond, RetryBackoffFactor: 2, TransactionTimeout: time.Second}
	executor := NewExecutor(cfg, cc, cb, lm, nil)

	exec := &models.SwapExecution{Order: order}
	exec.Order.Secret = &secret
	executor.run(context.Background(), exec, reservationID)

	assert.Equal(t, models.StatusFailed, exec.Order.Status)

	r, ok := lm.Get(reservationID)
	require.True(t, ok)
	assert.Equal(t, liquidity.ReservationReleased, r.Status)
}
