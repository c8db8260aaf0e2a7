package swap

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/rawblock/swap-resolver/internal/errs"
	"github.com/rawblock/swap-resolver/internal/events"
	"github.com/rawblock/swap-resolver/internal/liquidity"
	"github.com/rawblock/swap-resolver/pkg/chain"
	"github.com/rawblock/swap-resolver/pkg/models"
)

// Config bounds the Executor's confirmation and retry/timing behavior.
type Config struct {
	EthereumConfirmations   int
	BitcoinConfirmations    int
	MaxRetries              int
	RetryBaseDelay          time.Duration
	RetryBackoffFactor      float64
	TransactionTimeout      time.Duration
	SecretRevealDelay       time.Duration
	MaxConcurrentExecutions int
}

// Executor owns activeExecutions and drives each one's state machine in
// its own goroutine, sequential stage-by-stage: destination funding
// only begins once source funding has confirmed, and the secret is
// never revealed until both sides are locked, so a crash mid-swap
// always leaves a well-defined recovery point.
type Executor struct {
	mu               sync.Mutex
	activeExecutions map[string]*models.SwapExecution

	cfg Config
	cc  EChainClientInterface
	cb  BChainClientInterface
	lm  *liquidity.Manager
	bus *events.Bus
}

// NewExecutor constructs an Executor.
func NewExecutor(cfg Config, cc EChainClientInterface, cb BChainClientInterface, lm *liquidity.Manager, bus *events.Bus) *Executor {
	return &Executor{
		activeExecutions: make(map[string]*models.SwapExecution),
		cfg:              cfg,
		cc:               cc,
		cb:               cb,
		lm:               lm,
		bus:              bus,
	}
}

// Start begins driving order's state machine to completion in a new
// goroutine. reservationID is the LM hold to consume or release on
// exit. secret is nil if the resolver has not yet generated one (it
// generates its own here).
func (e *Executor) Start(ctx context.Context, order models.CrossChainSwapState, reservationID string, secret *chain.Secret) {
	exec := &models.SwapExecution{Order: order}
	if secret != nil {
		exec.Order.Secret = secret
	} else if generated, err := chain.GenerateSecret(); err == nil {
		exec.Order.Secret = &generated
	} else {
		log.Printf("[swap] failed to generate secret for %s: %v", order.OrderID, err)
	}

	e.mu.Lock()
	e.activeExecutions[order.OrderID] = exec
	e.mu.Unlock()

	go e.run(ctx, exec, reservationID)
}

func (e *Executor) run(ctx context.Context, exec *models.SwapExecution, reservationID string) {
	defer func() {
		e.mu.Lock()
		delete(e.activeExecutions, exec.Order.OrderID)
		e.mu.Unlock()
	}()

	if err := exec.Order.ValidateInvariants(); err != nil {
		e.fail(exec, reservationID, fmt.Sprintf("invariant violation: %v", err))
		return
	}

	e.advance(exec, models.StatusSourceFunding)
	sourceTx, err := e.withRetry(ctx, "source_funding", func() (models.ExecutedTransaction, error) {
		return e.cc.FundEscrow(ctx, exec.Order, SideSource)
	})
	if err != nil {
		e.fail(exec, reservationID, "source funding failed: "+err.Error())
		return
	}
	exec.AddTransaction(sourceTx)
	if e.bus != nil {
		e.bus.Emit(events.SwapStageAdvanced, exec.Order.OrderID, sourceTx)
	}
	if err := e.cc.WaitForConfirmation(ctx, sourceTx.TxID, e.cfg.EthereumConfirmations, e.cfg.TransactionTimeout); err != nil {
		e.fail(exec, reservationID, "source confirmation timeout: "+err.Error())
		return
	}

	if err := e.lm.Consume(reservationID); err != nil {
		log.Printf("[swap] failed to consume reservation %s for %s: %v", reservationID, exec.Order.OrderID, err)
	}

	e.advance(exec, models.StatusDestinationFunding)
	destTx, err := e.fundBitcoinSide(ctx, exec)
	if err != nil {
		e.scheduleRefund(ctx, exec, reservationID, "destination funding failed: "+err.Error())
		return
	}
	exec.AddTransaction(destTx)
	if err := e.cb.WaitForConfirmation(ctx, destTx.TxID, e.cfg.BitcoinConfirmations, e.cfg.TransactionTimeout); err != nil {
		e.scheduleRefund(ctx, exec, reservationID, "destination confirmation timeout: "+err.Error())
		return
	}

	e.advance(exec, models.StatusBothFunded)

	e.advance(exec, models.StatusRevealingSecret)
	time.Sleep(e.cfg.SecretRevealDelay)

	e.advance(exec, models.StatusRedeeming)
	result := e.redeemBothSides(ctx, exec)
	if result.destErr != nil || result.srcErr != nil {
		e.handleRedemptionFailure(exec, reservationID, result)
		return
	}

	e.completeExecution(exec)
}

// completeExecution marks the secret revealed (the first time it's
// called for exec) and advances the execution to its terminal success
// state. Both the happy path and a retried partial redemption reach
// this through the same function, so the secret-revealed event never
// fires twice for one execution.
func (e *Executor) completeExecution(exec *models.SwapExecution) {
	if exec.RevealedAt.IsZero() {
		exec.RevealedAt = time.Now()
		if e.bus != nil {
			e.bus.Emit(events.SecretRevealed, exec.Order.OrderID, exec.Order.Secret)
		}
	}
	e.advance(exec, models.StatusCompleted)
	if e.bus != nil {
		e.bus.Emit(events.SwapCompleted, exec.Order.OrderID, exec)
	}
}

func (e *Executor) fundBitcoinSide(ctx context.Context, exec *models.SwapExecution) (models.ExecutedTransaction, error) {
	htlcOutput, err := e.cb.BuildHTLC(ctx, models.HTLCParams{
		SecretHash: exec.Order.SecretHash,
		Sender:     exec.Order.Destination.Address,
		Recipient:  exec.Order.Maker,
		Amount:     exec.Order.Amounts.Destination,
		Timelock:   exec.Order.Timelocks.Destination,
	})
	if err != nil {
		return models.ExecutedTransaction{}, fmt.Errorf("swap: build HTLC: %w", err)
	}
	exec.DestHTLC = &htlcOutput

	utxos, err := e.cb.SelectUTXOs(ctx, exec.Order.Destination.Address, exec.Order.Amounts.Destination)
	if err != nil {
		return models.ExecutedTransaction{}, fmt.Errorf("swap: select UTXOs: %w", err)
	}

	txid, err := e.cb.FundHTLC(ctx, htlcOutput, exec.Order.Amounts.Destination, utxos, nil, exec.Order.Destination.Address, 0)
	if err != nil {
		return models.ExecutedTransaction{}, fmt.Errorf("swap: fund HTLC: %w", err)
	}

	tx := models.ExecutedTransaction{
		Role:        models.RoleDestinationFund,
		ChainID:     exec.Order.Destination.ChainID,
		TxID:        txid,
		SubmittedAt: time.Now(),
	}
	if e.bus != nil {
		e.bus.Emit(events.SwapStageAdvanced, exec.Order.OrderID, tx)
	}
	return tx, nil
}

// redeemResult carries the outcome of each leg of redeemBothSides
// separately: which leg (if any) failed determines whether recovery is
// a refund or a retry, since a broadcast redemption already exposes
// the secret regardless of whether the other leg succeeded.
type redeemResult struct {
	destErr error
	srcErr  error
}

// redeemBothSides spends the B-chain HTLC via the secret path and
// invokes the E-chain escrow's redeem in parallel: once the secret is
// known, neither redemption depends on the other completing first, so
// running them concurrently halves the exposure window.
func (e *Executor) redeemBothSides(ctx context.Context, exec *models.SwapExecution) redeemResult {
	if exec.Order.Secret == nil {
		err := fmt.Errorf("swap: cannot redeem without a secret")
		return redeemResult{destErr: err, srcErr: err}
	}

	var wg sync.WaitGroup
	var result redeemResult

	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := e.redeemDestination(ctx, exec); err != nil {
			result.destErr = err
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := e.redeemSource(ctx, exec); err != nil {
			result.srcErr = err
		}
	}()

	wg.Wait()
	return result
}

// redeemDestination spends the B-chain HTLC's secret-path branch.
func (e *Executor) redeemDestination(ctx context.Context, exec *models.SwapExecution) (models.ExecutedTransaction, error) {
	destTxs := exec.TransactionsByRole(models.RoleDestinationFund)
	if len(destTxs) == 0 {
		return models.ExecutedTransaction{}, fmt.Errorf("swap: no destination funding transaction recorded")
	}
	utxo := UTXO{TxID: destTxs[0].TxID}
	txid, err := e.cb.RedeemHTLC(ctx, utxo, *exec.DestHTLC, *exec.Order.Secret, nil, exec.Order.Maker, 0)
	if err != nil {
		return models.ExecutedTransaction{}, fmt.Errorf("swap: B-chain redeem: %w", err)
	}
	tx := models.ExecutedTransaction{Role: models.RoleRedeem, ChainID: exec.Order.Destination.ChainID, TxID: txid, SubmittedAt: time.Now()}
	exec.AddTransaction(tx)
	return tx, nil
}

// redeemSource invokes the E-chain escrow's redeem(secret).
func (e *Executor) redeemSource(ctx context.Context, exec *models.SwapExecution) (models.ExecutedTransaction, error) {
	sourceTxs := exec.TransactionsByRole(models.RoleSourceFund)
	if len(sourceTxs) == 0 {
		return models.ExecutedTransaction{}, fmt.Errorf("swap: no source funding transaction recorded")
	}
	tx, err := e.cc.RedeemEscrow(ctx, sourceTxs[0].TxID, *exec.Order.Secret)
	if err != nil {
		return models.ExecutedTransaction{}, fmt.Errorf("swap: E-chain redeem: %w", err)
	}
	exec.AddTransaction(tx)
	return tx, nil
}

// handleRedemptionFailure decides recovery once redeemBothSides could
// not complete both legs. If neither leg's redemption broadcast, the
// secret was never exposed and the standard dual-sided refund-after-
// timelock path recovers both sides cleanly. If one leg's redemption
// did broadcast, the secret is already public on that chain, so
// refunding the other leg would race whoever can now redeem it with
// the revealed secret instead of recovering anything, so recovery
// there retries that leg's own redemption through withRetry, up to
// cfg.MaxRetries attempts on retryable errors. If those attempts are
// exhausted the failure is only logged and the execution keeps its
// redeeming status.
func (e *Executor) handleRedemptionFailure(exec *models.SwapExecution, reservationID string, result redeemResult) {
	reason := fmt.Sprintf("redemption failed: dest=%v src=%v", result.destErr, result.srcErr)
	if result.destErr != nil && result.srcErr != nil {
		e.scheduleRefund(context.Background(), exec, reservationID, reason)
		return
	}

	exec.FailReason = reason
	log.Printf("[swap] execution %s partial redemption, retrying failed leg: %s", exec.Order.OrderID, reason)
	if result.srcErr != nil {
		go e.retryRedeemSource(exec)
		return
	}
	go e.retryRedeemDestination(exec)
}

// retryRedeemSource retries the E-chain redemption alone after the
// B-chain leg already broadcast the secret. It runs on its own
// background context since it may need to outlive the request that
// discovered the failure.
func (e *Executor) retryRedeemSource(exec *models.SwapExecution) {
	ctx := context.Background()
	tx, err := e.withRetry(ctx, "source_redeem_retry", func() (models.ExecutedTransaction, error) {
		return e.redeemSource(ctx, exec)
	})
	if err != nil {
		log.Printf("[swap] source redeem retry exhausted for %s: %v", exec.Order.OrderID, err)
		return
	}
	log.Printf("[swap] source redeem retry for %s succeeded: %s", exec.Order.OrderID, tx.TxID)
	e.completeExecution(exec)
}

// retryRedeemDestination retries the B-chain redemption alone after
// the E-chain leg already broadcast the secret.
func (e *Executor) retryRedeemDestination(exec *models.SwapExecution) {
	ctx := context.Background()
	tx, err := e.withRetry(ctx, "destination_redeem_retry", func() (models.ExecutedTransaction, error) {
		return e.redeemDestination(ctx, exec)
	})
	if err != nil {
		log.Printf("[swap] destination redeem retry exhausted for %s: %v", exec.Order.OrderID, err)
		return
	}
	log.Printf("[swap] destination redeem retry for %s succeeded: %s", exec.Order.OrderID, tx.TxID)
	e.completeExecution(exec)
}

// withRetry retries fn on TransientIO/ChainMempool errors, exponential
// back-off, up to cfg.MaxRetries.
func (e *Executor) withRetry(ctx context.Context, label string, fn func() (models.ExecutedTransaction, error)) (models.ExecutedTransaction, error) {
	var lastErr error
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		tx, err := fn()
		if err == nil {
			return tx, nil
		}
		lastErr = err
		class := errs.Classify(err)
		if !class.Retryable() {
			return models.ExecutedTransaction{}, err
		}
		if e.bus != nil {
			e.bus.Emit(events.SwapStageAdvanced, label, fmt.Sprintf("retryAttempt %d: %v", attempt, err))
		}
		delay := errs.BackoffDelaySeconds(e.cfg.RetryBaseDelay.Seconds(), e.cfg.RetryBackoffFactor, attempt)
		select {
		case <-ctx.Done():
			return models.ExecutedTransaction{}, ctx.Err()
		case <-time.After(time.Duration(delay * float64(time.Second))):
		}
	}
	return models.ExecutedTransaction{}, lastErr
}

func (e *Executor) advance(exec *models.SwapExecution, status models.SwapStatus) {
	exec.Order.Status = status
	if e.bus != nil {
		e.bus.Emit(events.SwapStageAdvanced, exec.Order.OrderID, status)
	}
}

func (e *Executor) fail(exec *models.SwapExecution, reservationID, reason string) {
	exec.FailReason = reason
	exec.Order.Status = models.StatusFailed
	if err := e.lm.Release(reservationID); err != nil {
		log.Printf("[swap] failed to release reservation %s: %v", reservationID, err)
	}
	log.Printf("[swap] execution %s failed: %s", exec.Order.OrderID, reason)
	if e.bus != nil {
		e.bus.Emit(events.SwapFailed, exec.Order.OrderID, reason)
	}
}

// scheduleRefund marks the execution failed and spawns the B-chain and
// E-chain refund waits for whichever sides were actually funded. Each
// wait runs independently of the caller's ctx, since it may need to
// sleep well past the request that discovered the failure — in the
// worst case, hours, until the corresponding timelock elapses.
func (e *Executor) scheduleRefund(ctx context.Context, exec *models.SwapExecution, reservationID, reason string) {
	exec.FailReason = reason
	exec.Order.Status = models.StatusFailed
	log.Printf("[swap] execution %s scheduled for refund: %s", exec.Order.OrderID, reason)
	if e.bus != nil {
		e.bus.Emit(events.SwapFailed, exec.Order.OrderID, reason)
	}
	// Source side was already consumed; reservation has nothing left to
	// release, so we do not call lm.Release here.
	_ = reservationID

	go e.refundAfterTimelocks(exec)
}

// refundAfterTimelocks waits for each funded side's timelock to elapse,
// then spends the refund (ELSE) branch on that side. The two waits run
// concurrently since the source and destination timelocks are
// independent deadlines on independent chains.
func (e *Executor) refundAfterTimelocks(exec *models.SwapExecution) {
	ctx := context.Background()
	var wg sync.WaitGroup

	if dstTxs := exec.TransactionsByRole(models.RoleDestinationFund); len(dstTxs) > 0 && exec.DestHTLC != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sleepUntil(exec.Order.DestinationExpiry())
			utxo := UTXO{TxID: dstTxs[0].TxID}
			txid, err := e.cb.RefundHTLC(ctx, utxo, *exec.DestHTLC, nil, exec.Order.Destination.Address, exec.Order.Timelocks.Destination, 0)
			if err != nil {
				log.Printf("[swap] B-chain refund for %s failed: %v", exec.Order.OrderID, err)
				return
			}
			exec.AddTransaction(models.ExecutedTransaction{Role: models.RoleRefund, ChainID: exec.Order.Destination.ChainID, TxID: txid, SubmittedAt: time.Now()})
			log.Printf("[swap] B-chain refund for %s broadcast: %s", exec.Order.OrderID, txid)
		}()
	}

	if srcTxs := exec.TransactionsByRole(models.RoleSourceFund); len(srcTxs) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sleepUntil(exec.Order.SourceExpiry())
			tx, err := e.cc.RefundEscrow(ctx, srcTxs[0].TxID)
			if err != nil {
				log.Printf("[swap] E-chain refund for %s failed: %v", exec.Order.OrderID, err)
				return
			}
			exec.AddTransaction(tx)
			log.Printf("[swap] E-chain refund for %s broadcast: %s", exec.Order.OrderID, tx.TxID)
		}()
	}

	wg.Wait()
}

// sleepUntil blocks until t, returning immediately if t has already passed.
func sleepUntil(t time.Time) {
	if d := time.Until(t); d > 0 {
		time.Sleep(d)
	}
}

// ActiveExecutions returns a snapshot of currently in-flight executions.
func (e *Executor) ActiveExecutions() map[string]*models.SwapExecution {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]*models.SwapExecution, len(e.activeExecutions))
	for k, v := range e.activeExecutions {
		out[k] = v
	}
	return out
}
