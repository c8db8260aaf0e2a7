package auction

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/rawblock/swap-resolver/internal/events"
	"github.com/rawblock/swap-resolver/internal/liquidity"
	"github.com/rawblock/swap-resolver/internal/strategy"
	"github.com/rawblock/swap-resolver/pkg/chain"
	"github.com/rawblock/swap-resolver/pkg/models"
)

// LiquidityChecker is the subset of liquidity.Manager the Auction
// Participant needs.
type LiquidityChecker interface {
	CheckAvailability(pool chain.PoolKey, amount chain.Amount) bool
	ReserveLiquidity(orderID string, pool chain.PoolKey, amount chain.Amount, expiresAt time.Time) (string, error)
	Release(reservationID string) error
}

// StrategyAnalyzer is the subset of strategy.Engine the Auction
// Participant needs.
type StrategyAnalyzer interface {
	Analyze(order models.CrossChainSwapState, srcMD, dstMD models.MarketData, now time.Time) (strategy.Result, error)
}

// EmergencyChecker reports whether new participations must be blocked.
type EmergencyChecker interface {
	IsEmergencyStopped() bool
}

var _ LiquidityChecker = (*liquidity.Manager)(nil)

// Config bounds the Participant's concurrency and identifies the
// resolver to the relayer.
type Config struct {
	ResolverAddress       string
	MaxConcurrentAuctions int
	BidExpirySeconds      int
	PollInterval          time.Duration
	PriceUpdateInterval   time.Duration
}

// Participant is the Auction Participant (AP): it discovers auctions,
// gates participation through LM/SE/RM, computes and submits bids, and
// reconciles outcomes. Its activeAuctions/participations maps are
// owned exclusively by Participant and guarded by mu — no other type
// reaches into them, so a single mutex is sufficient.
type Participant struct {
	mu sync.Mutex

	cfg        Config
	relayer    RelayerClient
	lm         LiquidityChecker
	se         StrategyAnalyzer
	rm         EmergencyChecker
	scheduler  *Scheduler
	bus        *events.Bus
	strategies []BiddingStrategy

	activeAuctions map[string]models.AuctionInfo
	participations map[string]*models.AuctionParticipation
	reservations   map[string]string // orderID -> reservationID
	lastPrices     map[string]float64

	// onWin hands a won auction off to the Swap Executor.
	onWin func(order models.CrossChainSwapState, reservationID string)
}

// NewParticipant constructs a Participant.
func NewParticipant(cfg Config, relayer RelayerClient, lm LiquidityChecker, se StrategyAnalyzer, rm EmergencyChecker, bus *events.Bus, strategies []BiddingStrategy, onWin func(models.CrossChainSwapState, string)) *Participant {
	return &Participant{
		cfg:            cfg,
		relayer:        relayer,
		lm:             lm,
		se:             se,
		rm:             rm,
		scheduler:      NewScheduler(),
		bus:            bus,
		strategies:     strategies,
		activeAuctions: make(map[string]models.AuctionInfo),
		participations: make(map[string]*models.AuctionParticipation),
		reservations:   make(map[string]string),
		lastPrices:     make(map[string]float64),
		onWin:          onWin,
	}
}

// PollDiscovery lists active auctions from the relayer and registers
// any not already tracked.
func (p *Participant) PollDiscovery(ctx context.Context) error {
	dtos, err := p.relayer.ListActiveAuctions(ctx)
	if err != nil {
		return fmt.Errorf("auction: list active auctions: %w", err)
	}

	p.mu.Lock()
	for _, d := range dtos {
		if _, known := p.activeAuctions[d.OrderID]; known {
			continue
		}
		info := models.AuctionInfo{OrderID: d.OrderID, StartRate: d.StartRate, EndRate: d.EndRate, StartTime: d.StartTime, EndTime: d.EndTime}
		p.activeAuctions[d.OrderID] = info
		if p.bus != nil {
			p.bus.Emit(events.OrderDiscovered, d.OrderID, info)
		}
	}
	p.mu.Unlock()
	return nil
}

// TryParticipate runs the participation-gating sequence for one
// freshly discovered order — emergency stop, concurrency cap,
// liquidity, strategy analysis, then bidding-strategy selection —
// reserving liquidity and recording a participation on success.
func (p *Participant) TryParticipate(ctx context.Context, order models.CrossChainSwapState, srcMD, dstMD models.MarketData, now time.Time) error {
	p.mu.Lock()
	activeCount := len(p.participations)
	p.mu.Unlock()

	if p.rm != nil && p.rm.IsEmergencyStopped() {
		return fmt.Errorf("auction: emergency stop active, rejecting order %s", order.OrderID)
	}
	if activeCount >= p.cfg.MaxConcurrentAuctions {
		return fmt.Errorf("auction: max concurrent auctions reached")
	}

	srcPool := chain.PoolKey{Chain: order.Source.ChainID, Token: order.Source.Token}
	if !p.lm.CheckAvailability(srcPool, order.Amounts.Source) {
		return fmt.Errorf("auction: insufficient liquidity for order %s", order.OrderID)
	}

	result, err := p.se.Analyze(order, srcMD, dstMD, now)
	if err != nil {
		return fmt.Errorf("auction: strategy analysis failed: %w", err)
	}
	if result.Recommendation != strategy.RecommendAccept {
		return fmt.Errorf("auction: strategy engine did not accept order %s (%s)", order.OrderID, result.Recommendation)
	}

	selected, ok := SelectStrategy(p.strategies, result.WeightedMargin, result.WeightedRisk, result.NetProfitUSD)
	if !ok {
		return fmt.Errorf("auction: no bidding strategy satisfied for order %s", order.OrderID)
	}

	p.mu.Lock()
	auctionInfo, known := p.activeAuctions[order.OrderID]
	p.mu.Unlock()
	if !known {
		return fmt.Errorf("auction: no active auction for order %s", order.OrderID)
	}

	expiresAt := auctionInfo.EndTime.Add(time.Hour)
	reservationID, err := p.lm.ReserveLiquidity(order.OrderID, srcPool, order.Amounts.Source, expiresAt)
	if err != nil {
		return fmt.Errorf("auction: reserve liquidity: %w", err)
	}

	p.mu.Lock()
	p.reservations[order.OrderID] = reservationID
	p.participations[order.OrderID] = &models.AuctionParticipation{
		OrderID: order.OrderID,
		Auction: auctionInfo,
		Outcome: models.OutcomePending,
	}
	p.mu.Unlock()

	if p.bus != nil {
		p.bus.Emit(events.ReservationGranted, order.OrderID, reservationID)
	}

	log.Printf("[auction] participating in order %s via strategy %s", order.OrderID, selected.Name)
	return nil
}

// Participate runs the full discovery-to-bid pipeline for one
// candidate order: gate participation (TryParticipate), then, on
// success, immediately compute and act on a bid decision
// (EvaluateBid) using the strategy analysis's own profitability
// numbers. Callers drive this once per freshly-discovered order per
// poll tick; EvaluateBid alone is for re-evaluating an existing
// participation on a later tick.
func (p *Participant) Participate(ctx context.Context, order models.CrossChainSwapState, srcMD, dstMD models.MarketData, now time.Time) error {
	result, err := p.se.Analyze(order, srcMD, dstMD, now)
	if err != nil {
		return fmt.Errorf("auction: strategy analysis failed: %w", err)
	}

	if err := p.TryParticipate(ctx, order, srcMD, dstMD, now); err != nil {
		return err
	}

	selected, ok := SelectStrategy(p.strategies, result.WeightedMargin, result.WeightedRisk, result.NetProfitUSD)
	if !ok {
		return fmt.Errorf("auction: no bidding strategy satisfied for order %s", order.OrderID)
	}

	if dstMD.PriceUSD <= 0 {
		return fmt.Errorf("auction: no destination price to convert expected profit for order %s", order.OrderID)
	}
	destAmount := chain.DisplayUnits(order.Amounts.Destination, order.Destination.ChainID)
	expectedProfit := result.NetProfitUSD / dstMD.PriceUSD
	return p.EvaluateBid(ctx, order.OrderID, selected, destAmount, expectedProfit, result.Confidence, now)
}

// EvaluateBid computes and, if called for, submits a bid for an
// in-flight participation.
func (p *Participant) EvaluateBid(ctx context.Context, orderID string, selected BiddingStrategy, destAmount, expectedProfit, analysisConfidence float64, now time.Time) error {
	p.mu.Lock()
	auctionInfo, known := p.activeAuctions[orderID]
	p.mu.Unlock()
	if !known {
		return fmt.Errorf("auction: unknown auction %s", orderID)
	}

	currentPrice, err := p.relayer.CurrentPrice(ctx, orderID)
	if err != nil {
		return fmt.Errorf("auction: fetch current price: %w", err)
	}

	decision := ComputeBidDecision(selected, auctionInfo, currentPrice, destAmount, expectedProfit, analysisConfidence, now)

	switch decision.Timing {
	case TimingImmediate:
		if !decision.ShouldBid {
			return nil
		}
		return p.submitBid(ctx, orderID, decision, now)
	case TimingScheduled:
		p.scheduler.Schedule(orderID, decision.ScheduledAt, func() {
			if err := p.submitBid(context.Background(), orderID, decision, time.Now()); err != nil {
				log.Printf("[auction] scheduled bid for %s failed: %v", orderID, err)
			}
		})
		return nil
	default: // wait
		return nil
	}
}

func (p *Participant) submitBid(ctx context.Context, orderID string, decision BidDecision, now time.Time) error {
	status, err := p.relayer.Status(ctx, orderID)
	if err == nil && status != "active" {
		p.cancelParticipation(orderID, "auction no longer active")
		return fmt.Errorf("auction: auction %s is no longer active (%s)", orderID, status)
	}

	req := BidRequest{
		Resolver:  p.cfg.ResolverAddress,
		Price:     decision.BidPrice,
		ExpiresAt: now.Add(time.Duration(p.cfg.BidExpirySeconds) * time.Second),
	}
	resp, err := p.relayer.SubmitBid(ctx, orderID, req)
	if err != nil {
		p.cancelParticipation(orderID, "bid submission failed: "+err.Error())
		return fmt.Errorf("auction: submit bid for %s: %w", orderID, err)
	}

	p.mu.Lock()
	if part, ok := p.participations[orderID]; ok {
		part.Bid = &models.AuctionBid{OrderID: orderID, SubmittedAt: now, Rate: decision.BidPrice, Timing: models.BidTiming(decision.Timing)}
	}
	p.mu.Unlock()

	if p.bus != nil {
		p.bus.Emit(events.BidSubmitted, orderID, resp)
	}
	return nil
}

func (p *Participant) cancelParticipation(orderID, reason string) {
	p.mu.Lock()
	reservationID, hasReservation := p.reservations[orderID]
	delete(p.reservations, orderID)
	delete(p.participations, orderID)
	delete(p.activeAuctions, orderID)
	delete(p.lastPrices, orderID)
	p.mu.Unlock()

	p.scheduler.Cancel(orderID)
	if hasReservation {
		if err := p.lm.Release(reservationID); err != nil {
			log.Printf("[auction] failed to release reservation %s for %s: %v", reservationID, orderID, err)
		}
	}
	log.Printf("[auction] cancelled participation in %s: %s", orderID, reason)
}

// ReconcileOutcomes polls the relayer for every in-flight
// participation's result, updating the stored outcome and releasing
// or handing off liquidity accordingly.
func (p *Participant) ReconcileOutcomes(ctx context.Context, orders map[string]models.CrossChainSwapState) {
	p.mu.Lock()
	pending := make([]string, 0, len(p.participations))
	for id, part := range p.participations {
		if part.Outcome == models.OutcomePending {
			pending = append(pending, id)
		}
	}
	p.mu.Unlock()

	for _, orderID := range pending {
		result, err := p.relayer.GetResult(ctx, orderID)
		if err != nil {
			if err != ErrNotSettled {
				log.Printf("[auction] result check for %s failed: %v", orderID, err)
			}
			continue
		}
		if result.Status != "settled" {
			continue
		}

		p.mu.Lock()
		part := p.participations[orderID]
		reservationID := p.reservations[orderID]
		won := result.WinnerResolver == p.cfg.ResolverAddress
		if won {
			part.Outcome = models.OutcomeWon
		} else {
			part.Outcome = models.OutcomeLost
		}
		p.mu.Unlock()

		if won {
			if p.bus != nil {
				p.bus.Emit(events.AuctionWon, orderID, result)
			}
			if order, ok := orders[orderID]; ok && p.onWin != nil {
				p.onWin(order, reservationID)
			}
		} else {
			if p.bus != nil {
				p.bus.Emit(events.AuctionLost, orderID, result)
			}
			p.cancelParticipation(orderID, "lost auction")
		}
	}
}

// RunSchedulerTick drains any due scheduled bids; callers invoke this
// from their own ticker loop alongside PollDiscovery/ReconcileOutcomes.
func (p *Participant) RunSchedulerTick(now time.Time) {
	p.scheduler.Due(now)
}

// RefreshPrices recomputes each tracked auction's current Dutch-decay
// price and emits priceUpdated for any that moved. It is read-only
// over the relayer: the resolver already knows the auction's linear
// decay curve (AuctionInfo.RateAt), so no extra round-trip is needed
// to detect a price change.
func (p *Participant) RefreshPrices(now time.Time) {
	p.mu.Lock()
	type update struct {
		orderID string
		price   float64
	}
	var changed []update
	for orderID, info := range p.activeAuctions {
		price := info.RateAt(now)
		if prior, ok := p.lastPrices[orderID]; !ok || prior != price {
			p.lastPrices[orderID] = price
			changed = append(changed, update{orderID, price})
		}
	}
	p.mu.Unlock()

	if p.bus == nil {
		return
	}
	for _, u := range changed {
		p.bus.Emit(events.PriceUpdated, u.orderID, u.price)
	}
}

// Shutdown cancels the scheduled bid timer of every participation
// still pending (i.e. not yet won/lost), releases its reservation and
// removes it from the participation table; no "cancelled" outcome is
// recorded, the entry is simply dropped. A cancelled scheduled
// bid cannot submit because Cancel removes it from the heap before Due
// can ever pop it.
func (p *Participant) Shutdown() {
	p.mu.Lock()
	pending := make([]string, 0, len(p.participations))
	for id, part := range p.participations {
		if part.Outcome == models.OutcomePending {
			pending = append(pending, id)
		}
	}
	p.mu.Unlock()

	for _, orderID := range pending {
		p.cancelParticipation(orderID, "resolver shutting down")
	}
}

// ActiveParticipationCount reports the number of in-flight participations.
func (p *Participant) ActiveParticipationCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.participations)
}

// Participations returns a snapshot of all tracked participations,
// keyed by order ID, for status reporting.
func (p *Participant) Participations() map[string]models.AuctionParticipation {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]models.AuctionParticipation, len(p.participations))
	for k, v := range p.participations {
		out[k] = *v
	}
	return out
}

// MaxAcceptableBid converts a USD expected profit into the destination
// chain's smallest unit using its known decimal count, never a
// hardcoded 1e18 — a chain with 6 decimals scaled by 1e18 would be off
// by 12 orders of magnitude. The bid path does not call it: Participate
// converts the expected profit into destination display units itself,
// and EvaluateBid derives its own cap from those values.
func MaxAcceptableBid(destAmount chain.Amount, expectedProfitUSD, destPriceUSD float64, destChain chain.ID) chain.Amount {
	if destPriceUSD <= 0 {
		return destAmount
	}
	expectedProfitInDestUnits := expectedProfitUSD / destPriceUSD
	scaled := expectedProfitInDestUnits * math.Pow10(destChain.Decimals())
	profitAmount := chain.NewAmount(int64(math.Max(0, scaled)))
	return destAmount.Sub(profitAmount)
}
