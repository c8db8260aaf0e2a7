// Package orchestrator drives the resolver's single discovery-to-bid
// loop: it polls the relayer and the Market Data cache, gates each
// freshly discovered order through the Strategy Engine and Risk
// Manager, hands accepted orders to the Auction Participant, and keeps
// the Risk Manager's exposure accounting in step with each order's
// lifecycle via the event bus. It is not itself one of the spec's named
// modules — it is the glue a short main.go would otherwise inline, kept
// separate because that loop has grown a few ticks worth of state.
package orchestrator

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/rawblock/swap-resolver/internal/auction"
	"github.com/rawblock/swap-resolver/internal/events"
	"github.com/rawblock/swap-resolver/internal/market"
	"github.com/rawblock/swap-resolver/internal/risk"
	"github.com/rawblock/swap-resolver/internal/strategy"
	"github.com/rawblock/swap-resolver/pkg/chain"
	"github.com/rawblock/swap-resolver/pkg/models"
)

// StrategyAnalyzer is the subset of strategy.Engine the orchestrator
// needs to gate a freshly discovered order through the Risk Manager
// before handing it to the Auction Participant.
type StrategyAnalyzer interface {
	Analyze(order models.CrossChainSwapState, srcMD, dstMD models.MarketData, now time.Time) (strategy.Result, error)
}

// Config bounds the orchestrator's own ticker intervals. These are
// distinct from any one component's internal polling (e.g. the Market
// Data Poller's own update interval).
type Config struct {
	DiscoveryInterval   time.Duration
	PriceUpdateInterval time.Duration
	BreakerEvalInterval time.Duration
}

// Orchestrator ties the Market Data cache, Strategy Engine, Risk
// Manager, and Auction Participant into one loop. The Swap Executor
// is not referenced here: the
// caller wires it directly into the Participant's onWin callback, so a
// won auction hands off to execution without passing back through the
// orchestrator.
type Orchestrator struct {
	cfg Config

	md       *market.Cache
	se       StrategyAnalyzer
	rm       *risk.Manager
	breakers *risk.BreakerSet
	ap       *auction.Participant
	relayer  auction.RelayerClient
	bus      *events.Bus

	mu               sync.Mutex
	orders           map[string]models.CrossChainSwapState
	lastVolatility   float64
	lastConfidence   float64
}

// New constructs an Orchestrator and subscribes it to the swap
// lifecycle's terminal events, so Risk Manager exposure is released
// the moment an execution completes or fails without the caller having
// to remember to do so.
func New(cfg Config, md *market.Cache, se StrategyAnalyzer, rm *risk.Manager, breakers *risk.BreakerSet, ap *auction.Participant, relayer auction.RelayerClient, bus *events.Bus) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg,
		md:       md,
		se:       se,
		rm:       rm,
		breakers: breakers,
		ap:       ap,
		relayer:  relayer,
		bus:      bus,
		orders:   make(map[string]models.CrossChainSwapState),
	}

	if bus != nil {
		bus.On(events.SwapCompleted, o.onTerminal(models.StatusCompleted))
		bus.On(events.SwapFailed, o.onTerminal(models.StatusFailed))
	}

	return o
}

// Run drives the discovery, price-refresh, and breaker-evaluation
// ticks until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) {
	discovery := time.NewTicker(o.cfg.DiscoveryInterval)
	price := time.NewTicker(o.cfg.PriceUpdateInterval)
	breakerTick := time.NewTicker(o.cfg.BreakerEvalInterval)
	defer discovery.Stop()
	defer price.Stop()
	defer breakerTick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-discovery.C:
			o.tick(ctx)
		case <-price.C:
			o.ap.RefreshPrices(time.Now())
		case <-breakerTick.C:
			o.evaluateBreakers(time.Now())
		}
	}
}

// tick runs one discovery pass: poll the relayer and the Participant's
// own auction registry, gate every newly seen order through SE and RM,
// and hand accepted orders to the Participant. It also drains the
// Participant's outcome reconciliation and scheduled-bid queue, since
// both need to run on every pass regardless of whether new orders
// showed up.
func (o *Orchestrator) tick(ctx context.Context) {
	now := time.Now()

	if err := o.ap.PollDiscovery(ctx); err != nil {
		log.Printf("[orchestrator] discovery poll failed: %v", err)
	}

	dtos, err := o.relayer.ListActiveAuctions(ctx)
	if err != nil {
		log.Printf("[orchestrator] list active auctions failed: %v", err)
	} else {
		for _, d := range dtos {
			o.mu.Lock()
			_, known := o.orders[d.OrderID]
			o.mu.Unlock()
			if known {
				continue
			}
			o.admit(ctx, d, now)
		}
	}

	o.ap.ReconcileOutcomes(ctx, o.snapshotOrders())
	o.ap.RunSchedulerTick(now)
}

// admit converts one newly discovered auction into an order, gates it
// through the Strategy Engine and Risk Manager, and — if accepted —
// hands it to the Auction Participant and begins tracking its exposure.
func (o *Orchestrator) admit(ctx context.Context, d auction.AuctionDTO, now time.Time) {
	order, err := d.ToOrder()
	if err != nil {
		log.Printf("[orchestrator] skipping order %s: %v", d.OrderID, err)
		return
	}
	if err := order.ValidateInvariants(); err != nil {
		log.Printf("[orchestrator] order %s fails invariants, skipping: %v", d.OrderID, err)
		return
	}

	srcPool := chain.PoolKey{Chain: order.Source.ChainID, Token: order.Source.Token}
	dstPool := chain.PoolKey{Chain: order.Destination.ChainID, Token: order.Destination.Token}
	srcMD, srcOK := o.md.Get(srcPool)
	dstMD, dstOK := o.md.Get(dstPool)
	if !srcOK || !dstOK {
		log.Printf("[orchestrator] no market data for order %s yet, deferring to next tick", d.OrderID)
		return
	}

	result, err := o.se.Analyze(order, srcMD, dstMD, now)
	if err != nil {
		log.Printf("[orchestrator] strategy analysis failed for %s: %v", d.OrderID, err)
		return
	}

	volatility := marketVolatility(srcMD, dstMD)
	o.mu.Lock()
	o.lastVolatility = volatility
	o.lastConfidence = result.Confidence
	o.mu.Unlock()

	assessment := o.rm.AssessOrderRisk(order, result.Confidence, volatility, now)
	if o.bus != nil {
		o.bus.Emit(events.RiskAssessed, d.OrderID, assessment)
	}
	if assessment.Recommend == models.RecommendReject {
		if o.bus != nil {
			o.bus.Emit(events.ReservationDenied, d.OrderID, assessment)
		}
		log.Printf("[orchestrator] risk manager rejected order %s (score=%.1f)", d.OrderID, assessment.Score)
		return
	}

	if err := o.ap.Participate(ctx, order, srcMD, dstMD, now); err != nil {
		if o.bus != nil {
			o.bus.Emit(events.ReservationDenied, d.OrderID, err.Error())
		}
		log.Printf("[orchestrator] declined order %s: %v", d.OrderID, err)
		return
	}

	order.Status = models.StatusAuctionStarted
	o.mu.Lock()
	o.orders[d.OrderID] = order
	o.mu.Unlock()
	o.rm.UpdateOrderStatus(d.OrderID, order, now)
}

// onTerminal returns a bus handler that advances the tracked order to
// status, deactivates its Risk Manager exposure, and stops tracking it.
func (o *Orchestrator) onTerminal(status models.SwapStatus) events.Handler {
	return func(ev events.Event) {
		o.mu.Lock()
		order, ok := o.orders[ev.OrderID]
		if ok {
			delete(o.orders, ev.OrderID)
		}
		o.mu.Unlock()
		if !ok {
			return
		}
		order.Status = status
		o.rm.UpdateOrderStatus(ev.OrderID, order, ev.At)
	}
}

func (o *Orchestrator) snapshotOrders() map[string]models.CrossChainSwapState {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]models.CrossChainSwapState, len(o.orders))
	for k, v := range o.orders {
		out[k] = v
	}
	return out
}

// evaluateBreakers feeds the Risk Manager's live exposure/error-rate
// state, plus the most recently observed market volatility and
// strategy confidence, into the configured circuit breaker rules.
func (o *Orchestrator) evaluateBreakers(now time.Time) {
	if o.breakers == nil {
		return
	}
	o.mu.Lock()
	volatility, confidence := o.lastVolatility, o.lastConfidence
	o.mu.Unlock()

	var maxUtil float64
	for c := range map[chain.ID]struct{}{chain.EMainnet: {}, chain.ETestnet: {}, chain.BMainnet: {}, chain.BTestnet: {}, chain.BRegtest: {}} {
		if u := o.rm.ChainUtilisation(c); u > maxUtil {
			maxUtil = u
		}
	}

	o.breakers.EvaluateAll(now, maxUtil, o.rm.DailyVolumeRatio(now), volatility, confidence)
}

// marketVolatility proxies a 0..1 volatility estimate from the two
// legs' base fee rates, the same proxy internal/strategy/market_making.go
// uses internally for its own confidence decay — duplicated here rather
// than exported, since Risk Manager gating and Strategy Engine scoring
// are independent consumers of the same Market Data shape.
func marketVolatility(srcMD, dstMD models.MarketData) float64 {
	v := (srcMD.BaseFeeRate + dstMD.BaseFeeRate) / 2
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
