package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rawblock/swap-resolver/internal/api"
	"github.com/rawblock/swap-resolver/internal/auction"
	"github.com/rawblock/swap-resolver/internal/bitcoin"
	"github.com/rawblock/swap-resolver/internal/config"
	"github.com/rawblock/swap-resolver/internal/ethereum"
	"github.com/rawblock/swap-resolver/internal/events"
	"github.com/rawblock/swap-resolver/internal/liquidity"
	"github.com/rawblock/swap-resolver/internal/market"
	"github.com/rawblock/swap-resolver/internal/orchestrator"
	"github.com/rawblock/swap-resolver/internal/risk"
	"github.com/rawblock/swap-resolver/internal/store"
	"github.com/rawblock/swap-resolver/internal/strategy"
	"github.com/rawblock/swap-resolver/internal/swap"
	"github.com/rawblock/swap-resolver/pkg/chain"
	"github.com/rawblock/swap-resolver/pkg/models"
)

func main() {
	log.Println("Starting cross-chain swap resolver...")

	cfgPath := getEnvOrDefault("CONFIG_PATH", "config.yaml")
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("FATAL: failed to load %s: %v", cfgPath, err)
	}

	// ─── Required Environment Variables ─────────────────────────────────
	// All credentials MUST come from environment variables. No fallback
	// defaults for security-sensitive values. Use a .env file for local
	// development: cp .env.example .env && edit .env
	// ────────────────────────────────────────────────────────────────────
	secrets := config.LoadSecrets(getEnvOrDefault("ENV_FILE", ".env"))

	// Crash-recovery persistence is optional: the resolver runs fine
	// unpersisted, it just can't reconcile in-flight swaps after a
	// restart. A nil *store.Store is safe everywhere it's used.
	var db *store.Store
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		var err error
		db, err = store.Connect(dbURL)
		if err != nil {
			log.Printf("WARNING: failed to connect to PostgreSQL, continuing without persistence: %v", err)
		} else {
			defer db.Close()
			if err := db.InitSchema(); err != nil {
				log.Printf("WARNING: schema init failed: %v", err)
			}
		}
	}

	wsHub := events.NewHub()
	go wsHub.Run()
	bus := events.NewBus(wsHub.Broadcast)
	if db != nil {
		bus.On(events.RiskAssessed, func(ev events.Event) {
			if a, ok := ev.Payload.(models.RiskAssessment); ok {
				if err := db.SaveRiskAssessment(context.Background(), a); err != nil {
					log.Printf("WARNING: failed to persist risk assessment for %s: %v", ev.OrderID, err)
				}
			}
		})
	}

	mdCache := market.NewCache()
	sources := cfg.ToMarketSources()
	if len(sources) == 0 {
		log.Println("WARNING: no market data sources configured — strategy analysis will see no quotes")
	}
	mdPoller := market.NewPoller(mdCache, sources, cfg.MarketUpdateInterval())

	// Liquidity balances are seeded from the resolver's own wallet
	// holdings, which this deployment does not discover automatically;
	// an operator tops up a pool's balance through future tooling, not
	// through config.yaml. Starting empty fails every reservation closed
	// rather than silently assuming unlimited liquidity.
	lm := liquidity.NewManager(make(map[chain.PoolKey]chain.Amount))

	riskProfile, watchlist := cfg.ToRiskProfile()
	rm := risk.NewManager(riskProfile, watchlist)
	rm.OnExposureLimitReached(func(pool chain.PoolKey, ratio float64) {
		bus.Emit(events.ExposureAlert, string(pool.Chain), ratio)
	})

	breakerRules := cfg.ToBreakerRules()
	breakerSet := risk.NewBreakerSet(rm, breakerRules, func(name string, action risk.Action) {
		kind := events.CircuitBreakerOpen
		if action == risk.ActionEmergencyStop {
			kind = events.EmergencyStop
		}
		bus.Emit(kind, name, action)
	})

	strategies, gasEstimator := cfg.ToStrategyEngine()
	se := strategy.NewEngine(strategies, gasEstimator)

	ethClient, err := ethereum.NewClient(cfg.ToEthereumConfig(secrets))
	if err != nil {
		log.Printf("WARNING: failed to connect to Ethereum RPC: %v", err)
	}

	btcClient, err := bitcoin.NewClient(cfg.ToBitcoinConfig(secrets))
	if err != nil {
		log.Printf("WARNING: failed to connect to Bitcoin RPC: %v", err)
	} else {
		defer btcClient.Shutdown()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var executor *swap.Executor
	if ethClient != nil && btcClient != nil {
		executor = swap.NewExecutor(cfg.ToExecutorConfig(), ethClient, btcClient, lm, bus)
	} else {
		log.Println("WARNING: chain clients unavailable — resolver running in auction-only mode, no swap execution")
	}

	onWin := func(order models.CrossChainSwapState, reservationID string) {
		if executor == nil {
			log.Printf("WARNING: won auction %s but no executor configured, releasing reservation", order.OrderID)
			if err := lm.Release(reservationID); err != nil {
				log.Printf("WARNING: failed to release reservation %s: %v", reservationID, err)
			}
			return
		}
		executor.Start(ctx, order, reservationID, nil)
	}

	auctionCfg, biddingStrategies := cfg.ToAuctionConfig()
	relayer := auction.NewHTTPRelayerClient(cfg.RelayerURL, time.Duration(cfg.Networking.TimeoutSeconds)*time.Second)
	participant := auction.NewParticipant(auctionCfg, relayer, lm, se, rm, bus, biddingStrategies, onWin)

	orch := orchestrator.New(orchestrator.Config{
		DiscoveryInterval:   auctionCfg.PollInterval,
		PriceUpdateInterval: auctionCfg.PriceUpdateInterval,
		BreakerEvalInterval: auctionCfg.PollInterval,
	}, mdCache, se, rm, breakerSet, participant, relayer, bus)

	if len(sources) > 0 {
		go mdPoller.Run(ctx)
	}
	go orch.Run(ctx)

	if db != nil {
		if ids, err := db.OpenOrderIDs(ctx); err != nil {
			log.Printf("WARNING: failed to load open executions from a prior run: %v", err)
		} else if len(ids) > 0 {
			log.Printf("found %d open execution(s) from a prior run; the relayer's own reconciliation will resolve their final state", len(ids))
		}
		go persistLoop(ctx, db, executor, participant)
	}

	r := api.SetupRouter(cfg.ToAPIConfig(secrets), executor, participant, rm, wsHub)

	port := getEnvOrDefault("PORT", "8080")
	srv := &http.Server{Addr: ":" + port, Handler: r}
	go func() {
		log.Printf("Resolver running on :%s (resolver=%s)\n", port, cfg.ResolverAddress)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	waitForShutdown(ctx, cancel, srv, participant, executor)
}

// waitForShutdown blocks until SIGINT/SIGTERM, then drains cleanly: stop
// accepting new discovery ticks, cancel every scheduled bid and release its
// reservation, drop pending participations, and give in-flight
// executions a bounded grace period to finish before abandoning them. A
// swap mid-funding must not be dropped the instant the process gets a
// SIGTERM, or a reservation silently leaks.
func waitForShutdown(ctx context.Context, cancel context.CancelFunc, srv *http.Server, participant *auction.Participant, executor *swap.Executor) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("shutdown signal received, draining...")
	cancel() // stops the orchestrator's ticker loop and the market poller

	participant.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("WARNING: HTTP server shutdown error: %v", err)
	}

	const executionGracePeriod = 30 * time.Second
	deadline := time.Now().Add(executionGracePeriod)
	for executor != nil && len(executor.ActiveExecutions()) > 0 && time.Now().Before(deadline) {
		time.Sleep(500 * time.Millisecond)
	}
	if executor != nil {
		if remaining := len(executor.ActiveExecutions()); remaining > 0 {
			log.Printf("shutting down with %d execution(s) still in flight after grace period", remaining)
		}
	}
	log.Println("resolver stopped")
}

// getEnvOrDefault returns the env var value or a safe default for non-secret settings.
func getEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// persistLoop periodically snapshots in-flight executions and
// participations to db, so a crash loses at most one tick's worth of
// state rather than everything since the resolver started.
func persistLoop(ctx context.Context, db *store.Store, executor *swap.Executor, participant *auction.Participant) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if executor != nil {
				for _, exec := range executor.ActiveExecutions() {
					if err := db.SaveExecution(ctx, exec); err != nil {
						log.Printf("WARNING: failed to persist execution %s: %v", exec.Order.OrderID, err)
					}
				}
			}
			for _, p := range participant.Participations() {
				if err := db.SaveParticipation(ctx, p); err != nil {
					log.Printf("WARNING: failed to persist participation %s: %v", p.OrderID, err)
				}
			}
		}
	}
}
