package market

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/rawblock/swap-resolver/pkg/chain"
	"github.com/rawblock/swap-resolver/pkg/models"
)

// Source names one configured market-data feed: a pool the Strategy
// Engine prices, and the HTTP endpoint to poll for it.
type Source struct {
	Pool chain.PoolKey
	URL  string
}

type quoteResponse struct {
	PriceUSD     float64 `json:"priceUsd"`
	LiquidityUSD float64 `json:"liquidityUsd"`
	BaseFeeRate  float64 `json:"baseFeeRate"`
}

// Poller periodically fetches every configured Source on a ticker and
// writes the result into a Cache.
type Poller struct {
	cache    *Cache
	sources  []Source
	interval time.Duration
	http     *http.Client
}

// NewPoller constructs a Poller over sources, polling every interval.
func NewPoller(cache *Cache, sources []Source, interval time.Duration) *Poller {
	return &Poller{
		cache:    cache,
		sources:  sources,
		interval: interval,
		http:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Run polls every source once per tick until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	if len(p.sources) == 0 {
		log.Println("[market] no market data sources configured; poller idle")
		return
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.pollAll(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Println("[market] stopping poller")
			return
		case <-ticker.C:
			p.pollAll(ctx)
		}
	}
}

func (p *Poller) pollAll(ctx context.Context) {
	for _, src := range p.sources {
		snap, err := p.fetchOne(ctx, src)
		if err != nil {
			log.Printf("[market] fetch %s failed: %v", src.Pool, err)
			continue
		}
		p.cache.Put(snap)
	}
}

func (p *Poller) fetchOne(ctx context.Context, src Source) (models.MarketData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return models.MarketData{}, fmt.Errorf("market: build request: %w", err)
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return models.MarketData{}, fmt.Errorf("market: request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return models.MarketData{}, fmt.Errorf("market: source returned status %d", resp.StatusCode)
	}

	start := time.Now()
	var q quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&q); err != nil {
		return models.MarketData{}, fmt.Errorf("market: decode response: %w", err)
	}

	return models.MarketData{
		Pool:          src.Pool,
		PriceUSD:      q.PriceUSD,
		LiquidityUSD:  q.LiquidityUSD,
		BaseFeeRate:   q.BaseFeeRate,
		FetchedAt:     time.Now(),
		SourceLatency: time.Since(start),
	}, nil
}
