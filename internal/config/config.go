// Package config loads the resolver's operating parameters from a YAML
// file plus environment-variable secrets: structured tunables in YAML
// (gopkg.in/yaml.v3), credentials and connection strings from the
// environment (github.com/joho/godotenv for local .env loading,
// requireEnv/getEnvOrDefault at the call site).
package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rawblock/swap-resolver/internal/api"
	"github.com/rawblock/swap-resolver/internal/auction"
	"github.com/rawblock/swap-resolver/internal/bitcoin"
	"github.com/rawblock/swap-resolver/internal/ethereum"
	"github.com/rawblock/swap-resolver/internal/market"
	"github.com/rawblock/swap-resolver/internal/risk"
	"github.com/rawblock/swap-resolver/internal/strategy"
	"github.com/rawblock/swap-resolver/internal/swap"
	"github.com/rawblock/swap-resolver/pkg/chain"
	"github.com/rawblock/swap-resolver/pkg/models"
)

// Config is the top-level YAML document of recognised configuration
// keys.
type Config struct {
	RelayerURL            string                  `yaml:"relayerUrl"`
	ResolverAddress       string                  `yaml:"resolverAddress"`
	BidTimeoutSeconds     int                     `yaml:"bidTimeout"`
	MaxConcurrentAuctions int                     `yaml:"maxConcurrentAuctions"`
	BiddingStrategies     []biddingStrategyYAML   `yaml:"biddingStrategies"`
	Monitoring            monitoringYAML          `yaml:"monitoring"`
	Networking            networkingYAML          `yaml:"networking"`
	StrategyEngine        strategyEngineYAML      `yaml:"strategyEngine"`
	Risk                  riskYAML                `yaml:"risk"`
	SX                    swapExecutionYAML       `yaml:"sx"`
	API                   apiYAML                 `yaml:"api"`
}

type apiYAML struct {
	RateLimitPerMinute int `yaml:"rateLimitPerMinute"`
	RateLimitBurst     int `yaml:"rateLimitBurst"`
}

type biddingStrategyYAML struct {
	Name     string  `yaml:"name"`
	Enabled  bool    `yaml:"enabled"`
	Priority int     `yaml:"priority"`
	Params   struct {
		MaxBidPrice     float64 `yaml:"maxBidPrice"`
		MinProfitMargin float64 `yaml:"minProfitMargin"`
		Aggressiveness  float64 `yaml:"aggressiveness"`
		ReserveRatio    float64 `yaml:"reserveRatio"`
		TimeStrategy    string  `yaml:"timeStrategy"`
		RiskTolerance   float64 `yaml:"riskTolerance"`
	} `yaml:"params"`
}

type monitoringYAML struct {
	PollIntervalSeconds        int `yaml:"pollInterval"`
	PriceUpdateIntervalSeconds int `yaml:"priceUpdateInterval"`
	ReconnectDelaySeconds      int `yaml:"reconnectDelay"`
}

type networkingYAML struct {
	MaxRetries       int `yaml:"maxRetries"`
	RetryDelaySeconds int `yaml:"retryDelay"`
	TimeoutSeconds   int `yaml:"timeout"`
}

type strategyEngineYAML struct {
	Strategies             []strategyYAML      `yaml:"strategies"`
	MarketDataSources      []marketSourceYAML  `yaml:"marketDataSources"`
	DefaultGasEstimates    map[string]float64  `yaml:"defaultGasEstimates"`
	UpdateIntervalSeconds  int                 `yaml:"updateInterval"`
	MaxAnalysisTimeSeconds int                 `yaml:"maxAnalysisTime"`
}

type marketSourceYAML struct {
	Chain string `yaml:"chain"`
	Token string `yaml:"token"`
	URL   string `yaml:"url"`
}

type strategyYAML struct {
	Name                string  `yaml:"name"`
	Weight              float64 `yaml:"weight"`
	MinProfitMargin     float64 `yaml:"minProfitMargin"`
	MaxRiskScore        float64 `yaml:"maxRiskScore"`
	ConfidenceThreshold float64 `yaml:"confidenceThreshold"`
	GasBuffer           float64 `yaml:"gasBuffer"`
	AvgSpread           float64 `yaml:"avgSpread"`
}

type riskYAML struct {
	RiskProfile struct {
		MaxExposurePerChain   map[string]string `yaml:"maxExposurePerChain"`
		MaxExposurePerToken   map[string]string `yaml:"maxExposurePerToken"`
		MaxSingleOrderSize    string            `yaml:"maxSingleOrderSize"`
		MaxDailyVolume        string            `yaml:"maxDailyVolume"`
		MaxConcurrentOrders   int               `yaml:"maxConcurrentOrders"`
		AllowedCounterparties []string          `yaml:"allowedCounterparties"`
		BlockedCounterparties []string          `yaml:"blockedCounterparties"`
		MinConfidenceScore    float64           `yaml:"minConfidenceScore"`
		MaxRiskScore          float64           `yaml:"maxRiskScore"`
	} `yaml:"riskProfile"`
	CircuitBreakers []breakerYAML `yaml:"circuitBreakers"`
	Monitoring      struct {
		ExposureAlertThreshold float64 `yaml:"exposureAlertThreshold"`
	} `yaml:"monitoring"`
	VolatilityThresholds struct {
		Low    float64 `yaml:"low"`
		Medium float64 `yaml:"medium"`
		High   float64 `yaml:"high"`
	} `yaml:"volatilityThresholds"`
	PositionSizing struct {
		BaseSize             string  `yaml:"baseSize"`
		MaxSize              string  `yaml:"maxSize"`
		ConfidenceMultiplier float64 `yaml:"confidenceMultiplier"`
		RiskDivisor          float64 `yaml:"riskDivisor"`
	} `yaml:"positionSizing"`
}

type breakerYAML struct {
	Name            string  `yaml:"name"`
	Condition       string  `yaml:"condition"`
	Threshold       float64 `yaml:"threshold"`
	Action          string  `yaml:"action"`
	DurationSec     int     `yaml:"durationSec"`
	ReductionFactor float64 `yaml:"reductionFactor"`
}

type swapExecutionYAML struct {
	Ethereum struct {
		ChainID        int64 `yaml:"chainId"`
		GasLimit       uint64 `yaml:"gasLimit"`
		GasPriceGwei   int64 `yaml:"gasPrice"`
		Confirmations  int   `yaml:"confirmations"`
	} `yaml:"ethereum"`
	Bitcoin struct {
		Network       string `yaml:"network"`
		FeeRateSatVB  int64  `yaml:"feeRate"`
		Confirmations int    `yaml:"confirmations"`
	} `yaml:"bitcoin"`
	Execution struct {
		MaxRetries                 int     `yaml:"maxRetries"`
		RetryDelaySeconds          float64 `yaml:"retryDelay"`
		RetryBackoff               float64 `yaml:"retryBackoff"`
		TransactionTimeoutSeconds  int     `yaml:"transactionTimeout"`
		SecretRevealDelaySeconds   int     `yaml:"secretRevealDelay"`
		MaxConcurrentExecutions    int     `yaml:"maxConcurrentExecutions"`
	} `yaml:"execution"`
	Monitoring struct {
		PollIntervalSeconds         int `yaml:"pollInterval"`
		ConfirmationThreshold       int `yaml:"confirmationThreshold"`
		StaleTransactionTimeoutSeconds int `yaml:"staleTransactionTimeout"`
	} `yaml:"monitoring"`
}

// Secrets holds the credentials that never belong in a committed YAML
// file. LoadSecrets reads them from the environment, having first
// loaded a local .env file if one is present.
type Secrets struct {
	EthereumRPCURL    string
	EthereumPrivateKey string
	BitcoinRPCHost    string
	BitcoinRPCUser    string
	BitcoinRPCPass    string
	BitcoinPrivateKey string
	EscrowContractAddress string
	APIAuthToken      string
}

// LoadConfig reads and parses path into a Config.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &cfg, nil
}

// LoadSecrets loads envFile (if present) via godotenv, then reads the
// resolver's required and optional environment variables. Missing
// required variables are fatal: a resolver that silently runs with an
// empty RPC URL fails confusingly later instead of at startup.
func LoadSecrets(envFile string) Secrets {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			log.Printf("config: no %s found, reading environment directly", envFile)
		}
	}
	return Secrets{
		EthereumRPCURL:        requireEnv("ETH_RPC_URL"),
		EthereumPrivateKey:    requireEnv("ETH_PRIVATE_KEY"),
		BitcoinRPCHost:        getEnvOrDefault("BTC_RPC_HOST", "localhost:8332"),
		BitcoinRPCUser:        requireEnv("BTC_RPC_USER"),
		BitcoinRPCPass:        requireEnv("BTC_RPC_PASS"),
		BitcoinPrivateKey:     os.Getenv("BTC_PRIVATE_KEY"),
		EscrowContractAddress: requireEnv("ESCROW_CONTRACT_ADDRESS"),
		APIAuthToken:          os.Getenv("API_AUTH_TOKEN"),
	}
}

func requireEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		log.Fatalf("FATAL: required environment variable %s is not set. "+
			"Copy .env.example to .env and fill in your values: cp .env.example .env", key)
	}
	return val
}

func getEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func mustAmount(s string) chain.Amount {
	if s == "" {
		return chain.ZeroAmount()
	}
	a, err := chain.NewAmountFromString(s)
	if err != nil {
		log.Fatalf("config: invalid amount %q: %v", s, err)
	}
	return a
}

// ToAuctionConfig builds the Auction Participant's configuration and
// its ordered bidding strategies.
func (c *Config) ToAuctionConfig() (auction.Config, []auction.BiddingStrategy) {
	cfg := auction.Config{
		ResolverAddress:       c.ResolverAddress,
		MaxConcurrentAuctions: c.MaxConcurrentAuctions,
		BidExpirySeconds:      c.BidTimeoutSeconds,
		PollInterval:          time.Duration(c.Monitoring.PollIntervalSeconds) * time.Second,
		PriceUpdateInterval:   time.Duration(c.Monitoring.PriceUpdateIntervalSeconds) * time.Second,
	}

	strategies := make([]auction.BiddingStrategy, 0, len(c.BiddingStrategies))
	for _, s := range c.BiddingStrategies {
		strategies = append(strategies, auction.BiddingStrategy{
			Name:            s.Name,
			Priority:        s.Priority,
			Enabled:         s.Enabled,
			Timing:          models.BidTiming(s.Params.TimeStrategy),
			MinProfitMargin: s.Params.MinProfitMargin,
			RiskTolerance:   s.Params.RiskTolerance,
			MaxBidPrice:     s.Params.MaxBidPrice,
			Aggressiveness:  s.Params.Aggressiveness,
		})
	}
	return cfg, strategies
}

// ToStrategyEngine builds the Strategy Engine's ensemble strategies
// and gas estimator.
func (c *Config) ToStrategyEngine() ([]strategy.Strategy, strategy.GasEstimator) {
	strategies := make([]strategy.Strategy, 0, len(c.StrategyEngine.Strategies))
	for _, s := range c.StrategyEngine.Strategies {
		params := strategy.Params{
			MinProfitMargin:     s.MinProfitMargin,
			MaxRiskScore:        s.MaxRiskScore,
			ConfidenceThreshold: s.ConfidenceThreshold,
			GasBuffer:           s.GasBuffer,
		}
		switch s.Name {
		case "market_making":
			strategies = append(strategies, strategy.NewMarketMaking(s.Weight, params, s.AvgSpread))
		case "arbitrage":
			strategies = append(strategies, strategy.NewArbitrage(s.Weight, params))
		case "risk_averse":
			strategies = append(strategies, strategy.NewRiskAverse(s.Weight, params))
		default:
			log.Printf("config: unknown strategy %q skipped", s.Name)
		}
	}

	fees := make(map[chain.ID]float64, len(c.StrategyEngine.DefaultGasEstimates))
	for id, usd := range c.StrategyEngine.DefaultGasEstimates {
		fees[chain.ID(id)] = usd
	}
	return strategies, strategy.NewStaticGasEstimator(fees)
}

// ToMarketSources builds the Market Data cache poller's source list.
func (c *Config) ToMarketSources() []market.Source {
	sources := make([]market.Source, 0, len(c.StrategyEngine.MarketDataSources))
	for _, s := range c.StrategyEngine.MarketDataSources {
		sources = append(sources, market.Source{
			Pool: chain.PoolKey{Chain: chain.ID(s.Chain), Token: chain.Token(s.Token)},
			URL:  s.URL,
		})
	}
	return sources
}

// MarketUpdateInterval is how often the market-data poller refreshes
// every configured source.
func (c *Config) MarketUpdateInterval() time.Duration {
	return time.Duration(c.StrategyEngine.UpdateIntervalSeconds) * time.Second
}

// ToRiskProfile builds the Risk Manager's Profile and counterparty list.
func (c *Config) ToRiskProfile() (risk.Profile, *risk.CounterpartyList) {
	p := risk.Profile{
		MaxExposurePerChain:    make(map[chain.ID]chain.Amount, len(c.Risk.RiskProfile.MaxExposurePerChain)),
		MaxExposurePerToken:    make(map[chain.PoolKey]chain.Amount, len(c.Risk.RiskProfile.MaxExposurePerToken)),
		MaxSingleOrderSize:     mustAmount(c.Risk.RiskProfile.MaxSingleOrderSize),
		MaxDailyVolume:         mustAmount(c.Risk.RiskProfile.MaxDailyVolume),
		MaxConcurrentOrders:    c.Risk.RiskProfile.MaxConcurrentOrders,
		MinConfidenceScore:     c.Risk.RiskProfile.MinConfidenceScore,
		MaxRiskScore:           c.Risk.RiskProfile.MaxRiskScore,
		BaseSize:               mustAmount(c.Risk.PositionSizing.BaseSize),
		MaxSize:                mustAmount(c.Risk.PositionSizing.MaxSize),
		ConfidenceMultiplier:   c.Risk.PositionSizing.ConfidenceMultiplier,
		RiskDivisor:            c.Risk.PositionSizing.RiskDivisor,
		VolatilityLow:          c.Risk.VolatilityThresholds.Low,
		VolatilityMedium:       c.Risk.VolatilityThresholds.Medium,
		VolatilityHigh:         c.Risk.VolatilityThresholds.High,
		ExposureAlertThreshold: c.Risk.Monitoring.ExposureAlertThreshold,
	}
	for chainName, amt := range c.Risk.RiskProfile.MaxExposurePerChain {
		p.MaxExposurePerChain[chain.ID(chainName)] = mustAmount(amt)
	}
	for poolKey, amt := range c.Risk.RiskProfile.MaxExposurePerToken {
		p.MaxExposurePerToken[chain.PoolKey{Chain: chain.ID(poolKey), Token: chain.Native}] = mustAmount(amt)
	}

	watchlist := risk.NewCounterpartyList(len(c.Risk.RiskProfile.AllowedCounterparties) > 0)
	for _, addr := range c.Risk.RiskProfile.AllowedCounterparties {
		watchlist.Add(chain.Address(addr), risk.TrustAllowed, "configured allowlist")
	}
	for _, addr := range c.Risk.RiskProfile.BlockedCounterparties {
		watchlist.Add(chain.Address(addr), risk.TrustBlocked, "configured blocklist")
	}
	return p, watchlist
}

// ToBreakerRules builds the circuit-breaker rule set from YAML.
func (c *Config) ToBreakerRules() []*risk.BreakerRule {
	rules := make([]*risk.BreakerRule, 0, len(c.Risk.CircuitBreakers))
	for _, b := range c.Risk.CircuitBreakers {
		rules = append(rules, &risk.BreakerRule{
			Name:            b.Name,
			Condition:       risk.ConditionType(b.Condition),
			Threshold:       b.Threshold,
			Action:          risk.Action(b.Action),
			DurationSec:     b.DurationSec,
			ReductionFactor: b.ReductionFactor,
		})
	}
	return rules
}

// ToExecutorConfig builds the Swap Executor's Config.
func (c *Config) ToExecutorConfig() swap.Config {
	return swap.Config{
		EthereumConfirmations:   c.SX.Ethereum.Confirmations,
		BitcoinConfirmations:    c.SX.Bitcoin.Confirmations,
		MaxRetries:              c.SX.Execution.MaxRetries,
		RetryBaseDelay:          time.Duration(c.SX.Execution.RetryDelaySeconds * float64(time.Second)),
		RetryBackoffFactor:      c.SX.Execution.RetryBackoff,
		TransactionTimeout:      time.Duration(c.SX.Execution.TransactionTimeoutSeconds) * time.Second,
		SecretRevealDelay:       time.Duration(c.SX.Execution.SecretRevealDelaySeconds) * time.Second,
		MaxConcurrentExecutions: c.SX.Execution.MaxConcurrentExecutions,
	}
}

// ToBitcoinConfig builds the B-chain client's Config from YAML network
// selection and secret-sourced RPC credentials.
func (c *Config) ToBitcoinConfig(secrets Secrets) bitcoin.Config {
	return bitcoin.Config{
		Host: secrets.BitcoinRPCHost,
		User: secrets.BitcoinRPCUser,
		Pass: secrets.BitcoinRPCPass,
		Net:  bitcoinNetParams(c.SX.Bitcoin.Network),
	}
}

// ToEthereumConfig builds the E-chain client's Config from YAML chain
// selection and secret-sourced RPC URL/key.
func (c *Config) ToEthereumConfig(secrets Secrets) ethereum.Config {
	return ethereum.Config{
		RPCURL:          secrets.EthereumRPCURL,
		ContractAddress: secrets.EscrowContractAddress,
		PrivateKeyHex:   secrets.EthereumPrivateKey,
		ChainID:         c.SX.Ethereum.ChainID,
	}
}

// ToAPIConfig builds the operator HTTP surface's Config: the bearer
// token from Secrets (never YAML, since it's a credential) and the
// per-IP rate limit from YAML, falling back to the same defaults the
// handler previously hard-coded if the operator leaves them unset.
func (c *Config) ToAPIConfig(secrets Secrets) api.Config {
	rate := c.API.RateLimitPerMinute
	if rate <= 0 {
		rate = 30
	}
	burst := c.API.RateLimitBurst
	if burst <= 0 {
		burst = 5
	}
	return api.Config{
		AuthToken:          secrets.APIAuthToken,
		RateLimitPerMinute: rate,
		RateLimitBurst:     burst,
	}
}
