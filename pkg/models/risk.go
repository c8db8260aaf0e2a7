package models

import (
	"time"

	"github.com/rawblock/swap-resolver/pkg/chain"
)

// RiskLevel classifies an assessed order's overall danger, driving the
// Risk Manager's accept/reduce/reject recommendation.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// RiskSignal is one additive contribution to a RiskAssessment's score,
// named so the assessment stays auditable (which checks fired, and by
// how much).
type RiskSignal struct {
	Name   string
	Points float64
	Detail string
}

// RiskAssessment is the Risk Manager's additive per-order score,
// capped to [0, 100].
type RiskAssessment struct {
	OrderID    string
	Score      float64
	Level      RiskLevel
	Signals    []RiskSignal
	Recommend  RiskRecommendation
	PositionSize chain.Amount

	// Exposure impact ratios in [0,1], one per limit dimension checked
	// during the exposure pre-check.
	ExposureImpactChain  float64
	ExposureImpactToken  float64
	ExposureImpactVolume float64

	AssessedAt time.Time
}

// RiskRecommendation is the Risk Manager's action recommendation.
type RiskRecommendation string

const (
	RecommendAccept RiskRecommendation = "accept"
	RecommendReduce RiskRecommendation = "reduce"
	RecommendReject RiskRecommendation = "reject"
)

// ExposureLimit tracks committed capital per (chain, token) pool, used
// to enforce the resolver's maximum per-pool exposure.
type ExposureLimit struct {
	Pool      chain.PoolKey
	Limit     chain.Amount
	Committed chain.Amount
}

// Available returns the remaining headroom before Limit is reached.
func (e ExposureLimit) Available() chain.Amount {
	return e.Limit.Sub(e.Committed)
}

// WouldBreach reports whether committing amount would exceed Limit.
func (e ExposureLimit) WouldBreach(amount chain.Amount) bool {
	return e.Committed.Add(amount).GreaterThan(e.Limit)
}

// BreakerState is a circuit breaker's current posture.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// CircuitBreaker guards a failure-prone resource (a chain, a pool) by
// tripping open after consecutive failures and cooling down before
// allowing a half-open trial.
type CircuitBreaker struct {
	Name             string
	State            BreakerState
	ConsecutiveFails int
	FailThreshold    int
	OpenedAt         time.Time
	CooldownPeriod   time.Duration
}

// Allow reports whether a new attempt may proceed given the breaker's
// current state at time now, transitioning Open→HalfOpen once the
// cooldown has elapsed.
func (c *CircuitBreaker) Allow(now time.Time) bool {
	switch c.State {
	case BreakerClosed, BreakerHalfOpen:
		return true
	case BreakerOpen:
		if now.Sub(c.OpenedAt) >= c.CooldownPeriod {
			c.State = BreakerHalfOpen
			return true
		}
		return false
	default:
		return false
	}
}

// RecordSuccess closes the breaker and resets its failure count.
func (c *CircuitBreaker) RecordSuccess() {
	c.State = BreakerClosed
	c.ConsecutiveFails = 0
}

// RecordFailure increments the failure count and trips the breaker
// open once it reaches FailThreshold (idempotent once open).
func (c *CircuitBreaker) RecordFailure(now time.Time) {
	if c.State == BreakerOpen {
		return
	}
	c.ConsecutiveFails++
	if c.ConsecutiveFails >= c.FailThreshold {
		c.State = BreakerOpen
		c.OpenedAt = now
	}
}
