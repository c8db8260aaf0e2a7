package risk

import (
	"sync"
	"time"

	"github.com/rawblock/swap-resolver/pkg/models"
)

// ConditionType is a circuit breaker's trigger condition.
type ConditionType string

const (
	ConditionExposureThreshold ConditionType = "exposure_threshold"
	ConditionVolumeSpike       ConditionType = "volume_spike"
	ConditionErrorRate         ConditionType = "error_rate"
	ConditionMarketVolatility  ConditionType = "market_volatility"
	ConditionConfidenceDrop    ConditionType = "confidence_drop"
)

// Action is the protective response a breaker applies once triggered.
type Action string

const (
	ActionPause         Action = "pause"
	ActionReduceLimits  Action = "reduce_limits"
	ActionAlert         Action = "alert"
	ActionEmergencyStop Action = "emergency_stop"
)

// BreakerRule is one configured circuit breaker.
type BreakerRule struct {
	Name           string
	Condition      ConditionType
	Threshold      float64
	Action         Action
	DurationSec    int
	ReductionFactor float64

	breaker models.CircuitBreaker
}

// BreakerSet evaluates a configured list of circuit breaker rules
// against the Manager's live state, applying actions idempotently.
type BreakerSet struct {
	mu    sync.Mutex
	rules []*BreakerRule
	mgr   *Manager
	bus   func(name string, action Action)
}

// NewBreakerSet constructs a BreakerSet bound to mgr. onTrigger, if
// non-nil, is called whenever a rule transitions from closed to open
// (a BreakerSet never puts a rule in the half-open state).
func NewBreakerSet(mgr *Manager, rules []*BreakerRule, onTrigger func(name string, action Action)) *BreakerSet {
	for _, r := range rules {
		if r.ReductionFactor == 0 {
			r.ReductionFactor = 0.5
		}
		r.breaker = models.CircuitBreaker{
			Name:          r.Name,
			State:         models.BreakerClosed,
			FailThreshold: 1,
		}
	}
	return &BreakerSet{rules: rules, mgr: mgr, bus: onTrigger}
}

// EvaluateAll runs every rule's condition against current chain
// utilisation, daily-volume ratio, the manager's error rate, and the
// last observed volatility/confidence, applying each rule's action the
// first time its condition holds. Triggering is idempotent: an
// already-open breaker is not re-fired, so a sustained breach doesn't
// reduce limits or page on-call repeatedly every tick. An open rule
// closes again once DurationSec has passed and is then re-evaluated; a
// rule with DurationSec of zero or less stays open.
func (s *BreakerSet) EvaluateAll(now time.Time, chainUtilisation, volumeRatio, volatility, confidence float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.rules {
		if r.breaker.State == models.BreakerOpen && (r.DurationSec <= 0 || now.Sub(r.breaker.OpenedAt) < time.Duration(r.DurationSec)*time.Second) {
			continue
		}
		if r.breaker.State == models.BreakerOpen {
			r.breaker.State = models.BreakerClosed
			r.breaker.ConsecutiveFails = 0
		}

		var tripped bool
		switch r.Condition {
		case ConditionExposureThreshold:
			tripped = chainUtilisation > r.Threshold
		case ConditionVolumeSpike:
			tripped = volumeRatio > r.Threshold
		case ConditionErrorRate:
			tripped = s.mgr.ErrorRate() > r.Threshold
		case ConditionMarketVolatility:
			tripped = volatility > r.Threshold
		case ConditionConfidenceDrop:
			tripped = confidence < r.Threshold
		}

		if !tripped {
			continue
		}

		r.breaker.State = models.BreakerOpen
		r.breaker.OpenedAt = now
		s.applyAction(r)
		if s.bus != nil {
			s.bus(r.Name, r.Action)
		}
	}
}

func (s *BreakerSet) applyAction(r *BreakerRule) {
	switch r.Action {
	case ActionReduceLimits:
		s.mgr.ReduceLimits(r.ReductionFactor)
	case ActionEmergencyStop:
		s.mgr.SetEmergencyStopped(true)
	case ActionPause, ActionAlert:
		// Surfaced to the caller via the onTrigger callback; no direct
		// Manager state change needed.
	}
}

// State returns the current breaker state for a named rule.
func (s *BreakerSet) State(name string) (models.BreakerState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rules {
		if r.Name == name {
			return r.breaker.State, true
		}
	}
	return "", false
}
