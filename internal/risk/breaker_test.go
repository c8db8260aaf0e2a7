package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rawblock/swap-resolver/pkg/chain"
	"github.com/rawblock/swap-resolver/pkg/models"
)

// Triggering an already-triggered breaker does not re-fire its action
// or invoke the callback twice.
func TestBreakerTriggersIdempotently(t *testing.T) {
	m := NewManager(testProfile(), NewCounterpartyList(false))
	m.profile.MaxExposurePerChain[chain.EMainnet] = chain.NewAmount(1000)

	var fired int
	rules := []*BreakerRule{
		{Name: "exposure-guard", Condition: ConditionExposureThreshold, Threshold: 0.5, Action: ActionReduceLimits, ReductionFactor: 0.5, DurationSec: 3600},
	}
	bs := NewBreakerSet(m, rules, func(name string, action Action) { fired++ })

	now := time.Now()
	bs.EvaluateAll(now, 0.6, 0, 0, 1)
	bs.EvaluateAll(now, 0.6, 0, 0, 1)
	bs.EvaluateAll(now, 0.6, 0, 0, 1)

	assert.Equal(t, 1, fired)
	state, ok := bs.State("exposure-guard")
	require.True(t, ok)
	assert.Equal(t, models.BreakerOpen, state)
}

func TestBreakerResetsAfterDuration(t *testing.T) {
	m := NewManager(testProfile(), NewCounterpartyList(false))
	var fired int
	rules := []*BreakerRule{
		{Name: "exposure-guard", Condition: ConditionExposureThreshold, Threshold: 0.5, Action: ActionAlert, DurationSec: 60},
	}
	bs := NewBreakerSet(m, rules, func(name string, action Action) { fired++ })

	now := time.Now()
	bs.EvaluateAll(now, 0.9, 0, 0, 1)
	assert.Equal(t, 1, fired)

	later := now.Add(2 * time.Minute)
	bs.EvaluateAll(later, 0.9, 0, 0, 1)
	assert.Equal(t, 2, fired)
}

func TestBreakerDoesNotTriggerBelowThreshold(t *testing.T) {
	m := NewManager(testProfile(), NewCounterpartyList(false))
	var fired int
	rules := []*BreakerRule{
		{Name: "exposure-guard", Condition: ConditionExposureThreshold, Threshold: 0.5, Action: ActionAlert, DurationSec: 60},
	}
	bs := NewBreakerSet(m, rules, func(name string, action Action) { fired++ })

	bs.EvaluateAll(time.Now(), 0.2, 0, 0, 1)
	assert.Equal(t, 0, fired)
}

func TestEmergencyStopActionSetsManagerFlag(t *testing.T) {
	m := NewManager(testProfile(), NewCounterpartyList(false))
	rules := []*BreakerRule{
		{Name: "kill-switch", Condition: ConditionErrorRate, Threshold: 0.1, Action: ActionEmergencyStop, DurationSec: 3600},
	}
	bs := NewBreakerSet(m, rules, nil)

	// Force a nonzero error rate.
	now := time.Now()
	order := riskOrder("a", chain.Address("bad-actor"), 20_000, now) // exceeds maxSingleOrderSize -> rejected
	m.AssessOrderRisk(order, 10, 0.01, now)

	bs.EvaluateAll(now, 0, 0, 0, 1)
	assert.True(t, m.IsEmergencyStopped())
}

func TestReduceLimitsActionAppliesReductionFactor(t *testing.T) {
	m := NewManager(testProfile(), NewCounterpartyList(false))
	before := m.chainLimit(chain.EMainnet)

	rules := []*BreakerRule{
		{Name: "exposure-guard", Condition: ConditionExposureThreshold, Threshold: 0.1, Action: ActionReduceLimits, ReductionFactor: 0.25, DurationSec: 3600},
	}
	bs := NewBreakerSet(m, rules, nil)
	bs.EvaluateAll(time.Now(), 0.2, 0, 0, 1)

	after := m.chainLimit(chain.EMainnet)
	assert.InDelta(t, before.ToFloat64ForScore()*0.25, after.ToFloat64ForScore(), 1e-6)
}
