package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rawblock/swap-resolver/pkg/chain"
	"github.com/rawblock/swap-resolver/pkg/models"
)

func riskOrder(id string, maker chain.Address, amount int64, now time.Time) models.CrossChainSwapState {
	return models.CrossChainSwapState{
		OrderID: id,
		Maker:   maker,
		Source: models.ChainLeg{
			ChainID: chain.EMainnet,
			Token:   chain.Native,
		},
		Destination: models.ChainLeg{
			ChainID: chain.BMainnet,
			Token:   chain.Native,
		},
		Amounts: models.Amounts{
			Source:      chain.NewAmount(amount),
			Destination: chain.NewAmount(amount / 250),
		},
		Timelocks: models.Timelocks{
			Source:      now.Unix() + 7200,
			Destination: now.Unix() + 3600,
		},
		Status: models.StatusDiscovered,
	}
}

func testProfile() Profile {
	p := DefaultProfile()
	p.MaxExposurePerChain[chain.EMainnet] = chain.NewAmount(1000)
	p.MaxExposurePerToken[chain.PoolKey{Chain: chain.EMainnet, Token: chain.Native}] = chain.NewAmount(1000)
	p.MaxSingleOrderSize = chain.NewAmount(10_000)
	p.MaxConcurrentOrders = 5
	p.MaxRiskScore = 70
	p.MinConfidenceScore = 50
	return p
}

// After any sequence of status transitions ending with all orders
// terminal, every chain/token exposure returns to 0.
func TestExposureConservationAcrossLifecycle(t *testing.T) {
	m := NewManager(testProfile(), NewCounterpartyList(false))
	now := time.Now()

	orderA := riskOrder("a", chain.Address("maker-a"), 300, now)
	orderB := riskOrder("b", chain.Address("maker-b"), 200, now)

	orderA.Status = models.StatusAuctionStarted
	m.UpdateOrderStatus(orderA.OrderID, orderA, now)
	orderB.Status = models.StatusSourceFunding
	m.UpdateOrderStatus(orderB.OrderID, orderB, now)

	assert.Equal(t, "500", m.ChainExposure(chain.EMainnet).String())

	orderA.Status = models.StatusCompleted
	m.UpdateOrderStatus(orderA.OrderID, orderA, now)
	orderB.Status = models.StatusFailed
	m.UpdateOrderStatus(orderB.OrderID, orderB, now)

	assert.True(t, m.ChainExposure(chain.EMainnet).IsZero())
	pool := chain.PoolKey{Chain: chain.EMainnet, Token: chain.Native}
	assert.True(t, m.TokenExposure(pool).IsZero())
}

func TestDailyVolumeIncrementsOnlyOnCompletion(t *testing.T) {
	m := NewManager(testProfile(), NewCounterpartyList(false))
	now := time.Now()

	order := riskOrder("a", chain.Address("maker-a"), 300, now)
	order.Status = models.StatusSourceFunding
	m.UpdateOrderStatus(order.OrderID, order, now)
	order.Status = models.StatusFailed
	m.UpdateOrderStatus(order.OrderID, order, now)
	assert.Equal(t, 0.0, m.DailyVolumeRatio(now))

	order2 := riskOrder("b", chain.Address("maker-b"), 300, now)
	order2.Status = models.StatusSourceFunding
	m.UpdateOrderStatus(order2.OrderID, order2, now)
	order2.Status = models.StatusCompleted
	m.UpdateOrderStatus(order2.OrderID, order2, now)
	assert.Greater(t, m.DailyVolumeRatio(now), 0.0)
}

func TestAssessOrderRiskRejectsOversizedOrder(t *testing.T) {
	m := NewManager(testProfile(), NewCounterpartyList(false))
	now := time.Now()
	order := riskOrder("a", chain.Address("maker-a"), 20_000, now)

	assessment := m.AssessOrderRisk(order, 80, 0.01, now)
	assert.Equal(t, models.RecommendReject, assessment.Recommend)
}

func TestAssessOrderRiskRejectsBlockedCounterparty(t *testing.T) {
	watchlist := NewCounterpartyList(false)
	watchlist.Add(chain.Address("bad-actor"), TrustBlocked, "sanctioned")
	m := NewManager(testProfile(), watchlist)
	now := time.Now()

	order := riskOrder("a", chain.Address("bad-actor"), 100, now)
	assessment := m.AssessOrderRisk(order, 80, 0.01, now)
	assert.Equal(t, models.RecommendReject, assessment.Recommend)
}

func TestAssessOrderRiskAcceptsCleanOrder(t *testing.T) {
	m := NewManager(testProfile(), NewCounterpartyList(false))
	now := time.Now()
	order := riskOrder("a", chain.Address("maker-a"), 100, now)

	assessment := m.AssessOrderRisk(order, 90, 0.01, now)
	assert.Equal(t, models.RecommendAccept, assessment.Recommend)
	assert.True(t, assessment.Score < 70)
}

func TestEmergencyStopOverridesAllAssessments(t *testing.T) {
	m := NewManager(testProfile(), NewCounterpartyList(false))
	now := time.Now()
	order := riskOrder("a", chain.Address("maker-a"), 100, now)

	m.SetEmergencyStopped(true)
	assessment := m.AssessOrderRisk(order, 90, 0.01, now)
	assert.Equal(t, models.RecommendReject, assessment.Recommend)
	assert.Equal(t, 100.0, assessment.Score)

	m.SetEmergencyStopped(false)
	assessment = m.AssessOrderRisk(order, 90, 0.01, now)
	assert.Equal(t, models.RecommendAccept, assessment.Recommend)
}

func TestPositionSizeNeverExceedsOrderOrMaxSize(t *testing.T) {
	m := NewManager(testProfile(), NewCounterpartyList(false))
	now := time.Now()
	order := riskOrder("a", chain.Address("maker-a"), 100, now)

	assessment := m.AssessOrderRisk(order, 90, 0.01, now)
	require.False(t, assessment.PositionSize.GreaterThan(order.Amounts.Source))
}

func TestReduceLimitsHalvesExposureCaps(t *testing.T) {
	m := NewManager(testProfile(), NewCounterpartyList(false))
	before := m.chainLimit(chain.EMainnet)
	m.ReduceLimits(0.5)
	after := m.chainLimit(chain.EMainnet)
	assert.Equal(t, before.ToFloat64ForScore()/2, after.ToFloat64ForScore())
}
