package liquidity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rawblock/swap-resolver/pkg/chain"
)

func testPool() chain.PoolKey {
	return chain.PoolKey{Chain: chain.EMainnet, Token: chain.Native}
}

func TestReserveConsumeConservesBalance(t *testing.T) {
	pool := testPool()
	m := NewManager(map[chain.PoolKey]chain.Amount{pool: chain.NewAmount(1000)})

	id, err := m.ReserveLiquidity("order-1", pool, chain.NewAmount(400), time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "600", m.Available(pool).String())

	require.NoError(t, m.Consume(id))
	// Consuming finalizes the reservation but the balance was
	// already debited at reserve time — it must not change again.
	assert.Equal(t, "600", m.Available(pool).String())

	// A second Consume or Release on the same id must fail: exactly
	// one of consume/release, exactly once.
	assert.Error(t, m.Consume(id))
	assert.Error(t, m.Release(id))
}

func TestReserveReleaseRestoresBalance(t *testing.T) {
	pool := testPool()
	m := NewManager(map[chain.PoolKey]chain.Amount{pool: chain.NewAmount(1000)})

	id, err := m.ReserveLiquidity("order-1", pool, chain.NewAmount(400), time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "600", m.Available(pool).String())

	require.NoError(t, m.Release(id))
	assert.Equal(t, "1000", m.Available(pool).String())

	assert.Error(t, m.Release(id))
	assert.Error(t, m.Consume(id))
}

func TestReserveFailsClosedWhenInsufficientBalance(t *testing.T) {
	pool := testPool()
	m := NewManager(map[chain.PoolKey]chain.Amount{pool: chain.NewAmount(100)})

	_, err := m.ReserveLiquidity("order-1", pool, chain.NewAmount(200), time.Now().Add(time.Hour))
	assert.Error(t, err)
	assert.Equal(t, "100", m.Available(pool).String())
}

func TestCheckAvailabilityDoesNotReserve(t *testing.T) {
	pool := testPool()
	m := NewManager(map[chain.PoolKey]chain.Amount{pool: chain.NewAmount(500)})

	assert.True(t, m.CheckAvailability(pool, chain.NewAmount(500)))
	assert.False(t, m.CheckAvailability(pool, chain.NewAmount(501)))
	assert.Equal(t, "500", m.Available(pool).String())
}

func TestSweepReleasesExpiredUnconsumedReservations(t *testing.T) {
	pool := testPool()
	m := NewManager(map[chain.PoolKey]chain.Amount{pool: chain.NewAmount(1000)})

	now := time.Now()
	id, err := m.ReserveLiquidity("order-1", pool, chain.NewAmount(300), now.Add(-time.Minute))
	require.NoError(t, err)

	n := m.Sweep(now)
	assert.Equal(t, 1, n)
	assert.Equal(t, "1000", m.Available(pool).String())

	r, ok := m.Get(id)
	require.True(t, ok)
	assert.Equal(t, ReservationReleased, r.Status)
}

func TestSweepLeavesUnexpiredReservationsAlone(t *testing.T) {
	pool := testPool()
	m := NewManager(map[chain.PoolKey]chain.Amount{pool: chain.NewAmount(1000)})

	_, err := m.ReserveLiquidity("order-1", pool, chain.NewAmount(300), time.Now().Add(time.Hour))
	require.NoError(t, err)

	n := m.Sweep(time.Now())
	assert.Equal(t, 0, n)
	assert.Equal(t, "700", m.Available(pool).String())
}

func TestReservationNeverExpiresWithZeroExpiresAt(t *testing.T) {
	pool := testPool()
	m := NewManager(map[chain.PoolKey]chain.Amount{pool: chain.NewAmount(1000)})

	_, err := m.Reserve(pool, chain.NewAmount(200))
	require.NoError(t, err)

	n := m.Sweep(time.Now().Add(365 * 24 * time.Hour))
	assert.Equal(t, 0, n)
}
