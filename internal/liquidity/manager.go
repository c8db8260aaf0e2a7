// Package liquidity implements the two-phase reserve/consume/release
// protocol that protects the resolver's capital from double-commitment
// across concurrently evaluated orders.
package liquidity

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rawblock/swap-resolver/pkg/chain"
)

// ReservationStatus is a reservation's lifecycle stage.
type ReservationStatus string

const (
	ReservationHeld      ReservationStatus = "held"
	ReservationConsumed  ReservationStatus = "consumed"
	ReservationReleased  ReservationStatus = "released"
)

// Reservation is one hold against a pool's available balance.
type Reservation struct {
	ID        string
	OrderID   string
	Pool      chain.PoolKey
	Amount    chain.Amount
	Status    ReservationStatus
	ExpiresAt time.Time
}

// Manager tracks per-pool available balances and outstanding
// reservations. Available balances never go negative: Reserve fails
// closed when the requested amount exceeds headroom.
type Manager struct {
	mu           sync.Mutex
	balances     map[chain.PoolKey]chain.Amount
	reservations map[string]Reservation
}

// NewManager constructs a Manager with the given starting balances.
func NewManager(balances map[chain.PoolKey]chain.Amount) *Manager {
	m := &Manager{
		balances:     make(map[chain.PoolKey]chain.Amount, len(balances)),
		reservations: make(map[string]Reservation),
	}
	for k, v := range balances {
		m.balances[k] = v
	}
	return m
}

// Available returns the pool's current unreserved balance.
func (m *Manager) Available(pool chain.PoolKey) chain.Amount {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[pool]
}

// CheckAvailability reports whether pool currently has at least amount
// of unreserved headroom, without reserving it.
func (m *Manager) CheckAvailability(pool chain.PoolKey, amount chain.Amount) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.balances[pool].LessThan(amount)
}

// Reserve holds amount against pool if sufficient headroom exists,
// returning a reservation ID. Conservation: Available decreases by
// exactly amount; a subsequent Release or Consume restores or finalizes
// that amount with no double-spend window.
func (m *Manager) Reserve(pool chain.PoolKey, amount chain.Amount) (string, error) {
	return m.ReserveLiquidity("", pool, amount, time.Time{})
}

// ReserveLiquidity is the named LM entry point: holds amount against
// pool on behalf of orderID until expiresAt, after which Sweep may
// reclaim it if it was never consumed or explicitly released.
func (m *Manager) ReserveLiquidity(orderID string, pool chain.PoolKey, amount chain.Amount, expiresAt time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	bal := m.balances[pool]
	if bal.LessThan(amount) {
		return "", fmt.Errorf("liquidity: insufficient balance for %s: have %s, need %s", pool, bal, amount)
	}

	id := uuid.NewString()
	m.balances[pool] = bal.Sub(amount)
	m.reservations[id] = Reservation{
		ID: id, OrderID: orderID, Pool: pool, Amount: amount,
		Status: ReservationHeld, ExpiresAt: expiresAt,
	}
	return id, nil
}

// Sweep releases every held reservation whose ExpiresAt has passed,
// returning the count released. Reservations with a zero ExpiresAt
// never expire.
func (m *Manager) Sweep(now time.Time) int {
	m.mu.Lock()
	var expired []string
	for id, r := range m.reservations {
		if r.Status == ReservationHeld && !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt) {
			expired = append(expired, id)
		}
	}
	m.mu.Unlock()

	for _, id := range expired {
		_ = m.Release(id)
	}
	return len(expired)
}

// Consume finalizes a held reservation: the capital has actually left
// the pool (e.g. an HTLC funding transaction was broadcast). The
// balance was already debited at Reserve time, so Consume only flips
// the reservation's bookkeeping status.
func (m *Manager) Consume(reservationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.reservations[reservationID]
	if !ok {
		return fmt.Errorf("liquidity: unknown reservation %s", reservationID)
	}
	if r.Status != ReservationHeld {
		return fmt.Errorf("liquidity: reservation %s is %s, not held", reservationID, r.Status)
	}
	r.Status = ReservationConsumed
	m.reservations[reservationID] = r
	return nil
}

// Release returns a held reservation's amount to the pool's available
// balance (the order failed before consuming it).
func (m *Manager) Release(reservationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.reservations[reservationID]
	if !ok {
		return fmt.Errorf("liquidity: unknown reservation %s", reservationID)
	}
	if r.Status != ReservationHeld {
		return fmt.Errorf("liquidity: reservation %s is %s, not held", reservationID, r.Status)
	}
	r.Status = ReservationReleased
	m.reservations[reservationID] = r
	m.balances[r.Pool] = m.balances[r.Pool].Add(r.Amount)
	return nil
}

// Get returns a reservation's current record.
func (m *Manager) Get(reservationID string) (Reservation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reservations[reservationID]
	return r, ok
}
