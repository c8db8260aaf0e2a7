// Package events implements the resolver's typed event channels: every
// state transition callers might care about (reservation granted,
// secret revealed, emergency stop tripped) fires through Bus.Emit and
// reaches only the handlers registered for that EventKind.
package events

import (
	"encoding/json"
	"log"
	"sync"
	"time"
)

// EventKind names one of the resolver's event channels.
type EventKind string

const (
	OrderDiscovered    EventKind = "order_discovered"
	ReservationGranted EventKind = "reservation_granted"
	ReservationDenied  EventKind = "reservation_denied"
	RiskAssessed       EventKind = "risk_assessed"
	ExposureAlert      EventKind = "exposure_alert"
	BidSubmitted       EventKind = "bid_submitted"
	PriceUpdated       EventKind = "price_updated"
	AuctionWon         EventKind = "auction_won"
	AuctionLost        EventKind = "auction_lost"
	SwapStageAdvanced  EventKind = "swap_stage_advanced"
	SecretRevealed     EventKind = "secret_revealed"
	SwapCompleted      EventKind = "swap_completed"
	SwapFailed         EventKind = "swap_failed"
	CircuitBreakerOpen EventKind = "circuit_breaker_open"
	EmergencyStop      EventKind = "emergency_stop"
)

// Event is one occurrence on the bus: a kind, a timestamp, and an
// opaque payload whose concrete type is determined by Kind.
type Event struct {
	Kind    EventKind
	At      time.Time
	OrderID string
	Payload any
}

// Handler receives events of exactly the kinds it was registered for.
type Handler func(Event)

// Bus is the resolver's event dispatcher: a registry of callbacks plus
// an optional broadcast sink, fed by Emit, with bounded in-memory
// history for late subscribers (read through Recent).
type Bus struct {
	mu          sync.RWMutex
	handlers    map[EventKind][]Handler
	recent      []Event
	maxHistory  int
	broadcastFn func([]byte)
}

// NewBus constructs an empty Bus. broadcastFn, if non-nil, receives the
// JSON encoding of every emitted event (wired to a Hub's Broadcast).
func NewBus(broadcastFn func([]byte)) *Bus {
	return &Bus{
		handlers:    make(map[EventKind][]Handler),
		maxHistory:  1000,
		broadcastFn: broadcastFn,
	}
}

// On registers h to run for every Emit of kind.
func (b *Bus) On(kind EventKind, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = append(b.handlers[kind], h)
}

// Emit dispatches an event to its registered handlers, appends it to
// history, and forwards it to the broadcast sink if one is wired.
func (b *Bus) Emit(kind EventKind, orderID string, payload any) {
	ev := Event{Kind: kind, At: time.Now(), OrderID: orderID, Payload: payload}

	b.mu.Lock()
	b.recent = append(b.recent, ev)
	if len(b.recent) > b.maxHistory {
		b.recent = b.recent[len(b.recent)-b.maxHistory:]
	}
	handlers := make([]Handler, len(b.handlers[kind]))
	copy(handlers, b.handlers[kind])
	broadcastFn := b.broadcastFn
	b.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}

	if broadcastFn != nil {
		data, err := json.Marshal(struct {
			Kind    EventKind `json:"kind"`
			At      time.Time `json:"at"`
			OrderID string    `json:"orderId"`
			Payload any       `json:"payload,omitempty"`
		}{ev.Kind, ev.At, ev.OrderID, ev.Payload})
		if err != nil {
			log.Printf("[events] failed to marshal event %s: %v", kind, err)
		} else {
			broadcastFn(data)
		}
	}

	log.Printf("[events] %s order=%s", kind, orderID)
}

// Recent returns up to limit most-recently-emitted events, newest first.
func (b *Bus) Recent(limit int) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if limit <= 0 || limit > len(b.recent) {
		limit = len(b.recent)
	}
	start := len(b.recent) - limit
	out := make([]Event, limit)
	for i := 0; i < limit; i++ {
		out[i] = b.recent[start+limit-1-i]
	}
	return out
}
