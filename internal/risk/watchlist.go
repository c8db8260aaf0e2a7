package risk

import (
	"sync"

	"github.com/rawblock/swap-resolver/pkg/chain"
)

// CounterpartyTrust classifies a maker address for risk purposes.
type CounterpartyTrust string

const (
	TrustAllowed CounterpartyTrust = "allowed"
	TrustBlocked CounterpartyTrust = "blocked"
)

// CounterpartyEntry is one address's registered trust classification.
type CounterpartyEntry struct {
	Address chain.Address
	Trust   CounterpartyTrust
	Label   string
}

// CounterpartyList is a concurrency-safe allow/block registry.
type CounterpartyList struct {
	mu      sync.RWMutex
	entries map[chain.Address]CounterpartyEntry
	// allowlistMode, when true, requires every counterparty to appear
	// with TrustAllowed; otherwise only explicit TrustBlocked entries
	// are rejected.
	allowlistMode bool
}

// NewCounterpartyList constructs an empty list.
func NewCounterpartyList(allowlistMode bool) *CounterpartyList {
	return &CounterpartyList{
		entries:       make(map[chain.Address]CounterpartyEntry),
		allowlistMode: allowlistMode,
	}
}

// Add registers or overwrites an address's trust classification.
func (l *CounterpartyList) Add(addr chain.Address, trust CounterpartyTrust, label string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[addr] = CounterpartyEntry{Address: addr, Trust: trust, Label: label}
}

// Remove deletes an address's classification, if present.
func (l *CounterpartyList) Remove(addr chain.Address) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, addr)
}

// IsBlocked reports whether addr is explicitly blocked, or (in
// allowlist mode) absent from the allowlist entirely.
func (l *CounterpartyList) IsBlocked(addr chain.Address) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	e, ok := l.entries[addr]
	if l.allowlistMode {
		return !ok || e.Trust != TrustAllowed
	}
	return ok && e.Trust == TrustBlocked
}

// Known reports whether addr has any registered classification.
func (l *CounterpartyList) Known(addr chain.Address) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.entries[addr]
	return ok
}
