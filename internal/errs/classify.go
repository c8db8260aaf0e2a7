// Package errs classifies resolver errors into a small taxonomy so
// callers can decide retry/cancel/freeze behavior in one place instead
// of string-matching at every call site.
package errs

import "strings"

// Class is one of the resolver's semantic error categories.
type Class string

const (
	Validation         Class = "validation"
	ResourceConstrained Class = "resource_constrained"
	TransientIO        Class = "transient_io"
	ChainMempool       Class = "chain_mempool"
	FatalProtocol      Class = "fatal_protocol"
	Emergency          Class = "emergency"
	Unknown            Class = "unknown"
)

// Retryable reports whether an error of this class should be retried
// with exponential back-off.
func (c Class) Retryable() bool {
	switch c {
	case TransientIO, ChainMempool:
		return true
	default:
		return false
	}
}

var mempoolSubstrings = []string{
	"nonce too low",
	"insufficient gas",
	"replacement transaction underpriced",
	"replacement tx underpriced",
}

var transientSubstrings = []string{
	"timeout",
	"timed out",
	"connection refused",
	"connection reset",
	"eof",
	"temporary failure",
	"too many requests",
	"429",
	"500",
	"502",
	"503",
	"504",
}

var fatalSubstrings = []string{
	"invalid script",
	"invalid secret",
	"double-spend",
	"double spend",
	"non-mandatory-script-verify-flag",
}

// Classify pattern-matches err's message against the known substrings
// of each category. Chain RPC nodes and HTTP clients rarely expose
// typed sentinel errors for these conditions, so text matching is the
// only reliable signal available. Returns Unknown if nothing matches —
// callers should treat Unknown as non-retryable by default.
func Classify(err error) Class {
	if err == nil {
		return Unknown
	}
	msg := strings.ToLower(err.Error())

	for _, s := range mempoolSubstrings {
		if strings.Contains(msg, s) {
			return ChainMempool
		}
	}
	for _, s := range fatalSubstrings {
		if strings.Contains(msg, s) {
			return FatalProtocol
		}
	}
	for _, s := range transientSubstrings {
		if strings.Contains(msg, s) {
			return TransientIO
		}
	}
	return Unknown
}

// BackoffDelaySeconds computes delay = baseDelay * backoffFactor^retryCount,
// uncapped; callers clamp against maxRetries themselves by not calling
// this past that count.
func BackoffDelaySeconds(baseDelay float64, backoffFactor float64, retryCount int) float64 {
	delay := baseDelay
	for i := 0; i < retryCount; i++ {
		delay *= backoffFactor
	}
	return delay
}
