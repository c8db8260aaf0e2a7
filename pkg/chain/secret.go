package chain

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// Secret is the 32-byte preimage of an HTLC's hash lock.
type Secret [32]byte

// Hash is the 32-byte SHA-256 digest committing to a Secret.
type Hash [32]byte

// GenerateSecret draws a fresh 32-byte secret from a CSPRNG.
func GenerateSecret() (Secret, error) {
	var s Secret
	if _, err := rand.Read(s[:]); err != nil {
		return Secret{}, fmt.Errorf("chain: generate secret: %w", err)
	}
	return s, nil
}

// HashSecret computes SHA-256(secret).
func HashSecret(s Secret) Hash {
	return Hash(sha256.Sum256(s[:]))
}

// ValidateSecret reports whether SHA-256(secret) == hash, in constant
// time to avoid leaking partial-match timing.
func ValidateSecret(s Secret, h Hash) bool {
	computed := HashSecret(s)
	return subtle.ConstantTimeCompare(computed[:], h[:]) == 1
}

func (h Hash) String() string   { return hex.EncodeToString(h[:]) }
func (s Secret) String() string { return hex.EncodeToString(s[:]) }

// HashFromHex parses a 64-char hex string into a Hash.
func HashFromHex(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("chain: invalid hash hex: %w", err)
	}
	if len(b) != 32 {
		return Hash{}, fmt.Errorf("chain: hash must be 32 bytes, got %d", len(b))
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}

// SecretFromHex parses a 64-char hex string into a Secret.
func SecretFromHex(s string) (Secret, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Secret{}, fmt.Errorf("chain: invalid secret hex: %w", err)
	}
	if len(b) != 32 {
		return Secret{}, fmt.Errorf("chain: secret must be 32 bytes, got %d", len(b))
	}
	var sec Secret
	copy(sec[:], b)
	return sec, nil
}

func (h Hash) MarshalJSON() ([]byte, error) {
	return []byte(`"` + h.String() + `"`), nil
}

func (h *Hash) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := HashFromHex(s)
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}
