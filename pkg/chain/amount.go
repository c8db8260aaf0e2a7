package chain

import (
	"fmt"
	"math"
	"math/big"
)

// Amount is a non-negative integer count of a token's smallest
// indivisible unit (wei on the E-chain, satoshis on the B-chain),
// backed by an exact arbitrary-precision integer so amount arithmetic
// never loses precision to float64 rounding; float64 is only
// reachable through ToFloat64ForScore, an explicit boundary method.
type Amount struct {
	v *big.Int
}

// ZeroAmount is the additive identity.
func ZeroAmount() Amount { return Amount{v: big.NewInt(0)} }

// NewAmount wraps an int64 count of smallest units. Panics if negative —
// callers construct Amounts from validated input only.
func NewAmount(units int64) Amount {
	if units < 0 {
		panic("chain: negative Amount")
	}
	return Amount{v: big.NewInt(units)}
}

// NewAmountFromString parses a base-10 integer string of smallest units.
func NewAmountFromString(s string) (Amount, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Amount{}, fmt.Errorf("chain: invalid amount %q", s)
	}
	if v.Sign() < 0 {
		return Amount{}, fmt.Errorf("chain: negative amount %q", s)
	}
	return Amount{v: v}, nil
}

// IsZero reports whether the amount is exactly zero.
func (a Amount) IsZero() bool { return a.v == nil || a.v.Sign() == 0 }

// Sign returns -1, 0, or +1 (always >= 0 for a validly constructed Amount).
func (a Amount) Sign() int {
	if a.v == nil {
		return 0
	}
	return a.v.Sign()
}

func (a Amount) big() *big.Int {
	if a.v == nil {
		return big.NewInt(0)
	}
	return a.v
}

// Add returns a + b.
func (a Amount) Add(b Amount) Amount {
	return Amount{v: new(big.Int).Add(a.big(), b.big())}
}

// Sub returns a - b, floored at zero (exposure accounting never goes
// negative — see internal/risk's exposure deactivation).
func (a Amount) Sub(b Amount) Amount {
	r := new(big.Int).Sub(a.big(), b.big())
	if r.Sign() < 0 {
		r = big.NewInt(0)
	}
	return Amount{v: r}
}

// Cmp compares a to b: -1, 0, +1.
func (a Amount) Cmp(b Amount) int { return a.big().Cmp(b.big()) }

// GreaterThan reports a > b.
func (a Amount) GreaterThan(b Amount) bool { return a.Cmp(b) > 0 }

// LessThan reports a < b.
func (a Amount) LessThan(b Amount) bool { return a.Cmp(b) < 0 }

// GreaterOrEqual reports a >= b.
func (a Amount) GreaterOrEqual(b Amount) bool { return a.Cmp(b) >= 0 }

// Min returns the smaller of a and b.
func (a Amount) Min(b Amount) Amount {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

// MulRat multiplies the amount by a rational scalar expressed as
// numerator/denominator, using integer arithmetic throughout
// (e.g. position sizing ratios). Truncates toward zero.
func (a Amount) MulRat(num, den int64) Amount {
	if den == 0 {
		return ZeroAmount()
	}
	r := new(big.Int).Mul(a.big(), big.NewInt(num))
	r.Div(r, big.NewInt(den))
	return Amount{v: r}
}

// ToFloat64ForScore converts to a float64. This is the ONLY permitted
// Amount→float boundary in the codebase, reserved for score/ratio
// computation (profitability margins, risk scores, confidence) per the
// spec's data-model invariant.
func (a Amount) ToFloat64ForScore() float64 {
	f := new(big.Float).SetInt(a.big())
	v, _ := f.Float64()
	return v
}

// Int64 returns the smallest-unit count as a machine integer (wei or
// satoshis), for chain-client adapters building raw transactions.
// Panics if the value overflows int64 — callers operate on
// validated order sizes, not arbitrary-precision totals.
func (a Amount) Int64() int64 {
	if !a.big().IsInt64() {
		panic("chain: amount overflows int64")
	}
	return a.big().Int64()
}

// DisplayUnits converts a smallest-unit Amount into c's display unit
// (ETH, BTC) for USD pricing arithmetic — the one conversion boundary
// shared by the Strategy Engine and Auction Participant.
func DisplayUnits(a Amount, c ID) float64 {
	return a.ToFloat64ForScore() / math.Pow10(c.Decimals())
}

// BigInt returns a copy of the underlying smallest-unit value, for
// chain-client adapters that need arbitrary precision (wei amounts can
// exceed int64 well before Bitcoin satoshi amounts do).
func (a Amount) BigInt() *big.Int {
	return new(big.Int).Set(a.big())
}

// String renders the base-10 integer value.
func (a Amount) String() string { return a.big().String() }

// MarshalJSON renders the amount as a JSON string to avoid float
// precision loss for large integer values: JSON numbers decode to
// float64 in most clients, which can't represent wei-scale integers
// exactly.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON accepts either a JSON string or a JSON number.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := NewAmountFromString(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
