package strategy

import (
	"github.com/rawblock/swap-resolver/pkg/chain"
)

// displayUnits converts an Amount (smallest-unit integer) to the
// chain's display unit (ETH, BTC) for USD pricing arithmetic. This is
// the only place strategies touch raw float amounts; chain.Amount's
// own ToFloat64ForScore boundary is used, never a manual float parse.
func displayUnits(a chain.Amount, c chain.ID) float64 {
	return chain.DisplayUnits(a, c)
}
