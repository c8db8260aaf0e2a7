package swap

import (
	"fmt"
	"log"
	"sort"
)

// UTXO is a spendable output the coin selector chooses from.
type UTXO struct {
	TxID  string
	Vout  uint32
	Value int64 // satoshis
}

// maxDPSum bounds the pseudo-polynomial subset-sum lane: above this
// total value the DP table itself becomes too large to be worth
// building. SelectUTXOs falls back to greedy largest-first selection
// above the bound, which is always correct (just not minimal-set).
const maxDPSum = 500_000

// SelectUTXOs picks a subset of utxos whose sum covers at least target
// (amount + estimated fee), preferring the smallest number of inputs
// when the candidate pool's total value is small enough for the
// bounded subset-sum DP; otherwise falls back to greedy largest-first
// selection.
func SelectUTXOs(utxos []UTXO, target int64) ([]UTXO, error) {
	if target <= 0 {
		return nil, nil
	}

	var total int64
	for _, u := range utxos {
		total += u.Value
	}
	if total < target {
		return nil, errInsufficientFunds(total, target)
	}

	if total <= maxDPSum {
		if selected, ok := selectMinimalSubset(utxos, target); ok {
			return selected, nil
		}
		log.Printf("[swap] DP coin selection found no exact-bounded subset for target %d, falling back to greedy", target)
	}

	return selectGreedy(utxos, target)
}

// selectMinimalSubset runs a bounded subset-sum DP to find the
// smallest-cardinality subset of utxos summing to >= target. dp[s]
// records the minimum input count needed to reach sum s exactly;
// the answer is the smallest s >= target with a finite count.
func selectMinimalSubset(utxos []UTXO, target int64) ([]UTXO, bool) {
	var maxSum int64
	for _, u := range utxos {
		maxSum += u.Value
	}
	if maxSum > maxDPSum {
		return nil, false
	}

	const unreachable = 1 << 30
	dp := make([]int, maxSum+1)
	choice := make([][]int, maxSum+1) // choice[s] = indices of utxos used to reach s, for the best-known count
	for i := range dp {
		dp[i] = unreachable
	}
	dp[0] = 0

	for i, u := range utxos {
		v := u.Value
		for s := maxSum; s >= v; s-- {
			if dp[s-v] != unreachable && dp[s-v]+1 < dp[s] {
				dp[s] = dp[s-v] + 1
				prior := append([]int(nil), choice[s-v]...)
				choice[s] = append(prior, i)
			}
		}
	}

	bestSum := int64(-1)
	bestCount := unreachable
	for s := target; s <= maxSum; s++ {
		if dp[s] != unreachable && dp[s] < bestCount {
			bestCount = dp[s]
			bestSum = s
		}
	}
	if bestSum < 0 {
		return nil, false
	}

	indices := choice[bestSum]
	out := make([]UTXO, 0, len(indices))
	for _, idx := range indices {
		out = append(out, utxos[idx])
	}
	return out, true
}

// selectGreedy picks largest-value UTXOs first until the running sum
// reaches target. Always terminates when total >= target.
func selectGreedy(utxos []UTXO, target int64) ([]UTXO, error) {
	sorted := append([]UTXO(nil), utxos...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Value > sorted[j].Value })

	var sum int64
	var out []UTXO
	for _, u := range sorted {
		if sum >= target {
			break
		}
		out = append(out, u)
		sum += u.Value
	}
	if sum < target {
		return nil, errInsufficientFunds(sum, target)
	}
	return out, nil
}

func errInsufficientFunds(have, need int64) error {
	return fmt.Errorf("swap: insufficient UTXO funds: have %d, need %d", have, need)
}
