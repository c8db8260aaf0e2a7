package swap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectUTXOsCoversTarget(t *testing.T) {
	utxos := []UTXO{
		{TxID: "a", Value: 1000},
		{TxID: "b", Value: 2000},
		{TxID: "c", Value: 500},
	}
	selected, err := SelectUTXOs(utxos, 2500)
	require.NoError(t, err)

	var sum int64
	for _, u := range selected {
		sum += u.Value
	}
	assert.GreaterOrEqual(t, sum, int64(2500))
}

func TestSelectUTXOsInsufficientFunds(t *testing.T) {
	utxos := []UTXO{{TxID: "a", Value: 100}}
	_, err := SelectUTXOs(utxos, 1000)
	assert.Error(t, err)
}

func TestSelectUTXOsZeroTarget(t *testing.T) {
	selected, err := SelectUTXOs(nil, 0)
	require.NoError(t, err)
	assert.Nil(t, selected)
}

func TestSelectUTXOsFallsBackToGreedyAboveDPBound(t *testing.T) {
	utxos := []UTXO{
		{TxID: "a", Value: maxDPSum/2 + 1000},
		{TxID: "b", Value: maxDPSum/2 + 1000},
		{TxID: "c", Value: 100},
	}
	selected, err := SelectUTXOs(utxos, maxDPSum/2+500)
	require.NoError(t, err)

	var sum int64
	for _, u := range selected {
		sum += u.Value
	}
	assert.GreaterOrEqual(t, sum, int64(maxDPSum/2+500))
}

func TestSelectUTXOsExactMatch(t *testing.T) {
	utxos := []UTXO{
		{TxID: "a", Value: 300},
		{TxID: "b", Value: 700},
	}
	selected, err := SelectUTXOs(utxos, 1000)
	require.NoError(t, err)

	var sum int64
	for _, u := range selected {
		sum += u.Value
	}
	assert.Equal(t, int64(1000), sum)
}
