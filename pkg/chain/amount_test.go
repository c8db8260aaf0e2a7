package chain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAmountArithmetic(t *testing.T) {
	a := NewAmount(100)
	b := NewAmount(40)

	assert.Equal(t, "140", a.Add(b).String())
	assert.Equal(t, "60", a.Sub(b).String())
	assert.True(t, a.GreaterThan(b))
	assert.True(t, b.LessThan(a))
	assert.Equal(t, a, a.Min(a.Add(b)))
}

func TestAmountSubFloorsAtZero(t *testing.T) {
	a := NewAmount(10)
	b := NewAmount(40)
	assert.True(t, a.Sub(b).IsZero())
}

func TestAmountFromStringRejectsNegative(t *testing.T) {
	_, err := NewAmountFromString("-5")
	assert.Error(t, err)
}

func TestAmountFromStringRejectsGarbage(t *testing.T) {
	_, err := NewAmountFromString("not-a-number")
	assert.Error(t, err)
}

func TestAmountJSONRoundTrip(t *testing.T) {
	a := NewAmount(123456789)
	data, err := json.Marshal(a)
	require.NoError(t, err)
	assert.Equal(t, `"123456789"`, string(data))

	var parsed Amount
	require.NoError(t, json.Unmarshal(data, &parsed))
	assert.Equal(t, 0, a.Cmp(parsed))
}

func TestAmountMulRat(t *testing.T) {
	a := NewAmount(1000)
	half := a.MulRat(1, 2)
	assert.Equal(t, "500", half.String())
}

func TestDisplayUnitsUsesChainDecimals(t *testing.T) {
	oneEth := NewAmount(1_000_000_000_000_000_000)
	assert.InDelta(t, 1.0, DisplayUnits(oneEth, EMainnet), 1e-9)

	oneBtc := NewAmount(100_000_000)
	assert.InDelta(t, 1.0, DisplayUnits(oneBtc, BMainnet), 1e-9)
}

func TestChainIDClassification(t *testing.T) {
	assert.True(t, BMainnet.IsBitcoin())
	assert.False(t, BMainnet.IsEthereum())
	assert.True(t, EMainnet.IsEthereum())
	assert.False(t, EMainnet.IsBitcoin())
	assert.True(t, EMainnet.Valid())
	assert.False(t, Unknown.Valid())
}
