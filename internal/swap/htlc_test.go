package swap

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rawblock/swap-resolver/pkg/chain"
)

func testPubkeys() (user, resolver []byte) {
	user = make([]byte, 33)
	user[0] = 0x02
	for i := 1; i < 33; i++ {
		user[i] = byte(i)
	}
	resolver = make([]byte, 33)
	resolver[0] = 0x03
	for i := 1; i < 33; i++ {
		resolver[i] = byte(64 - i)
	}
	return user, resolver
}

// Script construction is deterministic: given identical HTLCParams, the constructed
// redeemScript, scriptPubKey, and address are byte-identical across runs.
func TestBuildHTLCScriptIsDeterministic(t *testing.T) {
	secret, err := chain.GenerateSecret()
	require.NoError(t, err)
	hash := chain.HashSecret(secret)
	userPK, resolverPK := testPubkeys()

	script1, err := BuildHTLCScript(hash, userPK, resolverPK, 1700000000)
	require.NoError(t, err)
	script2, err := BuildHTLCScript(hash, userPK, resolverPK, 1700000000)
	require.NoError(t, err)
	assert.Equal(t, script1, script2)

	spk1, err := WitnessScriptHash(script1)
	require.NoError(t, err)
	spk2, err := WitnessScriptHash(script2)
	require.NoError(t, err)
	assert.Equal(t, spk1, spk2)

	addr1, err := DeriveHTLCAddress(spk1, &chaincfg.RegressionNetParams)
	require.NoError(t, err)
	addr2, err := DeriveHTLCAddress(spk2, &chaincfg.RegressionNetParams)
	require.NoError(t, err)
	assert.Equal(t, addr1, addr2)
}

func TestBuildHTLCScriptRejectsBadPubkeyLength(t *testing.T) {
	secret, _ := chain.GenerateSecret()
	hash := chain.HashSecret(secret)
	_, resolverPK := testPubkeys()
	_, err := BuildHTLCScript(hash, []byte{0x02, 0x03}, resolverPK, 1700000000)
	assert.Error(t, err)
}

func TestBuildHTLCScriptRejectsOutOfRangeTimelock(t *testing.T) {
	secret, _ := chain.GenerateSecret()
	hash := chain.HashSecret(secret)
	userPK, resolverPK := testPubkeys()

	_, err := BuildHTLCScript(hash, userPK, resolverPK, 0)
	assert.Error(t, err)

	_, err = BuildHTLCScript(hash, userPK, resolverPK, 1<<32)
	assert.Error(t, err)
}

func TestWitnessStacksMatchSpecOrder(t *testing.T) {
	secret, _ := chain.GenerateSecret()
	sig := []byte{0xde, 0xad, 0xbe, 0xef}
	script := []byte{0x01, 0x02}

	redeem := RedeemWitnessStack(sig, secret, script)
	require.Len(t, redeem, 4)
	assert.Equal(t, sig, redeem[0])
	assert.Equal(t, secret[:], redeem[1])
	assert.Equal(t, []byte{0x01}, redeem[2])
	assert.Equal(t, script, redeem[3])

	refund := RefundWitnessStack(sig, script)
	require.Len(t, refund, 3)
	assert.Equal(t, sig, refund[0])
	assert.Equal(t, []byte{}, refund[1])
	assert.Equal(t, script, refund[2])
}

func TestEstimateFundingVSize(t *testing.T) {
	size := EstimateFundingVSize(2, 2)
	assert.Equal(t, int64(68*2+34*2+12), size)
}
