package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// SHA-256(secret) == secretHash for every successful execution;
// ValidateSecret returns true iff this holds.
func TestValidateSecretRoundTrip(t *testing.T) {
	secret, err := GenerateSecret()
	require.NoError(t, err)

	hash := HashSecret(secret)
	assert.True(t, ValidateSecret(secret, hash))

	var wrong Secret
	copy(wrong[:], secret[:])
	wrong[0] ^= 0xFF
	assert.False(t, ValidateSecret(wrong, hash))
}

func TestValidateSecretZeroBytes(t *testing.T) {
	var secret Secret // 32 zero bytes is a valid, if unlikely, secret
	hash := HashSecret(secret)
	assert.True(t, ValidateSecret(secret, hash))
}

func TestHashFromHexRoundTrip(t *testing.T) {
	secret, err := GenerateSecret()
	require.NoError(t, err)
	hash := HashSecret(secret)

	parsed, err := HashFromHex(hash.String())
	require.NoError(t, err)
	assert.Equal(t, hash, parsed)
}

func TestHashFromHexRejectsWrongLength(t *testing.T) {
	_, err := HashFromHex("abcd")
	assert.Error(t, err)
}

func TestSecretFromHexRoundTrip(t *testing.T) {
	secret, err := GenerateSecret()
	require.NoError(t, err)

	parsed, err := SecretFromHex(secret.String())
	require.NoError(t, err)
	assert.Equal(t, secret, parsed)
}
