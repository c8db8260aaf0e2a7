// Package swap implements the Swap Executor (SX): the atomic-swap
// state machine, B-chain HTLC script construction, and UTXO selection.
package swap

import (
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"

	"github.com/rawblock/swap-resolver/pkg/chain"
	"github.com/rawblock/swap-resolver/pkg/models"
)

// Fee-estimation size constants, in vbytes: redeem spends one P2WSH
// input down the IF branch, refund down the ELSE branch, and funding
// transactions vary by input/output count.
const (
	RedeemSizeVBytes     = 150
	RefundSizeVBytes     = 140
	FundingInputVBytes   = 68
	FundingOutputVBytes  = 34
	FundingOverheadVBytes = 10 + 2
)

// BuildHTLCScript constructs the two-branch hash-timelock witness
// script: spend via the secret (IF) branch, or via the timelock (ELSE)
// branch once it has expired.
//
//	OP_IF
//	  OP_SHA256 <secretHash(32)> OP_EQUALVERIFY <userPubkey> OP_CHECKSIG
//	OP_ELSE
//	  <timelock> OP_CHECKLOCKTIMEVERIFY OP_DROP <resolverPubkey> OP_CHECKSIG
//	OP_ENDIF
func BuildHTLCScript(secretHash chain.Hash, userPubkey, resolverPubkey []byte, timelock int64) ([]byte, error) {
	if err := validateHTLCParams(secretHash, userPubkey, resolverPubkey, timelock); err != nil {
		return nil, err
	}

	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_IF)
	builder.AddOp(txscript.OP_SHA256)
	builder.AddData(secretHash[:])
	builder.AddOp(txscript.OP_EQUALVERIFY)
	builder.AddData(userPubkey)
	builder.AddOp(txscript.OP_CHECKSIG)
	builder.AddOp(txscript.OP_ELSE)
	builder.AddInt64(timelock)
	builder.AddOp(txscript.OP_CHECKLOCKTIMEVERIFY)
	builder.AddOp(txscript.OP_DROP)
	builder.AddData(resolverPubkey)
	builder.AddOp(txscript.OP_CHECKSIG)
	builder.AddOp(txscript.OP_ENDIF)

	return builder.Script()
}

func validateHTLCParams(secretHash chain.Hash, userPubkey, resolverPubkey []byte, timelock int64) error {
	if len(secretHash) != 32 {
		return fmt.Errorf("swap: secretHash must be 32 bytes, got %d", len(secretHash))
	}
	if !validPubkeyLen(userPubkey) {
		return fmt.Errorf("swap: userPubkey must be 33 or 65 bytes, got %d", len(userPubkey))
	}
	if !validPubkeyLen(resolverPubkey) {
		return fmt.Errorf("swap: resolverPubkey must be 33 or 65 bytes, got %d", len(resolverPubkey))
	}
	if timelock <= 0 || timelock >= 1<<32-1 {
		return fmt.Errorf("swap: timelock %d out of range (0, 2^32-1)", timelock)
	}
	return nil
}

func validPubkeyLen(pk []byte) bool {
	return len(pk) == 33 || len(pk) == 65
}

// WitnessScriptHash returns the P2WSH scriptPubKey for a witness
// script: OP_0 || SHA-256(witnessScript).
func WitnessScriptHash(witnessScript []byte) ([]byte, error) {
	hash := sha256.Sum256(witnessScript)
	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_0)
	builder.AddData(hash[:])
	return builder.Script()
}

// DeriveHTLCAddress renders the P2WSH scriptPubKey as a bech32 address
// on the given network.
func DeriveHTLCAddress(scriptPubKey []byte, params *chaincfg.Params) (string, error) {
	addr, err := btcutil.NewAddressWitnessScriptHash(scriptPubKeyHash(scriptPubKey), params)
	if err != nil {
		return "", fmt.Errorf("swap: derive HTLC address: %w", err)
	}
	return addr.EncodeAddress(), nil
}

// scriptPubKeyHash extracts the 32-byte witness program from a P2WSH
// scriptPubKey (OP_0 <0x20> <32-byte-hash>).
func scriptPubKeyHash(scriptPubKey []byte) []byte {
	if len(scriptPubKey) != 34 {
		return nil
	}
	return scriptPubKey[2:]
}

// BuildHTLCOutput constructs the full chain-agnostic HTLCOutput record
// the Swap Executor persists and funds against.
func BuildHTLCOutput(params models.HTLCParams, userPubkey, resolverPubkey []byte, netParams *chaincfg.Params) (models.HTLCOutput, error) {
	witnessScript, err := BuildHTLCScript(params.SecretHash, userPubkey, resolverPubkey, params.Timelock)
	if err != nil {
		return models.HTLCOutput{}, err
	}
	scriptPubKey, err := WitnessScriptHash(witnessScript)
	if err != nil {
		return models.HTLCOutput{}, fmt.Errorf("swap: build scriptPubKey: %w", err)
	}
	addr, err := DeriveHTLCAddress(scriptPubKey, netParams)
	if err != nil {
		return models.HTLCOutput{}, err
	}
	return models.HTLCOutput{
		Params:  params,
		Script:  witnessScript,
		Address: chain.Address(addr),
	}, nil
}

// RedeemWitnessStack assembles the witness stack for the secret-reveal
// (IF) branch: [signature, secret, 0x01, witnessScript].
func RedeemWitnessStack(signature []byte, secret chain.Secret, witnessScript []byte) [][]byte {
	return [][]byte{signature, secret[:], {0x01}, witnessScript}
}

// RefundWitnessStack assembles the witness stack for the timelock (ELSE)
// branch: [signature, EMPTY, witnessScript].
func RefundWitnessStack(signature []byte, witnessScript []byte) [][]byte {
	return [][]byte{signature, {}, witnessScript}
}

// EstimateFundingVSize estimates a funding transaction's virtual size
// given its input/output counts, for fee-rate budgeting before signing.
func EstimateFundingVSize(numInputs, numOutputs int) int64 {
	return int64(FundingInputVBytes*numInputs + FundingOutputVBytes*numOutputs + FundingOverheadVBytes)
}
