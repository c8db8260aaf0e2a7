// Package bitcoin is the B-chain client (CC-B): it talks to a Bitcoin
// Core node over RPC and implements swap.BChainClientInterface —
// HTLC funding, secret-path redemption, timelock refund, UTXO
// selection and confirmation polling.
package bitcoin

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/rawblock/swap-resolver/internal/swap"
	"github.com/rawblock/swap-resolver/pkg/chain"
	"github.com/rawblock/swap-resolver/pkg/models"
)

// Config carries RPC connection parameters for a bitcoind node.
type Config struct {
	Host string
	User string
	Pass string
	Net  *chaincfg.Params
}

// Client wraps an RPC connection to a Bitcoin Core node.
type Client struct {
	RPC    *rpcclient.Client
	Config Config
}

var _ swap.BChainClientInterface = (*Client)(nil)

// NewClient connects to the node and verifies liveness with a
// GetBlockCount round-trip before returning, so a bad RPC endpoint
// fails at startup rather than on the first real call.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Net == nil {
		cfg.Net = &chaincfg.MainNetParams
	}
	connCfg := &rpcclient.ConnConfig{
		Host:         cfg.Host,
		User:         cfg.User,
		Pass:         cfg.Pass,
		HTTPPostMode: true,
		DisableTLS:   true,
	}

	log.Printf("[bitcoin] connecting to RPC at %s...", cfg.Host)
	client, err := rpcclient.New(connCfg, nil)
	if err != nil {
		return nil, err
	}

	blockCount, err := client.GetBlockCount()
	if err != nil {
		client.Shutdown()
		return nil, err
	}
	log.Printf("[bitcoin] connected, tip height %d", blockCount)

	return &Client{RPC: client, Config: cfg}, nil
}

// Shutdown closes the RPC connection.
func (c *Client) Shutdown() {
	c.RPC.Shutdown()
}

// BuildHTLC constructs the two-branch HTLC script and its P2WSH
// output, delegating script construction to swap.BuildHTLCOutput.
func (c *Client) BuildHTLC(ctx context.Context, params models.HTLCParams) (models.HTLCOutput, error) {
	userPubkey, err := addressPubkey(c.RPC, string(params.Recipient))
	if err != nil {
		return models.HTLCOutput{}, fmt.Errorf("bitcoin: resolve recipient pubkey: %w", err)
	}
	resolverPubkey, err := addressPubkey(c.RPC, string(params.Sender))
	if err != nil {
		return models.HTLCOutput{}, fmt.Errorf("bitcoin: resolve sender pubkey: %w", err)
	}
	return swap.BuildHTLCOutput(params, userPubkey, resolverPubkey, c.Config.Net)
}

// addressPubkey asks the wallet for the public key backing addr. In
// production this requires the address to be wallet-owned (imported
// via importaddress/importdescriptors) or the caller must supply keys
// out of band; here it uses getaddressinfo against the node's
// watch-only wallet.
func addressPubkey(rpc *rpcclient.Client, addr string) ([]byte, error) {
	addrParam, err := json.Marshal(addr)
	if err != nil {
		return nil, err
	}
	raw, err := rpc.RawRequest("getaddressinfo", []json.RawMessage{addrParam})
	if err != nil {
		return nil, err
	}
	var info struct {
		PubKey string `json:"pubkey"`
	}
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, err
	}
	if info.PubKey == "" {
		return nil, fmt.Errorf("bitcoin: no pubkey on file for %s", addr)
	}
	return hex.DecodeString(info.PubKey)
}

// GetUTXOs lists spendable outputs for addr with at least minConf
// confirmations, via the wallet's listunspent.
func (c *Client) GetUTXOs(ctx context.Context, addr chain.Address, minConf int) ([]swap.UTXO, error) {
	result, err := c.RPC.ListUnspentMinMaxAddresses(minConf, 9999999, []btcutil.Address{})
	if err != nil {
		return nil, fmt.Errorf("bitcoin: list unspent: %w", err)
	}

	out := make([]swap.UTXO, 0, len(result))
	for _, u := range result {
		if u.Address != string(addr) {
			continue
		}
		amt, err := btcutil.NewAmount(u.Amount)
		if err != nil {
			continue
		}
		out = append(out, swap.UTXO{TxID: u.TxID, Vout: u.Vout, Value: int64(amt)})
	}
	return out, nil
}

// SelectUTXOs fetches candidate outputs for addr and runs the
// resolver's coin selector over them.
func (c *Client) SelectUTXOs(ctx context.Context, addr chain.Address, minAmount chain.Amount) ([]swap.UTXO, error) {
	utxos, err := c.GetUTXOs(ctx, addr, 1)
	if err != nil {
		return nil, err
	}
	return swap.SelectUTXOs(utxos, minAmount.Int64())
}

// FundHTLC assembles and broadcasts the funding transaction that pays
// amount into output's P2WSH address. When privKey is nil, the node's
// own wallet signs the inputs (signrawtransactionwithwallet); a
// non-nil privKey signs locally for a single-key UTXO source.
func (c *Client) FundHTLC(ctx context.Context, output models.HTLCOutput, amount chain.Amount, utxos []swap.UTXO, privKey []byte, changeAddr chain.Address, feeRate int64) (string, error) {
	if len(utxos) == 0 {
		return "", fmt.Errorf("bitcoin: no UTXOs supplied to fund HTLC")
	}

	scriptPubKey, err := swap.WitnessScriptHash(output.Script)
	if err != nil {
		return "", err
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	var total int64
	for _, u := range utxos {
		hash, err := chainhash.NewHashFromStr(u.TxID)
		if err != nil {
			return "", fmt.Errorf("bitcoin: bad utxo txid %s: %w", u.TxID, err)
		}
		tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(hash, u.Vout), nil, nil))
		total += u.Value
	}

	tx.AddTxOut(wire.NewTxOut(amount.Int64(), scriptPubKey))

	fee := feeRate * swap.EstimateFundingVSize(len(utxos), 2)
	if fee <= 0 {
		fee = 1000
	}
	change := total - amount.Int64() - fee
	if change > 0 {
		changeScript, err := addressScript(changeAddr, c.Config.Net)
		if err != nil {
			return "", fmt.Errorf("bitcoin: change address script: %w", err)
		}
		tx.AddTxOut(wire.NewTxOut(change, changeScript))
	}

	if privKey != nil {
		if err := signAllInputsWithKey(tx, utxos, privKey); err != nil {
			return "", fmt.Errorf("bitcoin: sign funding tx: %w", err)
		}
		return c.sendRawTx(tx)
	}
	return c.signWithWalletAndSend(tx)
}

// RedeemHTLC spends utxo (the HTLC output) down the secret-reveal
// branch, paying to addr.
func (c *Client) RedeemHTLC(ctx context.Context, utxo swap.UTXO, output models.HTLCOutput, secret chain.Secret, privKey []byte, addr chain.Address, feeRate int64) (string, error) {
	if !chain.ValidateSecret(secret, output.Params.SecretHash) {
		return "", fmt.Errorf("bitcoin: secret does not match HTLC hash, refusing to broadcast")
	}
	tx, err := c.buildHTLCSpend(utxo, output, addr, feeRate, swap.RedeemSizeVBytes)
	if err != nil {
		return "", err
	}

	sig, err := signHTLCInput(tx, 0, output.Script, utxo.Value, privKey)
	if err != nil {
		return "", fmt.Errorf("bitcoin: sign redeem: %w", err)
	}
	tx.TxIn[0].Witness = swap.RedeemWitnessStack(sig, secret, output.Script)

	return c.sendRawTx(tx)
}

// RefundHTLC spends utxo down the timelock branch once timelock has
// elapsed, paying to addr.
func (c *Client) RefundHTLC(ctx context.Context, utxo swap.UTXO, output models.HTLCOutput, privKey []byte, addr chain.Address, timelock int64, feeRate int64) (string, error) {
	tx, err := c.buildHTLCSpend(utxo, output, addr, feeRate, swap.RefundSizeVBytes)
	if err != nil {
		return "", err
	}
	tx.LockTime = uint32(timelock)
	tx.TxIn[0].Sequence = wire.MaxTxInSequenceNum - 1

	sig, err := signHTLCInput(tx, 0, output.Script, utxo.Value, privKey)
	if err != nil {
		return "", fmt.Errorf("bitcoin: sign refund: %w", err)
	}
	tx.TxIn[0].Witness = swap.RefundWitnessStack(sig, output.Script)

	return c.sendRawTx(tx)
}

func (c *Client) buildHTLCSpend(utxo swap.UTXO, output models.HTLCOutput, addr chain.Address, feeRate int64, spendVBytes int64) (*wire.MsgTx, error) {
	hash, err := chainhash.NewHashFromStr(utxo.TxID)
	if err != nil {
		return nil, fmt.Errorf("bitcoin: bad utxo txid %s: %w", utxo.TxID, err)
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(hash, utxo.Vout), nil, nil))

	fee := feeRate * spendVBytes
	if fee <= 0 {
		fee = 500
	}
	payout := utxo.Value - fee
	if payout <= 0 {
		return nil, fmt.Errorf("bitcoin: utxo value %d too small to cover fee %d", utxo.Value, fee)
	}

	outScript, err := addressScript(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("bitcoin: recipient address script: %w", err)
	}
	tx.AddTxOut(wire.NewTxOut(payout, outScript))
	return tx, nil
}

// Broadcast submits a raw signed transaction hex string to the
// network.
func (c *Client) Broadcast(ctx context.Context, txHex string) (string, error) {
	raw, err := hex.DecodeString(txHex)
	if err != nil {
		return "", fmt.Errorf("bitcoin: decode tx hex: %w", err)
	}
	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return "", fmt.Errorf("bitcoin: deserialize tx: %w", err)
	}
	return c.sendRawTx(tx)
}

// ExtractSecret reads the witness of a confirmed redeem transaction
// and pulls out the secret pushed in its IF-branch stack item (the
// resolved "secret reveal" mechanism: the spend itself carries the
// secret on-chain, there is no separate broadcast).
func (c *Client) ExtractSecret(ctx context.Context, txHex string, redeemScript []byte) (*chain.Secret, error) {
	raw, err := hex.DecodeString(txHex)
	if err != nil {
		return nil, fmt.Errorf("bitcoin: decode tx hex: %w", err)
	}
	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("bitcoin: deserialize tx: %w", err)
	}
	for _, in := range tx.TxIn {
		if len(in.Witness) == 4 && len(in.Witness[1]) == 32 {
			var s chain.Secret
			copy(s[:], in.Witness[1])
			return &s, nil
		}
	}
	return nil, fmt.Errorf("bitcoin: no secret-reveal witness found")
}

// WaitForConfirmation polls getrawtransaction until txid has at least
// confirmations confirmations or timeout elapses.
func (c *Client) WaitForConfirmation(ctx context.Context, txid string, confirmations int, timeout time.Duration) error {
	hash, err := chainhash.NewHashFromStr(txid)
	if err != nil {
		return fmt.Errorf("bitcoin: bad txid %s: %w", txid, err)
	}

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		info, err := c.RPC.GetRawTransactionVerbose(hash)
		if err == nil && info.Confirmations >= uint64(confirmations) {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("bitcoin: timed out waiting for %d confirmations on %s", confirmations, txid)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) sendRawTx(tx *wire.MsgTx) (string, error) {
	hash, err := c.RPC.SendRawTransaction(tx, false)
	if err != nil {
		return "", fmt.Errorf("bitcoin: broadcast: %w", err)
	}
	return hash.String(), nil
}

// signWithWalletAndSend asks the node's own wallet to sign every
// input (it must hold keys for the inputs supplied) and broadcasts
// the result.
func (c *Client) signWithWalletAndSend(tx *wire.MsgTx) (string, error) {
	signed, complete, err := c.RPC.SignRawTransactionWithWallet(tx)
	if err != nil {
		return "", fmt.Errorf("bitcoin: wallet sign: %w", err)
	}
	if !complete {
		return "", fmt.Errorf("bitcoin: wallet could not fully sign funding transaction")
	}
	return c.sendRawTx(signed)
}

func signAllInputsWithKey(tx *wire.MsgTx, utxos []swap.UTXO, privKeyBytes []byte) error {
	priv, _ := btcec.PrivKeyFromBytes(privKeyBytes)
	for i := range tx.TxIn {
		prevScript, err := p2wpkhScript(priv.PubKey().SerializeCompressed())
		if err != nil {
			return err
		}
		sig, err := txscript.RawTxInWitnessSignature(tx, txscript.NewTxSigHashes(tx, nil), i, utxos[i].Value, prevScript, txscript.SigHashAll, priv)
		if err != nil {
			return err
		}
		tx.TxIn[i].Witness = wire.TxWitness{sig, priv.PubKey().SerializeCompressed()}
	}
	return nil
}

func signHTLCInput(tx *wire.MsgTx, idx int, witnessScript []byte, amount int64, privKeyBytes []byte) ([]byte, error) {
	if privKeyBytes == nil {
		return nil, fmt.Errorf("bitcoin: HTLC branch spends require an explicit signing key")
	}
	priv, _ := btcec.PrivKeyFromBytes(privKeyBytes)
	return txscript.RawTxInWitnessSignature(tx, txscript.NewTxSigHashes(tx, nil), idx, amount, witnessScript, txscript.SigHashAll, priv)
}

func addressScript(addr chain.Address, net *chaincfg.Params) ([]byte, error) {
	if net == nil {
		net = &chaincfg.MainNetParams
	}
	decoded, err := btcutil.DecodeAddress(string(addr), net)
	if err != nil {
		return nil, err
	}
	return txscript.PayToAddrScript(decoded)
}

func p2wpkhScript(pubKey []byte) ([]byte, error) {
	hash := btcutil.Hash160(pubKey)
	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_0)
	builder.AddData(hash)
	return builder.Script()
}

// EstimateSmartFeeSatVB returns the wallet's fee estimate in sat/vB
// for the given confirmation target, falling back through
// CONSERVATIVE -> ECONOMICAL -> the mempool's minimum relay floor so a
// node with sparse fee history still returns a usable number.
func (c *Client) EstimateSmartFeeSatVB(confTarget int64) (float64, error) {
	mode := btcjson.EstimateModeConservative
	est, err := c.RPC.EstimateSmartFee(confTarget, &mode)
	if err == nil && est.FeeRate != nil {
		return *est.FeeRate * 100000, nil
	}
	mode = btcjson.EstimateModeEconomical
	est, err = c.RPC.EstimateSmartFee(confTarget, &mode)
	if err == nil && est.FeeRate != nil {
		return *est.FeeRate * 100000, nil
	}
	info, err := c.RPC.GetMempoolInfo()
	if err != nil {
		return 0, fmt.Errorf("bitcoin: no fee estimate available: %w", err)
	}
	return info.MinRelayTxFee * 100000, nil
}
