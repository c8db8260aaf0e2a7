// Package ethereum is the E-chain client (CC-E): it talks to an EVM
// node over JSON-RPC and implements swap.EChainClientInterface against
// a deployed escrow contract — funding, secret-path redemption, and
// timelock refund. The escrow contract's bytecode is out of scope
// (spec's data model does not define it); this client only needs the
// contract's ABI surface to call it.
package ethereum

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/rawblock/swap-resolver/internal/swap"
	"github.com/rawblock/swap-resolver/pkg/chain"
	"github.com/rawblock/swap-resolver/pkg/models"
)

// escrowABI describes the minimal function surface the resolver drives
// on the deployed HTLC-style escrow contract. It intentionally says
// nothing about the contract's implementation.
const escrowABI = `[
	{"type":"function","name":"fund","stateMutability":"payable","inputs":[
		{"name":"escrowId","type":"bytes32"},
		{"name":"recipient","type":"address"},
		{"name":"secretHash","type":"bytes32"},
		{"name":"timelock","type":"uint256"}
	],"outputs":[]},
	{"type":"function","name":"redeem","stateMutability":"nonpayable","inputs":[
		{"name":"escrowId","type":"bytes32"},
		{"name":"secret","type":"bytes32"}
	],"outputs":[]},
	{"type":"function","name":"refund","stateMutability":"nonpayable","inputs":[
		{"name":"escrowId","type":"bytes32"}
	],"outputs":[]}
]`

var _ swap.EChainClientInterface = (*Client)(nil)

// Config carries the RPC endpoint, resolver signing key, and deployed
// escrow address.
type Config struct {
	RPCURL          string
	ContractAddress string
	PrivateKeyHex   string
	ChainID         int64
}

// Client wraps a JSON-RPC connection to an EVM node plus a bound
// handle to the escrow contract.
type Client struct {
	eth      *ethclient.Client
	contract *bind.BoundContract
	auth     *bind.TransactOpts
	chainID  *big.Int

	mu        sync.Mutex
	escrowIDs map[string][32]byte // funding tx hash -> escrowId
}

// NewClient dials the EVM node, parses the resolver's signing key, and
// binds the escrow contract's ABI.
func NewClient(cfg Config) (*Client, error) {
	eth, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("ethereum: dial %s: %w", cfg.RPCURL, err)
	}

	parsedABI, err := abi.JSON(strings.NewReader(escrowABI))
	if err != nil {
		return nil, fmt.Errorf("ethereum: parse escrow ABI: %w", err)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("ethereum: parse resolver private key: %w", err)
	}
	pub, ok := key.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("ethereum: resolver key has no ECDSA public key")
	}
	from := crypto.PubkeyToAddress(*pub)

	chainID := big.NewInt(cfg.ChainID)
	auth, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return nil, fmt.Errorf("ethereum: build transactor: %w", err)
	}

	contractAddr := common.HexToAddress(cfg.ContractAddress)
	contract := bind.NewBoundContract(contractAddr, parsedABI, eth, eth, eth)

	log.Printf("[ethereum] connected to %s as %s, escrow contract %s", cfg.RPCURL, from.Hex(), contractAddr.Hex())

	return &Client{
		eth:       eth,
		contract:  contract,
		auth:      auth,
		chainID:   chainID,
		escrowIDs: make(map[string][32]byte),
	}, nil
}

func legFor(order models.CrossChainSwapState, side swap.EscrowSide) (models.ChainLeg, models.TxRole, int64) {
	if side == swap.SideDestination {
		return order.Destination, models.RoleDestinationFund, order.Timelocks.Destination
	}
	return order.Source, models.RoleSourceFund, order.Timelocks.Source
}

// escrowID derives a deterministic on-chain identifier for orderID's
// side from its string OrderID, since the contract identifies escrows
// by bytes32, not by the relayer's order ID string.
func escrowID(orderID string, side swap.EscrowSide) [32]byte {
	return [32]byte(crypto.Keccak256Hash([]byte(orderID), []byte(side)))
}

// FundEscrow locks order's leg for side into the escrow contract.
func (c *Client) FundEscrow(ctx context.Context, order models.CrossChainSwapState, side swap.EscrowSide) (models.ExecutedTransaction, error) {
	leg, role, timelock := legFor(order, side)
	if !leg.ChainID.IsEthereum() {
		return models.ExecutedTransaction{}, fmt.Errorf("ethereum: leg %s is not an Ethereum chain", leg.ChainID)
	}

	id := escrowID(order.OrderID, side)
	recipient := common.HexToAddress(string(order.Maker))
	secretHash := [32]byte(order.SecretHash)

	amount := order.Amounts.Source
	if side == swap.SideDestination {
		amount = order.Amounts.Destination
	}

	c.mu.Lock()
	opts := *c.auth
	opts.Context = ctx
	opts.Value = amount.BigInt()
	tx, err := c.contract.Transact(&opts, "fund", id, recipient, secretHash, big.NewInt(timelock))
	if err == nil {
		c.escrowIDs[tx.Hash().Hex()] = id
	}
	c.mu.Unlock()
	if err != nil {
		return models.ExecutedTransaction{}, fmt.Errorf("ethereum: fund escrow: %w", err)
	}

	return models.ExecutedTransaction{
		Role:        role,
		ChainID:     leg.ChainID,
		TxID:        tx.Hash().Hex(),
		SubmittedAt: time.Now(),
	}, nil
}

// RedeemEscrow reveals secret to the escrow that was funded by txHash,
// claiming the locked amount.
func (c *Client) RedeemEscrow(ctx context.Context, txHash string, secret chain.Secret) (models.ExecutedTransaction, error) {
	c.mu.Lock()
	id, ok := c.escrowIDs[txHash]
	c.mu.Unlock()
	if !ok {
		return models.ExecutedTransaction{}, fmt.Errorf("ethereum: no escrow tracked for funding tx %s", txHash)
	}

	c.mu.Lock()
	opts := *c.auth
	opts.Context = ctx
	tx, err := c.contract.Transact(&opts, "redeem", id, [32]byte(secret))
	c.mu.Unlock()
	if err != nil {
		return models.ExecutedTransaction{}, fmt.Errorf("ethereum: redeem escrow: %w", err)
	}

	return models.ExecutedTransaction{
		Role:        models.RoleRedeem,
		TxID:        tx.Hash().Hex(),
		SubmittedAt: time.Now(),
	}, nil
}

// RefundEscrow reclaims the escrow that was funded by txHash once its
// timelock has elapsed.
func (c *Client) RefundEscrow(ctx context.Context, txHash string) (models.ExecutedTransaction, error) {
	c.mu.Lock()
	id, ok := c.escrowIDs[txHash]
	c.mu.Unlock()
	if !ok {
		return models.ExecutedTransaction{}, fmt.Errorf("ethereum: no escrow tracked for funding tx %s", txHash)
	}

	c.mu.Lock()
	opts := *c.auth
	opts.Context = ctx
	tx, err := c.contract.Transact(&opts, "refund", id)
	c.mu.Unlock()
	if err != nil {
		return models.ExecutedTransaction{}, fmt.Errorf("ethereum: refund escrow: %w", err)
	}

	return models.ExecutedTransaction{
		Role:        models.RoleRefund,
		TxID:        tx.Hash().Hex(),
		SubmittedAt: time.Now(),
	}, nil
}

// WaitForConfirmation polls for txHash's receipt until it has at least
// confirmations block confirmations or timeout elapses.
func (c *Client) WaitForConfirmation(ctx context.Context, txHash string, confirmations int, timeout time.Duration) error {
	hash := common.HexToHash(txHash)

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		receipt, err := c.eth.TransactionReceipt(ctx, hash)
		if err == nil {
			head, headErr := c.eth.BlockNumber(ctx)
			if headErr == nil && receipt.BlockNumber != nil {
				confirmed := int64(head) - receipt.BlockNumber.Int64() + 1
				if confirmed >= int64(confirmations) {
					return nil
				}
			}
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("ethereum: timed out waiting for %d confirmations on %s", confirmations, txHash)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
