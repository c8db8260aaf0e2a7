package swap

import (
	"context"
	"time"

	"github.com/rawblock/swap-resolver/pkg/chain"
	"github.com/rawblock/swap-resolver/pkg/models"
)

// EscrowSide identifies which leg of the order an E-chain escrow call
// concerns.
type EscrowSide string

const (
	SideSource      EscrowSide = "source"
	SideDestination EscrowSide = "destination"
)

// EChainClientInterface is the E-chain adapter boundary
// internal/ethereum implements: fund, redeem, refund, and wait for
// confirmation on the escrow contract.
type EChainClientInterface interface {
	FundEscrow(ctx context.Context, order models.CrossChainSwapState, side EscrowSide) (models.ExecutedTransaction, error)
	RedeemEscrow(ctx context.Context, txHash string, secret chain.Secret) (models.ExecutedTransaction, error)
	RefundEscrow(ctx context.Context, txHash string) (models.ExecutedTransaction, error)
	WaitForConfirmation(ctx context.Context, txHash string, confirmations int, timeout time.Duration) error
}

// BChainClientInterface is the CC-B adapter boundary internal/bitcoin
// implements.
type BChainClientInterface interface {
	BuildHTLC(ctx context.Context, params models.HTLCParams) (models.HTLCOutput, error)
	SelectUTXOs(ctx context.Context, addr chain.Address, minAmount chain.Amount) ([]UTXO, error)
	FundHTLC(ctx context.Context, output models.HTLCOutput, amount chain.Amount, utxos []UTXO, privKey []byte, changeAddr chain.Address, feeRate int64) (string, error)
	RedeemHTLC(ctx context.Context, utxo UTXO, output models.HTLCOutput, secret chain.Secret, privKey []byte, addr chain.Address, feeRate int64) (string, error)
	RefundHTLC(ctx context.Context, utxo UTXO, output models.HTLCOutput, privKey []byte, addr chain.Address, timelock int64, feeRate int64) (string, error)
	Broadcast(ctx context.Context, txHex string) (string, error)
	GetUTXOs(ctx context.Context, addr chain.Address, minConf int) ([]UTXO, error)
	ExtractSecret(ctx context.Context, txHex string, redeemScript []byte) (*chain.Secret, error)
	WaitForConfirmation(ctx context.Context, txid string, confirmations int, timeout time.Duration) error
}
