package strategy

import (
	"github.com/rawblock/swap-resolver/pkg/chain"
	"github.com/rawblock/swap-resolver/pkg/models"
)

// StaticGasEstimator answers EstimateFeeUSD from a fixed per-chain USD
// table, for deployments without a live fee oracle and for tests.
type StaticGasEstimator struct {
	FeeUSD map[chain.ID]float64
}

// NewStaticGasEstimator builds an estimator from a chain-to-USD table.
func NewStaticGasEstimator(feeUSD map[chain.ID]float64) *StaticGasEstimator {
	return &StaticGasEstimator{FeeUSD: feeUSD}
}

// EstimateFeeUSD looks up each leg's configured fee, defaulting to zero
// for chains absent from the table.
func (g *StaticGasEstimator) EstimateFeeUSD(order models.CrossChainSwapState) (sourceFeeUSD, destFeeUSD float64, err error) {
	return g.FeeUSD[order.Source.ChainID], g.FeeUSD[order.Destination.ChainID], nil
}
