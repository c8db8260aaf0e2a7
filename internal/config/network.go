package config

import "github.com/btcsuite/btcd/chaincfg"

// bitcoinNetParams maps the YAML-configured network name to btcd's
// chain parameters, defaulting to mainnet.
func bitcoinNetParams(name string) *chaincfg.Params {
	switch name {
	case "testnet", "testnet3":
		return &chaincfg.TestNet3Params
	case "regtest":
		return &chaincfg.RegressionNetParams
	default:
		return &chaincfg.MainNetParams
	}
}
