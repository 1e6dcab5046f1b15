package tronman

import (
	"github.com/omnibridge/omnibridge-service/retry"
	"github.com/omnibridge/omnibridge-service/rpcclient"
)

// Config of the Tron adapter
type Config struct {
	// RPC points at full node HTTP APIs
	RPC rpcclient.Config `mapstructure:"RPC"`
	// BridgeAddress is the base58 "T..." bridge contract
	BridgeAddress string `mapstructure:"BridgeAddress"`
	// FeeLimit caps the energy fee of a contract call, in sun
	FeeLimit int64 `mapstructure:"FeeLimit"`
	// Confirm is the transaction info polling policy
	Confirm retry.Policy `mapstructure:"Confirm"`
}
