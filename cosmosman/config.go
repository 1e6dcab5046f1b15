package cosmosman

import (
	"github.com/omnibridge/omnibridge-service/retry"
	"github.com/omnibridge/omnibridge-service/rpcclient"
)

// Config of a CosmWasm chain adapter
type Config struct {
	// Chain is the omni network id, Juno or Gonka
	Chain int64 `mapstructure:"Chain"`
	// LCD points at the REST (LCD) endpoints
	LCD rpcclient.Config `mapstructure:"LCD"`
	// BridgeContract is the bech32 bridge contract
	BridgeContract string `mapstructure:"BridgeContract"`
	// Denom is the native staking denom
	Denom string `mapstructure:"Denom"`
	// GasPrice is the price of one gas unit in Denom, decimal
	GasPrice string `mapstructure:"GasPrice"`
	// DepositGas and WithdrawGas are the gas limits of bridge executions
	DepositGas  int64 `mapstructure:"DepositGas"`
	WithdrawGas int64 `mapstructure:"WithdrawGas"`
	// Confirm is the tx lookup polling policy
	Confirm retry.Policy `mapstructure:"Confirm"`
}
