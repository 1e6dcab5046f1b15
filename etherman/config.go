package etherman

import (
	"github.com/omnibridge/omnibridge-service/config/types"
	"github.com/omnibridge/omnibridge-service/retry"
)

// Config represents the configuration of an EVM chain adapter
type Config struct {
	// ChainID is the EIP-155 chain id, also the omni network id
	ChainID int64 `mapstructure:"ChainID"`
	// URLs are the RPC endpoints, tried in order
	URLs []string `mapstructure:"URLs"`
	// BridgeAddress is the bridge contract on this chain
	BridgeAddress string `mapstructure:"BridgeAddress"`
	// GasLimitMultiplier is applied on top of EstimateGas
	GasLimitMultiplier float64 `mapstructure:"GasLimitMultiplier"`
	// BaseFeeMultiplier is applied on top of the latest base fee
	BaseFeeMultiplier float64 `mapstructure:"BaseFeeMultiplier"`
	// Confirm is the receipt polling policy
	Confirm retry.Policy `mapstructure:"Confirm"`
	// PrivateKey is the keystore of the default signer
	PrivateKey types.KeystoreFileConfig `mapstructure:"PrivateKey"`
}
