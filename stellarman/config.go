package stellarman

import (
	"github.com/omnibridge/omnibridge-service/retry"
	"github.com/omnibridge/omnibridge-service/rpcclient"
)

// Config of the Stellar adapter
type Config struct {
	// RPC points at Soroban RPC servers
	RPC rpcclient.Config `mapstructure:"RPC"`
	// NetworkPassphrase selects the network the transactions are signed for
	NetworkPassphrase string `mapstructure:"NetworkPassphrase"`
	// BridgeContract is the "C..." bridge contract
	BridgeContract string `mapstructure:"BridgeContract"`
	// NativeContract is the XLM asset contract
	NativeContract string `mapstructure:"NativeContract"`
	// ViewAccount is a funded account used as the source of read-only simulations
	ViewAccount string `mapstructure:"ViewAccount"`
	// WithdrawFee is the fee budget of a withdraw, in stroops
	WithdrawFee int64 `mapstructure:"WithdrawFee"`
	// Confirm is the getTransaction polling policy
	Confirm retry.Policy `mapstructure:"Confirm"`
}
