package ledger

import "github.com/omnibridge/omnibridge-service/config/types"

// Config of the settlement ledger contracts
type Config struct {
	// Contract is the bridge contract holding deposits, withdrawals and the multi-token ledger
	Contract string `mapstructure:"Contract"`
	// IntentsContract verifies and executes signed intents
	IntentsContract string `mapstructure:"IntentsContract"`
	// RelayerAccount pays for ledger transactions
	RelayerAccount string `mapstructure:"RelayerAccount"`
	// RelayerKey is the "ed25519:..." secret key of RelayerAccount
	RelayerKey string `mapstructure:"RelayerKey"`
	// CallGas is the gas attached to every function call
	CallGas uint64 `mapstructure:"CallGas"`
	// IntentDeadline is how long a signed intent stays valid
	IntentDeadline types.Duration `mapstructure:"IntentDeadline"`
}
