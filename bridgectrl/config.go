package bridgectrl

import "github.com/omnibridge/omnibridge-service/config/types"

// Config of the bridge orchestrator
type Config struct {
	// SkipGasCheck disables the native balance pre-flight before deposits and claims
	SkipGasCheck bool `mapstructure:"SkipGasCheck"`

	// FeeCacheTTL is how long fee estimates are reused
	FeeCacheTTL types.Duration `mapstructure:"FeeCacheTTL"`

	// BalanceCacheTTL is how long balances are reused by GetTokenBalance
	BalanceCacheTTL types.Duration `mapstructure:"BalanceCacheTTL"`
}
