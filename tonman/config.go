package tonman

import (
	"github.com/omnibridge/omnibridge-service/retry"
)

// Config of the TON adapter
type Config struct {
	// LiteConfigURL is the global config listing liteservers
	LiteConfigURL string `mapstructure:"LiteConfigURL"`
	// BridgeAddress is the bridge contract
	BridgeAddress string `mapstructure:"BridgeAddress"`
	// DepositAttach is the TON attached to a native deposit on top of the amount, in nanotons
	DepositAttach int64 `mapstructure:"DepositAttach"`
	// JettonAttach is the TON sent to the jetton wallet with a token deposit
	JettonAttach int64 `mapstructure:"JettonAttach"`
	// ForwardAmount is forwarded by the jetton wallet to the bridge
	ForwardAmount int64 `mapstructure:"ForwardAmount"`
	// WithdrawAttach is the TON attached to withdraw and clear messages
	WithdrawAttach int64 `mapstructure:"WithdrawAttach"`
	// TraceDepth is how many bridge transactions are scanned for a deposit nonce
	TraceDepth uint32 `mapstructure:"TraceDepth"`
	// Confirm is the nonce tracing policy
	Confirm retry.Policy `mapstructure:"Confirm"`
}
