package solman

import (
	"github.com/omnibridge/omnibridge-service/retry"
)

// Config of the Solana adapter
type Config struct {
	// URL is the JSON-RPC endpoint
	URL string `mapstructure:"URL"`
	// ProgramID is the bridge program
	ProgramID string `mapstructure:"ProgramID"`
	// BaseFee is the fee per signature, in lamports
	BaseFee uint64 `mapstructure:"BaseFee"`
	// PriorityFee is the compute unit price, in micro-lamports
	PriorityFee uint64 `mapstructure:"PriorityFee"`
	// ComputeUnits is the compute budget requested by every bridge transaction
	ComputeUnits uint32 `mapstructure:"ComputeUnits"`
	// Confirm is the transaction polling policy
	Confirm retry.Policy `mapstructure:"Confirm"`
}
