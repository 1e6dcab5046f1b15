package claimtxman

import (
	"github.com/omnibridge/omnibridge-service/config/types"
)

// Config is configuration for the pending transfers monitor
type Config struct {
	//Enabled whether to enable this module
	Enabled bool `mapstructure:"Enabled"`
	// FrequencyToMonitorTxs frequency of the pending transfers review
	FrequencyToMonitorTxs types.Duration `mapstructure:"FrequencyToMonitorTxs"`
	// RetryNumber is the number of finalize attempts per deposit before giving up, 0 means no limit
	RetryNumber int `mapstructure:"RetryNumber"`
	// BatchSize is the maximum number of deposits reviewed per round, 0 means all
	BatchSize uint `mapstructure:"BatchSize"`
}
