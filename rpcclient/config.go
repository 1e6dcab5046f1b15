package rpcclient

import (
	"github.com/omnibridge/omnibridge-service/config/types"
	"github.com/omnibridge/omnibridge-service/retry"
)

// Config is the configuration of an HTTP endpoint pool
type Config struct {
	// URLs are tried in order, the client sticks to the last healthy one
	URLs []string `mapstructure:"URLs"`
	// Timeout is the initial per-request timeout
	Timeout types.Duration `mapstructure:"Timeout"`
	// MaxTimeout bounds the adaptive timeout
	MaxTimeout types.Duration `mapstructure:"MaxTimeout"`
	// Retry is the policy applied to transport failures
	Retry retry.Policy `mapstructure:"Retry"`
	// APIKeyHeader and APIKey are sent with every request when set
	APIKeyHeader string `mapstructure:"APIKeyHeader"`
	APIKey       string `mapstructure:"APIKey"`
}
