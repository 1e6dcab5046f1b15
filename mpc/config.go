package mpc

import "github.com/omnibridge/omnibridge-service/rpcclient"

// Config of the MPC co-signer
type Config struct {
	RPC rpcclient.Config `mapstructure:"RPC"`
}
