package config

import (
	"fmt"

	"github.com/omnibridge/omnibridge-service/log"
	"github.com/omnibridge/omnibridge-service/omni"
)

// NetworkConfig is the configuration struct for the different environments
type NetworkConfig struct {
	// LedgerContract is the bridge contract holding the multi-token ledger
	LedgerContract string
	// IntentsContract executes signed intents
	IntentsContract string
	// NearRPC is the default NEAR endpoint list
	NearRPC []string
	// TonLiteConfigURL is the default TON global config
	TonLiteConfigURL string
	// SolanaRPC is the default Solana endpoint
	SolanaRPC string
	// StellarPassphrase selects the Stellar network
	StellarPassphrase string
}

const (
	mainnet = "mainnet"
	testnet = "testnet"
)

//nolint:gomnd
var (
	mainnetConfig = NetworkConfig{
		LedgerContract:    omni.DefaultLedgerContract,
		IntentsContract:   "intents.near",
		NearRPC:           []string{"https://rpc.mainnet.near.org"},
		TonLiteConfigURL:  "https://ton.org/global.config.json",
		SolanaRPC:         "https://api.mainnet-beta.solana.com",
		StellarPassphrase: "Public Global Stellar Network ; September 2015",
	}
	testnetConfig = NetworkConfig{
		LedgerContract:    omni.DefaultLedgerContract,
		IntentsContract:   "intents.near",
		NearRPC:           []string{"https://rpc.testnet.near.org"},
		TonLiteConfigURL:  "https://ton.org/testnet-global.config.json",
		SolanaRPC:         "https://api.devnet.solana.com",
		StellarPassphrase: "Test SDF Network ; September 2015",
	}
)

func (cfg *Config) loadNetworkConfig(network string) error {
	switch network {
	case testnet:
		log.Debug("Testnet network selected")
		cfg.NetworkConfig = testnetConfig
	case mainnet, "":
		log.Debug("Mainnet network selected")
		cfg.NetworkConfig = mainnetConfig
	default:
		return fmt.Errorf("unknown network %q, use %s or %s", network, mainnet, testnet)
	}
	return nil
}

// applyNetworkConfig fills the component settings left empty with the network defaults
func (cfg *Config) applyNetworkConfig() {
	n := cfg.NetworkConfig
	if cfg.Ledger.Contract == "" {
		cfg.Ledger.Contract = n.LedgerContract
	}
	if cfg.Ledger.IntentsContract == "" {
		cfg.Ledger.IntentsContract = n.IntentsContract
	}
	if len(cfg.Near.RPC.URLs) == 0 {
		cfg.Near.RPC.URLs = n.NearRPC
	}
	if cfg.Chains.Ton.BridgeAddress != "" && cfg.Chains.Ton.LiteConfigURL == "" {
		cfg.Chains.Ton.LiteConfigURL = n.TonLiteConfigURL
	}
	if cfg.Chains.Solana.ProgramID != "" && cfg.Chains.Solana.URL == "" {
		cfg.Chains.Solana.URL = n.SolanaRPC
	}
	if cfg.Chains.Stellar.NetworkPassphrase == "" {
		cfg.Chains.Stellar.NetworkPassphrase = n.StellarPassphrase
	}
}
