package config

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/omnibridge/omnibridge-service/bridgectrl"
	"github.com/omnibridge/omnibridge-service/claimtxman"
	"github.com/omnibridge/omnibridge-service/config/types"
	"github.com/omnibridge/omnibridge-service/cosmosman"
	"github.com/omnibridge/omnibridge-service/db"
	"github.com/omnibridge/omnibridge-service/etherman"
	"github.com/omnibridge/omnibridge-service/ledger"
	"github.com/omnibridge/omnibridge-service/log"
	"github.com/omnibridge/omnibridge-service/messagepush"
	"github.com/omnibridge/omnibridge-service/metrics"
	"github.com/omnibridge/omnibridge-service/mpc"
	"github.com/omnibridge/omnibridge-service/near"
	"github.com/omnibridge/omnibridge-service/pricing"
	"github.com/omnibridge/omnibridge-service/server"
	"github.com/omnibridge/omnibridge-service/solman"
	"github.com/omnibridge/omnibridge-service/stellarman"
	"github.com/omnibridge/omnibridge-service/tonman"
	"github.com/omnibridge/omnibridge-service/tronman"
	"github.com/spf13/viper"
)

const envPrefix = "OMNIBRIDGE"

// Config struct
type Config struct {
	Log                 log.Config
	SyncDB              db.Config
	ClaimTxManager      claimtxman.Config
	BridgeController    bridgectrl.Config
	MessagePushProducer messagepush.Config
	Metrics             metrics.Config
	Server              server.Config
	Near                near.Config
	Ledger              ledger.Config
	MPC                 mpc.Config
	Pricing             pricing.Config
	Chains              ChainsConfig
	Signers             SignersConfig
	NetworkConfig
}

// ChainsConfig holds one entry per enabled adapter. An adapter whose endpoint is empty is not registered.
type ChainsConfig struct {
	EVM     []etherman.Config  `mapstructure:"EVM"`
	Ton     tonman.Config      `mapstructure:"Ton"`
	Solana  solman.Config      `mapstructure:"Solana"`
	Stellar stellarman.Config  `mapstructure:"Stellar"`
	Tron    tronman.Config     `mapstructure:"Tron"`
	Cosmos  []cosmosman.Config `mapstructure:"Cosmos"`
}

// SignersConfig are the keys used by the CLI to sign on behalf of the user
type SignersConfig struct {
	// NearAccount and NearKey sign intents; NearKey is "ed25519:<base58 secret>"
	NearAccount string `mapstructure:"NearAccount"`
	NearKey     string `mapstructure:"NearKey"`

	// EVMKey is a hex private key, EVMKeystore is used when it is empty
	EVMKey      string                   `mapstructure:"EVMKey"`
	EVMKeystore types.KeystoreFileConfig `mapstructure:"EVMKeystore"`

	// TonMnemonic is the space separated v4r2 wallet mnemonic
	TonMnemonic string `mapstructure:"TonMnemonic"`

	// SolanaKey is the base58 64 byte secret key
	SolanaKey string `mapstructure:"SolanaKey"`

	// StellarSeed is the "S..." secret seed
	StellarSeed string `mapstructure:"StellarSeed"`

	// TronKey is a hex private key
	TronKey string `mapstructure:"TronKey"`
}

func decodeHooks() viper.DecoderConfigOption {
	// this allows arrays to be decoded from env var separated by ",", example: MY_VAR="value1,value2,value3"
	return viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
}

// Default parses the default configuration values.
func Default() (*Config, error) {
	var cfg Config
	viper.SetConfigType("toml")
	err := viper.ReadConfig(bytes.NewBuffer([]byte(DefaultValues)))
	if err != nil {
		return nil, err
	}
	err = viper.Unmarshal(&cfg, decodeHooks())
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load loads the configuration
func Load(configFilePath string, network string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}
	if configFilePath != "" {
		dirName, fileName := filepath.Split(configFilePath)

		fileExtension := strings.TrimPrefix(filepath.Ext(fileName), ".")
		fileNameWithoutExtension := strings.TrimSuffix(fileName, "."+fileExtension)

		viper.AddConfigPath(dirName)
		viper.SetConfigName(fileNameWithoutExtension)
		viper.SetConfigType(fileExtension)
	}
	viper.AutomaticEnv()
	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)
	viper.SetEnvPrefix(envPrefix)
	err = viper.ReadInConfig()
	if err != nil {
		_, ok := err.(viper.ConfigFileNotFoundError)
		if ok {
			log.Infof("config file not found")
		} else {
			log.Infof("error reading config file: %v", err)
			return nil, err
		}
	}

	err = viper.Unmarshal(cfg, decodeHooks())
	if err != nil {
		return nil, err
	}

	if viper.IsSet("NetworkConfig") && network != "" {
		return nil, errors.New("network details are provided in the config file (the [NetworkConfig] section) and as a flag (the --network or -n), configure it only once")
	}
	if !viper.IsSet("NetworkConfig") {
		if err := cfg.loadNetworkConfig(network); err != nil {
			return nil, err
		}
	}
	cfg.applyNetworkConfig()
	return cfg, nil
}
