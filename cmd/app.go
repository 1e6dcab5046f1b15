package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/omnibridge/omnibridge-service/bridgectrl"
	"github.com/omnibridge/omnibridge-service/config"
	"github.com/omnibridge/omnibridge-service/cosmosman"
	"github.com/omnibridge/omnibridge-service/db"
	"github.com/omnibridge/omnibridge-service/etherman"
	"github.com/omnibridge/omnibridge-service/ledger"
	"github.com/omnibridge/omnibridge-service/log"
	"github.com/omnibridge/omnibridge-service/messagepush"
	"github.com/omnibridge/omnibridge-service/models"
	"github.com/omnibridge/omnibridge-service/mpc"
	"github.com/omnibridge/omnibridge-service/near"
	"github.com/omnibridge/omnibridge-service/omni"
	"github.com/omnibridge/omnibridge-service/pricing"
	"github.com/omnibridge/omnibridge-service/solman"
	"github.com/omnibridge/omnibridge-service/stellarman"
	"github.com/omnibridge/omnibridge-service/tonman"
	"github.com/omnibridge/omnibridge-service/tronman"
	"github.com/omnibridge/omnibridge-service/utils"
	"github.com/urfave/cli/v2"
)

type bridgeApp struct {
	cfg     *config.Config
	storage db.Storage
	ledger  *ledger.Ledger
	bridge  *bridgectrl.BridgeController
}

type quoteClient interface {
	Quote(ctx context.Context, req pricing.QuoteRequest) (*pricing.Quote, error)
}

func newBridgeApp(cliCtx *cli.Context) (*bridgeApp, error) {
	c, err := config.Load(cliCtx.String(flagCfg), cliCtx.String(flagNetwork))
	if err != nil {
		return nil, err
	}
	setupLog(c.Log)

	if err := db.RunMigrations(c.SyncDB); err != nil {
		log.Error(err)
		return nil, err
	}
	storage, err := db.NewStorage(c.SyncDB)
	if err != nil {
		log.Error(err)
		return nil, err
	}

	nearClient, err := near.NewClient(c.Near)
	if err != nil {
		return nil, err
	}
	relayer, err := near.NewAccount(c.Ledger.RelayerAccount, c.Ledger.RelayerKey)
	if err != nil {
		return nil, fmt.Errorf("ledger relayer: %w", err)
	}
	clock := utils.NewTimeProviderSystemLocalTime()
	ledgerClient := ledger.NewLedger(c.Ledger, nearClient, relayer, clock)

	mpcClient, err := mpc.NewClient(c.MPC)
	if err != nil {
		return nil, err
	}
	var quotes quoteClient
	if len(c.Pricing.RPC.URLs) > 0 {
		quotes, err = pricing.NewClient(c.Pricing)
		if err != nil {
			return nil, err
		}
	}
	producer, err := messagepush.NewKafkaProducer(c.MessagePushProducer)
	if err != nil {
		log.Errorf("kafka producer: %v", err)
		return nil, err
	}

	bridge, err := bridgectrl.NewBridgeController(c.BridgeController, ledgerClient, mpcClient, quotes, storage, producer, clock)
	if err != nil {
		return nil, err
	}
	if err := registerAdapters(cliCtx.Context, c.Chains, bridge); err != nil {
		return nil, err
	}
	return &bridgeApp{cfg: c, storage: storage, ledger: ledgerClient, bridge: bridge}, nil
}

func setupLog(c log.Config) {
	log.Init(c)
}

// registerAdapters creates the adapter of every configured chain. All adapters share one signer lock.
func registerAdapters(ctx context.Context, chains config.ChainsConfig, bridge *bridgectrl.BridgeController) error {
	locks := utils.NewSignerLock()
	for _, cfg := range chains.EVM {
		a, err := etherman.NewEtherman(cfg, locks)
		if err != nil {
			return fmt.Errorf("evm chain %d: %w", cfg.ChainID, err)
		}
		bridge.RegisterAdapter(a)
	}
	if chains.Ton.BridgeAddress != "" {
		a, err := tonman.NewTonman(ctx, chains.Ton, locks)
		if err != nil {
			return fmt.Errorf("ton: %w", err)
		}
		bridge.RegisterAdapter(a)
	}
	if chains.Solana.ProgramID != "" {
		a, err := solman.NewSolman(chains.Solana, locks)
		if err != nil {
			return fmt.Errorf("solana: %w", err)
		}
		bridge.RegisterAdapter(a)
	}
	if chains.Stellar.BridgeContract != "" {
		a, err := stellarman.NewStellarman(chains.Stellar, locks)
		if err != nil {
			return fmt.Errorf("stellar: %w", err)
		}
		bridge.RegisterAdapter(a)
	}
	if chains.Tron.BridgeAddress != "" {
		a, err := tronman.NewTronman(chains.Tron, locks)
		if err != nil {
			return fmt.Errorf("tron: %w", err)
		}
		bridge.RegisterAdapter(a)
	}
	for _, cfg := range chains.Cosmos {
		a, err := cosmosman.NewCosmosman(cfg, locks)
		if err != nil {
			return fmt.Errorf("cosmos chain %d: %w", cfg.Chain, err)
		}
		bridge.RegisterAdapter(a)
	}
	return nil
}

// intentSigner is the ledger account of the user
func (a *bridgeApp) intentSigner() (*near.Account, error) {
	s := a.cfg.Signers
	if s.NearAccount == "" || s.NearKey == "" {
		return nil, errors.New("no intent signer: Signers.NearAccount and Signers.NearKey are required")
	}
	return near.NewAccount(s.NearAccount, s.NearKey)
}

// chainSigner builds the configured signer of chain
func (a *bridgeApp) chainSigner(chain omni.Network) (models.Signer, error) {
	s := a.cfg.Signers
	missing := func(key string) error {
		return fmt.Errorf("no %s signer: Signers.%s is not configured", chain, key)
	}
	switch chain.Family() {
	case omni.FamilyEVM:
		if s.EVMKey != "" {
			return etherman.NewKeySigner(s.EVMKey, int64(chain))
		}
		if s.EVMKeystore.Path != "" {
			return etherman.NewKeySignerFromKeystore(s.EVMKeystore, int64(chain))
		}
		return nil, missing("EVMKey")
	case omni.FamilyTon:
		if s.TonMnemonic == "" {
			return nil, missing("TonMnemonic")
		}
		adapter, err := a.bridge.Adapter(chain)
		if err != nil {
			return nil, err
		}
		ton, ok := adapter.(*tonman.Client)
		if !ok {
			return nil, fmt.Errorf("unexpected ton adapter %T", adapter)
		}
		return ton.NewWalletSigner(s.TonMnemonic)
	case omni.FamilySolana:
		if s.SolanaKey == "" {
			return nil, missing("SolanaKey")
		}
		return solman.NewKeySigner(s.SolanaKey)
	case omni.FamilyStellar:
		if s.StellarSeed == "" {
			return nil, missing("StellarSeed")
		}
		return stellarman.NewKeySigner(s.StellarSeed)
	case omni.FamilyTron:
		if s.TronKey == "" {
			return nil, missing("TronKey")
		}
		return tronman.NewKeySigner(s.TronKey)
	case omni.FamilyNear, omni.FamilyHot:
		return a.intentSigner()
	}
	return nil, fmt.Errorf("no key signer for %s, cosmos transactions need an external signer", chain)
}

// intentID accepts an intent id or the "chain:token" shorthand
func (a *bridgeApp) intentID(s string) (string, error) {
	if _, _, err := a.ledger.Codec().FromIntentId(s); err == nil {
		return s, nil
	}
	chainName, token, ok := strings.Cut(s, ":")
	if !ok {
		return "", fmt.Errorf("invalid intent %q", s)
	}
	chain, err := parseChain(chainName)
	if err != nil {
		return "", err
	}
	return a.ledger.Codec().ToIntentId(chain, token)
}
