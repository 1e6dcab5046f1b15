package bridgectrl

import (
	"context"
	"math/big"
	"sync"

	"github.com/omnibridge/omnibridge-service/fee"
	"github.com/omnibridge/omnibridge-service/localcache"
	"github.com/omnibridge/omnibridge-service/log"
	"github.com/omnibridge/omnibridge-service/messagepush"
	"github.com/omnibridge/omnibridge-service/metrics"
	"github.com/omnibridge/omnibridge-service/models"
	"github.com/omnibridge/omnibridge-service/omni"
	"github.com/omnibridge/omnibridge-service/utils"
	"github.com/omnibridge/omnibridge-service/utils/gerror"
	"github.com/pkg/errors"
)

// BridgeController drives deposits, withdrawals and swaps through the settlement
// ledger. It owns the adapter registry and the repository of unfinished transfers.
type BridgeController struct {
	cfg      Config
	ledger   ledgerClient
	mpc      mpcSigner
	quotes   quoter
	storage  bridgeStorage
	producer messagepush.KafkaProducer
	cache    *localcache.FeeCache
	clock    utils.TimeProvider

	mu       sync.RWMutex
	adapters map[omni.Network]ChainAdapter
}

// NewBridgeController creates new BridgeController. quotes and producer may be nil.
func NewBridgeController(cfg Config, ledger ledgerClient, signer mpcSigner, quotes quoter, storage bridgeStorage,
	producer messagepush.KafkaProducer, clock utils.TimeProvider) (*BridgeController, error) {
	if ledger == nil || signer == nil || storage == nil {
		return nil, errors.New("bridge controller needs a ledger, an mpc signer and a storage")
	}
	if clock == nil {
		clock = utils.NewTimeProviderSystemLocalTime()
	}
	return &BridgeController{
		cfg:      cfg,
		ledger:   ledger,
		mpc:      signer,
		quotes:   quotes,
		storage:  storage,
		producer: producer,
		cache:    localcache.NewFeeCache(cfg.FeeCacheTTL.Duration, cfg.BalanceCacheTTL.Duration),
		clock:    clock,
		adapters: make(map[omni.Network]ChainAdapter),
	}, nil
}

// RegisterAdapter adds or replaces the adapter of its chain
func (bc *BridgeController) RegisterAdapter(adapter ChainAdapter) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	bc.adapters[adapter.Chain()] = adapter
	log.Infof("registered %s adapter", adapter.Chain())
}

// Adapter returns the adapter of chain or an UnsupportedChainError
func (bc *BridgeController) Adapter(chain omni.Network) (ChainAdapter, error) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	a, ok := bc.adapters[chain]
	if !ok {
		return nil, &gerror.UnsupportedChainError{Chain: int64(chain)}
	}
	return a, nil
}

// Chains lists the registered chains
func (bc *BridgeController) Chains() []omni.Network {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	out := make([]omni.Network, 0, len(bc.adapters))
	for c := range bc.adapters {
		out = append(out, c)
	}
	return out
}

// GetTokenBalance returns the balance of address on chain, briefly cached
func (bc *BridgeController) GetTokenBalance(ctx context.Context, chain omni.Network, token, address string) (*big.Int, error) {
	adapter, err := bc.Adapter(chain)
	if err != nil {
		return nil, err
	}
	s, err := bc.cache.Balance(ctx, chain, token, address, func(ctx context.Context) (string, error) {
		b, err := adapter.GetTokenBalance(ctx, token, address)
		if err != nil {
			return "", err
		}
		return b.String(), nil
	})
	if err != nil {
		return nil, err
	}
	b, _ := new(big.Int).SetString(s, 10) //nolint:gomnd
	return b, nil
}

// GetIntentBalances returns the ledger balances of account, keyed by intent id
func (bc *BridgeController) GetIntentBalances(ctx context.Context, account string, intentIDs []string) (map[string]*big.Int, error) {
	for _, id := range intentIDs {
		if _, _, err := bc.ledger.Codec().FromIntentId(id); err != nil {
			return nil, err
		}
	}
	balances, err := bc.ledger.BatchBalanceOf(ctx, account, intentIDs)
	if err != nil {
		return nil, err
	}
	if len(balances) != len(intentIDs) {
		return nil, errors.Errorf("ledger returned %d balances for %d tokens", len(balances), len(intentIDs))
	}
	out := make(map[string]*big.Int, len(intentIDs))
	for i, id := range intentIDs {
		out[id] = balances[i]
	}
	return out, nil
}

// EstimateDepositFee returns the fee sender pays to deposit amount of token on chain
func (bc *BridgeController) EstimateDepositFee(ctx context.Context, chain omni.Network, sender, token string, amount *big.Int) (*fee.ReviewFee, error) {
	adapter, err := bc.Adapter(chain)
	if err != nil {
		return nil, err
	}
	key := localcache.DepositFeeKey(chain, sender, token, amount.String())
	return bc.cache.Fee(ctx, key, func(ctx context.Context) (*fee.ReviewFee, error) {
		return adapter.GetDepositFee(ctx, sender, token, amount)
	})
}

// EstimateWithdrawFee returns the fee of claiming a withdrawal of token to receiver on chain
func (bc *BridgeController) EstimateWithdrawFee(ctx context.Context, chain omni.Network, receiver, token string) (*fee.ReviewFee, error) {
	adapter, err := bc.Adapter(chain)
	if err != nil {
		return nil, err
	}
	key := localcache.WithdrawFeeKey(chain, receiver, token)
	return bc.cache.Fee(ctx, key, func(ctx context.Context) (*fee.ReviewFee, error) {
		return adapter.GetWithdrawFee(ctx, receiver, token)
	})
}

// checkGas fails with an InsufficientGasError when payer cannot cover f
func (bc *BridgeController) checkGas(ctx context.Context, adapter ChainAdapter, f *fee.ReviewFee, payer string) error {
	if bc.cfg.SkipGasCheck {
		return nil
	}
	need := f.NeedNative()
	if need.Sign() == 0 {
		return nil
	}
	have, err := adapter.GetTokenBalance(ctx, utils.NativeToken, payer)
	if err != nil {
		return errors.Wrap(err, "native balance")
	}
	if have.Cmp(need) < 0 {
		return &gerror.InsufficientGasError{Chain: int64(adapter.Chain()), Need: need, Have: have}
	}
	return nil
}

func (bc *BridgeController) pushDeposit(d *models.PendingDeposit) {
	metrics.RecordDeposit(int64(d.Chain), d.Status.String())
	if bc.producer == nil {
		return
	}
	if err := bc.producer.PushTransferUpdate(messagepush.NewDepositUpdate(d)); err != nil {
		log.Warnf("push deposit %s/%s update: %v", d.Chain, d.Nonce, err)
	}
}

func (bc *BridgeController) pushWithdraw(w *models.PendingWithdraw) {
	metrics.RecordWithdraw(int64(w.Chain), w.Status.String())
	if bc.producer == nil {
		return
	}
	if err := bc.producer.PushTransferUpdate(messagepush.NewWithdrawUpdate(w)); err != nil {
		log.Warnf("push withdraw %s/%s update: %v", w.Chain, w.Nonce, err)
	}
}
