package localcache

import (
	"context"
	"fmt"
	"time"

	"github.com/omnibridge/omnibridge-service/fee"
	"github.com/omnibridge/omnibridge-service/log"
	"github.com/omnibridge/omnibridge-service/omni"
	gocache "github.com/patrickmn/go-cache"
)

const (
	defaultFeeTTL     = 15 * time.Second
	defaultBalanceTTL = 5 * time.Second
	cleanupInterval   = time.Minute
)

// FeeCache keeps short lived fee estimates and balances so that repeated
// quotes for the same transfer do not hit the chain RPC every time
type FeeCache struct {
	fees       *gocache.Cache
	balances   *gocache.Cache
	balanceTTL time.Duration
}

// NewFeeCache creates a cache, zero ttls fall back to the defaults
func NewFeeCache(feeTTL, balanceTTL time.Duration) *FeeCache {
	if feeTTL <= 0 {
		feeTTL = defaultFeeTTL
	}
	if balanceTTL <= 0 {
		balanceTTL = defaultBalanceTTL
	}
	return &FeeCache{
		fees:       gocache.New(feeTTL, cleanupInterval),
		balances:   gocache.New(balanceTTL, cleanupInterval),
		balanceTTL: balanceTTL,
	}
}

// DepositFeeKey identifies a deposit fee estimate
func DepositFeeKey(chain omni.Network, sender, token, amount string) string {
	return fmt.Sprintf("deposit/%d/%s/%s/%s", chain, sender, token, amount)
}

// WithdrawFeeKey identifies a withdraw fee estimate
func WithdrawFeeKey(chain omni.Network, receiver, token string) string {
	return fmt.Sprintf("withdraw/%d/%s/%s", chain, receiver, token)
}

// Fee returns the cached estimate for key, or calls load and caches its result.
// Callers get a clone so they can adjust options without touching the cached value.
func (c *FeeCache) Fee(ctx context.Context, key string, load func(ctx context.Context) (*fee.ReviewFee, error)) (*fee.ReviewFee, error) {
	if v, ok := c.fees.Get(key); ok {
		log.Debugf("fee cache hit: %s", key)
		return v.(*fee.ReviewFee).Clone(), nil
	}
	f, err := load(ctx)
	if err != nil {
		return nil, err
	}
	c.fees.SetDefault(key, f)
	return f.Clone(), nil
}

// InvalidateFee drops a cached estimate
func (c *FeeCache) InvalidateFee(key string) {
	c.fees.Delete(key)
}

// Balance returns the cached balance of the address, or calls load
func (c *FeeCache) Balance(ctx context.Context, chain omni.Network, token, address string, load func(ctx context.Context) (string, error)) (string, error) {
	key := fmt.Sprintf("%d/%s/%s", chain, token, address)
	if v, ok := c.balances.Get(key); ok {
		return v.(string), nil
	}
	b, err := load(ctx)
	if err != nil {
		return "", err
	}
	c.balances.Set(key, b, c.balanceTTL)
	return b, nil
}

// Flush empties both caches, used after a transfer changes balances
func (c *FeeCache) Flush() {
	c.fees.Flush()
	c.balances.Flush()
}
