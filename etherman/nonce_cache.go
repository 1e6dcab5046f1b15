package etherman

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	cacheSize = 1000
)

type nonceReader interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// NonceCache hands out account nonces for transactions not yet seen by the node
type NonceCache struct {
	mu         sync.Mutex
	nonceCache *lru.Cache[string, uint64]
}

// NewNonceCache creates an empty NonceCache
func NewNonceCache() (*NonceCache, error) {
	cache, err := lru.New[string, uint64](int(cacheSize))
	if err != nil {
		return nil, err
	}
	return &NonceCache{nonceCache: cache}, nil
}

// GetNextNonce returns the max of the node pending nonce and the last handed out nonce + 1
func (tm *NonceCache) GetNextNonce(ctx context.Context, client nonceReader, from common.Address) (uint64, error) {
	nonce, err := client.PendingNonceAt(ctx, from)
	if err != nil {
		return 0, err
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if tempNonce, found := tm.nonceCache.Get(from.Hex()); found {
		if tempNonce >= nonce {
			nonce = tempNonce + 1
		}
	}
	tm.nonceCache.Add(from.Hex(), nonce)
	return nonce, nil
}

// Remove forgets the cached nonce of from, used when a transaction could not be sent
func (tm *NonceCache) Remove(from common.Address) {
	tm.nonceCache.Remove(from.Hex())
}
