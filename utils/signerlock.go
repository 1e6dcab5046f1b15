package utils

import (
	"fmt"
	"sync"

	"github.com/omnibridge/omnibridge-service/utils/gerror"
)

// SignerLock is an advisory lock that allows one in-flight transaction per signer.
type SignerLock struct {
	mu   sync.Mutex
	busy map[string]struct{}
}

// NewSignerLock creates an empty SignerLock
func NewSignerLock() *SignerLock {
	return &SignerLock{busy: make(map[string]struct{})}
}

// Acquire marks the signer as busy and returns the release function.
// A second Acquire for the same signer before release fails with a WalletBusyError.
func (l *SignerLock) Acquire(chain int64, address string) (func(), error) {
	key := fmt.Sprintf("%d/%s", chain, address)
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.busy[key]; ok {
		return nil, &gerror.WalletBusyError{Chain: chain, Address: address}
	}
	l.busy[key] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.busy, key)
			l.mu.Unlock()
		})
	}, nil
}

// IsBusy reports whether the signer currently holds the lock
func (l *SignerLock) IsBusy(chain int64, address string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.busy[fmt.Sprintf("%d/%s", chain, address)]
	return ok
}
