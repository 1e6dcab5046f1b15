package memstorage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/omnibridge/omnibridge-service/models"
	"github.com/omnibridge/omnibridge-service/omni"
	"github.com/omnibridge/omnibridge-service/utils/gerror"
)

// MemStorage keeps transfers in process memory. Values are copied in and out.
type MemStorage struct {
	mu        sync.RWMutex
	deposits  map[string]models.PendingDeposit
	withdraws map[string]models.PendingWithdraw
}

// New returns an empty storage
func New() *MemStorage {
	return &MemStorage{
		deposits:  make(map[string]models.PendingDeposit),
		withdraws: make(map[string]models.PendingWithdraw),
	}
}

func key(chain omni.Network, nonce string) string {
	return fmt.Sprintf("%d:%s", chain, nonce)
}

// recordKey falls back to the transaction hash while the nonce is unknown
func recordKey(chain omni.Network, nonce, txHash string) string {
	if nonce == "" {
		return fmt.Sprintf("%d:tx:%s", chain, txHash)
	}
	return key(chain, nonce)
}

// AddDeposit inserts or replaces a deposit
func (s *MemStorage) AddDeposit(_ context.Context, deposit *models.PendingDeposit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deposits[recordKey(deposit.Chain, deposit.Nonce, deposit.TxHash)] = *deposit
	return nil
}

// GetDeposit returns a copy of the stored deposit
func (s *MemStorage) GetDeposit(_ context.Context, chain omni.Network, nonce string) (*models.PendingDeposit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.deposits[key(chain, nonce)]
	if !ok {
		return nil, gerror.ErrStorageNotFound
	}
	return &d, nil
}

// UpdateDepositStatus sets the status of a stored deposit
func (s *MemStorage) UpdateDepositStatus(_ context.Context, chain omni.Network, nonce string, status models.DepositStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(chain, nonce)
	d, ok := s.deposits[k]
	if !ok {
		return gerror.ErrStorageNotFound
	}
	d.Status = status
	s.deposits[k] = d
	return nil
}

// ResolveDeposit moves a deposit stored by transaction hash to its nonce
func (s *MemStorage) ResolveDeposit(_ context.Context, chain omni.Network, txHash, nonce string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := recordKey(chain, "", txHash)
	d, ok := s.deposits[k]
	if !ok {
		return gerror.ErrStorageNotFound
	}
	delete(s.deposits, k)
	d.Nonce = nonce
	d.Status = models.DepositStatusNonceResolved
	s.deposits[key(chain, nonce)] = d
	return nil
}

// GetPendingDeposits returns the oldest deposits whose status is not final
func (s *MemStorage) GetPendingDeposits(_ context.Context, limit uint) ([]*models.PendingDeposit, error) {
	s.mu.RLock()
	out := make([]*models.PendingDeposit, 0)
	for _, d := range s.deposits {
		if !d.Status.IsFinal() {
			d := d
			out = append(out, &d)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		if out[i].Nonce != out[j].Nonce {
			return out[i].Nonce < out[j].Nonce
		}
		return out[i].TxHash < out[j].TxHash
	})
	if limit > 0 && uint(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

// AddWithdraw inserts or replaces a withdrawal
func (s *MemStorage) AddWithdraw(_ context.Context, withdraw *models.PendingWithdraw) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.withdraws[recordKey(withdraw.Chain, withdraw.Nonce, withdraw.TxHash)] = *withdraw
	return nil
}

// GetWithdraw returns a copy of the stored withdrawal
func (s *MemStorage) GetWithdraw(_ context.Context, chain omni.Network, nonce string) (*models.PendingWithdraw, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.withdraws[key(chain, nonce)]
	if !ok {
		return nil, gerror.ErrStorageNotFound
	}
	return &w, nil
}

// ResolveWithdraw moves a withdrawal stored by transaction hash to its ledger nonce
func (s *MemStorage) ResolveWithdraw(_ context.Context, chain omni.Network, txHash, nonce string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := recordKey(chain, "", txHash)
	w, ok := s.withdraws[k]
	if !ok {
		return gerror.ErrStorageNotFound
	}
	delete(s.withdraws, k)
	w.Nonce = nonce
	w.Status = models.WithdrawStatusLedgerNonceAllocated
	s.withdraws[key(chain, nonce)] = w
	return nil
}

// CompleteWithdraw marks a withdrawal as claimed on its destination chain
func (s *MemStorage) CompleteWithdraw(_ context.Context, chain omni.Network, nonce, txHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(chain, nonce)
	w, ok := s.withdraws[k]
	if !ok {
		return gerror.ErrStorageNotFound
	}
	w.Completed = true
	w.Status = models.WithdrawStatusCompleted
	if txHash != "" {
		w.TxHash = txHash
	}
	s.withdraws[k] = w
	return nil
}

// GetPendingWithdraws returns uncompleted withdrawals ordered by timestamp
func (s *MemStorage) GetPendingWithdraws(_ context.Context, chain omni.Network, receiver string) ([]*models.PendingWithdraw, error) {
	s.mu.RLock()
	out := make([]*models.PendingWithdraw, 0)
	for _, w := range s.withdraws {
		if w.Completed || (chain != 0 && w.Chain != chain) || (receiver != "" && w.Receiver != receiver) {
			continue
		}
		w := w
		out = append(out, &w)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return out[i].Nonce < out[j].Nonce
	})
	return out, nil
}
