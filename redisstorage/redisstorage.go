package redisstorage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/omnibridge/omnibridge-service/log"
	"github.com/omnibridge/omnibridge-service/models"
	"github.com/omnibridge/omnibridge-service/omni"
	"github.com/omnibridge/omnibridge-service/utils/gerror"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix = "omnibridge"
	depositHashKey   = "deposits"
	withdrawHashKey  = "withdraws"
)

// RedisStorage keeps transfers in two redis hashes keyed by "chain:nonce",
// or "chain:tx:hash" while the nonce is unknown
type RedisStorage struct {
	client RedisClient
	prefix string
}

// NewRedisStorage connects to redis and checks the connection
func NewRedisStorage(cfg Config) (*RedisStorage, error) {
	if len(cfg.Addrs) == 0 {
		return nil, errors.New("redis address is empty")
	}
	var client RedisClient
	if cfg.IsClusterMode {
		client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:    cfg.Addrs,
			Username: cfg.Username,
			Password: cfg.Password,
		})
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:     cfg.Addrs[0],
			Username: cfg.Username,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
	}
	res, err := client.Ping(context.Background()).Result()
	if err != nil {
		return nil, errors.Wrap(err, "cannot connect to redis server")
	}
	log.Debugf("redis health check done, result: %v", res)
	return NewRedisStorageWithClient(client, cfg.KeyPrefix), nil
}

// NewRedisStorageWithClient wraps an existing client
func NewRedisStorageWithClient(client RedisClient, prefix string) *RedisStorage {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisStorage{client: client, prefix: prefix}
}

func (s *RedisStorage) key(name string) string {
	return s.prefix + ":" + name
}

func field(chain omni.Network, nonce string) string {
	return fmt.Sprintf("%d:%s", chain, nonce)
}

func recordField(chain omni.Network, nonce, txHash string) string {
	if nonce == "" {
		return fmt.Sprintf("%d:tx:%s", chain, txHash)
	}
	return field(chain, nonce)
}

func (s *RedisStorage) put(ctx context.Context, hash, f string, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "marshal transfer error")
	}
	if err := s.client.HSet(ctx, s.key(hash), f, b).Err(); err != nil {
		return errors.Wrap(err, "redis HSet error")
	}
	return nil
}

func (s *RedisStorage) get(ctx context.Context, hash, f string, v interface{}) error {
	b, err := s.client.HGet(ctx, s.key(hash), f).Bytes()
	if errors.Is(err, redis.Nil) {
		return gerror.ErrStorageNotFound
	} else if err != nil {
		return errors.Wrap(err, "redis HGet error")
	}
	return errors.Wrap(json.Unmarshal(b, v), "unmarshal transfer error")
}

func (s *RedisStorage) del(ctx context.Context, hash, f string) error {
	if err := s.client.HDel(ctx, s.key(hash), f).Err(); err != nil {
		return errors.Wrap(err, "redis HDel error")
	}
	return nil
}

// AddDeposit inserts or replaces a deposit
func (s *RedisStorage) AddDeposit(ctx context.Context, deposit *models.PendingDeposit) error {
	return s.put(ctx, depositHashKey, recordField(deposit.Chain, deposit.Nonce, deposit.TxHash), deposit)
}

// GetDeposit returns the stored deposit
func (s *RedisStorage) GetDeposit(ctx context.Context, chain omni.Network, nonce string) (*models.PendingDeposit, error) {
	var d models.PendingDeposit
	if err := s.get(ctx, depositHashKey, field(chain, nonce), &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// UpdateDepositStatus sets the status of a stored deposit
func (s *RedisStorage) UpdateDepositStatus(ctx context.Context, chain omni.Network, nonce string, status models.DepositStatus) error {
	d, err := s.GetDeposit(ctx, chain, nonce)
	if err != nil {
		return err
	}
	d.Status = status
	return s.AddDeposit(ctx, d)
}

// ResolveDeposit moves a deposit stored by transaction hash to its nonce field
func (s *RedisStorage) ResolveDeposit(ctx context.Context, chain omni.Network, txHash, nonce string) error {
	var d models.PendingDeposit
	f := recordField(chain, "", txHash)
	if err := s.get(ctx, depositHashKey, f, &d); err != nil {
		return err
	}
	d.Nonce = nonce
	d.Status = models.DepositStatusNonceResolved
	if err := s.AddDeposit(ctx, &d); err != nil {
		return err
	}
	return s.del(ctx, depositHashKey, f)
}

// GetPendingDeposits returns the oldest deposits whose status is not final
func (s *RedisStorage) GetPendingDeposits(ctx context.Context, limit uint) ([]*models.PendingDeposit, error) {
	vals, err := s.client.HVals(ctx, s.key(depositHashKey)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis HVals error")
	}
	out := make([]*models.PendingDeposit, 0)
	for _, v := range vals {
		var d models.PendingDeposit
		if err := json.Unmarshal([]byte(v), &d); err != nil {
			log.Warnf("skipping malformed deposit record: %v", err)
			continue
		}
		if !d.Status.IsFinal() {
			out = append(out, &d)
		}
	}
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
func (s *RedisStorage) AddWithdraw(ctx context.Context, withdraw *models.PendingWithdraw) error {
	return s.put(ctx, withdrawHashKey, recordField(withdraw.Chain, withdraw.Nonce, withdraw.TxHash), withdraw)
}

// GetWithdraw returns the stored withdrawal
func (s *RedisStorage) GetWithdraw(ctx context.Context, chain omni.Network, nonce string) (*models.PendingWithdraw, error) {
	var w models.PendingWithdraw
	if err := s.get(ctx, withdrawHashKey, field(chain, nonce), &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// ResolveWithdraw moves a withdrawal stored by transaction hash to its nonce field
func (s *RedisStorage) ResolveWithdraw(ctx context.Context, chain omni.Network, txHash, nonce string) error {
	var w models.PendingWithdraw
	f := recordField(chain, "", txHash)
	if err := s.get(ctx, withdrawHashKey, f, &w); err != nil {
		return err
	}
	w.Nonce = nonce
	w.Status = models.WithdrawStatusLedgerNonceAllocated
	if err := s.AddWithdraw(ctx, &w); err != nil {
		return err
	}
	return s.del(ctx, withdrawHashKey, f)
}

// CompleteWithdraw marks a withdrawal as claimed on its destination chain
func (s *RedisStorage) CompleteWithdraw(ctx context.Context, chain omni.Network, nonce, txHash string) error {
	w, err := s.GetWithdraw(ctx, chain, nonce)
	if err != nil {
		return err
	}
	w.Completed = true
	w.Status = models.WithdrawStatusCompleted
	if txHash != "" {
		w.TxHash = txHash
	}
	return s.AddWithdraw(ctx, w)
}

// GetPendingWithdraws returns uncompleted withdrawals, filtered by chain and receiver when set
func (s *RedisStorage) GetPendingWithdraws(ctx context.Context, chain omni.Network, receiver string) ([]*models.PendingWithdraw, error) {
	vals, err := s.client.HVals(ctx, s.key(withdrawHashKey)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis HVals error")
	}
	out := make([]*models.PendingWithdraw, 0)
	for _, v := range vals {
		var w models.PendingWithdraw
		if err := json.Unmarshal([]byte(v), &w); err != nil {
			log.Warnf("skipping malformed withdraw record: %v", err)
			continue
		}
		if w.Completed || (chain != 0 && w.Chain != chain) || (receiver != "" && w.Receiver != receiver) {
			continue
		}
		out = append(out, &w)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return out[i].Nonce < out[j].Nonce
	})
	return out, nil
}
