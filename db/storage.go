package db

import (
	"context"

	"github.com/omnibridge/omnibridge-service/db/memstorage"
	"github.com/omnibridge/omnibridge-service/db/pgstorage"
	"github.com/omnibridge/omnibridge-service/models"
	"github.com/omnibridge/omnibridge-service/omni"
	"github.com/omnibridge/omnibridge-service/redisstorage"
	"github.com/omnibridge/omnibridge-service/utils/gerror"
)

// Storage backends
const (
	MemoryDB   = "memory"
	PostgresDB = "postgres"
	RedisDB    = "redis"
)

// Storage keeps the transfers the bridge still has to drive to completion.
// Records are keyed by (chain, nonce). A record whose nonce is still unknown is
// keyed by (chain, txHash) until it is resolved. Missing records return gerror.ErrStorageNotFound.
type Storage interface {
	AddDeposit(ctx context.Context, deposit *models.PendingDeposit) error
	GetDeposit(ctx context.Context, chain omni.Network, nonce string) (*models.PendingDeposit, error)
	UpdateDepositStatus(ctx context.Context, chain omni.Network, nonce string, status models.DepositStatus) error
	// ResolveDeposit assigns the nonce of a deposit stored by transaction hash
	ResolveDeposit(ctx context.Context, chain omni.Network, txHash, nonce string) error
	GetPendingDeposits(ctx context.Context, limit uint) ([]*models.PendingDeposit, error)
	AddWithdraw(ctx context.Context, withdraw *models.PendingWithdraw) error
	GetWithdraw(ctx context.Context, chain omni.Network, nonce string) (*models.PendingWithdraw, error)
	// ResolveWithdraw assigns the ledger nonce of a withdrawal stored by transaction hash
	ResolveWithdraw(ctx context.Context, chain omni.Network, txHash, nonce string) error
	CompleteWithdraw(ctx context.Context, chain omni.Network, nonce, txHash string) error
	// GetPendingWithdraws filters by chain and receiver when they are not zero
	GetPendingWithdraws(ctx context.Context, chain omni.Network, receiver string) ([]*models.PendingWithdraw, error)
}

// NewStorage creates the configured Storage
func NewStorage(cfg Config) (Storage, error) {
	switch cfg.Database {
	case MemoryDB, "":
		return memstorage.New(), nil
	case PostgresDB:
		return pgstorage.NewPostgresStorage(pgConfig(cfg))
	case RedisDB:
		return redisstorage.NewRedisStorage(cfg.Redis)
	}
	return nil, gerror.ErrStorageNotRegister
}

func pgConfig(cfg Config) pgstorage.Config {
	return pgstorage.Config{
		Name:     cfg.Name,
		User:     cfg.User,
		Password: cfg.Password,
		Host:     cfg.Host,
		Port:     cfg.Port,
		MaxConns: cfg.MaxConns,
	}
}

// RunMigrations will execute pending migrations if needed to keep
// the database updated with the latest changes
func RunMigrations(cfg Config) error {
	if cfg.Database != PostgresDB {
		return nil
	}
	return pgstorage.RunMigrations(pgConfig(cfg))
}
