package server

import (
	"context"

	"github.com/omnibridge/omnibridge-service/models"
	"github.com/omnibridge/omnibridge-service/omni"
)

type transferStorage interface {
	GetDeposit(ctx context.Context, chain omni.Network, nonce string) (*models.PendingDeposit, error)
	GetPendingDeposits(ctx context.Context, limit uint) ([]*models.PendingDeposit, error)
	GetWithdraw(ctx context.Context, chain omni.Network, nonce string) (*models.PendingWithdraw, error)
	GetPendingWithdraws(ctx context.Context, chain omni.Network, receiver string) ([]*models.PendingWithdraw, error)
}
