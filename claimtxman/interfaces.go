package claimtxman

import (
	"context"

	"github.com/omnibridge/omnibridge-service/bridgectrl"
	"github.com/omnibridge/omnibridge-service/models"
	"github.com/omnibridge/omnibridge-service/omni"
)

type storageInterface interface {
	AddDeposit(ctx context.Context, deposit *models.PendingDeposit) error
	GetPendingDeposits(ctx context.Context, limit uint) ([]*models.PendingDeposit, error)
	GetPendingWithdraws(ctx context.Context, chain omni.Network, receiver string) ([]*models.PendingWithdraw, error)
	CompleteWithdraw(ctx context.Context, chain omni.Network, nonce, txHash string) error
}

type bridgeServiceInterface interface {
	Adapter(chain omni.Network) (bridgectrl.ChainAdapter, error)
	ResolveDeposit(ctx context.Context, deposit *models.PendingDeposit) error
	FinalizeDeposit(ctx context.Context, deposit *models.PendingDeposit, signer models.Signer) (models.FinalizeOutcome, error)
	ResumeWithdraw(ctx context.Context, w *models.PendingWithdraw) error
}
