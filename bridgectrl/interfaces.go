package bridgectrl

import (
	"context"
	"math/big"

	"github.com/omnibridge/omnibridge-service/fee"
	"github.com/omnibridge/omnibridge-service/ledger"
	"github.com/omnibridge/omnibridge-service/models"
	"github.com/omnibridge/omnibridge-service/mpc"
	"github.com/omnibridge/omnibridge-service/near"
	"github.com/omnibridge/omnibridge-service/omni"
	"github.com/omnibridge/omnibridge-service/pricing"
)

// ChainAdapter is implemented once per chain family. Sends are serialized per signer
// by the adapter itself; a second send while one is unconfirmed fails with a WalletBusyError.
//
// Deposit returns the submitted deposit together with a DepositNotFoundError when the
// transaction was broadcast but its nonce could not be read yet. ResolveDepositNonce
// retries that lookup from the stored deposit.
type ChainAdapter interface {
	Chain() omni.Network
	GetTokenBalance(ctx context.Context, token, address string) (*big.Int, error)
	GetDepositFee(ctx context.Context, sender, token string, amount *big.Int) (*fee.ReviewFee, error)
	GetWithdrawFee(ctx context.Context, receiver, token string) (*fee.ReviewFee, error)
	IsWithdrawUsed(ctx context.Context, nonce, receiver string) (bool, error)
	Deposit(ctx context.Context, req models.DepositRequest) (*models.PendingDeposit, error)
	ResolveDepositNonce(ctx context.Context, deposit *models.PendingDeposit) (string, error)
	Withdraw(ctx context.Context, req models.WithdrawRequest) (string, error)
	// ClearDepositNonceIfNeeded reports whether a source chain record was reclaimed
	ClearDepositNonceIfNeeded(ctx context.Context, deposit *models.PendingDeposit, signer models.Signer) (bool, error)
}

type ledgerClient interface {
	Codec() *omni.IntentCodec
	IsExecuted(ctx context.Context, chain omni.Network, nonce string) (bool, error)
	GetWithdrawByReceiver(ctx context.Context, chain omni.Network, receiver []byte) ([]ledger.Transfer, error)
	BatchBalanceOf(ctx context.Context, account string, intentIDs []string) ([]*big.Int, error)
	FinalizeDeposit(ctx context.Context, proof ledger.DepositProof) (string, error)
	ClearWithdrawals(ctx context.Context, requests []ledger.ClearRequest) (string, error)
	SignWithdrawIntent(signer near.Signer, chain omni.Network, token string, amount *big.Int, receiver []byte) (*near.SignedMessage, error)
	SignTokenDiffIntent(signer near.Signer, intentFrom string, amountIn *big.Int, intentTo string, amountOut *big.Int) (*near.SignedMessage, error)
	ExecuteIntents(ctx context.Context, signed ...*near.SignedMessage) (*near.FinalExecutionOutcome, error)
}

type mpcSigner interface {
	SignDeposit(ctx context.Context, req mpc.DepositRequest) (mpc.Signature, error)
	SignWithdraw(ctx context.Context, req mpc.WithdrawRequest) (mpc.Signature, error)
	SignClear(ctx context.Context, req mpc.ClearRequest) (mpc.Signature, error)
}

type quoter interface {
	Quote(ctx context.Context, req pricing.QuoteRequest) (*pricing.Quote, error)
}

type bridgeStorage interface {
	AddDeposit(ctx context.Context, deposit *models.PendingDeposit) error
	GetDeposit(ctx context.Context, chain omni.Network, nonce string) (*models.PendingDeposit, error)
	UpdateDepositStatus(ctx context.Context, chain omni.Network, nonce string, status models.DepositStatus) error
	ResolveDeposit(ctx context.Context, chain omni.Network, txHash, nonce string) error
	AddWithdraw(ctx context.Context, withdraw *models.PendingWithdraw) error
	GetWithdraw(ctx context.Context, chain omni.Network, nonce string) (*models.PendingWithdraw, error)
	ResolveWithdraw(ctx context.Context, chain omni.Network, txHash, nonce string) error
	CompleteWithdraw(ctx context.Context, chain omni.Network, nonce, txHash string) error
	GetPendingWithdraws(ctx context.Context, chain omni.Network, receiver string) ([]*models.PendingWithdraw, error)
}
