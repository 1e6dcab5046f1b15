package bridgectrl

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/mr-tron/base58"
	"github.com/omnibridge/omnibridge-service/ledger"
	"github.com/omnibridge/omnibridge-service/log"
	"github.com/omnibridge/omnibridge-service/metrics"
	"github.com/omnibridge/omnibridge-service/models"
	"github.com/omnibridge/omnibridge-service/mpc"
	"github.com/omnibridge/omnibridge-service/omni"
	"github.com/omnibridge/omnibridge-service/utils/gerror"
)

// DepositToken locks amount of token on chain for intentAccount and credits it on the ledger.
// The returned deposit is stored before finalization, so a finalize error leaves it
// in nonce_resolved for FinalizeDeposit to be called again. A deposit whose transaction
// was sent but whose nonce is unknown is stored as submitted and returned with the error.
func (bc *BridgeController) DepositToken(ctx context.Context, chain omni.Network, token string, amount *big.Int,
	signer models.Signer, intentAccount string) (*models.PendingDeposit, models.FinalizeOutcome, error) {
	adapter, err := bc.Adapter(chain)
	if err != nil {
		return nil, 0, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, 0, errors.New("deposit amount must be positive")
	}
	if _, err := omni.EncodeAddress(chain, token); err != nil {
		return nil, 0, err
	}
	logger := log.WithFields("chain", chain.String(), "token", token)

	f, err := adapter.GetDepositFee(ctx, signer.Address(), token, amount)
	if err != nil {
		return nil, 0, err
	}
	if err := bc.checkGas(ctx, adapter, f, signer.Address()); err != nil {
		return nil, 0, err
	}

	deposit, err := adapter.Deposit(ctx, models.DepositRequest{
		Token:         token,
		Amount:        amount,
		IntentAccount: intentAccount,
		Signer:        signer,
	})
	if err != nil {
		if deposit != nil && deposit.TxHash != "" {
			// broadcast but unresolved, kept for the monitor to resolve later
			deposit.Status = models.DepositStatusSubmitted
			if deposit.Timestamp == 0 {
				deposit.Timestamp = bc.clock.Now().Unix()
			}
			if serr := bc.storage.AddDeposit(ctx, deposit); serr != nil {
				logger.Errorf("failed to store submitted deposit %s: %v", deposit.TxHash, serr)
			} else {
				bc.pushDeposit(deposit)
			}
			metrics.RecordDeposit(int64(chain), models.DepositStatusSubmitted.String())
			logger.Warnf("deposit %s submitted without nonce: %v", deposit.TxHash, err)
		} else if errors.Is(err, gerror.ErrDepositNotFound) {
			metrics.RecordDeposit(int64(chain), models.DepositStatusNotFound.String())
		}
		return deposit, 0, err
	}
	if deposit.Timestamp == 0 {
		deposit.Timestamp = bc.clock.Now().Unix()
	}
	deposit.Status = models.DepositStatusNonceResolved
	if err := bc.storage.AddDeposit(ctx, deposit); err != nil {
		return deposit, 0, err
	}
	bc.pushDeposit(deposit)
	metrics.RecordDepositAmount(int64(chain), token, amount)
	logger.Infof("deposit %s submitted in %s", deposit.Nonce, deposit.TxHash)

	outcome, err := bc.FinalizeDeposit(ctx, deposit, signer)
	return deposit, outcome, err
}

// ResolveDeposit looks up the nonce of a submitted deposit by its transaction
// and stores it as nonce_resolved
func (bc *BridgeController) ResolveDeposit(ctx context.Context, deposit *models.PendingDeposit) error {
	if deposit == nil || deposit.TxHash == "" {
		return errors.New("deposit has no transaction hash")
	}
	if deposit.Nonce != "" {
		return nil
	}
	adapter, err := bc.Adapter(deposit.Chain)
	if err != nil {
		return err
	}
	nonce, err := adapter.ResolveDepositNonce(ctx, deposit)
	if err != nil {
		return err
	}
	if err := bc.storage.ResolveDeposit(ctx, deposit.Chain, deposit.TxHash, nonce); err != nil {
		return err
	}
	deposit.Nonce = nonce
	deposit.Status = models.DepositStatusNonceResolved
	bc.pushDeposit(deposit)
	log.WithFields("chain", deposit.Chain.String(), "nonce", nonce).Infof("deposit %s resolved", deposit.TxHash)
	return nil
}

// FinalizeDeposit credits a resolved deposit on the ledger. It never credits twice:
// a deposit the repository or the ledger already knows as executed returns AlreadyClaimed.
// signer may be nil, then the source chain cleanup is skipped.
func (bc *BridgeController) FinalizeDeposit(ctx context.Context, deposit *models.PendingDeposit, signer models.Signer) (models.FinalizeOutcome, error) {
	if deposit == nil || deposit.Nonce == "" {
		return 0, errors.New("deposit has no nonce")
	}
	logger := log.WithFields("chain", deposit.Chain.String(), "nonce", deposit.Nonce)

	stored, err := bc.storage.GetDeposit(ctx, deposit.Chain, deposit.Nonce)
	switch {
	case errors.Is(err, gerror.ErrStorageNotFound):
		if deposit.Status == "" {
			deposit.Status = models.DepositStatusNonceResolved
		}
		if err := bc.storage.AddDeposit(ctx, deposit); err != nil {
			return 0, err
		}
	case err != nil:
		return 0, err
	case stored.Status.IsFinal() && stored.Status != models.DepositStatusNotFound:
		logger.Debugf("deposit already %s", stored.Status)
		deposit.Status = stored.Status
		return models.AlreadyClaimed, nil
	}

	executed, err := bc.ledger.IsExecuted(ctx, deposit.Chain, deposit.Nonce)
	if err != nil {
		return 0, err
	}
	if executed {
		logger.Info("deposit nonce already executed on the ledger")
		return models.AlreadyClaimed, bc.settleDeposit(ctx, deposit, signer, models.DepositStatusAlreadyClaimed)
	}

	token, err := omni.EncodeAddress(deposit.Chain, deposit.Token)
	if err != nil {
		return 0, err
	}
	sig, err := bc.mpc.SignDeposit(ctx, mpc.DepositRequest{
		Nonce:    deposit.Nonce,
		ChainID:  int64(deposit.Chain),
		Token:    base58.Encode(token),
		Receiver: deposit.IntentAccount,
		Amount:   deposit.Amount,
	})
	if err != nil {
		return 0, err
	}
	hash, err := bc.ledger.FinalizeDeposit(ctx, ledger.DepositProof{
		Nonce:         deposit.Nonce,
		ChainID:       int64(deposit.Chain),
		Token:         token,
		IntentAccount: deposit.IntentAccount,
		Amount:        deposit.Amount,
		Signature:     sig.String(),
	})
	if errors.Is(err, gerror.ErrAlreadyClaimed) {
		logger.Info("ledger reports the deposit nonce as used")
		return models.AlreadyClaimed, bc.settleDeposit(ctx, deposit, signer, models.DepositStatusAlreadyClaimed)
	}
	if err != nil {
		return 0, err
	}
	logger.Infof("deposit credited in %s", hash)
	if deposit.Timestamp > 0 {
		metrics.RecordFinalizeWaitTime(int64(deposit.Chain), bc.clock.Now().Sub(time.Unix(deposit.Timestamp, 0)))
	}
	return models.Finalized, bc.settleDeposit(ctx, deposit, signer, models.DepositStatusLedgerCredited)
}

// settleDeposit stores the ledger result and reclaims the source chain deposit record
func (bc *BridgeController) settleDeposit(ctx context.Context, deposit *models.PendingDeposit, signer models.Signer, status models.DepositStatus) error {
	deposit.Status = status
	if err := bc.storage.UpdateDepositStatus(ctx, deposit.Chain, deposit.Nonce, status); err != nil {
		return err
	}
	bc.pushDeposit(deposit)
	if signer == nil {
		return nil
	}
	adapter, err := bc.Adapter(deposit.Chain)
	if err != nil {
		return nil
	}
	cleared, err := adapter.ClearDepositNonceIfNeeded(ctx, deposit, signer)
	if err != nil {
		log.WithFields("chain", deposit.Chain.String(), "nonce", deposit.Nonce).Warnf("deposit cleanup failed: %v", err)
		return nil
	}
	if !cleared {
		return nil
	}
	deposit.Status = models.DepositStatusCleared
	if err := bc.storage.UpdateDepositStatus(ctx, deposit.Chain, deposit.Nonce, deposit.Status); err != nil {
		return err
	}
	bc.pushDeposit(deposit)
	return nil
}
