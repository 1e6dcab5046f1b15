package bridgectrl

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/mr-tron/base58"
	"github.com/omnibridge/omnibridge-service/ledger"
	"github.com/omnibridge/omnibridge-service/log"
	"github.com/omnibridge/omnibridge-service/metrics"
	"github.com/omnibridge/omnibridge-service/models"
	"github.com/omnibridge/omnibridge-service/mpc"
	"github.com/omnibridge/omnibridge-service/near"
	"github.com/omnibridge/omnibridge-service/omni"
	"github.com/omnibridge/omnibridge-service/utils/gerror"
)

// WithdrawToken moves amount of token from the intent account of signer to receiver on chain.
// The locker of receiver is cleared first. For chains other than the ledger chain the returned
// withdrawal carries the MPC signature that CompleteWithdraw submits on the destination chain.
// Once the ledger transaction executed the withdrawal is stored and returned even on error,
// ResumeWithdraw picks it up from there.
func (bc *BridgeController) WithdrawToken(ctx context.Context, chain omni.Network, token string, amount *big.Int,
	receiver string, signer near.Signer) (*models.PendingWithdraw, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, errors.New("withdraw amount must be positive")
	}
	receiverBytes, err := omni.EncodeAddress(chain, receiver)
	if err != nil {
		return nil, err
	}
	tokenBytes, err := omni.EncodeAddress(chain, token)
	if err != nil {
		return nil, err
	}
	ledgerChain := chain.Family() == omni.FamilyNear
	if !ledgerChain {
		if _, err := bc.ClearLocker(ctx, chain, receiver); err != nil {
			return nil, fmt.Errorf("clear locker: %w", err)
		}
	}

	w := &models.PendingWithdraw{
		Chain:     chain,
		Token:     token,
		Receiver:  receiver,
		Amount:    amount.String(),
		Timestamp: bc.clock.Now().Unix(),
		Sender:    signer.AccountID(),
		Status:    models.WithdrawStatusRequested,
	}
	logger := log.WithFields("chain", chain.String(), "receiver", receiver)

	signed, err := bc.ledger.SignWithdrawIntent(signer, chain, token, amount, receiverBytes)
	if err != nil {
		return w, err
	}
	w.Status = models.WithdrawStatusIntentSigned

	outcome, err := bc.ledger.ExecuteIntents(ctx, signed)
	if err != nil {
		return w, err
	}
	w.TxHash = outcome.Hash()
	if ledgerChain {
		w.Completed = true
		w.Status = models.WithdrawStatusCompleted
		bc.pushWithdraw(w)
		metrics.RecordWithdrawAmount(int64(chain), token, amount)
		logger.Infof("withdrawn on the ledger in %s", w.TxHash)
		return w, nil
	}
	// stored by tx hash until the ledger nonce is known
	if err := bc.storage.AddWithdraw(ctx, w); err != nil {
		return w, err
	}
	bc.pushWithdraw(w)
	metrics.RecordWithdrawAmount(int64(chain), token, amount)

	nonce, err := ledger.WithdrawNonceFromLogs(outcome.Logs())
	if err != nil {
		logger.Warnf("withdraw %s executed without nonce log: %v", w.TxHash, err)
		return w, fmt.Errorf("withdraw %s: %w", w.TxHash, err)
	}
	if err := bc.resolveWithdraw(ctx, w, nonce); err != nil {
		return w, err
	}
	if err := bc.signWithdraw(ctx, w, tokenBytes, receiverBytes); err != nil {
		return w, err
	}
	logger.WithFields("nonce", w.Nonce).Info("withdraw signed, ready to claim")
	return w, nil
}

// ResumeWithdraw drives a stored withdrawal that stopped before it was signed.
// A missing nonce is looked up in the ledger locker of the receiver, matching token
// and amount and skipping nonces already stored.
func (bc *BridgeController) ResumeWithdraw(ctx context.Context, w *models.PendingWithdraw) error {
	if w == nil || w.Completed {
		return nil
	}
	receiverBytes, err := omni.EncodeAddress(w.Chain, w.Receiver)
	if err != nil {
		return err
	}
	tokenBytes, err := omni.EncodeAddress(w.Chain, w.Token)
	if err != nil {
		return err
	}
	if w.Nonce == "" {
		if w.TxHash == "" {
			return errors.New("withdraw has neither nonce nor transaction hash")
		}
		nonce, err := bc.findWithdrawNonce(ctx, w, tokenBytes, receiverBytes)
		if err != nil {
			return err
		}
		if err := bc.resolveWithdraw(ctx, w, nonce); err != nil {
			return err
		}
	}
	if w.Signature != "" {
		return nil
	}
	if err := bc.signWithdraw(ctx, w, tokenBytes, receiverBytes); err != nil {
		return err
	}
	log.WithFields("chain", w.Chain.String(), "nonce", w.Nonce).Info("resumed withdraw signed")
	return nil
}

func (bc *BridgeController) findWithdrawNonce(ctx context.Context, w *models.PendingWithdraw, tokenBytes, receiverBytes []byte) (string, error) {
	locked, err := bc.ledger.GetWithdrawByReceiver(ctx, w.Chain, receiverBytes)
	if err != nil {
		return "", err
	}
	contractID := base58.Encode(tokenBytes)
	for _, t := range locked {
		if t.ContractID != contractID || t.Amount != w.Amount {
			continue
		}
		_, err := bc.storage.GetWithdraw(ctx, w.Chain, t.Nonce)
		if errors.Is(err, gerror.ErrStorageNotFound) {
			return t.Nonce, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("withdraw %s: %w", w.TxHash, ledger.ErrNonceNotInLogs)
}

func (bc *BridgeController) resolveWithdraw(ctx context.Context, w *models.PendingWithdraw, nonce string) error {
	if err := bc.storage.ResolveWithdraw(ctx, w.Chain, w.TxHash, nonce); err != nil {
		return err
	}
	w.Nonce = nonce
	w.Status = models.WithdrawStatusLedgerNonceAllocated
	bc.pushWithdraw(w)
	return nil
}

func (bc *BridgeController) signWithdraw(ctx context.Context, w *models.PendingWithdraw, tokenBytes, receiverBytes []byte) error {
	sig, err := bc.mpc.SignWithdraw(ctx, mpc.WithdrawRequest{
		Nonce:    w.Nonce,
		ChainID:  int64(w.Chain),
		Token:    tokenBytes,
		Receiver: receiverBytes,
		Amount:   w.Amount,
	})
	if err != nil {
		return err
	}
	w.Signature = sig.String()
	w.Status = models.WithdrawStatusSignatureObtained
	if err := bc.storage.AddWithdraw(ctx, w); err != nil {
		return err
	}
	bc.pushWithdraw(w)
	return nil
}

// ClearLocker removes from the ledger locker every withdrawal of receiver that the
// destination chain already reports as claimed. It returns how many were cleared.
func (bc *BridgeController) ClearLocker(ctx context.Context, chain omni.Network, receiver string) (int, error) {
	adapter, err := bc.Adapter(chain)
	if err != nil {
		return 0, err
	}
	receiverBytes, err := omni.EncodeAddress(chain, receiver)
	if err != nil {
		return 0, err
	}
	locked, err := bc.ledger.GetWithdrawByReceiver(ctx, chain, receiverBytes)
	if err != nil {
		return 0, err
	}
	requests := make([]ledger.ClearRequest, 0, len(locked))
	for _, t := range locked {
		used, err := adapter.IsWithdrawUsed(ctx, t.Nonce, receiver)
		if err != nil {
			return 0, err
		}
		if !used {
			continue
		}
		sig, err := bc.mpc.SignClear(ctx, mpc.ClearRequest{Nonce: t.Nonce, ChainID: int64(chain), Receiver: receiverBytes})
		if err != nil {
			return 0, err
		}
		requests = append(requests, ledger.ClearRequest{Nonce: t.Nonce, Signature: sig.String()})
	}
	if len(requests) == 0 {
		return 0, nil
	}
	hash, err := bc.ledger.ClearWithdrawals(ctx, requests)
	if err != nil {
		return 0, err
	}
	log.WithFields("chain", chain.String(), "receiver", receiver).Infof("cleared %d locker entries in %s", len(requests), hash)
	for _, r := range requests {
		err := bc.storage.CompleteWithdraw(ctx, chain, r.Nonce, "")
		if err != nil && !errors.Is(err, gerror.ErrStorageNotFound) {
			return len(requests), err
		}
	}
	return len(requests), nil
}

// CompleteWithdraw claims a signed withdrawal on its destination chain with signer paying the fee.
// A withdrawal the chain already reports as claimed is stored as completed and the
// AlreadyClaimedError is returned.
func (bc *BridgeController) CompleteWithdraw(ctx context.Context, w *models.PendingWithdraw, signer models.Signer) (string, error) {
	if w == nil || w.Nonce == "" {
		return "", errors.New("withdraw has no nonce")
	}
	if w.Signature == "" {
		return "", errors.New("withdraw has no mpc signature")
	}
	adapter, err := bc.Adapter(w.Chain)
	if err != nil {
		return "", err
	}
	logger := log.WithFields("chain", w.Chain.String(), "nonce", w.Nonce)

	stored, err := bc.storage.GetWithdraw(ctx, w.Chain, w.Nonce)
	switch {
	case errors.Is(err, gerror.ErrStorageNotFound):
		if err := bc.storage.AddWithdraw(ctx, w); err != nil {
			return "", err
		}
	case err != nil:
		return "", err
	case stored.Completed:
		return stored.TxHash, &gerror.AlreadyClaimedError{Chain: int64(w.Chain), Nonce: w.Nonce}
	}

	f, err := adapter.GetWithdrawFee(ctx, w.Receiver, w.Token)
	if err != nil {
		return "", err
	}
	if err := bc.checkGas(ctx, adapter, f, signer.Address()); err != nil {
		return "", err
	}

	pending, err := bc.storage.GetPendingWithdraws(ctx, w.Chain, w.Receiver)
	if err != nil {
		return "", err
	}
	pendingNonces := make([]string, 0, len(pending))
	for _, p := range pending {
		if p.Nonce != "" && p.Nonce != w.Nonce {
			pendingNonces = append(pendingNonces, p.Nonce)
		}
	}
	sig, err := mpc.Signature(w.Signature).Bytes()
	if err != nil {
		return "", err
	}

	w.Status = models.WithdrawStatusClaimSubmitted
	txHash, err := adapter.Withdraw(ctx, models.WithdrawRequest{
		Nonce:         w.Nonce,
		Token:         w.Token,
		Receiver:      w.Receiver,
		Amount:        w.AmountInt(),
		Signature:     sig,
		Signer:        signer,
		PendingNonces: pendingNonces,
	})
	if errors.Is(err, gerror.ErrAlreadyClaimed) {
		logger.Info("withdraw already claimed on the destination chain")
		w.Completed = true
		w.Status = models.WithdrawStatusCompleted
		if serr := bc.storage.CompleteWithdraw(ctx, w.Chain, w.Nonce, ""); serr != nil {
			return "", serr
		}
		bc.pushWithdraw(w)
		return "", err
	}
	if err != nil {
		w.Status = models.WithdrawStatusSignatureObtained
		return "", err
	}
	w.Completed = true
	w.TxHash = txHash
	w.Status = models.WithdrawStatusCompleted
	if err := bc.storage.CompleteWithdraw(ctx, w.Chain, w.Nonce, txHash); err != nil {
		return txHash, err
	}
	bc.pushWithdraw(w)
	logger.Infof("withdraw claimed in %s", txHash)
	return txHash, nil
}
