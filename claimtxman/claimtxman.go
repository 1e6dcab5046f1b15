package claimtxman

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/omnibridge/omnibridge-service/log"
	"github.com/omnibridge/omnibridge-service/metrics"
	"github.com/omnibridge/omnibridge-service/models"
	"github.com/omnibridge/omnibridge-service/utils"
	"github.com/omnibridge/omnibridge-service/utils/gerror"
)

const (
	defaultFrequency = time.Minute
	pendingDeposits  = "deposit"
	pendingWithdraws = "withdraw"
)

// ClaimTxManager drives unfinished transfers to completion. Submitted deposits get
// their nonce resolved and resolved deposits are finalized on the ledger again.
// Withdrawals missing a nonce or a signature are resumed and signed withdrawals the
// destination chain already reports as claimed are marked completed.
type ClaimTxManager struct {
	ctx    context.Context
	cancel context.CancelFunc

	cfg      Config
	bridge   bridgeServiceInterface
	storage  storageInterface
	attempts *AttemptCache
}

// NewClaimTxManager creates a new claim transaction manager.
func NewClaimTxManager(ctx context.Context, cfg Config, bridge bridgeServiceInterface, storage storageInterface) (*ClaimTxManager, error) {
	if bridge == nil || storage == nil {
		return nil, errors.New("claim tx manager needs a bridge controller and a storage")
	}
	attempts, err := NewAttemptCache()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	return &ClaimTxManager{
		ctx:      ctx,
		cancel:   cancel,
		cfg:      cfg,
		bridge:   bridge,
		storage:  storage,
		attempts: attempts,
	}, nil
}

// Start reviews the pending transfers periodically until Stop is called
func (tm *ClaimTxManager) Start() {
	frequency := tm.cfg.FrequencyToMonitorTxs.Duration
	if frequency <= 0 {
		frequency = defaultFrequency
	}
	ticker := time.NewTicker(frequency)
	defer ticker.Stop()
	for {
		select {
		case <-tm.ctx.Done():
			return
		case <-ticker.C:
			if err := tm.MonitorTxs(tm.ctx); err != nil {
				log.Errorf("failed to monitor pending transfers: %v", err)
			}
		}
	}
}

// Stop ends the Start loop
func (tm *ClaimTxManager) Stop() {
	tm.cancel()
}

// MonitorTxs runs one review round over the pending deposits and withdrawals
func (tm *ClaimTxManager) MonitorTxs(ctx context.Context) error {
	ctx = utils.WithTraceID(ctx)
	depositErr := tm.monitorDeposits(ctx)
	withdrawErr := tm.monitorWithdraws(ctx)
	return errors.Join(depositErr, withdrawErr)
}

func (tm *ClaimTxManager) monitorDeposits(ctx context.Context) error {
	deposits, err := tm.storage.GetPendingDeposits(ctx, tm.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("load pending deposits: %w", err)
	}
	metrics.RecordPending(pendingDeposits, len(deposits))
	for _, d := range deposits {
		if d.Nonce == "" {
			if d.TxHash == "" || !tm.resolveDeposit(ctx, d) {
				continue
			}
		}
		key := transferKey(d.Chain, d.Nonce)
		if tm.exhausted(key) {
			continue
		}
		dLog := log.WithFields("chain", d.Chain.String(), "nonce", d.Nonce)
		outcome, err := tm.bridge.FinalizeDeposit(ctx, d, nil)
		if err != nil {
			tm.failed(key, dLog, "finalize", err)
			continue
		}
		tm.attempts.Remove(key)
		dLog.Infof("pending deposit %s", outcome)
	}
	return nil
}

// resolveDeposit reports whether the submitted deposit now has a nonce.
// A deposit that stays unresolved past the retry limit is stored as not_found.
func (tm *ClaimTxManager) resolveDeposit(ctx context.Context, d *models.PendingDeposit) bool {
	key := transferKey(d.Chain, "tx:"+d.TxHash)
	if tm.exhausted(key) {
		return false
	}
	dLog := log.WithFields("chain", d.Chain.String(), "txHash", d.TxHash)
	if err := tm.bridge.ResolveDeposit(ctx, d); err != nil {
		if tm.failed(key, dLog, "resolve", err) {
			d.Status = models.DepositStatusNotFound
			if serr := tm.storage.AddDeposit(ctx, d); serr != nil {
				dLog.Errorf("failed to store unresolved deposit: %v", serr)
			}
			metrics.RecordDeposit(int64(d.Chain), d.Status.String())
		}
		return false
	}
	tm.attempts.Remove(key)
	return true
}

func (tm *ClaimTxManager) exhausted(key string) bool {
	return tm.cfg.RetryNumber > 0 && tm.attempts.Get(key) >= tm.cfg.RetryNumber
}

// failed counts a failed attempt and reports whether the retry limit was reached
func (tm *ClaimTxManager) failed(key string, logger *log.Logger, action string, err error) bool {
	n := tm.attempts.Inc(key)
	if tm.cfg.RetryNumber > 0 && n >= tm.cfg.RetryNumber {
		logger.Errorf("giving up %s after %d attempts: %v", action, n, err)
		return true
	}
	logger.Warnf("%s attempt %d failed: %v", action, n, err)
	return false
}

func (tm *ClaimTxManager) monitorWithdraws(ctx context.Context) error {
	withdraws, err := tm.storage.GetPendingWithdraws(ctx, 0, "")
	if err != nil {
		return fmt.Errorf("load pending withdraws: %w", err)
	}
	metrics.RecordPending(pendingWithdraws, len(withdraws))
	for _, w := range withdraws {
		if w.Nonce == "" || w.Signature == "" {
			key := transferKey(w.Chain, "withdraw:"+w.Nonce+":"+w.TxHash)
			if tm.exhausted(key) {
				continue
			}
			rLog := log.WithFields("chain", w.Chain.String(), "txHash", w.TxHash)
			if err := tm.bridge.ResumeWithdraw(ctx, w); err != nil {
				tm.failed(key, rLog, "resume withdraw", err)
				continue
			}
			tm.attempts.Remove(key)
		}
		wLog := log.WithFields("chain", w.Chain.String(), "nonce", w.Nonce)
		adapter, err := tm.bridge.Adapter(w.Chain)
		if err != nil {
			wLog.Debugf("no adapter: %v", err)
			continue
		}
		used, err := adapter.IsWithdrawUsed(ctx, w.Nonce, w.Receiver)
		if err != nil {
			wLog.Warnf("failed to read withdraw state: %v", err)
			continue
		}
		if !used {
			continue
		}
		err = tm.storage.CompleteWithdraw(ctx, w.Chain, w.Nonce, "")
		if err != nil && !errors.Is(err, gerror.ErrStorageNotFound) {
			return err
		}
		metrics.RecordWithdraw(int64(w.Chain), models.WithdrawStatusCompleted.String())
		wLog.Info("withdraw claimed on the destination chain")
	}
	return nil
}

func transferKey(chain fmt.Stringer, nonce string) string {
	return chain.String() + ":" + nonce
}
