package claimtxman

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/omnibridge/omnibridge-service/bridgectrl"
	"github.com/omnibridge/omnibridge-service/db/memstorage"
	"github.com/omnibridge/omnibridge-service/fee"
	"github.com/omnibridge/omnibridge-service/models"
	"github.com/omnibridge/omnibridge-service/omni"
	"github.com/omnibridge/omnibridge-service/utils/gerror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type usedAdapter struct {
	bridgectrl.ChainAdapter
	chain omni.Network
	used  map[string]bool
}

func (a *usedAdapter) Chain() omni.Network { return a.chain }

func (a *usedAdapter) IsWithdrawUsed(_ context.Context, nonce, _ string) (bool, error) {
	return a.used[nonce], nil
}

func (a *usedAdapter) GetWithdrawFee(context.Context, string, string) (*fee.ReviewFee, error) {
	return fee.NewFixed(a.chain, big.NewInt(1)), nil
}

type fakeBridge struct {
	adapters  map[omni.Network]bridgectrl.ChainAdapter
	finalized []string
	fail      map[string]error
	// nonces found on chain by deposit tx hash
	onChain   map[string]string
	resumed   []string
	resumeErr error
}

func (b *fakeBridge) ResolveDeposit(_ context.Context, d *models.PendingDeposit) error {
	nonce, ok := b.onChain[d.TxHash]
	if !ok {
		return &gerror.DepositNotFoundError{Chain: int64(d.Chain), TxHash: d.TxHash}
	}
	d.Nonce = nonce
	d.Status = models.DepositStatusNonceResolved
	return nil
}

func (b *fakeBridge) ResumeWithdraw(_ context.Context, w *models.PendingWithdraw) error {
	b.resumed = append(b.resumed, w.Nonce+"/"+w.TxHash)
	return b.resumeErr
}

func (b *fakeBridge) Adapter(chain omni.Network) (bridgectrl.ChainAdapter, error) {
	a, ok := b.adapters[chain]
	if !ok {
		return nil, &gerror.UnsupportedChainError{Chain: int64(chain)}
	}
	return a, nil
}

func (b *fakeBridge) FinalizeDeposit(_ context.Context, d *models.PendingDeposit, signer models.Signer) (models.FinalizeOutcome, error) {
	b.finalized = append(b.finalized, d.Nonce)
	if err := b.fail[d.Nonce]; err != nil {
		return 0, err
	}
	return models.Finalized, nil
}

func newManager(t *testing.T, cfg Config, bridge *fakeBridge, storage storageInterface) *ClaimTxManager {
	tm, err := NewClaimTxManager(context.Background(), cfg, bridge, storage)
	require.NoError(t, err)
	return tm
}

func TestMonitorDepositsResolvesSubmitted(t *testing.T) {
	ctx := context.Background()
	storage := memstorage.New()
	require.NoError(t, storage.AddDeposit(ctx, &models.PendingDeposit{Chain: omni.Base, Nonce: "1", Amount: "1", Timestamp: 1, Status: models.DepositStatusNonceResolved}))
	require.NoError(t, storage.AddDeposit(ctx, &models.PendingDeposit{Chain: omni.Base, Nonce: "2", Amount: "1", Timestamp: 2, Status: models.DepositStatusLedgerCredited}))
	require.NoError(t, storage.AddDeposit(ctx, &models.PendingDeposit{Chain: omni.Ton, TxHash: "tonTx", Amount: "1", Timestamp: 3, Status: models.DepositStatusSubmitted}))
	require.NoError(t, storage.AddDeposit(ctx, &models.PendingDeposit{Chain: omni.Solana, TxHash: "solTx", Amount: "1", Timestamp: 4, Status: models.DepositStatusSubmitted}))
	bridge := &fakeBridge{onChain: map[string]string{"tonTx": "3"}}

	tm := newManager(t, Config{}, bridge, storage)
	require.NoError(t, tm.MonitorTxs(ctx))
	assert.Equal(t, []string{"1", "3"}, bridge.finalized)
	assert.Equal(t, 1, tm.attempts.Get("solana:tx:solTx"))

	bridge.onChain["solTx"] = "4"
	require.NoError(t, tm.MonitorTxs(ctx))
	assert.Equal(t, []string{"1", "3", "1", "3", "4"}, bridge.finalized)
	assert.Equal(t, 0, tm.attempts.Get("solana:tx:solTx"))
}

func TestMonitorDepositsMarksUnresolvableNotFound(t *testing.T) {
	ctx := context.Background()
	storage := memstorage.New()
	require.NoError(t, storage.AddDeposit(ctx, &models.PendingDeposit{Chain: omni.Ton, TxHash: "lost", Amount: "1", Status: models.DepositStatusSubmitted}))
	bridge := &fakeBridge{}

	tm := newManager(t, Config{RetryNumber: 2}, bridge, storage)
	for i := 0; i < 3; i++ {
		require.NoError(t, tm.MonitorTxs(ctx))
	}
	assert.Empty(t, bridge.finalized)
	pending, err := storage.GetPendingDeposits(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestMonitorDepositsGivesUpAfterRetryNumber(t *testing.T) {
	ctx := context.Background()
	storage := memstorage.New()
	require.NoError(t, storage.AddDeposit(ctx, &models.PendingDeposit{Chain: omni.Base, Nonce: "5", Amount: "1", Status: models.DepositStatusNonceResolved}))
	bridge := &fakeBridge{fail: map[string]error{"5": errors.New("mpc unavailable")}}

	tm := newManager(t, Config{RetryNumber: 2}, bridge, storage)
	for i := 0; i < 4; i++ {
		require.NoError(t, tm.MonitorTxs(ctx))
	}
	assert.Equal(t, []string{"5", "5"}, bridge.finalized)
	assert.Equal(t, 2, tm.attempts.Get("base:5"))
}

func TestMonitorWithdrawsMarksClaimed(t *testing.T) {
	ctx := context.Background()
	storage := memstorage.New()
	require.NoError(t, storage.AddWithdraw(ctx, &models.PendingWithdraw{Chain: omni.Ton, Nonce: "7", Receiver: "r", Amount: "1", Signature: "sig"}))
	require.NoError(t, storage.AddWithdraw(ctx, &models.PendingWithdraw{Chain: omni.Ton, Nonce: "8", Receiver: "r", Amount: "1", Signature: "sig"}))
	require.NoError(t, storage.AddWithdraw(ctx, &models.PendingWithdraw{Chain: omni.Ton, Nonce: "9", Receiver: "r", Amount: "1"}))
	require.NoError(t, storage.AddWithdraw(ctx, &models.PendingWithdraw{Chain: omni.Stellar, Nonce: "1", Receiver: "r", Amount: "1", Signature: "sig"}))
	adapter := &usedAdapter{chain: omni.Ton, used: map[string]bool{"7": true, "9": true}}
	bridge := &fakeBridge{
		adapters:  map[omni.Network]bridgectrl.ChainAdapter{omni.Ton: adapter},
		resumeErr: errors.New("mpc unavailable"),
	}

	tm := newManager(t, Config{}, bridge, storage)
	require.NoError(t, tm.MonitorTxs(ctx))

	w, err := storage.GetWithdraw(ctx, omni.Ton, "7")
	require.NoError(t, err)
	assert.True(t, w.Completed)
	for _, nonce := range []string{"8", "9"} {
		w, err := storage.GetWithdraw(ctx, omni.Ton, nonce)
		require.NoError(t, err)
		assert.False(t, w.Completed, nonce)
	}
	pending, err := storage.GetPendingWithdraws(ctx, 0, "")
	require.NoError(t, err)
	assert.Len(t, pending, 3)
	assert.Equal(t, []string{"9/"}, bridge.resumed)
}

func TestMonitorWithdrawsResumesUnsigned(t *testing.T) {
	ctx := context.Background()
	storage := memstorage.New()
	require.NoError(t, storage.AddWithdraw(ctx, &models.PendingWithdraw{Chain: omni.Ton, Receiver: "r", Amount: "1", TxHash: "nearTx", Status: models.WithdrawStatusIntentSigned}))
	adapter := &usedAdapter{chain: omni.Ton, used: map[string]bool{}}
	bridge := &fakeBridge{adapters: map[omni.Network]bridgectrl.ChainAdapter{omni.Ton: adapter}}

	tm := newManager(t, Config{}, bridge, storage)
	require.NoError(t, tm.MonitorTxs(ctx))
	assert.Equal(t, []string{"/nearTx"}, bridge.resumed)
}

func TestStartStops(t *testing.T) {
	tm := newManager(t, Config{}, &fakeBridge{}, memstorage.New())
	done := make(chan struct{})
	go func() {
		tm.Start()
		close(done)
	}()
	tm.Stop()
	<-done
}

func TestNewClaimTxManagerNeedsDeps(t *testing.T) {
	_, err := NewClaimTxManager(context.Background(), Config{}, nil, memstorage.New())
	require.Error(t, err)
}
