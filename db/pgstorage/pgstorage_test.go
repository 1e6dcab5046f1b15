package pgstorage

import (
	"context"
	"errors"
	"testing"

	"github.com/omnibridge/omnibridge-service/models"
	"github.com/omnibridge/omnibridge-service/omni"
	"github.com/omnibridge/omnibridge-service/utils/gerror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *PostgresStorage {
	cfg := NewConfigFromEnv()
	if err := InitOrReset(cfg); err != nil {
		t.Skipf("postgres not available: %v", err)
	}
	pg, err := NewPostgresStorage(cfg)
	require.NoError(t, err)
	t.Cleanup(pg.Close)
	return pg
}

func TestDepositLifecycle(t *testing.T) {
	pg := newTestStorage(t)
	ctx := context.Background()

	deposit := &models.PendingDeposit{
		Chain:         omni.Base,
		Nonce:         "1717000000000000001",
		Token:         "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		Amount:        "340282366920938463463374607431768211455",
		Receiver:      "5Hw8oKXw4aLq",
		Sender:        "0x0000000000000000000000000000000000000001",
		IntentAccount: "alice.near",
		TxHash:        "0xabc",
		Timestamp:     100,
		Status:        models.DepositStatusNonceResolved,
	}
	require.NoError(t, pg.AddDeposit(ctx, deposit))

	got, err := pg.GetDeposit(ctx, omni.Base, deposit.Nonce)
	require.NoError(t, err)
	assert.Equal(t, deposit, got)

	pending, err := pg.GetPendingDeposits(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, pg.UpdateDepositStatus(ctx, omni.Base, deposit.Nonce, models.DepositStatusLedgerCredited))
	pending, err = pg.GetPendingDeposits(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 0)

	_, err = pg.GetDeposit(ctx, omni.Ton, deposit.Nonce)
	assert.True(t, errors.Is(err, gerror.ErrStorageNotFound))
	assert.True(t, errors.Is(pg.UpdateDepositStatus(ctx, omni.Ton, "1", models.DepositStatusCleared), gerror.ErrStorageNotFound))
}

func TestDepositInsideTransaction(t *testing.T) {
	pg := newTestStorage(t)
	ctx := context.Background()

	tx, err := pg.BeginDBTransaction(ctx)
	require.NoError(t, err)
	require.NoError(t, pg.AddDepositTx(ctx, &models.PendingDeposit{Chain: omni.Ton, Nonce: "7", Token: "native", Status: models.DepositStatusSubmitted}, tx))
	require.NoError(t, pg.Rollback(ctx, tx))

	_, err = pg.GetDeposit(ctx, omni.Ton, "7")
	assert.True(t, errors.Is(err, gerror.ErrStorageNotFound))
	assert.Equal(t, gerror.ErrNilDBTransaction, pg.Commit(ctx, nil))
}

func TestWithdrawLifecycle(t *testing.T) {
	pg := newTestStorage(t)
	ctx := context.Background()

	for _, w := range []*models.PendingWithdraw{
		{Chain: omni.Ton, Nonce: "11", Token: "native", Receiver: "EQa", Amount: "5", Timestamp: 2, Status: models.WithdrawStatusSignatureObtained},
		{Chain: omni.Ton, Nonce: "10", Token: "native", Receiver: "EQa", Amount: "5", Timestamp: 1, Status: models.WithdrawStatusSignatureObtained},
		{Chain: omni.Solana, Nonce: "3", Token: "native", Receiver: "So1", Amount: "1", Timestamp: 3, Status: models.WithdrawStatusSignatureObtained},
	} {
		require.NoError(t, pg.AddWithdraw(ctx, w))
	}

	list, err := pg.GetPendingWithdraws(ctx, omni.Ton, "EQa")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "10", list[0].Nonce)

	require.NoError(t, pg.CompleteWithdraw(ctx, omni.Ton, "10", "hash"))
	w, err := pg.GetWithdraw(ctx, omni.Ton, "10")
	require.NoError(t, err)
	assert.True(t, w.Completed)
	assert.Equal(t, "hash", w.TxHash)
	assert.Equal(t, models.WithdrawStatusCompleted, w.Status)

	list, err = pg.GetPendingWithdraws(ctx, 0, "")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	assert.True(t, errors.Is(pg.CompleteWithdraw(ctx, omni.Ton, "99", ""), gerror.ErrStorageNotFound))
}

func TestResolveUnresolvedTransfers(t *testing.T) {
	pg := newTestStorage(t)
	ctx := context.Background()

	for _, hash := range []string{"tx-a", "tx-b"} {
		require.NoError(t, pg.AddDeposit(ctx, &models.PendingDeposit{
			Chain: omni.Ton, Token: "native", Amount: "1", TxHash: hash, Reference: "99", Status: models.DepositStatusSubmitted,
		}))
	}
	// same tx hash again replaces the record
	require.NoError(t, pg.AddDeposit(ctx, &models.PendingDeposit{
		Chain: omni.Ton, Token: "native", Amount: "2", TxHash: "tx-a", Reference: "99", Status: models.DepositStatusSubmitted,
	}))
	pending, err := pg.GetPendingDeposits(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	require.NoError(t, pg.ResolveDeposit(ctx, omni.Ton, "tx-a", "5"))
	d, err := pg.GetDeposit(ctx, omni.Ton, "5")
	require.NoError(t, err)
	assert.Equal(t, "2", d.Amount)
	assert.Equal(t, "99", d.Reference)
	assert.Equal(t, models.DepositStatusNonceResolved, d.Status)
	assert.True(t, errors.Is(pg.ResolveDeposit(ctx, omni.Ton, "tx-a", "5"), gerror.ErrStorageNotFound))

	require.NoError(t, pg.AddWithdraw(ctx, &models.PendingWithdraw{
		Chain: omni.Base, Token: "native", Receiver: "0x1", Amount: "3", TxHash: "near-tx", Status: models.WithdrawStatusIntentSigned,
	}))
	require.NoError(t, pg.ResolveWithdraw(ctx, omni.Base, "near-tx", "17"))
	w, err := pg.GetWithdraw(ctx, omni.Base, "17")
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawStatusLedgerNonceAllocated, w.Status)
}
