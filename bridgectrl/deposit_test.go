package bridgectrl

import (
	"context"
	"math/big"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/omnibridge/omnibridge-service/fee"
	"github.com/omnibridge/omnibridge-service/ledger"
	"github.com/omnibridge/omnibridge-service/models"
	"github.com/omnibridge/omnibridge-service/mpc"
	"github.com/omnibridge/omnibridge-service/omni"
	"github.com/omnibridge/omnibridge-service/utils"
	"github.com/omnibridge/omnibridge-service/utils/gerror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestDepositTokenBaseUSDC(t *testing.T) {
	ctx := context.Background()
	adapter := newFakeAdapter(omni.Base)
	adapter.nonce = "1717171717000001"
	env := newTestEnv(t, adapter)

	usdc, err := omni.EncodeAddress(omni.Base, usdcBase)
	require.NoError(t, err)
	env.ledger.On("IsExecuted", mock.Anything, omni.Base, adapter.nonce).Return(false, nil).Once()
	env.mpc.On("SignDeposit", mock.Anything, mpc.DepositRequest{
		Nonce:    adapter.nonce,
		ChainID:  8453,
		Token:    base58.Encode(usdc),
		Receiver: "alice.near",
		Amount:   "1000000",
	}).Return(mpc.Signature("3mJr7AoUXx2Wqd"), nil).Once()
	env.ledger.On("FinalizeDeposit", mock.Anything, ledger.DepositProof{
		Nonce:         adapter.nonce,
		ChainID:       8453,
		Token:         usdc,
		IntentAccount: "alice.near",
		Amount:        "1000000",
		Signature:     "3mJr7AoUXx2Wqd",
	}).Return("nearTxHash", nil).Once()

	deposit, outcome, err := env.bc.DepositToken(ctx, omni.Base, usdcBase, big.NewInt(1_000_000), addrSigner(evmSender), "alice.near")
	require.NoError(t, err)
	assert.Equal(t, models.Finalized, outcome)
	assert.Equal(t, adapter.nonce, deposit.Nonce)
	// EVM keeps no deposit record to reclaim
	assert.Equal(t, models.DepositStatusLedgerCredited, deposit.Status)
	require.Len(t, adapter.deposits, 1)
	assert.Equal(t, "alice.near", adapter.deposits[0].IntentAccount)
	assert.Equal(t, []string{adapter.nonce}, adapter.cleared)

	stored, err := env.storage.GetDeposit(ctx, omni.Base, adapter.nonce)
	require.NoError(t, err)
	assert.Equal(t, models.DepositStatusLedgerCredited, stored.Status)

	// finalizing again observes the stored result and submits nothing
	outcome, err = env.bc.FinalizeDeposit(ctx, deposit, addrSigner(evmSender))
	require.NoError(t, err)
	assert.Equal(t, models.AlreadyClaimed, outcome)
	env.ledger.AssertNumberOfCalls(t, "FinalizeDeposit", 1)
	env.ledger.AssertNumberOfCalls(t, "IsExecuted", 1)
	env.mpc.AssertExpectations(t)

	msgs := env.producer.GetFakeMessages(kafkaTopic)
	assert.Len(t, msgs, 2)
}

func TestDepositTokenClearsReclaimableRecord(t *testing.T) {
	ctx := context.Background()
	adapter := newFakeAdapter(omni.Ton)
	adapter.nonce = "12"
	env := newTestEnv(t, adapter)
	env.ledger.On("IsExecuted", mock.Anything, omni.Ton, "12").Return(false, nil)
	env.mpc.On("SignDeposit", mock.Anything, mock.Anything).Return(mpc.Signature("2g"), nil)
	env.ledger.On("FinalizeDeposit", mock.Anything, mock.Anything).Return("nearTx", nil)

	deposit, outcome, err := env.bc.DepositToken(ctx, omni.Ton, utils.NativeToken, big.NewInt(5), addrSigner("EQsender"), "alice.near")
	require.NoError(t, err)
	assert.Equal(t, models.Finalized, outcome)
	assert.Equal(t, models.DepositStatusCleared, deposit.Status)

	stored, err := env.storage.GetDeposit(ctx, omni.Ton, "12")
	require.NoError(t, err)
	assert.Equal(t, models.DepositStatusCleared, stored.Status)
}

func TestDepositTokenStoresUnresolvedDeposit(t *testing.T) {
	ctx := context.Background()
	adapter := newFakeAdapter(omni.Ton)
	adapter.unresolved = true
	env := newTestEnv(t, adapter)

	deposit, _, err := env.bc.DepositToken(ctx, omni.Ton, utils.NativeToken, big.NewInt(5), addrSigner("EQsender"), "alice.near")
	require.ErrorIs(t, err, gerror.ErrDepositNotFound)
	require.NotNil(t, deposit)
	assert.Empty(t, deposit.Nonce)
	assert.Equal(t, "0xdeposit", deposit.TxHash)
	assert.Equal(t, "alice.near", deposit.IntentAccount)
	assert.Equal(t, models.DepositStatusSubmitted, deposit.Status)

	pending, err := env.storage.GetPendingDeposits(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "0xdeposit", pending[0].TxHash)
	assert.NotZero(t, pending[0].Timestamp)

	// not yet visible on chain
	require.ErrorIs(t, env.bc.ResolveDeposit(ctx, pending[0]), gerror.ErrDepositNotFound)

	adapter.resolveNonce = "31"
	require.NoError(t, env.bc.ResolveDeposit(ctx, pending[0]))
	assert.Equal(t, "31", pending[0].Nonce)
	stored, err := env.storage.GetDeposit(ctx, omni.Ton, "31")
	require.NoError(t, err)
	assert.Equal(t, models.DepositStatusNonceResolved, stored.Status)
	env.ledger.AssertNotCalled(t, "FinalizeDeposit", mock.Anything, mock.Anything)
}

func TestFinalizeDepositLedgerReportsUsed(t *testing.T) {
	ctx := context.Background()
	adapter := newFakeAdapter(omni.Ton)
	env := newTestEnv(t, adapter)
	deposit := &models.PendingDeposit{Chain: omni.Ton, Nonce: "99", Token: utils.NativeToken, Amount: "500", IntentAccount: "bob.near"}

	env.ledger.On("IsExecuted", mock.Anything, omni.Ton, "99").Return(false, nil)
	env.mpc.On("SignDeposit", mock.Anything, mock.Anything).Return(mpc.Signature("2g"), nil)
	env.ledger.On("FinalizeDeposit", mock.Anything, mock.Anything).Return("", &gerror.AlreadyClaimedError{Chain: int64(omni.Ton), Nonce: "99"})

	outcome, err := env.bc.FinalizeDeposit(ctx, deposit, nil)
	require.NoError(t, err)
	assert.Equal(t, models.AlreadyClaimed, outcome)
	assert.Empty(t, adapter.cleared)

	stored, err := env.storage.GetDeposit(ctx, omni.Ton, "99")
	require.NoError(t, err)
	assert.Equal(t, models.DepositStatusAlreadyClaimed, stored.Status)
}

func TestFinalizeDepositExecutedOnLedger(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, newFakeAdapter(omni.Solana))
	deposit := &models.PendingDeposit{Chain: omni.Solana, Nonce: "5", Token: utils.NativeToken, Amount: "1", IntentAccount: "bob.near"}
	env.ledger.On("IsExecuted", mock.Anything, omni.Solana, "5").Return(true, nil)

	outcome, err := env.bc.FinalizeDeposit(ctx, deposit, nil)
	require.NoError(t, err)
	assert.Equal(t, models.AlreadyClaimed, outcome)
	env.mpc.AssertNotCalled(t, "SignDeposit", mock.Anything, mock.Anything)
	env.ledger.AssertNotCalled(t, "FinalizeDeposit", mock.Anything, mock.Anything)
}

func TestFinalizeDepositErrorKeepsDepositResumable(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, newFakeAdapter(omni.Base))
	deposit := &models.PendingDeposit{Chain: omni.Base, Nonce: "8", Token: usdcBase, Amount: "1", IntentAccount: "bob.near"}
	env.ledger.On("IsExecuted", mock.Anything, omni.Base, "8").Return(false, nil)
	env.mpc.On("SignDeposit", mock.Anything, mock.Anything).Return(mpc.Signature(""), assert.AnError)

	_, err := env.bc.FinalizeDeposit(ctx, deposit, nil)
	require.ErrorIs(t, err, assert.AnError)

	stored, err := env.storage.GetDeposit(ctx, omni.Base, "8")
	require.NoError(t, err)
	assert.Equal(t, models.DepositStatusNonceResolved, stored.Status)
}

func TestDepositTokenInsufficientGas(t *testing.T) {
	adapter := newFakeAdapter(omni.Base)
	adapter.balances[utils.NativeToken] = big.NewInt(10)
	adapter.depositFee = fee.NewEvm(omni.Base, big.NewInt(2), big.NewInt(1), 100_000, false)
	env := newTestEnv(t, adapter)

	_, _, err := env.bc.DepositToken(context.Background(), omni.Base, usdcBase, big.NewInt(1), addrSigner(evmSender), "alice.near")
	var gasErr *gerror.InsufficientGasError
	require.ErrorAs(t, err, &gasErr)
	assert.Equal(t, "300000", gasErr.Need.String())
	assert.Equal(t, "10", gasErr.Have.String())
	assert.Empty(t, adapter.deposits)
}

func TestDepositTokenGaslessSkipsBalanceCheck(t *testing.T) {
	adapter := newFakeAdapter(omni.Base)
	adapter.balances[utils.NativeToken] = big.NewInt(0)
	adapter.depositFee = fee.NewGasless(omni.Base)
	env := newTestEnv(t, adapter)
	env.ledger.On("IsExecuted", mock.Anything, omni.Base, "1").Return(true, nil)

	_, outcome, err := env.bc.DepositToken(context.Background(), omni.Base, usdcBase, big.NewInt(1), addrSigner(evmSender), "alice.near")
	require.NoError(t, err)
	assert.Equal(t, models.AlreadyClaimed, outcome)
	assert.Equal(t, 0, adapter.balanceCalls)
}

func TestDepositTokenRejectsBadInput(t *testing.T) {
	env := newTestEnv(t, newFakeAdapter(omni.Base))
	ctx := context.Background()

	_, _, err := env.bc.DepositToken(ctx, omni.Ton, utils.NativeToken, big.NewInt(1), addrSigner(evmSender), "alice.near")
	require.ErrorIs(t, err, gerror.ErrUnsupportedChain)

	_, _, err = env.bc.DepositToken(ctx, omni.Base, "0xnothex", big.NewInt(1), addrSigner(evmSender), "alice.near")
	require.ErrorIs(t, err, gerror.ErrDecode)

	_, _, err = env.bc.DepositToken(ctx, omni.Base, usdcBase, big.NewInt(0), addrSigner(evmSender), "alice.near")
	require.Error(t, err)
}
