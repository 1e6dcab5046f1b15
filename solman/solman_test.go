package solman

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/omnibridge/omnibridge-service/models"
	"github.com/omnibridge/omnibridge-service/omni"
	"github.com/omnibridge/omnibridge-service/retry"
	"github.com/omnibridge/omnibridge-service/utils"
	"github.com/omnibridge/omnibridge-service/utils/gerror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRPC struct {
	mu       sync.Mutex
	accounts map[solana.PublicKey][]byte
	lamports map[solana.PublicKey]uint64
	logs     []string
	txErr    interface{}
	rent     uint64
	sent     []*solana.Transaction
}

func newFakeRPC() *fakeRPC {
	return &fakeRPC{accounts: map[solana.PublicKey][]byte{}, lamports: map[solana.PublicKey]uint64{}, rent: 1_000_000}
}

func (f *fakeRPC) GetBalance(_ context.Context, account solana.PublicKey, _ rpc.CommitmentType) (*rpc.GetBalanceResult, error) {
	return &rpc.GetBalanceResult{Value: f.lamports[account]}, nil
}

func (f *fakeRPC) GetTokenAccountBalance(context.Context, solana.PublicKey, rpc.CommitmentType) (*rpc.GetTokenAccountBalanceResult, error) {
	return &rpc.GetTokenAccountBalanceResult{Value: &rpc.UiTokenAmount{Amount: "123456"}}, nil
}

func (f *fakeRPC) GetAccountInfo(_ context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.accounts[account]
	if !ok {
		return nil, rpc.ErrNotFound
	}
	return &rpc.GetAccountInfoResult{Value: &rpc.Account{Lamports: 1, Data: rpc.DataBytesOrJSONFromBytes(data)}}, nil
}

func (f *fakeRPC) GetLatestBlockhash(context.Context, rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	return &rpc.GetLatestBlockhashResult{Value: &rpc.LatestBlockhashResult{Blockhash: solana.Hash{1, 2, 3}}}, nil
}

func (f *fakeRPC) GetMinimumBalanceForRentExemption(context.Context, uint64, rpc.CommitmentType) (uint64, error) {
	return f.rent, nil
}

func (f *fakeRPC) SendTransactionWithOpts(_ context.Context, tx *solana.Transaction, _ rpc.TransactionOpts) (solana.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	return tx.Signatures[0], nil
}

func (f *fakeRPC) GetTransaction(context.Context, solana.Signature, *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error) {
	return &rpc.GetTransactionResult{Meta: &rpc.TransactionMeta{LogMessages: f.logs, Err: f.txErr}}, nil
}

// bridgeData returns the data of the bridge program instruction of tx
func (f *fakeRPC) bridgeData(t *testing.T, programID solana.PublicKey) []byte {
	require.NotEmpty(t, f.sent)
	tx := f.sent[len(f.sent)-1]
	for _, ix := range tx.Message.Instructions {
		if tx.Message.AccountKeys[ix.ProgramIDIndex].Equals(programID) {
			return ix.Data
		}
	}
	t.Fatal("no bridge instruction")
	return nil
}

func testSigner() *KeySigner {
	return &KeySigner{key: solana.NewWallet().PrivateKey}
}

func newTestClient(t *testing.T, api rpcAPI, locks *utils.SignerLock) *Client {
	c, err := newSolman(Config{
		ProgramID:   solana.NewWallet().PublicKey().String(),
		PriorityFee: 1,
		Confirm:     retry.NewPolicy(3, time.Millisecond),
	}, api, locks)
	require.NoError(t, err)
	return c
}

func stateData(next int64) []byte {
	n := NonceBytes(big.NewInt(next))
	return append(make([]byte, discriminatorLen), n[:]...)
}

func userData(last int64) []byte {
	return stateData(last)
}

func TestNonceBytesLittleEndian(t *testing.T) {
	n := NonceBytes(big.NewInt(0x0102))
	assert.Equal(t, byte(0x02), n[0])
	assert.Equal(t, byte(0x01), n[1])
	assert.Equal(t, "258", NonceFromBytes(n[:]).String())
}

func TestDiscriminator(t *testing.T) {
	assert.Len(t, Discriminator(IxNativeDeposit), 8)
	assert.NotEqual(t, Discriminator(IxNativeDeposit), Discriminator(IxTokenDeposit))
}

func TestNonceFromLogs(t *testing.T) {
	nonce, ok := NonceFromLogs([]string{
		"Program log: Instruction: NativeDeposit",
		"Program log: nonce: 17",
		`Program data: {"nonce":"18"}`,
	})
	require.True(t, ok)
	assert.Equal(t, "18", nonce)
	_, ok = NonceFromLogs([]string{"Program log: ok"})
	assert.False(t, ok)
}

func TestDepositNative(t *testing.T) {
	api := newFakeRPC()
	c := newTestClient(t, api, nil)
	state, err := c.program.State()
	require.NoError(t, err)
	api.accounts[state] = stateData(41)
	api.logs = []string{"Program log: Instruction: NativeDeposit", "Program log: nonce: 41"}
	signer := testSigner()

	deposit, err := c.Deposit(context.Background(), models.DepositRequest{
		Token: utils.NativeToken, Amount: big.NewInt(1_000_000_000), IntentAccount: "alice.near", Signer: signer,
	})
	require.NoError(t, err)
	assert.Equal(t, "41", deposit.Nonce)
	assert.Equal(t, omni.Solana, deposit.Chain)
	assert.Equal(t, models.DepositStatusNonceResolved, deposit.Status)
	assert.Equal(t, omni.EphemeralReceiverBase58("alice.near"), deposit.Receiver)

	data := api.bridgeData(t, c.program.id)
	assert.Equal(t, Discriminator(IxNativeDeposit), data[:8])
	assert.Equal(t, omni.EphemeralReceiver("alice.near"), data[8:40])
	assert.Equal(t, uint64(1_000_000_000), binary.LittleEndian.Uint64(data[40:48]))

	record, err := c.program.Deposit(signer.PublicKey(), big.NewInt(41))
	require.NoError(t, err)
	tx := api.sent[0]
	found := false
	for _, k := range tx.Message.AccountKeys {
		found = found || k.Equals(record)
	}
	assert.True(t, found)
}

func TestDepositWithoutNonceLog(t *testing.T) {
	api := newFakeRPC()
	c := newTestClient(t, api, nil)
	state, _ := c.program.State()
	api.accounts[state] = stateData(1)

	signer := testSigner()
	deposit, err := c.Deposit(context.Background(), models.DepositRequest{
		Token: utils.NativeToken, Amount: big.NewInt(1), IntentAccount: "alice.near", Signer: signer,
	})
	assert.True(t, errors.Is(err, gerror.ErrDepositNotFound))
	require.NotNil(t, deposit)
	require.Len(t, api.sent, 1)
	assert.Equal(t, api.sent[0].Signatures[0].String(), deposit.TxHash)
	assert.Empty(t, deposit.Nonce)
	assert.Equal(t, models.DepositStatusSubmitted, deposit.Status)
	assert.Equal(t, signer.Address(), deposit.Sender)
	assert.Equal(t, omni.EphemeralReceiverBase58("alice.near"), deposit.Receiver)

	api.logs = []string{"Program log: nonce: 1"}
	nonce, err := c.ResolveDepositNonce(context.Background(), deposit)
	require.NoError(t, err)
	assert.Equal(t, "1", nonce)
	assert.Len(t, api.sent, 1)

	_, err = c.ResolveDepositNonce(context.Background(), &models.PendingDeposit{TxHash: "not-base58!"})
	assert.True(t, errors.Is(err, gerror.ErrDecode))
}

func TestResolveDepositNonceFailedTransaction(t *testing.T) {
	api := newFakeRPC()
	api.txErr = map[string]interface{}{"InstructionError": []interface{}{2, "Custom"}}
	c := newTestClient(t, api, nil)
	sig := solana.Signature{9}

	_, err := c.ResolveDepositNonce(context.Background(), &models.PendingDeposit{TxHash: sig.String()})
	assert.True(t, errors.Is(err, ErrTxFailed))
}

func TestDepositFailedTransaction(t *testing.T) {
	api := newFakeRPC()
	api.txErr = map[string]interface{}{"InstructionError": []interface{}{2, "Custom"}}
	c := newTestClient(t, api, nil)
	state, _ := c.program.State()
	api.accounts[state] = stateData(1)

	_, err := c.Deposit(context.Background(), models.DepositRequest{
		Token: utils.NativeToken, Amount: big.NewInt(1), IntentAccount: "alice.near", Signer: testSigner(),
	})
	assert.True(t, errors.Is(err, ErrTxFailed))
}

func TestDepositWalletBusy(t *testing.T) {
	api := newFakeRPC()
	locks := utils.NewSignerLock()
	c := newTestClient(t, api, locks)
	state, _ := c.program.State()
	api.accounts[state] = stateData(1)
	signer := testSigner()
	release, err := locks.Acquire(int64(omni.Solana), signer.Address())
	require.NoError(t, err)
	defer release()

	_, err = c.Deposit(context.Background(), models.DepositRequest{
		Token: utils.NativeToken, Amount: big.NewInt(1), IntentAccount: "alice.near", Signer: signer,
	})
	assert.True(t, errors.Is(err, gerror.ErrWalletBusy))
	assert.Empty(t, api.sent)
}

func TestDepositInvalidSigner(t *testing.T) {
	c := newTestClient(t, newFakeRPC(), nil)
	_, err := c.Deposit(context.Background(), models.DepositRequest{Token: utils.NativeToken, Amount: big.NewInt(1)})
	assert.True(t, errors.Is(err, gerror.ErrInvalidSigner))
}

func TestWithdrawRejectsNonMonotonicNonce(t *testing.T) {
	api := newFakeRPC()
	c := newTestClient(t, api, nil)
	receiver := solana.NewWallet().PublicKey()
	user, err := c.program.User(receiver)
	require.NoError(t, err)
	api.accounts[user] = userData(10)

	req := models.WithdrawRequest{Token: utils.NativeToken, Receiver: receiver.String(), Amount: big.NewInt(5), Signer: testSigner()}
	req.Nonce = "10"
	_, err = c.Withdraw(context.Background(), req)
	assert.True(t, errors.Is(err, gerror.ErrAlreadyClaimed))

	req.Nonce = "7"
	_, err = c.Withdraw(context.Background(), req)
	assert.True(t, errors.Is(err, gerror.ErrNonceReplay))

	req.Nonce = "12"
	req.PendingNonces = []string{"11"}
	_, err = c.Withdraw(context.Background(), req)
	assert.True(t, errors.Is(err, gerror.ErrNonceReplay))
	assert.Empty(t, api.sent)

	used, err := c.IsWithdrawUsed(context.Background(), "9", receiver.String())
	require.NoError(t, err)
	assert.True(t, used)
}

func TestWithdrawToken(t *testing.T) {
	api := newFakeRPC()
	c := newTestClient(t, api, nil)
	receiver := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()
	sig := bytes.Repeat([]byte{7}, 65)

	hash, err := c.Withdraw(context.Background(), models.WithdrawRequest{
		Nonce: "3", Token: mint.String(), Receiver: receiver.String(), Amount: big.NewInt(900), Signature: sig, Signer: testSigner(),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, hash)

	data := api.bridgeData(t, c.program.id)
	assert.Equal(t, Discriminator(IxTokenWithdraw), data[:8])
	assert.Equal(t, "3", NonceFromBytes(data[8:24]).String())
	assert.Equal(t, uint64(900), binary.LittleEndian.Uint64(data[24:32]))
	assert.Equal(t, uint32(65), binary.LittleEndian.Uint32(data[32:36]))
	assert.Equal(t, sig, data[36:])
}

func TestWithdrawFeeReservesMissingAccounts(t *testing.T) {
	api := newFakeRPC()
	c := newTestClient(t, api, nil)
	receiver := solana.NewWallet().PublicKey()

	f, err := c.GetWithdrawFee(context.Background(), receiver.String(), solana.NewWallet().PublicKey().String())
	require.NoError(t, err)
	assert.Equal(t, "2000000", f.Reserve.String())
	assert.Equal(t, "205000", f.Fee().String())
	assert.Equal(t, "2205000", f.NeedNative().String())

	user, _ := c.program.User(receiver)
	api.accounts[user] = userData(1)
	f, err = c.GetWithdrawFee(context.Background(), receiver.String(), utils.NativeToken)
	require.NoError(t, err)
	assert.Equal(t, "0", f.Reserve.String())
}

func TestDepositFeeNative(t *testing.T) {
	c := newTestClient(t, newFakeRPC(), nil)
	f, err := c.GetDepositFee(context.Background(), "", utils.NativeToken, big.NewInt(10))
	require.NoError(t, err)
	assert.Equal(t, "1205010", f.NeedNative().String())
}

func TestGetTokenBalance(t *testing.T) {
	api := newFakeRPC()
	c := newTestClient(t, api, nil)
	owner := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()
	api.lamports[owner] = 42

	bal, err := c.GetTokenBalance(context.Background(), utils.NativeToken, owner.String())
	require.NoError(t, err)
	assert.Equal(t, "42", bal.String())

	bal, err = c.GetTokenBalance(context.Background(), mint.String(), owner.String())
	require.NoError(t, err)
	assert.Equal(t, "0", bal.String())

	ata, _, _ := solana.FindAssociatedTokenAddress(owner, mint)
	api.accounts[ata] = make([]byte, tokenAccountSize)
	bal, err = c.GetTokenBalance(context.Background(), mint.String(), owner.String())
	require.NoError(t, err)
	assert.Equal(t, "123456", bal.String())
}

func TestClearDepositNonceIfNeeded(t *testing.T) {
	api := newFakeRPC()
	c := newTestClient(t, api, nil)
	signer := testSigner()
	deposit := &models.PendingDeposit{Chain: omni.Solana, Nonce: "5", Sender: signer.Address()}

	cleared, err := c.ClearDepositNonceIfNeeded(context.Background(), deposit, signer)
	require.NoError(t, err)
	assert.False(t, cleared)
	assert.Empty(t, api.sent)

	record, _ := c.program.Deposit(signer.PublicKey(), big.NewInt(5))
	api.accounts[record] = make([]byte, depositAccountSize)
	cleared, err = c.ClearDepositNonceIfNeeded(context.Background(), deposit, signer)
	require.NoError(t, err)
	assert.True(t, cleared)
	data := api.bridgeData(t, c.program.id)
	assert.Equal(t, Discriminator(IxClearDepositInfo), data[:8])
}
