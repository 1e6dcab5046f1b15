package etherman

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/mr-tron/base58"
	"github.com/omnibridge/omnibridge-service/models"
	"github.com/omnibridge/omnibridge-service/omni"
	"github.com/omnibridge/omnibridge-service/retry"
	"github.com/omnibridge/omnibridge-service/utils"
	"github.com/omnibridge/omnibridge-service/utils/gerror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	testKey    = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	baseUSDC   = "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"
	testBridge = "0x233c5370CCfb3cD7409d9A3fb98ab94dE94Cb4Cd"
)

type ethClientMock struct {
	mock.Mock
}

func (m *ethClientMock) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	args := m.Called(ctx, number)
	h, _ := args.Get(0).(*types.Header)
	return h, args.Error(1)
}

func (m *ethClientMock) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	args := m.Called(ctx)
	v, _ := args.Get(0).(*big.Int)
	return v, args.Error(1)
}

func (m *ethClientMock) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	args := m.Called(ctx)
	v, _ := args.Get(0).(*big.Int)
	return v, args.Error(1)
}

func (m *ethClientMock) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	args := m.Called(ctx, msg)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *ethClientMock) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	args := m.Called(ctx, msg, blockNumber)
	v, _ := args.Get(0).([]byte)
	return v, args.Error(1)
}

func (m *ethClientMock) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	args := m.Called(ctx, account, blockNumber)
	v, _ := args.Get(0).(*big.Int)
	return v, args.Error(1)
}

func (m *ethClientMock) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	args := m.Called(ctx, account)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *ethClientMock) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return m.Called(ctx, tx).Error(0)
}

func (m *ethClientMock) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	args := m.Called(ctx, txHash)
	r, _ := args.Get(0).(*types.Receipt)
	if r != nil {
		cp := *r
		cp.TxHash = txHash
		r = &cp
	}
	return r, args.Error(1)
}

func selector(method string) interface{} {
	id := BridgeABI.Methods[method].ID
	if m, ok := ERC20ABI.Methods[method]; ok {
		id = m.ID
	}
	return mock.MatchedBy(func(msg ethereum.CallMsg) bool { return bytes.HasPrefix(msg.Data, id) })
}

func txTo(method string) interface{} {
	id := BridgeABI.Methods[method].ID
	if m, ok := ERC20ABI.Methods[method]; ok {
		id = m.ID
	}
	return mock.MatchedBy(func(tx *types.Transaction) bool { return bytes.HasPrefix(tx.Data(), id) })
}

func packUint(t *testing.T, v int64) []byte {
	out, err := ERC20ABI.Methods["allowance"].Outputs.Pack(big.NewInt(v))
	require.NoError(t, err)
	return out
}

func transferLog(t *testing.T, nonce int64) *types.Log {
	data, err := BridgeABI.Events["NewTransfer"].Inputs.Pack(big.NewInt(nonce), big.NewInt(1_000_000), common.HexToAddress(baseUSDC), []byte{1, 2})
	require.NoError(t, err)
	return &types.Log{Address: common.HexToAddress(testBridge), Topics: []common.Hash{NewTransferTopic()}, Data: data}
}

func newTestClient(t *testing.T, chainID int64, clients ...ethClienter) *Client {
	c, err := newEtherman(Config{
		ChainID:       chainID,
		URLs:          []string{"http://a", "http://b"},
		BridgeAddress: testBridge,
		Confirm:       retry.NewPolicy(3, time.Millisecond),
	}, clients, utils.NewSignerLock())
	require.NoError(t, err)
	return c
}

func testSigner(t *testing.T, chainID int64) *KeySigner {
	s, err := NewKeySigner(testKey, chainID)
	require.NoError(t, err)
	return s
}

func expectEIP1559(m *ethClientMock) {
	m.On("HeaderByNumber", mock.Anything, (*big.Int)(nil)).Return(&types.Header{BaseFee: big.NewInt(1_000_000_000)}, nil)
	m.On("SuggestGasTipCap", mock.Anything).Return(big.NewInt(1_000_000), nil)
	m.On("EstimateGas", mock.Anything, mock.Anything).Return(uint64(50_000), nil)
}

func TestDepositTokenApprovesWhenAllowanceLow(t *testing.T) {
	m := new(ethClientMock)
	expectEIP1559(m)
	signer := testSigner(t, 8453)
	m.On("CallContract", mock.Anything, selector("allowance"), mock.Anything).Return(packUint(t, 0), nil)
	m.On("PendingNonceAt", mock.Anything, signer.TransactOpts().From).Return(uint64(7), nil)
	m.On("SendTransaction", mock.Anything, txTo("approve")).Return(nil).Once()
	m.On("SendTransaction", mock.Anything, txTo("depositToken")).Return(nil).Once()
	m.On("TransactionReceipt", mock.Anything, mock.Anything).Return(&types.Receipt{Status: types.ReceiptStatusSuccessful}, nil).Once()
	m.On("TransactionReceipt", mock.Anything, mock.Anything).Return(&types.Receipt{
		Status: types.ReceiptStatusSuccessful,
		Logs:   []*types.Log{transferLog(t, 100), transferLog(t, 101)},
	}, nil).Once()

	c := newTestClient(t, 8453, m)
	amount := big.NewInt(1_000_000)
	deposit, err := c.Deposit(context.Background(), models.DepositRequest{
		Token: baseUSDC, Amount: amount, IntentAccount: "alice.near", Signer: signer,
	})
	require.NoError(t, err)
	assert.Equal(t, "101", deposit.Nonce)
	assert.Equal(t, omni.Network(8453), deposit.Chain)
	assert.Equal(t, models.DepositStatusNonceResolved, deposit.Status)
	assert.Equal(t, base58.Encode(omni.EphemeralReceiver("alice.near")), deposit.Receiver)
	assert.Equal(t, common.HexToAddress(baseUSDC).Hex(), deposit.Token)

	var sent []*types.Transaction
	for _, call := range m.Calls {
		if call.Method == "SendTransaction" {
			sent = append(sent, call.Arguments.Get(1).(*types.Transaction))
		}
	}
	require.Len(t, sent, 2)
	assert.Equal(t, common.HexToAddress(baseUSDC), *sent[0].To())
	assert.Equal(t, common.HexToAddress(testBridge), *sent[1].To())
	assert.Equal(t, uint64(7), sent[0].Nonce())
	assert.Equal(t, uint64(8), sent[1].Nonce())
	assert.Equal(t, big.NewInt(8453), sent[1].ChainId())
	assert.False(t, c.locks.IsBusy(8453, signer.Address()))
}

func TestDepositTokenSkipsApproveWithAllowance(t *testing.T) {
	m := new(ethClientMock)
	expectEIP1559(m)
	signer := testSigner(t, 8453)
	m.On("CallContract", mock.Anything, selector("allowance"), mock.Anything).Return(packUint(t, 5_000_000), nil)
	m.On("PendingNonceAt", mock.Anything, mock.Anything).Return(uint64(0), nil)
	m.On("SendTransaction", mock.Anything, txTo("depositToken")).Return(nil).Once()
	m.On("TransactionReceipt", mock.Anything, mock.Anything).Return(&types.Receipt{
		Status: types.ReceiptStatusSuccessful,
		Logs:   []*types.Log{transferLog(t, 5)},
	}, nil)

	deposit, err := newTestClient(t, 8453, m).Deposit(context.Background(), models.DepositRequest{
		Token: baseUSDC, Amount: big.NewInt(1_000_000), IntentAccount: "alice.near", Signer: signer,
	})
	require.NoError(t, err)
	assert.Equal(t, "5", deposit.Nonce)
	m.AssertNumberOfCalls(t, "SendTransaction", 1)
}

func TestDepositWithoutTransferLog(t *testing.T) {
	m := new(ethClientMock)
	expectEIP1559(m)
	m.On("PendingNonceAt", mock.Anything, mock.Anything).Return(uint64(0), nil)
	m.On("SendTransaction", mock.Anything, mock.Anything).Return(nil)
	m.On("TransactionReceipt", mock.Anything, mock.Anything).Return(&types.Receipt{Status: types.ReceiptStatusSuccessful}, nil)

	_, err := newTestClient(t, 1, m).Deposit(context.Background(), models.DepositRequest{
		Token: utils.NativeToken, Amount: big.NewInt(10), IntentAccount: "alice.near", Signer: testSigner(t, 1),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, gerror.ErrDepositNotFound))
}

func TestDepositNeverMined(t *testing.T) {
	m := new(ethClientMock)
	expectEIP1559(m)
	m.On("PendingNonceAt", mock.Anything, mock.Anything).Return(uint64(0), nil)
	m.On("SendTransaction", mock.Anything, mock.Anything).Return(nil)
	m.On("TransactionReceipt", mock.Anything, mock.Anything).Return(nil, ethereum.NotFound)

	signer := testSigner(t, 1)
	c := newTestClient(t, 1, m)
	deposit, err := c.Deposit(context.Background(), models.DepositRequest{
		Token: utils.NativeToken, Amount: big.NewInt(10), IntentAccount: "alice.near", Signer: signer,
	})
	var notFound *gerror.DepositNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.NotEmpty(t, notFound.TxHash)

	require.NotNil(t, deposit)
	assert.Equal(t, notFound.TxHash, deposit.TxHash)
	assert.Empty(t, deposit.Nonce)
	assert.Equal(t, models.DepositStatusSubmitted, deposit.Status)
	assert.Equal(t, signer.TransactOpts().From.Hex(), deposit.Sender)
	assert.Equal(t, "alice.near", deposit.IntentAccount)
	assert.Equal(t, base58.Encode(omni.EphemeralReceiver("alice.near")), deposit.Receiver)
	assert.False(t, c.locks.IsBusy(1, signer.Address()))
}

func TestResolveDepositNonce(t *testing.T) {
	m := new(ethClientMock)
	hash := common.HexToHash("0xabc1")
	m.On("TransactionReceipt", mock.Anything, hash).Return(nil, ethereum.NotFound).Once()
	m.On("TransactionReceipt", mock.Anything, hash).Return(&types.Receipt{
		Status: types.ReceiptStatusSuccessful,
		Logs:   []*types.Log{transferLog(t, 77)},
	}, nil)
	c := newTestClient(t, 1, m)
	deposit := &models.PendingDeposit{Chain: omni.Eth, TxHash: hash.Hex(), Status: models.DepositStatusSubmitted}

	nonce, err := c.ResolveDepositNonce(context.Background(), deposit)
	require.NoError(t, err)
	assert.Equal(t, "77", nonce)

	_, err = c.ResolveDepositNonce(context.Background(), &models.PendingDeposit{TxHash: "zz"})
	require.ErrorIs(t, err, gerror.ErrDecode)
}

func TestResolveDepositNonceStillPending(t *testing.T) {
	m := new(ethClientMock)
	m.On("TransactionReceipt", mock.Anything, mock.Anything).Return(nil, ethereum.NotFound)

	_, err := newTestClient(t, 1, m).ResolveDepositNonce(context.Background(), &models.PendingDeposit{TxHash: common.HexToHash("0x01").Hex()})
	require.ErrorIs(t, err, gerror.ErrDepositNotFound)
}

func TestWithdrawAlreadyClaimed(t *testing.T) {
	m := new(ethClientMock)
	used, err := BridgeABI.Methods["usedNonces"].Outputs.Pack(true)
	require.NoError(t, err)
	m.On("CallContract", mock.Anything, selector("usedNonces"), mock.Anything).Return(used, nil)

	_, err = newTestClient(t, 1, m).Withdraw(context.Background(), models.WithdrawRequest{
		Nonce: "12", Token: utils.NativeToken, Receiver: testBridge, Amount: big.NewInt(1), Signer: testSigner(t, 1),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, gerror.ErrAlreadyClaimed))
	m.AssertNotCalled(t, "SendTransaction", mock.Anything, mock.Anything)
}

func TestWithdraw(t *testing.T) {
	m := new(ethClientMock)
	expectEIP1559(m)
	unused, err := BridgeABI.Methods["usedNonces"].Outputs.Pack(false)
	require.NoError(t, err)
	m.On("CallContract", mock.Anything, selector("usedNonces"), mock.Anything).Return(unused, nil)
	m.On("PendingNonceAt", mock.Anything, mock.Anything).Return(uint64(3), nil)
	m.On("SendTransaction", mock.Anything, txTo("withdraw")).Return(nil)
	m.On("TransactionReceipt", mock.Anything, mock.Anything).Return(&types.Receipt{Status: types.ReceiptStatusSuccessful}, nil)

	hash, err := newTestClient(t, 1, m).Withdraw(context.Background(), models.WithdrawRequest{
		Nonce: "12", Token: utils.NativeToken, Receiver: testBridge, Amount: big.NewInt(1), Signature: []byte{1}, Signer: testSigner(t, 1),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, hash)
}

func TestWalletBusy(t *testing.T) {
	m := new(ethClientMock)
	c := newTestClient(t, 1, m)
	signer := testSigner(t, 1)
	release, err := c.locks.Acquire(1, signer.Address())
	require.NoError(t, err)
	defer release()

	_, err = c.Deposit(context.Background(), models.DepositRequest{
		Token: utils.NativeToken, Amount: big.NewInt(1), IntentAccount: "alice.near", Signer: signer,
	})
	assert.True(t, errors.Is(err, gerror.ErrWalletBusy))
}

type otherSigner struct{}

func (otherSigner) Address() string { return "EQ..." }

func TestInvalidSigner(t *testing.T) {
	_, err := newTestClient(t, 1, new(ethClientMock)).Deposit(context.Background(), models.DepositRequest{
		Token: utils.NativeToken, Amount: big.NewInt(1), Signer: otherSigner{},
	})
	assert.True(t, errors.Is(err, gerror.ErrInvalidSigner))
}

func TestDepositFeeLegacyChain(t *testing.T) {
	m := new(ethClientMock)
	m.On("HeaderByNumber", mock.Anything, (*big.Int)(nil)).Return(&types.Header{}, nil)
	m.On("SuggestGasPrice", mock.Anything).Return(big.NewInt(3), nil)
	m.On("EstimateGas", mock.Anything, mock.Anything).Return(uint64(100), nil)

	f, err := newTestClient(t, 56, m).GetDepositFee(context.Background(), testBridge, utils.NativeToken, big.NewInt(1000))
	require.NoError(t, err)
	assert.True(t, f.Legacy)
	assert.Equal(t, big.NewInt(3), f.GasPrice())
	// 100 * 1.2 gas at price 3, plus the deposited value
	assert.Equal(t, big.NewInt(120*3+1000), f.NeedNative())
}

func TestEndpointFailover(t *testing.T) {
	down := new(ethClientMock)
	down.On("BalanceAt", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("dial tcp: connection refused"))
	up := new(ethClientMock)
	up.On("BalanceAt", mock.Anything, mock.Anything, mock.Anything).Return(big.NewInt(42), nil)

	c := newTestClient(t, 1, down, up)
	balance, err := c.GetTokenBalance(context.Background(), utils.NativeToken, testBridge)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(42), balance)

	_, err = c.GetTokenBalance(context.Background(), utils.NativeToken, testBridge)
	require.NoError(t, err)
	down.AssertNumberOfCalls(t, "BalanceAt", 1)
}

func TestParseNewTransferTakesLast(t *testing.T) {
	foreign := transferLog(t, 999)
	foreign.Address = common.HexToAddress("0x01")
	ev, err := ParseNewTransfer([]*types.Log{transferLog(t, 1), transferLog(t, 2), foreign}, common.HexToAddress(testBridge))
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(2), ev.Nonce)
	assert.Equal(t, []byte{1, 2}, ev.ReceiverID)

	_, err = ParseNewTransfer(nil, common.Address{})
	assert.ErrorIs(t, err, ErrNoTransferLog)
}
