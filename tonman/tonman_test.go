package tonman

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/omnibridge/omnibridge-service/models"
	"github.com/omnibridge/omnibridge-service/omni"
	"github.com/omnibridge/omnibridge-service/retry"
	"github.com/omnibridge/omnibridge-service/utils"
	"github.com/omnibridge/omnibridge-service/utils/gerror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/ton/wallet"
	"github.com/xssnick/tonutils-go/tvm/cell"
)

func testAddr(b byte) *address.Address {
	return address.NewAddress(0, 0, bytes.Repeat([]byte{b}, 32))
}

type fakeSigner struct {
	mu   sync.Mutex
	addr *address.Address
	sent []*wallet.Message
	// when set, Send signals entered and waits for unblock
	entered chan struct{}
	unblock chan struct{}
}

func (s *fakeSigner) Address() string                 { return s.addr.String() }
func (s *fakeSigner) WalletAddress() *address.Address { return s.addr }
func (s *fakeSigner) Send(_ context.Context, msg *wallet.Message) (string, error) {
	if s.entered != nil {
		s.entered <- struct{}{}
		<-s.unblock
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return "txhash", nil
}

func (s *fakeSigner) last() *wallet.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		return nil
	}
	return s.sent[len(s.sent)-1]
}

type fakeAPI struct {
	balances map[string]*big.Int
	active   map[string]bool
	getters  map[string][]interface{}
	jettonW  *address.Address
	deploys  func() []Deploy
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{balances: map[string]*big.Int{}, active: map[string]bool{}, getters: map[string][]interface{}{}}
}

func (f *fakeAPI) GetBalance(_ context.Context, addr *address.Address) (*big.Int, error) {
	if b, ok := f.balances[addr.String()]; ok {
		return b, nil
	}
	return new(big.Int), nil
}

func (f *fakeAPI) IsActive(_ context.Context, addr *address.Address) (bool, error) {
	return f.active[addr.String()], nil
}

func (f *fakeAPI) RunGetMethod(_ context.Context, addr *address.Address, method string, _ ...interface{}) ([]interface{}, error) {
	res, ok := f.getters[addr.String()+"/"+method]
	if !ok {
		return nil, errors.New("no getter " + method)
	}
	return res, nil
}

func (f *fakeAPI) JettonWallet(context.Context, *address.Address, *address.Address) (*address.Address, error) {
	return f.jettonW, nil
}

func (f *fakeAPI) OutgoingDeploys(context.Context, *address.Address, uint32) ([]Deploy, error) {
	if f.deploys == nil {
		return nil, nil
	}
	return f.deploys(), nil
}

var (
	bridge   = testAddr(0xb1)
	user     = testAddr(0x05)
	receiver = testAddr(0x07)
)

func newTestClient(t *testing.T, api chainAPI) *Client {
	c, err := newTonman(Config{BridgeAddress: bridge.String(), Confirm: retry.NewPolicy(5, time.Millisecond)}, api, utils.NewSignerLock())
	require.NoError(t, err)
	return c
}

func addrCell(a *address.Address) *cell.Slice {
	return cell.BeginCell().MustStoreAddr(a).EndCell().BeginParse()
}

func withLastNonce(api *fakeAPI, last int64) {
	api.getters[bridge.String()+"/get_user_address"] = []interface{}{addrCell(user)}
	api.active[user.String()] = true
	api.getters[user.String()+"/get_last_withdrawn_nonce"] = []interface{}{big.NewInt(last)}
}

func TestDepositNativeTracesNonce(t *testing.T) {
	api := newFakeAPI()
	signer := &fakeSigner{addr: testAddr(0x01)}
	api.deploys = func() []Deploy {
		msg := signer.last()
		if msg == nil {
			return nil
		}
		body := msg.InternalMessage.Body.BeginParse()
		_ = body.MustLoadUInt(32)
		queryID := body.MustLoadUInt(64)
		return []Deploy{
			{Body: cell.BeginCell().MustStoreUInt(1, 32).MustStoreUInt(queryID+1, 64).EndCell(), Data: cell.BeginCell().MustStoreUInt(1, 128).EndCell()},
			{Body: cell.BeginCell().MustStoreUInt(1, 32).MustStoreUInt(queryID, 64).EndCell(), Data: cell.BeginCell().MustStoreBigUInt(big.NewInt(424242), 128).MustStoreUInt(9, 8).EndCell()},
		}
	}

	deposit, err := newTestClient(t, api).Deposit(context.Background(), models.DepositRequest{
		Token: utils.NativeToken, Amount: big.NewInt(500_000_000), IntentAccount: "alice.near", Signer: signer,
	})
	require.NoError(t, err)
	assert.Equal(t, "424242", deposit.Nonce)
	assert.Equal(t, omni.Ton, deposit.Chain)
	assert.Equal(t, "txhash", deposit.TxHash)

	msg := signer.last()
	assert.Equal(t, bridge.String(), msg.InternalMessage.DstAddr.String())
	assert.Equal(t, "550000000", msg.InternalMessage.Amount.Nano().String())
	body := msg.InternalMessage.Body.BeginParse()
	assert.Equal(t, OpNativeDeposit, body.MustLoadUInt(32))
	_ = body.MustLoadUInt(64)
	assert.Equal(t, omni.EphemeralReceiver("alice.near"), body.MustLoadSlice(256))
}

func deployFor(queryID uint64, nonce int64) Deploy {
	return Deploy{
		Body: cell.BeginCell().MustStoreUInt(1, 32).MustStoreUInt(queryID, 64).EndCell(),
		Data: cell.BeginCell().MustStoreBigUInt(big.NewInt(nonce), 128).EndCell(),
	}
}

func TestDepositNonceNotFound(t *testing.T) {
	api := newFakeAPI()
	signer := &fakeSigner{addr: testAddr(1)}
	c := newTestClient(t, api)
	deposit, err := c.Deposit(context.Background(), models.DepositRequest{
		Token: utils.NativeToken, Amount: big.NewInt(1), IntentAccount: "alice.near", Signer: signer,
	})
	assert.True(t, errors.Is(err, gerror.ErrDepositNotFound))
	require.NotNil(t, deposit)
	assert.Equal(t, "txhash", deposit.TxHash)
	assert.Empty(t, deposit.Nonce)
	assert.Equal(t, models.DepositStatusSubmitted, deposit.Status)
	assert.Equal(t, signer.Address(), deposit.Sender)
	assert.Equal(t, "alice.near", deposit.IntentAccount)
	require.NotEmpty(t, deposit.Reference)

	body := signer.last().InternalMessage.Body.BeginParse()
	_ = body.MustLoadUInt(32)
	queryID := body.MustLoadUInt(64)
	assert.Equal(t, strconv.FormatUint(queryID, 10), deposit.Reference)

	_, err = c.ResolveDepositNonce(context.Background(), deposit)
	assert.True(t, errors.Is(err, gerror.ErrDepositNotFound))

	api.deploys = func() []Deploy { return []Deploy{deployFor(queryID+1, 1), deployFor(queryID, 555)} }
	nonce, err := c.ResolveDepositNonce(context.Background(), deposit)
	require.NoError(t, err)
	assert.Equal(t, "555", nonce)

	_, err = c.ResolveDepositNonce(context.Background(), &models.PendingDeposit{TxHash: "txhash"})
	assert.True(t, errors.Is(err, gerror.ErrDecode))
}

func TestConcurrentSendOnSameWalletIsBusy(t *testing.T) {
	api := newFakeAPI()
	withLastNonce(api, 10)
	signer := &fakeSigner{addr: testAddr(0x01), entered: make(chan struct{}), unblock: make(chan struct{})}
	c := newTestClient(t, api)

	done := make(chan error, 1)
	go func() {
		_, err := c.Withdraw(context.Background(), models.WithdrawRequest{
			Nonce: "11", Token: utils.NativeToken, Receiver: receiver.String(), Amount: big.NewInt(1),
			Signature: bytes.Repeat([]byte{3}, 65), Signer: signer,
		})
		done <- err
	}()
	<-signer.entered

	_, err := c.Deposit(context.Background(), models.DepositRequest{
		Token: utils.NativeToken, Amount: big.NewInt(1), IntentAccount: "alice.near", Signer: signer,
	})
	assert.True(t, errors.Is(err, gerror.ErrWalletBusy))

	close(signer.unblock)
	require.NoError(t, <-done)
	assert.Len(t, signer.sent, 1)
	assert.False(t, c.locks.IsBusy(int64(omni.Ton), signer.Address()))
}

func TestDepositJettonTransfer(t *testing.T) {
	api := newFakeAPI()
	api.jettonW = testAddr(0x0a)
	signer := &fakeSigner{addr: testAddr(0x01)}
	master := testAddr(0x0c)

	_, err := newTestClient(t, api).Deposit(context.Background(), models.DepositRequest{
		Token: master.String(), Amount: big.NewInt(1_000), IntentAccount: "alice.near", Signer: signer,
	})
	require.Error(t, err)

	msg := signer.last()
	require.NotNil(t, msg)
	assert.Equal(t, api.jettonW.String(), msg.InternalMessage.DstAddr.String())
	body := msg.InternalMessage.Body.BeginParse()
	assert.Equal(t, OpJettonTransfer, body.MustLoadUInt(32))
	_ = body.MustLoadUInt(64)
	assert.Equal(t, "1000", body.MustLoadBigCoins().String())
	assert.Equal(t, bridge.String(), body.MustLoadAddr().String())
}

func TestWithdrawRejectsNonMonotonicNonce(t *testing.T) {
	api := newFakeAPI()
	withLastNonce(api, 10)
	signer := &fakeSigner{addr: testAddr(0x01)}
	c := newTestClient(t, api)

	_, err := c.Withdraw(context.Background(), models.WithdrawRequest{
		Nonce: "9", Token: utils.NativeToken, Receiver: receiver.String(), Amount: big.NewInt(1), Signer: signer,
	})
	assert.True(t, errors.Is(err, gerror.ErrNonceReplay))

	_, err = c.Withdraw(context.Background(), models.WithdrawRequest{
		Nonce: "10", Token: utils.NativeToken, Receiver: receiver.String(), Amount: big.NewInt(1), Signer: signer,
	})
	assert.True(t, errors.Is(err, gerror.ErrAlreadyClaimed))

	_, err = c.Withdraw(context.Background(), models.WithdrawRequest{
		Nonce: "13", Token: utils.NativeToken, Receiver: receiver.String(), Amount: big.NewInt(1), Signer: signer,
		PendingNonces: []string{"12"},
	})
	assert.True(t, errors.Is(err, gerror.ErrNonceReplay))
	assert.Empty(t, signer.sent)
}

func TestWithdraw(t *testing.T) {
	api := newFakeAPI()
	withLastNonce(api, 10)
	signer := &fakeSigner{addr: testAddr(0x01)}

	hash, err := newTestClient(t, api).Withdraw(context.Background(), models.WithdrawRequest{
		Nonce: "11", Token: utils.NativeToken, Receiver: receiver.String(), Amount: big.NewInt(500_000_000),
		Signature: bytes.Repeat([]byte{3}, 65), Signer: signer,
	})
	require.NoError(t, err)
	assert.Equal(t, "txhash", hash)
	body := signer.last().InternalMessage.Body.BeginParse()
	assert.Equal(t, OpWithdraw, body.MustLoadUInt(32))
	_ = body.MustLoadUInt(64)
	assert.Equal(t, "11", body.MustLoadBigUInt(128).String())
	assert.Equal(t, "500000000", body.MustLoadBigCoins().String())
	assert.Equal(t, receiver.String(), body.MustLoadAddr().String())
	assert.False(t, body.MustLoadBoolBit())
}

func TestIsWithdrawUsedUserNotDeployed(t *testing.T) {
	api := newFakeAPI()
	api.getters[bridge.String()+"/get_user_address"] = []interface{}{addrCell(user)}
	used, err := newTestClient(t, api).IsWithdrawUsed(context.Background(), "1", receiver.String())
	require.NoError(t, err)
	assert.False(t, used)

	withLastNonce(api, 3)
	used, err = newTestClient(t, api).IsWithdrawUsed(context.Background(), "3", receiver.String())
	require.NoError(t, err)
	assert.True(t, used)
}

func TestClearDepositNonceIfNeeded(t *testing.T) {
	api := newFakeAPI()
	depositAddr := testAddr(0xdd)
	api.getters[bridge.String()+"/get_deposit_address"] = []interface{}{addrCell(depositAddr)}
	signer := &fakeSigner{addr: testAddr(0x01)}
	c := newTestClient(t, api)
	deposit := &models.PendingDeposit{Chain: omni.Ton, Nonce: "77"}

	cleared, err := c.ClearDepositNonceIfNeeded(context.Background(), deposit, signer)
	require.NoError(t, err)
	assert.False(t, cleared)
	assert.Empty(t, signer.sent)

	api.active[depositAddr.String()] = true
	cleared, err = c.ClearDepositNonceIfNeeded(context.Background(), deposit, signer)
	require.NoError(t, err)
	assert.True(t, cleared)
	require.Len(t, signer.sent, 1)
	assert.Equal(t, depositAddr.String(), signer.sent[0].InternalMessage.DstAddr.String())
	body := signer.sent[0].InternalMessage.Body.BeginParse()
	assert.Equal(t, OpClearDeposit, body.MustLoadUInt(32))
}
