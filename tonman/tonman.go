package tonman

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"math/big"
	"strconv"
	"time"

	"github.com/mr-tron/base58"
	"github.com/omnibridge/omnibridge-service/fee"
	"github.com/omnibridge/omnibridge-service/log"
	"github.com/omnibridge/omnibridge-service/models"
	"github.com/omnibridge/omnibridge-service/omni"
	"github.com/omnibridge/omnibridge-service/retry"
	"github.com/omnibridge/omnibridge-service/utils"
	"github.com/omnibridge/omnibridge-service/utils/gerror"
	"github.com/pkg/errors"
	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tlb"
	"github.com/xssnick/tonutils-go/ton/wallet"
	"github.com/xssnick/tonutils-go/tvm/cell"
)

// Message opcodes
const (
	OpNativeDeposit  uint64 = 0x6e617469
	OpJettonTransfer uint64 = 0x0f8a7ea5
	OpWithdraw       uint64 = 0x77697468
	OpClearDeposit   uint64 = 0x636c6561

	defaultDepositAttach  = 50_000_000
	defaultJettonAttach   = 100_000_000
	defaultForwardAmount  = 60_000_000
	defaultWithdrawAttach = 50_000_000
	defaultTraceDepth     = 30

	nonceBits = 128
)

// Client is the TON chain adapter
type Client struct {
	cfg    Config
	api    chainAPI
	bridge *address.Address
	locks  *utils.SignerLock
	clock  utils.TimeProvider
}

// NewTonman connects to the liteservers of cfg and returns the adapter
func NewTonman(ctx context.Context, cfg Config, locks *utils.SignerLock) (*Client, error) {
	api, err := dialLiteAPI(ctx, cfg.LiteConfigURL)
	if err != nil {
		return nil, err
	}
	return newTonman(cfg, api, locks)
}

func newTonman(cfg Config, api chainAPI, locks *utils.SignerLock) (*Client, error) {
	bridge, err := omni.ParseTonAddress(cfg.BridgeAddress)
	if err != nil {
		return nil, &gerror.DecodeError{Chain: int64(omni.Ton), Input: cfg.BridgeAddress, Reason: err.Error()}
	}
	if cfg.DepositAttach <= 0 {
		cfg.DepositAttach = defaultDepositAttach
	}
	if cfg.JettonAttach <= 0 {
		cfg.JettonAttach = defaultJettonAttach
	}
	if cfg.ForwardAmount <= 0 {
		cfg.ForwardAmount = defaultForwardAmount
	}
	if cfg.WithdrawAttach <= 0 {
		cfg.WithdrawAttach = defaultWithdrawAttach
	}
	if cfg.TraceDepth == 0 {
		cfg.TraceDepth = defaultTraceDepth
	}
	if cfg.Confirm.Attempts <= 0 {
		cfg.Confirm = retry.NewPolicy(30, 3*time.Second) //nolint:gomnd
	}
	if locks == nil {
		locks = utils.NewSignerLock()
	}
	return &Client{cfg: cfg, api: api, bridge: bridge, locks: locks, clock: utils.NewTimeProviderSystemLocalTime()}, nil
}

// Chain returns omni.Ton
func (c *Client) Chain() omni.Network {
	return omni.Ton
}

func parseAddr(addr string) (*address.Address, error) {
	parsed, err := omni.ParseTonAddress(addr)
	if err != nil {
		return nil, &gerror.DecodeError{Chain: int64(omni.Ton), Input: addr, Reason: err.Error()}
	}
	return parsed, nil
}

func addrSlice(addr *address.Address) *cell.Slice {
	return cell.BeginCell().MustStoreAddr(addr).EndCell().BeginParse()
}

func randomQueryID() (uint64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func nano(v int64) tlb.Coins {
	return tlb.FromNanoTON(big.NewInt(v))
}

func firstInt(method string, tuple []interface{}) (*big.Int, error) {
	if len(tuple) == 0 {
		return nil, errors.Errorf("%s returned an empty stack", method)
	}
	v, ok := tuple[0].(*big.Int)
	if !ok {
		return nil, errors.Errorf("%s returned %T", method, tuple[0])
	}
	return v, nil
}

func firstAddr(method string, tuple []interface{}) (*address.Address, error) {
	if len(tuple) == 0 {
		return nil, errors.Errorf("%s returned an empty stack", method)
	}
	var s *cell.Slice
	switch v := tuple[0].(type) {
	case *cell.Slice:
		s = v
	case *cell.Cell:
		s = v.BeginParse()
	default:
		return nil, errors.Errorf("%s returned %T", method, tuple[0])
	}
	return s.LoadAddr()
}

// GetTokenBalance returns the TON or jetton balance of address
func (c *Client) GetTokenBalance(ctx context.Context, token, addr string) (*big.Int, error) {
	owner, err := parseAddr(addr)
	if err != nil {
		return nil, err
	}
	if utils.IsNative(token) {
		return c.api.GetBalance(ctx, owner)
	}
	master, err := parseAddr(token)
	if err != nil {
		return nil, &gerror.UnsupportedTokenError{Chain: int64(omni.Ton), Token: token}
	}
	jw, err := c.api.JettonWallet(ctx, master, owner)
	if err != nil {
		return nil, err
	}
	active, err := c.api.IsActive(ctx, jw)
	if err != nil || !active {
		return new(big.Int), err
	}
	tuple, err := c.api.RunGetMethod(ctx, jw, "get_wallet_data")
	if err != nil {
		return nil, err
	}
	return firstInt("get_wallet_data", tuple)
}

// GetDepositFee returns the TON attached to a deposit
func (c *Client) GetDepositFee(_ context.Context, _, token string, amount *big.Int) (*fee.ReviewFee, error) {
	if utils.IsNative(token) {
		return fee.NewFixed(omni.Ton, big.NewInt(c.cfg.DepositAttach)).WithAdditional(amount), nil
	}
	return fee.NewFixed(omni.Ton, big.NewInt(c.cfg.JettonAttach)), nil
}

// GetWithdrawFee returns the TON attached to a withdraw
func (c *Client) GetWithdrawFee(context.Context, string, string) (*fee.ReviewFee, error) {
	return fee.NewFixed(omni.Ton, big.NewInt(c.cfg.WithdrawAttach)), nil
}

// LastWithdrawnNonce reads the receiver's user contract, zero when it was never deployed
func (c *Client) LastWithdrawnNonce(ctx context.Context, receiver *address.Address) (*big.Int, error) {
	tuple, err := c.api.RunGetMethod(ctx, c.bridge, "get_user_address", addrSlice(receiver))
	if err != nil {
		return nil, err
	}
	user, err := firstAddr("get_user_address", tuple)
	if err != nil {
		return nil, err
	}
	active, err := c.api.IsActive(ctx, user)
	if err != nil {
		return nil, err
	}
	if !active {
		return new(big.Int), nil
	}
	tuple, err = c.api.RunGetMethod(ctx, user, "get_last_withdrawn_nonce")
	if err != nil {
		return nil, err
	}
	return firstInt("get_last_withdrawn_nonce", tuple)
}

// IsWithdrawUsed reports nonce <= last withdrawn nonce of receiver
func (c *Client) IsWithdrawUsed(ctx context.Context, nonce, receiver string) (bool, error) {
	n, ok := utils.ParseUint128(nonce)
	if !ok {
		return false, &gerror.DecodeError{Chain: int64(omni.Ton), Input: nonce, Reason: "invalid nonce"}
	}
	to, err := parseAddr(receiver)
	if err != nil {
		return false, err
	}
	last, err := c.LastWithdrawnNonce(ctx, to)
	if err != nil {
		return false, err
	}
	return n.Cmp(last) <= 0, nil
}

func (c *Client) upgradeSigner(s models.Signer) (Signer, error) {
	signer, ok := s.(Signer)
	if !ok {
		return nil, errors.Wrap(gerror.ErrInvalidSigner, "ton")
	}
	return signer, nil
}

// Deposit sends TON or jettons to the bridge and traces the nonce the bridge assigned
func (c *Client) Deposit(ctx context.Context, req models.DepositRequest) (*models.PendingDeposit, error) {
	signer, err := c.upgradeSigner(req.Signer)
	if err != nil {
		return nil, err
	}
	queryID, err := randomQueryID()
	if err != nil {
		return nil, err
	}
	receiver := omni.EphemeralReceiver(req.IntentAccount)
	token := utils.NativeToken

	var msg *wallet.Message
	if utils.IsNative(req.Token) {
		body := cell.BeginCell().
			MustStoreUInt(OpNativeDeposit, 32).
			MustStoreUInt(queryID, 64).
			MustStoreSlice(receiver, 256).
			EndCell()
		value := new(big.Int).Add(req.Amount, big.NewInt(c.cfg.DepositAttach))
		msg = wallet.SimpleMessage(c.bridge, tlb.FromNanoTON(value), body)
	} else {
		master, err := parseAddr(req.Token)
		if err != nil {
			return nil, &gerror.UnsupportedTokenError{Chain: int64(omni.Ton), Token: req.Token}
		}
		token = master.String()
		jw, err := c.api.JettonWallet(ctx, master, signer.WalletAddress())
		if err != nil {
			return nil, errors.Wrap(err, "jetton wallet")
		}
		payload := cell.BeginCell().
			MustStoreUInt(queryID, 64).
			MustStoreSlice(receiver, 256).
			EndCell()
		body := cell.BeginCell().
			MustStoreUInt(OpJettonTransfer, 32).
			MustStoreUInt(queryID, 64).
			MustStoreBigCoins(req.Amount).
			MustStoreAddr(c.bridge).
			MustStoreAddr(signer.WalletAddress()).
			MustStoreBoolBit(false).
			MustStoreBigCoins(big.NewInt(c.cfg.ForwardAmount)).
			MustStoreBoolBit(true).
			MustStoreRef(payload).
			EndCell()
		msg = wallet.SimpleMessage(jw, nano(c.cfg.JettonAttach), body)
	}

	logger := log.WithFields("chain", omni.Ton.String(), "sender", signer.Address(), "queryID", queryID)
	release, err := c.locks.Acquire(int64(omni.Ton), signer.Address())
	if err != nil {
		return nil, err
	}
	txHash, err := signer.Send(ctx, msg)
	release()
	if err != nil {
		return nil, errors.Wrap(err, "send deposit")
	}
	logger.Infof("deposit sent in %s, tracing nonce", txHash)
	deposit := &models.PendingDeposit{
		Chain:         omni.Ton,
		Token:         token,
		Amount:        req.Amount.String(),
		Receiver:      base58.Encode(receiver),
		Sender:        signer.Address(),
		IntentAccount: req.IntentAccount,
		TxHash:        txHash,
		Reference:     strconv.FormatUint(queryID, 10),
		Timestamp:     c.clock.Now().Unix(),
		Status:        models.DepositStatusSubmitted,
	}

	nonce, err := c.traceNonce(ctx, queryID)
	if err != nil {
		logger.Warnf("nonce not traced: %v", err)
		return deposit, &gerror.DepositNotFoundError{Chain: int64(omni.Ton), TxHash: txHash}
	}
	logger.Infof("deposit resolved nonce %s", nonce)
	deposit.Nonce = nonce.String()
	deposit.Status = models.DepositStatusNonceResolved
	return deposit, nil
}

// ResolveDepositNonce traces the deposit contract again using the query id kept in Reference
func (c *Client) ResolveDepositNonce(ctx context.Context, deposit *models.PendingDeposit) (string, error) {
	queryID, err := strconv.ParseUint(deposit.Reference, 10, 64)
	if err != nil {
		return "", &gerror.DecodeError{Chain: int64(omni.Ton), Input: deposit.Reference, Reason: "invalid query id"}
	}
	nonce, err := c.traceNonce(ctx, queryID)
	if errors.Is(err, retry.ErrAttemptsExhausted) {
		return "", &gerror.DepositNotFoundError{Chain: int64(omni.Ton), TxHash: deposit.TxHash}
	}
	if err != nil {
		return "", err
	}
	return nonce.String(), nil
}

// traceNonce finds the deposit contract the bridge deployed for queryID; its data starts with the nonce
func (c *Client) traceNonce(ctx context.Context, queryID uint64) (*big.Int, error) {
	var nonce *big.Int
	err := retry.Poll(ctx, c.cfg.Confirm, func(ctx context.Context) (bool, error) {
		deploys, err := c.api.OutgoingDeploys(ctx, c.bridge, c.cfg.TraceDepth)
		if err != nil {
			return false, nil
		}
		for _, d := range deploys {
			if d.Body == nil {
				continue
			}
			body := d.Body.BeginParse()
			if _, err := body.LoadUInt(32); err != nil {
				continue
			}
			id, err := body.LoadUInt(64)
			if err != nil || id != queryID {
				continue
			}
			n, err := d.Data.BeginParse().LoadBigUInt(nonceBits)
			if err != nil {
				return false, retry.Permanent(errors.Wrap(err, "deposit contract data"))
			}
			nonce = n
			return true, nil
		}
		return false, nil
	})
	return nonce, err
}

// Withdraw claims a ledger withdrawal. Nonces must advance the receiver's last withdrawn
// nonce and no older pending withdrawal may remain, otherwise it would become unclaimable.
func (c *Client) Withdraw(ctx context.Context, req models.WithdrawRequest) (string, error) {
	signer, err := c.upgradeSigner(req.Signer)
	if err != nil {
		return "", err
	}
	nonce, ok := utils.ParseUint128(req.Nonce)
	if !ok {
		return "", &gerror.DecodeError{Chain: int64(omni.Ton), Input: req.Nonce, Reason: "invalid nonce"}
	}
	receiver, err := parseAddr(req.Receiver)
	if err != nil {
		return "", err
	}
	var master *address.Address
	if !utils.IsNative(req.Token) {
		if master, err = parseAddr(req.Token); err != nil {
			return "", &gerror.UnsupportedTokenError{Chain: int64(omni.Ton), Token: req.Token}
		}
	}
	last, err := c.LastWithdrawnNonce(ctx, receiver)
	if err != nil {
		return "", err
	}
	if nonce.Cmp(last) == 0 {
		return "", &gerror.AlreadyClaimedError{Chain: int64(omni.Ton), Nonce: req.Nonce}
	}
	if err := utils.CheckWithdrawNonce(int64(omni.Ton), req.Nonce, last.String(), req.PendingNonces); err != nil {
		return "", err
	}

	sig := cell.BeginCell().MustStoreSlice(req.Signature, uint(len(req.Signature)*8)).EndCell() //nolint:gomnd
	b := cell.BeginCell().
		MustStoreUInt(OpWithdraw, 32).
		MustStoreUInt(0, 64).
		MustStoreBigUInt(nonce, nonceBits).
		MustStoreBigCoins(req.Amount).
		MustStoreAddr(receiver).
		MustStoreBoolBit(master != nil)
	if master != nil {
		b.MustStoreAddr(master)
	}
	body := b.MustStoreRef(sig).EndCell()

	release, err := c.locks.Acquire(int64(omni.Ton), signer.Address())
	if err != nil {
		return "", err
	}
	defer release()
	txHash, err := signer.Send(ctx, wallet.SimpleMessage(c.bridge, nano(c.cfg.WithdrawAttach), body))
	if err != nil {
		return "", errors.Wrap(err, "send withdraw")
	}
	log.WithFields("chain", omni.Ton.String(), "nonce", req.Nonce).Infof("withdraw claimed in %s", txHash)
	return txHash, nil
}

// ClearDepositNonceIfNeeded destroys the deposit contract of a finalized deposit to reclaim its storage.
// It reports false when the contract is already gone.
func (c *Client) ClearDepositNonceIfNeeded(ctx context.Context, deposit *models.PendingDeposit, s models.Signer) (bool, error) {
	nonce, ok := utils.ParseUint128(deposit.Nonce)
	if !ok {
		return false, &gerror.DecodeError{Chain: int64(omni.Ton), Input: deposit.Nonce, Reason: "invalid nonce"}
	}
	tuple, err := c.api.RunGetMethod(ctx, c.bridge, "get_deposit_address", nonce)
	if err != nil {
		return false, err
	}
	depositAddr, err := firstAddr("get_deposit_address", tuple)
	if err != nil {
		return false, err
	}
	active, err := c.api.IsActive(ctx, depositAddr)
	if err != nil {
		return false, err
	}
	if !active {
		return false, nil
	}
	signer, err := c.upgradeSigner(s)
	if err != nil {
		return false, err
	}
	body := cell.BeginCell().
		MustStoreUInt(OpClearDeposit, 32).
		MustStoreUInt(0, 64).
		MustStoreBigUInt(nonce, nonceBits).
		EndCell()

	release, err := c.locks.Acquire(int64(omni.Ton), signer.Address())
	if err != nil {
		return false, err
	}
	defer release()
	txHash, err := signer.Send(ctx, wallet.SimpleMessage(depositAddr, nano(c.cfg.WithdrawAttach), body))
	if err != nil {
		return false, errors.Wrap(err, "send clear")
	}
	log.WithFields("chain", omni.Ton.String(), "nonce", deposit.Nonce).Infof("deposit contract %s cleared in %s", depositAddr, txHash)
	return true, nil
}
