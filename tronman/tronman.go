package tronman

import (
	"context"
	"encoding/hex"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/mr-tron/base58"
	"github.com/omnibridge/omnibridge-service/etherman"
	"github.com/omnibridge/omnibridge-service/fee"
	"github.com/omnibridge/omnibridge-service/log"
	"github.com/omnibridge/omnibridge-service/models"
	"github.com/omnibridge/omnibridge-service/omni"
	"github.com/omnibridge/omnibridge-service/retry"
	"github.com/omnibridge/omnibridge-service/rpcclient"
	"github.com/omnibridge/omnibridge-service/utils"
	"github.com/omnibridge/omnibridge-service/utils/gerror"
	"github.com/pkg/errors"
)

const (
	defaultFeeLimit = 100_000_000

	pathConstant  = "/wallet/triggerconstantcontract"
	pathTrigger   = "/wallet/triggersmartcontract"
	pathBroadcast = "/wallet/broadcasttransaction"
	pathTxInfo    = "/wallet/gettransactioninfobyid"
	pathAccount   = "/wallet/getaccount"
)

var (
	// ErrTxFailed is returned when a transaction was mined with a failed receipt
	ErrTxFailed = errors.New("tron transaction failed")
)

type poster interface {
	PostJSON(ctx context.Context, path string, body interface{}, result interface{}) error
}

// Client is the Tron chain adapter
type Client struct {
	cfg       Config
	http      poster
	bridge    string
	bridgeEvm common.Address
	locks     *utils.SignerLock
	clock     utils.TimeProvider
}

// NewTronman creates the adapter
func NewTronman(cfg Config, locks *utils.SignerLock) (*Client, error) {
	c, err := rpcclient.New("tron", cfg.RPC)
	if err != nil {
		return nil, err
	}
	return newTronman(cfg, c, locks)
}

func newTronman(cfg Config, http poster, locks *utils.SignerLock) (*Client, error) {
	bridge, err := omni.EncodeAddress(omni.Tron, cfg.BridgeAddress)
	if err != nil {
		return nil, err
	}
	if cfg.FeeLimit <= 0 {
		cfg.FeeLimit = defaultFeeLimit
	}
	if cfg.Confirm.Attempts <= 0 {
		cfg.Confirm = retry.NewPolicy(40, 3*time.Second) //nolint:gomnd
	}
	if locks == nil {
		locks = utils.NewSignerLock()
	}
	return &Client{
		cfg:       cfg,
		http:      http,
		bridge:    cfg.BridgeAddress,
		bridgeEvm: common.BytesToAddress(bridge),
		locks:     locks,
		clock:     utils.NewTimeProviderSystemLocalTime(),
	}, nil
}

// Chain returns omni.Tron
func (c *Client) Chain() omni.Network {
	return omni.Tron
}

func evmAddress(addr string) (common.Address, error) {
	raw, err := omni.EncodeAddress(omni.Tron, addr)
	if err != nil {
		return common.Address{}, err
	}
	return common.BytesToAddress(raw), nil
}

func packParams(contractABI abi.ABI, method string, args ...interface{}) (string, string, error) {
	m, ok := contractABI.Methods[method]
	if !ok {
		return "", "", errors.Errorf("unknown method %s", method)
	}
	params, err := m.Inputs.Pack(args...)
	if err != nil {
		return "", "", errors.Wrapf(err, "pack %s", method)
	}
	return m.Sig, hex.EncodeToString(params), nil
}

func (c *Client) constantCall(ctx context.Context, owner, contract string, contractABI abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	if owner == "" {
		owner = c.bridge
	}
	sig, params, err := packParams(contractABI, method, args...)
	if err != nil {
		return nil, err
	}
	var resp constantResponse
	err = c.http.PostJSON(ctx, pathConstant, triggerRequest{
		OwnerAddress: owner, ContractAddress: contract, FunctionSelector: sig, Parameter: params, Visible: true,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.ConstantResult) == 0 {
		return nil, errors.Errorf("%s: empty constant result %s", method, resp.Result.Message)
	}
	raw, err := hex.DecodeString(resp.ConstantResult[0])
	if err != nil {
		return nil, errors.Wrapf(err, "%s: decode result", method)
	}
	values, err := contractABI.Unpack(method, raw)
	if err != nil {
		return nil, errors.Wrapf(err, "unpack %s", method)
	}
	if len(values) == 0 {
		return nil, errors.Errorf("%s returned nothing", method)
	}
	return values, nil
}

// GetTokenBalance returns the TRX or TRC20 balance of address
func (c *Client) GetTokenBalance(ctx context.Context, token, address string) (*big.Int, error) {
	owner, err := evmAddress(address)
	if err != nil {
		return nil, err
	}
	if utils.IsNative(token) {
		var acc account
		if err := c.http.PostJSON(ctx, pathAccount, map[string]interface{}{"address": address, "visible": true}, &acc); err != nil {
			return nil, err
		}
		return big.NewInt(acc.Balance), nil
	}
	values, err := c.constantCall(ctx, address, token, etherman.ERC20ABI, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	balance, ok := values[0].(*big.Int)
	if !ok {
		return nil, errors.Errorf("balanceOf returned %T", values[0])
	}
	return balance, nil
}

// IsWithdrawUsed reports whether the bridge already paid out nonce
func (c *Client) IsWithdrawUsed(ctx context.Context, nonce, _ string) (bool, error) {
	n, ok := utils.ParseUint128(nonce)
	if !ok {
		return false, &gerror.DecodeError{Chain: int64(omni.Tron), Input: nonce, Reason: "invalid nonce"}
	}
	values, err := c.constantCall(ctx, "", c.bridge, etherman.BridgeABI, "usedNonces", n)
	if err != nil {
		return false, err
	}
	used, ok := values[0].(bool)
	if !ok {
		return false, errors.Errorf("usedNonces returned %T", values[0])
	}
	return used, nil
}

// GetDepositFee is bounded by the configured fee limit
func (c *Client) GetDepositFee(_ context.Context, _, token string, amount *big.Int) (*fee.ReviewFee, error) {
	f := fee.NewFixed(omni.Tron, big.NewInt(c.cfg.FeeLimit))
	if utils.IsNative(token) {
		return f.WithAdditional(amount), nil
	}
	return f, nil
}

// GetWithdrawFee is bounded by the configured fee limit
func (c *Client) GetWithdrawFee(context.Context, string, string) (*fee.ReviewFee, error) {
	return fee.NewFixed(omni.Tron, big.NewInt(c.cfg.FeeLimit)), nil
}

func (c *Client) upgradeSigner(s models.Signer) (Signer, error) {
	signer, ok := s.(Signer)
	if !ok {
		return nil, errors.Wrap(gerror.ErrInvalidSigner, "tron")
	}
	return signer, nil
}

// Deposit locks amount of token in the bridge for the intent account and resolves the bridge nonce
func (c *Client) Deposit(ctx context.Context, req models.DepositRequest) (*models.PendingDeposit, error) {
	signer, err := c.upgradeSigner(req.Signer)
	if err != nil {
		return nil, err
	}
	release, err := c.locks.Acquire(int64(omni.Tron), signer.Address())
	if err != nil {
		return nil, err
	}
	defer release()

	receiver := omni.EphemeralReceiver(req.IntentAccount)
	logger := log.WithFields("chain", omni.Tron.String(), "sender", signer.Address())

	var info *txInfo
	token := utils.NativeToken
	if utils.IsNative(req.Token) {
		if !req.Amount.IsInt64() {
			return nil, errors.Errorf("amount %s overflows call value", req.Amount)
		}
		info, err = c.send(ctx, signer, c.bridge, req.Amount.Int64(), etherman.BridgeABI, "deposit", receiver)
	} else {
		tokenAddr, tErr := evmAddress(req.Token)
		if tErr != nil {
			return nil, &gerror.UnsupportedTokenError{Chain: int64(omni.Tron), Token: req.Token}
		}
		token = req.Token
		owner, oErr := evmAddress(signer.Address())
		if oErr != nil {
			return nil, oErr
		}
		values, aErr := c.constantCall(ctx, signer.Address(), req.Token, etherman.ERC20ABI, "allowance", owner, c.bridgeEvm)
		if aErr != nil {
			return nil, aErr
		}
		if allowance, _ := values[0].(*big.Int); allowance == nil || allowance.Cmp(req.Amount) < 0 {
			logger.Infof("allowance below %s, approving bridge", req.Amount)
			if _, err := c.send(ctx, signer, req.Token, 0, etherman.ERC20ABI, "approve", c.bridgeEvm, req.Amount); err != nil {
				return nil, errors.Wrap(err, "approve")
			}
		}
		info, err = c.send(ctx, signer, c.bridge, 0, etherman.BridgeABI, "depositToken", tokenAddr, req.Amount, receiver)
	}
	deposit := &models.PendingDeposit{
		Chain:         omni.Tron,
		Token:         token,
		Amount:        req.Amount.String(),
		Receiver:      base58.Encode(receiver),
		Sender:        signer.Address(),
		IntentAccount: req.IntentAccount,
		Timestamp:     c.clock.Now().Unix(),
		Status:        models.DepositStatusSubmitted,
	}
	if err != nil {
		var notMined *notMinedError
		if errors.As(err, &notMined) && errors.Is(err, retry.ErrAttemptsExhausted) {
			deposit.TxHash = notMined.txID
			return deposit, &gerror.DepositNotFoundError{Chain: int64(omni.Tron), TxHash: notMined.txID}
		}
		return nil, err
	}
	deposit.TxHash = info.ID
	transfer, err := etherman.ParseNewTransfer(info.evmLogs(), c.bridgeEvm)
	if err != nil {
		return deposit, &gerror.DepositNotFoundError{Chain: int64(omni.Tron), TxHash: info.ID}
	}
	logger.Infof("deposit %s resolved nonce %s", info.ID, transfer.Nonce)
	deposit.Nonce = transfer.Nonce.String()
	deposit.Status = models.DepositStatusNonceResolved
	return deposit, nil
}

// ResolveDepositNonce fetches the deposit receipt again and parses the bridge log
func (c *Client) ResolveDepositNonce(ctx context.Context, deposit *models.PendingDeposit) (string, error) {
	notFound := &gerror.DepositNotFoundError{Chain: int64(omni.Tron), TxHash: deposit.TxHash}
	info, err := c.waitInfo(ctx, deposit.TxHash)
	if errors.Is(err, retry.ErrAttemptsExhausted) {
		return "", notFound
	}
	if err != nil {
		return "", err
	}
	if !info.succeeded() {
		return "", errors.Wrapf(ErrTxFailed, "deposit tx %s: %s", deposit.TxHash, info.Receipt.Result)
	}
	transfer, err := etherman.ParseNewTransfer(info.evmLogs(), c.bridgeEvm)
	if err != nil {
		return "", notFound
	}
	return transfer.Nonce.String(), nil
}

// Withdraw claims a ledger withdrawal on Tron
func (c *Client) Withdraw(ctx context.Context, req models.WithdrawRequest) (string, error) {
	signer, err := c.upgradeSigner(req.Signer)
	if err != nil {
		return "", err
	}
	nonce, ok := utils.ParseUint128(req.Nonce)
	if !ok {
		return "", &gerror.DecodeError{Chain: int64(omni.Tron), Input: req.Nonce, Reason: "invalid nonce"}
	}
	var tokenAddr common.Address
	if !utils.IsNative(req.Token) {
		if tokenAddr, err = evmAddress(req.Token); err != nil {
			return "", &gerror.UnsupportedTokenError{Chain: int64(omni.Tron), Token: req.Token}
		}
	}
	receiver, err := evmAddress(req.Receiver)
	if err != nil {
		return "", err
	}
	used, err := c.IsWithdrawUsed(ctx, req.Nonce, req.Receiver)
	if err != nil {
		return "", err
	}
	if used {
		return "", &gerror.AlreadyClaimedError{Chain: int64(omni.Tron), Nonce: req.Nonce}
	}
	release, err := c.locks.Acquire(int64(omni.Tron), signer.Address())
	if err != nil {
		return "", err
	}
	defer release()

	info, err := c.send(ctx, signer, c.bridge, 0, etherman.BridgeABI, "withdraw", nonce, tokenAddr, receiver, req.Amount, req.Signature)
	if err != nil {
		return "", err
	}
	log.WithFields("chain", omni.Tron.String(), "nonce", req.Nonce).Infof("withdraw claimed in %s", info.ID)
	return info.ID, nil
}

// ClearDepositNonceIfNeeded is a no-op, the Tron bridge keeps no per-deposit state
func (c *Client) ClearDepositNonceIfNeeded(context.Context, *models.PendingDeposit, models.Signer) (bool, error) {
	return false, nil
}

type notMinedError struct {
	txID string
	err  error
}

func (e *notMinedError) Error() string { return "tron tx " + e.txID + " not confirmed: " + e.err.Error() }
func (e *notMinedError) Unwrap() error { return e.err }

// send builds the call on the node, signs the txID locally, broadcasts and waits for the receipt
func (c *Client) send(ctx context.Context, signer Signer, contract string, callValue int64, contractABI abi.ABI, method string, args ...interface{}) (*txInfo, error) {
	sig, params, err := packParams(contractABI, method, args...)
	if err != nil {
		return nil, err
	}
	var built triggerResponse
	err = c.http.PostJSON(ctx, pathTrigger, triggerRequest{
		OwnerAddress:     signer.Address(),
		ContractAddress:  contract,
		FunctionSelector: sig,
		Parameter:        params,
		FeeLimit:         c.cfg.FeeLimit,
		CallValue:        callValue,
		Visible:          true,
	}, &built)
	if err != nil {
		return nil, err
	}
	if !built.Result.Result || built.Transaction == nil {
		return nil, errors.Errorf("%s: node refused to build tx: %s %s", method, built.Result.Code, decodeMessage(built.Result.Message))
	}
	tx := built.Transaction
	txID, err := hex.DecodeString(tx.TxID)
	if err != nil {
		return nil, errors.Wrap(err, "decode txID")
	}
	signature, err := signer.SignHash(txID)
	if err != nil {
		return nil, errors.Wrap(err, "sign tx")
	}
	tx.Signature = []string{hex.EncodeToString(signature)}

	var broadcast broadcastResponse
	if err := c.http.PostJSON(ctx, pathBroadcast, tx, &broadcast); err != nil {
		return nil, err
	}
	if !broadcast.Result {
		return nil, errors.Errorf("%s: broadcast rejected: %s %s", method, broadcast.Code, decodeMessage(broadcast.Message))
	}
	log.Debugf("tron sent %s tx %s", method, tx.TxID)

	info, err := c.waitInfo(ctx, tx.TxID)
	if err != nil {
		return nil, &notMinedError{txID: tx.TxID, err: err}
	}
	if !info.succeeded() {
		return info, errors.Wrapf(ErrTxFailed, "%s tx %s: %s", method, tx.TxID, info.Receipt.Result)
	}
	return info, nil
}

// waitInfo polls gettransactioninfobyid until the node knows txID
func (c *Client) waitInfo(ctx context.Context, txID string) (*txInfo, error) {
	var info txInfo
	err := retry.Poll(ctx, c.cfg.Confirm, func(ctx context.Context) (bool, error) {
		if err := c.http.PostJSON(ctx, pathTxInfo, map[string]string{"value": txID}, &info); err != nil {
			return false, nil
		}
		return info.ID != "", nil
	})
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// node messages are hex encoded
func decodeMessage(msg string) string {
	if raw, err := hex.DecodeString(msg); err == nil {
		return string(raw)
	}
	return msg
}
