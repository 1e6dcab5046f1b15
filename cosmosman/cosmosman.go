package cosmosman

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/url"
	"time"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/omnibridge/omnibridge-service/fee"
	"github.com/omnibridge/omnibridge-service/log"
	"github.com/omnibridge/omnibridge-service/models"
	"github.com/omnibridge/omnibridge-service/omni"
	"github.com/omnibridge/omnibridge-service/retry"
	"github.com/omnibridge/omnibridge-service/rpcclient"
	"github.com/omnibridge/omnibridge-service/utils"
	"github.com/omnibridge/omnibridge-service/utils/gerror"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	defaultDepositGas  = 300_000
	defaultWithdrawGas = 400_000
	defaultGasPrice    = "0.075"
)

// ErrTxFailed is returned when a transaction was included with a non zero code
var ErrTxFailed = errors.New("cosmos transaction failed")

// Signer executes CosmWasm contracts on behalf of an account
type Signer interface {
	Address() string
	ExecuteContract(ctx context.Context, contract string, msg []byte, funds []Coin) (txHash string, err error)
}

type getter interface {
	GetJSON(ctx context.Context, path string, result interface{}) error
}

// Client is the adapter of one CosmWasm chain
type Client struct {
	cfg      Config
	chain    omni.Network
	lcd      getter
	gasPrice decimal.Decimal
	locks    *utils.SignerLock
	clock    utils.TimeProvider
}

// NewCosmosman creates the adapter
func NewCosmosman(cfg Config, locks *utils.SignerLock) (*Client, error) {
	c, err := rpcclient.New("cosmos", cfg.LCD)
	if err != nil {
		return nil, err
	}
	return newCosmosman(cfg, c, locks)
}

func newCosmosman(cfg Config, lcd getter, locks *utils.SignerLock) (*Client, error) {
	chain := omni.Network(cfg.Chain)
	if chain == 0 {
		chain = omni.Juno
	}
	if chain.Family() != omni.FamilyCosmos {
		return nil, &gerror.UnsupportedChainError{Chain: int64(chain)}
	}
	if _, err := omni.EncodeAddress(chain, cfg.BridgeContract); err != nil {
		return nil, err
	}
	if cfg.GasPrice == "" {
		cfg.GasPrice = defaultGasPrice
	}
	gasPrice, err := decimal.NewFromString(cfg.GasPrice)
	if err != nil {
		return nil, errors.Wrap(err, "gas price")
	}
	if cfg.DepositGas <= 0 {
		cfg.DepositGas = defaultDepositGas
	}
	if cfg.WithdrawGas <= 0 {
		cfg.WithdrawGas = defaultWithdrawGas
	}
	if cfg.Confirm.Attempts <= 0 {
		cfg.Confirm = retry.NewPolicy(30, 2*time.Second) //nolint:gomnd
	}
	if locks == nil {
		locks = utils.NewSignerLock()
	}
	return &Client{cfg: cfg, chain: chain, lcd: lcd, gasPrice: gasPrice, locks: locks, clock: utils.NewTimeProviderSystemLocalTime()}, nil
}

// Chain returns the configured network
func (c *Client) Chain() omni.Network {
	return c.chain
}

func isContract(token string) bool {
	_, _, err := bech32.Decode(token)
	return err == nil
}

func (c *Client) denom(token string) string {
	if utils.IsNative(token) {
		return c.cfg.Denom
	}
	return token
}

func (c *Client) smartQuery(ctx context.Context, contract string, query interface{}, result interface{}) error {
	raw, err := json.Marshal(query)
	if err != nil {
		return err
	}
	path := fmt.Sprintf("/cosmwasm/wasm/v1/contract/%s/smart/%s", contract, url.PathEscape(base64.StdEncoding.EncodeToString(raw)))
	var res smartQueryResponse
	if err := c.lcd.GetJSON(ctx, path, &res); err != nil {
		return errors.Wrapf(err, "query %s", contract)
	}
	return json.Unmarshal(res.Data, result)
}

// GetTokenBalance returns a bank or cw20 balance
func (c *Client) GetTokenBalance(ctx context.Context, token, addr string) (*big.Int, error) {
	if _, err := omni.EncodeAddress(c.chain, addr); err != nil {
		return nil, err
	}
	if !utils.IsNative(token) && isContract(token) {
		var res struct {
			Balance string `json:"balance"`
		}
		if err := c.smartQuery(ctx, token, map[string]interface{}{"balance": map[string]string{"address": addr}}, &res); err != nil {
			return nil, err
		}
		return parseAmount(res.Balance)
	}
	var res bankBalanceResponse
	path := fmt.Sprintf("/cosmos/bank/v1beta1/balances/%s/by_denom?denom=%s", addr, url.QueryEscape(c.denom(token)))
	if err := c.lcd.GetJSON(ctx, path, &res); err != nil {
		return nil, errors.Wrap(err, "bank balance")
	}
	if res.Balance.Amount == "" {
		return new(big.Int), nil
	}
	return parseAmount(res.Balance.Amount)
}

func parseAmount(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(s, 10) //nolint:gomnd
	if !ok {
		return nil, errors.Errorf("bad amount %q", s)
	}
	return n, nil
}

func (c *Client) gasFee(gas int64) *big.Int {
	return c.gasPrice.Mul(decimal.NewFromInt(gas)).Ceil().BigInt()
}

// GetDepositFee returns gas limit times the configured gas price
func (c *Client) GetDepositFee(_ context.Context, _, token string, amount *big.Int) (*fee.ReviewFee, error) {
	f := fee.NewFixed(c.chain, c.gasFee(c.cfg.DepositGas))
	if utils.IsNative(token) {
		return f.WithAdditional(amount), nil
	}
	return f, nil
}

// GetWithdrawFee returns gas limit times the configured gas price
func (c *Client) GetWithdrawFee(context.Context, string, string) (*fee.ReviewFee, error) {
	return fee.NewFixed(c.chain, c.gasFee(c.cfg.WithdrawGas)), nil
}

// IsWithdrawUsed queries the bridge is_executed
func (c *Client) IsWithdrawUsed(ctx context.Context, nonce, _ string) (bool, error) {
	if _, ok := utils.ParseUint128(nonce); !ok {
		return false, &gerror.DecodeError{Chain: int64(c.chain), Input: nonce, Reason: "invalid nonce"}
	}
	var used bool
	err := c.smartQuery(ctx, c.cfg.BridgeContract, map[string]interface{}{"is_executed": map[string]string{"nonce": nonce}}, &used)
	return used, err
}

func (c *Client) upgradeSigner(s models.Signer) (Signer, error) {
	signer, ok := s.(Signer)
	if !ok {
		return nil, errors.Wrap(gerror.ErrInvalidSigner, "cosmos")
	}
	return signer, nil
}

type depositMsg struct {
	Deposit struct {
		Receiver string `json:"receiver"`
	} `json:"deposit"`
}

type cw20Send struct {
	Send struct {
		Contract string `json:"contract"`
		Amount   string `json:"amount"`
		Msg      string `json:"msg"`
	} `json:"send"`
}

type withdrawMsg struct {
	Withdraw struct {
		Nonce     string `json:"nonce"`
		Token     string `json:"token"`
		Receiver  string `json:"receiver"`
		Amount    string `json:"amount"`
		Signature string `json:"signature"`
	} `json:"withdraw"`
}

// Deposit sends funds to the bridge, or cw20 tokens through send; the nonce comes from the wasm event
func (c *Client) Deposit(ctx context.Context, req models.DepositRequest) (*models.PendingDeposit, error) {
	signer, err := c.upgradeSigner(req.Signer)
	if err != nil {
		return nil, err
	}
	var dep depositMsg
	dep.Deposit.Receiver = base64.StdEncoding.EncodeToString(omni.EphemeralReceiver(req.IntentAccount))
	depRaw, err := json.Marshal(dep)
	if err != nil {
		return nil, err
	}

	contract, msg, token := c.cfg.BridgeContract, depRaw, utils.NativeToken
	var funds []Coin
	switch {
	case utils.IsNative(req.Token):
		funds = []Coin{{Denom: c.cfg.Denom, Amount: req.Amount.String()}}
	case isContract(req.Token):
		var send cw20Send
		send.Send.Contract = c.cfg.BridgeContract
		send.Send.Amount = req.Amount.String()
		send.Send.Msg = base64.StdEncoding.EncodeToString(depRaw)
		if msg, err = json.Marshal(send); err != nil {
			return nil, err
		}
		contract, token = req.Token, req.Token
	default:
		if _, err := omni.EncodeAddress(c.chain, req.Token); err != nil {
			return nil, &gerror.UnsupportedTokenError{Chain: int64(c.chain), Token: req.Token}
		}
		funds = []Coin{{Denom: req.Token, Amount: req.Amount.String()}}
		token = req.Token
	}

	release, err := c.locks.Acquire(int64(c.chain), signer.Address())
	if err != nil {
		return nil, err
	}
	defer release()
	hash, err := signer.ExecuteContract(ctx, contract, msg, funds)
	if err != nil {
		return nil, errors.Wrap(err, "execute deposit")
	}
	deposit := &models.PendingDeposit{
		Chain:         c.chain,
		Token:         token,
		Amount:        req.Amount.String(),
		Receiver:      omni.EphemeralReceiverBase58(req.IntentAccount),
		Sender:        signer.Address(),
		IntentAccount: req.IntentAccount,
		TxHash:        hash,
		Timestamp:     c.clock.Now().Unix(),
		Status:        models.DepositStatusSubmitted,
	}
	res, err := c.waitTx(ctx, hash)
	if errors.Is(err, retry.ErrAttemptsExhausted) {
		return deposit, &gerror.DepositNotFoundError{Chain: int64(c.chain), TxHash: hash}
	}
	if err != nil {
		return nil, err
	}
	nonce, ok := res.wasmNonce()
	if !ok {
		return deposit, &gerror.DepositNotFoundError{Chain: int64(c.chain), TxHash: hash}
	}
	log.WithFields("chain", c.chain.String(), "sender", signer.Address()).Infof("deposit %s resolved nonce %s", hash, nonce)
	deposit.Nonce = nonce
	deposit.Status = models.DepositStatusNonceResolved
	return deposit, nil
}

// ResolveDepositNonce looks the deposit tx up again and reads the nonce from its wasm events
func (c *Client) ResolveDepositNonce(ctx context.Context, deposit *models.PendingDeposit) (string, error) {
	notFound := &gerror.DepositNotFoundError{Chain: int64(c.chain), TxHash: deposit.TxHash}
	res, err := c.waitTx(ctx, deposit.TxHash)
	if errors.Is(err, retry.ErrAttemptsExhausted) {
		return "", notFound
	}
	if err != nil {
		return "", err
	}
	nonce, ok := res.wasmNonce()
	if !ok {
		return "", notFound
	}
	return nonce, nil
}

// Withdraw executes bridge withdraw with the MPC signature
func (c *Client) Withdraw(ctx context.Context, req models.WithdrawRequest) (string, error) {
	signer, err := c.upgradeSigner(req.Signer)
	if err != nil {
		return "", err
	}
	if _, err := omni.EncodeAddress(c.chain, req.Receiver); err != nil {
		return "", err
	}
	used, err := c.IsWithdrawUsed(ctx, req.Nonce, req.Receiver)
	if err != nil {
		return "", err
	}
	if used {
		return "", &gerror.AlreadyClaimedError{Chain: int64(c.chain), Nonce: req.Nonce}
	}
	var msg withdrawMsg
	msg.Withdraw.Nonce = req.Nonce
	msg.Withdraw.Token = c.denom(req.Token)
	msg.Withdraw.Receiver = req.Receiver
	msg.Withdraw.Amount = req.Amount.String()
	msg.Withdraw.Signature = base64.StdEncoding.EncodeToString(req.Signature)
	raw, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}

	release, err := c.locks.Acquire(int64(c.chain), signer.Address())
	if err != nil {
		return "", err
	}
	defer release()
	hash, err := signer.ExecuteContract(ctx, c.cfg.BridgeContract, raw, nil)
	if err != nil {
		return "", errors.Wrap(err, "execute withdraw")
	}
	if _, err := c.waitTx(ctx, hash); err != nil {
		return "", err
	}
	log.WithFields("chain", c.chain.String(), "nonce", req.Nonce).Infof("withdraw claimed in %s", hash)
	return hash, nil
}

// ClearDepositNonceIfNeeded is a no-op, CosmWasm bridges keep no per-deposit state
func (c *Client) ClearDepositNonceIfNeeded(context.Context, *models.PendingDeposit, models.Signer) (bool, error) {
	return false, nil
}

func (c *Client) waitTx(ctx context.Context, hash string) (*txResponse, error) {
	var out *txResponse
	err := retry.Poll(ctx, c.cfg.Confirm, func(ctx context.Context) (bool, error) {
		var res getTxResponse
		if err := c.lcd.GetJSON(ctx, "/cosmos/tx/v1beta1/txs/"+hash, &res); err != nil || res.TxResponse == nil {
			return false, nil
		}
		if res.TxResponse.Code != 0 {
			return false, retry.Permanent(errors.Wrapf(ErrTxFailed, "%s code %d: %s", hash, res.TxResponse.Code, res.TxResponse.RawLog))
		}
		out = res.TxResponse
		return true, nil
	})
	return out, err
}
