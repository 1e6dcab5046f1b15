package etherman

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/mr-tron/base58"
	"github.com/omnibridge/omnibridge-service/fee"
	"github.com/omnibridge/omnibridge-service/log"
	"github.com/omnibridge/omnibridge-service/models"
	"github.com/omnibridge/omnibridge-service/omni"
	"github.com/omnibridge/omnibridge-service/retry"
	"github.com/omnibridge/omnibridge-service/utils"
	"github.com/omnibridge/omnibridge-service/utils/gerror"
	"github.com/pkg/errors"
)

const (
	nativeDepositGasLimit = 80_000
	tokenDepositGasLimit  = 150_000
	approveGasLimit       = 60_000
	withdrawGasLimit      = 150_000

	defaultGasLimitMultiplier = 1.2
	defaultBaseFeeMultiplier  = 1.25
)

var (
	// ErrTxReverted is returned when a mined transaction has a failed status
	ErrTxReverted = errors.New("transaction reverted")

	// placeholder receiver used for gas estimation
	estimateReceiver = make([]byte, 32) //nolint:gomnd
)

// Client is the EVM chain adapter
type Client struct {
	cfg    Config
	chain  omni.Network
	bridge common.Address
	rpc    *endpoints
	nonces *NonceCache
	locks  *utils.SignerLock
	clock  utils.TimeProvider
}

// NewEtherman dials every configured endpoint and returns the adapter
func NewEtherman(cfg Config, locks *utils.SignerLock) (*Client, error) {
	clients := make([]ethClienter, 0, len(cfg.URLs))
	for _, url := range cfg.URLs {
		ethClient, err := ethclient.Dial(url)
		if err != nil {
			log.Errorf("error connecting to %s: %+v", url, err)
			return nil, err
		}
		clients = append(clients, ethClient)
	}
	return newEtherman(cfg, clients, locks)
}

func newEtherman(cfg Config, clients []ethClienter, locks *utils.SignerLock) (*Client, error) {
	if len(clients) == 0 {
		return nil, errors.Errorf("evm chain %d: no rpc endpoints", cfg.ChainID)
	}
	chain := omni.Network(cfg.ChainID)
	if !chain.IsEVM() {
		return nil, &gerror.UnsupportedChainError{Chain: cfg.ChainID}
	}
	if !common.IsHexAddress(cfg.BridgeAddress) {
		return nil, &gerror.DecodeError{Chain: cfg.ChainID, Input: cfg.BridgeAddress, Reason: "bridge address is not hex"}
	}
	if cfg.GasLimitMultiplier <= 0 {
		cfg.GasLimitMultiplier = defaultGasLimitMultiplier
	}
	if cfg.BaseFeeMultiplier <= 0 {
		cfg.BaseFeeMultiplier = defaultBaseFeeMultiplier
	}
	if cfg.Confirm.Attempts <= 0 {
		cfg.Confirm = retry.NewPolicy(60, 2*time.Second) //nolint:gomnd
	}
	if locks == nil {
		locks = utils.NewSignerLock()
	}
	nonces, err := NewNonceCache()
	if err != nil {
		return nil, err
	}
	urls := cfg.URLs
	for len(urls) < len(clients) {
		urls = append(urls, "in-process")
	}
	return &Client{
		cfg:    cfg,
		chain:  chain,
		bridge: common.HexToAddress(cfg.BridgeAddress),
		rpc:    &endpoints{name: "evm-" + chain.String(), urls: urls, clients: clients},
		nonces: nonces,
		locks:  locks,
		clock:  utils.NewTimeProviderSystemLocalTime(),
	}, nil
}

// Chain returns the network served by the adapter
func (c *Client) Chain() omni.Network {
	return c.chain
}

func (c *Client) parseAddress(addr string) (common.Address, error) {
	if !common.IsHexAddress(addr) {
		return common.Address{}, &gerror.DecodeError{Chain: int64(c.chain), Input: addr, Reason: "not a hex address"}
	}
	return common.HexToAddress(addr), nil
}

func (c *Client) parseToken(token string) (common.Address, error) {
	if utils.IsNative(token) {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(token) {
		return common.Address{}, &gerror.UnsupportedTokenError{Chain: int64(c.chain), Token: token}
	}
	return common.HexToAddress(token), nil
}

func (c *Client) callView(ctx context.Context, to common.Address, method string, out interface{}, args ...interface{}) error {
	contractABI := ERC20ABI
	if to == c.bridge {
		contractABI = BridgeABI
	}
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return err
	}
	var raw []byte
	err = c.rpc.call(ctx, func(cl ethClienter) error {
		var err error
		raw, err = cl.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
		return err
	})
	if err != nil {
		return errors.Wrapf(err, "call %s", method)
	}
	values, err := contractABI.Unpack(method, raw)
	if err != nil {
		return errors.Wrapf(err, "unpack %s", method)
	}
	if len(values) == 0 {
		return errors.Errorf("%s returned nothing", method)
	}
	switch o := out.(type) {
	case **big.Int:
		v, ok := values[0].(*big.Int)
		if !ok {
			return errors.Errorf("%s returned %T", method, values[0])
		}
		*o = v
	case *bool:
		v, ok := values[0].(bool)
		if !ok {
			return errors.Errorf("%s returned %T", method, values[0])
		}
		*o = v
	}
	return nil
}

// GetTokenBalance returns the balance of address in token
func (c *Client) GetTokenBalance(ctx context.Context, token, address string) (*big.Int, error) {
	owner, err := c.parseAddress(address)
	if err != nil {
		return nil, err
	}
	tokenAddr, err := c.parseToken(token)
	if err != nil {
		return nil, err
	}
	if tokenAddr == (common.Address{}) {
		var balance *big.Int
		err = c.rpc.call(ctx, func(cl ethClienter) error {
			var err error
			balance, err = cl.BalanceAt(ctx, owner, nil)
			return err
		})
		return balance, err
	}
	var balance *big.Int
	err = c.callView(ctx, tokenAddr, "balanceOf", &balance, owner)
	return balance, err
}

func (c *Client) allowance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	var allowance *big.Int
	err := c.callView(ctx, token, "allowance", &allowance, owner, c.bridge)
	return allowance, err
}

// IsWithdrawUsed reports whether the bridge already paid out nonce
func (c *Client) IsWithdrawUsed(ctx context.Context, nonce, _ string) (bool, error) {
	n, ok := utils.ParseUint128(nonce)
	if !ok {
		return false, &gerror.DecodeError{Chain: int64(c.chain), Input: nonce, Reason: "invalid nonce"}
	}
	var used bool
	err := c.callView(ctx, c.bridge, "usedNonces", &used, n)
	return used, err
}

// gasPrice returns the base and priority price, legacy when the chain has no base fee
func (c *Client) gasPrice(ctx context.Context) (*big.Int, *big.Int, bool, error) {
	var header *types.Header
	err := c.rpc.call(ctx, func(cl ethClienter) error {
		var err error
		header, err = cl.HeaderByNumber(ctx, nil)
		return err
	})
	if err != nil {
		return nil, nil, false, errors.Wrap(err, "latest header")
	}
	if header.BaseFee == nil {
		var price *big.Int
		err = c.rpc.call(ctx, func(cl ethClienter) error {
			var err error
			price, err = cl.SuggestGasPrice(ctx)
			return err
		})
		return price, new(big.Int), true, err
	}
	var tip *big.Int
	err = c.rpc.call(ctx, func(cl ethClienter) error {
		var err error
		tip, err = cl.SuggestGasTipCap(ctx)
		return err
	})
	if err != nil {
		return nil, nil, false, err
	}
	return mulFloat(header.BaseFee, c.cfg.BaseFeeMultiplier), tip, false, nil
}

func mulFloat(v *big.Int, m float64) *big.Int {
	f := new(big.Float).Mul(new(big.Float).SetInt(v), big.NewFloat(m))
	out, _ := f.Int(nil)
	return out
}

func (c *Client) estimateGas(ctx context.Context, msg ethereum.CallMsg, fallback uint64) uint64 {
	var gas uint64
	err := c.rpc.call(ctx, func(cl ethClienter) error {
		var err error
		gas, err = cl.EstimateGas(ctx, msg)
		return err
	})
	if err != nil || gas == 0 {
		return fallback
	}
	return uint64(float64(gas) * c.cfg.GasLimitMultiplier)
}

// GetDepositFee estimates the cost of a deposit, including the approval when the allowance is low
func (c *Client) GetDepositFee(ctx context.Context, sender, token string, amount *big.Int) (*fee.ReviewFee, error) {
	from, err := c.parseAddress(sender)
	if err != nil {
		return nil, err
	}
	tokenAddr, err := c.parseToken(token)
	if err != nil {
		return nil, err
	}
	base, tip, legacy, err := c.gasPrice(ctx)
	if err != nil {
		return nil, err
	}
	if tokenAddr == (common.Address{}) {
		data, err := BridgeABI.Pack("deposit", estimateReceiver)
		if err != nil {
			return nil, err
		}
		gas := c.estimateGas(ctx, ethereum.CallMsg{From: from, To: &c.bridge, Value: amount, Data: data}, nativeDepositGasLimit)
		return fee.NewEvm(c.chain, base, tip, gas, legacy).WithAdditional(amount), nil
	}
	allowance, err := c.allowance(ctx, tokenAddr, from)
	if err != nil {
		return nil, err
	}
	if allowance.Cmp(amount) < 0 {
		return fee.NewEvm(c.chain, base, tip, tokenDepositGasLimit+approveGasLimit, legacy), nil
	}
	data, err := BridgeABI.Pack("depositToken", tokenAddr, amount, estimateReceiver)
	if err != nil {
		return nil, err
	}
	gas := c.estimateGas(ctx, ethereum.CallMsg{From: from, To: &c.bridge, Data: data}, tokenDepositGasLimit)
	return fee.NewEvm(c.chain, base, tip, gas, legacy), nil
}

// GetWithdrawFee estimates the cost of claiming a withdrawal
func (c *Client) GetWithdrawFee(ctx context.Context, _, _ string) (*fee.ReviewFee, error) {
	base, tip, legacy, err := c.gasPrice(ctx)
	if err != nil {
		return nil, err
	}
	return fee.NewEvm(c.chain, base, tip, withdrawGasLimit, legacy), nil
}

func (c *Client) upgradeSigner(s models.Signer) (Signer, error) {
	signer, ok := s.(Signer)
	if !ok {
		return nil, errors.Wrapf(gerror.ErrInvalidSigner, "evm chain %d", c.chain)
	}
	return signer, nil
}

// Deposit locks amount of token in the bridge for the intent account and resolves the bridge nonce
func (c *Client) Deposit(ctx context.Context, req models.DepositRequest) (*models.PendingDeposit, error) {
	signer, err := c.upgradeSigner(req.Signer)
	if err != nil {
		return nil, err
	}
	tokenAddr, err := c.parseToken(req.Token)
	if err != nil {
		return nil, err
	}
	release, err := c.locks.Acquire(int64(c.chain), signer.Address())
	if err != nil {
		return nil, err
	}
	defer release()

	receiver := omni.EphemeralReceiver(req.IntentAccount)
	from := signer.TransactOpts().From
	logger := log.WithFields("chain", c.chain.String(), "sender", from.Hex())

	var data []byte
	value := new(big.Int)
	if tokenAddr == (common.Address{}) {
		value = req.Amount
		data, err = BridgeABI.Pack("deposit", receiver)
	} else {
		allowance, aErr := c.allowance(ctx, tokenAddr, from)
		if aErr != nil {
			return nil, aErr
		}
		if allowance.Cmp(req.Amount) < 0 {
			logger.Infof("allowance %s below %s, approving bridge", allowance, req.Amount)
			approve, pErr := ERC20ABI.Pack("approve", c.bridge, req.Amount)
			if pErr != nil {
				return nil, pErr
			}
			if _, err := c.sendAndWait(ctx, signer, tokenAddr, nil, approve, approveGasLimit); err != nil {
				return nil, errors.Wrap(err, "approve")
			}
		}
		data, err = BridgeABI.Pack("depositToken", tokenAddr, req.Amount, receiver)
	}
	if err != nil {
		return nil, err
	}

	deposit := &models.PendingDeposit{
		Chain:         c.chain,
		Token:         normalizeToken(req.Token, tokenAddr),
		Amount:        req.Amount.String(),
		Receiver:      base58.Encode(receiver),
		Sender:        from.Hex(),
		IntentAccount: req.IntentAccount,
		Timestamp:     c.clock.Now().Unix(),
		Status:        models.DepositStatusSubmitted,
	}
	receipt, err := c.sendAndWait(ctx, signer, c.bridge, value, data, tokenDepositGasLimit)
	if err != nil {
		var notMined *notMinedError
		if errors.As(err, &notMined) && errors.Is(err, retry.ErrAttemptsExhausted) {
			deposit.TxHash = notMined.hash.Hex()
			return deposit, &gerror.DepositNotFoundError{Chain: int64(c.chain), TxHash: deposit.TxHash}
		}
		return nil, err
	}
	deposit.TxHash = receipt.TxHash.Hex()
	transfer, err := ParseNewTransfer(receipt.Logs, c.bridge)
	if err != nil {
		return deposit, &gerror.DepositNotFoundError{Chain: int64(c.chain), TxHash: deposit.TxHash}
	}
	logger.Infof("deposit %s resolved nonce %s", deposit.TxHash, transfer.Nonce)
	deposit.Nonce = transfer.Nonce.String()
	deposit.Status = models.DepositStatusNonceResolved
	return deposit, nil
}

// ResolveDepositNonce reads the bridge nonce from the receipt of a sent deposit
func (c *Client) ResolveDepositNonce(ctx context.Context, deposit *models.PendingDeposit) (string, error) {
	hash := common.HexToHash(deposit.TxHash)
	if hash == (common.Hash{}) {
		return "", &gerror.DecodeError{Chain: int64(c.chain), Input: deposit.TxHash, Reason: "invalid tx hash"}
	}
	notFound := &gerror.DepositNotFoundError{Chain: int64(c.chain), TxHash: deposit.TxHash}
	receipt, err := c.waitReceipt(ctx, hash)
	if errors.Is(err, retry.ErrAttemptsExhausted) {
		return "", notFound
	}
	if err != nil {
		return "", err
	}
	transfer, err := ParseNewTransfer(receipt.Logs, c.bridge)
	if err != nil {
		return "", notFound
	}
	return transfer.Nonce.String(), nil
}

func normalizeToken(token string, addr common.Address) string {
	if addr == (common.Address{}) {
		return utils.NativeToken
	}
	return addr.Hex()
}

// Withdraw claims a ledger withdrawal on this chain
func (c *Client) Withdraw(ctx context.Context, req models.WithdrawRequest) (string, error) {
	signer, err := c.upgradeSigner(req.Signer)
	if err != nil {
		return "", err
	}
	nonce, ok := utils.ParseUint128(req.Nonce)
	if !ok {
		return "", &gerror.DecodeError{Chain: int64(c.chain), Input: req.Nonce, Reason: "invalid nonce"}
	}
	tokenAddr, err := c.parseToken(req.Token)
	if err != nil {
		return "", err
	}
	receiver, err := c.parseAddress(req.Receiver)
	if err != nil {
		return "", err
	}
	used, err := c.IsWithdrawUsed(ctx, req.Nonce, req.Receiver)
	if err != nil {
		return "", err
	}
	if used {
		return "", &gerror.AlreadyClaimedError{Chain: int64(c.chain), Nonce: req.Nonce}
	}
	release, err := c.locks.Acquire(int64(c.chain), signer.Address())
	if err != nil {
		return "", err
	}
	defer release()

	data, err := BridgeABI.Pack("withdraw", nonce, tokenAddr, receiver, req.Amount, req.Signature)
	if err != nil {
		return "", err
	}
	receipt, err := c.sendAndWait(ctx, signer, c.bridge, nil, data, withdrawGasLimit)
	if err != nil {
		return "", err
	}
	log.WithFields("chain", c.chain.String(), "nonce", req.Nonce).Infof("withdraw claimed in %s", receipt.TxHash.Hex())
	return receipt.TxHash.Hex(), nil
}

// ClearDepositNonceIfNeeded is a no-op, the EVM bridge keeps no per-deposit state
func (c *Client) ClearDepositNonceIfNeeded(context.Context, *models.PendingDeposit, models.Signer) (bool, error) {
	return false, nil
}

type notMinedError struct {
	hash common.Hash
	err  error
}

func (e *notMinedError) Error() string {
	return "transaction " + e.hash.Hex() + " not mined: " + e.err.Error()
}

func (e *notMinedError) Unwrap() error { return e.err }

func (c *Client) sendAndWait(ctx context.Context, signer Signer, to common.Address, value *big.Int, data []byte, fallbackGas uint64) (*types.Receipt, error) {
	opts := signer.TransactOpts()
	if value == nil {
		value = new(big.Int)
	}
	base, tip, legacy, err := c.gasPrice(ctx)
	if err != nil {
		return nil, err
	}
	gasLimit := c.estimateGas(ctx, ethereum.CallMsg{From: opts.From, To: &to, Value: value, Data: data}, fallbackGas)
	gas := fee.NewEvm(c.chain, base, tip, gasLimit, legacy).EvmGas()

	var nonce uint64
	err = c.rpc.call(ctx, func(cl ethClienter) error {
		var err error
		nonce, err = c.nonces.GetNextNonce(ctx, cl, opts.From)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "next nonce")
	}

	var tx *types.Transaction
	if legacy {
		tx = types.NewTx(&types.LegacyTx{Nonce: nonce, GasPrice: gas.GasPrice, Gas: gas.GasLimit, To: &to, Value: value, Data: data})
	} else {
		tx = types.NewTx(&types.DynamicFeeTx{
			ChainID:   big.NewInt(int64(c.chain)),
			Nonce:     nonce,
			GasTipCap: gas.MaxPriorityFeePerGas,
			GasFeeCap: gas.MaxFeePerGas,
			Gas:       gas.GasLimit,
			To:        &to,
			Value:     value,
			Data:      data,
		})
	}
	signed, err := opts.Signer(opts.From, tx)
	if err != nil {
		c.nonces.Remove(opts.From)
		return nil, errors.Wrap(err, "sign tx")
	}
	err = c.rpc.call(ctx, func(cl ethClienter) error {
		return cl.SendTransaction(ctx, signed)
	})
	if err != nil && !strings.Contains(err.Error(), "already known") {
		c.nonces.Remove(opts.From)
		return nil, errors.Wrap(err, "send tx")
	}
	log.Debugf("evm %s sent tx %s nonce %d", c.chain, signed.Hash().Hex(), nonce)
	return c.waitReceipt(ctx, signed.Hash())
}

func (c *Client) waitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	var receipt *types.Receipt
	err := retry.Poll(ctx, c.cfg.Confirm, func(ctx context.Context) (bool, error) {
		err := c.rpc.call(ctx, func(cl ethClienter) error {
			var err error
			receipt, err = cl.TransactionReceipt(ctx, hash)
			return err
		})
		if errors.Is(err, ethereum.NotFound) {
			return false, nil
		}
		if err != nil {
			log.Debugf("receipt %s: %v", hash.Hex(), err)
			return false, nil
		}
		return receipt != nil, nil
	})
	if err != nil {
		return nil, &notMinedError{hash: hash, err: err}
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, errors.Wrapf(ErrTxReverted, "tx %s", hash.Hex())
	}
	return receipt, nil
}
