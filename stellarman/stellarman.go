package stellarman

import (
	"context"
	"math/big"
	"strconv"
	"time"

	"github.com/omnibridge/omnibridge-service/fee"
	"github.com/omnibridge/omnibridge-service/log"
	"github.com/omnibridge/omnibridge-service/models"
	"github.com/omnibridge/omnibridge-service/omni"
	"github.com/omnibridge/omnibridge-service/retry"
	"github.com/omnibridge/omnibridge-service/rpcclient"
	"github.com/omnibridge/omnibridge-service/utils"
	"github.com/omnibridge/omnibridge-service/utils/gerror"
	"github.com/pkg/errors"
	"github.com/stellar/go/network"
	"github.com/stellar/go/txnbuild"
	"github.com/stellar/go/xdr"
)

const (
	defaultWithdrawFee = 2_000_000
	txTimeout          = 300
)

var (
	// ErrTxFailed is returned when a transaction was applied with a failed result
	ErrTxFailed = errors.New("stellar transaction failed")
	// ErrSimulation is returned when the RPC server cannot simulate an invocation
	ErrSimulation = errors.New("soroban simulation failed")
)

type jsonRPCCaller interface {
	CallJSONRPC(ctx context.Context, method string, params interface{}, result interface{}) error
}

// Client is the Stellar chain adapter
type Client struct {
	cfg   Config
	rpc   jsonRPCCaller
	locks *utils.SignerLock
	clock utils.TimeProvider
}

// NewStellarman creates the adapter
func NewStellarman(cfg Config, locks *utils.SignerLock) (*Client, error) {
	c, err := rpcclient.New("stellar", cfg.RPC)
	if err != nil {
		return nil, err
	}
	return newStellarman(cfg, c, locks)
}

func newStellarman(cfg Config, rpc jsonRPCCaller, locks *utils.SignerLock) (*Client, error) {
	if _, err := scAddress(cfg.BridgeContract); err != nil {
		return nil, err
	}
	if cfg.NetworkPassphrase == "" {
		cfg.NetworkPassphrase = network.PublicNetworkPassphrase
	}
	if cfg.WithdrawFee <= 0 {
		cfg.WithdrawFee = defaultWithdrawFee
	}
	if cfg.Confirm.Attempts <= 0 {
		cfg.Confirm = retry.NewPolicy(30, 2*time.Second) //nolint:gomnd
	}
	if locks == nil {
		locks = utils.NewSignerLock()
	}
	return &Client{cfg: cfg, rpc: rpc, locks: locks, clock: utils.NewTimeProviderSystemLocalTime()}, nil
}

// Chain returns omni.Stellar
func (c *Client) Chain() omni.Network {
	return omni.Stellar
}

// tokenContract maps "native" to the XLM asset contract
func (c *Client) tokenContract(token string) string {
	if utils.IsNative(token) {
		return c.cfg.NativeContract
	}
	return token
}

func (c *Client) loadAccount(ctx context.Context, addr string) (*xdr.AccountEntry, error) {
	accountID, err := xdr.AddressToAccountId(addr)
	if err != nil {
		return nil, &gerror.DecodeError{Chain: int64(omni.Stellar), Input: addr, Reason: err.Error()}
	}
	key, err := xdr.MarshalBase64(xdr.LedgerKey{Type: xdr.LedgerEntryTypeAccount, Account: &xdr.LedgerKeyAccount{AccountId: accountID}})
	if err != nil {
		return nil, err
	}
	var res ledgerEntriesResponse
	if err := c.rpc.CallJSONRPC(ctx, "getLedgerEntries", map[string]interface{}{"keys": []string{key}}, &res); err != nil {
		return nil, errors.Wrap(err, "getLedgerEntries")
	}
	if len(res.Entries) == 0 {
		return nil, errors.Errorf("account %s not found", addr)
	}
	var data xdr.LedgerEntryData
	if err := xdr.SafeUnmarshalBase64(res.Entries[0].XDR, &data); err != nil {
		return nil, errors.Wrap(err, "account entry")
	}
	account, ok := data.GetAccount()
	if !ok {
		return nil, errors.Errorf("ledger entry of %s is not an account", addr)
	}
	return &account, nil
}

func (c *Client) invokeOp(source, contract, method string, args ...xdr.ScVal) (*txnbuild.InvokeHostFunction, error) {
	target, err := scAddress(contract)
	if err != nil {
		return nil, err
	}
	return &txnbuild.InvokeHostFunction{
		HostFunction: xdr.HostFunction{
			Type: xdr.HostFunctionTypeHostFunctionTypeInvokeContract,
			InvokeContract: &xdr.InvokeContractArgs{
				ContractAddress: target,
				FunctionName:    xdr.ScSymbol(method),
				Args:            args,
			},
		},
		SourceAccount: source,
	}, nil
}

func (c *Client) buildTx(source string, seq int64, baseFee int64, op *txnbuild.InvokeHostFunction) (*txnbuild.Transaction, error) {
	return txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount:        &txnbuild.SimpleAccount{AccountID: source, Sequence: seq},
		IncrementSequenceNum: true,
		Operations:           []txnbuild.Operation{op},
		BaseFee:              baseFee,
		Preconditions:        txnbuild.Preconditions{TimeBounds: txnbuild.NewTimeout(txTimeout)},
	})
}

type simulation struct {
	result      xdr.ScVal
	auth        []xdr.SorobanAuthorizationEntry
	data        xdr.SorobanTransactionData
	resourceFee int64
}

func (c *Client) simulate(ctx context.Context, tx *txnbuild.Transaction) (*simulation, error) {
	envelope, err := tx.Base64()
	if err != nil {
		return nil, err
	}
	var res simulateResponse
	if err := c.rpc.CallJSONRPC(ctx, "simulateTransaction", map[string]string{"transaction": envelope}, &res); err != nil {
		return nil, errors.Wrap(err, "simulateTransaction")
	}
	if res.Error != "" {
		return nil, errors.Wrap(ErrSimulation, res.Error)
	}
	if len(res.Results) == 0 {
		return nil, errors.Wrap(ErrSimulation, "no results")
	}
	sim := &simulation{}
	if err := xdr.SafeUnmarshalBase64(res.Results[0].XDR, &sim.result); err != nil {
		return nil, errors.Wrap(err, "simulation result")
	}
	for _, a := range res.Results[0].Auth {
		var entry xdr.SorobanAuthorizationEntry
		if err := xdr.SafeUnmarshalBase64(a, &entry); err != nil {
			return nil, errors.Wrap(err, "simulation auth")
		}
		sim.auth = append(sim.auth, entry)
	}
	if res.TransactionData != "" {
		if err := xdr.SafeUnmarshalBase64(res.TransactionData, &sim.data); err != nil {
			return nil, errors.Wrap(err, "simulation transaction data")
		}
	}
	if res.MinResourceFee != "" {
		if sim.resourceFee, err = strconv.ParseInt(res.MinResourceFee, 10, 64); err != nil { //nolint:gomnd
			return nil, errors.Wrap(err, "min resource fee")
		}
	}
	return sim, nil
}

// view simulates a read-only call
func (c *Client) view(ctx context.Context, contract, method string, args ...xdr.ScVal) (xdr.ScVal, error) {
	op, err := c.invokeOp(c.cfg.ViewAccount, contract, method, args...)
	if err != nil {
		return xdr.ScVal{}, err
	}
	tx, err := c.buildTx(c.cfg.ViewAccount, 0, txnbuild.MinBaseFee, op)
	if err != nil {
		return xdr.ScVal{}, err
	}
	sim, err := c.simulate(ctx, tx)
	if err != nil {
		return xdr.ScVal{}, errors.Wrap(err, method)
	}
	return sim.result, nil
}

// prepare builds a signed-ready transaction with the simulated footprint, auth and resource fee
func (c *Client) prepare(ctx context.Context, source, contract, method string, args ...xdr.ScVal) (*txnbuild.Transaction, *simulation, error) {
	account, err := c.loadAccount(ctx, source)
	if err != nil {
		return nil, nil, err
	}
	seq := int64(account.SeqNum)
	op, err := c.invokeOp(source, contract, method, args...)
	if err != nil {
		return nil, nil, err
	}
	draft, err := c.buildTx(source, seq, txnbuild.MinBaseFee, op)
	if err != nil {
		return nil, nil, err
	}
	sim, err := c.simulate(ctx, draft)
	if err != nil {
		return nil, nil, errors.Wrap(err, method)
	}
	op.Auth = sim.auth
	op.Ext = xdr.TransactionExt{V: 1, SorobanData: &sim.data}
	tx, err := c.buildTx(source, seq, txnbuild.MinBaseFee+sim.resourceFee, op)
	if err != nil {
		return nil, nil, err
	}
	return tx, sim, nil
}

// GetTokenBalance returns the asset contract balance of addr
func (c *Client) GetTokenBalance(ctx context.Context, token, addr string) (*big.Int, error) {
	if utils.IsNative(token) && c.cfg.NativeContract == "" {
		account, err := c.loadAccount(ctx, addr)
		if err != nil {
			return nil, err
		}
		return big.NewInt(int64(account.Balance)), nil
	}
	owner, err := addressVal(addr)
	if err != nil {
		return nil, err
	}
	v, err := c.view(ctx, c.tokenContract(token), "balance", owner)
	if err != nil {
		return nil, err
	}
	return scInt(v)
}

func (c *Client) depositArgs(sender, token string, amount *big.Int, intentAccount string) ([]xdr.ScVal, error) {
	from, err := addressVal(sender)
	if err != nil {
		return nil, err
	}
	tokenVal, err := addressVal(c.tokenContract(token))
	if err != nil {
		return nil, &gerror.UnsupportedTokenError{Chain: int64(omni.Stellar), Token: token}
	}
	amountVal, err := i128Val(amount)
	if err != nil {
		return nil, err
	}
	return []xdr.ScVal{from, tokenVal, amountVal, bytesVal(omni.EphemeralReceiver(intentAccount))}, nil
}

// GetDepositFee simulates the deposit to price its resources
func (c *Client) GetDepositFee(ctx context.Context, sender, token string, amount *big.Int) (*fee.ReviewFee, error) {
	args, err := c.depositArgs(sender, token, amount, "fee.near")
	if err != nil {
		return nil, err
	}
	_, sim, err := c.prepare(ctx, sender, c.cfg.BridgeContract, "deposit", args...)
	if err != nil {
		return nil, err
	}
	f := fee.NewFixed(omni.Stellar, big.NewInt(txnbuild.MinBaseFee+sim.resourceFee))
	if utils.IsNative(token) {
		return f.WithAdditional(amount), nil
	}
	return f, nil
}

// GetWithdrawFee returns the configured withdraw fee budget
func (c *Client) GetWithdrawFee(context.Context, string, string) (*fee.ReviewFee, error) {
	return fee.NewFixed(omni.Stellar, big.NewInt(c.cfg.WithdrawFee)), nil
}

// IsWithdrawUsed asks the bridge whether nonce was executed
func (c *Client) IsWithdrawUsed(ctx context.Context, nonce, _ string) (bool, error) {
	n, ok := utils.ParseUint128(nonce)
	if !ok {
		return false, &gerror.DecodeError{Chain: int64(omni.Stellar), Input: nonce, Reason: "invalid nonce"}
	}
	v, err := c.view(ctx, c.cfg.BridgeContract, "is_executed", u128Val(n))
	if err != nil {
		return false, err
	}
	return scBool(v)
}

func (c *Client) upgradeSigner(s models.Signer) (Signer, error) {
	signer, ok := s.(Signer)
	if !ok {
		return nil, errors.Wrap(gerror.ErrInvalidSigner, "stellar")
	}
	return signer, nil
}

// Deposit calls bridge.deposit; the nonce is the u128 the contract returns
func (c *Client) Deposit(ctx context.Context, req models.DepositRequest) (*models.PendingDeposit, error) {
	signer, err := c.upgradeSigner(req.Signer)
	if err != nil {
		return nil, err
	}
	args, err := c.depositArgs(signer.Address(), req.Token, req.Amount, req.IntentAccount)
	if err != nil {
		return nil, err
	}
	release, err := c.locks.Acquire(int64(omni.Stellar), signer.Address())
	if err != nil {
		return nil, err
	}
	defer release()
	hash, ret, err := c.submit(ctx, signer, "deposit", args...)
	if hash == "" {
		return nil, err
	}
	token := req.Token
	if utils.IsNative(token) {
		token = utils.NativeToken
	}
	deposit := &models.PendingDeposit{
		Chain:         omni.Stellar,
		Token:         token,
		Amount:        req.Amount.String(),
		Receiver:      omni.EphemeralReceiverBase58(req.IntentAccount),
		Sender:        signer.Address(),
		IntentAccount: req.IntentAccount,
		TxHash:        hash,
		Timestamp:     c.clock.Now().Unix(),
		Status:        models.DepositStatusSubmitted,
	}
	if errors.Is(err, retry.ErrAttemptsExhausted) {
		return deposit, &gerror.DepositNotFoundError{Chain: int64(omni.Stellar), TxHash: hash}
	}
	if err != nil {
		return nil, err
	}
	nonce, err := scInt(ret)
	if err != nil {
		return deposit, &gerror.DepositNotFoundError{Chain: int64(omni.Stellar), TxHash: hash}
	}
	log.WithFields("chain", omni.Stellar.String(), "sender", signer.Address()).Infof("deposit %s resolved nonce %s", hash, nonce)
	deposit.Nonce = nonce.String()
	deposit.Status = models.DepositStatusNonceResolved
	return deposit, nil
}

// ResolveDepositNonce reads the nonce from the return value of the deposit transaction
func (c *Client) ResolveDepositNonce(ctx context.Context, deposit *models.PendingDeposit) (string, error) {
	notFound := &gerror.DepositNotFoundError{Chain: int64(omni.Stellar), TxHash: deposit.TxHash}
	ret, err := c.waitResult(ctx, "deposit", deposit.TxHash)
	if errors.Is(err, retry.ErrAttemptsExhausted) {
		return "", notFound
	}
	if err != nil {
		return "", err
	}
	nonce, err := scInt(ret)
	if err != nil {
		return "", notFound
	}
	return nonce.String(), nil
}

// Withdraw calls bridge.withdraw with the MPC signature
func (c *Client) Withdraw(ctx context.Context, req models.WithdrawRequest) (string, error) {
	signer, err := c.upgradeSigner(req.Signer)
	if err != nil {
		return "", err
	}
	nonce, ok := utils.ParseUint128(req.Nonce)
	if !ok {
		return "", &gerror.DecodeError{Chain: int64(omni.Stellar), Input: req.Nonce, Reason: "invalid nonce"}
	}
	used, err := c.IsWithdrawUsed(ctx, req.Nonce, req.Receiver)
	if err != nil {
		return "", err
	}
	if used {
		return "", &gerror.AlreadyClaimedError{Chain: int64(omni.Stellar), Nonce: req.Nonce}
	}
	tokenVal, err := addressVal(c.tokenContract(req.Token))
	if err != nil {
		return "", &gerror.UnsupportedTokenError{Chain: int64(omni.Stellar), Token: req.Token}
	}
	to, err := addressVal(req.Receiver)
	if err != nil {
		return "", err
	}
	amount, err := i128Val(req.Amount)
	if err != nil {
		return "", err
	}
	release, err := c.locks.Acquire(int64(omni.Stellar), signer.Address())
	if err != nil {
		return "", err
	}
	defer release()
	hash, _, err := c.submit(ctx, signer, "withdraw", u128Val(nonce), tokenVal, to, amount, bytesVal(req.Signature))
	if err != nil {
		return "", err
	}
	log.WithFields("chain", omni.Stellar.String(), "nonce", req.Nonce).Infof("withdraw claimed in %s", hash)
	return hash, nil
}

// ClearDepositNonceIfNeeded is a no-op, the Stellar bridge keeps no per-deposit storage
func (c *Client) ClearDepositNonceIfNeeded(context.Context, *models.PendingDeposit, models.Signer) (bool, error) {
	return false, nil
}

// submit prepares, signs and sends a bridge invocation and returns the value the contract returned
func (c *Client) submit(ctx context.Context, signer Signer, method string, args ...xdr.ScVal) (string, xdr.ScVal, error) {
	tx, _, err := c.prepare(ctx, signer.Address(), c.cfg.BridgeContract, method, args...)
	if err != nil {
		return "", xdr.ScVal{}, err
	}
	if tx, err = signer.SignTx(tx, c.cfg.NetworkPassphrase); err != nil {
		return "", xdr.ScVal{}, errors.Wrap(err, "sign")
	}
	envelope, err := tx.Base64()
	if err != nil {
		return "", xdr.ScVal{}, err
	}
	var sent sendResponse
	if err := c.rpc.CallJSONRPC(ctx, "sendTransaction", map[string]string{"transaction": envelope}, &sent); err != nil {
		return "", xdr.ScVal{}, errors.Wrap(err, "sendTransaction")
	}
	switch sent.Status {
	case sendStatusPending, sendStatusDuplicate:
	case sendStatusError:
		return sent.Hash, xdr.ScVal{}, errors.Wrapf(ErrTxFailed, "%s rejected: %s", method, sent.ErrorResultXDR)
	default:
		return sent.Hash, xdr.ScVal{}, errors.Errorf("%s not accepted: %s", method, sent.Status)
	}

	ret, err := c.waitResult(ctx, method, sent.Hash)
	return sent.Hash, ret, err
}

// waitResult polls getTransaction until hash succeeds and returns its return value
func (c *Client) waitResult(ctx context.Context, method, hash string) (xdr.ScVal, error) {
	var ret xdr.ScVal
	err := retry.Poll(ctx, c.cfg.Confirm, func(ctx context.Context) (bool, error) {
		var res transactionResponse
		if err := c.rpc.CallJSONRPC(ctx, "getTransaction", map[string]string{"hash": hash}, &res); err != nil {
			return false, nil
		}
		switch res.Status {
		case txStatusSuccess:
			v, err := returnValue(res.ResultMetaXDR)
			if err != nil {
				return false, retry.Permanent(err)
			}
			ret = v
			return true, nil
		case txStatusFailed:
			return false, retry.Permanent(errors.Wrapf(ErrTxFailed, "%s %s: %s", method, hash, res.ResultXDR))
		}
		return false, nil
	})
	return ret, err
}

func returnValue(metaXDR string) (xdr.ScVal, error) {
	var meta xdr.TransactionMeta
	if err := xdr.SafeUnmarshalBase64(metaXDR, &meta); err != nil {
		return xdr.ScVal{}, errors.Wrap(err, "transaction meta")
	}
	v3, ok := meta.GetV3()
	if !ok || v3.SorobanMeta == nil {
		return xdr.ScVal{}, errors.Errorf("transaction meta v%d has no soroban result", meta.V)
	}
	return v3.SorobanMeta.ReturnValue, nil
}
