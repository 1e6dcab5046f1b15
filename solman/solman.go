package solman

import (
	"context"
	"math/big"
	"regexp"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
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
	defaultBaseFee      = 5000
	defaultComputeUnits = 200_000
	microLamports       = 1_000_000
)

var nonceLogRe = regexp.MustCompile(`nonce"?\s*[:=]\s*"?(\d+)`)

// ErrTxFailed is returned when a confirmed transaction carries an error
var ErrTxFailed = errors.New("solana transaction failed")

type rpcAPI interface {
	GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)
	GetTokenAccountBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetTokenAccountBalanceResult, error)
	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error)
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	GetMinimumBalanceForRentExemption(ctx context.Context, dataSize uint64, commitment rpc.CommitmentType) (uint64, error)
	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
	GetTransaction(ctx context.Context, sig solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error)
}

// Client is the Solana chain adapter
type Client struct {
	cfg     Config
	rpc     rpcAPI
	program program
	locks   *utils.SignerLock
	clock   utils.TimeProvider
}

// NewSolman returns the adapter for cfg.URL
func NewSolman(cfg Config, locks *utils.SignerLock) (*Client, error) {
	return newSolman(cfg, rpc.New(cfg.URL), locks)
}

func newSolman(cfg Config, api rpcAPI, locks *utils.SignerLock) (*Client, error) {
	id, err := solana.PublicKeyFromBase58(cfg.ProgramID)
	if err != nil {
		return nil, &gerror.DecodeError{Chain: int64(omni.Solana), Input: cfg.ProgramID, Reason: err.Error()}
	}
	if cfg.BaseFee == 0 {
		cfg.BaseFee = defaultBaseFee
	}
	if cfg.ComputeUnits == 0 {
		cfg.ComputeUnits = defaultComputeUnits
	}
	if cfg.Confirm.Attempts <= 0 {
		cfg.Confirm = retry.NewPolicy(40, 1500*time.Millisecond) //nolint:gomnd
	}
	if locks == nil {
		locks = utils.NewSignerLock()
	}
	return &Client{cfg: cfg, rpc: api, program: program{id: id}, locks: locks, clock: utils.NewTimeProviderSystemLocalTime()}, nil
}

// Chain returns omni.Solana
func (c *Client) Chain() omni.Network {
	return omni.Solana
}

func parseKey(s string) (solana.PublicKey, error) {
	key, err := solana.PublicKeyFromBase58(s)
	if err != nil {
		return solana.PublicKey{}, &gerror.DecodeError{Chain: int64(omni.Solana), Input: s, Reason: err.Error()}
	}
	return key, nil
}

func parseMint(token string) (solana.PublicKey, error) {
	mint, err := solana.PublicKeyFromBase58(token)
	if err != nil {
		return solana.PublicKey{}, &gerror.UnsupportedTokenError{Chain: int64(omni.Solana), Token: token}
	}
	return mint, nil
}

// accountData returns nil when the account does not exist
func (c *Client) accountData(ctx context.Context, key solana.PublicKey) ([]byte, error) {
	res, err := c.rpc.GetAccountInfo(ctx, key)
	if errors.Is(err, rpc.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if res == nil || res.Value == nil {
		return nil, nil
	}
	data := res.Value.Data.GetBinary()
	if data == nil {
		data = []byte{}
	}
	return data, nil
}

// GetTokenBalance returns lamports or the balance of owner's associated token account
func (c *Client) GetTokenBalance(ctx context.Context, token, addr string) (*big.Int, error) {
	owner, err := parseKey(addr)
	if err != nil {
		return nil, err
	}
	if utils.IsNative(token) {
		res, err := c.rpc.GetBalance(ctx, owner, rpc.CommitmentConfirmed)
		if err != nil {
			return nil, err
		}
		return new(big.Int).SetUint64(res.Value), nil
	}
	mint, err := parseMint(token)
	if err != nil {
		return nil, err
	}
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return nil, err
	}
	data, err := c.accountData(ctx, ata)
	if err != nil || data == nil {
		return new(big.Int), err
	}
	res, err := c.rpc.GetTokenAccountBalance(ctx, ata, rpc.CommitmentConfirmed)
	if err != nil {
		return nil, err
	}
	amount, ok := new(big.Int).SetString(res.Value.Amount, 10) //nolint:gomnd
	if !ok {
		return nil, errors.Errorf("bad token amount %q", res.Value.Amount)
	}
	return amount, nil
}

func (c *Client) rent(ctx context.Context, size uint64) (*big.Int, error) {
	lamports, err := c.rpc.GetMinimumBalanceForRentExemption(ctx, size, rpc.CommitmentConfirmed)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetUint64(lamports), nil
}

func (c *Client) baseFee() *fee.ReviewFee {
	perUnit := (c.cfg.PriorityFee + microLamports - 1) / microLamports
	return fee.NewSolana(new(big.Int).SetUint64(c.cfg.BaseFee), new(big.Int).SetUint64(perUnit), uint64(c.cfg.ComputeUnits))
}

// GetDepositFee returns the signature and priority fee plus the rent of the deposit record
func (c *Client) GetDepositFee(ctx context.Context, _, token string, amount *big.Int) (*fee.ReviewFee, error) {
	reserve, err := c.rent(ctx, depositAccountSize)
	if err != nil {
		return nil, err
	}
	f := c.baseFee().WithReserve(reserve)
	if utils.IsNative(token) {
		return f.WithAdditional(amount), nil
	}
	return f, nil
}

// GetWithdrawFee adds the rent of the receiver's user record and token account when they are missing
func (c *Client) GetWithdrawFee(ctx context.Context, receiver, token string) (*fee.ReviewFee, error) {
	to, err := parseKey(receiver)
	if err != nil {
		return nil, err
	}
	reserve := new(big.Int)
	user, err := c.program.User(to)
	if err != nil {
		return nil, err
	}
	data, err := c.accountData(ctx, user)
	if err != nil {
		return nil, err
	}
	if data == nil {
		r, err := c.rent(ctx, userAccountSize)
		if err != nil {
			return nil, err
		}
		reserve.Add(reserve, r)
	}
	if !utils.IsNative(token) {
		mint, err := parseMint(token)
		if err != nil {
			return nil, err
		}
		ata, _, err := solana.FindAssociatedTokenAddress(to, mint)
		if err != nil {
			return nil, err
		}
		if data, err = c.accountData(ctx, ata); err != nil {
			return nil, err
		}
		if data == nil {
			r, err := c.rent(ctx, tokenAccountSize)
			if err != nil {
				return nil, err
			}
			reserve.Add(reserve, r)
		}
	}
	return c.baseFee().WithReserve(reserve), nil
}

// LastWithdrawnNonce reads the user record of receiver, zero when it does not exist
func (c *Client) LastWithdrawnNonce(ctx context.Context, receiver solana.PublicKey) (*big.Int, error) {
	user, err := c.program.User(receiver)
	if err != nil {
		return nil, err
	}
	data, err := c.accountData(ctx, user)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return new(big.Int), nil
	}
	if len(data) < userAccountSize {
		return nil, errors.Errorf("user account %s too short: %d bytes", user, len(data))
	}
	return NonceFromBytes(data[discriminatorLen:userAccountSize]), nil
}

// IsWithdrawUsed reports nonce <= last withdrawn nonce of receiver
func (c *Client) IsWithdrawUsed(ctx context.Context, nonce, receiver string) (bool, error) {
	n, ok := utils.ParseUint128(nonce)
	if !ok {
		return false, &gerror.DecodeError{Chain: int64(omni.Solana), Input: nonce, Reason: "invalid nonce"}
	}
	to, err := parseKey(receiver)
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
		return nil, errors.Wrap(gerror.ErrInvalidSigner, "solana")
	}
	return signer, nil
}

// nextDepositNonce reads the counter of the state account
func (c *Client) nextDepositNonce(ctx context.Context, state solana.PublicKey) (*big.Int, error) {
	data, err := c.accountData(ctx, state)
	if err != nil {
		return nil, err
	}
	if len(data) < discriminatorLen+16 {
		return nil, errors.Errorf("bridge state %s not initialized", state)
	}
	return NonceFromBytes(data[discriminatorLen : discriminatorLen+16]), nil
}

// Deposit locks SOL or SPL tokens in the bridge; the nonce is read from the program logs
func (c *Client) Deposit(ctx context.Context, req models.DepositRequest) (*models.PendingDeposit, error) {
	signer, err := c.upgradeSigner(req.Signer)
	if err != nil {
		return nil, err
	}
	if !req.Amount.IsUint64() {
		return nil, errors.Errorf("amount %s does not fit u64", req.Amount)
	}
	sender := signer.PublicKey()
	state, err := c.program.State()
	if err != nil {
		return nil, err
	}
	next, err := c.nextDepositNonce(ctx, state)
	if err != nil {
		return nil, err
	}
	record, err := c.program.Deposit(sender, next)
	if err != nil {
		return nil, err
	}
	var args depositArgs
	copy(args.Receiver[:], omni.EphemeralReceiver(req.IntentAccount))
	args.Amount = req.Amount.Uint64()

	token := utils.NativeToken
	var ix solana.Instruction
	if utils.IsNative(req.Token) {
		data, err := instructionData(IxNativeDeposit, args)
		if err != nil {
			return nil, err
		}
		ix = solana.NewInstruction(c.program.id, solana.AccountMetaSlice{
			solana.NewAccountMeta(sender, true, true),
			solana.NewAccountMeta(state, true, false),
			solana.NewAccountMeta(record, true, false),
			solana.NewAccountMeta(solana.SystemProgramID, false, false),
		}, data)
	} else {
		mint, err := parseMint(req.Token)
		if err != nil {
			return nil, err
		}
		token = mint.String()
		from, _, err := solana.FindAssociatedTokenAddress(sender, mint)
		if err != nil {
			return nil, err
		}
		vault, _, err := solana.FindAssociatedTokenAddress(state, mint)
		if err != nil {
			return nil, err
		}
		data, err := instructionData(IxTokenDeposit, args)
		if err != nil {
			return nil, err
		}
		ix = solana.NewInstruction(c.program.id, solana.AccountMetaSlice{
			solana.NewAccountMeta(sender, true, true),
			solana.NewAccountMeta(state, true, false),
			solana.NewAccountMeta(record, true, false),
			solana.NewAccountMeta(mint, false, false),
			solana.NewAccountMeta(from, true, false),
			solana.NewAccountMeta(vault, true, false),
			solana.NewAccountMeta(solana.TokenProgramID, false, false),
			solana.NewAccountMeta(solana.SPLAssociatedTokenAccountProgramID, false, false),
			solana.NewAccountMeta(solana.SystemProgramID, false, false),
		}, data)
	}

	logger := log.WithFields("chain", omni.Solana.String(), "sender", signer.Address())
	release, err := c.locks.Acquire(int64(omni.Solana), signer.Address())
	if err != nil {
		return nil, err
	}
	defer release()
	sig, logs, err := c.sendAndConfirm(ctx, signer, ix)
	if sig.IsZero() {
		return nil, err
	}
	deposit := &models.PendingDeposit{
		Chain:         omni.Solana,
		Token:         token,
		Amount:        req.Amount.String(),
		Receiver:      omni.EphemeralReceiverBase58(req.IntentAccount),
		Sender:        signer.Address(),
		IntentAccount: req.IntentAccount,
		TxHash:        sig.String(),
		Timestamp:     c.clock.Now().Unix(),
		Status:        models.DepositStatusSubmitted,
	}
	if errors.Is(err, retry.ErrAttemptsExhausted) {
		logger.Warnf("deposit %s not confirmed: %v", sig, err)
		return deposit, &gerror.DepositNotFoundError{Chain: int64(omni.Solana), TxHash: deposit.TxHash}
	}
	if err != nil {
		return nil, err
	}
	nonce, ok := NonceFromLogs(logs)
	if !ok {
		logger.Warnf("no nonce in logs of %s", sig)
		return deposit, &gerror.DepositNotFoundError{Chain: int64(omni.Solana), TxHash: deposit.TxHash}
	}
	logger.Infof("deposit %s resolved nonce %s", sig, nonce)
	deposit.Nonce = nonce
	deposit.Status = models.DepositStatusNonceResolved
	return deposit, nil
}

// ResolveDepositNonce waits for the deposit transaction and reads the nonce from its logs
func (c *Client) ResolveDepositNonce(ctx context.Context, deposit *models.PendingDeposit) (string, error) {
	sig, err := solana.SignatureFromBase58(deposit.TxHash)
	if err != nil {
		return "", &gerror.DecodeError{Chain: int64(omni.Solana), Input: deposit.TxHash, Reason: "invalid signature"}
	}
	notFound := &gerror.DepositNotFoundError{Chain: int64(omni.Solana), TxHash: deposit.TxHash}
	logs, err := c.confirm(ctx, sig)
	if errors.Is(err, retry.ErrAttemptsExhausted) {
		return "", notFound
	}
	if err != nil {
		return "", err
	}
	nonce, ok := NonceFromLogs(logs)
	if !ok {
		return "", notFound
	}
	return nonce, nil
}


// NonceFromLogs returns the last nonce printed by the program
func NonceFromLogs(logs []string) (string, bool) {
	var nonce string
	for _, l := range logs {
		if m := nonceLogRe.FindStringSubmatch(l); m != nil {
			nonce = m[1]
		}
	}
	return nonce, nonce != ""
}

// Withdraw claims a ledger withdrawal. Nonces must advance the receiver's last withdrawn nonce.
func (c *Client) Withdraw(ctx context.Context, req models.WithdrawRequest) (string, error) {
	signer, err := c.upgradeSigner(req.Signer)
	if err != nil {
		return "", err
	}
	nonce, ok := utils.ParseUint128(req.Nonce)
	if !ok {
		return "", &gerror.DecodeError{Chain: int64(omni.Solana), Input: req.Nonce, Reason: "invalid nonce"}
	}
	if !req.Amount.IsUint64() {
		return "", errors.Errorf("amount %s does not fit u64", req.Amount)
	}
	receiver, err := parseKey(req.Receiver)
	if err != nil {
		return "", err
	}
	last, err := c.LastWithdrawnNonce(ctx, receiver)
	if err != nil {
		return "", err
	}
	if nonce.Cmp(last) == 0 {
		return "", &gerror.AlreadyClaimedError{Chain: int64(omni.Solana), Nonce: req.Nonce}
	}
	if err := utils.CheckWithdrawNonce(int64(omni.Solana), req.Nonce, last.String(), req.PendingNonces); err != nil {
		return "", err
	}

	sender := signer.PublicKey()
	state, err := c.program.State()
	if err != nil {
		return "", err
	}
	user, err := c.program.User(receiver)
	if err != nil {
		return "", err
	}
	args := withdrawArgs{Nonce: NonceBytes(nonce), Amount: req.Amount.Uint64(), Signature: req.Signature}

	var ix solana.Instruction
	if utils.IsNative(req.Token) {
		data, err := instructionData(IxNativeWithdraw, args)
		if err != nil {
			return "", err
		}
		ix = solana.NewInstruction(c.program.id, solana.AccountMetaSlice{
			solana.NewAccountMeta(sender, true, true),
			solana.NewAccountMeta(state, true, false),
			solana.NewAccountMeta(user, true, false),
			solana.NewAccountMeta(receiver, true, false),
			solana.NewAccountMeta(solana.SystemProgramID, false, false),
		}, data)
	} else {
		mint, err := parseMint(req.Token)
		if err != nil {
			return "", err
		}
		vault, _, err := solana.FindAssociatedTokenAddress(state, mint)
		if err != nil {
			return "", err
		}
		to, _, err := solana.FindAssociatedTokenAddress(receiver, mint)
		if err != nil {
			return "", err
		}
		data, err := instructionData(IxTokenWithdraw, args)
		if err != nil {
			return "", err
		}
		ix = solana.NewInstruction(c.program.id, solana.AccountMetaSlice{
			solana.NewAccountMeta(sender, true, true),
			solana.NewAccountMeta(state, true, false),
			solana.NewAccountMeta(user, true, false),
			solana.NewAccountMeta(receiver, false, false),
			solana.NewAccountMeta(mint, false, false),
			solana.NewAccountMeta(vault, true, false),
			solana.NewAccountMeta(to, true, false),
			solana.NewAccountMeta(solana.TokenProgramID, false, false),
			solana.NewAccountMeta(solana.SPLAssociatedTokenAccountProgramID, false, false),
			solana.NewAccountMeta(solana.SystemProgramID, false, false),
		}, data)
	}

	release, err := c.locks.Acquire(int64(omni.Solana), signer.Address())
	if err != nil {
		return "", err
	}
	defer release()
	sig, _, err := c.sendAndConfirm(ctx, signer, ix)
	if err != nil {
		return "", err
	}
	log.WithFields("chain", omni.Solana.String(), "nonce", req.Nonce).Infof("withdraw claimed in %s", sig)
	return sig.String(), nil
}

// ClearDepositNonceIfNeeded closes the deposit record of a finalized deposit to reclaim its rent.
// It reports false when the record no longer exists.
func (c *Client) ClearDepositNonceIfNeeded(ctx context.Context, deposit *models.PendingDeposit, s models.Signer) (bool, error) {
	nonce, ok := utils.ParseUint128(deposit.Nonce)
	if !ok {
		return false, &gerror.DecodeError{Chain: int64(omni.Solana), Input: deposit.Nonce, Reason: "invalid nonce"}
	}
	sender, err := parseKey(deposit.Sender)
	if err != nil {
		return false, err
	}
	record, err := c.program.Deposit(sender, nonce)
	if err != nil {
		return false, err
	}
	data, err := c.accountData(ctx, record)
	if err != nil || data == nil {
		return false, err
	}
	signer, err := c.upgradeSigner(s)
	if err != nil {
		return false, err
	}
	state, err := c.program.State()
	if err != nil {
		return false, err
	}
	ixData, err := instructionData(IxClearDepositInfo, clearArgs{Nonce: NonceBytes(nonce)})
	if err != nil {
		return false, err
	}
	ix := solana.NewInstruction(c.program.id, solana.AccountMetaSlice{
		solana.NewAccountMeta(signer.PublicKey(), true, true),
		solana.NewAccountMeta(state, false, false),
		solana.NewAccountMeta(record, true, false),
		solana.NewAccountMeta(sender, true, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
	}, ixData)

	release, err := c.locks.Acquire(int64(omni.Solana), signer.Address())
	if err != nil {
		return false, err
	}
	defer release()
	sig, _, err := c.sendAndConfirm(ctx, signer, ix)
	if err != nil {
		return false, errors.Wrap(err, "clear deposit")
	}
	log.WithFields("chain", omni.Solana.String(), "nonce", deposit.Nonce).Infof("deposit record %s cleared in %s", record, sig)
	return true, nil
}

// sendAndConfirm signs ix with a compute budget, submits it and waits for its logs.
// The signature is returned even when confirmation fails.
func (c *Client) sendAndConfirm(ctx context.Context, signer Signer, ix solana.Instruction) (solana.Signature, []string, error) {
	bh, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return solana.Signature{}, nil, errors.Wrap(err, "latest blockhash")
	}
	ixs := append(computeBudget(c.cfg.ComputeUnits, c.cfg.PriorityFee), ix)
	tx, err := solana.NewTransaction(ixs, bh.Value.Blockhash, solana.TransactionPayer(signer.PublicKey()))
	if err != nil {
		return solana.Signature{}, nil, err
	}
	if err := signer.SignTransaction(tx); err != nil {
		return solana.Signature{}, nil, errors.Wrap(err, "sign")
	}
	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{PreflightCommitment: rpc.CommitmentConfirmed})
	if err != nil {
		return solana.Signature{}, nil, errors.Wrap(err, "send transaction")
	}

	logs, err := c.confirm(ctx, sig)
	return sig, logs, err
}

// confirm polls for a confirmed transaction and returns its log messages
func (c *Client) confirm(ctx context.Context, sig solana.Signature) ([]string, error) {
	var logs []string
	maxVersion := uint64(0)
	err := retry.Poll(ctx, c.cfg.Confirm, func(ctx context.Context) (bool, error) {
		res, err := c.rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
			Commitment:                     rpc.CommitmentConfirmed,
			MaxSupportedTransactionVersion: &maxVersion,
		})
		if err != nil || res == nil || res.Meta == nil {
			return false, nil
		}
		if res.Meta.Err != nil {
			return false, retry.Permanent(errors.Wrapf(ErrTxFailed, "%s: %v", sig, res.Meta.Err))
		}
		logs = res.Meta.LogMessages
		return true, nil
	})
	return logs, err
}
