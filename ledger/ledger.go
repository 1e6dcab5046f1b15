package ledger

import (
	"context"
	"encoding/json"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/mr-tron/base58"
	"github.com/omnibridge/omnibridge-service/log"
	"github.com/omnibridge/omnibridge-service/near"
	"github.com/omnibridge/omnibridge-service/omni"
	"github.com/omnibridge/omnibridge-service/utils"
	"github.com/omnibridge/omnibridge-service/utils/gerror"
	"github.com/pkg/errors"
)

const (
	defaultCallGas  = 100_000_000_000_000
	defaultDeadline = 10 * time.Minute
	deadlineLayout  = "2006-01-02T15:04:05.000Z"
)

var (
	nonceLogRe = regexp.MustCompile(`"nonce"\s*:\s*"?(\d+)"?`)

	alreadyUsedMarkers = []string{"nonce already used", "already executed", "Nonce already used"}

	// ErrNonceNotInLogs is returned when a withdraw transaction did not log a nonce
	ErrNonceNotInLogs = errors.New("withdraw nonce not found in transaction logs")
)

type nearClient interface {
	ViewFunction(ctx context.Context, contract, method string, args interface{}, result interface{}) error
	SignAndSend(ctx context.Context, signer near.Signer, receiverID string, actions []near.Action) (*near.FinalExecutionOutcome, error)
}

// Ledger is a typed client of the settlement ledger contracts
type Ledger struct {
	cfg     Config
	near    nearClient
	relayer near.Signer
	codec   *omni.IntentCodec
	clock   utils.TimeProvider
}

// NewLedger creates a Ledger. relayer pays for every transaction the service submits.
func NewLedger(cfg Config, client nearClient, relayer near.Signer, clock utils.TimeProvider) *Ledger {
	if cfg.Contract == "" {
		cfg.Contract = omni.DefaultLedgerContract
	}
	if cfg.IntentsContract == "" {
		cfg.IntentsContract = "intents.near"
	}
	if cfg.CallGas == 0 {
		cfg.CallGas = defaultCallGas
	}
	if cfg.IntentDeadline.Duration <= 0 {
		cfg.IntentDeadline.Duration = defaultDeadline
	}
	if clock == nil {
		clock = utils.NewTimeProviderSystemLocalTime()
	}
	return &Ledger{
		cfg:     cfg,
		near:    client,
		relayer: relayer,
		codec:   omni.NewIntentCodec(cfg.Contract),
		clock:   clock,
	}
}

// Codec returns the intent id codec of this ledger
func (l *Ledger) Codec() *omni.IntentCodec {
	return l.codec
}

// IsExecuted reports whether the ledger already consumed a deposit nonce of chain
func (l *Ledger) IsExecuted(ctx context.Context, chain omni.Network, nonce string) (bool, error) {
	var executed bool
	err := l.near.ViewFunction(ctx, l.cfg.Contract, "is_executed", map[string]interface{}{
		"chain_id": int64(chain),
		"nonce":    nonce,
	}, &executed)
	return executed, err
}

// GetTransfer returns a withdrawal by nonce, nil when the ledger does not know it
func (l *Ledger) GetTransfer(ctx context.Context, nonce string) (*Transfer, error) {
	var transfer *Transfer
	err := l.near.ViewFunction(ctx, l.cfg.Contract, "get_transfer", map[string]interface{}{"nonce": nonce}, &transfer)
	if err != nil {
		return nil, err
	}
	if transfer != nil && transfer.Nonce == "" {
		transfer.Nonce = nonce
	}
	return transfer, nil
}

// GetWithdrawByReceiver lists the pending withdrawals of a receiver (the locker)
func (l *Ledger) GetWithdrawByReceiver(ctx context.Context, chain omni.Network, receiver []byte) ([]Transfer, error) {
	var transfers []Transfer
	err := l.near.ViewFunction(ctx, l.cfg.Contract, "get_withdraw_by_receiver", map[string]interface{}{
		"chain_id":    int64(chain),
		"receiver_id": base58.Encode(receiver),
	}, &transfers)
	return transfers, err
}

// BatchBalanceOf returns the ledger balances of account for the intent ids
func (l *Ledger) BatchBalanceOf(ctx context.Context, account string, intentIDs []string) ([]*big.Int, error) {
	var raw []string
	err := l.near.ViewFunction(ctx, l.cfg.IntentsContract, "mt_batch_balance_of", map[string]interface{}{
		"account_id": account,
		"token_ids":  intentIDs,
	}, &raw)
	if err != nil {
		return nil, err
	}
	out := make([]*big.Int, len(raw))
	for i, s := range raw {
		v, ok := new(big.Int).SetString(s, 10) //nolint:gomnd
		if !ok {
			return nil, errors.Errorf("bad balance %q for %s", s, intentIDs[i])
		}
		out[i] = v
	}
	return out, nil
}

// FinalizeDeposit credits a source chain deposit to the intent account.
// A ledger reporting the nonce as used returns an AlreadyClaimedError.
func (l *Ledger) FinalizeDeposit(ctx context.Context, proof DepositProof) (string, error) {
	action, err := near.NewFunctionCall("deposit", map[string]interface{}{
		"nonce":       proof.Nonce,
		"chain_id":    proof.ChainID,
		"contract_id": base58.Encode(proof.Token),
		"receiver_id": proof.IntentAccount,
		"amount":      proof.Amount,
		"signature":   proof.Signature,
	}, l.cfg.CallGas, nil)
	if err != nil {
		return "", err
	}
	outcome, err := l.near.SignAndSend(ctx, l.relayer, l.cfg.Contract, []near.Action{action})
	if err != nil {
		if isAlreadyUsed(err) {
			return "", &gerror.AlreadyClaimedError{Chain: proof.ChainID, Nonce: proof.Nonce}
		}
		return "", err
	}
	if failure := outcome.Failure(); failure != nil {
		if isAlreadyUsed(failure) {
			return outcome.Hash(), &gerror.AlreadyClaimedError{Chain: proof.ChainID, Nonce: proof.Nonce}
		}
		return outcome.Hash(), errors.Wrap(failure, "deposit")
	}
	log.WithFields("chain", proof.ChainID, "nonce", proof.Nonce).Infof("deposit credited to %s in %s", proof.IntentAccount, outcome.Hash())
	return outcome.Hash(), nil
}

// ClearWithdrawals removes completed withdrawals from the locker in a single transaction
func (l *Ledger) ClearWithdrawals(ctx context.Context, requests []ClearRequest) (string, error) {
	if len(requests) == 0 {
		return "", nil
	}
	actions := make([]near.Action, 0, len(requests))
	for _, r := range requests {
		action, err := near.NewFunctionCall("clear_withdraw", map[string]interface{}{
			"nonce":     r.Nonce,
			"signature": r.Signature,
		}, l.cfg.CallGas/uint64(len(requests)), nil)
		if err != nil {
			return "", err
		}
		actions = append(actions, action)
	}
	outcome, err := l.near.SignAndSend(ctx, l.relayer, l.cfg.Contract, actions)
	if err != nil {
		return "", err
	}
	if failure := outcome.Failure(); failure != nil {
		return outcome.Hash(), errors.Wrap(failure, "clear_withdraw")
	}
	return outcome.Hash(), nil
}

// SignWithdrawIntent builds the NEP-413 signed mt_withdraw intent moving amount of token
// from the intent account to receiver on chain.
func (l *Ledger) SignWithdrawIntent(signer near.Signer, chain omni.Network, token string, amount *big.Int, receiver []byte) (*near.SignedMessage, error) {
	intentID, err := l.codec.ToIntentId(chain, token)
	if err != nil {
		return nil, err
	}
	msg, err := json.Marshal(map[string]interface{}{
		"receiver_id": base58.Encode(receiver),
		"chain_id":    int64(chain),
	})
	if err != nil {
		return nil, err
	}
	return l.signIntents(signer, Intent{
		"intent":      "mt_withdraw",
		"token":       l.cfg.Contract,
		"receiver_id": l.cfg.Contract,
		"token_ids":   []string{strings.TrimPrefix(intentID, l.codec.Prefix()+":")},
		"amounts":     []string{amount.String()},
		"msg":         string(msg),
	})
}

// SignTokenDiffIntent builds the NEP-413 signed token_diff intent giving amountIn of
// intentFrom for amountOut of intentTo.
func (l *Ledger) SignTokenDiffIntent(signer near.Signer, intentFrom string, amountIn *big.Int, intentTo string, amountOut *big.Int) (*near.SignedMessage, error) {
	return l.signIntents(signer, Intent{
		"intent": "token_diff",
		"diff": map[string]string{
			intentFrom: "-" + amountIn.String(),
			intentTo:   amountOut.String(),
		},
	})
}

func (l *Ledger) signIntents(signer near.Signer, intents ...Intent) (*near.SignedMessage, error) {
	deadline := l.clock.Now().Add(l.cfg.IntentDeadline.Duration).UTC().Format(deadlineLayout)
	msg, err := json.Marshal(intentMessage{SignerID: signer.AccountID(), Deadline: deadline, Intents: intents})
	if err != nil {
		return nil, err
	}
	nonce, err := near.RandomNonce()
	if err != nil {
		return nil, err
	}
	return near.SignMessage(signer, string(msg), l.cfg.IntentsContract, nonce)
}

// ExecuteIntents submits signed intents to the intents contract
func (l *Ledger) ExecuteIntents(ctx context.Context, signed ...*near.SignedMessage) (*near.FinalExecutionOutcome, error) {
	action, err := near.NewFunctionCall("execute_intents", map[string]interface{}{"signed": signed}, l.cfg.CallGas*3, nil) //nolint:gomnd
	if err != nil {
		return nil, err
	}
	outcome, err := l.near.SignAndSend(ctx, l.relayer, l.cfg.IntentsContract, []near.Action{action})
	if err != nil {
		return nil, err
	}
	if failure := outcome.Failure(); failure != nil {
		return outcome, errors.Wrap(failure, "execute_intents")
	}
	return outcome, nil
}

// WithdrawNonceFromLogs extracts the ledger-assigned withdrawal nonce from transaction logs
func WithdrawNonceFromLogs(logs []string) (string, error) {
	for _, line := range logs {
		if m := nonceLogRe.FindStringSubmatch(line); m != nil {
			return m[1], nil
		}
	}
	return "", ErrNonceNotInLogs
}

func isAlreadyUsed(err error) bool {
	msg := err.Error()
	for _, marker := range alreadyUsedMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
