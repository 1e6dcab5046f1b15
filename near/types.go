package near

import (
	"encoding/json"
	"math/big"
	"strings"

	"github.com/near/borsh-go"
)

const keyTypeED25519 = 0

// PublicKey is the borsh form of a public key
type PublicKey struct {
	KeyType uint8
	Data    [32]byte
}

// Signature is the borsh form of a signature
type Signature struct {
	KeyType uint8
	Data    [64]byte
}

// Action is one step of a transaction. Only the variants this service sends are filled in.
type Action struct {
	Enum           borsh.Enum `borsh_enum:"true"`
	CreateAccount  struct{}
	DeployContract DeployContract
	FunctionCall   FunctionCall
	Transfer       Transfer
}

// Action variants
const (
	ActionCreateAccount borsh.Enum = iota
	ActionDeployContract
	ActionFunctionCall
	ActionTransfer
)

// DeployContract action
type DeployContract struct {
	Code []byte
}

// FunctionCall action
type FunctionCall struct {
	MethodName string
	Args       []byte
	Gas        uint64
	Deposit    big.Int
}

// Transfer action
type Transfer struct {
	Deposit big.Int
}

// NewFunctionCall builds a function call action with JSON args
func NewFunctionCall(method string, args interface{}, gas uint64, deposit *big.Int) (Action, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return Action{}, err
	}
	call := FunctionCall{MethodName: method, Args: raw, Gas: gas}
	if deposit != nil {
		call.Deposit.Set(deposit)
	}
	return Action{Enum: ActionFunctionCall, FunctionCall: call}, nil
}

// Transaction is the borsh form of a NEAR transaction
type Transaction struct {
	SignerID   string
	PublicKey  PublicKey
	Nonce      uint64
	ReceiverID string
	BlockHash  [32]byte
	Actions    []Action
}

// SignedTransaction is a transaction with its signature
type SignedTransaction struct {
	Transaction Transaction
	Signature   Signature
}

// ExecutionOutcome is the outcome of a transaction or receipt
type ExecutionOutcome struct {
	Logs   []string        `json:"logs"`
	Status json.RawMessage `json:"status"`
}

// ExecutionOutcomeWithID pairs an outcome with its receipt or transaction id
type ExecutionOutcomeWithID struct {
	ID      string           `json:"id"`
	Outcome ExecutionOutcome `json:"outcome"`
}

// FinalExecutionOutcome is the result of broadcast_tx_commit and tx
type FinalExecutionOutcome struct {
	Status      json.RawMessage `json:"status"`
	Transaction struct {
		Hash     string `json:"hash"`
		SignerID string `json:"signer_id"`
	} `json:"transaction"`
	TransactionOutcome ExecutionOutcomeWithID   `json:"transaction_outcome"`
	ReceiptsOutcome    []ExecutionOutcomeWithID `json:"receipts_outcome"`
}

// ExecutionError is a failed transaction or receipt
type ExecutionError struct {
	Raw string
}

func (e *ExecutionError) Error() string {
	return "near execution failure: " + e.Raw
}

// Contains reports whether the failure mentions s
func (e *ExecutionError) Contains(s string) bool {
	return strings.Contains(e.Raw, s)
}

// Hash returns the transaction hash
func (o *FinalExecutionOutcome) Hash() string {
	if o.Transaction.Hash != "" {
		return o.Transaction.Hash
	}
	return o.TransactionOutcome.ID
}

// Logs returns the logs of the transaction and all its receipts, in order
func (o *FinalExecutionOutcome) Logs() []string {
	logs := append([]string(nil), o.TransactionOutcome.Outcome.Logs...)
	for _, r := range o.ReceiptsOutcome {
		logs = append(logs, r.Outcome.Logs...)
	}
	return logs
}

// Failure returns the first failure of the transaction or its receipts, nil on success
func (o *FinalExecutionOutcome) Failure() error {
	if err := statusFailure(o.Status); err != nil {
		return err
	}
	for _, r := range o.ReceiptsOutcome {
		if err := statusFailure(r.Outcome.Status); err != nil {
			return err
		}
	}
	return nil
}

// SuccessValue returns the decoded return value of the transaction
func (o *FinalExecutionOutcome) SuccessValue() ([]byte, bool) {
	var status map[string]json.RawMessage
	if err := json.Unmarshal(o.Status, &status); err != nil {
		return nil, false
	}
	raw, ok := status["SuccessValue"]
	if !ok {
		return nil, false
	}
	var b []byte
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, false
	}
	return b, true
}

func statusFailure(raw json.RawMessage) error {
	if len(raw) == 0 {
		return nil
	}
	var status map[string]json.RawMessage
	if err := json.Unmarshal(raw, &status); err != nil {
		// plain string statuses such as "Unknown"
		return nil
	}
	if failure, ok := status["Failure"]; ok {
		return &ExecutionError{Raw: string(failure)}
	}
	return nil
}
