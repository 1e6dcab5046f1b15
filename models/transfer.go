package models

import (
	"math/big"

	"github.com/omnibridge/omnibridge-service/omni"
)

// DepositStatus is the state of a deposit in the deposit state machine
type DepositStatus string

// Deposit statuses
const (
	// DepositStatusSubmitted means the source chain transaction was sent
	DepositStatusSubmitted = DepositStatus("submitted")
	// DepositStatusNonceResolved means the source chain assigned a nonce
	DepositStatusNonceResolved = DepositStatus("nonce_resolved")
	// DepositStatusLedgerCredited means the intent account was credited on the ledger
	DepositStatusLedgerCredited = DepositStatus("ledger_credited")
	// DepositStatusCleared means the source chain deposit record was reclaimed
	DepositStatusCleared = DepositStatus("cleared")
	// DepositStatusNotFound means the nonce could not be located
	DepositStatusNotFound = DepositStatus("not_found")
	// DepositStatusAlreadyClaimed means somebody else finalized the deposit
	DepositStatusAlreadyClaimed = DepositStatus("already_claimed")
)

// String returns a string representation of the status
func (s DepositStatus) String() string {
	return string(s)
}

// IsFinal reports whether the deposit needs no further ledger action
func (s DepositStatus) IsFinal() bool {
	switch s {
	case DepositStatusLedgerCredited, DepositStatusCleared, DepositStatusAlreadyClaimed, DepositStatusNotFound:
		return true
	}
	return false
}

// WithdrawStatus is the state of a withdrawal in the withdrawal state machine
type WithdrawStatus string

// Withdraw statuses
const (
	WithdrawStatusRequested            = WithdrawStatus("requested")
	WithdrawStatusIntentSigned         = WithdrawStatus("intent_signed")
	WithdrawStatusLedgerNonceAllocated = WithdrawStatus("ledger_nonce_allocated")
	WithdrawStatusSignatureObtained    = WithdrawStatus("signature_obtained")
	WithdrawStatusClaimSubmitted       = WithdrawStatus("claim_submitted")
	WithdrawStatusCompleted            = WithdrawStatus("completed")
)

// String returns a string representation of the status
func (s WithdrawStatus) String() string {
	return string(s)
}

// PendingDeposit is a deposit on a source chain awaiting ledger credit.
type PendingDeposit struct {
	Chain omni.Network `json:"chain"`
	// Nonce is assigned by the source chain bridge, empty until resolved
	Nonce string `json:"nonce"`
	// Token in the source chain native form
	Token  string `json:"token"`
	Amount string `json:"amount"`
	// Receiver is the base58 ephemeral receiver derived from IntentAccount
	Receiver      string        `json:"receiver"`
	Sender        string        `json:"sender"`
	IntentAccount string        `json:"intentAccount"`
	TxHash        string        `json:"txHash"`
	// Reference is an adapter specific handle used to find the nonce later,
	// the query id for TON
	Reference string        `json:"reference,omitempty"`
	Timestamp int64         `json:"timestamp"`
	Status    DepositStatus `json:"status"`
}

// AmountInt returns Amount as a big integer, zero when unparsable
func (d *PendingDeposit) AmountInt() *big.Int {
	return parseAmount(d.Amount)
}

// PendingWithdraw is a ledger-side withdrawal awaiting the destination chain claim.
type PendingWithdraw struct {
	Chain omni.Network `json:"chain"`
	// Nonce is allocated by the ledger
	Nonce string `json:"nonce"`
	Token string `json:"token"`
	// Receiver in the destination chain native form
	Receiver  string         `json:"receiver"`
	Amount    string         `json:"amount"`
	Timestamp int64          `json:"timestamp"`
	Completed bool           `json:"completed"`
	Signature string         `json:"signature"`
	TxHash    string         `json:"txHash"`
	Sender    string         `json:"sender"`
	Status    WithdrawStatus `json:"status"`
}

// AmountInt returns Amount as a big integer, zero when unparsable
func (w *PendingWithdraw) AmountInt() *big.Int {
	return parseAmount(w.Amount)
}

func parseAmount(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10) //nolint:gomnd
	if !ok {
		return new(big.Int)
	}
	return v
}

// FinalizeOutcome is the successful result of finalizing a deposit
type FinalizeOutcome int

// Finalize outcomes
const (
	// Finalized means this call credited the ledger
	Finalized FinalizeOutcome = iota + 1
	// AlreadyClaimed means the ledger had already consumed the nonce
	AlreadyClaimed
)

// String returns a string representation of the outcome
func (o FinalizeOutcome) String() string {
	switch o {
	case Finalized:
		return "finalized"
	case AlreadyClaimed:
		return "already_claimed"
	}
	return "unknown"
}
