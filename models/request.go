package models

import "math/big"

// Signer is the chain-agnostic part of a transaction signer.
// Adapters upgrade it with a type assertion to their own signer interface.
type Signer interface {
	// Address is the signer address in the chain native form
	Address() string
}

// DepositRequest asks a chain adapter to lock funds in the bridge
type DepositRequest struct {
	Token         string
	Amount        *big.Int
	IntentAccount string
	Signer        Signer
}

// WithdrawRequest asks a chain adapter to claim a ledger withdrawal on the destination chain
type WithdrawRequest struct {
	Nonce     string
	Token     string
	Receiver  string
	Amount    *big.Int
	Signature []byte
	Signer    Signer
	// PendingNonces are other unfinished withdrawals of the same receiver
	PendingNonces []string
}
