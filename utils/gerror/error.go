package gerror

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	// ErrStorageNotFound is used when the object is not found in the storage
	ErrStorageNotFound = errors.New("not found in the Storage")
	// ErrStorageNotRegister is used when the configured storage backend is unknown
	ErrStorageNotRegister = errors.New("not registered storage")
	// ErrNilDBTransaction indicates the db transaction has not been properly initialized
	ErrNilDBTransaction = errors.New("database transaction not properly initialized")
	// ErrInvalidSigner is used when the signer passed to an adapter is of the wrong kind
	ErrInvalidSigner = errors.New("signer is not usable on this chain")

	// ErrDecode is matched by every DecodeError
	ErrDecode = errors.New("cannot decode omni value")
	// ErrDepositNotFound is matched by every DepositNotFoundError
	ErrDepositNotFound = errors.New("deposit not found")
	// ErrAlreadyClaimed is matched by every AlreadyClaimedError
	ErrAlreadyClaimed = errors.New("nonce already claimed")
	// ErrInsufficientGas is matched by every InsufficientGasError
	ErrInsufficientGas = errors.New("insufficient native balance for gas")
	// ErrNonceReplay is matched by every NonceReplayError
	ErrNonceReplay = errors.New("withdraw nonce replay")
	// ErrWalletBusy is matched by every WalletBusyError
	ErrWalletBusy = errors.New("wallet has an unconfirmed transaction")
	// ErrUnsupportedChain is matched by every UnsupportedChainError
	ErrUnsupportedChain = errors.New("unsupported chain")
	// ErrUnsupportedToken is matched by every UnsupportedTokenError
	ErrUnsupportedToken = errors.New("unsupported token")
)

// DecodeError is returned when an address, token or intent id cannot be parsed for a chain.
type DecodeError struct {
	Chain  int64
	Input  string
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %q for chain %d: %s", e.Input, e.Chain, e.Reason)
}

// Is makes errors.Is(err, ErrDecode) work
func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// DepositNotFoundError is returned when a deposit nonce cannot be located on-chain.
type DepositNotFoundError struct {
	Chain  int64
	TxHash string
}

func (e *DepositNotFoundError) Error() string {
	return fmt.Sprintf("deposit nonce not found for tx %s on chain %d", e.TxHash, e.Chain)
}

// Is makes errors.Is(err, ErrDepositNotFound) work
func (e *DepositNotFoundError) Is(target error) bool { return target == ErrDepositNotFound }

// AlreadyClaimedError is returned when the ledger or the destination chain reports the nonce as used.
type AlreadyClaimedError struct {
	Chain int64
	Nonce string
}

func (e *AlreadyClaimedError) Error() string {
	return fmt.Sprintf("nonce %s already claimed on chain %d", e.Nonce, e.Chain)
}

// Is makes errors.Is(err, ErrAlreadyClaimed) work
func (e *AlreadyClaimedError) Is(target error) bool { return target == ErrAlreadyClaimed }

// InsufficientGasError is returned by the gas pre-flight check.
type InsufficientGasError struct {
	Chain int64
	Need  *big.Int
	Have  *big.Int
}

func (e *InsufficientGasError) Error() string {
	return fmt.Sprintf("insufficient native balance on chain %d: need %s, have %s", e.Chain, e.Need, e.Have)
}

// Is makes errors.Is(err, ErrInsufficientGas) work
func (e *InsufficientGasError) Is(target error) bool { return target == ErrInsufficientGas }

// NonceReplayError is returned when a withdrawal would not advance the receiver's last used nonce,
// or an older withdrawal for the same receiver is still unfinished.
type NonceReplayError struct {
	Chain   int64
	Nonce   string
	Blocker string
}

func (e *NonceReplayError) Error() string {
	return fmt.Sprintf("withdraw nonce %s on chain %d blocked by nonce %s", e.Nonce, e.Chain, e.Blocker)
}

// Is makes errors.Is(err, ErrNonceReplay) work
func (e *NonceReplayError) Is(target error) bool { return target == ErrNonceReplay }

// WalletBusyError is returned when a signer already has a transaction awaiting confirmation.
type WalletBusyError struct {
	Chain   int64
	Address string
}

func (e *WalletBusyError) Error() string {
	return fmt.Sprintf("wallet %s on chain %d has an unconfirmed transaction", e.Address, e.Chain)
}

// Is makes errors.Is(err, ErrWalletBusy) work
func (e *WalletBusyError) Is(target error) bool { return target == ErrWalletBusy }

// UnsupportedChainError is returned when no adapter is registered for a network.
type UnsupportedChainError struct {
	Chain int64
}

func (e *UnsupportedChainError) Error() string {
	return fmt.Sprintf("chain %d is not supported", e.Chain)
}

// Is makes errors.Is(err, ErrUnsupportedChain) work
func (e *UnsupportedChainError) Is(target error) bool { return target == ErrUnsupportedChain }

// UnsupportedTokenError is returned when a token cannot be bridged on a chain.
type UnsupportedTokenError struct {
	Chain int64
	Token string
}

func (e *UnsupportedTokenError) Error() string {
	return fmt.Sprintf("token %s is not supported on chain %d", e.Token, e.Chain)
}

// Is makes errors.Is(err, ErrUnsupportedToken) work
func (e *UnsupportedTokenError) Is(target error) bool { return target == ErrUnsupportedToken }
