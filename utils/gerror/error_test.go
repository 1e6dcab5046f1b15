package gerror

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypedErrorsMatchSentinels(t *testing.T) {
	tcs := []struct {
		err      error
		sentinel error
	}{
		{&DecodeError{Chain: 1111, Input: "xx", Reason: "bad cell"}, ErrDecode},
		{&DepositNotFoundError{Chain: 1, TxHash: "0x01"}, ErrDepositNotFound},
		{&AlreadyClaimedError{Chain: 1, Nonce: "5"}, ErrAlreadyClaimed},
		{&InsufficientGasError{Chain: 1, Need: big.NewInt(2), Have: big.NewInt(1)}, ErrInsufficientGas},
		{&NonceReplayError{Chain: 1001, Nonce: "7", Blocker: "6"}, ErrNonceReplay},
		{&WalletBusyError{Chain: 1111, Address: "EQ"}, ErrWalletBusy},
		{&UnsupportedChainError{Chain: 77}, ErrUnsupportedChain},
		{&UnsupportedTokenError{Chain: 1, Token: "0x"}, ErrUnsupportedToken},
	}
	for _, tc := range tcs {
		wrapped := fmt.Errorf("outer: %w", tc.err)
		assert.True(t, errors.Is(wrapped, tc.sentinel), tc.err.Error())
		assert.False(t, errors.Is(wrapped, ErrStorageNotFound))
	}
}

func TestErrorsAs(t *testing.T) {
	err := fmt.Errorf("withdraw: %w", &NonceReplayError{Chain: 1111, Nonce: "10", Blocker: "12"})
	var replay *NonceReplayError
	require.True(t, errors.As(err, &replay))
	assert.Equal(t, "12", replay.Blocker)
	assert.Contains(t, err.Error(), "blocked by nonce 12")
}
