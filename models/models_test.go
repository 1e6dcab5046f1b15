package models

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDepositStatusFinal(t *testing.T) {
	assert.False(t, DepositStatusSubmitted.IsFinal())
	assert.False(t, DepositStatusNonceResolved.IsFinal())
	assert.True(t, DepositStatusLedgerCredited.IsFinal())
	assert.True(t, DepositStatusAlreadyClaimed.IsFinal())
}

func TestAmountInt(t *testing.T) {
	d := &PendingDeposit{Amount: "1000000"}
	assert.Equal(t, big.NewInt(1000000), d.AmountInt())
	w := &PendingWithdraw{Amount: "oops"}
	assert.Equal(t, 0, w.AmountInt().Sign())
	assert.Equal(t, "already_claimed", AlreadyClaimed.String())
	assert.Equal(t, "finalized", Finalized.String())
}
