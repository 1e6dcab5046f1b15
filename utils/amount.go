package utils

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a human readable amount ("1.5") to base units using the token decimals.
func ParseAmount(human string, decimals int32) (*big.Int, error) {
	d, err := decimal.NewFromString(human)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", human, err)
	}
	if d.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive: %s", human)
	}
	scaled := d.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("amount %s has more than %d decimals", human, decimals)
	}
	return scaled.BigInt(), nil
}

// FormatAmount converts base units to a human readable amount
func FormatAmount(amount *big.Int, decimals int32) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -decimals).String()
}
