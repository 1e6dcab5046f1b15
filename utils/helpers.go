package utils

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"math/big"

	"github.com/omnibridge/omnibridge-service/utils/gerror"
)

// GenerateTraceID generates a random trace ID.
func GenerateTraceID() string {
	b := make([]byte, traceIDLen/2) //nolint:gomnd
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// WithTraceID returns a child context carrying a fresh trace id, unless ctx already has one
func WithTraceID(ctx context.Context) context.Context {
	if _, ok := ctx.Value(CtxTraceID).(string); ok {
		return ctx
	}
	return context.WithValue(ctx, CtxTraceID, GenerateTraceID())
}

// IsNative reports whether token names the native currency
func IsNative(token string) bool {
	return token == "" || token == NativeToken
}

// ParseUint128 parses a decimal nonce string
func ParseUint128(s string) (*big.Int, bool) {
	n, ok := new(big.Int).SetString(s, 10) //nolint:gomnd
	if !ok || n.Sign() < 0 || n.BitLen() > 128 { //nolint:gomnd
		return nil, false
	}
	return n, true
}

// CompareNonce compares two decimal nonce strings. Unparsable values sort first.
func CompareNonce(a, b string) int {
	x, okA := ParseUint128(a)
	y, okB := ParseUint128(b)
	switch {
	case !okA && !okB:
		return 0
	case !okA:
		return -1
	case !okB:
		return 1
	}
	return x.Cmp(y)
}

// CheckWithdrawNonce fails with a NonceReplayError when nonce does not advance last
// or an older withdrawal among pending is still unfinished.
func CheckWithdrawNonce(chain int64, nonce, last string, pending []string) error {
	if last != "" && CompareNonce(nonce, last) <= 0 {
		return &gerror.NonceReplayError{Chain: chain, Nonce: nonce, Blocker: last}
	}
	for _, p := range pending {
		if p != nonce && CompareNonce(p, nonce) < 0 && (last == "" || CompareNonce(p, last) > 0) {
			return &gerror.NonceReplayError{Chain: chain, Nonce: nonce, Blocker: p}
		}
	}
	return nil
}
