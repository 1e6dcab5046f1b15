package utils

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/omnibridge/omnibridge-service/utils/gerror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignerLock(t *testing.T) {
	l := NewSignerLock()
	release, err := l.Acquire(1111, "EQabc")
	require.NoError(t, err)
	require.True(t, l.IsBusy(1111, "EQabc"))

	_, err = l.Acquire(1111, "EQabc")
	require.Error(t, err)
	assert.True(t, errors.Is(err, gerror.ErrWalletBusy))

	// same address on another chain is a different signer
	releaseOther, err := l.Acquire(1001, "EQabc")
	require.NoError(t, err)
	releaseOther()

	release()
	release()
	require.False(t, l.IsBusy(1111, "EQabc"))
	release2, err := l.Acquire(1111, "EQabc")
	require.NoError(t, err)
	release2()
}

func TestSignerLockConcurrent(t *testing.T) {
	l := NewSignerLock()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
		busy    int
	)
	hold := make(chan struct{})
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(1001, "signer")
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				busy++
				return
			}
			granted++
			go func() {
				<-hold
				release()
			}()
		}()
	}
	wg.Wait()
	close(hold)
	assert.Equal(t, 1, granted)
	assert.Equal(t, 9, busy)
}

func TestAmounts(t *testing.T) {
	v, err := ParseAmount("1.5", 6)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1500000), v)

	_, err = ParseAmount("0.0000001", 6)
	require.Error(t, err)
	_, err = ParseAmount("-1", 6)
	require.Error(t, err)
	_, err = ParseAmount("abc", 6)
	require.Error(t, err)

	assert.Equal(t, "0.5", FormatAmount(big.NewInt(500000000), 9))
	assert.Equal(t, "0", FormatAmount(nil, 9))
}

func TestNonces(t *testing.T) {
	assert.Equal(t, 0, CompareNonce("10", "10"))
	assert.Equal(t, -1, CompareNonce("9", "10"))
	assert.Equal(t, 1, CompareNonce("340282366920938463463374607431768211455", "1"))
	_, ok := ParseUint128("340282366920938463463374607431768211456")
	assert.False(t, ok)
	assert.True(t, IsNative("native"))
	assert.False(t, IsNative("0xdAC17F958D2ee523a2206206994597C13D831ec7"))
}

func TestTraceID(t *testing.T) {
	ctx := WithTraceID(context.Background())
	id, ok := ctx.Value(CtxTraceID).(string)
	require.True(t, ok)
	assert.Len(t, id, traceIDLen)
	assert.Equal(t, ctx, WithTraceID(ctx))
}

func TestCheckWithdrawNonce(t *testing.T) {
	require.NoError(t, CheckWithdrawNonce(1111, "10", "9", nil))
	require.NoError(t, CheckWithdrawNonce(1111, "10", "", []string{"10", "12"}))

	err := CheckWithdrawNonce(1111, "9", "9", nil)
	require.True(t, errors.Is(err, gerror.ErrNonceReplay))

	err = CheckWithdrawNonce(1111, "12", "9", []string{"11", "12"})
	var replay *gerror.NonceReplayError
	require.True(t, errors.As(err, &replay))
	assert.Equal(t, "11", replay.Blocker)

	// pending entries the chain already consumed do not block
	require.NoError(t, CheckWithdrawNonce(1111, "12", "11", []string{"8", "11"}))
}

func TestFixedTimeProvider(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := &TimeProviderFixedTime{FixedTime: start}
	var p TimeProvider = clock
	assert.Equal(t, start, p.Now())
	clock.Advance(time.Minute)
	assert.Equal(t, start.Add(time.Minute), p.Now())
}
