package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/omnibridge/omnibridge-service/config/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoSucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), NewPolicy(5, time.Millisecond), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("network down")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoExhausted(t *testing.T) {
	calls := 0
	err := Do(context.Background(), NewPolicy(3, time.Millisecond), func(context.Context) error {
		calls++
		return errors.New("boom")
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAttemptsExhausted))
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, 3, calls)
}

func TestDoPermanent(t *testing.T) {
	sentinel := errors.New("bad input")
	calls := 0
	err := Do(context.Background(), NewPolicy(10, time.Millisecond), func(context.Context) error {
		calls++
		return Permanent(sentinel)
	})
	assert.Equal(t, sentinel, err)
	assert.Equal(t, 1, calls)
}

func TestDoContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, NewPolicy(10, time.Hour), func(context.Context) error {
		calls++
		cancel()
		return errors.New("retry me")
	})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, calls)
}

func TestPoll(t *testing.T) {
	n := 0
	err := Poll(context.Background(), NewPolicy(5, time.Millisecond), func(context.Context) (bool, error) {
		n++
		return n == 4, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	err = Poll(context.Background(), NewPolicy(2, time.Millisecond), func(context.Context) (bool, error) {
		return false, nil
	})
	assert.True(t, errors.Is(err, ErrAttemptsExhausted))
}

func TestDelayBackoff(t *testing.T) {
	p := Policy{
		Attempts:    10,
		Interval:    types.NewDuration(time.Second),
		Multiplier:  2,
		MaxInterval: types.NewDuration(5 * time.Second),
	}
	assert.Equal(t, time.Second, p.Delay(1))
	assert.Equal(t, 2*time.Second, p.Delay(2))
	assert.Equal(t, 4*time.Second, p.Delay(3))
	assert.Equal(t, 5*time.Second, p.Delay(4))
	assert.Equal(t, time.Second, NewPolicy(3, time.Second).Delay(3))
}
