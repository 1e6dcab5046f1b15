package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/omnibridge/omnibridge-service/config/types"
	"github.com/omnibridge/omnibridge-service/log"
)

// ErrAttemptsExhausted is returned when a policy runs out of attempts
var ErrAttemptsExhausted = errors.New("retry attempts exhausted")

// Policy describes how often an operation is attempted.
type Policy struct {
	// Attempts is the maximum number of calls, including the first one
	Attempts int `mapstructure:"Attempts"`
	// Interval is the wait before the second attempt
	Interval types.Duration `mapstructure:"Interval"`
	// Multiplier grows the interval after each failed attempt. Values below 1 keep it constant
	Multiplier float64 `mapstructure:"Multiplier"`
	// MaxInterval caps the grown interval, zero means no cap
	MaxInterval types.Duration `mapstructure:"MaxInterval"`
}

// NewPolicy returns a constant-interval policy
func NewPolicy(attempts int, interval time.Duration) Policy {
	return Policy{Attempts: attempts, Interval: types.NewDuration(interval), Multiplier: 1}
}

// Delay returns the wait after the given failed attempt (1 based)
func (p Policy) Delay(attempt int) time.Duration {
	d := float64(p.Interval.Duration)
	if p.Multiplier > 1 {
		for i := 1; i < attempt; i++ {
			d *= p.Multiplier
			if p.MaxInterval.Duration > 0 && d >= float64(p.MaxInterval.Duration) {
				return p.MaxInterval.Duration
			}
		}
	}
	return time.Duration(d)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so that Do stops retrying and returns err unwrapped
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do calls fn until it succeeds, returns a Permanent error, the context is done
// or the policy has no attempts left.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		log.Debugf("attempt %d/%d failed, retrying. Error: %v", attempt, attempts, err)
		if err := sleep(ctx, p.Delay(attempt)); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrAttemptsExhausted, attempts, lastErr)
}

// Poll evaluates cond until it reports done. Errors from cond are treated as
// "not yet" unless they are Permanent. The returned error wraps ErrAttemptsExhausted
// when the condition never held.
func Poll(ctx context.Context, p Policy, cond func(ctx context.Context) (bool, error)) error {
	return Do(ctx, p, func(ctx context.Context) error {
		done, err := cond(ctx)
		if err != nil {
			return err
		}
		if !done {
			return errNotReady
		}
		return nil
	})
}

var errNotReady = errors.New("condition not met")

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
