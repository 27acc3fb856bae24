// Package retry runs an operation a bounded number of times with a fixed
// pause between attempts.
package retry

import (
	"context"
	"time"
)

// Policy is a counted retry with a fixed delay.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultPolicy is 3 attempts, 5 seconds apart.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, Delay: 5 * time.Second}
}

// Result is the outcome of Do: either a value, or the last error seen after
// every attempt was used up.
type Result[T any] struct {
	Value    T
	Attempts int
	Err      error
}

func (r Result[T]) OK() bool { return r.Err == nil }

// Do calls fn until it succeeds or the policy is exhausted. onFail, if set,
// is told about every failed attempt. Cancelling ctx stops further attempts.
func Do[T any](ctx context.Context, p Policy, fn func(context.Context) (T, error), onFail func(attempt int, err error)) Result[T] {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var res Result[T]
	for i := 1; i <= attempts; i++ {
		res.Attempts = i
		v, err := fn(ctx)
		if err == nil {
			res.Value = v
			res.Err = nil
			return res
		}
		res.Err = err
		if onFail != nil {
			onFail(i, err)
		}
		if i == attempts {
			break
		}
		select {
		case <-ctx.Done():
			res.Err = ctx.Err()
			return res
		case <-time.After(p.Delay):
		}
	}
	return res
}
