package fn

import (
	"context"
	"math/rand"
	"time"
)

// RetryOpts controls exponential backoff between attempts.
type RetryOpts struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Jitter      float64 // fraction of the wait added as random noise, 0..1
}

func DefaultRetry() RetryOpts {
	return RetryOpts{
		MaxAttempts: 3,
		InitialWait: 200 * time.Millisecond,
		MaxWait:     5 * time.Second,
		Jitter:      0.2,
	}
}

// Retry runs f until it succeeds, the attempts run out, or ctx is cancelled.
// The last error wins.
func Retry[T any](ctx context.Context, opts RetryOpts, f func(context.Context) (T, error)) (T, error) {
	var zero T
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}

	wait := opts.InitialWait
	var lastErr error
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		v, err := f(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if attempt == opts.MaxAttempts {
			break
		}

		sleep := wait
		if opts.Jitter > 0 {
			sleep += time.Duration(rand.Float64() * opts.Jitter * float64(wait))
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(sleep):
		}

		wait *= 2
		if opts.MaxWait > 0 && wait > opts.MaxWait {
			wait = opts.MaxWait
		}
	}
	return zero, lastErr
}
