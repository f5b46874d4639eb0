package reliability

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrDeadlineExceeded reports that the overall deadline for a wrapped call
// elapsed before the operation completed. It is distinct from whatever error
// the operation itself last produced.
var ErrDeadlineExceeded = errors.New("reliability: deadline exceeded")

// backoffCap bounds a single retry wait regardless of attempt count.
const backoffCap = 30 * time.Second

// Permanent marks err as not worth retrying. Do returns the wrapped error
// immediately instead of spending further attempts on it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Policy bounds one wrapped outbound call.
type Policy struct {
	// Attempts is the total number of tries. Values below one are treated as one.
	Attempts int
	// BaseDelay seeds the exponential backoff: the wait after failed attempt i
	// is BaseDelay * 2^i.
	BaseDelay time.Duration
	// Deadline caps the whole call including retries and waits. Zero means no cap.
	Deadline time.Duration
}

// Do runs op under the policy. Failed attempts are retried after an
// exponentially growing wait; the in-flight operation observes cancellation
// through its context when the deadline fires or the caller gives up.
// Exhausting all attempts returns the last operation error. A caller-side
// cancellation short-circuits retries and returns ctx.Err() as-is.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}

	callCtx := ctx
	if p.Deadline > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.Deadline)
		defer cancel()
	}

	var lastErr error
	for attempt := 0; attempt < p.Attempts; attempt++ {
		out, err := op(callCtx)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if callCtx.Err() != nil {
			return zero, fmt.Errorf("%w (last error: %v)", ErrDeadlineExceeded, lastErr)
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return zero, perm.err
		}
		if attempt == p.Attempts-1 {
			break
		}

		delay := ExponentialBackoff(attempt, p.BaseDelay, backoffCap)
		if delay <= 0 {
			continue
		}
		timer := time.NewTimer(delay)
		select {
		case <-callCtx.Done():
			timer.Stop()
			if ctx.Err() != nil {
				return zero, ctx.Err()
			}
			return zero, fmt.Errorf("%w (last error: %v)", ErrDeadlineExceeded, lastErr)
		case <-timer.C:
		}
	}
	return zero, lastErr
}

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// ExponentialBackoff computes a deterministic capped backoff duration for the
// wait that follows failed attempt number `attempt` (0-indexed).
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	if d > cap {
		return cap
	}
	return d
}
