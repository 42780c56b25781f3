// Package retry implements the exception-handler-driven retry harness used
// by the real-device driver to recover from transient device errors.
package retry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Action is returned by a Handler to tell the harness whether to retry the
// operation or give up immediately.
type Action int

const (
	// ActionRetry resumes the normal retry loop (sleep, then try again).
	ActionRetry Action = iota
	// ActionFail stops retrying and fails with the primary error, even if
	// attempts remain.
	ActionFail
)

// unchecked is implemented by error values that represent programming
// mistakes rather than recoverable operation failures. The harness never
// retries these; it propagates them immediately, bypassing the handler.
type unchecked interface {
	Unchecked() bool
}

// IsUnchecked reports whether err should bypass the retry harness entirely.
func IsUnchecked(err error) bool {
	var u unchecked
	if errors.As(err, &u) {
		return u.Unchecked()
	}
	return false
}

// Handler inspects a failure from the wrapped operation and decides what to
// do next. Returning a non-nil error aborts the retry loop immediately: the
// handler's error is either propagated as-is (if it is itself unchecked) or
// attached as a suppressed error alongside the primary failure.
type Handler func(err error) (Action, error)

// Retrier is an immutable, reusable retry policy. Each WithX method returns a
// modified copy; the zero value plus New() gives the documented defaults.
type Retrier struct {
	maxAttempts         int
	delay               time.Duration
	delayedFirstAttempt bool
	handler             Handler
}

// New returns a Retrier with the default policy: 3 attempts, no delay, no
// delayed first attempt, no handler.
func New() Retrier {
	return Retrier{maxAttempts: 3}
}

// WithMaxAttempts returns a copy with the given attempt ceiling. Values < 1
// are treated as 1.
func (r Retrier) WithMaxAttempts(n int) Retrier {
	r.maxAttempts = n
	return r
}

// WithDelay returns a copy that sleeps d between attempts.
func (r Retrier) WithDelay(d time.Duration) Retrier {
	r.delay = d
	return r
}

// WithDelayedFirstAttempt returns a copy that also sleeps before the very
// first attempt when true.
func (r Retrier) WithDelayedFirstAttempt(b bool) Retrier {
	r.delayedFirstAttempt = b
	return r
}

// WithExceptionHandler returns a copy that invokes h after every failed
// attempt.
func (r Retrier) WithExceptionHandler(h Handler) Retrier {
	r.handler = h
	return r
}

// MultiError composes a primary failure with zero or more suppressed
// failures accumulated across retry attempts (handler errors, cancellation
// records). Error() and Unwrap() surface the primary; suppressed errors are
// available via Suppressed for diagnostics.
type MultiError struct {
	Primary    error
	Suppressed []error
}

func (e *MultiError) Error() string {
	if len(e.Suppressed) == 0 {
		return e.Primary.Error()
	}
	var sb strings.Builder
	sb.WriteString(e.Primary.Error())
	sb.WriteString(" (")
	sb.WriteString(fmt.Sprintf("%d suppressed: ", len(e.Suppressed)))
	for i, s := range e.Suppressed {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(s.Error())
	}
	sb.WriteString(")")
	return sb.String()
}

func (e *MultiError) Unwrap() error { return e.Primary }

// addSuppressed appends err to suppressed unless it is identical to primary,
// mirroring the documented "e.addSuppressed(e) is suppressed by the harness"
// boundary case: a handler that re-raises the exact error it was given must
// not be recorded twice.
func addSuppressed(suppressed []error, primary, err error) []error {
	if err == primary {
		return suppressed
	}
	return append(suppressed, err)
}

// Cancelled is returned (wrapped) when the caller's context is done while the
// harness is sleeping before or between attempts.
var Cancelled = errors.New("retry: cancelled")

// Run executes op, applying the configured retry policy. On success it
// returns nil. On exhaustion, handler-directed failure, or cancellation
// between attempts it returns a *MultiError wrapping the first failure with
// every later failure suppressed. A cancellation during the delay before the
// first attempt returns an error wrapping Cancelled instead, since no attempt
// has failed yet. An unchecked error from op or from the handler is returned
// immediately, never wrapped.
func (r Retrier) Run(ctx context.Context, op func() error) error {
	attempts := r.maxAttempts
	if attempts < 1 {
		attempts = 1
	}

	if r.delayedFirstAttempt && r.delay > 0 {
		if err := sleep(ctx, r.delay); err != nil {
			return fmt.Errorf("%w: %v", Cancelled, err)
		}
	}

	var primary error
	var suppressed []error

	for attempt := 0; attempt < attempts; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		if IsUnchecked(err) {
			return err
		}

		if primary == nil {
			primary = err
		} else {
			suppressed = addSuppressed(suppressed, primary, err)
		}

		if r.handler != nil {
			action, herr := r.handler(err)
			if herr != nil {
				if IsUnchecked(herr) {
					return herr
				}
				suppressed = addSuppressed(suppressed, primary, herr)
				return &MultiError{Primary: primary, Suppressed: suppressed}
			}
			if action == ActionFail {
				return &MultiError{Primary: primary, Suppressed: suppressed}
			}
		}

		if attempt == attempts-1 {
			break
		}

		if r.delay > 0 {
			if serr := sleep(ctx, r.delay); serr != nil {
				suppressed = append(suppressed, fmt.Errorf("%w: %v", Cancelled, serr))
				return &MultiError{Primary: primary, Suppressed: suppressed}
			}
		}
	}

	return &MultiError{Primary: primary, Suppressed: suppressed}
}

// sleep blocks for d or until ctx is done, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
