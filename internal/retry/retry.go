package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/maildigest/internal/config"
)

// ErrExhausted is returned after the last allowed attempt still failed on a
// retryable error. It carries the attempt count and wraps the final error.
type ErrExhausted struct {
	Name     string
	Attempts int
	Last     error
}

func (e *ErrExhausted) Error() string {
	return fmt.Sprintf("%s: exhausted %d attempts: %v", e.Name, e.Attempts, e.Last)
}

func (e *ErrExhausted) Unwrap() error {
	return e.Last
}

// ErrTimeout is returned when the per-call wall-clock deadline lapses while
// attempts remain.
type ErrTimeout struct {
	Name string
	Last error
}

func (e *ErrTimeout) Error() string {
	return fmt.Sprintf("%s: call deadline exceeded: %v", e.Name, e.Last)
}

func (e *ErrTimeout) Unwrap() error {
	return e.Last
}

// Attempt describes one executed attempt for observation purposes.
type Attempt struct {
	Name      string
	Number    int
	Err       error
	Class     Class
	NextDelay time.Duration // 0 when no further attempt follows
}

// Observer receives every attempt, including the final failing one. It must
// not block.
type Observer func(Attempt)

// Policy is the immutable retry/backoff configuration for remote calls.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Factor       float64
	Jitter       bool
	CallTimeout  time.Duration
}

// PolicyFromConfig converts the flat configuration options into a Policy.
func PolicyFromConfig(rc config.RetryConfig, callTimeout time.Duration) Policy {
	return Policy{
		MaxAttempts:  rc.MaxAttempts,
		InitialDelay: time.Duration(rc.InitialDelayS * float64(time.Second)),
		MaxDelay:     time.Duration(rc.MaxDelayS * float64(time.Second)),
		Factor:       rc.Factor,
		Jitter:       rc.Jitter,
		CallTimeout:  callTimeout,
	}
}

// Runner executes remote-call actions under a Policy.
type Runner struct {
	policy   Policy
	classify func(error) Class
	observer Observer
	sleep    func(ctx context.Context, d time.Duration) error
	jitter   func(d time.Duration) time.Duration
}

type RunnerOption func(*Runner)

// WithClassifier overrides the default error classifier.
func WithClassifier(fn func(error) Class) RunnerOption {
	return func(r *Runner) { r.classify = fn }
}

// WithObserver installs an attempt observer.
func WithObserver(obs Observer) RunnerOption {
	return func(r *Runner) { r.observer = obs }
}

// WithSleep replaces the sleep function, for tests with fake clocks.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) RunnerOption {
	return func(r *Runner) { r.sleep = fn }
}

func NewRunner(policy Policy, opts ...RunnerOption) *Runner {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	if policy.Factor < 1 {
		policy.Factor = 1
	}
	r := &Runner{
		policy:   policy,
		classify: Classify,
		sleep:    sleepCtx,
		jitter:   fullJitter,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Do executes fn under the retry policy. Retryable failures back off
// exponentially up to MaxDelay; non-retryable failures surface immediately.
// The whole call, sleeps included, is bounded by Policy.CallTimeout.
func (r *Runner) Do(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	if r.policy.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.policy.CallTimeout)
		defer cancel()
	}
	logger := logutil.GetLogger(ctx).With(zap.String("call", name))

	var lastErr error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			r.observe(Attempt{Name: name, Number: attempt})
			return nil
		}
		lastErr = err
		class := r.classify(err)

		if ctxErr := ctx.Err(); ctxErr != nil || errors.Is(err, context.DeadlineExceeded) {
			r.observe(Attempt{Name: name, Number: attempt, Err: err, Class: class})
			if errors.Is(ctxErr, context.Canceled) {
				return ctxErr
			}
			return &ErrTimeout{Name: name, Last: err}
		}
		if class != ClassRetryable || attempt == r.policy.MaxAttempts {
			r.observe(Attempt{Name: name, Number: attempt, Err: err, Class: class})
			break
		}

		delay := r.delayFor(attempt)
		r.observe(Attempt{Name: name, Number: attempt, Err: err, Class: class, NextDelay: delay})
		logger.Warn("remote call failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := r.sleep(ctx, delay); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			return &ErrTimeout{Name: name, Last: lastErr}
		}
	}

	if r.classify(lastErr) != ClassRetryable {
		return lastErr
	}
	return &ErrExhausted{Name: name, Attempts: r.policy.MaxAttempts, Last: lastErr}
}

// delayFor computes the backoff before the attempt following attempt n:
// min(maxDelay, initialDelay * factor^(n-1)), optionally jittered.
func (r *Runner) delayFor(attempt int) time.Duration {
	delay := float64(r.policy.InitialDelay)
	for i := 1; i < attempt; i++ {
		delay *= r.policy.Factor
		if time.Duration(delay) >= r.policy.MaxDelay {
			break
		}
	}
	d := time.Duration(delay)
	if r.policy.MaxDelay > 0 && d > r.policy.MaxDelay {
		d = r.policy.MaxDelay
	}
	if r.policy.Jitter {
		d = r.jitter(d)
	}
	return d
}

func (r *Runner) observe(a Attempt) {
	if r.observer != nil {
		r.observer(a)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// fullJitter keeps the delay within [d/2, d] so retries spread out without
// collapsing below half the computed backoff.
func fullJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}
