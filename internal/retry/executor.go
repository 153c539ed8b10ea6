package retry

import (
	"context"
	"time"

	"pagoda/harvester/internal/config"
	"pagoda/harvester/internal/domain"

	log "github.com/sirupsen/logrus"
)

// Policy bounds one action: attempts, backoff window, per-attempt timeout.
type Policy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	AttemptTimeout time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		BaseDelay:      500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		AttemptTimeout: 10 * time.Second,
	}
}

// PolicyFromConfig builds a Policy from the retry section of the config,
// falling back to defaults for unset values.
func PolicyFromConfig(cfg config.RetryConfig) Policy {
	p := DefaultPolicy()
	if cfg.MaxAttempts > 0 {
		p.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.BaseDelayMS > 0 {
		p.BaseDelay = time.Duration(cfg.BaseDelayMS) * time.Millisecond
	}
	if cfg.MaxDelayMS > 0 {
		p.MaxDelay = time.Duration(cfg.MaxDelayMS) * time.Millisecond
	}
	if cfg.AttemptTimeoutSec > 0 {
		p.AttemptTimeout = time.Duration(cfg.AttemptTimeoutSec) * time.Second
	}
	return p
}

// Event describes one failed attempt. The raw error never travels further
// than this event; callers above the executor see only the final
// ActionExhaustedError.
type Event struct {
	Component string
	Attempt   int
	Err       error
}

// Executor runs actions under a retry policy with exponential backoff.
type Executor struct {
	policy   Policy
	observer func(Event)
}

func NewExecutor(policy Policy) *Executor {
	return &Executor{policy: policy}
}

// WithObserver returns a copy of the executor that also reports failed
// attempts to fn.
func (e *Executor) WithObserver(fn func(Event)) *Executor {
	return &Executor{policy: e.policy, observer: fn}
}

// Do runs action until it succeeds, the attempts are exhausted, or ctx is
// cancelled. Each attempt gets its own timeout; delays between attempts grow
// as min(MaxDelay, BaseDelay * 2^(attempt-1)).
func (e *Executor) Do(ctx context.Context, component string, action func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		attemptCtx := ctx
		cancel := func() {}
		if e.policy.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, e.policy.AttemptTimeout)
		}
		err := action(attemptCtx)
		cancel()

		if err == nil {
			return nil
		}
		lastErr = err

		log.WithFields(log.Fields{
			"component": component,
			"attempt":   attempt,
			"error":     err.Error(),
		}).Warn("action attempt failed")
		if e.observer != nil {
			e.observer(Event{Component: component, Attempt: attempt, Err: err})
		}

		if attempt == e.policy.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.delay(attempt)):
		}
	}

	return &domain.ActionExhaustedError{
		Action:   component,
		Attempts: e.policy.MaxAttempts,
		Last:     lastErr,
	}
}

func (e *Executor) delay(attempt int) time.Duration {
	d := e.policy.BaseDelay << (attempt - 1)
	if d > e.policy.MaxDelay || d <= 0 {
		return e.policy.MaxDelay
	}
	return d
}

// DoValue is Do for actions that produce a result.
func DoValue[T any](ctx context.Context, e *Executor, component string, action func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := e.Do(ctx, component, func(ctx context.Context) error {
		v, err := action(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
