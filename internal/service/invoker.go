package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// FailureMode decides what a logical call returns once it has failed
type FailureMode int

const (
	// Propagate returns the failure to the caller
	Propagate FailureMode = iota
	// FailOpen swallows the failure and returns the zero value
	FailOpen
)

// Policy configures retries and timeouts of an Invoker
type Policy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	PerCallTimeout time.Duration
	Mode           FailureMode
}

// Operation is a single remote attempt
type Operation[T any] func(ctx context.Context) (T, error)

// Invoker runs an Operation under retry, backoff, per-attempt timeout and an optional
// circuit breaker. The breaker sees the whole retry sequence as one logical call.
type Invoker[T any] struct {
	service string
	policy  Policy
	breaker *CircuitBreaker
	metrics Metrics
	logger  *zap.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewInvoker builds an invoker. breaker may be nil for dependencies without one.
func NewInvoker[T any](service string, policy Policy, breaker *CircuitBreaker, metrics Metrics, logger *zap.Logger) *Invoker[T] {
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	if metrics == nil {
		metrics = NopMetrics()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Invoker[T]{
		service: service,
		policy:  policy,
		breaker: breaker,
		metrics: metrics,
		logger:  logger.With(zap.String("dependency", service)),
		sleep:   sleepContext,
	}
}

func (inv *Invoker[T]) Do(ctx context.Context, op Operation[T]) (T, error) {
	generation, allowed := uint64(0), true
	if inv.breaker != nil {
		generation, allowed = inv.breaker.Allow()
	}
	if !allowed {
		inv.metrics.IncFailures(inv.service)
		inv.logger.Warn("circuit open, call rejected")
		return inv.fail(&ExternalServiceError{Service: inv.service, Err: ErrCircuitOpen})
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		v, err := inv.attempt(ctx, op)
		if err == nil {
			if inv.breaker != nil {
				inv.breaker.Success(generation)
			}
			return v, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			inv.release(generation)
			return inv.fail(inv.abandoned(ctx))
		}
		if attempt >= inv.policy.MaxRetries {
			break
		}

		backoff := inv.policy.InitialBackoff * time.Duration(1<<attempt)
		inv.metrics.IncRetries(inv.service)
		inv.logger.Warn("attempt failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		if err := inv.sleep(ctx, backoff); err != nil {
			inv.release(generation)
			return inv.fail(inv.abandoned(ctx))
		}
	}

	if inv.breaker != nil {
		inv.breaker.Failure(generation)
	}
	inv.metrics.IncFailures(inv.service)
	attempts := inv.policy.MaxRetries + 1
	inv.logger.Error("dependency call failed", zap.Int("attempts", attempts), zap.Error(lastErr))
	return inv.fail(&ExternalServiceError{Service: inv.service, Attempts: attempts, Err: lastErr})
}

// attempt runs op once. The result is abandoned if the per-call timeout fires first,
// even when op ignores its context.
func (inv *Invoker[T]) attempt(ctx context.Context, op Operation[T]) (T, error) {
	if inv.policy.PerCallTimeout <= 0 {
		return op(ctx)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, inv.policy.PerCallTimeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := op(attemptCtx)
		done <- result{v: v, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return r.v, &TimeoutError{Op: inv.service + " call", Err: r.err}
		}
		return r.v, r.err
	case <-attemptCtx.Done():
		var zero T
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, &TimeoutError{Op: inv.service + " call", Err: attemptCtx.Err()}
	}
}

func (inv *Invoker[T]) abandoned(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &TimeoutError{Op: inv.service, Err: ctx.Err()}
	}
	return ctx.Err()
}

func (inv *Invoker[T]) release(generation uint64) {
	if inv.breaker != nil {
		inv.breaker.Release(generation)
	}
}

func (inv *Invoker[T]) fail(err error) (T, error) {
	var zero T
	if inv.policy.Mode == FailOpen {
		inv.logger.Debug("failure absorbed", zap.Error(err))
		return zero, nil
	}
	return zero, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
