package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/omerorhan/points-quote-service/internal/storage"
)

// statusReporter publishes breaker snapshots to the shared status board,
// on every state change and on a jittered interval.
type statusReporter struct {
	store    storage.StatusStore
	breakers []*CircuitBreaker
	instance string
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
	trigger  chan struct{}
}

func newStatusReporter(store storage.StatusStore, breakers []*CircuitBreaker, instance string, interval time.Duration, logger *zap.Logger) *statusReporter {
	return &statusReporter{
		store:    store,
		breakers: breakers,
		instance: instance,
		interval: interval,
		logger:   logger,
		now:      time.Now,
		trigger:  make(chan struct{}, 1),
	}
}

// notify requests an early publish. It never blocks.
func (r *statusReporter) notify() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

func (r *statusReporter) publish(ctx context.Context) error {
	var errs []error
	now := r.now().UTC()
	for _, cb := range r.breakers {
		snap := cb.Snapshot()
		status := storage.BreakerStatus{
			Service:             snap.Name,
			State:               snap.State.String(),
			ConsecutiveFailures: snap.ConsecutiveFailures,
			UpdatedAt:           now,
			Instance:            r.instance,
		}
		if !snap.OpenedAt.IsZero() {
			status.OpenedAt = snap.OpenedAt.UTC()
		}
		if err := r.store.PutBreakerStatus(ctx, status); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *statusReporter) run(ctx context.Context) {
	jitteredInterval := addJitter(r.interval, 0.1)
	ticker := time.NewTicker(jitteredInterval)
	defer ticker.Stop()

	r.logger.Info("breaker status reporter started",
		zap.Duration("interval", r.interval),
		zap.Duration("jittered", jitteredInterval))

	r.publishLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("breaker status reporter stopped")
			return
		case <-ticker.C:
			r.publishLogged(ctx)
		case <-r.trigger:
			r.publishLogged(ctx)
		}
	}
}

func (r *statusReporter) publishLogged(ctx context.Context) {
	if err := r.publish(ctx); err != nil && ctx.Err() == nil {
		r.logger.Warn("failed to publish breaker status", zap.Error(err))
	}
}
