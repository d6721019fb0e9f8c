package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/omerorhan/points-quote-service/internal/storage"
)

type failingStore struct {
	storage.StatusStore
}

func (failingStore) PutBreakerStatus(context.Context, storage.BreakerStatus) error {
	return errors.New("store unavailable")
}

func TestStatusReporter_PublishesSnapshots(t *testing.T) {
	cb, clock := newTestBreaker(2, time.Second)
	store := storage.NewMemoryStore()
	reporter := newStatusReporter(store, []*CircuitBreaker{cb}, "pod-a", time.Minute, zap.NewNop())
	reporter.now = clock.Now

	failLogical(t, cb)
	failLogical(t, cb)

	if err := reporter.publish(context.Background()); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	statuses, err := store.BreakerStatuses(context.Background())
	if err != nil {
		t.Fatalf("BreakerStatuses failed: %v", err)
	}
	if len(statuses) != 1 {
		t.Fatalf("Expected 1 status, got %d", len(statuses))
	}
	got := statuses[0]
	if got.Service != FxServiceName || got.State != storage.StateOpen || got.Instance != "pod-a" {
		t.Errorf("Unexpected status: %+v", got)
	}
	if got.ConsecutiveFailures != 2 || got.OpenedAt.IsZero() || !got.UpdatedAt.Equal(clock.Now().UTC()) {
		t.Errorf("Unexpected status details: %+v", got)
	}
}

func TestStatusReporter_PublishErrors(t *testing.T) {
	cb, _ := newTestBreaker(2, time.Second)
	reporter := newStatusReporter(failingStore{}, []*CircuitBreaker{cb}, "pod-a", time.Minute, zap.NewNop())

	if err := reporter.publish(context.Background()); err == nil {
		t.Error("Expected publish error, got nil")
	}
}

func TestStatusReporter_NotifyTriggersPublish(t *testing.T) {
	cb, _ := newTestBreaker(1, time.Second)
	store := storage.NewMemoryStore()
	reporter := newStatusReporter(store, []*CircuitBreaker{cb}, "pod-a", time.Hour, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		reporter.run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	failLogical(t, cb)
	reporter.notify()
	reporter.notify()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		statuses, _ := store.BreakerStatuses(context.Background())
		if len(statuses) == 1 && statuses[0].State == storage.StateOpen {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Expected open breaker to be published after notify")
}
