package storage

import (
	"context"
	"time"
)

// StatusStore keeps the last published state of every circuit breaker
type StatusStore interface {
	PutBreakerStatus(ctx context.Context, status BreakerStatus) error
	BreakerStatuses(ctx context.Context) ([]BreakerStatus, error)
	Close() error
}

type StoreOptions struct {
	DefaultTTL time.Duration
}

func DefaultStoreOptions() *StoreOptions {
	return &StoreOptions{
		DefaultTTL: 45 * time.Second,
	}
}
