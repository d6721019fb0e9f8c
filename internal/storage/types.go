package storage

import (
	"time"
)

// BreakerStatus is a point-in-time view of one dependency's circuit breaker
type BreakerStatus struct {
	Service             string    `json:"service"`
	State               string    `json:"state"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	OpenedAt            time.Time `json:"openedAt,omitempty"`
	UpdatedAt           time.Time `json:"updatedAt"`
	Instance            string    `json:"instance"`
}

func statusField(instance, service string) string {
	return instance + "/" + service
}
