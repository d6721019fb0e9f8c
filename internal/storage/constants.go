package storage

const (
	StateClosed   = "CLOSED"
	StateOpen     = "OPEN"
	StateHalfOpen = "HALF_OPEN"

	breakerStatusKey = "points-quote:breaker_status"
)
