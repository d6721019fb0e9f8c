package service

import (
	"errors"
	"fmt"
)

var (
	ErrValidation      = errors.New("validation error")
	ErrExternalService = errors.New("external service unavailable")
	ErrCircuitOpen     = errors.New("circuit open")
	ErrTimeout         = errors.New("timeout")
)

// ValidationError reports the first invalid field of a quote request
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ExternalServiceError is returned when a dependency could not serve a logical call,
// either because every attempt failed or because its circuit is open.
type ExternalServiceError struct {
	Service  string
	Attempts int
	Err      error
}

func (e *ExternalServiceError) Error() string {
	if errors.Is(e.Err, ErrCircuitOpen) {
		return fmt.Sprintf("%s service unavailable (circuit open)", e.Service)
	}
	return fmt.Sprintf("%s service unavailable after %d attempts: %v", e.Service, e.Attempts, e.Err)
}

func (e *ExternalServiceError) Is(target error) bool {
	return target == ErrExternalService
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}

// TimeoutError marks a single attempt or a whole quote that ran past its deadline
type TimeoutError struct {
	Op  string
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timeout: %v", e.Op, e.Err)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}
