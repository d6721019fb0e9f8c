package pointsquote

import (
	"context"

	"github.com/omerorhan/points-quote-service/internal/service"
	"github.com/omerorhan/points-quote-service/internal/storage"
)

// Client provides a clean public API for embedding the quote pipeline in-process
type Client struct {
	service *service.QuoteService
}

// NewClient creates a new points quote client
func NewClient(options ...ServiceOption) (*Client, error) {
	svc, err := service.NewQuoteService(options...)
	if err != nil {
		return nil, err
	}

	return &Client{
		service: svc,
	}, nil
}

// Initialize starts background work. Quote fails until it has been called.
func (c *Client) Initialize() error {
	return c.service.Initialize()
}

// Quote computes the points quote for a fare
func (c *Client) Quote(ctx context.Context, req QuoteRequest) (PointsQuote, error) {
	return c.service.Quote(ctx, req)
}

// Health reports liveness plus the circuit breaker board
func (c *Client) Health(ctx context.Context) HealthReport {
	return c.service.Health(ctx)
}

// Stop gracefully shuts down the client
func (c *Client) Stop() error {
	c.service.Stop()
	return nil
}

// Service options (re-exported for convenience)
type ServiceOption = service.ServiceOption

var (
	WithFxService         = service.WithFxService
	WithPromoService      = service.WithPromoService
	WithRedisConfig       = service.WithRedisConfig
	WithLogging           = service.WithLogging
	WithLogger            = service.WithLogger
	WithRetryPolicy       = service.WithRetryPolicy
	WithCallTimeouts      = service.WithCallTimeouts
	WithCircuitBreaker    = service.WithCircuitBreaker
	WithRequestTimeout    = service.WithRequestTimeout
	WithBaseCurrency      = service.WithBaseCurrency
	WithMaxPoints         = service.WithMaxPoints
	WithExpiryWarningDays = service.WithExpiryWarningDays
	WithTierMultipliers   = service.WithTierMultipliers
	WithStatusInterval    = service.WithStatusInterval
	WithRegisterer        = service.WithRegisterer
	WithHTTPClient        = service.WithHTTPClient
)

// Re-export common types for convenience
type (
	QuoteRequest  = service.QuoteRequest
	PointsQuote   = service.PointsQuote
	Warning       = service.Warning
	CabinClass    = service.CabinClass
	Tier          = service.Tier
	HealthReport  = service.HealthReport
	BreakerStatus = storage.BreakerStatus

	ValidationError      = service.ValidationError
	ExternalServiceError = service.ExternalServiceError
	TimeoutError         = service.TimeoutError
)

const (
	CabinEconomy  = service.CabinEconomy
	CabinBusiness = service.CabinBusiness
	CabinFirst    = service.CabinFirst

	TierNone     = service.TierNone
	TierSilver   = service.TierSilver
	TierGold     = service.TierGold
	TierPlatinum = service.TierPlatinum

	WarningPromoInactive    = service.WarningPromoInactive
	WarningPromoExpired     = service.WarningPromoExpired
	WarningPromoExpiresSoon = service.WarningPromoExpiresSoon
	WarningPointsCapped     = service.WarningPointsCapped
)

var (
	ErrValidation      = service.ErrValidation
	ErrExternalService = service.ErrExternalService
	ErrCircuitOpen     = service.ErrCircuitOpen
	ErrTimeout         = service.ErrTimeout
)
