package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/omerorhan/points-quote-service/internal/storage"
)

// QuoteService owns the dependency breakers, the calculator and the background
// status reporter. Create it with NewQuoteService and call Initialize before Quote.
type QuoteService struct {
	opts       *ServiceOptions
	logger     *zap.Logger
	metrics    Metrics
	store      storage.StatusStore
	fxBreaker  *CircuitBreaker
	calculator *PointsCalculator
	reporter   *statusReporter
	instance   string

	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	mu          sync.RWMutex
	initialized bool
}

// ServiceOptions provides configuration for the quote service
type ServiceOptions struct {
	FxBaseUrl         string           `json:"fxBaseUrl"`
	FxBasicAuth       string           `json:"fxBasicAuth"`
	PromoBaseUrl      string           `json:"promoBaseUrl"`
	PromoBasicAuth    string           `json:"promoBasicAuth"`
	RedisAddr         string           `json:"redisAddr"`
	EnableLogging     bool             `json:"enableLogging"`
	MaxRetries        int              `json:"maxRetries"`
	RetryBackoff      time.Duration    `json:"retryBackoff"`
	FxTimeout         time.Duration    `json:"fxTimeout"`
	PromoTimeout      time.Duration    `json:"promoTimeout"`
	FailureThreshold  int              `json:"failureThreshold"`
	ResetTimeout      time.Duration    `json:"resetTimeout"`
	RequestTimeout    time.Duration    `json:"requestTimeout"`
	BaseCurrency      string           `json:"baseCurrency"`
	MaxPoints         int              `json:"maxPoints"`
	ExpiryWarningDays int              `json:"expiryWarningDays"`
	TierMultipliers   map[Tier]float64 `json:"tierMultipliers"`
	StatusInterval    time.Duration    `json:"statusInterval"`

	Logger           *zap.Logger           `json:"-"`
	Registerer       prometheus.Registerer `json:"-"`
	HTTPClient       *http.Client          `json:"-"`
	RateFetcher      RateFetcher           `json:"-"`
	PromotionFetcher PromotionFetcher      `json:"-"`
	Clock            func() time.Time      `json:"-"`
}

// DefaultServiceOptions returns sensible default options
func DefaultServiceOptions() *ServiceOptions {
	return &ServiceOptions{
		EnableLogging:     true,
		MaxRetries:        3,
		RetryBackoff:      100 * time.Millisecond,
		FxTimeout:         3 * time.Second,
		PromoTimeout:      2 * time.Second,
		FailureThreshold:  5,
		ResetTimeout:      10 * time.Second,
		RequestTimeout:    10 * time.Second,
		BaseCurrency:      "USD",
		MaxPoints:         50000,
		ExpiryWarningDays: 7,
		TierMultipliers:   DefaultTierMultipliers(),
		StatusInterval:    15 * time.Second,
	}
}

// ServiceOption is a function that configures service options
type ServiceOption func(*ServiceOptions)

// WithFxService sets the FX service base URL and optional "user:pass" basic auth
func WithFxService(url, auth string) ServiceOption {
	return func(opts *ServiceOptions) {
		opts.FxBaseUrl = url
		opts.FxBasicAuth = auth
	}
}

// WithPromoService sets the promotion service base URL and optional "user:pass" basic auth
func WithPromoService(url, auth string) ServiceOption {
	return func(opts *ServiceOptions) {
		opts.PromoBaseUrl = url
		opts.PromoBasicAuth = auth
	}
}

// WithRedisConfig publishes breaker status to Redis instead of process memory
func WithRedisConfig(addr string) ServiceOption {
	return func(opts *ServiceOptions) {
		opts.RedisAddr = addr
	}
}

// WithLogging enables/disables logging
func WithLogging(enabled bool) ServiceOption {
	return func(opts *ServiceOptions) {
		opts.EnableLogging = enabled
	}
}

func WithLogger(logger *zap.Logger) ServiceOption {
	return func(opts *ServiceOptions) {
		opts.Logger = logger
	}
}

// WithRetryPolicy sets retries after the first FX attempt and the initial backoff
func WithRetryPolicy(maxRetries int, backoff time.Duration) ServiceOption {
	return func(opts *ServiceOptions) {
		opts.MaxRetries = maxRetries
		opts.RetryBackoff = backoff
	}
}

// WithCallTimeouts sets the per-attempt timeouts of the FX and promotion calls
func WithCallTimeouts(fx, promo time.Duration) ServiceOption {
	return func(opts *ServiceOptions) {
		opts.FxTimeout = fx
		opts.PromoTimeout = promo
	}
}

func WithCircuitBreaker(threshold int, resetTimeout time.Duration) ServiceOption {
	return func(opts *ServiceOptions) {
		opts.FailureThreshold = threshold
		opts.ResetTimeout = resetTimeout
	}
}

// WithRequestTimeout bounds a whole quote, both lookups included
func WithRequestTimeout(d time.Duration) ServiceOption {
	return func(opts *ServiceOptions) {
		opts.RequestTimeout = d
	}
}

func WithBaseCurrency(currency string) ServiceOption {
	return func(opts *ServiceOptions) {
		opts.BaseCurrency = currency
	}
}

func WithMaxPoints(max int) ServiceOption {
	return func(opts *ServiceOptions) {
		opts.MaxPoints = max
	}
}

func WithExpiryWarningDays(days int) ServiceOption {
	return func(opts *ServiceOptions) {
		opts.ExpiryWarningDays = days
	}
}

// WithTierMultipliers overrides the bonus rate of the given tiers, others keep their defaults
func WithTierMultipliers(multipliers map[Tier]float64) ServiceOption {
	return func(opts *ServiceOptions) {
		for tier, m := range multipliers {
			opts.TierMultipliers[tier] = m
		}
	}
}

func WithStatusInterval(interval time.Duration) ServiceOption {
	return func(opts *ServiceOptions) {
		opts.StatusInterval = interval
	}
}

// WithRegisterer exports metrics to reg. Without it metrics are discarded.
func WithRegisterer(reg prometheus.Registerer) ServiceOption {
	return func(opts *ServiceOptions) {
		opts.Registerer = reg
	}
}

func WithHTTPClient(client *http.Client) ServiceOption {
	return func(opts *ServiceOptions) {
		opts.HTTPClient = client
	}
}

// WithRateFetcher replaces the HTTP FX client
func WithRateFetcher(f RateFetcher) ServiceOption {
	return func(opts *ServiceOptions) {
		opts.RateFetcher = f
	}
}

// WithPromotionFetcher replaces the HTTP promotion client
func WithPromotionFetcher(f PromotionFetcher) ServiceOption {
	return func(opts *ServiceOptions) {
		opts.PromotionFetcher = f
	}
}

func WithClock(now func() time.Time) ServiceOption {
	return func(opts *ServiceOptions) {
		opts.Clock = now
	}
}

func (o *ServiceOptions) validate() error {
	var errs []error
	if o.RateFetcher == nil && o.FxBaseUrl == "" {
		errs = append(errs, errors.New("fx service url is required"))
	}
	if o.PromotionFetcher == nil && o.PromoBaseUrl == "" {
		errs = append(errs, errors.New("promo service url is required"))
	}
	if len(o.BaseCurrency) != 3 {
		errs = append(errs, fmt.Errorf("base currency %q is not a 3-letter code", o.BaseCurrency))
	}
	if o.MaxRetries < 0 {
		errs = append(errs, errors.New("max retries must not be negative"))
	}
	if o.MaxPoints <= 0 || o.MaxPoints > maxPointsLimit {
		errs = append(errs, fmt.Errorf("max points must be between 1 and %d", maxPointsLimit))
	}
	if o.StatusInterval <= 0 {
		errs = append(errs, errors.New("status interval must be positive"))
	}
	return errors.Join(errs...)
}

// NewQuoteService wires the gateways, breaker and calculator
func NewQuoteService(options ...ServiceOption) (*QuoteService, error) {
	opts := DefaultServiceOptions()

	for _, option := range options {
		option(opts)
	}
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("invalid service options: %w", err)
	}

	logger := opts.Logger
	switch {
	case !opts.EnableLogging:
		logger = zap.NewNop()
	case logger == nil:
		l, err := zap.NewProduction()
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
		logger = l
	}
	logger = logger.Named("points-quote")

	var store storage.StatusStore
	if opts.RedisAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		redisStore, err := storage.NewRedisStore(ctx, opts.RedisAddr,
			storage.WithStoreOptions(&storage.StoreOptions{DefaultTTL: 3 * opts.StatusInterval}))
		if err != nil {
			return nil, fmt.Errorf("failed to create Redis status store: %w", err)
		}
		store = redisStore
	} else {
		store = storage.NewMemoryStore()
	}

	var metrics Metrics = NopMetrics()
	if opts.Registerer != nil {
		metrics = NewPrometheusMetrics(opts.Registerer)
	}

	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	rateFetcher := opts.RateFetcher
	if rateFetcher == nil {
		rateFetcher = NewHTTPRateFetcher(opts.FxBaseUrl, opts.FxBasicAuth, opts.HTTPClient)
	}
	promoFetcher := opts.PromotionFetcher
	if promoFetcher == nil {
		promoFetcher = NewHTTPPromotionFetcher(opts.PromoBaseUrl, opts.PromoBasicAuth, opts.HTTPClient)
	}

	fxBreaker := NewCircuitBreaker(FxServiceName, opts.FailureThreshold, opts.ResetTimeout)
	fxBreaker.now = now

	fxInvoker := NewInvoker[ExchangeRate](FxServiceName, Policy{
		MaxRetries:     opts.MaxRetries,
		InitialBackoff: opts.RetryBackoff,
		PerCallTimeout: opts.FxTimeout,
		Mode:           Propagate,
	}, fxBreaker, metrics, logger)
	promoInvoker := NewInvoker[*Promotion](PromoServiceName, Policy{
		PerCallTimeout: opts.PromoTimeout,
		Mode:           FailOpen,
	}, nil, metrics, logger)

	fxGateway := NewExchangeRateGateway(rateFetcher, fxInvoker)
	fxGateway.now = now

	calculator := NewPointsCalculator(CalculatorConfig{
		BaseCurrency:      opts.BaseCurrency,
		MaxPoints:         opts.MaxPoints,
		ExpiryWarningDays: opts.ExpiryWarningDays,
		TierMultipliers:   opts.TierMultipliers,
		RequestTimeout:    opts.RequestTimeout,
	}, fxGateway, NewPromotionGateway(promoFetcher, promoInvoker), metrics, logger)
	calculator.now = now

	instance := instanceID()
	reporter := newStatusReporter(store, []*CircuitBreaker{fxBreaker}, instance, opts.StatusInterval, logger)
	reporter.now = now

	fxBreaker.OnStateChange(func(name string, from, to BreakerState) {
		metrics.SetCircuitState(name, to)
		logger.Warn("circuit breaker state changed",
			zap.String("dependency", name),
			zap.Stringer("from", from),
			zap.Stringer("to", to))
		reporter.notify()
	})
	metrics.SetCircuitState(FxServiceName, StateClosed)

	ctx, cancel := context.WithCancel(context.Background())

	return &QuoteService{
		opts:       opts,
		logger:     logger,
		metrics:    metrics,
		store:      store,
		fxBreaker:  fxBreaker,
		calculator: calculator,
		reporter:   reporter,
		instance:   instance,
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Initialize starts the background status reporter
func (qs *QuoteService) Initialize() error {
	qs.mu.Lock()
	defer qs.mu.Unlock()

	if qs.initialized {
		return nil
	}

	qs.logger.Info("initializing points quote service",
		zap.String("instance", qs.instance),
		zap.String("baseCurrency", qs.opts.BaseCurrency),
		zap.Bool("redis", qs.opts.RedisAddr != ""))

	qs.wg.Add(1)
	go func() {
		defer qs.wg.Done()
		qs.reporter.run(qs.ctx)
	}()

	qs.initialized = true
	qs.logger.Info("points quote service initialized")
	return nil
}

// Quote calculates the points for req
func (qs *QuoteService) Quote(ctx context.Context, req QuoteRequest) (PointsQuote, error) {
	qs.mu.RLock()
	initialized := qs.initialized
	qs.mu.RUnlock()
	if !initialized {
		return PointsQuote{}, fmt.Errorf("service not initialized - call Initialize() first")
	}
	return qs.calculator.Calculate(ctx, req)
}

// HealthReport is the liveness view, with the breaker status board attached
type HealthReport struct {
	Status    string                  `json:"status"`
	Timestamp int64                   `json:"timestamp"`
	Breakers  []storage.BreakerStatus `json:"dependencies"`
}

// Health always reports UP while the process serves. Breaker states come from the
// status board, falling back to this instance's breakers if the board is unreachable.
func (qs *QuoteService) Health(ctx context.Context) HealthReport {
	now := qs.reporter.now()
	report := HealthReport{Status: "UP", Timestamp: now.UnixMilli()}

	statuses, err := qs.store.BreakerStatuses(ctx)
	if err != nil {
		qs.logger.Warn("failed to read breaker status board", zap.Error(err))
	}
	if err != nil || len(statuses) == 0 {
		snap := qs.fxBreaker.Snapshot()
		statuses = []storage.BreakerStatus{{
			Service:             snap.Name,
			State:               snap.State.String(),
			ConsecutiveFailures: snap.ConsecutiveFailures,
			OpenedAt:            snap.OpenedAt,
			UpdatedAt:           now.UTC(),
			Instance:            qs.instance,
		}}
	}
	report.Breakers = statuses
	return report
}

// FxBreakerState returns the local FX breaker state
func (qs *QuoteService) FxBreakerState() BreakerState {
	return qs.fxBreaker.State()
}

// Stop gracefully shuts down the service
func (qs *QuoteService) Stop() {
	qs.logger.Info("stopping points quote service")

	qs.cancel()
	qs.wg.Wait()

	if err := qs.store.Close(); err != nil {
		qs.logger.Warn("failed to close status store", zap.Error(err))
	}

	qs.logger.Info("points quote service stopped")
	_ = qs.logger.Sync()
}
