// Package config loads the points quote service configuration from an optional
// YAML file and POINTS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/omerorhan/points-quote-service/internal/service"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "POINTS_"

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	CORSOrigins     []string      `yaml:"corsOrigins"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type LogConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Development bool   `yaml:"development"`
	Level       string `yaml:"level"`
}

type FxConfig struct {
	BaseURL          string        `yaml:"baseURL"`
	BasicAuth        string        `yaml:"basicAuth"`
	Timeout          time.Duration `yaml:"timeout"`
	MaxRetries       int           `yaml:"maxRetries"`
	InitialBackoff   time.Duration `yaml:"initialBackoff"`
	FailureThreshold int           `yaml:"failureThreshold"`
	ResetTimeout     time.Duration `yaml:"resetTimeout"`
}

type PromoConfig struct {
	BaseURL   string        `yaml:"baseURL"`
	BasicAuth string        `yaml:"basicAuth"`
	Timeout   time.Duration `yaml:"timeout"`
}

type RedisConfig struct {
	Addr string `yaml:"addr"`
}

type PointsConfig struct {
	BaseCurrency      string             `yaml:"baseCurrency"`
	MaxPoints         int                `yaml:"maxPoints"`
	ExpiryWarningDays int                `yaml:"expiryWarningDays"`
	TierMultipliers   map[string]float64 `yaml:"tierMultipliers"`
}

type StatusConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// Config is the full service configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`
	Fx      FxConfig      `yaml:"fx"`
	Promo   PromoConfig   `yaml:"promo"`
	Redis   RedisConfig   `yaml:"redis"`
	Points  PointsConfig  `yaml:"points"`
	Status  StatusConfig  `yaml:"status"`
}

// Default returns the configuration used when nothing overrides it
func Default() *Config {
	defaults := service.DefaultServiceOptions()
	tiers := make(map[string]float64, len(defaults.TierMultipliers))
	for tier, m := range defaults.TierMultipliers {
		tiers[string(tier)] = m
	}

	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			RequestTimeout:  defaults.RequestTimeout,
			ShutdownTimeout: 15 * time.Second,
			CORSOrigins:     []string{"*"},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9090",
		},
		Log: LogConfig{
			Enabled: true,
			Level:   "info",
		},
		Fx: FxConfig{
			BaseURL:          "http://localhost:8081",
			Timeout:          defaults.FxTimeout,
			MaxRetries:       defaults.MaxRetries,
			InitialBackoff:   defaults.RetryBackoff,
			FailureThreshold: defaults.FailureThreshold,
			ResetTimeout:     defaults.ResetTimeout,
		},
		Promo: PromoConfig{
			BaseURL: "http://localhost:8082",
			Timeout: defaults.PromoTimeout,
		},
		Points: PointsConfig{
			BaseCurrency:      defaults.BaseCurrency,
			MaxPoints:         defaults.MaxPoints,
			ExpiryWarningDays: defaults.ExpiryWarningDays,
			TierMultipliers:   tiers,
		},
		Status: StatusConfig{
			Interval: defaults.StatusInterval,
		},
	}
}

// Load reads path over the defaults, applies environment overrides and validates the result.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type envBinding struct {
	name  string
	apply func(value string) error
}

func (c *Config) envBindings() []envBinding {
	return []envBinding{
		{"SERVER_ADDR", setString(&c.Server.Addr)},
		{"SERVER_REQUEST_TIMEOUT", setDuration(&c.Server.RequestTimeout)},
		{"SERVER_SHUTDOWN_TIMEOUT", setDuration(&c.Server.ShutdownTimeout)},
		{"SERVER_CORS_ORIGINS", setList(&c.Server.CORSOrigins)},
		{"METRICS_ENABLED", setBool(&c.Metrics.Enabled)},
		{"METRICS_ADDR", setString(&c.Metrics.Addr)},
		{"LOG_ENABLED", setBool(&c.Log.Enabled)},
		{"LOG_DEVELOPMENT", setBool(&c.Log.Development)},
		{"LOG_LEVEL", setString(&c.Log.Level)},
		{"FX_BASE_URL", setString(&c.Fx.BaseURL)},
		{"FX_BASIC_AUTH", setString(&c.Fx.BasicAuth)},
		{"FX_TIMEOUT", setDuration(&c.Fx.Timeout)},
		{"FX_MAX_RETRIES", setInt(&c.Fx.MaxRetries)},
		{"FX_INITIAL_BACKOFF", setDuration(&c.Fx.InitialBackoff)},
		{"FX_FAILURE_THRESHOLD", setInt(&c.Fx.FailureThreshold)},
		{"FX_RESET_TIMEOUT", setDuration(&c.Fx.ResetTimeout)},
		{"PROMO_BASE_URL", setString(&c.Promo.BaseURL)},
		{"PROMO_BASIC_AUTH", setString(&c.Promo.BasicAuth)},
		{"PROMO_TIMEOUT", setDuration(&c.Promo.Timeout)},
		{"REDIS_ADDR", setString(&c.Redis.Addr)},
		{"BASE_CURRENCY", setString(&c.Points.BaseCurrency)},
		{"MAX_POINTS", setInt(&c.Points.MaxPoints)},
		{"EXPIRY_WARNING_DAYS", setInt(&c.Points.ExpiryWarningDays)},
		{"STATUS_INTERVAL", setDuration(&c.Status.Interval)},
	}
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	for _, b := range c.envBindings() {
		value, ok := lookup(EnvPrefix + b.name)
		if !ok {
			continue
		}
		if err := b.apply(strings.TrimSpace(value)); err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, b.name, err))
		}
	}
	return errors.Join(errs...)
}

func setString(dst *string) func(string) error {
	return func(v string) error {
		*dst = v
		return nil
	}
}

func setList(dst *[]string) func(string) error {
	return func(v string) error {
		var out []string
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		*dst = out
		return nil
	}
}

func setInt(dst *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

func setBool(dst *bool) func(string) error {
	return func(v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*dst = b
		return nil
	}
}

func setDuration(dst *time.Duration) func(string) error {
	return func(v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*dst = d
		return nil
	}
}

// Validate reports every invalid setting at once
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		errs = append(errs, errors.New("metrics.addr is required when metrics are enabled"))
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Fx.BaseURL == "" {
		errs = append(errs, errors.New("fx.baseURL is required"))
	}
	if c.Promo.BaseURL == "" {
		errs = append(errs, errors.New("promo.baseURL is required"))
	}
	if c.Fx.MaxRetries < 0 {
		errs = append(errs, errors.New("fx.maxRetries must not be negative"))
	}
	if c.Fx.FailureThreshold < 1 {
		errs = append(errs, errors.New("fx.failureThreshold must be at least 1"))
	}
	if len(c.Points.BaseCurrency) != 3 {
		errs = append(errs, fmt.Errorf("points.baseCurrency %q is not a 3-letter code", c.Points.BaseCurrency))
	}
	if c.Points.MaxPoints <= 0 {
		errs = append(errs, errors.New("points.maxPoints must be positive"))
	}
	if c.Points.ExpiryWarningDays < 0 {
		errs = append(errs, errors.New("points.expiryWarningDays must not be negative"))
	}
	for name, m := range c.Points.TierMultipliers {
		if _, ok := service.ParseTier(name); !ok {
			errs = append(errs, fmt.Errorf("points.tierMultipliers: unknown tier %q", name))
		}
		if m < 0 {
			errs = append(errs, fmt.Errorf("points.tierMultipliers: negative multiplier for %s", name))
		}
	}
	if c.Status.Interval <= 0 {
		errs = append(errs, errors.New("status.interval must be positive"))
	}
	return errors.Join(errs...)
}

// NewLogger builds the process logger described by the log section
func (c *Config) NewLogger() (*zap.Logger, error) {
	if !c.Log.Enabled {
		return zap.NewNop(), nil
	}
	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// ServiceOptions translates the configuration into quote service options
func (c *Config) ServiceOptions() []service.ServiceOption {
	tiers := make(map[service.Tier]float64, len(c.Points.TierMultipliers))
	for name, m := range c.Points.TierMultipliers {
		if tier, ok := service.ParseTier(name); ok {
			tiers[tier] = m
		}
	}

	return []service.ServiceOption{
		service.WithFxService(c.Fx.BaseURL, c.Fx.BasicAuth),
		service.WithPromoService(c.Promo.BaseURL, c.Promo.BasicAuth),
		service.WithRedisConfig(c.Redis.Addr),
		service.WithLogging(c.Log.Enabled),
		service.WithRetryPolicy(c.Fx.MaxRetries, c.Fx.InitialBackoff),
		service.WithCallTimeouts(c.Fx.Timeout, c.Promo.Timeout),
		service.WithCircuitBreaker(c.Fx.FailureThreshold, c.Fx.ResetTimeout),
		service.WithRequestTimeout(c.Server.RequestTimeout),
		service.WithBaseCurrency(strings.ToUpper(c.Points.BaseCurrency)),
		service.WithMaxPoints(c.Points.MaxPoints),
		service.WithExpiryWarningDays(c.Points.ExpiryWarningDays),
		service.WithTierMultipliers(tiers),
		service.WithStatusInterval(c.Status.Interval),
	}
}
