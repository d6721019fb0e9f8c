package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// CalculatorConfig holds the business constants of the points arithmetic
type CalculatorConfig struct {
	BaseCurrency      string
	MaxPoints         int
	ExpiryWarningDays int
	TierMultipliers   map[Tier]float64
	RequestTimeout    time.Duration
}

// PointsCalculator turns a QuoteRequest into a PointsQuote. It keeps no per-request state,
// so one instance serves concurrent requests.
type PointsCalculator struct {
	cfg     CalculatorConfig
	fx      *ExchangeRateGateway
	promos  *PromotionGateway
	metrics Metrics
	logger  *zap.Logger
	now     func() time.Time
}

func NewPointsCalculator(cfg CalculatorConfig, fx *ExchangeRateGateway, promos *PromotionGateway, metrics Metrics, logger *zap.Logger) *PointsCalculator {
	if metrics == nil {
		metrics = NopMetrics()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	multipliers := make(map[Tier]float64, len(cfg.TierMultipliers))
	for tier, m := range cfg.TierMultipliers {
		multipliers[tier] = m
	}
	cfg.TierMultipliers = multipliers
	return &PointsCalculator{
		cfg:     cfg,
		fx:      fx,
		promos:  promos,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// Calculate validates req, resolves the rate and promotion, and assembles the quote.
// Errors are *ValidationError, *ExternalServiceError or *TimeoutError.
func (c *PointsCalculator) Calculate(ctx context.Context, req QuoteRequest) (PointsQuote, error) {
	start := time.Now()
	c.metrics.IncRequests()

	quote, err := c.calculate(ctx, req)

	c.metrics.ObserveDuration(time.Since(start))
	if err != nil {
		c.metrics.IncErrors()
		c.logger.Info("quote failed",
			zap.String("currency", req.Currency),
			zap.String("tier", req.CustomerTier),
			zap.Error(err))
		return PointsQuote{}, err
	}

	c.logger.Debug("quote calculated",
		zap.Int("basePoints", quote.BasePoints),
		zap.Int("totalPoints", quote.TotalPoints),
		zap.Any("warnings", quote.Warnings))
	return quote, nil
}

func (c *PointsCalculator) calculate(ctx context.Context, req QuoteRequest) (PointsQuote, error) {
	tier, err := c.validate(req)
	if err != nil {
		return PointsQuote{}, err
	}

	if c.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	var (
		rate  ExchangeRate
		promo *Promotion
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := c.fx.GetRate(gctx, currency, c.cfg.BaseCurrency)
		if err != nil {
			return err
		}
		rate = r
		return nil
	})
	g.Go(func() error {
		promo = c.promos.GetPromotion(gctx, req.PromoCode)
		return nil
	})
	err = g.Wait()

	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return PointsQuote{}, &TimeoutError{Op: "points quote", Err: ctxErr}
		}
		return PointsQuote{}, ctxErr
	}
	if err != nil {
		return PointsQuote{}, err
	}

	return c.assemble(req.FareAmount, rate.Rate, tier, promo), nil
}

// validate reports the first invalid field
func (c *PointsCalculator) validate(req QuoteRequest) (Tier, error) {
	if math.IsNaN(req.FareAmount) || math.IsInf(req.FareAmount, 0) || req.FareAmount <= 0 {
		return "", &ValidationError{Field: "fareAmount", Message: "fare amount must be greater than zero"}
	}
	if !isCurrencyCode(strings.TrimSpace(req.Currency)) {
		return "", &ValidationError{Field: "currency", Message: "invalid currency code"}
	}
	if _, ok := ParseCabinClass(req.CabinClass); !ok {
		return "", &ValidationError{Field: "cabinClass", Message: fmt.Sprintf("invalid cabin class: %s", req.CabinClass)}
	}
	tier, ok := ParseTier(req.CustomerTier)
	if !ok {
		return "", &ValidationError{Field: "customerTier", Message: fmt.Sprintf("invalid customer tier: %s", req.CustomerTier)}
	}
	return tier, nil
}

func (c *PointsCalculator) assemble(fareAmount, fxRate float64, tier Tier, promo *Promotion) PointsQuote {
	fare := decimal.NewFromFloat(fareAmount)
	converted := fare.Mul(decimal.NewFromFloat(fxRate))
	effectiveRate := converted.Div(fare).Round(2).InexactFloat64()

	base := converted.Floor()
	tierBonus := base.Mul(decimal.NewFromFloat(c.cfg.TierMultipliers[tier])).Floor()

	var warnings []Warning
	promoBonus := decimal.Zero
	if promo != nil {
		var w []Warning
		promoBonus, w = c.promotionBonus(base, promo)
		warnings = append(warnings, w...)
	}

	total := base.Add(tierBonus).Add(promoBonus)
	if c.cfg.MaxPoints > 0 && total.GreaterThan(decimal.NewFromInt(int64(c.cfg.MaxPoints))) {
		c.logger.Info("points capped", zap.String("uncapped", total.String()), zap.Int("maxPoints", c.cfg.MaxPoints))
		total = decimal.NewFromInt(int64(c.cfg.MaxPoints))
		warnings = append(warnings, WarningPointsCapped)
	}

	return newPointsQuote(toPoints(base), toPoints(tierBonus), toPoints(promoBonus), toPoints(total), effectiveRate, warnings)
}

// maxPointsLimit bounds each reported component so that their sum still fits in an int
const maxPointsLimit = math.MaxInt / 4

var pointsCeiling = decimal.NewFromInt(int64(maxPointsLimit))

func toPoints(d decimal.Decimal) int {
	if d.GreaterThan(pointsCeiling) {
		d = pointsCeiling
	}
	return int(d.IntPart())
}

func (c *PointsCalculator) promotionBonus(base decimal.Decimal, promo *Promotion) (decimal.Decimal, []Warning) {
	if !promo.Active {
		c.logger.Info("promotion inactive", zap.String("promoCode", promo.Code))
		return decimal.Zero, []Warning{WarningPromoInactive}
	}

	var warnings []Warning
	if promo.ExpiryDate != nil {
		days := daysUntil(c.now(), *promo.ExpiryDate)
		if days <= 0 {
			c.logger.Info("promotion expired", zap.String("promoCode", promo.Code), zap.Int("daysUntilExpiry", days))
			return decimal.Zero, []Warning{WarningPromoExpired}
		}
		if days <= c.cfg.ExpiryWarningDays {
			c.logger.Info("promotion expires soon", zap.String("promoCode", promo.Code), zap.Int("daysUntilExpiry", days))
			warnings = append(warnings, WarningPromoExpiresSoon)
		}
	}

	return base.Mul(decimal.NewFromFloat(promo.BonusMultiplier)).Floor(), warnings
}

func isCurrencyCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < 'a' || r > 'z') {
			return false
		}
	}
	return true
}
