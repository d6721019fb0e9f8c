package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ExchangeRate is a single conversion quote. It is used once and never cached.
type ExchangeRate struct {
	From     string
	To       string
	Rate     float64
	QuotedAt time.Time
}

// RateFetcher performs one remote rate lookup
type RateFetcher interface {
	FetchRate(ctx context.Context, from, to string) (ExchangeRate, error)
}

type fxRateResponse struct {
	FromCurrency string  `json:"fromCurrency"`
	ToCurrency   string  `json:"toCurrency"`
	Rate         float64 `json:"rate"`
	Timestamp    string  `json:"timestamp"`
}

// HTTPRateFetcher calls GET {baseURL}/v1/rates?from=..&to=..
type HTTPRateFetcher struct {
	baseURL   string
	basicAuth string
	client    *http.Client
}

func NewHTTPRateFetcher(baseURL, basicAuth string, client *http.Client) *HTTPRateFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPRateFetcher{
		baseURL:   strings.TrimRight(baseURL, "/"),
		basicAuth: basicAuth,
		client:    client,
	}
}

func (f *HTTPRateFetcher) FetchRate(ctx context.Context, from, to string) (ExchangeRate, error) {
	q := url.Values{}
	q.Set("from", from)
	q.Set("to", to)
	endpoint := f.baseURL + fxRatesPath + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return ExchangeRate{}, err
	}
	req.Header.Set("Accept", "application/json")
	if user, pass, ok := parseBasicAuthPair(f.basicAuth); ok {
		req.SetBasicAuth(user, pass)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return ExchangeRate{}, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return ExchangeRate{}, fmt.Errorf("fx http %d: %s", resp.StatusCode, string(b))
	}

	var body fxRateResponse
	if err := json.Unmarshal(b, &body); err != nil {
		return ExchangeRate{}, fmt.Errorf("decode fx response: %w", err)
	}

	rate := ExchangeRate{
		From: from,
		To:   to,
		Rate: body.Rate,
	}
	if body.FromCurrency != "" {
		rate.From = body.FromCurrency
	}
	if body.ToCurrency != "" {
		rate.To = body.ToCurrency
	}
	if body.Timestamp != "" {
		if ts, err := parseISODate(body.Timestamp); err == nil {
			rate.QuotedAt = ts
		}
	}
	return rate, nil
}

// ExchangeRateGateway resolves conversion rates through a retrying, breaker-guarded invoker.
// Failures propagate: a fare cannot be priced without a rate.
type ExchangeRateGateway struct {
	fetcher RateFetcher
	invoker *Invoker[ExchangeRate]
	now     func() time.Time
}

func NewExchangeRateGateway(fetcher RateFetcher, invoker *Invoker[ExchangeRate]) *ExchangeRateGateway {
	return &ExchangeRateGateway{fetcher: fetcher, invoker: invoker, now: time.Now}
}

// GetRate returns the rate from -> to. Identical currencies yield 1.0 without a remote call.
func (g *ExchangeRateGateway) GetRate(ctx context.Context, from, to string) (ExchangeRate, error) {
	if strings.EqualFold(from, to) {
		return ExchangeRate{From: from, To: to, Rate: 1.0, QuotedAt: g.now()}, nil
	}

	return g.invoker.Do(ctx, func(ctx context.Context) (ExchangeRate, error) {
		rate, err := g.fetcher.FetchRate(ctx, from, to)
		if err != nil {
			return ExchangeRate{}, err
		}
		if rate.Rate <= 0 {
			return ExchangeRate{}, fmt.Errorf("fx service returned non-positive rate %v for %s->%s", rate.Rate, from, to)
		}
		if rate.QuotedAt.IsZero() {
			rate.QuotedAt = g.now()
		}
		g.invoker.logger.Debug("rate resolved",
			zap.String("from", from),
			zap.String("to", to),
			zap.Float64("rate", rate.Rate))
		return rate, nil
	})
}
