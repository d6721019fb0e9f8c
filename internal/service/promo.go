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
)

// Promotion holds the terms of a promo code. A nil ExpiryDate never expires.
type Promotion struct {
	Code            string
	BonusMultiplier float64
	ExpiryDate      *time.Time
	Active          bool
}

// PromotionFetcher performs one remote promo lookup. A missing promotion is (nil, nil).
type PromotionFetcher interface {
	FetchPromotion(ctx context.Context, code string) (*Promotion, error)
}

type promoResponse struct {
	PromoCode       string  `json:"promoCode"`
	BonusMultiplier float64 `json:"bonusMultiplier"`
	ExpiryDate      string  `json:"expiryDate"`
	Active          bool    `json:"active"`
}

// HTTPPromotionFetcher calls GET {baseURL}/v1/promos/{code}
type HTTPPromotionFetcher struct {
	baseURL   string
	basicAuth string
	client    *http.Client
}

func NewHTTPPromotionFetcher(baseURL, basicAuth string, client *http.Client) *HTTPPromotionFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPPromotionFetcher{
		baseURL:   strings.TrimRight(baseURL, "/"),
		basicAuth: basicAuth,
		client:    client,
	}
}

func (f *HTTPPromotionFetcher) FetchPromotion(ctx context.Context, code string) (*Promotion, error) {
	endpoint := f.baseURL + promosPath + url.PathEscape(code)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if user, pass, ok := parseBasicAuthPair(f.basicAuth); ok {
		req.SetBasicAuth(user, pass)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("promo http %d: %s", resp.StatusCode, string(b))
	}

	var body promoResponse
	if err := json.Unmarshal(b, &body); err != nil {
		return nil, fmt.Errorf("decode promo response: %w", err)
	}

	promo := &Promotion{
		Code:            body.PromoCode,
		BonusMultiplier: body.BonusMultiplier,
		Active:          body.Active,
	}
	if promo.Code == "" {
		promo.Code = code
	}
	if body.ExpiryDate != "" {
		expiry, err := parseISODate(body.ExpiryDate)
		if err != nil {
			return nil, fmt.Errorf("promo %s: %w", code, err)
		}
		promo.ExpiryDate = &expiry
	}
	if promo.BonusMultiplier < 0 {
		return nil, fmt.Errorf("promo %s: negative bonus multiplier %v", code, promo.BonusMultiplier)
	}
	return promo, nil
}

// PromotionGateway is best-effort: a lookup that fails for any reason resolves to no promotion
type PromotionGateway struct {
	fetcher PromotionFetcher
	invoker *Invoker[*Promotion]
}

func NewPromotionGateway(fetcher PromotionFetcher, invoker *Invoker[*Promotion]) *PromotionGateway {
	return &PromotionGateway{fetcher: fetcher, invoker: invoker}
}

// GetPromotion returns nil for blank codes, unknown codes and failed lookups alike
func (g *PromotionGateway) GetPromotion(ctx context.Context, code string) *Promotion {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil
	}
	promo, _ := g.invoker.Do(ctx, func(ctx context.Context) (*Promotion, error) {
		return g.fetcher.FetchPromotion(ctx, code)
	})
	return promo
}
