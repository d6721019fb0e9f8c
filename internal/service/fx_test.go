package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func newTestFxGateway(fetcher RateFetcher, maxRetries int) *ExchangeRateGateway {
	inv := NewInvoker[ExchangeRate](FxServiceName, Policy{MaxRetries: maxRetries, InitialBackoff: time.Millisecond}, NewCircuitBreaker(FxServiceName, 5, time.Minute), nil, nil)
	inv.sleep = noSleep
	return NewExchangeRateGateway(fetcher, inv)
}

func TestHTTPRateFetcher_FetchRate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/rates" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("from") != "EUR" || r.URL.Query().Get("to") != "USD" {
			t.Errorf("Unexpected query %s", r.URL.RawQuery)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "svc" || pass != "secret" {
			t.Errorf("Expected basic auth svc:secret, got %s:%s (%v)", user, pass, ok)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"fromCurrency":"EUR","toCurrency":"USD","rate":1.1,"timestamp":"2025-01-15T10:00:00Z"}`))
	}))
	defer server.Close()

	fetcher := NewHTTPRateFetcher(server.URL+"/", "svc:secret", server.Client())
	rate, err := fetcher.FetchRate(context.Background(), "EUR", "USD")
	if err != nil {
		t.Fatalf("FetchRate failed: %v", err)
	}
	if rate.Rate != 1.1 || rate.From != "EUR" || rate.To != "USD" {
		t.Errorf("Unexpected rate: %+v", rate)
	}
	if want := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC); !rate.QuotedAt.Equal(want) {
		t.Errorf("Expected quotedAt %v, got %v", want, rate.QuotedAt)
	}
}

func TestHTTPRateFetcher_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "server error", status: http.StatusInternalServerError, body: `{"error":"down"}`},
		{name: "unknown pair", status: http.StatusNotFound, body: ``},
		{name: "malformed body", status: http.StatusOK, body: `{"rate":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewHTTPRateFetcher(server.URL, "", server.Client()).FetchRate(context.Background(), "EUR", "USD")
			if err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

func TestExchangeRateGateway_SameCurrencySkipsLookup(t *testing.T) {
	fetcher := &stubRateFetcher{rates: map[string]float64{}}
	gateway := newTestFxGateway(fetcher, 3)

	for _, pair := range [][2]string{{"USD", "USD"}, {"usd", "USD"}} {
		rate, err := gateway.GetRate(context.Background(), pair[0], pair[1])
		if err != nil {
			t.Fatalf("GetRate(%s, %s) failed: %v", pair[0], pair[1], err)
		}
		if rate.Rate != 1.0 {
			t.Errorf("Expected rate 1.0, got %v", rate.Rate)
		}
	}
	if fetcher.Calls() != 0 {
		t.Errorf("Expected no remote lookups, got %d", fetcher.Calls())
	}
}

func TestExchangeRateGateway_RejectsNonPositiveRate(t *testing.T) {
	fetcher := &stubRateFetcher{rates: map[string]float64{"EUR->USD": 0}}
	gateway := newTestFxGateway(fetcher, 1)

	_, err := gateway.GetRate(context.Background(), "EUR", "USD")
	if !errors.Is(err, ErrExternalService) {
		t.Fatalf("Expected ExternalServiceError, got %v", err)
	}
	if fetcher.Calls() != 2 {
		t.Errorf("Expected 2 attempts, got %d", fetcher.Calls())
	}
}

func TestExchangeRateGateway_RetriesOverHTTP(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	gateway := newTestFxGateway(NewHTTPRateFetcher(server.URL, "", server.Client()), 3)
	_, err := gateway.GetRate(context.Background(), "EUR", "USD")

	var extErr *ExternalServiceError
	if !errors.As(err, &extErr) {
		t.Fatalf("Expected ExternalServiceError, got %v", err)
	}
	if extErr.Service != FxServiceName || extErr.Attempts != 4 {
		t.Errorf("Unexpected error details: %+v", extErr)
	}
	if got := atomic.LoadInt32(&hits); got != 4 {
		t.Errorf("Expected 4 HTTP attempts, got %d", got)
	}
}
