package ingest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wadatrip/farewatch/internal/store"
)

func serpRequest() store.QuoteRequest {
	dep := time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC)
	return store.QuoteRequest{Origin: "sfo", Destination: "ath", DepartureDate: &dep}
}

func TestSerpAPIRetriesTransientAndSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"temporary"}`))
			return
		}
		if got := r.URL.Query().Get("departure_id"); got != "SFO" {
			t.Errorf("expected upper-cased departure_id, got %s", got)
		}
		if got := r.URL.Query().Get("outbound_date"); got != "2026-06-10" {
			t.Errorf("unexpected outbound_date %s", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"best_flights":[{"price":650}],"other_flights":[{"price":590},{"price":0}]}`))
	}))
	defer srv.Close()

	p := &SerpAPIProvider{APIKey: "k", BaseURL: srv.URL, Retries: 2, Backoff: time.Millisecond}
	q, err := p.Search(context.Background(), serpRequest())
	if err != nil {
		t.Fatalf("search should succeed after retry: %v", err)
	}
	if q.Price != 590 || q.Provider != "serpapi" {
		t.Errorf("expected cheapest fare 590, got %+v", q)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
}

func TestSerpAPIClassifiesErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
		calls  int32
	}{
		{"auth", http.StatusUnauthorized, ErrAuthRequired, 1},
		{"rate limited", http.StatusTooManyRequests, ErrRateLimited, 3},
		{"server", http.StatusBadGateway, ErrTransient, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			p := &SerpAPIProvider{APIKey: "k", BaseURL: srv.URL, Retries: 2, Backoff: time.Millisecond}
			_, err := p.Search(context.Background(), serpRequest())
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if got := atomic.LoadInt32(&calls); got != tt.calls {
				t.Errorf("expected %d attempts, got %d", tt.calls, got)
			}
		})
	}
}

func TestSerpAPIRequiresKeyAndDate(t *testing.T) {
	p := &SerpAPIProvider{}
	if _, err := p.Search(context.Background(), serpRequest()); !errors.Is(err, ErrAuthRequired) {
		t.Errorf("expected ErrAuthRequired, got %v", err)
	}

	p.APIKey = "k"
	if _, err := p.Search(context.Background(), store.QuoteRequest{Origin: "SFO", Destination: "ATH"}); err == nil {
		t.Error("expected error without departure date")
	}
}

func TestSerpAPINoFares(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"best_flights":[],"other_flights":[]}`))
	}))
	defer srv.Close()

	p := &SerpAPIProvider{APIKey: "k", BaseURL: srv.URL}
	if _, err := p.Search(context.Background(), serpRequest()); !errors.Is(err, ErrNoFares) {
		t.Errorf("expected ErrNoFares, got %v", err)
	}
}
