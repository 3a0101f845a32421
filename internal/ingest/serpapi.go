package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wadatrip/farewatch/internal/store"
)

const (
	// SerpAPIBaseURL is the default fare search endpoint.
	SerpAPIBaseURL = "https://serpapi.com"
)

// SerpAPIProvider searches Google Flights fares through SerpAPI. Origin and
// destination are expected to be airport codes.
type SerpAPIProvider struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
	Timeout time.Duration
	Retries int
	Backoff time.Duration
}

type serpResponse struct {
	BestFlights  []serpFlight `json:"best_flights"`
	OtherFlights []serpFlight `json:"other_flights"`
}

type serpFlight struct {
	Price int `json:"price"`
}

// Search returns the cheapest fare for the request.
func (p *SerpAPIProvider) Search(ctx context.Context, req store.QuoteRequest) (store.Quote, error) {
	if p.APIKey == "" {
		return store.Quote{}, fmt.Errorf("%w: serpapi key missing: set SERPAPI_KEY", ErrAuthRequired)
	}
	if req.DepartureDate == nil {
		return store.Quote{}, fmt.Errorf("serpapi search needs a departure date")
	}

	client := p.Client
	if client == nil {
		client = &http.Client{Timeout: p.resolvedTimeout()}
	}
	departure := req.DepartureDate.Format("2006-01-02")
	endpoint := buildSerpURL(p.baseURL(), req.Origin, req.Destination, departure, p.APIKey)

	var payload serpResponse
	if err := p.fetchWithRetry(ctx, client, endpoint, &payload); err != nil {
		return store.Quote{}, err
	}

	best := 0
	for _, f := range append(payload.BestFlights, payload.OtherFlights...) {
		if f.Price > 0 && (best == 0 || f.Price < best) {
			best = f.Price
		}
	}
	if best == 0 {
		return store.Quote{}, fmt.Errorf("%w: %s on %s", ErrNoFares, req.Route().Key(), departure)
	}

	return store.Quote{
		Provider:      "serpapi",
		Origin:        req.Origin,
		Destination:   req.Destination,
		DepartureDate: departure,
		Price:         best,
		Currency:      "USD",
		CollectedAt:   time.Now().UTC(),
	}, nil
}

func (p *SerpAPIProvider) fetchWithRetry(ctx context.Context, client *http.Client, endpoint string, out *serpResponse) error {
	attempts := p.resolvedRetries() + 1
	for attempt := 0; attempt < attempts; attempt++ {
		err := p.fetchOnce(ctx, client, endpoint, out)
		if err == nil {
			return nil
		}
		if !isRetryable(err) || attempt == attempts-1 {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.retryDelay(attempt)):
		}
	}
	return fmt.Errorf("%w: exhausted retries", ErrTransient)
}

func (p *SerpAPIProvider) fetchOnce(ctx context.Context, client *http.Client, endpoint string, out *serpResponse) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request failed: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		if isNetworkTransient(err) {
			return fmt.Errorf("%w: %v", ErrTransient, err)
		}
		return fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		msg := strings.TrimSpace(string(body))
		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return fmt.Errorf("%w: serpapi request failed: %s: %s", ErrAuthRequired, resp.Status, msg)
		case resp.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: serpapi request failed: %s: %s", ErrRateLimited, resp.Status, msg)
		case resp.StatusCode >= 500:
			return fmt.Errorf("%w: serpapi request failed: %s: %s", ErrTransient, resp.Status, msg)
		default:
			return fmt.Errorf("serpapi request failed: %s: %s", resp.Status, msg)
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode serpapi response: %w", err)
	}
	return nil
}

func isRetryable(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrRateLimited)
}

func isNetworkTransient(err error) bool {
	if errors.Is(err, io.EOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func (p *SerpAPIProvider) resolvedTimeout() time.Duration {
	if p.Timeout > 0 {
		return p.Timeout
	}
	return 20 * time.Second
}

func (p *SerpAPIProvider) resolvedRetries() int {
	if p.Retries < 0 {
		return 0
	}
	return p.Retries
}

func (p *SerpAPIProvider) retryDelay(attempt int) time.Duration {
	base := p.Backoff
	if base <= 0 {
		base = 400 * time.Millisecond
	}
	if attempt > 5 {
		attempt = 5
	}
	return base * time.Duration(1<<attempt)
}

func (p *SerpAPIProvider) baseURL() string {
	if p.BaseURL != "" {
		return strings.TrimRight(p.BaseURL, "/")
	}
	return SerpAPIBaseURL
}

func buildSerpURL(baseURL, origin, destination, departure, apiKey string) string {
	v := url.Values{}
	v.Set("engine", "google_flights")
	v.Set("api_key", apiKey)
	v.Set("departure_id", strings.ToUpper(strings.TrimSpace(origin)))
	v.Set("arrival_id", strings.ToUpper(strings.TrimSpace(destination)))
	v.Set("outbound_date", departure)
	v.Set("type", "2") // one way
	v.Set("currency", "USD")
	return baseURL + "/search.json?" + v.Encode()
}
