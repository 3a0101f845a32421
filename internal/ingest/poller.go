package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/wadatrip/farewatch/internal/store"
)

// DefaultPollInterval is the default time between provider sweeps.
const DefaultPollInterval = 30 * time.Minute

// Searcher looks up the cheapest current fare for a request.
type Searcher interface {
	Search(ctx context.Context, req store.QuoteRequest) (store.Quote, error)
}

// QuotePoller periodically searches fares for the routes currently being
// watched and pushes the results onto the quote channel.
type QuotePoller struct {
	searcher  Searcher
	interval  time.Duration
	requests  func() []store.QuoteRequest
	quoteChan chan<- store.Quote
}

// NewQuotePoller creates a new QuotePoller. requests is called before each
// sweep to get the current set of searches.
func NewQuotePoller(searcher Searcher, interval time.Duration, requests func() []store.QuoteRequest, quoteChan chan<- store.Quote) *QuotePoller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &QuotePoller{
		searcher:  searcher,
		interval:  interval,
		requests:  requests,
		quoteChan: quoteChan,
	}
}

// Start polls until ctx is cancelled.
func (p *QuotePoller) Start(ctx context.Context) {
	slog.Info("starting_quote_poller", "interval", p.interval)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("quote_poller_stopped")
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

// poll runs one sweep, searching each distinct route and date once.
func (p *QuotePoller) poll(ctx context.Context) {
	seen := make(map[string]bool)
	fetched := 0

	for _, req := range p.requests() {
		if req.DepartureDate == nil {
			continue
		}
		key := bookKey(req.Route(), req.DepartureDate.Format("2006-01-02"))
		if seen[key] {
			continue
		}
		seen[key] = true

		q, err := p.searcher.Search(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Debug("poll_failed", "route", req.Route().Key(), "error", err)
			continue
		}
		fetched++

		select {
		case p.quoteChan <- q:
		default:
			slog.Warn("quote_channel_full_api", "dropped_route", q.Route().Key())
		}
	}

	if fetched > 0 {
		slog.Debug("quotes_fetched", "count", fetched)
	}
}
