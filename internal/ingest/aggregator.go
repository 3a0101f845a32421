package ingest

import (
	"context"
	"log/slog"
	"sync"

	"github.com/wadatrip/farewatch/internal/store"
)

// PriceSource answers best-price queries. ok is false when it has no price.
type PriceSource interface {
	BestPrice(ctx context.Context, req store.QuoteRequest) (int, bool)
}

// Aggregator queries every source concurrently and returns the lowest price.
// Sources without a price are ignored.
type Aggregator struct {
	sources []PriceSource
}

// NewAggregator creates an Aggregator over sources.
func NewAggregator(sources ...PriceSource) *Aggregator {
	return &Aggregator{sources: sources}
}

func (a *Aggregator) BestPrice(ctx context.Context, req store.QuoteRequest) (int, bool) {
	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		best  int
		found bool
	)

	for _, src := range a.sources {
		wg.Add(1)
		go func(src PriceSource) {
			defer wg.Done()
			price, ok := src.BestPrice(ctx, req)
			if !ok || price <= 0 {
				return
			}
			mu.Lock()
			if !found || price < best {
				best, found = price, true
			}
			mu.Unlock()
		}(src)
	}
	wg.Wait()

	return best, found
}

// SearchSource adapts a Searcher to PriceSource. Search failures are logged
// and reported as no price.
type SearchSource struct {
	Searcher Searcher
	// OnQuote, if set, receives every successful search result.
	OnQuote func(store.Quote)
}

func (s SearchSource) BestPrice(ctx context.Context, req store.QuoteRequest) (int, bool) {
	q, err := s.Searcher.Search(ctx, req)
	if err != nil {
		slog.Debug("provider_search_failed", "route", req.Route().Key(), "error", err)
		return 0, false
	}
	if s.OnQuote != nil {
		s.OnQuote(q)
	}
	return q.Price, true
}
