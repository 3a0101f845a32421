package ingest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/wadatrip/farewatch/internal/store"
)

// DefaultQuoteMaxAge is how long an observed quote stays usable.
const DefaultQuoteMaxAge = 30 * time.Minute

// QuoteBook keeps the latest quote per route and departure date. Quotes older
// than maxAge are ignored.
type QuoteBook struct {
	maxAge time.Duration
	now    func() time.Time

	mu     sync.RWMutex
	quotes map[string]store.Quote
	total  int
}

// NewQuoteBook creates an empty QuoteBook.
func NewQuoteBook(maxAge time.Duration, now func() time.Time) *QuoteBook {
	if maxAge <= 0 {
		maxAge = DefaultQuoteMaxAge
	}
	if now == nil {
		now = time.Now
	}
	return &QuoteBook{
		maxAge: maxAge,
		now:    now,
		quotes: make(map[string]store.Quote),
	}
}

func bookKey(route store.Route, departureDate string) string {
	return strings.ToUpper(route.Key()) + "|" + departureDate
}

// Add stores q as the latest observation for its route and date.
func (b *QuoteBook) Add(q store.Quote) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q.DepartureDate = normalizeDate(q.DepartureDate)
	b.quotes[bookKey(q.Route(), q.DepartureDate)] = q
	b.total++
}

// BestPrice returns the freshest quote for the request's route and date,
// falling back to a date-less quote for the route.
func (b *QuoteBook) BestPrice(_ context.Context, req store.QuoteRequest) (int, bool) {
	keys := []string{bookKey(req.Route(), "")}
	if req.DepartureDate != nil {
		keys = append([]string{bookKey(req.Route(), req.DepartureDate.Format("2006-01-02"))}, keys...)
	}

	now := b.now()
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, key := range keys {
		q, ok := b.quotes[key]
		if ok && now.Sub(q.CollectedAt) <= b.maxAge {
			return q.Price, true
		}
	}
	return 0, false
}

// Run stores every quote read from in until it is closed or ctx is done.
// onQuote, if set, is called after each quote is stored.
func (b *QuoteBook) Run(ctx context.Context, in <-chan store.Quote, onQuote func(store.Quote)) {
	for {
		select {
		case <-ctx.Done():
			return
		case q, ok := <-in:
			if !ok {
				return
			}
			b.Add(q)
			if onQuote != nil {
				onQuote(q)
			}
		}
	}
}

// Prune drops stale quotes and returns how many were removed.
func (b *QuoteBook) Prune() int {
	now := b.now()
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	for key, q := range b.quotes {
		if now.Sub(q.CollectedAt) > b.maxAge {
			delete(b.quotes, key)
			removed++
		}
	}
	return removed
}

// Snapshot returns fresh quotes, most recent first.
func (b *QuoteBook) Snapshot() []store.Quote {
	now := b.now()
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]store.Quote, 0, len(b.quotes))
	for _, q := range b.quotes {
		if now.Sub(q.CollectedAt) <= b.maxAge {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CollectedAt.After(out[j].CollectedAt)
	})
	return out
}

// Total returns how many quotes have been added since creation.
func (b *QuoteBook) Total() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.total
}
