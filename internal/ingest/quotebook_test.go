package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wadatrip/farewatch/internal/store"
)

func TestQuoteBookFreshness(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	book := NewQuoteBook(30*time.Minute, func() time.Time { return now })
	dep := time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)
	req := store.QuoteRequest{Origin: "mad", Destination: "nrt", DepartureDate: &dep}

	if _, ok := book.BestPrice(context.Background(), req); ok {
		t.Fatal("expected no price from empty book")
	}

	book.Add(store.Quote{Origin: "MAD", Destination: "NRT", Price: 700, CollectedAt: now.Add(-10 * time.Minute)})
	if p, ok := book.BestPrice(context.Background(), req); !ok || p != 700 {
		t.Fatalf("expected route-wide quote 700, got %d/%v", p, ok)
	}

	// Test Case 2: A dated quote wins over the route-wide one
	book.Add(store.Quote{Origin: "MAD", Destination: "NRT", DepartureDate: "2026-04-10", Price: 640, CollectedAt: now})
	if p, _ := book.BestPrice(context.Background(), req); p != 640 {
		t.Errorf("expected dated quote 640, got %d", p)
	}

	// Test Case 3: Stale quotes are ignored and pruned
	now = now.Add(time.Hour)
	if _, ok := book.BestPrice(context.Background(), req); ok {
		t.Error("expected stale quotes to be ignored")
	}
	if removed := book.Prune(); removed != 2 {
		t.Errorf("expected 2 pruned, got %d", removed)
	}
	if book.Total() != 2 {
		t.Errorf("expected total 2, got %d", book.Total())
	}
}

func TestQuoteBookRun(t *testing.T) {
	book := NewQuoteBook(time.Hour, nil)
	in := make(chan store.Quote, 2)
	in <- store.Quote{Origin: "SCL", Destination: "JFK", Price: 480, CollectedAt: time.Now()}
	in <- store.Quote{Origin: "LIM", Destination: "MIA", Price: 300, CollectedAt: time.Now()}
	close(in)

	seen := 0
	book.Run(context.Background(), in, func(store.Quote) { seen++ })

	if seen != 2 || len(book.Snapshot()) != 2 {
		t.Errorf("expected two quotes stored, got %d/%d", seen, len(book.Snapshot()))
	}
}

type staticSource struct {
	price int
	ok    bool
}

func (s staticSource) BestPrice(context.Context, store.QuoteRequest) (int, bool) {
	return s.price, s.ok
}

type stubSearcher struct {
	quote store.Quote
	err   error
}

func (s stubSearcher) Search(context.Context, store.QuoteRequest) (store.Quote, error) {
	return s.quote, s.err
}

func TestAggregatorReturnsMinimum(t *testing.T) {
	var captured []store.Quote
	agg := NewAggregator(
		staticSource{price: 520, ok: true},
		staticSource{ok: false},
		SearchSource{Searcher: stubSearcher{err: errors.New("boom")}},
		SearchSource{
			Searcher: stubSearcher{quote: store.Quote{Origin: "MAD", Destination: "NRT", Price: 480}},
			OnQuote:  func(q store.Quote) { captured = append(captured, q) },
		},
	)

	price, ok := agg.BestPrice(context.Background(), store.QuoteRequest{Origin: "MAD", Destination: "NRT"})
	if !ok || price != 480 {
		t.Fatalf("expected min 480, got %d/%v", price, ok)
	}
	if len(captured) != 1 {
		t.Errorf("expected search result forwarded, got %d", len(captured))
	}

	// Test Case 2: Nothing available
	empty := NewAggregator(staticSource{ok: false})
	if _, ok := empty.BestPrice(context.Background(), store.QuoteRequest{}); ok {
		t.Error("expected no price")
	}
}

func TestRouteKeys(t *testing.T) {
	monitors := []store.Monitor{
		{Route: store.Route{Origin: "SCL", Destination: "JFK"}},
		{Route: store.Route{Origin: "MAD", Destination: "NRT"}},
		{Route: store.Route{Origin: "SCL", Destination: "JFK"}},
		{Route: store.Route{Origin: "", Destination: "JFK"}},
	}
	keys := RouteKeys(monitors)
	if len(keys) != 2 || keys[0] != "MAD-NRT" || keys[1] != "SCL-JFK" {
		t.Errorf("unexpected keys %v", keys)
	}
}

func TestQuotePollerDedupesSearches(t *testing.T) {
	dep := time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)
	reqs := []store.QuoteRequest{
		{Origin: "MAD", Destination: "NRT", DepartureDate: &dep},
		{Origin: "MAD", Destination: "NRT", DepartureDate: &dep},
		{Origin: "SCL", Destination: "JFK"},
	}
	out := make(chan store.Quote, 4)
	searcher := &countingSearcher{}
	p := NewQuotePoller(searcher, time.Hour, func() []store.QuoteRequest { return reqs }, out)

	p.poll(context.Background())

	if searcher.calls != 1 {
		t.Errorf("expected one search, got %d", searcher.calls)
	}
	if len(out) != 1 {
		t.Errorf("expected one quote pushed, got %d", len(out))
	}
}

type countingSearcher struct{ calls int }

func (c *countingSearcher) Search(_ context.Context, req store.QuoteRequest) (store.Quote, error) {
	c.calls++
	return store.Quote{Origin: req.Origin, Destination: req.Destination, Price: 500}, nil
}
