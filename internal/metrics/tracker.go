// Package metrics provides real-time metrics tracking for the system.
package metrics

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/wadatrip/farewatch/internal/store"
)

// PricePoint represents a price at a specific time.
type PricePoint struct {
	Price     int
	Timestamp time.Time
}

// RouteActivity tracks checks and quotes for a single route.
type RouteActivity struct {
	Route       store.Route
	CheckCount  int
	QuoteCount  int
	LastPrice   int
	PricePoints []PricePoint
	LastUpdate  time.Time
}

// MetricsSnapshot is a point-in-time view of metrics.
type MetricsSnapshot struct {
	ChecksTotal        int64
	QuotesTotal        int64
	ActiveMonitors     int64
	TransitionsByState map[store.Status]int64
	SideEffectFailures map[string]int64
	SignalsByType      map[string]int64
	QuoteRate          float64 // quotes per minute
	RouteActivities    map[string]*RouteActivity
	TopMovers          []MoverStats
	Uptime             time.Duration
	WebSocketStatus    string
	LastProviderPoll   time.Time
	ChannelBufferUsed  int
	ChannelBufferCap   int
}

// MoverStats represents a route with a significant price change.
type MoverStats struct {
	Route        store.Route
	PriceChange  float64 // percentage
	CheckCount   int
	QuoteCount   int
	CurrentPrice int
}

// MetricsTracker provides thread-safe metrics tracking. It also feeds the
// Prometheus collectors.
type MetricsTracker struct {
	mu                 sync.RWMutex
	now                func() time.Time
	checksTotal        int64
	quotesTotal        int64
	activeMonitors     int64
	transitions        map[store.Status]int64
	sideEffectFailures map[string]int64
	signalsByType      map[string]int64
	routeActivity      map[string]*RouteActivity
	startTime          time.Time
	quoteTimestamps    []time.Time // for rate calculation
	wsStatus           string
	lastProviderPoll   time.Time
	channelBufferUsed  int
	channelBufferCap   int
}

// NewMetricsTracker creates a new MetricsTracker.
func NewMetricsTracker() *MetricsTracker {
	return newTracker(time.Now)
}

func newTracker(now func() time.Time) *MetricsTracker {
	return &MetricsTracker{
		now:                now,
		transitions:        make(map[store.Status]int64),
		sideEffectFailures: make(map[string]int64),
		signalsByType:      make(map[string]int64),
		routeActivity:      make(map[string]*RouteActivity),
		startTime:          now(),
		quoteTimestamps:    make([]time.Time, 0, 1000),
		wsStatus:           "disabled",
	}
}

// CheckCompleted records one finished monitor check and its effective price.
func (m *MetricsTracker) CheckCompleted(mon store.Monitor, _ store.PriceAdvice, price int) {
	monitorChecks.Inc()
	checkPrices.Observe(float64(price))

	m.mu.Lock()
	defer m.mu.Unlock()

	m.checksTotal++
	activity := m.activityLocked(mon.Route)
	activity.CheckCount++
	m.recordPriceLocked(activity, price)
}

// StatusChanged counts a monitor entering a status.
func (m *MetricsTracker) StatusChanged(mon store.Monitor) {
	monitorTransitions.WithLabelValues(string(mon.Status)).Inc()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.transitions[mon.Status]++
	if mon.Status == store.StatusActive {
		m.activeMonitors++
	} else if mon.Status.Terminal() && m.activeMonitors > 0 {
		m.activeMonitors--
	}
	activeMonitors.Set(float64(m.activeMonitors))
}

// SideEffectFailed counts a failed notification or persistence call.
func (m *MetricsTracker) SideEffectFailed(kind string) {
	sideEffectFailures.WithLabelValues(kind).Inc()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sideEffectFailures[kind]++
}

// SignalDetected increments the counter for a specific signal type.
func (m *MetricsTracker) SignalDetected(sig store.Signal) {
	priceSignals.WithLabelValues(sig.Type).Inc()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.signalsByType[sig.Type]++
}

// RecordQuote records an observed fare.
func (m *MetricsTracker) RecordQuote(q store.Quote) {
	quotesReceived.WithLabelValues(q.Provider).Inc()

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.quotesTotal++
	m.quoteTimestamps = append(m.quoteTimestamps, now)

	// Keep only the last 60 seconds of timestamps
	cutoff := now.Add(-60 * time.Second)
	validIdx := 0
	for validIdx < len(m.quoteTimestamps) && !m.quoteTimestamps[validIdx].After(cutoff) {
		validIdx++
	}
	m.quoteTimestamps = m.quoteTimestamps[validIdx:]

	activity := m.activityLocked(q.Route())
	activity.QuoteCount++
	m.recordPriceLocked(activity, q.Price)
}

// activityLocked must be called with lock held.
func (m *MetricsTracker) activityLocked(route store.Route) *RouteActivity {
	key := route.Key()
	activity, exists := m.routeActivity[key]
	if !exists {
		activity = &RouteActivity{
			Route:       route,
			PricePoints: make([]PricePoint, 0, 16),
		}
		m.routeActivity[key] = activity
	}
	return activity
}

// recordPriceLocked keeps 24 hours of price points. Must be called with lock held.
func (m *MetricsTracker) recordPriceLocked(activity *RouteActivity, price int) {
	now := m.now()
	activity.LastPrice = price
	activity.LastUpdate = now
	activity.PricePoints = append(activity.PricePoints, PricePoint{Price: price, Timestamp: now})

	cutoff := now.Add(-24 * time.Hour)
	validIdx := 0
	for validIdx < len(activity.PricePoints)-1 && activity.PricePoints[validIdx].Timestamp.Before(cutoff) {
		validIdx++
	}
	activity.PricePoints = activity.PricePoints[validIdx:]
}

// SetWebSocketStatus sets the quote feed connection status.
func (m *MetricsTracker) SetWebSocketStatus(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wsStatus = status
}

// SetLastProviderPoll sets the last fare provider sweep time.
func (m *MetricsTracker) SetLastProviderPoll(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastProviderPoll = t
}

// SetChannelBuffer sets the quote channel buffer usage.
func (m *MetricsTracker) SetChannelBuffer(used, capacity int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channelBufferUsed = used
	m.channelBufferCap = capacity
}

// Snapshot returns a point-in-time snapshot of metrics.
func (m *MetricsTracker) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()
	quoteRate := 0.0
	if len(m.quoteTimestamps) > 0 {
		elapsed := now.Sub(m.quoteTimestamps[0]).Minutes()
		if elapsed < 1 {
			elapsed = 1
		}
		quoteRate = float64(len(m.quoteTimestamps)) / elapsed
	}

	transitions := make(map[store.Status]int64, len(m.transitions))
	for k, v := range m.transitions {
		transitions[k] = v
	}
	failures := make(map[string]int64, len(m.sideEffectFailures))
	for k, v := range m.sideEffectFailures {
		failures[k] = v
	}
	signals := make(map[string]int64, len(m.signalsByType))
	for k, v := range m.signalsByType {
		signals[k] = v
	}
	activities := make(map[string]*RouteActivity, len(m.routeActivity))
	for k, v := range m.routeActivity {
		activityCopy := *v
		activityCopy.PricePoints = append([]PricePoint(nil), v.PricePoints...)
		activities[k] = &activityCopy
	}

	return MetricsSnapshot{
		ChecksTotal:        m.checksTotal,
		QuotesTotal:        m.quotesTotal,
		ActiveMonitors:     m.activeMonitors,
		TransitionsByState: transitions,
		SideEffectFailures: failures,
		SignalsByType:      signals,
		QuoteRate:          quoteRate,
		RouteActivities:    activities,
		TopMovers:          m.calculateTopMovers(),
		Uptime:             now.Sub(m.startTime),
		WebSocketStatus:    m.wsStatus,
		LastProviderPoll:   m.lastProviderPoll,
		ChannelBufferUsed:  m.channelBufferUsed,
		ChannelBufferCap:   m.channelBufferCap,
	}
}

// calculateTopMovers finds routes with the largest price changes, largest
// absolute change first. Must be called with lock held.
func (m *MetricsTracker) calculateTopMovers() []MoverStats {
	movers := make([]MoverStats, 0, len(m.routeActivity))

	for _, activity := range m.routeActivity {
		if len(activity.PricePoints) < 2 {
			continue
		}

		firstPrice := activity.PricePoints[0].Price
		lastPrice := activity.PricePoints[len(activity.PricePoints)-1].Price
		if firstPrice == 0 {
			continue
		}

		movers = append(movers, MoverStats{
			Route:        activity.Route,
			PriceChange:  float64(lastPrice-firstPrice) / float64(firstPrice) * 100,
			CheckCount:   activity.CheckCount,
			QuoteCount:   activity.QuoteCount,
			CurrentPrice: lastPrice,
		})
	}

	sort.Slice(movers, func(i, j int) bool {
		ai, aj := math.Abs(movers[i].PriceChange), math.Abs(movers[j].PriceChange)
		if ai != aj {
			return ai > aj
		}
		return movers[i].Route.Key() < movers[j].Route.Key()
	})
	return movers
}

// Cleanup removes routes with no activity in the last 24 hours.
func (m *MetricsTracker) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-24 * time.Hour)
	for key, activity := range m.routeActivity {
		if activity.LastUpdate.Before(cutoff) {
			delete(m.routeActivity, key)
		}
	}
}
