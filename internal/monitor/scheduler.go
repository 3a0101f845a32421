// Package monitor owns the registry of fare monitors and drives their
// periodic re-evaluation.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wadatrip/farewatch/internal/clock"
	"github.com/wadatrip/farewatch/internal/store"
)

// ErrMonitorNotFound is returned by GetMonitor for unknown or cancelled ids.
var ErrMonitorNotFound = errors.New("monitor not found")

const (
	// DefaultMinInterval is the shortest delay between scheduled checks.
	DefaultMinInterval = time.Hour
	// DefaultSideEffectTimeout bounds each notification or persistence call.
	DefaultSideEffectTimeout = 10 * time.Second
)

// MaxWaitHours is the longest wait a time.Duration can represent.
const MaxWaitHours = float64(math.MaxInt64) / float64(time.Hour)

// Estimator produces fare advice for a request.
type Estimator interface {
	Estimate(req store.QuoteRequest) store.PriceAdvice
}

// Notifier delivers a message to a monitor's contact. Best-effort.
type Notifier interface {
	Notify(ctx context.Context, contact store.Contact, title, body string, meta map[string]any) error
}

// Recorder persists monitor events and the latest monitor record. Best-effort.
type Recorder interface {
	RecordMonitorEvent(ctx context.Context, monitorID string, fields store.Fields) error
	UpdateMonitorRecord(ctx context.Context, monitorID string, fields store.Fields) error
}

// QuoteProvider optionally supplies an observed fare. ok is false when no
// quote is available.
type QuoteProvider interface {
	BestPrice(ctx context.Context, req store.QuoteRequest) (price int, ok bool)
}

// SignalDetector flags notable route price moves.
type SignalDetector interface {
	Observe(route store.Route, price int) (store.Signal, bool)
}

// Observer receives check and lifecycle notifications, typically for metrics.
type Observer interface {
	CheckCompleted(m store.Monitor, advice store.PriceAdvice, price int)
	StatusChanged(m store.Monitor)
	SideEffectFailed(kind string)
	SignalDetected(sig store.Signal)
}

// Params describes a new monitor.
type Params struct {
	Route         store.Route
	DepartureDate *time.Time
	Budget        float64
	MaxWaitHours  float64
	Contact       store.Contact
}

type entry struct {
	monitor  store.Monitor
	timer    clock.Timer
	timerSeq uint64
}

// Scheduler is an instance-owned registry of monitors. Each active monitor
// has at most one pending check at a time.
type Scheduler struct {
	estimator         Estimator
	clock             clock.Clock
	logger            *slog.Logger
	notifier          Notifier
	recorder          Recorder
	quotes            QuoteProvider
	detector          SignalDetector
	observer          Observer
	minInterval       time.Duration
	sideEffectTimeout time.Duration
	newID             func() string

	mu       sync.Mutex
	monitors map[string]*entry
	order    []string
	closed   bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

func WithClock(c clock.Clock) Option           { return func(s *Scheduler) { s.clock = c } }
func WithLogger(l *slog.Logger) Option         { return func(s *Scheduler) { s.logger = l } }
func WithNotifier(n Notifier) Option           { return func(s *Scheduler) { s.notifier = n } }
func WithRecorder(r Recorder) Option           { return func(s *Scheduler) { s.recorder = r } }
func WithQuoteProvider(q QuoteProvider) Option { return func(s *Scheduler) { s.quotes = q } }
func WithDetector(d SignalDetector) Option     { return func(s *Scheduler) { s.detector = d } }
func WithObserver(o Observer) Option           { return func(s *Scheduler) { s.observer = o } }
func WithIDGenerator(f func() string) Option   { return func(s *Scheduler) { s.newID = f } }

// WithMinInterval sets the shortest delay between scheduled checks.
func WithMinInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.minInterval = d
		}
	}
}

// WithSideEffectTimeout bounds each notification and persistence call.
func WithSideEffectTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.sideEffectTimeout = d
		}
	}
}

// NewScheduler creates a Scheduler that estimates fares with est.
func NewScheduler(est Estimator, opts ...Option) *Scheduler {
	s := &Scheduler{
		estimator:         est,
		clock:             clock.Real(),
		logger:            slog.Default(),
		minInterval:       DefaultMinInterval,
		sideEffectTimeout: DefaultSideEffectTimeout,
		newID:             uuid.NewString,
		monitors:          make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateMonitor registers an active monitor, runs its first check
// synchronously and returns its id.
func (s *Scheduler) CreateMonitor(ctx context.Context, p Params) string {
	now := s.clock.Now()
	m := store.Monitor{
		ID:            s.newID(),
		Route:         p.Route,
		DepartureDate: p.DepartureDate,
		Budget:        p.Budget,
		MaxWaitHours:  p.MaxWaitHours,
		Contact:       p.Contact,
		Status:        store.StatusActive,
		CreatedAt:     now,
		ExpiresAt:     now.Add(hours(p.MaxWaitHours)),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.logger.Warn("monitor_rejected", "route", p.Route.Key(), "reason", "scheduler closed")
		return ""
	}
	s.monitors[m.ID] = &entry{monitor: m}
	s.order = append(s.order, m.ID)
	s.mu.Unlock()

	s.logger.Info("monitor_created",
		"monitor_id", m.ID,
		"route", m.Route.Key(),
		"budget", m.Budget,
		"expires_at", m.ExpiresAt,
	)
	s.recordEvent(ctx, m, "created", store.Fields{
		"budget":         m.Budget,
		"max_wait_hours": m.MaxWaitHours,
		"expires_at":     m.ExpiresAt,
	})
	s.updateRecord(ctx, m)
	s.notifyObserver(func(o Observer) { o.StatusChanged(m) })

	s.CheckNow(ctx, m.ID)
	return m.ID
}

// CheckNow evaluates a monitor immediately. Unknown or terminal monitors are
// ignored. A pending scheduled check for the monitor is cancelled first.
func (s *Scheduler) CheckNow(ctx context.Context, id string) {
	s.mu.Lock()
	e, ok := s.monitors[id]
	if !ok || s.closed || e.monitor.Status != store.StatusActive {
		s.mu.Unlock()
		return
	}
	s.stopTimerLocked(e)

	if !s.clock.Now().Before(e.monitor.ExpiresAt) {
		s.setStatusLocked(e, store.StatusExpired)
		m := e.monitor
		s.mu.Unlock()
		s.onExpired(ctx, m)
		return
	}
	req := e.monitor.QuoteRequest()
	s.mu.Unlock()

	advice := s.estimator.Estimate(req)
	price := advice.PredictedPrice
	var observed *int
	if s.quotes != nil {
		if p, ok := s.quotes.BestPrice(ctx, req); ok {
			observed = &p
			price = p
		}
	}

	s.mu.Lock()
	e, ok = s.monitors[id]
	if !ok || e.monitor.Status != store.StatusActive {
		s.mu.Unlock()
		s.logger.Debug("check_discarded", "monitor_id", id, "reason", "no longer active")
		return
	}

	checkedAt := s.clock.Now()
	m := &e.monitor
	m.ChecksCount++
	m.LastCheckAt = &checkedAt
	m.LastAdvice = &advice
	m.LastObservedPrice = observed
	if m.BestPriceSeen == nil || price < *m.BestPriceSeen {
		best := price
		m.BestPriceSeen = &best
	}

	completed := float64(price) <= m.Budget
	var next time.Duration
	if completed {
		s.setStatusLocked(e, store.StatusCompleted)
	} else {
		next = s.nextDelay(advice)
		s.scheduleLocked(e, next)
	}
	snapshot := *m
	s.mu.Unlock()

	s.logger.Info("monitor_checked",
		"monitor_id", id,
		"route", snapshot.Route.Key(),
		"predicted_price", advice.PredictedPrice,
		"price", price,
		"budget", snapshot.Budget,
		"recommendation", advice.Recommendation,
		"checks", snapshot.ChecksCount,
	)
	s.notifyObserver(func(o Observer) { o.CheckCompleted(snapshot, advice, price) })

	checkFields := store.Fields{
		"predicted_price": advice.PredictedPrice,
		"lower_bound":     advice.LowerBound,
		"upper_bound":     advice.UpperBound,
		"confidence":      advice.Confidence,
		"recommendation":  string(advice.Recommendation),
		"price":           price,
		"checks_count":    snapshot.ChecksCount,
	}
	if observed != nil {
		checkFields["observed_price"] = *observed
	}
	if !completed {
		checkFields["next_check_at"] = checkedAt.Add(next)
	}
	s.recordEvent(ctx, snapshot, "checked", checkFields)
	s.detectSignal(ctx, snapshot, price)

	if completed {
		s.onCompleted(ctx, snapshot, price)
		return
	}
	s.updateRecord(ctx, snapshot)
}

// CancelMonitor stops an active monitor and removes it from the registry.
// It returns false when the monitor is unknown or already terminal.
func (s *Scheduler) CancelMonitor(ctx context.Context, id string) bool {
	s.mu.Lock()
	e, ok := s.monitors[id]
	if !ok || e.monitor.Status != store.StatusActive {
		s.mu.Unlock()
		return false
	}
	s.setStatusLocked(e, store.StatusCancelled)
	delete(s.monitors, id)
	s.removeFromOrderLocked(id)
	m := e.monitor
	s.mu.Unlock()

	s.logger.Info("monitor_cancelled", "monitor_id", id, "route", m.Route.Key())
	s.notifyObserver(func(o Observer) { o.StatusChanged(m) })
	s.recordEvent(ctx, m, "cancelled", nil)
	s.updateRecord(ctx, m)
	return true
}

// ListActiveMonitors returns copies of all active monitors in creation order.
func (s *Scheduler) ListActiveMonitors() []store.Monitor {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]store.Monitor, 0, len(s.order))
	for _, id := range s.order {
		if e := s.monitors[id]; e != nil && e.monitor.Status == store.StatusActive {
			out = append(out, e.monitor.Clone())
		}
	}
	return out
}

// GetMonitor returns a copy of the monitor or ErrMonitorNotFound.
func (s *Scheduler) GetMonitor(id string) (store.Monitor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.monitors[id]
	if !ok {
		return store.Monitor{}, ErrMonitorNotFound
	}
	return e.monitor.Clone(), nil
}

// Close stops every pending check. Monitors keep their current status;
// later CheckNow and CreateMonitor calls do nothing.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for _, e := range s.monitors {
		s.stopTimerLocked(e)
	}
	s.logger.Info("scheduler_closed", "monitors", len(s.monitors))
}

// nextDelay converts the advice's check hint into a delay, never below minInterval.
func (s *Scheduler) nextDelay(advice store.PriceAdvice) time.Duration {
	d := time.Duration(advice.NextCheckHours) * time.Hour
	if d < s.minInterval {
		d = s.minInterval
	}
	return d
}

// scheduleLocked replaces any pending check with one after d.
// Must be called with lock held.
func (s *Scheduler) scheduleLocked(e *entry, d time.Duration) {
	s.stopTimerLocked(e)
	if s.closed {
		return
	}
	e.timerSeq++
	seq, id := e.timerSeq, e.monitor.ID
	e.timer = s.clock.AfterFunc(d, func() { s.fire(id, seq) })
}

// fire runs a scheduled check unless it was superseded after the timer fired.
func (s *Scheduler) fire(id string, seq uint64) {
	s.mu.Lock()
	e, ok := s.monitors[id]
	if !ok || e.timerSeq != seq || e.timer == nil {
		s.mu.Unlock()
		return
	}
	e.timer = nil
	s.mu.Unlock()

	s.CheckNow(context.Background(), id)
}

// stopTimerLocked cancels the pending check, if any.
// Must be called with lock held.
func (s *Scheduler) stopTimerLocked(e *entry) {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

// setStatusLocked moves an active monitor into a terminal status.
// Must be called with lock held.
func (s *Scheduler) setStatusLocked(e *entry, status store.Status) {
	if e.monitor.Status != store.StatusActive {
		return
	}
	e.monitor.Status = status
	s.stopTimerLocked(e)
}

// removeFromOrderLocked must be called with lock held.
func (s *Scheduler) removeFromOrderLocked(id string) {
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

// hours converts h to a Duration, saturating at the largest representable value.
func hours(h float64) time.Duration {
	if h >= MaxWaitHours {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(h * float64(time.Hour))
}
