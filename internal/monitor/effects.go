package monitor

import (
	"context"
	"fmt"

	"github.com/wadatrip/farewatch/internal/store"
)

// Side effects run outside the registry lock. Failures are logged and
// counted but never change monitor state.

func (s *Scheduler) onCompleted(ctx context.Context, m store.Monitor, price int) {
	s.logger.Info("monitor_completed",
		"monitor_id", m.ID,
		"route", m.Route.Key(),
		"price", price,
		"budget", m.Budget,
	)
	s.notifyObserver(func(o Observer) { o.StatusChanged(m) })

	s.notify(ctx, m, store.AlertPriceFound, "Price alert",
		fmt.Sprintf("We found a flight from %s to %s for $%d.", m.Route.Origin, m.Route.Destination, price),
		price)
	s.recordEvent(ctx, m, "completed", store.Fields{"price": price})
	s.updateRecord(ctx, m)
}

func (s *Scheduler) onExpired(ctx context.Context, m store.Monitor) {
	best := "N/A"
	price := 0
	if m.BestPriceSeen != nil {
		price = *m.BestPriceSeen
		best = fmt.Sprintf("$%d", price)
	}

	s.logger.Info("monitor_expired",
		"monitor_id", m.ID,
		"route", m.Route.Key(),
		"best_price", best,
		"checks", m.ChecksCount,
	)
	s.notifyObserver(func(o Observer) { o.StatusChanged(m) })

	s.notify(ctx, m, store.AlertExpired, "Price alert expired",
		fmt.Sprintf("Your alert for %s to %s has expired. Best price found: %s.", m.Route.Origin, m.Route.Destination, best),
		price)
	fields := store.Fields{"checks_count": m.ChecksCount}
	if m.BestPriceSeen != nil {
		fields["best_price"] = *m.BestPriceSeen
	}
	s.recordEvent(ctx, m, "expired", fields)
	s.updateRecord(ctx, m)
}

func (s *Scheduler) notify(ctx context.Context, m store.Monitor, kind, title, body string, price int) {
	if s.notifier == nil {
		return
	}
	ctx, cancel := s.effectContext(ctx)
	defer cancel()

	meta := map[string]any{
		"monitor_id":  m.ID,
		"kind":        kind,
		"origin":      m.Route.Origin,
		"destination": m.Route.Destination,
		"price":       price,
	}
	if err := s.notifier.Notify(ctx, m.Contact, title, body, meta); err != nil {
		s.logger.Warn("notify_failed", "monitor_id", m.ID, "kind", kind, "error", err)
		s.notifyObserver(func(o Observer) { o.SideEffectFailed("notify") })
	}
}

func (s *Scheduler) recordEvent(ctx context.Context, m store.Monitor, event string, extra store.Fields) {
	if s.recorder == nil {
		return
	}
	ctx, cancel := s.effectContext(ctx)
	defer cancel()

	fields := store.Fields{
		"event":       event,
		"monitor_id":  m.ID,
		"origin":      m.Route.Origin,
		"destination": m.Route.Destination,
		"status":      string(m.Status),
		"at":          s.clock.Now(),
	}
	for k, v := range extra {
		fields[k] = v
	}
	if err := s.recorder.RecordMonitorEvent(ctx, m.ID, fields); err != nil {
		s.logger.Warn("persist_failed", "monitor_id", m.ID, "event", event, "error", err)
		s.notifyObserver(func(o Observer) { o.SideEffectFailed("persist") })
	}
}

func (s *Scheduler) updateRecord(ctx context.Context, m store.Monitor) {
	if s.recorder == nil {
		return
	}
	ctx, cancel := s.effectContext(ctx)
	defer cancel()

	fields := store.Fields{
		"origin":         m.Route.Origin,
		"destination":    m.Route.Destination,
		"budget":         m.Budget,
		"status":         string(m.Status),
		"checks_count":   m.ChecksCount,
		"created_at":     m.CreatedAt,
		"expires_at":     m.ExpiresAt,
		"contact_name":   m.Contact.Name,
		"contact_email":  m.Contact.Email,
		"max_wait_hours": m.MaxWaitHours,
	}
	if m.DepartureDate != nil {
		fields["departure_date"] = m.DepartureDate.Format("2006-01-02")
	}
	if m.BestPriceSeen != nil {
		fields["best_price_seen"] = *m.BestPriceSeen
	}
	if m.LastCheckAt != nil {
		fields["last_check_at"] = *m.LastCheckAt
	}
	if err := s.recorder.UpdateMonitorRecord(ctx, m.ID, fields); err != nil {
		s.logger.Warn("persist_failed", "monitor_id", m.ID, "event", "update", "error", err)
		s.notifyObserver(func(o Observer) { o.SideEffectFailed("persist") })
	}
}

func (s *Scheduler) detectSignal(ctx context.Context, m store.Monitor, price int) {
	if s.detector == nil {
		return
	}
	sig, ok := s.detector.Observe(m.Route, price)
	if !ok {
		return
	}
	s.logger.Info("price_signal",
		"type", sig.Type,
		"route", sig.Route.Key(),
		"previous", sig.Previous,
		"current", sig.Current,
		"pct_change", fmt.Sprintf("%.1f%%", sig.PctChange*100),
	)
	s.notifyObserver(func(o Observer) { o.SignalDetected(sig) })
	s.recordEvent(ctx, m, "price_signal", store.Fields{
		"signal":     sig.Type,
		"previous":   sig.Previous,
		"current":    sig.Current,
		"pct_change": sig.PctChange,
	})
}

func (s *Scheduler) notifyObserver(f func(Observer)) {
	if s.observer != nil {
		f(s.observer)
	}
}

// effectContext detaches from the caller's cancellation so a finished HTTP
// request does not abort delivery, and bounds the call by sideEffectTimeout.
func (s *Scheduler) effectContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(context.WithoutCancel(parent), s.sideEffectTimeout)
}
