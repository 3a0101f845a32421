// Package notify delivers monitor alerts to contacts and in-process consumers.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/wadatrip/farewatch/internal/store"
)

// Notifier delivers one message to a contact.
type Notifier interface {
	Notify(ctx context.Context, contact store.Contact, title, body string, meta map[string]any) error
}

// Multi fans a message out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, contact store.Contact, title, body string, meta map[string]any) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, contact, title, body, meta); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogNotifier writes every alert to the structured log.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(_ context.Context, contact store.Contact, title, body string, meta map[string]any) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("alert",
		"title", title,
		"body", body,
		"contact", contact.Name,
		"monitor_id", meta["monitor_id"],
		"kind", meta["kind"],
	)
	return nil
}

// ChannelNotifier publishes alerts to a channel, typically read by the TUI.
// Sends never block; alerts are dropped when the channel is full.
type ChannelNotifier struct {
	C   chan<- store.Alert
	Now func() time.Time
}

func (n ChannelNotifier) Notify(_ context.Context, _ store.Contact, title, body string, meta map[string]any) error {
	now := time.Now
	if n.Now != nil {
		now = n.Now
	}
	alert := store.Alert{
		MonitorID: stringMeta(meta, "monitor_id"),
		Kind:      stringMeta(meta, "kind"),
		Title:     title,
		Body:      body,
		Route: store.Route{
			Origin:      stringMeta(meta, "origin"),
			Destination: stringMeta(meta, "destination"),
		},
		SentAt: now(),
	}
	if p, ok := meta["price"].(int); ok {
		alert.Price = p
	}

	select {
	case n.C <- alert:
	default:
	}
	return nil
}

func stringMeta(meta map[string]any, key string) string {
	s, _ := meta[key].(string)
	return s
}
