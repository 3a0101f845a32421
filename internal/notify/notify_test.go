package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/wadatrip/farewatch/internal/store"
)

var priceMeta = map[string]any{
	"monitor_id":  "mon-1",
	"kind":        store.AlertPriceFound,
	"origin":      "MAD",
	"destination": "NRT",
	"price":       420,
}

func TestWebhookNotifierPostsJSON(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected json content type")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, time.Second)
	err := n.Notify(context.Background(), store.Contact{}, "Price alert", "We found a flight.", priceMeta)
	if err != nil {
		t.Fatalf("expected webhook success, got %v", err)
	}
	if len(got.Embeds) != 1 {
		t.Fatalf("expected one embed, got %+v", got)
	}
	if got.Embeds[0].Color != colorPriceFound {
		t.Errorf("expected price-found color, got %x", got.Embeds[0].Color)
	}
	if len(got.Embeds[0].Fields) != 3 || got.Embeds[0].Fields[1].Value != "$420" {
		t.Errorf("unexpected fields %+v", got.Embeds[0].Fields)
	}
}

func TestWebhookNotifierPrefersContactURL(t *testing.T) {
	hit := false
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = true
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier("http://127.0.0.1:1/unused", time.Second)
	n.Client = srv.Client()
	n.AllowedHosts = []string{"127.0.0.1"}
	err := n.Notify(context.Background(), store.Contact{WebhookURL: srv.URL}, "t", "b", nil)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if !hit {
		t.Fatal("expected contact webhook to be used")
	}
}

func TestWebhookNotifierRejectsUnlistedContactURL(t *testing.T) {
	hit := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = true
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier("", time.Second)
	contacts := []string{
		srv.URL, // plain http on a local address
		"https://169.254.169.254/latest/meta-data",
		"https://discord.com.evil.example/api/webhooks/1",
	}
	for _, raw := range contacts {
		err := n.Notify(context.Background(), store.Contact{WebhookURL: raw}, "t", "b", nil)
		if !errors.Is(err, ErrWebhookNotAllowed) {
			t.Errorf("%s: expected ErrWebhookNotAllowed, got %v", raw, err)
		}
	}
	if hit {
		t.Fatal("rejected webhook must not be called")
	}
}

func TestCheckWebhookURL(t *testing.T) {
	tests := []struct {
		raw string
		ok  bool
	}{
		{"https://discord.com/api/webhooks/1/abc", true},
		{"https://ptb.discord.com/api/webhooks/1/abc", true},
		{"https://DISCORDAPP.com/api/webhooks/1/abc", true},
		{"http://discord.com/api/webhooks/1/abc", false},
		{"https://user:pw@discord.com/api/webhooks/1", false},
		{"https://notdiscord.com/hook", false},
		{"https://10.0.0.5/hook", false},
		{"::not a url", false},
	}
	for _, tt := range tests {
		err := CheckWebhookURL(tt.raw, DefaultWebhookHosts)
		if (err == nil) != tt.ok {
			t.Errorf("%q: expected ok=%v, got %v", tt.raw, tt.ok, err)
		}
	}
}

func TestWebhookNotifierHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad payload"))
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, time.Second)
	err := n.Notify(context.Background(), store.Contact{}, "t", "b", nil)
	if err == nil || !strings.Contains(err.Error(), "bad payload") {
		t.Fatalf("expected webhook failure with body, got %v", err)
	}
}

func TestWebhookNotifierSkipsWithoutURL(t *testing.T) {
	n := NewWebhookNotifier("", time.Second)
	if err := n.Notify(context.Background(), store.Contact{}, "t", "b", nil); err != nil {
		t.Fatalf("expected skip, got %v", err)
	}
}

func TestEmailNotifier(t *testing.T) {
	var gotTo []string
	var gotMsg string
	n := NewEmailNotifier(SMTPConfig{Host: "smtp.example.com", Port: 587, Username: "u", Password: "p", Sender: "alerts@example.com"})
	n.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		if addr != "smtp.example.com:587" {
			t.Errorf("unexpected addr %s", addr)
		}
		gotTo = to
		gotMsg = string(msg)
		return nil
	}

	contact := store.Contact{Name: "Ana", Email: "ana@example.com"}
	if err := n.Notify(context.Background(), contact, "Price alert", "We found a flight.", priceMeta); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(gotTo) != 1 || gotTo[0] != "ana@example.com" {
		t.Errorf("unexpected recipients %v", gotTo)
	}
	if !strings.Contains(gotMsg, "Subject: farewatch: Price alert") || !strings.Contains(gotMsg, "Hello Ana,") {
		t.Errorf("unexpected message %q", gotMsg)
	}

	// Test Case 2: No recipient is a no-op
	if err := n.Notify(context.Background(), store.Contact{}, "t", "b", nil); err != nil {
		t.Errorf("expected skip, got %v", err)
	}

	// Test Case 3: Missing SMTP settings
	bare := NewEmailNotifier(SMTPConfig{})
	if err := bare.Notify(context.Background(), contact, "t", "b", nil); err == nil {
		t.Error("expected configuration error")
	}
}

type failingNotifier struct{ err error }

func (f failingNotifier) Notify(context.Context, store.Contact, string, string, map[string]any) error {
	return f.err
}

func TestMultiJoinsErrors(t *testing.T) {
	errA := errors.New("a")
	errB := errors.New("b")
	ch := make(chan store.Alert, 1)
	m := Multi{failingNotifier{errA}, ChannelNotifier{C: ch}, failingNotifier{errB}}

	err := m.Notify(context.Background(), store.Contact{}, "t", "b", priceMeta)
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Fatalf("expected joined errors, got %v", err)
	}
	if len(ch) != 1 {
		t.Error("expected every notifier to run")
	}
}

func TestChannelNotifierDropsWhenFull(t *testing.T) {
	ch := make(chan store.Alert, 1)
	fixed := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	n := ChannelNotifier{C: ch, Now: func() time.Time { return fixed }}

	_ = n.Notify(context.Background(), store.Contact{}, "first", "b", priceMeta)
	if err := n.Notify(context.Background(), store.Contact{}, "second", "b", priceMeta); err != nil {
		t.Fatalf("expected no error when full, got %v", err)
	}

	alert := <-ch
	if alert.Title != "first" || alert.Price != 420 || alert.Route.Key() != "MAD-NRT" || !alert.SentAt.Equal(fixed) {
		t.Errorf("unexpected alert %+v", alert)
	}
}
