package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wadatrip/farewatch/internal/store"
)

func TestListenerSubscribesAndDispatchesQuotes(t *testing.T) {
	upgrader := websocket.Upgrader{}
	subscribed := make(chan SubscriptionMessage, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		var sub SubscriptionMessage
		if err := conn.ReadJSON(&sub); err != nil {
			t.Errorf("read subscription: %v", err)
			return
		}
		subscribed <- sub

		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"type":"fare_quote","origin":"MAD","destination":"NRT","price":640}`))

		// Hold the connection until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	quotes := make(chan store.Quote, 1)
	l := NewListener("ws"+strings.TrimPrefix(srv.URL, "http"), quotes)
	l.SetRoutes([]string{"MAD-NRT"})
	statuses := make(chan string, 8)
	l.SetStatusHandler(func(status string) {
		select {
		case statuses <- status:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l.Start(ctx)
	defer l.Stop()

	select {
	case sub := <-subscribed:
		if sub.Type != "subscribe" || len(sub.Routes) != 1 || sub.Routes[0] != "MAD-NRT" {
			t.Errorf("unexpected subscription %+v", sub)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for subscription")
	}

	select {
	case q := <-quotes:
		if q.Price != 640 || q.Route().Key() != "MAD-NRT" {
			t.Errorf("unexpected quote %+v", q)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for quote")
	}

	if got := <-statuses; got != StatusConnecting {
		t.Errorf("expected %q first, got %q", StatusConnecting, got)
	}
	if got := <-statuses; got != StatusConnected {
		t.Errorf("expected %q after subscribe, got %q", StatusConnected, got)
	}
}
