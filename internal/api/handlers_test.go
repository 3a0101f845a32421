package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/wadatrip/farewatch/internal/advisor"
	"github.com/wadatrip/farewatch/internal/clock"
	"github.com/wadatrip/farewatch/internal/monitor"
	"github.com/wadatrip/farewatch/internal/store"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixedRand struct{}

func (fixedRand) Float64() float64 { return 0.5 }

func newTestServer(t *testing.T) (http.Handler, *clock.Fake) {
	t.Helper()
	fc := clock.NewFake(testNow)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	adv := advisor.New(advisor.WithClock(fc), advisor.WithRand(fixedRand{}))
	sched := monitor.NewScheduler(adv, monitor.WithClock(fc), monitor.WithLogger(logger))
	t.Cleanup(sched.Close)
	return NewRouter(NewHandlers(sched, adv), logger), fc
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCreateGetCancelMonitor(t *testing.T) {
	h, fc := newTestServer(t)

	rec := do(h, http.MethodPost, "/api/v1/monitors",
		`{"origin":"SCL","destination":"JFK","departure_date":"2026-04-15","budget":1,"max_wait_hours":48,"contact":{"email":"ana@example.com"}}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created store.Monitor
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Status != store.StatusActive || created.ChecksCount != 1 {
		t.Errorf("expected active monitor with one check, got %+v", created)
	}
	if created.DepartureDate == nil || created.DepartureDate.Day() != 15 {
		t.Errorf("expected departure date parsed, got %v", created.DepartureDate)
	}
	if fc.Pending() != 1 {
		t.Errorf("expected one scheduled check, got %d", fc.Pending())
	}

	rec = do(h, http.MethodGet, "/api/v1/monitors", "")
	var list struct {
		Monitors []store.Monitor `json:"monitors"`
	}
	_ = json.NewDecoder(rec.Body).Decode(&list)
	if len(list.Monitors) != 1 || list.Monitors[0].ID != created.ID {
		t.Errorf("unexpected list %+v", list)
	}

	rec = do(h, http.MethodPost, "/api/v1/monitors/"+created.ID+"/check", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from check, got %d", rec.Code)
	}
	var checked store.Monitor
	_ = json.NewDecoder(rec.Body).Decode(&checked)
	if checked.ChecksCount != 2 {
		t.Errorf("expected two checks, got %d", checked.ChecksCount)
	}

	if rec = do(h, http.MethodDelete, "/api/v1/monitors/"+created.ID, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec = do(h, http.MethodGet, "/api/v1/monitors/"+created.ID, ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 after cancel, got %d", rec.Code)
	}
	if rec = do(h, http.MethodDelete, "/api/v1/monitors/"+created.ID, ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 on second cancel, got %d", rec.Code)
	}
}

func TestCreateMonitorValidation(t *testing.T) {
	h, _ := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"bad json", `{`},
		{"missing origin", `{"destination":"JFK","budget":100}`},
		{"zero budget", `{"origin":"SCL","destination":"JFK","budget":0}`},
		{"negative wait", `{"origin":"SCL","destination":"JFK","budget":100,"max_wait_hours":-1}`},
		{"wait beyond duration range", `{"origin":"SCL","destination":"JFK","budget":100,"max_wait_hours":3000000}`},
		{"internal webhook", `{"origin":"SCL","destination":"JFK","budget":100,"contact":{"webhook_url":"http://169.254.169.254/latest"}}`},
		{"unlisted webhook host", `{"origin":"SCL","destination":"JFK","budget":100,"contact":{"webhook_url":"https://hooks.internal.example/x"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(h, http.MethodPost, "/api/v1/monitors", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestCreateMonitorDefaultsAndMalformedDate(t *testing.T) {
	h, _ := newTestServer(t)

	rec := do(h, http.MethodPost, "/api/v1/monitors",
		`{"origin":"SCL","destination":"JFK","departure_date":"15/04/2026","budget":1}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var m store.Monitor
	_ = json.NewDecoder(rec.Body).Decode(&m)
	if m.DepartureDate != nil {
		t.Errorf("malformed date should be absent, got %v", m.DepartureDate)
	}
	if m.MaxWaitHours != DefaultMaxWaitHours {
		t.Errorf("expected default max wait, got %v", m.MaxWaitHours)
	}
}

func TestZeroWaitMonitorIsExpired(t *testing.T) {
	h, _ := newTestServer(t)

	rec := do(h, http.MethodPost, "/api/v1/monitors",
		`{"origin":"MAD","destination":"NRT","budget":1,"max_wait_hours":0}`)
	var m store.Monitor
	_ = json.NewDecoder(rec.Body).Decode(&m)
	if m.Status != store.StatusExpired {
		t.Errorf("expected expired, got %s", m.Status)
	}
}

func TestGetAdvice(t *testing.T) {
	h, _ := newTestServer(t)

	rec := do(h, http.MethodPost, "/api/v1/advice",
		`{"origin":"SCL","destination":"JFK","departure_date":"2026-04-15T12:00:00Z","budget":150}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var advice store.PriceAdvice
	if err := json.NewDecoder(rec.Body).Decode(&advice); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if advice.PredictedPrice != 103 || advice.Recommendation != store.RecommendBuyNow {
		t.Errorf("unexpected advice %+v", advice)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	h, _ := newTestServer(t)

	if rec := do(h, http.MethodGet, "/health", ""); rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Errorf("unexpected health response %d %q", rec.Code, rec.Body.String())
	}
	if rec := do(h, http.MethodGet, "/metrics", ""); rec.Code != http.StatusOK {
		t.Errorf("expected metrics endpoint, got %d", rec.Code)
	}
}

func TestParseDate(t *testing.T) {
	if d := parseDate("2026-04-15"); d == nil || d.Month() != time.April {
		t.Errorf("expected date, got %v", d)
	}
	if d := parseDate("2026-04-15T08:30:00Z"); d == nil || d.Hour() != 8 {
		t.Errorf("expected RFC3339 date, got %v", d)
	}
	if parseDate("") != nil || parseDate("tomorrow") != nil {
		t.Error("expected nil for empty or malformed input")
	}
}

func TestCreateMonitorAcceptsAllowedWebhook(t *testing.T) {
	h, _ := newTestServer(t)

	rec := do(h, http.MethodPost, "/api/v1/monitors",
		`{"origin":"SCL","destination":"JFK","budget":1,"contact":{"webhook_url":"https://discord.com/api/webhooks/1/abc"}}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
}
