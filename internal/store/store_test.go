package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
)

type execCall struct {
	sql  string
	args []any
}

type fakeExecutor struct {
	calls []execCall
	err   error
}

func (f *fakeExecutor) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, execCall{sql: sql, args: args})
	return pgconn.NewCommandTag("INSERT 0 1"), f.err
}

func TestPostgresRecorderRecordMonitorEvent(t *testing.T) {
	db := &fakeExecutor{}
	r := NewPostgresRecorder(db)
	r.newID = func() string { return "evt-1" }

	err := r.RecordMonitorEvent(context.Background(), "mon-1", Fields{
		"event":           "checked",
		"predicted_price": 420,
		"observed_price":  399,
	})
	if err != nil {
		t.Fatalf("RecordMonitorEvent failed: %v", err)
	}
	if len(db.calls) != 1 {
		t.Fatalf("expected one exec, got %d", len(db.calls))
	}
	call := db.calls[0]
	if !strings.Contains(call.sql, "INSERT INTO monitor_events") {
		t.Errorf("unexpected sql %s", call.sql)
	}
	if call.args[0] != "evt-1" || call.args[1] != "mon-1" || call.args[2] != "checked" {
		t.Errorf("unexpected args %v", call.args[:3])
	}
	if call.args[3] != 399 || call.args[4] != 420 {
		t.Errorf("expected observed/predicted 399/420, got %v/%v", call.args[3], call.args[4])
	}
	var payload map[string]any
	if err := json.Unmarshal(call.args[5].([]byte), &payload); err != nil {
		t.Fatalf("payload is not json: %v", err)
	}
}

func TestPostgresRecorderUpdateMonitorRecord(t *testing.T) {
	db := &fakeExecutor{}
	r := NewPostgresRecorder(db)

	err := r.UpdateMonitorRecord(context.Background(), "mon-1", Fields{"status": "active", "checks_count": 2})
	if err != nil {
		t.Fatalf("UpdateMonitorRecord failed: %v", err)
	}
	call := db.calls[0]
	if !strings.Contains(call.sql, "ON CONFLICT (id) DO UPDATE") {
		t.Errorf("expected upsert, got %s", call.sql)
	}
	if call.args[1] != "active" || call.args[2] != nil || call.args[3] != 2 {
		t.Errorf("unexpected args %v", call.args)
	}

	// Test Case 2: Exec failure is wrapped
	db.err = errors.New("connection refused")
	if err := r.UpdateMonitorRecord(context.Background(), "mon-1", Fields{}); err == nil || !errors.Is(err, db.err) {
		t.Errorf("expected wrapped error, got %v", err)
	}
}

type fakeRedis struct {
	hashes  map[string][]interface{}
	streams []*redis.XAddArgs
}

func (f *fakeRedis) HSet(_ context.Context, key string, values ...interface{}) *redis.IntCmd {
	if f.hashes == nil {
		f.hashes = make(map[string][]interface{})
	}
	f.hashes[key] = values
	return redis.NewIntResult(1, nil)
}

func (f *fakeRedis) XAdd(_ context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.streams = append(f.streams, a)
	return redis.NewStringResult("1-0", nil)
}

func TestRedisRecorder(t *testing.T) {
	fake := &fakeRedis{}
	r := &RedisRecorder{client: fake}
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := r.RecordMonitorEvent(context.Background(), "mon-1", Fields{"event": "created", "at": at, "budget": 150.0}); err != nil {
		t.Fatalf("RecordMonitorEvent failed: %v", err)
	}
	if len(fake.streams) != 1 || fake.streams[0].Stream != redisEventStream {
		t.Fatalf("expected one stream entry, got %+v", fake.streams)
	}
	values := fake.streams[0].Values.(map[string]any)
	if values["at"] != "2026-03-01T12:00:00Z" || values["budget"] != "150" || values["monitor_id"] != "mon-1" {
		t.Errorf("unexpected stream values %v", values)
	}

	if err := r.UpdateMonitorRecord(context.Background(), "mon-1", Fields{"status": "active", "checks_count": 3}); err != nil {
		t.Fatalf("UpdateMonitorRecord failed: %v", err)
	}
	hash, ok := fake.hashes["farewatch:monitor:mon-1"]
	if !ok || len(hash) != 1 {
		t.Fatalf("expected monitor hash, got %v", fake.hashes)
	}
	if m := hash[0].(map[string]any); m["checks_count"] != "3" {
		t.Errorf("unexpected hash values %v", m)
	}
}

type fakeWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaRecorderKeysByMonitor(t *testing.T) {
	w := &fakeWriter{}
	k := &KafkaRecorder{writer: w}

	_ = k.RecordMonitorEvent(context.Background(), "mon-1", Fields{"event": "created"})
	_ = k.UpdateMonitorRecord(context.Background(), "mon-1", Fields{"status": "active"})
	_ = k.Close()

	if len(w.msgs) != 2 {
		t.Fatalf("expected two messages, got %d", len(w.msgs))
	}
	for _, msg := range w.msgs {
		if string(msg.Key) != "mon-1" {
			t.Errorf("expected key mon-1, got %s", msg.Key)
		}
	}
	if string(w.msgs[1].Headers[0].Value) != "monitor_record" {
		t.Errorf("unexpected header %v", w.msgs[1].Headers)
	}
	if !w.closed {
		t.Error("expected writer closed")
	}
}

type failingRecorder struct{}

func (failingRecorder) RecordMonitorEvent(context.Context, string, Fields) error {
	return errors.New("down")
}

func (failingRecorder) UpdateMonitorRecord(context.Context, string, Fields) error {
	return errors.New("down")
}

func TestMultiRecorderContinuesPastFailures(t *testing.T) {
	db := &fakeExecutor{}
	m := MultiRecorder{failingRecorder{}, NewPostgresRecorder(db)}

	if err := m.RecordMonitorEvent(context.Background(), "mon-1", Fields{"event": "created"}); err == nil {
		t.Error("expected joined error")
	}
	if len(db.calls) != 1 {
		t.Errorf("expected later sinks to run, got %d calls", len(db.calls))
	}
}

func TestRouteKeyAndStatus(t *testing.T) {
	if got := (Route{Origin: " MAD ", Destination: "NRT"}).Key(); got != "MAD-NRT" {
		t.Errorf("unexpected key %q", got)
	}
	if StatusActive.Terminal() || !StatusExpired.Terminal() {
		t.Error("unexpected terminal classification")
	}
}
