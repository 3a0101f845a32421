package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaSQL = `
	CREATE TABLE IF NOT EXISTS monitors (
		id              TEXT PRIMARY KEY,
		status          TEXT NOT NULL,
		best_price_seen INTEGER,
		checks_count    INTEGER NOT NULL DEFAULT 0,
		payload         JSONB NOT NULL,
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE TABLE IF NOT EXISTS monitor_events (
		id              UUID PRIMARY KEY,
		monitor_id      TEXT NOT NULL,
		event           TEXT NOT NULL,
		observed_price  INTEGER,
		predicted_price INTEGER,
		payload         JSONB NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS monitor_events_monitor_id_idx ON monitor_events (monitor_id, created_at);
`

type executor interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// NewPostgresPool opens and pings a pgx connection pool.
func NewPostgresPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return pool, nil
}

// PostgresRecorder appends monitor events and upserts monitor records.
type PostgresRecorder struct {
	db    executor
	newID func() string
}

// NewPostgresRecorder creates a PostgresRecorder on a pool or transaction.
func NewPostgresRecorder(db executor) *PostgresRecorder {
	return &PostgresRecorder{db: db, newID: uuid.NewString}
}

// Migrate creates the tables the recorder writes to.
func (r *PostgresRecorder) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate monitor tables: %w", err)
	}
	return nil
}

func (r *PostgresRecorder) RecordMonitorEvent(ctx context.Context, monitorID string, fields Fields) error {
	const sql = `
		INSERT INTO monitor_events (id, monitor_id, event, observed_price, predicted_price, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`

	payload, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode monitor event: %w", err)
	}
	event, _ := fields["event"].(string)

	_, err = r.db.Exec(ctx, sql,
		r.newID(), monitorID, event, intOrNil(fields["observed_price"]), intOrNil(fields["predicted_price"]), payload)
	if err != nil {
		return fmt.Errorf("insert monitor event: %w", err)
	}
	return nil
}

func (r *PostgresRecorder) UpdateMonitorRecord(ctx context.Context, monitorID string, fields Fields) error {
	const sql = `
		INSERT INTO monitors (id, status, best_price_seen, checks_count, payload, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status,
			best_price_seen = EXCLUDED.best_price_seen,
			checks_count = EXCLUDED.checks_count,
			payload = EXCLUDED.payload,
			updated_at = NOW()
	`

	payload, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode monitor record: %w", err)
	}
	status, _ := fields["status"].(string)
	checks, _ := fields["checks_count"].(int)

	_, err = r.db.Exec(ctx, sql, monitorID, status, intOrNil(fields["best_price_seen"]), checks, payload)
	if err != nil {
		return fmt.Errorf("upsert monitor: %w", err)
	}
	return nil
}

func intOrNil(v any) any {
	if i, ok := v.(int); ok {
		return i
	}
	return nil
}
