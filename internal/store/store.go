// Package store persists pipeline outcomes in Postgres so operators can
// audit what was dispatched where, and with what result.
package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Xhuk/continuitybridge/internal/pipeline"
)

const schemaDDL = `
CREATE SCHEMA IF NOT EXISTS bridge;

CREATE TABLE IF NOT EXISTS bridge.invocations (
	trace_id    text PRIMARY KEY,
	item_id     text,
	origin_id   text,
	success     boolean NOT NULL,
	latency_ms  bigint NOT NULL,
	last_error  text,
	created_at  timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS bridge.dispatch_results (
	id         bigserial PRIMARY KEY,
	trace_id   text NOT NULL REFERENCES bridge.invocations(trace_id),
	receiver   text NOT NULL,
	success    boolean NOT NULL,
	sent_at    timestamptz NOT NULL,
	last_error text
);

CREATE INDEX IF NOT EXISTS dispatch_results_trace_idx
	ON bridge.dispatch_results(trace_id);
`

// PGStore records pipeline outcomes in Postgres.
type PGStore struct {
	pool *pgxpool.Pool
}

// Connect opens a bounded connection pool and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*PGStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 10
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, err
	}
	return &PGStore{pool: pool}, nil
}

// EnsureSchema creates the outcome tables when missing.
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schemaDDL)
	return err
}

// Record inserts one invocation and its per-receiver dispatch results.
func (s *PGStore) Record(ctx context.Context, res *pipeline.Result) error {
	var itemID, originID string
	if res.Item != nil {
		itemID = res.Item.ID
	}
	if res.Decision != nil {
		originID = res.Decision.OriginID
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO bridge.invocations(trace_id, item_id, origin_id, success, latency_ms, last_error)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
		ON CONFLICT (trace_id) DO UPDATE
		SET success = EXCLUDED.success, latency_ms = EXCLUDED.latency_ms, last_error = EXCLUDED.last_error`,
		res.TraceID, itemID, originID, res.Success, res.LatencyMS, res.Err,
	)
	if err != nil {
		return err
	}

	for _, d := range res.Dispatch {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO bridge.dispatch_results(trace_id, receiver, success, sent_at, last_error)
			VALUES ($1, $2, $3, $4, NULLIF($5, ''))`,
			res.TraceID, d.Receiver, d.Success, d.Timestamp, d.Err,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// Pool exposes the underlying pool for health checks.
func (s *PGStore) Pool() *pgxpool.Pool {
	return s.pool
}

// Close releases the pool.
func (s *PGStore) Close() {
	s.pool.Close()
}

// NopRecorder discards outcomes. Used by the CLI and in tests where no
// database is wired.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, *pipeline.Result) error { return nil }
