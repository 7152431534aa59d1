// Package store is the task table's lease/scheduling substrate: book
// and chapter upsert, claim-next-task, heartbeat, completion, failure
// backoff, and the watchdog resurrection sweep. Every write is a
// parameterized statement — no ORM, per the "ORM upsert DSL becomes
// hand-written parameterized UPSERT statements" redesign note.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	_ "github.com/go-sql-driver/mysql"
)

// PoolOptions mirrors the original SQLAlchemy engine's pool knobs, one
// field per keyword argument the Python init_engine passed.
type PoolOptions struct {
	MaxOpenConns    int           // pool_size + max_overflow
	MaxIdleConns    int           // pool_size
	ConnMaxLifetime time.Duration // pool_recycle
}

// DefaultPoolOptions matches init_engine's pool_size=10, max_overflow=20,
// pool_recycle=3600.
func DefaultPoolOptions() PoolOptions {
	return PoolOptions{
		MaxOpenConns:    30,
		MaxIdleConns:    10,
		ConnMaxLifetime: time.Hour,
	}
}

// Store wraps a connection pool to the task table. All methods are
// safe for concurrent use; the pool itself serializes checkout.
type Store struct {
	db *sql.DB
}

// Open dials the task store and verifies connectivity with a liveness
// ping, equivalent to the original's pool_pre_ping=True. The pool may
// come up before MySQL finishes accepting connections (container
// startup races), so the ping is retried a handful of times with a
// short delay — a transport-transient condition, not a query to
// retry, so it is the one place this package reaches for retry-go.
func Open(ctx context.Context, dsn string, opts PoolOptions) (*Store, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open task store: %w", err)
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	err = retry.Do(
		func() error { return db.PingContext(pingCtx) },
		retry.Context(pingCtx),
		retry.Attempts(5),
		retry.Delay(500*time.Millisecond),
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ping task store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies connectivity, for liveness/readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
