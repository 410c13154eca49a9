// Package pg provides the pooled Postgres handle and pgvector helpers.
package pg

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	// Postgres driver registration.
	_ "github.com/lib/pq"
)

// Config holds Postgres pool settings.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	QueryTimeout    time.Duration
}

// DB wraps a pooled sqlx handle with a per-operation query timeout.
// Constructed once at startup and shared across requests; connections are
// acquired per statement and released by database/sql on every exit path.
type DB struct {
	*sqlx.DB
	queryTimeout time.Duration
}

// Open creates the connection pool. It does not verify connectivity;
// call WaitForReady before serving traffic.
func Open(cfg Config) (*DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("dsn is required")
	}

	pool, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	pool.SetMaxOpenConns(cfg.MaxOpenConns)
	pool.SetMaxIdleConns(cfg.MaxIdleConns)
	pool.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	timeout := cfg.QueryTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &DB{DB: pool, queryTimeout: timeout}, nil
}

// QueryContext returns a child context bounded by the configured query
// timeout, so a stalled store cannot hold a caller indefinitely.
func (d *DB) QueryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d.queryTimeout)
}

// Ping checks connectivity.
func (d *DB) Ping(ctx context.Context) error {
	ctx, cancel := d.QueryContext(ctx)
	defer cancel()
	if err := d.PingContext(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// WaitForReady polls Ping until the store responds or timeout expires.
func (d *DB) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for database: %w", ctx.Err())
		case <-ticker.C:
			if err := d.PingContext(ctx); err == nil {
				return nil
			}
		}
	}
}

// VectorLiteral renders a float32 slice in pgvector's text format: [1,2,3].
func VectorLiteral(v []float32) string {
	var b strings.Builder
	b.Grow(len(v)*10 + 2)
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
