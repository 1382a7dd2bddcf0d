// Package lock implements the C4 advisory-lock half of the request
// pipeline: cooperative named locks keyed by (tenant, plan_version_id,
// purpose), serializing the critical sections spec 5 calls out (publish,
// lock, repair-session create/apply).
package lock

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solvereign/solvereign/internal/apperr"
	"github.com/solvereign/solvereign/internal/telemetry"
)

// Locker acquires Postgres session-level advisory locks on a dedicated
// connection held for the critical section's duration.
type Locker struct {
	pool *pgxpool.Pool
}

// NewLocker creates a Locker over the given connection pool.
func NewLocker(pool *pgxpool.Pool) *Locker {
	return &Locker{pool: pool}
}

// Lock is a held advisory lock. Release must be called exactly once to
// return the underlying connection to the pool.
type Lock struct {
	conn *pgxpool.Conn
	key  int64
}

// Release unlocks and returns the connection to the pool.
func (l *Lock) Release(ctx context.Context) {
	if l.conn == nil {
		return
	}
	_, _ = l.conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, l.key)
	l.conn.Release()
}

// deriveKey folds (tenant, resource, purpose) into a signed 64-bit key for
// pg_advisory_lock, which takes a single bigint.
func deriveKey(tenantID uuid.UUID, resource, purpose string) int64 {
	h := sha256.New()
	h.Write(tenantID[:])
	h.Write([]byte{0})
	h.Write([]byte(resource))
	h.Write([]byte{0})
	h.Write([]byte(purpose))
	sum := h.Sum(nil)
	return int64(binary.BigEndian.Uint64(sum[:8]))
}

// pollInterval bounds how often TryAcquire retries pg_try_advisory_lock
// while waiting out the timeout.
const pollInterval = 25 * time.Millisecond

// TryAcquire attempts to acquire the named lock within timeout, polling
// pg_try_advisory_lock so the wait is visible to AdvisoryLockWaitSeconds.
// Returns apperr.ResourceBusy on timeout (spec 4.4: "try_acquire(key,
// timeout) returns BUSY on timeout").
func (l *Locker) TryAcquire(ctx context.Context, tenantID uuid.UUID, resource, purpose string, timeout time.Duration) (*Lock, error) {
	key := deriveKey(tenantID, resource, purpose)

	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection for advisory lock: %w", err)
	}

	start := time.Now()
	deadline := start.Add(timeout)
	for {
		var acquired bool
		if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&acquired); err != nil {
			conn.Release()
			return nil, fmt.Errorf("trying advisory lock: %w", err)
		}
		if acquired {
			telemetry.AdvisoryLockWaitSeconds.WithLabelValues(purpose, "acquired").Observe(time.Since(start).Seconds())
			return &Lock{conn: conn, key: key}, nil
		}

		if time.Now().After(deadline) {
			conn.Release()
			telemetry.AdvisoryLockWaitSeconds.WithLabelValues(purpose, "busy").Observe(time.Since(start).Seconds())
			retryAfter := int(pollInterval.Seconds()) + 1
			return nil, apperr.ResourceBusy(retryAfter)
		}

		select {
		case <-ctx.Done():
			conn.Release()
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}
