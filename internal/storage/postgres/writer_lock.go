package postgres

import (
	"context"
	"fmt"
	"time"

	"orb-lab/internal/observability"
	"orb-lab/internal/storage"
)

// WriterLock implements storage.WriterLock with session-level advisory locks.
// The lock lives on a dedicated pooled connection until released.
type WriterLock struct {
	pool *Pool
}

// NewWriterLock creates a new WriterLock.
func NewWriterLock(pool *Pool) *WriterLock {
	return &WriterLock{pool: pool}
}

// Compile-time interface check.
var _ storage.WriterLock = (*WriterLock)(nil)

// TryLock acquires the advisory lock for name. Returns ErrStoreBusy if another
// session holds it.
func (l *WriterLock) TryLock(ctx context.Context, name string) (_ func(), err error) {
	defer observability.ObserveDBQuery("postgres", "writer_lock", time.Now(), &err)
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	var ok bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock(hashtext($1))`, name).Scan(&ok); err != nil {
		conn.Release()
		return nil, fmt.Errorf("try advisory lock %s: %w", name, err)
	}
	if !ok {
		conn.Release()
		return nil, fmt.Errorf("%s: %w", name, storage.ErrStoreBusy)
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := conn.Exec(unlockCtx, `SELECT pg_advisory_unlock(hashtext($1))`, name); err != nil {
			// Dropping the session releases the lock.
			_ = conn.Conn().Close(unlockCtx)
		}
		conn.Release()
	}, nil
}
