// Package distlock provides distributed locks for serializing worker sweeps
// across instances. Redis is the preferred backend; PostgreSQL advisory
// locks are the fallback when no Redis is configured.
package distlock

import (
	"context"
	"database/sql"
	"hash/fnv"
	"sync"
	"time"
)

// Lock is a single-use distributed lock. A Lock instance belongs to one
// goroutine; concurrent sweeps each take their own instance.
type Lock interface {
	// TryAcquire attempts to take the lock without blocking. It reports
	// whether the lock was taken.
	TryAcquire(ctx context.Context) (bool, error)
	// Release gives the lock back if this instance still owns it.
	Release(ctx context.Context) error
}

// New picks the best available backend: Redis when a client is configured,
// otherwise a Postgres advisory lock on the shared database.
func New(redisClient RedisClient, db *sql.DB, key string, ttl time.Duration) Lock {
	if redisClient != nil {
		return NewRedisLock(redisClient, key, ttl)
	}
	return NewAdvisoryLock(db, key)
}

// WithLock runs fn while holding the lock, releasing it afterwards. When the
// lock is already held elsewhere fn is skipped and held=false is returned;
// sweeps treat that as "another instance is on it" and go back to sleep.
func WithLock(ctx context.Context, lock Lock, fn func(context.Context) error) (held bool, err error) {
	ok, err := lock.TryAcquire(ctx)
	if err != nil || !ok {
		return false, err
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if rerr := lock.Release(releaseCtx); rerr != nil && err == nil {
			err = rerr
		}
	}()
	return true, fn(ctx)
}

// AdvisoryLock implements Lock over pg_try_advisory_lock. Advisory locks are
// session-scoped, so the lock pins a dedicated connection out of the pool for
// as long as it is held; acquire and release must run on the same session or
// the unlock silently misses. A crashed worker's lock disappears with its
// connection.
type AdvisoryLock struct {
	db     *sql.DB
	lockID int64

	mu   sync.Mutex
	conn *sql.Conn
}

// NewAdvisoryLock derives a deterministic 64-bit lock ID from the key.
func NewAdvisoryLock(db *sql.DB, key string) *AdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &AdvisoryLock{db: db, lockID: int64(h.Sum64())}
}

// TryAcquire attempts the advisory lock without blocking. On success the
// underlying connection is held until Release.
func (l *AdvisoryLock) TryAcquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil {
		return false, nil
	}

	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, err
	}
	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired); err != nil {
		conn.Close()
		return false, err
	}
	if !acquired {
		conn.Close()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

// Release unlocks the advisory lock on the session that acquired it and
// returns the connection to the pool. Releasing a lock that is not held is a
// no-op.
func (l *AdvisoryLock) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}

	_, err := l.conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	closeErr := l.conn.Close()
	l.conn = nil
	if err != nil {
		return err
	}
	return closeErr
}
