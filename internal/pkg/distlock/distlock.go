// Package distlock provides best-effort distributed locks for campaign
// lifecycle commands, so two API replicas issuing the same command
// cannot interleave. Redis is the preferred backend; a PostgreSQL
// advisory lock covers deployments without Redis.
package distlock

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DistLock is a non-blocking try-lock. One instance serves one
// goroutine; concurrent holders need their own instances.
type DistLock interface {
	// Acquire attempts the lock without blocking; true means held.
	Acquire(ctx context.Context) (bool, error)
	// Release frees the lock if this instance still owns it.
	Release(ctx context.Context) error
}

// NewLock picks the best available backend: Redis when a client is
// configured, PostgreSQL advisory locks otherwise. ttl only applies to
// the Redis backend; advisory locks release with the session.
func NewLock(redisClient *redis.Client, db *sql.DB, key string, ttl time.Duration) DistLock {
	if redisClient != nil {
		return NewRedisLock(redisClient, key, ttl)
	}
	return NewPGAdvisoryLock(db, key)
}

// PGAdvisoryLock maps the lock key onto a pg advisory lock ID. Session
// scoped, so a dropped connection frees it much like a Redis TTL.
type PGAdvisoryLock struct {
	db     *sql.DB
	lockID int64
}

// NewPGAdvisoryLock derives a deterministic advisory lock ID from key.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{db: db, lockID: int64(h.Sum64())}
}

// Acquire tries pg_try_advisory_lock without blocking.
func (p *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	var held bool
	if err := p.db.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", p.lockID).Scan(&held); err != nil {
		return false, fmt.Errorf("advisory lock %d: %w", p.lockID, err)
	}
	return held, nil
}

// Release unlocks the advisory lock.
func (p *PGAdvisoryLock) Release(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", p.lockID); err != nil {
		return fmt.Errorf("advisory unlock %d: %w", p.lockID, err)
	}
	return nil
}
