// Package lock provides the process-wide mutual exclusion between the
// streaming daemon and the batch driver, backed by a postgres advisory
// lock so it holds across hosts sharing one database.
package lock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ReconstructLockKey guards the unprocessed CEL row set. Both drivers
// must take it before consuming rows.
const ReconstructLockKey int64 = 0x6148736F6B61 // "aHsoka"

var ErrAlreadyHeld = errors.New("advisory lock is held by another process")

// AdvisoryLock pins one pooled connection for its lifetime; postgres
// advisory locks are session scoped, so the lock lives and dies with
// that connection.
type AdvisoryLock struct {
	key  int64
	conn *sql.Conn
}

func New(key int64) *AdvisoryLock {
	return &AdvisoryLock{key: key}
}

// Acquire tries to take the lock without blocking. ErrAlreadyHeld means
// another instance owns it.
func (lock *AdvisoryLock) Acquire(ctx context.Context, dbConn *gorm.DB) error {
	sqlDB, err := dbConn.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql connection: %w", err)
	}

	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to pin connection: %w", err)
	}

	var acquired bool

	err = conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", lock.key).Scan(&acquired)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to take advisory lock: %w", err)
	}

	if !acquired {
		_ = conn.Close()
		return ErrAlreadyHeld
	}

	lock.conn = conn

	return nil
}

// Release frees the lock and returns the pinned connection to the pool.
func (lock *AdvisoryLock) Release(ctx context.Context) error {
	if lock.conn == nil {
		return nil
	}

	_, err := lock.conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", lock.key)

	closeErr := lock.conn.Close()
	lock.conn = nil

	if err != nil {
		return fmt.Errorf("failed to release advisory lock: %w", err)
	}

	return closeErr
}
