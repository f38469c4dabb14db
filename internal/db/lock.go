package db

import (
	"context"

	"gorm.io/gorm"
)

// TryXactLock takes a transaction-scoped exclusive advisory lock without
// blocking. tx must be inside a transaction; the lock is released on commit
// or rollback.
func TryXactLock(ctx context.Context, tx *gorm.DB, key string) (bool, error) {
	var ok bool
	if err := tx.WithContext(ctx).
		Raw(`SELECT pg_try_advisory_xact_lock(hashtext(?))`, key).
		Row().Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

// TrySharedLock takes a shared session-level advisory lock on a dedicated
// connection without blocking. Any number of shared holders may coexist; an
// exclusive holder of the same key excludes them all. release unlocks and
// returns the connection to the pool; it is nil when ok is false.
func TrySharedLock(ctx context.Context, d *gorm.DB, key string) (release func(), ok bool, err error) {
	sqlDB, err := d.DB()
	if err != nil {
		return nil, false, err
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return nil, false, err
	}

	if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock_shared(hashtext($1))`, key).Scan(&ok); err != nil {
		_ = conn.Close()
		return nil, false, err
	}
	if !ok {
		_ = conn.Close()
		return nil, false, nil
	}

	return func() {
		_, _ = conn.ExecContext(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock_shared(hashtext($1))`, key)
		_ = conn.Close()
	}, true, nil
}
