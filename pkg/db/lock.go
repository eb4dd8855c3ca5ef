package db

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// TryAdvisoryXactLock attempts a transaction-scoped advisory lock keyed by an
// arbitrary string. The lock is released automatically when the surrounding
// transaction commits or rolls back. Returns false without waiting when the
// lock is held elsewhere: a concurrent holder is already processing the same
// work to completion, so queuing would only duplicate it.
func TryAdvisoryXactLock(ctx context.Context, tx *gorm.DB, key string) (bool, error) {
	if tx == nil {
		return false, fmt.Errorf("transaction required for advisory lock")
	}
	var acquired bool
	err := tx.WithContext(ctx).
		Raw(`SELECT pg_try_advisory_xact_lock(hashtext(?))`, key).
		Scan(&acquired).Error
	if err != nil {
		return false, fmt.Errorf("advisory lock %q: %w", key, err)
	}
	return acquired, nil
}
