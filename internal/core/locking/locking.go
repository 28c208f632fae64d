package locking

import (
	"gorm.io/gorm"
)

// AcquireTx takes a transaction-scoped advisory lock keyed by a stable string,
// serializing concurrent work on the same entity without broader locks. The
// lock is released automatically at commit or rollback. Outside postgres
// (sqlite test databases) this is a no-op.
func AcquireTx(tx *gorm.DB, key string) error {
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	return tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", key).Error
}
