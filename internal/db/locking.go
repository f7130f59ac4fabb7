package db

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LockForUpdate adds SELECT ... FOR UPDATE row locking to a query.
// SQLite has no row locks (a single writer serializes the whole
// database) and rejects the clause as syntax, so it is skipped there;
// tests run on SQLite, production on MySQL.
func LockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}
