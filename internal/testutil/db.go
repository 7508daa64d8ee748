// Package testutil provides throwaway databases for package tests.
package testutil

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"loanledger/internal/database"
)

// NewDB returns a migrated in-memory SQLite database private to the test.
// The pool holds a single connection, so transactions run one at a time.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	return open(t, dsn, 1)
}

// NewFileDB returns a migrated SQLite database in a temporary file with WAL
// journaling and a pool of conns connections, so transactions from different
// goroutines really run side by side. Writers take the lock at BEGIN and wait
// up to five seconds for each other instead of failing with SQLITE_BUSY.
func NewFileDB(t *testing.T, conns int) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "ledger.db")
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate", path)
	return open(t, dsn, conns)
}

func open(t *testing.T, dsn string, conns int) *gorm.DB {
	t.Helper()

	db, err := database.Open(database.DriverSQLite, dsn, database.Options{MaxOpenConns: conns, MaxIdleConns: conns})
	require.NoError(t, err)
	db.Logger = logger.Default.LogMode(logger.Silent)
	require.NoError(t, database.Migrate(db))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}
