package sqlite

import (
	"database/sql"
	"embed"
	"fmt"
	"sync"

	"github.com/pressly/goose/v3"
)

// Schema version for migration management
const SchemaVersion = 1

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrationsFS exposes the embedded migration files
func MigrationsFS() embed.FS {
	return migrationsFS
}

// goose keeps its base FS and dialect in package globals
var gooseMu sync.Mutex

// SyncedTables lists the tables that carry sync metadata columns
func SyncedTables() []string {
	return []string{
		"customers",
		"work_orders",
		"bills",
		"bill_items",
		"payment_history",
		"items",
		"services",
		"bank_accounts",
	}
}

// DataTables lists every table cleared by a local reset, children first
func DataTables() []string {
	return []string{
		"bill_items",
		"payment_history",
		"bills",
		"work_orders",
		"customers",
		"items",
		"services",
		"bank_accounts",
		"metadata",
	}
}

// PragmaStatements returns pragma statements to execute on database connection
func PragmaStatements() []string {
	return []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",   // Write-Ahead Logging for better concurrency
		"PRAGMA synchronous = NORMAL", // Balance between safety and performance
		"PRAGMA busy_timeout = 5000",
	}
}

// Migrate applies all pending schema migrations
func Migrate(db *sql.DB) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetLogger(goose.NopLogger())
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("sqlite"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// CurrentVersion returns the applied migration version
func CurrentVersion(db *sql.DB) (int64, error) {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("sqlite"); err != nil {
		return 0, fmt.Errorf("set dialect: %w", err)
	}
	return goose.GetDBVersion(db)
}
