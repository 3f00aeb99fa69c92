package backend

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"fieldsync/backend/sqlite"
	"fieldsync/internal/utils"

	_ "modernc.org/sqlite" // SQLite driver
)

// Database wraps sql.DB with helper methods for schema management
type Database struct {
	*sql.DB
	path string
}

// InitDatabase opens the SQLite database and applies the schema migrations.
// It creates the database at the XDG-compliant location unless customPath is set.
func InitDatabase(customPath string) (*Database, error) {
	dbPath, err := getDatabasePath(customPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get database path: %w", err)
	}

	if err := utils.EnsureParentDir(dbPath); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps pragmas and write ordering consistent
	db.SetMaxOpenConns(1)

	database := &Database{
		DB:   db,
		path: dbPath,
	}

	if err := database.initializeSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return database, nil
}

// getDatabasePath returns customPath, or the XDG data location when empty
func getDatabasePath(customPath string) (string, error) {
	if customPath != "" {
		return utils.ExpandPath(customPath)
	}
	return utils.DefaultDatabasePath()
}

// initializeSchema sets pragmas and runs migrations
func (db *Database) initializeSchema() error {
	for _, pragma := range sqlite.PragmaStatements() {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %q: %w", pragma, err)
		}
	}

	if err := sqlite.Migrate(db.DB); err != nil {
		return err
	}

	return nil
}

// GetSchemaVersion returns the applied migration version
func (db *Database) GetSchemaVersion() (int64, error) {
	version, err := sqlite.CurrentVersion(db.DB)
	if err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}

// Path returns the filesystem path to the database file
func (db *Database) Path() string {
	return db.path
}

// Vacuum runs VACUUM to optimize the database
func (db *Database) Vacuum() error {
	_, err := db.Exec("VACUUM")
	return err
}

// Reset deletes every local row, including unsynced edits and pull stamps
func (db *Database) Reset(ctx context.Context) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin reset: %w", err)
	}
	defer tx.Rollback()

	for _, table := range sqlite.DataTables() {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reset: %w", err)
	}
	return nil
}

// GetStats returns per-kind row counts and the database size
func (db *Database) GetStats(ctx context.Context) (DatabaseStats, error) {
	stats := DatabaseStats{}

	for _, kind := range SyncedKinds() {
		var ks KindStats
		ks.Kind = kind
		query := fmt.Sprintf(
			"SELECT COUNT(*), COALESCE(SUM(pending_sync), 0), COUNT(sync_error) FROM %s WHERE deleted = 0 OR pending_sync = 1",
			kind.Table(),
		)
		if err := db.QueryRowContext(ctx, query).Scan(&ks.Rows, &ks.Pending, &ks.Errors); err != nil {
			return stats, fmt.Errorf("failed to count %s: %w", kind.Table(), err)
		}
		stats.Kinds = append(stats.Kinds, ks)
	}

	version, err := db.GetSchemaVersion()
	if err != nil {
		return stats, err
	}
	stats.SchemaVersion = version

	if fileInfo, err := os.Stat(db.path); err == nil {
		stats.DatabaseSize = fileInfo.Size()
	}

	return stats, nil
}

// KindStats holds row counts for one entity kind
type KindStats struct {
	Kind    Kind `json:"kind" yaml:"kind"`
	Rows    int  `json:"rows" yaml:"rows"`
	Pending int  `json:"pending" yaml:"pending"`
	Errors  int  `json:"errors" yaml:"errors"`
}

// DatabaseStats holds statistics about the database
type DatabaseStats struct {
	Kinds         []KindStats `json:"kinds" yaml:"kinds"`
	SchemaVersion int64       `json:"schema_version" yaml:"schema_version"`
	DatabaseSize  int64       `json:"database_size" yaml:"database_size"` // in bytes
}

// TotalPending returns the number of dirty rows across all kinds
func (s DatabaseStats) TotalPending() int {
	total := 0
	for _, k := range s.Kinds {
		total += k.Pending
	}
	return total
}

// String returns a human-readable representation of database statistics
func (s DatabaseStats) String() string {
	parts := make([]string, 0, len(s.Kinds)+1)
	for _, k := range s.Kinds {
		parts = append(parts, fmt.Sprintf("%s: %d (%d pending)", k.Kind.Table(), k.Rows, k.Pending))
	}
	sizeMB := float64(s.DatabaseSize) / (1024 * 1024)
	parts = append(parts, fmt.Sprintf("Size: %.2f MB", sizeMB), fmt.Sprintf("Schema: v%d", s.SchemaVersion))
	return strings.Join(parts, " | ")
}
