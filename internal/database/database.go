// Package database provides the SQLite storage engine: connection pool
// management, WAL checkpointing, and checksum-verified schema migrations.
package database

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/intentmail/intentmail/internal/apperrors"
	"github.com/intentmail/intentmail/internal/logging"
	_ "modernc.org/sqlite"
)

// Connection pool constants.
const (
	// MaxOpenConns limits concurrent database connections. SQLite with WAL
	// mode only supports one writer at a time, so many connections just
	// increase lock contention.
	MaxOpenConns = 8

	// BaseIdleConns is the minimum number of idle connections to keep.
	BaseIdleConns = 2

	// MaxIdleConns caps idle connections to bound warm-connection memory.
	MaxIdleConns = 4

	// IdleConnsPerAccount is how many additional idle connections to keep
	// per active account.
	IdleConnsPerAccount = 1

	// CheckpointInterval is how often the background routine checkpoints
	// the WAL file back into the main database.
	CheckpointInterval = 5 * time.Minute
)

// DB wraps the pooled SQL connection plus a process-wide write mutex.
// Every component writes through this handle; SQLite's single-writer
// constraint is enforced here rather than relying solely on WAL locking,
// so concurrent sync/rules/facade callers never race on SQLITE_BUSY.
type DB struct {
	*sql.DB
	path    string
	writeMu sync.Mutex
}

// Open opens or creates a SQLite database at path with WAL, foreign keys,
// and a busy timeout embedded in the DSN so every pooled connection
// shares the same configuration.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("database: create directory: %w", err)
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=busy_timeout(30000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=cache_size(-64000)",
		path,
	)
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("database: open: %w", err)
	}

	sqlDB.SetMaxOpenConns(MaxOpenConns)
	sqlDB.SetMaxIdleConns(BaseIdleConns)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("database: ping: %w", err)
	}

	if err := os.Chmod(path, 0600); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("database: chmod: %w", err)
	}

	return &DB{DB: sqlDB, path: path}, nil
}

// WithWrite serializes fn against every other writer on this handle.
// All mutating store methods go through this.
func (db *DB) WithWrite(fn func() error) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()
	return fn()
}

// UpdateIdleConns adjusts idle connections based on active account count.
func (db *DB) UpdateIdleConns(numAccounts int) {
	log := logging.WithComponent("database")

	idle := BaseIdleConns + numAccounts*IdleConnsPerAccount
	if idle < BaseIdleConns {
		idle = BaseIdleConns
	}
	if idle > MaxIdleConns {
		idle = MaxIdleConns
	}

	db.SetMaxIdleConns(idle)
	log.Debug().Int("accounts", numAccounts).Int("idleConns", idle).Msg("updated connection pool")
}

// Close closes the underlying connection pool.
func (db *DB) Close() error {
	return db.DB.Close()
}

// Checkpoint runs a passive WAL checkpoint, merging the log into the
// main database file without blocking readers or writers.
func (db *DB) Checkpoint() error {
	if _, err := db.Exec("PRAGMA wal_checkpoint(PASSIVE)"); err != nil {
		return fmt.Errorf("database: checkpoint: %w", err)
	}
	return nil
}

// StartCheckpointRoutine runs Checkpoint on a ticker until ctx is done.
func (db *DB) StartCheckpointRoutine(ctx context.Context) {
	log := logging.WithComponent("database")

	ticker := time.NewTicker(CheckpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := db.Checkpoint(); err != nil {
				log.Error().Err(err).Msg("periodic WAL checkpoint failed")
			}
		case <-ctx.Done():
			return
		}
	}
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Migrate ensures the migrations table exists and applies every pending
// migration in order inside its own transaction. Migrations already
// recorded are re-verified against their stored SHA-256 checksum; a
// mismatch means the migration's DDL changed after being applied
// (tampering or an in-place edit) and fails loudly rather than silently
// drifting the schema.
func (db *DB) Migrate() error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS migrations (
			version INTEGER PRIMARY KEY,
			checksum TEXT NOT NULL,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("database: create migrations table: %w", err)
	}

	applied := make(map[int]string)
	rows, err := db.Query("SELECT version, checksum FROM migrations")
	if err != nil {
		return fmt.Errorf("database: read migrations: %w", err)
	}
	for rows.Next() {
		var v int
		var sum string
		if err := rows.Scan(&v, &sum); err != nil {
			rows.Close()
			return fmt.Errorf("database: scan migration row: %w", err)
		}
		applied[v] = sum
	}
	rows.Close()

	for _, m := range migrations {
		sum := checksum(m.SQL)

		if existing, ok := applied[m.Version]; ok {
			if existing != sum {
				return apperrors.IntegrityError(fmt.Sprintf(
					"migration %d checksum mismatch: recorded %s, computed %s",
					m.Version, existing, sum,
				))
			}
			continue
		}

		if err := db.applyMigration(m, sum); err != nil {
			return fmt.Errorf("database: apply migration %d: %w", m.Version, err)
		}
	}

	return nil
}

func (db *DB) applyMigration(m Migration, sum string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.SQL); err != nil {
		return fmt.Errorf("migration SQL failed: %w", err)
	}

	if _, err := tx.Exec(
		"INSERT INTO migrations (version, checksum) VALUES (?, ?)",
		m.Version, sum,
	); err != nil {
		return fmt.Errorf("record migration: %w", err)
	}

	return tx.Commit()
}

func checksum(ddl string) string {
	sum := sha256.Sum256([]byte(ddl))
	return hex.EncodeToString(sum[:])
}
