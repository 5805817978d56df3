// Copyright 2026 SIGERD Mobile contributors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Table names for the entity collections.
const (
	TableShelters      = "shelters"
	TableOccupants     = "occupants"
	TableInventory     = "inventory"
	TableDonations     = "donations"
	TableDistributions = "distributions"
	TableAuditLog      = "audit_log"
)

var tables = []string{
	TableShelters,
	TableOccupants,
	TableInventory,
	TableDonations,
	TableDistributions,
	TableAuditLog,
}

// Store owns the local SQLite database. It is opened once at process start
// and handed to the sync engine and the ledger via injection; there is no
// package-level instance.
type Store struct {
	db      *sql.DB
	logger  *slog.Logger
	writeMu sync.Mutex // serialize writes to avoid SQLite locking issues
}

// Open opens (creating if needed) the local database at path and initializes
// the entity tables. Use ":memory:" for tests.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection for the whole pool: an in-memory database lives on a
	// single connection, and on disk it keeps readers behind writeMu too.
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: logger}
	if err := s.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) initSchema(ctx context.Context) error {
	for _, tbl := range tables {
		stmts := []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %[1]s (
				local_id INTEGER PRIMARY KEY AUTOINCREMENT,
				business_id TEXT NOT NULL,
				remote_id TEXT NOT NULL DEFAULT '',
				legacy_id TEXT NOT NULL DEFAULT '',
				synced INTEGER NOT NULL DEFAULT 0,
				status TEXT NOT NULL DEFAULT 'active',
				scope TEXT NOT NULL DEFAULT '',
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				deleted_at TEXT,
				payload TEXT NOT NULL
			)`, tbl),
			fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS idx_%[1]s_business_id ON %[1]s(business_id)`, tbl),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_synced ON %[1]s(synced)`, tbl),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_scope ON %[1]s(scope)`, tbl),
		}
		for _, stmt := range stmts {
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to create %s: %w", tbl, err)
			}
		}
	}
	return nil
}

// Tx is an open unit of work spanning any number of collections. Obtain one
// through Store.WithTx.
type Tx struct {
	tx *sql.Tx
}

// WithTx runs fn inside a single database transaction. If fn returns an
// error the transaction is rolled back and no partial state remains.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(&Tx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Typed collection constructors.

func Shelters(s *Store) Collection[Shelter, *Shelter] {
	return newCollection[Shelter, *Shelter](s, TableShelters)
}

func Occupants(s *Store) Collection[Occupant, *Occupant] {
	return newCollection[Occupant, *Occupant](s, TableOccupants)
}

func Inventory(s *Store) Collection[InventoryItem, *InventoryItem] {
	return newCollection[InventoryItem, *InventoryItem](s, TableInventory)
}

func Donations(s *Store) Collection[Donation, *Donation] {
	return newCollection[Donation, *Donation](s, TableDonations)
}

func Distributions(s *Store) Collection[Distribution, *Distribution] {
	return newCollection[Distribution, *Distribution](s, TableDistributions)
}

func AuditLog(s *Store) Collection[AuditLogEntry, *AuditLogEntry] {
	return newCollection[AuditLogEntry, *AuditLogEntry](s, TableAuditLog)
}

const timeLayout = time.RFC3339Nano

func encodeTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func decodeTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t, nil
}
