// Package storedb persists the two application-wide singleton stores: one
// keystore row and one truststore row, each holding raw encoded bytes, the
// unlock password, and the format tag. The keystore row additionally carries
// the ordered alias/key-password catalog that cannot be recovered from the
// raw bytes alone. Rows and catalog are always read, mutated, and rewritten
// together under a per-store mutex.
package storedb

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// KeyEntry is one row of the keystore alias catalog. The key password may
// differ from the keystore password, which is why it must be stored.
type KeyEntry struct {
	Alias    string `db:"alias" json:"alias"`
	Password string `db:"password" json:"-"`
}

// StoreRecord is the persisted form of one singleton store.
type StoreRecord struct {
	Data     []byte `db:"data"`
	Password string `db:"password"`
	Format   string `db:"format"`
}

// Initialized reports whether the record has been written at least once.
func (r *StoreRecord) Initialized() bool {
	return r.Format != ""
}

// KeystoreRecord is the persisted keystore row plus its alias catalog.
type KeystoreRecord struct {
	StoreRecord
	Entries []KeyEntry
}

// HasAlias reports whether the catalog contains the given alias.
func (r *KeystoreRecord) HasAlias(alias string) bool {
	for _, e := range r.Entries {
		if e.Alias == alias {
			return true
		}
	}
	return false
}

// DB wraps the SQLite connection and serializes mutation of each singleton
// store. Two concurrent merges against the same store would otherwise race
// as read-modify-write sequences and silently lose an update.
type DB struct {
	*sqlx.DB
	ksMu sync.Mutex
	tsMu sync.Mutex
}

// Open creates a database connection and initializes the schema. An empty
// path opens an in-memory database. Pinned to a single connection: each
// :memory: connection is a separate database, so pooling must be disabled.
// PRAGMAs are set via the DSN so they apply to reconnections.
func Open(path string) (*DB, error) {
	dsn := "file::memory:?_pragma=temp_store(2)&_pragma=journal_mode(off)&_pragma=synchronous(off)"
	if path != "" {
		dsn = "file:" + path + "?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)"
	}
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	dbObj := &DB{DB: db}
	if err := dbObj.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	slog.Debug("database initialized", "path", path)
	return dbObj, nil
}

func (db *DB) initSchema() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS keystore (
			id       INTEGER PRIMARY KEY CHECK (id = 1),
			data     BLOB NOT NULL,
			password TEXT NOT NULL,
			format   TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("creating keystore table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS keystore_entries (
			position INTEGER PRIMARY KEY,
			alias    TEXT NOT NULL UNIQUE,
			password TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("creating keystore_entries table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS truststore (
			id       INTEGER PRIMARY KEY CHECK (id = 1),
			data     BLOB NOT NULL,
			password TEXT NOT NULL,
			format   TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("creating truststore table: %w", err)
	}
	return nil
}

// Keystore returns the persisted keystore row and its alias catalog. When no
// row has been written yet, the returned record is zero-valued and
// Initialized reports false.
func (db *DB) Keystore() (*KeystoreRecord, error) {
	var rec KeystoreRecord
	err := db.Get(&rec.StoreRecord, "SELECT data, password, format FROM keystore WHERE id = 1")
	if errors.Is(err, sql.ErrNoRows) {
		return &rec, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting keystore row: %w", err)
	}
	err = db.Select(&rec.Entries, "SELECT alias, password FROM keystore_entries ORDER BY position")
	if err != nil {
		return nil, fmt.Errorf("getting keystore entries: %w", err)
	}
	return &rec, nil
}

// UpdateKeystore runs fn inside the keystore's mutual-exclusion scope. The
// record passed to fn reflects the current row (zero-valued when absent); if
// fn returns nil, the row and its catalog are rewritten together in one
// transaction. An error from fn aborts the update and leaves the store
// untouched.
func (db *DB) UpdateKeystore(fn func(rec *KeystoreRecord) error) error {
	db.ksMu.Lock()
	defer db.ksMu.Unlock()

	rec, err := db.Keystore()
	if err != nil {
		return err
	}
	if err := fn(rec); err != nil {
		return err
	}

	tx, err := db.Beginx()
	if err != nil {
		return fmt.Errorf("beginning keystore update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(
		"INSERT OR REPLACE INTO keystore (id, data, password, format) VALUES (1, ?, ?, ?)",
		rec.Data, rec.Password, rec.Format,
	)
	if err != nil {
		return fmt.Errorf("writing keystore row: %w", err)
	}
	if _, err = tx.Exec("DELETE FROM keystore_entries"); err != nil {
		return fmt.Errorf("clearing keystore entries: %w", err)
	}
	for i, e := range rec.Entries {
		_, err = tx.Exec(
			"INSERT INTO keystore_entries (position, alias, password) VALUES (?, ?, ?)",
			i, e.Alias, e.Password,
		)
		if err != nil {
			return fmt.Errorf("writing keystore entry %q: %w", e.Alias, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing keystore update: %w", err)
	}
	slog.Debug("keystore updated", "entries", len(rec.Entries), "bytes", len(rec.Data))
	return nil
}

// Truststore returns the persisted truststore row, zero-valued when absent.
func (db *DB) Truststore() (*StoreRecord, error) {
	var rec StoreRecord
	err := db.Get(&rec, "SELECT data, password, format FROM truststore WHERE id = 1")
	if errors.Is(err, sql.ErrNoRows) {
		return &rec, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting truststore row: %w", err)
	}
	return &rec, nil
}

// UpdateTruststore runs fn inside the truststore's mutual-exclusion scope
// and rewrites the row if fn returns nil.
func (db *DB) UpdateTruststore(fn func(rec *StoreRecord) error) error {
	db.tsMu.Lock()
	defer db.tsMu.Unlock()

	rec, err := db.Truststore()
	if err != nil {
		return err
	}
	if err := fn(rec); err != nil {
		return err
	}

	_, err = db.Exec(
		"INSERT OR REPLACE INTO truststore (id, data, password, format) VALUES (1, ?, ?, ?)",
		rec.Data, rec.Password, rec.Format,
	)
	if err != nil {
		return fmt.Errorf("writing truststore row: %w", err)
	}
	slog.Debug("truststore updated", "bytes", len(rec.Data))
	return nil
}
