// Package docdb is an embedded document store persisting tabular data to a
// single JSON file.
//
// # Overview
//
// A [Database] owns a set of named tables, each with a declared column
// schema and uniquely keyed rows. All data lives in memory; [Database.Commit]
// serializes the whole state (data plus metadata) back to the file, and
// [Database.Rollback] / [Database.Sync] re-read the last persisted snapshot.
// Row mutations are purely in-memory until an explicit commit, with the
// exception of [Database.CreateTable] which commits itself.
//
// # Concurrency
//
// A Database is safe for concurrent use by multiple goroutines; operations
// hold a read-write lock for their full duration. There is no cross-process
// coordination: if two processes open the same file, the last commit wins.
//
// # File format
//
// The snapshot is a JSON document with two sibling fields, "_metadata"
// (creation/update timestamps and per-table column declarations) and
// "tables" (all row data). Table, row, and column order is preserved.
package docdb

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/maruel/docdb/internal/snapshot"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Database is an embedded document store backed by a single JSON file.
type Database struct {
	name         string
	path         string
	log          *slog.Logger
	enforceTypes bool
	histEnabled  bool
	hist         *history

	mu     sync.RWMutex
	meta   *snapshot.Metadata
	tables *orderedmap.OrderedMap[string, *snapshot.Rows]
}

// Option configures a Database at open time.
type Option func(*Database)

// WithPath overrides the snapshot file location. The default is
// "<name>.json" in the current working directory.
func WithPath(path string) Option {
	return func(db *Database) { db.path = path }
}

// WithLogger sets the logger used for operation logging.
func WithLogger(log *slog.Logger) Option {
	return func(db *Database) { db.log = log }
}

// WithTypeEnforcement makes Insert and Update validate values against the
// declared column datatypes, returning WrongDataTypeError on mismatch. Off
// by default: datatype declarations are otherwise metadata only.
func WithTypeEnforcement() Option {
	return func(db *Database) { db.enforceTypes = true }
}

// WithHistory records every commit of the snapshot file into a git
// repository rooted at the snapshot's directory, retrievable via
// [Database.History].
func WithHistory() Option {
	return func(db *Database) { db.histEnabled = true }
}

// Open opens the database named name. If no snapshot exists at the resolved
// location, an empty database is initialized and persisted immediately;
// otherwise the snapshot is loaded.
func Open(name string, opts ...Option) (*Database, error) {
	db := &Database{name: name, log: slog.Default()}
	for _, opt := range opts {
		opt(db)
	}
	if db.path == "" {
		db.path = name + ".json"
	}

	if _, err := os.Stat(db.path); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat %s: %w", db.path, err)
		}
		s := snapshot.New(time.Now().Truncate(time.Second))
		db.meta = s.Metadata
		db.tables = s.Tables
		if err := snapshot.Write(db.path, s); err != nil {
			return nil, err
		}
		db.log.Info("Created database", "name", name, "path", db.path)
	} else {
		s, err := snapshot.Load(db.path)
		if err != nil {
			return nil, err
		}
		db.meta = s.Metadata
		db.tables = s.Tables
		db.log.Debug("Loaded database", "name", name, "path", db.path, "tables", db.tables.Len())
	}

	if db.histEnabled {
		h, err := openHistory(filepath.Dir(db.path), filepath.Base(db.path))
		if err != nil {
			return nil, err
		}
		db.hist = h
	}
	return db, nil
}

// Name returns the database name.
func (db *Database) Name() string {
	return db.name
}

// Path returns the snapshot file location.
func (db *Database) Path() string {
	return db.path
}

// Size returns the snapshot file size in bytes.
func (db *Database) Size() (int64, error) {
	fi, err := os.Stat(db.path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat %s: %w", db.path, err)
	}
	return fi.Size(), nil
}

// String describes the database, its location, and its tables.
func (db *Database) String() string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	names := db.tableNamesLocked()
	tables := "none"
	if len(names) > 0 {
		tables = strings.Join(names, ", ")
	}
	return fmt.Sprintf("docdb %q at %s, tables: %s", db.name, db.path, tables)
}

// CreatedOn returns the creation timestamp recorded in metadata.
func (db *Database) CreatedOn() time.Time {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.meta.CreatedOn.Time
}

// LastUpdated returns the last commit timestamp recorded in metadata.
func (db *Database) LastUpdated() time.Time {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.meta.LastUpdated.Time
}

// Commit updates the last-updated timestamp and writes the full in-memory
// state to the snapshot file, replacing its prior contents entirely.
func (db *Database) Commit() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.commitLocked()
}

func (db *Database) commitLocked() error {
	db.meta.LastUpdated = snapshot.Now()
	s := &snapshot.Snapshot{Metadata: db.meta, Tables: db.tables}
	if err := snapshot.Write(db.path, s); err != nil {
		return err
	}
	if db.hist != nil {
		if err := db.hist.commit(fmt.Sprintf("Commit %s", db.name)); err != nil {
			return err
		}
	}
	db.log.Debug("Committed", "name", db.name, "tables", db.tables.Len())
	return nil
}

// Rollback discards uncommitted row mutations by reloading only the table
// data from the snapshot file. In-memory schema and timestamps are kept.
func (db *Database) Rollback() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	// Read under the lock so a concurrent Commit is never reverted by a
	// stale snapshot.
	s, err := snapshot.Load(db.path)
	if err != nil {
		return err
	}
	db.tables = s.Tables
	db.log.Debug("Rolled back", "name", db.name)
	return nil
}

// Sync reloads the entire in-memory state (tables and metadata) from the
// snapshot file, discarding any in-memory changes.
func (db *Database) Sync() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	s, err := snapshot.Load(db.path)
	if err != nil {
		return err
	}
	db.meta = s.Metadata
	db.tables = s.Tables
	db.log.Debug("Synced", "name", db.name, "tables", db.tables.Len())
	return nil
}

// CreateTable registers a new table with the given column schema and
// persists immediately. The schema is immutable once created.
func (db *Database) CreateTable(name string, columns []Column) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.meta.Tables.Get(name); ok {
		return &TableExistsError{Table: name}
	}
	cols := orderedmap.New[string, string]()
	for _, c := range columns {
		dt, err := ParseDatatype(string(c.Type))
		if err != nil {
			return err
		}
		cols.Set(c.Name, string(dt))
	}
	db.meta.Tables.Set(name, cols)
	db.tables.Set(name, orderedmap.New[string, map[string]any]())
	db.log.Info("Created table", "name", name, "columns", len(columns))
	// Table creation is the one eagerly committing operation.
	return db.commitLocked()
}

// Tables returns the table names in creation order.
func (db *Database) Tables() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.tableNamesLocked()
}

func (db *Database) tableNamesLocked() []string {
	names := make([]string, 0, db.meta.Tables.Len())
	for pair := db.meta.Tables.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

// Columns returns the declared column schema of a table in declaration
// order.
func (db *Database) Columns(table string) ([]Column, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	cols, ok := db.meta.Tables.Get(table)
	if !ok {
		return nil, &NoSuchTableError{Table: table, Tables: db.tableNamesLocked()}
	}
	columns := make([]Column, 0, cols.Len())
	for pair := cols.Oldest(); pair != nil; pair = pair.Next() {
		columns = append(columns, Column{Name: pair.Key, Type: Datatype(pair.Value)})
	}
	return columns, nil
}
