// Package sqlitedb is a hostdb engine backed by a single SQLite file.
//
// Each collection is a table of (k BLOB, doc TEXT) rows where k is an
// order-preserving key encoding and doc the JSON record. Each secondary
// index is a side table of (k, pk) pairs, with a UNIQUE index on k for
// unique indexes. Versions and their topologies are kept in
// arkdb_versions; auto-increment counters in arkdb_sequences.
package sqlitedb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/arkilian/arkdb/pkg/hostdb"
	"github.com/arkilian/arkdb/pkg/types"
	"github.com/gofrs/flock"
	"github.com/mattn/go-sqlite3"
)

// Engine implements hostdb.Engine on SQLite.
type Engine struct {
	path string

	db     *sql.DB // Write connection (single writer)
	readDB *sql.DB // Read connection pool
	lock   *flock.Flock

	mu       sync.RWMutex
	version  int
	topology types.Topology
	opened   bool
	closed   bool
}

var _ hostdb.Engine = (*Engine)(nil)

// New returns an engine for the database file at path. Nothing is opened
// until Open.
func New(path string) *Engine {
	return &Engine{path: path}
}

// Path returns the database file path.
func (e *Engine) Path() string { return e.path }

func (e *Engine) Open(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.opened {
		return nil
	}
	if e.closed {
		return fmt.Errorf("%w: engine closed", hostdb.ErrUnavailable)
	}

	lock := flock.New(e.path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("%w: failed to lock %s: %v", hostdb.ErrUnavailable, e.path, err)
	}
	if !locked {
		return fmt.Errorf("%w: %s is locked by another process", hostdb.ErrUnavailable, e.path)
	}

	db, err := sql.Open("sqlite3", e.path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=off")
	if err != nil {
		lock.Unlock()
		return fmt.Errorf("%w: failed to open database: %v", hostdb.ErrUnavailable, err)
	}
	db.SetMaxOpenConns(1) // Single writer
	db.SetMaxIdleConns(1)

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		lock.Unlock()
		return fmt.Errorf("%w: failed to initialize schema: %v", hostdb.ErrUnavailable, err)
	}

	readDB, err := sql.Open("sqlite3", e.path+"?_busy_timeout=5000&_query_only=true")
	if err != nil {
		db.Close()
		lock.Unlock()
		return fmt.Errorf("%w: failed to open read database: %v", hostdb.ErrUnavailable, err)
	}
	readDB.SetMaxOpenConns(4)
	readDB.SetMaxIdleConns(4)
	readDB.SetConnMaxLifetime(5 * time.Minute)

	version, topo, err := loadLatestVersion(ctx, db)
	if err != nil {
		readDB.Close()
		db.Close()
		lock.Unlock()
		return err
	}

	e.db, e.readDB, e.lock = db, readDB, lock
	e.version, e.topology = version, topo
	e.opened = true
	log.Printf("sqlitedb: opened %s at version %d (%d collections)", e.path, version, len(topo))
	return nil
}

func initSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS arkdb_versions (
			version INTEGER PRIMARY KEY,
			topology_json TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS arkdb_sequences (
			collection TEXT PRIMARY KEY,
			next_key INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func loadLatestVersion(ctx context.Context, q queryer) (int, types.Topology, error) {
	var version int
	var topoJSON string
	err := q.QueryRowContext(ctx,
		"SELECT version, topology_json FROM arkdb_versions ORDER BY version DESC LIMIT 1",
	).Scan(&version, &topoJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, types.Topology{}, nil
	}
	if err != nil {
		return 0, nil, fmt.Errorf("sqlitedb: failed to load version: %w", err)
	}
	var topo types.Topology
	if err := json.Unmarshal([]byte(topoJSON), &topo); err != nil {
		return 0, nil, fmt.Errorf("sqlitedb: failed to decode topology for version %d: %w", version, err)
	}
	return version, topo, nil
}

// VersionRecord is one row of the version history.
type VersionRecord struct {
	Version   int
	Topology  types.Topology
	CreatedAt time.Time
}

// History returns every recorded version, oldest first.
func (e *Engine) History(ctx context.Context) ([]VersionRecord, error) {
	if _, err := e.active(); err != nil {
		return nil, err
	}
	rows, err := e.readDB.QueryContext(ctx,
		"SELECT version, topology_json, created_at FROM arkdb_versions ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("sqlitedb: failed to list versions: %w", err)
	}
	defer rows.Close()

	var out []VersionRecord
	for rows.Next() {
		var rec VersionRecord
		var topoJSON string
		var createdAt int64
		if err := rows.Scan(&rec.Version, &topoJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("sqlitedb: failed to scan version: %w", err)
		}
		if err := json.Unmarshal([]byte(topoJSON), &rec.Topology); err != nil {
			return nil, fmt.Errorf("sqlitedb: failed to decode topology for version %d: %w", rec.Version, err)
		}
		rec.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (e *Engine) Version() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.version
}

func (e *Engine) Topology() types.Topology {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return copyTopology(e.topology)
}

func copyTopology(t types.Topology) types.Topology {
	out := make(types.Topology, len(t))
	for i, c := range t {
		c.Indexes = append([]types.IndexDescriptor{}, c.Indexes...)
		out[i] = c
	}
	return out
}

func (e *Engine) active() (types.Topology, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.opened || e.closed {
		return nil, fmt.Errorf("%w: engine not open", hostdb.ErrUnavailable)
	}
	return e.topology, nil
}

func (e *Engine) Upgrade(ctx context.Context, version int, fn hostdb.UpgradeFunc) error {
	if _, err := e.active(); err != nil {
		return err
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlitedb: failed to begin upgrade: %w", err)
	}
	defer tx.Rollback()

	current, topo, err := loadLatestVersion(ctx, tx)
	if err != nil {
		return err
	}
	if version <= current {
		return fmt.Errorf("%w: requested %d, current %d", hostdb.ErrVersion, version, current)
	}

	m := &migrator{ctx: ctx, tx: tx, topology: copyTopology(topo)}
	if fn != nil {
		if err := fn(ctx, m, current, version); err != nil {
			return err
		}
	}

	topoJSON, err := json.Marshal(m.topology)
	if err != nil {
		return fmt.Errorf("sqlitedb: failed to encode topology: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO arkdb_versions (version, topology_json, created_at) VALUES (?, ?, ?)",
		version, string(topoJSON), time.Now().Unix(),
	); err != nil {
		return fmt.Errorf("sqlitedb: failed to record version %d: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlitedb: failed to commit upgrade: %w", err)
	}

	e.mu.Lock()
	e.version, e.topology = version, m.topology
	e.mu.Unlock()
	return nil
}

func (e *Engine) Begin(ctx context.Context, tables []string, mode hostdb.Mode) (hostdb.Scope, error) {
	topo, err := e.active()
	if err != nil {
		return nil, err
	}
	descs := make(map[string]types.CollectionDescriptor, len(tables))
	for _, t := range tables {
		desc, ok := topo.Collection(t)
		if !ok {
			return nil, fmt.Errorf("%w: collection %q", hostdb.ErrNotFound, t)
		}
		descs[t] = desc
	}

	db := e.readDB
	if mode == hostdb.ReadWrite {
		db = e.db
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlitedb: failed to begin %s scope: %w", mode, err)
	}
	return &scope{
		engine: e,
		tx:     tx,
		mode:   mode,
		descs:  descs,
		done:   make(chan struct{}),
	}, nil
}

func (e *Engine) isClosed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.closed
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	if !e.opened {
		return nil
	}

	var errs []error
	if err := e.readDB.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := e.db.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := e.lock.Unlock(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// quoteIdent quotes a SQL identifier.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func collectionTable(name string) string {
	return quoteIdent("c_" + name)
}

func indexTable(collection, index string) string {
	return quoteIdent(fmt.Sprintf("i_%d_%s_%s", len(collection), collection, index))
}

func uniqueIndexName(collection, index string) string {
	return quoteIdent(fmt.Sprintf("u_%d_%s_%s", len(collection), collection, index))
}

// mapError translates SQLite constraint failures to hostdb.ErrConstraint.
func mapError(err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%w: %v", hostdb.ErrConstraint, err)
	}
	return err
}
