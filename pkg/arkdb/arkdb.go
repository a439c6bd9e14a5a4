// Package arkdb is the public entry point: open a DB over a host engine
// with a schema, then build queries, commands and transactions from it.
//
//	db, err := arkdb.Open(ctx, memdb.New(), s, arkdb.Options{Name: "shop"})
//	users, err := db.Select("users").WhereIndex("age", hostdb.LowerBound(18, false)).FindAll(ctx)
package arkdb

import (
	"context"
	"time"

	"github.com/arkilian/arkdb/internal/connection"
	"github.com/arkilian/arkdb/internal/observability"
	"github.com/arkilian/arkdb/internal/query"
	"github.com/arkilian/arkdb/internal/snapshot"
	"github.com/arkilian/arkdb/internal/txn"
	"github.com/arkilian/arkdb/pkg/hostdb"
	"github.com/arkilian/arkdb/pkg/schema"
	"github.com/arkilian/arkdb/pkg/types"
)

// Builder, transaction and snapshot types.
type (
	Select      = query.Select
	Insert      = query.Insert
	Update      = query.Update
	Delete      = query.Delete
	Predicate   = query.Predicate
	Strategy    = query.Strategy
	PageCursor  = query.PageCursor
	PageRequest = query.PageRequest
	PageResult  = query.PageResult

	Tx = txn.Tx

	ExportOptions = snapshot.ExportOptions
	ImportOptions = snapshot.ImportOptions
	ImportResult  = snapshot.ImportResult

	TableStats = observability.TableStats
)

// Options configure Open.
type Options struct {
	// Name is the logical database name (default "arkdb").
	Name string

	// Version requests a minimum host topology version.
	Version int

	// StatsWindow is how long access-path statistics are kept. Zero
	// means one hour.
	StatsWindow time.Duration
}

// DB is an open database.
type DB struct {
	m     *connection.Manager
	stats *observability.QueryStats
	env   query.Env
}

// Open binds s to engine. Provisioning continues in the background; every
// call waits for it, and Ready reports its outcome.
func Open(ctx context.Context, engine hostdb.Engine, s *schema.Schema, opts Options) (*DB, error) {
	m, err := connection.Open(ctx, engine, s, connection.Options{Name: opts.Name, Version: opts.Version})
	if err != nil {
		return nil, err
	}
	window := opts.StatsWindow
	if window <= 0 {
		window = time.Hour
	}
	stats := observability.NewQueryStats(window)
	return &DB{
		m:     m,
		stats: stats,
		env:   query.Env{Catalog: m, Binding: query.Implicit(m), Stats: stats},
	}, nil
}

// Ready blocks until provisioning has finished.
func (db *DB) Ready(ctx context.Context) error { return db.m.Ready(ctx) }

// Name returns the database name.
func (db *DB) Name() string { return db.m.Name() }

// Version returns the schema version the host database is at.
func (db *DB) Version() int { return db.m.Version() }

// Schema returns the declared tables.
func (db *DB) Schema() *schema.Schema { return db.m.Schema() }

// Topology returns the collection descriptors derived from the schema.
func (db *DB) Topology() types.Topology { return db.m.Topology() }

// Stats returns the query access statistics.
func (db *DB) Stats() *observability.QueryStats { return db.stats }

// Select starts a read query on table.
func (db *DB) Select(table string) *Select { return query.NewSelect(db.env, table) }

// Insert starts an insert on table.
func (db *DB) Insert(table string) *Insert { return query.NewInsert(db.env, table) }

// Update starts an update on table.
func (db *DB) Update(table string) *Update { return query.NewUpdate(db.env, table) }

// Delete starts a delete on table.
func (db *DB) Delete(table string) *Delete { return query.NewDelete(db.env, table) }

// Transaction runs fn in one readwrite scope over tables. See txn.Run.
func (db *DB) Transaction(ctx context.Context, tables []string, fn func(*Tx) error) error {
	return txn.Run(ctx, db.env, tables, fn)
}

// View runs fn in one readonly scope over tables.
func (db *DB) View(ctx context.Context, tables []string, fn func(*Tx) error) error {
	return txn.View(ctx, db.env, tables, fn)
}

// DropTable removes a table from the schema and deletes its collection.
func (db *DB) DropTable(ctx context.Context, name string) error {
	return db.m.DropTable(ctx, name)
}

// Export reads tables into a snapshot.
func (db *DB) Export(ctx context.Context, opts ExportOptions) (*types.Snapshot, error) {
	return snapshot.Export(ctx, db.m, db.env, opts)
}

// Import writes a snapshot back.
func (db *DB) Import(ctx context.Context, snap *types.Snapshot, opts ImportOptions) (*ImportResult, error) {
	return snapshot.Import(ctx, db.m, db.env, snap, opts)
}

// Close waits for provisioning and closes the engine.
func (db *DB) Close() error { return db.m.Close() }
