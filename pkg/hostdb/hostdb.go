// Package hostdb defines the contract arkdb expects from an embedded,
// transactional key-value engine: named collections keyed by a primary key
// path, optional secondary indexes, ordered cursors and scoped transactions
// that commit or abort atomically.
//
// Engines in pkg/hostdb/memdb and pkg/hostdb/sqlitedb implement it.
package hostdb

import (
	"context"
	"errors"

	"github.com/arkilian/arkdb/pkg/types"
)

// Mode is the access mode of a scope.
type Mode int

const (
	ReadOnly Mode = iota
	ReadWrite
)

func (m Mode) String() string {
	if m == ReadWrite {
		return "readwrite"
	}
	return "readonly"
}

// Errors reported by engines. Implementations wrap these with context;
// callers match with errors.Is.
var (
	// ErrConstraint is returned when a write violates a primary key or unique index
	ErrConstraint = errors.New("hostdb: constraint violation")

	// ErrNotFound is returned for unknown collections or indexes
	ErrNotFound = errors.New("hostdb: not found")

	// ErrInactive is returned for requests on a committed or aborted scope
	ErrInactive = errors.New("hostdb: scope is not active")

	// ErrReadOnly is returned for writes through a readonly scope
	ErrReadOnly = errors.New("hostdb: scope is readonly")

	// ErrData is returned when a record has no usable primary key
	ErrData = errors.New("hostdb: invalid data")

	// ErrAborted is reported by a scope that was rolled back
	ErrAborted = errors.New("hostdb: scope aborted")

	// ErrUnavailable is returned when the engine cannot be opened
	ErrUnavailable = errors.New("hostdb: engine unavailable")

	// ErrVersion is returned when an upgrade targets a version not above the current one
	ErrVersion = errors.New("hostdb: version conflict")
)

// Engine is an embedded transactional key-value store.
type Engine interface {
	// Open loads the stored version and topology. It must be called once
	// before any other method.
	Open(ctx context.Context) error

	// Version returns the stored topology version (0 for a fresh store).
	Version() int

	// Topology returns the stored collection layout.
	Topology() types.Topology

	// Upgrade moves the store to version, running fn exclusively. If fn
	// fails nothing it did is kept and the version is unchanged.
	Upgrade(ctx context.Context, version int, fn UpgradeFunc) error

	// Begin opens a scope over the named collections.
	Begin(ctx context.Context, tables []string, mode Mode) (Scope, error)

	// Close releases the engine. Open scopes become inactive.
	Close() error
}

// UpgradeFunc is the migration hook run on each version bump.
type UpgradeFunc func(ctx context.Context, m Migrator, oldVersion, newVersion int) error

// Migrator changes topology inside an upgrade.
type Migrator interface {
	Topology() types.Topology
	CreateCollection(desc types.CollectionDescriptor) error
	DeleteCollection(name string) error
	CreateIndex(collection string, idx types.IndexDescriptor) error
	DeleteIndex(collection, index string) error
}

// Scope is a transaction over a fixed set of collections. A failed request
// aborts the scope. Commit or abort is reported exactly once through Done
// and Err, after which every request fails with ErrInactive.
type Scope interface {
	Mode() Mode
	Collection(name string) (Collection, error)
	Commit() error
	Abort() error

	// Done is closed once the scope has committed or aborted.
	Done() <-chan struct{}

	// Err is nil after a commit and the abort cause otherwise. It is only
	// meaningful once Done is closed.
	Err() error
}

// Collection is a primary-key ordered record set inside a scope. Records
// read back hold values in the forms produced by NormalizeRecord, whatever
// engine stores them.
type Collection interface {
	Name() string
	Descriptor() types.CollectionDescriptor

	Get(ctx context.Context, key interface{}) (types.Record, bool, error)
	GetAll(ctx context.Context, r *KeyRange, limit int) ([]types.Record, error)
	Count(ctx context.Context, r *KeyRange) (int, error)
	OpenCursor(ctx context.Context, r *KeyRange, dir types.Direction) (Cursor, error)

	// Add inserts a record and fails with ErrConstraint if the key exists.
	// The returned key is the stored (possibly generated) primary key.
	Add(ctx context.Context, rec types.Record) (interface{}, error)

	// Put inserts or replaces a record by primary key.
	Put(ctx context.Context, rec types.Record) (interface{}, error)

	Delete(ctx context.Context, key interface{}) error
	Clear(ctx context.Context) error

	Index(name string) (Index, error)
}

// Index is a secondary index inside a scope. Entries with equal keys are
// ordered by ascending primary key in both directions.
type Index interface {
	Name() string
	Descriptor() types.IndexDescriptor

	Get(ctx context.Context, key interface{}) (types.Record, bool, error)
	GetAll(ctx context.Context, r *KeyRange, limit int) ([]types.Record, error)
	Count(ctx context.Context, r *KeyRange) (int, error)
	OpenCursor(ctx context.Context, r *KeyRange, dir types.Direction) (Cursor, error)
}

// Cursor iterates entries in key order.
type Cursor interface {
	Next() bool

	// Key is the index key, or the primary key for a collection cursor.
	Key() interface{}
	PrimaryKey() interface{}
	Value() types.Record

	Err() error
	Close() error
}
