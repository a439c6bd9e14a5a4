package connection

import (
	"fmt"

	arkerrors "github.com/arkilian/arkdb/internal/errors"
	"github.com/arkilian/arkdb/pkg/hostdb"
	"github.com/arkilian/arkdb/pkg/types"
)

// Report lists the changes needed to bring a stored topology to a desired one.
type Report struct {
	// CreateCollections are declared collections missing from storage.
	CreateCollections []types.CollectionDescriptor
	// DropCollections are stored collections no longer declared.
	DropCollections []string
	// DropIndexes are stored indexes no longer declared, or whose uniqueness changed.
	DropIndexes []IndexChange
	// CreateIndexes are declared indexes missing from storage, or whose uniqueness changed.
	CreateIndexes []IndexChange
}

// IndexChange names one index of one collection.
type IndexChange struct {
	Collection string
	Index      types.IndexDescriptor
}

// HasChanges returns true if applying the report would modify storage.
func (r *Report) HasChanges() bool {
	return len(r.CreateCollections) > 0 || len(r.DropCollections) > 0 ||
		len(r.DropIndexes) > 0 || len(r.CreateIndexes) > 0
}

func (r *Report) String() string {
	return fmt.Sprintf("create %d collections, drop %d collections, create %d indexes, drop %d indexes",
		len(r.CreateCollections), len(r.DropCollections), len(r.CreateIndexes), len(r.DropIndexes))
}

// Reconcile diffs stored against desired. A collection whose primary key
// path or auto-increment flag differs cannot be migrated in place and is
// reported as a SchemaError; dropping it must be an explicit DropTable.
func Reconcile(stored, desired types.Topology) (*Report, error) {
	report := &Report{}

	for _, want := range desired {
		have, exists := stored.Collection(want.Name)
		if !exists {
			report.CreateCollections = append(report.CreateCollections, want)
			continue
		}
		if have.PrimaryKeyPath != want.PrimaryKeyPath || have.AutoIncrement != want.AutoIncrement {
			return nil, arkerrors.NewSchemaError(want.Name, fmt.Sprintf(
				"table %q changed its primary key (stored %q auto=%t, declared %q auto=%t)",
				want.Name, have.PrimaryKeyPath, have.AutoIncrement, want.PrimaryKeyPath, want.AutoIncrement))
		}

		for _, idx := range have.Indexes {
			declared, ok := want.Index(idx.Name)
			if !ok || declared != idx {
				report.DropIndexes = append(report.DropIndexes, IndexChange{Collection: want.Name, Index: idx})
			}
		}
		for _, idx := range want.Indexes {
			current, ok := have.Index(idx.Name)
			if !ok || current != idx {
				report.CreateIndexes = append(report.CreateIndexes, IndexChange{Collection: want.Name, Index: idx})
			}
		}
	}

	for _, have := range stored {
		if _, declared := desired.Collection(have.Name); !declared {
			report.DropCollections = append(report.DropCollections, have.Name)
		}
	}
	return report, nil
}

// Apply performs the report through an upgrade migrator. Index drops run
// before creates so a changed index can keep its name.
func (r *Report) Apply(m hostdb.Migrator) error {
	for _, desc := range r.CreateCollections {
		if err := m.CreateCollection(desc); err != nil {
			return fmt.Errorf("connection: failed to create collection %s: %w", desc.Name, err)
		}
	}
	for _, name := range r.DropCollections {
		if err := m.DeleteCollection(name); err != nil {
			return fmt.Errorf("connection: failed to delete collection %s: %w", name, err)
		}
	}
	for _, c := range r.DropIndexes {
		if err := m.DeleteIndex(c.Collection, c.Index.Name); err != nil {
			return fmt.Errorf("connection: failed to delete index %s.%s: %w", c.Collection, c.Index.Name, err)
		}
	}
	for _, c := range r.CreateIndexes {
		if err := m.CreateIndex(c.Collection, c.Index); err != nil {
			return fmt.Errorf("connection: failed to create index %s.%s: %w", c.Collection, c.Index.Name, err)
		}
	}
	return nil
}
