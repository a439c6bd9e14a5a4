package sqlitedb

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/arkilian/arkdb/pkg/hostdb"
	"github.com/arkilian/arkdb/pkg/types"
)

// migrator applies topology changes inside the upgrade transaction. The
// recorded topology is only stored if the whole upgrade commits.
type migrator struct {
	ctx      context.Context
	tx       *sql.Tx
	topology types.Topology
}

func (m *migrator) Topology() types.Topology {
	return copyTopology(m.topology)
}

func (m *migrator) position(name string) int {
	for i, c := range m.topology {
		if c.Name == name {
			return i
		}
	}
	return -1
}

func (m *migrator) CreateCollection(desc types.CollectionDescriptor) error {
	if m.position(desc.Name) >= 0 {
		return fmt.Errorf("%w: collection %q already exists", hostdb.ErrConstraint, desc.Name)
	}
	if _, err := m.tx.ExecContext(m.ctx,
		"CREATE TABLE "+collectionTable(desc.Name)+" (k BLOB PRIMARY KEY, doc TEXT NOT NULL) WITHOUT ROWID",
	); err != nil {
		return fmt.Errorf("sqlitedb: failed to create collection %s: %w", desc.Name, err)
	}

	indexes := desc.Indexes
	desc.Indexes = []types.IndexDescriptor{}
	m.topology = append(m.topology, desc)
	sort.Slice(m.topology, func(i, j int) bool { return m.topology[i].Name < m.topology[j].Name })

	for _, idx := range indexes {
		if err := m.CreateIndex(desc.Name, idx); err != nil {
			return err
		}
	}
	return nil
}

func (m *migrator) DeleteCollection(name string) error {
	pos := m.position(name)
	if pos < 0 {
		return fmt.Errorf("%w: collection %q", hostdb.ErrNotFound, name)
	}
	for _, idx := range m.topology[pos].Indexes {
		if _, err := m.tx.ExecContext(m.ctx, "DROP TABLE IF EXISTS "+indexTable(name, idx.Name)); err != nil {
			return fmt.Errorf("sqlitedb: failed to drop index %s.%s: %w", name, idx.Name, err)
		}
	}
	if _, err := m.tx.ExecContext(m.ctx, "DROP TABLE IF EXISTS "+collectionTable(name)); err != nil {
		return fmt.Errorf("sqlitedb: failed to drop collection %s: %w", name, err)
	}
	if _, err := m.tx.ExecContext(m.ctx, "DELETE FROM arkdb_sequences WHERE collection = ?", name); err != nil {
		return fmt.Errorf("sqlitedb: failed to reset sequence for %s: %w", name, err)
	}
	m.topology = append(m.topology[:pos], m.topology[pos+1:]...)
	return nil
}

func (m *migrator) CreateIndex(collection string, idx types.IndexDescriptor) error {
	pos := m.position(collection)
	if pos < 0 {
		return fmt.Errorf("%w: collection %q", hostdb.ErrNotFound, collection)
	}
	desc := m.topology[pos]
	if _, exists := desc.Index(idx.Name); exists {
		return fmt.Errorf("%w: index %q already exists on %q", hostdb.ErrConstraint, idx.Name, collection)
	}

	table := indexTable(collection, idx.Name)
	if _, err := m.tx.ExecContext(m.ctx,
		"CREATE TABLE "+table+" (k BLOB NOT NULL, pk BLOB NOT NULL, PRIMARY KEY (k, pk)) WITHOUT ROWID",
	); err != nil {
		return fmt.Errorf("sqlitedb: failed to create index %s.%s: %w", collection, idx.Name, err)
	}
	if idx.Unique {
		if _, err := m.tx.ExecContext(m.ctx,
			"CREATE UNIQUE INDEX "+uniqueIndexName(collection, idx.Name)+" ON "+table+" (k)",
		); err != nil {
			return fmt.Errorf("sqlitedb: failed to create unique index %s.%s: %w", collection, idx.Name, err)
		}
	}
	if err := m.populate(collection, idx, table); err != nil {
		return err
	}

	desc.Indexes = append(append([]types.IndexDescriptor{}, desc.Indexes...), idx)
	m.topology[pos] = desc
	return nil
}

// populate indexes the rows already stored in collection.
func (m *migrator) populate(collection string, idx types.IndexDescriptor, table string) error {
	rows, err := m.tx.QueryContext(m.ctx, "SELECT k, doc FROM "+collectionTable(collection))
	if err != nil {
		return fmt.Errorf("sqlitedb: failed to scan %s: %w", collection, err)
	}
	type pair struct{ k, pk []byte }
	var pairs []pair
	for rows.Next() {
		var pk []byte
		var doc string
		if err := rows.Scan(&pk, &doc); err != nil {
			rows.Close()
			return fmt.Errorf("sqlitedb: failed to read row: %w", err)
		}
		rec, err := decodeDoc([]byte(doc))
		if err != nil {
			rows.Close()
			return err
		}
		ik, ok := hostdb.KeyOf(rec, idx.KeyPath)
		if !ok {
			continue
		}
		enc, err := encodeKey(ik)
		if err != nil {
			rows.Close()
			return err
		}
		pairs = append(pairs, pair{k: enc, pk: pk})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, p := range pairs {
		if _, err := m.tx.ExecContext(m.ctx, "INSERT INTO "+table+" (k, pk) VALUES (?, ?)", p.k, p.pk); err != nil {
			return fmt.Errorf("sqlitedb: failed to build index %s.%s: %w", collection, idx.Name, mapError(err))
		}
	}
	return nil
}

func (m *migrator) DeleteIndex(collection, name string) error {
	pos := m.position(collection)
	if pos < 0 {
		return fmt.Errorf("%w: collection %q", hostdb.ErrNotFound, collection)
	}
	desc := m.topology[pos]
	if _, exists := desc.Index(name); !exists {
		return fmt.Errorf("%w: index %q on %q", hostdb.ErrNotFound, name, collection)
	}
	if _, err := m.tx.ExecContext(m.ctx, "DROP TABLE IF EXISTS "+indexTable(collection, name)); err != nil {
		return fmt.Errorf("sqlitedb: failed to drop index %s.%s: %w", collection, name, err)
	}

	kept := make([]types.IndexDescriptor, 0, len(desc.Indexes))
	for _, idx := range desc.Indexes {
		if idx.Name != name {
			kept = append(kept, idx)
		}
	}
	desc.Indexes = kept
	m.topology[pos] = desc
	return nil
}
