package schema

import (
	"fmt"
	"sort"

	arkerrors "github.com/arkilian/arkdb/internal/errors"
	"github.com/arkilian/arkdb/pkg/types"
)

// BuildTopology derives the host layout from table declarations. The
// result is sorted by table name; indexes follow column order. Tables are
// checked for a single primary key even when they bypassed New.
func BuildTopology(tables []*Table) (types.Topology, error) {
	sorted := append([]*Table(nil), tables...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].name < sorted[j].name })

	topo := make(types.Topology, 0, len(sorted))
	for _, t := range sorted {
		desc, err := describeTable(t)
		if err != nil {
			return nil, err
		}
		topo = append(topo, desc)
	}
	return topo, nil
}

func describeTable(t *Table) (types.CollectionDescriptor, error) {
	var pks []Field
	for _, f := range t.fields {
		if f.Column.meta.primaryKey {
			pks = append(pks, f)
		}
	}
	if len(pks) != 1 {
		return types.CollectionDescriptor{}, arkerrors.NewSchemaError(t.name,
			fmt.Sprintf("table %q must have exactly one primary key, found %d", t.name, len(pks))).
			WithDetails(map[string]interface{}{"table": t.name, "primary_keys": len(pks)})
	}

	pk := pks[0]
	desc := types.CollectionDescriptor{
		Name:           t.name,
		PrimaryKeyPath: pk.Name,
		AutoIncrement:  pk.Column.meta.autoIncrement,
		Indexes:        []types.IndexDescriptor{},
	}
	for _, f := range t.fields {
		m := f.Column.meta
		if m.primaryKey || !(m.indexed || m.unique) {
			continue
		}
		desc.Indexes = append(desc.Indexes, types.IndexDescriptor{
			Name:    f.Name,
			KeyPath: f.Name,
			Unique:  m.unique,
		})
	}
	return desc, nil
}

// Topology returns the schema's host layout.
func (s *Schema) Topology() (types.Topology, error) {
	tables := make([]*Table, 0, len(s.names))
	for _, n := range s.names {
		tables = append(tables, s.tables[n])
	}
	return BuildTopology(tables)
}
