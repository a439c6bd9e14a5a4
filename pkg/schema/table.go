package schema

import (
	"fmt"
	"sort"

	arkerrors "github.com/arkilian/arkdb/internal/errors"
)

// Field pairs a column name with its declaration.
type Field struct {
	Name   string
	Column Column
}

// Col is shorthand for a Field literal.
func Col(name string, c Column) Field {
	return Field{Name: name, Column: c}
}

// Table is a named, ordered list of columns.
type Table struct {
	name   string
	fields []Field
	byName map[string]int
	pk     string
}

// NewTable declares a table. Column order is preserved and determines
// index order in the topology.
func NewTable(name string, fields ...Field) *Table {
	t := &Table{
		name:   name,
		fields: append([]Field(nil), fields...),
		byName: make(map[string]int, len(fields)),
	}
	for i, f := range t.fields {
		if _, dup := t.byName[f.Name]; !dup {
			t.byName[f.Name] = i
		}
		if f.Column.meta.primaryKey && t.pk == "" {
			t.pk = f.Name
		}
	}
	return t
}

func (t *Table) Name() string { return t.name }

// Fields returns the columns in declaration order.
func (t *Table) Fields() []Field {
	return append([]Field(nil), t.fields...)
}

// Column looks up a column by name.
func (t *Table) Column(name string) (Column, bool) {
	i, ok := t.byName[name]
	if !ok {
		return Column{}, false
	}
	return t.fields[i].Column, true
}

// PrimaryKey returns the primary key column name.
func (t *Table) PrimaryKey() string { return t.pk }

// AutoIncrement reports whether the primary key is host generated.
func (t *Table) AutoIncrement() bool {
	c, ok := t.Column(t.pk)
	return ok && c.meta.autoIncrement
}

func (t *Table) validate() error {
	if t.name == "" {
		return arkerrors.NewSchemaError("", "table name is empty")
	}
	if len(t.byName) != len(t.fields) {
		return arkerrors.NewSchemaError(t.name, fmt.Sprintf("table %q declares a column twice", t.name))
	}

	pkCount := 0
	for _, f := range t.fields {
		if f.Name == "" {
			return arkerrors.NewSchemaError(t.name, fmt.Sprintf("table %q has a column with no name", t.name))
		}
		if !knownTags[f.Column.tag] {
			return arkerrors.NewSchemaError(t.name,
				fmt.Sprintf("column %q of table %q has unknown type %q", f.Name, t.name, f.Column.tag))
		}
		m := f.Column.meta
		if m.primaryKey {
			pkCount++
		}
		if m.autoIncrement && !m.primaryKey {
			return arkerrors.NewSchemaError(t.name,
				fmt.Sprintf("column %q of table %q: auto-increment requires a primary key", f.Name, t.name))
		}
		if m.autoIncrement && !f.Column.tag.IsNumeric() {
			return arkerrors.NewSchemaError(t.name,
				fmt.Sprintf("column %q of table %q: auto-increment requires a numeric type, got %s", f.Name, t.name, f.Column.tag))
		}
	}
	if pkCount != 1 {
		return arkerrors.NewSchemaError(t.name,
			fmt.Sprintf("table %q must have exactly one primary key, found %d", t.name, pkCount)).
			WithDetails(map[string]interface{}{"table": t.name, "primary_keys": pkCount})
	}
	return nil
}

// Schema is an immutable set of tables.
type Schema struct {
	tables map[string]*Table
	names  []string
}

// New validates the tables and returns a Schema. Each table must have
// exactly one primary key.
func New(tables ...*Table) (*Schema, error) {
	s := &Schema{tables: make(map[string]*Table, len(tables))}
	for _, t := range tables {
		if t == nil {
			continue
		}
		if err := t.validate(); err != nil {
			return nil, err
		}
		if _, dup := s.tables[t.name]; dup {
			return nil, arkerrors.NewSchemaError(t.name, fmt.Sprintf("table %q declared twice", t.name))
		}
		s.tables[t.name] = t
		s.names = append(s.names, t.name)
	}
	sort.Strings(s.names)
	return s, nil
}

// MustNew is New that panics on error, for package-level schema literals.
func MustNew(tables ...*Table) *Schema {
	s, err := New(tables...)
	if err != nil {
		panic(err)
	}
	return s
}

// Table returns the named table.
func (s *Schema) Table(name string) (*Table, bool) {
	t, ok := s.tables[name]
	return t, ok
}

// TableNames returns table names in sorted order.
func (s *Schema) TableNames() []string {
	return append([]string(nil), s.names...)
}

// Without returns a copy of the schema minus one table.
func (s *Schema) Without(name string) *Schema {
	out := &Schema{tables: make(map[string]*Table, len(s.tables))}
	for _, n := range s.names {
		if n == name {
			continue
		}
		out.tables[n] = s.tables[n]
		out.names = append(out.names, n)
	}
	return out
}
