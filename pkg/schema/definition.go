package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Definition is the file form of a schema:
//
//	tables:
//	  users:
//	    columns:
//	      - {name: id, type: integer, primary_key: true, auto_increment: true}
//	      - {name: email, type: email, unique: true}
type Definition struct {
	Tables map[string]TableDefinition `json:"tables" yaml:"tables"`
}

// TableDefinition lists a table's columns in order.
type TableDefinition struct {
	Columns []ColumnDefinition `json:"columns" yaml:"columns"`
}

// ColumnDefinition is one column in a Definition.
type ColumnDefinition struct {
	Name          string      `json:"name" yaml:"name"`
	Type          string      `json:"type" yaml:"type"`
	Length        int         `json:"length,omitempty" yaml:"length,omitempty"`
	PrimaryKey    bool        `json:"primary_key,omitempty" yaml:"primary_key,omitempty"`
	AutoIncrement bool        `json:"auto_increment,omitempty" yaml:"auto_increment,omitempty"`
	Unique        bool        `json:"unique,omitempty" yaml:"unique,omitempty"`
	Index         bool        `json:"index,omitempty" yaml:"index,omitempty"`
	Optional      bool        `json:"optional,omitempty" yaml:"optional,omitempty"`
	Default       interface{} `json:"default,omitempty" yaml:"default,omitempty"`
}

// Build turns the definition into a validated Schema.
func (d Definition) Build() (*Schema, error) {
	names := make([]string, 0, len(d.Tables))
	for name := range d.Tables {
		names = append(names, name)
	}
	sort.Strings(names)

	tables := make([]*Table, 0, len(names))
	for _, name := range names {
		td := d.Tables[name]
		fields := make([]Field, 0, len(td.Columns))
		for _, cd := range td.Columns {
			col, err := cd.column()
			if err != nil {
				return nil, fmt.Errorf("schema: table %q: %w", name, err)
			}
			fields = append(fields, Col(cd.Name, col))
		}
		tables = append(tables, NewTable(name, fields...))
	}
	return New(tables...)
}

func (cd ColumnDefinition) column() (Column, error) {
	tag, ok := ParseTypeTag(strings.ToLower(cd.Type))
	if !ok {
		return Column{}, fmt.Errorf("column %q: unknown type %q", cd.Name, cd.Type)
	}
	col, err := Of(tag, cd.Length)
	if err != nil {
		return Column{}, fmt.Errorf("column %q: %w", cd.Name, err)
	}
	if cd.PrimaryKey {
		col = col.PrimaryKey()
	}
	if cd.AutoIncrement {
		col = col.AutoIncrement()
	}
	if cd.Unique {
		col = col.Unique()
	}
	if cd.Index {
		col = col.Index()
	}
	if cd.Optional {
		col = col.Optional()
	}
	if cd.Default != nil {
		col = col.Default(cd.Default)
	}
	return col, nil
}

// Parse decodes a YAML or JSON definition. JSON is a subset of YAML, so
// yaml.v3 handles both.
func Parse(data []byte) (*Schema, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("schema: failed to parse definition: %w", err)
	}
	return def.Build()
}

// LoadFile reads a definition from disk.
func LoadFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schema: failed to read %s: %w", path, err)
	}

	if strings.ToLower(filepath.Ext(path)) == ".json" {
		var def Definition
		if err := json.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("schema: failed to parse %s: %w", path, err)
		}
		return def.Build()
	}
	return Parse(data)
}
