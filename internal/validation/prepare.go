// Package validation checks and normalizes records against a table
// declaration before they are handed to the host engine.
package validation

import (
	"sort"

	arkerrors "github.com/arkilian/arkdb/internal/errors"
	"github.com/arkilian/arkdb/pkg/hostdb"
	"github.com/arkilian/arkdb/pkg/schema"
	"github.com/arkilian/arkdb/pkg/types"
	"github.com/google/uuid"
)

// Prepare validates raw against table and returns the record to store.
// On insert it fills generated and default values; on update it expects a
// record that already carries every stored field.
//
// The input is never modified.
func Prepare(raw types.Record, table *schema.Table, isUpdate bool) (types.Record, error) {
	if err := CheckFields(raw, table); err != nil {
		return nil, err
	}

	out := raw.Clone()
	if out == nil {
		out = types.Record{}
	}

	for _, f := range table.Fields() {
		d := f.Column.Describe()
		v, present := out[f.Name]

		if !present {
			if isUpdate {
				continue
			}
			switch {
			case d.Tag == schema.TypeUUID && !d.HasDefault:
				out[f.Name] = uuid.NewString()
			case d.Tag == schema.TypeTimestamp && !d.HasDefault:
				out[f.Name] = NowTimestamp()
			case d.HasDefault:
				out[f.Name] = d.DefaultValue()
			case d.Optional || d.PrimaryKey:
				continue
			default:
				return nil, arkerrors.NewRequiredFieldMissingError(table.Name(), f.Name)
			}
			v = out[f.Name]
		}

		if v == nil {
			if !d.Optional && !d.PrimaryKey {
				return nil, arkerrors.NewRequiredFieldMissingError(table.Name(), f.Name)
			}
			if d.PrimaryKey {
				delete(out, f.Name)
			}
			continue
		}

		if !isUpdate && d.PrimaryKey && d.AutoIncrement {
			continue
		}

		if d.Validator != nil {
			if err := d.Validator(v); err != nil {
				return nil, arkerrors.NewTypeValidationError(table.Name(), f.Name, err.Error())
			}
			continue
		}
		if msg := CheckType(d, v); msg != "" {
			return nil, arkerrors.NewTypeValidationError(table.Name(), f.Name, msg)
		}
	}
	return out, nil
}

// PrepareUpdate merges patch over existing, applies update hooks and
// validates the result. The primary key cannot be changed by a patch.
func PrepareUpdate(existing, patch types.Record, table *schema.Table) (types.Record, error) {
	if err := CheckFields(patch, table); err != nil {
		return nil, err
	}

	pk := table.PrimaryKey()
	if nv, ok := patch[pk]; ok {
		if ov, had := existing[pk]; !had || hostdb.CompareKeys(ov, nv) != 0 {
			return nil, arkerrors.NewTypeValidationError(table.Name(), pk, "primary key cannot be updated")
		}
	}

	merged := existing.Clone()
	if merged == nil {
		merged = types.Record{}
	}
	for k, v := range patch {
		merged[k] = types.CloneValue(v)
	}

	for _, f := range table.Fields() {
		if hook := f.Column.Describe().OnUpdate; hook != nil {
			merged[f.Name] = hook(merged[f.Name])
		}
	}
	return Prepare(merged, table, true)
}

// CheckFields rejects the first field of rec (in name order) that table
// does not declare.
func CheckFields(rec types.Record, table *schema.Table) error {
	fields := rec.Fields()
	sort.Strings(fields)
	for _, name := range fields {
		if _, ok := table.Column(name); !ok {
			return arkerrors.NewUnknownFieldError(table.Name(), name)
		}
	}
	return nil
}
