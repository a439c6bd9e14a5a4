package query

import (
	"context"

	arkerrors "github.com/arkilian/arkdb/internal/errors"
	"github.com/arkilian/arkdb/internal/observability"
	"github.com/arkilian/arkdb/internal/validation"
	"github.com/arkilian/arkdb/pkg/hostdb"
	"github.com/arkilian/arkdb/pkg/types"
)

// Insert adds records to one table. The whole batch is written in one
// scope: if any record fails, none is kept.
type Insert struct {
	env     Env
	table   string
	records []types.Record
	upsert  bool
}

// NewInsert starts an insert on table.
func NewInsert(env Env, table string) *Insert {
	return &Insert{env: env, table: table}
}

// Values appends records to the batch.
func (i *Insert) Values(records ...types.Record) *Insert {
	i.records = append(i.records, records...)
	return i
}

// Upsert replaces records whose primary key already exists instead of
// failing.
func (i *Insert) Upsert() *Insert {
	i.upsert = true
	return i
}

// Run validates every record, writes the batch and returns the records as
// stored, including generated fields.
func (i *Insert) Run(ctx context.Context) ([]types.Record, error) {
	records, upsert := i.records, i.upsert
	i.records, i.upsert = nil, false

	table, desc, err := i.env.Catalog.Table(i.table)
	if err != nil {
		return nil, err
	}
	prepared := make([]types.Record, len(records))
	for n, rec := range records {
		if prepared[n], err = validation.Prepare(rec, table, false); err != nil {
			return nil, err
		}
	}
	if len(prepared) == 0 {
		return []types.Record{}, nil
	}

	stored := make([]types.Record, 0, len(prepared))
	err = i.env.Binding.Run(ctx, i.table, hostdb.ReadWrite, func(ctx context.Context, c hostdb.Collection) error {
		keys := make([]interface{}, len(prepared))
		for n, rec := range prepared {
			write := c.Add
			if upsert {
				write = c.Put
			}
			key, err := write(ctx, rec)
			if err != nil {
				return err
			}
			keys[n] = key
		}
		for _, key := range keys {
			rec, found, err := c.Get(ctx, key)
			if err != nil {
				return err
			}
			if !found {
				return arkerrors.NewInternalError("record missing after write", nil).
					WithDetails(map[string]interface{}{"table": desc.Name, "key": key})
			}
			stored = append(stored, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// Update patches every record matching a predicate (all records without
// one) and reports how many were written.
type Update struct {
	env   Env
	table string
	patch types.Record
	pred  Predicate
}

// NewUpdate starts an update on table.
func NewUpdate(env Env, table string) *Update {
	return &Update{env: env, table: table}
}

// Set sets the patch merged into each matching record.
func (u *Update) Set(patch types.Record) *Update {
	u.patch = patch
	return u
}

// Where restricts the update to records matching pred.
func (u *Update) Where(pred Predicate) *Update {
	u.pred = pred
	return u
}

// Run applies the patch. Records are read with a full scan, merged,
// re-validated with update hooks applied, and written back in one scope.
func (u *Update) Run(ctx context.Context) (int, error) {
	patch, pred := u.patch, u.pred
	u.patch, u.pred = nil, nil

	table, _, err := u.env.Catalog.Table(u.table)
	if err != nil {
		return 0, err
	}
	if patch == nil {
		return 0, arkerrors.NewQueryError(arkerrors.CodeInvalidQuery, "update requires a patch")
	}
	if err := validation.CheckFields(patch, table); err != nil {
		return 0, err
	}

	written := 0
	err = u.env.Binding.Run(ctx, u.table, hostdb.ReadWrite, func(ctx context.Context, c hostdb.Collection) error {
		records, err := c.GetAll(ctx, nil, 0)
		if err != nil {
			return err
		}
		for _, rec := range records {
			if pred != nil && !pred(rec) {
				continue
			}
			next, err := validation.PrepareUpdate(rec, patch, table)
			if err != nil {
				return err
			}
			if _, err := c.Put(ctx, next); err != nil {
				return err
			}
			written++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	u.env.Stats.RecordAccess(u.table, observability.PathFullScan)
	return written, nil
}

// Delete removes every record matching a predicate (all records without
// one) and reports how many were removed.
type Delete struct {
	env   Env
	table string
	pred  Predicate
}

// NewDelete starts a delete on table.
func NewDelete(env Env, table string) *Delete {
	return &Delete{env: env, table: table}
}

// Where restricts the delete to records matching pred.
func (d *Delete) Where(pred Predicate) *Delete {
	d.pred = pred
	return d
}

// Run removes matching records by primary key in one scope.
func (d *Delete) Run(ctx context.Context) (int, error) {
	pred := d.pred
	d.pred = nil

	keyPath, err := d.env.Catalog.KeyPath(d.table)
	if err != nil {
		return 0, err
	}

	removed := 0
	err = d.env.Binding.Run(ctx, d.table, hostdb.ReadWrite, func(ctx context.Context, c hostdb.Collection) error {
		records, err := c.GetAll(ctx, nil, 0)
		if err != nil {
			return err
		}
		for _, rec := range records {
			if pred != nil && !pred(rec) {
				continue
			}
			key, ok := hostdb.KeyOf(rec, keyPath)
			if !ok {
				continue
			}
			if err := c.Delete(ctx, key); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	d.env.Stats.RecordAccess(d.table, observability.PathFullScan)
	return removed, nil
}
