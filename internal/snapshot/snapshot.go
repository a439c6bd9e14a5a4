// Package snapshot exports tables into the portable snapshot format and
// imports them back, each side inside a single transaction.
package snapshot

import (
	"context"
	"sort"

	arkerrors "github.com/arkilian/arkdb/internal/errors"
	"github.com/arkilian/arkdb/internal/query"
	"github.com/arkilian/arkdb/internal/txn"
	"github.com/arkilian/arkdb/internal/validation"
	"github.com/arkilian/arkdb/pkg/schema"
	"github.com/arkilian/arkdb/pkg/types"
)

// Catalog is the part of the connection manager export and import need.
type Catalog interface {
	query.Catalog
	Name() string
	Version() int
	Schema() *schema.Schema
}

// ExportOptions selects what Export reads.
type ExportOptions struct {
	// Tables to export, in order. Empty means every declared table.
	Tables []string

	// IncludeMetadata adds the metadata block.
	IncludeMetadata bool
}

// DefaultExportOptions exports every table with metadata.
func DefaultExportOptions() ExportOptions {
	return ExportOptions{IncludeMetadata: true}
}

// ImportOptions selects what Import writes and how.
type ImportOptions struct {
	// Tables to import. Empty means every snapshot table the schema
	// declares; other snapshot tables are skipped.
	Tables []string

	// Mode defaults to merge.
	Mode types.ImportMode
}

// ImportResult reports rows written per table.
type ImportResult struct {
	Tables map[string]int `json:"tables"`
	Rows   int            `json:"rows"`
}

// Export reads the requested tables inside one readonly transaction.
func Export(ctx context.Context, cat Catalog, env query.Env, opts ExportOptions) (*types.Snapshot, error) {
	tables := opts.Tables
	if len(tables) == 0 {
		tables = cat.Schema().TableNames()
	}
	for _, t := range tables {
		if _, _, err := cat.Table(t); err != nil {
			return nil, err
		}
	}

	snap := &types.Snapshot{Data: make(map[string][]types.Record, len(tables))}
	if len(tables) > 0 {
		err := txn.View(ctx, env, tables, func(tx *txn.Tx) error {
			for _, t := range tables {
				rows, err := tx.Select(t).FindAll(ctx)
				if err != nil {
					return err
				}
				snap.Data[t] = rows
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	if opts.IncludeMetadata {
		snap.Metadata = &types.SnapshotMetadata{
			DBName:     cat.Name(),
			Version:    cat.Version(),
			ExportedAt: validation.NowTimestamp(),
			Tables:     append([]string{}, tables...),
		}
	}
	return snap, nil
}

// Import writes snapshot rows into the targeted tables in one transaction:
// replace clears each table first, merge fails on key collisions and upsert
// overwrites by primary key.
func Import(ctx context.Context, cat Catalog, env query.Env, snap *types.Snapshot, opts ImportOptions) (*ImportResult, error) {
	if snap == nil {
		return nil, arkerrors.NewQueryError(arkerrors.CodeInvalidQuery, "import requires a snapshot")
	}
	mode := opts.Mode
	if mode == "" {
		mode = types.ImportMerge
	}
	if !mode.Valid() {
		return nil, arkerrors.NewQueryError(arkerrors.CodeInvalidQuery, "unknown import mode "+string(mode))
	}

	targets, err := importTargets(cat, snap, opts.Tables)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{Tables: make(map[string]int, len(targets))}
	if len(targets) == 0 {
		return result, nil
	}

	err = txn.Run(ctx, env, targets, func(tx *txn.Tx) error {
		for _, t := range targets {
			if mode == types.ImportReplace {
				if _, err := tx.Delete(t).Run(ctx); err != nil {
					return err
				}
			}
			ins := tx.Insert(t).Values(snap.Data[t]...)
			if mode == types.ImportUpsert {
				ins.Upsert()
			}
			written, err := ins.Run(ctx)
			if err != nil {
				return err
			}
			result.Tables[t] = len(written)
			result.Rows += len(written)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func importTargets(cat Catalog, snap *types.Snapshot, requested []string) ([]string, error) {
	if len(requested) > 0 {
		out := make([]string, 0, len(requested))
		seen := make(map[string]bool, len(requested))
		for _, t := range requested {
			if seen[t] {
				continue
			}
			seen[t] = true
			if _, _, err := cat.Table(t); err != nil {
				return nil, arkerrors.NewSchemaError(t, "import target is not declared in the schema")
			}
			out = append(out, t)
		}
		return out, nil
	}

	var out []string
	for t := range snap.Data {
		if _, _, err := cat.Table(t); err == nil {
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out, nil
}
