package query

import (
	"context"

	arkerrors "github.com/arkilian/arkdb/internal/errors"
	"github.com/arkilian/arkdb/internal/observability"
	"github.com/arkilian/arkdb/pkg/hostdb"
	"github.com/arkilian/arkdb/pkg/types"
)

// PageCursor marks the first entry of the next page in traversal order.
type PageCursor struct {
	Key        interface{} `json:"key"`
	PrimaryKey interface{} `json:"primary_key"`
}

// PageRequest asks for up to Limit records starting at Cursor.
type PageRequest struct {
	Cursor *PageCursor `json:"cursor,omitempty"`
	Limit  int         `json:"limit"`
}

// PageResult is one page. NextCursor is nil once the traversal is
// exhausted.
type PageResult struct {
	Items      []types.Record `json:"items"`
	NextCursor *PageCursor    `json:"next_cursor,omitempty"`
}

// Page walks the sort index (the primary key by default) with a cursor and
// returns one page of records. The plan's predicate, index range and
// projection apply; OrderBy sorts are not supported.
func (s *Select) Page(ctx context.Context, req PageRequest) (*PageResult, error) {
	plan := s.take()
	if req.Limit <= 0 {
		return nil, arkerrors.NewQueryError(arkerrors.CodeInvalidQuery, "page limit must be positive")
	}
	_, desc, err := s.env.Catalog.Table(s.table)
	if err != nil {
		return nil, err
	}

	index, keyPath, dir := "", desc.PrimaryKeyPath, types.Asc
	if plan.Sort != nil {
		if !plan.Sort.UseIndex {
			return nil, arkerrors.NewQueryError(arkerrors.CodeInvalidQuery, "page requires an index sort")
		}
		if index, keyPath, err = resolveKey(desc, plan.Sort.Key); err != nil {
			return nil, err
		}
		dir = plan.Sort.Direction
	}

	// An index filter on the traversed key narrows the cursor; on any other
	// key it is checked per record.
	var cursorRange, filterRange *hostdb.KeyRange
	var filterPath string
	if plan.Index != nil {
		if err := plan.Index.validate(); err != nil {
			return nil, err
		}
		fIndex, fPath, err := resolveKey(desc, plan.Index.Name)
		if err != nil {
			return nil, err
		}
		if fIndex == index {
			cursorRange = plan.Index.Range
		} else {
			filterRange, filterPath = plan.Index.Range, fPath
		}
	}

	var start *hostdb.Entry
	if req.Cursor != nil {
		start = &hostdb.Entry{Key: req.Cursor.Key, PrimaryKey: req.Cursor.PrimaryKey}
	}

	result := &PageResult{Items: []types.Record{}}
	err = s.env.Binding.Run(ctx, s.table, hostdb.ReadOnly, func(ctx context.Context, c hostdb.Collection) error {
		src, err := sourceOf(c, index)
		if err != nil {
			return err
		}
		cur, err := src.OpenCursor(ctx, cursorRange, dir)
		if err != nil {
			return err
		}
		defer cur.Close()

		for cur.Next() {
			e := hostdb.Entry{Key: cur.Key(), PrimaryKey: cur.PrimaryKey()}
			if start != nil && hostdb.CompareEntries(e, *start, dir) < 0 {
				continue
			}
			rec := cur.Value()
			if filterRange != nil {
				k, ok := hostdb.KeyOf(rec, filterPath)
				if !ok || !filterRange.Includes(k) {
					continue
				}
			}
			if plan.Predicate != nil && !plan.Predicate(rec) {
				continue
			}
			if len(result.Items) == req.Limit {
				result.NextCursor = &PageCursor{Key: e.Key, PrimaryKey: e.PrimaryKey}
				break
			}
			result.Items = append(result.Items, plan.Projection.Apply(rec))
		}
		return cur.Err()
	})
	if err != nil {
		return nil, err
	}
	s.env.Stats.RecordAccess(s.table, observability.PathIndexCursor)
	s.env.Stats.RecordKeyPath(s.table, keyPath, observability.PathIndexCursor)
	return result, nil
}
