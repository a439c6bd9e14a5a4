package query

import (
	"context"

	"github.com/arkilian/arkdb/internal/observability"
	"github.com/arkilian/arkdb/pkg/hostdb"
	"github.com/arkilian/arkdb/pkg/types"
)

// source is the read surface shared by collections and indexes.
type source interface {
	GetAll(ctx context.Context, r *hostdb.KeyRange, limit int) ([]types.Record, error)
	Count(ctx context.Context, r *hostdb.KeyRange) (int, error)
	OpenCursor(ctx context.Context, r *hostdb.KeyRange, dir types.Direction) (hostdb.Cursor, error)
}

func sourceOf(c hostdb.Collection, index string) (source, error) {
	if index == "" {
		return c, nil
	}
	idx, err := c.Index(index)
	if err != nil {
		return nil, err
	}
	return idx, nil
}

// execute runs st against c and returns filtered, sorted and limited
// records. Projection is left to the caller.
func execute(ctx context.Context, c hostdb.Collection, st Strategy) ([]types.Record, error) {
	if st.PushLimit && st.Limit == 0 {
		return []types.Record{}, nil
	}
	limit := 0
	if st.PushLimit {
		limit = st.Limit
	}

	var records []types.Record
	switch st.Path {
	case observability.PathPrimaryKeyGet:
		rec, found, err := c.Get(ctx, st.Range.Lower)
		if err != nil {
			return nil, err
		}
		if found {
			records = []types.Record{rec}
		}

	case observability.PathIndexRequest:
		src, err := sourceOf(c, st.Index)
		if err != nil {
			return nil, err
		}
		if records, err = src.GetAll(ctx, st.Range, limit); err != nil {
			return nil, err
		}

	case observability.PathIndexCursor:
		src, err := sourceOf(c, st.Index)
		if err != nil {
			return nil, err
		}
		if records, err = collect(ctx, src, st.Range, st.Direction, limit); err != nil {
			return nil, err
		}

	default:
		var err error
		if records, err = c.GetAll(ctx, nil, limit); err != nil {
			return nil, err
		}
	}

	return finish(records, st), nil
}

// collect walks a cursor, stopping after limit records when limit > 0.
func collect(ctx context.Context, src source, r *hostdb.KeyRange, dir types.Direction, limit int) ([]types.Record, error) {
	cur, err := src.OpenCursor(ctx, r, dir)
	if err != nil {
		return nil, err
	}
	defer cur.Close()

	var out []types.Record
	for cur.Next() {
		out = append(out, cur.Value())
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, cur.Err()
}

// finish applies the in-memory stages: filter, sort, limit.
func finish(records []types.Record, st Strategy) []types.Record {
	if st.Filter != nil {
		kept := records[:0:0]
		for _, rec := range records {
			if st.Filter(rec) {
				kept = append(kept, rec)
			}
		}
		records = kept
	}
	sortRecords(records, st.Sort)
	if st.Limit >= 0 && len(records) > st.Limit {
		records = records[:st.Limit]
	}
	if records == nil {
		records = []types.Record{}
	}
	return records
}

func project(records []types.Record, p *Projection) []types.Record {
	if p == nil {
		return records
	}
	out := make([]types.Record, len(records))
	for i, rec := range records {
		out[i] = p.Apply(rec)
	}
	return out
}
