// Package query implements the fluent select, insert, update and delete
// builders. Builders accumulate a Plan; terminal calls hand it to Choose,
// which picks the access path, and run it inside a scope supplied by a
// Binding.
package query

import (
	"fmt"

	arkerrors "github.com/arkilian/arkdb/internal/errors"
	"github.com/arkilian/arkdb/internal/observability"
	"github.com/arkilian/arkdb/pkg/hostdb"
	"github.com/arkilian/arkdb/pkg/types"
)

// Predicate filters records in memory.
type Predicate func(types.Record) bool

// IndexFilter restricts a query to a key range of the primary key or of a
// declared index.
type IndexFilter struct {
	Name  string
	Range *hostdb.KeyRange
}

// validate rejects a missing key and malformed ranges. A nil Range comes
// from an equality filter on a nil value, which no record can be indexed
// under.
func (f *IndexFilter) validate() error {
	if f.Range == nil {
		return arkerrors.NewQueryError(arkerrors.CodeInvalidQuery,
			fmt.Sprintf("index filter on %q requires a key value or range", f.Name))
	}
	if err := f.Range.Validate(); err != nil {
		return arkerrors.NewQueryError(arkerrors.CodeInvalidQuery, err.Error())
	}
	return nil
}

// SortSpec orders results by Key. UseIndex asks for a cursor traversal of
// the index named Key; otherwise Key is a dotted record path sorted in
// memory.
type SortSpec struct {
	Key       string
	Direction types.Direction
	UseIndex  bool
}

// Projection selects fields. Include keeps only the fields mapped to
// true; otherwise every field mapped to false is dropped.
type Projection struct {
	Include bool
	Fields  map[string]bool
}

// NewProjection derives include or exclude semantics from fields.
func NewProjection(fields map[string]bool) *Projection {
	p := &Projection{Fields: make(map[string]bool, len(fields))}
	for k, v := range fields {
		p.Fields[k] = v
		if v {
			p.Include = true
		}
	}
	return p
}

// Apply returns the projected copy of rec. A nil projection returns rec.
func (p *Projection) Apply(rec types.Record) types.Record {
	if p == nil || rec == nil {
		return rec
	}
	out := make(types.Record, len(rec))
	for k, v := range rec {
		keep, listed := p.Fields[k]
		if p.Include {
			if listed && keep {
				out[k] = v
			}
			continue
		}
		if !listed || keep {
			out[k] = v
		}
	}
	return out
}

// Plan is the state a builder accumulates before a terminal call.
type Plan struct {
	Predicate  Predicate
	Index      *IndexFilter
	Sort       *SortSpec
	Projection *Projection
	Limit      int // -1 means no limit
}

// NewPlan returns an empty plan.
func NewPlan() Plan {
	return Plan{Limit: -1}
}

// Strategy is the resolved access path for a plan.
type Strategy struct {
	// Path is one of the observability.Path* names.
	Path string

	// Index is the index traversed; empty means the primary key.
	Index   string
	KeyPath string
	Range   *hostdb.KeyRange

	// Direction applies to cursor traversals.
	Direction types.Direction

	// Filter runs in memory after the host request.
	Filter Predicate

	// Sort is the in-memory sort, nil when the traversal yields the order.
	Sort *SortSpec

	Limit int

	// PushLimit is set when the host can stop after Limit entries.
	PushLimit bool
}

// resolveKey maps a primary key path or index name to the index to use.
func resolveKey(desc types.CollectionDescriptor, name string) (index, keyPath string, err error) {
	if name == desc.PrimaryKeyPath {
		return "", name, nil
	}
	if idx, ok := desc.Index(name); ok {
		return idx.Name, idx.KeyPath, nil
	}
	return "", "", arkerrors.NewIndexNotFoundError(desc.Name, name)
}

// Choose picks the access path for plan on desc. An index filter wins over
// a predicate; an index sort only drives a cursor when no predicate is set
// and the key is the primary key or a declared index, otherwise it falls
// back to an in-memory sort.
func Choose(plan Plan, desc types.CollectionDescriptor) (Strategy, error) {
	st := Strategy{
		Path:      observability.PathFullScan,
		Direction: types.Asc,
		Filter:    plan.Predicate,
		Sort:      plan.Sort,
		Limit:     plan.Limit,
	}

	switch {
	case plan.Index != nil:
		if err := plan.Index.validate(); err != nil {
			return Strategy{}, err
		}
		index, keyPath, err := resolveKey(desc, plan.Index.Name)
		if err != nil {
			return Strategy{}, err
		}
		st.Index, st.KeyPath, st.Range = index, keyPath, plan.Index.Range
		st.Path = observability.PathIndexRequest
		if index == "" && plan.Index.Range.IsOnly() {
			st.Path = observability.PathPrimaryKeyGet
			st.Sort = nil
			break
		}
		if s := plan.Sort; s != nil && s.UseIndex && plan.Predicate == nil {
			if sIndex, _, err := resolveKey(desc, s.Key); err == nil && sIndex == index {
				st.Path = observability.PathIndexCursor
				st.Direction = s.Direction
				st.Sort = nil
			}
		}

	case plan.Predicate != nil:
		// Full scan; any sort happens in memory.

	case plan.Sort != nil && plan.Sort.UseIndex:
		index, keyPath, err := resolveKey(desc, plan.Sort.Key)
		if err != nil {
			break
		}
		st.Path = observability.PathIndexCursor
		st.Index, st.KeyPath = index, keyPath
		st.Direction = plan.Sort.Direction
		st.Sort = nil
	}

	if st.Path == observability.PathFullScan {
		st.KeyPath = desc.PrimaryKeyPath
	}
	st.PushLimit = st.Filter == nil && st.Sort == nil && st.Limit >= 0
	return st, nil
}
