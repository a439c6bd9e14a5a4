// Package api holds the wire request shapes shared by the HTTP and gRPC
// surfaces and maps arkdb errors onto transport status codes.
package api

import (
	"fmt"

	arkerrors "github.com/arkilian/arkdb/internal/errors"
	"github.com/arkilian/arkdb/internal/query"
	"github.com/arkilian/arkdb/pkg/arkdb"
	"github.com/arkilian/arkdb/pkg/hostdb"
	"github.com/arkilian/arkdb/pkg/types"
)

// IndexSpec selects a primary key or index value or range.
type IndexSpec struct {
	Name  string      `json:"name"`
	Value interface{} `json:"value,omitempty"`
	Range *RangeSpec  `json:"range,omitempty"`
}

// RangeSpec is a key range; a missing bound is unbounded.
type RangeSpec struct {
	Lower     interface{} `json:"lower,omitempty"`
	Upper     interface{} `json:"upper,omitempty"`
	LowerOpen bool        `json:"lower_open,omitempty"`
	UpperOpen bool        `json:"upper_open,omitempty"`
}

// SortSpec orders results by an index key or a dotted path.
type SortSpec struct {
	Key       string `json:"key"`
	Direction string `json:"direction,omitempty"`
}

// FindRequest is the body of find, count and page calls.
type FindRequest struct {
	Where       map[string]interface{} `json:"where,omitempty"`
	Index       *IndexSpec             `json:"index,omitempty"`
	SortByIndex *SortSpec              `json:"sort_by_index,omitempty"`
	OrderBy     *SortSpec              `json:"order_by,omitempty"`
	Fields      map[string]bool        `json:"fields,omitempty"`
	Limit       *int                   `json:"limit,omitempty"`
	Cursor      *arkdb.PageCursor      `json:"cursor,omitempty"`
}

// InsertRequest is the body of insert calls.
type InsertRequest struct {
	Records []types.Record `json:"records"`
	Upsert  bool           `json:"upsert,omitempty"`
}

// UpdateRequest is the body of update calls.
type UpdateRequest struct {
	Set   types.Record           `json:"set"`
	Where map[string]interface{} `json:"where,omitempty"`
}

// DeleteRequest is the body of delete calls.
type DeleteRequest struct {
	Where map[string]interface{} `json:"where,omitempty"`
}

// ParseDirection parses "asc" or "desc"; empty means ascending.
func ParseDirection(s string) (types.Direction, error) {
	if s == "" {
		return types.Asc, nil
	}
	d := types.Direction(s)
	if !d.Valid() {
		return "", arkerrors.NewQueryError(arkerrors.CodeInvalidQuery, fmt.Sprintf("unknown direction %q", s))
	}
	return d, nil
}

// Apply adds the request's modifiers to sel.
func (r *FindRequest) Apply(sel *arkdb.Select) (*arkdb.Select, error) {
	if pred := Where(r.Where); pred != nil {
		sel.Where(pred)
	}
	if r.Index != nil {
		if r.Index.Name == "" {
			return nil, arkerrors.NewQueryError(arkerrors.CodeInvalidQuery, "index.name is required")
		}
		if r.Index.Range != nil {
			sel.WhereIndex(r.Index.Name, &hostdb.KeyRange{
				Lower:     r.Index.Range.Lower,
				Upper:     r.Index.Range.Upper,
				LowerOpen: r.Index.Range.LowerOpen,
				UpperOpen: r.Index.Range.UpperOpen,
			})
		} else {
			sel.WhereIndex(r.Index.Name, r.Index.Value)
		}
	}
	if r.SortByIndex != nil {
		dir, err := ParseDirection(r.SortByIndex.Direction)
		if err != nil {
			return nil, err
		}
		sel.SortByIndex(r.SortByIndex.Key, dir)
	}
	if r.OrderBy != nil {
		dir, err := ParseDirection(r.OrderBy.Direction)
		if err != nil {
			return nil, err
		}
		sel.OrderBy(r.OrderBy.Key, dir)
	}
	if len(r.Fields) > 0 {
		sel.Fields(r.Fields)
	}
	if r.Limit != nil {
		sel.Limit(*r.Limit)
	}
	return sel, nil
}

// Where turns a wire equality map into a predicate; empty means none.
func Where(fields map[string]interface{}) arkdb.Predicate {
	return query.Equals(fields)
}
