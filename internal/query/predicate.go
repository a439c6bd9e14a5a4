package query

import (
	"reflect"

	"github.com/arkilian/arkdb/pkg/hostdb"
	"github.com/arkilian/arkdb/pkg/types"
)

// Equals returns a predicate matching records whose dotted paths equal the
// given values. Key-shaped values compare by key order, so 3 matches 3.0;
// other values compare deeply. A nil value matches a missing field.
func Equals(fields map[string]interface{}) Predicate {
	if len(fields) == 0 {
		return nil
	}
	return func(rec types.Record) bool {
		for path, want := range fields {
			got, ok := rec.Get(path)
			if !ok || got == nil {
				if want != nil {
					return false
				}
				continue
			}
			if !valueEqual(got, want) {
				return false
			}
		}
		return true
	}
}

// And combines predicates; nil entries are skipped.
func And(preds ...Predicate) Predicate {
	var live []Predicate
	for _, p := range preds {
		if p != nil {
			live = append(live, p)
		}
	}
	switch len(live) {
	case 0:
		return nil
	case 1:
		return live[0]
	}
	return func(rec types.Record) bool {
		for _, p := range live {
			if !p(rec) {
				return false
			}
		}
		return true
	}
}

func valueEqual(a, b interface{}) bool {
	if hostdb.IsValidKey(a) && hostdb.IsValidKey(b) {
		return hostdb.CompareKeys(a, b) == 0
	}
	return reflect.DeepEqual(a, b)
}
