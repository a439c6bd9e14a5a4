package query

import (
	"fmt"
	"sort"

	"github.com/arkilian/arkdb/pkg/hostdb"
	"github.com/arkilian/arkdb/pkg/types"
)

// sortRecords sorts records in place by the dotted path by.Key. The sort
// is stable: records with equal values keep their input order in both
// directions.
func sortRecords(records []types.Record, by *SortSpec) {
	if by == nil || len(records) <= 1 {
		return
	}

	// Resolve sort values once
	values := make([]interface{}, len(records))
	present := make([]bool, len(records))
	for i, rec := range records {
		values[i], present[i] = rec.Get(by.Key)
	}

	idx := make([]int, len(records))
	for i := range idx {
		idx[i] = i
	}

	// Stable sort preserves insertion order for equal elements
	sort.SliceStable(idx, func(i, j int) bool {
		a, b := idx[i], idx[j]
		cmp := compareValues(values[a], present[a], values[b], present[b])
		if by.Direction == types.Desc {
			return cmp > 0
		}
		return cmp < 0
	})

	sorted := make([]types.Record, len(records))
	for i, j := range idx {
		sorted[i] = records[j]
	}
	copy(records, sorted)
}

// compareValues orders absent and nil values first, then booleans, then
// keys in host key order, then anything else by its printed form.
func compareValues(a interface{}, aok bool, b interface{}, bok bool) int {
	ra, rb := valueRank(a, aok), valueRank(b, bok)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}

	switch ra {
	case rankMissing:
		return 0
	case rankBool:
		x, y := a.(bool), b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		}
		return 1
	case rankKey:
		return hostdb.CompareKeys(a, b)
	}

	sa, sb := fmt.Sprint(a), fmt.Sprint(b)
	switch {
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	}
	return 0
}

const (
	rankMissing = iota
	rankBool
	rankKey
	rankOther
)

func valueRank(v interface{}, ok bool) int {
	if !ok || v == nil {
		return rankMissing
	}
	if _, isBool := v.(bool); isBool {
		return rankBool
	}
	if hostdb.IsValidKey(v) {
		return rankKey
	}
	return rankOther
}
