// Package types provides the core data types shared by arkdb packages.
package types

import "strings"

// Record is a single row as seen by arkdb: a string-keyed value map.
// Nested objects are represented as map[string]interface{} or Record.
type Record map[string]interface{}

// Get resolves a dotted path such as "profile.age" against the record.
// The second result is false when any segment is missing or not a map.
func (r Record) Get(path string) (interface{}, bool) {
	if r == nil {
		return nil, false
	}
	if !strings.Contains(path, ".") {
		v, ok := r[path]
		return v, ok
	}

	var cur interface{} = map[string]interface{}(r)
	for _, segment := range strings.Split(path, ".") {
		switch m := cur.(type) {
		case map[string]interface{}:
			v, ok := m[segment]
			if !ok {
				return nil, false
			}
			cur = v
		case Record:
			v, ok := m[segment]
			if !ok {
				return nil, false
			}
			cur = v
		default:
			return nil, false
		}
	}
	return cur, true
}

// Has reports whether the top-level field is present, even with a nil value.
func (r Record) Has(field string) bool {
	_, ok := r[field]
	return ok
}

// Clone returns a deep copy of the record. Maps and slices of interface
// values are copied recursively; other values are shared.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneValue deep-copies the container shapes produced by JSON decoding
// and by Record literals.
func CloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case Record:
		return t.Clone()
	case map[string]interface{}:
		return map[string]interface{}(Record(t).Clone())
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = CloneValue(e)
		}
		return out
	case []byte:
		out := make([]byte, len(t))
		copy(out, t)
		return out
	default:
		return v
	}
}

// Fields returns the top-level field names of the record in no particular order.
func (r Record) Fields() []string {
	out := make([]string, 0, len(r))
	for k := range r {
		out = append(out, k)
	}
	return out
}
