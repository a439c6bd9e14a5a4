package hostdb

import (
	"bytes"
	"encoding/json"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/arkilian/arkdb/pkg/types"
)

// Key classes in ascending order.
const (
	classInvalid = iota
	classNumber
	classDate
	classString
	classBinary
	classArray
)

// NormalizeKey converts v to its canonical key form: int64 or float64 for
// numbers, time.Time, string, []byte, or []interface{} of keys. The second
// result is false when v cannot be a key (nil, bool, maps, NaN).
func NormalizeKey(v interface{}) (interface{}, bool) {
	switch k := v.(type) {
	case int:
		return int64(k), true
	case int8:
		return int64(k), true
	case int16:
		return int64(k), true
	case int32:
		return int64(k), true
	case int64:
		return k, true
	case uint:
		return uintKey(uint64(k)), true
	case uint8:
		return int64(k), true
	case uint16:
		return int64(k), true
	case uint32:
		return int64(k), true
	case uint64:
		return uintKey(k), true
	case float32:
		return floatKey(float64(k))
	case float64:
		return floatKey(k)
	case json.Number:
		if i, err := k.Int64(); err == nil {
			return i, true
		}
		f, err := k.Float64()
		if err != nil {
			return nil, false
		}
		return floatKey(f)
	case *big.Int:
		if k == nil {
			return nil, false
		}
		if k.IsInt64() {
			return k.Int64(), true
		}
		f, _ := new(big.Float).SetInt(k).Float64()
		return f, true
	case string:
		return k, true
	case time.Time:
		return k.UTC(), true
	case []byte:
		return k, true
	case []interface{}:
		out := make([]interface{}, len(k))
		for i, e := range k {
			n, ok := NormalizeKey(e)
			if !ok {
				return nil, false
			}
			out[i] = n
		}
		return out, true
	default:
		return nil, false
	}
}

func uintKey(u uint64) interface{} {
	if u > math.MaxInt64 {
		return float64(u)
	}
	return int64(u)
}

func floatKey(f float64) (interface{}, bool) {
	if math.IsNaN(f) {
		return nil, false
	}
	if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
		return int64(f), true
	}
	return f, true
}

// IsValidKey reports whether v can be used as a primary or index key.
func IsValidKey(v interface{}) bool {
	_, ok := NormalizeKey(v)
	return ok
}

func keyClass(k interface{}) int {
	switch k.(type) {
	case int64, float64:
		return classNumber
	case time.Time:
		return classDate
	case string:
		return classString
	case []byte:
		return classBinary
	case []interface{}:
		return classArray
	}
	return classInvalid
}

// CompareKeys orders two keys: numbers before dates before strings before
// binary before arrays. Invalid keys sort first.
func CompareKeys(a, b interface{}) int {
	na, okA := NormalizeKey(a)
	nb, okB := NormalizeKey(b)
	switch {
	case !okA && !okB:
		return 0
	case !okA:
		return -1
	case !okB:
		return 1
	}
	return compareNormalized(na, nb)
}

func compareNormalized(a, b interface{}) int {
	ca, cb := keyClass(a), keyClass(b)
	if ca != cb {
		if ca < cb {
			return -1
		}
		return 1
	}

	switch x := a.(type) {
	case int64:
		switch y := b.(type) {
		case int64:
			return compareInt(x, y)
		case float64:
			return compareFloat(float64(x), y)
		}
	case float64:
		switch y := b.(type) {
		case int64:
			return compareFloat(x, float64(y))
		case float64:
			return compareFloat(x, y)
		}
	case time.Time:
		y := b.(time.Time)
		switch {
		case x.Before(y):
			return -1
		case x.After(y):
			return 1
		}
		return 0
	case string:
		return strings.Compare(x, b.(string))
	case []byte:
		return bytes.Compare(x, b.([]byte))
	case []interface{}:
		y := b.([]interface{})
		for i := 0; i < len(x) && i < len(y); i++ {
			if c := compareNormalized(x[i], y[i]); c != 0 {
				return c
			}
		}
		return compareInt(int64(len(x)), int64(len(y)))
	}
	return 0
}

func compareInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// KeyOf extracts and normalizes the key at path from rec.
func KeyOf(rec types.Record, path string) (interface{}, bool) {
	v, ok := rec.Get(path)
	if !ok {
		return nil, false
	}
	return NormalizeKey(v)
}
