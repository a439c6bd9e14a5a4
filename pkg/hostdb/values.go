package hostdb

import (
	"math/big"
	"reflect"
	"time"

	"github.com/arkilian/arkdb/pkg/types"
)

// NormalizeRecord returns a deep copy of rec in the value forms every
// engine hands back from reads:
//
//   - integers of any kind are int64 (uint64 above MaxInt64 becomes float64)
//   - float32 is float64
//   - big.Int values are *big.Int
//   - slices and arrays other than []byte are []interface{}
//   - string-keyed maps are map[string]interface{}
//
// Named string, bool and numeric types become their base type. Other
// values (time.Time, []byte, structs, pointers) keep their type.
// Validators and update hooks see stored values in these forms.
func NormalizeRecord(rec types.Record) types.Record {
	if rec == nil {
		return nil
	}
	out := make(types.Record, len(rec))
	for k, v := range rec {
		out[k] = NormalizeValue(v)
	}
	return out
}

// NormalizeValue converts one value the way NormalizeRecord does.
func NormalizeValue(v interface{}) interface{} {
	switch t := v.(type) {
	case nil, bool, string, int64, float64, time.Time, *big.Int:
		return v
	case int:
		return int64(t)
	case int8:
		return int64(t)
	case int16:
		return int64(t)
	case int32:
		return int64(t)
	case uint:
		return uintKey(uint64(t))
	case uint8:
		return int64(t)
	case uint16:
		return int64(t)
	case uint32:
		return int64(t)
	case uint64:
		return uintKey(t)
	case float32:
		return float64(t)
	case big.Int:
		return new(big.Int).Set(&t)
	case []byte:
		out := make([]byte, len(t))
		copy(out, t)
		return out
	case types.Record:
		return map[string]interface{}(NormalizeRecord(t))
	case map[string]interface{}:
		return map[string]interface{}(NormalizeRecord(t))
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = NormalizeValue(e)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return uintKey(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil
		}
		out := make([]interface{}, rv.Len())
		for i := range out {
			out[i] = NormalizeValue(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		out := make(map[string]interface{}, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = NormalizeValue(iter.Value().Interface())
		}
		return out
	}
	return v
}
