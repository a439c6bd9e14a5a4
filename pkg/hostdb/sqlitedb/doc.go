package sqlitedb

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"time"

	"github.com/arkilian/arkdb/pkg/types"
)

// Records are stored as JSON. Values JSON cannot carry are wrapped in a
// single-key object so they come back with their Go type.
const (
	tagDateField   = "$date"
	tagBigIntField = "$bigint"
	tagBytesField  = "$bytes"
	tagFloatField  = "$float"
)

func encodeDoc(rec types.Record) ([]byte, error) {
	data, err := json.Marshal(wrapValue(map[string]interface{}(rec)))
	if err != nil {
		return nil, fmt.Errorf("sqlitedb: failed to encode record: %w", err)
	}
	return data, nil
}

func decodeDoc(data []byte) (types.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("sqlitedb: failed to decode record: %w", err)
	}
	out := make(types.Record, len(raw))
	for k, v := range raw {
		out[k] = unwrapValue(v)
	}
	return out, nil
}

func wrapValue(v interface{}) interface{} {
	switch t := v.(type) {
	case float32:
		return wrapFloat(float64(t))
	case float64:
		return wrapFloat(t)
	case time.Time:
		return map[string]interface{}{tagDateField: t.Format(time.RFC3339Nano)}
	case *time.Time:
		if t == nil {
			return nil
		}
		return map[string]interface{}{tagDateField: t.Format(time.RFC3339Nano)}
	case *big.Int:
		if t == nil {
			return nil
		}
		return map[string]interface{}{tagBigIntField: t.String()}
	case big.Int:
		return map[string]interface{}{tagBigIntField: t.String()}
	case []byte:
		return map[string]interface{}{tagBytesField: base64.StdEncoding.EncodeToString(t)}
	case types.Record:
		return wrapValue(map[string]interface{}(t))
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			out[k] = wrapValue(e)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = wrapValue(e)
		}
		return out
	default:
		return v
	}
}

// wrapFloat keeps integral floats from decoding as int64.
func wrapFloat(f float64) interface{} {
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return f
	}
	return map[string]interface{}{tagFloatField: strconv.FormatFloat(f, 'g', -1, 64)}
}

func unwrapValue(v interface{}) interface{} {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]interface{}:
		if len(t) == 1 {
			if s, ok := t[tagDateField].(string); ok {
				if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
					return ts
				}
			}
			if s, ok := t[tagBigIntField].(string); ok {
				if b, ok := new(big.Int).SetString(s, 10); ok {
					return b
				}
			}
			if s, ok := t[tagFloatField].(string); ok {
				if f, err := strconv.ParseFloat(s, 64); err == nil {
					return f
				}
			}
			if s, ok := t[tagBytesField].(string); ok {
				if b, err := base64.StdEncoding.DecodeString(s); err == nil {
					return b
				}
			}
		}
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			out[k] = unwrapValue(e)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = unwrapValue(e)
		}
		return out
	default:
		return v
	}
}
