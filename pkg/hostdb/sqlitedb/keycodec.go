package sqlitedb

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/arkilian/arkdb/pkg/hostdb"
)

// Keys are stored as BLOBs whose byte order (SQLite compares BLOBs with
// memcmp) matches hostdb.CompareKeys.
const (
	tagNumber byte = 0x10
	tagDate   byte = 0x20
	tagString byte = 0x30
	tagBinary byte = 0x40
	tagArray  byte = 0x50
)

// encodeKey normalizes v and returns its ordered encoding.
func encodeKey(v interface{}) ([]byte, error) {
	k, ok := hostdb.NormalizeKey(v)
	if !ok {
		return nil, fmt.Errorf("%w: %v is not a valid key", hostdb.ErrData, v)
	}
	return appendKey(nil, k), nil
}

func appendKey(buf []byte, k interface{}) []byte {
	switch v := k.(type) {
	case int64:
		buf = append(buf, tagNumber)
		buf = appendFloat(buf, float64(v))
		return appendInt(buf, v)
	case float64:
		buf = append(buf, tagNumber)
		buf = appendFloat(buf, v)
		var tail int64
		switch {
		case v >= math.MaxInt64:
			tail = math.MaxInt64
		case v <= math.MinInt64:
			tail = math.MinInt64
		default:
			tail = int64(math.Floor(v))
		}
		return appendInt(buf, tail)
	case time.Time:
		buf = append(buf, tagDate)
		return appendInt(buf, v.UnixNano())
	case string:
		buf = append(buf, tagString)
		return appendEscaped(buf, []byte(v))
	case []byte:
		buf = append(buf, tagBinary)
		return appendEscaped(buf, v)
	case []interface{}:
		buf = append(buf, tagArray)
		for _, e := range v {
			buf = appendKey(buf, e)
		}
		return append(buf, 0x00)
	}
	return buf
}

// appendFloat writes f so that unsigned byte order equals numeric order.
func appendFloat(buf []byte, f float64) []byte {
	bits := math.Float64bits(f)
	if f < 0 {
		bits = ^bits
	} else {
		bits |= 1 << 63
	}
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], bits)
	return append(buf, b[:]...)
}

func appendInt(buf []byte, i int64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(i)^(1<<63))
	return append(buf, b[:]...)
}

// appendEscaped writes bytes with 0x00 escaped as 0x00 0xFF and a 0x00 0x00
// terminator, keeping prefix order intact.
func appendEscaped(buf, data []byte) []byte {
	for _, c := range data {
		if c == 0x00 {
			buf = append(buf, 0x00, 0xFF)
			continue
		}
		buf = append(buf, c)
	}
	return append(buf, 0x00, 0x00)
}
