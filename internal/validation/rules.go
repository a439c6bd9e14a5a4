package validation

import (
	"fmt"
	"math"
	"math/big"
	"net/mail"
	"net/url"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/arkilian/arkdb/pkg/schema"
	"github.com/google/uuid"
)

var uuidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// CheckType applies the built-in rule for a column's type tag. It returns
// the rejection message, or "" when the value passes.
func CheckType(d schema.Descriptor, v interface{}) string {
	switch d.Tag {
	case schema.TypeInteger:
		if !isInteger(v) {
			return fmt.Sprintf("expected integer, got %T", v)
		}
	case schema.TypeFloat, schema.TypeNumber:
		if !isNumber(v) {
			return fmt.Sprintf("expected number, got %T", v)
		}
	case schema.TypeNumeric:
		if isNumber(v) {
			return ""
		}
		s, ok := v.(string)
		if !ok {
			return fmt.Sprintf("expected number or numeric string, got %T", v)
		}
		if _, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil {
			return fmt.Sprintf("%q is not numeric", s)
		}
	case schema.TypeBigInt:
		switch v.(type) {
		case *big.Int, big.Int:
			return ""
		}
		if !isIntegerKind(v) {
			return fmt.Sprintf("expected big integer, got %T", v)
		}
	case schema.TypeText, schema.TypeString:
		if _, ok := v.(string); !ok {
			return fmt.Sprintf("expected string, got %T", v)
		}
	case schema.TypeChar:
		s, ok := v.(string)
		if !ok {
			return fmt.Sprintf("expected string, got %T", v)
		}
		if n := utf8.RuneCountInString(s); n != d.Length {
			return fmt.Sprintf("expected exactly %d characters, got %d", d.Length, n)
		}
	case schema.TypeVarchar:
		s, ok := v.(string)
		if !ok {
			return fmt.Sprintf("expected string, got %T", v)
		}
		if n := utf8.RuneCountInString(s); n > d.Length {
			return fmt.Sprintf("expected at most %d characters, got %d", d.Length, n)
		}
	case schema.TypeBool, schema.TypeBoolean:
		if _, ok := v.(bool); !ok {
			return fmt.Sprintf("expected boolean, got %T", v)
		}
	case schema.TypeUUID:
		s, ok := v.(string)
		if !ok || !uuidPattern.MatchString(s) {
			return fmt.Sprintf("expected UUID, got %v", v)
		}
		if _, err := uuid.Parse(s); err != nil {
			return fmt.Sprintf("expected UUID: %v", err)
		}
	case schema.TypeTimestamp:
		s, ok := v.(string)
		if !ok {
			return fmt.Sprintf("expected ISO-8601 timestamp string, got %T", v)
		}
		if _, err := ParseTimestamp(s); err != nil {
			return fmt.Sprintf("%q is not an ISO-8601 timestamp", s)
		}
	case schema.TypeEmail:
		s, ok := v.(string)
		if !ok {
			return fmt.Sprintf("expected email string, got %T", v)
		}
		addr, err := mail.ParseAddress(s)
		if err != nil || addr.Address != s || addr.Name != "" {
			return fmt.Sprintf("%q is not an email address", s)
		}
	case schema.TypeURL:
		s, ok := v.(string)
		if !ok {
			return fmt.Sprintf("expected URL string, got %T", v)
		}
		u, err := url.ParseRequestURI(s)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Sprintf("%q is not an absolute URL", s)
		}
	case schema.TypeDate:
		switch v.(type) {
		case time.Time, *time.Time:
			return ""
		}
		return fmt.Sprintf("expected date, got %T", v)
	case schema.TypeArray, schema.TypeList, schema.TypeTuple:
		if k := kindOf(v); k != reflect.Slice && k != reflect.Array {
			return fmt.Sprintf("expected array, got %T", v)
		}
	case schema.TypeSet:
		if !isSet(v) {
			return fmt.Sprintf("expected set of distinct elements, got %T", v)
		}
	case schema.TypeMap:
		if kindOf(v) != reflect.Map {
			return fmt.Sprintf("expected map, got %T", v)
		}
	case schema.TypeObject:
		if !isObject(v) {
			return fmt.Sprintf("expected object, got %T", v)
		}
	case schema.TypeCustom:
		return ""
	default:
		return fmt.Sprintf("unknown type %q", d.Tag)
	}
	return ""
}

func kindOf(v interface{}) reflect.Kind {
	if v == nil {
		return reflect.Invalid
	}
	return reflect.TypeOf(v).Kind()
}

func isIntegerKind(v interface{}) bool {
	switch kindOf(v) {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

func isNumber(v interface{}) bool {
	if isIntegerKind(v) {
		return true
	}
	switch kindOf(v) {
	case reflect.Float32, reflect.Float64:
		f := reflect.ValueOf(v).Float()
		return !math.IsNaN(f)
	}
	return false
}

func isInteger(v interface{}) bool {
	if isIntegerKind(v) {
		return true
	}
	switch kindOf(v) {
	case reflect.Float32, reflect.Float64:
		f := reflect.ValueOf(v).Float()
		return !math.IsNaN(f) && !math.IsInf(f, 0) && f == math.Trunc(f)
	}
	return false
}

func isSet(v interface{}) bool {
	rv := reflect.ValueOf(v)
	switch kindOf(v) {
	case reflect.Map:
		switch rv.Type().Elem().Kind() {
		case reflect.Struct:
			return rv.Type().Elem().NumField() == 0
		case reflect.Bool:
			return true
		}
		return false
	case reflect.Slice, reflect.Array:
		n := rv.Len()
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				if reflect.DeepEqual(rv.Index(i).Interface(), rv.Index(j).Interface()) {
					return false
				}
			}
		}
		return true
	}
	return false
}

func isObject(v interface{}) bool {
	t := reflect.TypeOf(v)
	if t == nil {
		return false
	}
	switch t.Kind() {
	case reflect.Map:
		return t.Key().Kind() == reflect.String
	case reflect.Struct:
		return true
	case reflect.Ptr:
		return t.Elem().Kind() == reflect.Struct
	}
	return false
}

// Timestamp layouts accepted as ISO-8601.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp parses the ISO-8601 forms arkdb accepts.
func ParseTimestamp(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// TimestampLayout is the format of generated timestamps.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// NowTimestamp returns the current UTC time as a generated timestamp value.
func NowTimestamp() string {
	return time.Now().UTC().Format(TimestampLayout)
}
