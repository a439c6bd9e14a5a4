package hostdb

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/arkilian/arkdb/pkg/types"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestCompareKeys_ClassOrder(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ordered := []interface{}{
		int64(-5),
		3.5,
		int64(10),
		now,
		"a",
		"b",
		[]byte{0x01},
		[]interface{}{int64(1)},
	}
	for i := 0; i < len(ordered)-1; i++ {
		if CompareKeys(ordered[i], ordered[i+1]) >= 0 {
			t.Errorf("expected %v < %v", ordered[i], ordered[i+1])
		}
		if CompareKeys(ordered[i+1], ordered[i]) <= 0 {
			t.Errorf("expected %v > %v", ordered[i+1], ordered[i])
		}
	}
}

func TestCompareKeys_MixedNumerics(t *testing.T) {
	tests := []struct {
		a, b interface{}
		want int
	}{
		{1, int64(1), 0},
		{float64(2), 2, 0},
		{json.Number("7"), uint8(7), 0},
		{int32(3), 3.5, -1},
		{json.Number("2.5"), 2, 1},
	}
	for _, tt := range tests {
		if got := CompareKeys(tt.a, tt.b); got != tt.want {
			t.Errorf("CompareKeys(%v, %v) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestNormalizeKey_Invalid(t *testing.T) {
	for _, v := range []interface{}{nil, true, map[string]interface{}{}, math.NaN(), []interface{}{true}} {
		if IsValidKey(v) {
			t.Errorf("IsValidKey(%v) = true, want false", v)
		}
	}
}

func TestKeyRange_Includes(t *testing.T) {
	tests := []struct {
		name string
		r    *KeyRange
		key  interface{}
		want bool
	}{
		{"nil range", nil, 5, true},
		{"only hit", Only(5), int64(5), true},
		{"only miss", Only(5), 6, false},
		{"closed bound", Bound(1, 10, false, false), 10, true},
		{"open upper", Bound(1, 10, false, true), 10, false},
		{"open lower", Bound(1, 10, true, false), 1, false},
		{"lower bound", LowerBound("m", false), "z", true},
		{"upper bound", UpperBound("m", true), "m", false},
	}
	for _, tt := range tests {
		if got := tt.r.Includes(tt.key); got != tt.want {
			t.Errorf("%s: Includes(%v) = %v, want %v", tt.name, tt.key, got, tt.want)
		}
	}
}

func TestKeyRange_Validate(t *testing.T) {
	if err := Bound(10, 1, false, false).Validate(); err == nil {
		t.Error("expected error for inverted bounds")
	}
	if err := Only(true).Validate(); err == nil {
		t.Error("expected error for non-key bound")
	}
	if err := Bound(1, 10, false, false).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestKeyOf_DottedPath(t *testing.T) {
	rec := types.Record{"profile": map[string]interface{}{"age": 41}}
	k, ok := KeyOf(rec, "profile.age")
	if !ok || k != int64(41) {
		t.Errorf("KeyOf = %v, %v; want 41, true", k, ok)
	}
}

func TestSliceCursor_Walk(t *testing.T) {
	c := NewSliceCursor([]Entry{{Key: 1, PrimaryKey: 1}, {Key: 2, PrimaryKey: 2}})
	var keys []interface{}
	for c.Next() {
		keys = append(keys, c.Key())
	}
	if len(keys) != 2 {
		t.Fatalf("walked %d entries, want 2", len(keys))
	}
	if c.Next() {
		t.Error("Next after end should be false")
	}
	if c.Value() != nil {
		t.Error("Value after end should be nil")
	}
}

// TestProperty_CompareKeysAntisymmetric checks that swapping arguments
// negates the comparison for integer and string keys.
func TestProperty_CompareKeysAntisymmetric(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("CompareKeys(a,b) == -CompareKeys(b,a) for ints", prop.ForAll(
		func(a, b int64) bool {
			return CompareKeys(a, b) == -CompareKeys(b, a)
		},
		gen.Int64(),
		gen.Int64(),
	))

	properties.Property("CompareKeys(a,b) == -CompareKeys(b,a) for strings", prop.ForAll(
		func(a, b string) bool {
			return CompareKeys(a, b) == -CompareKeys(b, a)
		},
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.Property("numbers always sort before strings", prop.ForAll(
		func(a int64, b string) bool {
			return CompareKeys(a, b) < 0
		},
		gen.Int64(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
