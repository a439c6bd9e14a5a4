package hostdb

import "fmt"

// KeyRange bounds a key request. A nil bound is unbounded; a nil *KeyRange
// matches every key.
type KeyRange struct {
	Lower     interface{}
	Upper     interface{}
	LowerOpen bool
	UpperOpen bool
}

// Only matches exactly one key.
func Only(key interface{}) *KeyRange {
	return &KeyRange{Lower: key, Upper: key}
}

// Bound matches keys between lower and upper.
func Bound(lower, upper interface{}, lowerOpen, upperOpen bool) *KeyRange {
	return &KeyRange{Lower: lower, Upper: upper, LowerOpen: lowerOpen, UpperOpen: upperOpen}
}

// LowerBound matches keys at or above lower (above when open).
func LowerBound(lower interface{}, open bool) *KeyRange {
	return &KeyRange{Lower: lower, LowerOpen: open}
}

// UpperBound matches keys at or below upper (below when open).
func UpperBound(upper interface{}, open bool) *KeyRange {
	return &KeyRange{Upper: upper, UpperOpen: open}
}

// Validate checks that bounds are valid keys and ordered.
func (r *KeyRange) Validate() error {
	if r == nil {
		return nil
	}
	if r.Lower != nil && !IsValidKey(r.Lower) {
		return fmt.Errorf("%w: invalid lower bound %v", ErrData, r.Lower)
	}
	if r.Upper != nil && !IsValidKey(r.Upper) {
		return fmt.Errorf("%w: invalid upper bound %v", ErrData, r.Upper)
	}
	if r.Lower != nil && r.Upper != nil && CompareKeys(r.Lower, r.Upper) > 0 {
		return fmt.Errorf("%w: lower bound above upper bound", ErrData)
	}
	return nil
}

// Includes reports whether key falls inside the range.
func (r *KeyRange) Includes(key interface{}) bool {
	if r == nil {
		return true
	}
	if r.Lower != nil {
		c := CompareKeys(key, r.Lower)
		if c < 0 || (c == 0 && r.LowerOpen) {
			return false
		}
	}
	if r.Upper != nil {
		c := CompareKeys(key, r.Upper)
		if c > 0 || (c == 0 && r.UpperOpen) {
			return false
		}
	}
	return true
}

// IsOnly reports whether the range matches a single key.
func (r *KeyRange) IsOnly() bool {
	return r != nil && r.Lower != nil && r.Upper != nil && !r.LowerOpen && !r.UpperOpen &&
		CompareKeys(r.Lower, r.Upper) == 0
}
