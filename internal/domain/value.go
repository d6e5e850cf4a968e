package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Value is a scalar that may be absent. The zero Value is absent.
type Value struct {
	Float float64
	Valid bool
}

// Present wraps a number. NaN and ±Inf are not data and come back absent.
func Present(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}
	}
	return Value{Float: f, Valid: true}
}

// Absent returns the absent Value.
func Absent() Value { return Value{} }

// Ptr returns the number as a pointer, or nil when absent.
func (v Value) Ptr() *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float
	return &f
}

func (v Value) String() string {
	if !v.Valid {
		return "n/a"
	}
	return strconv.FormatFloat(v.Float, 'f', 2, 64)
}

// MarshalJSON encodes an absent Value as null.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(v.Float)
}

// UnmarshalJSON decodes null as absent.
func (v *Value) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*v = Value{}
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("decode value: %w", err)
	}
	*v = Present(f)
	return nil
}
