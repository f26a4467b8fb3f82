package entity

import (
	"fmt"
	"math"
)

// LoadState is the load state of a single attribute
type LoadState int

const (
	// Unloaded means the attribute has not been materialized yet
	Unloaded LoadState = iota
	// Loaded means the attribute holds a value
	Loaded
	// LoadedNull means the attribute was materialized and is empty
	LoadedNull
)

// String returns the string representation of the load state
func (s LoadState) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loaded:
		return "loaded"
	case LoadedNull:
		return "null"
	default:
		return "unknown"
	}
}

// Value is an attribute value together with its load state
type Value struct {
	state LoadState
	v     interface{}
}

// NotLoaded returns the value of an attribute that was not materialized
func NotLoaded() Value {
	return Value{state: Unloaded}
}

// Null returns a loaded empty value
func Null() Value {
	return Value{state: LoadedNull}
}

// Of returns a loaded value, nil becomes a loaded empty value
func Of(v interface{}) Value {
	if v == nil {
		return Null()
	}
	return Value{state: Loaded, v: v}
}

// State returns the load state
func (v Value) State() LoadState {
	return v.state
}

// IsLoaded returns true for loaded values, empty ones included
func (v Value) IsLoaded() bool {
	return v.state != Unloaded
}

// IsNull returns true for loaded empty values
func (v Value) IsNull() bool {
	return v.state == LoadedNull
}

// Get returns the value and whether it was loaded
func (v Value) Get() (interface{}, bool) {
	return v.v, v.state != Unloaded
}

// String implements fmt.Stringer
func (v Value) String() string {
	switch v.state {
	case Loaded:
		return fmt.Sprintf("%v", v.v)
	default:
		return "<" + v.state.String() + ">"
	}
}

// NormalizeID maps equivalent id values onto one comparable key, so that an
// id scanned as int64 and one assigned as int match
func NormalizeID(id interface{}) interface{} {
	switch v := id.(type) {
	case int:
		return int64(v)
	case int8:
		return int64(v)
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	case uint:
		return int64(v)
	case uint8:
		return int64(v)
	case uint16:
		return int64(v)
	case uint32:
		return int64(v)
	case uint64:
		return int64(v)
	case float32:
		return normalizeFloat(float64(v))
	case float64:
		return normalizeFloat(v)
	case []byte:
		return string(v)
	default:
		return v
	}
}

func normalizeFloat(f float64) interface{} {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int64(f)
	}
	return f
}
