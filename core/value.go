package core

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Value is a closed variant holding one state entry. Concrete variants are
// String, Number, Bool, List and Map; the unexported marker keeps the set
// closed so stores can rely on a checkable serialization contract.
type Value interface{ isValue() }

// String is a UTF-8 text value.
type String string

// Number is a numeric value. All numbers are carried as float64 which matches
// the JSON encoding used by durable backends.
type Number float64

// Bool is a boolean value.
type Bool bool

// List is an ordered sequence of values.
type List []Value

// Map is a nested string keyed mapping.
type Map map[string]Value

func (String) isValue() {}
func (Number) isValue() {}
func (Bool) isValue()   {}
func (List) isValue()   {}
func (Map) isValue()    {}

// ValueOf converts a Go native value into a Value. Supported inputs are
// strings, booleans, all integer and float kinds, []string, []any,
// map[string]any and values that already implement Value (deep copied).
func ValueOf(v any) (Value, error) {
	switch x := v.(type) {
	case Value:
		return Clone(x), nil
	case string:
		return String(x), nil
	case bool:
		return Bool(x), nil
	case int:
		return Number(x), nil
	case int8:
		return Number(x), nil
	case int16:
		return Number(x), nil
	case int32:
		return Number(x), nil
	case int64:
		return Number(x), nil
	case uint:
		return Number(x), nil
	case uint8:
		return Number(x), nil
	case uint16:
		return Number(x), nil
	case uint32:
		return Number(x), nil
	case uint64:
		return Number(x), nil
	case float32:
		return Number(x), nil
	case float64:
		return Number(x), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedValue, err)
		}
		return Number(f), nil
	case []string:
		l := make(List, len(x))
		for i, s := range x {
			l[i] = String(s)
		}
		return l, nil
	case []any:
		l := make(List, len(x))
		for i, item := range x {
			cv, err := ValueOf(item)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			l[i] = cv
		}
		return l, nil
	case map[string]any:
		m := make(Map, len(x))
		for k, item := range x {
			cv, err := ValueOf(item)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			m[k] = cv
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
}

// MustValueOf is like ValueOf but panics on unsupported input. Intended for
// literals in tests and static initial state.
func MustValueOf(v any) Value {
	cv, err := ValueOf(v)
	if err != nil {
		panic(err)
	}
	return cv
}

// Native converts a Value back into plain Go types (string, float64, bool,
// []any, map[string]any). A nil Value yields nil.
func Native(v Value) any {
	switch x := v.(type) {
	case String:
		return string(x)
	case Number:
		return float64(x)
	case Bool:
		return bool(x)
	case List:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = Native(item)
		}
		return out
	case Map:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = Native(item)
		}
		return out
	default:
		return nil
	}
}

// Clone returns a deep copy of v.
func Clone(v Value) Value {
	switch x := v.(type) {
	case List:
		if x == nil {
			return List{}
		}
		out := make(List, len(x))
		for i, item := range x {
			out[i] = Clone(item)
		}
		return out
	case Map:
		out := make(Map, len(x))
		for k, item := range x {
			out[k] = Clone(item)
		}
		return out
	default:
		return v
	}
}

// Equal reports whether a and b are deeply equal.
func Equal(a, b Value) bool {
	switch x := a.(type) {
	case String, Number, Bool:
		return a == b
	case List:
		y, ok := b.(List)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	case Map:
		y, ok := b.(Map)
		if !ok || len(x) != len(y) {
			return false
		}
		for k, xv := range x {
			yv, ok := y[k]
			if !ok || !Equal(xv, yv) {
				return false
			}
		}
		return true
	default:
		return a == nil && b == nil
	}
}

// Strings returns the string elements of a List. Non-string elements are
// rendered with %v so reminder style lists never fail to read.
func (l List) Strings() []string {
	out := make([]string, len(l))
	for i, item := range l {
		if s, ok := item.(String); ok {
			out[i] = string(s)
			continue
		}
		out[i] = fmt.Sprintf("%v", Native(item))
	}
	return out
}

// MarshalValue encodes v as JSON.
func MarshalValue(v Value) ([]byte, error) { return json.Marshal(Native(v)) }

// UnmarshalValue decodes JSON into a Value.
func UnmarshalValue(data []byte) (Value, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return ValueOf(raw)
}

// State is the key/value bag owned by a Session.
type State map[string]Value

// NewState builds a State from Go natives, failing on unsupported values.
func NewState(m map[string]any) (State, error) {
	s := make(State, len(m))
	for k, v := range m {
		cv, err := ValueOf(v)
		if err != nil {
			return nil, fmt.Errorf("state key %q: %w", k, err)
		}
		s[k] = cv
	}
	return s, nil
}

// Get returns the value for key or def when absent. Absent keys are never an error.
func (s State) Get(key string, def Value) Value {
	if v, ok := s[key]; ok {
		return v
	}
	return def
}

// Clone returns a deep copy of the state. A nil state clones to an empty one.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = Clone(v)
	}
	return out
}

// Apply overwrites keys from delta (key granularity, last writer wins).
func (s State) Apply(delta State) {
	for k, v := range delta {
		s[k] = Clone(v)
	}
}

// Keys returns the sorted key set.
func (s State) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Native converts the state into a plain map suitable for templating and
// for handing to external layers.
func (s State) Native() map[string]any {
	out := make(map[string]any, len(s))
	for k, v := range s {
		out[k] = Native(v)
	}
	return out
}

// Equal reports deep equality of two states.
func (s State) Equal(o State) bool { return Equal(Map(s), Map(o)) }

// MarshalJSON implements json.Marshaler.
func (s State) MarshalJSON() ([]byte, error) { return json.Marshal(s.Native()) }

// UnmarshalJSON implements json.Unmarshaler.
func (s *State) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	st, err := NewState(raw)
	if err != nil {
		return err
	}
	*s = st
	return nil
}
