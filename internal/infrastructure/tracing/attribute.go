package tracing

import (
	"fmt"
	"math"
	"strconv"

	"github.com/bytedance/sonic"
)

// Kind identifies the type held by a Value.
type Kind int

const (
	KindEmpty Kind = iota
	KindString
	KindInt64
	KindFloat64
	KindBool
	KindStringSlice
	KindInt64Slice
	KindFloat64Slice
	KindBoolSlice
)

// Value is an attribute value: a string, number, boolean, or a homogeneous
// slice of one of those.
type Value struct {
	kind    Kind
	str     string
	num     int64
	flt     float64
	boolean bool
	slice   any
}

func StringValue(v string) Value   { return Value{kind: KindString, str: v} }
func IntValue(v int) Value         { return Value{kind: KindInt64, num: int64(v)} }
func Int64Value(v int64) Value     { return Value{kind: KindInt64, num: v} }
func Float64Value(v float64) Value { return Value{kind: KindFloat64, flt: v} }
func BoolValue(v bool) Value       { return Value{kind: KindBool, boolean: v} }

func StringSliceValue(v []string) Value {
	return Value{kind: KindStringSlice, slice: append([]string(nil), v...)}
}

func Int64SliceValue(v []int64) Value {
	return Value{kind: KindInt64Slice, slice: append([]int64(nil), v...)}
}

func Float64SliceValue(v []float64) Value {
	return Value{kind: KindFloat64Slice, slice: append([]float64(nil), v...)}
}

func BoolSliceValue(v []bool) Value {
	return Value{kind: KindBoolSlice, slice: append([]bool(nil), v...)}
}

// ValueOf converts a dynamic Go value. It reports false for types that have
// no attribute representation.
func ValueOf(v any) (Value, bool) {
	switch x := v.(type) {
	case Value:
		return x, true
	case string:
		return StringValue(x), true
	case bool:
		return BoolValue(x), true
	case int:
		return IntValue(x), true
	case int8:
		return Int64Value(int64(x)), true
	case int16:
		return Int64Value(int64(x)), true
	case int32:
		return Int64Value(int64(x)), true
	case int64:
		return Int64Value(x), true
	case uint:
		return Int64Value(int64(x)), true
	case uint8:
		return Int64Value(int64(x)), true
	case uint16:
		return Int64Value(int64(x)), true
	case uint32:
		return Int64Value(int64(x)), true
	case float32:
		return Float64Value(float64(x)), true
	case float64:
		return Float64Value(x), true
	case []string:
		return StringSliceValue(x), true
	case []int64:
		return Int64SliceValue(x), true
	case []int:
		out := make([]int64, len(x))
		for i, n := range x {
			out[i] = int64(n)
		}
		return Int64SliceValue(out), true
	case []float64:
		return Float64SliceValue(x), true
	case []bool:
		return BoolSliceValue(x), true
	case fmt.Stringer:
		return StringValue(x.String()), true
	default:
		return Value{}, false
	}
}

// Kind returns the value's type tag.
func (v Value) Kind() Kind { return v.kind }

func (v Value) AsString() string   { return v.str }
func (v Value) AsInt64() int64     { return v.num }
func (v Value) AsFloat64() float64 { return v.flt }
func (v Value) AsBool() bool       { return v.boolean }

func (v Value) AsStringSlice() []string {
	s, _ := v.slice.([]string)
	return s
}

func (v Value) AsInt64Slice() []int64 {
	s, _ := v.slice.([]int64)
	return s
}

func (v Value) AsFloat64Slice() []float64 {
	s, _ := v.slice.([]float64)
	return s
}

func (v Value) AsBoolSlice() []bool {
	s, _ := v.slice.([]bool)
	return s
}

// Emit renders the value as a string, for log fields and debugging.
func (v Value) Emit() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindInt64:
		return strconv.FormatInt(v.num, 10)
	case KindFloat64:
		return strconv.FormatFloat(v.flt, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.boolean)
	case KindStringSlice, KindInt64Slice, KindFloat64Slice, KindBoolSlice:
		b, err := v.MarshalJSON()
		if err != nil {
			return ""
		}
		return string(b)
	default:
		return ""
	}
}

// MarshalJSON encodes the value as its natural JSON type. Non-finite floats
// have no JSON number form and are encoded as strings.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return sonic.Marshal(v.str)
	case KindInt64:
		return strconv.AppendInt(nil, v.num, 10), nil
	case KindFloat64:
		return marshalFloat(v.flt)
	case KindBool:
		return strconv.AppendBool(nil, v.boolean), nil
	case KindStringSlice:
		return marshalSlice(v.AsStringSlice())
	case KindInt64Slice:
		return marshalSlice(v.AsInt64Slice())
	case KindFloat64Slice:
		floats := v.AsFloat64Slice()
		out := []byte{'['}
		for i, f := range floats {
			if i > 0 {
				out = append(out, ',')
			}
			b, _ := marshalFloat(f)
			out = append(out, b...)
		}
		return append(out, ']'), nil
	case KindBoolSlice:
		return marshalSlice(v.AsBoolSlice())
	default:
		return []byte("null"), nil
	}
}

// marshalSlice encodes an empty or nil slice as [] rather than null.
func marshalSlice[E any](s []E) ([]byte, error) {
	if len(s) == 0 {
		return []byte("[]"), nil
	}
	return sonic.Marshal(s)
}

func marshalFloat(f float64) ([]byte, error) {
	switch {
	case math.IsNaN(f):
		return []byte(`"NaN"`), nil
	case math.IsInf(f, 1):
		return []byte(`"+Inf"`), nil
	case math.IsInf(f, -1):
		return []byte(`"-Inf"`), nil
	default:
		return strconv.AppendFloat(nil, f, 'g', -1, 64), nil
	}
}

// Attributes maps attribute keys to values. Later writes overwrite.
type Attributes map[string]Value

// Clone returns a shallow copy; Values are immutable so this is a full copy.
func (a Attributes) Clone() Attributes {
	if len(a) == 0 {
		return nil
	}
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Fields converts attributes into a plain map, for callers that need
// dynamic values.
func (a Attributes) Fields() map[string]any {
	out := make(map[string]any, len(a))
	for k, v := range a {
		switch v.kind {
		case KindString:
			out[k] = v.str
		case KindInt64:
			out[k] = v.num
		case KindFloat64:
			out[k] = v.flt
		case KindBool:
			out[k] = v.boolean
		default:
			out[k] = v.slice
		}
	}
	return out
}
