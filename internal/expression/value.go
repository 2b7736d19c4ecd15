// Package expression provides the tagged value type shared by the condition
// and template engines. Variables flowing through a skill execution are
// heterogeneous; Value gives them a small closed set of shapes (null, bool,
// number, string, list, map) with the comparison and rendering semantics the
// rest of the runtime relies on.
package expression

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// ValueType identifies the shape of a Value.
type ValueType int

const (
	NullType ValueType = iota
	BoolType
	NumberType
	StringType
	ListType
	MapType
)

func (t ValueType) String() string {
	switch t {
	case NullType:
		return "null"
	case BoolType:
		return "bool"
	case NumberType:
		return "number"
	case StringType:
		return "string"
	case ListType:
		return "list"
	case MapType:
		return "map"
	default:
		return "unknown"
	}
}

// Value is the tagged variant carried through condition evaluation and
// template rendering.
type Value interface {
	Type() ValueType
	// GoValue returns the plain Go representation (nil, bool, float64,
	// string, []interface{}, map[string]interface{}).
	GoValue() interface{}
	// Render returns the textual form used when a value is substituted
	// into template output.
	Render() string
	// Equals is deep equality with no implicit coercion: values of
	// different types are never equal, except null == null.
	Equals(other Value) bool
}

// Null is the singleton null value.
var Null Value = NullValue{}

// NullValue represents the absence of a value. Missing variables resolve to
// it rather than raising.
type NullValue struct{}

func (NullValue) Type() ValueType      { return NullType }
func (NullValue) GoValue() interface{} { return nil }
func (NullValue) Render() string       { return "" }
func (NullValue) Equals(other Value) bool {
	return other != nil && other.Type() == NullType
}

// BoolValue wraps a boolean.
type BoolValue struct {
	Val bool
}

func (v BoolValue) Type() ValueType      { return BoolType }
func (v BoolValue) GoValue() interface{} { return v.Val }
func (v BoolValue) Render() string       { return strconv.FormatBool(v.Val) }
func (v BoolValue) Equals(other Value) bool {
	o, ok := other.(BoolValue)
	return ok && o.Val == v.Val
}

// NumberValue wraps an IEEE-754 double. Integer inputs are widened on
// conversion; rendering drops the fractional part when it is zero.
type NumberValue struct {
	Val float64
}

func (v NumberValue) Type() ValueType      { return NumberType }
func (v NumberValue) GoValue() interface{} { return v.Val }

func (v NumberValue) Render() string {
	return FormatNumber(v.Val)
}

func (v NumberValue) Equals(other Value) bool {
	o, ok := other.(NumberValue)
	return ok && o.Val == v.Val
}

// StringValue wraps a string.
type StringValue struct {
	Val string
}

func (v StringValue) Type() ValueType      { return StringType }
func (v StringValue) GoValue() interface{} { return v.Val }
func (v StringValue) Render() string       { return v.Val }
func (v StringValue) Equals(other Value) bool {
	o, ok := other.(StringValue)
	return ok && o.Val == v.Val
}

// ListValue wraps an ordered sequence.
type ListValue struct {
	Items []Value
}

func (v ListValue) Type() ValueType { return ListType }

func (v ListValue) GoValue() interface{} {
	out := make([]interface{}, len(v.Items))
	for i, item := range v.Items {
		out[i] = item.GoValue()
	}
	return out
}

func (v ListValue) Render() string {
	var sb strings.Builder
	writeJSONLike(&sb, v)
	return sb.String()
}

func (v ListValue) Equals(other Value) bool {
	o, ok := other.(ListValue)
	if !ok || len(o.Items) != len(v.Items) {
		return false
	}
	for i, item := range v.Items {
		if !item.Equals(o.Items[i]) {
			return false
		}
	}
	return true
}

// MapValue wraps a string-keyed mapping.
type MapValue struct {
	Entries map[string]Value
}

func (v MapValue) Type() ValueType { return MapType }

func (v MapValue) GoValue() interface{} {
	out := make(map[string]interface{}, len(v.Entries))
	for k, entry := range v.Entries {
		out[k] = entry.GoValue()
	}
	return out
}

func (v MapValue) Render() string {
	var sb strings.Builder
	writeJSONLike(&sb, v)
	return sb.String()
}

func (v MapValue) Equals(other Value) bool {
	o, ok := other.(MapValue)
	if !ok || len(o.Entries) != len(v.Entries) {
		return false
	}
	for k, entry := range v.Entries {
		oe, present := o.Entries[k]
		if !present || !entry.Equals(oe) {
			return false
		}
	}
	return true
}

// FromGo converts an arbitrary Go value into a Value. Unknown types fall back
// to their fmt representation as a string.
func FromGo(v interface{}) Value {
	switch val := v.(type) {
	case nil:
		return Null
	case Value:
		return val
	case bool:
		return BoolValue{Val: val}
	case int:
		return NumberValue{Val: float64(val)}
	case int8:
		return NumberValue{Val: float64(val)}
	case int16:
		return NumberValue{Val: float64(val)}
	case int32:
		return NumberValue{Val: float64(val)}
	case int64:
		return NumberValue{Val: float64(val)}
	case uint:
		return NumberValue{Val: float64(val)}
	case uint8:
		return NumberValue{Val: float64(val)}
	case uint16:
		return NumberValue{Val: float64(val)}
	case uint32:
		return NumberValue{Val: float64(val)}
	case uint64:
		return NumberValue{Val: float64(val)}
	case float32:
		return NumberValue{Val: float64(val)}
	case float64:
		return NumberValue{Val: val}
	case string:
		return StringValue{Val: val}
	case []interface{}:
		items := make([]Value, len(val))
		for i, item := range val {
			items[i] = FromGo(item)
		}
		return ListValue{Items: items}
	case map[string]interface{}:
		entries := make(map[string]Value, len(val))
		for k, entry := range val {
			entries[k] = FromGo(entry)
		}
		return MapValue{Entries: entries}
	case map[interface{}]interface{}:
		// yaml.v2-era decoders produce interface keys
		entries := make(map[string]Value, len(val))
		for k, entry := range val {
			entries[fmt.Sprintf("%v", k)] = FromGo(entry)
		}
		return MapValue{Entries: entries}
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		items := make([]Value, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			items[i] = FromGo(rv.Index(i).Interface())
		}
		return ListValue{Items: items}
	case reflect.Map:
		entries := make(map[string]Value, rv.Len())
		for _, key := range rv.MapKeys() {
			entries[fmt.Sprintf("%v", key.Interface())] = FromGo(rv.MapIndex(key).Interface())
		}
		return MapValue{Entries: entries}
	case reflect.Ptr:
		if rv.IsNil() {
			return Null
		}
		return FromGo(rv.Elem().Interface())
	}

	return StringValue{Val: fmt.Sprintf("%v", v)}
}

// FormatNumber renders a float the way template output expects: integral
// values drop the decimal point, non-finite values render empty.
func FormatNumber(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return ""
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Truthy reports whether a value counts as true when used directly as a
// condition: null is false, booleans are themselves, empty strings and zero
// are false, everything else is true.
func Truthy(v Value) bool {
	switch val := v.(type) {
	case nil, NullValue:
		return false
	case BoolValue:
		return val.Val
	case StringValue:
		return val.Val != ""
	case NumberValue:
		return val.Val != 0
	default:
		return true
	}
}

// Compare orders two values. Both numbers compare numerically, both strings
// lexicographically; any other pairing is unordered and reported via ok.
func Compare(a, b Value) (cmp int, ok bool) {
	if an, aok := a.(NumberValue); aok {
		if bn, bok := b.(NumberValue); bok {
			switch {
			case an.Val < bn.Val:
				return -1, true
			case an.Val > bn.Val:
				return 1, true
			default:
				return 0, true
			}
		}
		return 0, false
	}
	if as, aok := a.(StringValue); aok {
		if bs, bok := b.(StringValue); bok {
			return strings.Compare(as.Val, bs.Val), true
		}
	}
	return 0, false
}

// writeJSONLike serializes a value deterministically (sorted map keys) in a
// JSON-shaped form. Non-finite numbers become null.
func writeJSONLike(sb *strings.Builder, v Value) {
	switch val := v.(type) {
	case nil, NullValue:
		sb.WriteString("null")
	case BoolValue:
		sb.WriteString(strconv.FormatBool(val.Val))
	case NumberValue:
		if math.IsNaN(val.Val) || math.IsInf(val.Val, 0) {
			sb.WriteString("null")
			return
		}
		sb.WriteString(FormatNumber(val.Val))
	case StringValue:
		sb.WriteString(strconv.Quote(val.Val))
	case ListValue:
		sb.WriteByte('[')
		for i, item := range val.Items {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeJSONLike(sb, item)
		}
		sb.WriteByte(']')
	case MapValue:
		keys := make([]string, 0, len(val.Entries))
		for k := range val.Entries {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(strconv.Quote(k))
			sb.WriteString(": ")
			writeJSONLike(sb, val.Entries[k])
		}
		sb.WriteByte('}')
	default:
		sb.WriteString(strconv.Quote(fmt.Sprintf("%v", v)))
	}
}
