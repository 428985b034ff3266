// Package value implements the tagged-union value container that flows
// through table entries, accessors, and propagation frames.
package value

import (
	"fmt"
	"reflect"
)

// Kind enumerates the storage kinds a Value can hold.
type Kind int

const (
	KindEmpty Kind = iota
	KindBool
	KindI8
	KindI16
	KindI32
	KindI64
	KindU8
	KindU16
	KindU32
	KindU64
	KindF32
	KindF64
	KindString
	KindObject
	KindStringList
	KindContainer
	KindNamedValueSet
)

func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindBool:
		return "bool"
	case KindI8:
		return "i8"
	case KindI16:
		return "i16"
	case KindI32:
		return "i32"
	case KindI64:
		return "i64"
	case KindU8:
		return "u8"
	case KindU16:
		return "u16"
	case KindU32:
		return "u32"
	case KindU64:
		return "u64"
	case KindF32:
		return "f32"
	case KindF64:
		return "f64"
	case KindString:
		return "string"
	case KindObject:
		return "object"
	case KindStringList:
		return "string-list"
	case KindContainer:
		return "container"
	case KindNamedValueSet:
		return "named-value-set"
	default:
		return "unknown"
	}
}

// NamedValue is one entry of a named-value-set: an ordered association
// between a name and a Value. Named-value-sets are carried as slices
// rather than maps so wire order is stable across encodes.
type NamedValue struct {
	Name  string
	Value Value
}

// Value is a tagged union over the storage kinds in Kind. Exactly one of
// the typed fields is meaningful for a given Kind; IsNull additionally
// marks the "nullable, currently null" case for any of the numeric kinds.
type Value struct {
	Kind   Kind
	IsNull bool

	b    bool
	i64  int64
	u64  uint64
	f64  float64
	str  string
	obj  any
	list []string
	cont *Value
	nvs  []NamedValue
}

// Empty returns the canonical empty container.
func Empty() Value { return Value{Kind: KindEmpty} }

func Bool(v bool) Value       { return Value{Kind: KindBool, b: v} }
func I8(v int8) Value         { return Value{Kind: KindI8, i64: int64(v)} }
func I16(v int16) Value       { return Value{Kind: KindI16, i64: int64(v)} }
func I32(v int32) Value       { return Value{Kind: KindI32, i64: int64(v)} }
func I64(v int64) Value       { return Value{Kind: KindI64, i64: v} }
func U8(v uint8) Value        { return Value{Kind: KindU8, u64: uint64(v)} }
func U16(v uint16) Value      { return Value{Kind: KindU16, u64: uint64(v)} }
func U32(v uint32) Value      { return Value{Kind: KindU32, u64: uint64(v)} }
func U64(v uint64) Value      { return Value{Kind: KindU64, u64: v} }
func F32(v float32) Value     { return Value{Kind: KindF32, f64: float64(v)} }
func F64(v float64) Value     { return Value{Kind: KindF64, f64: v} }
func String(v string) Value   { return Value{Kind: KindString, str: v} }
func Object(v any) Value      { return Value{Kind: KindObject, obj: v} }
func StringList(v []string) Value {
	cp := append([]string(nil), v...)
	return Value{Kind: KindStringList, list: cp}
}
func Container(v Value) Value {
	cp := v.DeepCopy()
	return Value{Kind: KindContainer, cont: &cp}
}
func NamedValueSet(v []NamedValue) Value {
	cp := make([]NamedValue, len(v))
	for i, nv := range v {
		cp[i] = NamedValue{Name: nv.Name, Value: nv.Value.DeepCopy()}
	}
	return Value{Kind: KindNamedValueSet, nvs: cp}
}

// NullOf returns the nullable-but-null form of a numeric kind.
func NullOf(k Kind) Value { return Value{Kind: k, IsNull: true} }

// Bool/Int64/etc accessors return the zero value when the kind doesn't match.
func (v Value) Bool() bool            { return v.b }
func (v Value) Int64() int64          { return v.i64 }
func (v Value) Uint64() uint64        { return v.u64 }
func (v Value) Float64() float64      { return v.f64 }
func (v Value) String() string        { return v.str }
func (v Value) Object() any           { return v.obj }
func (v Value) StringList() []string  { return v.list }
func (v Value) NamedValues() []NamedValue { return v.nvs }

// Inner returns the nested container's Value, or Empty() if this isn't
// a KindContainer.
func (v Value) Inner() Value {
	if v.Kind != KindContainer || v.cont == nil {
		return Empty()
	}
	return *v.cont
}

// Equal reports deep equality. Two empty values are always equal
// regardless of which concrete Kind tag they carry.
func (v Value) Equal(o Value) bool {
	if v.Kind == KindEmpty && o.Kind == KindEmpty {
		return true
	}
	if v.Kind != o.Kind {
		return false
	}
	if v.IsNull != o.IsNull {
		return false
	}
	if v.IsNull {
		return true
	}
	switch v.Kind {
	case KindEmpty:
		return true
	case KindBool:
		return v.b == o.b
	case KindI8, KindI16, KindI32, KindI64:
		return v.i64 == o.i64
	case KindU8, KindU16, KindU32, KindU64:
		return v.u64 == o.u64
	case KindF32, KindF64:
		return v.f64 == o.f64
	case KindString:
		return v.str == o.str
	case KindObject:
		return reflect.DeepEqual(v.obj, o.obj)
	case KindStringList:
		return equalStringSlices(v.list, o.list)
	case KindContainer:
		return v.Inner().Equal(o.Inner())
	case KindNamedValueSet:
		return equalNamedValueSets(v.nvs, o.nvs)
	default:
		return false
	}
}

func equalStringSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalNamedValueSets(a, b []NamedValue) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name || !a[i].Value.Equal(b[i].Value) {
			return false
		}
	}
	return true
}

// DeepCopy returns an independent copy: mutating the copy's nested
// structures (string lists, containers, named-value sets) never affects
// the original.
func (v Value) DeepCopy() Value {
	cp := v
	switch v.Kind {
	case KindStringList:
		cp.list = append([]string(nil), v.list...)
	case KindContainer:
		if v.cont != nil {
			inner := v.cont.DeepCopy()
			cp.cont = &inner
		}
	case KindNamedValueSet:
		cp.nvs = make([]NamedValue, len(v.nvs))
		for i, nv := range v.nvs {
			cp.nvs[i] = NamedValue{Name: nv.Name, Value: nv.Value.DeepCopy()}
		}
	}
	return cp
}

// EstimatedSize returns a rough byte-size estimate used to bound frame
// packing.
func (v Value) EstimatedSize() int {
	const overhead = 8
	switch v.Kind {
	case KindEmpty:
		return overhead
	case KindBool, KindI8, KindU8:
		return overhead + 1
	case KindI16, KindU16:
		return overhead + 2
	case KindI32, KindU32, KindF32:
		return overhead + 4
	case KindI64, KindU64, KindF64:
		return overhead + 8
	case KindString:
		return overhead + len(v.str)
	case KindObject:
		return overhead + 32
	case KindStringList:
		n := overhead
		for _, s := range v.list {
			n += len(s) + 4
		}
		return n
	case KindContainer:
		return overhead + v.Inner().EstimatedSize()
	case KindNamedValueSet:
		n := overhead
		for _, nv := range v.nvs {
			n += len(nv.Name) + 4 + nv.Value.EstimatedSize()
		}
		return n
	default:
		return overhead
	}
}

// ConvertTo attempts to coerce v into the requested storage kind,
// honoring nullable. Used by typed accessors at decode time.
func (v Value) ConvertTo(k Kind, nullable bool) (Value, error) {
	if v.Kind == KindEmpty {
		if nullable {
			return NullOf(k), nil
		}
		return zeroOf(k), nil
	}
	if v.Kind == k {
		return v, nil
	}
	switch k {
	case KindI8, KindI16, KindI32, KindI64:
		if n, ok := v.asInt(); ok {
			r := Value{Kind: k, i64: n}
			return r, nil
		}
	case KindU8, KindU16, KindU32, KindU64:
		if n, ok := v.asUint(); ok {
			r := Value{Kind: k, u64: n}
			return r, nil
		}
	case KindF32, KindF64:
		if f, ok := v.asFloat(); ok {
			return Value{Kind: k, f64: f}, nil
		}
	case KindString:
		if v.Kind == KindString {
			return v, nil
		}
	case KindBool:
		if v.Kind == KindBool {
			return v, nil
		}
	}
	return zeroOf(k), fmt.Errorf("value: cannot convert %s to %s", v.Kind, k)
}

func (v Value) asInt() (int64, bool) {
	switch v.Kind {
	case KindI8, KindI16, KindI32, KindI64:
		return v.i64, true
	case KindU8, KindU16, KindU32, KindU64:
		return int64(v.u64), true
	default:
		return 0, false
	}
}

func (v Value) asUint() (uint64, bool) {
	switch v.Kind {
	case KindU8, KindU16, KindU32, KindU64:
		return v.u64, true
	case KindI8, KindI16, KindI32, KindI64:
		if v.i64 < 0 {
			return 0, false
		}
		return uint64(v.i64), true
	default:
		return 0, false
	}
}

func (v Value) asFloat() (float64, bool) {
	switch v.Kind {
	case KindF32, KindF64:
		return v.f64, true
	default:
		if n, ok := v.asInt(); ok {
			return float64(n), true
		}
		return 0, false
	}
}

func zeroOf(k Kind) Value { return Value{Kind: k} }

// DecodeStatic maps a requested static Go type to its (Kind, nullable)
// pair, used once at typed-accessor creation time.
func DecodeStatic(zero any) (Kind, bool) {
	switch zero.(type) {
	case bool:
		return KindBool, false
	case *bool:
		return KindBool, true
	case int8:
		return KindI8, false
	case *int8:
		return KindI8, true
	case int16:
		return KindI16, false
	case *int16:
		return KindI16, true
	case int32:
		return KindI32, false
	case *int32:
		return KindI32, true
	case int64:
		return KindI64, false
	case *int64:
		return KindI64, true
	case uint8:
		return KindU8, false
	case *uint8:
		return KindU8, true
	case uint16:
		return KindU16, false
	case *uint16:
		return KindU16, true
	case uint32:
		return KindU32, false
	case *uint32:
		return KindU32, true
	case uint64:
		return KindU64, false
	case *uint64:
		return KindU64, true
	case float32:
		return KindF32, false
	case *float32:
		return KindF32, true
	case float64:
		return KindF64, false
	case *float64:
		return KindF64, true
	case string:
		return KindString, false
	case []string:
		return KindStringList, false
	case []NamedValue:
		return KindNamedValueSet, false
	default:
		return KindObject, false
	}
}
