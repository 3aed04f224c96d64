package wire

import (
	"bytes"
	"errors"
)

var (
	ErrUnsupportedType = errors.New("wire: unsupported native type")
	ErrUnknownTag      = errors.New("wire: unknown expression tag")
	ErrUnknownEncoding = errors.New("wire: unknown bits encoding")
	ErrInvalidValue    = errors.New("wire: invalid wire value")
)

// Kind discriminates the closed set of wire value shapes.
type Kind uint8

const (
	KindBool Kind = iota + 1
	KindInt
	KindUnit
	KindTuple
	KindRecord
	KindSequence
	KindBits
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindUnit:
		return "unit"
	case KindTuple:
		return "tuple"
	case KindRecord:
		return "record"
	case KindSequence:
		return "sequence"
	case KindBits:
		return "bits"
	default:
		return "invalid"
	}
}

// Value is one wire value. The zero Value is invalid; build values through
// the constructors.
type Value struct {
	kind   Kind
	boolV  bool
	intV   int64
	elems  []Value
	fields map[string]Value
	bits   []byte
	width  int
}

func Bool(v bool) Value {
	return Value{kind: KindBool, boolV: v}
}

func Int(v int64) Value {
	return Value{kind: KindInt, intV: v}
}

func Unit() Value {
	return Value{kind: KindUnit}
}

// Tuple builds a tuple value. A zero-element tuple is the unit value.
func Tuple(elems ...Value) Value {
	if len(elems) == 0 {
		return Unit()
	}
	return Value{kind: KindTuple, elems: elems}
}

func Record(fields map[string]Value) Value {
	if fields == nil {
		fields = map[string]Value{}
	}
	return Value{kind: KindRecord, fields: fields}
}

func Sequence(elems ...Value) Value {
	return Value{kind: KindSequence, elems: elems}
}

// Bytes builds a bit vector of width 8*len(b).
func Bytes(b []byte) Value {
	return Value{kind: KindBits, bits: append([]byte(nil), b...), width: 8 * len(b)}
}

// BitsOfWidth builds a bit vector with an explicit declared width, for
// values decoded from hex payloads whose width is not a byte multiple.
func BitsOfWidth(b []byte, width int) Value {
	return Value{kind: KindBits, bits: append([]byte(nil), b...), width: width}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) AsBool() (bool, bool) {
	return v.boolV, v.kind == KindBool
}

func (v Value) AsInt() (int64, bool) {
	return v.intV, v.kind == KindInt
}

// Elems returns tuple or sequence elements.
func (v Value) Elems() ([]Value, bool) {
	if v.kind != KindTuple && v.kind != KindSequence {
		return nil, false
	}
	return v.elems, true
}

func (v Value) Fields() (map[string]Value, bool) {
	if v.kind != KindRecord {
		return nil, false
	}
	return v.fields, true
}

// AsBytes returns the bit vector payload and its declared width.
func (v Value) AsBytes() ([]byte, int, bool) {
	if v.kind != KindBits {
		return nil, 0, false
	}
	return v.bits, v.width, true
}

// Equal compares values by content: element-wise and order-preserving for
// tuples and sequences, key-set for records, byte content plus declared
// width for bit vectors.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindBool:
		return a.boolV == b.boolV
	case KindInt:
		return a.intV == b.intV
	case KindUnit:
		return true
	case KindTuple, KindSequence:
		if len(a.elems) != len(b.elems) {
			return false
		}
		for i := range a.elems {
			if !Equal(a.elems[i], b.elems[i]) {
				return false
			}
		}
		return true
	case KindRecord:
		if len(a.fields) != len(b.fields) {
			return false
		}
		for k, av := range a.fields {
			bv, ok := b.fields[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	case KindBits:
		return a.width == b.width && bytes.Equal(a.bits, b.bits)
	default:
		return false
	}
}
