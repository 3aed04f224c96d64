package wire

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

const (
	tagUnit     = "unit"
	tagTuple    = "tuple"
	tagRecord   = "record"
	tagSequence = "sequence"
	tagBits     = "bits"

	encodingBase64 = "base64"
	encodingHex    = "hex"
)

// Encode lowers a value to its JSON-marshalable wire form. Booleans and
// integers pass through untagged; everything else becomes a tagged object.
func Encode(v Value) any {
	switch v.kind {
	case KindBool:
		return v.boolV
	case KindInt:
		return v.intV
	case KindUnit:
		return map[string]any{"expression": tagUnit}
	case KindTuple:
		return map[string]any{"expression": tagTuple, "data": encodeElems(v.elems)}
	case KindRecord:
		data := make(map[string]any, len(v.fields))
		for k, fv := range v.fields {
			data[k] = Encode(fv)
		}
		return map[string]any{"expression": tagRecord, "data": data}
	case KindSequence:
		return map[string]any{"expression": tagSequence, "data": encodeElems(v.elems)}
	case KindBits:
		return map[string]any{
			"expression": tagBits,
			"encoding":   encodingBase64,
			"width":      v.width,
			"data":       base64.StdEncoding.EncodeToString(v.bits),
		}
	default:
		panic("wire: encode of invalid value")
	}
}

func encodeElems(elems []Value) []any {
	out := make([]any, len(elems))
	for i, e := range elems {
		out[i] = Encode(e)
	}
	return out
}

// EncodeJSON marshals a value straight to JSON text.
func EncodeJSON(v Value) (json.RawMessage, error) {
	return json.Marshal(Encode(v))
}

// Decode raises an unmarshaled wire form back into a value. Numbers may
// arrive as json.Number, float64, or Go integer kinds.
func Decode(raw any) (Value, error) {
	switch t := raw.(type) {
	case bool:
		return Bool(t), nil
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return Value{}, fmt.Errorf("%w: non-integral number %q", ErrInvalidValue, t.String())
		}
		return Int(n), nil
	case float64:
		n := int64(t)
		if float64(n) != t {
			return Value{}, fmt.Errorf("%w: non-integral number %v", ErrInvalidValue, t)
		}
		return Int(n), nil
	case int:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case map[string]any:
		return decodeTagged(t)
	default:
		return Value{}, fmt.Errorf("%w: %T", ErrInvalidValue, raw)
	}
}

// DecodeJSON parses JSON text into a value, preserving integer precision.
func DecodeJSON(raw json.RawMessage) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return Value{}, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return Decode(v)
}

func decodeTagged(obj map[string]any) (Value, error) {
	tag, ok := obj["expression"].(string)
	if !ok {
		return Value{}, fmt.Errorf("%w: missing expression tag", ErrInvalidValue)
	}
	switch tag {
	case tagUnit:
		return Unit(), nil
	case tagTuple:
		elems, err := decodeElems(obj["data"])
		if err != nil {
			return Value{}, err
		}
		return Tuple(elems...), nil
	case tagRecord:
		data, ok := obj["data"].(map[string]any)
		if !ok {
			return Value{}, fmt.Errorf("%w: record data is not an object", ErrInvalidValue)
		}
		fields := make(map[string]Value, len(data))
		for k, raw := range data {
			fv, err := Decode(raw)
			if err != nil {
				return Value{}, err
			}
			fields[k] = fv
		}
		return Record(fields), nil
	case tagSequence:
		elems, err := decodeElems(obj["data"])
		if err != nil {
			return Value{}, err
		}
		return Sequence(elems...), nil
	case tagBits:
		return decodeBits(obj)
	default:
		return Value{}, fmt.Errorf("%w: %q", ErrUnknownTag, tag)
	}
}

func decodeElems(raw any) ([]Value, error) {
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: data is not a list", ErrInvalidValue)
	}
	elems := make([]Value, len(list))
	for i, item := range list {
		v, err := Decode(item)
		if err != nil {
			return nil, err
		}
		elems[i] = v
	}
	return elems, nil
}

func decodeBits(obj map[string]any) (Value, error) {
	data, ok := obj["data"].(string)
	if !ok {
		return Value{}, fmt.Errorf("%w: bits data is not a string", ErrInvalidValue)
	}
	width, err := decodeWidth(obj["width"])
	if err != nil {
		return Value{}, err
	}
	encName, ok := obj["encoding"].(string)
	if !ok {
		return Value{}, fmt.Errorf("%w: bits encoding is not a string", ErrInvalidValue)
	}
	switch encName {
	case encodingBase64:
		payload, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			return Value{}, fmt.Errorf("%w: bits base64: %v", ErrInvalidValue, err)
		}
		return BitsOfWidth(payload, width), nil
	case encodingHex:
		payload, err := hex.DecodeString(extendHex(data))
		if err != nil {
			return Value{}, fmt.Errorf("%w: bits hex: %v", ErrInvalidValue, err)
		}
		return BitsOfWidth(payload, width), nil
	default:
		return Value{}, fmt.Errorf("%w: %q", ErrUnknownEncoding, encName)
	}
}

func decodeWidth(raw any) (int, error) {
	switch t := raw.(type) {
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return 0, fmt.Errorf("%w: bits width %q", ErrInvalidValue, t.String())
		}
		return int(n), nil
	case float64:
		return int(t), nil
	case int:
		return t, nil
	default:
		return 0, fmt.Errorf("%w: bits width is not a number", ErrInvalidValue)
	}
}

// extendHex left-pads odd-length hex text so it decodes to whole bytes.
func extendHex(s string) string {
	if len(s)%2 == 1 {
		return "0" + s
	}
	return s
}

// FromNative maps common Go values to wire values: bool, integer kinds,
// []byte to bits, []any to sequence, string-keyed maps to record. Tuples
// have no Go analogue and are built with the Tuple constructor. Anything
// else, including maps with non-string keys, fails fast.
func FromNative(v any) (Value, error) {
	switch t := v.(type) {
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case int:
		return Int(int64(t)), nil
	case int8:
		return Int(int64(t)), nil
	case int16:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint8:
		return Int(int64(t)), nil
	case uint16:
		return Int(int64(t)), nil
	case uint32:
		return Int(int64(t)), nil
	case []byte:
		return Bytes(t), nil
	case []any:
		elems := make([]Value, len(t))
		for i, item := range t {
			ev, err := FromNative(item)
			if err != nil {
				return Value{}, err
			}
			elems[i] = ev
		}
		return Sequence(elems...), nil
	case map[string]any:
		fields := make(map[string]Value, len(t))
		for k, item := range t {
			fv, err := FromNative(item)
			if err != nil {
				return Value{}, err
			}
			fields[k] = fv
		}
		return Record(fields), nil
	case map[any]any:
		return Value{}, fmt.Errorf("%w: record keys must be strings", ErrUnsupportedType)
	default:
		return Value{}, fmt.Errorf("%w: %T", ErrUnsupportedType, v)
	}
}
