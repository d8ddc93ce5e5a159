// Package coerce converts loosely typed scalar inputs from codecs into the
// exact representation a scalar Shape stores, with range and integrality
// checks.
package coerce

import (
	"math"
	"reflect"
	"unicode/utf8"
)

// Status reports the outcome of a conversion.
type Status uint8

const (
	OK         Status = iota
	Mismatch          // input is not of a convertible kind
	OutOfRange        // input is numeric but does not fit the target
)

// Int converts v to a signed integer that fits in bits.
func Int(v any, bits int) (int64, Status) {
	var n int64
	switch x := v.(type) {
	case int:
		n = int64(x)
	case int8:
		n = int64(x)
	case int16:
		n = int64(x)
	case int32:
		n = int64(x)
	case int64:
		n = x
	case uint8:
		n = int64(x)
	case uint16:
		n = int64(x)
	case uint32:
		n = int64(x)
	case uint:
		if uint64(x) > math.MaxInt64 {
			return 0, OutOfRange
		}
		n = int64(x)
	case uint64:
		if x > math.MaxInt64 {
			return 0, OutOfRange
		}
		n = int64(x)
	case float32:
		return floatToInt(float64(x), bits)
	case float64:
		return floatToInt(x, bits)
	default:
		return reflectInt(v, bits)
	}
	if !FitsInt(n, bits) {
		return 0, OutOfRange
	}
	return n, OK
}

// Uint converts v to an unsigned integer that fits in bits.
func Uint(v any, bits int) (uint64, Status) {
	var n uint64
	switch x := v.(type) {
	case uint:
		n = uint64(x)
	case uint8:
		n = uint64(x)
	case uint16:
		n = uint64(x)
	case uint32:
		n = uint64(x)
	case uint64:
		n = x
	case uintptr:
		n = uint64(x)
	case int:
		if x < 0 {
			return 0, OutOfRange
		}
		n = uint64(x)
	case int8:
		if x < 0 {
			return 0, OutOfRange
		}
		n = uint64(x)
	case int16:
		if x < 0 {
			return 0, OutOfRange
		}
		n = uint64(x)
	case int32:
		if x < 0 {
			return 0, OutOfRange
		}
		n = uint64(x)
	case int64:
		if x < 0 {
			return 0, OutOfRange
		}
		n = uint64(x)
	case float32:
		return floatToUint(float64(x), bits)
	case float64:
		return floatToUint(x, bits)
	default:
		return reflectUint(v, bits)
	}
	if !FitsUint(n, bits) {
		return 0, OutOfRange
	}
	return n, OK
}

// Float converts v to a float of the given width. Integers are accepted
// and may lose precision; float64 inputs outside float32 range are rejected
// when bits is 32.
func Float(v any, bits int) (float64, Status) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		return float64(x), OK
	case int:
		f = float64(x)
	case int8:
		f = float64(x)
	case int16:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case uint:
		f = float64(x)
	case uint8:
		f = float64(x)
	case uint16:
		f = float64(x)
	case uint32:
		f = float64(x)
	case uint64:
		f = float64(x)
	default:
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Float32, reflect.Float64:
			f = rv.Float()
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			f = float64(rv.Int())
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			f = float64(rv.Uint())
		default:
			return 0, Mismatch
		}
	}
	if bits == 32 && !math.IsInf(f, 0) && !math.IsNaN(f) && math.Abs(f) > math.MaxFloat32 {
		return 0, OutOfRange
	}
	return f, OK
}

// Bool accepts bool and named bool types.
func Bool(v any) (bool, Status) {
	if b, ok := v.(bool); ok {
		return b, OK
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Bool {
		return rv.Bool(), OK
	}
	return false, Mismatch
}

// String accepts string, []byte and named string types.
func String(v any) (string, Status) {
	switch x := v.(type) {
	case string:
		return x, OK
	case []byte:
		return string(x), OK
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.String {
		return rv.String(), OK
	}
	return "", Mismatch
}

// Bytes accepts []byte and string.
func Bytes(v any) ([]byte, Status) {
	switch x := v.(type) {
	case []byte:
		return append([]byte(nil), x...), OK
	case string:
		return []byte(x), OK
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
		return append([]byte(nil), rv.Bytes()...), OK
	}
	return nil, Mismatch
}

// Char accepts a rune, any integer that is a valid scalar value, or a
// string holding exactly one rune.
func Char(v any) (rune, Status) {
	if s, ok := v.(string); ok {
		r, size := utf8.DecodeRuneInString(s)
		if size == 0 || size != len(s) || r == utf8.RuneError && size == 1 {
			return 0, Mismatch
		}
		return r, OK
	}
	n, st := Int(v, 32)
	if st != OK {
		return 0, st
	}
	r := rune(n)
	if !ValidChar(r) {
		return 0, OutOfRange
	}
	return r, OK
}

// ValidChar rejects surrogates (0xD800-0xDFFF) and values >= 0x110000.
func ValidChar(r rune) bool {
	if r >= 0xD800 && r <= 0xDFFF {
		return false
	}
	return r >= 0 && r < 0x110000
}

// FitsInt reports whether n is representable as a bits-wide signed integer.
func FitsInt(n int64, bits int) bool {
	if bits >= 64 {
		return true
	}
	lim := int64(1) << (bits - 1)
	return n >= -lim && n < lim
}

// FitsUint reports whether n is representable as a bits-wide unsigned integer.
func FitsUint(n uint64, bits int) bool {
	if bits >= 64 {
		return true
	}
	return n < uint64(1)<<bits
}

// TypeName returns "nil" for nil values, avoiding reflect.TypeOf(nil) panic.
func TypeName(v any) string {
	if v == nil {
		return "nil"
	}
	return reflect.TypeOf(v).String()
}

func floatToInt(f float64, bits int) (int64, Status) {
	if f != math.Trunc(f) || math.IsNaN(f) {
		return 0, Mismatch
	}
	// 2^63 itself is not representable
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, OutOfRange
	}
	n := int64(f)
	if !FitsInt(n, bits) {
		return 0, OutOfRange
	}
	return n, OK
}

func floatToUint(f float64, bits int) (uint64, Status) {
	if f != math.Trunc(f) || math.IsNaN(f) {
		return 0, Mismatch
	}
	if f < 0 || f >= math.MaxUint64 {
		return 0, OutOfRange
	}
	n := uint64(f)
	if !FitsUint(n, bits) {
		return 0, OutOfRange
	}
	return n, OK
}

func reflectInt(v any, bits int) (int64, Status) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int(), bits)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return Int(rv.Uint(), bits)
	case reflect.Float32, reflect.Float64:
		return floatToInt(rv.Float(), bits)
	}
	return 0, Mismatch
}

func reflectUint(v any, bits int) (uint64, Status) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Uint(rv.Int(), bits)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return Uint(rv.Uint(), bits)
	case reflect.Float32, reflect.Float64:
		return floatToUint(rv.Float(), bits)
	}
	return 0, Mismatch
}
