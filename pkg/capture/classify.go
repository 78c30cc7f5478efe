package capture

import (
	"io"
	"reflect"
	"time"
)

// ValueKind tags a runtime value with the truncation branch that handles it.
// Classification happens once, up front, so type sniffing is not scattered
// through the truncation recursion.
type ValueKind int

const (
	// KindNil covers nil values of any type.
	KindNil ValueKind = iota
	// KindBool covers booleans.
	KindBool
	// KindNumber covers all integer and float types.
	KindNumber
	// KindString covers strings.
	KindString
	// KindFunc covers function values.
	KindFunc
	// KindBinary covers byte buffers.
	KindBinary
	// KindStream covers values exposing a read capability.
	KindStream
	// KindTime covers time values.
	KindTime
	// KindError covers values implementing the error interface.
	KindError
	// KindArray covers slices and arrays.
	KindArray
	// KindMap covers maps with string-convertible keys.
	KindMap
	// KindStruct covers struct values and pointers to them.
	KindStruct
	// KindOther covers everything else (channels, unsafe pointers, ...).
	KindOther
)

// Classify determines which truncation branch handles a value. Total and
// side-effect-free. Checks run in fixed priority order: concrete special
// types first, then interfaces, then reflection kinds.
func Classify(v interface{}) ValueKind {
	if v == nil {
		return KindNil
	}

	switch v.(type) {
	case bool:
		return KindBool
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return KindNumber
	case string:
		return KindString
	case []byte:
		return KindBinary
	case time.Time, *time.Time:
		return KindTime
	}

	if _, ok := v.(error); ok {
		return KindError
	}
	if isStreamLike(v) {
		return KindStream
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return KindNil
		}
		return Classify(rv.Elem().Interface())
	case reflect.Func:
		return KindFunc
	case reflect.Slice, reflect.Array:
		return KindArray
	case reflect.Map:
		return KindMap
	case reflect.Struct:
		return KindStruct
	case reflect.Chan, reflect.UnsafePointer:
		return KindOther
	default:
		return KindOther
	}
}

// isStreamLike reports whether a value exposes a read or pipe capability.
// Streams are never drained during capture; they collapse to a placeholder.
func isStreamLike(v interface{}) bool {
	switch v.(type) {
	case io.Reader, io.ReadCloser, io.ReadSeeker:
		return true
	}
	return false
}
