package capture

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"time"
	"unicode/utf8"
)

// Placeholders substituted for values that cannot or must not be previewed.
const (
	funcPlaceholder       = "[function]"
	streamPlaceholder     = "[stream]"
	circularPlaceholder   = "[circular]"
	unreadablePlaceholder = "[unreadable]"
	objectPlaceholder     = "[object]"
)

// errStackLimit bounds the message kept from error-like values.
const errStackLimit = 500

// stringTruncationMarker is appended to strings cut at MaxStringLength.
const stringTruncationMarker = "… [truncated]"

// Result is the outcome of truncating a value.
type Result struct {
	// Preview is a bounded structural copy of the value, always
	// JSON-serializable, never a reference into the original.
	Preview interface{}
	// Truncated is true if anything was shortened, depth-limited,
	// key-limited, item-limited, or replaced due to type.
	Truncated bool
}

// Truncate produces a bounded preview of an arbitrary value. It is total:
// any internal failure, including panics from hostile values, degrades to a
// placeholder result rather than propagating.
func Truncate(v interface{}, limits Limits) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{
				Preview:   fmt.Sprintf("[capture failed: %v]", r),
				Truncated: true,
			}
		}
	}()

	t := &truncator{
		limits:  limits,
		visited: make(map[uintptr]struct{}),
	}
	preview := t.walk(v, 0)

	// The per-branch limits bound breadth and depth but not the product of
	// the two; re-serialize and enforce the whole-payload cap last.
	data, err := json.Marshal(preview)
	if err != nil {
		return Result{
			Preview:   fmt.Sprintf("[unserializable %s]", typeName(v)),
			Truncated: true,
		}
	}
	if limits.MaxPayloadBytes > 0 && len(data) > limits.MaxPayloadBytes {
		return Result{
			Preview:   fmt.Sprintf("[%s of ~%d bytes omitted]", typeName(v), EstimateSize(v)),
			Truncated: true,
		}
	}

	return Result{Preview: preview, Truncated: t.truncated}
}

// truncator carries one Truncate call's state. The visited set is per-call
// so cycle detection never leaks across captures.
type truncator struct {
	limits    Limits
	visited   map[uintptr]struct{}
	truncated bool
}

func (t *truncator) walk(v interface{}, depth int) interface{} {
	switch Classify(v) {
	case KindNil:
		return nil
	case KindBool, KindNumber:
		return v
	case KindString:
		return t.walkString(v.(string))
	case KindFunc:
		t.truncated = true
		return funcPlaceholder
	case KindBinary:
		t.truncated = true
		return fmt.Sprintf("[buffer %d bytes]", len(v.([]byte)))
	case KindStream:
		t.truncated = true
		return streamPlaceholder
	case KindTime:
		return t.walkTime(v)
	case KindError:
		return t.walkError(v.(error))
	case KindArray:
		return t.walkComposite(v, depth, t.walkArray)
	case KindMap:
		return t.walkComposite(v, depth, t.walkMap)
	case KindStruct:
		return t.walkComposite(v, depth, t.walkStruct)
	default:
		t.truncated = true
		return fmt.Sprintf("[%s]", typeName(v))
	}
}

func (t *truncator) walkString(s string) interface{} {
	if t.limits.MaxStringLength <= 0 || len(s) <= t.limits.MaxStringLength {
		return s
	}
	t.truncated = true
	// Back up to a rune boundary so the cut never splits a multi-byte
	// character into invalid UTF-8.
	cut := t.limits.MaxStringLength
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + stringTruncationMarker
}

func (t *truncator) walkTime(v interface{}) interface{} {
	switch tv := v.(type) {
	case time.Time:
		return tv.Format(time.RFC3339Nano)
	case *time.Time:
		if tv == nil {
			return nil
		}
		return tv.Format(time.RFC3339Nano)
	}
	return nil
}

func (t *truncator) walkError(err error) interface{} {
	msg := err.Error()
	if len(msg) > errStackLimit {
		msg = msg[:errStackLimit]
		t.truncated = true
	}
	return map[string]interface{}{
		"name":    typeName(err),
		"message": msg,
	}
}

// walkComposite handles depth limiting and cycle detection common to
// arrays, maps, and structs, then dispatches to the kind-specific walker.
func (t *truncator) walkComposite(v interface{}, depth int, walkFn func(reflect.Value, int) interface{}) interface{} {
	orig := reflect.ValueOf(v)
	rv := concrete(orig)
	if !rv.IsValid() {
		return nil
	}

	if depth >= t.limits.MaxDepth {
		t.truncated = true
		if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
			return fmt.Sprintf("[array(%d)]", rv.Len())
		}
		return objectPlaceholder
	}

	// Identity comes from the outermost addressable value so cycles through
	// struct pointers are caught before the pointer is unwrapped.
	idSource := orig
	if _, ok := addressOf(idSource); !ok {
		idSource = rv
	}
	if id, ok := addressOf(idSource); ok {
		if _, seen := t.visited[id]; seen {
			t.truncated = true
			return circularPlaceholder
		}
		t.visited[id] = struct{}{}
		defer delete(t.visited, id)
	}

	return walkFn(rv, depth)
}

func (t *truncator) walkArray(rv reflect.Value, depth int) interface{} {
	n := rv.Len()
	keep := n
	if t.limits.MaxArrayItems > 0 && keep > t.limits.MaxArrayItems {
		keep = t.limits.MaxArrayItems
	}

	out := make([]interface{}, 0, keep+1)
	for i := 0; i < keep; i++ {
		elem, ok := safeInterface(rv.Index(i))
		if !ok {
			t.truncated = true
			out = append(out, unreadablePlaceholder)
			continue
		}
		out = append(out, t.walk(elem, depth+1))
	}
	if keep < n {
		t.truncated = true
		out = append(out, fmt.Sprintf("… %d more items", n-keep))
	}
	return out
}

func (t *truncator) walkMap(rv reflect.Value, depth int) interface{} {
	keys := rv.MapKeys()
	names := make([]string, 0, len(keys))
	byName := make(map[string]reflect.Value, len(keys))
	for _, k := range keys {
		name := fmt.Sprint(k.Interface())
		names = append(names, name)
		byName[name] = k
	}
	// Map iteration order is random; sort so previews are deterministic.
	sort.Strings(names)

	keep := len(names)
	if t.limits.MaxKeys > 0 && keep > t.limits.MaxKeys {
		keep = t.limits.MaxKeys
	}

	out := make(map[string]interface{}, keep+1)
	for _, name := range names[:keep] {
		val, ok := safeInterface(rv.MapIndex(byName[name]))
		if !ok {
			// One bad key must not fail the whole object.
			t.truncated = true
			out[name] = unreadablePlaceholder
			continue
		}
		out[name] = t.walk(val, depth+1)
	}
	if keep < len(names) {
		t.truncated = true
		out["…"] = fmt.Sprintf("%d more keys", len(names)-keep)
	}
	return out
}

func (t *truncator) walkStruct(rv reflect.Value, depth int) interface{} {
	rt := rv.Type()
	out := make(map[string]interface{})
	kept := 0
	skipped := 0
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if field.PkgPath != "" {
			// Unexported fields are unreadable by reflection.
			continue
		}
		if t.limits.MaxKeys > 0 && kept >= t.limits.MaxKeys {
			skipped++
			continue
		}
		val, ok := safeInterface(rv.Field(i))
		if !ok {
			t.truncated = true
			out[field.Name] = unreadablePlaceholder
			kept++
			continue
		}
		out[field.Name] = t.walk(val, depth+1)
		kept++
	}
	if skipped > 0 {
		t.truncated = true
		out["…"] = fmt.Sprintf("%d more keys", skipped)
	}
	return out
}

// EstimateSize returns a best-effort byte-size estimate of the original
// value. Never panics; unestimable values report zero.
func EstimateSize(v interface{}) (size int) {
	defer func() {
		if recover() != nil {
			size = 0
		}
	}()

	switch tv := v.(type) {
	case nil:
		return 0
	case string:
		return len(tv)
	case []byte:
		return len(tv)
	}
	data, err := json.Marshal(v)
	if err != nil {
		// Cyclic or unserializable values have no meaningful byte size.
		// Formatting them instead is not an option: fmt recurses through
		// cycles and a stack overflow is not recoverable.
		return 0
	}
	return len(data)
}

// typeName names a value's dynamic type for placeholders.
func typeName(v interface{}) string {
	if v == nil {
		return "nil"
	}
	return reflect.TypeOf(v).String()
}

// concrete unwraps pointers and interfaces to the underlying value.
func concrete(rv reflect.Value) reflect.Value {
	for rv.IsValid() && (rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface) {
		if rv.IsNil() {
			return reflect.Value{}
		}
		rv = rv.Elem()
	}
	return rv
}

// addressOf returns a stable identity for values that can participate in
// reference cycles.
func addressOf(rv reflect.Value) (uintptr, bool) {
	switch rv.Kind() {
	case reflect.Map, reflect.Slice:
		if rv.IsNil() {
			return 0, false
		}
		return rv.Pointer(), true
	case reflect.Ptr:
		return rv.Pointer(), true
	default:
		return 0, false
	}
}

// safeInterface extracts a reflect.Value as an interface, absorbing panics
// from hostile or unreadable values.
func safeInterface(rv reflect.Value) (val interface{}, ok bool) {
	defer func() {
		if recover() != nil {
			val, ok = nil, false
		}
	}()
	if !rv.IsValid() || !rv.CanInterface() {
		return nil, false
	}
	return rv.Interface(), true
}
