package capture

import (
	"reflect"

	"github.com/flowscope/flowscope/pkg/domain/frame"
)

// NormalizeOutputs converts a raw "node emitted these outputs" event into a
// uniform ordered list of output IOEvents.
//
// Accepted shapes:
//   - a single message: one event on port 0
//   - an ordered collection: one entry per port, where each entry is a
//     single message, an array of messages (parallel sends on that port),
//     or nil (that port produced nothing)
//
// Empty or absent ports produce no events. Malformed raw events degrade to
// zero events; this function never panics.
func NormalizeOutputs(raw interface{}, limits Limits, now int64) (events []frame.IOEvent) {
	defer func() {
		if recover() != nil {
			events = nil
		}
	}()

	if raw == nil {
		return nil
	}

	ports, ok := asSlice(raw)
	if !ok {
		// Single message, port 0.
		return []frame.IOEvent{outputEvent(raw, 0, limits, now)}
	}

	events = make([]frame.IOEvent, 0, len(ports))
	for port, entry := range ports {
		if entry == nil {
			continue
		}
		if parallel, ok := asSlice(entry); ok {
			for _, msg := range parallel {
				if msg == nil {
					continue
				}
				events = append(events, outputEvent(msg, port, limits, now))
			}
			continue
		}
		events = append(events, outputEvent(entry, port, limits, now))
	}
	return events
}

func outputEvent(msg interface{}, port int, limits Limits, now int64) frame.IOEvent {
	return frame.IOEvent{
		Direction: frame.DirectionOutput,
		Port:      port,
		Timestamp: now,
		Payload:   NewDataSample(msg, limits),
	}
}

// asSlice views a value as []interface{} when it is any slice or array type,
// except []byte which is a scalar payload, not a port collection.
func asSlice(v interface{}) ([]interface{}, bool) {
	if v == nil {
		return nil, false
	}
	if direct, ok := v.([]interface{}); ok {
		return direct, true
	}
	if _, ok := v.([]byte); ok {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]interface{}, rv.Len())
	for i := range out {
		elem, ok := safeInterface(rv.Index(i))
		if !ok {
			elem = nil
		}
		out[i] = elem
	}
	return out, true
}
