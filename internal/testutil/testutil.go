// Package testutil provides fixtures shared by FlowScope tests.
package testutil

import (
	"fmt"
	"sync"

	"github.com/flowscope/flowscope/pkg/domain/frame"
)

// Clock is a manually advanced millisecond clock for deterministic tests.
type Clock struct {
	mu  sync.Mutex
	now int64
}

// NewClock creates a clock at the given start time.
func NewClock(start int64) *Clock {
	return &Clock{now: start}
}

// Now returns the current time in milliseconds.
func (c *Clock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(ms int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += ms
}

// Message builds a host-shaped message carrying a correlation key.
func Message(key string, payload interface{}) map[string]interface{} {
	msg := map[string]interface{}{
		"payload": payload,
	}
	if key != "" {
		msg["_msgid"] = key
	}
	return msg
}

// NestedValue builds a value nested to the given depth, for depth-limit
// tests.
func NestedValue(depth int) interface{} {
	if depth <= 0 {
		return "leaf"
	}
	return map[string]interface{}{
		"child": NestedValue(depth - 1),
	}
}

// WideMap builds a map with n distinct keys.
func WideMap(n int) map[string]interface{} {
	out := make(map[string]interface{}, n)
	for i := 0; i < n; i++ {
		out[fmt.Sprintf("key%04d", i)] = i
	}
	return out
}

// MemoryArchiver records archived frames in memory.
type MemoryArchiver struct {
	mu     sync.Mutex
	frames []*frame.Frame
	err    error
}

// NewMemoryArchiver creates an empty archiver. failWith, when non-nil, is
// returned from every ArchiveFrame call.
func NewMemoryArchiver(failWith error) *MemoryArchiver {
	return &MemoryArchiver{err: failWith}
}

// ArchiveFrame implements tracker.Archiver.
func (a *MemoryArchiver) ArchiveFrame(f *frame.Frame) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.frames = append(a.frames, f)
	return nil
}

// Frames returns the archived frames.
func (a *MemoryArchiver) Frames() []*frame.Frame {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*frame.Frame, len(a.frames))
	copy(out, a.frames)
	return out
}
