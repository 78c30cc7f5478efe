// Package tracker contains the frame manager: the orchestration core that
// owns the ring buffer of execution frames, correlates node-level events to
// frames, drives the capture pipeline, enforces TTL and inactivity eviction,
// and emits normalized events to subscribers.
package tracker

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/flowscope/flowscope/pkg/domain/frame"
	"github.com/flowscope/flowscope/pkg/domain/types"
)

// EventKind categorizes outbound events.
type EventKind string

const (
	// EventFrameStart is emitted when a frame is created, and possibly a
	// second time for the same frame once its trigger node is resolved.
	EventFrameStart EventKind = "frame:start"
	// EventFrameEnd is emitted when a frame closes, carrying final stats.
	EventFrameEnd EventKind = "frame:end"
	// EventNodeInput is emitted when a node receives a message.
	EventNodeInput EventKind = "node:input"
	// EventNodeOutput is emitted when a node sends output(s).
	EventNodeOutput EventKind = "node:output"
	// EventNodeError is emitted when a node reports an error.
	EventNodeError EventKind = "node:error"
)

// Event is the common envelope for all outbound events.
type Event struct {
	Kind      EventKind     `json:"event"`
	Timestamp int64         `json:"ts"`
	FrameID   types.FrameID `json:"frameId"`
	NodeID    types.NodeID  `json:"nodeId,omitempty"`
	Data      interface{}   `json:"data"`
}

// FrameStartData is the payload of EventFrameStart.
type FrameStartData struct {
	ID            types.FrameID `json:"id"`
	StartedAt     int64         `json:"startedAt"`
	TriggerNodeID types.NodeID  `json:"triggerNodeId,omitempty"`
}

// FrameEndData is the payload of EventFrameEnd.
type FrameEndData struct {
	ID      types.FrameID   `json:"id"`
	EndedAt int64           `json:"endedAt"`
	Reason  frame.EndReason `json:"reason"`
	Stats   frame.Stats     `json:"stats"`
}

// NodeInputData is the payload of EventNodeInput. Input is nil for
// unsampled events.
type NodeInputData struct {
	NodeID   types.NodeID   `json:"nodeId"`
	NodeType string         `json:"nodeType"`
	Input    *frame.IOEvent `json:"input"`
	Sampled  bool           `json:"sampled"`
}

// NodeOutputData is the payload of EventNodeOutput. Outputs is empty for
// unsampled events.
type NodeOutputData struct {
	NodeID    types.NodeID     `json:"nodeId"`
	NodeType  string           `json:"nodeType"`
	Outputs   []frame.IOEvent  `json:"outputs"`
	Semantics *frame.Semantics `json:"semantics,omitempty"`
	Timing    *frame.Timing    `json:"timing,omitempty"`
	Sampled   bool             `json:"sampled"`
}

// NodeErrorData is the payload of EventNodeError.
type NodeErrorData struct {
	NodeID   types.NodeID    `json:"nodeId"`
	NodeType string          `json:"nodeType"`
	Error    frame.NodeError `json:"error"`
}

// EventFilter defines criteria for filtering a subscription's events.
type EventFilter struct {
	// Kinds limits the subscription to these event kinds (empty means all).
	Kinds []EventKind
	// NodeIDs limits the subscription to these nodes (empty means all).
	// Frame-level events carry no node id and always pass this check.
	NodeIDs []types.NodeID
	// Expression is an optional expr-lang predicate over the envelope
	// fields `event`, `frameId`, and `nodeId`. Compiled at subscribe time.
	Expression string

	program *vm.Program
}

// Compile prepares the filter's expression predicate, if any. Invalid
// expressions are rejected here so subscribers fail fast instead of
// silently receiving nothing.
func (f *EventFilter) Compile() error {
	if f.Expression == "" {
		return nil
	}
	program, err := expr.Compile(f.Expression, expr.AsBool())
	if err != nil {
		return fmt.Errorf("invalid filter expression: %w", err)
	}
	f.program = program
	return nil
}

// Matches returns true if the event passes the filter criteria.
func (f *EventFilter) Matches(event Event) bool {
	if len(f.Kinds) > 0 {
		matched := false
		for _, kind := range f.Kinds {
			if event.Kind == kind {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if len(f.NodeIDs) > 0 && event.NodeID != "" {
		matched := false
		for _, nodeID := range f.NodeIDs {
			if event.NodeID == nodeID {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if f.program != nil {
		env := map[string]interface{}{
			"event":   string(event.Kind),
			"frameId": event.FrameID.String(),
			"nodeId":  event.NodeID.String(),
		}
		out, err := expr.Run(f.program, env)
		if err != nil {
			return false
		}
		pass, ok := out.(bool)
		return ok && pass
	}

	return true
}

// subscriberBuffer sizes subscription channels. Large enough to absorb
// bursts; sends never block, the oldest pressure shows up as drops instead.
const subscriberBuffer = 200

// subscription is a single event subscriber.
type subscription struct {
	ch     chan Event
	filter *EventFilter
}

// fanout broadcasts events to subscribers without ever blocking the
// frame-processing path.
type fanout struct {
	mu          sync.Mutex
	subscribers []*subscription
	closed      bool
	dropped     int64
}

func newFanout() *fanout {
	return &fanout{subscribers: make([]*subscription, 0)}
}

// Subscribe registers a new subscriber. filter may be nil for all events.
func (b *fanout) Subscribe(filter *EventFilter) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	sub := &subscription{
		ch:     make(chan Event, subscriberBuffer),
		filter: filter,
	}
	b.subscribers = append(b.subscribers, sub)
	return sub.ch
}

// Unsubscribe closes and removes a subscription.
func (b *fanout) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subscribers {
		if sub.ch == ch {
			close(sub.ch)
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			break
		}
	}
}

// Emit broadcasts an event. Non-blocking: a subscriber whose buffer is full
// loses the event, and the drop is counted for diagnostics.
func (b *fanout) Emit(event Event) (delivered int, dropped int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, 0
	}

	for _, sub := range b.subscribers {
		if sub.filter != nil && !sub.filter.Matches(event) {
			continue
		}
		select {
		case sub.ch <- event:
			delivered++
		default:
			dropped++
			b.dropped++
		}
	}
	return delivered, dropped
}

// Dropped returns the total number of events lost to full subscriber buffers.
func (b *fanout) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Close closes all subscriber channels. Further Emit calls are no-ops.
func (b *fanout) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, sub := range b.subscribers {
		close(sub.ch)
	}
	b.subscribers = nil
}
