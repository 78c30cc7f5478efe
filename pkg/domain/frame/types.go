// Package frame defines the in-memory model of one reconstructed logical
// execution: which nodes ran, with what inputs and outputs, timing, errors,
// and the semantics inferred from that observed I/O.
package frame

// Direction indicates whether an IOEvent was observed on a node's input or
// output side.
type Direction string

const (
	// DirectionInput marks an event observed when a node received a message.
	DirectionInput Direction = "input"
	// DirectionOutput marks an event observed when a node emitted a message.
	DirectionOutput Direction = "output"
)

// Role classifies what part a node played within a frame, inferred purely
// from its observed I/O shape.
type Role string

const (
	// RoleTrigger is the node inferred to be the origin of the frame.
	RoleTrigger Role = "trigger"
	// RoleGenerator produced output without any recorded input.
	RoleGenerator Role = "generator"
	// RoleTransform received input and produced output.
	RoleTransform Role = "transform"
	// RoleFilter received input and produced no output mid-frame.
	RoleFilter Role = "filter"
	// RoleSink is reserved for terminal nodes by convention; treated as
	// equivalent to RoleFilter until a stronger signal exists.
	RoleSink Role = "sink"
)

// Behavior classifies how a node handled the message it received.
type Behavior string

const (
	// BehaviorPassThrough means the single output matched the input exactly.
	BehaviorPassThrough Behavior = "pass-through"
	// BehaviorTransformed means the output differed from the input.
	BehaviorTransformed Behavior = "transformed"
	// BehaviorFiltered means the node swallowed its input mid-frame.
	BehaviorFiltered Behavior = "filtered"
	// BehaviorBifurcated means the node emitted more than one output.
	BehaviorBifurcated Behavior = "bifurcated"
	// BehaviorTerminated means the frame closed before the node forwarded
	// anything. Assigned only at frame finalization.
	BehaviorTerminated Behavior = "terminated"
)

// DataSample is a safe, bounded representation of an arbitrary runtime value.
// Preview is a truncated and redacted structural copy, never a reference to
// the original. Size estimates the original value in bytes, not the preview.
type DataSample struct {
	Preview   interface{} `json:"preview"`
	Size      int         `json:"size"`
	Truncated bool        `json:"truncated"`
}

// IOEvent is one observed input or output moment for a node. It is immutable
// once created and owned exclusively by the NodeExecution that recorded it.
type IOEvent struct {
	Direction Direction  `json:"direction"`
	Port      int        `json:"port"`
	Timestamp int64      `json:"timestamp"`
	Payload   DataSample `json:"payload"`
}

// Semantics holds the two independent classifications assigned to a node's
// participation in a frame. Both are recomputed on every relevant mutation.
type Semantics struct {
	Role     Role     `json:"role,omitempty"`
	Behavior Behavior `json:"behavior,omitempty"`
}

// Timing captures when a node received and sent within a frame, in monotonic
// milliseconds. DurationMs is SentAt-ReceivedAt once both are known.
type Timing struct {
	ReceivedAt int64 `json:"receivedAt,omitempty"`
	SentAt     int64 `json:"sentAt,omitempty"`
	DurationMs int64 `json:"durationMs,omitempty"`
}

// NodeError records an error reported by the host for a node.
type NodeError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Stats aggregates per-frame counters. NodeCount always equals the number of
// node executions in the frame.
type Stats struct {
	NodeCount      int   `json:"nodeCount"`
	OutputsEmitted int   `json:"outputsEmitted"`
	FilteredNodes  int   `json:"filteredNodes"`
	ErroredNodes   int   `json:"erroredNodes"`
	DurationMs     int64 `json:"durationMs"`
}

// EndReason names why a frame was closed.
type EndReason string

const (
	// EndReasonExplicit is a direct close by the caller.
	EndReasonExplicit EndReason = "explicit"
	// EndReasonTTL means the frame exceeded its maximum lifetime.
	EndReasonTTL EndReason = "ttl"
	// EndReasonInactivity means no event touched the frame for too long.
	EndReasonInactivity EndReason = "inactivity"
	// EndReasonShutdown means the manager was shut down with the frame open.
	EndReasonShutdown EndReason = "shutdown"
	// EndReasonEvicted means the ring buffer exceeded capacity while the
	// frame was still active.
	EndReasonEvicted EndReason = "evicted"
)
