// Package types defines core domain type aliases and identifiers for FlowScope.
package types

import (
	"github.com/google/uuid"
	"github.com/rs/xid"
)

// FrameID is a unique, time-ordered identifier for an execution frame.
// IDs generated later sort lexicographically after IDs generated earlier,
// which keeps frame listings chronologically ordered without a secondary key.
type FrameID string

// NodeID is a unique identifier for a node within the host dataflow graph.
type NodeID string

// CorrelationKey is an opaque identifier shared by all events belonging to
// one causal message chain. An empty key means the host did not propagate one.
type CorrelationKey string

// NewFrameID generates a new unique frame ID embedding the creation timestamp.
func NewFrameID() FrameID {
	return FrameID(xid.New().String())
}

// String returns the string representation of a FrameID.
func (id FrameID) String() string {
	return string(id)
}

// IsZero returns true if the FrameID is the zero value.
func (id FrameID) IsZero() bool {
	return id == ""
}

// String returns the string representation of a NodeID.
func (id NodeID) String() string {
	return string(id)
}

// IsZero returns true if the NodeID is the zero value.
func (id NodeID) IsZero() bool {
	return id == ""
}

// NewSyntheticKey generates a correlation key for events that arrived without
// one but still need a frame to attach to.
func NewSyntheticKey() CorrelationKey {
	return CorrelationKey("synth-" + uuid.NewString())
}

// IsZero returns true if the CorrelationKey is the zero value.
func (k CorrelationKey) IsZero() bool {
	return k == ""
}

// String returns the string representation of a CorrelationKey.
func (k CorrelationKey) String() string {
	return string(k)
}
