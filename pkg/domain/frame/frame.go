package frame

import (
	"github.com/flowscope/flowscope/pkg/domain/types"
)

// Frame is one reconstructed logical execution: a trigger event and
// everything it causally produced, keyed by node.
//
// A frame is "active" until End is called; after that it is read-only.
// Frame methods are not safe for concurrent use; the owning manager
// serializes all access.
type Frame struct {
	// ID is unique and time-ordered (embeds creation time).
	ID types.FrameID `json:"id"`
	// StartedAt is the frame creation time in monotonic milliseconds.
	StartedAt int64 `json:"startedAt"`
	// EndedAt is zero while the frame is active. Set at most once.
	EndedAt int64 `json:"endedAt,omitempty"`
	// TriggerNodeID is the node inferred to be the origin of the frame:
	// the first node to report an input, absent a better signal.
	TriggerNodeID types.NodeID `json:"triggerNodeId,omitempty"`
	// Nodes maps node id to its execution record.
	Nodes map[types.NodeID]*NodeExecution `json:"nodes"`
	// NodeOrder preserves first-observation order for display.
	NodeOrder []types.NodeID `json:"nodeOrder"`
	// Stats aggregates per-frame counters.
	Stats Stats `json:"stats"`
	// LastActivity is the timestamp of the most recent event, used for
	// inactivity eviction.
	LastActivity int64 `json:"lastActivity"`
	// EndReason records why the frame closed, empty while active.
	EndReason EndReason `json:"endReason,omitempty"`
}

// New creates an active frame started at the given monotonic-millisecond
// timestamp.
func New(now int64) *Frame {
	return &Frame{
		ID:           types.NewFrameID(),
		StartedAt:    now,
		Nodes:        make(map[types.NodeID]*NodeExecution),
		NodeOrder:    []types.NodeID{},
		LastActivity: now,
	}
}

// GetOrCreateNodeExecution returns the execution record for a node, creating
// it on first observation. Idempotent; keeps Stats.NodeCount equal to the
// number of nodes.
func (f *Frame) GetOrCreateNodeExecution(nodeID types.NodeID, nodeType string) *NodeExecution {
	if ne, ok := f.Nodes[nodeID]; ok {
		return ne
	}
	ne := NewNodeExecution(nodeID, nodeType)
	f.Nodes[nodeID] = ne
	f.NodeOrder = append(f.NodeOrder, nodeID)
	f.Stats.NodeCount = len(f.Nodes)
	return ne
}

// RecordInput attaches an input event to a node and returns its execution
// record along with whether this call resolved the frame's trigger node.
func (f *Frame) RecordInput(nodeID types.NodeID, nodeType string, ev IOEvent) (*NodeExecution, bool) {
	ne := f.GetOrCreateNodeExecution(nodeID, nodeType)
	ne.AttachInput(ev)

	resolvedTrigger := false
	if f.TriggerNodeID.IsZero() {
		f.TriggerNodeID = nodeID
		resolvedTrigger = true
	}

	ne.Semantics = Infer(ne, f)
	f.Touch(ev.Timestamp)
	return ne, resolvedTrigger
}

// RecordOutput appends output events to a node and returns its execution
// record.
func (f *Frame) RecordOutput(nodeID types.NodeID, nodeType string, evs []IOEvent) *NodeExecution {
	ne := f.GetOrCreateNodeExecution(nodeID, nodeType)
	ne.AppendOutputs(evs)
	ne.Semantics = Infer(ne, f)
	f.Stats.OutputsEmitted += len(evs)
	for _, ev := range evs {
		f.Touch(ev.Timestamp)
	}
	return ne
}

// RecordError attaches an error to a node and returns its execution record.
func (f *Frame) RecordError(nodeID types.NodeID, nodeType string, nerr NodeError, now int64) *NodeExecution {
	ne := f.GetOrCreateNodeExecution(nodeID, nodeType)
	if ne.Error == nil {
		f.Stats.ErroredNodes++
	}
	ne.AttachError(nerr)
	f.Touch(now)
	return ne
}

// Touch refreshes the inactivity clock. Timestamps never move backwards.
func (f *Frame) Touch(now int64) {
	if now > f.LastActivity {
		f.LastActivity = now
	}
}

// End closes the frame. Idempotent: the first call wins, later calls are
// no-ops. FilteredNodes counts nodes that received input and produced no
// output, scanned structurally so the count does not depend on whether
// semantics were finalized first.
func (f *Frame) End(now int64, reason EndReason) {
	if f.EndedAt != 0 {
		return
	}
	f.EndedAt = now
	f.EndReason = reason
	f.Stats.DurationMs = f.EndedAt - f.StartedAt

	filtered := 0
	for _, ne := range f.Nodes {
		if ne.HasInput() && !ne.HasOutput() {
			filtered++
		}
	}
	f.Stats.FilteredNodes = filtered
}

// IsActive reports whether the frame has not ended.
func (f *Frame) IsActive() bool {
	return f.EndedAt == 0
}

// Duration returns EndedAt-StartedAt for ended frames and now-StartedAt for
// active ones.
func (f *Frame) Duration(now int64) int64 {
	if f.EndedAt != 0 {
		return f.EndedAt - f.StartedAt
	}
	return now - f.StartedAt
}

// IsInactive reports whether no event has touched the frame within timeoutMs.
func (f *Frame) IsInactive(now, timeoutMs int64) bool {
	return now-f.LastActivity >= timeoutMs
}

// HasExceededTTL reports whether the frame has been alive longer than ttlMs.
func (f *Frame) HasExceededTTL(now, ttlMs int64) bool {
	return now-f.StartedAt >= ttlMs
}

// FinalizeSemantics applies the end-of-frame reclassification to every node.
// Called exactly once per frame, at close.
func (f *Frame) FinalizeSemantics() {
	for _, ne := range f.Nodes {
		Finalize(ne)
	}
}
