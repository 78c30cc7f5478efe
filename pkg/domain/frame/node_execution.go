package frame

import (
	"github.com/flowscope/flowscope/pkg/domain/types"
)

// NodeExecution is the record of one node's participation in one frame.
// It is created lazily on the first input or output event for a
// (frame, nodeId) pair and mutated in place for the rest of the frame's life.
type NodeExecution struct {
	// NodeID identifies the node definition in the host graph.
	NodeID types.NodeID `json:"nodeId"`
	// NodeType is the node's declared type (e.g. "inject", "function").
	NodeType string `json:"nodeType"`
	// Input is the single recorded input event, if any. A node records at
	// most one input per frame; later inputs only refresh timing.
	Input *IOEvent `json:"input,omitempty"`
	// Outputs is the append-only ordered sequence of output events.
	Outputs []IOEvent `json:"outputs,omitempty"`
	// Semantics is recomputed after every sampled mutation.
	Semantics Semantics `json:"semantics"`
	// Timing is derived from event timestamps. ReceivedAt/SentAt are set
	// even for unsampled events so frame shape survives sampling.
	Timing Timing `json:"timing"`
	// Error holds the last error the host reported for this node.
	Error *NodeError `json:"error,omitempty"`
}

// NewNodeExecution creates an empty execution record for a node.
func NewNodeExecution(nodeID types.NodeID, nodeType string) *NodeExecution {
	return &NodeExecution{
		NodeID:   nodeID,
		NodeType: nodeType,
		Outputs:  []IOEvent{},
	}
}

// AttachInput records the node's input event. The first recorded input wins;
// subsequent inputs only refresh ReceivedAt.
func (ne *NodeExecution) AttachInput(ev IOEvent) {
	if ne.Input == nil {
		ne.Input = &ev
	}
	ne.MarkReceived(ev.Timestamp)
}

// AppendOutputs records output events in order and updates timing.
func (ne *NodeExecution) AppendOutputs(evs []IOEvent) {
	for _, ev := range evs {
		ne.Outputs = append(ne.Outputs, ev)
		ne.MarkSent(ev.Timestamp)
	}
}

// MarkReceived updates ReceivedAt without attaching a payload. Used for
// unsampled input events.
func (ne *NodeExecution) MarkReceived(ts int64) {
	if ne.Timing.ReceivedAt == 0 {
		ne.Timing.ReceivedAt = ts
	}
	ne.recomputeDuration()
}

// MarkSent updates SentAt without attaching a payload. Used for unsampled
// output events. SentAt is the first send; duration measures time-to-first-output.
func (ne *NodeExecution) MarkSent(ts int64) {
	if ne.Timing.SentAt == 0 {
		ne.Timing.SentAt = ts
	}
	ne.recomputeDuration()
}

// AttachError records the host-reported error for this node.
func (ne *NodeExecution) AttachError(nerr NodeError) {
	ne.Error = &nerr
}

// HasInput reports whether the node received an input this frame, sampled
// or not.
func (ne *NodeExecution) HasInput() bool {
	return ne.Input != nil || ne.Timing.ReceivedAt != 0
}

// OutputCount returns the number of recorded output events. Unsampled sends
// are not counted; they carry no payload to count.
func (ne *NodeExecution) OutputCount() int {
	return len(ne.Outputs)
}

// HasOutput reports whether the node produced any output this frame, sampled
// or not.
func (ne *NodeExecution) HasOutput() bool {
	return len(ne.Outputs) > 0 || ne.Timing.SentAt != 0
}

func (ne *NodeExecution) recomputeDuration() {
	if ne.Timing.ReceivedAt != 0 && ne.Timing.SentAt != 0 {
		ne.Timing.DurationMs = ne.Timing.SentAt - ne.Timing.ReceivedAt
	}
}
