package frame

import (
	"bytes"
	"encoding/json"
)

// InferRole classifies the part a node played in a frame from its observed
// I/O shape alone. The trigger designation always wins; after that the shape
// decides.
func InferRole(ne *NodeExecution, f *Frame) Role {
	switch {
	case ne.NodeID == f.TriggerNodeID:
		return RoleTrigger
	case ne.HasOutput() && !ne.HasInput():
		return RoleGenerator
	case ne.HasInput() && ne.HasOutput():
		return RoleTransform
	case ne.HasInput() && !ne.HasOutput():
		// RoleSink exists for terminal nodes by convention; without a
		// stronger signal filter is the default.
		return RoleFilter
	default:
		return RoleTransform
	}
}

// InferBehavior classifies how a node handled its input, as of the latest
// observed event. BehaviorTerminated is never produced here; it is assigned
// only by Finalize at frame close.
func InferBehavior(ne *NodeExecution) Behavior {
	switch n := len(ne.Outputs); {
	case n == 0:
		return BehaviorFiltered
	case n > 1:
		return BehaviorBifurcated
	default:
		if ne.Input == nil {
			return BehaviorTransformed
		}
		if previewsEqual(ne.Input.Payload.Preview, ne.Outputs[0].Payload.Preview) {
			return BehaviorPassThrough
		}
		return BehaviorTransformed
	}
}

// Infer recomputes both classifications for a node.
func Infer(ne *NodeExecution, f *Frame) Semantics {
	return Semantics{
		Role:     InferRole(ne, f),
		Behavior: InferBehavior(ne),
	}
}

// Finalize applies the end-of-frame reclassification: a node that received
// input but never forwarded anything, and was not already classified as
// filtered mid-frame, becomes terminated. The transition is one-way.
func Finalize(ne *NodeExecution) {
	if ne.Semantics.Behavior == BehaviorTerminated {
		return
	}
	if ne.HasInput() && !ne.HasOutput() && ne.Semantics.Behavior != BehaviorFiltered {
		ne.Semantics.Behavior = BehaviorTerminated
	}
}

// previewsEqual compares two previews by serialized structural equality.
// Any difference, however small, counts as a transformation. Values that
// cannot be serialized are never considered equal.
func previewsEqual(a, b interface{}) bool {
	ab, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}
