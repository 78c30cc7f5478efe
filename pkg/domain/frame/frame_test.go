package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func inputEvent(ts int64, preview interface{}) IOEvent {
	return IOEvent{
		Direction: DirectionInput,
		Timestamp: ts,
		Payload:   DataSample{Preview: preview},
	}
}

func outputEvent(ts int64, port int, preview interface{}) IOEvent {
	return IOEvent{
		Direction: DirectionOutput,
		Port:      port,
		Timestamp: ts,
		Payload:   DataSample{Preview: preview},
	}
}

func TestNew(t *testing.T) {
	f := New(1000)

	assert.False(t, f.ID.IsZero())
	assert.Equal(t, int64(1000), f.StartedAt)
	assert.Equal(t, int64(1000), f.LastActivity)
	assert.True(t, f.IsActive())
	assert.Empty(t, f.Nodes)
}

func TestGetOrCreateNodeExecution_Idempotent(t *testing.T) {
	f := New(1000)

	first := f.GetOrCreateNodeExecution("n1", "inject")
	second := f.GetOrCreateNodeExecution("n1", "inject")

	assert.Same(t, first, second)
	assert.Equal(t, 1, f.Stats.NodeCount)
	assert.Equal(t, []string{"n1"}, nodeOrderStrings(f))

	f.GetOrCreateNodeExecution("n2", "function")
	assert.Equal(t, 2, f.Stats.NodeCount)
	assert.Equal(t, []string{"n1", "n2"}, nodeOrderStrings(f))
}

func TestRecordInput_FirstInputResolvesTrigger(t *testing.T) {
	f := New(1000)

	ne, resolved := f.RecordInput("n1", "inject", inputEvent(1001, "hello"))
	assert.True(t, resolved)
	assert.Equal(t, "n1", string(f.TriggerNodeID))
	assert.Equal(t, RoleTrigger, ne.Semantics.Role)

	ne2, resolved2 := f.RecordInput("n2", "function", inputEvent(1002, "hello"))
	assert.False(t, resolved2)
	assert.Equal(t, "n1", string(f.TriggerNodeID))
	assert.Equal(t, RoleFilter, ne2.Semantics.Role)
}

func TestRecordInput_FirstPayloadWins(t *testing.T) {
	f := New(1000)

	f.RecordInput("n1", "function", inputEvent(1001, "first"))
	ne, _ := f.RecordInput("n1", "function", inputEvent(1005, "second"))

	assert.Equal(t, "first", ne.Input.Payload.Preview)
	assert.Equal(t, int64(1001), ne.Timing.ReceivedAt)
	assert.Equal(t, int64(1005), f.LastActivity)
}

func TestRecordOutput_UpdatesStatsAndSemantics(t *testing.T) {
	f := New(1000)
	f.RecordInput("n1", "function", inputEvent(1001, map[string]interface{}{"v": 1}))

	ne := f.RecordOutput("n1", "function", []IOEvent{
		outputEvent(1010, 0, map[string]interface{}{"v": 2}),
	})

	assert.Equal(t, 1, f.Stats.OutputsEmitted)
	assert.Equal(t, BehaviorTransformed, ne.Semantics.Behavior)
	assert.Equal(t, int64(9), ne.Timing.DurationMs)
	assert.Equal(t, int64(1010), f.LastActivity)
}

func TestRecordError_CountsEachNodeOnce(t *testing.T) {
	f := New(1000)

	f.RecordError("n1", "function", NodeError{Message: "boom"}, 1001)
	f.RecordError("n1", "function", NodeError{Message: "boom again"}, 1002)
	f.RecordError("n2", "function", NodeError{Message: "other"}, 1003)

	assert.Equal(t, 2, f.Stats.ErroredNodes)
	assert.Equal(t, "boom again", f.Nodes["n1"].Error.Message)
}

func TestTouch_NeverMovesBackwards(t *testing.T) {
	f := New(1000)
	f.Touch(2000)
	f.Touch(1500)
	assert.Equal(t, int64(2000), f.LastActivity)
}

func TestEnd_Idempotent(t *testing.T) {
	f := New(1000)

	f.End(5000, EndReasonExplicit)
	assert.False(t, f.IsActive())
	assert.Equal(t, EndReasonExplicit, f.EndReason)
	assert.Equal(t, int64(4000), f.Stats.DurationMs)

	f.End(9000, EndReasonTTL)
	assert.Equal(t, int64(5000), f.EndedAt)
	assert.Equal(t, EndReasonExplicit, f.EndReason)
}

func TestEnd_CountsFilteredNodesStructurally(t *testing.T) {
	f := New(1000)

	// n1 has input and output, n2 input only, n3 output only.
	f.RecordInput("n1", "function", inputEvent(1001, "a"))
	f.RecordOutput("n1", "function", []IOEvent{outputEvent(1002, 0, "b")})
	f.RecordInput("n2", "switch", inputEvent(1003, "a"))
	f.RecordOutput("n3", "inject", []IOEvent{outputEvent(1004, 0, "c")})

	f.End(2000, EndReasonInactivity)
	assert.Equal(t, 1, f.Stats.FilteredNodes)
}

func TestEnd_FilteredCountIncludesUnsampledInputs(t *testing.T) {
	f := New(1000)

	// Timing-only input, no payload attached: still counts as received.
	ne := f.GetOrCreateNodeExecution("n1", "switch")
	ne.MarkReceived(1001)

	f.End(2000, EndReasonExplicit)
	assert.Equal(t, 1, f.Stats.FilteredNodes)
}

func TestDuration(t *testing.T) {
	f := New(1000)
	assert.Equal(t, int64(500), f.Duration(1500))

	f.End(3000, EndReasonExplicit)
	assert.Equal(t, int64(2000), f.Duration(9999))
}

func TestInactivityAndTTL(t *testing.T) {
	f := New(1000)
	f.Touch(2000)

	assert.False(t, f.IsInactive(6999, 5000))
	assert.True(t, f.IsInactive(7000, 5000))

	assert.False(t, f.HasExceededTTL(30999, 30000))
	assert.True(t, f.HasExceededTTL(31000, 30000))
}

func TestFinalizeSemantics_TerminatesSilentNodes(t *testing.T) {
	f := New(1000)

	// Unsampled input: timing only, behavior never classified mid-frame.
	ne := f.GetOrCreateNodeExecution("n1", "http request")
	ne.MarkReceived(1001)

	f.FinalizeSemantics()
	assert.Equal(t, BehaviorTerminated, ne.Semantics.Behavior)

	// Finalizing again changes nothing.
	f.FinalizeSemantics()
	assert.Equal(t, BehaviorTerminated, ne.Semantics.Behavior)
}

func nodeOrderStrings(f *Frame) []string {
	out := make([]string, len(f.NodeOrder))
	for i, id := range f.NodeOrder {
		out[i] = string(id)
	}
	return out
}
