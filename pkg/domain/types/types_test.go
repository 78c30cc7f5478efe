package types

import (
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewFrameID_UniqueAndOrdered(t *testing.T) {
	ids := make([]FrameID, 100)
	seen := make(map[FrameID]struct{}, len(ids))
	for i := range ids {
		ids[i] = NewFrameID()
		seen[ids[i]] = struct{}{}
	}
	assert.Len(t, seen, len(ids))

	// Generation order and lexicographic order must agree.
	sorted := make([]FrameID, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	assert.Equal(t, ids, sorted)
}

func TestFrameID_IsZero(t *testing.T) {
	assert.True(t, FrameID("").IsZero())
	assert.False(t, NewFrameID().IsZero())
}

func TestNodeID_IsZero(t *testing.T) {
	assert.True(t, NodeID("").IsZero())
	assert.False(t, NodeID("n1").IsZero())
}

func TestNewSyntheticKey(t *testing.T) {
	a := NewSyntheticKey()
	b := NewSyntheticKey()

	assert.True(t, strings.HasPrefix(a.String(), "synth-"))
	assert.NotEqual(t, a, b)
	assert.False(t, a.IsZero())
	assert.True(t, CorrelationKey("").IsZero())
}
