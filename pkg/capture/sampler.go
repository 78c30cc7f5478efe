package capture

import (
	"github.com/flowscope/flowscope/pkg/domain/types"
)

// SampleMode selects the sampling strategy.
type SampleMode string

const (
	// SampleModeFirstN records full detail for the first N events per node
	// and only minimal stubs after that.
	SampleModeFirstN SampleMode = "first-n"
	// SampleModeAll records full detail for every event.
	SampleModeAll SampleMode = "all"
)

// SamplerStats are the sampler's diagnostic counters.
type SamplerStats struct {
	Sampled    int64 `json:"sampled"`
	Suppressed int64 `json:"suppressed"`
	NodesSeen  int   `json:"nodesSeen"`
}

// Sampler decides whether a given node event is recorded in full detail or
// summarized. It bounds capture cost under high-volume traffic while the
// frame shape is still preserved by the caller.
//
// Not safe for concurrent use; the owning manager serializes access.
type Sampler struct {
	mode    SampleMode
	perNode int
	counts  map[types.NodeID]int
	stats   SamplerStats
}

// NewSampler creates a sampler. perNode is the per-node full-detail cap for
// SampleModeFirstN; a cap of zero or below disables suppression.
func NewSampler(mode SampleMode, perNode int) *Sampler {
	if mode == "" {
		mode = SampleModeFirstN
	}
	return &Sampler{
		mode:    mode,
		perNode: perNode,
		counts:  make(map[types.NodeID]int),
	}
}

// ShouldSample records one event for the node and reports whether it should
// be captured in full detail.
func (s *Sampler) ShouldSample(nodeID types.NodeID) bool {
	s.counts[nodeID]++
	if s.mode == SampleModeAll || s.perNode <= 0 {
		s.stats.Sampled++
		return true
	}
	if s.counts[nodeID] <= s.perNode {
		s.stats.Sampled++
		return true
	}
	s.stats.Suppressed++
	return false
}

// Stats returns the sampler's diagnostic counters.
func (s *Sampler) Stats() SamplerStats {
	stats := s.stats
	stats.NodesSeen = len(s.counts)
	return stats
}

// Reset clears all per-node counters and diagnostics.
func (s *Sampler) Reset() {
	s.counts = make(map[types.NodeID]int)
	s.stats = SamplerStats{}
}
