package tracker

import (
	"encoding/json"

	"github.com/flowscope/flowscope/pkg/domain/frame"
)

// copyFrame deep-copies a frame so snapshot consumers can serialize it after
// the lock is released while the original keeps mutating. JSON round-trip
// copying is simple and reliable; previews are JSON-serializable by
// construction. Returns nil if the frame cannot be copied.
func copyFrame(f *frame.Frame) *frame.Frame {
	data, err := json.Marshal(f)
	if err != nil {
		return nil
	}
	var cp frame.Frame
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil
	}
	return &cp
}
