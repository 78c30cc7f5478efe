package capture

import (
	"github.com/flowscope/flowscope/pkg/domain/frame"
)

// NewDataSample builds a safe, bounded, redacted representation of an
// arbitrary runtime value. It never panics: on any internal failure it
// degrades to an error placeholder sample rather than propagating.
func NewDataSample(v interface{}, limits Limits) (sample frame.DataSample) {
	defer func() {
		if recover() != nil {
			sample = frame.DataSample{
				Preview:   "[capture failed]",
				Truncated: true,
			}
		}
	}()

	res := Truncate(v, limits)
	return frame.DataSample{
		Preview:   Redact(res.Preview),
		Size:      EstimateSize(v),
		Truncated: res.Truncated,
	}
}
