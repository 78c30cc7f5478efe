// Package capture bounds, scrubs, and normalizes observed runtime values so
// they are safe to hold in memory and safe to ship across the process
// boundary. Every function in this package is total: malformed or hostile
// input degrades to a placeholder, never to a panic.
package capture

// Limits bounds how much of a captured value survives into a preview.
type Limits struct {
	// MaxDepth bounds recursion into composite values.
	MaxDepth int `yaml:"maxDepth" json:"maxDepth"`
	// MaxKeys bounds how many object keys are kept, in enumeration order.
	MaxKeys int `yaml:"maxKeys" json:"maxKeys"`
	// MaxArrayItems bounds how many array elements are kept.
	MaxArrayItems int `yaml:"maxArrayItems" json:"maxArrayItems"`
	// MaxStringLength bounds individual string values.
	MaxStringLength int `yaml:"maxStringLength" json:"maxStringLength"`
	// MaxPayloadBytes bounds the serialized size of the whole preview.
	MaxPayloadBytes int `yaml:"maxPayloadBytes" json:"maxPayloadBytes"`
}

// DefaultLimits is the tight profile applied to ordinary traffic.
func DefaultLimits() Limits {
	return Limits{
		MaxDepth:        6,
		MaxKeys:         50,
		MaxArrayItems:   20,
		MaxStringLength: 5000,
		MaxPayloadBytes: 50000,
	}
}

// RelaxedLimits is the near-lossless profile selected for special-case
// events (final-answer / model-response channels) where truncation would
// destroy the usefulness of the delivered content.
func RelaxedLimits() Limits {
	return Limits{
		MaxDepth:        12,
		MaxKeys:         500,
		MaxArrayItems:   500,
		MaxStringLength: 500000,
		MaxPayloadBytes: 5000000,
	}
}
