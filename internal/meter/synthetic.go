package meter

import "math"

const (
	DefaultBias   = 0.75
	DefaultJitter = 20.0
)

// SyntheticLevel fabricates a meter reading from an effective level:
//
//	clamp(round(effective*bias + r*jitter), 0, 100)
//
// with r drawn uniformly from [0,1). It is a volume-biased random value, not
// a measurement of signal energy.
func SyntheticLevel(effective int, bias, jitter, r float64) int {
	level := int(math.Round(float64(effective)*bias + r*jitter))
	if level < 0 {
		return 0
	}
	if level > 100 {
		return 100
	}
	return level
}
