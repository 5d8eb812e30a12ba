package aggregate

import "github.com/wattkoll/wattkoll/pkg/timekey"

// partialThreshold flags a period when fewer than half the expected readings
// arrived. A coarse data-quality signal, not a correctness guarantee.
const partialThreshold = 0.5

// CompletenessModel estimates how many readings a period should contain.
// It is an interface because the fixed-cadence estimate below is brittle to
// device-count changes mid-period and may be replaced later.
type CompletenessModel interface {
	Expected(periodKey string, deviceCount int) int
}

// FixedCadence assumes every device reports on a fixed schedule for every
// day of the period.
type FixedCadence struct {
	// ReadingsPerDay is the per-device daily sample count (96 at a
	// 15-minute cadence).
	ReadingsPerDay int
}

func (f FixedCadence) Expected(periodKey string, deviceCount int) int {
	return f.ReadingsPerDay * timekey.DaysIn(periodKey) * deviceCount
}

// Partial reports whether an actual reading count falls below the expected
// threshold.
func Partial(actual, expected int) bool {
	if expected < 1 {
		expected = 1
	}
	return float64(actual)/float64(expected) < partialThreshold
}
