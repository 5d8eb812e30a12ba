package aggregate

import "github.com/wattkoll/wattkoll/pkg/types"

// ReadingFilter decides whether a reading participates in aggregation. It is
// a named stage so validation rules stay out of the accumulation loop and can
// be tested on their own.
type ReadingFilter interface {
	Keep(r types.Reading, kwh float64) bool
}

// MaxEnergyFilter rejects any single reading whose derived energy exceeds a
// fixed ceiling. This guards against ingesting an accumulated-total field
// where a per-interval sample was expected. A ceiling of zero disables the
// filter entirely.
type MaxEnergyFilter struct {
	CeilingKWH float64
}

func (f MaxEnergyFilter) Keep(_ types.Reading, kwh float64) bool {
	return f.CeilingKWH <= 0 || kwh <= f.CeilingKWH
}
