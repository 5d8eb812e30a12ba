package aggregate

import (
	"github.com/wattkoll/wattkoll/pkg/types"
)

// Granularity selects the calendar period readings are grouped into.
type Granularity int

const (
	ByMonth Granularity = iota
	ByDay
)

// readingHours is the fixed duty-cycle assumption: power is sampled at a
// 15-minute cadence, so one sample represents a quarter hour of consumption.
const readingHours = 0.25

// DeviceTotals accumulates one device's numbers within a period.
type DeviceTotals struct {
	KWH  float64
	Cost float64
	// PricedKWH is the energy that had a price at its bucket; it is the
	// denominator of the weighted average price.
	PricedKWH float64
	// WeightedPrice is the sum of energy×price, the numerator of the
	// weighted average price.
	WeightedPrice float64
}

// PeriodTotals holds every device's totals plus the reading count for one
// period. Built in memory per computation; never persisted directly.
type PeriodTotals struct {
	Devices  map[string]*DeviceTotals
	Readings int
}

// Totals sums the device slices. Periods must satisfy total == Σ devices.
func (p *PeriodTotals) Totals() (kwh, cost, pricedKWH, weightedPrice float64) {
	for _, d := range p.Devices {
		kwh += d.KWH
		cost += d.Cost
		pricedKWH += d.PricedKWH
		weightedPrice += d.WeightedPrice
	}
	return
}

// AvgPriceOre returns the energy-weighted average price for the period, or
// nil when no energy was priced.
func (p *PeriodTotals) AvgPriceOre() *float64 {
	_, _, priced, weighted := p.Totals()
	if priced <= 0 {
		return nil
	}
	avg := weighted / priced
	return &avg
}

// Result maps period keys ("2006-01" or "2006-01-02") to their totals.
type Result map[string]*PeriodTotals

// EnergyKWH converts a reading's instantaneous power sample to energy.
func EnergyKWH(r types.Reading) float64 {
	return r.Watts * readingHours / 1000
}

// Run joins readings to prices by bucket key and accumulates totals per
// (period, device). Readings with an invalid timestamp are skipped, as are
// readings rejected by the filter (which may be nil). A reading whose bucket
// has no price still contributes energy but no cost and no weighted-price
// denominator.
func Run(readings []types.Reading, prices PriceLookup, g Granularity, filter ReadingFilter) Result {
	result := make(Result)
	for _, r := range readings {
		if !r.Timestamp.Valid() {
			continue
		}
		kwh := EnergyKWH(r)
		if filter != nil && !filter.Keep(r, kwh) {
			continue
		}

		var period string
		if g == ByDay {
			period = r.Timestamp.DayKey()
		} else {
			period = r.Timestamp.MonthKey()
		}

		pt, ok := result[period]
		if !ok {
			pt = &PeriodTotals{Devices: make(map[string]*DeviceTotals)}
			result[period] = pt
		}
		dt, ok := pt.Devices[r.DeviceName]
		if !ok {
			dt = &DeviceTotals{}
			pt.Devices[r.DeviceName] = dt
		}

		dt.KWH += kwh
		if ore, priced := prices[r.Timestamp.BucketKey()]; priced {
			dt.Cost += kwh * ore / 100
			dt.PricedKWH += kwh
			dt.WeightedPrice += kwh * ore
		}
		pt.Readings++
	}
	return result
}
