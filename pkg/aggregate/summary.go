package aggregate

import (
	"math"

	"github.com/wattkoll/wattkoll/pkg/types"
)

// MonthSummary shapes one month's totals into the cached summary form.
// Monthly numbers are published at display precision: energy to one decimal,
// cost to whole öre-less kronor, average price to one decimal. pt may be nil
// for a month with no readings.
func MonthSummary(monthKey string, pt *PeriodTotals, model CompletenessModel) types.MonthlySummary {
	sum := types.MonthlySummary{
		Month:   monthKey,
		Devices: map[string]types.DeviceEnergy{},
	}
	if pt == nil || pt.Readings == 0 {
		return sum
	}

	kwh, cost, _, _ := pt.Totals()
	sum.TotalKWH = roundTo(kwh, 1)
	sum.TotalCost = roundTo(cost, 0)
	if avg := pt.AvgPriceOre(); avg != nil {
		rounded := roundTo(*avg, 1)
		sum.AvgPriceOre = &rounded
	}
	sum.Readings = pt.Readings
	sum.Partial = Partial(pt.Readings, model.Expected(monthKey, len(pt.Devices)))

	for name, d := range pt.Devices {
		sum.Devices[name] = types.DeviceEnergy{
			KWH:  roundTo(d.KWH, 1),
			Cost: roundTo(d.Cost, 0),
		}
	}
	return sum
}

// MonthReport lifts a summary into the response shape, deriving the flags
// that depend on "now": a month with zero readings is no_data with null
// totals, and the in-progress month is always partial.
func MonthReport(sum types.MonthlySummary, isCurrent bool) types.MonthReport {
	rep := types.MonthReport{
		Month:     sum.Month,
		IsCurrent: isCurrent,
		Readings:  sum.Readings,
		Devices:   sum.Devices,
	}
	if sum.Readings == 0 {
		rep.NoData = true
		rep.Devices = map[string]types.DeviceEnergy{}
		return rep
	}
	kwh, cost := sum.TotalKWH, sum.TotalCost
	rep.TotalKWH = &kwh
	rep.TotalCost = &cost
	rep.AvgPriceOre = sum.AvgPriceOre
	rep.Partial = sum.Partial || isCurrent
	return rep
}

// DayReport shapes one day's totals at daily display precision (energy to
// three decimals, cost to two).
func DayReport(dayKey string, pt *PeriodTotals) types.DayReport {
	rep := types.DayReport{
		Day:     dayKey,
		Devices: map[string]types.DeviceEnergy{},
	}
	if pt == nil {
		return rep
	}
	kwh, cost, _, _ := pt.Totals()
	rep.TotalKWH = roundTo(kwh, 3)
	rep.TotalCost = roundTo(cost, 2)
	for name, d := range pt.Devices {
		rep.Devices[name] = types.DeviceEnergy{
			KWH:  roundTo(d.KWH, 3),
			Cost: roundTo(d.Cost, 2),
		}
	}
	return rep
}

func roundTo(v float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	return math.Round(v*scale) / scale
}
