// Package aggregate joins energy readings to spot prices on quarter-hour
// local-time bucket keys and accumulates per-device, per-period totals.
package aggregate

import (
	"sort"

	"github.com/wattkoll/wattkoll/pkg/types"
)

// PriceLookup maps a quarter-hour local bucket key to the unit price in
// öre/kWh. A missing key is an expected state, not an error: the bucket's
// energy is still counted, only its cost is undefined.
type PriceLookup map[string]float64

// BuildPriceLookup builds the dense quarter-hour price table. Every record's
// derived key is inserted directly; records landing exactly on the hour also
// seed :15/:30/:45 when those keys are absent, back-filling months where the
// market only published hourly prices. Records are processed in timestamp
// order so hourly seeds never clobber genuine quarter-hour data inserted in
// the same pass.
func BuildPriceLookup(records []types.PriceRecord) PriceLookup {
	sorted := make([]types.PriceRecord, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	lookup := make(PriceLookup, len(sorted)*4)
	for _, r := range sorted {
		key := r.BucketKey()
		lookup[key] = r.OrePerKWH
		if key[14:] == "00" {
			hour := key[:13]
			for _, m := range []string{":15", ":30", ":45"} {
				qk := hour + m
				if _, ok := lookup[qk]; !ok {
					lookup[qk] = r.OrePerKWH
				}
			}
		}
	}
	return lookup
}
