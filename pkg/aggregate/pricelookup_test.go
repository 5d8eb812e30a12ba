package aggregate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wattkoll/wattkoll/pkg/types"
)

func TestBuildPriceLookupHourlyBackfill(t *testing.T) {
	// Two hourly records in winter (UTC 00:00 -> local 01:00).
	records := []types.PriceRecord{
		{Timestamp: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), OrePerKWH: 150},
		{Timestamp: time.Date(2025, 1, 1, 1, 0, 0, 0, time.UTC), OrePerKWH: 90},
	}

	lookup := BuildPriceLookup(records)
	require.Len(t, lookup, 8, "each hourly record should expand to 4 quarter entries")

	for _, m := range []string{"00", "15", "30", "45"} {
		assert.Equal(t, 150.0, lookup["2025-01-01T01:"+m])
		assert.Equal(t, 90.0, lookup["2025-01-01T02:"+m])
	}
}

func TestBuildPriceLookupQuarterHourNotOverwritten(t *testing.T) {
	// An hourly record followed by genuine quarter-hour records in the same
	// hour: back-fill must never replace an explicitly present key.
	records := []types.PriceRecord{
		{Timestamp: time.Date(2025, 11, 3, 10, 15, 0, 0, time.UTC), OrePerKWH: 77},
		{Timestamp: time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC), OrePerKWH: 50},
		{Timestamp: time.Date(2025, 11, 3, 10, 30, 0, 0, time.UTC), OrePerKWH: 88},
	}

	lookup := BuildPriceLookup(records)

	// Local keys are UTC+1 in November.
	assert.Equal(t, 50.0, lookup["2025-11-03T11:00"])
	assert.Equal(t, 77.0, lookup["2025-11-03T11:15"])
	assert.Equal(t, 88.0, lookup["2025-11-03T11:30"])
	// :45 had no explicit record, so the hourly seed fills it.
	assert.Equal(t, 50.0, lookup["2025-11-03T11:45"])
}

func TestBuildPriceLookupEmpty(t *testing.T) {
	lookup := BuildPriceLookup(nil)
	assert.Empty(t, lookup)
	_, ok := lookup["2025-01-01T00:00"]
	assert.False(t, ok, "missing key is a valid miss, not a zero price")
}

func TestBuildPriceLookupDSTShift(t *testing.T) {
	// Summer record: UTC 12:00 must key at local 14:00.
	records := []types.PriceRecord{
		{Timestamp: time.Date(2025, 7, 10, 12, 0, 0, 0, time.UTC), OrePerKWH: 33},
	}
	lookup := BuildPriceLookup(records)
	assert.Equal(t, 33.0, lookup["2025-07-10T14:00"])
	assert.Equal(t, 33.0, lookup["2025-07-10T14:45"])
}
