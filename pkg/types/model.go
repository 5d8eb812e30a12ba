package types

import (
	"time"

	"github.com/wattkoll/wattkoll/pkg/timekey"
)

const (
	// CurrentMonthlySummaryVersion is stored alongside cached summaries so a
	// future format change can invalidate old cache rows.
	CurrentMonthlySummaryVersion = 1

	// SyncTypeEnergy is the sync_status key prefix for reading syncs.
	SyncTypeEnergy = "energy"
)

// Reading is a single telemetry sample from one device. The timestamp is a
// face value: its digits are local time even though the stored string carries
// a UTC suffix (see timekey.FaceTime). Readings arrive at a ~15 minute cadence
// and are immutable once stored; re-syncs upsert on (device_id, timestamp).
type Reading struct {
	DeviceID   string           `json:"device_id"`
	DeviceName string           `json:"device_name"`
	Timestamp  timekey.FaceTime `json:"timestamp"`
	// DeltaKWH is the energy delta reported by the source for the interval.
	DeltaKWH float64 `json:"delta_power"`
	// AccumulatedKWH is the source's running total, kept for diagnostics.
	AccumulatedKWH float64 `json:"accumulated_value"`
	// Watts is the instantaneous power sample used for cost aggregation.
	Watts float64 `json:"current_value"`
}

// PriceRecord is one spot price interval. Unlike readings, the timestamp is
// true UTC. Granularity is hourly for most months and quarter-hourly where
// the market publishes 15-minute prices.
type PriceRecord struct {
	Timestamp time.Time `json:"timestamp"`
	PriceArea string    `json:"price_area"`
	// OrePerKWH is the unit price in öre (hundredths of SEK) per kWh.
	OrePerKWH float64  `json:"price_ore"`
	EurPerKWH *float64 `json:"price_eur,omitempty"`
}

// BucketKey returns the record's quarter-hour local bucket key. The price
// timestamp is true UTC, so the DST offset is applied before keying; contrast
// with Reading timestamps, which are keyed on their face value.
func (p PriceRecord) BucketKey() string {
	return timekey.PriceBucketKey(p.Timestamp)
}

// DeviceEnergy is the per-device slice of a period's totals.
type DeviceEnergy struct {
	KWH  float64 `json:"kwh"`
	Cost float64 `json:"cost"`
}

// MonthlySummary is the cached aggregate for one calendar month. For months
// fully in the past it is computed once and then read back verbatim; the
// in-progress month is always recomputed and never cached.
type MonthlySummary struct {
	Month       string                  `json:"month"`
	TotalKWH    float64                 `json:"total_kwh"`
	TotalCost   float64                 `json:"total_cost"`
	AvgPriceOre *float64                `json:"avg_price_ore"`
	Readings    int                     `json:"readings"`
	Partial     bool                    `json:"partial"`
	Devices     map[string]DeviceEnergy `json:"devices"`
}

// MonthReport is the per-month element of the /api/monthly response.
// Totals are pointers so months without data serialize as nulls.
type MonthReport struct {
	Month       string                  `json:"month"`
	IsCurrent   bool                    `json:"is_current"`
	NoData      bool                    `json:"no_data"`
	Partial     bool                    `json:"partial"`
	TotalKWH    *float64                `json:"total_kwh"`
	TotalCost   *float64                `json:"total_cost"`
	AvgPriceOre *float64                `json:"avg_price_ore"`
	Readings    int                     `json:"readings"`
	Devices     map[string]DeviceEnergy `json:"devices"`
}

// DayReport is the per-day element of the /api/daily response.
type DayReport struct {
	Day       string                  `json:"day"`
	TotalKWH  float64                 `json:"total_kwh"`
	TotalCost float64                 `json:"total_cost"`
	Devices   map[string]DeviceEnergy `json:"devices"`
}

// Device is the normalized live status of one telemetry device.
type Device struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	DeviceID      string  `json:"deviceId"`
	Value         int     `json:"value"`
	CurrentPower  float64 `json:"currentPower"`
	BatteryOK     bool    `json:"batteryOK"`
	FuseVoltageOK bool    `json:"fuseVoltageOK"`
	Offline       bool    `json:"offline"`
	LastUpdate    string  `json:"lastUpdate,omitempty"`
	HoursActive   float64 `json:"hoursActive"`
}

// SyncOutcome reports one half of a sync run. Per-device failures are
// collected here rather than aborting the whole run.
type SyncOutcome struct {
	Saved  int      `json:"saved"`
	Errors []string `json:"errors"`
}

// SyncResult is the /api/sync response.
type SyncResult struct {
	OK        bool        `json:"ok"`
	Timestamp time.Time   `json:"timestamp"`
	Energy    SyncOutcome `json:"energy"`
	Prices    SyncOutcome `json:"prices"`
}
