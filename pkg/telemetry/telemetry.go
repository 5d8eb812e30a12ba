// Package telemetry fetches device metadata and energy samples from the
// upstream device cloud.
package telemetry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/wattkoll/wattkoll/pkg/types"
)

// Source is the interface to the device cloud. Implementations handle their
// own authentication.
type Source interface {
	// Devices returns the live status of every registered device.
	Devices(ctx context.Context) ([]types.Device, error)
	// Values returns energy samples for one device over [from, to] at the
	// upstream's 15-minute interval. The returned timestamps are face
	// values: their digits are local wall-clock time.
	Values(ctx context.Context, deviceID string, from, to time.Time) ([]Value, error)
	// Switch turns a device on (1) or off (0) and returns the upstream's
	// raw response.
	Switch(ctx context.Context, deviceID string, value int) (json.RawMessage, error)
}

// Value is one raw sample as the upstream reports it.
type Value struct {
	DateTime         string  `json:"DateTime"`
	Timestamp        string  `json:"timestamp"`
	DeltaPower       float64 `json:"DeltaPower"`
	AccumulatedValue float64 `json:"AccumulatedValue"`
	CurrentValue     float64 `json:"CurrentValue"`
}

// When returns whichever timestamp field the upstream populated. Older
// firmware reports "timestamp" instead of "DateTime".
func (v Value) When() string {
	if v.DateTime != "" {
		return v.DateTime
	}
	return v.Timestamp
}
