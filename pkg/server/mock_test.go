package server

import (
	"context"
	"encoding/json"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/wattkoll/wattkoll/pkg/spot"
	"github.com/wattkoll/wattkoll/pkg/storage"
	"github.com/wattkoll/wattkoll/pkg/telemetry"
	"github.com/wattkoll/wattkoll/pkg/types"
)

type mockTelemetry struct {
	mock.Mock
}

func (m *mockTelemetry) Devices(ctx context.Context) ([]types.Device, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.Device), args.Error(1)
}

func (m *mockTelemetry) Values(ctx context.Context, deviceID string, from, to time.Time) ([]telemetry.Value, error) {
	args := m.Called(ctx, deviceID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]telemetry.Value), args.Error(1)
}

func (m *mockTelemetry) Switch(ctx context.Context, deviceID string, value int) (json.RawMessage, error) {
	args := m.Called(ctx, deviceID, value)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(json.RawMessage), args.Error(1)
}

type mockSpot struct {
	mock.Mock
}

func (m *mockSpot) DayPrices(ctx context.Context, day time.Time) ([]types.PriceRecord, error) {
	args := m.Called(ctx, day)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.PriceRecord), args.Error(1)
}

// newTestServer wires a Server the way Configured does, minus flags, with
// auth bypassed and the clock pinned.
func newTestServer(db storage.Database, tel telemetry.Source, sp spot.Source, now time.Time) *Server {
	return &Server{
		telemetry:  tel,
		spot:       sp,
		storage:    db,
		serverName: "wattkoll-test",
		bypassAuth: true,
		firstMonth: "2025-01",
		now:        func() time.Time { return now },
	}
}
