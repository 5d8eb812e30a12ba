// Package storagemock provides a testify mock of the storage.Database
// interface for use in tests.
package storagemock

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/wattkoll/wattkoll/pkg/timekey"
	"github.com/wattkoll/wattkoll/pkg/types"
)

// Database is a mock implementation of storage.Database.
type Database struct {
	mock.Mock
}

func (m *Database) UpsertReadings(ctx context.Context, readings []types.Reading) (int, error) {
	args := m.Called(ctx, readings)
	return args.Int(0), args.Error(1)
}

func (m *Database) GetReadings(ctx context.Context, start, end timekey.FaceTime, deviceID string) ([]types.Reading, error) {
	args := m.Called(ctx, start, end, deviceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.Reading), args.Error(1)
}

func (m *Database) UpsertPrices(ctx context.Context, prices []types.PriceRecord) (int, error) {
	args := m.Called(ctx, prices)
	return args.Int(0), args.Error(1)
}

func (m *Database) GetPrices(ctx context.Context, start, end time.Time) ([]types.PriceRecord, error) {
	args := m.Called(ctx, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.PriceRecord), args.Error(1)
}

func (m *Database) GetMonthlySummaries(ctx context.Context, months []string) (map[string]types.MonthlySummary, error) {
	args := m.Called(ctx, months)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]types.MonthlySummary), args.Error(1)
}

func (m *Database) UpsertMonthlySummary(ctx context.Context, sum types.MonthlySummary) error {
	args := m.Called(ctx, sum)
	return args.Error(0)
}

func (m *Database) GetSyncStatus(ctx context.Context, syncType, deviceID string) (time.Time, error) {
	args := m.Called(ctx, syncType, deviceID)
	return args.Get(0).(time.Time), args.Error(1)
}

func (m *Database) SetSyncStatus(ctx context.Context, syncType, deviceID string, ts time.Time) error {
	args := m.Called(ctx, syncType, deviceID, ts)
	return args.Error(0)
}

func (m *Database) Close() error {
	args := m.Called()
	return args.Error(0)
}
