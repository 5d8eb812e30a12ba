package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/wattkoll/wattkoll/pkg/storage/storagemock"
	"github.com/wattkoll/wattkoll/pkg/telemetry"
	"github.com/wattkoll/wattkoll/pkg/types"
)

func TestSync(t *testing.T) {
	db := &storagemock.Database{}
	tel := &mockTelemetry{}
	sp := &mockSpot{}
	now := time.Date(2025, 6, 3, 12, 0, 0, 0, time.UTC)
	s := newTestServer(db, tel, sp, now)

	tel.On("Devices", mock.Anything).Return([]types.Device{
		{ID: "d1", Name: "Heater"},
		{ID: "d2"}, // unnamed, falls back to its ID
	}, nil)

	// d1 has never synced: the window reaches 7 days back
	db.On("GetSyncStatus", mock.Anything, "energy", "d1").Return(time.Time{}, nil)
	tel.On("Values", mock.Anything, "d1", now.AddDate(0, 0, -7), now).Return([]telemetry.Value{
		{DateTime: "2025-06-03 10:00:00", CurrentValue: 2000, DeltaPower: 0.5, AccumulatedValue: 100},
		{CurrentValue: 9000}, // no timestamp, dropped
	}, nil)

	// d2 has a watermark: the window starts an hour before it
	lastSync := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	db.On("GetSyncStatus", mock.Anything, "energy", "d2").Return(lastSync, nil)
	tel.On("Values", mock.Anything, "d2", lastSync.Add(-time.Hour), now).Return([]telemetry.Value{
		{DateTime: "2025-06-03T11:00:00Z", CurrentValue: 500},
	}, nil)

	db.On("UpsertReadings", mock.Anything, mock.MatchedBy(func(rs []types.Reading) bool {
		return len(rs) == 1 && rs[0].DeviceID == "d1"
	})).Return(1, nil).Once()
	db.On("UpsertReadings", mock.Anything, mock.MatchedBy(func(rs []types.Reading) bool {
		return len(rs) == 1 && rs[0].DeviceID == "d2" && rs[0].DeviceName == "d2"
	})).Return(1, nil).Once()
	db.On("SetSyncStatus", mock.Anything, "energy", "d1", now).Return(nil).Once()
	db.On("SetSyncStatus", mock.Anything, "energy", "d2", now).Return(nil).Once()

	// price days: tomorrow back through two days ago; one unpublished, one
	// failing
	rec0 := []types.PriceRecord{{Timestamp: now, PriceArea: "SE3", OrePerKWH: 50}}
	sp.On("DayPrices", mock.Anything, now.AddDate(0, 0, 1)).Return(nil, nil)
	sp.On("DayPrices", mock.Anything, now).Return(rec0, nil)
	sp.On("DayPrices", mock.Anything, now.AddDate(0, 0, -1)).Return(rec0, nil)
	sp.On("DayPrices", mock.Anything, now.AddDate(0, 0, -2)).Return(nil, assert.AnError)

	db.On("UpsertPrices", mock.Anything, rec0).Return(1, nil).Twice()

	req := httptest.NewRequest("GET", "/api/sync", nil)
	rec := httptest.NewRecorder()
	s.setupHandler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result types.SyncResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.OK)
	assert.Equal(t, 2, result.Energy.Saved)
	assert.Empty(t, result.Energy.Errors)
	assert.Equal(t, 2, result.Prices.Saved)
	require.Len(t, result.Prices.Errors, 1)
	assert.Contains(t, result.Prices.Errors[0], "2025-06-01")

	db.AssertExpectations(t)
	tel.AssertExpectations(t)
	sp.AssertExpectations(t)
}

func TestSyncDeviceFailureCollected(t *testing.T) {
	db := &storagemock.Database{}
	tel := &mockTelemetry{}
	sp := &mockSpot{}
	now := time.Date(2025, 6, 3, 12, 0, 0, 0, time.UTC)
	s := newTestServer(db, tel, sp, now)

	tel.On("Devices", mock.Anything).Return([]types.Device{
		{ID: "d1", Name: "Broken"},
		{ID: "d2", Name: "Fine"},
	}, nil)

	db.On("GetSyncStatus", mock.Anything, "energy", "d1").Return(time.Time{}, nil)
	tel.On("Values", mock.Anything, "d1", mock.Anything, mock.Anything).Return(nil, assert.AnError)

	db.On("GetSyncStatus", mock.Anything, "energy", "d2").Return(time.Time{}, nil)
	tel.On("Values", mock.Anything, "d2", mock.Anything, mock.Anything).Return([]telemetry.Value{
		{DateTime: "2025-06-03T11:00:00Z", CurrentValue: 500},
	}, nil)
	db.On("UpsertReadings", mock.Anything, mock.Anything).Return(1, nil)
	db.On("SetSyncStatus", mock.Anything, "energy", "d2", now).Return(nil)

	sp.On("DayPrices", mock.Anything, mock.Anything).Return(nil, nil)

	req := httptest.NewRequest("GET", "/api/sync", nil)
	rec := httptest.NewRecorder()
	s.setupHandler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var result types.SyncResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 1, result.Energy.Saved, "one failing device must not block the other")
	require.Len(t, result.Energy.Errors, 1)
	assert.Contains(t, result.Energy.Errors[0], "Broken")

	// the failing device keeps its old watermark
	db.AssertNotCalled(t, "SetSyncStatus", mock.Anything, "energy", "d1", mock.Anything)
}

func TestSyncDeviceListFailure(t *testing.T) {
	db := &storagemock.Database{}
	tel := &mockTelemetry{}
	s := newTestServer(db, tel, &mockSpot{}, time.Now())

	tel.On("Devices", mock.Anything).Return(nil, assert.AnError)

	req := httptest.NewRequest("GET", "/api/sync", nil)
	rec := httptest.NewRecorder()
	s.setupHandler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
