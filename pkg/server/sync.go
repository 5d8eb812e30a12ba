package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/wattkoll/wattkoll/pkg/log"
	"github.com/wattkoll/wattkoll/pkg/timekey"
	"github.com/wattkoll/wattkoll/pkg/types"
)

const (
	// syncOverlap re-fetches this much before the last watermark so samples
	// that arrived late upstream are still picked up. Upserts make the
	// overlap harmless.
	syncOverlap = time.Hour

	// firstSyncWindow is how far back the very first sync of a device
	// reaches.
	firstSyncWindow = 7 * 24 * time.Hour

	// Price sync covers two days back through tomorrow: day-ahead prices
	// publish around 13:00, and recently stored days get re-upserted in
	// case of corrections.
	priceSyncFirstDaysAgo = -1
	priceSyncLastDaysAgo  = 2
)

// handleSync pulls new readings from the telemetry source and fresh spot
// prices from the price source into storage. Meant to be hit by a cron
// schedule; safe to re-run at any time.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := s.now().UTC()

	energy, err := s.syncEnergy(ctx, now)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "energy sync failed", slog.Any("error", err))
		writeJSONError(w, fmt.Sprintf("energy sync failed: %v", err), http.StatusInternalServerError)
		return
	}
	prices := s.syncPrices(ctx, now)

	writeJSON(w, types.SyncResult{
		OK:        true,
		Timestamp: now,
		Energy:    energy,
		Prices:    prices,
	})
}

// syncEnergy fetches new samples for every device since its watermark.
// Failures on one device are collected and the rest keep going; only a
// failure to list devices aborts the run.
func (s *Server) syncEnergy(ctx context.Context, now time.Time) (types.SyncOutcome, error) {
	devices, err := s.telemetry.Devices(ctx)
	if err != nil {
		return types.SyncOutcome{}, fmt.Errorf("failed to list devices: %w", err)
	}

	outcome := types.SyncOutcome{Errors: []string{}}
	for _, device := range devices {
		name := device.Name
		if name == "" {
			name = device.ID
		}

		saved, err := s.syncDevice(ctx, device.ID, name, now)
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "device sync failed",
				slog.String("deviceID", device.ID), slog.Any("error", err))
			outcome.Errors = append(outcome.Errors, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		outcome.Saved += saved
	}
	return outcome, nil
}

func (s *Server) syncDevice(ctx context.Context, deviceID, deviceName string, now time.Time) (int, error) {
	last, err := s.storage.GetSyncStatus(ctx, types.SyncTypeEnergy, deviceID)
	if err != nil {
		return 0, fmt.Errorf("failed to get sync status: %w", err)
	}

	var from time.Time
	if last.IsZero() {
		from = now.Add(-firstSyncWindow)
	} else {
		from = last.Add(-syncOverlap)
	}

	values, err := s.telemetry.Values(ctx, deviceID, from, now)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch values: %w", err)
	}

	readings := make([]types.Reading, 0, len(values))
	for _, v := range values {
		ts := timekey.Face(v.When())
		if !ts.Valid() {
			continue
		}
		readings = append(readings, types.Reading{
			DeviceID:       deviceID,
			DeviceName:     deviceName,
			Timestamp:      ts,
			DeltaKWH:       v.DeltaPower,
			AccumulatedKWH: v.AccumulatedValue,
			Watts:          v.CurrentValue,
		})
	}

	var saved int
	if len(readings) > 0 {
		saved, err = s.storage.UpsertReadings(ctx, readings)
		if err != nil {
			return 0, fmt.Errorf("failed to save readings: %w", err)
		}
	}

	if err := s.storage.SetSyncStatus(ctx, types.SyncTypeEnergy, deviceID, now); err != nil {
		return saved, fmt.Errorf("failed to update sync status: %w", err)
	}
	return saved, nil
}

// syncPrices fetches the published day files around now. A day that fails
// is recorded and the rest keep going; unpublished days are skipped quietly.
func (s *Server) syncPrices(ctx context.Context, now time.Time) types.SyncOutcome {
	outcome := types.SyncOutcome{Errors: []string{}}

	for daysAgo := priceSyncFirstDaysAgo; daysAgo <= priceSyncLastDaysAgo; daysAgo++ {
		day := now.AddDate(0, 0, -daysAgo)
		records, err := s.spot.DayPrices(ctx, day)
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "price sync failed for day",
				slog.String("day", day.Format("2006-01-02")), slog.Any("error", err))
			outcome.Errors = append(outcome.Errors, fmt.Sprintf("%s: %v", day.Format("2006-01-02"), err))
			continue
		}
		if len(records) == 0 {
			continue
		}

		saved, err := s.storage.UpsertPrices(ctx, records)
		if err != nil {
			outcome.Errors = append(outcome.Errors, fmt.Sprintf("%s: %v", day.Format("2006-01-02"), err))
			continue
		}
		outcome.Saved += saved
	}
	return outcome
}
