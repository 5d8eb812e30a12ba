package server

import (
	"log/slog"
	"net/http"
	"sort"

	"github.com/wattkoll/wattkoll/pkg/aggregate"
	"github.com/wattkoll/wattkoll/pkg/log"
	"github.com/wattkoll/wattkoll/pkg/timekey"
	"github.com/wattkoll/wattkoll/pkg/types"
)

// handleDaily returns per-day energy and cost for the last ?days= days
// (default 30, max 365), oldest first. It runs the same quarter-hour price
// join as the monthly report, just bucketed by day.
func (s *Server) handleDaily(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := s.now().UTC()
	days := daysParam(r, 30, 365)

	from := now.AddDate(0, 0, -days)
	// readings carry local face values which run ahead of UTC digits, so pad
	// the upper bound past "now"
	end := timekey.FaceOf(now.AddDate(0, 0, 1))

	readings, err := s.storage.GetReadings(ctx, timekey.FaceOf(from), end, "")
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to fetch readings", slog.Any("error", err))
		writeJSONError(w, "failed to fetch readings", http.StatusInternalServerError)
		return
	}
	prices, err := s.storage.GetPrices(ctx, from.Add(-priceFetchLead), now.AddDate(0, 0, 1))
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to fetch prices", slog.Any("error", err))
		writeJSONError(w, "failed to fetch prices", http.StatusInternalServerError)
		return
	}

	lookup := aggregate.BuildPriceLookup(prices)
	result := aggregate.Run(readings, lookup, aggregate.ByDay, aggregate.MaxEnergyFilter{CeilingKWH: s.maxReadingKWH})

	dayKeys := make([]string, 0, len(result))
	for day := range result {
		dayKeys = append(dayKeys, day)
	}
	sort.Strings(dayKeys)

	reports := make([]types.DayReport, 0, len(dayKeys))
	for _, day := range dayKeys {
		reports = append(reports, aggregate.DayReport(day, result[day]))
	}
	writeJSON(w, reports)
}
