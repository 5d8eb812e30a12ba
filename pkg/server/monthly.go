package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/wattkoll/wattkoll/pkg/aggregate"
	"github.com/wattkoll/wattkoll/pkg/log"
	"github.com/wattkoll/wattkoll/pkg/timekey"
	"github.com/wattkoll/wattkoll/pkg/types"
)

// priceFetchLead is how much earlier than the readings window prices are
// fetched. Price timestamps are true UTC and shift up to two hours forward
// when converted to local bucket keys, so the first local buckets of a month
// are priced by records from just before the month's UTC start.
const priceFetchLead = 2 * time.Hour

// handleMonthly returns one entry per calendar month from the configured
// first month through the current one, newest first. Past months are served
// from the summary cache and computed at most once; the in-progress month is
// recomputed on every request and always flagged partial.
func (s *Server) handleMonthly(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := s.now().UTC()
	nowKey := now.Format("2006-01")

	months := timekey.MonthsBetween(s.firstMonth, now)
	if len(months) == 0 {
		writeJSONError(w, "invalid first month", http.StatusInternalServerError)
		return
	}

	closed := make([]string, 0, len(months))
	for _, m := range months {
		if m != nowKey {
			closed = append(closed, m)
		}
	}

	cached, err := s.storage.GetMonthlySummaries(ctx, closed)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to fetch cached summaries", slog.Any("error", err))
		writeJSONError(w, "failed to fetch summaries", http.StatusInternalServerError)
		return
	}

	reports := make([]types.MonthReport, 0, len(months))
	for _, month := range months {
		if month == nowKey {
			sum, err := s.computeMonth(ctx, month)
			if err != nil {
				log.Ctx(ctx).ErrorContext(ctx, "failed to compute current month",
					slog.String("month", month), slog.Any("error", err))
				writeJSONError(w, "failed to compute month", http.StatusInternalServerError)
				return
			}
			reports = append(reports, aggregate.MonthReport(sum, true))
			continue
		}

		sum, ok := cached[month]
		if !ok {
			sum, err = s.computeMonth(ctx, month)
			if err != nil {
				log.Ctx(ctx).ErrorContext(ctx, "failed to compute month",
					slog.String("month", month), slog.Any("error", err))
				writeJSONError(w, "failed to compute month", http.StatusInternalServerError)
				return
			}
			// a failed cache write is terminal; the month stays a miss and
			// the computation retries on the next request
			if err := s.storage.UpsertMonthlySummary(ctx, sum); err != nil {
				log.Ctx(ctx).ErrorContext(ctx, "failed to cache monthly summary",
					slog.String("month", month), slog.Any("error", err))
				writeJSONError(w, "failed to cache monthly summary", http.StatusInternalServerError)
				return
			}
		}
		reports = append(reports, aggregate.MonthReport(sum, false))
	}

	// newest first
	for i, j := 0, len(reports)-1; i < j; i, j = i+1, j-1 {
		reports[i], reports[j] = reports[j], reports[i]
	}
	writeJSON(w, reports)
}

// computeMonth aggregates one month from raw readings and prices.
func (s *Server) computeMonth(ctx context.Context, monthKey string) (types.MonthlySummary, error) {
	start, err := timekey.MonthStart(monthKey)
	if err != nil {
		return types.MonthlySummary{}, err
	}
	next := start.AddDate(0, 1, 0)

	readings, err := s.storage.GetReadings(ctx, timekey.FaceOf(start), timekey.FaceOf(next), "")
	if err != nil {
		return types.MonthlySummary{}, fmt.Errorf("failed to fetch readings for %s: %w", monthKey, err)
	}
	prices, err := s.storage.GetPrices(ctx, start.Add(-priceFetchLead), next)
	if err != nil {
		return types.MonthlySummary{}, fmt.Errorf("failed to fetch prices for %s: %w", monthKey, err)
	}

	lookup := aggregate.BuildPriceLookup(prices)
	result := aggregate.Run(readings, lookup, aggregate.ByMonth, aggregate.MaxEnergyFilter{CeilingKWH: s.maxReadingKWH})
	return aggregate.MonthSummary(monthKey, result[monthKey], aggregate.FixedCadence{ReadingsPerDay: readingsPerDay}), nil
}
