package server

import (
	"log/slog"
	"net/http"

	"github.com/wattkoll/wattkoll/pkg/log"
	"github.com/wattkoll/wattkoll/pkg/types"
)

// handlePrices returns the stored spot prices for the last ?days= days
// (default 1, max 90) plus any already-published day-ahead prices.
func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := s.now().UTC()
	days := daysParam(r, 1, 90)

	prices, err := s.storage.GetPrices(ctx, now.AddDate(0, 0, -days), now.AddDate(0, 0, 2))
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to fetch prices", slog.Any("error", err))
		writeJSONError(w, "failed to fetch prices", http.StatusInternalServerError)
		return
	}
	if prices == nil {
		prices = []types.PriceRecord{}
	}
	writeJSON(w, prices)
}
