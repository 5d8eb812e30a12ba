package server

import (
	"log/slog"
	"net/http"

	"github.com/wattkoll/wattkoll/pkg/log"
	"github.com/wattkoll/wattkoll/pkg/timekey"
	"github.com/wattkoll/wattkoll/pkg/types"
)

// handleEnergy returns the raw stored readings for the last ?days= days
// (default 7, max 365), oldest first, optionally limited to one
// ?device_id=.
func (s *Server) handleEnergy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := s.now().UTC()
	days := daysParam(r, 7, 365)
	deviceID := r.URL.Query().Get("device_id")

	from := timekey.FaceOf(now.AddDate(0, 0, -days))
	end := timekey.FaceOf(now.AddDate(0, 0, 1))

	readings, err := s.storage.GetReadings(ctx, from, end, deviceID)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to fetch readings", slog.Any("error", err))
		writeJSONError(w, "failed to fetch readings", http.StatusInternalServerError)
		return
	}
	if readings == nil {
		readings = []types.Reading{}
	}
	writeJSON(w, readings)
}
