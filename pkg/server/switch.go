package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/wattkoll/wattkoll/pkg/log"
)

// handleSwitch turns a device on or off via the telemetry source and passes
// the upstream's response through.
func (s *Server) handleSwitch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body struct {
		DeviceID string `json:"device_id"`
		Value    *int   `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.DeviceID == "" || body.Value == nil || (*body.Value != 0 && *body.Value != 1) {
		writeJSONError(w, "device_id and value (0 or 1) are required", http.StatusBadRequest)
		return
	}

	res, err := s.telemetry.Switch(ctx, body.DeviceID, *body.Value)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to switch device",
			slog.String("deviceID", body.DeviceID), slog.Any("error", err))
		writeJSONError(w, "failed to switch device", http.StatusInternalServerError)
		return
	}
	writeJSON(w, res)
}
