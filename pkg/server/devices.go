package server

import (
	"log/slog"
	"net/http"

	"github.com/wattkoll/wattkoll/pkg/log"
	"github.com/wattkoll/wattkoll/pkg/types"
)

// handleDevices returns the live status of every registered device.
func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	devices, err := s.telemetry.Devices(ctx)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to fetch devices", slog.Any("error", err))
		writeJSONError(w, "failed to fetch devices", http.StatusInternalServerError)
		return
	}
	if devices == nil {
		devices = []types.Device{}
	}
	writeJSON(w, devices)
}
