package api

import (
	"net/http"
)

// Toggle pauses and resumes tracking.
type Toggle interface {
	IsEnabled() bool
	SetEnabled(enabled bool)
}

// TrackingHandler handles GET and PUT /api/tracking.
type TrackingHandler struct {
	toggle Toggle
}

// NewTrackingHandler creates a new TrackingHandler.
func NewTrackingHandler(t Toggle) *TrackingHandler {
	return &TrackingHandler{toggle: t}
}

type trackingState struct {
	Enabled *bool `json:"enabled"`
}

func (h *TrackingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPut:
		var req trackingState
		if err := decode(r, &req); err != nil || req.Enabled == nil {
			writeError(w, http.StatusBadRequest, "body must be {\"enabled\": bool}")
			return
		}
		h.toggle.SetEnabled(*req.Enabled)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	enabled := h.toggle.IsEnabled()
	writeJSON(w, http.StatusOK, trackingState{Enabled: &enabled})
}
