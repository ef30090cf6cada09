package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ayusman/vtrack/internal/calibration"
	"github.com/ayusman/vtrack/internal/store"
)

// Calibrator runs handshakes and reports their history.
type Calibrator interface {
	Calibrate(ctx context.Context) (calibration.Profile, error)
	Handshakes(limit int) ([]store.HandshakeRecord, error)
}

// Profiles lists, fetches and deletes saved calibration profiles.
type Profiles interface {
	List() ([]calibration.Profile, error)
	GetByID(id string) (*calibration.Profile, error)
	Delete(id string) error
}

// CalibrationHandler handles HTTP requests for the calibration profile.
type CalibrationHandler struct {
	store      *calibration.Store
	calibrator Calibrator
	profiles   Profiles
}

// NewCalibrationHandler creates a handler over the given store. calibrator and
// profiles may be nil, in which case the handshake or saved-profile endpoints are
// unavailable.
func NewCalibrationHandler(s *calibration.Store, c Calibrator, p Profiles) *CalibrationHandler {
	return &CalibrationHandler{store: s, calibrator: c, profiles: p}
}

// ServeHTTP routes /api/calibration, /api/calibration/handshake,
// /api/calibration/handshakes and /api/calibration/profiles[/{id}[/activate]].
func (h *CalibrationHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/calibration")
	path = strings.Trim(path, "/")

	if path == "profiles" || strings.HasPrefix(path, "profiles/") {
		h.routeProfiles(w, r, strings.TrimPrefix(strings.TrimPrefix(path, "profiles"), "/"))
		return
	}

	switch path {
	case "":
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, h.store.Get())
		case http.MethodPatch:
			h.adjust(w, r)
		case http.MethodPut:
			h.replace(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case "handshake":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.handshake(w, r)
	case "handshakes":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.history(w, r)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// adjust handles PATCH /api/calibration with a Delta body.
func (h *CalibrationHandler) adjust(w http.ResponseWriter, r *http.Request) {
	var d calibration.Delta
	if err := decode(r, &d); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	p, err := h.store.Apply(d)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// replace handles PUT /api/calibration with a full profile body.
func (h *CalibrationHandler) replace(w http.ResponseWriter, r *http.Request) {
	var p calibration.Profile
	if err := decode(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if p.Roles == nil {
		p.Roles = h.store.Get().Roles
	}
	p, err := h.store.Set(p)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handshake handles POST /api/calibration/handshake. The request blocks for the
// countdown and capture window.
func (h *CalibrationHandler) handshake(w http.ResponseWriter, r *http.Request) {
	if h.calibrator == nil {
		writeError(w, http.StatusServiceUnavailable, "calibration is not available")
		return
	}

	p, err := h.calibrator.Calibrate(r.Context())
	var ce *calibration.CalibrationError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, p)
	case errors.Is(err, calibration.ErrHandshakeInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &ce):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, context.Canceled):
		// Client went away.
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

type handshakesResponse struct {
	Handshakes []store.HandshakeRecord `json:"handshakes"`
}

// history handles GET /api/calibration/handshakes?limit=N.
func (h *CalibrationHandler) history(w http.ResponseWriter, r *http.Request) {
	if h.calibrator == nil {
		writeJSON(w, http.StatusOK, handshakesResponse{Handshakes: []store.HandshakeRecord{}})
		return
	}

	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	records, err := h.calibrator.Handshakes(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list handshakes")
		return
	}
	if records == nil {
		records = []store.HandshakeRecord{}
	}
	writeJSON(w, http.StatusOK, handshakesResponse{Handshakes: records})
}

type profilesResponse struct {
	Profiles []calibration.Profile `json:"profiles"`
	ActiveID string                `json:"active_id"`
}

// routeProfiles handles the saved-profile endpoints. rest is the path after
// "profiles/".
func (h *CalibrationHandler) routeProfiles(w http.ResponseWriter, r *http.Request, rest string) {
	if h.profiles == nil {
		writeError(w, http.StatusServiceUnavailable, "saved profiles are not available")
		return
	}

	parts := strings.Split(rest, "/")
	switch {
	case rest == "":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.listProfiles(w)
	case len(parts) == 1:
		if r.Method != http.MethodDelete {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.deleteProfile(w, parts[0])
	case len(parts) == 2 && parts[1] == "activate":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.activateProfile(w, parts[0])
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// listProfiles handles GET /api/calibration/profiles.
func (h *CalibrationHandler) listProfiles(w http.ResponseWriter) {
	profiles, err := h.profiles.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list profiles")
		return
	}
	if profiles == nil {
		profiles = []calibration.Profile{}
	}
	writeJSON(w, http.StatusOK, profilesResponse{Profiles: profiles, ActiveID: h.store.Get().ID})
}

// deleteProfile handles DELETE /api/calibration/profiles/{id}.
func (h *CalibrationHandler) deleteProfile(w http.ResponseWriter, id string) {
	if id == h.store.Get().ID {
		writeError(w, http.StatusConflict, "the active profile cannot be deleted")
		return
	}

	err := h.profiles.Delete(id)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "profile not found")
	case errors.Is(err, store.ErrActiveProfile):
		writeError(w, http.StatusConflict, "the active profile cannot be deleted")
	default:
		writeError(w, http.StatusInternalServerError, "failed to delete profile")
	}
}

// activateProfile handles POST /api/calibration/profiles/{id}/activate.
func (h *CalibrationHandler) activateProfile(w http.ResponseWriter, id string) {
	saved, err := h.profiles.GetByID(id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "profile not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load profile")
		return
	}

	p, err := h.store.Set(*saved)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, p)
}
