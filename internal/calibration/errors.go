package calibration

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ayusman/vtrack/internal/detector"
)

// ErrHandshakeInProgress is returned when a handshake is started while another runs.
var ErrHandshakeInProgress = errors.New("calibration already in progress")

// CalibrationError reports handshake input that cannot produce a trustworthy profile.
// The caller should capture again.
type CalibrationError struct {
	Reason string
	// Landmarks lists the reference landmarks that were not visible enough.
	Landmarks []detector.LandmarkID
}

func (e *CalibrationError) Error() string {
	if len(e.Landmarks) == 0 {
		return "calibration failed: " + e.Reason
	}
	names := make([]string, len(e.Landmarks))
	for i, id := range e.Landmarks {
		names[i] = id.String()
	}
	return fmt.Sprintf("calibration failed: %s (%s)", e.Reason, strings.Join(names, ", "))
}
