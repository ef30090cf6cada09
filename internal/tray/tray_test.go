package tray

import (
	"testing"

	"github.com/ayusman/vtrack/internal/calibration"
	"github.com/ayusman/vtrack/internal/filter"
	"github.com/ayusman/vtrack/internal/ingress"
	"github.com/ayusman/vtrack/internal/pose"
	"github.com/ayusman/vtrack/internal/status"
)

func TestStatusLine(t *testing.T) {
	running := func() *status.Snapshot {
		return &status.Snapshot{
			Enabled: true,
			Ingress: ingress.Health{CameraOK: true, Quality: ingress.Quality{FPSAvg: 29.6}},
			Profile: calibration.Default(),
			Trackers: []filter.State{
				{Role: pose.Head, Status: filter.Active},
				{Role: pose.Waist, Status: filter.Holding},
				{Role: pose.LeftFoot, Status: filter.Lost},
			},
		}
	}

	tests := []struct {
		name   string
		modify func(*status.Snapshot)
		want   string
	}{
		{"running", func(*status.Snapshot) {}, "2/6 trackers active, 30 fps"},
		{"paused", func(s *status.Snapshot) { s.Enabled = false }, "Paused"},
		{"camera down", func(s *status.Snapshot) { s.Ingress.CameraOK = false }, "Camera unavailable"},
		{"no landmarks", func(s *status.Snapshot) { s.AcquisitionTimeout = true }, "No landmarks"},
		{"calibrating", func(s *status.Snapshot) { s.Calibrating = true; s.Enabled = false }, "Calibrating..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := running()
			tt.modify(snap)
			if got := StatusLine(snap); got != tt.want {
				t.Errorf("StatusLine() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTray_SetStatusBeforeReady(t *testing.T) {
	tr := New(false)
	tr.SetStatus(&status.Snapshot{Enabled: true})
	if tr.IsEnabled() {
		t.Error("menu state must not change before the tray is ready")
	}
}
