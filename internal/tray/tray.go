// Package tray provides the system tray menu for vtrack.
package tray

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ayusman/vtrack/internal/status"
	"github.com/getlantern/systray"
)

// Tray represents the system tray application.
type Tray struct {
	onToggle    func(enabled bool)
	onCalibrate func()
	onDashboard func()
	onQuit      func()
	enabled     bool
	mu          sync.RWMutex

	// Menu items stored for later updates
	menuToggle    *systray.MenuItem
	menuStatus    *systray.MenuItem
	menuCalibrate *systray.MenuItem
}

// New creates a new Tray with the given initial tracking state.
func New(enabled bool) *Tray {
	return &Tray{
		enabled: enabled,
	}
}

// OnToggle sets the callback function to be called when tracking is paused or resumed.
func (t *Tray) OnToggle(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnCalibrate sets the callback function to be called when calibration is requested.
func (t *Tray) OnCalibrate(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onCalibrate = fn
}

// OnDashboard sets the callback function to be called when the dashboard menu item is clicked.
func (t *Tray) OnDashboard(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onDashboard = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit closes the tray, making Run return.
func (t *Tray) Quit() {
	systray.Quit()
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle("vtrack")
	systray.SetTooltip("vtrack virtual trackers")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.enabled), "Pause or resume tracking")
	systray.AddSeparator()

	t.menuStatus = systray.AddMenuItem("Waiting for camera", "Tracking status")
	t.menuStatus.Disable()
	systray.AddSeparator()

	t.menuCalibrate = systray.AddMenuItem("Calibrate", "Stand upright facing the camera")
	t.mu.Unlock()

	menuDashboard := systray.AddMenuItem("Open Dashboard...", "Open the dashboard in a browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit vtrack")

	// Handle menu item clicks in a separate goroutine
	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-t.menuCalibrate.ClickedCh:
				t.run(func() func() { return t.onCalibrate })
			case <-menuDashboard.ClickedCh:
				t.run(func() func() { return t.onDashboard })
			case <-menuQuit.ClickedCh:
				t.run(func() func() { return t.onQuit })
				systray.Quit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

func toggleTitle(enabled bool) string {
	if enabled {
		return "● Tracking"
	}
	return "○ Paused"
}

// handleToggle handles the toggle menu item click.
func (t *Tray) handleToggle() {
	t.mu.Lock()
	t.enabled = !t.enabled
	enabled := t.enabled
	t.menuToggle.SetTitle(toggleTitle(enabled))
	callback := t.onToggle
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(enabled)
	}
}

// run calls the callback returned by get, reading it under the lock.
func (t *Tray) run(get func() func()) {
	t.mu.RLock()
	callback := get()
	t.mu.RUnlock()
	if callback != nil {
		callback()
	}
}

// SetStatus updates the status line and the toggle from a pipeline snapshot.
func (t *Tray) SetStatus(snap *status.Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if snap == nil || t.menuStatus == nil {
		return
	}
	t.menuStatus.SetTitle(StatusLine(snap))
	if snap.Enabled != t.enabled {
		t.enabled = snap.Enabled
		t.menuToggle.SetTitle(toggleTitle(t.enabled))
	}
	if snap.Calibrating {
		t.menuCalibrate.Disable()
	} else {
		t.menuCalibrate.Enable()
	}
}

// Follow refreshes the status line from the publisher once per interval until ctx ends.
func (t *Tray) Follow(ctx context.Context, pub *status.Publisher, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.SetStatus(pub.Latest())
		}
	}
}

// StatusLine summarizes a snapshot in one short menu line.
func StatusLine(snap *status.Snapshot) string {
	switch {
	case snap.Calibrating:
		return "Calibrating..."
	case !snap.Ingress.CameraOK:
		return "Camera unavailable"
	case !snap.Enabled:
		return "Paused"
	case snap.AcquisitionTimeout:
		return "No landmarks"
	}
	return fmt.Sprintf("%d/%d trackers active, %.0f fps", snap.ActiveCount(), len(snap.Profile.Roles), snap.Ingress.Quality.FPSAvg)
}

// IsEnabled returns the current enabled state.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}
