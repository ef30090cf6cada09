package e2e

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ayusman/vtrack/internal/app"
	"github.com/ayusman/vtrack/internal/capture"
	"github.com/ayusman/vtrack/internal/config"
	"github.com/ayusman/vtrack/internal/detector"
	"github.com/ayusman/vtrack/internal/pose"
	"github.com/ayusman/vtrack/internal/server"
	"github.com/ayusman/vtrack/internal/status"
	"github.com/ayusman/vtrack/internal/store"
	"github.com/ayusman/vtrack/internal/transmit"
	"github.com/hypebeast/go-osc/osc"
)

// receiver collects room pose messages sent to a local UDP port.
type receiver struct {
	conn *net.UDPConn

	mu       sync.Mutex
	enabled  map[int32]int
	disabled map[int32]int
}

func listen(t *testing.T) *receiver {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	r := &receiver{conn: conn, enabled: map[int32]int{}, disabled: map[int32]int{}}
	go r.run()
	t.Cleanup(func() { conn.Close() })
	return r
}

func (r *receiver) port() int {
	return r.conn.LocalAddr().(*net.UDPAddr).Port
}

func (r *receiver) run() {
	buf := make([]byte, 2048)
	for {
		n, err := r.conn.Read(buf)
		if err != nil {
			return
		}
		pkt, err := osc.ParsePacket(string(buf[:n]))
		if err != nil {
			continue
		}
		msg, ok := pkt.(*osc.Message)
		if !ok || msg.Address != transmit.AddrVMTRoom || len(msg.Arguments) < 2 {
			continue
		}
		idx, _ := msg.Arguments[0].(int32)
		enable, _ := msg.Arguments[1].(int32)

		r.mu.Lock()
		if enable == 0 {
			r.disabled[idx]++
		} else {
			r.enabled[idx]++
		}
		r.mu.Unlock()
	}
}

func (r *receiver) counts(idx int32) (enabled, disabled int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled[idx], r.disabled[idx]
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestE2E_TrackingWorkflow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	rx := listen(t)

	st, err := store.New(filepath.Join(t.TempDir(), "vtrack.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer st.Close()

	cfg := config.Default()
	cfg.Transmit.VMT.Port = rx.port()
	cfg.Handshake.Countdown = 0
	cfg.Handshake.Window = time.Second

	frames := capture.SyntheticFrames(6, 160, 120)
	defer func() {
		for _, f := range frames {
			f.Close()
		}
	}()
	det := detector.NewMockDetector()
	det.SetSnapshot(detector.StandingSnapshot(time.Now()))

	a, err := app.New(app.Config{
		Settings: cfg,
		Store:    st,
		Camera:   capture.NewMockCamera(frames, true),
		Detector: det,
	})
	if err != nil {
		t.Fatalf("app.New() error = %v", err)
	}
	if err := a.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	srv := server.New(server.Config{
		Calibration: a.Calibration(),
		Calibrator:  a,
		Tracking:    a,
		Status:      a.Status(),
		Preview:     a.Producer(),
	})
	ts := httptest.NewServer(srv)
	defer ts.Close()
	client := ts.Client()

	waist := int32(a.Calibration().Get().Roles[pose.Waist].TrackerIndex)

	t.Run("TrackersActivate", func(t *testing.T) {
		waitFor(t, "waist poses", func() bool {
			enabled, _ := rx.counts(waist)
			return enabled > 10
		})

		resp, err := client.Get(ts.URL + "/api/status")
		if err != nil {
			t.Fatalf("GET /api/status error = %v", err)
		}
		defer resp.Body.Close()
		var snap status.Snapshot
		if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
			t.Fatalf("decode status: %v", err)
		}
		if snap.ActiveCount() == 0 {
			t.Error("expected active trackers in status")
		}
		if !snap.Ingress.CameraOK {
			t.Error("expected the camera to be reported healthy")
		}
	})

	t.Run("Calibrate", func(t *testing.T) {
		resp, err := client.Post(ts.URL+"/api/calibration/handshake", "application/json", nil)
		if err != nil {
			t.Fatalf("POST handshake error = %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("handshake status = %d, want %d", resp.StatusCode, http.StatusOK)
		}

		records, err := st.Handshakes().List(10)
		if err != nil {
			t.Fatalf("list handshakes: %v", err)
		}
		if len(records) != 1 || !records[0].Succeeded {
			t.Errorf("expected one successful handshake, got %+v", records)
		}
	})

	t.Run("PauseDeactivates", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPut, ts.URL+"/api/tracking", strings.NewReader(`{"enabled": false}`))
		resp, err := client.Do(req)
		if err != nil {
			t.Fatalf("PUT /api/tracking error = %v", err)
		}
		resp.Body.Close()

		waitFor(t, "waist deactivation", func() bool {
			_, disabled := rx.counts(waist)
			return disabled >= 1
		})
		if st.Settings().Bool(store.SettingTrackingEnabled, true) {
			t.Error("expected the paused state to be persisted")
		}
	})

	t.Run("ShutdownReleases", func(t *testing.T) {
		_, before := rx.counts(waist)
		a.Stop()
		waitFor(t, "final deactivation", func() bool {
			_, disabled := rx.counts(waist)
			return disabled > before
		})
	})
}
