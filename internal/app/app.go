// Package app wires capture, calibration, tracking and transmission into the
// running vtrack pipeline.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/vtrack/internal/calibration"
	"github.com/ayusman/vtrack/internal/capture"
	"github.com/ayusman/vtrack/internal/config"
	"github.com/ayusman/vtrack/internal/detector"
	"github.com/ayusman/vtrack/internal/filter"
	"github.com/ayusman/vtrack/internal/gesture"
	"github.com/ayusman/vtrack/internal/ingress"
	"github.com/ayusman/vtrack/internal/pose"
	"github.com/ayusman/vtrack/internal/status"
	"github.com/ayusman/vtrack/internal/store"
	"github.com/ayusman/vtrack/internal/transmit"
)

// Config holds the settings and optional dependencies of the application.
// Nil dependencies are created from Settings.
type Config struct {
	Settings    config.Config
	Store       *store.Store
	Camera      capture.Camera
	Detector    detector.Detector
	Transmitter *transmit.Transmitter
}

// App is the main application that runs the tracking pipeline.
type App struct {
	cfg      config.Config
	store    *store.Store
	calib    *calibration.Store
	camera   capture.Camera
	detector detector.Detector
	slot     *ingress.Slot
	producer *ingress.Producer
	filter   *filter.Filter
	gestures *gesture.Detector
	tx       *transmit.Transmitter
	status   *status.Publisher

	enabled     atomic.Bool
	calibrating atomic.Bool
	sampler     sampler

	mu             sync.Mutex
	stopProducer   context.CancelFunc
	stopPipeline   context.CancelFunc
	producerDone   chan struct{}
	pipelineDone   chan struct{}
	backgroundDone sync.WaitGroup
	stopped        bool

	// Owned by the pipeline goroutine.
	seq     uint64
	started time.Time
	known   map[pose.Role]int
	lastErr error
	last    *detector.Snapshot
	lastAt  time.Time
}

// New creates the application, loading the persisted calibration profile and
// applying the configured role table.
func New(cfg Config) (*App, error) {
	s := cfg.Settings

	var persist calibration.Persistence
	if cfg.Store != nil {
		persist = cfg.Store.Profiles()
	}
	calib := calibration.NewStore(persist, s.Handshake)
	if err := calib.Load(); err != nil {
		return nil, err
	}

	if cfg.Store != nil {
		profiles := cfg.Store.Profiles()
		calib.OnChange(func(p calibration.Profile) {
			if err := profiles.Save(p); err != nil {
				log.Printf("Failed to save calibration: %v", err)
			}
		})
	}

	roles, err := s.Roles.Table()
	if err != nil {
		return nil, fmt.Errorf("roles: %w", err)
	}
	if current := calib.Get(); !reflect.DeepEqual(current.Roles, roles) {
		current.Roles = roles
		if _, err := calib.Set(current); err != nil {
			return nil, err
		}
	}

	a := &App{
		cfg:      s,
		store:    cfg.Store,
		calib:    calib,
		camera:   cfg.Camera,
		detector: cfg.Detector,
		slot:     ingress.NewSlot(),
		filter:   filter.New(s.Filter.Config),
		gestures: gesture.NewDetector(s.Gesture),
		tx:       cfg.Transmitter,
		status:   status.NewPublisher(),
		known:    make(map[pose.Role]int),
	}

	if a.camera == nil {
		a.camera = capture.NewCameraWithConfig(s.Camera.Config)
	}
	if a.detector == nil {
		if mp, err := detector.NewMediaPipeDetector(s.Detector); err == nil {
			a.detector = mp
			log.Println("Using MediaPipe pose detection")
		} else {
			log.Printf("MediaPipe not available (%v), using mock detector", err)
			mock := detector.NewMockDetector()
			mock.SetSnapshot(detector.StandingSnapshot(time.Now()))
			a.detector = mock
		}
	}
	if a.tx == nil {
		tx, err := transmit.Dial(s.Transmit.Config)
		if err != nil {
			return nil, err
		}
		a.tx = tx
	}
	a.producer = ingress.NewProducer(s.Ingress, a.camera, a.detector, a.slot)

	enabled := true
	if cfg.Store != nil {
		enabled = cfg.Store.Settings().Bool(store.SettingTrackingEnabled, true)
	}
	a.enabled.Store(enabled)

	return a, nil
}

// SetEnabled pauses or resumes tracking. Paused roles are released as they time out.
func (a *App) SetEnabled(enabled bool) {
	if a.enabled.Swap(enabled) == enabled {
		return
	}
	if a.store != nil {
		if err := a.store.Settings().SetBool(store.SettingTrackingEnabled, enabled); err != nil {
			log.Printf("Failed to save tracking state: %v", err)
		}
	}
	if enabled {
		log.Println("Tracking resumed")
	} else {
		log.Println("Tracking paused")
	}
}

// IsEnabled returns whether tracking is currently enabled.
func (a *App) IsEnabled() bool {
	return a.enabled.Load()
}

// Start launches the capture loop, the pipeline and the status mirror.
func (a *App) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopped {
		return errors.New("app already stopped")
	}
	if a.stopPipeline != nil {
		return nil
	}

	a.tx.Start()

	producerCtx, stopProducer := context.WithCancel(context.Background())
	a.stopProducer = stopProducer
	a.producerDone = make(chan struct{})
	go func() {
		defer close(a.producerDone)
		if err := a.producer.Run(producerCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Capture stopped: %v", err)
		}
	}()

	pipelineCtx, stopPipeline := context.WithCancel(context.Background())
	a.stopPipeline = stopPipeline
	a.pipelineDone = make(chan struct{})
	go func() {
		defer close(a.pipelineDone)
		a.runPipeline(pipelineCtx)
	}()

	if a.cfg.MQTT.Broker != "" {
		sink, err := status.DialMQTT(a.cfg.MQTT, a.status)
		if err != nil {
			log.Printf("Status mirror disabled: %v", err)
		} else {
			a.backgroundDone.Add(1)
			go func() {
				defer a.backgroundDone.Done()
				sink.Run(pipelineCtx)
			}()
		}
	}

	log.Printf("Tracking pipeline started, sending every %v", a.cfg.Transmit.Interval())
	return nil
}

// Stop shuts down in order: capture, pipeline, final deactivation frame, socket,
// detector, then the calibration is saved.
func (a *App) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopped {
		return
	}
	a.stopped = true

	if a.stopProducer != nil {
		a.stopProducer()
		<-a.producerDone
	}
	if a.stopPipeline != nil {
		a.stopPipeline()
		<-a.pipelineDone
	}
	a.backgroundDone.Wait()

	final := a.releaseFrame()
	if err := a.tx.Shutdown(final); err != nil {
		log.Printf("Error flushing transmitter: %v", err)
	}

	if err := a.detector.Close(); err != nil {
		log.Printf("Error closing detector: %v", err)
	}
	if a.stopProducer == nil {
		// The capture loop never ran, so it did not close the camera.
		if err := a.camera.Close(); err != nil {
			log.Printf("Error closing camera: %v", err)
		}
	}

	if err := a.calib.Save(); err != nil {
		log.Printf("Error saving calibration: %v", err)
	}

	log.Println("Tracking pipeline stopped")
}

// releaseFrame deactivates every mapped tracker and releases both hands.
func (a *App) releaseFrame() transmit.Frame {
	profile := a.calib.Get()
	trackers := make(map[pose.Role]int, len(profile.Roles))
	for role, m := range profile.Roles {
		trackers[role] = m.TrackerIndex
	}
	for role, idx := range a.known {
		if _, ok := trackers[role]; !ok {
			trackers[role] = idx
		}
	}
	return transmit.ReleaseFrame(a.seq+1, trackers, handIndices(profile))
}

// handIndices maps each hand to the tracker index of its hand role.
func handIndices(profile calibration.Profile) map[detector.Side]int {
	out := make(map[detector.Side]int, 2)
	if m, ok := profile.Roles[pose.LeftHand]; ok {
		out[detector.Left] = m.TrackerIndex
	}
	if m, ok := profile.Roles[pose.RightHand]; ok {
		out[detector.Right] = m.TrackerIndex
	}
	return out
}

// Calibration returns the calibration store.
func (a *App) Calibration() *calibration.Store {
	return a.calib
}

// Status returns the status publisher.
func (a *App) Status() *status.Publisher {
	return a.status
}

// Producer returns the capture loop, for previews.
func (a *App) Producer() *ingress.Producer {
	return a.producer
}

// Store returns the database, or nil when running without one.
func (a *App) Store() *store.Store {
	return a.store
}

// Settings returns the configuration the app was built with.
func (a *App) Settings() config.Config {
	return a.cfg
}
