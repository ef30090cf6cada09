package ingress

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/vtrack/internal/capture"
	"github.com/ayusman/vtrack/internal/detector"
	"gocv.io/x/gocv"
)

// Config controls the capture loop and its camera watchdog.
type Config struct {
	// AcquisitionTimeout flags the feed as stalled when no snapshot arrives in time.
	AcquisitionTimeout time.Duration `yaml:"acquisition_timeout"`
	// FrameTimeout is how long reads may fail, or frames stay frozen, before the
	// camera is reopened.
	FrameTimeout time.Duration `yaml:"frame_timeout"`
	// MaxRetries reopen attempts are made RetryDelay apart; after that the delay
	// doubles up to MaxBackoff.
	MaxRetries     int           `yaml:"max_retries"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	PreviewQuality int           `yaml:"preview_quality"`
	QualityWindow  int           `yaml:"quality_window"`
	// Mirror must match the detector so the preview overlay lines up.
	Mirror bool `yaml:"-"`
}

// DefaultConfig returns the default ingress settings.
func DefaultConfig() Config {
	return Config{
		AcquisitionTimeout: time.Second,
		FrameTimeout:       5 * time.Second,
		MaxRetries:         3,
		RetryDelay:         2 * time.Second,
		MaxBackoff:         30 * time.Second,
		PreviewQuality:     70,
		QualityWindow:      60,
	}
}

// Health is the producer's view of the camera.
type Health struct {
	CameraOK     bool      `json:"camera_ok"`
	Reopens      uint64    `json:"reopens"`
	ReadErrors   uint64    `json:"read_errors"`
	DetectErrors uint64    `json:"detect_errors"`
	Slot         SlotStats `json:"slot"`
	Quality      Quality   `json:"quality"`
}

// Producer reads camera frames, runs the detector and hands snapshots to a Slot.
type Producer struct {
	cfg     Config
	cam     capture.Camera
	det     detector.Detector
	slot    *Slot
	quality *QualityMonitor
	freeze  *capture.FreezeDetector
	now     func() time.Time
	wait    func(ctx context.Context, d time.Duration) bool

	cameraOK     atomic.Bool
	reopens      atomic.Uint64
	readErrors   atomic.Uint64
	detectErrors atomic.Uint64

	watchers   atomic.Int32
	previewMu  sync.RWMutex
	preview    []byte
	previewSeq uint64
}

// NewProducer wires a camera and detector to slot. Zero config fields take defaults.
func NewProducer(cfg Config, cam capture.Camera, det detector.Detector, slot *Slot) *Producer {
	def := DefaultConfig()
	if cfg.FrameTimeout <= 0 {
		cfg.FrameTimeout = def.FrameTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if cfg.MaxBackoff < cfg.RetryDelay {
		cfg.MaxBackoff = max(def.MaxBackoff, cfg.RetryDelay)
	}
	if cfg.PreviewQuality <= 0 || cfg.PreviewQuality > 100 {
		cfg.PreviewQuality = def.PreviewQuality
	}
	return &Producer{
		cfg:     cfg,
		cam:     cam,
		det:     det,
		slot:    slot,
		quality: NewQualityMonitor(cfg.QualityWindow),
		freeze:  capture.NewFreezeDetector(cfg.FrameTimeout),
		now:     time.Now,
		wait:    sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Run captures until ctx is cancelled, then closes the camera.
func (p *Producer) Run(ctx context.Context) error {
	defer p.freeze.Close()
	defer func() {
		p.cameraOK.Store(false)
		if err := p.cam.Close(); err != nil {
			log.Printf("Error closing camera: %v", err)
		}
	}()

	if err := p.cam.Open(); err != nil {
		log.Printf("Camera unavailable: %v", err)
		if !p.reopen(ctx) {
			return ctx.Err()
		}
	}
	p.cameraOK.Store(true)

	interval := time.Second / time.Duration(max(p.cam.FPS(), 1))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastGood := p.now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if err := p.step(); err != nil {
			if p.now().Sub(lastGood) <= p.cfg.FrameTimeout {
				continue
			}
			log.Printf("Camera stalled for %v: %v", p.cfg.FrameTimeout, err)
			p.cameraOK.Store(false)
			if !p.reopen(ctx) {
				return nil
			}
			p.cameraOK.Store(true)
		}
		lastGood = p.now()
	}
}

var errFrozen = errors.New("camera feed frozen")

// step reads and processes one frame. Detector errors count but keep the camera
// healthy.
func (p *Producer) step() error {
	frame, err := p.cam.ReadFrame()
	if err != nil {
		p.readErrors.Add(1)
		return err
	}
	defer frame.Close()

	captured := p.now()
	if p.freeze.Observe(frame, captured) {
		return errFrozen
	}

	snap, err := p.det.Detect(frame)
	if err != nil {
		if p.detectErrors.Add(1) == 1 {
			log.Printf("Error detecting landmarks: %v", err)
		}
		return nil
	}
	latency := p.now().Sub(captured)
	p.quality.Record(captured, latency, poseConfidence(snap))
	p.slot.Put(snap)

	if p.watchers.Load() > 0 {
		p.renderPreview(frame, snap)
	}
	return nil
}

// reopen closes and reopens the camera until it works or ctx ends. The first
// MaxRetries attempts are RetryDelay apart, then the delay doubles.
func (p *Producer) reopen(ctx context.Context) bool {
	delay := p.cfg.RetryDelay
	for attempt := 1; ; attempt++ {
		if !p.wait(ctx, delay) {
			return false
		}
		p.cam.Close()
		p.reopens.Add(1)
		err := p.cam.Open()
		if err == nil {
			p.freeze.Reset()
			log.Printf("Camera reopened after %d attempt(s)", attempt)
			return true
		}
		if attempt <= p.cfg.MaxRetries {
			log.Printf("Camera retry %d/%d failed: %v", attempt, p.cfg.MaxRetries, err)
		} else {
			delay = min(delay*2, p.cfg.MaxBackoff)
			log.Printf("Camera still unavailable, next attempt in %v: %v", delay, err)
		}
	}
}

func (p *Producer) renderPreview(frame *gocv.Mat, snap *detector.Snapshot) {
	data, err := RenderPreview(frame, snap, p.cfg.Mirror, p.cfg.PreviewQuality)
	if err != nil {
		return
	}
	p.previewMu.Lock()
	p.preview = data
	p.previewSeq++
	p.previewMu.Unlock()
}

// WatchPreview enables preview rendering until the returned func is called.
func (p *Producer) WatchPreview() (stop func()) {
	p.watchers.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() { p.watchers.Add(-1) })
	}
}

// Preview returns the latest preview JPEG and its sequence number.
func (p *Producer) Preview() ([]byte, uint64) {
	p.previewMu.RLock()
	defer p.previewMu.RUnlock()
	return p.preview, p.previewSeq
}

// Health reports camera and slot state.
func (p *Producer) Health() Health {
	return Health{
		CameraOK:     p.cameraOK.Load(),
		Reopens:      p.reopens.Load(),
		ReadErrors:   p.readErrors.Load(),
		DetectErrors: p.detectErrors.Load(),
		Slot:         p.slot.Stats(),
		Quality:      p.quality.Stats(),
	}
}

func (h Health) String() string {
	return fmt.Sprintf("camera_ok=%t fps=%.1f confidence=%.2f", h.CameraOK, h.Quality.FPSAvg, h.Quality.ConfidenceAvg)
}
