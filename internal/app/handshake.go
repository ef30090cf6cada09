package app

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ayusman/vtrack/internal/calibration"
	"github.com/ayusman/vtrack/internal/detector"
	"github.com/ayusman/vtrack/internal/store"
)

// sampler collects the snapshots the pipeline consumes while a handshake window is open.
type sampler struct {
	mu      sync.Mutex
	active  bool
	samples []*detector.Snapshot
}

func (s *sampler) begin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = true
	s.samples = nil
}

func (s *sampler) add(snap *detector.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		s.samples = append(s.samples, snap)
	}
}

func (s *sampler) end() []*detector.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.samples
	s.active = false
	s.samples = nil
	return out
}

// Calibrate runs a reference-pose handshake: it waits out the countdown, collects
// the snapshots seen during the capture window and derives a new profile from them.
// The profile is applied and persisted on success. Tracking keeps running throughout.
func (a *App) Calibrate(ctx context.Context) (calibration.Profile, error) {
	if !a.calibrating.CompareAndSwap(false, true) {
		return calibration.Profile{}, calibration.ErrHandshakeInProgress
	}
	defer a.calibrating.Store(false)

	if !a.IsEnabled() {
		err := pausedError()
		a.recordHandshake(0, calibration.Profile{}, err)
		return calibration.Profile{}, err
	}

	cfg := a.calib.HandshakeConfig()
	log.Printf("Calibration starting in %v, stand upright facing the camera", cfg.Countdown)
	if err := sleep(ctx, cfg.Countdown); err != nil {
		return calibration.Profile{}, err
	}

	a.sampler.begin()
	err := sleep(ctx, cfg.Window)
	samples := a.sampler.end()
	if err != nil {
		return calibration.Profile{}, err
	}

	profile, err := a.handshake(samples, cfg.MinSamples)
	a.recordHandshake(len(samples), profile, err)
	if err != nil {
		log.Printf("Calibration failed: %v", err)
		return calibration.Profile{}, err
	}

	log.Printf("Calibration applied (scale %.3f, version %d)", profile.Scale, profile.Version)
	return profile, nil
}

func (a *App) handshake(samples []*detector.Snapshot, minSamples int) (calibration.Profile, error) {
	if len(samples) < minSamples {
		if !a.IsEnabled() {
			return calibration.Profile{}, pausedError()
		}
		return calibration.Profile{}, &calibration.CalibrationError{
			Reason: fmt.Sprintf("captured %d snapshots, need %d", len(samples), minSamples),
		}
	}
	profile, err := a.calib.RunHandshake(samples...)
	if err != nil {
		return calibration.Profile{}, err
	}
	return a.calib.Set(profile)
}

// pausedError reports a handshake that cannot see any landmarks because tracking is off.
func pausedError() error {
	return &calibration.CalibrationError{Reason: "tracking is paused, resume it before calibrating"}
}

func (a *App) recordHandshake(samples int, profile calibration.Profile, err error) {
	if a.store == nil {
		return
	}
	rec := &store.HandshakeRecord{Succeeded: err == nil, Samples: samples}
	if err != nil {
		rec.Reason = err.Error()
	} else {
		rec.ProfileID = profile.ID
		rec.Scale = profile.Scale
	}
	if err := a.store.Handshakes().Record(rec); err != nil {
		log.Printf("Failed to record handshake: %v", err)
	}
}

// Handshakes returns recent handshake attempts, newest first.
func (a *App) Handshakes(limit int) ([]store.HandshakeRecord, error) {
	if a.store == nil {
		return nil, nil
	}
	return a.store.Handshakes().List(limit)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
