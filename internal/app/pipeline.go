package app

import (
	"context"
	"time"

	"github.com/ayusman/vtrack/internal/calibration"
	"github.com/ayusman/vtrack/internal/detector"
	"github.com/ayusman/vtrack/internal/filter"
	"github.com/ayusman/vtrack/internal/pose"
	"github.com/ayusman/vtrack/internal/status"
	"github.com/ayusman/vtrack/internal/tracker"
	"github.com/ayusman/vtrack/internal/transmit"
)

// runPipeline ticks at the transmit rate until ctx is cancelled.
//
// Each tick takes the newest snapshot (or reuses the last one within a camera
// frame), synthesizes candidate poses,
// filters them, advances the pinch detectors, sends one frame and publishes
// the resulting status. A tick without a fresh snapshot still runs so that
// trackers age through Holding into Lost.
func (a *App) runPipeline(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.Transmit.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			a.tick(ctx, now)
		}
	}
}

// tick runs one pipeline step. It is only called from the pipeline goroutine.
func (a *App) tick(ctx context.Context, now time.Time) {
	if a.started.IsZero() {
		a.started = now
	}
	a.seq++

	profile := a.calib.Get()
	frame := transmit.Frame{Seq: a.seq, Elapsed: now.Sub(a.started)}

	frame.Trackers = append(frame.Trackers, a.retire(profile)...)

	enabled := a.IsEnabled()
	snap := a.snapshot(ctx, enabled, now)
	timeoutErr := a.slot.CheckTimeout(a.cfg.Ingress.AcquisitionTimeout)

	result := tracker.Synthesize(snap, profile)
	for _, role := range pose.Roles() {
		m, ok := profile.Roles[role]
		if !ok {
			continue
		}
		prev := a.filter.State(role).Status

		var candidate *tracker.Candidate
		if c, ok := result.Candidates[role]; ok {
			candidate = &c
		}
		st := a.filter.Update(role, candidate, now)

		switch {
		case st.Status != filter.Lost:
			a.known[role] = m.TrackerIndex
			frame.Trackers = append(frame.Trackers, transmit.TrackerUpdate{
				Index:   m.TrackerIndex,
				Role:    role,
				Pose:    st.Pose(),
				Enabled: true,
			})
		case prev != filter.Lost:
			// Deactivate exactly once on the transition into Lost.
			delete(a.known, role)
			frame.Trackers = append(frame.Trackers, transmit.TrackerUpdate{
				Index: m.TrackerIndex,
				Role:  role,
				Pose:  st.Pose(),
			})
		}
	}

	hands := handIndices(profile)
	for _, side := range []detector.Side{detector.Left, detector.Right} {
		hs, changed := a.gestures.Update(side, snap, now)
		idx, ok := hands[side]
		if !ok || (!hs.Tracked && !changed) {
			continue
		}
		frame.Hands = append(frame.Hands, transmit.HandUpdate{
			Index:   idx,
			Side:    side,
			Pressed: hs.Pinching,
			Trigger: hs.Trigger,
			Changed: changed,
		})
	}

	if !frame.Empty() {
		a.tx.Send(frame)
	}

	a.lastErr = firstError(result.Err(), timeoutErr, a.tx.LastError())
	a.publish(now, enabled, profile, result, timeoutErr != nil)
}

// snapshot returns the snapshot for this tick. A fresh one is handed to the
// handshake sampler. Without a fresh one, the previous snapshot stands in until it
// is older than one camera frame, so ticking faster than the camera does not count
// as missing data.
func (a *App) snapshot(ctx context.Context, enabled bool, now time.Time) *detector.Snapshot {
	if !enabled {
		a.last = nil
		return nil
	}
	if snap, ok := a.slot.NextSnapshot(ctx, 0); ok {
		a.last, a.lastAt = snap, now
		a.sampler.add(snap)
		return snap
	}
	if a.last != nil && now.Sub(a.lastAt) <= a.reuseWindow() {
		return a.last
	}
	a.last = nil
	return nil
}

// reuseWindow is one camera frame plus half a tick of scheduling slack.
func (a *App) reuseWindow() time.Duration {
	fps := a.camera.FPS()
	if fps <= 0 {
		return 0
	}
	return time.Second/time.Duration(fps) + a.cfg.Transmit.Interval()/2
}

// retire deactivates trackers whose role was removed from the profile or moved
// to a different tracker index, and forgets their filter state.
func (a *App) retire(profile calibration.Profile) []transmit.TrackerUpdate {
	var out []transmit.TrackerUpdate
	for _, role := range pose.Roles() {
		idx, ok := a.known[role]
		if !ok {
			continue
		}
		if m, mapped := profile.Roles[role]; mapped && m.TrackerIndex == idx {
			continue
		}
		out = append(out, transmit.TrackerUpdate{Index: idx, Role: role, Pose: pose.Pose{Orientation: pose.Identity}})
		delete(a.known, role)
		a.filter.Reset(role)
	}
	return out
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (a *App) publish(now time.Time, enabled bool, profile calibration.Profile, result tracker.Result, timedOut bool) {
	snap := &status.Snapshot{
		Seq:                a.seq,
		Time:               now,
		Enabled:            enabled,
		Calibrating:        a.calibrating.Load(),
		Trackers:           a.filter.States(),
		Hands:              a.gestures.States(),
		Profile:            profile,
		Ingress:            a.producer.Health(),
		AcquisitionTimeout: timedOut,
		Transmit:           a.tx.Stats(),
		Unmapped:           result.Unmapped,
	}
	if a.lastErr != nil {
		snap.LastError = a.lastErr.Error()
	}
	a.status.Publish(snap)
}
