package calibration

import (
	"math"
	"time"

	"github.com/ayusman/vtrack/internal/detector"
	"github.com/ayusman/vtrack/internal/pose"
	"gonum.org/v1/gonum/spatial/r3"
)

// HandshakeConfig controls the reference-pose calibration.
type HandshakeConfig struct {
	// WaistHeight is the room-space height (metres) the waist tracker is placed at.
	WaistHeight float64 `yaml:"waist_height"`
	// MinConfidence is the minimum mean confidence of every reference landmark.
	MinConfidence float64 `yaml:"min_confidence"`
	// AlignYaw rotates the room so the user's hip line lies along +X.
	AlignYaw bool `yaml:"align_yaw"`
	// Countdown is the time the user gets to step into the reference pose.
	Countdown time.Duration `yaml:"countdown"`
	// Window is how long samples are collected after the countdown.
	Window time.Duration `yaml:"window"`
	// MinSamples is the fewest snapshots a capture may hand to RunHandshake.
	MinSamples int `yaml:"min_samples"`
}

// DefaultHandshakeConfig returns the default handshake parameters.
func DefaultHandshakeConfig() HandshakeConfig {
	return HandshakeConfig{
		WaistHeight:   1.0,
		MinConfidence: 0.6,
		AlignYaw:      true,
		Countdown:     3 * time.Second,
		Window:        2 * time.Second,
		MinSamples:    5,
	}
}

var referenceLandmarks = []detector.LandmarkID{
	detector.Nose,
	detector.LeftHip,
	detector.RightHip,
	detector.LeftAnkle,
	detector.RightAnkle,
}

// RunHandshake derives a profile from snapshots of the user standing upright and
// facing the camera. Scale comes from the hip-to-ankle height, yaw from the hip line
// and offset from placing the waist at WaistHeight above the room origin. The current
// role table carries over. The result is not applied; callers pass it to Set.
func (s *Store) RunHandshake(samples ...*detector.Snapshot) (Profile, error) {
	cfg := s.handshake
	current := s.Get()

	if len(samples) == 0 {
		return Profile{}, &CalibrationError{Reason: "no samples captured"}
	}

	var (
		sums   = make(map[detector.LandmarkID]r3.Vec, len(referenceLandmarks))
		counts = make(map[detector.LandmarkID]int, len(referenceLandmarks))
		conf   = make(map[detector.LandmarkID]float64, len(referenceLandmarks))
	)
	for _, snap := range samples {
		for _, id := range referenceLandmarks {
			l, ok := snap.Get(id)
			if !ok || !l.IsFinite() {
				continue
			}
			conf[id] += l.Confidence
			sums[id] = r3.Add(sums[id], r3.Vec{X: l.X, Y: l.Y, Z: l.Z})
			counts[id]++
		}
	}

	var low []detector.LandmarkID
	for _, id := range referenceLandmarks {
		if conf[id]/float64(len(samples)) < cfg.MinConfidence {
			low = append(low, id)
		}
	}
	if len(low) > 0 {
		return Profile{}, &CalibrationError{Reason: "reference landmarks not visible enough", Landmarks: low}
	}

	mean := func(id detector.LandmarkID) r3.Vec {
		return r3.Scale(1/float64(counts[id]), sums[id])
	}
	hipMid := r3.Scale(0.5, r3.Add(mean(detector.LeftHip), mean(detector.RightHip)))
	ankleMid := r3.Scale(0.5, r3.Add(mean(detector.LeftAnkle), mean(detector.RightAnkle)))

	height := hipMid.Y - ankleMid.Y
	if !(height > 1e-3) || math.IsInf(height, 0) {
		return Profile{}, &CalibrationError{Reason: "hips are not above the ankles"}
	}

	next := current.Clone()
	next.Scale = cfg.WaistHeight / height

	if cfg.AlignYaw {
		across := r3.Sub(mean(detector.RightHip), mean(detector.LeftHip))
		across.Y = 0
		if r3.Norm(across) > 1e-6 {
			next.Rotation = pose.AxisAngle(r3.Vec{Y: 1}, -pose.Yaw(across))
		}
	}

	waist := hipMid
	if m, ok := current.Roles[pose.Waist]; ok {
		waist = r3.Add(waist, m.Offset)
	}
	target := r3.Vec{Y: cfg.WaistHeight}
	next.Offset = r3.Sub(target, pose.Rotate(next.Rotation, r3.Scale(next.Scale, waist)))

	if err := next.Validate(); err != nil {
		return Profile{}, &CalibrationError{Reason: err.Error()}
	}
	return next, nil
}
