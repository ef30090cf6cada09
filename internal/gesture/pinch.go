// Package gesture detects pinch gestures from hand landmarks.
package gesture

import (
	"fmt"
	"math"
	"time"

	"github.com/ayusman/vtrack/internal/detector"
)

// Phase is the pinch state of one hand.
type Phase int

const (
	Open Phase = iota
	// Closing has crossed the close threshold and waits out the debounce.
	Closing
	Pinched
	// Opening has crossed the open threshold and waits out the debounce.
	Opening
)

func (p Phase) String() string {
	switch p {
	case Open:
		return "open"
	case Closing:
		return "closing"
	case Pinched:
		return "pinched"
	case Opening:
		return "opening"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Phase) UnmarshalText(text []byte) error {
	for c := Open; c <= Opening; c++ {
		if c.String() == string(text) {
			*p = c
			return nil
		}
	}
	return fmt.Errorf("unknown pinch phase %q", text)
}

// Config holds the pinch thresholds. CloseDistance must be below OpenDistance.
type Config struct {
	CloseDistance float64       `yaml:"close_distance"`
	OpenDistance  float64       `yaml:"open_distance"`
	Debounce      time.Duration `yaml:"debounce"`
	HoldFrames    int           `yaml:"hold_frames"`
	MinConfidence float64       `yaml:"min_confidence"`
	// Relative divides the thumb-index distance by the wrist to middle knuckle
	// length so thresholds do not depend on how far the hand is from the camera.
	Relative bool `yaml:"relative"`
}

// DefaultConfig returns the default pinch settings in camera-space units.
func DefaultConfig() Config {
	return Config{
		CloseDistance: 0.03,
		OpenDistance:  0.045,
		Debounce:      50 * time.Millisecond,
		HoldFrames:    10,
		MinConfidence: 0.5,
	}
}

// Validate checks the hysteresis band.
func (c Config) Validate() error {
	if !(c.CloseDistance > 0) || !(c.OpenDistance > c.CloseDistance) {
		return fmt.Errorf("pinch thresholds must satisfy 0 < close (%v) < open (%v)", c.CloseDistance, c.OpenDistance)
	}
	if c.Debounce < 0 {
		return fmt.Errorf("pinch debounce %v is negative", c.Debounce)
	}
	return nil
}

// State is the gesture state of one hand.
type State struct {
	Side     detector.Side `json:"side"`
	Distance float64       `json:"distance"`
	Pinching bool          `json:"pinching"`
	Phase    Phase         `json:"phase"`
	// Dwell is how long a pending Closing or Opening phase has lasted.
	Dwell          time.Duration `json:"dwell"`
	LastTransition time.Time     `json:"last_transition"`
	Misses         int           `json:"misses"`
	Tracked        bool          `json:"tracked"`
	// Trigger is an analog 0..1 reading of how far the hand has closed.
	Trigger float64 `json:"trigger"`
}

type hand struct {
	state State
	since time.Time
}

// Detector runs one pinch state machine per hand. It is not safe for concurrent use.
type Detector struct {
	cfg   Config
	hands [2]hand
}

// NewDetector creates a detector with both hands open and untracked.
func NewDetector(cfg Config) *Detector {
	d := &Detector{cfg: cfg}
	d.hands[detector.Left].state.Side = detector.Left
	d.hands[detector.Right].state.Side = detector.Right
	return d
}

// Update advances the given hand with the landmarks in snap. A nil snapshot or a
// hand without usable thumb and index tips counts as a miss. changed reports
// whether Pinching flipped on this update.
func (d *Detector) Update(side detector.Side, snap *detector.Snapshot, now time.Time) (State, bool) {
	dist, ok := d.distance(side, snap)
	if !ok {
		return d.miss(side)
	}
	return d.Observe(side, dist, now)
}

// Observe advances the given hand with a measured thumb-index distance.
func (d *Detector) Observe(side detector.Side, dist float64, now time.Time) (State, bool) {
	h := &d.hands[side]
	s := &h.state
	was := s.Pinching

	s.Distance = dist
	s.Misses = 0
	s.Tracked = true
	s.Trigger = d.trigger(dist)

	switch s.Phase {
	case Open:
		if dist < d.cfg.CloseDistance {
			s.Phase = Closing
			h.since = now
		}
	case Closing:
		if dist > d.cfg.OpenDistance {
			s.Phase = Open
		}
	case Pinched:
		if dist > d.cfg.OpenDistance {
			s.Phase = Opening
			h.since = now
		}
	case Opening:
		if dist < d.cfg.CloseDistance {
			s.Phase = Pinched
		}
	}

	s.Dwell = 0
	if s.Phase == Closing || s.Phase == Opening {
		s.Dwell = now.Sub(h.since)
		if s.Dwell >= d.cfg.Debounce {
			if s.Phase == Closing {
				s.Phase = Pinched
			} else {
				s.Phase = Open
			}
			s.Dwell = 0
		}
	}

	s.Pinching = s.Phase == Pinched || s.Phase == Opening
	if s.Pinching != was {
		s.LastTransition = now
		return *s, true
	}
	return *s, false
}

// State returns the current state of the given hand.
func (d *Detector) State(side detector.Side) State {
	return d.hands[side].state
}

// States returns the left and right hand states.
func (d *Detector) States() [2]State {
	return [2]State{d.hands[detector.Left].state, d.hands[detector.Right].state}
}

// miss freezes the hand until HoldFrames is exceeded, then releases it once.
func (d *Detector) miss(side detector.Side) (State, bool) {
	s := &d.hands[side].state
	s.Misses++
	// A pending phase must be re-observed for the full debounce.
	switch s.Phase {
	case Closing:
		s.Phase = Open
	case Opening:
		s.Phase = Pinched
	}
	s.Dwell = 0
	if s.Misses <= d.cfg.HoldFrames || !s.Tracked {
		return *s, false
	}

	was := s.Pinching
	s.Tracked = false
	s.Phase = Open
	s.Pinching = false
	s.Dwell = 0
	s.Trigger = 0
	return *s, was
}

func (d *Detector) distance(side detector.Side, snap *detector.Snapshot) (float64, bool) {
	thumb, ok := snap.Get(detector.HandLandmark(side, detector.ThumbTip))
	if !ok || !thumb.IsFinite() || thumb.Confidence < d.cfg.MinConfidence {
		return 0, false
	}
	index, ok := snap.Get(detector.HandLandmark(side, detector.IndexTip))
	if !ok || !index.IsFinite() || index.Confidence < d.cfg.MinConfidence {
		return 0, false
	}
	dist := detector.Distance(thumb.Point3D, index.Point3D)
	if d.cfg.Relative {
		scale, ok := snap.HandScale(side)
		if !ok {
			return 0, false
		}
		dist /= scale
	}
	return dist, true
}

func (d *Detector) trigger(dist float64) float64 {
	band := d.cfg.OpenDistance - d.cfg.CloseDistance
	if band <= 0 {
		if dist < d.cfg.CloseDistance {
			return 1
		}
		return 0
	}
	return math.Max(0, math.Min(1, (d.cfg.OpenDistance-dist)/band))
}
