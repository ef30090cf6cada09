// Package filter smooths candidate tracker poses over time and manages the
// Active/Holding/Lost status of each role.
package filter

import (
	"fmt"
	"math"
	"time"

	"github.com/ayusman/vtrack/internal/pose"
	"github.com/ayusman/vtrack/internal/tracker"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Status is the tracking status of one role.
type Status int

const (
	// Lost roles are not transmitted.
	Lost Status = iota
	// Active roles were updated this tick.
	Active
	// Holding roles missed recent candidates and keep their last pose.
	Holding
)

func (s Status) String() string {
	switch s {
	case Active:
		return "active"
	case Holding:
		return "holding"
	case Lost:
		return "lost"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	for _, c := range []Status{Lost, Active, Holding} {
		if c.String() == string(text) {
			*s = c
			return nil
		}
	}
	return fmt.Errorf("unknown tracker status %q", text)
}

// Config tunes smoothing and loss handling.
type Config struct {
	// MinCutoff is the One Euro minimum cutoff frequency in Hz. Lower is smoother.
	MinCutoff float64 `yaml:"min_cutoff"`
	// Beta raises the cutoff with speed. Higher is more responsive.
	Beta float64 `yaml:"beta"`
	// DerivativeCutoff is the cutoff for the speed estimate in Hz.
	DerivativeCutoff float64 `yaml:"d_cutoff"`
	// ConfidenceFloor is the smoothing weight given to a zero-confidence candidate.
	ConfidenceFloor float64 `yaml:"confidence_floor"`
	// HoldFrames is the number of consecutive misses a role is held for before it is lost.
	HoldFrames int `yaml:"hold_frames"`
	// SnapAfterMisses is the gap length beyond which a recovering role jumps straight
	// to the new candidate instead of easing in.
	SnapAfterMisses int `yaml:"snap_after_misses"`
}

// DefaultConfig returns the default filter settings.
func DefaultConfig() Config {
	return Config{
		MinCutoff:        1.0,
		Beta:             0.01,
		DerivativeCutoff: 1.0,
		ConfidenceFloor:  0.3,
		HoldFrames:       10,
		SnapAfterMisses:  30,
	}
}

// CutoffForSmoothing maps a 0..1 smoothing slider to a minimum cutoff. Higher
// smoothing gives a lower cutoff.
func CutoffForSmoothing(smooth float64) float64 {
	return math.Max(0.01, 1.5*(1.1-smooth))
}

// State is the filtered state of one role.
type State struct {
	Role        pose.Role   `json:"role"`
	Position    r3.Vec      `json:"position"`
	Orientation quat.Number `json:"orientation"`
	Velocity    r3.Vec      `json:"velocity"`
	Confidence  float64     `json:"confidence"`
	Status      Status      `json:"status"`
	UpdatedAt   time.Time   `json:"updated_at"`
	Misses      int         `json:"misses"`
}

// Pose returns the smoothed pose.
func (s State) Pose() pose.Pose {
	return pose.Pose{Position: s.Position, Orientation: s.Orientation}
}

type track struct {
	state State
	pos   oneEuro
	seen  bool
}

// Filter holds per-role filter state. It is not safe for concurrent use; the
// pipeline goroutine is its only writer.
type Filter struct {
	cfg    Config
	tracks map[pose.Role]*track
}

// New creates a filter with the given configuration.
func New(cfg Config) *Filter {
	return &Filter{cfg: cfg, tracks: make(map[pose.Role]*track)}
}

// Update folds the candidate for role into its state. A nil or non-finite candidate
// counts as a miss.
func (f *Filter) Update(role pose.Role, c *tracker.Candidate, now time.Time) State {
	t := f.track(role)

	if c == nil || !c.Pose.IsFinite() {
		t.state.Misses++
		if t.seen && t.state.Misses <= f.cfg.HoldFrames {
			t.state.Status = Holding
		} else {
			t.state.Status = Lost
		}
		return t.state
	}

	orientation := pose.Normalize(c.Pose.Orientation)

	if !t.seen || t.state.Misses > f.cfg.SnapAfterMisses {
		t.pos.reset(c.Pose.Position, now)
		t.state.Position = c.Pose.Position
		t.state.Orientation = orientation
		t.state.Velocity = r3.Vec{}
		t.seen = true
	} else {
		w := f.weight(c.Confidence)
		prev := t.state.Orientation

		t.state.Position = t.pos.filter(f.cfg, c.Pose.Position, now, w)
		t.state.Velocity = t.pos.dx

		a := w * f.rotationAlpha(prev, orientation, t.pos.dt)
		t.state.Orientation = pose.Slerp(prev, orientation, a)
	}

	t.state.Confidence = c.Confidence
	t.state.Status = Active
	t.state.Misses = 0
	t.state.UpdatedAt = now
	return t.state
}

// State returns the current state of role. A role never updated is Lost.
func (f *Filter) State(role pose.Role) State {
	if t, ok := f.tracks[role]; ok {
		return t.state
	}
	return newState(role)
}

// States returns the state of every role the filter has seen, in role order.
func (f *Filter) States() []State {
	out := make([]State, 0, len(f.tracks))
	for _, role := range pose.Roles() {
		if t, ok := f.tracks[role]; ok {
			out = append(out, t.state)
		}
	}
	return out
}

// Reset forgets all state for role.
func (f *Filter) Reset(role pose.Role) {
	delete(f.tracks, role)
}

func (f *Filter) track(role pose.Role) *track {
	t, ok := f.tracks[role]
	if !ok {
		t = &track{state: newState(role)}
		f.tracks[role] = t
	}
	return t
}

func newState(role pose.Role) State {
	return State{Role: role, Orientation: pose.Identity, Status: Lost}
}

// weight scales the smoothing factor so confident candidates pull harder.
func (f *Filter) weight(confidence float64) float64 {
	c := math.Max(0, math.Min(1, confidence))
	floor := math.Max(0, math.Min(1, f.cfg.ConfidenceFloor))
	return floor + (1-floor)*c
}

// rotationAlpha applies the One Euro cutoff rule to angular speed.
func (f *Filter) rotationAlpha(prev, next quat.Number, dt float64) float64 {
	if dt <= 0 {
		return 0
	}
	speed := pose.Angle(prev, next) / dt
	return alpha(dt, f.cfg.MinCutoff+f.cfg.Beta*speed)
}
