// Package calibration holds the process-wide transform from camera space to VR room
// space together with the role mapping table.
package calibration

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ayusman/vtrack/internal/detector"
	"github.com/ayusman/vtrack/internal/pose"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrInvalidProfile is returned when a profile cannot be used as a transform.
var ErrInvalidProfile = errors.New("invalid calibration profile")

// RoleMapping describes how one tracker role is derived from landmarks.
type RoleMapping struct {
	// Landmarks are averaged to give the role position.
	Landmarks []detector.LandmarkID `json:"landmarks"`
	// Offset is added in camera space before calibration, e.g. to move an ankle
	// landmark down to the floor contact point.
	Offset        r3.Vec                 `json:"offset"`
	MinConfidence float64                `json:"min_confidence"`
	Orientation   pose.OrientationSource `json:"orientation"`
	TrackerIndex  int                    `json:"tracker_index"`
}

// Profile is an immutable calibration value. The Store never mutates a profile it
// has handed out; every change produces a new one with a higher Version.
type Profile struct {
	ID        string                    `json:"id"`
	Name      string                    `json:"name"`
	Version   uint64                    `json:"version"`
	Offset    r3.Vec                    `json:"offset"`
	Rotation  quat.Number               `json:"rotation"`
	Scale     float64                   `json:"scale"`
	Roles     map[pose.Role]RoleMapping `json:"roles"`
	UpdatedAt time.Time                 `json:"updated_at"`
}

// Transform maps a camera-space point to room space: scale, then rotate, then translate.
func (p Profile) Transform(v r3.Vec) r3.Vec {
	return r3.Add(p.Offset, pose.Rotate(p.Rotation, r3.Scale(p.Scale, v)))
}

// Inverse maps a room-space point back to camera space.
func (p Profile) Inverse(v r3.Vec) r3.Vec {
	return r3.Scale(1/p.Scale, pose.Rotate(quat.Conj(p.Rotation), r3.Sub(v, p.Offset)))
}

// Validate reports whether the profile describes a usable transform and mapping table.
func (p Profile) Validate() error {
	if !(p.Scale > 0) || math.IsInf(p.Scale, 0) {
		return fmt.Errorf("%w: scale %v must be positive", ErrInvalidProfile, p.Scale)
	}
	if !pose.IsFiniteVec(p.Offset) {
		return fmt.Errorf("%w: offset is not finite", ErrInvalidProfile)
	}
	if !pose.IsFiniteQuat(p.Rotation) || quat.Abs(p.Rotation) < 1e-9 {
		return fmt.Errorf("%w: rotation is not a valid quaternion", ErrInvalidProfile)
	}
	for role, m := range p.Roles {
		if role < 0 || role >= pose.NumRoles {
			return fmt.Errorf("%w: unknown role %d", ErrInvalidProfile, int(role))
		}
		for _, id := range m.Landmarks {
			if !id.Valid() {
				return fmt.Errorf("%w: role %s maps unknown landmark %d", ErrInvalidProfile, role, int(id))
			}
		}
		if !pose.IsFiniteVec(m.Offset) {
			return fmt.Errorf("%w: role %s offset is not finite", ErrInvalidProfile, role)
		}
		if m.MinConfidence < 0 || m.MinConfidence > 1 {
			return fmt.Errorf("%w: role %s min confidence %v outside [0,1]", ErrInvalidProfile, role, m.MinConfidence)
		}
		if !m.Orientation.Valid() {
			return fmt.Errorf("%w: role %s has unknown orientation source %q", ErrInvalidProfile, role, m.Orientation)
		}
		if m.TrackerIndex < 0 {
			return fmt.Errorf("%w: role %s tracker index %d is negative", ErrInvalidProfile, role, m.TrackerIndex)
		}
	}
	return nil
}

// Clone returns a deep copy of the profile.
func (p Profile) Clone() Profile {
	out := p
	if p.Roles != nil {
		out.Roles = make(map[pose.Role]RoleMapping, len(p.Roles))
		for role, m := range p.Roles {
			m.Landmarks = append([]detector.LandmarkID(nil), m.Landmarks...)
			out.Roles[role] = m
		}
	}
	return out
}

// Default returns the identity profile with the default role table.
func Default() Profile {
	return Profile{
		Name:     "default",
		Rotation: pose.Identity,
		Scale:    1,
		Roles:    DefaultRoles(),
	}
}

// DefaultRoles returns the mappings for head, hands, waist and feet.
func DefaultRoles() map[pose.Role]RoleMapping {
	return map[pose.Role]RoleMapping{
		pose.Head: {
			Landmarks:     []detector.LandmarkID{detector.LeftEar, detector.RightEar},
			MinConfidence: 0.5,
			Orientation:   pose.OrientHead,
			TrackerIndex:  0,
		},
		pose.LeftHand: {
			Landmarks:     []detector.LandmarkID{detector.LeftWrist},
			MinConfidence: 0.5,
			Orientation:   pose.OrientLeftHand,
			TrackerIndex:  1,
		},
		pose.RightHand: {
			Landmarks:     []detector.LandmarkID{detector.RightWrist},
			MinConfidence: 0.5,
			Orientation:   pose.OrientRightHand,
			TrackerIndex:  2,
		},
		pose.Waist: {
			Landmarks:     []detector.LandmarkID{detector.LeftHip, detector.RightHip},
			MinConfidence: 0.5,
			Orientation:   pose.OrientHips,
			TrackerIndex:  3,
		},
		pose.LeftFoot: {
			Landmarks:     []detector.LandmarkID{detector.LeftAnkle},
			Offset:        r3.Vec{Y: -0.02},
			MinConfidence: 0.5,
			Orientation:   pose.OrientLeftFoot,
			TrackerIndex:  4,
		},
		pose.RightFoot: {
			Landmarks:     []detector.LandmarkID{detector.RightAnkle},
			Offset:        r3.Vec{Y: -0.02},
			MinConfidence: 0.5,
			Orientation:   pose.OrientRightFoot,
			TrackerIndex:  5,
		},
	}
}

// OptionalRoles returns mappings for roles that are off unless enabled in config.
func OptionalRoles() map[pose.Role]RoleMapping {
	return map[pose.Role]RoleMapping{
		pose.Chest: {
			Landmarks:     []detector.LandmarkID{detector.LeftShoulder, detector.RightShoulder},
			MinConfidence: 0.5,
			Orientation:   pose.OrientShoulders,
			TrackerIndex:  6,
		},
		pose.LeftElbow: {
			Landmarks:     []detector.LandmarkID{detector.LeftElbow},
			MinConfidence: 0.5,
			Orientation:   pose.OrientNone,
			TrackerIndex:  7,
		},
		pose.RightElbow: {
			Landmarks:     []detector.LandmarkID{detector.RightElbow},
			MinConfidence: 0.5,
			Orientation:   pose.OrientNone,
			TrackerIndex:  8,
		},
		pose.LeftKnee: {
			Landmarks:     []detector.LandmarkID{detector.LeftKnee},
			MinConfidence: 0.5,
			Orientation:   pose.OrientLeftShin,
			TrackerIndex:  9,
		},
		pose.RightKnee: {
			Landmarks:     []detector.LandmarkID{detector.RightKnee},
			MinConfidence: 0.5,
			Orientation:   pose.OrientRightShin,
			TrackerIndex:  10,
		},
	}
}

// Delta is an incremental calibration change. Angles are in degrees.
type Delta struct {
	Offset r3.Vec  `json:"offset"`
	Yaw    float64 `json:"yaw"`
	Pitch  float64 `json:"pitch"`
	Roll   float64 `json:"roll"`
	Scale  float64 `json:"scale"`
}

// IsZero reports whether applying d would change nothing.
func (d Delta) IsZero() bool {
	return d == Delta{}
}

// applyTo returns p with d applied. The rotation change is pre-multiplied so it acts
// in room space.
func (d Delta) applyTo(p Profile) Profile {
	out := p.Clone()
	out.Offset = r3.Add(p.Offset, d.Offset)
	out.Scale = p.Scale + d.Scale
	if d.Yaw != 0 || d.Pitch != 0 || d.Roll != 0 {
		r := pose.FromEuler(radians(d.Yaw), radians(d.Pitch), radians(d.Roll))
		out.Rotation = pose.Normalize(quat.Mul(r, p.Rotation))
	}
	return out
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
