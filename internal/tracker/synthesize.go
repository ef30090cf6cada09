// Package tracker converts landmark snapshots into candidate tracker poses in room space.
package tracker

import (
	"errors"
	"fmt"
	"math"

	"github.com/ayusman/vtrack/internal/calibration"
	"github.com/ayusman/vtrack/internal/detector"
	"github.com/ayusman/vtrack/internal/pose"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrRoleMappingMissing is reported for a role whose mapping names no landmarks.
var ErrRoleMappingMissing = errors.New("role mapping missing")

// Candidate is the pose synthesized for one role from one snapshot.
type Candidate struct {
	Pose       pose.Pose
	Confidence float64
	// Oriented is true when the orientation came from landmark geometry rather
	// than the identity fallback.
	Oriented bool
}

// Result holds the candidates of one synthesis pass. Roles absent from
// Candidates get no update this frame.
type Result struct {
	Candidates map[pose.Role]Candidate
	Unmapped   []pose.Role
}

// Err returns one ErrRoleMappingMissing per unmapped role, or nil.
func (r Result) Err() error {
	if len(r.Unmapped) == 0 {
		return nil
	}
	errs := make([]error, len(r.Unmapped))
	for i, role := range r.Unmapped {
		errs[i] = fmt.Errorf("%s: %w", role, ErrRoleMappingMissing)
	}
	return errors.Join(errs...)
}

// Synthesize derives a candidate pose for every role in the profile's mapping table.
// A role is omitted when any of its landmarks is missing, non-finite or below the
// role's minimum confidence. The same inputs always give the same result.
func Synthesize(snap *detector.Snapshot, profile calibration.Profile) Result {
	res := Result{Candidates: make(map[pose.Role]Candidate, len(profile.Roles))}

	for _, role := range pose.Roles() {
		m, ok := profile.Roles[role]
		if !ok {
			continue
		}
		if len(m.Landmarks) == 0 {
			res.Unmapped = append(res.Unmapped, role)
			continue
		}
		if snap == nil {
			continue
		}
		if c, ok := synthesizeRole(snap, profile, m); ok {
			res.Candidates[role] = c
		}
	}
	return res
}

func synthesizeRole(snap *detector.Snapshot, profile calibration.Profile, m calibration.RoleMapping) (Candidate, bool) {
	lk := lookup{snap: snap, min: m.MinConfidence, conf: 1}

	var sum r3.Vec
	for _, id := range m.Landmarks {
		v, ok := lk.get(id)
		if !ok {
			return Candidate{}, false
		}
		sum = r3.Add(sum, v)
	}
	local := r3.Add(r3.Scale(1/float64(len(m.Landmarks)), sum), m.Offset)
	position := profile.Transform(local)
	if !pose.IsFiniteVec(position) {
		return Candidate{}, false
	}

	orientation := pose.Identity
	q, oriented := lk.orientation(m.Orientation)
	if oriented {
		orientation = q
	}
	orientation = pose.Normalize(quat.Mul(profile.Rotation, orientation))

	return Candidate{
		Pose:       pose.Pose{Position: position, Orientation: orientation},
		Confidence: lk.conf,
		Oriented:   oriented,
	}, true
}

// lookup reads landmarks that pass the role's confidence threshold and tracks the
// lowest confidence seen.
type lookup struct {
	snap *detector.Snapshot
	min  float64
	conf float64
}

func (l *lookup) get(id detector.LandmarkID) (r3.Vec, bool) {
	v, c, ok := l.peek(id)
	if !ok {
		return r3.Vec{}, false
	}
	l.conf = math.Min(l.conf, c)
	return v, true
}

func (l *lookup) peek(id detector.LandmarkID) (r3.Vec, float64, bool) {
	lm, ok := l.snap.Get(id)
	if !ok || !lm.IsFinite() || lm.Confidence < l.min {
		return r3.Vec{}, 0, false
	}
	return r3.Vec{X: lm.X, Y: lm.Y, Z: lm.Z}, lm.Confidence, true
}

// all fetches every id, committing their confidences only when all are present.
func (l *lookup) all(ids ...detector.LandmarkID) ([]r3.Vec, bool) {
	out := make([]r3.Vec, len(ids))
	lowest := l.conf
	for i, id := range ids {
		v, c, ok := l.peek(id)
		if !ok {
			return nil, false
		}
		out[i] = v
		lowest = math.Min(lowest, c)
	}
	l.conf = lowest
	return out, true
}

func mid(a, b r3.Vec) r3.Vec {
	return r3.Scale(0.5, r3.Add(a, b))
}
