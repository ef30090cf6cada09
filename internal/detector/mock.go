package detector

import (
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu   sync.Mutex
	snap *Snapshot
	err  error
	seq  uint64
	now  func() time.Time
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{now: time.Now}
}

// SetSnapshot sets the landmarks that will be returned by Detect.
// A nil snapshot makes Detect report an empty frame.
func (m *MockDetector) SetSnapshot(snap *Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = snap
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Detect returns a copy of the configured snapshot stamped with a fresh sequence
// number and capture time, or the configured error.
func (m *MockDetector) Detect(frame *gocv.Mat) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}

	m.seq++
	var out Snapshot
	if m.snap != nil {
		out = *m.snap
	}
	out.Seq = m.seq
	out.Timestamp = m.now()
	return &out, nil
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// StandingSnapshot returns a preset snapshot of a person standing squarely facing a
// mirrored camera: hips centred at the origin, ankles 0.42 below, head 0.42 above.
// The user's right side is at +X. Every pose landmark has confidence 0.95; no hands.
func StandingSnapshot(ts time.Time) *Snapshot {
	snap := NewSnapshot(ts)
	const conf = 0.95

	set := func(id LandmarkID, x, y, z float64) {
		snap.Set(id, Point3D{X: x, Y: y, Z: z}, conf)
	}

	// Head
	set(Nose, 0, 0.42, 0.02)
	set(LeftEyeInner, -0.008, 0.44, 0.012)
	set(LeftEye, -0.015, 0.44, 0.01)
	set(LeftEyeOuter, -0.022, 0.44, 0.008)
	set(RightEyeInner, 0.008, 0.44, 0.012)
	set(RightEye, 0.015, 0.44, 0.01)
	set(RightEyeOuter, 0.022, 0.44, 0.008)
	set(LeftEar, -0.035, 0.43, -0.02)
	set(RightEar, 0.035, 0.43, -0.02)
	set(MouthLeft, -0.01, 0.40, 0.01)
	set(MouthRight, 0.01, 0.40, 0.01)

	// Arms hanging at the sides
	set(LeftShoulder, -0.09, 0.30, 0)
	set(RightShoulder, 0.09, 0.30, 0)
	set(LeftElbow, -0.11, 0.15, 0)
	set(RightElbow, 0.11, 0.15, 0)
	set(LeftWrist, -0.12, 0.02, 0.02)
	set(RightWrist, 0.12, 0.02, 0.02)
	set(LeftPinky, -0.13, -0.01, 0.02)
	set(RightPinky, 0.13, -0.01, 0.02)
	set(LeftIndex, -0.12, -0.02, 0.03)
	set(RightIndex, 0.12, -0.02, 0.03)
	set(LeftThumb, -0.11, -0.005, 0.03)
	set(RightThumb, 0.11, -0.005, 0.03)

	// Legs
	set(LeftHip, -0.06, 0, 0)
	set(RightHip, 0.06, 0, 0)
	set(LeftKnee, -0.06, -0.22, 0.01)
	set(RightKnee, 0.06, -0.22, 0.01)
	set(LeftAnkle, -0.06, -0.42, 0)
	set(RightAnkle, 0.06, -0.42, 0)
	set(LeftHeel, -0.06, -0.44, -0.02)
	set(RightHeel, 0.06, -0.44, -0.02)
	set(LeftFootIndex, -0.06, -0.45, 0.05)
	set(RightFootIndex, 0.06, -0.45, 0.05)

	return snap
}

// SetHand writes a preset open hand for the given side into snap, with the wrist at
// the given position, fingers pointing up and the thumb tip placed pinchDistance
// below the index tip.
func SetHand(snap *Snapshot, side Side, wrist Point3D, pinchDistance, score float64) {
	// s points from the little finger toward the thumb.
	s := 1.0
	if side == Left {
		s = -1.0
	}

	offsets := [NumHandLandmarks]Point3D{
		Wrist:     {0, 0, 0},
		ThumbCMC:  {s * 0.02, 0.02, 0.01},
		ThumbMCP:  {s * 0.035, 0.035, 0.015},
		ThumbIP:   {s * 0.045, 0.05, 0.02},
		IndexMCP:  {s * 0.025, 0.06, 0},
		IndexPIP:  {s * 0.028, 0.08, 0.01},
		IndexDIP:  {s * 0.03, 0.09, 0.015},
		IndexTip:  {s * 0.03, 0.10, 0.02},
		MiddleMCP: {0, 0.065, 0},
		MiddlePIP: {0, 0.09, 0},
		MiddleDIP: {0, 0.105, 0},
		MiddleTip: {0, 0.12, 0},
		RingMCP:   {-s * 0.02, 0.06, 0},
		RingPIP:   {-s * 0.021, 0.08, 0},
		RingDIP:   {-s * 0.022, 0.095, 0},
		RingTip:   {-s * 0.022, 0.11, 0},
		PinkyMCP:  {-s * 0.035, 0.05, 0},
		PinkyPIP:  {-s * 0.038, 0.065, 0},
		PinkyDIP:  {-s * 0.04, 0.078, 0},
		PinkyTip:  {-s * 0.04, 0.09, 0},
	}
	offsets[ThumbTip] = Point3D{
		X: offsets[IndexTip].X,
		Y: offsets[IndexTip].Y - pinchDistance,
		Z: offsets[IndexTip].Z,
	}

	for i, o := range offsets {
		snap.Set(HandLandmark(side, i), Point3D{
			X: wrist.X + o.X,
			Y: wrist.Y + o.Y,
			Z: wrist.Z + o.Z,
		}, score)
	}
}

// ClearHand removes every landmark of the given hand from snap.
func ClearHand(snap *Snapshot, side Side) {
	for i := 0; i < NumHandLandmarks; i++ {
		snap.Points[HandLandmark(side, i)] = Landmark{}
	}
}
