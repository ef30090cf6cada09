// Package detector provides landmark detection interfaces and types for body and hand tracking.
package detector

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// LandmarkID identifies one landmark in the fixed landmark set: the 33 pose landmarks
// followed by 21 landmarks for the left hand and 21 for the right hand.
type LandmarkID int

// Pose landmark indices following MediaPipe Pose convention.
// See: https://developers.google.com/mediapipe/solutions/vision/pose_landmarker
const (
	Nose LandmarkID = iota
	LeftEyeInner
	LeftEye
	LeftEyeOuter
	RightEyeInner
	RightEye
	RightEyeOuter
	LeftEar
	RightEar
	MouthLeft
	MouthRight
	LeftShoulder
	RightShoulder
	LeftElbow
	RightElbow
	LeftWrist
	RightWrist
	LeftPinky
	RightPinky
	LeftIndex
	RightIndex
	LeftThumb
	RightThumb
	LeftHip
	RightHip
	LeftKnee
	RightKnee
	LeftAnkle
	RightAnkle
	LeftHeel
	RightHeel
	LeftFootIndex
	RightFootIndex
	NumPoseLandmarks
)

// Hand landmark indices following MediaPipe convention.
// See: https://developers.google.com/mediapipe/solutions/vision/hand_landmarker
const (
	Wrist            = 0
	ThumbCMC         = 1
	ThumbMCP         = 2
	ThumbIP          = 3
	ThumbTip         = 4
	IndexMCP         = 5
	IndexPIP         = 6
	IndexDIP         = 7
	IndexTip         = 8
	MiddleMCP        = 9
	MiddlePIP        = 10
	MiddleDIP        = 11
	MiddleTip        = 12
	RingMCP          = 13
	RingPIP          = 14
	RingDIP          = 15
	RingTip          = 16
	PinkyMCP         = 17
	PinkyPIP         = 18
	PinkyDIP         = 19
	PinkyTip         = 20
	NumHandLandmarks = 21
)

// NumLandmarks is the size of the full landmark set.
const NumLandmarks = NumPoseLandmarks + 2*NumHandLandmarks

// Side selects the user's left or right hand.
type Side int

const (
	Left Side = iota
	Right
)

// String returns "left" or "right".
func (s Side) String() string {
	if s == Right {
		return "right"
	}
	return "left"
}

// HandLandmark returns the ID of a hand landmark index (Wrist..PinkyTip) for the given side.
func HandLandmark(side Side, index int) LandmarkID {
	return NumPoseLandmarks + LandmarkID(int(side)*NumHandLandmarks+index)
}

var poseNames = [NumPoseLandmarks]string{
	"nose", "left_eye_inner", "left_eye", "left_eye_outer",
	"right_eye_inner", "right_eye", "right_eye_outer",
	"left_ear", "right_ear", "mouth_left", "mouth_right",
	"left_shoulder", "right_shoulder", "left_elbow", "right_elbow",
	"left_wrist", "right_wrist", "left_pinky", "right_pinky",
	"left_index", "right_index", "left_thumb", "right_thumb",
	"left_hip", "right_hip", "left_knee", "right_knee",
	"left_ankle", "right_ankle", "left_heel", "right_heel",
	"left_foot_index", "right_foot_index",
}

var handNames = [NumHandLandmarks]string{
	"wrist", "thumb_cmc", "thumb_mcp", "thumb_ip", "thumb_tip",
	"index_mcp", "index_pip", "index_dip", "index_tip",
	"middle_mcp", "middle_pip", "middle_dip", "middle_tip",
	"ring_mcp", "ring_pip", "ring_dip", "ring_tip",
	"pinky_mcp", "pinky_pip", "pinky_dip", "pinky_tip",
}

var landmarksByName = func() map[string]LandmarkID {
	m := make(map[string]LandmarkID, NumLandmarks)
	for id := LandmarkID(0); id < NumLandmarks; id++ {
		m[id.String()] = id
	}
	return m
}()

// String returns the stable snake_case name of the landmark, e.g. "left_ankle"
// or "right_hand.thumb_tip".
func (id LandmarkID) String() string {
	switch {
	case id >= 0 && id < NumPoseLandmarks:
		return poseNames[id]
	case id >= NumPoseLandmarks && id < NumLandmarks:
		i := int(id - NumPoseLandmarks)
		side := Side(i / NumHandLandmarks)
		return side.String() + "_hand." + handNames[i%NumHandLandmarks]
	default:
		return fmt.Sprintf("landmark(%d)", int(id))
	}
}

// Valid reports whether the ID is inside the landmark set.
func (id LandmarkID) Valid() bool {
	return id >= 0 && id < NumLandmarks
}

// ParseLandmark returns the landmark with the given name.
func ParseLandmark(name string) (LandmarkID, error) {
	id, ok := landmarksByName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("unknown landmark %q", name)
	}
	return id, nil
}

// MarshalText implements encoding.TextMarshaler.
func (id LandmarkID) MarshalText() ([]byte, error) {
	if !id.Valid() {
		return nil, fmt.Errorf("invalid landmark id %d", int(id))
	}
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *LandmarkID) UnmarshalText(text []byte) error {
	parsed, err := ParseLandmark(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Point3D represents a 3D point in space with x, y, z coordinates.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// IsFinite reports whether all coordinates are finite numbers.
func (p Point3D) IsFinite() bool {
	for _, v := range [3]float64{p.X, p.Y, p.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Distance calculates the Euclidean distance between two 3D points.
func Distance(a, b Point3D) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	dz := a.Z - b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// FromNormalized converts MediaPipe normalized image coordinates (x right, y down,
// z away from the camera) to camera space: origin at the image centre, +X right,
// +Y up, +Z toward the viewer. Mirror flips X for a selfie-style view.
func FromNormalized(x, y, z float64, mirror bool) Point3D {
	p := Point3D{X: x - 0.5, Y: 0.5 - y, Z: -z}
	if mirror {
		p.X = -p.X
	}
	return p
}

// Landmark is one detected point with its confidence. Valid is false when the model
// did not report the point in this frame.
type Landmark struct {
	Point3D
	Confidence float64 `json:"confidence"`
	Valid      bool    `json:"valid"`
}

// Snapshot is the landmark set captured by one inference cycle.
// It is immutable once handed to the pipeline.
type Snapshot struct {
	Seq       uint64                 `json:"seq"`
	Timestamp time.Time              `json:"timestamp"`
	Points    [NumLandmarks]Landmark `json:"points"`
}

// NewSnapshot creates an empty snapshot with the given capture time.
func NewSnapshot(ts time.Time) *Snapshot {
	return &Snapshot{Timestamp: ts}
}

// Set stores a landmark position and confidence.
func (s *Snapshot) Set(id LandmarkID, p Point3D, confidence float64) {
	if !id.Valid() {
		return
	}
	s.Points[id] = Landmark{Point3D: p, Confidence: confidence, Valid: true}
}

// Get returns the landmark and whether it was reported in this frame.
func (s *Snapshot) Get(id LandmarkID) (Landmark, bool) {
	if s == nil || !id.Valid() {
		return Landmark{}, false
	}
	l := s.Points[id]
	return l, l.Valid
}

// Confidence returns the landmark confidence, or 0 when it is missing.
func (s *Snapshot) Confidence(id LandmarkID) float64 {
	l, ok := s.Get(id)
	if !ok {
		return 0
	}
	return l.Confidence
}

// HasHand reports whether the hand model produced landmarks for the given side.
func (s *Snapshot) HasHand(side Side) bool {
	_, ok := s.Get(HandLandmark(side, Wrist))
	return ok
}

// ValidCount returns the number of landmarks reported in this frame.
func (s *Snapshot) ValidCount() int {
	if s == nil {
		return 0
	}
	n := 0
	for i := range s.Points {
		if s.Points[i].Valid {
			n++
		}
	}
	return n
}

// HandScale returns the distance from wrist to middle finger MCP for the given hand,
// the reference length used to normalize hand-local distances.
// Returns false when the hand is missing or degenerate.
func (s *Snapshot) HandScale(side Side) (float64, bool) {
	wrist, ok := s.Get(HandLandmark(side, Wrist))
	if !ok {
		return 0, false
	}
	mcp, ok := s.Get(HandLandmark(side, MiddleMCP))
	if !ok {
		return 0, false
	}
	scale := Distance(wrist.Point3D, mcp.Point3D)
	if scale < 1e-10 {
		return 0, false
	}
	return scale, true
}
