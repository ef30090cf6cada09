package tracker

import (
	"github.com/ayusman/vtrack/internal/detector"
	"github.com/ayusman/vtrack/internal/pose"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

var worldUp = r3.Vec{Y: 1}

// orientation derives a camera-space orientation for the given source. Local +X
// points toward the user's right, +Y up the body segment and +Z forward.
// Returns false when the landmarks are insufficient or degenerate.
func (l *lookup) orientation(src pose.OrientationSource) (quat.Number, bool) {
	switch src {
	case pose.OrientHips:
		return l.torso(detector.LeftHip, detector.RightHip)
	case pose.OrientShoulders:
		return l.torso(detector.LeftShoulder, detector.RightShoulder)
	case pose.OrientHead:
		return l.head()
	case pose.OrientLeftHand:
		return l.hand(detector.Left)
	case pose.OrientRightHand:
		return l.hand(detector.Right)
	case pose.OrientLeftShin:
		return l.shin(detector.LeftKnee, detector.LeftAnkle)
	case pose.OrientRightShin:
		return l.shin(detector.RightKnee, detector.RightAnkle)
	case pose.OrientLeftFoot:
		return l.foot(detector.LeftHeel, detector.LeftFootIndex, detector.LeftKnee, detector.LeftAnkle)
	case pose.OrientRightFoot:
		return l.foot(detector.RightHeel, detector.RightFootIndex, detector.RightKnee, detector.RightAnkle)
	}
	return pose.Identity, false
}

// torso uses a left/right pair for the across axis and the hip-to-shoulder line
// for up, falling back to world up when the other pair is not visible.
func (l *lookup) torso(left, right detector.LandmarkID) (quat.Number, bool) {
	pair, ok := l.all(left, right)
	if !ok {
		return pose.Identity, false
	}
	across := r3.Sub(pair[1], pair[0])

	up := worldUp
	if spine, ok := l.all(detector.LeftHip, detector.RightHip, detector.LeftShoulder, detector.RightShoulder); ok {
		up = r3.Sub(mid(spine[2], spine[3]), mid(spine[0], spine[1]))
	}
	return pose.FromAxes(across, up)
}

func (l *lookup) head() (quat.Number, bool) {
	ears, ok := l.all(detector.LeftEar, detector.RightEar)
	if !ok {
		return pose.Identity, false
	}
	across := r3.Sub(ears[1], ears[0])

	up := worldUp
	if face, ok := l.all(detector.LeftEye, detector.RightEye, detector.MouthLeft, detector.MouthRight); ok {
		up = r3.Sub(mid(face[0], face[1]), mid(face[2], face[3]))
	}
	return pose.FromAxes(across, up)
}

// hand prefers the hand model and falls back to the coarse pose hand landmarks.
// Up runs from the wrist to the knuckles; across runs from the little finger
// side to the thumb side, mirrored for the left hand so +X stays the user's right.
func (l *lookup) hand(side detector.Side) (quat.Number, bool) {
	ids := []detector.LandmarkID{
		detector.HandLandmark(side, detector.Wrist),
		detector.HandLandmark(side, detector.IndexMCP),
		detector.HandLandmark(side, detector.PinkyMCP),
	}
	pts, ok := l.all(ids...)
	if !ok {
		if side == detector.Left {
			pts, ok = l.all(detector.LeftWrist, detector.LeftIndex, detector.LeftPinky)
		} else {
			pts, ok = l.all(detector.RightWrist, detector.RightIndex, detector.RightPinky)
		}
		if !ok {
			return pose.Identity, false
		}
	}
	wrist, index, pinky := pts[0], pts[1], pts[2]

	up := r3.Sub(mid(index, pinky), wrist)
	across := r3.Sub(index, pinky)
	if side == detector.Left {
		across = r3.Scale(-1, across)
	}
	return pose.FromAxes(across, up)
}

func (l *lookup) shin(knee, ankle detector.LandmarkID) (quat.Number, bool) {
	pts, ok := l.all(knee, ankle)
	if !ok {
		return pose.Identity, false
	}
	up := r3.Sub(pts[0], pts[1])

	across := r3.Vec{X: 1}
	if hips, ok := l.all(detector.LeftHip, detector.RightHip); ok {
		across = r3.Sub(hips[1], hips[0])
	}
	return pose.FromAxes(across, up)
}

// foot points +Z from heel to toe. Up follows the shin when the knee is visible.
func (l *lookup) foot(heel, toe, knee, ankle detector.LandmarkID) (quat.Number, bool) {
	pts, ok := l.all(heel, toe)
	if !ok {
		return pose.Identity, false
	}
	forward := r3.Sub(pts[1], pts[0])

	up := worldUp
	if shin, ok := l.all(knee, ankle); ok {
		up = r3.Sub(shin[0], shin[1])
	}
	across := r3.Cross(up, forward)
	return pose.FromAxes(across, up)
}
