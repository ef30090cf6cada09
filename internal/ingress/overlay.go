package ingress

import (
	"fmt"
	"image"
	"image/color"

	"github.com/ayusman/vtrack/internal/detector"
	"gocv.io/x/gocv"
)

type bone struct{ a, b detector.LandmarkID }

var poseBones = []bone{
	{detector.LeftShoulder, detector.RightShoulder},
	{detector.LeftShoulder, detector.LeftElbow},
	{detector.LeftElbow, detector.LeftWrist},
	{detector.RightShoulder, detector.RightElbow},
	{detector.RightElbow, detector.RightWrist},
	{detector.LeftShoulder, detector.LeftHip},
	{detector.RightShoulder, detector.RightHip},
	{detector.LeftHip, detector.RightHip},
	{detector.LeftHip, detector.LeftKnee},
	{detector.LeftKnee, detector.LeftAnkle},
	{detector.LeftAnkle, detector.LeftHeel},
	{detector.LeftHeel, detector.LeftFootIndex},
	{detector.RightHip, detector.RightKnee},
	{detector.RightKnee, detector.RightAnkle},
	{detector.RightAnkle, detector.RightHeel},
	{detector.RightHeel, detector.RightFootIndex},
	{detector.LeftEar, detector.LeftEye},
	{detector.LeftEye, detector.Nose},
	{detector.Nose, detector.RightEye},
	{detector.RightEye, detector.RightEar},
}

// handBones are pairs of hand-local indices.
var handBones = [][2]int{
	{detector.Wrist, detector.ThumbCMC}, {detector.ThumbCMC, detector.ThumbMCP},
	{detector.ThumbMCP, detector.ThumbIP}, {detector.ThumbIP, detector.ThumbTip},
	{detector.Wrist, detector.IndexMCP}, {detector.IndexMCP, detector.IndexPIP},
	{detector.IndexPIP, detector.IndexDIP}, {detector.IndexDIP, detector.IndexTip},
	{detector.IndexMCP, detector.MiddleMCP}, {detector.MiddleMCP, detector.MiddlePIP},
	{detector.MiddlePIP, detector.MiddleDIP}, {detector.MiddleDIP, detector.MiddleTip},
	{detector.MiddleMCP, detector.RingMCP}, {detector.RingMCP, detector.RingPIP},
	{detector.RingPIP, detector.RingDIP}, {detector.RingDIP, detector.RingTip},
	{detector.RingMCP, detector.PinkyMCP}, {detector.Wrist, detector.PinkyMCP},
	{detector.PinkyMCP, detector.PinkyPIP}, {detector.PinkyPIP, detector.PinkyDIP},
	{detector.PinkyDIP, detector.PinkyTip},
}

var (
	boneColor  = color.RGBA{G: 220, B: 255, A: 255}
	jointColor = color.RGBA{R: 255, G: 160, A: 255}
	handColor  = color.RGBA{R: 255, B: 200, A: 255}
)

// pixel maps a camera-space point to image coordinates.
func pixel(p detector.Point3D, width, height int) image.Point {
	return image.Pt(
		int((p.X+0.5)*float64(width)),
		int((0.5-p.Y)*float64(height)),
	)
}

// RenderPreview encodes frame as JPEG with the snapshot skeleton drawn over it.
// Landmarks are in mirrored camera space when mirror is set, so the image is
// flipped to match before drawing.
func RenderPreview(frame *gocv.Mat, snap *detector.Snapshot, mirror bool, quality int) ([]byte, error) {
	img := gocv.NewMat()
	defer img.Close()
	if mirror {
		gocv.Flip(*frame, &img, 1)
	} else {
		frame.CopyTo(&img)
	}

	w, h := img.Cols(), img.Rows()
	minConf := 0.5

	line := func(a, b detector.LandmarkID, c color.RGBA) {
		la, oka := snap.Get(a)
		lb, okb := snap.Get(b)
		if !oka || !okb || la.Confidence < minConf || lb.Confidence < minConf {
			return
		}
		gocv.Line(&img, pixel(la.Point3D, w, h), pixel(lb.Point3D, w, h), c, 2)
	}

	if snap != nil {
		for _, b := range poseBones {
			line(b.a, b.b, boneColor)
		}
		for id := detector.LandmarkID(0); id < detector.NumPoseLandmarks; id++ {
			if l, ok := snap.Get(id); ok && l.Confidence >= minConf {
				gocv.Circle(&img, pixel(l.Point3D, w, h), 3, jointColor, -1)
			}
		}
		for _, side := range []detector.Side{detector.Left, detector.Right} {
			for _, b := range handBones {
				line(detector.HandLandmark(side, b[0]), detector.HandLandmark(side, b[1]), handColor)
			}
		}
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, fmt.Errorf("encode preview: %w", err)
	}
	defer buf.Close()
	return append([]byte(nil), buf.GetBytes()...), nil
}
