package capture

import (
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// FreezeDetector spots a camera that keeps returning the same buffer. A live sensor
// always shows some pixel noise between frames, so a run of pixel-identical frames
// longer than the timeout means the driver stalled even though reads succeed.
type FreezeDetector struct {
	timeout   time.Duration
	prevGray  gocv.Mat
	hasPrev   bool
	unchanged time.Time
	mu        sync.Mutex
}

// NewFreezeDetector creates a FreezeDetector that reports a stall once frames have
// been identical for longer than timeout.
func NewFreezeDetector(timeout time.Duration) *FreezeDetector {
	return &FreezeDetector{
		timeout:  timeout,
		prevGray: gocv.NewMat(),
	}
}

// Observe compares a frame with the previous one at time now and reports whether
// the feed is frozen.
func (f *FreezeDetector) Observe(frame *gocv.Mat, now time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if frame == nil || frame.Empty() {
		return false
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if frame.Channels() > 1 {
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}

	if !f.hasPrev || gray.Rows() != f.prevGray.Rows() || gray.Cols() != f.prevGray.Cols() {
		gray.CopyTo(&f.prevGray)
		f.hasPrev = true
		f.unchanged = time.Time{}
		return false
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(gray, f.prevGray, &diff)
	changed := gocv.CountNonZero(diff) > 0
	gray.CopyTo(&f.prevGray)

	if changed {
		f.unchanged = time.Time{}
		return false
	}
	if f.unchanged.IsZero() {
		f.unchanged = now
	}
	return f.timeout > 0 && now.Sub(f.unchanged) > f.timeout
}

// Reset forgets the previous frame, for use after the camera is reopened.
func (f *FreezeDetector) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hasPrev = false
	f.unchanged = time.Time{}
}

// Close releases resources used by the detector.
func (f *FreezeDetector) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.prevGray.Empty() {
		f.prevGray.Close()
		f.prevGray = gocv.NewMat()
	}
	f.hasPrev = false
}
