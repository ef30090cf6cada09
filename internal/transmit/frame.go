// Package transmit encodes tracker frames as OSC and sends them to the VR runtime
// over UDP without blocking the caller.
package transmit

import (
	"time"

	"github.com/ayusman/vtrack/internal/detector"
	"github.com/ayusman/vtrack/internal/pose"
)

// TrackerUpdate refreshes or deactivates one virtual tracker.
type TrackerUpdate struct {
	Index   int
	Role    pose.Role
	Pose    pose.Pose
	Enabled bool
}

// HandUpdate carries the pinch button and analog trigger of one hand.
type HandUpdate struct {
	Index   int
	Side    detector.Side
	Pressed bool
	Trigger float64
	// Changed is set on the tick the button state flipped.
	Changed bool
}

// Frame is everything sent on one tick. Frames are built per tick and not retained.
type Frame struct {
	Seq      uint64
	Elapsed  time.Duration
	Trackers []TrackerUpdate
	Hands    []HandUpdate
}

// Empty reports whether the frame carries no updates.
func (f Frame) Empty() bool {
	return len(f.Trackers) == 0 && len(f.Hands) == 0
}
