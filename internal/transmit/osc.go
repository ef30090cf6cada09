package transmit

import (
	"github.com/ayusman/vtrack/internal/detector"
	"github.com/ayusman/vtrack/internal/pose"
	"github.com/hypebeast/go-osc/osc"
)

// OSC addresses understood by Virtual Motion Tracker and VMC receivers.
const (
	AddrVMTRoom    = "/VMT/Room/Unity"
	AddrVMTButton  = "/VMT/Input/Button"
	AddrVMTTrigger = "/VMT/Input/Trigger"
	AddrVMCTracker = "/VMC/Ext/Tra/Pos"
	AddrVMCTime    = "/VMC/Ext/T"
	AddrVMCOK      = "/VMC/Ext/OK"
)

// VMT enable values.
const (
	vmtDisable         = 0
	vmtTracker         = 1
	vmtLeftController  = 2
	vmtRightController = 3
)

// Message is one encoded OSC message. Retryable messages are resent once with the
// next frame when their write fails.
type Message struct {
	OSC       *osc.Message
	Retryable bool
}

// Encode returns the OSC wire form of the message.
func (m Message) Encode() ([]byte, error) {
	return m.OSC.MarshalBinary()
}

// VMTOptions selects how updates map onto VMT devices.
type VMTOptions struct {
	// HandsAsControllers registers hand roles as left/right controllers so the
	// runtime routes button input to them.
	HandsAsControllers bool `yaml:"hands_as_controllers"`
	PinchButton        int  `yaml:"pinch_button"`
	TriggerIndex       int  `yaml:"trigger_index"`
}

// VMTMessages encodes a frame for Virtual Motion Tracker: one room pose per tracker
// update plus a button and a trigger message per hand.
func VMTMessages(f Frame, opts VMTOptions) []Message {
	msgs := make([]Message, 0, len(f.Trackers)+2*len(f.Hands))

	for _, u := range f.Trackers {
		q := pose.Normalize(u.Pose.Orientation)
		p := u.Pose.Position
		m := osc.NewMessage(AddrVMTRoom,
			int32(u.Index),
			int32(vmtEnable(u, opts)),
			float32(0),
			float32(p.X), float32(p.Y), float32(p.Z),
			float32(q.Imag), float32(q.Jmag), float32(q.Kmag), float32(q.Real),
		)
		msgs = append(msgs, Message{OSC: m, Retryable: !u.Enabled})
	}

	for _, h := range f.Hands {
		pressed := int32(0)
		if h.Pressed {
			pressed = 1
		}
		msgs = append(msgs,
			Message{
				OSC:       osc.NewMessage(AddrVMTButton, int32(h.Index), int32(opts.PinchButton), float32(0), pressed),
				Retryable: h.Changed,
			},
			Message{
				OSC: osc.NewMessage(AddrVMTTrigger, int32(h.Index), int32(opts.TriggerIndex), float32(0), float32(h.Trigger)),
			},
		)
	}
	return msgs
}

func vmtEnable(u TrackerUpdate, opts VMTOptions) int {
	if !u.Enabled {
		return vmtDisable
	}
	if opts.HandsAsControllers {
		switch u.Role {
		case pose.LeftHand:
			return vmtLeftController
		case pose.RightHand:
			return vmtRightController
		}
	}
	return vmtTracker
}

// VMCMessages encodes the enabled trackers of a frame for a VMC receiver, followed
// by the frame time and the availability flag. VMC has no deactivate message, so
// disabled trackers are skipped.
func VMCMessages(f Frame) []Message {
	msgs := make([]Message, 0, len(f.Trackers)+2)
	for _, u := range f.Trackers {
		if !u.Enabled {
			continue
		}
		q := pose.Normalize(u.Pose.Orientation)
		p := u.Pose.Position
		msgs = append(msgs, Message{OSC: osc.NewMessage(AddrVMCTracker,
			Serial(u.Role),
			float32(p.X), float32(p.Y), float32(p.Z),
			float32(q.Imag), float32(q.Jmag), float32(q.Kmag), float32(q.Real),
		)})
	}
	msgs = append(msgs,
		Message{OSC: osc.NewMessage(AddrVMCTime, float32(f.Elapsed.Seconds()))},
		Message{OSC: osc.NewMessage(AddrVMCOK, int32(1))},
	)
	return msgs
}

// Serial is the VMC tracker serial for a role.
func Serial(role pose.Role) string {
	return "vtrack_" + role.String()
}

// ReleaseFrame returns a frame that deactivates every given tracker and releases
// both hands' buttons.
func ReleaseFrame(seq uint64, trackers map[pose.Role]int, hands map[detector.Side]int) Frame {
	f := Frame{Seq: seq}
	for _, role := range pose.Roles() {
		idx, ok := trackers[role]
		if !ok {
			continue
		}
		f.Trackers = append(f.Trackers, TrackerUpdate{Index: idx, Role: role, Pose: pose.Pose{Orientation: pose.Identity}})
	}
	for _, side := range []detector.Side{detector.Left, detector.Right} {
		idx, ok := hands[side]
		if !ok {
			continue
		}
		f.Hands = append(f.Hands, HandUpdate{Index: idx, Side: side, Changed: true})
	}
	return f
}
