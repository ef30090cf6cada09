package gesture

import (
	"math"
	"testing"
	"time"

	"github.com/ayusman/vtrack/internal/detector"
)

var start = time.Unix(1_700_000_000, 0)

const frame = 33 * time.Millisecond

func bandConfig(debounce time.Duration) Config {
	return Config{
		CloseDistance: 0.018,
		OpenDistance:  0.025,
		Debounce:      debounce,
		HoldFrames:    10,
		MinConfidence: 0.5,
	}
}

// feed observes each distance one frame apart and returns the transitions seen.
func feed(d *Detector, side detector.Side, at time.Time, distances ...float64) (transitions []bool, last State, end time.Time) {
	for _, dist := range distances {
		s, changed := d.Observe(side, dist, at)
		if changed {
			transitions = append(transitions, s.Pinching)
		}
		last = s
		at = at.Add(frame)
	}
	return transitions, last, at
}

func TestDetector_PinchAndRelease(t *testing.T) {
	d := NewDetector(bandConfig(0))

	transitions, last, _ := feed(d, detector.Right, start, 0.02, 0.015, 0.01, 0.015, 0.02, 0.03)

	if len(transitions) != 2 {
		t.Fatalf("expected 2 transitions, got %d (%v)", len(transitions), transitions)
	}
	if !transitions[0] || transitions[1] {
		t.Errorf("expected pinch then release, got %v", transitions)
	}
	if last.Pinching || last.Phase != Open {
		t.Errorf("expected open hand at the end, got %+v", last)
	}
	if d.State(detector.Left).Tracked {
		t.Error("other hand must be untouched")
	}
}

func TestDetector_Hysteresis(t *testing.T) {
	t.Run("oscillation inside the band never transitions", func(t *testing.T) {
		d := NewDetector(bandConfig(0))
		transitions, last, _ := feed(d, detector.Left, start, 0.019, 0.024, 0.0185, 0.0245, 0.02, 0.022, 0.019)
		if len(transitions) != 0 {
			t.Errorf("expected no transitions, got %v", transitions)
		}
		if last.Phase != Open {
			t.Errorf("expected Open, got %v", last.Phase)
		}
	})

	t.Run("oscillation inside the band keeps a pinch", func(t *testing.T) {
		d := NewDetector(bandConfig(0))
		feed(d, detector.Left, start, 0.01)
		transitions, last, _ := feed(d, detector.Left, start.Add(frame), 0.019, 0.024, 0.0185, 0.0245)
		if len(transitions) != 0 {
			t.Errorf("expected no transitions, got %v", transitions)
		}
		if !last.Pinching {
			t.Error("expected pinch to hold inside the band")
		}
	})
}

func TestDetector_Debounce(t *testing.T) {
	t.Run("held below close for the window transitions once", func(t *testing.T) {
		d := NewDetector(bandConfig(100 * time.Millisecond))

		transitions, last, _ := feed(d, detector.Right, start, 0.03, 0.01, 0.01, 0.01, 0.01, 0.01, 0.01, 0.01)

		if len(transitions) != 1 || !transitions[0] {
			t.Fatalf("expected exactly one pinch transition, got %v", transitions)
		}
		if last.Phase != Pinched {
			t.Errorf("expected Pinched, got %v", last.Phase)
		}
	})

	t.Run("pending phase reports dwell", func(t *testing.T) {
		d := NewDetector(bandConfig(100 * time.Millisecond))
		_, last, _ := feed(d, detector.Right, start, 0.01, 0.01)
		if last.Phase != Closing {
			t.Fatalf("expected Closing, got %v", last.Phase)
		}
		if last.Dwell != frame {
			t.Errorf("expected dwell %v, got %v", frame, last.Dwell)
		}
		if last.Pinching {
			t.Error("a pending pinch must not report pinching")
		}
	})

	t.Run("reversal inside the window is discarded", func(t *testing.T) {
		d := NewDetector(bandConfig(100 * time.Millisecond))
		transitions, last, _ := feed(d, detector.Right, start, 0.01, 0.01, 0.03, 0.03)
		if len(transitions) != 0 {
			t.Errorf("expected the short pinch to be discarded, got %v", transitions)
		}
		if last.Phase != Open {
			t.Errorf("expected Open, got %v", last.Phase)
		}
	})

	t.Run("short release inside the window is discarded", func(t *testing.T) {
		d := NewDetector(bandConfig(100 * time.Millisecond))
		_, _, at := feed(d, detector.Right, start, 0.01, 0.01, 0.01, 0.01, 0.01)
		if !d.State(detector.Right).Pinching {
			t.Fatal("expected setup to reach a pinch")
		}
		transitions, last, _ := feed(d, detector.Right, at, 0.03, 0.01, 0.01)
		if len(transitions) != 0 {
			t.Errorf("expected the short release to be discarded, got %v", transitions)
		}
		if last.Phase != Pinched {
			t.Errorf("expected Pinched, got %v", last.Phase)
		}
	})

	t.Run("occlusion restarts a pending pinch", func(t *testing.T) {
		d := NewDetector(bandConfig(100 * time.Millisecond))
		_, _, at := feed(d, detector.Right, start, 0.01)
		for i := 0; i < 5; i++ {
			s, changed := d.Update(detector.Right, nil, at)
			if changed || s.Phase != Open || s.Dwell != 0 {
				t.Fatalf("miss %d: expected the pending pinch to be dropped, got %+v", i, s)
			}
			at = at.Add(frame)
		}

		s, changed := d.Observe(detector.Right, 0.01, at)
		if changed || s.Pinching {
			t.Fatalf("expected no pinch right after the occlusion, got %+v", s)
		}
		if s.Phase != Closing || s.Dwell != 0 {
			t.Errorf("expected a fresh Closing phase, got %v dwell %v", s.Phase, s.Dwell)
		}
	})

	t.Run("occlusion restarts a pending release", func(t *testing.T) {
		d := NewDetector(bandConfig(100 * time.Millisecond))
		_, _, at := feed(d, detector.Right, start, 0.01, 0.01, 0.01, 0.01, 0.01, 0.03)
		if d.State(detector.Right).Phase != Opening {
			t.Fatalf("expected setup to reach Opening, got %v", d.State(detector.Right).Phase)
		}
		for i := 0; i < 5; i++ {
			d.Update(detector.Right, nil, at)
			at = at.Add(frame)
		}

		s, changed := d.Observe(detector.Right, 0.03, at)
		if changed || !s.Pinching || s.Phase != Opening {
			t.Errorf("expected the release to wait a full window again, got %+v changed=%v", s, changed)
		}
	})
}

func TestDetector_MissingHand(t *testing.T) {
	cfg := bandConfig(0)
	cfg.HoldFrames = 3
	d := NewDetector(cfg)

	snap := detector.NewSnapshot(start)
	detector.SetHand(snap, detector.Left, detector.Point3D{}, 0.01, 0.9)

	s, changed := d.Update(detector.Left, snap, start)
	if !changed || !s.Pinching {
		t.Fatalf("expected pinch from snapshot, got %+v", s)
	}
	trigger := s.Trigger

	empty := detector.NewSnapshot(start)
	at := start
	for i := 1; i <= 3; i++ {
		at = at.Add(frame)
		s, changed = d.Update(detector.Left, empty, at)
		if changed || !s.Pinching || !s.Tracked {
			t.Fatalf("miss %d: expected frozen pinch, got %+v", i, s)
		}
		if s.Trigger != trigger {
			t.Errorf("miss %d: expected frozen trigger %f, got %f", i, trigger, s.Trigger)
		}
	}

	s, changed = d.Update(detector.Left, nil, at.Add(frame))
	if !changed || s.Pinching || s.Tracked {
		t.Fatalf("expected a single release after the hold, got %+v changed=%v", s, changed)
	}

	s, changed = d.Update(detector.Left, nil, at.Add(2*frame))
	if changed {
		t.Error("expected no further transitions while untracked")
	}
	if s.Misses != 5 {
		t.Errorf("expected 5 misses, got %d", s.Misses)
	}
}

func TestDetector_LowConfidenceIsMissing(t *testing.T) {
	d := NewDetector(bandConfig(0))
	snap := detector.NewSnapshot(start)
	detector.SetHand(snap, detector.Right, detector.Point3D{}, 0.01, 0.2)

	s, changed := d.Update(detector.Right, snap, start)
	if changed || s.Tracked {
		t.Errorf("expected low-confidence hand to be ignored, got %+v", s)
	}
}

func TestDetector_Trigger(t *testing.T) {
	d := NewDetector(bandConfig(0))
	tests := []struct {
		dist float64
		want float64
	}{
		{0.03, 0},
		{0.025, 0},
		{0.0215, 0.5},
		{0.018, 1},
		{0.005, 1},
	}
	for _, tt := range tests {
		s, _ := d.Observe(detector.Right, tt.dist, start)
		if math.Abs(s.Trigger-tt.want) > 1e-9 {
			t.Errorf("distance %v: expected trigger %v, got %v", tt.dist, tt.want, s.Trigger)
		}
	}
}

func TestDetector_Relative(t *testing.T) {
	cfg := Config{CloseDistance: 0.3, OpenDistance: 0.5, HoldFrames: 10, MinConfidence: 0.5, Relative: true}
	d := NewDetector(cfg)

	snap := detector.NewSnapshot(start)
	// Hand scale is 0.065, so 0.013 is 0.2 of the hand.
	detector.SetHand(snap, detector.Right, detector.Point3D{X: 0.2}, 0.013, 0.9)

	s, changed := d.Update(detector.Right, snap, start)
	if !changed || !s.Pinching {
		t.Fatalf("expected relative pinch, got %+v", s)
	}
	if math.Abs(s.Distance-0.2) > 1e-9 {
		t.Errorf("expected relative distance 0.2, got %f", s.Distance)
	}
}

func TestConfig_Validate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
	bad := bandConfig(0)
	bad.OpenDistance = bad.CloseDistance
	if err := bad.Validate(); err == nil {
		t.Error("expected error for empty hysteresis band")
	}
}
