package capture

import (
	"testing"
	"time"

	"gocv.io/x/gocv"
)

func TestMockCamera_Playback(t *testing.T) {
	// Create test frames
	frame1 := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame1.Close()
	frame2 := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame2.Close()

	cam := NewMockCamera([]*gocv.Mat{&frame1, &frame2}, false)

	if err := cam.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer cam.Close()

	// Read both frames
	f1, err := cam.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	f1.Close()

	f2, err := cam.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	f2.Close()

	// Third read should fail (no loop)
	_, err = cam.ReadFrame()
	if err == nil {
		t.Error("expected error after all frames consumed")
	}
}

func TestMockCamera_Loop(t *testing.T) {
	frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame.Close()

	cam := NewMockCamera([]*gocv.Mat{&frame}, true)
	cam.Open()
	defer cam.Close()

	// Should loop indefinitely
	for i := 0; i < 5; i++ {
		f, err := cam.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame() iteration %d error = %v", i, err)
		}
		f.Close()
	}
}

func TestMockCamera_SetFPS(t *testing.T) {
	cam := NewMockCamera(nil, false)
	if cam.FPS() != 15 {
		t.Errorf("expected default fps 15, got %d", cam.FPS())
	}
	cam.SetFPS(30)
	cam.SetFPS(0)
	if cam.FPS() != 30 {
		t.Errorf("expected fps 30, got %d", cam.FPS())
	}
}

func TestSyntheticFrames(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping OpenCV test in short mode")
	}

	frames := SyntheticFrames(4, 160, 120)
	defer func() {
		for _, f := range frames {
			f.Close()
		}
	}()

	if len(frames) != 4 {
		t.Fatalf("expected 4 frames, got %d", len(frames))
	}

	fd := NewFreezeDetector(time.Millisecond)
	defer fd.Close()
	now := time.Now()
	for i, f := range frames {
		if f.Cols() != 160 || f.Rows() != 120 {
			t.Errorf("frame %d: unexpected size %dx%d", i, f.Cols(), f.Rows())
		}
		if fd.Observe(f, now.Add(time.Duration(i)*time.Second)) {
			t.Errorf("frame %d: synthetic frames must not look frozen", i)
		}
	}
}
