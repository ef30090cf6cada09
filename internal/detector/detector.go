package detector

import (
	"time"

	"gocv.io/x/gocv"
)

// Detector defines the interface for landmark detection implementations.
type Detector interface {
	// Detect analyzes a video frame and returns the detected pose and hand landmarks.
	// A frame with nobody in view yields a snapshot with no valid landmarks.
	Detect(frame *gocv.Mat) (*Snapshot, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds configuration options for landmark detection.
type Config struct {
	// MaxHands is the maximum number of hands to detect (default: 2).
	MaxHands int `yaml:"max_hands"`

	// ModelComplexity selects the pose model variant (0 lite, 1 full, 2 heavy).
	ModelComplexity int `yaml:"model_complexity"`

	// MinConfidence is the minimum detection confidence threshold (0.0-1.0).
	MinConfidence float64 `yaml:"min_confidence"`

	// MinTrackingConf is the minimum tracking confidence threshold (0.0-1.0).
	MinTrackingConf float64 `yaml:"min_tracking_confidence"`

	// Mirror flips X so the user sees themselves as in a mirror.
	Mirror bool `yaml:"mirror"`

	// ScriptPath overrides the location of the MediaPipe service script.
	ScriptPath string `yaml:"script_path"`

	// IdleTimeout shuts the model process down after this long without frames.
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		MaxHands:        2,
		ModelComplexity: 0,
		MinConfidence:   0.5,
		MinTrackingConf: 0.5,
		Mirror:          true,
		IdleTimeout:     30 * time.Second,
	}
}
