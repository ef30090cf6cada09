// Package capture provides camera capture functionality using GoCV (OpenCV).
package capture

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// Default camera settings
const (
	DefaultFPS    = 30
	DefaultWidth  = 640
	DefaultHeight = 480
)

// ErrCameraNotOpen is returned when trying to read from a camera that is not open.
var ErrCameraNotOpen = errors.New("camera is not open")

// Config selects the capture device and the requested format.
type Config struct {
	Device int `yaml:"device"`
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
	FPS    int `yaml:"fps"`
	// OpenAttempts is how many times Open tries the configured device before
	// falling back to device 0.
	OpenAttempts int           `yaml:"open_attempts"`
	OpenDelay    time.Duration `yaml:"open_delay"`
}

// DefaultConfig returns the default camera settings.
func DefaultConfig() Config {
	return Config{
		Device:       0,
		Width:        DefaultWidth,
		Height:       DefaultHeight,
		FPS:          DefaultFPS,
		OpenAttempts: 3,
		OpenDelay:    500 * time.Millisecond,
	}
}

// Camera defines the interface for camera capture implementations.
type Camera interface {
	Open() error
	Close() error
	ReadFrame() (*gocv.Mat, error)
	SetFPS(fps int)
	FPS() int
	IsOpen() bool
}

// opener opens a capture device; tests replace it.
type opener func(device int) (*gocv.VideoCapture, error)

func openDevice(device int) (*gocv.VideoCapture, error) {
	return gocv.OpenVideoCapture(device)
}

// cameraImpl manages video capture from a camera device using GoCV.
type cameraImpl struct {
	cfg     Config
	open    opener
	capture *gocv.VideoCapture
	mu      sync.Mutex
	running bool
	device  int
}

// NewCamera creates a new Camera for the given device with default settings.
func NewCamera(deviceID int) Camera {
	cfg := DefaultConfig()
	cfg.Device = deviceID
	return NewCameraWithConfig(cfg)
}

// NewCameraWithConfig creates a new Camera. Zero fields take their defaults.
func NewCameraWithConfig(cfg Config) Camera {
	def := DefaultConfig()
	if cfg.Width <= 0 {
		cfg.Width = def.Width
	}
	if cfg.Height <= 0 {
		cfg.Height = def.Height
	}
	if cfg.FPS <= 0 {
		cfg.FPS = def.FPS
	}
	if cfg.OpenAttempts <= 0 {
		cfg.OpenAttempts = def.OpenAttempts
	}
	return &cameraImpl{
		cfg:    cfg,
		open:   openDevice,
		device: cfg.Device,
	}
}

// Open opens the configured device, retrying a few times. When the device never
// opens and it is not device 0, device 0 is tried once as a fallback.
func (c *cameraImpl) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	var lastErr error
	for attempt := 1; attempt <= c.cfg.OpenAttempts; attempt++ {
		capture, err := c.tryOpen(c.cfg.Device)
		if err == nil {
			c.attach(capture, c.cfg.Device)
			return nil
		}
		lastErr = err
		log.Printf("Camera %d open attempt %d/%d failed: %v", c.cfg.Device, attempt, c.cfg.OpenAttempts, err)
		if attempt < c.cfg.OpenAttempts && c.cfg.OpenDelay > 0 {
			time.Sleep(c.cfg.OpenDelay)
		}
	}

	if c.cfg.Device != 0 {
		capture, err := c.tryOpen(0)
		if err == nil {
			log.Printf("Camera %d unavailable, using device 0", c.cfg.Device)
			c.attach(capture, 0)
			return nil
		}
		lastErr = err
	}

	return fmt.Errorf("open camera %d: %w", c.cfg.Device, lastErr)
}

func (c *cameraImpl) tryOpen(device int) (*gocv.VideoCapture, error) {
	capture, err := c.open(device)
	if err != nil {
		return nil, err
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("device %d did not open", device)
	}
	return capture, nil
}

func (c *cameraImpl) attach(capture *gocv.VideoCapture, device int) {
	capture.Set(gocv.VideoCaptureFrameWidth, float64(c.cfg.Width))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(c.cfg.Height))
	capture.Set(gocv.VideoCaptureFPS, float64(c.cfg.FPS))

	c.capture = capture
	c.device = device
	c.running = true
}

// Close closes the camera and releases resources.
func (c *cameraImpl) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		c.running = false
		return nil
	}

	err := c.capture.Close()
	c.capture = nil
	c.running = false

	return err
}

// ReadFrame reads a single frame from the camera.
// The caller is responsible for closing the returned Mat.
func (c *cameraImpl) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		return nil, ErrCameraNotOpen
	}

	mat := gocv.NewMat()
	if ok := c.capture.Read(&mat); !ok {
		mat.Close()
		return nil, fmt.Errorf("failed to read frame from camera %d", c.device)
	}

	if mat.Empty() {
		mat.Close()
		return nil, errors.New("captured frame is empty")
	}

	return &mat, nil
}

// SetFPS sets the frames per second for capture.
// Values less than or equal to 0 are ignored.
func (c *cameraImpl) SetFPS(fps int) {
	if fps <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cfg.FPS = fps

	if c.capture != nil {
		c.capture.Set(gocv.VideoCaptureFPS, float64(fps))
	}
}

// FPS returns the current frames per second setting.
func (c *cameraImpl) FPS() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.cfg.FPS
}

// IsOpen returns true if the camera is currently open and running.
func (c *cameraImpl) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.running
}
