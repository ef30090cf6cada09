// Package config loads the vtrack YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ayusman/vtrack/internal/calibration"
	"github.com/ayusman/vtrack/internal/capture"
	"github.com/ayusman/vtrack/internal/detector"
	"github.com/ayusman/vtrack/internal/filter"
	"github.com/ayusman/vtrack/internal/gesture"
	"github.com/ayusman/vtrack/internal/ingress"
	"github.com/ayusman/vtrack/internal/status"
	"github.com/ayusman/vtrack/internal/transmit"
	"gopkg.in/yaml.v3"
)

// Config is the top-level vtrack configuration.
type Config struct {
	Camera    CameraConfig                `yaml:"camera"`
	Detector  detector.Config             `yaml:"detector"`
	Ingress   ingress.Config              `yaml:"ingress"`
	Filter    FilterConfig                `yaml:"filter"`
	Gesture   gesture.Config              `yaml:"gesture"`
	Transmit  TransmitConfig              `yaml:"transmit"`
	Handshake calibration.HandshakeConfig `yaml:"handshake"`
	Roles     RolesConfig                 `yaml:"roles"`
	Server    ServerConfig                `yaml:"server"`
	MQTT      status.MQTTConfig           `yaml:"mqtt"`
	Database  DatabaseConfig              `yaml:"database"`
}

// CameraConfig selects the capture device.
type CameraConfig struct {
	capture.Config `yaml:",inline"`
	// FlipHorizontal mirrors the view so the user's right hand appears on the right.
	FlipHorizontal bool `yaml:"flip_horizontal"`
}

// FilterConfig adds a single smoothing knob over the One Euro parameters.
type FilterConfig struct {
	filter.Config `yaml:",inline"`
	// Smoothing in [0, 1] derives MinCutoff when set. Higher is smoother.
	Smoothing float64 `yaml:"smoothing"`
}

// TransmitConfig adds the tick rate to the transmitter settings.
type TransmitConfig struct {
	transmit.Config `yaml:",inline"`
	RateHz          float64 `yaml:"rate_hz"`
	MaxRateHz       float64 `yaml:"max_rate_hz"`
}

// Interval returns the tick period, with the rate clamped to MaxRateHz.
func (t TransmitConfig) Interval() time.Duration {
	rate := t.RateHz
	if t.MaxRateHz > 0 && rate > t.MaxRateHz {
		rate = t.MaxRateHz
	}
	if rate <= 0 {
		rate = 60
	}
	return time.Duration(float64(time.Second) / rate)
}

// ServerConfig configures the HTTP dashboard API.
type ServerConfig struct {
	Addr      string `yaml:"addr"`
	StaticDir string `yaml:"static_dir"`
	Tray      bool   `yaml:"tray"`
}

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// Default returns the built-in configuration.
func Default() Config {
	cfg := Config{
		Camera:    CameraConfig{Config: capture.DefaultConfig(), FlipHorizontal: true},
		Detector:  detector.DefaultConfig(),
		Ingress:   ingress.DefaultConfig(),
		Filter:    FilterConfig{Config: filter.DefaultConfig()},
		Gesture:   gesture.DefaultConfig(),
		Transmit:  TransmitConfig{Config: transmit.DefaultConfig(), RateHz: 60, MaxRateHz: 120},
		Handshake: calibration.DefaultHandshakeConfig(),
		Roles:     RolesConfig{Mode: ModeFullBody},
		Server:    ServerConfig{Addr: "127.0.0.1:8765"},
		MQTT:      status.DefaultMQTTConfig(),
		Database:  DatabaseConfig{Path: "vtrack.db"},
	}
	cfg.Ingress.Mirror = cfg.Camera.FlipHorizontal
	return cfg
}

// Load reads a YAML file over the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := Default()

	if c.Transmit.RateHz <= 0 {
		c.Transmit.RateHz = def.Transmit.RateHz
	}
	if c.Transmit.MaxRateHz <= 0 {
		c.Transmit.MaxRateHz = def.Transmit.MaxRateHz
	}
	if c.Transmit.VMT.Host == "" {
		c.Transmit.VMT.Host = def.Transmit.VMT.Host
	}
	if c.Transmit.VMT.Port == 0 {
		c.Transmit.VMT.Port = def.Transmit.VMT.Port
	}
	if c.Transmit.VMC.Host == "" {
		c.Transmit.VMC.Host = def.Transmit.VMC.Host
	}
	if c.Transmit.VMC.Port == 0 {
		c.Transmit.VMC.Port = def.Transmit.VMC.Port
	}
	if c.Filter.Smoothing > 0 {
		c.Filter.MinCutoff = filter.CutoffForSmoothing(c.Filter.Smoothing)
	}
	if c.Roles.Mode == "" {
		c.Roles.Mode = ModeFullBody
	}
	if c.Server.Addr == "" {
		c.Server.Addr = def.Server.Addr
	}
	if c.Database.Path == "" {
		c.Database.Path = def.Database.Path
	}
	if c.MQTT.Topic == "" {
		c.MQTT.Topic = def.MQTT.Topic
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = def.MQTT.ClientID
	}

	// The detector mirrors landmarks and the preview must follow it.
	c.Detector.Mirror = c.Camera.FlipHorizontal
	c.Ingress.Mirror = c.Camera.FlipHorizontal
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if err := c.Gesture.Validate(); err != nil {
		return fmt.Errorf("gesture: %w", err)
	}
	if c.Filter.Smoothing < 0 || c.Filter.Smoothing > 1 {
		return fmt.Errorf("filter: smoothing %v outside [0, 1]", c.Filter.Smoothing)
	}
	if c.Filter.HoldFrames < 0 {
		return fmt.Errorf("filter: hold_frames must not be negative")
	}
	if c.Handshake.WaistHeight <= 0 {
		return fmt.Errorf("handshake: waist_height must be positive")
	}
	if c.Transmit.VMT.Port <= 0 || c.Transmit.VMT.Port > 65535 {
		return fmt.Errorf("transmit: invalid vmt port %d", c.Transmit.VMT.Port)
	}
	if _, err := c.Roles.Table(); err != nil {
		return fmt.Errorf("roles: %w", err)
	}
	return nil
}
