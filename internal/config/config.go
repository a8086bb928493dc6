// Package config loads the edgeview configuration file.
//
// Config file locations (priority order):
//  1. $EDGEVIEW_CONFIG
//  2. ./edgeview.yaml
//
// Keys absent from the file keep their defaults.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/edgeview/internal/observability"
	"github.com/signalsfoundry/edgeview/internal/stream"
)

const (
	// EnvConfigPath is the environment variable for an explicit config path.
	EnvConfigPath = "EDGEVIEW_CONFIG"
	// ConfigFileName is the default config file name.
	ConfigFileName = "edgeview.yaml"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config is the complete process configuration.
type Config struct {
	HTTP       HTTPConfig                  `yaml:"http"`
	GRPC       GRPCConfig                  `yaml:"grpc"`
	Stream     StreamConfig                `yaml:"stream"`
	Seed       SeedConfig                  `yaml:"seed"`
	Simulation SimulationConfig            `yaml:"simulation"`
	Surface    SurfaceConfig               `yaml:"surface"`
	Tracing    observability.TracingConfig `yaml:"tracing"`
}

// HTTPConfig configures the dashboard HTTP server.
type HTTPConfig struct {
	Addr            string   `yaml:"addr"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout"`
}

// GRPCConfig configures the ingest gRPC server. An empty Addr disables it.
type GRPCConfig struct {
	Addr string `yaml:"addr"`
}

// StreamConfig configures the upstream websocket feed. An empty URL
// disables it.
type StreamConfig struct {
	URL              string   `yaml:"url"`
	HandshakeTimeout Duration `yaml:"handshakeTimeout"`
	InitialBackoff   Duration `yaml:"initialBackoff"`
	MaxBackoff       Duration `yaml:"maxBackoff"`
}

// SeedConfig says where the initial dataset comes from. Sources are tried
// URL first, then File, then the built-in fallback.
type SeedConfig struct {
	URL     string   `yaml:"url"`
	File    string   `yaml:"file"`
	Timeout Duration `yaml:"timeout"`
}

// SimulationConfig configures the simulated feed and dashboard updates.
type SimulationConfig struct {
	// Enabled turns on the periodic simulated dashboard updates.
	Enabled bool `yaml:"enabled"`
	// Feed attaches the simulated upstream message feed.
	Feed           bool     `yaml:"feed"`
	StreamInterval Duration `yaml:"streamInterval"`
	UpdateInterval Duration `yaml:"updateInterval"`
	ScenarioDelay  Duration `yaml:"scenarioDelay"`
	RecoveryDelay  Duration `yaml:"recoveryDelay"`
	// RandomSeed makes the simulation and the fallback dataset
	// reproducible; zero picks a time-based seed.
	RandomSeed uint64          `yaml:"randomSeed"`
	Satellite  SatelliteConfig `yaml:"satellite"`
}

// SatelliteConfig derives simulated latency for satellite nodes from an
// orbit. An empty TLE disables it.
type SatelliteConfig struct {
	Nodes   []string             `yaml:"nodes"`
	TLE     [2]string            `yaml:"tle"`
	Station stream.GroundStation `yaml:"station"`
}

// SurfaceConfig is the initial drawing surface size in pixels.
type SurfaceConfig struct {
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
}

// Load finds and loads the config file, or returns defaults if none is
// found. The returned path is empty in the latter case.
func Load() (*Config, string, error) {
	path := FindConfigPath()
	if path == "" {
		return DefaultConfig(), "", nil
	}
	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path.
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultConfig returns the configuration used without a config file.
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ShutdownTimeout: Duration(10 * time.Second),
		},
		GRPC: GRPCConfig{Addr: ":50051"},
		Stream: StreamConfig{
			HandshakeTimeout: Duration(10 * time.Second),
			InitialBackoff:   Duration(500 * time.Millisecond),
			MaxBackoff:       Duration(30 * time.Second),
		},
		Seed: SeedConfig{Timeout: Duration(5 * time.Second)},
		Simulation: SimulationConfig{
			Enabled:        true,
			Feed:           true,
			StreamInterval: Duration(stream.DefaultSimulatorInterval),
			UpdateInterval: Duration(3 * time.Second),
			ScenarioDelay:  Duration(2 * time.Second),
			RecoveryDelay:  Duration(3 * time.Second),
			Satellite:      SatelliteConfig{Nodes: []string{"6"}},
		},
		Surface: SurfaceConfig{Width: 800, Height: 600},
		Tracing: observability.DefaultTracingConfig(),
	}
}

// applyDefaults fills zero values the YAML may have set explicitly.
func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = def.HTTP.Addr
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		c.HTTP.ShutdownTimeout = def.HTTP.ShutdownTimeout
	}
	if c.Stream.HandshakeTimeout <= 0 {
		c.Stream.HandshakeTimeout = def.Stream.HandshakeTimeout
	}
	if c.Stream.InitialBackoff <= 0 {
		c.Stream.InitialBackoff = def.Stream.InitialBackoff
	}
	if c.Stream.MaxBackoff <= 0 {
		c.Stream.MaxBackoff = def.Stream.MaxBackoff
	}
	if c.Seed.Timeout <= 0 {
		c.Seed.Timeout = def.Seed.Timeout
	}
	sim := &c.Simulation
	if sim.StreamInterval <= 0 {
		sim.StreamInterval = def.Simulation.StreamInterval
	}
	if sim.UpdateInterval <= 0 {
		sim.UpdateInterval = def.Simulation.UpdateInterval
	}
	if sim.ScenarioDelay <= 0 {
		sim.ScenarioDelay = def.Simulation.ScenarioDelay
	}
	if sim.RecoveryDelay <= 0 {
		sim.RecoveryDelay = def.Simulation.RecoveryDelay
	}
	if c.Surface.Width == 0 {
		c.Surface.Width = def.Surface.Width
	}
	if c.Surface.Height == 0 {
		c.Surface.Height = def.Surface.Height
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = def.Tracing.ServiceName
	}
	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = def.Tracing.Exporter
	}
}

// Validate reports the first inconsistency, wrapped in ErrInvalid.
func (c *Config) Validate() error {
	if c.Surface.Width < 0 || c.Surface.Height < 0 {
		return fmt.Errorf("%w: surface %vx%v", ErrInvalid, c.Surface.Width, c.Surface.Height)
	}
	if c.Stream.URL != "" {
		u, err := url.Parse(c.Stream.URL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			return fmt.Errorf("%w: stream.url %q must be ws:// or wss://", ErrInvalid, c.Stream.URL)
		}
	}
	if c.Seed.URL != "" {
		u, err := url.Parse(c.Seed.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("%w: seed.url %q must be http:// or https://", ErrInvalid, c.Seed.URL)
		}
	}
	switch c.Tracing.Exporter {
	case observability.ExporterStdout, observability.ExporterOTLP:
	default:
		return fmt.Errorf("%w: tracing.exporter %q", ErrInvalid, c.Tracing.Exporter)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("%w: tracing.sampleRatio %v not in [0,1]", ErrInvalid, c.Tracing.SampleRatio)
	}
	tle := c.Simulation.Satellite.TLE
	if (tle[0] == "") != (tle[1] == "") {
		return fmt.Errorf("%w: simulation.satellite.tle needs both lines", ErrInvalid)
	}
	return nil
}

// FindConfigPath returns the first existing config file, or "".
func FindConfigPath() string {
	if path := os.Getenv(EnvConfigPath); path != "" {
		if fileExists(path) {
			return path
		}
	}
	if fileExists(ConfigFileName) {
		if abs, err := filepath.Abs(ConfigFileName); err == nil {
			return abs
		}
		return ConfigFileName
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Duration wraps time.Duration for YAML unmarshaling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
