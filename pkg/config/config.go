// Package config provides configuration loading and management for ptvstitch.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable that may point at the
// configuration file. It can be set from a .env file.
const EnvConfigPath = "PTVSTITCH_CONFIG"

// DefaultConfigPath is used when neither a flag nor EnvConfigPath names a file.
const DefaultConfigPath = "ptvstitch.yaml"

// Config represents the application configuration loaded from YAML
type Config struct {
	// Stitching parameters
	Stitching struct {
		// TrajectoryFile is the input table of trajectory segments
		TrajectoryFile string `yaml:"trajectoryFile"`

		// MaxTimeSeparation is the largest gap Ts, in frames, that may be bridged
		MaxTimeSeparation float64 `yaml:"maxTimeSeparation"`

		// MaxDistance is the largest combined residual dm accepted for a connection
		MaxDistance float64 `yaml:"maxDistance"`

		// AccelerationWeight scales the acceleration term of the velocity projection
		AccelerationWeight float64 `yaml:"accelerationWeight"`

		// Selector is "greedy" or "optimal"
		Selector string `yaml:"selector"`

		// Workers specifies how many goroutines generate candidates
		Workers int `yaml:"workers"`

		// SaveName is the output table; empty disables saving
		SaveName string `yaml:"saveName"`
	} `yaml:"stitching"`

	// Smoothing parameters
	Smoothing struct {
		TrajectoryFile string `yaml:"trajectoryFile"`

		// WindowSize is the odd number of samples in each local polynomial fit
		WindowSize int `yaml:"windowSize"`

		// PolynomOrder is the degree of the local polynomial
		PolynomOrder int `yaml:"polynomOrder"`

		SaveName string `yaml:"saveName"`
	} `yaml:"smoothing"`

	// Output parameters
	Output struct {
		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`

		// Database is an SQLite file that records each stitching run
		Database string `yaml:"database"`

		// PlotFile is a PNG path for a projection of the stitched trajectories
		PlotFile string `yaml:"plotFile"`

		// PlotPlane selects the projection: xy, xz or yz
		PlotPlane string `yaml:"plotPlane"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Stitching.TrajectoryFile = "trajectories"
	cfg.Stitching.MaxTimeSeparation = 4
	cfg.Stitching.MaxDistance = 0.4
	cfg.Stitching.AccelerationWeight = 0
	cfg.Stitching.Selector = "greedy"
	cfg.Stitching.Workers = runtime.NumCPU()
	cfg.Stitching.SaveName = "trajectories_stitched"

	cfg.Smoothing.TrajectoryFile = "trajectories"
	cfg.Smoothing.WindowSize = 5
	cfg.Smoothing.PolynomOrder = 3
	cfg.Smoothing.SaveName = "smoothed_trajectories"

	cfg.Output.Verbose = true
	cfg.Output.PlotPlane = "xy"

	return cfg
}

// Validate checks the parameter ranges the stitcher and smoother rely on.
func (c *Config) Validate() error {
	var errs []error

	if c.Stitching.MaxTimeSeparation <= 0 {
		errs = append(errs, fmt.Errorf("stitching.maxTimeSeparation must be positive, got %g", c.Stitching.MaxTimeSeparation))
	}
	if c.Stitching.MaxDistance < 0 {
		errs = append(errs, fmt.Errorf("stitching.maxDistance must not be negative, got %g", c.Stitching.MaxDistance))
	}
	switch c.Stitching.Selector {
	case "", "greedy", "optimal":
	default:
		errs = append(errs, fmt.Errorf("stitching.selector must be greedy or optimal, got %q", c.Stitching.Selector))
	}
	if c.Stitching.Workers < 0 {
		errs = append(errs, fmt.Errorf("stitching.workers must not be negative, got %d", c.Stitching.Workers))
	}

	w, p := c.Smoothing.WindowSize, c.Smoothing.PolynomOrder
	if w < 1 || w%2 == 0 {
		errs = append(errs, fmt.Errorf("smoothing.windowSize must be a positive odd number, got %d", w))
	}
	if p < 0 || p >= w {
		errs = append(errs, fmt.Errorf("smoothing.polynomOrder must be in [0, windowSize), got %d", p))
	}

	switch c.Output.PlotPlane {
	case "", "xy", "xz", "yz":
	default:
		errs = append(errs, fmt.Errorf("output.plotPlane must be xy, xz or yz, got %q", c.Output.PlotPlane))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// ResolvePath picks the configuration file: an explicit path wins, then the
// EnvConfigPath variable, then DefaultConfigPath.
func ResolvePath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return env
	}
	return DefaultConfigPath
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
