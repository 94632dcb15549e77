// Package config provides configuration management for reeldraft.
// Values come from defaults, then an optional YAML file, then environment
// variables, with later sources winning.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// Default values
	DefaultPort            = 8797
	DefaultLogLevel        = "info"
	DefaultDataDir         = ".reeldraft"
	DefaultAutosaveDelayMs = 1500
	DefaultDurationBudgetS = 60
	DefaultExportQuality   = "high"
	DefaultConfigFilename  = "config.yaml"

	// Environment variable names
	EnvPort            = "REELDRAFT_PORT"
	EnvLogLevel        = "REELDRAFT_LOG_LEVEL"
	EnvDataDir         = "REELDRAFT_DATA_DIR"
	EnvConfigFile      = "REELDRAFT_CONFIG_FILE"
	EnvAutosaveDelayMs = "REELDRAFT_AUTOSAVE_DELAY_MS"
	EnvDurationBudgetS = "REELDRAFT_DURATION_BUDGET_S"
	EnvExportQuality   = "REELDRAFT_EXPORT_QUALITY"
	EnvFFmpegPath      = "REELDRAFT_FFMPEG_PATH"
	EnvMetricsEnabled  = "REELDRAFT_METRICS_ENABLED"

	// Database filename
	DBFilename = "reeldraft.db"
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	MediaDir() string
	ExportDir() string
	WorkDir() string
	AutosaveDelay() time.Duration
	DurationBudgetSeconds() float64
	ExportQuality() string
	FFmpegPath() string
	MetricsEnabled() bool
}

// FileConfig is the YAML file layout. Pointer fields distinguish "unset"
// from zero.
type FileConfig struct {
	Port            *int     `yaml:"port"`
	LogLevel        string   `yaml:"log_level"`
	DataDir         string   `yaml:"data_dir"`
	AutosaveDelayMs *int     `yaml:"autosave_delay_ms"`
	DurationBudgetS *float64 `yaml:"duration_budget_s"`
	ExportQuality   string   `yaml:"export_quality"`
	FFmpegPath      string   `yaml:"ffmpeg_path"`
	MetricsEnabled  *bool    `yaml:"metrics_enabled"`
}

// EnvConfig is the resolved configuration.
type EnvConfig struct {
	port            int
	logLevel        string
	dataDir         string
	autosaveDelayMs int
	durationBudgetS float64
	exportQuality   string
	ffmpegPath      string
	metricsEnabled  bool
	configFile      string
}

// New resolves configuration from defaults, the config file and the
// environment.
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:            DefaultPort,
		logLevel:        DefaultLogLevel,
		dataDir:         defaultDataDir(),
		autosaveDelayMs: DefaultAutosaveDelayMs,
		durationBudgetS: DefaultDurationBudgetS,
		exportQuality:   DefaultExportQuality,
		metricsEnabled:  true,
	}
	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}

	path, explicit := os.Getenv(EnvConfigFile), true
	if path == "" {
		path, explicit = filepath.Join(cfg.dataDir, DefaultConfigFilename), false
	}
	fc, err := LoadFile(path)
	switch {
	case err == nil:
		cfg.configFile = path
		cfg.applyFile(fc)
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, err
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads and strictly decodes a YAML config file.
func LoadFile(path string) (*FileConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	fc, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return fc, nil
}

// Decode reads YAML from r, rejecting unknown keys. An empty document is
// valid.
func Decode(r io.Reader) (*FileConfig, error) {
	fc := &FileConfig{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(fc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return fc, nil
}

func (c *EnvConfig) applyFile(fc *FileConfig) {
	if fc.Port != nil {
		c.port = *fc.Port
	}
	if fc.LogLevel != "" {
		c.logLevel = fc.LogLevel
	}
	// The environment already picked the data dir used to find this file.
	if fc.DataDir != "" && os.Getenv(EnvDataDir) == "" {
		c.dataDir = expandHome(fc.DataDir)
	}
	if fc.AutosaveDelayMs != nil {
		c.autosaveDelayMs = *fc.AutosaveDelayMs
	}
	if fc.DurationBudgetS != nil {
		c.durationBudgetS = *fc.DurationBudgetS
	}
	if fc.ExportQuality != "" {
		c.exportQuality = fc.ExportQuality
	}
	if fc.FFmpegPath != "" {
		c.ffmpegPath = fc.FFmpegPath
	}
	if fc.MetricsEnabled != nil {
		c.metricsEnabled = *fc.MetricsEnabled
	}
}

func (c *EnvConfig) applyEnv() error {
	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		c.port = port
	}
	if ll := os.Getenv(EnvLogLevel); ll != "" {
		c.logLevel = ll
	}
	if v := os.Getenv(EnvAutosaveDelayMs); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvAutosaveDelayMs, err)
		}
		c.autosaveDelayMs = ms
	}
	if v := os.Getenv(EnvDurationBudgetS); v != "" {
		s, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvDurationBudgetS, err)
		}
		c.durationBudgetS = s
	}
	if q := os.Getenv(EnvExportQuality); q != "" {
		c.exportQuality = strings.ToLower(q)
	}
	if fp := os.Getenv(EnvFFmpegPath); fp != "" {
		c.ffmpegPath = fp
	}
	if v := os.Getenv(EnvMetricsEnabled); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvMetricsEnabled, err)
		}
		c.metricsEnabled = on
	}
	return nil
}

func (c *EnvConfig) validate() error {
	var errs []error
	if c.port < 1 || c.port > 65535 {
		errs = append(errs, fmt.Errorf("port must be between 1 and 65535, got %d", c.port))
	}
	if c.autosaveDelayMs <= 0 {
		errs = append(errs, fmt.Errorf("autosave delay must be positive, got %dms", c.autosaveDelayMs))
	}
	if c.durationBudgetS <= 0 {
		errs = append(errs, fmt.Errorf("duration budget must be positive, got %v", c.durationBudgetS))
	}
	switch c.exportQuality {
	case "high", "medium", "low":
	default:
		errs = append(errs, fmt.Errorf("export quality %q is invalid; valid values: high, medium, low", c.exportQuality))
	}
	return errors.Join(errs...)
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// MediaDir is the root of the managed per-draft directories.
func (c *EnvConfig) MediaDir() string {
	return filepath.Join(c.dataDir, "drafts")
}

func (c *EnvConfig) ExportDir() string {
	return filepath.Join(c.dataDir, "exports")
}

// WorkDir holds scratch files such as ffmpeg concat lists.
func (c *EnvConfig) WorkDir() string {
	return filepath.Join(c.dataDir, "tmp")
}

func (c *EnvConfig) AutosaveDelay() time.Duration {
	return time.Duration(c.autosaveDelayMs) * time.Millisecond
}

func (c *EnvConfig) DurationBudgetSeconds() float64 {
	return c.durationBudgetS
}

func (c *EnvConfig) ExportQuality() string {
	return c.exportQuality
}

// FFmpegPath is empty when ffmpeg should be looked up on PATH.
func (c *EnvConfig) FFmpegPath() string {
	return c.ffmpegPath
}

func (c *EnvConfig) MetricsEnabled() bool {
	return c.metricsEnabled
}

// ConfigFile is the file that was loaded, or empty.
func (c *EnvConfig) ConfigFile() string {
	return c.configFile
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
