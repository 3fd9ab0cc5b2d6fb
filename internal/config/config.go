// Package config holds the server configuration: a YAML file with
// environment variable overrides, so deployments can tune limits without
// shipping a file at all.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lachlan-jones5/oh-my-opencode/internal/kernel"
)

// Config holds all context-kernel configuration.
type Config struct {
	// StateDir is where the server keeps its on-disk state (logs).
	StateDir string `yaml:"state_dir" json:"state_dir"`

	// Kernel configures the namespace store and its limits.
	Kernel KernelConfig `yaml:"kernel" json:"kernel"`

	// Sandbox configures script execution.
	Sandbox SandboxConfig `yaml:"sandbox" json:"sandbox"`

	// Logging configures categorized debug logging.
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// KernelConfig configures the per-session namespace store.
type KernelConfig struct {
	QuotaMB              int `yaml:"quota_mb" json:"quota_mb"`
	IdleTTLSeconds       int `yaml:"idle_ttl_seconds" json:"idle_ttl_seconds"`
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds" json:"sweep_interval_seconds"`
	PeekDefaultLines     int `yaml:"peek_default_lines" json:"peek_default_lines"`
	PeekMaxLines         int `yaml:"peek_max_lines" json:"peek_max_lines"`
	ScanDefaultMatches   int `yaml:"scan_default_matches" json:"scan_default_matches"`
	ScanMaxMatches       int `yaml:"scan_max_matches" json:"scan_max_matches"`
}

// SandboxConfig configures the script executor.
type SandboxConfig struct {
	ExecTimeoutSeconds int `yaml:"exec_timeout_seconds" json:"exec_timeout_seconds"`
	MaxOutputKB        int `yaml:"max_output_kb" json:"max_output_kb"`

	// AllowedImports replaces the default package allow-list when set.
	AllowedImports []string `yaml:"allowed_imports" json:"allowed_imports"`
}

// LoggingConfig configures file logging. Debug mode off means no files.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode" json:"debug_mode"`
	Level      string          `yaml:"level" json:"level"`
	Categories map[string]bool `yaml:"categories" json:"categories"`
}

// DefaultConfig returns the built-in defaults. The server runs fine with
// no config file at all.
func DefaultConfig() *Config {
	return &Config{
		StateDir: ".context-kernel",
		Kernel: KernelConfig{
			QuotaMB:              int(kernel.DefaultQuotaBytes / (1024 * 1024)),
			IdleTTLSeconds:       int(kernel.DefaultIdleTTL / time.Second),
			SweepIntervalSeconds: 30,
			PeekDefaultLines:     kernel.DefaultPeekLines,
			PeekMaxLines:         kernel.DefaultPeekMaxLines,
			ScanDefaultMatches:   kernel.DefaultScanMatches,
			ScanMaxMatches:       kernel.DefaultScanMaxMatches,
		},
		Sandbox: SandboxConfig{
			ExecTimeoutSeconds: int(kernel.DefaultExecTimeout / time.Second),
			MaxOutputKB:        kernel.DefaultMaxOutputBytes / 1024,
		},
		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
		},
	}
}

// Load reads the config file at path, falling back to defaults when the
// file does not exist, then applies environment overrides and validates.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Defaults only.
		case err != nil:
			return nil, fmt.Errorf("reading config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config: %w", err)
			}
		}
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides lets CONTEXT_KERNEL_* variables override file values.
// Malformed numeric values are ignored rather than fatal.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("CONTEXT_KERNEL_STATE_DIR"); v != "" {
		c.StateDir = v
	}
	envInt("CONTEXT_KERNEL_QUOTA_MB", &c.Kernel.QuotaMB)
	envInt("CONTEXT_KERNEL_IDLE_TTL_SECONDS", &c.Kernel.IdleTTLSeconds)
	envInt("CONTEXT_KERNEL_SWEEP_INTERVAL_SECONDS", &c.Kernel.SweepIntervalSeconds)
	envInt("CONTEXT_KERNEL_EXEC_TIMEOUT_SECONDS", &c.Sandbox.ExecTimeoutSeconds)
	envInt("CONTEXT_KERNEL_MAX_OUTPUT_KB", &c.Sandbox.MaxOutputKB)
	if v := os.Getenv("CONTEXT_KERNEL_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Logging.DebugMode = b
		}
	}
	if v := os.Getenv("CONTEXT_KERNEL_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

func envInt(key string, dst *int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}

// Validate checks that limits are within acceptable ranges.
func (c *Config) Validate() error {
	if c.Kernel.QuotaMB < 1 {
		return fmt.Errorf("kernel.quota_mb must be >= 1")
	}
	if c.Kernel.IdleTTLSeconds < 1 {
		return fmt.Errorf("kernel.idle_ttl_seconds must be >= 1")
	}
	if c.Kernel.SweepIntervalSeconds < 1 {
		return fmt.Errorf("kernel.sweep_interval_seconds must be >= 1")
	}
	if c.Kernel.PeekDefaultLines < 1 || c.Kernel.PeekMaxLines < c.Kernel.PeekDefaultLines {
		return fmt.Errorf("kernel peek limits invalid: default=%d max=%d",
			c.Kernel.PeekDefaultLines, c.Kernel.PeekMaxLines)
	}
	if c.Kernel.ScanDefaultMatches < 1 || c.Kernel.ScanMaxMatches < c.Kernel.ScanDefaultMatches {
		return fmt.Errorf("kernel scan limits invalid: default=%d max=%d",
			c.Kernel.ScanDefaultMatches, c.Kernel.ScanMaxMatches)
	}
	if c.Sandbox.ExecTimeoutSeconds < 1 {
		return fmt.Errorf("sandbox.exec_timeout_seconds must be >= 1")
	}
	if c.Sandbox.MaxOutputKB < 1 {
		return fmt.Errorf("sandbox.max_output_kb must be >= 1")
	}
	return nil
}

// KernelOptions converts the file-level settings into kernel options.
func (c *Config) KernelOptions() kernel.Options {
	return kernel.Options{
		QuotaBytes:         int64(c.Kernel.QuotaMB) * 1024 * 1024,
		IdleTTL:            time.Duration(c.Kernel.IdleTTLSeconds) * time.Second,
		PeekDefaultLines:   c.Kernel.PeekDefaultLines,
		PeekMaxLines:       c.Kernel.PeekMaxLines,
		ScanDefaultMatches: c.Kernel.ScanDefaultMatches,
		ScanMaxMatches:     c.Kernel.ScanMaxMatches,
		ExecTimeout:        time.Duration(c.Sandbox.ExecTimeoutSeconds) * time.Second,
		MaxOutputBytes:     c.Sandbox.MaxOutputKB * 1024,
		AllowedImports:     c.Sandbox.AllowedImports,
	}
}

// SweepInterval is how often idle sessions are swept.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Kernel.SweepIntervalSeconds) * time.Second
}

// LogDirectory is where per-category log files live.
func (c *Config) LogDirectory() string {
	return filepath.Join(c.StateDir, "logs")
}
