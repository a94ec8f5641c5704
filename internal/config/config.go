// Package config provides configuration management for go-hls-analyzer.
package config

import "time"

// Check methods for segment availability.
const (
	CheckMethodHead  = "head"
	CheckMethodRange = "range"
)

// Config holds all configuration options for an analysis run.
type Config struct {
	// Input
	Manifest   string `json:"m3u8_url" yaml:"m3u8_url"`
	ConfigFile string `json:"-" yaml:"-"`

	// Segment availability
	Concurrency     int           `json:"concurrency" yaml:"concurrency"`
	RequestTimeout  time.Duration `json:"timeout" yaml:"timeout"`
	Deadline        time.Duration `json:"deadline" yaml:"deadline"`
	ManifestTimeout time.Duration `json:"manifest_timeout" yaml:"manifest_timeout"`
	CheckMethod     string        `json:"check_method" yaml:"check_method"` // head, range
	Retries         int           `json:"retries" yaml:"retries"`
	Rate            float64       `json:"rate" yaml:"rate"` // requests per second, 0 = unlimited
	VariantSegments bool          `json:"variant_segments" yaml:"variant_segments"`

	// Media probing
	ProbeEnabled     bool          `json:"probe" yaml:"probe"`
	FFprobePath      string        `json:"ffprobe_path" yaml:"ffprobe_path"`
	ProbeTimeout     time.Duration `json:"probe_timeout" yaml:"probe_timeout"`
	ProbeConcurrency int           `json:"probe_concurrency" yaml:"probe_concurrency"`
	ProbeVariants    bool          `json:"probe_variants" yaml:"probe_variants"`

	// Network
	UserAgent string   `json:"user_agent" yaml:"user_agent"`
	Headers   []string `json:"headers" yaml:"headers"`

	// Output
	TelemetryPath   string `json:"telemetry" yaml:"telemetry"`
	OutputPath      string `json:"output" yaml:"output"`
	MetricsAddr     string `json:"metrics_addr" yaml:"metrics_addr"`
	MetricsTextfile string `json:"metrics_textfile" yaml:"metrics_textfile"`

	// Observability
	Verbose    bool   `json:"verbose" yaml:"verbose"`
	LogFormat  string `json:"log_format" yaml:"log_format"` // json, text
	TUIEnabled bool   `json:"tui" yaml:"tui"`

	// Diagnostic modes
	SkipPreflight bool `json:"skip_preflight" yaml:"skip_preflight"`
	PrintConfig   bool `json:"-" yaml:"-"`
	ShowVersion   bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		// Segment availability
		Concurrency:     10,
		RequestTimeout:  5 * time.Second,
		Deadline:        2 * time.Minute,
		ManifestTimeout: 10 * time.Second,
		CheckMethod:     CheckMethodHead,
		Retries:         0,
		Rate:            0, // Unlimited

		// Media probing
		ProbeEnabled:     true,
		FFprobePath:      "ffprobe",
		ProbeTimeout:     30 * time.Second,
		ProbeConcurrency: 2,
		ProbeVariants:    true,

		// Network
		UserAgent: "go-hls-analyzer/1.0",

		// Output
		OutputPath: "output/analysis_output.json",

		// Observability
		LogFormat: "json",
	}
}
