package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/afero"
)

// headerList is a custom flag type for repeatable -header flags.
type headerList []string

func (h *headerList) String() string {
	return strings.Join(*h, ", ")
}

func (h *headerList) Set(value string) error {
	*h = append(*h, value)
	return nil
}

// ParseFlags parses the process command line and returns a Config.
func ParseFlags() (*Config, error) {
	return ParseArgs(os.Args[1:], os.Stderr)
}

// ParseArgs parses args on top of the defaults.
// When -config names a file, its values sit between the defaults and the
// flags: anything given on the command line wins.
func ParseArgs(args []string, output io.Writer) (*Config, error) {
	return parseArgs(afero.NewOsFs(), args, output)
}

func parseArgs(fsys afero.Fs, args []string, output io.Writer) (*Config, error) {
	cfg := DefaultConfig()
	fs := newFlagSet(cfg, output)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.ConfigFile != "" {
		path := cfg.ConfigFile
		cfg = DefaultConfig()
		if err := LoadFile(fsys, path, cfg); err != nil {
			return nil, err
		}
		fs = newFlagSet(cfg, io.Discard)
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
	}

	// Positional argument: manifest URL or path
	if rest := fs.Args(); len(rest) >= 1 {
		cfg.Manifest = rest[0]
	}

	return cfg, nil
}

func newFlagSet(cfg *Config, output io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("go-hls-analyzer", flag.ContinueOnError)
	fs.SetOutput(output)
	headers := (*headerList)(&cfg.Headers)

	fs.Usage = func() {
		w := fs.Output()
		fmt.Fprintf(w, `go-hls-analyzer - HLS manifest, segment availability and media analysis

Usage:
  go-hls-analyzer [flags] <manifest URL or path>

Input:
`)
		printFlagCategory(fs, []string{"config"})

		fmt.Fprintf(w, "\nSegment Availability:\n")
		printFlagCategory(fs, []string{"concurrency", "timeout", "deadline", "manifest-timeout", "check-method", "retries", "rate", "variant-segments"})

		fmt.Fprintf(w, "\nMedia Probing:\n")
		printFlagCategory(fs, []string{"probe", "ffprobe", "probe-timeout", "probe-concurrency", "probe-variants"})

		fmt.Fprintf(w, "\nNetwork:\n")
		printFlagCategory(fs, []string{"user-agent", "header"})

		fmt.Fprintf(w, "\nOutput:\n")
		printFlagCategory(fs, []string{"o", "telemetry", "metrics", "metrics-textfile"})

		fmt.Fprintf(w, "\nObservability:\n")
		printFlagCategory(fs, []string{"v", "log-format", "tui"})

		fmt.Fprintf(w, "\nDiagnostics:\n")
		printFlagCategory(fs, []string{"skip-preflight", "print-config", "version"})

		fmt.Fprintf(w, `
Flag Convention:
  Single-dash flags (-concurrency, -o) are normal options.
  Double-dash flags (--skip-preflight, --print-config) are diagnostic modes.

Examples:
  # Analyse a public stream
  go-hls-analyzer https://test-streams.mux.dev/x36xhzz/x36xhzz.m3u8

  # Check every rendition's segments without probing
  go-hls-analyzer -variant-segments -probe=false https://cdn.example.com/live/master.m3u8

  # Merge player telemetry and expose metrics for scraping
  go-hls-analyzer -telemetry player.json -metrics-textfile /var/lib/node_exporter/hls.prom ./index.m3u8

`)
	}

	// Input
	fs.StringVar(&cfg.ConfigFile, "config", cfg.ConfigFile, `Config file (YAML or JSON, key "m3u8_url" for the manifest)`)

	// Segment availability
	fs.IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "Concurrent segment checks")
	fs.DurationVar(&cfg.RequestTimeout, "timeout", cfg.RequestTimeout, "Per-segment request timeout")
	fs.DurationVar(&cfg.Deadline, "deadline", cfg.Deadline, "Overall run deadline")
	fs.DurationVar(&cfg.ManifestTimeout, "manifest-timeout", cfg.ManifestTimeout, "Manifest fetch timeout")
	fs.StringVar(&cfg.CheckMethod, "check-method", cfg.CheckMethod, `Segment check: "head" (falls back to range) or "range"`)
	fs.IntVar(&cfg.Retries, "retries", cfg.Retries, "Retries for transient segment failures")
	fs.Float64Var(&cfg.Rate, "rate", cfg.Rate, "Max segment requests per second (0 = unlimited)")
	fs.BoolVar(&cfg.VariantSegments, "variant-segments", cfg.VariantSegments, "Also check segments of every variant playlist")

	// Media probing
	fs.BoolVar(&cfg.ProbeEnabled, "probe", cfg.ProbeEnabled, "Run ffprobe for media facts (use -probe=false to disable)")
	fs.StringVar(&cfg.FFprobePath, "ffprobe", cfg.FFprobePath, "Path to ffprobe (or ffmpeg, to use its sibling ffprobe)")
	fs.DurationVar(&cfg.ProbeTimeout, "probe-timeout", cfg.ProbeTimeout, "Per-probe timeout")
	fs.IntVar(&cfg.ProbeConcurrency, "probe-concurrency", cfg.ProbeConcurrency, "Concurrent ffprobe processes")
	fs.BoolVar(&cfg.ProbeVariants, "probe-variants", cfg.ProbeVariants, "Probe each variant playlist as well as the manifest")

	// Network
	fs.StringVar(&cfg.UserAgent, "user-agent", cfg.UserAgent, "HTTP User-Agent header")
	fs.Var(headers, "header", "Add custom HTTP header (can repeat)")

	// Output
	fs.StringVar(&cfg.OutputPath, "o", cfg.OutputPath, "Report output path")
	fs.StringVar(&cfg.TelemetryPath, "telemetry", cfg.TelemetryPath, "Playback telemetry snapshot (JSON) to merge")
	fs.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Serve Prometheus metrics on this address during the run")
	fs.StringVar(&cfg.MetricsTextfile, "metrics-textfile", cfg.MetricsTextfile, "Write metrics to a node_exporter textfile")

	// Observability
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "json" or "text"`)
	fs.BoolVar(&cfg.TUIEnabled, "tui", cfg.TUIEnabled, "Show live terminal dashboard")

	// Diagnostics (double-dash convention)
	fs.BoolVar(&cfg.SkipPreflight, "skip-preflight", cfg.SkipPreflight, "Skip preflight checks")
	fs.BoolVar(&cfg.PrintConfig, "print-config", cfg.PrintConfig, "Print effective config and exit")
	fs.BoolVar(&cfg.ShowVersion, "version", cfg.ShowVersion, "Print version and exit")

	return fs
}

// printFlagCategory prints flags matching the given names (helper for usage).
func printFlagCategory(fs *flag.FlagSet, names []string) {
	w := fs.Output()
	fs.VisitAll(func(f *flag.Flag) {
		for _, name := range names {
			if f.Name == name {
				fmt.Fprintf(w, "  -%s %s\n    \t%s", f.Name, flagType(f), f.Usage)
				if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" && f.DefValue != "0s" && f.DefValue != "[]" {
					fmt.Fprintf(w, " (default %s)", f.DefValue)
				}
				fmt.Fprintln(w)
				return
			}
		}
	})
}

// flagType returns a type hint for the flag value.
func flagType(f *flag.Flag) string {
	switch f.DefValue {
	case "true", "false":
		return ""
	}

	if strings.HasSuffix(f.DefValue, "s") || strings.HasSuffix(f.DefValue, "m") || strings.HasSuffix(f.DefValue, "h") {
		return "duration"
	}

	if _, err := fmt.Sscanf(f.DefValue, "%d", new(int)); err == nil {
		return "int"
	}

	return "string"
}
