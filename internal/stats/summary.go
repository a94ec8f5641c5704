package stats

import (
	"fmt"
	"strings"
	"time"
)

// SummaryConfig holds run details shown alongside the aggregate figures.
type SummaryConfig struct {
	// Manifest is the analysed manifest location
	Manifest string

	// RunID identifies the run in logs and metrics
	RunID string

	// Duration is the total run duration
	Duration time.Duration

	// OutputPath is where the JSON report was written
	OutputPath string

	// MetricsAddr is the Prometheus metrics endpoint address, if served
	MetricsAddr string

	// MaxListed caps how many failed segments are printed
	MaxListed int
}

const (
	rule     = "═══════════════════════════════════════════════════════════════════════════════\n"
	thinRule = "───────────────────────────────────────────────────────────────────────────────\n"
)

// FormatSummary renders the end-of-run summary printed to the terminal.
func FormatSummary(s AggregateStats, cfg SummaryConfig) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(rule)
	b.WriteString("                          go-hls-analyzer Summary\n")
	b.WriteString(rule + "\n")

	fmt.Fprintf(&b, "Manifest:               %s\n", cfg.Manifest)
	if cfg.RunID != "" {
		fmt.Fprintf(&b, "Run ID:                 %s\n", cfg.RunID)
	}
	fmt.Fprintf(&b, "Run Duration:           %s\n\n", FormatDuration(cfg.Duration))

	section(&b, "Media")
	fmt.Fprintf(&b, "  Highest Bitrate:      %s\n", FormatMbps(s.Highest))
	fmt.Fprintf(&b, "  Average Bitrate:      %s\n", FormatMbps(s.Average))
	fmt.Fprintf(&b, "  Lowest Bitrate:       %s\n", FormatMbps(s.Lowest))
	fmt.Fprintf(&b, "  Codec:                %s\n", orUnknown(s.Codec))
	fmt.Fprintf(&b, "  Resolution:           %s\n", orUnknown(s.Resolution))
	fmt.Fprintf(&b, "  Frame Rate:           %s\n", formatMeasure(s.FrameRate, "%.3f fps"))
	fmt.Fprintf(&b, "  Video Range:          %s\n", orUnknown(s.VideoRange))
	if s.ProbesAttempted > 0 {
		fmt.Fprintf(&b, "  Probes:               %d ok, %d failed\n",
			s.ProbesAttempted-len(s.ProbeFailures), len(s.ProbeFailures))
	}
	b.WriteString("\n")

	section(&b, "Segment Availability")
	fmt.Fprintf(&b, "  Network Check:        %s\n", s.NetworkCheck)
	fmt.Fprintf(&b, "  Segments Checked:     %d\n", s.SegmentsChecked)
	if s.SegmentsChecked == 0 {
		b.WriteString("  (no segments listed; use -variant-segments for master playlists)\n")
	}
	if s.Latency.Samples > 0 {
		fmt.Fprintf(&b, "  Latency P50/P95/P99:  %s / %s / %s\n",
			FormatMs(s.Latency.P50), FormatMs(s.Latency.P95), FormatMs(s.Latency.P99))
	}
	if len(s.FailedSegments) > 0 {
		limit := cfg.MaxListed
		if limit <= 0 {
			limit = 10
		}
		b.WriteString("  Failed Segments:\n")
		for i, uri := range s.FailedSegments {
			if i == limit {
				fmt.Fprintf(&b, "    ... and %d more\n", len(s.FailedSegments)-limit)
				break
			}
			fmt.Fprintf(&b, "    %s\n", uri)
		}
	}
	b.WriteString("\n")

	if len(s.ProbeFailures) > 0 {
		section(&b, "Probe Failures")
		for _, f := range s.ProbeFailures {
			fmt.Fprintf(&b, "  %s\n    %s\n", f.URI, f.Reason)
		}
		b.WriteString("\n")
	}

	if cfg.OutputPath != "" {
		fmt.Fprintf(&b, "Report written to: %s\n", cfg.OutputPath)
	}
	if cfg.MetricsAddr != "" {
		fmt.Fprintf(&b, "Metrics endpoint was: http://%s/metrics\n", cfg.MetricsAddr)
	}
	b.WriteString(rule)

	return b.String()
}

func section(b *strings.Builder, title string) {
	b.WriteString(thinRule)
	pad := (len(thinRule)/3 - len(title)) / 2
	if pad < 0 {
		pad = 0
	}
	b.WriteString(strings.Repeat(" ", pad) + title + "\n")
	b.WriteString(thinRule + "\n")
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

func formatMeasure(m Measure, format string) string {
	if !m.Known {
		return "Unknown"
	}
	return fmt.Sprintf(format, m.Value)
}

// =============================================================================
// Formatting Helper Functions (exported for reuse)
// =============================================================================

// FormatMbps formats a bitrate measure as "2.450 Mbps".
func FormatMbps(m Measure) string {
	return formatMeasure(m, "%.3f Mbps")
}

// FormatDuration formats a duration as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatMs formats a duration as milliseconds.
func FormatMs(d time.Duration) string {
	ms := d.Milliseconds()
	if ms == 0 && d > 0 {
		return fmt.Sprintf("%d µs", d.Microseconds())
	}
	return fmt.Sprintf("%d ms", ms)
}

// FormatNumber formats a number with K/M suffixes for readability.
func FormatNumber(n int64) string {
	if n >= 1_000_000 {
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}
