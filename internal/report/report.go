// Package report merges aggregate statistics with playback telemetry and
// writes the unified analysis report.
package report

import (
	"encoding/json"
	"math"

	"github.com/randomizedcoder/go-hls-analyzer/internal/stats"
)

// Top-level report keys.
const (
	ProbeSection    = "FFprobe_Metrics"
	PlaybackSection = "AVFoundation_Metrics"
)

// UnknownValue is written for any statistic without data.
const UnknownValue = "Unknown"

// Number is a rounded statistic that serialises as "Unknown" when absent.
type Number struct {
	Value  float64
	Known  bool
	Places int
}

// number treats non-finite values as unknown; JSON cannot carry them.
func number(m stats.Measure, places int) Number {
	known := m.Known && !math.IsNaN(m.Value) && !math.IsInf(m.Value, 0)
	return Number{Value: round(m.Value, places), Known: known, Places: places}
}

// MarshalJSON implements json.Marshaler.
func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Known {
		return json.Marshal(UnknownValue)
	}
	return json.Marshal(n.Value)
}

// Text is a string statistic that serialises as "Unknown" when empty.
type Text string

// MarshalJSON implements json.Marshaler.
func (t Text) MarshalJSON() ([]byte, error) {
	if t == "" {
		return json.Marshal(UnknownValue)
	}
	return json.Marshal(string(t))
}

// ProbeFailure is one entry of the "Probe Failures" list.
type ProbeFailure struct {
	URI    string `json:"URI"`
	Reason string `json:"Reason"`
}

// ProbeMetrics is the FFprobe_Metrics section.
// When Error is set only {"Error": ...} is written.
type ProbeMetrics struct {
	Highest         Number         `json:"Highest Bitrate (Mbps)"`
	Average         Number         `json:"Average Bitrate (Mbps)"`
	Lowest          Number         `json:"Lowest Bitrate (Mbps)"`
	Codec           Text           `json:"Codec"`
	Resolution      Text           `json:"Resolution"`
	FrameRate       Number         `json:"Frame Rate"`
	VideoRange      Text           `json:"Video Range"`
	NetworkCheck    string         `json:"Network Check"`
	SegmentsChecked int            `json:"Segments Checked"`
	FailedSegments  []string       `json:"Failed Segments"`
	ProbeFailures   []ProbeFailure `json:"Probe Failures,omitempty"`

	Error string `json:"-"`
}

// MarshalJSON implements json.Marshaler.
func (p ProbeMetrics) MarshalJSON() ([]byte, error) {
	if p.Error != "" {
		return json.Marshal(struct {
			Error string `json:"Error"`
		}{p.Error})
	}
	type plain ProbeMetrics
	q := plain(p)
	if q.FailedSegments == nil {
		q.FailedSegments = []string{}
	}
	return json.Marshal(q)
}

// PlaybackMetrics is the AVFoundation_Metrics section: category name to
// key/value pairs. Empty categories are never present.
type PlaybackMetrics map[string]map[string]any

// UnifiedReport is the structural union of probe statistics and playback
// telemetry. Playback is nil when no telemetry was supplied.
type UnifiedReport struct {
	Probe    ProbeMetrics
	Playback PlaybackMetrics
}

// ErrorReport builds the report written on systemic failure.
func ErrorReport(cause error) UnifiedReport {
	return UnifiedReport{Probe: ProbeMetrics{Error: cause.Error()}}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
