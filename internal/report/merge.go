package report

import (
	"strings"

	"github.com/samber/lo"

	"github.com/randomizedcoder/go-hls-analyzer/internal/stats"
	"github.com/randomizedcoder/go-hls-analyzer/internal/telemetry"
)

// Playback categories.
const (
	CategoryBitrate      = "Bitrate"
	CategoryDuration     = "Duration"
	CategoryStatistics   = "Statistics"
	CategoryServer       = "Server"
	CategoryPlayerEvents = "PlayerEvents"
	CategoryOther        = "Other"
)

// categoryKeys assigns known access-log keys to a category.
// Keys not listed here go to Other.
var categoryKeys = map[string][]string{
	CategoryBitrate: {
		"indicatedBitrate", "indicatedAverageBitrate", "observedBitrate",
		"observedMaxBitrate", "observedMinBitrate", "averageVideoBitrate",
		"averageAudioBitrate", "observedBitrateStandardDeviation",
	},
	CategoryDuration: {
		"durationWatched", "transferDuration", "startupTime", "segmentsDownloadedDuration",
	},
	CategoryStatistics: {
		"numberOfSegmentsDownloaded", "numberOfBytesTransferred", "numberOfStalls",
		"numberOfServerAddressChanges", "numberOfMediaRequests", "numberOfDroppedVideoFrames",
	},
	CategoryServer: {
		"serverAddress", "playbackSessionID",
	},
}

var keyCategory = func() map[string]string {
	m := make(map[string]string)
	for cat, keys := range categoryKeys {
		for _, k := range keys {
			m[k] = cat
		}
	}
	return m
}()

// Merge combines aggregate statistics and an optional telemetry snapshot.
// The two sections never share keys.
func Merge(s stats.AggregateStats, snap *telemetry.Snapshot) UnifiedReport {
	return UnifiedReport{
		Probe:    probeMetrics(s),
		Playback: playbackMetrics(snap),
	}
}

func probeMetrics(s stats.AggregateStats) ProbeMetrics {
	p := ProbeMetrics{
		Highest:         number(s.Highest, 3),
		Average:         number(s.Average, 4),
		Lowest:          number(s.Lowest, 3),
		Codec:           Text(s.Codec),
		Resolution:      Text(s.Resolution),
		FrameRate:       number(s.FrameRate, 3),
		VideoRange:      Text(s.VideoRange),
		NetworkCheck:    s.NetworkCheck,
		SegmentsChecked: s.SegmentsChecked,
		FailedSegments:  append([]string{}, s.FailedSegments...),
	}
	p.ProbeFailures = lo.Map(s.ProbeFailures, func(f stats.ProbeFailure, _ int) ProbeFailure {
		return ProbeFailure{URI: f.URI, Reason: f.Reason}
	})
	if len(p.ProbeFailures) == 0 {
		p.ProbeFailures = nil
	}
	return p
}

func playbackMetrics(snap *telemetry.Snapshot) PlaybackMetrics {
	if snap.Empty() {
		return nil
	}

	pm := make(PlaybackMetrics)
	put := func(cat, key string, v any) {
		if pm[cat] == nil {
			pm[cat] = make(map[string]any)
		}
		pm[cat][key] = v
	}

	for _, key := range snap.Keys() {
		v := snap.Counters[key]
		cat, ok := keyCategory[key]
		if !ok {
			put(CategoryOther, key, v)
			continue
		}
		if f, isNum := v.(float64); isNum && f > 1000 && strings.Contains(strings.ToLower(key), "bitrate") {
			v = round(f/1_000_000, 3)
		}
		put(cat, key, v)
	}

	if n, ok := snap.Number("numberOfStalls"); ok {
		put(CategoryStatistics, "BufferingEvents", n)
	}
	if n, ok := snap.Number("startupTime"); ok {
		put(CategoryDuration, "InitialBufferingTime", round(n, 2))
	}

	if len(snap.PlayEvents) > 0 || len(snap.PauseEvents) > 0 {
		put(CategoryPlayerEvents, "PlayCount", len(snap.PlayEvents))
		put(CategoryPlayerEvents, "PauseCount", len(snap.PauseEvents))
		put(CategoryPlayerEvents, "PlayEvents", nonNil(snap.PlayEvents))
		put(CategoryPlayerEvents, "PauseEvents", nonNil(snap.PauseEvents))
	}

	if len(pm) == 0 {
		return nil
	}
	return pm
}

func nonNil(events []telemetry.PlayerEvent) []telemetry.PlayerEvent {
	if events == nil {
		return []telemetry.PlayerEvent{}
	}
	return events
}
