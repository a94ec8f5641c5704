// Package metrics provides Prometheus metrics for go-hls-analyzer.
//
// A Collector is registered on a caller-supplied Registerer so each run
// (and each test) can use its own registry. Metrics are exposed on a live
// /metrics endpoint, written to a node_exporter textfile, or both.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/go-hls-analyzer/internal/availability"
	"github.com/randomizedcoder/go-hls-analyzer/internal/probe"
	"github.com/randomizedcoder/go-hls-analyzer/internal/stats"
)

const namespace = "hls_analyzer"

// Label values for probe results.
const (
	ProbeOK = "ok"
)

// CollectorConfig holds configuration for the collector.
type CollectorConfig struct {
	Version  string
	Manifest string
	RunID    string
}

// Collector manages all Prometheus metrics for an analysis run.
type Collector struct {
	// --- Panel 1: Run Overview ---
	info            *prometheus.GaugeVec
	segmentsPlanned prometheus.Gauge
	runDuration     prometheus.Gauge
	lastRunSuccess  prometheus.Gauge

	// --- Panel 2: Segment Availability ---
	checksTotal    *prometheus.CounterVec
	checkLatency   prometheus.Histogram
	failedSegments prometheus.Gauge

	// --- Panel 3: Media Probes ---
	probesTotal   *prometheus.CounterVec
	probeDuration prometheus.Histogram

	// --- Panel 4: Media Facts ---
	bitrateMbps *prometheus.GaugeVec
	frameRate   prometheus.Gauge

	mu          sync.Mutex
	checked     int
	unreachable int
	probed      int
	probeFailed int
}

// NewCollector creates a collector registered on the default registry.
func NewCollector(cfg CollectorConfig) *Collector {
	return NewCollectorWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a collector with a custom registry.
func NewCollectorWithRegistry(cfg CollectorConfig, registry prometheus.Registerer) *Collector {
	c := &Collector{
		info: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "info",
				Help:      "Information about the analysis run (value always 1)",
			},
			[]string{"version", "manifest", "run_id"},
		),
		segmentsPlanned: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "segments_planned",
			Help:      "Distinct segment URIs scheduled for checking",
		}),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of the analysis run",
		}),
		lastRunSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_success",
			Help:      "1 if the run produced a report without systemic failure",
		}),

		checksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "segment_checks_total",
				Help:      "Segment availability checks by status and failure category",
			},
			[]string{"status", "category"},
		),
		checkLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "segment_check_latency_seconds",
			Help:      "Latency of segment availability checks",
			Buckets: []float64{
				0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
			},
		}),
		failedSegments: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "failed_segments",
			Help:      "Segments found unreachable in the last run",
		}),

		probesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "probes_total",
				Help:      "Media probes by result (ok or failure kind)",
			},
			[]string{"result"},
		),
		probeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "probe_duration_seconds",
			Help:      "Duration of media probes",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),

		bitrateMbps: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "bitrate_mbps",
				Help:      "Aggregate bitrate across probed renditions",
			},
			[]string{"stat"},
		),
		frameRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "frame_rate",
			Help:      "Representative frame rate in frames per second",
		}),
	}

	registry.MustRegister(
		// Panel 1: Run Overview
		c.info,
		c.segmentsPlanned,
		c.runDuration,
		c.lastRunSuccess,

		// Panel 2: Segment Availability
		c.checksTotal,
		c.checkLatency,
		c.failedSegments,

		// Panel 3: Media Probes
		c.probesTotal,
		c.probeDuration,

		// Panel 4: Media Facts
		c.bitrateMbps,
		c.frameRate,
	)

	c.info.WithLabelValues(cfg.Version, cfg.Manifest, cfg.RunID).Set(1)
	return c
}

// =============================================================================
// Event Recording Methods
// =============================================================================

// SetPlanned records how many distinct segments will be checked.
func (c *Collector) SetPlanned(n int) {
	c.segmentsPlanned.Set(float64(n))
}

// RecordCheck records one segment availability outcome.
func (c *Collector) RecordCheck(o availability.Outcome) {
	category := string(o.Category)
	if o.Status == availability.Available {
		category = "none"
	}
	c.checksTotal.WithLabelValues(o.Status.String(), category).Inc()
	if o.Status == availability.Available {
		c.checkLatency.Observe(o.Latency.Seconds())
	}

	c.mu.Lock()
	c.checked++
	if o.Status == availability.Unreachable {
		c.unreachable++
	}
	c.mu.Unlock()
}

// RecordProbe records one media probe result.
func (c *Collector) RecordProbe(r probe.Result, d time.Duration) {
	result := ProbeOK
	if r.Failure != nil {
		result = string(r.Failure.Kind)
	}
	c.probesTotal.WithLabelValues(result).Inc()
	c.probeDuration.Observe(d.Seconds())

	c.mu.Lock()
	c.probed++
	if r.Failure != nil {
		c.probeFailed++
	}
	c.mu.Unlock()
}

// RecordStats publishes the aggregate figures of a finished run.
// Unknown statistics leave their gauges unset.
func (c *Collector) RecordStats(s stats.AggregateStats) {
	set := func(stat string, m stats.Measure) {
		if m.Known {
			c.bitrateMbps.WithLabelValues(stat).Set(m.Value)
		}
	}
	set("highest", s.Highest)
	set("average", s.Average)
	set("lowest", s.Lowest)

	if s.FrameRate.Known {
		c.frameRate.Set(s.FrameRate.Value)
	}
	c.failedSegments.Set(float64(len(s.FailedSegments)))
}

// RecordRun records the run's duration and whether it succeeded.
func (c *Collector) RecordRun(d time.Duration, success bool) {
	c.runDuration.Set(d.Seconds())
	if success {
		c.lastRunSuccess.Set(1)
	} else {
		c.lastRunSuccess.Set(0)
	}
}

// =============================================================================
// Progress
// =============================================================================

// Progress is a point-in-time view of the run's counters.
type Progress struct {
	Checked     int
	Unreachable int
	Probed      int
	ProbeFailed int
}

// Progress returns the current counters.
func (c *Collector) Progress() Progress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Progress{
		Checked:     c.checked,
		Unreachable: c.unreachable,
		Probed:      c.probed,
		ProbeFailed: c.probeFailed,
	}
}
