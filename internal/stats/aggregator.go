// Package stats reduces probe results and availability outcomes into the
// aggregate figures of an analysis report.
package stats

import (
	"fmt"
	"time"

	"github.com/influxdata/tdigest"
	"github.com/samber/lo"

	"github.com/randomizedcoder/go-hls-analyzer/internal/availability"
	"github.com/randomizedcoder/go-hls-analyzer/internal/probe"
)

// NetworkAllAvailable is the network check when no segment failed.
const NetworkAllAvailable = "All segments available"

// Measure is a numeric statistic that may be unknown.
type Measure struct {
	Value float64
	Known bool
}

// Known returns a known measure.
func Known(v float64) Measure {
	return Measure{Value: v, Known: true}
}

// Unknown is the sentinel for a statistic with no data.
var Unknown = Measure{}

// ProbeFailure names a probe target that produced no facts.
type ProbeFailure struct {
	URI    string
	Reason string
}

// LatencySummary holds check latency percentiles over available segments.
type LatencySummary struct {
	Samples int
	P50     time.Duration
	P95     time.Duration
	P99     time.Duration
}

// AggregateStats is the aggregate view of one analysis run.
// Empty strings mean unknown.
type AggregateStats struct {
	Highest Measure // Mbps
	Average Measure // Mbps
	Lowest  Measure // Mbps

	FrameRate  Measure
	Codec      string
	Resolution string
	VideoRange string

	SegmentsChecked int
	FailedSegments  []string // unreachable URIs in manifest order
	NetworkCheck    string

	ProbesAttempted int
	ProbeFailures   []ProbeFailure // in target order

	Latency LatencySummary
}

// Aggregate computes AggregateStats. It is pure and deterministic.
//
// The bitrate set is the variant-role results when any exist, otherwise
// the manifest-role results; only facts carrying a bitrate count.
// Codec, resolution, frame rate and video range come from the first
// manifest-role result with facts.
func Aggregate(results []probe.Result, avail availability.Result) AggregateStats {
	var s AggregateStats

	aggregateBitrates(&s, results)
	aggregateRepresentative(&s, results)

	s.ProbesAttempted = len(results)
	for _, r := range results {
		if r.Failure != nil {
			s.ProbeFailures = append(s.ProbeFailures, ProbeFailure{URI: r.Target.URI, Reason: r.Failure.Error()})
		}
	}

	s.SegmentsChecked = len(avail)
	failed := avail.Unreachable()
	s.FailedSegments = lo.Map(failed, func(o availability.Outcome, _ int) string { return o.URI })
	s.NetworkCheck = networkCheck(len(failed))

	s.Latency = latencySummary(avail)
	return s
}

func aggregateBitrates(s *AggregateStats, results []probe.Result) {
	set := lo.Filter(results, func(r probe.Result, _ int) bool { return r.Target.Role == probe.RoleVariant })
	if len(set) == 0 {
		set = lo.Filter(results, func(r probe.Result, _ int) bool { return r.Target.Role == probe.RoleManifest })
	}

	rates := lo.FilterMap(set, func(r probe.Result, _ int) (float64, bool) {
		if r.Facts == nil {
			return 0, false
		}
		return r.Facts.BitrateMbps.Get()
	})
	if len(rates) == 0 {
		s.Highest, s.Average, s.Lowest = Unknown, Unknown, Unknown
		return
	}

	s.Highest = Known(lo.Max(rates))
	s.Lowest = Known(lo.Min(rates))
	s.Average = Known(lo.Sum(rates) / float64(len(rates)))
}

func aggregateRepresentative(s *AggregateStats, results []probe.Result) {
	rep, ok := lo.Find(results, func(r probe.Result) bool {
		return r.Target.Role == probe.RoleManifest && r.Facts != nil
	})
	if !ok {
		s.FrameRate = Unknown
		return
	}

	f := rep.Facts
	s.Codec = f.CodecString()
	if res, ok := f.Resolution.Get(); ok {
		s.Resolution = res.String()
	}
	if fr, ok := f.FrameRate.Get(); ok {
		s.FrameRate = Known(fr.Float())
	}
	s.VideoRange = f.VideoRange
}

func networkCheck(failed int) string {
	if failed == 0 {
		return NetworkAllAvailable
	}
	return fmt.Sprintf("%d segments unavailable", failed)
}

func latencySummary(avail availability.Result) LatencySummary {
	td := tdigest.NewWithCompression(100)
	n := 0
	for _, o := range avail.Ordered() {
		if o.Status != availability.Available {
			continue
		}
		td.Add(float64(o.Latency), 1)
		n++
	}
	if n == 0 {
		return LatencySummary{}
	}
	return LatencySummary{
		Samples: n,
		P50:     time.Duration(td.Quantile(0.50)),
		P95:     time.Duration(td.Quantile(0.95)),
		P99:     time.Duration(td.Quantile(0.99)),
	}
}
