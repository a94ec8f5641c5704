// Package analyzer runs one analysis of an HLS manifest: load and parse,
// check segment availability and probe media facts concurrently, aggregate,
// merge telemetry and emit the report.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/randomizedcoder/go-hls-analyzer/internal/availability"
	"github.com/randomizedcoder/go-hls-analyzer/internal/config"
	"github.com/randomizedcoder/go-hls-analyzer/internal/hls"
	"github.com/randomizedcoder/go-hls-analyzer/internal/logging"
	"github.com/randomizedcoder/go-hls-analyzer/internal/metrics"
	"github.com/randomizedcoder/go-hls-analyzer/internal/probe"
	"github.com/randomizedcoder/go-hls-analyzer/internal/report"
	"github.com/randomizedcoder/go-hls-analyzer/internal/source"
	"github.com/randomizedcoder/go-hls-analyzer/internal/stats"
	"github.com/randomizedcoder/go-hls-analyzer/internal/telemetry"
)

// Callbacks receive progress as the run proceeds. All are optional and
// may be called from worker goroutines.
type Callbacks struct {
	OnPlan    func(segments, probes int)
	OnOutcome func(availability.Outcome)
	OnResult  func(probe.Result)
}

// Analyzer coordinates the components of one run.
type Analyzer struct {
	cfg    *config.Config
	logger *slog.Logger
	runID  string

	fs        afero.Fs
	client    *http.Client
	backend   probe.Backend
	loader    *source.Loader
	checker   *availability.Checker
	extractor *probe.Extractor
	emitter   *report.Emitter
	collector *metrics.Collector
	callbacks Callbacks
}

// Option customizes an Analyzer.
type Option func(*Analyzer)

// WithHTTPClient sets the client used for manifests and segment checks.
func WithHTTPClient(c *http.Client) Option {
	return func(a *Analyzer) { a.client = c }
}

// WithFs sets the filesystem for local manifests, file:// segments and
// the telemetry snapshot.
func WithFs(fsys afero.Fs) Option {
	return func(a *Analyzer) { a.fs = fsys }
}

// WithBackend replaces the ffprobe backend.
func WithBackend(b probe.Backend) Option {
	return func(a *Analyzer) { a.backend = b }
}

// WithCollector records the run into Prometheus metrics.
func WithCollector(c *metrics.Collector) Option {
	return func(a *Analyzer) { a.collector = c }
}

// WithCallbacks sets progress callbacks.
func WithCallbacks(cb Callbacks) Option {
	return func(a *Analyzer) { a.callbacks = cb }
}

// WithRunID overrides the generated run id.
func WithRunID(id string) Option {
	return func(a *Analyzer) { a.runID = id }
}

// New creates an Analyzer for cfg.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Analyzer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	header, err := config.ParseHeaders(cfg.Headers)
	if err != nil {
		return nil, err
	}
	reqOpts := source.RequestOptions{UserAgent: cfg.UserAgent, Header: header}

	a := &Analyzer{
		cfg:    cfg,
		runID:  uuid.NewString(),
		logger: logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = logging.WithRun(logger, a.runID, cfg.Manifest)

	if a.fs == nil {
		a.fs = afero.NewOsFs()
	}
	if a.client == nil {
		a.client = newHTTPClient(cfg)
	}
	if a.backend == nil {
		a.backend = probe.NewFFprobe(cfg.FFprobePath, cfg.UserAgent, a.logger, cfg.Verbose)
	}

	a.loader = source.NewLoader(a.client, a.fs, reqOpts, cfg.ManifestTimeout, a.logger)
	a.checker = availability.NewChecker(a.client, a.fs, availability.Options{
		Concurrency: cfg.Concurrency,
		Timeout:     cfg.RequestTimeout,
		Method:      availability.Method(cfg.CheckMethod),
		Rate:        cfg.Rate,
		Request:     reqOpts,
		OnOutcome:   a.onOutcome,
	}, a.logger)
	a.extractor = probe.NewExtractor(a.backend, probe.Options{
		Concurrency: cfg.ProbeConcurrency,
		Timeout:     cfg.ProbeTimeout,
		OnResult:    a.onResult,
	}, a.logger)
	a.emitter = report.NewEmitter(cfg.OutputPath, a.logger)

	return a, nil
}

// newHTTPClient builds a client sized for the check pool. Timeouts are per
// request, set by the checker and loader.
func newHTTPClient(cfg *config.Config) *http.Client {
	base := http.DefaultTransport.(*http.Transport).Clone()
	base.MaxIdleConnsPerHost = cfg.Concurrency
	base.MaxConnsPerHost = cfg.Concurrency * 2

	var rt http.RoundTripper = base
	if cfg.Retries > 0 {
		rt = availability.NewRetryTransport(base, cfg.Retries, availability.DefaultBackoffConfig())
	}
	return &http.Client{Transport: rt}
}

// RunID returns the id attached to this run's logs and metrics.
func (a *Analyzer) RunID() string {
	return a.runID
}

// Run holds everything one analysis produced.
type Run struct {
	ID           string
	Manifest     *hls.Manifest
	Availability availability.Result
	Probes       []probe.Result
	Stats        stats.AggregateStats
	Report       report.UnifiedReport
	Duration     time.Duration
}

// Run analyzes the configured manifest and writes the report.
//
// Per-segment and per-probe failures are data in the returned Run. A
// *SystemicError is returned when the manifest cannot be loaded or parsed,
// or when segments were listed and none was reachable; in that case an
// error report is written instead. Checks still in flight when the
// configured deadline passes resolve to unreachable (timeout).
func (a *Analyzer) Run(ctx context.Context) (*Run, error) {
	start := time.Now()
	run := &Run{ID: a.runID}

	if a.cfg.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Deadline)
		defer cancel()
	}

	a.logger.Info("run_starting",
		"concurrency", a.cfg.Concurrency,
		"probe", a.cfg.ProbeEnabled,
		"deadline", a.cfg.Deadline.String(),
	)

	err := a.run(ctx, run)
	run.Duration = time.Since(start)

	if err != nil {
		a.fail(err)
		a.finish(run, false)
		return run, err
	}

	if emitErr := a.emitter.Emit(run.Report); emitErr != nil {
		a.finish(run, false)
		return run, fmt.Errorf("write report: %w", emitErr)
	}
	a.finish(run, true)
	return run, nil
}

func (a *Analyzer) run(ctx context.Context, run *Run) error {
	raw, base, err := a.loader.Load(ctx, a.cfg.Manifest)
	if err != nil {
		return &SystemicError{Stage: StageLoad, Err: err}
	}

	m, err := hls.Parse(raw, base)
	if err != nil {
		return &SystemicError{Stage: StageParse, Err: err}
	}
	run.Manifest = m
	a.logger.Info("manifest_parsed",
		"kind", m.Kind.String(),
		"variants", len(m.Variants),
		"segments", len(m.Segments),
		"duration_s", m.TotalDuration(),
	)

	p := a.buildPlan(ctx, m)
	planned := p.distinctSegments() + len(p.playlistFailures)
	if planned == 0 {
		a.logger.Info("no_segments_listed", "kind", m.Kind.String())
	}
	if a.collector != nil {
		a.collector.SetPlanned(planned)
	}
	if a.callbacks.OnPlan != nil {
		a.callbacks.OnPlan(planned, len(p.targets))
	}
	for _, o := range p.playlistFailures {
		a.onOutcome(o)
	}

	// Neither side fails the group: local failures are data.
	var avail availability.Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		avail, _ = a.checker.Check(gctx, p.segments)
		return nil
	})
	g.Go(func() error {
		run.Probes = a.extractor.ExtractAll(gctx, p.targets)
		return nil
	})
	_ = g.Wait()

	run.Availability = mergePlaylistFailures(avail, p.playlistFailures)
	run.Stats = stats.Aggregate(run.Probes, run.Availability)
	if a.collector != nil {
		a.collector.RecordStats(run.Stats)
	}

	if err := run.Availability.Err(); err != nil {
		return &SystemicError{Stage: StageAvailability, Err: err}
	}

	run.Report = report.Merge(run.Stats, a.loadTelemetry())
	return nil
}

// loadTelemetry returns the snapshot, or nil when there is none. A bad
// snapshot is logged and left out of the report.
func (a *Analyzer) loadTelemetry() *telemetry.Snapshot {
	snap, err := telemetry.Load(a.fs, a.cfg.TelemetryPath, a.logger)
	switch {
	case err == nil:
		return snap
	case errors.Is(err, telemetry.ErrEmptySnapshot):
		a.logger.Info("telemetry_empty", "path", a.cfg.TelemetryPath)
	case errors.Is(err, fs.ErrNotExist):
		a.logger.Warn("telemetry_missing", "path", a.cfg.TelemetryPath)
	default:
		a.logger.Warn("telemetry_invalid", "path", a.cfg.TelemetryPath, "error", err)
	}
	return nil
}

// fail writes the error report for a systemic failure.
func (a *Analyzer) fail(err error) {
	a.logger.Error("run_failed", "error", err)
	if emitErr := a.emitter.Emit(report.ErrorReport(err)); emitErr != nil {
		a.logger.Error("error_report_failed", "error", emitErr)
	}
}

func (a *Analyzer) finish(run *Run, success bool) {
	if a.collector != nil {
		a.collector.RecordRun(run.Duration, success)
	}
	a.logger.Info("run_complete",
		"success", success,
		"segments_checked", len(run.Availability),
		"unreachable", len(run.Stats.FailedSegments),
		"probes", len(run.Probes),
		"probe_failures", len(run.Stats.ProbeFailures),
		"duration_ms", run.Duration.Milliseconds(),
	)
}

func (a *Analyzer) onOutcome(o availability.Outcome) {
	if a.collector != nil {
		a.collector.RecordCheck(o)
	}
	if a.callbacks.OnOutcome != nil {
		a.callbacks.OnOutcome(o)
	}
}

func (a *Analyzer) onResult(r probe.Result, d time.Duration) {
	if a.collector != nil {
		a.collector.RecordProbe(r, d)
	}
	if a.callbacks.OnResult != nil {
		a.callbacks.OnResult(r)
	}
}
