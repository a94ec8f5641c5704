package probe

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Options configures an Extractor.
type Options struct {
	Concurrency int           // probes in flight for ExtractAll (default: 2)
	Timeout     time.Duration // per-probe timeout (default: 30s)

	// OnResult is called as each target completes. It must be safe for
	// concurrent use.
	OnResult func(Result, time.Duration)
}

// Extractor obtains MediaFacts for probe targets.
// Concurrent requests for the same URI share one backend call.
type Extractor struct {
	backend Backend
	opts    Options
	group   singleflight.Group
	logger  *slog.Logger
}

// NewExtractor creates an Extractor over backend.
func NewExtractor(backend Backend, opts Options, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 2
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Extractor{
		backend: backend,
		opts:    opts,
		logger:  logger,
	}
}

type rawOutcome struct {
	raw *Raw
	err error
}

// ExtractFacts probes one target. It never returns an error: failures are
// reported through Result.Failure.
func (e *Extractor) ExtractFacts(ctx context.Context, t Target) Result {
	start := time.Now()

	v, _, _ := e.group.Do(t.URI, func() (any, error) {
		probeCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
		raw, err := e.backend.Probe(probeCtx, t.URI)
		return rawOutcome{raw: raw, err: err}, nil
	})
	out := v.(rawOutcome)

	res := Result{Target: t}
	if out.err != nil {
		res.Failure = backendFailure(out.err)
	} else {
		res.Facts, res.Failure = Normalize(out.raw, t.Hint)
	}

	elapsed := time.Since(start)
	if res.Failure != nil {
		e.logger.Warn("probe_failed",
			"uri", t.URI,
			"role", t.Role.String(),
			"kind", string(res.Failure.Kind),
			"reason", res.Failure.Reason,
		)
	} else {
		e.logger.Debug("probe_complete",
			"uri", t.URI,
			"role", t.Role.String(),
			"codecs", res.Facts.CodecString(),
			"bitrate_source", string(res.Facts.BitrateSource),
			"duration_ms", elapsed.Milliseconds(),
		)
	}
	if e.opts.OnResult != nil {
		e.opts.OnResult(res, elapsed)
	}
	return res
}

// ExtractAll probes every target with bounded concurrency and returns the
// results in target order.
func (e *Extractor) ExtractAll(ctx context.Context, targets []Target) []Result {
	results := make([]Result, len(targets))

	var g errgroup.Group
	g.SetLimit(e.opts.Concurrency)
	for i, t := range targets {
		g.Go(func() error {
			if ctx.Err() != nil {
				results[i] = Result{Target: t, Failure: backendFailure(ctx.Err())}
				return nil
			}
			results[i] = e.ExtractFacts(ctx, t)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func backendFailure(err error) *Failure {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Failure{Kind: FailureTimeout, Reason: "probe timed out"}
	}
	if errors.Is(err, context.Canceled) {
		return &Failure{Kind: FailureTimeout, Reason: "probe canceled"}
	}
	return &Failure{Kind: FailureBackend, Reason: err.Error()}
}
