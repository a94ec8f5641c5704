package availability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/randomizedcoder/go-hls-analyzer/internal/hls"
	"github.com/randomizedcoder/go-hls-analyzer/internal/source"
)

// Method selects the request used to check a segment.
type Method string

const (
	// MethodHead sends HEAD and falls back to a ranged GET on 405/501.
	MethodHead Method = "head"
	// MethodRange always sends GET with Range: bytes=0-0.
	MethodRange Method = "range"
)

// Options configures a Checker.
type Options struct {
	Concurrency int           // maximum checks in flight (default: 10)
	Timeout     time.Duration // per-request timeout (default: 5s)
	Method      Method
	Rate        float64 // requests per second, 0 = unlimited
	Request     source.RequestOptions

	// OnOutcome is called from worker goroutines as each check completes.
	// It must be safe for concurrent use.
	OnOutcome func(Outcome)
}

// Checker verifies segment availability with bounded concurrency.
type Checker struct {
	client  *http.Client
	fs      afero.Fs
	opts    Options
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewChecker creates a Checker. The client should not set its own Timeout;
// per-request timeouts come from Options.Timeout.
func NewChecker(client *http.Client, fs afero.Fs, opts Options, logger *slog.Logger) *Checker {
	if client == nil {
		client = http.DefaultClient
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 10
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Method == "" {
		opts.Method = MethodHead
	}

	c := &Checker{
		client: client,
		fs:     fs,
		opts:   opts,
		logger: logger,
	}
	if opts.Rate > 0 {
		burst := max(1, int(opts.Rate))
		c.limiter = rate.NewLimiter(rate.Limit(opts.Rate), burst)
	}
	return c
}

// Check probes every distinct segment URI once.
//
// The returned Result always holds one entry per distinct URI. Checks that
// could not start before ctx ended resolve to Unreachable (timeout or
// canceled). When at least one URI was checked and none is available the
// error is a *NoneReachableError matching ErrNoSegmentReachable.
func (c *Checker) Check(ctx context.Context, segments []hls.SegmentRef) (Result, error) {
	uris := lo.Uniq(lo.Map(segments, func(s hls.SegmentRef, _ int) string { return s.URI }))
	result := make(Result, len(uris))
	if len(uris) == 0 {
		return result, nil
	}

	start := time.Now()
	slots := make([]Outcome, len(uris))

	var g errgroup.Group
	g.SetLimit(c.opts.Concurrency)
	for i, uri := range uris {
		g.Go(func() error {
			o := c.checkOne(ctx, i, uri)
			slots[i] = o
			if c.opts.OnOutcome != nil {
				c.opts.OnOutcome(o)
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range slots {
		result[o.URI] = o
	}

	failed := result.Unreachable()
	c.logger.Info("availability_complete",
		"checked", len(uris),
		"available", len(uris)-len(failed),
		"unreachable", len(failed),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return result, result.Err()
}

func (c *Checker) checkOne(ctx context.Context, order int, uri string) Outcome {
	o := Outcome{URI: uri, Order: order, Status: Unreachable}

	if ctx.Err() != nil {
		o.Category = contextCategory(ctx)
		return o
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			// Wait fails early when the deadline would pass before a token frees up
			o.Category = contextCategory(ctx)
			return o
		}
	}

	start := time.Now()
	var (
		code int
		err  error
	)
	if path, ok := source.LocalPath(uri); ok {
		err = c.statFile(path)
	} else {
		reqCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
		code, err = c.checkHTTP(reqCtx, uri)
		cancel()
	}
	o.Latency = time.Since(start)
	o.Code = code

	switch {
	case err != nil:
		o.Category = classifyError(err)
		if o.Category == CategoryCanceled && ctx.Err() == nil {
			o.Category = CategoryTransport
		}
	case code != 0 && !reachableStatus(code):
		o.Category = CategoryHTTPStatus
	default:
		o.Status = Available
	}

	if o.Status == Unreachable {
		attrs := []any{"uri", uri, "category", string(o.Category), "code", o.Code}
		if err != nil {
			attrs = append(attrs, "error", err)
		}
		c.logger.Warn("segment_unreachable", attrs...)
	} else {
		c.logger.Debug("segment_available", "uri", uri, "code", o.Code, "latency_ms", o.Latency.Milliseconds())
	}
	return o
}

// reachableStatus accepts 2xx, and 416 which a ranged GET gets for an
// empty resource.
func reachableStatus(code int) bool {
	return (code >= 200 && code <= 299) || code == http.StatusRequestedRangeNotSatisfiable
}

// checkHTTP returns the final status code of the lightweight probe.
func (c *Checker) checkHTTP(ctx context.Context, uri string) (int, error) {
	if c.opts.Method == MethodHead {
		code, err := c.do(ctx, http.MethodHead, uri)
		if err != nil {
			return 0, err
		}
		if code != http.StatusMethodNotAllowed && code != http.StatusNotImplemented {
			return code, nil
		}
		c.logger.Debug("head_not_supported", "uri", uri, "code", code)
	}
	return c.do(ctx, http.MethodGet, uri)
}

func (c *Checker) do(ctx context.Context, method, uri string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, uri, nil)
	if err != nil {
		return 0, fmt.Errorf("build %s request: %w", method, err)
	}
	c.opts.Request.Apply(req)
	if method == http.MethodGet {
		req.Header.Set("Range", "bytes=0-0")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	// Servers that ignore Range still stream the whole segment; read only a little
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return resp.StatusCode, nil
}

func (c *Checker) statFile(path string) error {
	info, err := c.fs.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	return nil
}

// NoneReachableError reports that every checked URI was unreachable.
type NoneReachableError struct {
	Total    int
	Category Category // most frequent failure category
}

func (e *NoneReachableError) Error() string {
	return fmt.Sprintf("%s: all %d segments unreachable (mostly %s)", ErrNoSegmentReachable, e.Total, e.Category)
}

func (e *NoneReachableError) Unwrap() error {
	return ErrNoSegmentReachable
}
