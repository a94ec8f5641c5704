package availability

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/goleak"

	"github.com/randomizedcoder/go-hls-analyzer/internal/hls"
	"github.com/randomizedcoder/go-hls-analyzer/internal/source"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func segments(base string, names ...string) []hls.SegmentRef {
	refs := make([]hls.SegmentRef, len(names))
	for i, n := range names {
		refs[i] = hls.SegmentRef{URI: base + "/" + n, Duration: 6, Sequence: int64(i)}
	}
	return refs
}

// segmentServer answers 200 for every path except those listed in status.
func segmentServer(t *testing.T, status map[string]int) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if code, ok := status[r.URL.Path]; ok {
			w.WriteHeader(code)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

// =============================================================================
// Basic outcomes
// =============================================================================

func TestCheck_AllAvailable(t *testing.T) {
	srv, hits := segmentServer(t, nil)
	c := NewChecker(srv.Client(), nil, Options{Concurrency: 2}, quietLogger())

	res, err := c.Check(context.Background(), segments(srv.URL, "a.ts", "b.ts", "c.ts"))
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if len(res) != 3 {
		t.Fatalf("len(result) = %d, want 3", len(res))
	}
	if res.Available() != 3 {
		t.Errorf("Available() = %d, want 3", res.Available())
	}
	if got := hits.Load(); got != 3 {
		t.Errorf("requests = %d, want 3", got)
	}
	for _, o := range res {
		if o.Code != http.StatusOK {
			t.Errorf("%s code = %d, want 200", o.URI, o.Code)
		}
	}
}

func TestCheck_OneMissing(t *testing.T) {
	srv, _ := segmentServer(t, map[string]int{"/b.ts": http.StatusNotFound})
	c := NewChecker(srv.Client(), nil, Options{}, quietLogger())

	res, err := c.Check(context.Background(), segments(srv.URL, "a.ts", "b.ts", "c.ts"))
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}

	failed := res.Unreachable()
	if len(failed) != 1 {
		t.Fatalf("unreachable = %d, want 1", len(failed))
	}
	got := failed[0]
	if got.URI != srv.URL+"/b.ts" || got.Code != 404 || got.Category != CategoryHTTPStatus {
		t.Errorf("outcome = %+v", got)
	}
	if got.Reason() != "HTTP 404" {
		t.Errorf("Reason() = %q, want HTTP 404", got.Reason())
	}
}

func TestCheck_DuplicateURIsCheckedOnce(t *testing.T) {
	srv, hits := segmentServer(t, nil)
	c := NewChecker(srv.Client(), nil, Options{}, quietLogger())

	refs := segments(srv.URL, "a.ts", "b.ts", "a.ts", "a.ts")
	res, err := c.Check(context.Background(), refs)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if len(res) != 2 {
		t.Errorf("len(result) = %d, want 2", len(res))
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("requests = %d, want 2", got)
	}
	if o := res[srv.URL+"/b.ts"]; o.Order != 1 {
		t.Errorf("b.ts order = %d, want 1", o.Order)
	}
}

func TestCheck_Empty(t *testing.T) {
	c := NewChecker(nil, nil, Options{}, quietLogger())
	res, err := c.Check(context.Background(), nil)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if len(res) != 0 {
		t.Errorf("len(result) = %d, want 0", len(res))
	}
}

func TestCheck_NoneReachable(t *testing.T) {
	srv, _ := segmentServer(t, map[string]int{
		"/a.ts": http.StatusForbidden,
		"/b.ts": http.StatusForbidden,
	})
	c := NewChecker(srv.Client(), nil, Options{}, quietLogger())

	res, err := c.Check(context.Background(), segments(srv.URL, "a.ts", "b.ts"))
	if !errors.Is(err, ErrNoSegmentReachable) {
		t.Fatalf("error = %v, want ErrNoSegmentReachable", err)
	}
	var nre *NoneReachableError
	if !errors.As(err, &nre) {
		t.Fatalf("error type = %T", err)
	}
	if nre.Total != 2 || nre.Category != CategoryHTTPStatus {
		t.Errorf("NoneReachableError = %+v", nre)
	}
	if len(res) != 2 {
		t.Errorf("result must still be complete, got %d entries", len(res))
	}
}

// =============================================================================
// Request method
// =============================================================================

func TestCheck_HeadFallsBackToRange(t *testing.T) {
	var mu sync.Mutex
	var methods []string
	var ranges []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		methods = append(methods, r.Method)
		ranges = append(ranges, r.Header.Get("Range"))
		mu.Unlock()
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte{0x47})
	}))
	defer srv.Close()

	c := NewChecker(srv.Client(), nil, Options{}, quietLogger())
	res, err := c.Check(context.Background(), segments(srv.URL, "a.ts"))
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if o := res[srv.URL+"/a.ts"]; o.Status != Available || o.Code != http.StatusPartialContent {
		t.Errorf("outcome = %+v", o)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(methods) != 2 || methods[0] != http.MethodHead || methods[1] != http.MethodGet {
		t.Errorf("methods = %v, want [HEAD GET]", methods)
	}
	if ranges[1] != "bytes=0-0" {
		t.Errorf("Range = %q, want bytes=0-0", ranges[1])
	}
}

func TestCheck_EmptySegmentRangeNotSatisfiable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/missing.ts":
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodHead:
			w.WriteHeader(http.StatusMethodNotAllowed)
		default:
			w.Header().Set("Content-Range", "bytes */0")
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		}
	}))
	defer srv.Close()

	c := NewChecker(srv.Client(), nil, Options{}, quietLogger())
	res, err := c.Check(context.Background(), segments(srv.URL, "empty.ts", "missing.ts"))
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if o := res[srv.URL+"/empty.ts"]; o.Status != Available || o.Code != http.StatusRequestedRangeNotSatisfiable {
		t.Errorf("empty.ts outcome = %+v, want available with 416", o)
	}
	if o := res[srv.URL+"/missing.ts"]; o.Status != Unreachable || o.Code != http.StatusNotFound {
		t.Errorf("missing.ts outcome = %+v, want unreachable 404", o)
	}
}

func TestCheck_RangeMethod(t *testing.T) {
	var gotMethod atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod.Store(r.Method)
		w.WriteHeader(http.StatusPartialContent)
	}))
	defer srv.Close()

	c := NewChecker(srv.Client(), nil, Options{Method: MethodRange}, quietLogger())
	if _, err := c.Check(context.Background(), segments(srv.URL, "a.ts")); err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if gotMethod.Load() != http.MethodGet {
		t.Errorf("method = %v, want GET", gotMethod.Load())
	}
}

func TestCheck_RequestOptions(t *testing.T) {
	var gotUA atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA.Store(r.Header.Get("User-Agent"))
	}))
	defer srv.Close()

	opts := Options{Request: source.RequestOptions{UserAgent: "checker/1"}}
	c := NewChecker(srv.Client(), nil, opts, quietLogger())
	if _, err := c.Check(context.Background(), segments(srv.URL, "a.ts")); err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if gotUA.Load() != "checker/1" {
		t.Errorf("User-Agent = %v", gotUA.Load())
	}
}

// =============================================================================
// Timeouts and transport failures
// =============================================================================

func TestCheck_PerRequestTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/slow.ts" {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewChecker(srv.Client(), nil, Options{Timeout: 50 * time.Millisecond}, quietLogger())
	res, err := c.Check(context.Background(), segments(srv.URL, "fast.ts", "slow.ts"))
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	slow := res[srv.URL+"/slow.ts"]
	if slow.Status != Unreachable || slow.Category != CategoryTimeout {
		t.Errorf("slow outcome = %+v, want timeout", slow)
	}
	if fast := res[srv.URL+"/fast.ts"]; fast.Status != Available {
		t.Errorf("fast outcome = %+v", fast)
	}
}

func TestCheck_OverallDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	// One worker: the first check blocks until the deadline, the rest never start
	c := NewChecker(srv.Client(), nil, Options{Concurrency: 1, Timeout: 10 * time.Second}, quietLogger())
	res, err := c.Check(ctx, segments(srv.URL, "a.ts", "b.ts", "c.ts", "d.ts"))
	if !errors.Is(err, ErrNoSegmentReachable) {
		t.Fatalf("error = %v, want ErrNoSegmentReachable", err)
	}
	if len(res) != 4 {
		t.Fatalf("len(result) = %d, want 4", len(res))
	}
	for _, o := range res {
		if o.Status != Unreachable || o.Category != CategoryTimeout {
			t.Errorf("%s outcome = %+v, want timeout", o.URI, o)
		}
	}
}

func TestCheck_Canceled(t *testing.T) {
	srv, hits := segmentServer(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewChecker(srv.Client(), nil, Options{}, quietLogger())
	res, err := c.Check(ctx, segments(srv.URL, "a.ts", "b.ts"))
	if !errors.Is(err, ErrNoSegmentReachable) {
		t.Fatalf("error = %v", err)
	}
	for _, o := range res {
		if o.Category != CategoryCanceled {
			t.Errorf("%s category = %q, want canceled", o.URI, o.Category)
		}
	}
	if hits.Load() != 0 {
		t.Errorf("requests = %d, want 0", hits.Load())
	}
}

func TestCheck_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewChecker(&http.Client{}, nil, Options{}, quietLogger())
	res, _ := c.Check(context.Background(), segments(url, "a.ts"))
	if o := res[url+"/a.ts"]; o.Category != CategoryConnectionRefused {
		t.Errorf("category = %q, want connection_refused", o.Category)
	}
}

// =============================================================================
// Local files
// =============================================================================

func TestCheck_FileURIs(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/media/a.ts", []byte{0x47}, 0o644); err != nil {
		t.Fatal(err)
	}

	c := NewChecker(nil, fs, Options{}, quietLogger())
	res, err := c.Check(context.Background(), segments("file:///media", "a.ts", "b.ts"))
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if o := res["file:///media/a.ts"]; o.Status != Available {
		t.Errorf("a.ts outcome = %+v", o)
	}
	if o := res["file:///media/b.ts"]; o.Status != Unreachable || o.Category != CategoryNotFound {
		t.Errorf("b.ts outcome = %+v", o)
	}
}

// =============================================================================
// Callbacks, rate limiting, goroutine hygiene
// =============================================================================

func TestCheck_OnOutcome(t *testing.T) {
	srv, _ := segmentServer(t, map[string]int{"/c.ts": 500})
	var calls, failed atomic.Int64
	opts := Options{
		Concurrency: 3,
		OnOutcome: func(o Outcome) {
			calls.Add(1)
			if o.Status == Unreachable {
				failed.Add(1)
			}
		},
	}

	c := NewChecker(srv.Client(), nil, opts, quietLogger())
	if _, err := c.Check(context.Background(), segments(srv.URL, "a.ts", "b.ts", "c.ts")); err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if calls.Load() != 3 || failed.Load() != 1 {
		t.Errorf("calls = %d failed = %d, want 3 and 1", calls.Load(), failed.Load())
	}
}

func TestCheck_ConcurrencyBound(t *testing.T) {
	var inFlight, peak atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
	}))
	defer srv.Close()

	c := NewChecker(srv.Client(), nil, Options{Concurrency: 2}, quietLogger())
	names := []string{"1.ts", "2.ts", "3.ts", "4.ts", "5.ts", "6.ts"}
	if _, err := c.Check(context.Background(), segments(srv.URL, names...)); err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if peak.Load() > 2 {
		t.Errorf("peak in-flight = %d, want <= 2", peak.Load())
	}
}

func TestCheck_RateLimit(t *testing.T) {
	srv, _ := segmentServer(t, nil)
	c := NewChecker(srv.Client(), nil, Options{Concurrency: 4, Rate: 20}, quietLogger())

	names := []string{"1.ts", "2.ts", "3.ts", "4.ts", "5.ts", "6.ts", "7.ts", "8.ts",
		"9.ts", "10.ts", "11.ts", "12.ts", "13.ts", "14.ts", "15.ts", "16.ts",
		"17.ts", "18.ts", "19.ts", "20.ts", "21.ts", "22.ts", "23.ts", "24.ts", "25.ts"}
	start := time.Now()
	if _, err := c.Check(context.Background(), segments(srv.URL, names...)); err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	// Burst of 20 then 5 more at 20/s
	if elapsed := time.Since(start); elapsed < 200*time.Millisecond {
		t.Errorf("elapsed = %v, want >= 200ms with rate limit", elapsed)
	}
}

func TestCheck_NoGoroutineLeak(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/slow.ts" {
			<-r.Context().Done()
		}
	}))
	defer srv.Close()

	c := NewChecker(srv.Client(), nil, Options{Concurrency: 4, Timeout: 30 * time.Millisecond}, quietLogger())
	if _, err := c.Check(context.Background(), segments(srv.URL, "a.ts", "slow.ts", "b.ts")); err != nil {
		t.Fatalf("Check() error = %v", err)
	}
}

func TestResult_Err(t *testing.T) {
	if err := (Result{}).Err(); err != nil {
		t.Errorf("empty result: %v", err)
	}

	r := Result{
		"a": {URI: "a", Order: 0, Status: Unreachable, Category: CategoryDNS},
		"b": {URI: "b", Order: 1, Status: Unreachable, Category: CategoryHTTPStatus, Code: 404},
		"c": {URI: "c", Order: 2, Status: Unreachable, Category: CategoryHTTPStatus, Code: 404},
	}
	var none *NoneReachableError
	if err := r.Err(); !errors.As(err, &none) {
		t.Fatalf("Err() = %v, want *NoneReachableError", err)
	}
	if none.Total != 3 || none.Category != CategoryHTTPStatus {
		t.Errorf("got %+v, want 3 http_status", none)
	}

	r["d"] = Outcome{URI: "d", Order: 3, Status: Available}
	if err := r.Err(); err != nil {
		t.Errorf("one available: %v", err)
	}
}
