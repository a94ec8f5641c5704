// Package source loads playlist documents from HTTP(S) URLs or local files.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// MaxManifestSize caps how much of a playlist body is read.
const MaxManifestSize = 8 * 1024 * 1024 // 8MB

var (
	ErrManifestTooLarge  = errors.New("manifest exceeds size limit")
	ErrUnsupportedScheme = errors.New("unsupported URI scheme")
)

// StatusError is returned when the server answers with a non-2xx status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: HTTP %d", e.URL, e.StatusCode)
}

// RequestOptions decorates every outgoing request.
type RequestOptions struct {
	UserAgent string
	Header    http.Header
}

// Apply sets the user agent and extra headers on req.
func (o RequestOptions) Apply(req *http.Request) {
	for k, vs := range o.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if o.UserAgent != "" {
		req.Header.Set("User-Agent", o.UserAgent)
	}
}

// Loader fetches playlist documents.
type Loader struct {
	client  *http.Client
	fs      afero.Fs
	opts    RequestOptions
	timeout time.Duration
	logger  *slog.Logger
}

// NewLoader creates a Loader. A nil client uses http.DefaultClient, a nil fs
// uses the OS filesystem. timeout bounds each HTTP fetch (0 = no limit).
func NewLoader(client *http.Client, fs afero.Fs, opts RequestOptions, timeout time.Duration, logger *slog.Logger) *Loader {
	if client == nil {
		client = http.DefaultClient
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		client:  client,
		fs:      fs,
		opts:    opts,
		timeout: timeout,
		logger:  logger,
	}
}

// Load returns the playlist text at location and the absolute URI the
// playlist's references must be resolved against.
func (l *Loader) Load(ctx context.Context, location string) (raw string, baseURI string, err error) {
	baseURI, err = ToURI(location)
	if err != nil {
		return "", "", err
	}

	start := time.Now()
	var body []byte
	if path, ok := LocalPath(baseURI); ok {
		body, err = l.readFile(path)
	} else {
		body, err = l.fetch(ctx, baseURI)
	}
	if err != nil {
		return "", "", err
	}

	l.logger.Debug("manifest_loaded",
		"uri", baseURI,
		"bytes", len(body),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return string(body), baseURI, nil
}

func (l *Loader) readFile(path string) ([]byte, error) {
	info, err := l.fs.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	if info.Size() > MaxManifestSize {
		return nil, fmt.Errorf("read manifest %s: %w", path, ErrManifestTooLarge)
	}
	data, err := afero.ReadFile(l.fs, path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return data, nil
}

func (l *Loader) fetch(ctx context.Context, uri string) ([]byte, error) {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("build manifest request: %w", err)
	}
	l.opts.Apply(req)

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch manifest: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{URL: uri, StatusCode: resp.StatusCode}
	}

	// Read one byte past the limit to detect oversize bodies
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxManifestSize+1))
	if err != nil {
		return nil, fmt.Errorf("read manifest body: %w", err)
	}
	if len(body) > MaxManifestSize {
		return nil, fmt.Errorf("fetch manifest %s: %w", uri, ErrManifestTooLarge)
	}
	return body, nil
}

// ToURI turns a location into an absolute URI. http(s) and file URIs are
// returned unchanged; anything without a scheme is treated as a local path.
func ToURI(location string) (string, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return "", errors.New("empty manifest location")
	}

	if u, err := url.Parse(location); err == nil && u.Scheme != "" && len(u.Scheme) > 1 {
		switch strings.ToLower(u.Scheme) {
		case "http", "https":
			if u.Host == "" {
				return "", fmt.Errorf("manifest URL %q has no host", location)
			}
			return location, nil
		case "file":
			return location, nil
		default:
			return "", fmt.Errorf("%w: %s", ErrUnsupportedScheme, u.Scheme)
		}
	}

	abs, err := filepath.Abs(location)
	if err != nil {
		return "", fmt.Errorf("resolve manifest path: %w", err)
	}
	p := filepath.ToSlash(abs)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p // Windows drive letter
	}
	return (&url.URL{Scheme: "file", Path: p}).String(), nil
}

// LocalPath returns the filesystem path of a file:// URI.
func LocalPath(uri string) (string, bool) {
	u, err := url.Parse(uri)
	if err != nil || !strings.EqualFold(u.Scheme, "file") {
		return "", false
	}
	return filepath.FromSlash(u.Path), true
}
