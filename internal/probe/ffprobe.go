package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/randomizedcoder/go-hls-analyzer/internal/logging"
	"github.com/randomizedcoder/go-hls-analyzer/internal/source"
)

// Backend inspects a media URI.
type Backend interface {
	Probe(ctx context.Context, uri string) (*Raw, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, uri string) (*Raw, error)

func (f BackendFunc) Probe(ctx context.Context, uri string) (*Raw, error) {
	return f(ctx, uri)
}

// Raw is the subset of `ffprobe -print_format json` output that is used.
// Numeric values stay strings: ffprobe reports "N/A" for unknowns.
type Raw struct {
	Streams  []RawStream  `json:"streams"`
	Format   RawFormat    `json:"format"`
	Programs []RawProgram `json:"programs"`
}

// RawStream is one entry of "streams".
type RawStream struct {
	Index         int    `json:"index"`
	CodecType     string `json:"codec_type"`
	CodecName     string `json:"codec_name"`
	Width         int    `json:"width,omitempty"`
	Height        int    `json:"height,omitempty"`
	AvgFrameRate  string `json:"avg_frame_rate,omitempty"`
	RFrameRate    string `json:"r_frame_rate,omitempty"`
	BitRate       string `json:"bit_rate,omitempty"`
	ColorTransfer string `json:"color_transfer,omitempty"`
	Duration      string `json:"duration,omitempty"`
}

// RawFormat is the "format" object.
type RawFormat struct {
	FormatName string `json:"format_name"`
	BitRate    string `json:"bit_rate,omitempty"`
	Duration   string `json:"duration,omitempty"`
}

// RawProgram is one entry of "programs"; HLS inputs expose one per variant.
type RawProgram struct {
	ProgramID int         `json:"program_id"`
	Tags      ProgramTags `json:"tags"`
	Streams   []RawStream `json:"streams"`
}

// ProgramTags holds program metadata.
type ProgramTags struct {
	VariantBitrate string `json:"variant_bitrate"`
}

// maxStderrSummary bounds how much stderr goes into an error message.
const maxStderrSummary = 4096

// FFprobe runs the ffprobe binary.
type FFprobe struct {
	Path      string // binary path, "ffprobe" when empty
	UserAgent string
	Logger    *slog.Logger
	Verbose   bool // log every stderr line
}

// NewFFprobe creates an ffprobe backend for the binary at path.
func NewFFprobe(path, userAgent string, logger *slog.Logger, verbose bool) *FFprobe {
	if logger == nil {
		logger = slog.Default()
	}
	return &FFprobe{
		Path:      FindFFprobe(path),
		UserAgent: userAgent,
		Logger:    logger,
		Verbose:   verbose,
	}
}

// Args builds the ffprobe argument list for uri.
func (f *FFprobe) Args(uri string) []string {
	args := []string{
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		"-show_programs",
	}
	if f.UserAgent != "" && !isLocal(uri) {
		args = append(args, "-user_agent", f.UserAgent)
	}
	if path, ok := source.LocalPath(uri); ok {
		uri = path
	}
	return append(args, uri)
}

// Probe runs ffprobe against uri and decodes its JSON output.
// A non-zero exit is tolerated when the output still describes a playable stream.
func (f *FFprobe) Probe(ctx context.Context, uri string) (*Raw, error) {
	bin := f.Path
	if bin == "" {
		bin = "ffprobe"
	}

	// #nosec G204 -- arguments are built by Args; uri is passed as a single argv entry
	cmd := exec.CommandContext(ctx, bin, f.Args(uri)...)
	stderr := logging.NewStderrBuffer(uri, f.Logger, f.Verbose)
	cmd.Stderr = stderr

	out, err := cmd.Output()
	stderr.Flush()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	var raw Raw
	jsonErr := json.Unmarshal(out, &raw)
	usable := jsonErr == nil && raw.Format.FormatName != "" && len(raw.Streams) > 0

	switch {
	case usable:
		if err != nil {
			f.Logger.Warn("ffprobe_nonzero_exit_accepted",
				"uri", uri,
				"error", err,
				"stderr", truncate(stderr.Summary(5), maxStderrSummary),
			)
		}
		return &raw, nil
	case err != nil:
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("ffprobe not found at %q: %w", bin, err)
		}
		f.Logger.Debug("ffprobe_failed", "uri", uri, "error", err, "stderr_errors", stderr.CountErrors())
		if summary := stderr.Summary(3); summary != "" {
			return nil, fmt.Errorf("ffprobe failed: %w (stderr: %s)", err, truncate(summary, maxStderrSummary))
		}
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	case jsonErr != nil:
		return nil, fmt.Errorf("decode ffprobe output: %w", jsonErr)
	default:
		// Valid JSON without streams; let normalisation report it
		return &raw, nil
	}
}

// FindFFprobe resolves the ffprobe binary. An explicit path is used as-is,
// a path to ffmpeg is mapped to the ffprobe next to it, and otherwise
// ffprobe is looked up on PATH.
func FindFFprobe(path string) string {
	if path == "" {
		return "ffprobe"
	}
	dir, base := filepath.Split(path)
	if base == "ffmpeg" {
		sibling := filepath.Join(dir, "ffprobe")
		if _, err := exec.LookPath(sibling); err == nil {
			return sibling
		}
		return "ffprobe"
	}
	return path
}

func isLocal(uri string) bool {
	_, ok := source.LocalPath(uri)
	return ok
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// canonicalContainer picks one name from ffprobe's comma-separated
// format_name list, preferring "ts" for MPEG-TS.
func canonicalContainer(formatName string) string {
	canonical := ""
	for _, p := range strings.Split(formatName, ",") {
		t := strings.TrimSpace(p)
		if t == "mpegts" {
			return "ts"
		}
		if canonical == "" && t != "" {
			canonical = t
		}
	}
	return canonical
}
