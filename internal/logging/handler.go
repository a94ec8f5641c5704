package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
)

const (
	// MaxLineLength is the maximum length of a single stderr line before truncation.
	MaxLineLength = 4096

	// MaxBufferedLines is the number of recent lines kept per process.
	MaxBufferedLines = 50
)

// StderrBuffer collects the stderr of a probe process.
// It is an io.Writer suitable for exec.Cmd.Stderr: output is split into
// lines, the most recent lines are kept in a ring buffer for error
// messages, and each line is logged at a level chosen from its content.
type StderrBuffer struct {
	uri     string
	logger  *slog.Logger
	verbose bool

	mu      sync.Mutex
	partial []byte
	buffer  []string
	bufIdx  int
	count   int
}

// NewStderrBuffer creates a buffer for the probe of uri.
func NewStderrBuffer(uri string, logger *slog.Logger, verbose bool) *StderrBuffer {
	if logger == nil {
		logger = slog.Default()
	}
	return &StderrBuffer{
		uri:     uri,
		logger:  logger,
		verbose: verbose,
		buffer:  make([]string, MaxBufferedLines),
	}
}

// Write implements io.Writer. Incomplete trailing lines are held until the
// next Write or Flush.
func (b *StderrBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	b.partial = append(b.partial, p...)
	var lines []string
	for {
		i := bytes.IndexByte(b.partial, '\n')
		if i < 0 {
			break
		}
		lines = append(lines, string(b.partial[:i]))
		b.partial = b.partial[i+1:]
	}
	// Unterminated output longer than a line is flushed as-is
	if len(b.partial) > MaxLineLength {
		lines = append(lines, string(b.partial))
		b.partial = nil
	}
	b.mu.Unlock()

	for _, line := range lines {
		b.HandleLine(line)
	}
	return len(p), nil
}

// Flush handles any buffered unterminated line.
func (b *StderrBuffer) Flush() {
	b.mu.Lock()
	rest := string(b.partial)
	b.partial = nil
	b.mu.Unlock()

	if rest != "" {
		b.HandleLine(rest)
	}
}

// HandleLine records and logs a single line.
func (b *StderrBuffer) HandleLine(line string) {
	line = strings.TrimRight(line, "\r")
	if strings.TrimSpace(line) == "" {
		return
	}
	if len(line) > MaxLineLength {
		line = line[:MaxLineLength] + "...(truncated)"
	}

	b.mu.Lock()
	b.buffer[b.bufIdx] = line
	b.bufIdx = (b.bufIdx + 1) % MaxBufferedLines
	b.count++
	b.mu.Unlock()

	level := classifyLine(line)
	if !b.verbose && level == slog.LevelDebug {
		return
	}
	b.logger.Log(context.Background(), level, "ffprobe_stderr", "uri", b.uri, "line", line)
}

// classifyLine picks a log level for a stderr line.
func classifyLine(line string) slog.Level {
	lower := strings.ToLower(line)

	if strings.Contains(lower, "error") ||
		strings.Contains(lower, "invalid data") ||
		strings.Contains(lower, "connection refused") ||
		strings.Contains(lower, "server returned") ||
		strings.Contains(lower, "no such file") {
		return slog.LevelWarn
	}
	if strings.Contains(lower, "[warning]") ||
		strings.Contains(lower, "skip") ||
		strings.Contains(lower, "reconnect") {
		return slog.LevelWarn
	}
	return slog.LevelDebug
}

// RecentLines returns up to n of the most recent lines, oldest first.
func (b *StderrBuffer) RecentLines(n int) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n > MaxBufferedLines {
		n = MaxBufferedLines
	}
	if n > b.count {
		n = b.count
	}

	lines := make([]string, 0, n)
	for i := 0; i < n; i++ {
		idx := (b.bufIdx - n + i + MaxBufferedLines) % MaxBufferedLines
		lines = append(lines, b.buffer[idx])
	}
	return lines
}

// Summary joins the last few lines into one string for error messages.
func (b *StderrBuffer) Summary(n int) string {
	return strings.Join(b.RecentLines(n), "; ")
}

// ErrorPatterns are ffprobe failure signatures counted for diagnostics.
var ErrorPatterns = []string{
	"Connection refused",
	"Server returned",
	"Invalid data found",
	"No such file",
	"timed out",
	"403",
	"404",
	"500",
	"503",
}

// CountErrors counts occurrences of ErrorPatterns in the buffered lines.
func (b *StderrBuffer) CountErrors() map[string]int {
	b.mu.Lock()
	defer b.mu.Unlock()

	counts := make(map[string]int)
	for _, line := range b.buffer {
		if line == "" {
			continue
		}
		for _, pattern := range ErrorPatterns {
			if strings.Contains(line, pattern) {
				counts[pattern]++
			}
		}
	}
	return counts
}
