package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// DefaultPath is the report location used when none is configured.
const DefaultPath = "output/analysis_output.json"

// Emitter writes reports to a JSON file shared with other tools.
// Top-level keys it does not own are preserved across writes.
type Emitter struct {
	path   string
	logger *slog.Logger
}

// NewEmitter creates an Emitter for path.
func NewEmitter(path string, logger *slog.Logger) *Emitter {
	if path == "" {
		path = DefaultPath
	}
	return &Emitter{path: path, logger: logger}
}

// Path returns the report file location.
func (e *Emitter) Path() string {
	return e.path
}

// Emit writes r, replacing the probe and playback sections.
// The playback section is removed when r carries no telemetry.
func (e *Emitter) Emit(r UnifiedReport) error {
	doc := e.existing()

	probe, err := json.Marshal(r.Probe)
	if err != nil {
		return fmt.Errorf("encode %s: %w", ProbeSection, err)
	}
	doc[ProbeSection] = probe

	if r.Playback != nil {
		playback, err := json.Marshal(r.Playback)
		if err != nil {
			return fmt.Errorf("encode %s: %w", PlaybackSection, err)
		}
		doc[PlaybackSection] = playback
	} else {
		delete(doc, PlaybackSection)
	}

	data, err := encode(doc)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(e.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
	}
	if err := renameio.WriteFile(e.path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	e.logger.Info("report_written",
		"path", e.path,
		"bytes", len(data),
		"playback", r.Playback != nil,
		"error", r.Probe.Error != "",
	)
	return nil
}

// existing loads the current report's top-level keys.
// A missing or unreadable file starts a fresh document.
func (e *Emitter) existing() map[string]json.RawMessage {
	doc := make(map[string]json.RawMessage)

	data, err := os.ReadFile(e.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			e.logger.Warn("report_read_failed", "path", e.path, "error", err)
		}
		return doc
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		e.logger.Warn("report_replaced", "path", e.path, "reason", "existing file is not a JSON object", "error", err)
		return make(map[string]json.RawMessage)
	}
	// A literal null decodes without error into a nil map
	if doc == nil {
		e.logger.Warn("report_replaced", "path", e.path, "reason", "existing file is null")
		return make(map[string]json.RawMessage)
	}
	return doc
}

func encode(doc map[string]json.RawMessage) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	return buf.Bytes(), nil
}
