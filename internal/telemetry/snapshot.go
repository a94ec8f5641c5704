// Package telemetry reads playback counters captured by an external player.
//
// The snapshot is a flat JSON object of player access-log counters such as
// indicatedBitrate, startupTime or numberOfStalls, plus optional
// playEvents and pauseEvents arrays. Values are passed through untouched;
// unrecognised keys are kept.
package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"

	"github.com/spf13/afero"
)

// ErrEmptySnapshot is returned when a telemetry file holds no counters and no events.
var ErrEmptySnapshot = errors.New("telemetry snapshot is empty")

// Event keys accepted in a snapshot file.
const (
	keyPlayEvents  = "playEvents"
	keyPauseEvents = "pauseEvents"
)

// PlayerEvent is a single play or pause transition.
type PlayerEvent struct {
	Time  string `json:"time"`
	Event string `json:"event"`
}

// Snapshot holds one playback session's counters.
type Snapshot struct {
	// Counters maps access-log key to value (numbers, strings or nested values).
	Counters map[string]any

	PlayEvents  []PlayerEvent
	PauseEvents []PlayerEvent
}

// UnmarshalJSON splits the event arrays out of the flat counter object.
// Both camelCase and PascalCase event keys are accepted.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	s.Counters = make(map[string]any, len(fields))
	for key, raw := range fields {
		switch key {
		case keyPlayEvents, "PlayEvents":
			if err := json.Unmarshal(raw, &s.PlayEvents); err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
		case keyPauseEvents, "PauseEvents":
			if err := json.Unmarshal(raw, &s.PauseEvents); err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
		default:
			var v any
			if err := json.Unmarshal(raw, &v); err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			if v != nil {
				s.Counters[key] = v
			}
		}
	}
	return nil
}

// Empty reports whether the snapshot carries nothing to merge.
func (s *Snapshot) Empty() bool {
	return s == nil || (len(s.Counters) == 0 && len(s.PlayEvents) == 0 && len(s.PauseEvents) == 0)
}

// Keys returns the counter keys in sorted order.
func (s *Snapshot) Keys() []string {
	keys := make([]string, 0, len(s.Counters))
	for k := range s.Counters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Number returns a counter as float64 when it is numeric.
func (s *Snapshot) Number(key string) (float64, bool) {
	v, ok := s.Counters[key].(float64)
	return v, ok
}

// Load reads a snapshot from path.
// An empty path means no telemetry and returns (nil, nil).
func Load(fsys afero.Fs, path string, logger *slog.Logger) (*Snapshot, error) {
	if path == "" {
		return nil, nil
	}

	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("telemetry file %s: %w", path, fs.ErrNotExist)
		}
		return nil, fmt.Errorf("read telemetry %s: %w", path, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode telemetry %s: %w", path, err)
	}
	if snap.Empty() {
		return nil, fmt.Errorf("%s: %w", path, ErrEmptySnapshot)
	}

	logger.Debug("telemetry_loaded",
		"path", path,
		"counters", len(snap.Counters),
		"play_events", len(snap.PlayEvents),
		"pause_events", len(snap.PauseEvents),
	)
	return &snap, nil
}
