package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// LoadFile overlays the YAML or JSON document at path onto cfg.
// Keys absent from the file keep their current values; unknown keys are
// rejected so typos surface instead of being ignored.
func LoadFile(fsys afero.Fs, path string, cfg *Config) error {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}
