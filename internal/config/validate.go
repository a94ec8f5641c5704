package config

import (
	"errors"
	"fmt"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// MaxRetries bounds the -retries flag.
const MaxRetries = 10

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or an error describing the problem.
func Validate(cfg *Config) error {
	var errs []error

	// Manifest is required
	if cfg.Manifest == "" {
		errs = append(errs, ValidationError{
			Field:   "m3u8_url",
			Message: "manifest URL or path is required",
		})
	} else if err := validateManifest(cfg.Manifest); err != nil {
		errs = append(errs, ValidationError{
			Field:   "m3u8_url",
			Message: err.Error(),
		})
	}

	if cfg.Concurrency < 1 {
		errs = append(errs, ValidationError{
			Field:   "concurrency",
			Message: "must be at least 1",
		})
	}

	if cfg.RequestTimeout <= 0 {
		errs = append(errs, ValidationError{
			Field:   "timeout",
			Message: "must be positive",
		})
	}
	if cfg.Deadline <= 0 {
		errs = append(errs, ValidationError{
			Field:   "deadline",
			Message: "must be positive",
		})
	}
	if cfg.ManifestTimeout <= 0 {
		errs = append(errs, ValidationError{
			Field:   "manifest_timeout",
			Message: "must be positive",
		})
	}

	if cfg.CheckMethod != CheckMethodHead && cfg.CheckMethod != CheckMethodRange {
		errs = append(errs, ValidationError{
			Field:   "check_method",
			Message: fmt.Sprintf("must be 'head' or 'range' (got %q)", cfg.CheckMethod),
		})
	}

	if cfg.Retries < 0 || cfg.Retries > MaxRetries {
		errs = append(errs, ValidationError{
			Field:   "retries",
			Message: fmt.Sprintf("must be between 0 and %d (got %d)", MaxRetries, cfg.Retries),
		})
	}

	if cfg.Rate < 0 {
		errs = append(errs, ValidationError{
			Field:   "rate",
			Message: "must not be negative",
		})
	}

	// Probe settings only matter when probing
	if cfg.ProbeEnabled {
		if cfg.ProbeTimeout <= 0 {
			errs = append(errs, ValidationError{
				Field:   "probe_timeout",
				Message: "must be positive",
			})
		}
		if cfg.ProbeConcurrency < 1 {
			errs = append(errs, ValidationError{
				Field:   "probe_concurrency",
				Message: "must be at least 1",
			})
		}
		if cfg.FFprobePath == "" {
			errs = append(errs, ValidationError{
				Field:   "ffprobe_path",
				Message: "must not be empty when probing is enabled",
			})
		}
	}

	if _, err := ParseHeaders(cfg.Headers); err != nil {
		errs = append(errs, ValidationError{
			Field:   "headers",
			Message: err.Error(),
		})
	}

	if cfg.OutputPath == "" {
		errs = append(errs, ValidationError{
			Field:   "output",
			Message: "must not be empty",
		})
	}

	// Log format must be valid
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.LogFormat] {
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf("must be 'json' or 'text' (got %q)", cfg.LogFormat),
		})
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// validateManifest accepts http(s) URLs with a host, file URLs, and plain
// filesystem paths.
func validateManifest(raw string) error {
	if !strings.Contains(raw, "://") {
		return nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "http", "https":
		if u.Host == "" {
			return errors.New("URL must have a host")
		}
	case "file":
		if u.Path == "" {
			return errors.New("file URL must have a path")
		}
	default:
		return fmt.Errorf("URL scheme must be http, https or file (got %q)", u.Scheme)
	}

	return nil
}

// ParseHeaders converts "Name: value" entries into an http.Header.
func ParseHeaders(list []string) (http.Header, error) {
	h := make(http.Header)
	for _, entry := range list {
		name, value, ok := strings.Cut(entry, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("header %q must be in \"Name: value\" form", entry)
		}
		if strings.ContainsAny(name, " \t") {
			return nil, fmt.Errorf("header name %q contains whitespace", name)
		}
		h.Add(textproto.CanonicalMIMEHeaderKey(name), strings.TrimSpace(value))
	}
	return h, nil
}
