package config

import (
	"bytes"
	"errors"
	"flag"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
)

// Test headerList type
func TestHeaderList_String(t *testing.T) {
	testCases := []struct {
		input    headerList
		expected string
	}{
		{headerList{}, ""},
		{headerList{"X-Test: value"}, "X-Test: value"},
		{headerList{"X-Test: value", "X-Other: foo"}, "X-Test: value, X-Other: foo"},
	}

	for _, tc := range testCases {
		result := tc.input.String()
		if result != tc.expected {
			t.Errorf("String() = %q, want %q", result, tc.expected)
		}
	}
}

func TestHeaderList_Set(t *testing.T) {
	var h headerList

	if err := h.Set("X-Test: value"); err != nil {
		t.Errorf("Set returned error: %v", err)
	}
	if err := h.Set("X-Other: foo"); err != nil {
		t.Errorf("Set returned error: %v", err)
	}
	if len(h) != 2 || h[1] != "X-Other: foo" {
		t.Errorf("After second Set: %v", h)
	}
}

func TestFlagType(t *testing.T) {
	testCases := []struct {
		name     string
		defValue string
		expected string
	}{
		{"bool true", "true", ""},
		{"bool false", "false", ""},
		{"int", "42", "int"},
		{"string", "hello", "string"},
		{"duration seconds", "5s", "duration"},
		{"duration minutes", "2m0s", "duration"},
		{"empty", "", "string"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := &flag.Flag{Name: "test", DefValue: tc.defValue}
			if result := flagType(f); result != tc.expected {
				t.Errorf("flagType(%q) = %q, want %q", tc.defValue, result, tc.expected)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Concurrency != 10 {
		t.Errorf("Concurrency = %d, want 10", cfg.Concurrency)
	}
	if cfg.RequestTimeout != 5*time.Second {
		t.Errorf("RequestTimeout = %v, want 5s", cfg.RequestTimeout)
	}
	if cfg.CheckMethod != CheckMethodHead {
		t.Errorf("CheckMethod = %q, want head", cfg.CheckMethod)
	}
	if !cfg.ProbeEnabled || !cfg.ProbeVariants {
		t.Error("probing should be enabled by default")
	}
	if cfg.OutputPath != "output/analysis_output.json" {
		t.Errorf("OutputPath = %q", cfg.OutputPath)
	}
	if cfg.MetricsAddr != "" {
		t.Errorf("MetricsAddr = %q, want disabled", cfg.MetricsAddr)
	}
}

// =============================================================================
// Flags
// =============================================================================

func TestParseArgs(t *testing.T) {
	cfg, err := ParseArgs([]string{
		"-concurrency", "4",
		"-timeout", "2s",
		"-check-method", "range",
		"-probe=false",
		"-header", "X-Token: abc",
		"-header", "X-Trace: 1",
		"-o", "/tmp/out.json",
		"https://cdn.example.com/master.m3u8",
	}, io.Discard)
	if err != nil {
		t.Fatalf("ParseArgs() error = %v", err)
	}

	if cfg.Manifest != "https://cdn.example.com/master.m3u8" {
		t.Errorf("Manifest = %q", cfg.Manifest)
	}
	if cfg.Concurrency != 4 || cfg.RequestTimeout != 2*time.Second {
		t.Errorf("Concurrency/Timeout = %d/%v", cfg.Concurrency, cfg.RequestTimeout)
	}
	if cfg.CheckMethod != CheckMethodRange || cfg.ProbeEnabled {
		t.Errorf("CheckMethod/ProbeEnabled = %q/%v", cfg.CheckMethod, cfg.ProbeEnabled)
	}
	if diff := cmp.Diff([]string{"X-Token: abc", "X-Trace: 1"}, cfg.Headers); diff != "" {
		t.Errorf("Headers mismatch (-want +got):\n%s", diff)
	}
	if cfg.OutputPath != "/tmp/out.json" {
		t.Errorf("OutputPath = %q", cfg.OutputPath)
	}
}

func TestParseArgs_UnknownFlag(t *testing.T) {
	var out bytes.Buffer
	if _, err := ParseArgs([]string{"-bogus"}, &out); err == nil {
		t.Error("expected error for unknown flag")
	}
	if !strings.Contains(out.String(), "Segment Availability:") {
		t.Errorf("usage output missing categories:\n%s", out.String())
	}
}

func TestParseArgs_ConfigFile(t *testing.T) {
	fsys := afero.NewMemMapFs()
	content := `m3u8_url: https://cdn.example.com/file.m3u8
concurrency: 3
timeout: 750ms
headers:
  - "X-From-File: yes"
`
	if err := afero.WriteFile(fsys, "/etc/hls/config.yaml", []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := parseArgs(fsys, []string{"-config", "/etc/hls/config.yaml", "-concurrency", "8"}, io.Discard)
	if err != nil {
		t.Fatalf("parseArgs() error = %v", err)
	}

	if cfg.Manifest != "https://cdn.example.com/file.m3u8" {
		t.Errorf("Manifest = %q, want from file", cfg.Manifest)
	}
	if cfg.Concurrency != 8 {
		t.Errorf("Concurrency = %d, flag should override file", cfg.Concurrency)
	}
	if cfg.RequestTimeout != 750*time.Millisecond {
		t.Errorf("RequestTimeout = %v, want 750ms from file", cfg.RequestTimeout)
	}
	if cfg.ProbeTimeout != 30*time.Second {
		t.Errorf("ProbeTimeout = %v, want default", cfg.ProbeTimeout)
	}
	if diff := cmp.Diff([]string{"X-From-File: yes"}, cfg.Headers); diff != "" {
		t.Errorf("Headers mismatch (-want +got):\n%s", diff)
	}
}

func TestParseArgs_PositionalOverridesConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"m3u8_url": "https://a.example/x.m3u8"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := ParseArgs([]string{"-config", path, "https://b.example/y.m3u8"}, io.Discard)
	if err != nil {
		t.Fatalf("ParseArgs() error = %v", err)
	}
	if cfg.Manifest != "https://b.example/y.m3u8" {
		t.Errorf("Manifest = %q, want positional", cfg.Manifest)
	}
}

// =============================================================================
// Config file
// =============================================================================

func TestLoadFile_JSONCompat(t *testing.T) {
	fsys := afero.NewMemMapFs()
	_ = afero.WriteFile(fsys, "config.json", []byte(`{"m3u8_url": "https://example.com/master.m3u8"}`), 0o644)

	cfg := DefaultConfig()
	if err := LoadFile(fsys, "config.json", cfg); err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.Manifest != "https://example.com/master.m3u8" {
		t.Errorf("Manifest = %q", cfg.Manifest)
	}
	if cfg.Concurrency != 10 {
		t.Errorf("Concurrency = %d, default should be kept", cfg.Concurrency)
	}
}

func TestLoadFile_Errors(t *testing.T) {
	fsys := afero.NewMemMapFs()
	_ = afero.WriteFile(fsys, "unknown.yaml", []byte("concurrancy: 3\n"), 0o644)
	_ = afero.WriteFile(fsys, "bad.yaml", []byte("timeout: [1, 2\n"), 0o644)

	for _, path := range []string{"missing.yaml", "unknown.yaml", "bad.yaml"} {
		if err := LoadFile(fsys, path, DefaultConfig()); err == nil {
			t.Errorf("LoadFile(%s) expected error", path)
		}
	}

	_, err := ParseArgs([]string{"-config", filepath.Join(t.TempDir(), "missing.yaml")}, io.Discard)
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("ParseArgs() error = %v, want ErrNotExist", err)
	}
}

func TestLoadFile_Empty(t *testing.T) {
	fsys := afero.NewMemMapFs()
	_ = afero.WriteFile(fsys, "empty.yaml", nil, 0o644)
	if err := LoadFile(fsys, "empty.yaml", DefaultConfig()); err != nil {
		t.Errorf("LoadFile(empty) error = %v", err)
	}
}

// =============================================================================
// Validate
// =============================================================================

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Manifest = "http://example.com/stream.m3u8"
	return cfg
}

func TestValidate_ValidConfig(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Errorf("Valid config should not error: %v", err)
	}
}

func TestValidate_ManifestForms(t *testing.T) {
	testCases := []struct {
		manifest string
		wantErr  bool
	}{
		{"", true},
		{"https://example.com/master.m3u8", false},
		{"file:///srv/hls/index.m3u8", false},
		{"./local/index.m3u8", false},
		{"/abs/index.m3u8", false},
		{"ftp://example.com/stream.m3u8", true},
		{"http:///stream.m3u8", true},
	}

	for _, tc := range testCases {
		t.Run(tc.manifest, func(t *testing.T) {
			cfg := validConfig()
			cfg.Manifest = tc.manifest
			err := Validate(cfg)
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate(%q) error = %v, wantErr %v", tc.manifest, err, tc.wantErr)
			}
			if err != nil && !strings.Contains(err.Error(), "m3u8_url") {
				t.Errorf("error should mention m3u8_url: %v", err)
			}
		})
	}
}

func TestValidate_Fields(t *testing.T) {
	testCases := []struct {
		field  string
		mutate func(*Config)
	}{
		{"concurrency", func(c *Config) { c.Concurrency = 0 }},
		{"timeout", func(c *Config) { c.RequestTimeout = 0 }},
		{"deadline", func(c *Config) { c.Deadline = -time.Second }},
		{"manifest_timeout", func(c *Config) { c.ManifestTimeout = 0 }},
		{"check_method", func(c *Config) { c.CheckMethod = "get" }},
		{"retries", func(c *Config) { c.Retries = MaxRetries + 1 }},
		{"rate", func(c *Config) { c.Rate = -1 }},
		{"probe_timeout", func(c *Config) { c.ProbeTimeout = 0 }},
		{"probe_concurrency", func(c *Config) { c.ProbeConcurrency = 0 }},
		{"ffprobe_path", func(c *Config) { c.FFprobePath = "" }},
		{"headers", func(c *Config) { c.Headers = []string{"no-colon"} }},
		{"output", func(c *Config) { c.OutputPath = "" }},
		{"log_format", func(c *Config) { c.LogFormat = "xml" }},
	}

	for _, tc := range testCases {
		t.Run(tc.field, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatalf("expected error for %s", tc.field)
			}
			var ve ValidationError
			if !errors.As(err, &ve) || ve.Field != tc.field {
				t.Errorf("error = %v, want field %s", err, tc.field)
			}
		})
	}
}

func TestValidate_ProbeDisabledSkipsProbeChecks(t *testing.T) {
	cfg := validConfig()
	cfg.ProbeEnabled = false
	cfg.ProbeTimeout = 0
	cfg.FFprobePath = ""
	if err := Validate(cfg); err != nil {
		t.Errorf("probe settings should be ignored when disabled: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Concurrency = 0
	cfg.LogFormat = "xml"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected errors")
	}
	for _, field := range []string{"concurrency", "log_format"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("error should mention %s: %v", field, err)
		}
	}
}

func TestParseHeaders(t *testing.T) {
	h, err := ParseHeaders([]string{"x-token: abc ", "X-Token:def", "Referer: https://a.example/"})
	if err != nil {
		t.Fatalf("ParseHeaders() error = %v", err)
	}
	if diff := cmp.Diff([]string{"abc", "def"}, h.Values("X-Token")); diff != "" {
		t.Errorf("X-Token mismatch (-want +got):\n%s", diff)
	}
	if h.Get("Referer") != "https://a.example/" {
		t.Errorf("Referer = %q", h.Get("Referer"))
	}

	for _, bad := range []string{"nocolon", ": empty", "Bad Name: x"} {
		if _, err := ParseHeaders([]string{bad}); err == nil {
			t.Errorf("ParseHeaders(%q) expected error", bad)
		}
	}
}
