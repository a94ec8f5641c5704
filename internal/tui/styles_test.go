package tui

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
)

// =============================================================================
// Tests: GetFailureRateStyle
// =============================================================================

func TestGetFailureRateStyle(t *testing.T) {
	tests := []struct {
		name string
		rate float64
		want string
	}{
		{"none", 0, "good"},
		{"tiny", 0.005, "warn"},
		{"1%", 0.01, "bad"},
		{"all", 1, "bad"},
	}

	colors := map[string]lipgloss.TerminalColor{
		"good": colorSuccess,
		"warn": colorWarning,
		"bad":  colorError,
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GetFailureRateStyle(tt.rate).GetForeground()
			if got != colors[tt.want] {
				t.Errorf("GetFailureRateStyle(%v) foreground = %v, want %s", tt.rate, got, tt.want)
			}
		})
	}
}

// =============================================================================
// Tests: RenderKeyValue
// =============================================================================

func TestRenderKeyValue(t *testing.T) {
	result := RenderKeyValue("Label", "Value")

	if !strings.Contains(result, "Label:") {
		t.Error("result should contain label")
	}
	if !strings.Contains(result, "Value") {
		t.Error("result should contain value")
	}
}

// =============================================================================
// Tests: RenderProgressBar
// =============================================================================

func TestRenderProgressBar(t *testing.T) {
	tests := []struct {
		name     string
		progress float64
		width    int
		percent  string
	}{
		{"0%", 0, 20, "0%"},
		{"50%", 0.5, 20, "50%"},
		{"100%", 1.0, 20, "100%"},
		{"narrow", 0.5, 5, "50%"},
		{"over 100%", 1.5, 20, "150%"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := RenderProgressBar(tt.progress, tt.width)
			if !strings.Contains(result, tt.percent) {
				t.Errorf("result %q should contain %q", result, tt.percent)
			}
		})
	}
}

func TestRenderProgressBar_Fill(t *testing.T) {
	result := RenderProgressBar(0.5, 20)
	if got := strings.Count(result, "█"); got != 10 {
		t.Errorf("filled cells = %d, want 10", got)
	}
	if got := strings.Count(result, "░"); got != 10 {
		t.Errorf("empty cells = %d, want 10", got)
	}

	// Narrow widths are raised to 10.
	result = RenderProgressBar(-0.1, 5)
	if got := strings.Count(result, "░"); got != 10 {
		t.Errorf("empty cells = %d, want 10", got)
	}
}

// =============================================================================
// Tests: repeatChar
// =============================================================================

func TestRepeatChar(t *testing.T) {
	tests := []struct {
		char  rune
		count int
		want  string
	}{
		{'x', 0, ""},
		{'x', 1, "x"},
		{'x', 5, "xxxxx"},
		{'█', 3, "███"},
		{'x', -1, ""},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := repeatChar(tt.char, tt.count); got != tt.want {
				t.Errorf("repeatChar(%q, %d) = %q, want %q", tt.char, tt.count, got, tt.want)
			}
		})
	}
}
