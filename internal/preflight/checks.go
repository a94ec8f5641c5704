// Package preflight provides startup validation checks.
package preflight

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/randomizedcoder/go-hls-analyzer/internal/probe"
)

// Note: syscall.RLIMIT_NPROC is not exported in Go's syscall package,
// so we read process limits from /proc/self/limits instead.

// Check represents the result of a single preflight check.
type Check struct {
	Name     string // Name of the check
	Required int    // Required value (if applicable)
	Actual   int    // Actual value found
	Passed   bool   // Whether the check passed
	Warning  bool   // True if it's a warning (non-fatal)
	Message  string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// Options describes the run the checks are sized for.
type Options struct {
	Concurrency      int
	ProbeConcurrency int
	FFprobePath      string
	ProbeEnabled     bool
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available (need %d)", status, c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// RunAll executes all preflight checks.
func RunAll(opts Options) *Result {
	result := &Result{
		Checks: make([]Check, 0, 4),
		Passed: true,
	}
	add := func(c Check) {
		result.Checks = append(result.Checks, c)
		if !c.Passed {
			result.Passed = false
		}
	}

	add(checkFileDescriptors(opts.Concurrency, opts.ProbeConcurrency))

	if opts.ProbeEnabled {
		add(checkProcessLimit(opts.ProbeConcurrency))
		add(checkFFprobe(opts.FFprobePath))
	} else {
		add(Check{Name: "ffprobe", Passed: true, Warning: true, Message: "probing disabled, media facts will be Unknown"})
	}

	// Ephemeral port check (warning only)
	add(checkEphemeralPorts(opts.Concurrency))

	return result
}

// checkFileDescriptors verifies sufficient file descriptors are available.
func checkFileDescriptors(concurrency, probeConcurrency int) Check {
	var limit syscall.Rlimit
	syscall.Getrlimit(syscall.RLIMIT_NOFILE, &limit)

	// Each in-flight check holds a socket, idle keep-alive connections
	// may hold another. Each ffprobe child needs three pipes.
	required := concurrency*2 + probeConcurrency*3 + 64
	actual := int(limit.Cur)

	return Check{
		Name:     "file_descriptors",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -n %d (need %d for %d concurrent checks)", actual, required, concurrency),
	}
}

// checkProcessLimit verifies there are process slots for ffprobe children.
func checkProcessLimit(probeConcurrency int) Check {
	required := probeConcurrency + 50

	data, err := os.ReadFile("/proc/self/limits")
	if err != nil {
		return Check{
			Name:    "process_limit",
			Passed:  true,
			Warning: true,
			Message: "unable to check (non-Linux or restricted)",
		}
	}

	actual := parseMaxProcesses(string(data))
	if actual == 0 {
		return Check{
			Name:    "process_limit",
			Passed:  true,
			Warning: true,
			Message: "unable to determine (assuming OK)",
		}
	}

	return Check{
		Name:     "process_limit",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -u %d (need %d)", actual, required),
	}
}

// parseMaxProcesses extracts the soft "Max processes" limit from
// /proc/self/limits content. Returns 0 when not found.
func parseMaxProcesses(limits string) int {
	actual := 0
	for _, line := range strings.Split(limits, "\n") {
		if strings.HasPrefix(line, "Max processes") {
			fields := strings.Fields(line)
			if len(fields) >= 4 {
				if fields[2] == "unlimited" {
					actual = 1000000
				} else {
					fmt.Sscanf(fields[2], "%d", &actual)
				}
			}
			break
		}
	}
	return actual
}

// checkFFprobe verifies ffprobe is available and working.
// A path to ffmpeg resolves to the ffprobe installed beside it.
func checkFFprobe(path string) Check {
	path = probe.FindFFprobe(path)
	cmd := exec.Command(path, "-version")
	output, err := cmd.Output()

	if err != nil {
		return Check{
			Name:    "ffprobe",
			Passed:  false,
			Message: fmt.Sprintf("not found at %s: %v", path, err),
		}
	}

	return Check{
		Name:    "ffprobe",
		Passed:  true,
		Message: fmt.Sprintf("found at %s (version %s)", path, parseVersion(string(output))),
	}
}

// parseVersion extracts the version from "ffprobe version 6.1 Copyright ...".
func parseVersion(output string) string {
	lines := strings.Split(output, "\n")
	parts := strings.Fields(lines[0])
	if len(parts) >= 3 && parts[1] == "version" {
		return parts[2]
	}
	return "unknown"
}

// checkEphemeralPorts checks if enough ephemeral ports are available.
func checkEphemeralPorts(concurrency int) Check {
	data, err := os.ReadFile("/proc/sys/net/ipv4/ip_local_port_range")
	if err != nil {
		return Check{
			Name:    "ephemeral_ports",
			Passed:  true,
			Warning: true,
			Message: "unable to read port range (non-Linux?)",
		}
	}

	var low, high int
	fmt.Sscanf(string(data), "%d %d", &low, &high)
	available := high - low

	// Retries and HEAD-to-GET fallbacks can open extra connections per
	// check, and closed ones linger in TIME_WAIT.
	recommended := concurrency * 4

	return Check{
		Name:     "ephemeral_ports",
		Required: recommended,
		Actual:   available,
		Passed:   true, // Don't fail on this
		Warning:  available < recommended,
		Message:  fmt.Sprintf("%d-%d (%d available, recommend %d)", low, high, available, recommended),
	}
}

// PrintResults writes the preflight check results to w.
func PrintResults(w io.Writer, result *Result) {
	fmt.Fprintln(w, "Preflight checks:")
	for _, check := range result.Checks {
		fmt.Fprintln(w, check.String())
		if !check.Passed {
			fmt.Fprintf(w, "    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Fprintln(w)
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch name {
	case "file_descriptors":
		return "ulimit -n 8192 (or lower -concurrency)"
	case "process_limit":
		return "ulimit -u 4096 (or lower -probe-concurrency)"
	case "ffprobe":
		return "install ffmpeg (apt install ffmpeg / brew install ffmpeg), or run with -probe=false"
	default:
		return "see documentation"
	}
}
