// Package main provides the go-hls-analyzer CLI entry point.
//
// go-hls-analyzer checks that every segment of an HLS manifest can be
// retrieved, probes the advertised streams for bitrate, codec and frame
// rate, and writes a JSON report optionally merged with playback telemetry.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/go-hls-analyzer/internal/analyzer"
	"github.com/randomizedcoder/go-hls-analyzer/internal/availability"
	"github.com/randomizedcoder/go-hls-analyzer/internal/config"
	"github.com/randomizedcoder/go-hls-analyzer/internal/logging"
	"github.com/randomizedcoder/go-hls-analyzer/internal/metrics"
	"github.com/randomizedcoder/go-hls-analyzer/internal/preflight"
	"github.com/randomizedcoder/go-hls-analyzer/internal/probe"
	"github.com/randomizedcoder/go-hls-analyzer/internal/stats"
	"github.com/randomizedcoder/go-hls-analyzer/internal/tui"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/go-hls-analyzer
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.ParseFlags()
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return 1
	}

	if cfg.ShowVersion {
		fmt.Printf("go-hls-analyzer %s\n", version)
		return 0
	}

	if cfg.PrintConfig {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error printing config: %v\n", err)
			return 1
		}
		return 0
	}

	// When TUI is enabled, suppress logs to avoid interfering with TUI rendering
	var logger *slog.Logger
	if cfg.TUIEnabled {
		logger = logging.NewLoggerWithWriter(io.Discard, "json", "info")
	} else {
		logger = logging.NewLogger(cfg.LogFormat, "info", cfg.Verbose)
	}
	logging.SetDefault(logger)

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}

	if !cfg.SkipPreflight {
		result := preflight.RunAll(preflight.Options{
			Concurrency:      cfg.Concurrency,
			ProbeConcurrency: cfg.ProbeConcurrency,
			FFprobePath:      cfg.FFprobePath,
			ProbeEnabled:     cfg.ProbeEnabled,
		})
		if !result.Passed || cfg.Verbose {
			preflight.PrintResults(os.Stderr, result)
		}
		if !result.Passed {
			fmt.Fprintln(os.Stderr, "Preflight checks failed (use --skip-preflight to override)")
			return 1
		}
	}

	runID := uuid.NewString()
	logger.Info("starting",
		"version", version,
		"run_id", runID,
		"manifest", cfg.Manifest,
		"concurrency", cfg.Concurrency,
		"probe", cfg.ProbeEnabled,
		"output", cfg.OutputPath,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	collector := metrics.NewCollector(metrics.CollectorConfig{
		Version:  version,
		Manifest: cfg.Manifest,
		RunID:    runID,
	})

	var server *metrics.Server
	if cfg.MetricsAddr != "" {
		server = metrics.NewServer(cfg.MetricsAddr, prometheus.DefaultGatherer, logger)
		if err := server.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to start metrics server: %v\n", err)
			return 1
		}
		server.SetReady(true)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Warn("metrics_server_shutdown_error", "error", err)
			}
		}()
	}

	opts := []analyzer.Option{
		analyzer.WithRunID(runID),
		analyzer.WithCollector(collector),
	}

	var res *analyzer.Run
	if cfg.TUIEnabled {
		res, err = runWithTUI(ctx, cfg, logger, opts)
	} else {
		res, err = runPlain(ctx, cfg, logger, opts)
	}

	if cfg.MetricsTextfile != "" {
		if werr := metrics.WriteTextfile(prometheus.DefaultGatherer, cfg.MetricsTextfile); werr != nil {
			logger.Warn("metrics_textfile_failed", "path", cfg.MetricsTextfile, "error", werr)
		}
	}

	if res != nil && res.Manifest != nil {
		metricsAddr := ""
		if server != nil {
			metricsAddr = server.Addr()
		}
		fmt.Print(stats.FormatSummary(res.Stats, stats.SummaryConfig{
			Manifest:    cfg.Manifest,
			RunID:       runID,
			Duration:    res.Duration,
			OutputPath:  cfg.OutputPath,
			MetricsAddr: metricsAddr,
			MaxListed:   10,
		}))
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Analysis failed: %v\n", err)
		return 1
	}
	return 0
}

func runPlain(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts []analyzer.Option) (*analyzer.Run, error) {
	a, err := analyzer.New(cfg, logger, opts...)
	if err != nil {
		return nil, err
	}
	return a.Run(ctx)
}

// runWithTUI runs the analysis under the live dashboard. Quitting the
// dashboard cancels the run.
func runWithTUI(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts []analyzer.Option) (*analyzer.Run, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	program := tea.NewProgram(tui.New(tui.Config{
		Manifest:    cfg.Manifest,
		MetricsAddr: cfg.MetricsAddr,
		OnQuit:      cancel,
	}))

	opts = append(opts, analyzer.WithCallbacks(analyzer.Callbacks{
		OnPlan: func(segments, probes int) {
			program.Send(tui.PlanMsg{Segments: segments, Probes: probes})
		},
		OnOutcome: func(o availability.Outcome) { tui.SendOutcome(program, o) },
		OnResult:  func(r probe.Result) { tui.SendProbe(program, r) },
	}))

	a, err := analyzer.New(cfg, logger, opts...)
	if err != nil {
		return nil, err
	}

	type outcome struct {
		run *analyzer.Run
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := a.Run(ctx)
		var final stats.AggregateStats
		if res != nil {
			final = res.Stats
		}
		program.Send(tui.DoneMsg{Stats: final, Err: err})
		done <- outcome{run: res, err: err}
	}()

	if _, err := program.Run(); err != nil {
		cancel()
		logger.Warn("tui_error", "error", err)
	}

	out := <-done
	return out.run, out.err
}
