package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/aluiziolira/dbl-equipment-scraper/config"
	"github.com/aluiziolira/dbl-equipment-scraper/models"
	"github.com/aluiziolira/dbl-equipment-scraper/pipeline"
	"github.com/aluiziolira/dbl-equipment-scraper/scraper"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run executes one extraction and returns the process exit code. Deferred
// cleanup (writer close, signal handler release) always runs before main
// exits.
func run(args []string) int {
	defaultCfg := config.DefaultConfig()

	fs := flag.NewFlagSet("dbl-equipment-scraper", flag.ContinueOnError)
	configPath := fs.String("config", "", "Optional YAML configuration file")
	baseURL := fs.String("base-url", defaultCfg.BaseURL, "Site to extract equipment from")
	outputFile := fs.String("output", defaultCfg.OutputFile, "Output file path")
	outputFormat := fs.String("format", defaultCfg.OutputFormat, "Output format: json, csv, or dual")
	delay := fs.Duration("delay", defaultCfg.InterItemDelay, "Delay between detail pages")
	timeout := fs.Duration("timeout", defaultCfg.FetchTimeout, "Per-request timeout")
	metricsAddr := fs.String("metrics-addr", "", "Prometheus metrics listen address (e.g. :9090)")
	verbose := fs.Bool("v", false, "Enable verbose logging")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	logger, level := newLogger(*verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("loading configuration", slog.Any("error", err))
		return 1
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "base-url":
			cfg.BaseURL = *baseURL
		case "output":
			cfg.OutputFile = *outputFile
		case "format":
			cfg.OutputFormat = strings.ToLower(*outputFormat)
		case "delay":
			cfg.InterItemDelay = *delay
		case "timeout":
			cfg.FetchTimeout = *timeout
		case "metrics-addr":
			cfg.MetricsAddr = *metricsAddr
		case "v":
			cfg.Verbose = *verbose
		}
	})
	if cfg.Verbose {
		level.Set(slog.LevelDebug)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		return 1
	}

	fmt.Printf("Starting extraction from %s\n", cfg.ListURL())

	metrics := scraper.NewMetrics()
	fetcher, err := scraper.NewFetcher(cfg, metrics)
	if err != nil {
		slog.Error("initialising fetcher", slog.Any("error", err))
		return 1
	}

	writer, err := pipeline.NewWriter(cfg.OutputFormat, cfg.OutputFile)
	if err != nil {
		slog.Error("creating writer", slog.Any("error", err))
		return 1
	}
	defer func() {
		if err := writer.Close(); err != nil {
			slog.Error("close writer", slog.Any("error", err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	driver := pipeline.NewDriver(cfg, fetcher, writer, pipeline.WithMetrics(metrics))
	result, runErr := driver.Run(ctx)

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	if runErr != nil {
		if errors.Is(runErr, pipeline.ErrListingUnavailable) {
			fmt.Println("Failed to load the equipment listing page.")
		}
		slog.Error("extraction failed", slog.Any("error", runErr))
		return 1
	}

	if err := writer.Validate(); err != nil {
		slog.Error("output validation failed", slog.Any("error", err))
		return 1
	}

	printSummary(result, cfg.OutputFile)
	return 0
}

// loadConfig layers the optional YAML file and SCRAPER_* variables over the
// defaults. Flags are applied by the caller.
func loadConfig(path string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if value, ok := config.EnvString("SCRAPER_BASE_URL"); ok {
		cfg.BaseURL = value
	}
	if value, ok := config.EnvString("SCRAPER_OUTPUT"); ok {
		cfg.OutputFile = value
	}
	if value, ok := config.EnvString("SCRAPER_METRICS_ADDR"); ok {
		cfg.MetricsAddr = value
	}
	if value, ok, err := config.EnvDuration("SCRAPER_DELAY"); err != nil {
		return nil, fmt.Errorf("invalid SCRAPER_DELAY: %w", err)
	} else if ok {
		cfg.InterItemDelay = value
	}
	if value, ok, err := config.EnvDuration("SCRAPER_TIMEOUT"); err != nil {
		return nil, fmt.Errorf("invalid SCRAPER_TIMEOUT: %w", err)
	} else if ok {
		cfg.FetchTimeout = value
	}
	return cfg, nil
}

func printSummary(result *models.RunResult, outputFile string) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Printf("Done! %d equipment records saved to '%s'\n", len(result.Records), outputFile)
	fmt.Printf("  Discovered:    %d\n", result.Discovered)
	fmt.Printf("  Enriched:      %d\n", result.Enriched)
	fmt.Printf("  Degraded:      %d\n", result.Degraded)
	fmt.Printf("  Skipped:       %d\n", result.Skipped)
	if len(result.ErrorsByType) > 0 {
		kinds := make([]string, 0, len(result.ErrorsByType))
		for kind := range result.ErrorsByType {
			kinds = append(kinds, fmt.Sprintf("%s=%d", kind, result.ErrorsByType[kind]))
		}
		sort.Strings(kinds)
		fmt.Printf("  Error types:   %s\n", strings.Join(kinds, " "))
	}
	fmt.Printf("  Failed URLs:   %d\n", len(result.FailedURLs))
	fmt.Printf("  Duration:      %v\n", result.EndTime.Sub(result.StartTime).Round(time.Millisecond))
	fmt.Println(separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stderr) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
