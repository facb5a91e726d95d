// Command secreport fetches findings from the configured API, runs
// every recipe's transform pipeline, and writes the resulting reports.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/secreport/secreport/pkg/cache"
	"github.com/secreport/secreport/pkg/checkpoint"
	"github.com/secreport/secreport/pkg/config"
	"github.com/secreport/secreport/pkg/fetch"
	"github.com/secreport/secreport/pkg/httpclient"
	"github.com/secreport/secreport/pkg/metrics"
	"github.com/secreport/secreport/pkg/query"
	"github.com/secreport/secreport/pkg/recipe"
	"github.com/secreport/secreport/pkg/render"
	"github.com/secreport/secreport/pkg/report"
	"github.com/secreport/secreport/pkg/transform"
	"github.com/secreport/secreport/pkg/ui"
)

var version = "dev"

const pingEndpoint = "/public/v0/findings"

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath   = flag.String("config", "config.yaml", "path to the YAML configuration file")
		periodFlag   = flag.String("period", "", "report window shorthand, e.g. 30d, 1m, Q1-2025, ytd")
		startDate    = flag.String("start-date", "", "window start (YYYY-MM-DD), overrides config")
		endDate      = flag.String("end-date", "", "window end (YYYY-MM-DD), overrides config")
		recipeFilter = flag.String("recipe", "", "run only recipes whose name contains this")
		outputDir    = flag.String("output", "", "output directory, overrides config")
		noColor      = flag.Bool("no-color", false, "disable colored terminal output")
		verbose      = flag.Bool("verbose", false, "debug logging")
		showVersion  = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println("secreport", version)
		return 0
	}
	ui.SetNoColor(*noColor)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	applyOverrides(cfg, *periodFlag, *startDate, *endDate, *recipeFilter, *outputDir, *verbose)
	if err := cfg.Normalize(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}

	logger := newLogger(cfg.Verbose)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ui.Banner(os.Stderr, version, cfg.StartDate, cfg.EndDate)

	recipes, err := recipe.LoadDir(cfg.RecipesDir)
	if err != nil {
		logger.Error("loading recipes", "dir", cfg.RecipesDir, "error", err)
		return 1
	}

	registry := transform.NewRegistry()
	if err := registry.Register(transform.ScanAnalysis{}); err != nil {
		logger.Error("registering transform functions", "error", err)
		return 1
	}

	reg := prometheus.NewRegistry()
	mset := metrics.NewSet(reg)

	responseCache := cache.New(logger)
	checkpoints, err := checkpoint.NewManager(".fetch_progress")
	if err != nil {
		logger.Error("creating checkpoint dir", "error", err)
		return 1
	}
	dates := query.DateRange{Start: cfg.StartDate, End: cfg.EndDate}

	fetcher := fetch.New(fetch.Options{
		BaseURL:     cfg.BaseURL(),
		HTTP:        httpclient.NewAuthenticated(httpclient.DefaultConfig(), cfg.AuthToken),
		Cache:       responseCache,
		Checkpoints: checkpoints,
		Dates:       dates,
		RateLimit:   rate.Limit(10),
		Logger:      logger,
		Metrics:     mset,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err = fetcher.Ping(pingCtx, pingEndpoint)
	cancel()
	if err != nil {
		logger.Error("connection test failed", "domain", cfg.Domain, "error", err)
		return 1
	}
	logger.Info("connection test passed", "domain", cfg.Domain)

	engine := report.NewEngine(report.Options{
		Fetcher:       fetcher,
		Transformer:   transform.NewEngine(registry, logger),
		Cache:         responseCache,
		Metrics:       mset,
		Sink:          render.New(cfg.OutputDir, logger),
		Logger:        logger,
		Dates:         dates,
		ProjectFilter: cfg.ProjectFilter,
		VersionFilter: cfg.VersionFilter,
		RecipeFilter:  cfg.RecipeFilter,
	})

	summary, err := engine.Run(ctx, recipes)
	if err != nil {
		logger.Error("report run failed", "error", err)
		return 1
	}

	ui.PrintSummary(os.Stderr, summary)
	if !summary.AllOK() {
		return 1
	}
	return 0
}

// applyOverrides lets flags win over the config file.
func applyOverrides(cfg *config.Config, periodFlag, start, end, recipeFilter, outputDir string, verbose bool) {
	if periodFlag != "" {
		cfg.Period = periodFlag
		cfg.StartDate = ""
		cfg.EndDate = ""
	}
	if start != "" {
		cfg.StartDate = start
		cfg.Period = ""
	}
	if end != "" {
		cfg.EndDate = end
		cfg.Period = ""
	}
	if recipeFilter != "" {
		cfg.RecipeFilter = recipeFilter
	}
	if outputDir != "" {
		cfg.OutputDir = outputDir
	}
	if verbose {
		cfg.Verbose = true
	}
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
