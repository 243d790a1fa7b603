package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	pkgconfig "github.com/akovalev/minutecast/internal/pkg/config"
	"github.com/akovalev/minutecast/internal/pkg/discovery"
	"github.com/akovalev/minutecast/internal/pkg/logging"
)

const defaultConfigPath = "configs/production.yaml"

type cliConfig struct {
	configPath string
	leagueURL  string
	outFile    string
	past       int
	future     int
}

func main() {
	if err := run(); err != nil {
		slog.Error("Discovery failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	logging.SetupLogger("discover")

	cfg := parseFlags()
	slog.Info("Loading config", "path", cfg.configPath)
	appConfig, err := pkgconfig.Load(cfg.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	leagueURL := cfg.leagueURL
	if leagueURL == "" {
		leagueURL = appConfig.Discovery.LeagueURL
	}
	if leagueURL == "" {
		return fmt.Errorf("no league URL given; pass -league or set discovery.league_url in config")
	}

	window := discovery.Window{
		PastMonths:   appConfig.Discovery.PastMonths,
		FutureMonths: appConfig.Discovery.FutureMonths,
	}
	if cfg.past >= 0 {
		window.PastMonths = cfg.past
	}
	if cfg.future >= 0 {
		window.FutureMonths = cfg.future
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d := discovery.New(appConfig.Discovery, appConfig.Scraper.UserAgent)
	ids, err := d.DiscoverFixtureIDs(ctx, leagueURL, window)
	if err != nil {
		return err
	}

	var b strings.Builder
	for _, id := range ids {
		fmt.Fprintf(&b, "%d\n", id)
	}
	if cfg.outFile == "" {
		fmt.Print(b.String())
		return nil
	}
	if err := os.WriteFile(cfg.outFile, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write ids file: %w", err)
	}
	slog.Info("Fixture IDs written", "path", cfg.outFile, "count", len(ids))
	return nil
}

func parseFlags() cliConfig {
	var cfg cliConfig

	defaultConfig := os.Getenv("CONFIG_PATH")
	if defaultConfig == "" {
		defaultConfig = defaultConfigPath
	}

	flag.StringVar(&cfg.configPath, "config", defaultConfig, "Path to config file (can be set via CONFIG_PATH env var)")
	flag.StringVar(&cfg.leagueURL, "league", "", "League overview URL. Empty = use discovery.league_url from config")
	flag.StringVar(&cfg.outFile, "out", "", "Write IDs to this file, one per line. Empty = stdout, ready for scraper -ids-file")
	flag.IntVar(&cfg.past, "past-months", -1, "Override discovery.past_months. -1 = use config")
	flag.IntVar(&cfg.future, "future-months", -1, "Override discovery.future_months. -1 = use config")
	flag.Parse()
	return cfg
}
