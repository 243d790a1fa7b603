package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/akovalev/minutecast/internal/pkg/alert"
	pkgconfig "github.com/akovalev/minutecast/internal/pkg/config"
	"github.com/akovalev/minutecast/internal/pkg/fetch"
	"github.com/akovalev/minutecast/internal/pkg/logging"
	"github.com/akovalev/minutecast/internal/pkg/models"
	"github.com/akovalev/minutecast/internal/pkg/pipeline"
	"github.com/akovalev/minutecast/internal/pkg/reconcile"
	"github.com/akovalev/minutecast/internal/pkg/retry"
	"github.com/akovalev/minutecast/internal/pkg/session"
	"github.com/akovalev/minutecast/internal/pkg/storage"

	// Register all source adapters via init().
	_ "github.com/akovalev/minutecast/internal/pkg/fetch/all"
)

const defaultConfigPath = "configs/production.yaml"

type cliConfig struct {
	configPath string
	idsFile    string
	force      bool
	workers    int
}

func main() {
	if err := run(); err != nil {
		slog.Error("Scraper failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	logging.SetupLogger("scraper")

	cfg, ids, err := parseFlags()
	if err != nil {
		return err
	}

	slog.Info("Loading config", "path", cfg.configPath)
	appConfig, err := pkgconfig.Load(cfg.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.workers > 0 {
		appConfig.Scraper.Workers = cfg.workers
	}

	store, err := storage.New(&appConfig.Postgres)
	if err != nil {
		return fmt.Errorf("initialize storage: %w", err)
	}
	defer store.Close()

	sessions := session.NewManager(appConfig.Session, appConfig.Scraper)
	transport := fetch.NewTransport(appConfig.Scraper)
	adapters, err := fetch.Chain(appConfig, transport)
	if err != nil {
		return err
	}
	fetcher := fetch.NewFetcher(adapters, sessions, retryPolicy(appConfig.Retry))

	notifier := alert.New(appConfig.Alert)
	defer notifier.Close()

	p := pipeline.New(fetcher, store, reconcile.New(appConfig.Reconcile), notifier)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting batch", "matches", len(ids), "workers", appConfig.Scraper.Workers, "force", cfg.force)
	summary, err := p.Run(ctx, ids, pipeline.Options{
		Force:   cfg.force,
		Workers: appConfig.Scraper.Workers,
	})
	if err != nil {
		return err
	}

	slog.Info("Batch complete",
		"written", len(summary.Written), "skipped", len(summary.Skipped), "failed", len(summary.Failed))
	if len(summary.Failed) > 0 {
		return fmt.Errorf("%d of %d matches failed: %v", len(summary.Failed), len(ids), summary.Failed)
	}
	return nil
}

func parseFlags() (cliConfig, []models.MatchID, error) {
	var cfg cliConfig

	defaultConfig := os.Getenv("CONFIG_PATH")
	if defaultConfig == "" {
		defaultConfig = defaultConfigPath
	}

	flag.StringVar(&cfg.configPath, "config", defaultConfig, "Path to config file (can be set via CONFIG_PATH env var)")
	flag.StringVar(&cfg.idsFile, "ids-file", "", "File with one match ID per line, in addition to positional IDs")
	flag.BoolVar(&cfg.force, "force", false, "Re-scrape matches that are already stored")
	flag.IntVar(&cfg.workers, "workers", 0, "Override scraper.workers from config. 0 = use config")
	flag.Parse()

	ids, err := collectIDs(flag.Args(), cfg.idsFile)
	if err != nil {
		return cfg, nil, err
	}
	if len(ids) == 0 {
		return cfg, nil, fmt.Errorf("no match IDs given; pass them as arguments or via -ids-file")
	}
	return cfg, ids, nil
}

// collectIDs merges positional arguments with the optional IDs file,
// preserving order and dropping duplicates.
func collectIDs(args []string, idsFile string) ([]models.MatchID, error) {
	raw := append([]string{}, args...)

	if idsFile != "" {
		f, err := os.Open(idsFile)
		if err != nil {
			return nil, fmt.Errorf("open ids file: %w", err)
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			raw = append(raw, line)
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read ids file: %w", err)
		}
	}

	seen := map[models.MatchID]bool{}
	ids := make([]models.MatchID, 0, len(raw))
	for _, s := range raw {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid match ID %q", s)
		}
		id := models.MatchID(n)
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func retryPolicy(cfg pkgconfig.RetryConfig) retry.Policy {
	return retry.Policy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay,
		Multiplier:  cfg.Multiplier,
		MaxDelay:    cfg.MaxDelay,
	}
}
