// Package pipeline runs the per-match flow end to end: skip check, fetch,
// normalize, reconcile, persist, alert. Matches are independent; one match
// failing never aborts its siblings.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/akovalev/minutecast/internal/pkg/models"
	"github.com/akovalev/minutecast/internal/pkg/normalize"
	"github.com/akovalev/minutecast/internal/pkg/reconcile"
)

// Fetcher produces one raw payload per match from whichever adapter wins.
type Fetcher interface {
	Fetch(ctx context.Context, id models.MatchID) (models.RawPayload, error)
}

// Store persists fixtures and minute series idempotently.
type Store interface {
	HasMatch(ctx context.Context, id models.MatchID) (bool, error)
	UpsertMatch(ctx context.Context, fixture models.Fixture, records []models.MinuteRecord, scrapedAt time.Time) error
}

// Alerter receives quality reports. Implementations must be fire-and-forget.
type Alerter interface {
	RecordQualityAlert(report models.QualityReport)
}

type Options struct {
	// Force re-scrapes matches that are already stored.
	Force bool
	// Workers caps concurrent matches in flight.
	Workers int
}

// Summary is the batch outcome. Failed lists match IDs whose errors were
// logged and swallowed.
type Summary struct {
	Written []models.MatchID
	Skipped []models.MatchID
	Failed  []models.MatchID
}

type Pipeline struct {
	fetcher    Fetcher
	store      Store
	reconciler *reconcile.Reconciler
	alerter    Alerter
	log        *slog.Logger
	now        func() time.Time
}

func New(fetcher Fetcher, store Store, reconciler *reconcile.Reconciler, alerter Alerter) *Pipeline {
	return &Pipeline{
		fetcher:    fetcher,
		store:      store,
		reconciler: reconciler,
		alerter:    alerter,
		log:        slog.Default().With("component", "pipeline"),
		now:        time.Now,
	}
}

// Run processes the given matches with a bounded worker pool. The returned
// error is non-nil only when the context is cancelled; per-match failures
// live in Summary.Failed.
func (p *Pipeline) Run(ctx context.Context, ids []models.MatchID, opts Options) (Summary, error) {
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	var (
		mu      sync.Mutex
		summary Summary
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			outcome, err := p.processMatch(ctx, id, opts.Force)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				p.log.Error("match failed", "match_id", id, "error", err)
				summary.Failed = append(summary.Failed, id)
			case outcome == outcomeSkipped:
				summary.Skipped = append(summary.Skipped, id)
			default:
				summary.Written = append(summary.Written, id)
			}
			return nil
		})
	}
	err := g.Wait()

	sortIDs(summary.Written)
	sortIDs(summary.Skipped)
	sortIDs(summary.Failed)
	p.log.Info("batch finished",
		"written", len(summary.Written), "skipped", len(summary.Skipped), "failed", len(summary.Failed))
	return summary, err
}

type outcome int

const (
	outcomeWritten outcome = iota
	outcomeSkipped
)

func (p *Pipeline) processMatch(ctx context.Context, id models.MatchID, force bool) (outcome, error) {
	if !force {
		exists, err := p.store.HasMatch(ctx, id)
		if err != nil {
			return 0, fmt.Errorf("skip check: %w", err)
		}
		if exists {
			p.log.Info("match already stored, skipping", "match_id", id)
			return outcomeSkipped, nil
		}
	}

	payload, err := p.fetcher.Fetch(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("fetch: %w", err)
	}

	fixture, observed, err := normalize.Normalize(payload)
	if err != nil {
		return 0, fmt.Errorf("normalize %s payload: %w", payload.Adapter, err)
	}

	records, report, err := p.reconciler.Run(id, observed)
	if err != nil {
		return 0, fmt.Errorf("reconcile: %w", err)
	}

	if err := p.store.UpsertMatch(ctx, fixture, records, p.now()); err != nil {
		return 0, fmt.Errorf("persist: %w", err)
	}

	p.log.Info("match written",
		"match_id", id, "adapter", payload.Adapter,
		"minutes", len(records), "coverage", report.CoverageRatio,
		"anomalies", len(report.Anomalies))
	if p.alerter != nil {
		p.alerter.RecordQualityAlert(report)
	}
	return outcomeWritten, nil
}

func sortIDs(ids []models.MatchID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
