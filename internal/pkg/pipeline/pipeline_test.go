package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/akovalev/minutecast/internal/pkg/config"
	"github.com/akovalev/minutecast/internal/pkg/models"
	"github.com/akovalev/minutecast/internal/pkg/reconcile"
)

type fakeFetcher struct {
	mu      sync.Mutex
	fail    map[models.MatchID]error
	fetched []models.MatchID
}

func (f *fakeFetcher) Fetch(ctx context.Context, id models.MatchID) (models.RawPayload, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, id)
	f.mu.Unlock()
	if err := f.fail[id]; err != nil {
		return models.RawPayload{}, err
	}
	body := fmt.Sprintf(`{
		"matchId": %d,
		"info": {
			"homeTeam": {"id": 1, "name": "Home"},
			"awayTeam": {"id": 2, "name": "Away"}
		},
		"stats": {
			"possession": {"home": [[0, 50], [1, 58]], "away": [[0, 50], [1, 42]]}
		}
	}`, id)
	return models.RawPayload{MatchID: id, Adapter: models.AdapterStatsAPI, Body: []byte(body)}, nil
}

type storedMatch struct {
	fixture models.Fixture
	records []models.MinuteRecord
	writes  int
}

type memStore struct {
	mu      sync.Mutex
	matches map[models.MatchID]*storedMatch
	hasErr  error
}

func newMemStore() *memStore {
	return &memStore{matches: map[models.MatchID]*storedMatch{}}
}

func (s *memStore) HasMatch(ctx context.Context, id models.MatchID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hasErr != nil {
		return false, s.hasErr
	}
	_, ok := s.matches[id]
	return ok, nil
}

func (s *memStore) UpsertMatch(ctx context.Context, fixture models.Fixture, records []models.MinuteRecord, scrapedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[fixture.MatchID]
	if !ok {
		m = &storedMatch{}
		s.matches[fixture.MatchID] = m
	}
	m.fixture = fixture
	m.records = records
	m.writes++
	return nil
}

type fakeAlerter struct {
	mu      sync.Mutex
	reports []models.QualityReport
}

func (a *fakeAlerter) RecordQualityAlert(report models.QualityReport) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reports = append(a.reports, report)
}

func newTestPipeline(fetcher Fetcher, store Store, alerter Alerter) *Pipeline {
	rc := reconcile.New(config.ReconcileConfig{
		FillStrategy:      reconcile.StrategyForwardFill,
		GapTolerance:      3,
		PossessionEpsilon: 5.0,
	})
	return New(fetcher, store, rc, alerter)
}

func TestRunWritesMatches(t *testing.T) {
	store := newMemStore()
	p := newTestPipeline(&fakeFetcher{}, store, nil)

	summary, err := p.Run(context.Background(), []models.MatchID{3, 1, 2}, Options{Workers: 2})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(summary.Written) != 3 || len(summary.Skipped) != 0 || len(summary.Failed) != 0 {
		t.Fatalf("summary = %+v", summary)
	}
	for i, want := range []models.MatchID{1, 2, 3} {
		if summary.Written[i] != want {
			t.Errorf("Written[%d] = %d, want %d (sorted)", i, summary.Written[i], want)
		}
	}
	if len(store.matches[1].records) != 2 {
		t.Errorf("stored %d minute records, want 2", len(store.matches[1].records))
	}
}

func TestRunSkipsStoredMatches(t *testing.T) {
	store := newMemStore()
	fetcher := &fakeFetcher{}
	p := newTestPipeline(fetcher, store, nil)
	ids := []models.MatchID{1, 2}

	if _, err := p.Run(context.Background(), ids, Options{Workers: 1}); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	summary, err := p.Run(context.Background(), ids, Options{Workers: 1})
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}

	if len(summary.Skipped) != 2 || len(summary.Written) != 0 {
		t.Fatalf("second run summary = %+v, want everything skipped", summary)
	}
	if len(fetcher.fetched) != 2 {
		t.Errorf("fetched = %v, skipped matches must not be fetched", fetcher.fetched)
	}
	for _, m := range store.matches {
		if m.writes != 1 {
			t.Errorf("writes = %d, want 1", m.writes)
		}
	}
}

// Force re-scrapes and the second write lands on the same rows, so repeated
// runs leave the store in the same state.
func TestRunForceIsIdempotent(t *testing.T) {
	store := newMemStore()
	p := newTestPipeline(&fakeFetcher{}, store, nil)
	ids := []models.MatchID{7}

	for run := 0; run < 2; run++ {
		summary, err := p.Run(context.Background(), ids, Options{Force: true, Workers: 1})
		if err != nil {
			t.Fatalf("Run() #%d error = %v", run+1, err)
		}
		if len(summary.Written) != 1 {
			t.Fatalf("Run() #%d summary = %+v", run+1, summary)
		}
	}

	m := store.matches[7]
	if m.writes != 2 {
		t.Errorf("writes = %d, want 2", m.writes)
	}
	if len(m.records) != 2 || m.records[1].PossessionHome != 58 {
		t.Errorf("final state diverged after repeated run: %+v", m.records)
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	store := newMemStore()
	fetcher := &fakeFetcher{fail: map[models.MatchID]error{2: errors.New("source down")}}
	p := newTestPipeline(fetcher, store, nil)

	summary, err := p.Run(context.Background(), []models.MatchID{1, 2, 3}, Options{Workers: 1})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(summary.Failed) != 1 || summary.Failed[0] != 2 {
		t.Errorf("Failed = %v, want [2]", summary.Failed)
	}
	if len(summary.Written) != 2 {
		t.Errorf("Written = %v, siblings of a failed match must still be processed", summary.Written)
	}
}

func TestRunForwardsQualityReports(t *testing.T) {
	store := newMemStore()
	alerter := &fakeAlerter{}
	p := newTestPipeline(&fakeFetcher{}, store, alerter)

	if _, err := p.Run(context.Background(), []models.MatchID{5}, Options{Workers: 1}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(alerter.reports) != 1 || alerter.reports[0].MatchID != 5 {
		t.Fatalf("reports = %+v, want one for match 5", alerter.reports)
	}
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newTestPipeline(&fakeFetcher{}, newMemStore(), nil)
	_, err := p.Run(ctx, []models.MatchID{1, 2, 3}, Options{Workers: 1})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
}
