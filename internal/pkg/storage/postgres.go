// Package storage persists fixtures and their minute series in PostgreSQL.
// Writes are idempotent: re-scraping a match overwrites its rows in place.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/lib/pq"

	"github.com/akovalev/minutecast/internal/pkg/config"
	"github.com/akovalev/minutecast/internal/pkg/models"
)

// ErrPersistenceConflict means a write kept losing to concurrent lock or
// serialization conflicts after bounded retries.
var ErrPersistenceConflict = errors.New("persistent database conflict")

const (
	conflictMaxAttempts = 3
	conflictBaseDelay   = 100 * time.Millisecond
)

type Store struct {
	db  *sql.DB
	log *slog.Logger
}

func New(cfg *config.PostgresConfig) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &Store{db: db, log: slog.Default().With("component", "storage")}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) initSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS fixtures (
		match_id BIGINT PRIMARY KEY,
		competition_id BIGINT,
		kickoff_utc TIMESTAMPTZ,
		status TEXT NOT NULL DEFAULT '',
		home_team_id BIGINT NOT NULL,
		home_team_name TEXT NOT NULL,
		away_team_id BIGINT NOT NULL,
		away_team_name TEXT NOT NULL,
		home_score INTEGER,
		away_score INTEGER,
		referee TEXT NOT NULL DEFAULT '',
		venue TEXT NOT NULL DEFAULT '',
		scraped_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS match_minutes (
		match_id BIGINT NOT NULL,
		minute INTEGER NOT NULL,
		possession_home DOUBLE PRECISION,
		possession_away DOUBLE PRECISION,
		rating_home DOUBLE PRECISION,
		rating_away DOUBLE PRECISION,
		pass_success_home DOUBLE PRECISION,
		pass_success_away DOUBLE PRECISION,
		shots_home INTEGER,
		shots_away INTEGER,
		dribbles_home INTEGER,
		dribbles_away INTEGER,
		aerials_home INTEGER,
		aerials_away INTEGER,
		tackles_home INTEGER,
		tackles_away INTEGER,
		corners_home INTEGER,
		corners_away INTEGER,
		scraped_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (match_id, minute)
	);

	CREATE INDEX IF NOT EXISTS idx_fixtures_kickoff ON fixtures(kickoff_utc);
	CREATE INDEX IF NOT EXISTS idx_match_minutes_scraped_at ON match_minutes(scraped_at);
	`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

// HasMatch reports whether the fixture has been scraped before. The pipeline
// uses it to skip matches unless forced.
func (s *Store) HasMatch(ctx context.Context, id models.MatchID) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM fixtures WHERE match_id = $1)`, int64(id),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check fixture %d: %w", id, err)
	}
	return exists, nil
}

// UpsertMatch writes the fixture row and its full minute series in one
// transaction. Missing stats land as NULL. Lock and serialization conflicts
// are retried a few times before surfacing as ErrPersistenceConflict.
func (s *Store) UpsertMatch(ctx context.Context, fixture models.Fixture, records []models.MinuteRecord, scrapedAt time.Time) error {
	var lastErr error
	for attempt := 0; attempt < conflictMaxAttempts; attempt++ {
		lastErr = s.upsertOnce(ctx, fixture, records, scrapedAt)
		if lastErr == nil {
			return nil
		}
		if !isConflict(lastErr) {
			return lastErr
		}
		delay := conflictBaseDelay << attempt
		s.log.Warn("database conflict, retrying",
			"match_id", fixture.MatchID, "attempt", attempt+1, "delay", delay, "error", lastErr)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("upsert match %d: %w: %w", fixture.MatchID, ErrPersistenceConflict, lastErr)
}

func (s *Store) upsertOnce(ctx context.Context, fixture models.Fixture, records []models.MinuteRecord, scrapedAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, upsertFixtureQuery,
		int64(fixture.MatchID),
		nullInt64(fixture.CompetitionID),
		nullTime(fixture.KickoffUTC),
		fixture.Status,
		fixture.HomeTeamID, fixture.HomeTeamName,
		fixture.AwayTeamID, fixture.AwayTeamName,
		nullIntPtr(fixture.HomeScore), nullIntPtr(fixture.AwayScore),
		fixture.RefereeName, fixture.VenueName,
		scrapedAt,
	); err != nil {
		return fmt.Errorf("upsert fixture %d: %w", fixture.MatchID, err)
	}

	stmt, err := tx.PrepareContext(ctx, upsertMinuteQuery)
	if err != nil {
		return fmt.Errorf("prepare minute upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx,
			int64(r.MatchID), r.Minute,
			nullFloat(r.PossessionHome), nullFloat(r.PossessionAway),
			nullFloat(r.RatingHome), nullFloat(r.RatingAway),
			nullFloat(r.PassSuccessHome), nullFloat(r.PassSuccessAway),
			nullCount(r.ShotsHome), nullCount(r.ShotsAway),
			nullCount(r.DribblesHome), nullCount(r.DribblesAway),
			nullCount(r.AerialsHome), nullCount(r.AerialsAway),
			nullCount(r.TacklesHome), nullCount(r.TacklesAway),
			nullCount(r.CornersHome), nullCount(r.CornersAway),
			scrapedAt,
		); err != nil {
			return fmt.Errorf("upsert minute %d of match %d: %w", r.Minute, r.MatchID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit match %d: %w", fixture.MatchID, err)
	}
	return nil
}

const upsertFixtureQuery = `
	INSERT INTO fixtures (
		match_id, competition_id, kickoff_utc, status,
		home_team_id, home_team_name, away_team_id, away_team_name,
		home_score, away_score, referee, venue, scraped_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	ON CONFLICT (match_id) DO UPDATE SET
		competition_id = EXCLUDED.competition_id,
		kickoff_utc = EXCLUDED.kickoff_utc,
		status = EXCLUDED.status,
		home_team_id = EXCLUDED.home_team_id,
		home_team_name = EXCLUDED.home_team_name,
		away_team_id = EXCLUDED.away_team_id,
		away_team_name = EXCLUDED.away_team_name,
		home_score = EXCLUDED.home_score,
		away_score = EXCLUDED.away_score,
		referee = EXCLUDED.referee,
		venue = EXCLUDED.venue,
		scraped_at = EXCLUDED.scraped_at
`

const upsertMinuteQuery = `
	INSERT INTO match_minutes (
		match_id, minute,
		possession_home, possession_away,
		rating_home, rating_away,
		pass_success_home, pass_success_away,
		shots_home, shots_away,
		dribbles_home, dribbles_away,
		aerials_home, aerials_away,
		tackles_home, tackles_away,
		corners_home, corners_away,
		scraped_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	ON CONFLICT (match_id, minute) DO UPDATE SET
		possession_home = EXCLUDED.possession_home,
		possession_away = EXCLUDED.possession_away,
		rating_home = EXCLUDED.rating_home,
		rating_away = EXCLUDED.rating_away,
		pass_success_home = EXCLUDED.pass_success_home,
		pass_success_away = EXCLUDED.pass_success_away,
		shots_home = EXCLUDED.shots_home,
		shots_away = EXCLUDED.shots_away,
		dribbles_home = EXCLUDED.dribbles_home,
		dribbles_away = EXCLUDED.dribbles_away,
		aerials_home = EXCLUDED.aerials_home,
		aerials_away = EXCLUDED.aerials_away,
		tackles_home = EXCLUDED.tackles_home,
		tackles_away = EXCLUDED.tackles_away,
		corners_home = EXCLUDED.corners_home,
		corners_away = EXCLUDED.corners_away,
		scraped_at = EXCLUDED.scraped_at
`

// Postgres conflict classes worth retrying: lock_not_available,
// serialization_failure, deadlock_detected.
var conflictCodes = map[pq.ErrorCode]bool{
	"55P03": true,
	"40001": true,
	"40P01": true,
}

func isConflict(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return conflictCodes[pqErr.Code]
	}
	return false
}

// nullFloat maps the NaN missing sentinel to SQL NULL.
func nullFloat(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: !math.IsNaN(v)}
}

// nullCount maps the MissingCount sentinel to SQL NULL.
func nullCount(v int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(v), Valid: v != models.MissingCount}
}

func nullInt64(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}

func nullIntPtr(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
