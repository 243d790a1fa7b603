package models

import (
	"math"
	"time"
)

// MatchID identifies one fixture in the upstream source. IDs are assigned
// externally (fixture discovery or direct caller input) and never change.
type MatchID int64

// AdapterTag names the source adapter that produced a raw payload.
type AdapterTag string

const (
	AdapterStatsAPI    AdapterTag = "statsapi"
	AdapterMatchCentre AdapterTag = "matchcentre"
	AdapterExtractor   AdapterTag = "extractor"
)

// RawPayload is the untyped response body from one successful adapter attempt.
// It lives only until normalization; on schema failure the body is kept for
// diagnostic capture.
type RawPayload struct {
	MatchID MatchID
	Adapter AdapterTag
	Body    []byte
}

// Fixture holds per-match metadata extracted alongside the minute series.
type Fixture struct {
	MatchID       MatchID    `json:"match_id"`
	CompetitionID int64      `json:"competition_id,omitempty"`
	KickoffUTC    time.Time  `json:"kickoff_utc"`
	Status        string     `json:"status"`
	HomeTeamID    int64      `json:"home_team_id"`
	HomeTeamName  string     `json:"home_team_name"`
	AwayTeamID    int64      `json:"away_team_id"`
	AwayTeamName  string     `json:"away_team_name"`
	HomeScore     *int       `json:"home_score,omitempty"`
	AwayScore     *int       `json:"away_score,omitempty"`
	RefereeName   string     `json:"referee_name,omitempty"`
	VenueName     string     `json:"venue_name,omitempty"`
}

// MissingCount marks an integer stat that was absent from the source payload.
// It is persisted as NULL, never as a real value.
const MissingCount = -1

// MinuteRecord is the canonical per-minute row every adapter payload is
// mapped into. Exactly one record per (match, minute) exists after
// reconciliation. Missing float stats are NaN, missing counts MissingCount.
type MinuteRecord struct {
	MatchID MatchID `json:"match_id"`
	Minute  int     `json:"minute"`

	PossessionHome  float64 `json:"possession_home"`
	PossessionAway  float64 `json:"possession_away"`
	RatingHome      float64 `json:"rating_home"`
	RatingAway      float64 `json:"rating_away"`
	PassSuccessHome float64 `json:"pass_success_home"`
	PassSuccessAway float64 `json:"pass_success_away"`

	ShotsHome    int `json:"shots_home"`
	ShotsAway    int `json:"shots_away"`
	DribblesHome int `json:"dribbles_home"`
	DribblesAway int `json:"dribbles_away"`
	AerialsHome  int `json:"aerials_home"`
	AerialsAway  int `json:"aerials_away"`
	TacklesHome  int `json:"tackles_home"`
	TacklesAway  int `json:"tackles_away"`
	CornersHome  int `json:"corners_home"`
	CornersAway  int `json:"corners_away"`
}

// EmptyMinute returns a record with every stat marked missing.
func EmptyMinute(matchID MatchID, minute int) MinuteRecord {
	nan := math.NaN()
	return MinuteRecord{
		MatchID:         matchID,
		Minute:          minute,
		PossessionHome:  nan,
		PossessionAway:  nan,
		RatingHome:      nan,
		RatingAway:      nan,
		PassSuccessHome: nan,
		PassSuccessAway: nan,
		ShotsHome:       MissingCount,
		ShotsAway:       MissingCount,
		DribblesHome:    MissingCount,
		DribblesAway:    MissingCount,
		AerialsHome:     MissingCount,
		AerialsAway:     MissingCount,
		TacklesHome:     MissingCount,
		TacklesAway:     MissingCount,
		CornersHome:     MissingCount,
		CornersAway:     MissingCount,
	}
}

// HasPossession reports whether both possession shares are present.
func (r MinuteRecord) HasPossession() bool {
	return !math.IsNaN(r.PossessionHome) && !math.IsNaN(r.PossessionAway)
}
