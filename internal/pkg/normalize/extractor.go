package normalize

import (
	"encoding/json"

	"github.com/akovalev/minutecast/internal/pkg/models"
)

// The extractor service returns already-flattened minute rows. Fields are
// pointers so an absent stat is distinguishable from a zero.
type extractorData struct {
	Match   extractorMatch    `json:"match"`
	Minutes []extractorMinute `json:"minutes"`
}

type extractorMatch struct {
	MatchID       int64  `json:"match_id"`
	CompetitionID int64  `json:"competition_id"`
	KickoffUTC    string `json:"kickoff_utc"`
	Status        string `json:"status"`
	HomeTeamID    int64  `json:"home_team_id"`
	HomeTeamName  string `json:"home_team_name"`
	AwayTeamID    int64  `json:"away_team_id"`
	AwayTeamName  string `json:"away_team_name"`
	HomeScore     *int   `json:"home_score"`
	AwayScore     *int   `json:"away_score"`
	Referee       string `json:"referee"`
	Venue         string `json:"venue"`
}

type extractorMinute struct {
	Minute          int      `json:"minute"`
	PossessionHome  *float64 `json:"possession_home"`
	PossessionAway  *float64 `json:"possession_away"`
	RatingHome      *float64 `json:"rating_home"`
	RatingAway      *float64 `json:"rating_away"`
	PassSuccessHome *float64 `json:"pass_success_home"`
	PassSuccessAway *float64 `json:"pass_success_away"`
	ShotsHome       *int     `json:"shots_home"`
	ShotsAway       *int     `json:"shots_away"`
	DribblesHome    *int     `json:"dribbles_home"`
	DribblesAway    *int     `json:"dribbles_away"`
	AerialsHome     *int     `json:"aerials_home"`
	AerialsAway     *int     `json:"aerials_away"`
	TacklesHome     *int     `json:"tackles_home"`
	TacklesAway     *int     `json:"tackles_away"`
	CornersHome     *int     `json:"corners_home"`
	CornersAway     *int     `json:"corners_away"`
}

func normalizeExtractor(p models.RawPayload) (models.Fixture, []models.MinuteRecord, error) {
	var data extractorData
	if err := json.Unmarshal(p.Body, &data); err != nil {
		return models.Fixture{}, nil, schemaErrf(p.Adapter, "parse extractor payload: %v", err)
	}
	if data.Match.HomeTeamID == 0 || data.Match.AwayTeamID == 0 {
		return models.Fixture{}, nil, schemaErrf(p.Adapter, "missing team identifiers")
	}
	if len(data.Minutes) == 0 {
		return models.Fixture{}, nil, schemaErrf(p.Adapter, "empty minutes array")
	}

	fixture := models.Fixture{
		MatchID:       p.MatchID,
		CompetitionID: data.Match.CompetitionID,
		KickoffUTC:    parseKickoff(data.Match.KickoffUTC),
		Status:        data.Match.Status,
		HomeTeamID:    data.Match.HomeTeamID,
		HomeTeamName:  data.Match.HomeTeamName,
		AwayTeamID:    data.Match.AwayTeamID,
		AwayTeamName:  data.Match.AwayTeamName,
		HomeScore:     data.Match.HomeScore,
		AwayScore:     data.Match.AwayScore,
		RefereeName:   data.Match.Referee,
		VenueName:     data.Match.Venue,
	}

	byMinute := map[int]*models.MinuteRecord{}
	for _, m := range data.Minutes {
		if m.Minute < 0 || m.Minute > maxMinute {
			return models.Fixture{}, nil, schemaErrf(p.Adapter, "minute %d outside [0, %d]", m.Minute, maxMinute)
		}
		r := models.EmptyMinute(p.MatchID, m.Minute)
		setFloat(&r.PossessionHome, m.PossessionHome)
		setFloat(&r.PossessionAway, m.PossessionAway)
		setFloat(&r.RatingHome, m.RatingHome)
		setFloat(&r.RatingAway, m.RatingAway)
		setFloat(&r.PassSuccessHome, m.PassSuccessHome)
		setFloat(&r.PassSuccessAway, m.PassSuccessAway)
		setCount(&r.ShotsHome, m.ShotsHome)
		setCount(&r.ShotsAway, m.ShotsAway)
		setCount(&r.DribblesHome, m.DribblesHome)
		setCount(&r.DribblesAway, m.DribblesAway)
		setCount(&r.AerialsHome, m.AerialsHome)
		setCount(&r.AerialsAway, m.AerialsAway)
		setCount(&r.TacklesHome, m.TacklesHome)
		setCount(&r.TacklesAway, m.TacklesAway)
		setCount(&r.CornersHome, m.CornersHome)
		setCount(&r.CornersAway, m.CornersAway)
		byMinute[m.Minute] = &r
	}
	return fixture, sortedRecords(byMinute), nil
}

func setFloat(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}

func setCount(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}
