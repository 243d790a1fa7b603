package normalize

import (
	"encoding/json"

	"github.com/akovalev/minutecast/internal/pkg/models"
)

// The statistics endpoint serves each stat as home/away arrays of
// [minute, value] pairs.
type statsAPIData struct {
	MatchID int64                    `json:"matchId"`
	Info    statsAPIInfo             `json:"info"`
	Stats   map[string]statsAPISides `json:"stats"`
}

type statsAPIInfo struct {
	StartTime     string       `json:"startTime"`
	Status        string       `json:"status"`
	CompetitionID int64        `json:"competitionId"`
	HomeTeam      statsAPITeam `json:"homeTeam"`
	AwayTeam      statsAPITeam `json:"awayTeam"`
	HomeScore     *int         `json:"homeScore"`
	AwayScore     *int         `json:"awayScore"`
	Venue         string       `json:"venue"`
	Referee       string       `json:"referee"`
}

type statsAPITeam struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type statsAPISides struct {
	Home [][2]float64 `json:"home"`
	Away [][2]float64 `json:"away"`
}

func normalizeStatsAPI(p models.RawPayload) (models.Fixture, []models.MinuteRecord, error) {
	var data statsAPIData
	if err := json.Unmarshal(p.Body, &data); err != nil {
		return models.Fixture{}, nil, schemaErrf(p.Adapter, "parse statistics payload: %v", err)
	}
	if data.Info.HomeTeam.ID == 0 || data.Info.AwayTeam.ID == 0 {
		return models.Fixture{}, nil, schemaErrf(p.Adapter, "missing team identifiers")
	}

	fixture := models.Fixture{
		MatchID:       p.MatchID,
		CompetitionID: data.Info.CompetitionID,
		KickoffUTC:    parseKickoff(data.Info.StartTime),
		Status:        data.Info.Status,
		HomeTeamID:    data.Info.HomeTeam.ID,
		HomeTeamName:  data.Info.HomeTeam.Name,
		AwayTeamID:    data.Info.AwayTeam.ID,
		AwayTeamName:  data.Info.AwayTeam.Name,
		HomeScore:     data.Info.HomeScore,
		AwayScore:     data.Info.AwayScore,
		RefereeName:   data.Info.Referee,
		VenueName:     data.Info.Venue,
	}

	byMinute := map[int]*models.MinuteRecord{}
	record := func(minute int) *models.MinuteRecord {
		if r, ok := byMinute[minute]; ok {
			return r
		}
		r := models.EmptyMinute(p.MatchID, minute)
		byMinute[minute] = &r
		return &r
	}

	for _, f := range canonicalFields {
		sides, ok := data.Stats[f.statsAPIKey]
		if !ok {
			continue
		}
		for _, pair := range sides.Home {
			minute := int(pair[0])
			if minute < 0 || minute > maxMinute {
				return models.Fixture{}, nil, schemaErrf(p.Adapter, "minute %d outside [0, %d]", minute, maxMinute)
			}
			f.assignHome(record(minute), pair[1])
		}
		for _, pair := range sides.Away {
			minute := int(pair[0])
			if minute < 0 || minute > maxMinute {
				return models.Fixture{}, nil, schemaErrf(p.Adapter, "minute %d outside [0, %d]", minute, maxMinute)
			}
			f.assignAway(record(minute), pair[1])
		}
	}

	if len(byMinute) == 0 {
		return models.Fixture{}, nil, schemaErrf(p.Adapter, "no minute-indexed statistics found")
	}
	return fixture, sortedRecords(byMinute), nil
}
