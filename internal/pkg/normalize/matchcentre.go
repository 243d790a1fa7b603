package normalize

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/akovalev/minutecast/internal/pkg/models"
)

// matchCentreData as embedded in the live page. Stats are string-minute-keyed
// maps; the same map also carries aggregate keys like "fullGame" which are
// skipped during minute collection.
type matchCentreData struct {
	MatchID       int64           `json:"matchId"`
	StartDate     string          `json:"startDate"`
	Status        string          `json:"statusDescription"`
	DetailedState string          `json:"detailedStatus"`
	FTScore       string          `json:"ftScore"`
	Score         string          `json:"score"`
	VenueName     string          `json:"venueName"`
	Referee       matchCentreRef  `json:"referee"`
	Home          matchCentreTeam `json:"home"`
	Away          matchCentreTeam `json:"away"`
}

type matchCentreRef struct {
	Name         string `json:"name"`
	OfficialName string `json:"officialName"`
}

type matchCentreTeam struct {
	TeamID int64                         `json:"teamId"`
	Name   string                        `json:"name"`
	Stats  map[string]map[string]float64 `json:"stats"`
}

func normalizeMatchCentre(p models.RawPayload) (models.Fixture, []models.MinuteRecord, error) {
	var data matchCentreData
	if err := json.Unmarshal(p.Body, &data); err != nil {
		return models.Fixture{}, nil, schemaErrf(p.Adapter, "parse matchCentreData: %v", err)
	}
	if data.Home.TeamID == 0 || data.Away.TeamID == 0 {
		return models.Fixture{}, nil, schemaErrf(p.Adapter, "missing team identifiers")
	}

	fixture := models.Fixture{
		MatchID:      p.MatchID,
		KickoffUTC:   parseKickoff(data.StartDate),
		Status:       firstNonEmpty(data.Status, data.DetailedState),
		HomeTeamID:   data.Home.TeamID,
		HomeTeamName: data.Home.Name,
		AwayTeamID:   data.Away.TeamID,
		AwayTeamName: data.Away.Name,
		RefereeName:  firstNonEmpty(data.Referee.Name, data.Referee.OfficialName),
		VenueName:    data.VenueName,
	}
	fixture.HomeScore, fixture.AwayScore = parseScore(firstNonEmpty(data.FTScore, data.Score))

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
		for minuteKey, v := range data.Home.Stats[f.matchCentreKey] {
			minute, ok, err := parseMinuteKey(p.Adapter, minuteKey)
			if err != nil {
				return models.Fixture{}, nil, err
			}
			if ok {
				f.assignHome(record(minute), v)
			}
		}
		for minuteKey, v := range data.Away.Stats[f.matchCentreKey] {
			minute, ok, err := parseMinuteKey(p.Adapter, minuteKey)
			if err != nil {
				return models.Fixture{}, nil, err
			}
			if ok {
				f.assignAway(record(minute), v)
			}
		}
	}

	if len(byMinute) == 0 {
		return models.Fixture{}, nil, schemaErrf(p.Adapter, "no minute-keyed statistics found")
	}
	return fixture, sortedRecords(byMinute), nil
}

// parseMinuteKey converts a stat-map key to a minute index. Non-numeric keys
// ("fullGame" aggregates) are skipped; numeric keys outside the valid range
// are a schema violation.
func parseMinuteKey(tag models.AdapterTag, key string) (int, bool, error) {
	minute, err := strconv.Atoi(key)
	if err != nil {
		return 0, false, nil
	}
	if minute < 0 || minute > maxMinute {
		return 0, false, schemaErrf(tag, "minute %d outside [0, %d]", minute, maxMinute)
	}
	return minute, true, nil
}

var kickoffLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
}

// parseKickoff handles the source's bare local-looking timestamps, which are
// in fact UTC.
func parseKickoff(s string) time.Time {
	for _, layout := range kickoffLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// parseScore splits "2-1" style score strings.
func parseScore(s string) (*int, *int) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return nil, nil
	}
	h, errH := strconv.Atoi(strings.TrimSpace(parts[0]))
	a, errA := strconv.Atoi(strings.TrimSpace(parts[1]))
	if errH != nil || errA != nil {
		return nil, nil
	}
	return &h, &a
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
