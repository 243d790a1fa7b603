// Package normalize maps each adapter's raw payload shape into the canonical
// per-minute record schema. Pure mapping: no network, no storage.
package normalize

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/akovalev/minutecast/internal/pkg/models"
)

// ErrSchemaMismatch means the payload parsed but violated the expected
// shape or value ranges.
var ErrSchemaMismatch = errors.New("payload violates canonical schema")

// SchemaError carries the offending adapter and reason; it matches
// ErrSchemaMismatch under errors.Is.
type SchemaError struct {
	Adapter models.AdapterTag
	Reason  string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema mismatch (%s): %s", e.Adapter, e.Reason)
}

func (e *SchemaError) Unwrap() error { return ErrSchemaMismatch }

func schemaErrf(tag models.AdapterTag, format string, args ...any) error {
	return &SchemaError{Adapter: tag, Reason: fmt.Sprintf(format, args...)}
}

// maxMinute bounds acceptable minute indices: 90 regular plus the longest
// stoppage the source has ever produced, with margin. Values outside the
// range are a schema violation, not something to clamp.
const maxMinute = 130

// Normalize dispatches on the adapter tag that produced the payload.
func Normalize(p models.RawPayload) (models.Fixture, []models.MinuteRecord, error) {
	switch p.Adapter {
	case models.AdapterStatsAPI:
		return normalizeStatsAPI(p)
	case models.AdapterMatchCentre:
		return normalizeMatchCentre(p)
	case models.AdapterExtractor:
		return normalizeExtractor(p)
	}
	return models.Fixture{}, nil, schemaErrf(p.Adapter, "unknown adapter tag")
}

// fieldMap ties one canonical stat to its source keys in the two
// minute-keyed shapes. Count stats are rounded to integers on assignment.
type fieldMap struct {
	matchCentreKey string
	statsAPIKey    string
	assignHome     func(*models.MinuteRecord, float64)
	assignAway     func(*models.MinuteRecord, float64)
}

func countHome(set func(*models.MinuteRecord, int)) func(*models.MinuteRecord, float64) {
	return func(r *models.MinuteRecord, v float64) { set(r, int(math.Round(v))) }
}

var canonicalFields = []fieldMap{
	{
		matchCentreKey: "possession", statsAPIKey: "possession",
		assignHome: func(r *models.MinuteRecord, v float64) { r.PossessionHome = v },
		assignAway: func(r *models.MinuteRecord, v float64) { r.PossessionAway = v },
	},
	{
		matchCentreKey: "ratings", statsAPIKey: "ratings",
		assignHome: func(r *models.MinuteRecord, v float64) { r.RatingHome = v },
		assignAway: func(r *models.MinuteRecord, v float64) { r.RatingAway = v },
	},
	{
		matchCentreKey: "passSuccess", statsAPIKey: "passSuccess",
		assignHome: func(r *models.MinuteRecord, v float64) { r.PassSuccessHome = v },
		assignAway: func(r *models.MinuteRecord, v float64) { r.PassSuccessAway = v },
	},
	{
		matchCentreKey: "shotsTotal", statsAPIKey: "shots",
		assignHome: countHome(func(r *models.MinuteRecord, v int) { r.ShotsHome = v }),
		assignAway: countHome(func(r *models.MinuteRecord, v int) { r.ShotsAway = v }),
	},
	{
		matchCentreKey: "dribblesWon", statsAPIKey: "dribbles",
		assignHome: countHome(func(r *models.MinuteRecord, v int) { r.DribblesHome = v }),
		assignAway: countHome(func(r *models.MinuteRecord, v int) { r.DribblesAway = v }),
	},
	{
		matchCentreKey: "aerialsWon", statsAPIKey: "aerials",
		assignHome: countHome(func(r *models.MinuteRecord, v int) { r.AerialsHome = v }),
		assignAway: countHome(func(r *models.MinuteRecord, v int) { r.AerialsAway = v }),
	},
	{
		matchCentreKey: "tackleSuccessful", statsAPIKey: "tackles",
		assignHome: countHome(func(r *models.MinuteRecord, v int) { r.TacklesHome = v }),
		assignAway: countHome(func(r *models.MinuteRecord, v int) { r.TacklesAway = v }),
	},
	{
		matchCentreKey: "cornersTotal", statsAPIKey: "corners",
		assignHome: countHome(func(r *models.MinuteRecord, v int) { r.CornersHome = v }),
		assignAway: countHome(func(r *models.MinuteRecord, v int) { r.CornersAway = v }),
	},
}

// sortedRecords flattens the minute->record map into a minute-ordered slice.
func sortedRecords(byMinute map[int]*models.MinuteRecord) []models.MinuteRecord {
	minutes := make([]int, 0, len(byMinute))
	for m := range byMinute {
		minutes = append(minutes, m)
	}
	sort.Ints(minutes)
	out := make([]models.MinuteRecord, 0, len(minutes))
	for _, m := range minutes {
		out = append(out, *byMinute[m])
	}
	return out
}
