// Package reconcile turns the sparse minute series an adapter produced into
// a contiguous one, filling short gaps and flagging everything else. It never
// drops an observed record and never fails a batch over data quality.
package reconcile

import (
	"fmt"
	"math"

	"github.com/akovalev/minutecast/internal/pkg/config"
	"github.com/akovalev/minutecast/internal/pkg/models"
)

const (
	StrategyForwardFill = "forward_fill"
	StrategyLeaveBlank  = "leave_blank"

	strategyBaseline = "baseline"
)

// Baseline values for minutes before the first observation. A match opens
// at even possession and neutral ratings, so reconstructing the leading
// minutes this way introduces no bias.
const (
	baselinePossession = 50.0
	baselineRating     = 6.0
)

type Reconciler struct {
	tolerance   int
	epsilon     float64
	forwardFill bool
}

func New(cfg config.ReconcileConfig) *Reconciler {
	return &Reconciler{
		tolerance:   cfg.GapTolerance,
		epsilon:     cfg.PossessionEpsilon,
		forwardFill: cfg.FillStrategy != StrategyLeaveBlank,
	}
}

// Run produces exactly one record per minute from 0 through the last
// observed minute, plus a quality report covering what it had to do.
// The input must be minute-sorted, as the normalizer emits it.
func (rc *Reconciler) Run(matchID models.MatchID, in []models.MinuteRecord) ([]models.MinuteRecord, models.QualityReport, error) {
	if len(in) == 0 {
		return nil, models.QualityReport{}, fmt.Errorf("reconcile match %d: no observed minutes", matchID)
	}

	final := in[len(in)-1].Minute
	report := models.QualityReport{
		MatchID:       matchID,
		FinalMinute:   final,
		CoverageRatio: float64(len(in)) / float64(final+1),
	}

	observed := make(map[int]models.MinuteRecord, len(in))
	for _, r := range in {
		observed[r.Minute] = r
		rc.checkPossession(&report, r)
	}

	first := in[0].Minute
	out := make([]models.MinuteRecord, 0, final+1)
	for minute := 0; minute <= final; minute++ {
		if r, ok := observed[minute]; ok {
			out = append(out, r)
			continue
		}
		out = append(out, rc.fillMinute(&report, out, matchID, minute, first, observed))
	}
	return out, report, nil
}

// fillMinute reconstructs one missing minute. out holds all records for
// minutes before it, so out[minute-1] is the previous minute.
func (rc *Reconciler) fillMinute(report *models.QualityReport, out []models.MinuteRecord, matchID models.MatchID, minute, first int, observed map[int]models.MinuteRecord) models.MinuteRecord {
	if minute < first {
		return rc.baselineMinute(report, matchID, minute)
	}

	start, length := gapRun(minute, observed)
	if length > rc.tolerance {
		// Flag once, at the start of the run. Every minute of the run stays
		// a sentinel row; filling its tail would fabricate values out of
		// the sentinel row before it.
		if minute == start {
			report.Anomalies = append(report.Anomalies, models.Anomaly{
				MatchID: matchID,
				Minute:  start,
				Kind:    models.AnomalyGapTooLarge,
				Detail:  fmt.Sprintf("%d consecutive minutes missing, tolerance %d", length, rc.tolerance),
			})
		}
		return models.EmptyMinute(matchID, minute)
	}

	if !rc.forwardFill {
		return models.EmptyMinute(matchID, minute)
	}

	prev := out[minute-1]
	filled := prev
	filled.Minute = minute
	report.Fills = append(report.Fills, models.FillAction{Minute: minute, Strategy: StrategyForwardFill})
	return filled
}

// baselineMinute covers leading minutes before the first observation:
// even possession, neutral ratings, zero counts. Pass success stays missing
// since no neutral value exists for it.
func (rc *Reconciler) baselineMinute(report *models.QualityReport, matchID models.MatchID, minute int) models.MinuteRecord {
	r := models.EmptyMinute(matchID, minute)
	if !rc.forwardFill {
		return r
	}
	r.PossessionHome = baselinePossession
	r.PossessionAway = baselinePossession
	r.RatingHome = baselineRating
	r.RatingAway = baselineRating
	r.ShotsHome, r.ShotsAway = 0, 0
	r.DribblesHome, r.DribblesAway = 0, 0
	r.AerialsHome, r.AerialsAway = 0, 0
	r.TacklesHome, r.TacklesAway = 0, 0
	r.CornersHome, r.CornersAway = 0, 0
	report.Fills = append(report.Fills, models.FillAction{Minute: minute, Strategy: strategyBaseline})
	return r
}

// gapRun locates the run of consecutive missing minutes containing minute
// and returns the run's first minute and its length. The caller guarantees
// observed minutes exist both below and above the run.
func gapRun(minute int, observed map[int]models.MinuteRecord) (int, int) {
	start := minute
	for {
		if _, ok := observed[start-1]; ok {
			break
		}
		start--
	}
	end := minute
	for {
		if _, ok := observed[end+1]; ok {
			break
		}
		end++
	}
	return start, end - start + 1
}

func (rc *Reconciler) checkPossession(report *models.QualityReport, r models.MinuteRecord) {
	if !r.HasPossession() {
		return
	}
	sum := r.PossessionHome + r.PossessionAway
	if math.Abs(sum-100) > rc.epsilon {
		report.Anomalies = append(report.Anomalies, models.Anomaly{
			MatchID: r.MatchID,
			Minute:  r.Minute,
			Kind:    models.AnomalyPossessionSum,
			Detail:  fmt.Sprintf("possession sums to %.1f", sum),
		})
	}
}
