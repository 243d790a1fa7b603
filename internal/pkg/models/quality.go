package models

// AnomalyKind classifies a data-quality finding. Anomalies are annotations:
// they never remove records and never fail the pipeline.
type AnomalyKind string

const (
	// AnomalyGapTooLarge marks a run of missing minutes longer than the fill
	// tolerance. The gap is left unfilled.
	AnomalyGapTooLarge AnomalyKind = "gap_too_large"
	// AnomalyPossessionSum marks a minute whose possession shares deviate
	// from 100 beyond the configured epsilon.
	AnomalyPossessionSum AnomalyKind = "possession_sum"
)

type Anomaly struct {
	MatchID MatchID     `json:"match_id"`
	Minute  int         `json:"minute"`
	Kind    AnomalyKind `json:"kind"`
	Detail  string      `json:"detail"`
}

// FillAction records one reconstructed minute and the strategy used.
type FillAction struct {
	Minute   int    `json:"minute"`
	Strategy string `json:"strategy"` // "forward_fill" or "baseline"
}

// QualityReport summarizes reconciliation findings for one match batch.
// It travels with the batch and is not persisted as primary data.
type QualityReport struct {
	MatchID       MatchID      `json:"match_id"`
	FinalMinute   int          `json:"final_minute"`
	CoverageRatio float64      `json:"coverage_ratio"` // observed minutes / expected minutes, before filling
	Anomalies     []Anomaly    `json:"anomalies"`
	Fills         []FillAction `json:"fills"`
}

// Clean reports whether reconciliation found nothing worth flagging.
func (q QualityReport) Clean() bool {
	return len(q.Anomalies) == 0
}
