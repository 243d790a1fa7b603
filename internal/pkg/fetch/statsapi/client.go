// Package statsapi fetches the structured statistics endpoint: one JSON
// object per match with time-indexed [minute, value] pairs for each stat.
// Highest-priority adapter; cheapest when the endpoint is up.
package statsapi

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/akovalev/minutecast/internal/pkg/config"
	"github.com/akovalev/minutecast/internal/pkg/fetch"
	"github.com/akovalev/minutecast/internal/pkg/models"
	"github.com/akovalev/minutecast/internal/pkg/session"
)

func init() {
	fetch.Register("statsapi", func(cfg *config.Config, tr *fetch.Transport) fetch.Adapter {
		return &Adapter{baseURL: cfg.Scraper.BaseURL, transport: tr}
	})
}

type Adapter struct {
	baseURL   string
	transport *fetch.Transport
}

func (a *Adapter) Tag() models.AdapterTag { return models.AdapterStatsAPI }

func (a *Adapter) Fetch(ctx context.Context, id models.MatchID, cap *session.Capability) (models.RawPayload, error) {
	url := fmt.Sprintf("%s/api/match/%d/statistics", a.baseURL, id)
	body, err := a.transport.Get(ctx, url, cap)
	if err != nil {
		return models.RawPayload{}, err
	}
	if len(body) == 0 {
		return models.RawPayload{}, fmt.Errorf("%w: empty body", fetch.ErrStructurallyInvalid)
	}

	// Structural validation only: the detailed mapping belongs to the
	// normalizer.
	var probe struct {
		MatchID *int64                     `json:"matchId"`
		Stats   map[string]json.RawMessage `json:"stats"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return models.RawPayload{}, fmt.Errorf("%w: %v", fetch.ErrStructurallyInvalid, err)
	}
	if probe.MatchID == nil {
		return models.RawPayload{}, fmt.Errorf("%w: missing matchId", fetch.ErrStructurallyInvalid)
	}
	if len(probe.Stats) == 0 {
		return models.RawPayload{}, fmt.Errorf("%w: missing stats", fetch.ErrStructurallyInvalid)
	}

	return models.RawPayload{MatchID: id, Adapter: a.Tag(), Body: body}, nil
}
