// Package extractor queries a third-party extraction service that serves
// already-parsed minute records. Last in the chain: it lags the source and
// its coverage is thinner, but it needs no session capability games.
package extractor

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
	fetch.Register("extractor", func(cfg *config.Config, tr *fetch.Transport) fetch.Adapter {
		return &Adapter{baseURL: cfg.Scraper.ExtractorBaseURL, transport: tr}
	})
}

type Adapter struct {
	baseURL   string
	transport *fetch.Transport
}

func (a *Adapter) Tag() models.AdapterTag { return models.AdapterExtractor }

func (a *Adapter) Fetch(ctx context.Context, id models.MatchID, cap *session.Capability) (models.RawPayload, error) {
	if a.baseURL == "" {
		return models.RawPayload{}, fmt.Errorf("%w: extractor base URL not configured", fetch.ErrStructurallyInvalid)
	}
	url := fmt.Sprintf("%s/matches/%d", a.baseURL, id)
	body, err := a.transport.Get(ctx, url, cap)
	if err != nil {
		return models.RawPayload{}, err
	}
	if len(body) == 0 {
		return models.RawPayload{}, fmt.Errorf("%w: empty body", fetch.ErrStructurallyInvalid)
	}

	var probe struct {
		Match   *json.RawMessage  `json:"match"`
		Minutes []json.RawMessage `json:"minutes"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return models.RawPayload{}, fmt.Errorf("%w: %v", fetch.ErrStructurallyInvalid, err)
	}
	if probe.Match == nil {
		return models.RawPayload{}, fmt.Errorf("%w: missing match object", fetch.ErrStructurallyInvalid)
	}
	if len(probe.Minutes) == 0 {
		return models.RawPayload{}, fmt.Errorf("%w: missing minutes array", fetch.ErrStructurallyInvalid)
	}

	return models.RawPayload{MatchID: id, Adapter: a.Tag(), Body: body}, nil
}
