package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/akovalev/minutecast/internal/pkg/config"
	"github.com/akovalev/minutecast/internal/pkg/models"
	"github.com/akovalev/minutecast/internal/pkg/retry"
	"github.com/akovalev/minutecast/internal/pkg/session"
)

// ErrSourceUnavailable means every adapter in the chain failed structurally.
var ErrSourceUnavailable = errors.New("all source adapters failed")

// ErrCapabilityRejected marks a 403/challenge response. The fetcher surfaces
// it to the session manager instead of treating it as an adapter failure.
var ErrCapabilityRejected = errors.New("capability rejected by source")

// ErrStructurallyInvalid marks an adapter-level structural failure: empty
// body, unparseable structure, or missing required top-level keys. It
// triggers fallback to the next adapter, never a retry.
var ErrStructurallyInvalid = errors.New("payload structurally invalid")

// StatusError carries an unexpected HTTP status through the retry classifier.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.Code)
}

// Adapter fetches and structurally validates one payload shape for a match.
type Adapter interface {
	Tag() models.AdapterTag
	Fetch(ctx context.Context, id models.MatchID, cap *session.Capability) (models.RawPayload, error)
}

// Sessions is the slice of the session manager the fetcher needs.
type Sessions interface {
	Acquire(ctx context.Context) (*session.Capability, error)
	Refresh(ctx context.Context, cap *session.Capability) (*session.Capability, error)
}

// Fetcher walks the adapter chain in priority order; the first adapter whose
// payload is structurally valid wins and the chain stops.
type Fetcher struct {
	adapters []Adapter
	sessions Sessions
	policy   retry.Policy
}

func NewFetcher(adapters []Adapter, sessions Sessions, policy retry.Policy) *Fetcher {
	return &Fetcher{adapters: adapters, sessions: sessions, policy: policy}
}

// Fetch returns the first structurally valid payload for the match, tagged
// with the adapter that produced it.
func (f *Fetcher) Fetch(ctx context.Context, id models.MatchID) (models.RawPayload, error) {
	var lastErr error

	for _, a := range f.adapters {
		payload, err := f.tryAdapter(ctx, a, id)
		if err == nil {
			slog.Debug("Adapter succeeded", "adapter", a.Tag(), "match_id", id)
			return payload, nil
		}
		lastErr = err
		slog.Info("Adapter failed, falling back", "adapter", a.Tag(), "match_id", id, "error", err)
	}

	if lastErr != nil {
		return models.RawPayload{}, fmt.Errorf("%w: match %d: %w", ErrSourceUnavailable, id, lastErr)
	}
	return models.RawPayload{}, fmt.Errorf("%w: match %d: no adapters configured", ErrSourceUnavailable, id)
}

// tryAdapter runs one adapter under the retry policy. A capability rejection
// is recovered once via session refresh; a second rejection falls through to
// the next adapter.
func (f *Fetcher) tryAdapter(ctx context.Context, a Adapter, id models.MatchID) (models.RawPayload, error) {
	cap, err := f.sessions.Acquire(ctx)
	if err != nil {
		return models.RawPayload{}, err
	}

	payload, err := f.fetchWithRetry(ctx, a, id, cap)
	if errors.Is(err, ErrCapabilityRejected) {
		slog.Warn("Capability rejected mid-fetch, refreshing session", "adapter", a.Tag(), "match_id", id)
		cap, err = f.sessions.Refresh(ctx, cap)
		if err != nil {
			return models.RawPayload{}, err
		}
		payload, err = f.fetchWithRetry(ctx, a, id, cap)
	}
	return payload, err
}

func (f *Fetcher) fetchWithRetry(ctx context.Context, a Adapter, id models.MatchID, cap *session.Capability) (models.RawPayload, error) {
	var payload models.RawPayload
	err := retry.Do(ctx, f.policy, func(ctx context.Context) (retry.Class, error) {
		p, err := a.Fetch(ctx, id, cap)
		if err != nil {
			return classify(err), err
		}
		payload = p
		return retry.ClassNone, nil
	})
	return payload, err
}

func classify(err error) retry.Class {
	switch {
	case errors.Is(err, ErrCapabilityRejected):
		return retry.ClassAuthRejected
	case errors.Is(err, ErrStructurallyInvalid):
		return retry.ClassMalformed
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return retry.Classify(statusErr.Code, nil)
	}
	return retry.Classify(0, err)
}

// Transport is the shared HTTP layer under every adapter: one client, one
// global request-rate ceiling, capability stamping and body decoding.
type Transport struct {
	client  *http.Client
	limiter *rate.Limiter
	headers map[string]string
}

func NewTransport(cfg config.ScraperConfig) *Transport {
	return &Transport{
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		headers: cfg.Headers,
	}
}

// Get performs one rate-limited request under the capability. 403s and
// challenge interstitials come back as ErrCapabilityRejected, other
// non-200s as StatusError.
func (t *Transport) Get(ctx context.Context, url string, cap *session.Capability) ([]byte, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	cap.Apply(req)
	for key, value := range t.headers {
		req.Header.Set(key, value)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: status 403 for %s", ErrCapabilityRejected, url)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode}
	}

	body, err := session.DecodeBody(resp)
	if err != nil {
		return nil, err
	}
	if sig := session.ChallengeSignature(body); sig != "" {
		return nil, fmt.Errorf("%w: challenge %q for %s", ErrCapabilityRejected, sig, url)
	}
	return body, nil
}
