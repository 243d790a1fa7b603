package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/akovalev/minutecast/internal/pkg/config"
)

// ErrChallengeUnsolved means the escalation ladder is exhausted: neither the
// light HTTP bypass nor the browser-driven solve produced a live capability.
var ErrChallengeUnsolved = errors.New("anti-bot challenge unsolved")

// State of the session machine. Transitions:
// Unauthenticated -> LightBypassSolved on a successful HTTP-level probe,
// any state -> BrowserEscalated when a liveness probe fails,
// any state -> Expired when the freshness predicate fails.
type State int

const (
	StateUnauthenticated State = iota
	StateLightBypassSolved
	StateBrowserEscalated
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateLightBypassSolved:
		return "light_bypass_solved"
	case StateBrowserEscalated:
		return "browser_escalated"
	default:
		return "expired"
	}
}

// challengeSignatures mark a JS interstitial in a response body.
var challengeSignatures = []string{
	"Just a moment",
	"cf-chl",
	"challenge-platform",
	"_Incapsula_Resource",
	"Checking your browser",
}

// Solver produces a capability by driving a real browser through the
// challenge. Behind an interface so tests never launch Chrome.
type Solver interface {
	Solve(ctx context.Context) (*Capability, error)
}

// Manager owns the capability lifecycle. Acquire is safe for concurrent use;
// re-acquisition is mutually exclusive, so a worker that hits an expired
// capability blocks on the in-flight acquisition instead of starting a
// duplicate browser launch.
type Manager struct {
	cfg    config.SessionConfig
	ua     string
	client *http.Client
	solver Solver

	mu      sync.Mutex
	state   State
	current *Capability
}

// NewManager builds a manager with the default chromedp solver. A persisted
// capability is reloaded from the cache file; if it is stale or unreadable
// the manager simply starts Unauthenticated.
func NewManager(cfg config.SessionConfig, scraper config.ScraperConfig) *Manager {
	m := &Manager{
		cfg: cfg,
		ua:  scraper.UserAgent,
		client: &http.Client{
			Timeout: scraper.Timeout,
		},
	}
	m.solver = &browserSolver{
		probeURL: cfg.ProbeURL,
		marker:   cfg.Marker,
		ua:       scraper.UserAgent,
		timeout:  cfg.BrowserTimeout,
	}

	if cfg.CacheFile != "" {
		if cap, err := loadCapability(cfg.CacheFile); err == nil && cap.Valid(time.Now()) {
			m.current = cap
			m.state = stateForTier(cap.Tier)
			slog.Info("Reloaded persisted capability", "tier", cap.Tier, "issued_at", cap.IssuedAt)
		} else if err == nil {
			slog.Info("Persisted capability expired, starting unauthenticated")
		}
	}
	return m
}

func stateForTier(t Tier) State {
	if t == TierBrowser {
		return StateBrowserEscalated
	}
	return StateLightBypassSolved
}

// SetSolver replaces the browser solver. Used by tests.
func (m *Manager) SetSolver(s Solver) { m.solver = s }

// State returns the current machine state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Acquire returns a live capability, escalating as needed. Concurrent
// callers share one acquisition.
func (m *Manager) Acquire(ctx context.Context) (*Capability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.Valid(time.Now()) {
		return m.current, nil
	}
	if m.current != nil {
		m.state = StateExpired
		slog.Info("Capability expired, re-acquiring")
		m.current = nil
	}
	return m.acquireLocked(ctx)
}

// Invalidate discards a capability that was rejected mid-fetch (403 or
// challenge body). The next Acquire walks the ladder from the bottom again:
// the light bypass often recovers on its own, and the browser stays the
// expensive last resort.
func (m *Manager) Invalidate(cap *Capability) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == cap {
		m.current = nil
		m.state = StateExpired
		slog.Warn("Capability invalidated on rejection")
	}
}

// Refresh invalidates cap and acquires a replacement in one step.
func (m *Manager) Refresh(ctx context.Context, cap *Capability) (*Capability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != cap {
		// Someone else already refreshed; reuse their result if live.
		if m.current.Valid(time.Now()) {
			return m.current, nil
		}
	}
	m.current = nil
	return m.acquireLocked(ctx)
}

// acquireLocked runs the escalation ladder. Caller holds m.mu.
func (m *Manager) acquireLocked(ctx context.Context) (*Capability, error) {
	// Rung 1: lightweight HTTP bypass.
	cap := &Capability{
		UserAgent: m.ua,
		Tier:      TierLight,
		IssuedAt:  time.Now(),
		TTL:       m.cfg.CapabilityTTL,
	}
	if err := m.probe(ctx, cap); err == nil {
		m.install(cap, StateLightBypassSolved)
		return cap, nil
	} else {
		slog.Info("Light bypass failed, escalating to browser", "error", err)
	}

	// Rung 2: browser-driven solve. The solver serializes Chrome itself.
	solved, err := m.solver.Solve(ctx)
	if err != nil {
		m.state = StateUnauthenticated
		return nil, fmt.Errorf("%w: browser escalation failed: %w", ErrChallengeUnsolved, err)
	}
	solved.Tier = TierBrowser
	solved.IssuedAt = time.Now()
	solved.TTL = m.cfg.CapabilityTTL
	if solved.UserAgent == "" {
		solved.UserAgent = m.ua
	}

	// The exported cookies must actually satisfy a plain HTTP probe before
	// workers start trusting them.
	if err := m.probe(ctx, solved); err != nil {
		m.state = StateUnauthenticated
		return nil, fmt.Errorf("%w: browser capability failed liveness probe: %w", ErrChallengeUnsolved, err)
	}

	m.install(solved, StateBrowserEscalated)
	return solved, nil
}

func (m *Manager) install(cap *Capability, s State) {
	m.current = cap
	m.state = s
	slog.Info("Capability acquired", "tier", cap.Tier, "state", s.String())
	if m.cfg.CacheFile != "" {
		if err := saveCapability(m.cfg.CacheFile, cap); err != nil {
			slog.Warn("Failed to persist capability", "error", err)
		}
	}
}

// probe performs the liveness check: 200 plus the expected marker, with no
// challenge signature in the body.
func (m *Manager) probe(ctx context.Context, cap *Capability) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.cfg.ProbeURL, nil)
	if err != nil {
		return fmt.Errorf("create probe request: %w", err)
	}
	cap.Apply(req)

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("probe request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("probe rejected: status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("probe unexpected status %d", resp.StatusCode)
	}

	body, err := DecodeBody(resp)
	if err != nil {
		return err
	}
	if sig := ChallengeSignature(body); sig != "" {
		return fmt.Errorf("probe hit challenge: %q", sig)
	}
	if !strings.Contains(string(body), m.cfg.Marker) {
		return fmt.Errorf("probe body missing marker %q", m.cfg.Marker)
	}
	return nil
}

// ChallengeSignature returns the matched anti-bot signature, or "" when the
// body looks like a normal page.
func ChallengeSignature(body []byte) string {
	s := string(body)
	for _, sig := range challengeSignatures {
		if strings.Contains(s, sig) {
			return sig
		}
	}
	return ""
}

// IsChallenge reports whether a response status/body pair means the
// capability was rejected rather than the content being absent.
func IsChallenge(status int, body []byte) bool {
	if status == http.StatusForbidden {
		return true
	}
	return ChallengeSignature(body) != ""
}
