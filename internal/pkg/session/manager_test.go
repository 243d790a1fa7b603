package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/akovalev/minutecast/internal/pkg/config"
)

type fakeSolver struct {
	calls int32
	cap   *Capability
	err   error
}

func (f *fakeSolver) Solve(context.Context) (*Capability, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	c := *f.cap
	return &c, nil
}

func newTestManager(t *testing.T, probeURL string) (*Manager, *fakeSolver) {
	t.Helper()
	cfg := config.SessionConfig{
		ProbeURL:      probeURL,
		Marker:        "layout-wrapper",
		CapabilityTTL: time.Minute,
	}
	scraper := config.ScraperConfig{UserAgent: "test-agent", Timeout: 5 * time.Second}
	m := NewManager(cfg, scraper)
	solver := &fakeSolver{cap: &Capability{
		Cookies:   []Cookie{{Name: "cf_clearance", Value: "solved"}},
		UserAgent: "test-agent",
	}}
	m.SetSolver(solver)
	return m, solver
}

func TestAcquireLightBypassNoEscalation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<div id="layout-wrapper">ok</div>`))
	}))
	defer srv.Close()

	m, solver := newTestManager(t, srv.URL)
	cap, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if cap.Tier != TierLight {
		t.Errorf("tier = %v, want light", cap.Tier)
	}
	if m.State() != StateLightBypassSolved {
		t.Errorf("state = %v, want light_bypass_solved", m.State())
	}
	if solver.calls != 0 {
		t.Errorf("browser launched %d times despite healthy probe", solver.calls)
	}
}

func TestAcquireEscalatesOnRejectedProbe(t *testing.T) {
	// First probe (no clearance cookie) is rejected; once the solver's
	// cookie is present the probe passes.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("cf_clearance"); err != nil {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write([]byte(`<div id="layout-wrapper">ok</div>`))
	}))
	defer srv.Close()

	m, solver := newTestManager(t, srv.URL)
	cap, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if cap.Tier != TierBrowser {
		t.Errorf("tier = %v, want browser", cap.Tier)
	}
	if m.State() != StateBrowserEscalated {
		t.Errorf("state = %v, want browser_escalated", m.State())
	}
	if solver.calls != 1 {
		t.Errorf("solver called %d times, want 1", solver.calls)
	}
}

func TestAcquireChallengeUnsolved(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	m, solver := newTestManager(t, srv.URL)
	solver.err = errors.New("chrome crashed")

	_, err := m.Acquire(context.Background())
	if !errors.Is(err, ErrChallengeUnsolved) {
		t.Errorf("Acquire error = %v, want ErrChallengeUnsolved", err)
	}
	if m.State() != StateUnauthenticated {
		t.Errorf("state = %v, want unauthenticated", m.State())
	}
}

func TestAcquireDetectsChallengeBody(t *testing.T) {
	// 200 response that is actually a JS interstitial must escalate.
	hits := int32(0)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.Write([]byte(`<html>Just a moment...</html>`))
			return
		}
		w.Write([]byte(`<div id="layout-wrapper">ok</div>`))
	}))
	defer srv.Close()

	m, solver := newTestManager(t, srv.URL)
	cap, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if solver.calls != 1 {
		t.Errorf("solver called %d times, want 1", solver.calls)
	}
	if cap.Tier != TierBrowser {
		t.Errorf("tier = %v, want browser", cap.Tier)
	}
}

func TestAcquireReusesValidCapability(t *testing.T) {
	probes := int32(0)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&probes, 1)
		w.Write([]byte(`layout-wrapper`))
	}))
	defer srv.Close()

	m, _ := newTestManager(t, srv.URL)
	first, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	second, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("second Acquire failed: %v", err)
	}
	if first != second {
		t.Error("valid capability was not reused")
	}
	if probes != 1 {
		t.Errorf("probe hit %d times, want 1", probes)
	}
}

func TestInvalidateForcesReacquisition(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`layout-wrapper`))
	}))
	defer srv.Close()

	m, _ := newTestManager(t, srv.URL)
	first, _ := m.Acquire(context.Background())
	m.Invalidate(first)
	if m.State() != StateExpired {
		t.Errorf("state = %v, want expired", m.State())
	}
	second, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("re-Acquire failed: %v", err)
	}
	if first == second {
		t.Error("invalidated capability was reused")
	}
}

func TestCapabilityPersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capability.json")
	cap := &Capability{
		Cookies:   []Cookie{{Name: "session", Value: "abc"}},
		UserAgent: "test-agent",
		Tier:      TierBrowser,
		IssuedAt:  time.Now(),
		TTL:       time.Hour,
	}
	if err := saveCapability(path, cap); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	cfg := config.SessionConfig{
		ProbeURL:      "http://unused.invalid",
		Marker:        "x",
		CapabilityTTL: time.Hour,
		CacheFile:     path,
	}
	m := NewManager(cfg, config.ScraperConfig{UserAgent: "test-agent", Timeout: time.Second})
	if m.State() != StateBrowserEscalated {
		t.Errorf("state after reload = %v, want browser_escalated", m.State())
	}
	got, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire after reload failed: %v", err)
	}
	if len(got.Cookies) != 1 || got.Cookies[0].Value != "abc" {
		t.Errorf("reloaded cookies = %+v", got.Cookies)
	}
}

func TestExpiredReloadFallsThrough(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capability.json")
	stale := &Capability{
		UserAgent: "test-agent",
		Tier:      TierLight,
		IssuedAt:  time.Now().Add(-2 * time.Hour),
		TTL:       time.Hour,
	}
	if err := saveCapability(path, stale); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	cfg := config.SessionConfig{ProbeURL: "http://unused.invalid", Marker: "x", CapabilityTTL: time.Hour, CacheFile: path}
	m := NewManager(cfg, config.ScraperConfig{UserAgent: "test-agent", Timeout: time.Second})
	if m.State() != StateUnauthenticated {
		t.Errorf("state = %v, want unauthenticated", m.State())
	}
}

func TestIsChallenge(t *testing.T) {
	tests := []struct {
		status int
		body   string
		want   bool
	}{
		{http.StatusForbidden, "", true},
		{http.StatusOK, "Just a moment...", true},
		{http.StatusOK, "cf-chl-widget", true},
		{http.StatusOK, `<div id="layout-wrapper">`, false},
	}
	for _, tt := range tests {
		if got := IsChallenge(tt.status, []byte(tt.body)); got != tt.want {
			t.Errorf("IsChallenge(%d, %q) = %v, want %v", tt.status, tt.body, got, tt.want)
		}
	}
}
