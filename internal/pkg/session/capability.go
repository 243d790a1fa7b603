package session

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"
)

// Tier records how heavy the bypass that produced a capability was.
type Tier string

const (
	TierLight   Tier = "light"
	TierBrowser Tier = "browser"
)

// Cookie is the persisted subset of an HTTP cookie.
type Cookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain"`
	Path   string `json:"path"`
}

// Capability proves the holder can fetch pages without being blocked. It is
// owned by the Manager; fetch callers hold it read-only during its validity
// window and must go back to the Manager when it is rejected.
type Capability struct {
	Cookies   []Cookie      `json:"cookies"`
	UserAgent string        `json:"user_agent"`
	Tier      Tier          `json:"tier"`
	IssuedAt  time.Time     `json:"issued_at"`
	TTL       time.Duration `json:"ttl"`
}

// Valid reports whether the capability is still inside its freshness window.
func (c *Capability) Valid(now time.Time) bool {
	if c == nil || c.IssuedAt.IsZero() {
		return false
	}
	return now.Before(c.IssuedAt.Add(c.TTL))
}

// Apply stamps the capability onto an outgoing request.
func (c *Capability) Apply(req *http.Request) {
	if c == nil {
		return
	}
	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/json;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip, br, zstd")
	for _, ck := range c.Cookies {
		req.AddCookie(&http.Cookie{Name: ck.Name, Value: ck.Value})
	}
}

// loadCapability reads a previously persisted capability. A stale or
// unreadable file is not an error for the caller: the manager falls through
// to a fresh acquisition.
func loadCapability(path string) (*Capability, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read capability cache: %w", err)
	}
	var cap Capability
	if err := json.Unmarshal(data, &cap); err != nil {
		return nil, fmt.Errorf("parse capability cache: %w", err)
	}
	return &cap, nil
}

func saveCapability(path string, cap *Capability) error {
	data, err := json.MarshalIndent(cap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal capability: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write capability cache: %w", err)
	}
	return nil
}
