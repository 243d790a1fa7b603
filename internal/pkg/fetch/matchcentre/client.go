// Package matchcentre extracts the script-level data object embedded in the
// match live page. This is the shape the source always serves to browsers,
// which makes it the reliable fallback when the statistics endpoint is dark.
package matchcentre

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/akovalev/minutecast/internal/pkg/config"
	"github.com/akovalev/minutecast/internal/pkg/fetch"
	"github.com/akovalev/minutecast/internal/pkg/models"
	"github.com/akovalev/minutecast/internal/pkg/session"
)

func init() {
	fetch.Register("matchcentre", func(cfg *config.Config, tr *fetch.Transport) fetch.Adapter {
		return &Adapter{baseURL: cfg.Scraper.BaseURL, transport: tr}
	})
}

const (
	argsMarker   = `require.config.params["args"]`
	directMarker = `var matchCentreData`
)

type Adapter struct {
	baseURL   string
	transport *fetch.Transport
}

func (a *Adapter) Tag() models.AdapterTag { return models.AdapterMatchCentre }

func (a *Adapter) Fetch(ctx context.Context, id models.MatchID, cap *session.Capability) (models.RawPayload, error) {
	url := fmt.Sprintf("%s/matches/%d/Live", a.baseURL, id)
	body, err := a.transport.Get(ctx, url, cap)
	if err != nil {
		return models.RawPayload{}, err
	}
	if len(body) == 0 {
		return models.RawPayload{}, fmt.Errorf("%w: empty body", fetch.ErrStructurallyInvalid)
	}

	data, err := ExtractMatchCentreData(body)
	if err != nil {
		return models.RawPayload{}, fmt.Errorf("%w: %v", fetch.ErrStructurallyInvalid, err)
	}
	return models.RawPayload{MatchID: id, Adapter: a.Tag(), Body: data}, nil
}

// ExtractMatchCentreData locates the embedded script object in the page and
// returns the matchCentreData subtree as JSON bytes.
func ExtractMatchCentreData(page []byte) ([]byte, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var blob string
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		for _, marker := range []string{argsMarker, directMarker} {
			if idx := strings.Index(text, marker); idx >= 0 {
				if obj := braceSpan(text[idx:]); obj != "" {
					blob = obj
					return false
				}
			}
		}
		return true
	})
	if blob == "" {
		return nil, fmt.Errorf("no matchCentreData script block found")
	}

	var parsed map[string]json.RawMessage
	if err := json.Unmarshal([]byte(jsObjectToJSON(blob)), &parsed); err != nil {
		return nil, fmt.Errorf("parse script object: %w", err)
	}

	if data, ok := parsed["matchCentreData"]; ok {
		return data, nil
	}
	// Direct assignment: the whole object is the match centre data.
	if _, ok := parsed["matchId"]; ok {
		return json.Marshal(parsed)
	}
	return nil, fmt.Errorf("matchCentreData key absent from script object")
}

// braceSpan returns the first balanced {...} object in s, honoring quoted
// strings and escapes so braces inside string values do not unbalance it.
func braceSpan(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	var quote byte
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case ch == '\\':
			escaped = true
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"':
			quote = ch
		case ch == '{':
			depth++
		case ch == '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
