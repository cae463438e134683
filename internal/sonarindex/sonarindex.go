// Package sonarindex provides an HTTP-backed sonar.Index: a pluggable
// lookup against whatever external entity/ES store is configured,
// speaking a small JSON contract over the shared request/response
// transport. Sonar's indices are explicitly external collaborators
// (spec.md §4.3); this is the default adapter the CLI wires when one
// or more index URLs are configured.
package sonarindex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	eveHTTP "github.com/zadorian/submarine/http"
	"github.com/zadorian/submarine/internal/sonar"
)

// HTTPIndex queries baseURL + "?q=<query>&limit=<limit>" and expects a
// JSON array of {domain, url, match_type} objects.
type HTTPIndex struct {
	name           string
	baseURL        string
	timeoutSeconds int
}

// New builds an HTTPIndex identified by name (used in diagnostics)
// against baseURL.
func New(name, baseURL string, timeoutSeconds int) *HTTPIndex {
	return &HTTPIndex{name: name, baseURL: baseURL, timeoutSeconds: timeoutSeconds}
}

func (i *HTTPIndex) Name() string { return i.name }

type hitJSON struct {
	Domain    string `json:"domain"`
	URL       string `json:"url"`
	MatchType string `json:"match_type"`
}

// Lookup satisfies sonar.Index. Any transport or decode failure is
// returned as an error, which Scanner swallows into a diagnostic entry
// rather than failing the whole scan.
func (i *HTTPIndex) Lookup(ctx context.Context, query string, limit int) ([]sonar.Hit, error) {
	target := fmt.Sprintf("%s?q=%s&limit=%d", i.baseURL, url.QueryEscape(query), limit)
	req := eveHTTP.NewRequest("GET", target)
	req.Ctx = ctx
	if i.timeoutSeconds > 0 {
		req.Timeout = i.timeoutSeconds
	}

	resp, err := eveHTTP.Execute(req)
	if err != nil {
		return nil, fmt.Errorf("sonarindex %s: %w", i.name, err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("sonarindex %s: unexpected status %s", i.name, resp.Status)
	}

	var raw []hitJSON
	if err := json.Unmarshal(resp.Body, &raw); err != nil {
		return nil, fmt.Errorf("sonarindex %s: decoding response: %w", i.name, err)
	}

	hits := make([]sonar.Hit, 0, len(raw))
	for _, h := range raw {
		hits = append(hits, sonar.Hit{
			Domain:    h.Domain,
			URL:       h.URL,
			MatchType: sonar.MatchType(h.MatchType),
			Index:     i.name,
		})
	}
	return hits, nil
}
