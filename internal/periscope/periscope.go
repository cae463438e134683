// Package periscope implements the Common Crawl Index (CDX) client:
// resolving a domain or URL pattern to WARC byte-range records with
// HTTP status/MIME/date/language filters, built on the shared
// http.Request/Execute transport (http/client.go) with a per-client
// rate.Limiter wired into its Limiter field for Common Crawl's
// fair-use throttle.
package periscope

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	eveHTTP "github.com/zadorian/submarine/http"
	"github.com/zadorian/submarine/internal/model"
)

// ccFairUseRate caps outbound CDX queries at the rate Common Crawl's
// own fair-use guidance suggests for unauthenticated clients.
const ccFairUseRate = 3 // requests per second

// CCIndexError is returned when an archive's CDX endpoint fails after
// retries. Callers (Dive Planner, Chain Executor) treat this as "no
// records for that archive" and continue — it is never fatal to the
// overall plan, per spec.md §4.2.
type CCIndexError struct {
	Archive    string
	StatusCode int
	Err        error
}

func (e *CCIndexError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("cc index %q: HTTP %d: %v", e.Archive, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("cc index %q: %v", e.Archive, e.Err)
}

func (e *CCIndexError) Unwrap() error { return e.Err }

// mimeShorthand expands the filter shorthands spec.md §4.2 names.
var mimeShorthand = map[string]string{
	"pdf":  "application/pdf",
	"html": "text/html",
	"htm":  "text/html",
}

// languageCodes maps common ISO 639-1 codes to the ISO 639-2/B codes
// the CDX server's "languages" filter expects.
var languageCodes = map[string]string{
	"en": "eng",
	"de": "deu",
	"fr": "fra",
	"es": "spa",
	"it": "ita",
	"pt": "por",
	"nl": "nld",
	"ru": "rus",
	"zh": "zho",
	"ja": "jpn",
	"ar": "ara",
	"pl": "pol",
}

// Filters narrows a lookup_domain or search call.
type Filters struct {
	Limit          int
	FilterStatus   int    // 0 means unset
	FilterMIME     string // shorthand or full content type; "" means unset
	FilterLanguage string // 2- or 3-letter code; "" means unset
	FromTS         string // YYYYMMDDHHMMSS | YYYY-MM-DD | YYYYMMDD
	ToTS           string
	URLContains    string
}

// RetryConfig mirrors the teacher's Request.RetryCount/RetryBackoff/
// RetryInterval fields (http/client.go).
type RetryConfig struct {
	RetryCount    int
	RetryBackoff  string // "linear" | "exponential"
	RetryInterval time.Duration
}

// DefaultRetryConfig matches the teacher's implicit zero-attempt-extra
// default, extended with two retries and a 500ms exponential backoff —
// CDX servers are known to 503 under load.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{RetryCount: 2, RetryBackoff: "exponential", RetryInterval: 500 * time.Millisecond}
}

// Client queries one or more Common Crawl CDX archive endpoints.
type Client struct {
	baseURLFmt string // e.g. "https://index.commoncrawl.org/%s-index"
	retry      RetryConfig
	limiter    *rate.Limiter
}

// New builds a Client against the standard Common Crawl CDX host.
func New(retry RetryConfig) *Client {
	return &Client{
		baseURLFmt: "https://index.commoncrawl.org/%s-index",
		retry:      retry,
		limiter:    rate.NewLimiter(rate.Limit(ccFairUseRate), ccFairUseRate),
	}
}

// LookupDomain resolves all WARC records for domain (queried as
// "*.domain" against the CDX server) within the given archive index
// (e.g. "CC-MAIN-2024-10"), applying filters.
func (c *Client) LookupDomain(ctx context.Context, archive, domain string, f Filters) ([]model.CCRecord, error) {
	return c.query(ctx, archive, "*."+domain+"/*", f)
}

// Search resolves WARC records matching a literal URL pattern within
// the given archive.
func (c *Client) Search(ctx context.Context, archive, urlPattern string, f Filters) ([]model.CCRecord, error) {
	return c.query(ctx, archive, urlPattern, f)
}

func (c *Client) query(ctx context.Context, archive, pattern string, f Filters) ([]model.CCRecord, error) {
	endpoint := fmt.Sprintf(c.baseURLFmt, archive)
	q := url.Values{}
	q.Set("url", pattern)
	q.Set("output", "json")
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.FilterStatus != 0 {
		q.Set("filter", "status:"+strconv.Itoa(f.FilterStatus))
	}
	if f.FilterMIME != "" {
		q.Add("filter", "mime:"+resolveMIME(f.FilterMIME))
	}
	if f.FromTS != "" {
		q.Set("from", normalizeTimestamp(f.FromTS, false))
	}
	if f.ToTS != "" {
		q.Set("to", normalizeTimestamp(f.ToTS, true))
	}
	if f.FilterLanguage != "" {
		q.Set("languages", resolveLanguage(f.FilterLanguage))
	}

	body, statusCode, err := c.get(ctx, endpoint+"?"+q.Encode())
	if err != nil {
		return nil, &CCIndexError{Archive: archive, StatusCode: statusCode, Err: err}
	}

	records, err := parseCDXLines(body)
	if err != nil {
		return nil, &CCIndexError{Archive: archive, Err: fmt.Errorf("parsing CDX response: %w", err)}
	}

	if f.URLContains != "" {
		records = filterByURLContains(records, f.URLContains)
	}

	return records, nil
}

// get performs the CDX request against the shared transport, which
// applies c.limiter's fair-use throttle and the retry/backoff policy
// on c.retry before every attempt; never retries a 4xx client error.
func (c *Client) get(ctx context.Context, fullURL string) ([]byte, int, error) {
	req := eveHTTP.NewRequest("GET", fullURL)
	req.Ctx = ctx
	req.Timeout = 30
	req.Limiter = c.limiter
	req.RetryCount = c.retry.RetryCount
	req.RetryBackoff = c.retry.RetryBackoff
	req.RetryInterval = c.retry.RetryInterval

	resp, err := eveHTTP.Execute(req)
	if resp == nil {
		return nil, 0, err
	}
	if err != nil {
		return resp.Body, resp.StatusCode, err
	}
	return resp.Body, resp.StatusCode, nil
}

// resolveMIME expands "pdf"/"html"/"htm" shorthand, passing any other
// value through unchanged.
func resolveMIME(shorthand string) string {
	if full, ok := mimeShorthand[strings.ToLower(shorthand)]; ok {
		return full
	}
	return shorthand
}

// resolveLanguage expands a 2-letter code to its 3-letter equivalent,
// passing 3-letter or unrecognized codes through unchanged.
func resolveLanguage(code string) string {
	if full, ok := languageCodes[strings.ToLower(code)]; ok {
		return full
	}
	return code
}

// normalizeTimestamp accepts YYYYMMDDHHMMSS, YYYY-MM-DD, and YYYYMMDD,
// padding a date-only value to end-of-day (235959) or start-of-day
// (000000) depending on end.
func normalizeTimestamp(ts string, end bool) string {
	digits := strings.ReplaceAll(ts, "-", "")
	switch len(digits) {
	case 14:
		return digits
	case 8:
		if end {
			return digits + "235959"
		}
		return digits + "000000"
	default:
		return digits
	}
}

// cdxRecord is the wire shape of one CDX JSON line.
type cdxRecord struct {
	URLKey    string `json:"urlkey"`
	Timestamp string `json:"timestamp"`
	URL       string `json:"url"`
	MIME      string `json:"mime"`
	Status    string `json:"status"`
	Digest    string `json:"digest"`
	Length    string `json:"length"`
	Offset    string `json:"offset"`
	Filename  string `json:"filename"`
	Languages string `json:"languages,omitempty"`
}

// parseCDXLines decodes the CDX server's newline-delimited JSON
// response (one record object per line) into CCRecords.
func parseCDXLines(body []byte) ([]model.CCRecord, error) {
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	records := make([]model.CCRecord, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var rec cdxRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, fmt.Errorf("decoding CDX line: %w", err)
		}
		status, _ := strconv.Atoi(rec.Status)
		offset, _ := strconv.ParseInt(rec.Offset, 10, 64)
		length, _ := strconv.ParseInt(rec.Length, 10, 64)
		records = append(records, model.CCRecord{
			URL:       rec.URL,
			Filename:  rec.Filename,
			Offset:    offset,
			Length:    length,
			Status:    status,
			MIME:      rec.MIME,
			Timestamp: rec.Timestamp,
			Digest:    rec.Digest,
		})
	}
	return records, nil
}

func filterByURLContains(records []model.CCRecord, substr string) []model.CCRecord {
	out := make([]model.CCRecord, 0, len(records))
	for _, r := range records {
		if strings.Contains(r.URL, substr) {
			out = append(out, r)
		}
	}
	return out
}
