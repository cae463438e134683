// Package archiveproc implements the Parallel Archive Processor: bulk
// traversal of an archive's WAT index under semaphore-bounded
// concurrency, yielding PageRecords filtered by domain set or
// Schema.org @type. Grounded on network/downloader.go's
// download-and-decompress shape and worker/pool.go's bounded-fan-out
// idiom, extended to the two-stage download/process semaphore pair
// spec.md §4.6 calls for.
package archiveproc

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/zadorian/submarine/internal/eventbus"
	"github.com/zadorian/submarine/internal/model"
)

// DefaultMaxDownloads / DefaultProcessConcurrency are spec.md §4.6's
// documented defaults; AggressiveMaxDownloads / AggressiveProcessConcurrency are
// the "aggressive" tier.
const (
	DefaultMaxDownloads      = 20
	DefaultProcessConcurrency = 10
	AggressiveMaxDownloads    = 50
	AggressiveProcessConcurrency = 32
	// MaxAnchorTexts bounds the anchor-text list per record (spec.md
	// §4.6: "up to 200 link texts").
	MaxAnchorTexts = 200
)

// Config bounds the two semaphores the processor gates WAT downloads
// and parses through.
type Config struct {
	MaxDownloads       int
	ProcessConcurrency int
}

// DefaultConfig returns the spec-documented default tier.
func DefaultConfig() Config {
	return Config{MaxDownloads: DefaultMaxDownloads, ProcessConcurrency: DefaultProcessConcurrency}
}

// AggressiveConfig returns the spec-documented aggressive tier.
func AggressiveConfig() Config {
	return Config{MaxDownloads: AggressiveMaxDownloads, ProcessConcurrency: AggressiveProcessConcurrency}
}

// Stats are resettable running counters exposed by Processor.Stats.
type Stats struct {
	WATFilesFetched int64
	RecordsParsed   int64
	RecordsEmitted  int64
	Errors          int64
}

// Processor fetches an archive's WAT index and streams filtered
// PageRecords from it.
type Processor struct {
	httpClient *http.Client
	watIndexFmt string // e.g. "https://data.commoncrawl.org/crawl-data/%s/wat.paths.gz"
	dataBaseURL string // e.g. "https://data.commoncrawl.org/"
	cfg         Config
	bus         *eventbus.Bus
	log         *logrus.Entry

	watFetched int64
	recParsed  int64
	recEmitted int64
	errCount   int64
}

// New builds a Processor against the standard Common Crawl data host.
func New(cfg Config, bus *eventbus.Bus, log *logrus.Entry) *Processor {
	return &Processor{
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		watIndexFmt: "https://data.commoncrawl.org/crawl-data/%s/wat.paths.gz",
		dataBaseURL: "https://data.commoncrawl.org/",
		cfg:         cfg,
		bus:         bus,
		log:         log,
	}
}

// Stats returns a snapshot of the running counters.
func (p *Processor) Stats() Stats {
	return Stats{
		WATFilesFetched: atomic.LoadInt64(&p.watFetched),
		RecordsParsed:   atomic.LoadInt64(&p.recParsed),
		RecordsEmitted:  atomic.LoadInt64(&p.recEmitted),
		Errors:          atomic.LoadInt64(&p.errCount),
	}
}

// ResetStats zeroes every counter.
func (p *Processor) ResetStats() {
	atomic.StoreInt64(&p.watFetched, 0)
	atomic.StoreInt64(&p.recParsed, 0)
	atomic.StoreInt64(&p.recEmitted, 0)
	atomic.StoreInt64(&p.errCount, 0)
}

// FetchDomains implements spec.md §4.6's fetch_domains: fetch the
// archive's WAT index, process it in download/process-semaphore
// batches, and emit only records whose normalized domain is in
// targetsSet (or every record if targetsSet is empty). maxWATFiles
// caps how many WAT files are consulted; 0 means unbounded.
func (p *Processor) FetchDomains(ctx context.Context, archive string, targetsSet map[string]struct{}, maxWATFiles int) (<-chan model.PageRecord, error) {
	return p.run(ctx, archive, maxWATFiles, func(recs []model.PageRecord) []model.PageRecord {
		if len(targetsSet) == 0 {
			return recs
		}
		out := recs[:0]
		for _, r := range recs {
			if _, ok := targetsSet[r.Domain]; ok {
				out = append(out, r)
			}
		}
		return out
	})
}

// FetchBySchema implements the fetch_by_schema variant: yields only
// records containing at least one JSON-LD object whose lower-cased
// @type matches schemaType, where every entry in filters matches as a
// case-insensitive substring against the corresponding schema field
// (including one level of nested object lookup).
func (p *Processor) FetchBySchema(ctx context.Context, archive, schemaType string, filters map[string]string, maxWATFiles int) (<-chan model.PageRecord, error) {
	schemaType = strings.ToLower(schemaType)
	return p.run(ctx, archive, maxWATFiles, func(recs []model.PageRecord) []model.PageRecord {
		out := recs[:0]
		for _, r := range recs {
			if recordMatchesSchema(r, schemaType, filters) {
				out = append(out, r)
			}
		}
		return out
	})
}

// run drives the shared fetch-index / batch-download / batch-parse /
// filter pipeline for both public entry points.
func (p *Processor) run(ctx context.Context, archive string, maxWATFiles int, filter func([]model.PageRecord) []model.PageRecord) (<-chan model.PageRecord, error) {
	watPaths, err := p.fetchWATIndex(ctx, archive)
	if err != nil {
		return nil, fmt.Errorf("archiveproc: fetching WAT index: %w", err)
	}
	if maxWATFiles > 0 && len(watPaths) > maxWATFiles {
		watPaths = watPaths[:maxWATFiles]
	}

	out := make(chan model.PageRecord)
	p.bus.Emit("submarine:extract", map[string]interface{}{"stage": "start", "wat_files": len(watPaths)})

	go func() {
		defer close(out)
		defer p.bus.Emit("submarine:extract", map[string]interface{}{"stage": "complete"})

		for batchStart := 0; batchStart < len(watPaths); batchStart += p.cfg.MaxDownloads {
			end := batchStart + p.cfg.MaxDownloads
			if end > len(watPaths) {
				end = len(watPaths)
			}
			batch := watPaths[batchStart:end]
			p.processBatch(ctx, batch, out, filter)

			select {
			case <-ctx.Done():
				return
			default:
			}
		}
	}()

	return out, nil
}

func (p *Processor) processBatch(ctx context.Context, batch []string, out chan<- model.PageRecord, filter func([]model.PageRecord) []model.PageRecord) {
	downloadSem := semaphore.NewWeighted(int64(p.cfg.MaxDownloads))
	processSem := semaphore.NewWeighted(int64(p.cfg.ProcessConcurrency))

	g, gctx := errgroup.WithContext(ctx)
	for _, watPath := range batch {
		watPath := watPath
		g.Go(func() error {
			if err := downloadSem.Acquire(gctx, 1); err != nil {
				return nil
			}
			data, err := p.downloadWAT(gctx, watPath)
			downloadSem.Release(1)
			if err != nil {
				atomic.AddInt64(&p.errCount, 1)
				if p.log != nil {
					p.log.WithField("wat_path", watPath).Warnf("archiveproc: download failed: %v", err)
				}
				p.bus.Warn("archiveproc", "WAT download failed for "+watPath)
				return nil
			}
			atomic.AddInt64(&p.watFetched, 1)

			if err := processSem.Acquire(gctx, 1); err != nil {
				return nil
			}
			records := parseWATRecords(data)
			processSem.Release(1)

			atomic.AddInt64(&p.recParsed, int64(len(records)))
			records = filter(records)

			for _, r := range records {
				select {
				case out <- r:
					atomic.AddInt64(&p.recEmitted, 1)
				case <-ctx.Done():
					return nil
				}
			}
			return nil
		})
	}

	g.Wait()
}

func (p *Processor) fetchWATIndex(ctx context.Context, archive string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(p.watIndexFmt, archive), nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching WAT index: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("WAT index fetch: HTTP %d", resp.StatusCode)
	}

	gz, err := gzip.NewReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gunzip WAT index: %w", err)
	}
	defer gz.Close()

	var paths []string
	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			paths = append(paths, line)
		}
	}
	return paths, scanner.Err()
}

func (p *Processor) downloadWAT(ctx context.Context, watPath string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.dataBaseURL+watPath, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	gz, err := gzip.NewReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gunzip WAT file: %w", err)
	}
	defer gz.Close()

	return io.ReadAll(gz)
}

// watPayload is the JSON metadata object embedded in each WAT record,
// following a WARC-response record's headers.
type watPayload struct {
	Title      string                   `json:"title"`
	Anchors    []string                 `json:"anchors"`
	JSONLD     []map[string]interface{} `json:"json_ld"`
	HTTPStatus int                      `json:"http_status"`
}

const warcRecordDelimiter = "WARC/1.0"

// parseWATRecords splits raw WAT content on the WARC record
// delimiter, and for each chunk extracts WARC-Target-URI/WARC-Date
// from the header block and decodes the JSON payload bounded by the
// first "{" and the chunk's last "}", per spec.md §4.6 step 3.
// Malformed chunks are skipped rather than failing the whole file.
func parseWATRecords(raw []byte) []model.PageRecord {
	chunks := bytes.Split(raw, []byte(warcRecordDelimiter))
	records := make([]model.PageRecord, 0, len(chunks))

	for i, chunk := range chunks {
		if i == 0 {
			continue // preamble before the first record
		}
		rec, ok := parseWATChunk(chunk)
		if ok {
			records = append(records, rec)
		}
	}
	return records
}

func parseWATChunk(chunk []byte) (model.PageRecord, bool) {
	text := string(chunk)
	headerEnd := strings.Index(text, "\r\n\r\n")
	sep := "\r\n\r\n"
	if headerEnd < 0 {
		headerEnd = strings.Index(text, "\n\n")
		sep = "\n\n"
	}
	if headerEnd < 0 {
		return model.PageRecord{}, false
	}

	headerBlock := text[:headerEnd]
	body := text[headerEnd+len(sep):]

	var uri, date string
	for _, line := range strings.Split(headerBlock, "\n") {
		line = strings.TrimRight(line, "\r")
		if v, ok := strings.CutPrefix(line, "WARC-Target-URI: "); ok {
			uri = v
		}
		if v, ok := strings.CutPrefix(line, "WARC-Date: "); ok {
			date = v
		}
	}
	if uri == "" {
		return model.PageRecord{}, false
	}

	start := strings.Index(body, "{")
	end := strings.LastIndex(body, "}")
	if start < 0 || end < 0 || end < start {
		return model.PageRecord{}, false
	}

	var payload watPayload
	if err := json.Unmarshal([]byte(body[start:end+1]), &payload); err != nil {
		return model.PageRecord{}, false
	}

	anchors := payload.Anchors
	if len(anchors) > MaxAnchorTexts {
		anchors = anchors[:MaxAnchorTexts]
	}

	links := make([]string, len(anchors))
	copy(links, anchors)

	return model.PageRecord{
		URL:        uri,
		Domain:     normalizeDomain(uri),
		Title:      payload.Title,
		Content:    payload.Title,
		Links:      links,
		Schemas:    payload.JSONLD,
		HTTPStatus: payload.HTTPStatus,
		CrawlDate:  date,
	}, true
}

// normalizeDomain lowercases a URL's host and strips a leading "www.",
// matching the normalization applied everywhere else in the pipeline.
func normalizeDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// recordMatchesSchema reports whether r has a JSON-LD schema whose
// @type (lowercased) equals schemaType and which satisfies every
// filter as a case-insensitive substring match, checking one level of
// nested object values when a top-level field isn't a plain string.
func recordMatchesSchema(r model.PageRecord, schemaType string, filters map[string]string) bool {
	for _, schema := range r.Schemas {
		if !schemaTypeMatches(schema, schemaType) {
			continue
		}
		if schemaSatisfiesFilters(schema, filters) {
			return true
		}
	}
	return false
}

func schemaTypeMatches(schema map[string]interface{}, schemaType string) bool {
	raw, ok := schema["@type"]
	if !ok {
		return false
	}
	switch v := raw.(type) {
	case string:
		return strings.ToLower(v) == schemaType
	case []interface{}:
		for _, t := range v {
			if s, ok := t.(string); ok && strings.ToLower(s) == schemaType {
				return true
			}
		}
	}
	return false
}

func schemaSatisfiesFilters(schema map[string]interface{}, filters map[string]string) bool {
	for field, want := range filters {
		if !fieldContains(schema, field, want) {
			return false
		}
	}
	return true
}

func fieldContains(schema map[string]interface{}, field, want string) bool {
	val, ok := schema[field]
	if !ok {
		return false
	}
	want = strings.ToLower(want)
	switch v := val.(type) {
	case string:
		return strings.Contains(strings.ToLower(v), want)
	case map[string]interface{}:
		for _, nested := range v {
			if s, ok := nested.(string); ok && strings.Contains(strings.ToLower(s), want) {
				return true
			}
		}
	}
	return false
}
