// Package diveplanner composes Sonar (entity lookup) and Periscope (CC
// Index) results into a prioritized DivePlan ready for the Deep Diver
// to execute. Grounded on workflow/expander.go's compose-then-validate
// shape and on the teacher's bounded-concurrency fan-out idiom from
// worker/pool.go, adapted to a semaphore-gated producer loop rather
// than a long-lived worker pool (planning is one bounded burst of
// lookups, not a queue-drained service).
package diveplanner

import (
	"context"
	"net/mail"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/zadorian/submarine/internal/eventbus"
	"github.com/zadorian/submarine/internal/model"
	"github.com/zadorian/submarine/internal/periscope"
	"github.com/zadorian/submarine/internal/sonar"
	"github.com/zadorian/submarine/internal/submarineconfig"
)

// DefaultFetchTau is the per-record fetch-time estimation constant
// used when a Planner's cfg.FetchTauMillis is non-positive, default
// 100ms per spec.md §3 ("τ ≈ 100 ms").
const DefaultFetchTau = 100 * time.Millisecond

// Options configures a single create_plan call. Zero values take the
// documented defaults.
type Options struct {
	MaxDomains             int
	MaxPagesPerDomain      int
	CCArchives             []string
	FilterStatus           int // default 200
	FilterMIME             string
	FilterLanguage         string
	FromTS                 string
	ToTS                   string
	DomainAllowlist        []string
	DomainDenylist         []string
	TLDInclude             []string
	TLDExclude             []string
	URLContains string
	// DisableCCKeywordFallback turns off the CC-keyword fallback that
	// spec.md §4.4 documents as enabled by default
	// ("enable_cc_keyword_fallback=true"); since Go's zero value for a
	// bool is false, the flag is inverted here so the default (false)
	// keeps the fallback enabled.
	DisableCCKeywordFallback bool
	// QueryType informs the Sonar scan ("domain", "email", "phone",
	// "entity", ...); defaults to "entity" when empty.
	QueryType string
}

// withDefaults fills in spec.md §4.4's documented defaults and clamps
// to the ambient config's hard caps.
func (o Options) withDefaults(cfg submarineconfig.Config) Options {
	out := o
	if out.MaxDomains <= 0 || out.MaxDomains > cfg.MaxDomainsCap {
		out.MaxDomains = cfg.MaxDomainsCap
	}
	if out.MaxPagesPerDomain <= 0 || out.MaxPagesPerDomain > cfg.MaxPagesPerDomainCap {
		out.MaxPagesPerDomain = cfg.MaxPagesPerDomainCap
	}
	if out.FilterStatus == 0 {
		out.FilterStatus = 200
	}
	if len(out.CCArchives) == 0 {
		out.CCArchives = []string{"CC-MAIN-latest"}
	}
	if out.QueryType == "" {
		out.QueryType = "entity"
	}
	return out
}

// CCIndex is the subset of periscope.Client's surface the planner
// needs, kept as an interface so tests can substitute a fake.
type CCIndex interface {
	LookupDomain(ctx context.Context, archive, domain string, f periscope.Filters) ([]model.CCRecord, error)
	Search(ctx context.Context, archive, urlPattern string, f periscope.Filters) ([]model.CCRecord, error)
}

// Planner builds DivePlans from the Sonar and Periscope collaborators.
type Planner struct {
	sonar     *sonar.Scanner
	periscope CCIndex
	cfg       submarineconfig.Config
	bus       *eventbus.Bus
	log       *logrus.Entry
}

// New builds a Planner. bus may be nil to disable event emission.
func New(scanner *sonar.Scanner, ccIndex CCIndex, cfg submarineconfig.Config, bus *eventbus.Bus, log *logrus.Entry) *Planner {
	return &Planner{sonar: scanner, periscope: ccIndex, cfg: cfg, bus: bus, log: log}
}

// fetchTau returns p's configured per-record fetch-time estimation
// constant, falling back to DefaultFetchTau when cfg.FetchTauMillis is
// unset or non-positive.
func (p *Planner) fetchTau() time.Duration {
	if p.cfg.FetchTauMillis <= 0 {
		return DefaultFetchTau
	}
	return time.Duration(p.cfg.FetchTauMillis) * time.Millisecond
}

var domainLikePattern = regexp.MustCompile(`^(?:[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}$`)

// CreatePlan implements spec.md §4.4's create_plan: seed discovery via
// Sonar (falling back to parsing query as a URL/domain/email), filter
// pipeline, optional CC-keyword fallback, prioritization, bounded
// concurrent CC Index fan-out, dedupe, and sort.
func (p *Planner) CreatePlan(ctx context.Context, query string, opts Options) (*model.DivePlan, error) {
	opts = opts.withDefaults(p.cfg)
	p.emit("submarine:plan", map[string]interface{}{"stage": "start", "query": query})

	scan := p.sonar.ScanAll(ctx, opts.QueryType, query, opts.MaxDomains)

	seeds := make(map[string]*sonar.Hit, len(scan.Domains))
	for i := range scan.Hits {
		h := scan.Hits[i]
		if h.Domain == "" {
			continue
		}
		if _, ok := seeds[h.Domain]; !ok {
			seeds[h.Domain] = &h
		}
	}

	if len(seeds) == 0 {
		if d, ok := seedFromQuery(query); ok {
			seeds[d] = nil
		}
	}

	domains := applyDomainFilters(seedKeys(seeds), opts)

	usedFallback := false
	if len(domains) == 0 && !opts.DisableCCKeywordFallback {
		fallbackPattern := opts.URLContains
		if fallbackPattern == "" {
			fallbackPattern = query
		}
		fallbackDomains, err := p.planFromCCKeyword(ctx, fallbackPattern, opts)
		if err == nil && len(fallbackDomains) > 0 {
			domains = applyDomainFilters(fallbackDomains, opts)
			usedFallback = true
		}
	}

	if len(domains) > opts.MaxDomains {
		domains = domains[:opts.MaxDomains]
	}

	isQueryDomain := domainLikePattern.MatchString(strings.ToLower(query))
	priorities := make(map[string]int, len(domains))
	for _, d := range domains {
		priorities[d] = priorityFor(d, query, isQueryDomain, seeds[d])
	}

	plan := model.NewDivePlan(query, opts.QueryType, time.Now())
	plan.SonarIndicesUsed = indexNames(scan.IndicesScanned)
	plan.CCArchivesQueried = opts.CCArchives

	targets := p.fetchTargets(ctx, domains, priorities, opts)
	sort.SliceStable(targets, func(i, j int) bool { return targets[i].Priority < targets[j].Priority })
	for _, t := range targets {
		plan.AddTarget(t, p.fetchTau())
	}

	p.emit("submarine:plan", map[string]interface{}{
		"stage":          "complete",
		"total_domains":  plan.TotalDomains,
		"total_pages":    plan.TotalPages,
		"used_fallback":  usedFallback,
	})

	return plan, nil
}

// CreatePlanFromDomains implements create_plan_from_domains: skips
// Sonar seeding entirely, running the same filter/fan-out/sort
// pipeline over a caller-supplied domain list.
func (p *Planner) CreatePlanFromDomains(ctx context.Context, query string, domains []string, opts Options) (*model.DivePlan, error) {
	opts = opts.withDefaults(p.cfg)
	p.emit("submarine:plan", map[string]interface{}{"stage": "start", "query": query, "source": "domains"})

	filtered := applyDomainFilters(domains, opts)
	if len(filtered) > opts.MaxDomains {
		filtered = filtered[:opts.MaxDomains]
	}

	isQueryDomain := domainLikePattern.MatchString(strings.ToLower(query))
	priorities := make(map[string]int, len(filtered))
	for _, d := range filtered {
		priorities[d] = priorityFor(d, query, isQueryDomain, nil)
	}

	plan := model.NewDivePlan(query, opts.QueryType, time.Now())
	plan.CCArchivesQueried = opts.CCArchives

	targets := p.fetchTargets(ctx, filtered, priorities, opts)
	sort.SliceStable(targets, func(i, j int) bool { return targets[i].Priority < targets[j].Priority })
	for _, t := range targets {
		plan.AddTarget(t, p.fetchTau())
	}

	p.emit("submarine:plan", map[string]interface{}{
		"stage":         "complete",
		"total_domains": plan.TotalDomains,
		"total_pages":   plan.TotalPages,
	})

	return plan, nil
}

// fetchTargets fans out CC Index lookups across domains × archives
// under a bounded semaphore (default 8, clamped 1-32 by config),
// merging and deduping records per domain and truncating at
// max_pages_per_domain.
func (p *Planner) fetchTargets(ctx context.Context, domains []string, priorities map[string]int, opts Options) []model.DiveTarget {
	sem := semaphore.NewWeighted(int64(p.cfg.CCIndexConcurrency))
	var mu sync.Mutex
	targets := make([]model.DiveTarget, 0, len(domains))

	filters := periscope.Filters{
		FilterStatus:   opts.FilterStatus,
		FilterMIME:     opts.FilterMIME,
		FilterLanguage: opts.FilterLanguage,
		FromTS:         opts.FromTS,
		ToTS:           opts.ToTS,
		URLContains:    opts.URLContains,
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, domain := range domains {
		domain := domain
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return nil
			}
			defer sem.Release(1)

			seen := make(map[string]struct{})
			var records []model.CCRecord
			for _, archive := range opts.CCArchives {
				recs, err := p.periscope.LookupDomain(ctx, archive, domain, filters)
				if err != nil {
					if p.log != nil {
						p.log.WithField("domain", domain).WithField("archive", archive).Warnf("periscope lookup failed: %v", err)
					}
					p.bus.Warn("diveplanner", "periscope lookup failed for "+domain+" in "+archive)
					continue
				}
				for _, r := range recs {
					key := r.Key()
					if _, dup := seen[key]; dup {
						continue
					}
					seen[key] = struct{}{}
					records = append(records, r)
				}
			}

			if len(records) > opts.MaxPagesPerDomain {
				records = records[:opts.MaxPagesPerDomain]
			}

			target := model.DiveTarget{
				Domain:         domain,
				Priority:       priorities[domain],
				Source:         "sonar",
				CCRecords:      records,
				EstimatedPages: len(records),
			}

			mu.Lock()
			targets = append(targets, target)
			mu.Unlock()
			return nil
		})
	}

	g.Wait()
	return targets
}

// planFromCCKeyword implements _plan_from_cc_keyword: search Periscope
// directly by pattern across configured archives, dedupe by
// (filename,offset,length), bucket by normalized netloc, and keep the
// top max_domains buckets ranked by record count.
func (p *Planner) planFromCCKeyword(ctx context.Context, pattern string, opts Options) ([]string, error) {
	seen := make(map[string]struct{})
	counts := make(map[string]int)

	for _, archive := range opts.CCArchives {
		records, err := p.periscope.Search(ctx, archive, pattern, periscope.Filters{FilterStatus: opts.FilterStatus})
		if err != nil {
			p.bus.Warn("diveplanner", "cc keyword fallback search failed for archive "+archive)
			continue
		}
		for _, r := range records {
			key := r.Key()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			netloc := normalizeNetloc(r.URL)
			if netloc == "" {
				continue
			}
			counts[netloc]++
		}
	}

	type bucket struct {
		domain string
		count  int
	}
	buckets := make([]bucket, 0, len(counts))
	for d, c := range counts {
		buckets = append(buckets, bucket{d, c})
	}
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].count != buckets[j].count {
			return buckets[i].count > buckets[j].count
		}
		return buckets[i].domain < buckets[j].domain
	})

	max := opts.MaxDomains
	if max > len(buckets) {
		max = len(buckets)
	}
	out := make([]string, 0, max)
	for i := 0; i < max; i++ {
		out = append(out, buckets[i].domain)
	}
	return out, nil
}

func normalizeNetloc(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// seedFromQuery derives a domain seed when Sonar returns nothing: a
// direct URL's netloc, a bare domain-like string, or an email's host
// part.
func seedFromQuery(query string) (string, bool) {
	if u, err := url.Parse(query); err == nil && u.Hostname() != "" {
		return normalizeNetloc(query), true
	}
	if domainLikePattern.MatchString(strings.ToLower(query)) {
		return strings.ToLower(query), true
	}
	if addr, err := mail.ParseAddress(query); err == nil {
		parts := strings.SplitN(addr.Address, "@", 2)
		if len(parts) == 2 {
			return strings.ToLower(parts[1]), true
		}
	}
	return "", false
}

func seedKeys(seeds map[string]*sonar.Hit) []string {
	out := make([]string, 0, len(seeds))
	for d := range seeds {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

func indexNames(diags []sonar.IndexScanDiagnostic) []string {
	out := make([]string, 0, len(diags))
	for _, d := range diags {
		out = append(out, d.Index)
	}
	return out
}

// applyDomainFilters runs the allowlist/denylist/TLD filter pipeline:
// allowlist/denylist match by base-suffix (a domain matches a filter
// entry if it equals it or ends with "."+entry); TLD include/exclude
// match by exact suffix (e.g. ".co.uk").
func applyDomainFilters(domains []string, opts Options) []string {
	out := make([]string, 0, len(domains))
	for _, d := range domains {
		dl := strings.ToLower(d)
		if len(opts.DomainAllowlist) > 0 && !matchesAnySuffix(dl, opts.DomainAllowlist) {
			continue
		}
		if matchesAnySuffix(dl, opts.DomainDenylist) {
			continue
		}
		if len(opts.TLDInclude) > 0 && !hasAnyTLD(dl, opts.TLDInclude) {
			continue
		}
		if hasAnyTLD(dl, opts.TLDExclude) {
			continue
		}
		out = append(out, dl)
	}
	return out
}

func matchesAnySuffix(domain string, entries []string) bool {
	for _, e := range entries {
		e = strings.ToLower(e)
		if domain == e || strings.HasSuffix(domain, "."+e) {
			return true
		}
	}
	return false
}

func hasAnyTLD(domain string, tlds []string) bool {
	for _, tld := range tlds {
		if strings.HasSuffix(domain, strings.ToLower(tld)) {
			return true
		}
	}
	return false
}

// priorityFor assigns 1 (best) through 5 (worst) per spec.md §4.4:
// an exact domain match of a domain-type query, a subdomain of the
// query, or a direct contact-type hit (phone/email/breach) all rank 1;
// an entity hit ranks 2; a graph hit ranks 3; any other hit ranks 4;
// no hit at all ranks 5.
func priorityFor(domain, query string, isQueryDomain bool, hit *sonar.Hit) int {
	if isQueryDomain {
		ql := strings.ToLower(query)
		if domain == ql || strings.HasSuffix(domain, "."+ql) {
			return 1
		}
	}
	if hit == nil {
		return 5
	}
	switch hit.MatchType {
	case sonar.MatchPhone, sonar.MatchEmail, sonar.MatchBreach:
		return 1
	case sonar.MatchEntity:
		return 2
	case sonar.MatchGraph:
		return 3
	default:
		return 4
	}
}

func (p *Planner) emit(eventType string, data map[string]interface{}) {
	p.bus.Emit(eventType, data)
}

// Summary is the human-readable digest of a DivePlan printed by the
// CLI's plan subcommand.
type Summary struct {
	Query              string
	TotalDomains       int
	TotalPages         int
	EstimatedTime      time.Duration
	EstimatedWARCBytes string
}

// Summarize formats a plan's byte estimate with humanize.Bytes,
// matching network/downloader.go's progress-reporting convention.
func Summarize(plan *model.DivePlan) Summary {
	return Summary{
		Query:              plan.Query,
		TotalDomains:       plan.TotalDomains,
		TotalPages:         plan.TotalPages,
		EstimatedTime:      plan.EstimatedTime,
		EstimatedWARCBytes: humanize.Bytes(uint64(plan.EstimatedWARCBytes)),
	}
}
