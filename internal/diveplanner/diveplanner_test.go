package diveplanner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zadorian/submarine/internal/model"
	"github.com/zadorian/submarine/internal/periscope"
	"github.com/zadorian/submarine/internal/sonar"
	"github.com/zadorian/submarine/internal/submarineconfig"
)

type fakeCCIndex struct {
	byDomain map[string][]model.CCRecord
	search   []model.CCRecord
}

func (f *fakeCCIndex) LookupDomain(_ context.Context, _, domain string, _ periscope.Filters) ([]model.CCRecord, error) {
	return f.byDomain[domain], nil
}

func (f *fakeCCIndex) Search(_ context.Context, _, _ string, _ periscope.Filters) ([]model.CCRecord, error) {
	return f.search, nil
}

type fakeSonarIndex struct {
	hits []sonar.Hit
}

func (f *fakeSonarIndex) Name() string { return "fake" }
func (f *fakeSonarIndex) Lookup(_ context.Context, _ string, _ int) ([]sonar.Hit, error) {
	return f.hits, nil
}

func testConfig() submarineconfig.Config {
	return submarineconfig.Config{
		CCIndexConcurrency:   8,
		MaxDomainsCap:        200,
		MaxPagesPerDomainCap: 500,
	}
}

func TestCreatePlanFromSonarSeeds(t *testing.T) {
	scanner := sonar.New(nil, &fakeSonarIndex{hits: []sonar.Hit{
		{Domain: "a.com", MatchType: sonar.MatchEntity, Index: "fake"},
		{Domain: "b.com", MatchType: sonar.MatchGraph, Index: "fake"},
	}})
	cc := &fakeCCIndex{byDomain: map[string][]model.CCRecord{
		"a.com": {{Filename: "f1", Offset: 0, Length: 100}, {Filename: "f1", Offset: 100, Length: 100}},
		"b.com": {{Filename: "f2", Offset: 0, Length: 50}},
	}}

	p := New(scanner, cc, testConfig(), nil, nil)
	plan, err := p.CreatePlan(context.Background(), "jane doe", Options{CCArchives: []string{"CC-MAIN-2024-10"}})
	require.NoError(t, err)

	assert.Equal(t, 2, plan.TotalDomains)
	assert.Equal(t, 3, plan.TotalPages)
	require.Len(t, plan.Targets, 2)
	// entity hit (a.com) outranks graph hit (b.com): priority ascending.
	assert.Equal(t, "a.com", plan.Targets[0].Domain)
	assert.Equal(t, 2, plan.Targets[0].Priority)
	assert.Equal(t, "b.com", plan.Targets[1].Domain)
	assert.Equal(t, 3, plan.Targets[1].Priority)
}

func TestCreatePlanDedupesRecordsAcrossArchives(t *testing.T) {
	scanner := sonar.New(nil, &fakeSonarIndex{hits: []sonar.Hit{{Domain: "a.com", MatchType: sonar.MatchDomain}}})
	cc := &fakeCCIndex{byDomain: map[string][]model.CCRecord{
		"a.com": {{Filename: "f1", Offset: 0, Length: 100}},
	}}

	p := New(scanner, cc, testConfig(), nil, nil)
	plan, err := p.CreatePlan(context.Background(), "a.com", Options{CCArchives: []string{"CC-MAIN-1", "CC-MAIN-2"}})
	require.NoError(t, err)

	require.Len(t, plan.Targets, 1)
	assert.Len(t, plan.Targets[0].CCRecords, 1, "identical (filename,offset,length) from two archives must dedupe to one record")
}

func TestCreatePlanTruncatesAtMaxPagesPerDomain(t *testing.T) {
	scanner := sonar.New(nil, &fakeSonarIndex{hits: []sonar.Hit{{Domain: "a.com", MatchType: sonar.MatchDomain}}})
	records := make([]model.CCRecord, 0, 10)
	for i := 0; i < 10; i++ {
		records = append(records, model.CCRecord{Filename: "f", Offset: int64(i * 100), Length: 100})
	}
	cc := &fakeCCIndex{byDomain: map[string][]model.CCRecord{"a.com": records}}

	p := New(scanner, cc, testConfig(), nil, nil)
	plan, err := p.CreatePlan(context.Background(), "a.com", Options{MaxPagesPerDomain: 3, CCArchives: []string{"CC-MAIN-1"}})
	require.NoError(t, err)

	require.Len(t, plan.Targets, 1)
	assert.Len(t, plan.Targets[0].CCRecords, 3)
}

func TestCreatePlanFallsBackToCCKeywordSearch(t *testing.T) {
	scanner := sonar.New(nil) // no indices, no hits
	cc := &fakeCCIndex{
		search: []model.CCRecord{
			{URL: "https://x.com/page1", Filename: "f", Offset: 0, Length: 10},
			{URL: "https://x.com/page2", Filename: "f", Offset: 10, Length: 10},
			{URL: "https://y.com/page1", Filename: "f", Offset: 20, Length: 10},
		},
		byDomain: map[string][]model.CCRecord{
			"x.com": {{Filename: "f", Offset: 0, Length: 10}},
			"y.com": {{Filename: "f", Offset: 20, Length: 10}},
		},
	}

	p := New(scanner, cc, testConfig(), nil, nil)
	plan, err := p.CreatePlan(context.Background(), "some unresolvable keyword", Options{CCArchives: []string{"CC-MAIN-1"}})
	require.NoError(t, err)

	assert.Equal(t, 2, plan.TotalDomains)
}

func TestApplyDomainFiltersAllowDenyTLD(t *testing.T) {
	domains := []string{"a.example.com", "b.example.org", "c.co.uk", "d.test.co.uk"}

	allowed := applyDomainFilters(domains, Options{DomainAllowlist: []string{"example.com"}})
	assert.Equal(t, []string{"a.example.com"}, allowed)

	denied := applyDomainFilters(domains, Options{DomainDenylist: []string{"example.org"}})
	assert.NotContains(t, denied, "b.example.org")

	tldOnly := applyDomainFilters(domains, Options{TLDInclude: []string{".co.uk"}})
	assert.ElementsMatch(t, []string{"c.co.uk", "d.test.co.uk"}, tldOnly)

	tldExcluded := applyDomainFilters(domains, Options{TLDExclude: []string{".co.uk"}})
	assert.ElementsMatch(t, []string{"a.example.com", "b.example.org"}, tldExcluded)
}

func TestPriorityForRanking(t *testing.T) {
	assert.Equal(t, 1, priorityFor("example.com", "example.com", true, nil))
	assert.Equal(t, 1, priorityFor("sub.example.com", "example.com", true, nil))
	assert.Equal(t, 1, priorityFor("a.com", "", false, &sonar.Hit{MatchType: sonar.MatchEmail}))
	assert.Equal(t, 2, priorityFor("a.com", "", false, &sonar.Hit{MatchType: sonar.MatchEntity}))
	assert.Equal(t, 3, priorityFor("a.com", "", false, &sonar.Hit{MatchType: sonar.MatchGraph}))
	assert.Equal(t, 4, priorityFor("a.com", "", false, &sonar.Hit{MatchType: sonar.MatchURL}))
	assert.Equal(t, 5, priorityFor("a.com", "", false, nil))
}

func TestSeedFromQuery(t *testing.T) {
	d, ok := seedFromQuery("https://example.com/path")
	assert.True(t, ok)
	assert.Equal(t, "example.com", d)

	d, ok = seedFromQuery("example.com")
	assert.True(t, ok)
	assert.Equal(t, "example.com", d)

	d, ok = seedFromQuery("jane@example.com")
	assert.True(t, ok)
	assert.Equal(t, "example.com", d)

	_, ok = seedFromQuery("jane doe")
	assert.False(t, ok)
}

func TestSummarizeFormatsByteEstimateHumanReadable(t *testing.T) {
	plan := model.NewDivePlan("acme.com", "domain", time.Now())
	plan.AddTarget(model.DiveTarget{
		Domain:         "acme.com",
		EstimatedPages: 3,
		CCRecords:      []model.CCRecord{{Length: 2_500_000}},
	}, DefaultFetchTau)

	sum := Summarize(plan)
	assert.Equal(t, "acme.com", sum.Query)
	assert.Equal(t, 1, sum.TotalDomains)
	assert.Equal(t, 3, sum.TotalPages)
	assert.Equal(t, "2.5 MB", sum.EstimatedWARCBytes)
}
