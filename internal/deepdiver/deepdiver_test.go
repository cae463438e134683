package deepdiver

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zadorian/submarine/internal/model"
)

type fakeFetcher struct {
	pages map[string]model.PageRecord
	fail  map[string]bool
}

func (f *fakeFetcher) FetchRange(_ context.Context, rec model.CCRecord) (model.PageRecord, error) {
	if f.fail[rec.URL] {
		return model.PageRecord{}, assertErr{}
	}
	return f.pages[rec.URL], nil
}

type assertErr struct{}

func (assertErr) Error() string { return "simulated fetch failure" }

func TestEstimateTime(t *testing.T) {
	assert.Equal(t, 100*time.Millisecond, EstimateTime(50, 50, 0))
	assert.Equal(t, 200*time.Millisecond, EstimateTime(51, 50, 0))
	assert.Equal(t, 100*time.Millisecond, EstimateTime(1, 50, 0))
	assert.Equal(t, 100*time.Millisecond, EstimateTime(50, 0, 0)) // threads<=0 -> DefaultThreads
	assert.Equal(t, 250*time.Millisecond, EstimateTime(50, 50, 250*time.Millisecond))
}

func TestExecutePlanStreamsPagesAndMarksDomainsComplete(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]model.PageRecord{
		"https://a.com/1": {URL: "https://a.com/1", Domain: "a.com"},
		"https://a.com/2": {URL: "https://a.com/2", Domain: "a.com"},
	}}
	diver := New(fetcher, 4, 0, nil, nil)

	plan := &model.DivePlan{
		Targets: []model.DiveTarget{
			{Domain: "a.com", CCRecords: []model.CCRecord{
				{URL: "https://a.com/1", Filename: "f", Offset: 0, Length: 10},
				{URL: "https://a.com/2", Filename: "f", Offset: 10, Length: 10},
			}},
		},
		CompletedDomains: make(map[string]bool),
	}

	pages, err := diver.ExecutePlan(context.Background(), plan, "")
	require.NoError(t, err)

	count := 0
	for range pages {
		count++
	}
	assert.Equal(t, 2, count)
	assert.True(t, plan.CompletedDomains["a.com"])
}

func TestExecutePlanSkipsCompletedDomains(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]model.PageRecord{}}
	diver := New(fetcher, 4, 0, nil, nil)

	plan := &model.DivePlan{
		Targets: []model.DiveTarget{
			{Domain: "done.com", CCRecords: []model.CCRecord{{URL: "https://done.com/1", Filename: "f", Offset: 0, Length: 10}}},
		},
		CompletedDomains: map[string]bool{"done.com": true},
	}

	pages, err := diver.ExecutePlan(context.Background(), plan, "")
	require.NoError(t, err)

	count := 0
	for range pages {
		count++
	}
	assert.Equal(t, 0, count, "already-completed domains must not be re-fetched")
}

func TestExecutePlanContinuesPastFetchFailures(t *testing.T) {
	fetcher := &fakeFetcher{
		pages: map[string]model.PageRecord{"https://a.com/ok": {URL: "https://a.com/ok", Domain: "a.com"}},
		fail:  map[string]bool{"https://a.com/bad": true},
	}
	diver := New(fetcher, 2, 0, nil, nil)

	plan := &model.DivePlan{
		Targets: []model.DiveTarget{
			{Domain: "a.com", CCRecords: []model.CCRecord{
				{URL: "https://a.com/ok", Filename: "f", Offset: 0, Length: 10},
				{URL: "https://a.com/bad", Filename: "f", Offset: 10, Length: 10},
			}},
		},
		CompletedDomains: make(map[string]bool),
	}

	pages, err := diver.ExecutePlan(context.Background(), plan, "")
	require.NoError(t, err)

	count := 0
	for range pages {
		count++
	}
	assert.Equal(t, 1, count, "one record failed, one succeeded")
	assert.False(t, plan.CompletedDomains["a.com"], "a domain with a dropped record never reaches its expected count")
}

func TestCheckpointRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "checkpoint.json")

	plan := model.NewDivePlan("example.com", "domain", time.Now())
	plan.AddTarget(model.DiveTarget{
		Domain:         "example.com",
		Priority:       1,
		CCRecords:      []model.CCRecord{{Filename: "f", Offset: 0, Length: 100}},
		EstimatedPages: 1,
	}, DefaultFetchTau)
	plan.CompletedDomains["example.com"] = true

	require.NoError(t, WriteCheckpoint(path, plan))

	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file must be renamed away, not left behind")

	loaded, err := ReadCheckpoint(path)
	require.NoError(t, err)
	assert.Equal(t, "example.com", loaded.Query)
	require.Len(t, loaded.Targets, 1)
	assert.Equal(t, "example.com", loaded.Targets[0].Domain)
	assert.True(t, loaded.CompletedDomains["example.com"])
}

func TestHeaderValue(t *testing.T) {
	v, ok := headerValue("WARC-Target-URI: https://example.com/", "WARC-Target-URI")
	assert.True(t, ok)
	assert.Equal(t, "https://example.com/", v)

	_, ok = headerValue("Content-Length: 100", "WARC-Target-URI")
	assert.False(t, ok)
}

func TestNormalizeDomain(t *testing.T) {
	assert.Equal(t, "example.com", normalizeDomain("https://www.example.com/path"))
	assert.Equal(t, "example.com", normalizeDomain("https://example.com/"))
}
