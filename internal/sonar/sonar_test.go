package sonar

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeIndex struct {
	name string
	hits []Hit
	err  error
}

func (f *fakeIndex) Name() string { return f.name }
func (f *fakeIndex) Lookup(_ context.Context, _ string, _ int) ([]Hit, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

func TestScanAllAggregatesDomainsAndHits(t *testing.T) {
	idx1 := &fakeIndex{name: "phone-registry", hits: []Hit{{Domain: "a.com", MatchType: MatchPhone, Index: "phone-registry"}}}
	idx2 := &fakeIndex{name: "breach-db", hits: []Hit{{Domain: "b.com", MatchType: MatchBreach, Index: "breach-db"}}}

	s := New(nil, idx1, idx2)
	res := s.ScanAll(context.Background(), "email", "jane@example.com", 10)

	assert.Equal(t, "email", res.QueryType)
	assert.Len(t, res.Hits, 2)
	assert.ElementsMatch(t, []string{"a.com", "b.com"}, res.Domains)
	assert.Len(t, res.IndicesScanned, 2)
}

func TestScanAllSwallowsIndexError(t *testing.T) {
	good := &fakeIndex{name: "entity-graph", hits: []Hit{{Domain: "c.com", MatchType: MatchEntity, Index: "entity-graph"}}}
	bad := &fakeIndex{name: "phone-registry", err: errors.New("timeout")}

	s := New(nil, good, bad)
	res := s.ScanAll(context.Background(), "entity", "jane doe", 10)

	assert.Len(t, res.Hits, 1)
	assert.Len(t, res.IndicesScanned, 2)

	var failedDiag *IndexScanDiagnostic
	for i := range res.IndicesScanned {
		if res.IndicesScanned[i].Index == "phone-registry" {
			failedDiag = &res.IndicesScanned[i]
		}
	}
	if assert.NotNil(t, failedDiag) {
		assert.Error(t, failedDiag.Err)
		assert.Equal(t, 0, failedDiag.HitsGot)
	}
}

func TestScanAllEmptyIndices(t *testing.T) {
	s := New(nil)
	res := s.ScanAll(context.Background(), "domain", "example.com", 5)
	assert.Empty(t, res.Hits)
	assert.Empty(t, res.Domains)
	assert.Empty(t, res.IndicesScanned)
}
