package orderstring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExtractsAllTokenKinds(t *testing.T) {
	o := Parse(`acme.com depth(2) expanse(50) status(200) /scrape archives(CC-MAIN-2024-10,CC-MAIN-2024-18) keyword(invoice) mime(pdf) lang(en) from(2020) to(2023) minrel(0.4) tld_include(gov,edu) tld_exclude(ru) :GB`)

	require.NotNil(t, o.Depth)
	assert.Equal(t, 2, *o.Depth)
	require.NotNil(t, o.Expanse)
	assert.Equal(t, 50, *o.Expanse)
	require.NotNil(t, o.StatusCode)
	assert.Equal(t, 200, *o.StatusCode)
	assert.True(t, o.Scrape)
	assert.ElementsMatch(t, []string{"CC-MAIN-2024-10", "CC-MAIN-2024-18"}, o.Archives)
	assert.Equal(t, "invoice", o.Keyword)
	assert.Equal(t, "pdf", o.MIME)
	assert.Equal(t, "en", o.Language)
	assert.Equal(t, "2020", o.From)
	assert.Equal(t, "2023", o.To)
	require.NotNil(t, o.MinRelevance)
	assert.InDelta(t, 0.4, *o.MinRelevance, 0.0001)
	assert.ElementsMatch(t, []string{"gov", "edu"}, o.TLDInclude)
	assert.Equal(t, []string{"ru"}, o.TLDExclude)
	assert.Equal(t, "GB", o.Jurisdiction)
	assert.Equal(t, "acme.com", o.Query)
}

func TestParseBangShorthandsExpandToTLDMimeAndNews(t *testing.T) {
	o := Parse(`jane doe news! gov! pdf!`)
	assert.True(t, o.News)
	assert.Equal(t, "application/pdf", o.MIME)
	assert.Equal(t, []string{"gov"}, o.TLDInclude)
	assert.Equal(t, "jane doe", o.Query)
}

func TestParseScopeVsJurisdiction(t *testing.T) {
	withScope := Parse(`acme corp :example.com`)
	assert.Equal(t, "example.com", withScope.Scope)
	assert.Empty(t, withScope.Jurisdiction)
	assert.Equal(t, "acme corp", withScope.Query)

	withJur := Parse(`acme corp :DE`)
	assert.Equal(t, "DE", withJur.Jurisdiction)
	assert.Empty(t, withJur.Scope)
	assert.Equal(t, "acme corp", withJur.Query)
}

func TestParseWatcherAndNowatch(t *testing.T) {
	o := Parse(`acme corp watcher(abc-123) /nowatch @ent?`)
	assert.Equal(t, "abc-123", o.WatcherID)
	assert.True(t, o.NoWatch)
	assert.True(t, o.ExtractEntities)
	assert.Equal(t, "acme corp", o.Query)
}

func TestParseWithNoTokensLeavesQueryIntact(t *testing.T) {
	o := Parse("  jane.doe@example.com  ")
	assert.Equal(t, "jane.doe@example.com", o.Query)
	assert.Nil(t, o.Depth)
	assert.False(t, o.Scrape)
}
