package periscope

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zadorian/submarine/internal/model"
)

func TestResolveMIME(t *testing.T) {
	assert.Equal(t, "application/pdf", resolveMIME("pdf"))
	assert.Equal(t, "text/html", resolveMIME("html"))
	assert.Equal(t, "text/html", resolveMIME("htm"))
	assert.Equal(t, "application/json", resolveMIME("application/json"))
}

func TestResolveLanguage(t *testing.T) {
	assert.Equal(t, "eng", resolveLanguage("en"))
	assert.Equal(t, "deu", resolveLanguage("de"))
	assert.Equal(t, "fra", resolveLanguage("fr"))
	assert.Equal(t, "eng", resolveLanguage("EN"))
	assert.Equal(t, "xyz", resolveLanguage("xyz"))
}

func TestNormalizeTimestamp(t *testing.T) {
	assert.Equal(t, "20240115000000", normalizeTimestamp("2024-01-15", false))
	assert.Equal(t, "20240115235959", normalizeTimestamp("2024-01-15", true))
	assert.Equal(t, "20240115000000", normalizeTimestamp("20240115", false))
	assert.Equal(t, "20240115120000", normalizeTimestamp("20240115120000", false))
}

func TestParseCDXLines(t *testing.T) {
	body := []byte(`{"urlkey":"com,example)/","timestamp":"20240115120000","url":"https://example.com/","mime":"text/html","status":"200","digest":"ABC","length":"1234","offset":"5678","filename":"crawl-data/CC-MAIN-2024-10/segments/x.warc.gz"}
{"urlkey":"com,example)/about","timestamp":"20240116000000","url":"https://example.com/about","mime":"text/html","status":"404","digest":"DEF","length":"100","offset":"200","filename":"crawl-data/CC-MAIN-2024-10/segments/y.warc.gz"}`)

	records, err := parseCDXLines(body)
	assert.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, "https://example.com/", records[0].URL)
	assert.Equal(t, int64(5678), records[0].Offset)
	assert.Equal(t, int64(1234), records[0].Length)
	assert.Equal(t, 200, records[0].Status)
	assert.Equal(t, 404, records[1].Status)
}

func TestFilterByURLContains(t *testing.T) {
	records := []model.CCRecord{
		{URL: "https://example.com/about"},
		{URL: "https://example.com/contact"},
	}
	filtered := filterByURLContains(records, "about")
	assert.Len(t, filtered, 1)
	assert.Equal(t, "https://example.com/about", filtered[0].URL)
}
