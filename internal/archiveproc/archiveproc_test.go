package archiveproc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseWATRecords(t *testing.T) {
	raw := "preamble ignored" +
		"WARC/1.0\r\n" +
		"WARC-Type: metadata\r\n" +
		"WARC-Target-URI: https://example.com/page1\r\n" +
		"WARC-Date: 2024-01-15T00:00:00Z\r\n" +
		"\r\n" +
		`{"title":"Example Page","anchors":["Home","About"],"json_ld":[{"@type":"Organization","name":"Example Inc"}],"http_status":200}` +
		"WARC/1.0\r\n" +
		"WARC-Type: metadata\r\n" +
		"WARC-Target-URI: https://www.example.com/page2\r\n" +
		"WARC-Date: 2024-01-16T00:00:00Z\r\n" +
		"\r\n" +
		`{"title":"Second Page","anchors":[],"json_ld":[],"http_status":404}`

	records := parseWATRecords([]byte(raw))

	assert.Len(t, records, 2)
	assert.Equal(t, "https://example.com/page1", records[0].URL)
	assert.Equal(t, "example.com", records[0].Domain)
	assert.Equal(t, "Example Page", records[0].Title)
	assert.Equal(t, []string{"Home", "About"}, records[0].Links)
	assert.Equal(t, 200, records[0].HTTPStatus)
	assert.Len(t, records[0].Schemas, 1)

	assert.Equal(t, "example.com", records[1].Domain, "www. must be stripped during normalization")
	assert.Equal(t, 404, records[1].HTTPStatus)
}

func TestParseWATRecordsSkipsMalformedChunks(t *testing.T) {
	raw := "WARC/1.0\r\nWARC-Type: metadata\r\n\r\nnot json at all"
	records := parseWATRecords([]byte(raw))
	assert.Empty(t, records, "a chunk with no WARC-Target-URI must be dropped, not panic")
}

func TestParseWATRecordsCapsAnchorsAt200(t *testing.T) {
	anchors := `["a"`
	for i := 1; i < 250; i++ {
		anchors += `,"a"`
	}
	anchors += `]`
	raw := "WARC/1.0\r\n" +
		"WARC-Target-URI: https://example.com/\r\n" +
		"WARC-Date: 2024-01-15T00:00:00Z\r\n\r\n" +
		`{"title":"t","anchors":` + anchors + `,"json_ld":[],"http_status":200}`

	records := parseWATRecords([]byte(raw))
	assert.Len(t, records, 1)
	assert.Len(t, records[0].Links, MaxAnchorTexts)
}

func TestSchemaTypeMatches(t *testing.T) {
	assert.True(t, schemaTypeMatches(map[string]interface{}{"@type": "Organization"}, "organization"))
	assert.True(t, schemaTypeMatches(map[string]interface{}{"@type": []interface{}{"Thing", "Organization"}}, "organization"))
	assert.False(t, schemaTypeMatches(map[string]interface{}{"@type": "Person"}, "organization"))
	assert.False(t, schemaTypeMatches(map[string]interface{}{}, "organization"))
}

func TestFieldContainsNestedLookup(t *testing.T) {
	schema := map[string]interface{}{
		"name": "Example Inc",
		"address": map[string]interface{}{
			"addressLocality": "London",
		},
	}
	assert.True(t, fieldContains(schema, "name", "example"))
	assert.True(t, fieldContains(schema, "address", "london"))
	assert.False(t, fieldContains(schema, "address", "berlin"))
	assert.False(t, fieldContains(schema, "missing", "x"))
}

func TestStatsResettable(t *testing.T) {
	p := New(DefaultConfig(), nil, nil)
	p.recParsed = 5
	p.recEmitted = 3
	p.errCount = 1
	p.watFetched = 2

	stats := p.Stats()
	assert.Equal(t, int64(5), stats.RecordsParsed)

	p.ResetStats()
	stats = p.Stats()
	assert.Zero(t, stats.RecordsParsed)
	assert.Zero(t, stats.RecordsEmitted)
	assert.Zero(t, stats.Errors)
	assert.Zero(t, stats.WATFilesFetched)
}

func TestDefaultAndAggressiveConfig(t *testing.T) {
	d := DefaultConfig()
	assert.Equal(t, 20, d.MaxDownloads)
	assert.Equal(t, 10, d.ProcessConcurrency)

	a := AggressiveConfig()
	assert.Equal(t, 50, a.MaxDownloads)
	assert.Equal(t, 32, a.ProcessConcurrency)
}

func TestNormalizeDomain(t *testing.T) {
	assert.Equal(t, "example.com", normalizeDomain("https://www.example.com/path"))
	assert.Equal(t, "example.com", normalizeDomain("https://example.com/"))
	assert.Equal(t, "", normalizeDomain("://bad-url"))
}
