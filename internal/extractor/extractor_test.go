package extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripHTMLRemovesScriptsStylesAndTags(t *testing.T) {
	html := `<html><head><style>body{color:red}</style><script>alert(1)</script></head>
<body><p>Hello   World</p></body></html>`
	got := StripHTML(html)
	assert.Equal(t, "Hello World", got)
}

func TestExtractEmail(t *testing.T) {
	res := Extract("Contact us at jane.doe@example.com for more info.", "https://example.com", "example.com")
	found := findEntity(res, TypeEmail, "jane.doe@example.com")
	if assert.NotNil(t, found) {
		assert.Equal(t, ConfidencePlainRegex, found.Confidence)
	}
}

func TestExtractURL(t *testing.T) {
	res := Extract("See https://example.com/about for details", "", "")
	found := findEntity(res, TypeURL, "https://example.com/about")
	assert.NotNil(t, found)
}

func TestExtractIBAN(t *testing.T) {
	res := Extract("Wire to GB29NWBK60161331926819 please.", "", "")
	found := findEntity(res, TypeIBAN, "GB29NWBK60161331926819")
	if assert.NotNil(t, found) {
		assert.Equal(t, ConfidenceValidatedIdentifier, found.Confidence)
	}
}

func TestExtractBTCAddress(t *testing.T) {
	res := Extract("Send BTC to 1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa now.", "", "")
	found := findEntity(res, TypeBTC, "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa")
	assert.NotNil(t, found)
}

func TestExtractETHAddress(t *testing.T) {
	res := Extract("ETH wallet: 0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb here.", "", "")
	found := findEntity(res, TypeETH, "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb")
	assert.NotNil(t, found)
}

func TestExtractCompanyName(t *testing.T) {
	res := Extract("This filing was made by Acme Holdings Ltd on behalf of the client.", "", "")
	found := findEntity(res, TypeCompany, "Acme Holdings Ltd")
	if assert.NotNil(t, found) {
		assert.Equal(t, ConfidenceValidatedIdentifier, found.Confidence)
	}
}

func TestExtractDedupesWithinPage(t *testing.T) {
	res := Extract("Email jane@example.com, also jane@example.com again.", "", "")
	count := 0
	for _, e := range res.Entities {
		if e.EntityType == TypeEmail {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestExtractCompanyNameNotAlsoPerson(t *testing.T) {
	res := Extract("Acme Corp announced results today.", "", "")
	for _, e := range res.Entities {
		assert.NotEqual(t, TypePerson, e.EntityType, "a company-suffixed match must not also surface as a person name")
	}
}

func TestDedupKey(t *testing.T) {
	e := Entity{Value: "  Jane@Example.com  ", EntityType: TypeEmail}
	assert.Equal(t, "jane@example.com\x00email", e.DedupKey())
}

func findEntity(res Result, typ EntityType, value string) *Entity {
	for i := range res.Entities {
		if res.Entities[i].EntityType == typ && res.Entities[i].Value == value {
			return &res.Entities[i]
		}
	}
	return nil
}
