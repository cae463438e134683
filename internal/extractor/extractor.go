// Package extractor converts stripped HTML/text into typed entities:
// identifiers, contacts, crypto addresses, and person/company names.
// Stateless and pure; grounded on no single teacher file (the teacher
// has no text-extraction concern) and built regex-tiered per spec.md
// §4.7, following the other example repos' convention of small,
// independently testable pattern tables.
package extractor

import (
	"regexp"
	"sort"
	"strings"
)

// MaxInputBytes bounds the text handed to Extract, per spec.md §4.7's
// "input is capped."
const MaxInputBytes = 2 << 20 // 2 MiB

// MaxNamesPerPage caps person/company name extraction per page per
// spec.md §4.7 ("capped per page").
const MaxNamesPerPage = 200

// Confidence tiers fixed per extractor family, per spec.md §4.7.
const (
	ConfidencePlainRegex         = 0.7
	ConfidenceValidatedIdentifier = 0.9
)

// EntityType enumerates the kinds Extract can produce.
type EntityType string

const (
	TypeLEI      EntityType = "lei"
	TypeIBAN     EntityType = "iban"
	TypeSWIFT    EntityType = "swift"
	TypeVAT      EntityType = "vat"
	TypeEmail    EntityType = "email"
	TypePhone    EntityType = "phone"
	TypeURL      EntityType = "url"
	TypeBTC      EntityType = "btc_address"
	TypeETH      EntityType = "eth_address"
	TypePerson   EntityType = "person"
	TypeCompany  EntityType = "company"
)

// Entity is a single extracted value.
type Entity struct {
	Value      string
	EntityType EntityType
	Confidence float64
	Source     string
	Context    string
}

// DedupKey returns the canonical per-page dedup key:
// (lower(value.strip()), entity_type).
func (e Entity) DedupKey() string {
	return strings.ToLower(strings.TrimSpace(e.Value)) + "\x00" + string(e.EntityType)
}

// Result is the full extraction output for one page.
type Result struct {
	URL      string
	Domain   string
	Entities []Entity
}

var (
	scriptTagPattern = regexp.MustCompile(`(?is)<script.*?</script>`)
	styleTagPattern  = regexp.MustCompile(`(?is)<style.*?</style>`)
	tagPattern       = regexp.MustCompile(`(?s)<[^>]+>`)
	whitespacePattern = regexp.MustCompile(`\s+`)

	leiPattern   = regexp.MustCompile(`\b[A-Z0-9]{18}[0-9]{2}\b`)
	ibanPattern  = regexp.MustCompile(`\b[A-Z]{2}[0-9]{2}[A-Z0-9]{11,30}\b`)
	swiftPattern = regexp.MustCompile(`\b[A-Z]{6}[A-Z0-9]{2}(?:[A-Z0-9]{3})?\b`)
	vatPattern   = regexp.MustCompile(`\b[A-Z]{2}[0-9A-Z]{8,12}\b`)

	emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`)
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9()\-. ]{7,17}[0-9]`)
	urlPattern   = regexp.MustCompile(`\bhttps?://[^\s"'<>]+`)

	btcPattern = regexp.MustCompile(`\b(?:[13][a-km-zA-HJ-NP-Z1-9]{25,34}|bc1[a-z0-9]{25,59})\b`)
	ethPattern = regexp.MustCompile(`\b0x[a-fA-F0-9]{40}\b`)

	// companySuffixes grounds the company-name extractor: a run of
	// capitalized words immediately followed by one of these suffixes.
	companySuffixes = []string{"Ltd", "LLC", "Inc", "Corp", "PLC", "SA", "AG", "GmbH", "BV"}
	companyNamePattern = regexp.MustCompile(
		`\b((?:[A-Z][A-Za-z&'.\-]*\s+){1,6})(` + strings.Join(companySuffixes, "|") + `)\b\.?`,
	)

	// personNamePattern matches two or three capitalized words in a
	// row (a conservative heuristic, not a full NER pass — consistent
	// with spec.md's "regex + suffix dictionaries" description, which
	// names only the company-suffix path as dictionary-backed).
	personNamePattern = regexp.MustCompile(`\b([A-Z][a-z]+(?:\s[A-Z][a-z]+){1,2})\b`)
)

// StripHTML removes <script>/<style> blocks and tags, then collapses
// whitespace, matching spec.md §4.7's first step.
func StripHTML(html string) string {
	if len(html) > MaxInputBytes {
		html = html[:MaxInputBytes]
	}
	text := scriptTagPattern.ReplaceAllString(html, " ")
	text = styleTagPattern.ReplaceAllString(text, " ")
	text = tagPattern.ReplaceAllString(text, " ")
	text = whitespacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// Extract runs the tiered extraction pipeline over text (already
// stripped, or raw HTML — StripHTML is idempotent enough that passing
// raw markup still yields usable identifier/contact matches since
// those patterns don't cross tag boundaries).
func Extract(text, url, domain string) Result {
	stripped := StripHTML(text)

	result := Result{URL: url, Domain: domain}
	seen := make(map[string]struct{})

	add := func(value string, typ EntityType, confidence float64) {
		e := Entity{Value: value, EntityType: typ, Confidence: confidence, Source: "extractor", Context: contextAround(stripped, value)}
		key := e.DedupKey()
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		result.Entities = append(result.Entities, e)
	}

	// Validated identifiers (confidence 0.9), matched before the
	// looser contact patterns so a LEI/IBAN/SWIFT/VAT code is never
	// re-captured as a coincidental phone-number-shaped string.
	for _, m := range leiPattern.FindAllString(stripped, -1) {
		add(m, TypeLEI, ConfidenceValidatedIdentifier)
	}
	for _, m := range ibanPattern.FindAllString(stripped, -1) {
		add(m, TypeIBAN, ConfidenceValidatedIdentifier)
	}
	for _, m := range swiftPattern.FindAllString(stripped, -1) {
		add(m, TypeSWIFT, ConfidenceValidatedIdentifier)
	}
	for _, m := range vatPattern.FindAllString(stripped, -1) {
		add(m, TypeVAT, ConfidenceValidatedIdentifier)
	}

	// Contacts (plain regex, confidence 0.7).
	for _, m := range emailPattern.FindAllString(stripped, -1) {
		add(m, TypeEmail, ConfidencePlainRegex)
	}
	for _, m := range phonePattern.FindAllString(stripped, -1) {
		if looksLikePhone(m) {
			add(strings.TrimSpace(m), TypePhone, ConfidencePlainRegex)
		}
	}
	for _, m := range urlPattern.FindAllString(stripped, -1) {
		add(m, TypeURL, ConfidencePlainRegex)
	}

	// Crypto addresses (plain regex, confidence 0.7).
	for _, m := range btcPattern.FindAllString(stripped, -1) {
		add(m, TypeBTC, ConfidencePlainRegex)
	}
	for _, m := range ethPattern.FindAllString(stripped, -1) {
		add(m, TypeETH, ConfidencePlainRegex)
	}

	// Company names (suffix-dictionary backed, confidence 0.9 — the
	// suffix match is itself a validated signal).
	names := 0
	for _, m := range companyNamePattern.FindAllStringSubmatch(stripped, -1) {
		if names >= MaxNamesPerPage {
			break
		}
		full := strings.TrimSpace(m[1]) + " " + m[2]
		add(full, TypeCompany, ConfidenceValidatedIdentifier)
		names++
	}

	// Person names (unvalidated heuristic, variable confidence scaled
	// down from the plain-regex tier since false positives are common
	// for capitalized-word runs — headings, place names).
	for _, m := range personNamePattern.FindAllString(stripped, -1) {
		if names >= MaxNamesPerPage {
			break
		}
		if isLikelyCompanyFragment(m) {
			continue
		}
		add(m, TypePerson, personNameConfidence(m))
		names++
	}

	sort.SliceStable(result.Entities, func(i, j int) bool {
		return result.Entities[i].EntityType < result.Entities[j].EntityType
	})

	return result
}

// looksLikePhone rejects phone-pattern matches that are really just
// runs of digits inside a longer identifier (the phone regex is
// intentionally loose; this filters the worst false positives without
// a full E.164 validator).
func looksLikePhone(candidate string) bool {
	digits := 0
	for _, r := range candidate {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return digits >= 7 && digits <= 15
}

// isLikelyCompanyFragment filters out a person-name-shaped match that
// ends in a company suffix the company pattern already covers (e.g.
// "Acme Corp" is not also reported as a person).
func isLikelyCompanyFragment(candidate string) bool {
	for _, suffix := range companySuffixes {
		if strings.HasSuffix(candidate, suffix) {
			return true
		}
	}
	return false
}

// personNameConfidence scales confidence by word count: three-word
// names (more specific) score higher than two-word ones.
func personNameConfidence(name string) float64 {
	words := len(strings.Fields(name))
	if words >= 3 {
		return 0.6
	}
	return 0.45
}

// contextAround returns up to 40 characters of surrounding text for a
// matched value, for the caller's provenance display.
func contextAround(text, value string) string {
	idx := strings.Index(text, value)
	if idx < 0 {
		return ""
	}
	start := idx - 20
	if start < 0 {
		start = 0
	}
	end := idx + len(value) + 20
	if end > len(text) {
		end = len(text)
	}
	return strings.TrimSpace(text[start:end])
}
