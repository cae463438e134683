// Package orderstring parses the chain-order grammar spec.md §6
// documents: a single free-text line mixing a bare query with
// parenthesized tokens, bang shorthands, and trailing scope/
// jurisdiction markers. Grounded on discovery_orchestrator.py's
// token-by-token regex extraction (run_submarine's depth/expanse/
// status/.../watcher parsing), ported to Go's regexp package with the
// same extraction order so the same input strips down to the same
// leftover query.
package orderstring

import (
	"regexp"
	"strconv"
	"strings"
)

// Order is the parsed result of a single chain-order line. Zero values
// mean "token absent" for the pointer fields; callers apply their own
// defaults.
type Order struct {
	Query string

	Depth       *int
	Expanse     *int
	StatusCode  *int
	MinRelevance *float64

	Scrape          bool
	Index           bool
	ExtractEntities bool
	News            bool
	NoWatch         bool

	WatcherID string

	Archives []string
	Keyword  string
	MIME     string
	Language string
	From     string
	To       string

	TLDInclude []string
	TLDExclude []string

	Scope        string
	Jurisdiction string
}

var (
	reDepth      = regexp.MustCompile(`(?i)\bdepth\((\d+)\)`)
	reExpanse    = regexp.MustCompile(`(?i)\bexpanse\((\d+)\)`)
	reStatus     = regexp.MustCompile(`(?i)\bstatus\((\d+)\)`)
	reMinRel     = regexp.MustCompile(`(?i)\bminrel\(([^)]+)\)`)
	reArchives   = regexp.MustCompile(`(?i)\barchives?\(([^)]+)\)`)
	reKeyword    = regexp.MustCompile(`(?i)\b(?:keyword|inurl|url_contains)\(([^)]+)\)`)
	reMIME       = regexp.MustCompile(`(?i)\bmime\(([^)]+)\)`)
	reLanguage   = regexp.MustCompile(`(?i)\b(?:lang|language)\(([^)]+)\)`)
	reFrom       = regexp.MustCompile(`(?i)\bfrom\(([^)]+)\)`)
	reTo         = regexp.MustCompile(`(?i)\bto\(([^)]+)\)`)
	reTLDInclude = regexp.MustCompile(`(?i)\btld_include\(([^)]+)\)`)
	reTLDExclude = regexp.MustCompile(`(?i)\btld_exclude\(([^)]+)\)`)
	reWatcher    = regexp.MustCompile(`(?i)\bwatcher\(([^)]+)\)`)
	reBang       = regexp.MustCompile(`(?i)(?:^|\s)([a-z]{2,}(?:\.[a-z]{2,})*)!(?:\s|$)`)
	reScope      = regexp.MustCompile(`\s:\s*(\S+)\s*$`)
	reJur        = regexp.MustCompile(`\s:\s*([A-Za-z]{2})\s*$`)
	reSpaces     = regexp.MustCompile(`\s+`)
)

// Parse extracts every recognized token from raw, in the order
// spec.md §6 lists them, and returns the Order with the leftover text
// (whatever wasn't a recognized token) as Query.
func Parse(raw string) Order {
	text := strings.TrimSpace(raw)

	var o Order
	o.Depth, text = parseIntArg(reDepth, text)
	o.Expanse, text = parseIntArg(reExpanse, text)
	o.StatusCode, text = parseIntArg(reStatus, text)

	o.Scrape, text = popFlag("/scrape", text)
	o.Index, text = popFlag("/index", text)
	o.ExtractEntities, text = popFlag("@ent?", text)
	o.News, text = popFlag("/news", text)
	o.NoWatch, text = popFlag("/nowatch", text)
	o.WatcherID, text = extractWatcherID(text)

	o.Archives, text = parseListArg(reArchives, text)
	o.Keyword, text = parseStrArg(reKeyword, text)
	o.MIME, text = parseStrArg(reMIME, text)
	o.Language, text = parseStrArg(reLanguage, text)
	o.From, text = parseStrArg(reFrom, text)
	o.To, text = parseStrArg(reTo, text)
	o.MinRelevance, text = parseFloatArg(reMinRel, text)

	tldInc, tldText := parseListArg(reTLDInclude, text)
	text = tldText
	tldExc, tldText2 := parseListArg(reTLDExclude, text)
	text = tldText2

	bangNews, bangMIME, bangTLD, text := extractBangFilters(text)
	o.News = o.News || bangNews
	if o.MIME == "" && bangMIME != "" {
		o.MIME = bangMIME
	}
	o.TLDInclude = dedupeAppend(tldInc, bangTLD)
	o.TLDExclude = tldExc

	o.Scope, text = extractScope(text)
	o.Jurisdiction, text = extractJurisdiction(text)

	o.Query = strings.TrimSpace(text)
	return o
}

func parseIntArg(re *regexp.Regexp, text string) (*int, string) {
	m := re.FindStringSubmatchIndex(text)
	if m == nil {
		return nil, text
	}
	raw := text[m[2]:m[3]]
	n, err := strconv.Atoi(raw)
	cleaned := collapse(text[:m[0]] + " " + text[m[1]:])
	if err != nil {
		return nil, cleaned
	}
	return &n, cleaned
}

func parseFloatArg(re *regexp.Regexp, text string) (*float64, string) {
	m := re.FindStringSubmatchIndex(text)
	if m == nil {
		return nil, text
	}
	raw := text[m[2]:m[3]]
	f, err := strconv.ParseFloat(raw, 64)
	cleaned := collapse(text[:m[0]] + " " + text[m[1]:])
	if err != nil {
		return nil, cleaned
	}
	return &f, cleaned
}

func parseStrArg(re *regexp.Regexp, text string) (string, string) {
	m := re.FindStringSubmatchIndex(text)
	if m == nil {
		return "", text
	}
	raw := strings.Trim(text[m[2]:m[3]], `"'`)
	cleaned := collapse(text[:m[0]] + " " + text[m[1]:])
	return strings.TrimSpace(raw), cleaned
}

func parseListArg(re *regexp.Regexp, text string) ([]string, string) {
	m := re.FindStringSubmatchIndex(text)
	if m == nil {
		return nil, text
	}
	raw := strings.Trim(text[m[2]:m[3]], `"'`)
	cleaned := collapse(text[:m[0]] + " " + text[m[1]:])

	var out []string
	for _, p := range strings.Split(raw, ",") {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out, cleaned
}

func popFlag(token, text string) (bool, string) {
	re := regexp.MustCompile(`(?i)(?:^|\s)` + regexp.QuoteMeta(token) + `(?:\s|$)`)
	if !re.MatchString(text) {
		return false, text
	}
	return true, collapse(re.ReplaceAllString(text, " "))
}

func extractWatcherID(text string) (string, string) {
	m := reWatcher.FindStringSubmatchIndex(text)
	if m == nil {
		return "", text
	}
	id := strings.Trim(text[m[2]:m[3]], `"'`)
	cleaned := collapse(text[:m[0]] + " " + text[m[1]:])
	return strings.TrimSpace(id), cleaned
}

// extractBangFilters recognizes trailing "token!" shorthands: "news!"
// enables news mode, "pdf!" sets mime=application/pdf, anything else
// is added to tld_include.
func extractBangFilters(text string) (news bool, mime string, tldInclude []string, cleaned string) {
	// Tokens are re-joined with two spaces so that adjacent shorthands
	// ("news! gov!") each keep a separating space for reBang to consume.
	padded := " " + strings.Join(strings.Fields(text), "  ") + " "
	matches := reBang.FindAllStringSubmatch(padded, -1)
	if len(matches) == 0 {
		return false, "", nil, text
	}

	seen := map[string]struct{}{}
	for _, m := range matches {
		t := strings.ToLower(strings.TrimSpace(m[1]))
		if t == "" {
			continue
		}
		switch t {
		case "news":
			news = true
		case "pdf":
			mime = "application/pdf"
		default:
			if _, dup := seen[t]; !dup {
				seen[t] = struct{}{}
				tldInclude = append(tldInclude, t)
			}
		}
	}
	cleaned = collapse(reBang.ReplaceAllString(padded, " "))
	return news, mime, tldInclude, cleaned
}

// extractScope recognizes a trailing ":<target>" scope token, where
// target looks like a URL or domain (distinguishing it from a 2-letter
// jurisdiction code).
func extractScope(text string) (string, string) {
	m := reScope.FindStringSubmatchIndex(text)
	if m == nil {
		return "", text
	}
	scope := strings.TrimSpace(text[m[2]:m[3]])
	cleaned := strings.TrimSpace(text[:m[0]])

	scope = strings.TrimPrefix(scope, "?")
	scope = strings.TrimPrefix(scope, "!")
	scope = strings.TrimSuffix(scope, "!")

	if scope != "" && (strings.HasPrefix(scope, "http://") || strings.HasPrefix(scope, "https://") ||
		strings.HasPrefix(scope, "www.") || strings.Contains(scope, ".")) {
		return scope, cleaned
	}
	return "", text
}

// extractJurisdiction recognizes a trailing ":<JUR>" two-letter
// jurisdiction code, only once extractScope has ruled out a
// domain/URL scope at the same position.
func extractJurisdiction(text string) (string, string) {
	m := reJur.FindStringSubmatchIndex(text)
	if m == nil {
		return "", text
	}
	jur := strings.ToUpper(strings.TrimSpace(text[m[2]:m[3]]))
	cleaned := strings.TrimSpace(text[:m[0]])
	return jur, cleaned
}

func collapse(s string) string {
	return strings.TrimSpace(reSpaces.ReplaceAllString(s, " "))
}

func dedupeAppend(a, b []string) []string {
	seen := make(map[string]struct{}, len(a))
	out := make([]string, 0, len(a)+len(b))
	for _, v := range a {
		if _, dup := seen[v]; !dup {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	for _, v := range b {
		if _, dup := seen[v]; !dup {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
