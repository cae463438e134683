package chain

import (
	"math"
	"strings"

	"github.com/zadorian/submarine/internal/model"
)

// Scoring weights, fixed per the "Query Lab consolidation plan" grounding
// in the original chain_executor: graph-convolution decay per hop, a
// penalty for generic/common names, and a boost for values that share
// a root value or its email host. These are constants rather than
// per-run config because no chain rule in the table overrides them —
// only DecayPerStep and RelevanceThreshold vary per rule.
const (
	NameCommonalityWeight    = 0.3
	CommonNamePenalty        = 0.7
	ConnectionStrengthWeight = 0.3

	DefaultDecayPerStep = 0.15
	DefaultMinRelevance = 0.3
	DefaultMaxEntities  = 500
)

// commonNames are generic values whose relevance is penalized: frequent
// given/family names and placeholder mailbox-local-parts, per spec.md
// §4.8's relevance formula.
var commonNames = []string{
	"john", "james", "michael", "david", "robert", "william", "mary", "jennifer",
	"smith", "johnson", "williams", "jones", "brown", "davis", "miller",
	"test", "admin", "user", "info", "contact", "support", "noreply", "no-reply",
}

// sourceProvenanceWeights are confidence multipliers by data source,
// higher meaning more authoritative. Grounded verbatim on the
// SOURCE_PROVENANCE_WEIGHTS table in the original chain_executor.
var sourceProvenanceWeights = map[string]float64{
	"corporate_registry": 0.99, "companies_house": 0.99, "government_registry": 0.98,
	"court_records": 0.95, "land_registry": 0.95, "fec": 0.97, "sec": 0.97,
	"opencorporates": 0.90, "orbis": 0.92, "lexisnexis": 0.88, "dnb": 0.90,
	"osint_industries": 0.85, "dehashed": 0.80, "leakcheck": 0.78, "breach_data": 0.75,
	"whois": 0.82, "dns": 0.85,
	"linkedin": 0.70, "social_media": 0.65, "news": 0.70, "web_scrape": 0.60,
	"ai_extraction": 0.75, "entity_extraction": 0.72,
	"unknown": 0.50,
}

// SourceProvenance resolves a source name to its confidence weight: an
// exact (case-insensitive) match first, then a substring match in
// either direction, falling back to "unknown".
func SourceProvenance(source string) float64 {
	if source == "" {
		return sourceProvenanceWeights["unknown"]
	}
	lower := strings.ToLower(source)
	if w, ok := sourceProvenanceWeights[lower]; ok {
		return w
	}
	for key, w := range sourceProvenanceWeights {
		if strings.Contains(lower, key) || strings.Contains(key, lower) {
			return w
		}
	}
	return sourceProvenanceWeights["unknown"]
}

// ChainProvenance multiplies the provenance weight of every source in
// sequence, accumulating confidence loss along a multi-hop chain (e.g.
// companies_house -> dehashed -> web_scrape).
func ChainProvenance(sourceSequence []string) float64 {
	p := 1.0
	for _, s := range sourceSequence {
		p *= SourceProvenance(s)
	}
	return p
}

// ScoringConfig carries the per-chain-rule tunables the relevance
// formula reads; only DecayPerStep varies in practice (per rule table),
// the name/connection weights are fixed constants above.
type ScoringConfig struct {
	DecayPerStep             float64
	NameCommonalityWeight    float64
	CommonNamePenalty        float64
	ConnectionStrengthWeight float64
}

// scoringConfigFor derives a ScoringConfig from a chain rule's config,
// substituting the documented default decay when unset.
func scoringConfigFor(cc model.ChainConfig) ScoringConfig {
	decay := cc.DecayPerStep
	if decay <= 0 {
		decay = DefaultDecayPerStep
	}
	return ScoringConfig{
		DecayPerStep:             decay,
		NameCommonalityWeight:    NameCommonalityWeight,
		CommonNamePenalty:        CommonNamePenalty,
		ConnectionStrengthWeight: ConnectionStrengthWeight,
	}
}

// RelevanceScore computes the deterministic relevance of value
// discovered at depth hops from rootValue, via source, accumulating
// chainProvenance from every hop before it. Clamped to [0,1].
func RelevanceScore(value, rootValue string, depth int, cfg ScoringConfig, source string, chainProvenance float64) float64 {
	score := 1.0

	depthFactor := math.Pow(1-cfg.DecayPerStep, float64(depth))
	score *= depthFactor

	lowerValue := strings.ToLower(value)
	for _, name := range commonNames {
		if strings.Contains(lowerValue, name) {
			score -= cfg.CommonNamePenalty * cfg.NameCommonalityWeight
			break
		}
	}

	rootLower := strings.ToLower(rootValue)
	switch {
	case rootLower == "" || lowerValue == "":
	case rootLower == lowerValue:
		score += 0.30 * cfg.ConnectionStrengthWeight
	case strings.Contains(lowerValue, rootLower) || strings.Contains(rootLower, lowerValue):
		score += 0.20 * cfg.ConnectionStrengthWeight
	case strings.Contains(rootLower, "@") && strings.Contains(lowerValue, "@"):
		if emailHost(rootLower) == emailHost(lowerValue) {
			score += 0.15 * cfg.ConnectionStrengthWeight
		}
	}

	if source != "" {
		score *= SourceProvenance(source)
	}
	score *= chainProvenance

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func emailHost(addr string) string {
	parts := strings.Split(addr, "@")
	return parts[len(parts)-1]
}

// needsVerification matches model.NewChainEntityNode's derivation:
// relevance below 0.5 is flagged for manual review.
func needsVerification(relevance float64) bool {
	return relevance < 0.5
}
