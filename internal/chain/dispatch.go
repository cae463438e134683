package chain

import "context"

// osintFallbackRules maps an entity type to the ordered rule ids tried
// for a unified OSINT lookup; the first success wins. Grounded verbatim
// on _execute_osint_lookup's type_to_rules table in the original
// chain_executor.
var osintFallbackRules = map[string][]string{
	"email":       {"OSINT_FROM_EMAIL", "DEHASHED_FROM_EMAIL", "OSINT_INDUSTRIES_FROM_EMAIL"},
	"phone":       {"OSINT_FROM_PHONE", "OSINT_INDUSTRIES_FROM_PHONE"},
	"username":    {"OSINT_FROM_USERNAME", "DEHASHED_FROM_USERNAME"},
	"domain":      {"WHOIS_FROM_DOMAIN", "DOMAIN_LOOKUP"},
	"person":      {"OSINT_FROM_PERSON", "OSINT_INDUSTRIES_FROM_NAME"},
	"person_name": {"OSINT_FROM_PERSON", "OSINT_INDUSTRIES_FROM_NAME"},
	"linkedin":    {"OSINT_FROM_LINKEDIN", "OSINT_FROM_URL"},
	"url":         {"OSINT_FROM_URL", "URL_LOOKUP"},
}

var defaultOSINTFallback = []string{"OSINT_FROM_EMAIL", "DEHASHED_FROM_EMAIL"}

// executeOSINTLookup runs the unified OSINT lookup for (value, entityType),
// per spec.md §4.8's per-hop protocol step 2.
func (e *Executor) executeOSINTLookup(ctx context.Context, value, entityType string) (RuleResult, StepResult) {
	ruleIDs, ok := osintFallbackRules[entityType]
	if !ok {
		ruleIDs = defaultOSINTFallback
	}
	return e.executeRuleFallback(ctx, ruleIDs, value)
}

// executeBreachLookup runs a breach-database lookup for a credential,
// branching by whether it's an email or a username.
func (e *Executor) executeBreachLookup(ctx context.Context, credential, credType string) (RuleResult, StepResult) {
	ruleIDs := []string{"DEHASHED_FROM_USERNAME", "LEAKCHECK_FROM_USERNAME", "BREACH_FROM_USERNAME"}
	if credType == "email" {
		ruleIDs = []string{"DEHASHED_FROM_EMAIL", "LEAKCHECK_FROM_EMAIL", "BREACH_FROM_EMAIL"}
	}
	return e.executeRuleFallback(ctx, ruleIDs, credential)
}

// executePersonLookup runs a person-centric OSINT lookup, branching by
// identifier type (email, linkedin, or name/other).
func (e *Executor) executePersonLookup(ctx context.Context, identifier, idType string) (RuleResult, StepResult) {
	var ruleIDs []string
	switch idType {
	case "email":
		ruleIDs = []string{"OSINT_INDUSTRIES_FROM_EMAIL", "OSINT_FROM_EMAIL", "PERSON_FROM_EMAIL"}
	case "linkedin":
		ruleIDs = []string{"OSINT_FROM_LINKEDIN", "LINKEDIN_LOOKUP", "OSINT_FROM_URL"}
	default:
		ruleIDs = []string{"OSINT_FROM_PERSON", "OSINT_INDUSTRIES_FROM_NAME", "PERSON_LOOKUP"}
	}
	return e.executeRuleFallback(ctx, ruleIDs, identifier)
}

// executeSocialLookup runs a social-media profile lookup for a search
// term (name, handle, or email local-part).
func (e *Executor) executeSocialLookup(ctx context.Context, searchTerm string) (RuleResult, StepResult) {
	return e.executeRuleFallback(ctx, []string{"SOCIAL_FROM_NAME", "SOCIAL_MEDIA_LOOKUP", "USERNAME_SEARCH"}, searchTerm)
}

// executeCorporateLookup runs a corporate-affiliation lookup for a
// person's name, surfacing officer appointments.
func (e *Executor) executeCorporateLookup(ctx context.Context, personName string) (RuleResult, StepResult) {
	return e.executeRuleFallback(ctx, []string{"OFFICER_APPOINTMENTS_FROM_PERSON_NAME", "OFFICER_SEARCH", "CORPORATE_PERSON_LOOKUP"}, personName)
}

// executeDomainLookup runs a domain WHOIS lookup.
func (e *Executor) executeDomainLookup(ctx context.Context, domain string) (RuleResult, StepResult) {
	return e.executeRuleFallback(ctx, []string{"WHOIS_FROM_DOMAIN", "DOMAIN_WHOIS", "DOMAIN_LOOKUP"}, domain)
}
