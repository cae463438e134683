package chain

import (
	"fmt"
	"strings"

	"github.com/zadorian/submarine/internal/model"
)

// The per-strategy record parsers below read the loosely-typed Data
// payload a RuleResult carries and recover the structured records each
// ownership/network/breach strategy walks. No teacher file or example
// repo covers a corporate-registry/breach-database response shape, so
// the expected keys ("shareholders", "holdings", "officers",
// "companies", "accounts", "items", "domain"/"registrant_name") are
// invented directly from spec.md §4.8's prose description of each
// strategy, the same way the archive processor's WAT payload schema
// was invented from spec.md §4.6.

func asSlice(v interface{}) []interface{} {
	if s, ok := v.([]interface{}); ok {
		return s
	}
	return nil
}

func asString(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		return fmt.Sprint(v)
	}
	return ""
}

func asFloat(m map[string]interface{}, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case string:
		var f float64
		fmt.Sscanf(v, "%f", &f)
		return f
	}
	return 0
}

// parseShareholders reads data["shareholders"], used by the
// cascading_ownership/hierarchical_expansion strategies.
func parseShareholders(data map[string]interface{}) []model.ShareholderRecord {
	var out []model.ShareholderRecord
	for _, raw := range asSlice(data["shareholders"]) {
		m, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		out = append(out, model.ShareholderRecord{
			Name:         asString(m, "name"),
			OwnershipPct: asFloat(m, "ownership_pct"),
			Type:         asString(m, "type"),
		})
	}
	return out
}

// parseHoldings reads data["holdings"], used by portfolio_expansion.
func parseHoldings(data map[string]interface{}) []model.HoldingRecord {
	var out []model.HoldingRecord
	for _, raw := range asSlice(data["holdings"]) {
		m, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		out = append(out, model.HoldingRecord{
			Name:         asString(m, "name"),
			OwnershipPct: asFloat(m, "ownership_pct"),
			Type:         asString(m, "type"),
		})
	}
	return out
}

// parseOfficers reads data["officers"], used by clustering_network,
// network_expansion, and entity_network_extraction (a company's list
// of officers).
func parseOfficers(data map[string]interface{}) []model.OfficerRecord {
	var out []model.OfficerRecord
	for _, raw := range asSlice(data["officers"]) {
		switch v := raw.(type) {
		case string:
			out = append(out, model.OfficerRecord{Name: v})
		case map[string]interface{}:
			var appts []string
			for _, c := range asSlice(v["companies"]) {
				if s, ok := c.(string); ok {
					appts = append(appts, s)
				}
			}
			out = append(out, model.OfficerRecord{Name: asString(v, "name"), Appointments: appts})
		}
	}
	return out
}

// parseCompanies reads data["companies"], used by
// entity_network_extraction and network_expansion (an officer's other
// appointments).
func parseCompanies(data map[string]interface{}) []model.CompanyRecord {
	var out []model.CompanyRecord
	for _, raw := range asSlice(data["companies"]) {
		switch v := raw.(type) {
		case string:
			out = append(out, model.CompanyRecord{Name: v})
		case map[string]interface{}:
			var officers []string
			for _, o := range asSlice(v["officers"]) {
				if s, ok := o.(string); ok {
					officers = append(officers, s)
				}
			}
			out = append(out, model.CompanyRecord{Name: asString(v, "name"), Officers: officers})
		}
	}
	return out
}

// parseBreachAccounts reads data["accounts"], used by
// osint_breach_network.
func parseBreachAccounts(data map[string]interface{}) []model.BreachAccount {
	var out []model.BreachAccount
	for _, raw := range asSlice(data["accounts"]) {
		m, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		out = append(out, model.BreachAccount{
			Email:        asString(m, "email"),
			Username:     asString(m, "username"),
			Password:     asString(m, "password"),
			PasswordHash: asString(m, "password_hash"),
			BreachSource: asString(m, "breach_source"),
		})
	}
	return out
}

// parseMediaItems reads data["items"], used by media_aggregation.
func parseMediaItems(data map[string]interface{}) []model.MediaItem {
	var out []model.MediaItem
	for _, raw := range asSlice(data["items"]) {
		m, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		out = append(out, model.MediaItem{
			URL:         asString(m, "url"),
			Title:       asString(m, "title"),
			PublishedAt: asString(m, "published_at"),
			Source:      asString(m, "source"),
		})
	}
	return out
}

// parseWhoisRecords reads a WHOIS response for osint_person_web's
// domain-ownership step. Most lookups return a single flat registrant
// (domain, registrant_name, registrant_org at the top level of data);
// some registries mirror WHOIS across resellers and return a
// "registrants" list instead, in which case every entry is parsed so
// the caller can detect a multi-registrant match rather than picking
// the first one arbitrarily.
func parseWhoisRecords(data map[string]interface{}) ([]model.WhoisRecord, bool) {
	domain := asString(data, "domain")
	if domain == "" {
		return nil, false
	}
	if raw := asSlice(data["registrants"]); len(raw) > 0 {
		var out []model.WhoisRecord
		for _, item := range raw {
			m, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			out = append(out, model.WhoisRecord{
				Domain:           domain,
				RegistrantName:   asString(m, "registrant_name"),
				RegistrantOrg:    asString(m, "registrant_org"),
				RegistrationDate: asString(m, "registration_date"),
			})
		}
		if len(out) > 0 {
			return out, true
		}
	}
	return []model.WhoisRecord{{
		Domain:           domain,
		RegistrantName:   asString(data, "registrant_name"),
		RegistrantOrg:    asString(data, "registrant_org"),
		RegistrationDate: asString(data, "registration_date"),
	}}, true
}

// freeMailDomains are excluded from osint_person_web's domain-ownership
// admission check, per spec.md §4.8.
var freeMailDomains = map[string]bool{
	"gmail.com": true, "yahoo.com": true, "hotmail.com": true, "outlook.com": true,
}

func isFreeMailDomain(domain string) bool {
	return freeMailDomains[strings.ToLower(domain)]
}
