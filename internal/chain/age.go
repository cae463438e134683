package chain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// AgeResult is the outcome of the ?age operator: how old an entity is,
// and which field the source date came from.
type AgeResult struct {
	Status        string // "success" | "no_date_found" | "parse_error"
	EntityType    string
	SourceField   string
	SourceDate    time.Time
	ReferenceDate time.Time
	Years         int
	Months        int
	Days          int
	TotalDays     int
	AgeString     string
}

// ageDateFields orders the field-name substrings AgeOf checks per
// entity type, preferring the type-specific field before falling back
// to any generically date-shaped one.
var ageDateFields = map[string][]string{
	"person":  {"birth_date", "birthdate", "date_of_birth", "dob", "born"},
	"company": {"incorporation_date", "registered_date", "founded", "established", "date_incorporated", "formation_date", "registration_date"},
	"domain":  {"registration_date", "created", "created_date", "registered", "creation_date", "domain_registered"},
}

var ageFallbackFields = []string{"date", "born", "founded", "created", "registered"}

var ageDateLayouts = []string{
	"2006-01-02", "02/01/2006", "01/02/2006", "2006/01/02",
	"02-01-2006", "20060102", "02.01.2006", "2006.01.02",
	"January 2, 2006", "2 January 2006", "Jan 2, 2006", "2 Jan 2006",
	"2006", "01/2006", "2006-01",
}

var embeddedDateRe = regexp.MustCompile(`\d{4}[-/]\d{1,2}[-/]\d{1,2}`)

// AgeOf computes the age-in-years (plus months/days detail) of a
// person/company/domain entity from whichever of its data fields holds
// a birth/incorporation/registration date, against referenceDate. A
// zero referenceDate defaults to now.
//
// Ported from the source system's age_operator, which resolves the
// "?age" query operator against person birth_date, company
// incorporation_date, and domain registration_date fields.
func AgeOf(entityType string, data map[string]interface{}, referenceDate time.Time) AgeResult {
	entityType = strings.ToLower(entityType)
	if referenceDate.IsZero() {
		referenceDate = time.Now()
	}

	sourceField, sourceValue := findAgeDateField(entityType, data)
	if sourceField == "" {
		return AgeResult{Status: "no_date_found", EntityType: entityType}
	}

	sourceDate, ok := parseAgeDate(sourceValue)
	if !ok {
		return AgeResult{Status: "parse_error", EntityType: entityType, SourceField: sourceField}
	}

	years, months, days := calendarDiff(sourceDate, referenceDate)
	return AgeResult{
		Status:        "success",
		EntityType:    entityType,
		SourceField:   sourceField,
		SourceDate:    sourceDate,
		ReferenceDate: referenceDate,
		Years:         years,
		Months:        months,
		Days:          days,
		TotalDays:     int(referenceDate.Sub(sourceDate).Hours() / 24),
		AgeString:     ageString(entityType, years, months),
	}
}

// applyAges runs the ?age operator over every entity res.AllEntities
// carries a recognizable date field for, recording a hit in res.Ages
// and emitting "internal:age" for each. Entities with no matching date
// field (Status "no_date_found") are skipped rather than recorded, so
// Ages only ever holds resolvable ages.
func (e *Executor) applyAges(res *Result) {
	if len(res.AllEntities) == 0 {
		return
	}
	now := time.Now()
	for _, n := range res.AllEntities {
		if len(n.Data) == 0 {
			continue
		}
		age := AgeOf(n.Type, n.Data, now)
		if age.Status != "success" {
			continue
		}
		if res.Ages == nil {
			res.Ages = map[string]AgeResult{}
		}
		res.Ages[n.Value] = age
		e.emit("internal:age", map[string]interface{}{
			"entity_type":  age.EntityType,
			"entity_value": n.Value,
			"source_field": age.SourceField,
			"years":        age.Years,
			"months":       age.Months,
			"days":         age.Days,
			"age_string":   age.AgeString,
		})
	}
}

func findAgeDateField(entityType string, data map[string]interface{}) (field, value string) {
	for _, pattern := range ageDateFields[entityType] {
		if f, v, ok := fieldContainingAny(data, []string{pattern}); ok {
			return f, v
		}
	}
	if f, v, ok := fieldContainingAny(data, ageFallbackFields); ok {
		return f, v
	}
	return "", ""
}

func fieldContainingAny(data map[string]interface{}, patterns []string) (field, value string, ok bool) {
	for key, raw := range data {
		lower := strings.ToLower(key)
		for _, pattern := range patterns {
			if strings.Contains(lower, pattern) {
				s := fmt.Sprint(raw)
				if s != "" {
					return key, s, true
				}
			}
		}
	}
	return "", "", false
}

func parseAgeDate(raw string) (time.Time, bool) {
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) > 20 {
		trimmed = trimmed[:20]
	}
	for _, layout := range ageDateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t, true
		}
	}
	if match := embeddedDateRe.FindString(raw); match != "" {
		if t, err := time.Parse("2006-01-02", strings.ReplaceAll(match, "/", "-")); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// calendarDiff computes a calendar-aware years/months/days difference
// between source and reference, matching the source system's
// month-borrow arithmetic.
func calendarDiff(source, reference time.Time) (years, months, days int) {
	years = reference.Year() - source.Year()
	months = int(reference.Month()) - int(source.Month())
	days = reference.Day() - source.Day()

	if days < 0 {
		months--
		days += 30
	}
	if months < 0 {
		years--
		months += 12
	}
	return years, months, days
}

func ageString(entityType string, years, months int) string {
	switch entityType {
	case "person":
		return fmt.Sprintf("%d years old", years)
	case "company":
		if years == 0 {
			return fmt.Sprintf("%d months since incorporation", months)
		}
		return fmt.Sprintf("%d years since incorporation", years)
	case "domain":
		if years == 0 {
			return fmt.Sprintf("%d months since registration", months)
		}
		return fmt.Sprintf("%d years since registration", years)
	default:
		return fmt.Sprintf("%d years, %d months", years, months)
	}
}
