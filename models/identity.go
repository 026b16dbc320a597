package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Chamber identifies which legislative body's portal serves an entity.
type Chamber string

const (
	Senate Chamber = "senate"
	House  Chamber = "house"
)

const (
	senateEarliestYear = 2012
	houseEarliestYear  = 1995
)

var stateCodes = []string{
	"AL", "AK", "AZ", "AR", "CA", "CO", "CT", "DE", "FL", "GA",
	"HI", "ID", "IL", "IN", "IA", "KS", "KY", "LA", "ME", "MD",
	"MA", "MI", "MN", "MS", "MO", "MT", "NE", "NV", "NH", "NJ",
	"NM", "NY", "NC", "ND", "OH", "OK", "OR", "PA", "RI", "SC",
	"SD", "TN", "TX", "UT", "VT", "VA", "WA", "WV", "WI", "WY",
}

// House delegates: the federal district and the territories.
var delegateCodes = []string{"DC", "PR", "GU", "VI", "AS", "MP"}

var (
	senateStates = toSet(stateCodes)
	houseStates  = toSet(append(append([]string{}, stateCodes...), delegateCodes...))
)

func toSet(codes []string) map[string]struct{} {
	m := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		m[c] = struct{}{}
	}
	return m
}

// ParseChamber accepts "senate" or "house" in any case.
func ParseChamber(s string) (Chamber, error) {
	switch Chamber(strings.ToLower(strings.TrimSpace(s))) {
	case Senate:
		return Senate, nil
	case House:
		return House, nil
	}
	return "", fmt.Errorf("%w: unknown chamber %q", ErrInvalidInput, s)
}

// EarliestYear is the first year the chamber's portal has data for.
func (c Chamber) EarliestYear() int {
	if c == Senate {
		return senateEarliestYear
	}
	return houseEarliestYear
}

// ValidState reports whether code is a state the chamber seats members for.
func (c Chamber) ValidState(code string) bool {
	code = strings.ToUpper(strings.TrimSpace(code))
	if c == Senate {
		_, ok := senateStates[code]
		return ok
	}
	_, ok := houseStates[code]
	return ok
}

// Categories lists the categories the chamber's portal can produce.
func (c Chamber) Categories() []Category {
	if c == House {
		return []Category{CategoryTrade, CategoryAnnual, CategoryAmendment, CategoryOther}
	}
	return AllCategories
}

// Allows reports whether cat is one of the chamber's categories.
func (c Chamber) Allows(cat Category) bool {
	for _, allowed := range c.Categories() {
		if allowed == cat {
			return true
		}
	}
	return false
}

// EntityIdentity identifies the member whose disclosures are requested.
// The chamber is part of the identity; it is never inferred.
type EntityIdentity struct {
	Chamber   Chamber
	LastName  string
	FirstName string
	State     string
	District  string
}

// Validate checks the identity against the chamber's rules.
func (e EntityIdentity) Validate() error {
	if e.Chamber != Senate && e.Chamber != House {
		return fmt.Errorf("%w: chamber is required", ErrInvalidInput)
	}
	if strings.TrimSpace(e.LastName) == "" {
		return fmt.Errorf("%w: last name is required", ErrInvalidInput)
	}
	if e.State != "" && !e.Chamber.ValidState(e.State) {
		return fmt.Errorf("%w: invalid state code for %s: %q", ErrInvalidInput, e.Chamber, e.State)
	}
	if e.District != "" {
		if e.Chamber != House {
			return fmt.Errorf("%w: district only applies to the house", ErrInvalidInput)
		}
		n, err := strconv.Atoi(strings.TrimSpace(e.District))
		if err != nil || n < 0 || n > 99 {
			return fmt.Errorf("%w: invalid district %q", ErrInvalidInput, e.District)
		}
	}
	return nil
}

// Normalized returns a copy with trimmed names and an upper-case state.
func (e EntityIdentity) Normalized() EntityIdentity {
	out := EntityIdentity{
		Chamber:   e.Chamber,
		LastName:  strings.TrimSpace(e.LastName),
		FirstName: strings.TrimSpace(e.FirstName),
		State:     strings.ToUpper(strings.TrimSpace(e.State)),
		District:  strings.TrimSpace(e.District),
	}
	if n, err := strconv.Atoi(out.District); err == nil {
		out.District = strconv.Itoa(n)
	}
	return out
}

// Key is the normalized form used as the cache key's entity component.
func (e EntityIdentity) Key() string {
	n := e.Normalized()
	return strings.Join([]string{
		string(n.Chamber),
		strings.ToUpper(n.LastName),
		strings.ToUpper(n.FirstName),
		n.State,
		n.District,
	}, "|")
}

func (e EntityIdentity) String() string {
	n := e.Normalized()
	name := n.LastName
	if n.FirstName != "" {
		name = n.FirstName + " " + n.LastName
	}
	switch {
	case n.State != "" && n.District != "":
		return fmt.Sprintf("%s (%s-%s)", name, n.State, n.District)
	case n.State != "":
		return fmt.Sprintf("%s (%s)", name, n.State)
	}
	return name
}

// ValidateYear checks year against the chamber's coverage and the current date.
func ValidateYear(c Chamber, year int, now time.Time) error {
	if year < 1000 || year > 9999 {
		return fmt.Errorf("%w: invalid year format: %d", ErrInvalidInput, year)
	}
	if year > now.Year() {
		return fmt.Errorf("%w: year cannot be in the future: %d", ErrInvalidInput, year)
	}
	if year < c.EarliestYear() {
		return fmt.Errorf("%w: %s disclosures are only available from %d onwards", ErrInvalidInput, c, c.EarliestYear())
	}
	return nil
}

// Filings for a year keep arriving until this day of the following year.
const (
	graceMonth = time.February
	graceDay   = 15
)

// ReportingWindow returns the filing-date range that makes up a year's
// reporting: January 1 of year through the grace cutoff in the following
// year, capped at now.
func ReportingWindow(year int, now time.Time) (from, to time.Time) {
	loc := now.Location()
	from = time.Date(year, time.January, 1, 0, 0, 0, 0, loc)
	to = time.Date(year+1, graceMonth, graceDay, 0, 0, 0, 0, loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	if to.After(today) {
		to = today
	}
	return from, to
}
