package services

import (
	"regexp"
	"strings"

	"github.com/TheWillMundy/CapitolGains/models"
)

// Rules are checked in order; the first match wins. Amended trade reports
// stay trades, so the trade rule comes before the amendment rule.
var categoryRules = []struct {
	category models.Category
	pattern  *regexp.Regexp
}{
	{models.CategoryTrade, regexp.MustCompile(`\bptr\b|periodic transaction`)},
	{models.CategoryAmendment, regexp.MustCompile(`\bamend(ment|ed)?\b`)},
	{models.CategoryBlindTrust, regexp.MustCompile(`blind trust`)},
	{models.CategoryExtension, regexp.MustCompile(`\bextension\b`)},
	{models.CategoryNewFiler, regexp.MustCompile(`new filer`)},
	{models.CategoryTermination, regexp.MustCompile(`\btermination\b`)},
	{models.CategoryAnnual, regexp.MustCompile(`\bannual\b|^fd\b`)},
}

// Categorize maps a portal's report-type label onto a canonical category.
// It is case-insensitive, deterministic and total: labels it does not
// recognise become CategoryOther.
func Categorize(raw string) models.Category {
	label := strings.ToLower(strings.Join(strings.Fields(raw), " "))
	for _, rule := range categoryRules {
		if rule.pattern.MatchString(label) {
			return rule.category
		}
	}
	return models.CategoryOther
}

// CategorizeFor categorizes raw for a chamber, folding categories the
// chamber's portal does not produce into CategoryOther.
func CategorizeFor(c models.Chamber, raw string) models.Category {
	cat := Categorize(raw)
	if !c.Allows(cat) {
		return models.CategoryOther
	}
	return cat
}
