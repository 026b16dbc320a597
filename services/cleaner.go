package services

import (
	"strings"
	"time"
	"unicode"

	"github.com/TheWillMundy/CapitolGains/models"
	"github.com/TheWillMundy/CapitolGains/utils"
)

// Portal date formats, most specific first. House rows only carry a year.
var dateLayouts = []string{"01/02/2006", "1/2/2006", "2006-01-02", "2006"}

// Cleaner turns raw portal rows into categorized disclosures.
type Cleaner struct {
	logger *utils.Logger
}

// NewCleaner creates a Cleaner with the given logger.
func NewCleaner(logger *utils.Logger) *Cleaner {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &Cleaner{logger: logger}
}

// Clean keeps the rows filed by id, drops rows without a document or with
// one already seen, and files each remaining row under its category.
func (c *Cleaner) Clean(id models.EntityIdentity, rows []models.RawRow) models.CategorizedResult {
	id = id.Normalized()
	result := models.NewCategorizedResult(id.Chamber)
	seen := utils.NewURLSet()
	kept := 0

	for _, r := range rows {
		if !matchesEntity(id, r) {
			c.logger.Debug("[cleaner] Skipping filing by %q: not %s", r.FilerName, id)
			continue
		}
		if len(r.Documents) == 0 || strings.TrimSpace(r.Documents[0].URL) == "" {
			c.logger.Warn("[cleaner] Dropping %q filing without document link", r.ReportType)
			continue
		}
		doc := r.Documents[0]
		url := strings.TrimSpace(doc.URL)
		if !seen.Add(url) {
			c.logger.Debug("[cleaner] Duplicate document skipped: %s", url)
			continue
		}

		reportType := normaliseText(r.ReportType)
		d := models.Disclosure{
			Category:     CategorizeFor(id.Chamber, reportType),
			FilerName:    normaliseText(r.FilerName),
			Date:         c.parseDate(r.Date),
			DocumentURL:  url,
			DocumentType: doc.Type,
			Office:       normaliseText(r.Office),
			ReportType:   reportType,
			Chamber:      id.Chamber,
		}
		result[d.Category] = append(result[d.Category], d)
		kept++
	}

	c.logger.Info("[cleaner] Cleaned %d → %d disclosures (dropped %d)",
		len(rows), kept, len(rows)-kept)
	return result
}

// matchesEntity reports whether a row belongs to id. Portals match on last
// name only, so namesakes are removed here.
func matchesEntity(id models.EntityIdentity, r models.RawRow) bool {
	last := normaliseText(r.LastName)
	if last != "" {
		if !strings.EqualFold(last, id.LastName) {
			return false
		}
	} else if !strings.Contains(strings.ToLower(r.FilerName), strings.ToLower(id.LastName)) {
		return false
	}

	first := strings.ToLower(normaliseText(r.FirstName))
	want := strings.ToLower(id.FirstName)
	if want == "" || first == "" {
		return true
	}
	return strings.HasPrefix(first, want) || strings.HasPrefix(want, first)
}

// parseDate reads a portal date. Unparseable dates become the zero time.
func (c *Cleaner) parseDate(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	c.logger.Warn("[cleaner] Unrecognised filing date %q", raw)
	return time.Time{}
}

// normaliseText strips leading/trailing whitespace and collapses internal whitespace.
func normaliseText(s string) string {
	s = strings.TrimSpace(s)
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r)
	})
	return strings.Join(fields, " ")
}
