package models

import "time"

// Category is the canonical kind of a disclosure filing.
type Category string

const (
	CategoryTrade       Category = "trade"
	CategoryAnnual      Category = "annual"
	CategoryAmendment   Category = "amendment"
	CategoryBlindTrust  Category = "blind_trust"
	CategoryExtension   Category = "extension"
	CategoryNewFiler    Category = "new_filer"
	CategoryTermination Category = "termination"
	CategoryOther       Category = "other"
)

// AllCategories lists every canonical category in display order.
var AllCategories = []Category{
	CategoryTrade,
	CategoryAnnual,
	CategoryAmendment,
	CategoryBlindTrust,
	CategoryExtension,
	CategoryNewFiler,
	CategoryTermination,
	CategoryOther,
}

// DocumentType describes how a filing's source document is served.
type DocumentType string

const (
	// DocumentPDF is a static PDF reachable with a plain HTTP GET.
	DocumentPDF DocumentType = "pdf"
	// DocumentWeb is an electronically filed report rendered as an HTML page.
	DocumentWeb DocumentType = "web"
	// DocumentPaper is a scanned paper filing shown as page images.
	DocumentPaper DocumentType = "paper"
)

// DocumentRef points at one source document attached to a result row.
type DocumentRef struct {
	URL  string
	Type DocumentType
}

// RawRow holds one unprocessed record read from a portal's results table.
// Nothing is normalized yet; rows only live for a single navigation pass.
type RawRow struct {
	FilerName  string
	FirstName  string
	LastName   string
	Office     string
	ReportType string
	Date       string
	Documents  []DocumentRef
}

// Disclosure is the normalized, categorized record returned to callers.
type Disclosure struct {
	Category     Category
	FilerName    string
	Date         time.Time
	DocumentURL  string
	DocumentType DocumentType
	Office       string
	ReportType   string
	Chamber      Chamber
}

// ReportTable is one data table of an electronically filed report. Each
// row maps a lower-cased column header to the cell text.
type ReportTable struct {
	Headers []string
	Rows    []map[string]string
}

// CategorizedResult maps each category to its disclosures in portal order.
type CategorizedResult map[Category][]Disclosure

// NewCategorizedResult returns an empty result holding every category the
// chamber can produce, so callers can index it without nil checks.
func NewCategorizedResult(c Chamber) CategorizedResult {
	r := make(CategorizedResult)
	for _, cat := range c.Categories() {
		r[cat] = []Disclosure{}
	}
	return r
}

// Trades returns the periodic transaction reports.
func (r CategorizedResult) Trades() []Disclosure {
	return r[CategoryTrade]
}

// Total counts disclosures across all categories.
func (r CategorizedResult) Total() int {
	n := 0
	for _, ds := range r {
		n += len(ds)
	}
	return n
}

// Clone returns a deep copy so callers cannot alter a cached result.
func (r CategorizedResult) Clone() CategorizedResult {
	out := make(CategorizedResult, len(r))
	for cat, ds := range r {
		out[cat] = append([]Disclosure{}, ds...)
	}
	return out
}

// All flattens the result in AllCategories order.
func (r CategorizedResult) All() []Disclosure {
	out := make([]Disclosure, 0, r.Total())
	for _, cat := range AllCategories {
		out = append(out, r[cat]...)
	}
	return out
}

// SearchQuery is what a portal navigator needs to run one search.
type SearchQuery struct {
	Identity EntityIdentity
	Year     int
	From     time.Time
	To       time.Time
	// ReportTypes narrows the portal search. Empty means every type.
	ReportTypes       []Category
	IncludeCandidates bool
}

// DisclosureReport holds the summary computed over one or more results.
type DisclosureReport struct {
	TotalDisclosures int
	ByCategory       map[Category]int
	ByFiler          map[string]int
	LatestTrade      *Disclosure
	EarliestFiling   *Disclosure
	RecentTrades     []Disclosure
}
