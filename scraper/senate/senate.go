// Package senate navigates the agreement-gated Senate eFD search portal.
package senate

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/TheWillMundy/CapitolGains/fetcher"
	"github.com/TheWillMundy/CapitolGains/models"
	"github.com/TheWillMundy/CapitolGains/scraper"
	"github.com/TheWillMundy/CapitolGains/scraper/browser"
	"github.com/TheWillMundy/CapitolGains/utils"
)

const (
	BaseURL    = "https://efdsearch.senate.gov"
	homePath   = "/search/home/"
	searchPath = "/search/"
	name       = "senate"

	agreementForm  = "#agreement_form"
	agreeCheckbox  = "#agree_statement"
	searchForm     = "#searchForm"
	submitButton   = `#searchForm button[type="submit"]`
	printLink      = `a[href*="/print/"]`
	reportTable    = "#reportDataTable"
	portalDateForm = "01/02/2006"
)

// Report-type checkbox values on the search form.
var reportTypeValues = map[models.Category]string{
	models.CategoryAnnual:     "7",
	models.CategoryTrade:      "11",
	models.CategoryExtension:  "10",
	models.CategoryBlindTrust: "14",
	models.CategoryOther:      "15",
}

// Navigator drives one browser session through the Senate portal. It
// remembers that the usage agreement was accepted for the lifetime of that
// session. A Navigator is not safe for concurrent use.
type Navigator struct {
	baseURL string
	opts    browser.Options
	logger  *utils.Logger

	page     browser.Page
	session  *browser.Session
	accepted bool
	machine  *scraper.Machine
}

// New creates a Navigator that starts its browser on first use.
func New(opts browser.Options, logger *utils.Logger) *Navigator {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	if opts.Logger == nil {
		opts.Logger = logger
	}
	return &Navigator{
		baseURL: BaseURL,
		opts:    opts,
		logger:  logger,
		machine: scraper.NewMachine(name, logger),
	}
}

// NewWithPage creates a Navigator over an already open page.
func NewWithPage(page browser.Page, baseURL string, logger *utils.Logger) *Navigator {
	n := New(browser.Options{}, logger)
	n.page = page
	if baseURL != "" {
		n.baseURL = strings.TrimRight(baseURL, "/")
	}
	return n
}

func (n *Navigator) Chamber() models.Chamber { return models.Senate }

// State returns where the last search stopped.
func (n *Navigator) State() scraper.State { return n.machine.State() }

// History returns the states the last search went through.
func (n *Navigator) History() []scraper.State { return n.machine.History() }

// Close releases the browser session. The agreement must be accepted again
// by the next session.
func (n *Navigator) Close() error {
	n.accepted = false
	if n.session == nil {
		return nil
	}
	err := n.session.Close()
	n.session, n.page = nil, nil
	return err
}

func (n *Navigator) ensurePage(ctx context.Context) error {
	if n.page != nil {
		return nil
	}
	s, err := browser.Acquire(ctx, n.opts)
	if err != nil {
		return err
	}
	n.session, n.page = s, s
	n.accepted = false
	return nil
}

// Search runs one pass of the portal flow for q and returns the raw rows
// of every results page. Callers retry transient failures; every pass
// starts over and skips the agreement once it has been accepted.
func (n *Navigator) Search(ctx context.Context, q models.SearchQuery) ([]models.RawRow, error) {
	if err := n.ensurePage(ctx); err != nil {
		return nil, err
	}
	n.machine.Restart()
	id := q.Identity.Normalized()
	n.logger.Info("[senate] Searching %s for %d (%s to %s)",
		id, q.Year, q.From.Format(portalDateForm), q.To.Format(portalDateForm))

	if err := n.ensureAgreement(ctx); err != nil {
		return nil, err
	}
	if err := n.fillForm(ctx, id, q); err != nil {
		return nil, err
	}

	if err := n.machine.Enter(scraper.StateSubmitted); err != nil {
		return nil, err
	}
	if err := n.page.Click(ctx, submitButton); err != nil {
		return nil, err
	}

	table := n.table(q.IncludeCandidates)
	if err := scraper.WaitForResults(ctx, n.page, table); err != nil {
		if errors.Is(err, models.ErrNoResults) {
			_ = n.machine.Enter(scraper.StateDone)
			n.logger.Info("[senate] No results for %s in %d", id, q.Year)
		}
		return nil, err
	}

	rows, err := scraper.Paginate(ctx, n.page, table, n.machine)
	if err != nil {
		return nil, err
	}
	n.logger.Info("[senate] Found %d filings for %s across %d pages", len(rows), id, n.machine.Progress.Page)
	return rows, nil
}

// ensureAgreement gets the page onto the search form, accepting the usage
// agreement if the portal asks for it.
func (n *Navigator) ensureAgreement(ctx context.Context) error {
	if n.accepted {
		if err := n.page.Navigate(ctx, n.baseURL+searchPath); err != nil {
			return err
		}
		if err := n.page.WaitReady(ctx, "body"); err != nil {
			return err
		}
		gate, err := n.page.Exists(ctx, agreementForm)
		if err != nil {
			return err
		}
		if !gate {
			return nil
		}
		n.logger.Warn("[senate] Agreement gate reappeared, accepting again")
		n.accepted = false
	}

	if err := n.machine.Enter(scraper.StateAgreementCheck); err != nil {
		return err
	}
	if err := n.page.Navigate(ctx, n.baseURL+homePath); err != nil {
		return err
	}
	if err := n.page.WaitReady(ctx, "body"); err != nil {
		return err
	}
	gate, err := n.page.Exists(ctx, agreementForm)
	if err != nil {
		return err
	}
	if gate {
		if err := n.machine.Enter(scraper.StateAgreementPending); err != nil {
			return err
		}
		n.logger.Debug("[senate] Accepting usage agreement")
		if err := n.page.Click(ctx, agreeCheckbox); err != nil {
			return err
		}
	}
	if err := n.page.WaitVisible(ctx, searchForm); err != nil {
		return err
	}
	if err := n.machine.Enter(scraper.StateAgreementAccepted); err != nil {
		return err
	}
	n.accepted = true
	return nil
}

func (n *Navigator) fillForm(ctx context.Context, id models.EntityIdentity, q models.SearchQuery) error {
	if err := n.machine.Enter(scraper.StateFormFilled); err != nil {
		return err
	}
	if err := n.page.WaitVisible(ctx, searchForm); err != nil {
		return err
	}
	if err := n.page.Fill(ctx, "#lastName", id.LastName); err != nil {
		return err
	}
	if id.FirstName != "" {
		if err := n.page.Fill(ctx, "#firstName", id.FirstName); err != nil {
			return err
		}
	}
	if err := n.page.Check(ctx, "input.senator_filer", true); err != nil {
		return err
	}
	if id.State != "" {
		if err := n.page.Select(ctx, "#senatorFilerState", id.State); err != nil {
			return err
		}
	}
	for _, cat := range q.ReportTypes {
		value, ok := reportTypeValues[cat]
		if !ok {
			n.logger.Debug("[senate] No report-type filter for %s, searching all types", cat)
			continue
		}
		sel := fmt.Sprintf(`input[name="report_type"][value="%s"]`, value)
		if err := n.page.Check(ctx, sel, true); err != nil {
			return err
		}
	}
	if !q.From.IsZero() {
		if err := n.page.Fill(ctx, "#fromDate", q.From.Format(portalDateForm)); err != nil {
			return err
		}
	}
	if !q.To.IsZero() {
		if err := n.page.Fill(ctx, "#toDate", q.To.Format(portalDateForm)); err != nil {
			return err
		}
	}
	return nil
}

func (n *Navigator) table(includeCandidates bool) scraper.Table {
	return scraper.Table{
		Selector:   "#filedReports",
		Info:       "#filedReports_info",
		Next:       "#filedReports_next",
		Processing: "#filedReports_processing",
		Empty:      "td.dataTables_empty",
		Message:    ".alert-info",
		ParseRow: func(tr *goquery.Selection) (models.RawRow, bool) {
			return n.parseRow(tr, includeCandidates)
		},
	}
}

// parseRow reads a five-cell result row: first name, last name, office,
// report link and filing date.
func (n *Navigator) parseRow(tr *goquery.Selection, includeCandidates bool) (models.RawRow, bool) {
	cells := tr.Find("td")
	if cells.Length() < 5 {
		n.logger.Warn("[senate] Skipping row with %d cells", cells.Length())
		return models.RawRow{}, false
	}
	link := cells.Eq(3).Find("a").First()
	href, ok := link.Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		n.logger.Warn("[senate] Skipping row without report link")
		return models.RawRow{}, false
	}

	reportType := strings.TrimSpace(cells.Eq(3).Text())
	if !includeCandidates && strings.Contains(strings.ToLower(reportType), "candidate") {
		return models.RawRow{}, false
	}

	docType := models.DocumentWeb
	if strings.Contains(href, "/paper/") {
		docType = models.DocumentPaper
	}

	first := strings.TrimSpace(cells.Eq(0).Text())
	last := strings.TrimSpace(cells.Eq(1).Text())
	return models.RawRow{
		FilerName:  strings.TrimSpace(first + " " + last),
		FirstName:  first,
		LastName:   last,
		Office:     strings.TrimSpace(cells.Eq(2).Text()),
		ReportType: reportType,
		Date:       strings.TrimSpace(cells.Eq(4).Text()),
		Documents:  []models.DocumentRef{{URL: n.resolve(href), Type: docType}},
	}, true
}

func (n *Navigator) resolve(href string) string {
	base, err := url.Parse(n.baseURL + "/")
	if err != nil {
		return href
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// RenderDocument opens an electronic or paper filing behind the agreement
// gate and prints it to a PDF in destDir. The printer-friendly view is used
// when the report offers one.
func (n *Navigator) RenderDocument(ctx context.Context, docURL, destDir string) (string, error) {
	n.logger.Info("[senate] Rendering %s", docURL)
	if err := n.openReport(ctx, docURL); err != nil {
		return "", err
	}

	printable, err := n.page.Exists(ctx, printLink)
	if err != nil {
		return "", err
	}
	if printable {
		n.logger.Debug("[senate] Using printer-friendly view")
		if err := n.page.Click(ctx, printLink); err != nil {
			return "", err
		}
		if err := n.page.WaitReady(ctx, "body"); err != nil {
			return "", err
		}
	}

	pdf, err := n.page.PrintPDF(ctx)
	if err != nil {
		return "", err
	}
	return fetcher.Save(destDir, documentName(docURL), pdf)
}

// openReport loads a report page behind the agreement gate.
func (n *Navigator) openReport(ctx context.Context, docURL string) error {
	if err := n.ensurePage(ctx); err != nil {
		return err
	}
	n.machine.Restart()
	if err := n.ensureAgreement(ctx); err != nil {
		return err
	}
	if err := n.page.Navigate(ctx, docURL); err != nil {
		return err
	}
	if err := n.page.WaitReady(ctx, "body"); err != nil {
		return err
	}
	gate, err := n.page.Exists(ctx, agreementForm)
	if err != nil {
		return err
	}
	if gate {
		n.accepted = false
		return models.Transient("senate: open report", fmt.Errorf("agreement gate shown for %s", docURL))
	}
	return nil
}

// ReportTables reads the data tables of an electronically filed report.
// Paper filings carry no tables and yield models.ErrNoResults.
func (n *Navigator) ReportTables(ctx context.Context, docURL string) ([]models.ReportTable, error) {
	n.logger.Info("[senate] Reading tables of %s", docURL)
	if err := n.openReport(ctx, docURL); err != nil {
		return nil, err
	}
	found, err := n.page.Exists(ctx, reportTable)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s has no data tables", models.ErrNoResults, docURL)
	}
	html, err := n.page.OuterHTML(ctx, "body")
	if err != nil {
		return nil, err
	}
	return parseReportTables(html)
}

func parseReportTables(html string) ([]models.ReportTable, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("senate: parse report: %w", err)
	}
	var tables []models.ReportTable
	doc.Find("table" + reportTable).Each(func(_ int, tbl *goquery.Selection) {
		var t models.ReportTable
		tbl.Find("thead th").Each(func(_ int, th *goquery.Selection) {
			t.Headers = append(t.Headers, strings.ToLower(strings.TrimSpace(th.Text())))
		})
		tbl.Find("tbody tr").Each(func(_ int, tr *goquery.Selection) {
			row := make(map[string]string, len(t.Headers))
			tr.Find("td").Each(func(i int, td *goquery.Selection) {
				if i < len(t.Headers) {
					row[t.Headers[i]] = strings.Join(strings.Fields(td.Text()), " ")
				}
			})
			if len(row) > 0 {
				t.Rows = append(t.Rows, row)
			}
		})
		tables = append(tables, t)
	})
	return tables, nil
}

// documentName derives a stable file name from a report URL, e.g.
// /search/view/ptr/abc-123/ becomes ptr_abc-123.pdf.
func documentName(docURL string) string {
	u, err := url.Parse(docURL)
	p := docURL
	if err == nil {
		p = u.Path
	}
	p = strings.Trim(p, "/")
	parts := strings.Split(p, "/")
	if len(parts) >= 2 {
		parts = parts[len(parts)-2:]
	}
	base := strings.Join(parts, "_")
	if base == "" {
		base = path.Base(p)
	}
	return base + ".pdf"
}
