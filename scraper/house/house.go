// Package house navigates the House Clerk financial disclosure search.
package house

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/TheWillMundy/CapitolGains/models"
	"github.com/TheWillMundy/CapitolGains/scraper"
	"github.com/TheWillMundy/CapitolGains/scraper/browser"
	"github.com/TheWillMundy/CapitolGains/utils"
)

const (
	BaseURL    = "https://disclosures-clerk.house.gov"
	searchPath = "/FinancialDisclosure#Search"
	homePath   = "/FinancialDisclosure"
	name       = "house"

	searchTab    = `a[href="#Search"]`
	searchForm   = "#searchForm"
	submitButton = `#searchForm button[type="submit"]`
	downloads    = "div.panel.library-panel#download"
)

// DataTables numbers its generated ids per page load, so the controls are
// matched by prefix rather than by a fixed index.
var resultsTable = scraper.Table{
	Selector:   "table.library-table.dataTable",
	Info:       `[id^="DataTables_Table_"][id$="_info"]`,
	Next:       `[id^="DataTables_Table_"][id$="_next"]`,
	Processing: `[id^="DataTables_Table_"][id$="_processing"]`,
	Empty:      "td.dataTables_empty",
}

// Navigator drives one browser session through the House portal. The
// results table is public, so every search goes straight to the form.
type Navigator struct {
	baseURL string
	opts    browser.Options
	logger  *utils.Logger

	page    browser.Page
	session *browser.Session
	machine *scraper.Machine
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

func (n *Navigator) Chamber() models.Chamber { return models.House }

// State returns where the last search stopped.
func (n *Navigator) State() scraper.State { return n.machine.State() }

// History returns the states the last search went through.
func (n *Navigator) History() []scraper.State { return n.machine.History() }

// Close releases the browser session.
func (n *Navigator) Close() error {
	if n.session == nil {
		return nil
	}
	err := n.session.Close()
	n.session, n.page = nil, nil
	return err
}

// Search runs one pass of the portal flow for q. The House form filters by
// filing year, so q.From and q.To are not sent.
func (n *Navigator) Search(ctx context.Context, q models.SearchQuery) ([]models.RawRow, error) {
	if err := n.ensurePage(ctx); err != nil {
		return nil, err
	}
	n.machine.Restart()
	id := q.Identity.Normalized()
	n.logger.Info("[house] Searching %s for filing year %d", id, q.Year)

	if err := n.openSearch(ctx); err != nil {
		return nil, err
	}
	if err := n.fillForm(ctx, id, q.Year); err != nil {
		return nil, err
	}

	if err := n.machine.Enter(scraper.StateSubmitted); err != nil {
		return nil, err
	}
	if err := n.page.Click(ctx, submitButton); err != nil {
		return nil, err
	}

	table := resultsTable
	table.ParseRow = n.parseRow
	if err := scraper.WaitForResults(ctx, n.page, table); err != nil {
		if errors.Is(err, models.ErrNoResults) {
			_ = n.machine.Enter(scraper.StateDone)
			n.logger.Info("[house] No results for %s in %d", id, q.Year)
		}
		return nil, err
	}

	rows, err := scraper.Paginate(ctx, n.page, table, n.machine)
	if err != nil {
		return nil, err
	}
	n.logger.Info("[house] Found %d filings for %s across %d pages", len(rows), id, n.machine.Progress.Page)
	return rows, nil
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
	return nil
}

// ArchiveFetcher downloads a ZIP archive over HTTP.
type ArchiveFetcher interface {
	DownloadArchive(ctx context.Context, archiveURL, destDir, name string) (string, error)
}

// AvailableYears lists the years offered as bulk archives, newest first.
func (n *Navigator) AvailableYears(ctx context.Context) ([]int, error) {
	links, err := n.yearArchives(ctx)
	if err != nil {
		return nil, err
	}
	years := make([]int, 0, len(links))
	for y := range links {
		years = append(years, y)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(years)))
	return years, nil
}

// DownloadYearArchive saves the bulk archive of every filing made in year
// as destDir/<year>FD.zip. A year the portal does not offer yields
// models.ErrNoResults.
func (n *Navigator) DownloadYearArchive(ctx context.Context, year int, destDir string, f ArchiveFetcher) (string, error) {
	links, err := n.yearArchives(ctx)
	if err != nil {
		return "", err
	}
	href, ok := links[year]
	if !ok {
		return "", fmt.Errorf("%w: no archive offered for %d", models.ErrNoResults, year)
	}
	n.logger.Info("[house] Downloading %d archive from %s", year, href)
	return f.DownloadArchive(ctx, href, destDir, fmt.Sprintf("%dFD.zip", year))
}

// yearArchives reads the download panel into year -> absolute archive URL.
func (n *Navigator) yearArchives(ctx context.Context) (map[int]string, error) {
	if err := n.ensurePage(ctx); err != nil {
		return nil, err
	}
	if err := n.page.Navigate(ctx, n.baseURL+homePath); err != nil {
		return nil, err
	}
	if err := n.page.WaitVisible(ctx, downloads); err != nil {
		return nil, err
	}
	html, err := n.page.OuterHTML(ctx, downloads)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("house: parse downloads: %w", err)
	}

	links := make(map[int]string)
	doc.Find("div.col-md-12 a").Each(func(_ int, a *goquery.Selection) {
		year, err := strconv.Atoi(strings.TrimSpace(a.Text()))
		href, ok := a.Attr("href")
		if err != nil || !ok || strings.TrimSpace(href) == "" {
			return
		}
		links[year] = n.resolve(strings.TrimSpace(href))
	})
	if len(links) == 0 {
		return nil, models.Transient("house: downloads", errors.New("no year archives listed"))
	}
	return links, nil
}

func (n *Navigator) openSearch(ctx context.Context) error {
	if err := n.page.Navigate(ctx, n.baseURL+searchPath); err != nil {
		return err
	}
	if err := n.page.WaitReady(ctx, "body"); err != nil {
		return err
	}
	tab, err := n.page.Exists(ctx, searchTab)
	if err != nil {
		return err
	}
	if tab {
		if err := n.page.Click(ctx, searchTab); err != nil {
			return err
		}
	}
	return n.page.WaitVisible(ctx, searchForm)
}

func (n *Navigator) fillForm(ctx context.Context, id models.EntityIdentity, year int) error {
	if err := n.machine.Enter(scraper.StateFormFilled); err != nil {
		return err
	}
	if err := n.page.Fill(ctx, "#LastName", id.LastName); err != nil {
		return err
	}
	if err := n.page.Select(ctx, "#FilingYear", strconv.Itoa(year)); err != nil {
		return err
	}
	if id.State != "" {
		if err := n.page.Select(ctx, "#State", id.State); err != nil {
			return err
		}
	}
	if id.District != "" {
		if err := n.page.Fill(ctx, "#District", id.District); err != nil {
			return err
		}
	}
	return nil
}

// parseRow reads the labelled cells of a result row. The filing's PDF is
// linked from the name cell.
func (n *Navigator) parseRow(tr *goquery.Selection) (models.RawRow, bool) {
	cell := func(label string) *goquery.Selection {
		return tr.Find(`td[data-label="` + label + `"]`).First()
	}
	nameCell := cell("Name")
	href, _ := nameCell.Find("a").First().Attr("href")
	href = strings.TrimSpace(href)

	filerName := strings.TrimSpace(nameCell.Text())
	office := strings.TrimSpace(cell("Office").Text())
	year := strings.TrimSpace(cell("Filing Year").Text())
	filing := strings.TrimSpace(cell("Filing").Text())
	if href == "" || filerName == "" || office == "" || year == "" || filing == "" {
		n.logger.Warn("[house] Skipping incomplete row %q", filerName)
		return models.RawRow{}, false
	}

	last, first := splitName(filerName)
	return models.RawRow{
		FilerName:  filerName,
		FirstName:  first,
		LastName:   last,
		Office:     office,
		ReportType: filing,
		Date:       year,
		Documents:  []models.DocumentRef{{URL: n.resolve(href), Type: models.DocumentPDF}},
	}, true
}

func (n *Navigator) resolve(href string) string {
	base, err := url.Parse(n.baseURL + "/")
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// splitName splits "Pelosi, Hon. Nancy" into last and first name.
func splitName(s string) (last, first string) {
	last, first, ok := strings.Cut(s, ",")
	if !ok {
		return strings.TrimSpace(s), ""
	}
	first = strings.TrimSpace(first)
	for _, honorific := range []string{"Hon.", "Mr.", "Mrs.", "Ms.", "Dr."} {
		first = strings.TrimSpace(strings.TrimPrefix(first, honorific))
	}
	return strings.TrimSpace(last), first
}
