package house

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/TheWillMundy/CapitolGains/models"
	"github.com/TheWillMundy/CapitolGains/scraper"
	"github.com/TheWillMundy/CapitolGains/scraper/browser/browsertest"
)

func houseRow(name, href, office, year, filing string) string {
	return fmt.Sprintf(`<td data-label="Name"><a href="%s" target="_blank">%s</a></td>`+
		`<td data-label="Office">%s</td><td data-label="Filing Year">%s</td><td data-label="Filing">%s</td>`,
		href, name, office, year, filing)
}

func newPortal(rows []string, pageSize int) *browsertest.Page {
	page := browsertest.New()
	page.OnNavigate = func(p *browsertest.Page, url string) error {
		p.Show("body", searchTab)
		return nil
	}
	page.OnClick[searchTab] = func(p *browsertest.Page) error {
		p.Show(searchForm)
		return nil
	}
	page.OnClick[submitButton] = func(p *browsertest.Page) error {
		g := &browsertest.Grid{
			Table:    resultsTable.Selector,
			Info:     resultsTable.Info,
			Next:     resultsTable.Next,
			Rows:     rows,
			PageSize: pageSize,
		}
		g.Install(p)
		return nil
	}
	return page
}

func pelosiQuery() models.SearchQuery {
	return models.SearchQuery{
		Identity: models.EntityIdentity{Chamber: models.House, LastName: "Pelosi", State: "CA", District: "11"},
		Year:     2023,
	}
}

func TestSearchPaginatesAllRows(t *testing.T) {
	var rows []string
	for i := 0; i < 27; i++ {
		rows = append(rows, houseRow("Pelosi, Hon. Nancy",
			fmt.Sprintf("public_disc/ptr-pdfs/2023/200%02d.pdf", i), "CA11", "2023", "PTR Original"))
	}
	page := newPortal(rows, 10)
	nav := NewWithPage(page, "", nil)

	got, err := nav.Search(context.Background(), pelosiQuery())
	require.NoError(t, err)
	require.Len(t, got, 27)
	require.Equal(t, 3, page.Reads(resultsTable.Selector))
	require.Equal(t, scraper.StateDone, nav.State())
	require.Equal(t, []scraper.State{
		scraper.StateStart,
		scraper.StateFormFilled,
		scraper.StateSubmitted,
		scraper.StateResultsPage,
		scraper.StateResultsPage,
		scraper.StateResultsPage,
		scraper.StateDone,
	}, nav.History())

	first := got[0]
	require.Equal(t, "Pelosi", first.LastName)
	require.Equal(t, "Nancy", first.FirstName)
	require.Equal(t, "PTR Original", first.ReportType)
	require.Equal(t, "2023", first.Date)
	require.Equal(t, []models.DocumentRef{{
		URL:  "https://disclosures-clerk.house.gov/public_disc/ptr-pdfs/2023/20000.pdf",
		Type: models.DocumentPDF,
	}}, first.Documents)
}

func TestSearchFillsForm(t *testing.T) {
	page := newPortal([]string{houseRow("Pelosi, Hon. Nancy", "public_disc/financial-pdfs/2023/1.pdf", "CA11", "2023", "FD Original")}, 10)
	nav := NewWithPage(page, "", nil)

	_, err := nav.Search(context.Background(), pelosiQuery())
	require.NoError(t, err)
	require.Equal(t, "Pelosi", page.Value("#LastName"))
	require.Equal(t, "2023", page.Value("#FilingYear"))
	require.Equal(t, "CA", page.Value("#State"))
	require.Equal(t, "11", page.Value("#District"))
	require.Equal(t, 1, page.ClickCount(searchTab))
}

func TestSearchSkipsIncompleteRows(t *testing.T) {
	page := newPortal([]string{
		houseRow("Pelosi, Hon. Nancy", "public_disc/ptr-pdfs/2023/1.pdf", "CA11", "2023", "PTR Original"),
		houseRow("Pelosi, Hon. Nancy", "", "CA11", "2023", "PTR Original"),
		`<td data-label="Name">Pelosi, Hon. Nancy</td>`,
	}, 10)
	nav := NewWithPage(page, "", nil)

	got, err := nav.Search(context.Background(), pelosiQuery())
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestSearchWithoutProcessingOverlay(t *testing.T) {
	page := newPortal([]string{houseRow("Pelosi, Hon. Nancy", "public_disc/ptr-pdfs/2023/1.pdf", "CA11", "2023", "PTR Original")}, 10)
	page.WaitTimeout = 5 * time.Second
	nav := NewWithPage(page, "", nil)

	start := time.Now()
	got, err := nav.Search(context.Background(), pelosiQuery())
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Less(t, time.Since(start), time.Second, "an overlay that never renders must not stall the search")
}

func TestSearchNoResults(t *testing.T) {
	nav := NewWithPage(newPortal(nil, 10), "", nil)
	_, err := nav.Search(context.Background(), pelosiQuery())
	require.True(t, errors.Is(err, models.ErrNoResults), "got %v", err)
}

const downloadPanel = `<div class="panel library-panel" id="download"><div class="panel-body">
<div class="col-md-12"><h2>DOWNLOAD FINANCIAL DISCLOSURE REPORTS BY YEAR</h2>
<a href="public_disc/financial-pdfs/2022FD.zip">2022</a>
<a href="/public_disc/financial-pdfs/2024FD.zip"> 2024 </a>
<a href="public_disc/financial-pdfs/2023FD.zip">2023</a>
<a href="/help">Help</a>
</div></div></div>`

type archiveCall struct{ url, dir, name string }

type recordingFetcher struct{ calls []archiveCall }

func (f *recordingFetcher) DownloadArchive(ctx context.Context, archiveURL, destDir, name string) (string, error) {
	f.calls = append(f.calls, archiveCall{archiveURL, destDir, name})
	return destDir + "/" + name, nil
}

func downloadsPortal() *browsertest.Page {
	page := browsertest.New()
	page.OnNavigate = func(p *browsertest.Page, url string) error {
		if url == BaseURL+homePath {
			p.SetHTML(downloads, downloadPanel)
		}
		return nil
	}
	return page
}

func TestAvailableYears(t *testing.T) {
	nav := NewWithPage(downloadsPortal(), "", nil)
	years, err := nav.AvailableYears(context.Background())
	require.NoError(t, err)
	require.Equal(t, []int{2024, 2023, 2022}, years)
}

func TestDownloadYearArchive(t *testing.T) {
	nav := NewWithPage(downloadsPortal(), "", nil)
	f := &recordingFetcher{}

	path, err := nav.DownloadYearArchive(context.Background(), 2023, "archives", f)
	require.NoError(t, err)
	require.Equal(t, "archives/2023FD.zip", path)
	require.Equal(t, []archiveCall{{
		url:  "https://disclosures-clerk.house.gov/public_disc/financial-pdfs/2023FD.zip",
		dir:  "archives",
		name: "2023FD.zip",
	}}, f.calls)

	_, err = nav.DownloadYearArchive(context.Background(), 2019, "archives", f)
	require.True(t, errors.Is(err, models.ErrNoResults), "got %v", err)
	require.Len(t, f.calls, 1)
}

func TestAvailableYearsMissingPanel(t *testing.T) {
	nav := NewWithPage(browsertest.New(), "", nil)
	_, err := nav.AvailableYears(context.Background())
	require.True(t, models.IsTransient(err), "got %v", err)
}

func TestSplitName(t *testing.T) {
	tests := []struct{ in, last, first string }{
		{"Pelosi, Hon. Nancy", "Pelosi", "Nancy"},
		{"Crenshaw, Daniel", "Crenshaw", "Daniel"},
		{"Unknown", "Unknown", ""},
	}
	for _, tt := range tests {
		last, first := splitName(tt.in)
		if last != tt.last || first != tt.first {
			t.Errorf("splitName(%q) = %q, %q; want %q, %q", tt.in, last, first, tt.last, tt.first)
		}
	}
}
