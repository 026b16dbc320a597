package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/TheWillMundy/CapitolGains/models"
	"github.com/TheWillMundy/CapitolGains/utils"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeNavigator struct {
	chamber models.Chamber
	results [][]models.RawRow
	errs    []error
	calls   int
	queries []models.SearchQuery
}

func (f *fakeNavigator) Chamber() models.Chamber { return f.chamber }

func (f *fakeNavigator) Search(_ context.Context, q models.SearchQuery) ([]models.RawRow, error) {
	i := f.calls
	f.calls++
	f.queries = append(f.queries, q)
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if len(f.results) == 0 {
		return nil, nil
	}
	return f.results[min(i, len(f.results)-1)], nil
}

type renderingNavigator struct {
	fakeNavigator
	rendered []string
}

func (r *renderingNavigator) RenderDocument(_ context.Context, url, destDir string) (string, error) {
	r.rendered = append(r.rendered, url)
	return filepath.Join(destDir, "rendered.pdf"), nil
}

type tableNavigator struct {
	fakeNavigator
	failures int
	read     []string
}

func (n *tableNavigator) ReportTables(_ context.Context, url string) ([]models.ReportTable, error) {
	n.read = append(n.read, url)
	if len(n.read) <= n.failures {
		return nil, models.Transient("tables", errors.New("page did not load"))
	}
	return []models.ReportTable{{
		Headers: []string{"ticker", "type"},
		Rows:    []map[string]string{{"ticker": "AAPL", "type": "Purchase"}},
	}}, nil
}

type fakeDownloader struct {
	mu   sync.Mutex
	urls []string
}

func (f *fakeDownloader) Download(_ context.Context, url, destDir string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, url)
	return filepath.Join(destDir, filepath.Base(url)), nil
}

var fixedNow = time.Date(2024, time.February, 20, 10, 0, 0, 0, time.UTC)

func testEngine(nav Navigator, dl Downloader) *Engine {
	logger := utils.NewNopLogger()
	return NewEngine(nav, dl, EngineOptions{
		DownloadDir:    "out",
		MaxConcurrency: 2,
		Retry:          &utils.RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, Logger: logger},
		Logger:         logger,
		Now:            func() time.Time { return fixedNow },
	})
}

func warrenRows() []models.RawRow {
	return []models.RawRow{
		senateRow("Elizabeth", "Warren", "Periodic Transaction Report for 01/05/2023", "https://efd/ptr/1/", "01/05/2023"),
		senateRow("Elizabeth", "Warren", "Annual Report for CY 2022", "https://efd/annual/2/", "05/15/2023"),
	}
}

func TestEngineSearchCachesResult(t *testing.T) {
	nav := &fakeNavigator{chamber: models.Senate, results: [][]models.RawRow{warrenRows()}}
	e := testEngine(nav, nil)

	r1, err := e.Search(context.Background(), warren, 2023)
	require.NoError(t, err)
	r2, err := e.Search(context.Background(), warren, 2023)
	require.NoError(t, err)

	require.Equal(t, 1, nav.calls)
	require.Equal(t, r1, r2)
	require.Len(t, r1.Trades(), 1)
}

func TestEngineSearchWindow(t *testing.T) {
	nav := &fakeNavigator{chamber: models.Senate, results: [][]models.RawRow{warrenRows()}}
	e := testEngine(nav, nil)

	_, err := e.Search(context.Background(), warren, 2023)
	require.NoError(t, err)
	require.Len(t, nav.queries, 1)
	q := nav.queries[0]
	require.Equal(t, time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC), q.From)
	require.Equal(t, time.Date(2024, time.February, 15, 0, 0, 0, 0, time.UTC), q.To)
	require.Equal(t, "MA", q.Identity.State)
}

func TestEngineRejectsInvalidInputWithoutNavigating(t *testing.T) {
	nav := &fakeNavigator{chamber: models.Senate}
	e := testEngine(nav, nil)

	cases := []struct {
		id   models.EntityIdentity
		year int
	}{
		{models.EntityIdentity{Chamber: models.Senate, LastName: "Warren", State: "PR"}, 2023},
		{warren, 2025},
		{warren, 2011},
		{models.EntityIdentity{Chamber: models.House, LastName: "Pelosi"}, 2023},
		{models.EntityIdentity{Chamber: models.Senate}, 2023},
	}
	for _, tc := range cases {
		_, err := e.Search(context.Background(), tc.id, tc.year)
		require.ErrorIs(t, err, models.ErrInvalidInput, "%+v/%d", tc.id, tc.year)
	}
	require.Equal(t, 0, nav.calls)
}

func TestEngineRetriesTransientFailures(t *testing.T) {
	flaky := models.Transient("wait results", errors.New("table not rendered"))
	nav := &fakeNavigator{
		chamber: models.Senate,
		results: [][]models.RawRow{warrenRows()},
		errs:    []error{flaky, flaky},
	}
	e := testEngine(nav, nil)

	r, err := e.Search(context.Background(), warren, 2023)
	require.NoError(t, err)
	require.Equal(t, 3, nav.calls)
	require.Equal(t, 2, r.Total())
}

func TestEngineExhaustionIsNotCached(t *testing.T) {
	flaky := models.Transient("wait results", errors.New("table not rendered"))
	nav := &fakeNavigator{chamber: models.Senate, errs: []error{flaky, flaky, flaky}, results: [][]models.RawRow{warrenRows()}}
	e := testEngine(nav, nil)

	_, err := e.Search(context.Background(), warren, 2023)
	require.ErrorIs(t, err, models.ErrTimeout)
	var ex *models.ExhaustedError
	require.True(t, errors.As(err, &ex))
	require.Equal(t, 3, ex.Attempts)

	r, err := e.Search(context.Background(), warren, 2023)
	require.NoError(t, err)
	require.Equal(t, 4, nav.calls)
	require.Equal(t, 2, r.Total())
}

func TestEngineNoResultsIsEmptyAndCached(t *testing.T) {
	nav := &fakeNavigator{chamber: models.House, errs: []error{models.ErrNoResults}}
	e := testEngine(nav, nil)
	id := models.EntityIdentity{Chamber: models.House, LastName: "Nobody", State: "WY"}

	r, err := e.Search(context.Background(), id, 2023)
	require.NoError(t, err)
	require.Equal(t, 0, r.Total())
	require.ElementsMatch(t, models.House.Categories(), keys(r))

	_, err = e.Search(context.Background(), id, 2023)
	require.NoError(t, err)
	require.Equal(t, 1, nav.calls)
}

func keys(r models.CategorizedResult) []models.Category {
	var out []models.Category
	for k := range r {
		out = append(out, k)
	}
	return out
}

func TestEngineFetchDocumentRouting(t *testing.T) {
	dl := &fakeDownloader{}
	nav := &renderingNavigator{fakeNavigator: fakeNavigator{chamber: models.Senate}}
	e := testEngine(nav, dl)

	path, err := e.FetchDocument(context.Background(), models.Disclosure{DocumentURL: "https://clerk/1.pdf", DocumentType: models.DocumentPDF})
	require.NoError(t, err)
	require.Equal(t, filepath.Join("out", "1.pdf"), path)

	path, err = e.FetchDocument(context.Background(), models.Disclosure{DocumentURL: "https://efd/ptr/1/", DocumentType: models.DocumentWeb})
	require.NoError(t, err)
	require.Equal(t, filepath.Join("out", "rendered.pdf"), path)
	require.Equal(t, []string{"https://efd/ptr/1/"}, nav.rendered)

	_, err = e.FetchDocument(context.Background(), models.Disclosure{DocumentType: models.DocumentPDF})
	require.ErrorIs(t, err, models.ErrInvalidInput)

	house := testEngine(&fakeNavigator{chamber: models.House}, dl)
	_, err = house.FetchDocument(context.Background(), models.Disclosure{DocumentURL: "https://efd/paper/1/", DocumentType: models.DocumentPaper})
	require.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestEngineFetchDocumentsDeduplicates(t *testing.T) {
	dl := &fakeDownloader{}
	e := testEngine(&fakeNavigator{chamber: models.House}, dl)

	ds := []models.Disclosure{
		{DocumentURL: "https://clerk/1.pdf", DocumentType: models.DocumentPDF},
		{DocumentURL: "https://clerk/2.pdf", DocumentType: models.DocumentPDF},
		{DocumentURL: "https://clerk/1.pdf", DocumentType: models.DocumentPDF},
	}
	paths, err := e.FetchDocuments(context.Background(), ds)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	require.ElementsMatch(t, []string{"https://clerk/1.pdf", "https://clerk/2.pdf"}, dl.urls)
}

func TestEngineReportTables(t *testing.T) {
	nav := &tableNavigator{fakeNavigator: fakeNavigator{chamber: models.Senate}, failures: 1}
	e := testEngine(nav, nil)

	web := models.Disclosure{DocumentURL: "https://efd/ptr/1/", DocumentType: models.DocumentWeb}
	tables, err := e.ReportTables(context.Background(), web)
	require.NoError(t, err)
	require.Len(t, tables, 1)
	require.Equal(t, "AAPL", tables[0].Rows[0]["ticker"])
	require.Equal(t, []string{web.DocumentURL, web.DocumentURL}, nav.read, "transient failures are retried")

	paper := models.Disclosure{DocumentURL: "https://efd/paper/2/", DocumentType: models.DocumentPaper}
	_, err = e.ReportTables(context.Background(), paper)
	require.True(t, errors.Is(err, models.ErrInvalidInput))

	house := testEngine(&fakeNavigator{chamber: models.House}, nil)
	_, err = house.ReportTables(context.Background(), web)
	require.True(t, errors.Is(err, models.ErrInvalidInput))
}
