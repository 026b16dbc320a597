package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/TheWillMundy/CapitolGains/models"
	"github.com/TheWillMundy/CapitolGains/utils"
)

// Navigator runs one search pass against a chamber's portal.
type Navigator interface {
	Chamber() models.Chamber
	Search(ctx context.Context, q models.SearchQuery) ([]models.RawRow, error)
}

// Renderer turns a browser-only filing into a PDF on disk.
type Renderer interface {
	RenderDocument(ctx context.Context, url, destDir string) (string, error)
}

// TableReader extracts the data tables of an electronically filed report.
type TableReader interface {
	ReportTables(ctx context.Context, url string) ([]models.ReportTable, error)
}

// Downloader fetches a static document over HTTP.
type Downloader interface {
	Download(ctx context.Context, url, destDir string) (string, error)
}

// EngineOptions tunes an Engine. Zero values fall back to defaults.
type EngineOptions struct {
	DownloadDir       string
	IncludeCandidates bool
	MaxConcurrency    int
	RateLimitMs       int
	Retry             *utils.RetryConfig
	Logger            *utils.Logger
	Now               func() time.Time
}

// Engine is the per-chamber entry point: it validates requests, serves
// repeated searches from the cache and routes document downloads.
// Searches and browser renders are serialized because they share one
// browser session.
type Engine struct {
	nav        Navigator
	renderer   Renderer
	tables     TableReader
	downloader Downloader
	cache      *DisclosureCache
	cleaner    *Cleaner
	retry      *utils.RetryConfig
	logger     *utils.Logger
	opts       EngineOptions

	mu sync.Mutex
}

// NewEngine creates an Engine over nav. If nav can render documents it is
// used for web and paper filings.
func NewEngine(nav Navigator, downloader Downloader, opts EngineOptions) *Engine {
	if opts.Logger == nil {
		opts.Logger = utils.NewNopLogger()
	}
	if opts.Retry == nil {
		opts.Retry = utils.NewRetryConfig(opts.Logger)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.DownloadDir == "" {
		opts.DownloadDir = "downloads"
	}
	if opts.MaxConcurrency < 1 {
		opts.MaxConcurrency = 1
	}
	e := &Engine{
		nav:        nav,
		downloader: downloader,
		cache:      NewDisclosureCache(opts.Logger),
		cleaner:    NewCleaner(opts.Logger),
		retry:      opts.Retry,
		logger:     opts.Logger,
		opts:       opts,
	}
	if r, ok := nav.(Renderer); ok {
		e.renderer = r
	}
	if t, ok := nav.(TableReader); ok {
		e.tables = t
	}
	return e
}

// Chamber returns the chamber this engine serves.
func (e *Engine) Chamber() models.Chamber { return e.nav.Chamber() }

// Search returns id's disclosures for year, categorized. Invalid input is
// rejected before any navigation. A search the portal answers with no
// matches yields an empty result, which is cached like any other.
func (e *Engine) Search(ctx context.Context, id models.EntityIdentity, year int) (models.CategorizedResult, error) {
	chamber := e.nav.Chamber()
	if id.Chamber != chamber {
		return nil, fmt.Errorf("%w: %s identity sent to the %s engine", models.ErrInvalidInput, id.Chamber, chamber)
	}
	if err := id.Validate(); err != nil {
		return nil, err
	}
	now := e.opts.Now()
	if err := models.ValidateYear(chamber, year, now); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	return e.cache.GetOrFetch(ctx, id, year, func(ctx context.Context) (models.CategorizedResult, error) {
		from, to := models.ReportingWindow(year, now)
		q := models.SearchQuery{
			Identity:          id.Normalized(),
			Year:              year,
			From:              from,
			To:                to,
			IncludeCandidates: e.opts.IncludeCandidates,
		}

		var rows []models.RawRow
		err := e.retry.Do(ctx, fmt.Sprintf("%s search %s/%d", chamber, id.Normalized().LastName, year), func() error {
			var err error
			rows, err = e.nav.Search(ctx, q)
			return err
		})
		if errors.Is(err, models.ErrNoResults) {
			e.logger.Info("[engine] No %s filings for %s in %d", chamber, id, year)
			return models.NewCategorizedResult(chamber), nil
		}
		if err != nil {
			return nil, err
		}
		return e.cleaner.Clean(id, rows), nil
	})
}

// FetchDocument stores d's source document under the download directory
// and returns its path. Static PDFs are downloaded; web and paper filings
// are rendered through the browser.
func (e *Engine) FetchDocument(ctx context.Context, d models.Disclosure) (string, error) {
	if d.DocumentURL == "" {
		return "", fmt.Errorf("%w: disclosure has no document URL", models.ErrInvalidInput)
	}
	switch d.DocumentType {
	case models.DocumentPDF:
		if e.downloader == nil {
			return "", fmt.Errorf("%w: no downloader configured", models.ErrInvalidInput)
		}
		return e.downloader.Download(ctx, d.DocumentURL, e.opts.DownloadDir)
	case models.DocumentWeb, models.DocumentPaper:
		if e.renderer == nil {
			return "", fmt.Errorf("%w: %s documents cannot be rendered for the %s", models.ErrInvalidInput, d.DocumentType, e.nav.Chamber())
		}
		e.mu.Lock()
		defer e.mu.Unlock()
		var path string
		err := e.retry.Do(ctx, "render "+d.DocumentURL, func() error {
			var err error
			path, err = e.renderer.RenderDocument(ctx, d.DocumentURL, e.opts.DownloadDir)
			return err
		})
		return path, err
	}
	return "", fmt.Errorf("%w: unknown document type %q", models.ErrInvalidInput, d.DocumentType)
}

// ReportTables reads the data tables of a web filing, such as the
// transactions of a periodic transaction report. Paper and PDF filings
// have none.
func (e *Engine) ReportTables(ctx context.Context, d models.Disclosure) ([]models.ReportTable, error) {
	if d.DocumentType != models.DocumentWeb {
		return nil, fmt.Errorf("%w: %s filings carry no data tables", models.ErrInvalidInput, d.DocumentType)
	}
	if e.tables == nil {
		return nil, fmt.Errorf("%w: the %s portal has no report tables", models.ErrInvalidInput, e.nav.Chamber())
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	var tables []models.ReportTable
	err := e.retry.Do(ctx, "read tables "+d.DocumentURL, func() error {
		var err error
		tables, err = e.tables.ReportTables(ctx, d.DocumentURL)
		return err
	})
	return tables, err
}

// FetchDocuments fetches many documents on the rate-limited worker pool.
// Each URL is fetched once. The returned map holds the paths that were
// written, keyed by URL, alongside the joined errors of the rest.
func (e *Engine) FetchDocuments(ctx context.Context, ds []models.Disclosure) (map[string]string, error) {
	pool := utils.NewWorkerPool(e.opts.MaxConcurrency, e.opts.RateLimitMs)
	seen := utils.NewURLSet()

	var mu sync.Mutex
	paths := make(map[string]string, len(ds))

	for _, d := range ds {
		d := d
		if !seen.Add(d.DocumentURL) {
			continue
		}
		pool.Submit(ctx, func(ctx context.Context) error {
			path, err := e.FetchDocument(ctx, d)
			if err != nil {
				e.logger.Warn("[engine] Fetching %s failed: %v", d.DocumentURL, err)
				return err
			}
			mu.Lock()
			paths[d.DocumentURL] = path
			mu.Unlock()
			return nil
		})
	}
	err := pool.Wait()
	e.logger.Info("[engine] Fetched %d of %d documents", len(paths), seen.Size())
	return paths, err
}

// Close releases the navigator's browser session, if it holds one.
func (e *Engine) Close() error {
	if c, ok := e.nav.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
