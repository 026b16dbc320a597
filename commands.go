package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/TheWillMundy/CapitolGains/fetcher"
	"github.com/TheWillMundy/CapitolGains/members"
	"github.com/TheWillMundy/CapitolGains/models"
	"github.com/TheWillMundy/CapitolGains/roster"
	"github.com/TheWillMundy/CapitolGains/scraper/browser"
	"github.com/TheWillMundy/CapitolGains/scraper/house"
	"github.com/TheWillMundy/CapitolGains/scraper/senate"
	"github.com/TheWillMundy/CapitolGains/services"
	"github.com/TheWillMundy/CapitolGains/storage"
	"github.com/TheWillMundy/CapitolGains/utils"
)

var searchOpts struct {
	chamber  string
	last     string
	first    string
	state    string
	district string
	year     int
	download bool
	csv      bool
	postgres bool
}

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "List a member's disclosures for one year",
	Example: `  capitolgains search --chamber senate --last Warren --state MA --year 2023
  capitolgains search --chamber house --last Pelosi --state CA --year 2023 --download`,
	RunE: runSearch,
}

var fetchOpts struct {
	url    string
	dir    string
	tables bool
}

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download one disclosure document as a PDF",
	RunE:  runFetch,
}

var archiveOpts struct {
	year int
	dir  string
	list bool
}

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "List or download the House's bulk yearly disclosure archives",
	Example: `  capitolgains archive --list
  capitolgains archive --year 2023 --dir archives`,
	RunE: runArchive,
}

var lookupOpts struct {
	last     string
	first    string
	state    string
	congress int
}

var lookupCmd = &cobra.Command{
	Use:   "lookup",
	Short: "Resolve a loosely spelled member name through Congress.gov",
	RunE:  runLookup,
}

func init() {
	f := searchCmd.Flags()
	f.StringVar(&searchOpts.chamber, "chamber", "senate", "senate or house")
	f.StringVar(&searchOpts.last, "last", "", "member last name (required)")
	f.StringVar(&searchOpts.first, "first", "", "member first name")
	f.StringVar(&searchOpts.state, "state", "", "two-letter state code")
	f.StringVar(&searchOpts.district, "district", "", "House district number")
	f.IntVar(&searchOpts.year, "year", time.Now().Year()-1, "filing year")
	f.BoolVar(&searchOpts.download, "download", false, "download every document found")
	f.BoolVar(&searchOpts.csv, "csv", false, "write results to CSV_OUTPUT_PATH")
	f.BoolVar(&searchOpts.postgres, "postgres", false, "archive results in PostgreSQL")
	_ = searchCmd.MarkFlagRequired("last")

	f = fetchCmd.Flags()
	f.StringVar(&fetchOpts.url, "url", "", "document URL (required)")
	f.StringVar(&fetchOpts.dir, "dir", "", "destination directory (default DOWNLOAD_DIR)")
	f.BoolVar(&fetchOpts.tables, "tables", false, "also print the data tables of a Senate web filing")
	_ = fetchCmd.MarkFlagRequired("url")

	f = archiveCmd.Flags()
	f.IntVar(&archiveOpts.year, "year", 0, "filing year to download")
	f.StringVar(&archiveOpts.dir, "dir", "", "destination directory (default DOWNLOAD_DIR)")
	f.BoolVar(&archiveOpts.list, "list", false, "list the years on offer")

	f = lookupCmd.Flags()
	f.StringVar(&lookupOpts.last, "last", "", "member last name (required)")
	f.StringVar(&lookupOpts.first, "first", "", "member first name")
	f.StringVar(&lookupOpts.state, "state", "", "two-letter state code")
	f.IntVar(&lookupOpts.congress, "congress", 0, "congress number (default: current)")
	_ = lookupCmd.MarkFlagRequired("last")
}

func retryConfig() *utils.RetryConfig {
	return &utils.RetryConfig{
		MaxAttempts: cfg.MaxRetries,
		BaseDelay:   cfg.RetryBaseDelay,
		Logger:      logger,
	}
}

// newEngine wires a chamber navigator, the HTTP fetcher and the cache into
// one engine. The caller must Close it.
func newEngine(chamber models.Chamber, downloadDir string) (*services.Engine, error) {
	retry := retryConfig()
	opts := browser.Options{
		Headless:      cfg.Headless,
		DownloadDir:   downloadDir,
		ChromeBin:     cfg.ChromeBin,
		ActionTimeout: cfg.ActionTimeout,
		Logger:        logger,
	}

	var nav services.Navigator
	switch chamber {
	case models.Senate:
		nav = senate.New(opts, logger)
	case models.House:
		nav = house.New(opts, logger)
	default:
		return nil, fmt.Errorf("%w: unknown chamber %q", models.ErrInvalidInput, chamber)
	}

	return services.NewEngine(nav, fetcher.New(retry, logger), services.EngineOptions{
		DownloadDir:       downloadDir,
		IncludeCandidates: cfg.IncludeCandidates,
		MaxConcurrency:    cfg.MaxConcurrency,
		RateLimitMs:       cfg.RateLimitMs,
		Retry:             retry,
		Logger:            logger,
	}), nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	chamber, err := models.ParseChamber(searchOpts.chamber)
	if err != nil {
		return err
	}
	var member *members.Member
	if chamber == models.Senate {
		member = members.NewSenator(searchOpts.last, searchOpts.first, searchOpts.state)
	} else {
		member = members.NewRepresentative(searchOpts.last, searchOpts.first, searchOpts.state, searchOpts.district)
	}

	engine, err := newEngine(chamber, cfg.DownloadDir)
	if err != nil {
		return err
	}
	defer engine.Close()

	logger.Info("=== Searching %s filings for %d ===", member, searchOpts.year)
	result, err := member.Disclosures(ctx, engine, searchOpts.year)
	if err != nil {
		return fmt.Errorf("search %s: %w", member, err)
	}
	all := result.All()
	logger.Info("Found %d disclosures", len(all))

	insights := services.NewInsightService(logger)
	insights.Print(insights.Generate(all))

	if searchOpts.download && len(all) > 0 {
		paths, err := engine.FetchDocuments(ctx, all)
		for url, path := range paths {
			logger.Info("Saved %s -> %s", url, path)
		}
		if err != nil {
			logger.Warn("Some documents could not be fetched: %v", err)
		}
	}

	if searchOpts.csv {
		if err := exportCSV(all); err != nil {
			return err
		}
	}
	if searchOpts.postgres {
		if err := exportPostgres(cmd, insights, all); err != nil {
			return err
		}
	}
	return nil
}

func exportCSV(ds []models.Disclosure) error {
	w, err := storage.NewCSVWriter(cfg.CSVOutputPath)
	if err != nil {
		return err
	}
	if err := w.Write(ds); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("csv: close: %w", err)
	}
	logger.Info("Disclosures saved to %s", cfg.CSVOutputPath)
	return nil
}

// exportPostgres archives ds and prints a summary over the whole archive.
func exportPostgres(cmd *cobra.Command, insights *services.InsightService, ds []models.Disclosure) error {
	pg, err := storage.NewPostgresWriter(cmd.Context(), cfg.DSN())
	if err != nil {
		return err
	}
	defer pg.Close()

	if err := pg.Write(ds); err != nil {
		return err
	}
	logger.Info("Disclosures stored in PostgreSQL (table: disclosures)")

	archived, err := pg.FetchAll()
	if err != nil {
		logger.Warn("Failed to read the archive back: %v", err)
		return nil
	}
	r := insights.Generate(archived)
	logger.Info("Archive now holds %d disclosures", r.TotalDisclosures)
	return nil
}

func runFetch(cmd *cobra.Command, args []string) error {
	dir := fetchOpts.dir
	if dir == "" {
		dir = cfg.DownloadDir
	}

	d := models.Disclosure{DocumentURL: fetchOpts.url, DocumentType: models.DocumentPDF}
	chamber := models.House
	if strings.Contains(fetchOpts.url, "efdsearch.senate.gov") {
		chamber = models.Senate
		d.DocumentType = models.DocumentWeb
		if strings.Contains(fetchOpts.url, "/paper/") {
			d.DocumentType = models.DocumentPaper
		}
	}

	engine, err := newEngine(chamber, dir)
	if err != nil {
		return err
	}
	defer engine.Close()

	path, err := engine.FetchDocument(cmd.Context(), d)
	if err != nil {
		return err
	}
	pages, err := fetcher.Inspect(path)
	if err != nil {
		logger.Warn("Saved %s but could not read it back: %v", path, err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), savedLine(path, pages, err))

	if fetchOpts.tables && d.DocumentType == models.DocumentWeb {
		tables, err := engine.ReportTables(cmd.Context(), d)
		if err != nil {
			return err
		}
		insights := services.NewInsightService(logger)
		insights.SetOutput(cmd.OutOrStdout())
		insights.PrintReportTables(tables)
	}
	return nil
}

// savedLine describes a written document. The page count is left out when
// the file could not be read back.
func savedLine(path string, pages int, inspectErr error) string {
	if inspectErr != nil {
		return fmt.Sprintf("%s (unreadable: %v)", path, inspectErr)
	}
	return fmt.Sprintf("%s (%d pages)", path, pages)
}

func runArchive(cmd *cobra.Command, args []string) error {
	if !archiveOpts.list && archiveOpts.year == 0 {
		return fmt.Errorf("%w: pass --list or --year", models.ErrInvalidInput)
	}
	dir := archiveOpts.dir
	if dir == "" {
		dir = cfg.DownloadDir
	}
	ctx := cmd.Context()
	nav := house.New(browser.Options{
		Headless:      cfg.Headless,
		ChromeBin:     cfg.ChromeBin,
		ActionTimeout: cfg.ActionTimeout,
		Logger:        logger,
	}, logger)
	defer nav.Close()

	out := cmd.OutOrStdout()
	if archiveOpts.list {
		years, err := nav.AvailableYears(ctx)
		if err != nil {
			return err
		}
		for _, y := range years {
			fmt.Fprintln(out, y)
		}
		return nil
	}

	var path string
	err := retryConfig().Do(ctx, fmt.Sprintf("house archive %d", archiveOpts.year), func() error {
		var err error
		path, err = nav.DownloadYearArchive(ctx, archiveOpts.year, dir, fetcher.New(retryConfig(), logger))
		return err
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(out, path)
	return nil
}

func runLookup(cmd *cobra.Command, args []string) error {
	if cfg.CongressAPIKey == "" {
		return fmt.Errorf("%w: CONGRESS_API_KEY is not set", models.ErrInvalidInput)
	}
	ctx := cmd.Context()
	client := roster.New(cfg.CongressAPIKey, "", retryConfig(), logger)

	congress := lookupOpts.congress
	if congress == 0 {
		congress = client.CurrentCongress(ctx)
	}
	m, err := client.LookupMember(ctx, congress, lookupOpts.last, lookupOpts.state, lookupOpts.first)
	if err != nil {
		return err
	}

	id := m.Identity()
	out := cmd.OutOrStdout()
	if m.DualChamber {
		fmt.Fprintf(out, "note: %s has served in both chambers; pass --chamber explicitly when searching\n", m.Name)
	}
	fmt.Fprintf(out, "%s (%s)\n", m.Name, m.Party)
	fmt.Fprintf(out, "  bioguide: %s\n  chamber:  %s\n  identity: %s\n", m.BioguideID, id.Chamber, id)
	fmt.Fprintf(out, "  search:   capitolgains search --chamber %s --last %q --state %s", id.Chamber, id.LastName, id.State)
	if id.District != "" {
		fmt.Fprintf(out, " --district %s", id.District)
	}
	fmt.Fprintln(out)
	return nil
}
