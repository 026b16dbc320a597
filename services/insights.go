package services

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/TheWillMundy/CapitolGains/models"
	"github.com/TheWillMundy/CapitolGains/utils"
)

const recentTradesLimit = 5

type InsightService struct {
	logger *utils.Logger
	out    io.Writer
}

func NewInsightService(logger *utils.Logger) *InsightService {
	return &InsightService{logger: logger, out: os.Stdout}
}

// SetOutput redirects Print.
func (s *InsightService) SetOutput(w io.Writer) { s.out = w }

func (s *InsightService) Generate(ds []models.Disclosure) *models.DisclosureReport {
	report := &models.DisclosureReport{
		ByCategory: make(map[models.Category]int),
		ByFiler:    make(map[string]int),
	}
	if len(ds) == 0 {
		return report
	}
	report.TotalDisclosures = len(ds)

	var trades []models.Disclosure
	for i := range ds {
		d := ds[i]
		report.ByCategory[d.Category]++
		if d.FilerName != "" {
			report.ByFiler[d.FilerName]++
		}
		if !d.Date.IsZero() && (report.EarliestFiling == nil || d.Date.Before(report.EarliestFiling.Date)) {
			report.EarliestFiling = &d
		}
		if d.Category == models.CategoryTrade {
			trades = append(trades, d)
		}
	}

	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].Date.After(trades[j].Date)
	})
	if len(trades) > 0 {
		latest := trades[0]
		report.LatestTrade = &latest
	}
	if len(trades) > recentTradesLimit {
		trades = trades[:recentTradesLimit]
	}
	report.RecentTrades = trades
	return report
}

func (s *InsightService) Print(r *models.DisclosureReport) {
	summary := table.NewWriter()
	summary.SetOutputMirror(s.out)
	summary.SetTitle("Disclosure Summary")
	summary.AppendHeader(table.Row{"Category", "Filings"})
	for _, cat := range models.AllCategories {
		if n := r.ByCategory[cat]; n > 0 {
			summary.AppendRow(table.Row{cat, n})
		}
	}
	summary.AppendFooter(table.Row{"Total", r.TotalDisclosures})
	summary.SetStyle(table.StyleRounded)
	summary.Render()

	if r.EarliestFiling != nil {
		fmt.Fprintf(s.out, "Earliest filing: %s (%s)\n", formatDate(*r.EarliestFiling), r.EarliestFiling.ReportType)
	}
	if r.LatestTrade != nil {
		fmt.Fprintf(s.out, "Latest trade report: %s\n", formatDate(*r.LatestTrade))
	}

	if len(r.RecentTrades) > 0 {
		trades := table.NewWriter()
		trades.SetOutputMirror(s.out)
		trades.SetTitle("Recent Trade Reports")
		trades.AppendHeader(table.Row{"#", "Date", "Filer", "Report", "Document"})
		for i, d := range r.RecentTrades {
			trades.AppendRow(table.Row{i + 1, formatDate(d), d.FilerName, truncate(d.ReportType, 48), d.DocumentURL})
		}
		trades.SetStyle(table.StyleRounded)
		trades.Render()
	}

	if len(r.ByFiler) > 1 {
		type filerCount struct {
			name  string
			count int
		}
		var filers []filerCount
		for name, n := range r.ByFiler {
			filers = append(filers, filerCount{name, n})
		}
		sort.Slice(filers, func(i, j int) bool {
			if filers[i].count != filers[j].count {
				return filers[i].count > filers[j].count
			}
			return filers[i].name < filers[j].name
		})
		byFiler := table.NewWriter()
		byFiler.SetOutputMirror(s.out)
		byFiler.AppendHeader(table.Row{"Filer", "Filings"})
		for _, f := range filers {
			byFiler.AppendRow(table.Row{f.name, f.count})
		}
		byFiler.SetStyle(table.StyleRounded)
		byFiler.Render()
	}
}

// PrintReportTables renders the data tables read from a web filing.
func (s *InsightService) PrintReportTables(tables []models.ReportTable) {
	for i, t := range tables {
		if len(t.Headers) == 0 {
			continue
		}
		w := table.NewWriter()
		w.SetOutputMirror(s.out)
		w.SetTitle(fmt.Sprintf("Table %d (%d rows)", i+1, len(t.Rows)))
		header := make(table.Row, len(t.Headers))
		for j, h := range t.Headers {
			header[j] = h
		}
		w.AppendHeader(header)
		for _, row := range t.Rows {
			cells := make(table.Row, len(t.Headers))
			for j, h := range t.Headers {
				cells[j] = truncate(row[h], 40)
			}
			w.AppendRow(cells)
		}
		w.SetStyle(table.StyleRounded)
		w.Render()
	}
}

func formatDate(d models.Disclosure) string {
	if d.Date.IsZero() {
		return "unknown"
	}
	return d.Date.Format("2006-01-02")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
