package services

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/TheWillMundy/CapitolGains/models"
)

func day(m time.Month, d int) time.Time {
	return time.Date(2023, m, d, 0, 0, 0, 0, time.UTC)
}

func sampleDisclosures() []models.Disclosure {
	return []models.Disclosure{
		{Category: models.CategoryTrade, FilerName: "Elizabeth Warren", Date: day(time.January, 5), DocumentURL: "https://efd/ptr/1/"},
		{Category: models.CategoryTrade, FilerName: "Elizabeth Warren", Date: day(time.March, 2), DocumentURL: "https://efd/ptr/2/"},
		{Category: models.CategoryAnnual, FilerName: "Elizabeth Warren", Date: day(time.May, 15), DocumentURL: "https://efd/annual/3/", ReportType: "Annual Report for CY 2022"},
		{Category: models.CategoryTrade, FilerName: "Elizabeth Warren", Date: day(time.February, 1), DocumentURL: "https://efd/ptr/4/"},
		{Category: models.CategoryExtension, FilerName: "Elizabeth Warren", DocumentURL: "https://efd/ext/5/"},
	}
}

func TestInsightCounts(t *testing.T) {
	svc := NewInsightService(newTestLogger())
	r := svc.Generate(sampleDisclosures())
	if r.TotalDisclosures != 5 {
		t.Errorf("TotalDisclosures: got %d, want 5", r.TotalDisclosures)
	}
	if r.ByCategory[models.CategoryTrade] != 3 {
		t.Errorf("trades: got %d, want 3", r.ByCategory[models.CategoryTrade])
	}
	if r.ByFiler["Elizabeth Warren"] != 5 {
		t.Errorf("ByFiler: got %d, want 5", r.ByFiler["Elizabeth Warren"])
	}
}

func TestInsightLatestAndEarliest(t *testing.T) {
	svc := NewInsightService(newTestLogger())
	r := svc.Generate(sampleDisclosures())
	if r.LatestTrade == nil || r.LatestTrade.DocumentURL != "https://efd/ptr/2/" {
		t.Errorf("LatestTrade: got %+v, want ptr/2", r.LatestTrade)
	}
	if r.EarliestFiling == nil || r.EarliestFiling.DocumentURL != "https://efd/ptr/1/" {
		t.Errorf("EarliestFiling: got %+v, want ptr/1", r.EarliestFiling)
	}
}

func TestInsightRecentTradesOrdered(t *testing.T) {
	svc := NewInsightService(newTestLogger())
	r := svc.Generate(sampleDisclosures())
	if len(r.RecentTrades) != 3 {
		t.Fatalf("RecentTrades len: got %d, want 3", len(r.RecentTrades))
	}
	for i := 1; i < len(r.RecentTrades); i++ {
		if r.RecentTrades[i].Date.After(r.RecentTrades[i-1].Date) {
			t.Errorf("RecentTrades not newest first at %d", i)
		}
	}
}

func TestInsightEmptyInput(t *testing.T) {
	svc := NewInsightService(newTestLogger())
	r := svc.Generate(nil)
	if r.TotalDisclosures != 0 || r.LatestTrade != nil {
		t.Errorf("expected empty report for empty input, got %+v", r)
	}
}

func TestInsightPrint(t *testing.T) {
	var buf bytes.Buffer
	svc := NewInsightService(newTestLogger())
	svc.SetOutput(&buf)
	svc.Print(svc.Generate(sampleDisclosures()))

	out := buf.String()
	for _, want := range []string{"Disclosure Summary", "trade", "Recent Trade Reports", "https://efd/ptr/2/", "2023-03-02"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestInsightPrintReportTables(t *testing.T) {
	var buf bytes.Buffer
	svc := NewInsightService(newTestLogger())
	svc.SetOutput(&buf)
	svc.PrintReportTables([]models.ReportTable{
		{
			Headers: []string{"ticker", "type", "amount"},
			Rows: []map[string]string{
				{"ticker": "AAPL", "type": "Purchase", "amount": "$1,001 - $15,000"},
				{"ticker": "MSFT", "type": "Sale (Full)"},
			},
		},
		{},
	})

	out := buf.String()
	for _, want := range []string{"Table 1 (2 rows)", "AAPL", "Sale (Full)", "$1,001 - $15,000"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Table 2") {
		t.Errorf("headerless table should be skipped:\n%s", out)
	}
}
