package browsertest

import (
	"fmt"
	"strings"
	"time"
)

const emptyCell = " td.dataTables_empty"

// Grid mimics a client-side paged DataTables grid. Install renders the
// first page onto a Page and wires the next control to advance it.
type Grid struct {
	Table    string
	Info     string
	Next     string
	Rows     []string
	PageSize int
	// Processing is the overlay shown while the grid loads, if any.
	Processing string
	// ReportedTotal overrides the total shown in the info line.
	ReportedTotal int

	page int
}

// Install renders page one and hooks the next control.
func (g *Grid) Install(p *Page) {
	g.page = 0
	p.mu.Lock()
	p.OnClick[g.Next] = func(p *Page) error {
		g.page++
		g.render(p)
		return nil
	}
	p.mu.Unlock()
	g.render(p)
}

// InstallAfter shows the loading placeholder DataTables draws while an
// ajax request is in flight and installs the grid once delay has passed.
func (g *Grid) InstallAfter(p *Page, delay time.Duration) *time.Timer {
	p.SetHTML(g.Table, `<table><tbody><tr class="odd"><td valign="top" colspan="5" class="dataTables_empty">Loading...</td></tr></tbody></table>`)
	p.SetText(g.Table+emptyCell, "Loading...")
	p.SetText(g.Info, "Showing 0 to 0 of 0 entries")
	p.Hide(g.Next + ":not(.disabled)")
	if g.Processing != "" {
		p.Show(g.Processing)
	}
	return time.AfterFunc(delay, func() { g.Install(p) })
}

// Pages returns the number of pages the grid spans.
func (g *Grid) Pages() int {
	if len(g.Rows) == 0 {
		return 1
	}
	return (len(g.Rows) + g.PageSize - 1) / g.PageSize
}

func (g *Grid) total() int {
	if g.ReportedTotal > 0 {
		return g.ReportedTotal
	}
	return len(g.Rows)
}

func (g *Grid) render(p *Page) {
	var b strings.Builder
	b.WriteString("<table><thead><tr><th>Name</th></tr></thead><tbody>")

	start := g.page * g.PageSize
	end := min(start+g.PageSize, len(g.Rows))
	if start > end {
		start = end
	}
	total := g.total()

	var info string
	if len(g.Rows) == 0 {
		b.WriteString(`<tr class="odd"><td valign="top" colspan="5" class="dataTables_empty">No data available in table</td></tr>`)
		info = "Showing 0 to 0 of 0 entries"
		p.SetText(g.Table+emptyCell, "No data available in table")
	} else {
		for _, row := range g.Rows[start:end] {
			b.WriteString("<tr>" + row + "</tr>")
		}
		shownEnd := end
		if end == len(g.Rows) && total > len(g.Rows) {
			shownEnd = min(start+g.PageSize, total)
		}
		info = fmt.Sprintf("Showing %d to %d of %d entries", start+1, shownEnd, total)
		p.Hide(g.Table + emptyCell)
	}
	b.WriteString("</tbody></table>")

	p.SetHTML(g.Table, b.String())
	p.SetText(g.Info, info)
	if g.Processing != "" {
		p.Hide(g.Processing)
	}
	if end < len(g.Rows) {
		p.Show(g.Next + ":not(.disabled)")
	} else {
		p.Hide(g.Next + ":not(.disabled)")
	}
}
