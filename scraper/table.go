package scraper

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/TheWillMundy/CapitolGains/models"
	"github.com/TheWillMundy/CapitolGains/scraper/browser"
)

const (
	defaultPollInterval  = 250 * time.Millisecond
	defaultPageTimeout   = 15 * time.Second
	defaultAppearTimeout = 500 * time.Millisecond
)

var (
	// DataTables reuses the empty cell for its "Loading..." placeholder, so
	// only these texts mean the search really found nothing.
	noResultsText = regexp.MustCompile(`(?i)no (data available|matching records|results|activities|records|reports)`)
	loadingText   = regexp.MustCompile(`(?i)loading|processing`)
)

// Table describes a DataTables results grid on a portal page.
type Table struct {
	// Selector matches the <table> element.
	Selector string
	// Info matches the "Showing a to b of N entries" line.
	Info string
	// Next matches the next-page control. DataTables marks it .disabled on the last page.
	Next string
	// Processing matches the loading overlay, if the portal shows one.
	Processing string
	// Empty matches the placeholder cell DataTables draws in an empty body.
	Empty string
	// Message matches a portal alert that may announce an empty search.
	Message string
	// ParseRow turns one <tr> into a raw row. Rows it rejects still count
	// toward the reported total.
	ParseRow func(tr *goquery.Selection) (models.RawRow, bool)

	PollInterval time.Duration
	PageTimeout  time.Duration
	// AppearTimeout bounds the wait for Processing to show after a submit.
	AppearTimeout time.Duration
}

// Info is the parsed DataTables info line.
type Info struct {
	From  int
	To    int
	Total int
}

var infoPattern = regexp.MustCompile(`Showing ([\d,]+) to ([\d,]+) of ([\d,]+) entries`)

// ParseInfo extracts the row window and total from a DataTables info line.
func ParseInfo(text string) (Info, bool) {
	m := infoPattern.FindStringSubmatch(text)
	if m == nil {
		return Info{}, false
	}
	var nums [3]int
	for i := range nums {
		n, err := strconv.Atoi(strings.ReplaceAll(m[i+1], ",", ""))
		if err != nil {
			return Info{}, false
		}
		nums[i] = n
	}
	return Info{From: nums[0], To: nums[1], Total: nums[2]}, true
}

// WaitForResults blocks until the table has settled after a submit. The
// processing overlay is given AppearTimeout to show up so a stale table is
// not mistaken for the answer. Afterwards the table counts as settled once
// the info line reports rows, or once the portal states that nothing was
// found. A table still loading at PageTimeout is a transient failure.
func WaitForResults(ctx context.Context, page browser.Page, t Table) error {
	if err := page.WaitVisible(ctx, t.Selector); err != nil {
		return err
	}
	interval, timeout := t.timing()

	if t.Processing != "" {
		appear := t.AppearTimeout
		if appear <= 0 {
			appear = defaultAppearTimeout
		}
		err := poll(ctx, interval, appear, func() (bool, error) {
			if info, ok := currentInfo(ctx, page, t); ok && info.Total > 0 {
				return true, nil
			}
			return page.Visible(ctx, t.Processing)
		})
		if err != nil && ctx.Err() != nil {
			return err
		}
	}

	settled := false
	err := poll(ctx, interval, timeout, func() (bool, error) {
		var err error
		settled, err = resultsSettled(ctx, page, t)
		return settled, err
	})
	switch {
	case err != nil:
		return err
	case !settled:
		return models.Transient("results", errors.New("results table did not finish loading"))
	}
	return nil
}

// resultsSettled reports whether the table shows its final state. A final
// empty state is returned as models.ErrNoResults.
func resultsSettled(ctx context.Context, page browser.Page, t Table) (bool, error) {
	if t.Processing != "" {
		busy, err := page.Visible(ctx, t.Processing)
		if err != nil {
			return false, err
		}
		if busy {
			return false, nil
		}
	}

	info, haveInfo := currentInfo(ctx, page, t)
	if haveInfo && info.Total > 0 {
		return true, nil
	}

	if t.Message != "" {
		text, ok, err := textIfPresent(ctx, page, t.Message)
		if err != nil {
			return false, err
		}
		if ok && noResultsText.MatchString(text) {
			return true, models.ErrNoResults
		}
	}

	var placeholder string
	if t.Empty != "" {
		text, ok, err := textIfPresent(ctx, page, t.Selector+" "+t.Empty)
		if err != nil {
			return false, err
		}
		if ok && noResultsText.MatchString(text) {
			return true, models.ErrNoResults
		}
		placeholder = text
	}

	if haveInfo && info.Total == 0 && !loadingText.MatchString(placeholder) {
		return true, models.ErrNoResults
	}
	return false, nil
}

// textIfPresent reads the text of sel without waiting for it to appear.
func textIfPresent(ctx context.Context, page browser.Page, sel string) (string, bool, error) {
	found, err := page.Exists(ctx, sel)
	if err != nil || !found {
		return "", false, err
	}
	text, err := page.Text(ctx, sel)
	if err != nil {
		if ctx.Err() != nil {
			return "", false, err
		}
		return "", false, nil
	}
	return text, true, nil
}

func currentInfo(ctx context.Context, page browser.Page, t Table) (Info, bool) {
	text, ok, err := textIfPresent(ctx, page, t.Info)
	if err != nil || !ok {
		return Info{}, false
	}
	return ParseInfo(text)
}

// poll calls check every interval until it reports done, fails, or timeout
// passes. Running out of time is not an error; the caller decides.
func poll(ctx context.Context, interval, timeout time.Duration, check func() (bool, error)) error {
	deadline := time.Now().Add(timeout)
	for {
		done, err := check()
		if err != nil || done {
			return err
		}
		if time.Now().After(deadline) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

func (t Table) timing() (interval, timeout time.Duration) {
	interval = t.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	timeout = t.PageTimeout
	if timeout <= 0 {
		timeout = defaultPageTimeout
	}
	return interval, timeout
}

// Paginate reads every page of the results table. For N entries at page
// size P it reads exactly ceil(N/P) pages. Reading fewer rows than the info
// line reports is a transient failure so the search is run again.
func Paginate(ctx context.Context, page browser.Page, t Table, m *Machine) ([]models.RawRow, error) {
	var rows []models.RawRow
	seen := 0

	for {
		if err := m.Enter(StateResultsPage); err != nil {
			return nil, err
		}
		m.Progress.Page++

		info, err := readInfo(ctx, page, t)
		if err != nil {
			return nil, err
		}
		m.Progress.Total = info.Total

		html, err := page.OuterHTML(ctx, t.Selector)
		if err != nil {
			return nil, err
		}
		pageRows, count, err := t.parse(html)
		if err != nil {
			return nil, err
		}
		if want := info.To - info.From + 1; info.Total > 0 && count != want {
			return nil, models.Transient("paginate",
				fmt.Errorf("page %d shows %d rows, info line reports %d", m.Progress.Page, count, want))
		}
		seen += count
		rows = append(rows, pageRows...)
		m.logger.Debug("[%s] Page %d: %d rows (%d/%d)", m.name, m.Progress.Page, count, seen, info.Total)

		if seen >= info.Total {
			break
		}
		hasNext, err := page.Exists(ctx, t.Next+":not(.disabled)")
		if err != nil {
			return nil, err
		}
		if !hasNext {
			break
		}
		if err := page.Click(ctx, t.Next); err != nil {
			return nil, err
		}
		if err := waitForPage(ctx, page, t, info.To); err != nil {
			return nil, err
		}
	}

	if seen < m.Progress.Total {
		return nil, models.Transient("paginate",
			fmt.Errorf("read %d of %d rows before pagination ended", seen, m.Progress.Total))
	}
	if err := m.Enter(StateDone); err != nil {
		return nil, err
	}
	return rows, nil
}

func readInfo(ctx context.Context, page browser.Page, t Table) (Info, error) {
	text, err := page.Text(ctx, t.Info)
	if err != nil {
		return Info{}, err
	}
	info, ok := ParseInfo(text)
	if !ok {
		return Info{}, models.Transient("paginate", fmt.Errorf("unreadable info line %q", text))
	}
	return info, nil
}

// waitForPage polls the info line until it shows rows after prevTo.
func waitForPage(ctx context.Context, page browser.Page, t Table, prevTo int) error {
	interval, timeout := t.timing()
	deadline := time.Now().Add(timeout)

	for {
		if t.Processing != "" {
			if err := page.WaitHidden(ctx, t.Processing); err != nil && ctx.Err() != nil {
				return err
			}
		}
		if text, err := page.Text(ctx, t.Info); err == nil {
			if info, ok := ParseInfo(text); ok && info.From > prevTo {
				return nil
			}
		} else if ctx.Err() != nil {
			return err
		}
		if time.Now().After(deadline) {
			return models.Transient("paginate", errors.New("next page did not load"))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

func (t Table) parse(html string) ([]models.RawRow, int, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, 0, fmt.Errorf("parse results table: %w", err)
	}
	var rows []models.RawRow
	count := 0
	doc.Find("tbody tr").Each(func(_ int, tr *goquery.Selection) {
		if t.Empty != "" && tr.Find(t.Empty).Length() > 0 {
			return
		}
		count++
		if t.ParseRow == nil {
			return
		}
		if row, ok := t.ParseRow(tr); ok {
			rows = append(rows, row)
		}
	})
	return rows, count, nil
}
