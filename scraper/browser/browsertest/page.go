// Package browsertest provides an in-memory browser.Page for navigator tests.
package browsertest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/TheWillMundy/CapitolGains/models"
	"github.com/TheWillMundy/CapitolGains/scraper/browser"
)

const (
	defaultWaitTimeout = 100 * time.Millisecond
	waitPollInterval   = 2 * time.Millisecond
)

var errNotFound = errors.New("element not found")

// Page is a scripted stand-in for a browser tab. Elements exist when their
// exact selector is marked present. Click and navigation hooks let a test
// change the page the way the portal would.
type Page struct {
	mu sync.Mutex

	URL     string
	Present map[string]bool
	HTML    map[string]string
	Texts   map[string]string
	Values  map[string]string
	Checked map[string]bool
	PDF     []byte
	// WaitTimeout bounds WaitVisible and WaitHidden. Zero means 100ms.
	WaitTimeout time.Duration

	OnClick    map[string]func(p *Page) error
	OnNavigate func(p *Page, url string) error

	Clicks      map[string]int
	Navigations []string
	HTMLReads   map[string]int
}

var _ browser.Page = (*Page)(nil)

// New returns an empty page.
func New() *Page {
	return &Page{
		Present:   map[string]bool{},
		HTML:      map[string]string{},
		Texts:     map[string]string{},
		Values:    map[string]string{},
		Checked:   map[string]bool{},
		OnClick:   map[string]func(p *Page) error{},
		Clicks:    map[string]int{},
		HTMLReads: map[string]int{},
	}
}

// Show marks selectors as present.
func (p *Page) Show(sels ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, sel := range sels {
		p.Present[sel] = true
	}
}

// Hide marks selectors as absent.
func (p *Page) Hide(sels ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, sel := range sels {
		delete(p.Present, sel)
	}
}

// SetText sets the text returned for sel and marks it present.
func (p *Page) SetText(sel, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Texts[sel] = text
	p.Present[sel] = true
}

// SetHTML sets the markup returned for sel and marks it present.
func (p *Page) SetHTML(sel, html string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.HTML[sel] = html
	p.Present[sel] = true
}

// ClickCount returns how often sel was clicked.
func (p *Page) ClickCount(sel string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Clicks[sel]
}

// Value returns what was last filled or selected into sel.
func (p *Page) Value(sel string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Values[sel]
}

// IsChecked reports the recorded state of a checkbox.
func (p *Page) IsChecked(sel string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Checked[sel]
}

// Reads returns how often the markup of sel was read.
func (p *Page) Reads(sel string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.HTMLReads[sel]
}

func (p *Page) visible(sel string) bool {
	for _, part := range strings.Split(sel, ",") {
		if p.Present[strings.TrimSpace(part)] {
			return true
		}
	}
	return false
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.URL = url
	p.Navigations = append(p.Navigations, url)
	hook := p.OnNavigate
	p.mu.Unlock()
	if hook != nil {
		return hook(p, url)
	}
	return nil
}

// waitFor polls cond until it holds or the wait timeout passes.
func (p *Page) waitFor(ctx context.Context, cond func() bool) bool {
	p.mu.Lock()
	timeout := p.WaitTimeout
	p.mu.Unlock()
	if timeout <= 0 {
		timeout = defaultWaitTimeout
	}
	deadline := time.Now().Add(timeout)
	for {
		p.mu.Lock()
		ok := cond()
		p.mu.Unlock()
		if ok {
			return true
		}
		if time.Now().After(deadline) || ctx.Err() != nil {
			return false
		}
		time.Sleep(waitPollInterval)
	}
}

func (p *Page) WaitVisible(ctx context.Context, sel string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !p.waitFor(ctx, func() bool { return p.visible(sel) }) {
		if err := ctx.Err(); err != nil {
			return err
		}
		return models.Transient("browser: wait visible "+sel, errNotFound)
	}
	return nil
}

// WaitHidden treats a selector that matches nothing as hidden.
func (p *Page) WaitHidden(ctx context.Context, sel string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !p.waitFor(ctx, func() bool { return !p.visible(sel) }) {
		if err := ctx.Err(); err != nil {
			return err
		}
		return models.Transient("browser: wait hidden "+sel, errors.New("element still visible"))
	}
	return nil
}

func (p *Page) Visible(ctx context.Context, sel string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible(sel), nil
}

func (p *Page) WaitReady(ctx context.Context, sel string) error {
	return p.WaitVisible(ctx, sel)
}

func (p *Page) Exists(ctx context.Context, sel string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Present[sel], nil
}

func (p *Page) Fill(ctx context.Context, sel, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Values[sel] = value
	return nil
}

func (p *Page) Select(ctx context.Context, sel, value string) error {
	return p.Fill(ctx, sel, value)
}

func (p *Page) Check(ctx context.Context, sel string, checked bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Checked[sel] = checked
	return nil
}

func (p *Page) Click(ctx context.Context, sel string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.Clicks[sel]++
	hook := p.OnClick[sel]
	p.mu.Unlock()
	if hook != nil {
		return hook(p)
	}
	return nil
}

func (p *Page) OuterHTML(ctx context.Context, sel string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.HTMLReads[sel]++
	html, ok := p.HTML[sel]
	if !ok {
		return "", models.Transient("browser: read "+sel, errNotFound)
	}
	return html, nil
}

func (p *Page) Text(ctx context.Context, sel string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	text, ok := p.Texts[sel]
	if !ok || !p.Present[sel] {
		return "", models.Transient("browser: text "+sel, errNotFound)
	}
	return text, nil
}

func (p *Page) Location(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.URL, nil
}

func (p *Page) PrintPDF(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.PDF == nil {
		return nil, models.Transient("browser: print pdf", errors.New("nothing rendered"))
	}
	return append([]byte(nil), p.PDF...), nil
}
