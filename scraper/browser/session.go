// Package browser drives a headless Chrome instance for the disclosure portals.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/TheWillMundy/CapitolGains/models"
	"github.com/TheWillMundy/CapitolGains/utils"
)

const (
	DefaultActionTimeout = 30 * time.Second
	hiddenPollInterval   = 100 * time.Millisecond
	defaultUserAgent     = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Page is the set of browser primitives the portal navigators are written
// against. Every call is bounded by the implementation's action timeout.
type Page interface {
	Navigate(ctx context.Context, url string) error
	WaitVisible(ctx context.Context, sel string) error
	WaitHidden(ctx context.Context, sel string) error
	Visible(ctx context.Context, sel string) (bool, error)
	WaitReady(ctx context.Context, sel string) error
	Exists(ctx context.Context, sel string) (bool, error)
	Fill(ctx context.Context, sel, value string) error
	Select(ctx context.Context, sel, value string) error
	Check(ctx context.Context, sel string, checked bool) error
	Click(ctx context.Context, sel string) error
	OuterHTML(ctx context.Context, sel string) (string, error)
	Text(ctx context.Context, sel string) (string, error)
	Location(ctx context.Context) (string, error)
	PrintPDF(ctx context.Context) ([]byte, error)
}

// Options configures a browser session.
type Options struct {
	Headless      bool
	DownloadDir   string
	ChromeBin     string
	UserAgent     string
	ActionTimeout time.Duration
	Logger        *utils.Logger
}

// Session owns one Chrome process and a single tab. It is not safe for
// concurrent use; navigators drive it step by step.
type Session struct {
	ctx     context.Context
	timeout time.Duration
	logger  *utils.Logger

	closeOnce   sync.Once
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
}

var _ Page = (*Session)(nil)

// Acquire starts a browser and returns a ready session. A browser that
// cannot be started yields models.ErrNavigation.
func Acquire(ctx context.Context, opts Options) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	timeout := opts.ActionTimeout
	if timeout <= 0 {
		timeout = DefaultActionTimeout
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	chromeBin := opts.ChromeBin
	if chromeBin == "" {
		chromeBin = findChromeBinary()
	}
	logger.Debug("[browser] Using browser binary: %s", chromeBin)

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.UserAgent(userAgent),
	)
	if chromeBin != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(chromeBin))
	}

	// The browser outlives the request that started it; Close ends it.
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocOpts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(format string, args ...interface{}) {
		logger.Debug("[chromedp] "+format, args...)
	}))

	s := &Session{
		ctx:         tabCtx,
		timeout:     timeout,
		logger:      logger,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
	}

	start := []chromedp.Action{}
	if opts.DownloadDir != "" {
		if err := os.MkdirAll(opts.DownloadDir, 0o755); err != nil {
			s.Close()
			return nil, fmt.Errorf("browser: create download dir %q: %w", opts.DownloadDir, err)
		}
		start = append(start, cdpbrowser.SetDownloadBehavior(cdpbrowser.SetDownloadBehaviorBehaviorAllowAndName).
			WithDownloadPath(opts.DownloadDir).
			WithEventsEnabled(true))
	}

	// The first Run allocates the browser, so it must use the tab context itself.
	if err := chromedp.Run(tabCtx, start...); err != nil {
		s.Close()
		return nil, fmt.Errorf("%w: start browser: %v", models.ErrNavigation, err)
	}
	logger.Info("[browser] Session started (headless=%t)", opts.Headless)
	return s, nil
}

// WithSession acquires a session, hands it to fn and closes it on every
// exit path.
func WithSession(ctx context.Context, opts Options, fn func(*Session) error) error {
	s, err := Acquire(ctx, opts)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

// Close shuts the tab and the browser process down. In-flight calls are
// aborted. Close is idempotent.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.cancelTab()
		s.cancelAlloc()
		s.logger.Debug("[browser] Session closed")
	})
	return nil
}

// run executes actions under the per-action timeout. Failures are reported
// as transient unless the caller or the session itself was cancelled.
func (s *Session) run(ctx context.Context, op string, actions ...chromedp.Action) error {
	actx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(actx, actions...)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("browser: %s: %w", op, ctxErr)
	}
	if s.ctx.Err() != nil {
		return fmt.Errorf("browser: %s: session closed: %w", op, context.Canceled)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("no response within %s: %w", s.timeout, err)
	}
	return models.Transient("browser: "+op, err)
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, "navigate "+url, chromedp.Navigate(url))
}

func (s *Session) WaitVisible(ctx context.Context, sel string) error {
	return s.run(ctx, "wait visible "+sel, chromedp.WaitVisible(sel, chromedp.ByQuery))
}

// WaitHidden waits until no element matching sel is visible. A selector
// that matches nothing counts as hidden at once.
func (s *Session) WaitHidden(ctx context.Context, sel string) error {
	return s.run(ctx, "wait hidden "+sel, chromedp.ActionFunc(func(ctx context.Context) error {
		for {
			var visible bool
			if err := chromedp.Evaluate(visibleScript(sel), &visible).Do(ctx); err != nil {
				return err
			}
			if !visible {
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(hiddenPollInterval):
			}
		}
	}))
}

// Visible reports whether an element matching sel is rendered. It never waits.
func (s *Session) Visible(ctx context.Context, sel string) (bool, error) {
	var visible bool
	err := s.run(ctx, "visible "+sel, chromedp.Evaluate(visibleScript(sel), &visible))
	return visible, err
}

func visibleScript(sel string) string {
	return fmt.Sprintf(`Array.prototype.some.call(document.querySelectorAll(%s), function(el) {
		var style = window.getComputedStyle(el);
		return style.display !== 'none' && style.visibility !== 'hidden' && el.getClientRects().length > 0;
	})`, jsString(sel))
}

func (s *Session) WaitReady(ctx context.Context, sel string) error {
	return s.run(ctx, "wait ready "+sel, chromedp.WaitReady(sel, chromedp.ByQuery))
}

// Exists reports whether sel currently matches an element. It never waits.
func (s *Session) Exists(ctx context.Context, sel string) (bool, error) {
	var found bool
	err := s.run(ctx, "query "+sel,
		chromedp.Evaluate(fmt.Sprintf(`document.querySelector(%s) !== null`, jsString(sel)), &found))
	return found, err
}

func (s *Session) Fill(ctx context.Context, sel, value string) error {
	return s.run(ctx, "fill "+sel, chromedp.SetValue(sel, value, chromedp.ByQuery))
}

// Select picks an option of a <select> and fires its change handlers.
func (s *Session) Select(ctx context.Context, sel, value string) error {
	var ok bool
	script := fmt.Sprintf(`(function(sel, value) {
		var el = document.querySelector(sel);
		if (!el) return false;
		el.value = value;
		el.dispatchEvent(new Event('change', {bubbles: true}));
		return el.value === value;
	})(%s, %s)`, jsString(sel), jsString(value))
	if err := s.run(ctx, "select "+sel, chromedp.Evaluate(script, &ok)); err != nil {
		return err
	}
	if !ok {
		return models.Transient("browser: select "+sel, fmt.Errorf("option %q not available", value))
	}
	return nil
}

// Check sets a checkbox to the wanted state by clicking it when needed.
func (s *Session) Check(ctx context.Context, sel string, checked bool) error {
	var ok bool
	script := fmt.Sprintf(`(function(sel, want) {
		var el = document.querySelector(sel);
		if (!el) return false;
		if (el.checked !== want) el.click();
		return true;
	})(%s, %t)`, jsString(sel), checked)
	if err := s.run(ctx, "check "+sel, chromedp.Evaluate(script, &ok)); err != nil {
		return err
	}
	if !ok {
		return models.Transient("browser: check "+sel, errors.New("element not found"))
	}
	return nil
}

func (s *Session) Click(ctx context.Context, sel string) error {
	return s.run(ctx, "click "+sel, chromedp.Click(sel, chromedp.ByQuery, chromedp.NodeVisible))
}

// OuterHTML returns the markup of the first element matching sel.
func (s *Session) OuterHTML(ctx context.Context, sel string) (string, error) {
	var html string
	err := s.run(ctx, "read "+sel, chromedp.OuterHTML(sel, &html, chromedp.ByQuery))
	return html, err
}

func (s *Session) Text(ctx context.Context, sel string) (string, error) {
	var text string
	err := s.run(ctx, "text "+sel, chromedp.Text(sel, &text, chromedp.ByQuery))
	return text, err
}

func (s *Session) Location(ctx context.Context) (string, error) {
	var url string
	err := s.run(ctx, "location", chromedp.Location(&url))
	return url, err
}

// PrintPDF renders the current page to a PDF document.
func (s *Session) PrintPDF(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := s.run(ctx, "print pdf", chromedp.ActionFunc(func(ctx context.Context) error {
		data, _, err := page.PrintToPDF().WithPrintBackground(true).Do(ctx)
		if err != nil {
			return err
		}
		buf = data
		return nil
	}))
	return buf, err
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// findChromeBinary locates Chrome/Chromium binary.
func findChromeBinary() string {
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
