// Package fetcher downloads disclosure documents to disk.
package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/TheWillMundy/CapitolGains/models"
	"github.com/TheWillMundy/CapitolGains/utils"
)

const defaultTimeout = 60 * time.Second

var (
	// ErrNotPDF means the server answered with something other than a PDF.
	ErrNotPDF = errors.New("response is not a PDF")
	// ErrNotZip means an archive download returned something other than a ZIP file.
	ErrNotZip = errors.New("response is not a ZIP archive")
)

var zipMagic = []byte("PK\x03\x04")

// FetchError is returned when a document could not be downloaded.
// Status is the last HTTP status seen, or 0 if no response arrived.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s (status %d): %v", e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Fetcher downloads static PDF documents. It is safe for concurrent use
// as long as callers write to different destination paths.
type Fetcher struct {
	client *resty.Client
	retry  *utils.RetryConfig
	logger *utils.Logger
}

// New creates a Fetcher that retries through retry.
func New(retry *utils.RetryConfig, logger *utils.Logger) *Fetcher {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	if retry == nil {
		retry = utils.NewRetryConfig(logger)
	}
	client := resty.New().
		SetTimeout(defaultTimeout).
		SetHeader("Accept", "application/pdf,application/octet-stream;q=0.9,*/*;q=0.5").
		SetHeader("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 "+
			"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	return &Fetcher{client: client, retry: retry, logger: logger}
}

// Download fetches docURL into destDir and returns the written path.
// Network errors, 5xx and 429 responses are retried; other statuses and
// non-PDF bodies fail at once. Nothing is written unless the body is a PDF.
func (f *Fetcher) Download(ctx context.Context, docURL, destDir string) (string, error) {
	body, status, err := f.get(ctx, docURL, func(contentType string, body []byte) error {
		if !isPDF(contentType, body) {
			return fmt.Errorf("%w: content type %q", ErrNotPDF, contentType)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	dest, err := Save(destDir, FileName(docURL), body)
	if err != nil {
		return "", &FetchError{URL: docURL, Status: status, Err: err}
	}

	if pages, err := Inspect(dest); err != nil {
		f.logger.Warn("[fetcher] Saved %s but could not read it as PDF: %v", dest, err)
	} else {
		f.logger.Info("[fetcher] Saved %s (%d pages, %d bytes)", dest, pages, len(body))
	}
	return dest, nil
}

// DownloadArchive fetches a ZIP archive into destDir/name. It retries like
// Download and writes nothing unless the body is a ZIP file.
func (f *Fetcher) DownloadArchive(ctx context.Context, archiveURL, destDir, name string) (string, error) {
	body, status, err := f.get(ctx, archiveURL, func(contentType string, body []byte) error {
		if !bytes.HasPrefix(body, zipMagic) {
			return fmt.Errorf("%w: content type %q", ErrNotZip, contentType)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	dest, err := Save(destDir, name, body)
	if err != nil {
		return "", &FetchError{URL: archiveURL, Status: status, Err: err}
	}
	f.logger.Info("[fetcher] Saved %s (%d bytes)", dest, len(body))
	return dest, nil
}

// get fetches rawURL and hands the body to accept, whose error is final.
func (f *Fetcher) get(ctx context.Context, rawURL string, accept func(contentType string, body []byte) error) ([]byte, int, error) {
	var (
		body       []byte
		lastStatus int
	)
	err := f.retry.Do(ctx, "download "+rawURL, func() error {
		body, lastStatus = nil, 0
		resp, err := f.client.R().SetContext(ctx).Get(rawURL)
		if err != nil {
			return models.Transient("get", err)
		}
		lastStatus = resp.StatusCode()
		switch {
		case lastStatus == http.StatusTooManyRequests || lastStatus >= 500:
			return models.Transient("get", fmt.Errorf("server returned %s", resp.Status()))
		case lastStatus < 200 || lastStatus > 299:
			return fmt.Errorf("server returned %s", resp.Status())
		}
		if err := accept(resp.Header().Get("Content-Type"), resp.Body()); err != nil {
			return err
		}
		body = resp.Body()
		return nil
	})
	if err != nil {
		return nil, lastStatus, &FetchError{URL: rawURL, Status: lastStatus, Err: err}
	}
	return body, lastStatus, nil
}

// isPDF accepts application/pdf, or a generic binary type whose body
// starts with the PDF magic.
func isPDF(contentType string, body []byte) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}
	switch mediaType {
	case "application/pdf", "application/x-pdf":
		return true
	case "application/octet-stream", "binary/octet-stream", "application/download", "":
		return bytes.HasPrefix(body, []byte("%PDF"))
	}
	return false
}

// FileName derives the local file name for a document URL.
func FileName(docURL string) string {
	p := docURL
	if u, err := url.Parse(docURL); err == nil {
		p = u.Path
	}
	name := path.Base(strings.TrimRight(p, "/"))
	if name == "." || name == "/" || name == "" {
		name = "document"
	}
	if !strings.EqualFold(path.Ext(name), ".pdf") {
		name += ".pdf"
	}
	return name
}

// Save writes body to destDir/name through a temporary file so readers
// never observe a partial document.
func Save(destDir, name string, body []byte) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("fetcher: create dir %q: %w", destDir, err)
	}
	tmp, err := os.CreateTemp(destDir, "."+name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("fetcher: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("fetcher: write %q: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("fetcher: close %q: %w", tmpName, err)
	}

	dest := filepath.Join(destDir, name)
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("fetcher: rename to %q: %w", dest, err)
	}
	return dest, nil
}

// Inspect returns the page count of the PDF at p.
func Inspect(p string) (int, error) {
	f, err := os.Open(p)
	if err != nil {
		return 0, fmt.Errorf("fetcher: open %q: %w", p, err)
	}
	defer f.Close()

	pages, err := api.PageCount(f, nil)
	if err != nil {
		return 0, fmt.Errorf("fetcher: count pages of %q: %w", p, err)
	}
	return pages, nil
}
