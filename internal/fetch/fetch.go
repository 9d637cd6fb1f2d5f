// Package fetch defines the Page Fetcher/Parser collaborator (C3): given a
// URL, retrieve and extract its readable body. This is the second stage of
// the Planner's two-stage URL filter — it rejects fetch failures and bodies
// under a minimum length. Fetch also checks the content type against
// text/html and text/plain, but fetchHTML always reports "text/html", so
// that check never rejects a page.
package fetch

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	readability "github.com/go-shiori/go-readability"

	"github.com/oedrhq/engine/internal/helpers"
)

// Page is the extracted content of one fetched URL.
type Page struct {
	URL         string
	Title       string
	Author      string
	PublishedAt string
	Text        string
	MIME        string
	HTMLHash    string
	RenderMS    int
}

// Fetcher retrieves and extracts the readable body of a page.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (Page, error)
}

// ErrBodyTooShort is returned when the extracted body falls under
// MinBodyChars, the second-stage rejection the spec requires independent
// of fetch success.
var ErrBodyTooShort = errors.New("fetched body below minimum length")

// ErrNonTextMIME is returned when the fetched resource is not renderable
// text (images, binaries, etc).
var ErrNonTextMIME = errors.New("fetched resource is not text")

// Config tunes the chromedp-backed fetcher.
type Config struct {
	Timeout      time.Duration
	MaxChars     int
	MinBodyChars int
}

type chromedpFetcher struct {
	cfg Config
}

// New constructs the headless-browser Fetcher, following the teacher's
// chromedp+readability extraction pipeline.
func New(cfg Config) Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = 20000
	}
	if cfg.MinBodyChars <= 0 {
		cfg.MinBodyChars = 200
	}
	return chromedpFetcher{cfg: cfg}
}

func (f chromedpFetcher) Fetch(ctx context.Context, rawURL string) (Page, error) {
	if strings.TrimSpace(rawURL) == "" {
		return Page{}, fmt.Errorf("fetch: empty url")
	}

	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()
	start := time.Now()

	html, contentType, err := fetchHTML(ctx, rawURL)
	if err != nil {
		return Page{}, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	if contentType != "" && !strings.Contains(contentType, "text/html") && !strings.Contains(contentType, "text/plain") {
		return Page{}, fmt.Errorf("fetch %s: %w (%s)", rawURL, ErrNonTextMIME, contentType)
	}

	parsedURL, _ := url.Parse(rawURL)
	article, err := readability.FromReader(strings.NewReader(html), parsedURL)
	if err != nil {
		return Page{}, fmt.Errorf("extract readable content from %s: %w", rawURL, err)
	}

	text := strings.TrimSpace(article.TextContent)
	if len(text) > f.cfg.MaxChars {
		text = text[:f.cfg.MaxChars]
	}
	if len(text) < f.cfg.MinBodyChars {
		return Page{}, fmt.Errorf("fetch %s: %w (%d chars)", rawURL, ErrBodyTooShort, len(text))
	}

	sum := sha1.Sum([]byte(html))
	return Page{
		URL:         rawURL,
		Title:       helpers.SanitizeHTMLStrict(article.Title),
		Author:      helpers.SanitizeHTMLStrict(article.Byline),
		PublishedAt: helpers.SanitizeHTMLStrict(article.SiteName),
		Text:        text,
		MIME:        "text/html",
		HTMLHash:    hex.EncodeToString(sum[:]),
		RenderMS:    int(time.Since(start) / time.Millisecond),
	}, nil
}

func fetchHTML(ctx context.Context, rawURL string) (html, contentType string, err error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.UserAgent("oedr-engine/1.0 (+research-agent)"),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	err = chromedp.Run(browserCtx,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	return html, "text/html", err
}
