package scrape

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

// Scraper fetches a URL and returns a text rendering of its content.
type Scraper interface {
	Scrape(ctx context.Context, url string) (string, error)
}

// HTTPScraper pulls a page over HTTP and flattens it to a markdown-ish text
// digest: title, headings, paragraphs, and code blocks.
type HTTPScraper struct {
	client   *http.Client
	maxBytes int64
}

// NewHTTPScraper builds a scraper with the given request timeout.
func NewHTTPScraper(timeout time.Duration) *HTTPScraper {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPScraper{
		client:   &http.Client{Timeout: timeout},
		maxBytes: 2 << 20, // 2MB
	}
}

// Scrape fetches the URL and renders its main textual content.
func (s *HTTPScraper) Scrape(ctx context.Context, rawURL string) (string, error) {
	if strings.TrimSpace(rawURL) == "" {
		return "", errors.New("url is required")
	}
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return "", fmt.Errorf("unsupported url scheme: %s", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "Codeloft/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
	}

	limited := &io.LimitedReader{R: resp.Body, N: s.maxBytes}
	body, err := io.ReadAll(limited)
	if err != nil {
		return "", err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, noscript, nav, footer").Remove()

	var b strings.Builder
	if title := normalizeWhitespace(doc.Find("title").First().Text()); title != "" {
		fmt.Fprintf(&b, "# %s\n\n", title)
	}
	doc.Find("h1, h2, h3, p, li, pre").Each(func(_ int, sel *goquery.Selection) {
		switch goquery.NodeName(sel) {
		case "h1", "h2", "h3":
			if text := normalizeWhitespace(sel.Text()); text != "" {
				fmt.Fprintf(&b, "## %s\n\n", text)
			}
		case "pre":
			if text := strings.TrimSpace(sel.Text()); text != "" {
				fmt.Fprintf(&b, "```\n%s\n```\n\n", text)
			}
		case "li":
			if text := normalizeWhitespace(sel.Text()); text != "" {
				fmt.Fprintf(&b, "- %s\n", text)
			}
		default:
			if text := normalizeWhitespace(sel.Text()); text != "" {
				fmt.Fprintf(&b, "%s\n\n", text)
			}
		}
	})

	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", fmt.Errorf("no readable content at %s", rawURL)
	}
	return out, nil
}

func normalizeWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}
