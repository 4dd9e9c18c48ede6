// Package fetcher downloads a page and extracts what a selector matches,
// which lets a selector be checked before a task is scheduled with it.
package fetcher

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"scrape_bot/internal/model"
)

const (
	userAgent   = "ScrapeBot/1.0"
	maxBodySize = 5 * 1024 * 1024
	maxTextLen  = 300
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Link is an anchor inside a matched element, with its href made absolute.
type Link struct {
	Text string
	Href string
}

// Match is what a selector found on a page.
type Match struct {
	Count int
	Texts []string
	Links []Link
	// Hash fingerprints the matched text so two probes can be compared.
	Hash string
}

// Fetcher downloads HTML pages.
type Fetcher struct {
	client  HTTPClient
	timeout time.Duration
}

// New creates a Fetcher with the given HTTP client.
func New(client HTTPClient) *Fetcher {
	return &Fetcher{
		client:  client,
		timeout: 30 * time.Second,
	}
}

// SetTimeout overrides the default 30 second fetch timeout.
func (f *Fetcher) SetTimeout(d time.Duration) {
	f.timeout = d
}

// Fetch downloads and parses the HTML page at pageURL.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (*goquery.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// Probe fetches pageURL and reports what selector matches there.
func (f *Fetcher) Probe(ctx context.Context, pageURL, selector string) (*Match, error) {
	if strings.TrimSpace(pageURL) == "" {
		return nil, &model.ValidationError{Field: model.FieldURL}
	}
	if strings.TrimSpace(selector) == "" {
		return nil, &model.ValidationError{Field: model.FieldSelector}
	}
	if _, err := cascadia.ParseGroup(selector); err != nil {
		return nil, &model.ValidationError{Field: model.FieldSelector, Reason: err.Error()}
	}

	doc, err := f.Fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	base, _ := url.Parse(pageURL)
	return Extract(doc, selector, base), nil
}

// Extract collects the text and links of every element matching selector.
// Script and style contents are ignored.
func Extract(doc *goquery.Document, selector string, base *url.URL) *Match {
	doc.Find("script, style").Remove()

	m := &Match{}
	h := sha256.New()
	doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		m.Count++
		text := CleanText(sel.Text())
		_, _ = io.WriteString(h, text+"\n")
		m.Texts = append(m.Texts, truncate(text, maxTextLen))

		sel.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
			href, _ := a.Attr("href")
			text := CleanText(a.Text())
			if href == "" || text == "" {
				return
			}
			m.Links = append(m.Links, Link{Text: text, Href: resolve(base, href)})
		})
	})
	m.Hash = fmt.Sprintf("sha256:%x", h.Sum(nil)[:16])
	return m
}

// CleanText collapses runs of whitespace into single spaces.
func CleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func resolve(base *url.URL, href string) string {
	if base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
