package parser

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"CompetitorReports/internal/domain"
	"CompetitorReports/internal/scanner"
)

const (
	defaultUserAgent = "CompetitorReports/1.0"
	maxTextLength    = 5000
	maxHeadings      = 20
	maxFeatures      = 15
	lightFeatures    = 5
	shortDescription = 280
)

// PageFetcher downloads and parses HTML documents.
type PageFetcher struct {
	client    *http.Client
	userAgent string
}

// NewPageFetcher wires an HTTP client; the client timeout defaults to 20s.
func NewPageFetcher(client *http.Client, userAgent string) *PageFetcher {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &PageFetcher{client: client, userAgent: userAgent}
}

func (f *PageFetcher) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned %s", pageURL, resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	return doc, nil
}

// FullScanner captures title, description, headings, feature bullets and visible text.
type FullScanner struct {
	fetcher *PageFetcher
}

// NewFullScanner creates the full capture strategy.
func NewFullScanner(fetcher *PageFetcher) *FullScanner {
	return &FullScanner{fetcher: fetcher}
}

// Mode identifies the strategy inside the registry.
func (s *FullScanner) Mode() domain.CaptureMode {
	return domain.CaptureFull
}

// Scan fetches req.URL and extracts every supported field.
func (s *FullScanner) Scan(ctx context.Context, req scanner.Request) (domain.SnapshotContent, error) {
	doc, err := s.fetcher.fetchDocument(ctx, req.URL)
	if err != nil {
		return domain.SnapshotContent{}, err
	}
	return extractFull(doc, req.URL), nil
}

// LightweightScanner captures title, a short description and a few bullets.
type LightweightScanner struct {
	fetcher *PageFetcher
}

// NewLightweightScanner creates the reduced-scope capture strategy.
func NewLightweightScanner(fetcher *PageFetcher) *LightweightScanner {
	return &LightweightScanner{fetcher: fetcher}
}

// Mode identifies the strategy inside the registry.
func (s *LightweightScanner) Mode() domain.CaptureMode {
	return domain.CaptureLightweight
}

// Scan fetches req.URL and extracts the reduced field set.
func (s *LightweightScanner) Scan(ctx context.Context, req scanner.Request) (domain.SnapshotContent, error) {
	doc, err := s.fetcher.fetchDocument(ctx, req.URL)
	if err != nil {
		return domain.SnapshotContent{}, err
	}
	return extractLightweight(doc, req.URL), nil
}

func extractFull(doc *goquery.Document, pageURL string) domain.SnapshotContent {
	content := domain.SnapshotContent{
		URL:         pageURL,
		Title:       pageTitle(doc),
		Description: pageDescription(doc),
		Features:    featureBullets(doc, maxFeatures),
	}

	doc.Find("h1, h2, h3").EachWithBreak(func(i int, h *goquery.Selection) bool {
		if text := collapse(h.Text()); text != "" {
			content.Headings = append(content.Headings, text)
		}
		return len(content.Headings) < maxHeadings
	})

	body := doc.Find("body").Clone()
	body.Find("script, style, noscript, svg, nav, footer").Remove()
	content.Text = truncate(collapse(body.Text()), maxTextLength)
	return content
}

func extractLightweight(doc *goquery.Document, pageURL string) domain.SnapshotContent {
	return domain.SnapshotContent{
		URL:         pageURL,
		Title:       pageTitle(doc),
		Description: truncate(pageDescription(doc), shortDescription),
		Features:    featureBullets(doc, lightFeatures),
	}
}

func pageTitle(doc *goquery.Document) string {
	if title := collapse(doc.Find("title").First().Text()); title != "" {
		return title
	}
	if title, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok {
		return collapse(title)
	}
	return collapse(doc.Find("h1").First().Text())
}

func pageDescription(doc *goquery.Document) string {
	for _, sel := range []string{`meta[name="description"]`, `meta[property="og:description"]`} {
		if desc, ok := doc.Find(sel).Attr("content"); ok && strings.TrimSpace(desc) != "" {
			return collapse(desc)
		}
	}
	return collapse(doc.Find("main p, p").First().Text())
}

// featureBullets prefers list items inside feature-like sections and falls
// back to any list item in the main content.
func featureBullets(doc *goquery.Document, limit int) []string {
	var out []string
	seen := map[string]struct{}{}
	collect := func(sel *goquery.Selection) {
		sel.EachWithBreak(func(i int, li *goquery.Selection) bool {
			text := collapse(li.Text())
			if text == "" || len(text) > 200 {
				return true
			}
			if _, dup := seen[text]; dup {
				return true
			}
			seen[text] = struct{}{}
			out = append(out, text)
			return len(out) < limit
		})
	}

	collect(doc.Find(`[class*="feature"] li, [id*="feature"] li`))
	if len(out) == 0 {
		collect(doc.Find("main li"))
	}
	if len(out) == 0 {
		collect(doc.Find("body li").Not("nav li, footer li"))
	}
	return out
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit])) + "..."
}
