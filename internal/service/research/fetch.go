package research

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const maxPageBytes = 2 << 20

// PageContent is the readable text of a fetched page.
type PageContent struct {
	URL       string `json:"url"`
	Title     string `json:"title"`
	Text      string `json:"text"`
	Truncated bool   `json:"truncated"`
}

// PageFetcher downloads a page and extracts its readable text.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*PageContent, error)
}

// HTTPPageFetcher fetches pages over HTTP and strips them with goquery.
// Local and private hosts are refused unless the policy allows them.
type HTTPPageFetcher struct {
	client   *http.Client
	maxChars int
	policy   TargetPolicy
}

// FetcherOption customises an HTTPPageFetcher.
type FetcherOption func(*HTTPPageFetcher)

// WithTargetPolicy overrides the default policy, which blocks local and
// private hosts.
func WithTargetPolicy(policy TargetPolicy) FetcherOption {
	return func(f *HTTPPageFetcher) {
		f.policy = policy
	}
}

// NewHTTPPageFetcher creates a fetcher; maxChars bounds the returned text.
func NewHTTPPageFetcher(timeout time.Duration, maxChars int, opts ...FetcherOption) *HTTPPageFetcher {
	if maxChars <= 0 {
		maxChars = 6000
	}
	f := &HTTPPageFetcher{maxChars: maxChars}
	for _, opt := range opts {
		opt(f)
	}

	dialer := &net.Dialer{
		Timeout: 10 * time.Second,
		Control: f.policy.dialControl,
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = dialer.DialContext
	f.client = &http.Client{Timeout: timeout, Transport: transport}
	return f
}

func (f *HTTPPageFetcher) Fetch(ctx context.Context, rawURL string) (*PageContent, error) {
	parsed, err := validateOutboundURL(rawURL, f.policy)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "ozy-researcher/1.0")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", parsed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", parsed, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", parsed, err)
	}

	text, truncated := extractText(doc, f.maxChars)
	return &PageContent{
		URL:       parsed.String(),
		Title:     strings.TrimSpace(doc.Find("title").First().Text()),
		Text:      text,
		Truncated: truncated,
	}, nil
}

func extractText(doc *goquery.Document, maxChars int) (string, bool) {
	doc.Find("script, style, noscript, nav, header, footer, aside, form").Remove()

	var b strings.Builder
	doc.Find("h1, h2, h3, p, li").Each(func(_ int, s *goquery.Selection) {
		text := strings.Join(strings.Fields(s.Text()), " ")
		if text == "" {
			return
		}
		if goquery.NodeName(s) == "li" {
			b.WriteString("- ")
		}
		b.WriteString(text)
		b.WriteString("\n")
	})

	runes := []rune(strings.TrimSpace(b.String()))
	if len(runes) <= maxChars {
		return string(runes), false
	}
	return string(runes[:maxChars]), true
}
