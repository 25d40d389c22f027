// Package homepage fetches a company website and reduces it to readable text.
package homepage

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/datafixer/internal/httpx"
	"github.com/sells-group/datafixer/internal/resilience"
	"github.com/sells-group/datafixer/pkg/jina"
)

// minText is the shortest extraction accepted before falling back to the
// reader API.
const minText = 200

// userAgent identifies direct fetches.
const userAgent = "Mozilla/5.0 (compatible; datafixer/1.0; +https://github.com/sells-group/datafixer)"

// Page is the extracted text of a website.
type Page struct {
	URL      string
	Title    string
	SiteName string
	Excerpt  string
	Text     string
	// ViaReader is set when the direct fetch failed and the reader API
	// produced the text.
	ViaReader bool
}

// Fetcher extracts homepages.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*Page, error)
}

// Option configures the fetcher.
type Option func(*fetcher)

// WithReader sets a Jina reader used when direct extraction fails.
func WithReader(r jina.Client) Option {
	return func(f *fetcher) {
		f.reader = r
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(f *fetcher) {
		f.doer.HTTP = hc
	}
}

// WithPolicy overrides the retry policy of direct fetches.
func WithPolicy(p resilience.Policy) Option {
	return func(f *fetcher) {
		f.doer.Policy = p
	}
}

type fetcher struct {
	doer   *httpx.Doer
	reader jina.Client
}

// NewFetcher creates a homepage fetcher.
func NewFetcher(opts ...Option) Fetcher {
	f := &fetcher{doer: httpx.New("homepage", 0)}
	f.doer.Policy.Attempts = 2
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *fetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return nil, eris.Errorf("homepage: invalid url %q", rawURL)
	}

	page, err := f.direct(ctx, u)
	if err == nil && len(page.Text) >= minText {
		return page, nil
	}
	if f.reader == nil {
		if err != nil {
			return nil, err
		}
		return page, nil
	}

	zap.L().Debug("homepage: falling back to reader",
		zap.String("url", u.String()),
		zap.Error(err),
	)
	resp, rerr := f.reader.Read(ctx, u.String())
	if rerr != nil {
		if err != nil {
			return nil, eris.Wrap(rerr, "homepage: reader fallback")
		}
		return page, nil
	}
	return &Page{
		URL:       u.String(),
		Title:     resp.Data.Title,
		Text:      strings.TrimSpace(resp.Data.Content),
		ViaReader: true,
	}, nil
}

func (f *fetcher) direct(ctx context.Context, u *url.URL) (*Page, error) {
	body, err := f.doer.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", "text/html,application/xhtml+xml")
		return req, nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "homepage: fetch")
	}

	article, err := readability.FromReader(bytes.NewReader(body), u)
	if err != nil {
		return nil, eris.Wrap(err, "homepage: extract")
	}
	return &Page{
		URL:      u.String(),
		Title:    strings.TrimSpace(article.Title),
		SiteName: strings.TrimSpace(article.SiteName),
		Excerpt:  strings.TrimSpace(article.Excerpt),
		Text:     collapse(article.TextContent),
	}, nil
}

// collapse squeezes whitespace runs into single spaces.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
