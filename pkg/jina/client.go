// Package jina is a client for the Jina reader (r.jina.ai) and search
// (s.jina.ai) endpoints.
package jina

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/datafixer/internal/httpx"
	"github.com/sells-group/datafixer/internal/resilience"
)

const (
	defaultReaderURL = "https://r.jina.ai"
	defaultSearchURL = "https://s.jina.ai"
)

// Client reads pages as markdown and runs web searches.
type Client interface {
	Read(ctx context.Context, targetURL string) (*ReadResponse, error)
	Search(ctx context.Context, query string, opts ...SearchOption) (*SearchResponse, error)
}

type ReadResponse struct {
	Code int      `json:"code"`
	Data ReadData `json:"data"`
}

type ReadData struct {
	Title   string    `json:"title"`
	URL     string    `json:"url"`
	Content string    `json:"content"`
	Usage   ReadUsage `json:"usage"`
}

// ReadUsage is the token count Jina bills for a read.
type ReadUsage struct {
	Tokens int `json:"tokens"`
}

// SearchResponse holds search hits. Code is 422 when Jina found nothing.
type SearchResponse struct {
	Code int            `json:"code"`
	Data []SearchResult `json:"data"`
}

type SearchResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Content     string `json:"content"`
	Description string `json:"description"`
}

// Text returns the description, or the content when there is none.
func (r SearchResult) Text() string {
	if d := strings.TrimSpace(r.Description); d != "" {
		return d
	}
	return strings.TrimSpace(r.Content)
}

// SearchOption adds a parameter to a search.
type SearchOption func(url.Values)

// WithCountry biases results towards a country (ISO 3166-1 alpha-2).
func WithCountry(code string) SearchOption {
	return func(v url.Values) {
		if code != "" {
			v.Set("gl", strings.ToUpper(code))
		}
	}
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the reader endpoint.
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.readerURL = strings.TrimRight(u, "/") }
}

// WithSearchBaseURL overrides the search endpoint.
func WithSearchBaseURL(u string) Option {
	return func(c *httpClient) { c.searchURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.doer.HTTP = hc }
}

// WithRate sets requests per second shared by read and search.
func WithRate(rps float64) Option {
	return func(c *httpClient) { c.doer.SetRate(rps) }
}

func WithPolicy(p resilience.Policy) Option {
	return func(c *httpClient) { c.doer.Policy = p }
}

type httpClient struct {
	apiKey    string
	readerURL string
	searchURL string
	doer      *httpx.Doer
}

// NewClient returns a Client. An empty apiKey uses the anonymous tier.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:    apiKey,
		readerURL: defaultReaderURL,
		searchURL: defaultSearchURL,
		doer:      httpx.New("jina", 3),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) fetch(ctx context.Context, target string, markdown bool, out any) error {
	headers := make(map[string]string, 2)
	if c.apiKey != "" {
		headers["Authorization"] = "Bearer " + c.apiKey
	}
	if markdown {
		headers["X-Return-Format"] = "markdown"
	}
	return c.doer.GetJSON(ctx, target, headers, out)
}

func (c *httpClient) Read(ctx context.Context, targetURL string) (*ReadResponse, error) {
	var resp ReadResponse
	if err := c.fetch(ctx, c.readerURL+"/"+targetURL, true, &resp); err != nil {
		return nil, eris.Wrap(err, "jina: read")
	}
	return &resp, nil
}

func (c *httpClient) Search(ctx context.Context, query string, opts ...SearchOption) (*SearchResponse, error) {
	params := url.Values{"q": {query}}
	for _, opt := range opts {
		opt(params)
	}

	var resp SearchResponse
	err := c.fetch(ctx, c.searchURL+"/?"+params.Encode(), false, &resp)
	switch {
	case resilience.IsStatus(err, http.StatusUnprocessableEntity):
		return &SearchResponse{Code: http.StatusUnprocessableEntity}, nil
	case err != nil:
		return nil, eris.Wrap(err, "jina: search")
	}
	return &resp, nil
}
