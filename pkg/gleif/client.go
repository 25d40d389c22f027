// Package gleif provides a client for the GLEIF LEI records API, a global
// register of legal entities.
package gleif

import (
	"context"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/datafixer/internal/httpx"
	"github.com/sells-group/datafixer/internal/resilience"
)

// DefaultBaseURL is the public API root.
const DefaultBaseURL = "https://api.gleif.org/api/v1"

// Client searches the LEI register.
type Client interface {
	// Search finds entities by legal name, optionally within a country.
	Search(ctx context.Context, name, country string) ([]Record, error)
	// Lookup fetches one entity by LEI. It returns nil, nil when unknown.
	Lookup(ctx context.Context, lei string) (*Record, error)
}

// Record is a flattened LEI record.
type Record struct {
	LEI          string
	LegalName    string
	RegisteredAs string
	Jurisdiction string
	Status       string
	Address      Address
}

// Address is the legal address of an entity.
type Address struct {
	Lines      []string `json:"addressLines"`
	City       string   `json:"city"`
	Region     string   `json:"region"`
	Country    string   `json:"country"`
	PostalCode string   `json:"postalCode"`
}

// URL is the public record page.
func (r Record) URL() string {
	return "https://search.gleif.org/#/record/" + r.LEI
}

type apiRecord struct {
	ID         string `json:"id"`
	Attributes struct {
		LEI    string `json:"lei"`
		Entity struct {
			LegalName struct {
				Name string `json:"name"`
			} `json:"legalName"`
			LegalAddress Address `json:"legalAddress"`
			RegisteredAs string  `json:"registeredAs"`
			Jurisdiction string  `json:"jurisdiction"`
			Status       string  `json:"status"`
		} `json:"entity"`
	} `json:"attributes"`
}

func (a apiRecord) flatten() Record {
	lei := a.Attributes.LEI
	if lei == "" {
		lei = a.ID
	}
	e := a.Attributes.Entity
	return Record{
		LEI:          lei,
		LegalName:    e.LegalName.Name,
		RegisteredAs: e.RegisteredAs,
		Jurisdiction: e.Jurisdiction,
		Status:       e.Status,
		Address:      e.LegalAddress,
	}
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithRate sets the request rate limit in requests per second.
func WithRate(rps float64) Option {
	return func(c *httpClient) {
		c.doer.SetRate(rps)
	}
}

// WithPolicy overrides the retry policy.
func WithPolicy(p resilience.Policy) Option {
	return func(c *httpClient) {
		c.doer.Policy = p
	}
}

type httpClient struct {
	baseURL string
	doer    *httpx.Doer
}

// NewClient creates a GLEIF client. The API needs no credentials.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: DefaultBaseURL,
		doer:    httpx.New("gleif", 5),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var jsonAPI = map[string]string{"Accept": "application/vnd.api+json"}

func (c *httpClient) Search(ctx context.Context, name, country string) ([]Record, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	v := url.Values{}
	v.Set("filter[entity.legalName]", name)
	if country != "" {
		v.Set("filter[entity.legalAddress.country]", strings.ToUpper(country))
	}
	v.Set("page[size]", "10")

	var resp struct {
		Data []apiRecord `json:"data"`
	}
	if err := c.doer.GetJSON(ctx, c.baseURL+"/lei-records?"+v.Encode(), jsonAPI, &resp); err != nil {
		return nil, eris.Wrap(err, "gleif: search")
	}
	out := make([]Record, 0, len(resp.Data))
	for _, d := range resp.Data {
		out = append(out, d.flatten())
	}
	return out, nil
}

func (c *httpClient) Lookup(ctx context.Context, lei string) (*Record, error) {
	lei = strings.ToUpper(strings.TrimSpace(lei))
	if lei == "" {
		return nil, nil
	}

	var resp struct {
		Data *apiRecord `json:"data"`
	}
	if err := c.doer.GetJSON(ctx, c.baseURL+"/lei-records/"+url.PathEscape(lei), jsonAPI, &resp); err != nil {
		if resilience.IsStatus(err, 404) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "gleif: lookup")
	}
	if resp.Data == nil {
		return nil, nil
	}
	r := resp.Data.flatten()
	return &r, nil
}
