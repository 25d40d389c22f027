// Package opencorporates provides a client for the OpenCorporates company
// registry API.
package opencorporates

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/datafixer/internal/httpx"
	"github.com/sells-group/datafixer/internal/resilience"
)

// DefaultBaseURL is the public API root.
const DefaultBaseURL = "https://api.opencorporates.com/v0.4"

// Client searches national company registers through OpenCorporates.
type Client interface {
	// Search finds companies by name, optionally within a jurisdiction
	// ("de", "gb", "us_de", ...).
	Search(ctx context.Context, name, jurisdiction string) ([]Company, error)
	// Lookup fetches one company by jurisdiction and register number. It
	// returns nil, nil when the register has no such company.
	Lookup(ctx context.Context, jurisdiction, number string) (*Company, error)
}

// Company is a register entry.
type Company struct {
	Name              string  `json:"name"`
	CompanyNumber     string  `json:"company_number"`
	JurisdictionCode  string  `json:"jurisdiction_code"`
	CompanyType       string  `json:"company_type"`
	CurrentStatus     string  `json:"current_status"`
	Inactive          bool    `json:"inactive"`
	RegisteredAddress Address `json:"registered_address"`
	AddressInFull     string  `json:"registered_address_in_full"`
	OpenCorporatesURL string  `json:"opencorporates_url"`
	RegistryURL       string  `json:"registry_url"`
}

// Address is a structured registered address.
type Address struct {
	StreetAddress string `json:"street_address"`
	Locality      string `json:"locality"`
	Region        string `json:"region"`
	PostalCode    string `json:"postal_code"`
	Country       string `json:"country"`
}

// CountryCode returns the ISO country part of the jurisdiction code.
func (c Company) CountryCode() string {
	j := c.JurisdictionCode
	if i := strings.IndexByte(j, '_'); i > 0 {
		j = j[:i]
	}
	return strings.ToUpper(j)
}

type searchResponse struct {
	Results struct {
		Companies []struct {
			Company Company `json:"company"`
		} `json:"companies"`
	} `json:"results"`
}

type lookupResponse struct {
	Results struct {
		Company Company `json:"company"`
	} `json:"results"`
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
	apiToken string
	baseURL  string
	doer     *httpx.Doer
}

// NewClient creates a client. apiToken may be empty for the rate-limited
// anonymous tier.
func NewClient(apiToken string, opts ...Option) Client {
	c := &httpClient{
		apiToken: apiToken,
		baseURL:  DefaultBaseURL,
		doer:     httpx.New("opencorporates", 2),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) query(v url.Values) string {
	if c.apiToken != "" {
		v.Set("api_token", c.apiToken)
	}
	return v.Encode()
}

func (c *httpClient) Search(ctx context.Context, name, jurisdiction string) ([]Company, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	v := url.Values{}
	v.Set("q", name)
	v.Set("per_page", "10")
	if jurisdiction != "" {
		v.Set("jurisdiction_code", strings.ToLower(jurisdiction))
	}

	var resp searchResponse
	if err := c.doer.GetJSON(ctx, c.baseURL+"/companies/search?"+c.query(v), nil, &resp); err != nil {
		return nil, eris.Wrap(err, "opencorporates: search")
	}
	out := make([]Company, 0, len(resp.Results.Companies))
	for _, rc := range resp.Results.Companies {
		out = append(out, rc.Company)
	}
	return out, nil
}

func (c *httpClient) Lookup(ctx context.Context, jurisdiction, number string) (*Company, error) {
	jurisdiction = strings.ToLower(strings.TrimSpace(jurisdiction))
	number = strings.TrimSpace(number)
	if jurisdiction == "" || number == "" {
		return nil, nil
	}
	reqURL := fmt.Sprintf("%s/companies/%s/%s?%s", c.baseURL,
		url.PathEscape(jurisdiction), url.PathEscape(number), c.query(url.Values{}))

	var resp lookupResponse
	if err := c.doer.GetJSON(ctx, reqURL, nil, &resp); err != nil {
		if resilience.IsStatus(err, 404) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "opencorporates: lookup")
	}
	if resp.Results.Company.Name == "" {
		return nil, nil
	}
	return &resp.Results.Company, nil
}
