// Package vies provides a client for the EU VAT Information Exchange System
// REST API.
package vies

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/datafixer/internal/httpx"
	"github.com/sells-group/datafixer/internal/resilience"
)

// DefaultBaseURL is the public VIES REST endpoint.
const DefaultBaseURL = "https://ec.europa.eu/taxation_customs/vies/rest-api"

// ErrUnavailable is returned when the member state registry cannot answer.
var ErrUnavailable = eris.New("vies: member state registry unavailable")

// Client checks VAT numbers against VIES.
type Client interface {
	// Check validates number (without its prefix) for the member state
	// prefix countryCode ("DE", "EL", ...).
	Check(ctx context.Context, countryCode, number string) (*CheckResult, error)
}

// CheckResult is the VIES answer for one VAT number.
type CheckResult struct {
	CountryCode string `json:"countryCode"`
	VATNumber   string `json:"vatNumber"`
	Valid       bool   `json:"isValid"`
	Name        string `json:"name"`
	Address     string `json:"address"`
	UserError   string `json:"userError"`
	RequestDate string `json:"requestDate"`
}

// HasName reports whether VIES disclosed a trader name. Some member states
// return "---" instead.
func (r *CheckResult) HasName() bool {
	return cleanValue(r.Name) != ""
}

// TraderName returns the disclosed name or "".
func (r *CheckResult) TraderName() string {
	return cleanValue(r.Name)
}

// TraderAddress returns the disclosed address or "".
func (r *CheckResult) TraderAddress() string {
	return cleanValue(r.Address)
}

func cleanValue(s string) string {
	s = strings.TrimSpace(s)
	if s == "---" || s == "-" {
		return ""
	}
	return s
}

// unavailableErrors are userError codes that mean "ask again later".
var unavailableErrors = map[string]bool{
	"MS_UNAVAILABLE":            true,
	"MS_MAX_CONCURRENT_REQ":     true,
	"GLOBAL_MAX_CONCURRENT_REQ": true,
	"SERVICE_UNAVAILABLE":       true,
	"TIMEOUT":                   true,
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

// NewClient creates a VIES client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: DefaultBaseURL,
		doer:    httpx.New("vies", 5),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Check(ctx context.Context, countryCode, number string) (*CheckResult, error) {
	cc := strings.ToUpper(strings.TrimSpace(countryCode))
	if len(cc) != 2 || strings.TrimSpace(number) == "" {
		return nil, eris.Errorf("vies: malformed vat id %q", countryCode+number)
	}
	reqURL := fmt.Sprintf("%s/ms/%s/vat/%s", c.baseURL, cc, url.PathEscape(strings.TrimSpace(number)))

	var result CheckResult
	if err := c.doer.GetJSON(ctx, reqURL, nil, &result); err != nil {
		return nil, err
	}
	if unavailableErrors[result.UserError] {
		return nil, eris.Wrapf(ErrUnavailable, "%s: %s", cc, result.UserError)
	}
	if result.CountryCode == "" {
		result.CountryCode = cc
	}
	return &result, nil
}
