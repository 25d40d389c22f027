// Package httpx is the shared request loop of the enrichment HTTP clients:
// rate limiting, retries on transient statuses and JSON decoding.
package httpx

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/datafixer/internal/resilience"
)

// maxBody bounds how much of a response is read.
const maxBody = 8 << 20

// Doer executes requests for one upstream service.
type Doer struct {
	Service string
	HTTP    *http.Client
	Limiter *rate.Limiter
	Policy  resilience.Policy
}

// New returns a Doer with a pooled transport, the given per-second rate
// (0 disables limiting) and the default retry policy.
func New(service string, rps float64) *Doer {
	d := &Doer{
		Service: service,
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		Policy: resilience.DefaultPolicy(),
	}
	d.Policy.OnRetry = resilience.LogRetries(service, "request")
	d.SetRate(rps)
	return d
}

// SetRate replaces the limiter. rps <= 0 disables limiting.
func (d *Doer) SetRate(rps float64) {
	if rps <= 0 {
		d.Limiter = nil
		return
	}
	d.Limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
}

// Do sends build() until a non-transient outcome and returns the body of a
// 2xx response. Non-2xx responses come back as *resilience.StatusError.
func (d *Doer) Do(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	return resilience.Retry(ctx, d.Policy, func(ctx context.Context) ([]byte, error) {
		if d.Limiter != nil {
			if err := d.Limiter.Wait(ctx); err != nil {
				return nil, eris.Wrapf(err, "%s: rate limit wait", d.Service)
			}
		}
		req, err := build(ctx)
		if err != nil {
			return nil, eris.Wrapf(err, "%s: create request", d.Service)
		}
		resp, err := d.HTTP.Do(req)
		if err != nil {
			return nil, eris.Wrapf(err, "%s: request failed", d.Service)
		}
		defer resp.Body.Close() //nolint:errcheck

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
		if err != nil {
			return nil, eris.Wrapf(err, "%s: read response body", d.Service)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, resilience.NewStatusError(d.Service, resp.StatusCode, body)
		}
		return body, nil
	})
}

// GetJSON issues a GET to url with headers and decodes the JSON body into out.
func (d *Doer) GetJSON(ctx context.Context, url string, headers map[string]string, out any) error {
	body, err := d.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		return req, nil
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrapf(err, "%s: unmarshal response", d.Service)
	}
	return nil
}
