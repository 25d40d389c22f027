package opencorporates

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/datafixer/internal/resilience"
)

func newTestClient(url string) Client {
	return NewClient("tok", WithBaseURL(url), WithRate(0),
		WithPolicy(resilience.Policy{Attempts: 1, BaseDelay: time.Millisecond}))
}

func TestSearch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/companies/search", r.URL.Path)
		assert.Equal(t, "Acme GmbH", r.URL.Query().Get("q"))
		assert.Equal(t, "de", r.URL.Query().Get("jurisdiction_code"))
		assert.Equal(t, "tok", r.URL.Query().Get("api_token"))
		_, _ = w.Write([]byte(`{"results":{"companies":[
			{"company":{"name":"ACME GMBH","company_number":"HRB 12345","jurisdiction_code":"de",
			  "registered_address":{"street_address":"Hauptstr. 1","locality":"Berlin","postal_code":"10115","country":"Germany"},
			  "opencorporates_url":"https://opencorporates.com/companies/de/HRB_12345"}},
			{"company":{"name":"Acme Holding GmbH","company_number":"HRB 999","jurisdiction_code":"de"}}
		]}}`))
	}))
	defer srv.Close()

	got, err := newTestClient(srv.URL).Search(context.Background(), "Acme GmbH", "DE")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "ACME GMBH", got[0].Name)
	assert.Equal(t, "Berlin", got[0].RegisteredAddress.Locality)
	assert.Equal(t, "DE", got[0].CountryCode())
}

func TestSearch_EmptyName(t *testing.T) {
	t.Parallel()

	got, err := NewClient("").Search(context.Background(), "  ", "de")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLookup(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/companies/gb/01234567", r.URL.Path)
		_, _ = w.Write([]byte(`{"results":{"company":{"name":"ACME LIMITED","company_number":"01234567","jurisdiction_code":"gb"}}}`))
	}))
	defer srv.Close()

	got, err := newTestClient(srv.URL).Lookup(context.Background(), "GB", "01234567")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "ACME LIMITED", got.Name)
}

func TestLookup_NotFound(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	got, err := newTestClient(srv.URL).Lookup(context.Background(), "de", "HRB 1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLookup_Unauthorized(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Lookup(context.Background(), "de", "HRB 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestCountryCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "US", Company{JurisdictionCode: "us_de"}.CountryCode())
	assert.Equal(t, "FR", Company{JurisdictionCode: "fr"}.CountryCode())
}
