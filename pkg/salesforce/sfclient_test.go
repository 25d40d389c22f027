package salesforce

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	gosf "github.com/k-capehart/go-salesforce/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRESTClient(t *testing.T, handler http.Handler) Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	sf, err := gosf.Init(gosf.Creds{
		AccessToken: "test-token",
		Domain:      ts.URL,
	},
		gosf.WithValidateAuthentication(false),
		gosf.WithRoundTripper(http.DefaultTransport),
	)
	require.NoError(t, err)
	return NewClient(sf)
}

func TestRESTClient_QueryAccounts(t *testing.T) {
	client := newRESTClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/query")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"totalSize": 1,
			"done":      true,
			"records": []map[string]any{{
				"attributes":  map[string]any{"type": "Account"},
				"Id":          "001xx",
				"Name":        "Acme GmbH",
				"Website":     "https://acme.de",
				"BillingCity": "Hamburg",
			}},
		})
	}))

	var accounts []Account
	require.NoError(t, client.Query(context.Background(), "SELECT Id, Name FROM Account", &accounts))
	require.Len(t, accounts, 1)
	assert.Equal(t, "001xx", accounts[0].ID)
	assert.Equal(t, "Hamburg", accounts[0].BillingCity)
}

func TestRESTClient_QueryError(t *testing.T) {
	client := newRESTClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"message": "invalid SOQL", "errorCode": "MALFORMED_QUERY"},
		})
	}))

	var accounts []Account
	err := client.Query(context.Background(), "INVALID SOQL", &accounts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sf: query")
}

func TestRESTClient_InsertAccount(t *testing.T) {
	client := newRESTClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "acme.de", body["Website"])
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "001new", "success": true, "errors": []any{}})
	}))

	id, err := client.InsertOne(context.Background(), "Account", map[string]any{"Name": "Acme GmbH", "Website": "acme.de"})
	require.NoError(t, err)
	assert.Equal(t, "001new", id)
}

func TestRESTClient_UpdateBillingFields(t *testing.T) {
	client := newRESTClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"id": "001xx", "success": true, "errors": []any{}},
			{"id": "002xx", "success": true, "errors": []any{}},
		})
	}))

	results, err := client.UpdateCollection(context.Background(), "Account", []CollectionRecord{
		{ID: "001xx", Fields: map[string]any{"BillingCity": "Hamburg"}},
		{ID: "002xx", Fields: map[string]any{"Phone": "+41441234567"}},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].Success)
	assert.Equal(t, "002xx", results[1].ID)
}

func TestRESTClient_UpdateCollectionError(t *testing.T) {
	client := newRESTClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode([]map[string]any{{"message": "batch error"}})
	}))

	_, err := client.UpdateCollection(context.Background(), "Account", []CollectionRecord{
		{ID: "001xx", Fields: map[string]any{"Name": "A"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sf: update collection")
}
