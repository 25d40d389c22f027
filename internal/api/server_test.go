package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/datafixer/internal/model"
	"github.com/sells-group/datafixer/internal/store"
)

type fakeRunner struct {
	calls   atomic.Int32
	release chan struct{}
}

func (f *fakeRunner) RunJob(ctx context.Context, _ string) (model.BatchResult, error) {
	f.calls.Add(1)
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return model.BatchResult{}, ctx.Err()
		}
	}
	return model.BatchResult{Processed: 1}, nil
}

func newTestServer(t *testing.T, runner JobRunner, opts ...Option) (*Server, http.Handler, *store.SQLiteStore) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	if runner == nil {
		runner = &fakeRunner{}
	}
	srv := New(context.Background(), st, runner, opts...)
	return srv, srv.Handler(), st
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	_, h, _ := newTestServer(t, nil)

	w := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestMetricsAndCORS(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("datafixer_rows_total 1\n"))
	})
	_, h, _ := newTestServer(t, nil, WithMetricsHandler(metrics))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Origin", "https://ops.example.com")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "datafixer_rows_total")
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCreateJob_WithSchema(t *testing.T) {
	_, h, _ := newTestServer(t, nil)

	w := do(t, h, http.MethodPost, "/v1/jobs", map[string]any{
		"name":   "suppliers",
		"schema": map[string]any{"fields": map[string]string{"company_name": "Company", "city": "Town"}},
		"rows": []map[string]any{
			{"Company": "Acme GmbH", "Town": "Berlin", "Notes": "ignored"},
			{"Company": "Beta AG", "Town": nil},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[createJobResponse](t, w)
	require.NotNil(t, created.Job)
	assert.Equal(t, 2, created.Rows)
	assert.True(t, created.Job.Schema.Enabled(model.FieldCity))

	w = do(t, h, http.MethodGet, "/v1/jobs/"+created.Job.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "suppliers", decode[model.Job](t, w).Name)

	w = do(t, h, http.MethodGet, "/v1/jobs/"+created.Job.ID+"/rows?status=pending", nil)
	require.Equal(t, http.StatusOK, w.Code)
	rows := decode[[]model.Row](t, w)
	require.Len(t, rows, 2)
	assert.Equal(t, "Berlin", rows[0].Record.Get(model.FieldCity))
	assert.False(t, rows[1].Record.Has(model.FieldCity))

	w = do(t, h, http.MethodGet, "/v1/jobs/"+created.Job.ID+"/rows/"+rows[1].ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Beta AG", decode[model.Row](t, w).Record.Get(model.FieldCompanyName))

	w = do(t, h, http.MethodGet, "/v1/jobs/other-job/rows/"+rows[1].ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, h, http.MethodGet, "/v1/jobs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]model.Job](t, w), 1)
}

func TestCreateJob_CanonicalKeysWithoutSchema(t *testing.T) {
	_, h, _ := newTestServer(t, nil)

	w := do(t, h, http.MethodPost, "/v1/jobs", map[string]any{
		"name": "canonical",
		"rows": []map[string]any{{"company_name": "Acme GmbH", "vat_id": "DE123456789", "note": "x"}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	job := decode[createJobResponse](t, w).Job
	assert.True(t, job.Schema.Enabled(model.FieldVATID))
	assert.True(t, job.Schema.Enabled(model.FieldCompanyName))
}

func TestCreateJob_BadRequests(t *testing.T) {
	_, h, _ := newTestServer(t, nil)

	tests := []struct {
		name string
		body any
	}{
		{"missing name", map[string]any{"rows": []map[string]any{{"company_name": "Acme"}}}},
		{"missing rows", map[string]any{"name": "x"}},
		{"unknown field", map[string]any{
			"name":   "x",
			"schema": map[string]any{"fields": map[string]string{"turnover": "Turnover"}},
			"rows":   []map[string]any{{"Turnover": "1"}},
		}},
		{"column absent", map[string]any{
			"name":   "x",
			"schema": map[string]any{"fields": map[string]string{"city": "Town"}},
			"rows":   []map[string]any{{"City": "Bonn"}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/v1/jobs", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.NotEmpty(t, decode[errorResponse](t, w).Error)
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/jobs", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetJob_NotFound(t *testing.T) {
	_, h, _ := newTestServer(t, nil)

	w := do(t, h, http.MethodGet, "/v1/jobs/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "job not found", decode[errorResponse](t, w).Error)
}

func TestListRows_BadParams(t *testing.T) {
	_, h, st := newTestServer(t, nil)
	job, err := st.CreateJob(context.Background(), "x", model.NewSchema(model.FieldCompanyName))
	require.NoError(t, err)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/v1/jobs/"+job.ID+"/rows?status=done", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/v1/jobs/"+job.ID+"/rows?limit=-1", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/v1/jobs/missing/rows", nil).Code)

	w := do(t, h, http.MethodGet, "/v1/jobs/"+job.ID+"/rows", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestRunJob(t *testing.T) {
	runner := &fakeRunner{release: make(chan struct{})}
	srv, h, st := newTestServer(t, runner)
	job, err := st.CreateJob(context.Background(), "x", model.NewSchema(model.FieldCompanyName))
	require.NoError(t, err)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/v1/jobs/missing/run", nil).Code)

	w := do(t, h, http.MethodPost, "/v1/jobs/"+job.ID+"/run", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, job.ID, decode[map[string]string](t, w)["job_id"])

	w = do(t, h, http.MethodPost, "/v1/jobs/"+job.ID+"/run", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	close(runner.release)
	srv.Wait()
	assert.Equal(t, int32(1), runner.calls.Load())

	assert.Eventually(t, func() bool {
		return do(t, h, http.MethodPost, "/v1/jobs/"+job.ID+"/run", nil).Code == http.StatusAccepted
	}, time.Second, 10*time.Millisecond)
	srv.Wait()
}

func TestValidate(t *testing.T) {
	_, h, _ := newTestServer(t, nil)

	w := do(t, h, http.MethodPost, "/v1/validate", map[string]any{
		"record": map[string]any{"company_name": "Beta AG", "city": "Zurich", "country": "SZ"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[validateResponse](t, w)
	assert.Equal(t, "CH", res.Record.Get(model.FieldCountry))
	require.NotEmpty(t, res.Issues)
	assert.Equal(t, model.FieldCountry, res.Issues[0].Field)

	w = do(t, h, http.MethodPost, "/v1/validate", map[string]any{
		"record": map[string]any{"turnover": "1"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/v1/validate", map[string]any{"record": map[string]any{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
