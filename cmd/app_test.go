package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/datafixer/internal/config"
	"github.com/sells-group/datafixer/internal/cost"
	"github.com/sells-group/datafixer/internal/enrich"
	"github.com/sells-group/datafixer/internal/model"
	"github.com/sells-group/datafixer/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Store: config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "jobs.db")},
		Cache: config.CacheConfig{Backend: "store", Version: "v1", TTLHours: 24},
		Enrich: config.EnrichConfig{
			Threshold:         0.7,
			SourceTimeoutSecs: 1,
			MaxSnippetChars:   500,
			MaxNameCandidates: 3,
			Retry:             config.RetryConfig{Attempts: 1, BaseDelayMs: 1, MaxDelayMs: 1},
			Breaker:           config.BreakerConfig{Threshold: 5, CooldownSecs: 30},
		},
		LLM:   config.LLMConfig{Provider: "none"},
		Batch: config.BatchConfig{Size: 2, MaxConcurrent: 2},
		Log:   config.LogConfig{Level: "info", Format: "json"},
	}
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestInitStore_UnsupportedDriver(t *testing.T) {
	cfg = testConfig(t)
	cfg.Store.Driver = "mysql"

	_, err := initStore(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestInitApp_ValidatesConfig(t *testing.T) {
	cfg = testConfig(t)
	cfg.LLM.Provider = "anthropic"

	_, err := initApp(context.Background(), config.ModeRun)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.key")
}

func TestInitApp_RunsImportedJob(t *testing.T) {
	cfg = testConfig(t)
	ctx := context.Background()

	env, err := initApp(ctx, config.ModeRun)
	require.NoError(t, err)
	defer env.Close()

	path := writeTemp(t, "suppliers.csv", "company_name,city,country\nAcme GmbH,Berlin,Germany\nBeta AG,Zurich,SZ\n")
	job, err := importJob(ctx, env.Store, path, &importFlags{})
	require.NoError(t, err)
	assert.Equal(t, "suppliers.csv", job.Name)
	assert.Equal(t, 2, job.TotalRows)

	total, err := env.Runner.RunJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total.Processed)

	rows, err := env.Store.ListRows(ctx, job.ID, store.RowFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, r := range rows {
		require.NotNil(t, r.Result)
	}
	assert.Equal(t, "DE", rows[0].Result.Record.Get(model.FieldCountry))
	assert.Equal(t, "CH", rows[1].Result.Record.Get(model.FieldCountry))
}

func TestInitCache_Backends(t *testing.T) {
	cfg = testConfig(t)
	ctx := context.Background()

	st, err := initStore(ctx)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	env := &appEnv{Store: st}

	c, err := initCache(ctx, env)
	require.NoError(t, err)
	assert.Equal(t, st, c)

	cfg.Cache.Backend = "none"
	c, err = initCache(ctx, env)
	require.NoError(t, err)
	assert.Nil(t, c)

	cfg.Cache.Backend = "redis"
	cfg.Cache.RedisURL = "not a url"
	_, err = initCache(ctx, env)
	require.Error(t, err)
}

func TestBuildAdapters_RespectsToggles(t *testing.T) {
	c := testConfig(t)
	siblings := enrich.NewSiblingIndexes(nil)

	a := buildAdapters(c, siblings, nil)
	assert.NotNil(t, a.VAT)
	assert.NotNil(t, a.Sibling)
	assert.Nil(t, a.Registry)
	assert.Nil(t, a.Search)
	assert.Nil(t, a.LLM)

	c.Enrich.RegistryEnabled = true
	c.Enrich.HomepageEnabled = true
	c.Enrich.SearchEnabled = true
	c.LLM.Provider = "gemini"
	c.Gemini.Key = "test-key"
	a = buildAdapters(c, siblings, nil)
	assert.NotNil(t, a.Registry)
	assert.NotNil(t, a.Search)
	assert.NotNil(t, a.LLM)
}

func TestBuildModel(t *testing.T) {
	c := testConfig(t)
	costs := cost.NewCalculator(cost.DefaultRates())

	assert.Nil(t, buildModel(c, costs, nil))

	c.LLM.Provider = "anthropic"
	assert.Nil(t, buildModel(c, costs, nil), "no key")

	c.Anthropic.Key = "sk-test"
	c.Anthropic.Model = "claude-haiku-4-5-20251001"
	assert.IsType(t, &enrich.AnthropicModel{}, buildModel(c, costs, nil))
}

func TestImportJob_FromURLWithSchema(t *testing.T) {
	cfg = testConfig(t)
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("Supplier;Town\nAcme GmbH;Berlin\n"))
	}))
	defer srv.Close()

	schemaPath := writeTemp(t, "schema.yaml", "fields:\n  company_name: Supplier\n  city: Town\n")

	st, err := initStore(ctx)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	job, err := importJob(ctx, st, srv.URL+"/exports/suppliers.csv", &importFlags{schemaPath: schemaPath, name: "weekly"})
	require.NoError(t, err)
	assert.Equal(t, "weekly", job.Name)
	assert.True(t, job.Schema.Enabled(model.FieldCity))

	rows, err := st.ListRows(ctx, job.ID, store.RowFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Berlin", rows[0].Record.Get(model.FieldCity))
}

func TestImportJob_EmptyFile(t *testing.T) {
	cfg = testConfig(t)
	ctx := context.Background()

	st, err := initStore(ctx)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	path := writeTemp(t, "empty.csv", "company_name\n")
	_, err = importJob(ctx, st, path, &importFlags{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no rows")
}

func TestImportFlags_Delimiter(t *testing.T) {
	assert.Equal(t, rune(0), (&importFlags{}).options().CSV.Delimiter)
	assert.Equal(t, '\t', (&importFlags{delimiter: `\t`}).options().CSV.Delimiter)
	assert.Equal(t, '|', (&importFlags{delimiter: "|"}).options().CSV.Delimiter)
	assert.Equal(t, "Sheet2", (&importFlags{sheet: "Sheet2"}).options().XLSX.SheetName)
}

func TestValidateRecords(t *testing.T) {
	sch := model.NewSchema(model.FieldCompanyName, model.FieldCountry)
	records := []model.Record{
		{model.FieldCompanyName: ptr("Acme GmbH"), model.FieldCountry: ptr("DE")},
		{model.FieldCountry: ptr("Narnia")},
	}

	var buf bytes.Buffer
	failed, err := validateRecords(&buf, records, sch, true)
	require.NoError(t, err)
	assert.Equal(t, 1, failed)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var got validatedRow
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &got))
	assert.Equal(t, 2, got.Row)
	assert.NotEmpty(t, got.Issues)
}

func ptr(s string) *string { return &s }
