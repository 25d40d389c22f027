package reconcile

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/datafixer/internal/enrich"
	"github.com/sells-group/datafixer/internal/model"
	"github.com/sells-group/datafixer/internal/store"
)

func newSQLite(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestShard(t *testing.T) {
	t.Parallel()

	ids := []string{"a", "b", "c", "d", "e"}
	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}, {"e"}}, Shard(ids, 2))
	assert.Equal(t, [][]string{ids}, Shard(ids, 0))
	assert.Nil(t, Shard(nil, 3))
}

func TestRunner_RunJobWithSiblings(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := newSQLite(t)

	job, err := st.CreateJob(ctx, "suppliers.csv",
		model.NewSchema(model.FieldCompanyName, model.FieldCity, model.FieldCountry))
	require.NoError(t, err)

	rows, err := st.InsertRows(ctx, job.ID, []model.Record{
		rec("company_name", "Acme GmbH", "city", "Berlin", "country", "DE"),
		rec("company_name", "ACME GmbH", "city", "berlin", "country", "DE"),
		rec("company_name", "Acme GmbH", "country", "DE"),
		rec("city", "Hamburg", "country", "DE"),
		rec("company_name", "Beta AG", "city", "Zurich", "country", "SZ"),
	})
	require.NoError(t, err)
	require.Len(t, rows, 5)

	siblings := enrich.NewSiblingIndexes(SiblingLoader(st))
	backend := NewStoreBackend(st)
	engine := NewEngine(Deps{
		Resolver: backend,
		Progress: backend,
		Cache:    st,
		Adapters: Adapters{Sibling: enrich.NewSiblingAdapter(siblings)},
		Guard:    enrich.NewGuard(time.Second, nil, nil),
	}, Options{})

	total, err := NewRunner(st, engine, 2, 3).WithForgetter(siblings).RunJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchResult{Processed: 5, Enriched: 1, NeedsReview: 1}, total)

	got, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, got.Status)
	assert.Equal(t, int64(5), got.Processed)
	assert.Equal(t, int64(1), got.Enriched)
	assert.Equal(t, int64(1), got.NeedsReview)

	filled, err := st.GetRow(ctx, rows[2].ID)
	require.NoError(t, err)
	require.NotNil(t, filled.Result)
	assert.Equal(t, model.RowStatusEnriched, filled.Status)
	assert.Equal(t, "Berlin", filled.Result.Record.Get(model.FieldCity))
	c := changeFor(filled.Result.Changes, model.FieldCity)
	require.NotNil(t, c)
	assert.InDelta(t, 0.85, c.Confidence, 1e-9)

	swiss, err := st.GetRow(ctx, rows[4].ID)
	require.NoError(t, err)
	assert.Equal(t, model.RowStatusValidated, swiss.Status)
	assert.Equal(t, "CH", swiss.Result.Record.Get(model.FieldCountry))
	// The stored raw record is untouched.
	assert.Equal(t, "SZ", swiss.Record.Get(model.FieldCountry))
}

func TestRunner_RerunResetsCounters(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := newSQLite(t)
	job, err := st.CreateJob(ctx, "a.csv", model.NewSchema(model.FieldCompanyName))
	require.NoError(t, err)
	_, err = st.InsertRows(ctx, job.ID, []model.Record{rec("company_name", "Acme"), rec("company_name", "Beta")})
	require.NoError(t, err)

	backend := NewStoreBackend(st)
	runner := NewRunner(st, NewEngine(Deps{Resolver: backend, Progress: backend}, Options{}), 0, 0)

	for range 2 {
		_, err := runner.RunJob(ctx, job.ID)
		require.NoError(t, err)
	}

	got, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Processed)
}

func TestStoreBackend_GetReturnsImportedRecord(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := newSQLite(t)
	job, err := st.CreateJob(ctx, "a.csv", model.NewSchema(model.FieldCompanyName, model.FieldCountry))
	require.NoError(t, err)
	rows, err := st.InsertRows(ctx, job.ID, []model.Record{rec("company_name", "Acme AG", "country", "SZ")})
	require.NoError(t, err)

	backend := NewStoreBackend(st)
	require.NoError(t, backend.Save(ctx, rows[0].ID, &model.RowResult{
		RowID:  rows[0].ID,
		Record: rec("company_name", "Acme AG", "country", "CH"),
		Status: model.RowStatusValidated,
	}))

	got, err := backend.Get(ctx, rows[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "SZ", got.Get(model.FieldCountry))
}

func TestRunner_UnknownJob(t *testing.T) {
	t.Parallel()

	st := newSQLite(t)
	backend := NewStoreBackend(st)
	_, err := NewRunner(st, NewEngine(Deps{Resolver: backend}, Options{}), 0, 0).
		RunJob(context.Background(), "nope")
	require.Error(t, err)
}

func TestRunner_CancelledContext(t *testing.T) {
	t.Parallel()

	st := newSQLite(t)
	backend := NewStoreBackend(st)
	runner := NewRunner(st, NewEngine(Deps{Resolver: backend, Progress: backend}, Options{}), 0, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := runner.RunJob(ctx, "job-1")
	require.Error(t, err)
}
