package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/datafixer/internal/model"
	"github.com/sells-group/datafixer/internal/store"
)

type pagedRows struct {
	rows    []model.Row
	filters []store.RowFilter
	err     error
}

func (p *pagedRows) ListRows(_ context.Context, _ string, f store.RowFilter) ([]model.Row, error) {
	p.filters = append(p.filters, f)
	if p.err != nil {
		return nil, p.err
	}
	if f.Offset >= len(p.rows) {
		return nil, nil
	}
	end := min(f.Offset+f.Limit, len(p.rows))
	return p.rows[f.Offset:end], nil
}

func change(f model.Field, v string, action model.ChangeAction) model.FieldChange {
	return model.FieldChange{Field: f, ProposedValue: model.StringPtr(v), Confidence: 0.9, Action: action}
}

func record(kv ...string) model.Record {
	rec := model.Record{}
	for i := 0; i+1 < len(kv); i += 2 {
		rec.Set(model.Field(kv[i]), kv[i+1])
	}
	return rec
}

func TestRows_Pages(t *testing.T) {
	src := &pagedRows{}
	for i := range listPage + 3 {
		src.rows = append(src.rows, model.Row{ID: fmt.Sprintf("r%d", i)})
	}

	rows, err := Rows(context.Background(), src, "job-1", model.RowStatusEnriched)
	require.NoError(t, err)
	assert.Len(t, rows, listPage+3)
	require.Len(t, src.filters, 2)
	assert.Equal(t, model.RowStatusEnriched, src.filters[1].Status)
	assert.Equal(t, listPage, src.filters[1].Offset)
}

func TestRows_Error(t *testing.T) {
	_, err := Rows(context.Background(), &pagedRows{err: errors.New("db down")}, "job-1", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "export: list rows of job job-1")
}

func TestWriteCSV(t *testing.T) {
	job := &model.Job{
		ID: "job-1",
		Schema: model.Schema{Fields: map[model.Field]string{
			model.FieldCompanyName: "Company",
			model.FieldCity:        "Town",
			model.FieldCountry:     "Country",
		}},
	}
	rows := []model.Row{
		{
			ID: "r1", Index: 0, Status: model.RowStatusEnriched,
			Record: record("company_name", "Acme GmbH", "country", "DE"),
			Result: &model.RowResult{
				Record: record("company_name", "Acme GmbH", "city", "Hamburg", "country", "DE"),
				Changes: []model.FieldChange{
					change(model.FieldCity, "Hamburg", model.ActionAdded),
					change(model.FieldIndustry, "Chemicals", model.ActionAdded),
					change(model.FieldCountry, "DE", model.ActionVerified),
				},
			},
		},
		{
			ID: "r2", Index: 1, Status: model.RowStatusError,
			Record: record("company_name", "Beta AG"),
			Result: &model.RowResult{
				Error:  "load row: boom",
				Issues: []model.Issue{{Field: model.FieldCountry, Type: model.IssueMissing}},
			},
		},
		{ID: "r3", Index: 2, Status: model.RowStatusPending, Record: record("company_name", "Gamma SA")},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, job, rows))

	lines, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, lines, 4)
	assert.Equal(t, []string{"row", "status", "Company", "Town", "Country", "changes", "issues", "error"}, lines[0])
	assert.Equal(t, []string{"1", "ENRICHED", "Acme GmbH", "Hamburg", "DE", "1", "", ""}, lines[1])
	assert.Equal(t, []string{"2", "ERROR", "Beta AG", "", "", "0", "country:missing", "load row: boom"}, lines[2])
	assert.Equal(t, []string{"3", "PENDING", "Gamma SA", "", "", "0", "", ""}, lines[3])
}

func TestWebsiteDomain(t *testing.T) {
	assert.Equal(t, "acme.de", websiteDomain("https://www.acme.de/about"))
	assert.Equal(t, "beta.ch", websiteDomain("Beta.CH"))
	assert.Empty(t, websiteDomain("not a site"))
	assert.Empty(t, websiteDomain(""))
}
