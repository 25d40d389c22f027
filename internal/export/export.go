// Package export writes reconciled rows out of the store: a CSV report, an
// account write-back to Salesforce and a review queue in Notion.
package export

import (
	"context"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/datafixer/internal/model"
	"github.com/sells-group/datafixer/internal/store"
	"github.com/sells-group/datafixer/internal/validate"
)

// RowLister lists a job's rows.
type RowLister interface {
	ListRows(ctx context.Context, jobID string, filter store.RowFilter) ([]model.Row, error)
}

const listPage = 500

// Rows returns every row of jobID, optionally only those with status.
func Rows(ctx context.Context, rows RowLister, jobID string, status model.RowStatus) ([]model.Row, error) {
	var out []model.Row
	for offset := 0; ; offset += listPage {
		page, err := rows.ListRows(ctx, jobID, store.RowFilter{Status: status, Limit: listPage, Offset: offset})
		if err != nil {
			return nil, eris.Wrapf(err, "export: list rows of job %s", jobID)
		}
		out = append(out, page...)
		if len(page) < listPage {
			return out, nil
		}
	}
}

// Summary tallies one export run.
type Summary struct {
	Exported int `json:"exported"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// finalRecord is the reconciled record when the row has a result, else the
// imported one.
func finalRecord(r model.Row) model.Record {
	if r.Result != nil && r.Result.Record != nil {
		return r.Result.Record
	}
	return r.Record
}

// appliedChanges returns the non-verifying changes whose proposal ended up in
// the final record.
func appliedChanges(r model.Row) []model.FieldChange {
	if r.Result == nil {
		return nil
	}
	rec := finalRecord(r)
	var out []model.FieldChange
	for _, c := range r.Result.Changes {
		if c.Action == model.ActionVerified || c.ProposedValue == nil {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(rec.Get(c.Field)), strings.TrimSpace(c.Proposed())) {
			out = append(out, c)
		}
	}
	return out
}

// websiteDomain returns the bare host of a website value, without "www.".
func websiteDomain(raw string) string {
	norm, ok := validate.NormalizeWebsite(raw)
	if !ok {
		return ""
	}
	u, err := url.Parse(norm)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}
