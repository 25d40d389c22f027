package export

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/datafixer/internal/model"
)

// WriteCSV writes a report with one line per row: the row number, its
// status, the reconciled values of the job's enabled fields (under their
// source column names), the number of applied changes, a summary of open
// issues and the row error.
func WriteCSV(w io.Writer, job *model.Job, rows []model.Row) error {
	fields := job.Schema.EnabledFields()

	header := []string{"row", "status"}
	for _, f := range fields {
		header = append(header, job.Schema.Column(f))
	}
	header = append(header, "changes", "issues", "error")

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}

	for _, r := range rows {
		rec := finalRecord(r)
		line := make([]string, 0, len(header))
		line = append(line, strconv.Itoa(r.Index+1), string(r.Status))
		for _, f := range fields {
			line = append(line, rec.Get(f))
		}

		var issues, rowErr string
		if r.Result != nil {
			issues = issueSummary(r.Result.Issues)
			rowErr = r.Result.Error
		}
		line = append(line, strconv.Itoa(len(appliedChanges(r))), issues, rowErr)

		if err := cw.Write(line); err != nil {
			return eris.Wrapf(err, "export: write csv row %s", r.ID)
		}
	}

	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}

func issueSummary(issues []model.Issue) string {
	parts := make([]string, 0, len(issues))
	for _, is := range issues {
		parts = append(parts, string(is.Field)+":"+strings.ToLower(string(is.Type)))
	}
	return strings.Join(parts, "; ")
}
