package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/datafixer/internal/model"
	"github.com/sells-group/datafixer/internal/validate"
)

var (
	validateOpts       importFlags
	validateIssuesOnly bool
)

type validatedRow struct {
	Row    int           `json:"row"`
	Record model.Record  `json:"record"`
	Issues []model.Issue `json:"issues"`
}

// validateRecords writes one JSON line per record and returns how many rows
// carried an ERROR issue.
func validateRecords(w io.Writer, records []model.Record, sch model.Schema, issuesOnly bool) (int, error) {
	enc := json.NewEncoder(w)
	failed := 0
	for i, rec := range records {
		res := validate.Validate(rec, sch)
		if model.HasSeverity(res.Issues, model.SeverityError) {
			failed++
		}
		if issuesOnly && len(res.Issues) == 0 {
			continue
		}
		issues := res.Issues
		if issues == nil {
			issues = []model.Issue{}
		}
		if err := enc.Encode(validatedRow{Row: i + 1, Record: res.Record, Issues: issues}); err != nil {
			return failed, err
		}
	}
	return failed, nil
}

var validateCmd = &cobra.Command{
	Use:   "validate <file-or-url>",
	Short: "Validate and normalize a supplier file without enrichment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		sch, records, err := loadSource(ctx, args[0], &validateOpts)
		if err != nil {
			return err
		}

		failed, err := validateRecords(os.Stdout, records, sch, validateIssuesOnly)
		if err != nil {
			return err
		}
		zap.L().Info("validation complete",
			zap.Int("rows", len(records)),
			zap.Int("rows_with_errors", failed),
		)
		return nil
	},
}

func init() {
	validateOpts.register(validateCmd)
	validateCmd.Flags().BoolVar(&validateIssuesOnly, "issues-only", false, "only print rows that have issues")
	rootCmd.AddCommand(validateCmd)
}
