package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/datafixer/internal/export"
	"github.com/sells-group/datafixer/internal/model"
)

var (
	exportTo            string
	exportOut           string
	exportCreateMissing bool
)

var exportCmd = &cobra.Command{
	Use:   "export <job-id>",
	Short: "Export a job as CSV, to Salesforce accounts or to the Notion review queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		switch exportTo {
		case "csv", "salesforce", "notion":
		default:
			return eris.Errorf("unknown export target %q (want csv, salesforce or notion)", exportTo)
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		job, err := st.GetJob(ctx, args[0])
		if err != nil {
			return eris.Wrapf(err, "load job %s", args[0])
		}

		var summary export.Summary
		switch exportTo {
		case "csv":
			rows, err := export.Rows(ctx, st, job.ID, "")
			if err != nil {
				return err
			}
			var w io.Writer = os.Stdout
			if exportOut != "" {
				f, err := os.Create(exportOut)
				if err != nil {
					return eris.Wrap(err, "create output file")
				}
				defer f.Close() //nolint:errcheck
				w = f
			}
			if err := export.WriteCSV(w, job, rows); err != nil {
				return err
			}
			summary.Exported = len(rows)
			if exportOut == "" {
				return nil
			}

		case "salesforce":
			sf, err := initSalesforce()
			if err != nil {
				return err
			}
			rows, err := export.Rows(ctx, st, job.ID, model.RowStatusEnriched)
			if err != nil {
				return err
			}
			summary, err = export.NewSalesforceExporter(sf, exportCreateMissing).Export(ctx, rows)
			if err != nil {
				return err
			}

		case "notion":
			nc, err := initNotion()
			if err != nil {
				return err
			}
			rows, err := export.Rows(ctx, st, job.ID, model.RowStatusNeedsReview)
			if err != nil {
				return err
			}
			summary, err = export.NewNotionExporter(nc, cfg.Notion.ReviewDB).Export(ctx, job, rows)
			if err != nil {
				return err
			}
		}

		zap.L().Info("export complete",
			zap.String("job_id", job.ID),
			zap.String("target", exportTo),
			zap.Int("exported", summary.Exported),
			zap.Int("skipped", summary.Skipped),
			zap.Int("failed", summary.Failed),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportTo, "to", "csv", "export target: csv, salesforce or notion")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "CSV output file (stdout when empty)")
	exportCmd.Flags().BoolVar(&exportCreateMissing, "create-missing", false, "create Salesforce accounts for companies without a match")
	rootCmd.AddCommand(exportCmd)
}
