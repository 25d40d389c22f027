package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/datafixer/internal/model"
	"github.com/sells-group/datafixer/internal/store"
)

var (
	showStatus string
	showLimit  int
	showOffset int
	jobsLimit  int
)

type showOutput struct {
	Job  *model.Job  `json:"job"`
	Rows []model.Row `json:"rows"`
}

var showCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show a job's progress and rows",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		filter := store.RowFilter{Limit: showLimit, Offset: showOffset}
		if showStatus != "" {
			status, ok := model.ParseRowStatus(showStatus)
			if !ok {
				return eris.Errorf("unknown status %q", showStatus)
			}
			filter.Status = status
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
		rows, err := st.ListRows(ctx, job.ID, filter)
		if err != nil {
			return eris.Wrap(err, "list rows")
		}
		if rows == nil {
			rows = []model.Row{}
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(showOutput{Job: job, Rows: rows})
	},
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List recent jobs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		jobs, err := st.ListJobs(ctx, jobsLimit)
		if err != nil {
			return eris.Wrap(err, "list jobs")
		}
		if jobs == nil {
			jobs = []model.Job{}
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(jobs)
	},
}

func init() {
	showCmd.Flags().StringVar(&showStatus, "status", "", "only rows in this status (e.g. NEEDS_REVIEW)")
	showCmd.Flags().IntVar(&showLimit, "limit", 50, "maximum rows to show")
	showCmd.Flags().IntVar(&showOffset, "offset", 0, "rows to skip")
	jobsCmd.Flags().IntVar(&jobsLimit, "limit", 20, "maximum jobs to list")
	rootCmd.AddCommand(showCmd, jobsCmd)
}
