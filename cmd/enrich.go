package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/datafixer/internal/config"
	"github.com/sells-group/datafixer/internal/export"
)

var (
	enrichOpts importFlags
	enrichOut  string
)

var enrichCmd = &cobra.Command{
	Use:   "enrich <file-or-url>",
	Short: "Import a supplier file and reconcile it in one step",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initApp(ctx, config.ModeRun)
		if err != nil {
			return err
		}
		defer env.Close()

		job, err := importJob(ctx, env.Store, args[0], &enrichOpts)
		if err != nil {
			return err
		}
		total, err := env.Runner.RunJob(ctx, job.ID)
		if err != nil {
			return err
		}

		if enrichOut != "" {
			job, err = env.Store.GetJob(ctx, job.ID)
			if err != nil {
				return eris.Wrap(err, "reload job")
			}
			rows, err := export.Rows(ctx, env.Store, job.ID, "")
			if err != nil {
				return err
			}
			f, err := os.Create(enrichOut)
			if err != nil {
				return eris.Wrap(err, "create output file")
			}
			defer f.Close() //nolint:errcheck
			if err := export.WriteCSV(f, job, rows); err != nil {
				return err
			}
			zap.L().Info("results written", zap.String("path", enrichOut), zap.Int("rows", len(rows)))
		}
		return printSummary(job.ID, total)
	},
}

func init() {
	enrichOpts.register(enrichCmd)
	enrichCmd.Flags().StringVar(&enrichOut, "out", "", "write the reconciled rows to this CSV file")
	rootCmd.AddCommand(enrichCmd)
}
