package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/datafixer/internal/config"
	"github.com/sells-group/datafixer/internal/jobflow"
)

var workerConcurrency int

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the Temporal worker that executes submitted jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initApp(ctx, config.ModeWorker)
		if err != nil {
			return err
		}
		defer env.Close()

		c, err := jobflow.Dial(ctx, cfg.Temporal, time.Minute)
		if err != nil {
			return err
		}
		defer c.Close()

		concurrency := workerConcurrency
		if concurrency <= 0 {
			concurrency = cfg.Batch.MaxConcurrent
		}
		return jobflow.RunWorker(ctx, c, cfg.Temporal.TaskQueue, concurrency, &jobflow.Activities{
			Jobs:   env.Store,
			Engine: env.Engine,
			Forget: env.Siblings,
		})
	},
}

func init() {
	workerCmd.Flags().IntVar(&workerConcurrency, "concurrency", 0, "concurrent batch activities (default batch.max_concurrent)")
	rootCmd.AddCommand(workerCmd)
}
