package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/datafixer/internal/config"
	"github.com/sells-group/datafixer/internal/jobflow"
	"github.com/sells-group/datafixer/internal/model"
)

var (
	runTemporal bool
	runWait     bool
)

var runCmd = &cobra.Command{
	Use:   "run <job-id>",
	Short: "Reconcile every row of an imported job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		jobID := args[0]
		if runTemporal {
			return submitJob(ctx, jobID, runWait)
		}

		env, err := initApp(ctx, config.ModeRun)
		if err != nil {
			return err
		}
		defer env.Close()

		if _, err := env.Store.GetJob(ctx, jobID); err != nil {
			return eris.Wrapf(err, "load job %s", jobID)
		}
		total, err := env.Runner.RunJob(ctx, jobID)
		if err != nil {
			return err
		}
		return printSummary(jobID, total)
	},
}

// submitJob hands the job to the Temporal worker pool.
func submitJob(ctx context.Context, jobID string, wait bool) error {
	if err := cfg.Validate(config.ModeWorker); err != nil {
		return err
	}
	c, err := jobflow.Dial(ctx, cfg.Temporal, 10*time.Second)
	if err != nil {
		return err
	}
	defer c.Close()

	run, err := jobflow.Submit(ctx, c, cfg.Temporal.TaskQueue, jobflow.JobInput{
		JobID:         jobID,
		BatchSize:     cfg.Batch.Size,
		MaxConcurrent: cfg.Batch.MaxConcurrent,
	})
	if err != nil {
		return err
	}
	if !wait {
		zap.L().Info("job submitted, not waiting for completion",
			zap.String("job_id", jobID),
			zap.String("workflow_id", run.GetID()),
		)
		return nil
	}

	total, err := jobflow.Wait(ctx, run)
	if err != nil {
		return err
	}
	return printSummary(jobID, total)
}

type runSummary struct {
	JobID string `json:"job_id"`
	model.BatchResult
}

func printSummary(jobID string, total model.BatchResult) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(runSummary{JobID: jobID, BatchResult: total})
}

func init() {
	runCmd.Flags().BoolVar(&runTemporal, "temporal", false, "submit the job to the Temporal worker instead of running it in process")
	runCmd.Flags().BoolVar(&runWait, "wait", false, "with --temporal, block until the workflow finishes")
	rootCmd.AddCommand(runCmd)
}
