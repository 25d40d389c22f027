// Package jobflow runs reconciliation jobs as Temporal workflows so a long
// job survives worker restarts.
package jobflow

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/sells-group/datafixer/internal/model"
	"github.com/sells-group/datafixer/internal/reconcile"
)

// Registered names.
const (
	WorkflowName           = "reconcile_job"
	ActivityPrepareJob     = "reconcile_prepare_job"
	ActivityReconcileBatch = "reconcile_batch"
	ActivityCompleteJob    = "reconcile_complete_job"
	ActivityFailJob        = "reconcile_fail_job"
)

// JobInput starts a ReconcileJobWorkflow.
type JobInput struct {
	JobID         string `json:"job_id"`
	BatchSize     int    `json:"batch_size"`
	MaxConcurrent int    `json:"max_concurrent"`
}

// BatchInput addresses one slice of a job's rows by position, so workflow
// history never carries row IDs.
type BatchInput struct {
	JobID  string `json:"job_id"`
	Offset int    `json:"offset"`
	Limit  int    `json:"limit"`
}

// ReconcileJobWorkflow shards a job into batches and runs them in waves of at
// most MaxConcurrent activities, then marks the job completed. Any batch
// failure marks the job failed.
func ReconcileJobWorkflow(ctx workflow.Context, in JobInput) (model.BatchResult, error) {
	if in.BatchSize <= 0 {
		in.BatchSize = reconcile.DefaultBatchSize
	}
	if in.MaxConcurrent <= 0 {
		in.MaxConcurrent = reconcile.DefaultMaxConcurrent
	}
	log := workflow.GetLogger(ctx)

	shortCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: time.Second,
			MaximumAttempts: 5,
		},
	})
	batchCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Hour,
		HeartbeatTimeout:    2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    5 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    3,
		},
	})

	var rows int
	if err := workflow.ExecuteActivity(shortCtx, ActivityPrepareJob, in.JobID).Get(ctx, &rows); err != nil {
		return model.BatchResult{}, err
	}

	batches := shard(rows, in.BatchSize, in.JobID)
	log.Info("jobflow: job started", "job_id", in.JobID, "rows", rows, "batches", len(batches))

	var total model.BatchResult
	for start := 0; start < len(batches); start += in.MaxConcurrent {
		wave := batches[start:min(start+in.MaxConcurrent, len(batches))]

		futures := make([]workflow.Future, len(wave))
		for i, b := range wave {
			futures[i] = workflow.ExecuteActivity(batchCtx, ActivityReconcileBatch, b)
		}

		var waveErr error
		for _, f := range futures {
			var res model.BatchResult
			if err := f.Get(ctx, &res); err != nil {
				if waveErr == nil {
					waveErr = err
				}
				continue
			}
			total.Add(res)
		}
		if waveErr != nil {
			failJob(ctx, shortCtx, in.JobID)
			return total, waveErr
		}
	}

	if err := workflow.ExecuteActivity(shortCtx, ActivityCompleteJob, in.JobID).Get(ctx, nil); err != nil {
		return total, err
	}
	log.Info("jobflow: job complete", "job_id", in.JobID,
		"processed", total.Processed, "enriched", total.Enriched,
		"needs_review", total.NeedsReview, "errored", total.Errored)
	return total, nil
}

// failJob records the failure on a disconnected context so it also runs when
// the workflow itself was cancelled.
func failJob(ctx, actCtx workflow.Context, jobID string) {
	dctx, _ := workflow.NewDisconnectedContext(actCtx)
	if err := workflow.ExecuteActivity(dctx, ActivityFailJob, jobID).Get(dctx, nil); err != nil {
		workflow.GetLogger(ctx).Warn("jobflow: failed to mark job failed", "job_id", jobID, "error", err)
	}
}

func shard(rows, size int, jobID string) []BatchInput {
	var out []BatchInput
	for off := 0; off < rows; off += size {
		out = append(out, BatchInput{JobID: jobID, Offset: off, Limit: min(size, rows-off)})
	}
	return out
}
