package jobflow

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.temporal.io/sdk/activity"
	"go.uber.org/zap"

	"github.com/sells-group/datafixer/internal/model"
	"github.com/sells-group/datafixer/internal/reconcile"
)

// BatchProcessor reconciles rows in order.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, job *model.Job, rowIDs []string) model.BatchResult
}

// Activities are the workflow's side effects. Forget is optional.
type Activities struct {
	Jobs   reconcile.JobStore
	Engine BatchProcessor
	Forget reconcile.Forgetter
}

// batchProgress is heartbeated after every row so a retried attempt resumes
// where the previous one stopped.
type batchProgress struct {
	Done   int               `json:"done"`
	Result model.BatchResult `json:"result"`
}

// PrepareJob resets the job's counters, marks it running and returns its row
// count.
func (a *Activities) PrepareJob(ctx context.Context, jobID string) (int, error) {
	ids, err := a.Jobs.ListRowIDs(ctx, jobID)
	if err != nil {
		return 0, eris.Wrap(err, "jobflow: list rows")
	}
	if err := a.Jobs.ResetJobCounters(ctx, jobID); err != nil {
		return 0, eris.Wrap(err, "jobflow: reset counters")
	}
	if err := a.Jobs.UpdateJobStatus(ctx, jobID, model.JobStatusRunning); err != nil {
		return 0, eris.Wrap(err, "jobflow: mark job running")
	}
	if a.Forget != nil {
		a.Forget.Forget(jobID)
	}
	return len(ids), nil
}

// ReconcileBatch reconciles the rows at [Offset, Offset+Limit) of the job.
func (a *Activities) ReconcileBatch(ctx context.Context, in BatchInput) (model.BatchResult, error) {
	job, err := a.Jobs.GetJob(ctx, in.JobID)
	if err != nil {
		return model.BatchResult{}, eris.Wrap(err, "jobflow: load job")
	}
	ids, err := a.Jobs.ListRowIDs(ctx, in.JobID)
	if err != nil {
		return model.BatchResult{}, eris.Wrap(err, "jobflow: list rows")
	}
	if in.Offset >= len(ids) {
		return model.BatchResult{}, nil
	}
	ids = ids[in.Offset:min(in.Offset+in.Limit, len(ids))]

	var progress batchProgress
	if activity.HasHeartbeatDetails(ctx) {
		if err := activity.GetHeartbeatDetails(ctx, &progress); err != nil {
			zap.L().Warn("jobflow: ignoring unreadable heartbeat", zap.String("job_id", in.JobID), zap.Error(err))
			progress = batchProgress{}
		}
	}

	var mu sync.Mutex
	snapshot := func() any {
		mu.Lock()
		defer mu.Unlock()
		return progress
	}
	stop := startHeartbeat(ctx, snapshot)
	defer stop()

	for i := progress.Done; i < len(ids); i++ {
		if ctx.Err() != nil {
			return progress.Result, eris.Wrap(ctx.Err(), "jobflow: batch interrupted")
		}
		res := a.Engine.ProcessBatch(ctx, job, ids[i:i+1])

		mu.Lock()
		progress.Result.Add(res)
		progress.Done = i + 1
		mu.Unlock()
		activity.RecordHeartbeat(ctx, snapshot())
	}
	return progress.Result, nil
}

// CompleteJob marks the job completed.
func (a *Activities) CompleteJob(ctx context.Context, jobID string) error {
	if a.Forget != nil {
		a.Forget.Forget(jobID)
	}
	return eris.Wrap(a.Jobs.UpdateJobStatus(ctx, jobID, model.JobStatusCompleted), "jobflow: mark job completed")
}

// FailJob marks the job failed.
func (a *Activities) FailJob(ctx context.Context, jobID string) error {
	if a.Forget != nil {
		a.Forget.Forget(jobID)
	}
	return eris.Wrap(a.Jobs.UpdateJobStatus(ctx, jobID, model.JobStatusFailed), "jobflow: mark job failed")
}

// startHeartbeat keeps a slow row from tripping the heartbeat timeout.
func startHeartbeat(ctx context.Context, details func() any) func() {
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(10 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				activity.RecordHeartbeat(ctx, details())
			}
		}
	}()
	return func() { close(done) }
}
