package reconcile

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/datafixer/internal/model"
)

// Batch defaults.
const (
	DefaultBatchSize     = 25
	DefaultMaxConcurrent = 5
)

// JobStore is the part of the store the runner needs.
type JobStore interface {
	GetJob(ctx context.Context, jobID string) (*model.Job, error)
	ListRowIDs(ctx context.Context, jobID string) ([]string, error)
	UpdateJobStatus(ctx context.Context, jobID string, status model.JobStatus) error
	ResetJobCounters(ctx context.Context, jobID string) error
}

// Forgetter drops per-job state between runs.
type Forgetter interface {
	Forget(jobID string)
}

// Runner executes whole jobs on an Engine.
type Runner struct {
	jobs          JobStore
	engine        *Engine
	batchSize     int
	maxConcurrent int
	forget        Forgetter
}

// NewRunner creates a Runner. Non-positive sizes use the defaults.
func NewRunner(jobs JobStore, engine *Engine, batchSize, maxConcurrent int) *Runner {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	return &Runner{jobs: jobs, engine: engine, batchSize: batchSize, maxConcurrent: maxConcurrent}
}

// WithForgetter registers per-job caches (e.g. sibling indexes) to reset
// around each run.
func (r *Runner) WithForgetter(f Forgetter) *Runner {
	r.forget = f
	return r
}

// Shard splits ids into consecutive batches of at most size.
func Shard(ids []string, size int) [][]string {
	if size <= 0 {
		size = DefaultBatchSize
	}
	var out [][]string
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		out = append(out, ids[start:end])
	}
	return out
}

// RunJob reconciles every row of a job. Batches run concurrently up to the
// configured limit; rows within a batch run in order.
func (r *Runner) RunJob(ctx context.Context, jobID string) (model.BatchResult, error) {
	start := time.Now()
	log := zap.L().With(zap.String("job_id", jobID))

	job, err := r.jobs.GetJob(ctx, jobID)
	if err != nil {
		return model.BatchResult{}, eris.Wrap(err, "reconcile: load job")
	}
	ids, err := r.jobs.ListRowIDs(ctx, jobID)
	if err != nil {
		return model.BatchResult{}, eris.Wrap(err, "reconcile: list rows")
	}

	if err := r.jobs.ResetJobCounters(ctx, jobID); err != nil {
		return model.BatchResult{}, eris.Wrap(err, "reconcile: reset counters")
	}
	if err := r.jobs.UpdateJobStatus(ctx, jobID, model.JobStatusRunning); err != nil {
		return model.BatchResult{}, eris.Wrap(err, "reconcile: mark job running")
	}
	if r.forget != nil {
		r.forget.Forget(jobID)
		defer r.forget.Forget(jobID)
	}

	batches := Shard(ids, r.batchSize)
	log.Info("reconcile: job started",
		zap.Int("rows", len(ids)),
		zap.Int("batches", len(batches)),
		zap.Int("concurrency", r.maxConcurrent),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.maxConcurrent)

	var processed, enriched, errored, review atomic.Int64
	for _, batch := range batches {
		g.Go(func() error {
			res := r.engine.ProcessBatch(gctx, job, batch)
			processed.Add(res.Processed)
			enriched.Add(res.Enriched)
			errored.Add(res.Errored)
			review.Add(res.NeedsReview)
			return nil
		})
	}
	_ = g.Wait()

	total := model.BatchResult{
		Processed:   processed.Load(),
		Enriched:    enriched.Load(),
		Errored:     errored.Load(),
		NeedsReview: review.Load(),
	}

	if ctx.Err() != nil {
		// The caller's context is gone; record the failure on a fresh one.
		statusCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := r.jobs.UpdateJobStatus(statusCtx, jobID, model.JobStatusFailed); err != nil {
			log.Warn("reconcile: failed to mark job failed", zap.Error(err))
		}
		return total, eris.Wrap(ctx.Err(), "reconcile: job interrupted")
	}

	if err := r.jobs.UpdateJobStatus(ctx, jobID, model.JobStatusCompleted); err != nil {
		return total, eris.Wrap(err, "reconcile: mark job completed")
	}

	log.Info("reconcile: job complete",
		zap.Int64("processed", total.Processed),
		zap.Int64("enriched", total.Enriched),
		zap.Int64("needs_review", total.NeedsReview),
		zap.Int64("errored", total.Errored),
		zap.Duration("elapsed", time.Since(start)),
	)
	return total, nil
}
