package reconcile

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sells-group/datafixer/internal/model"
)

// ProcessBatch reconciles rowIDs one after another. A failing or panicking
// row is recorded as ERROR and the batch moves on; only context cancellation
// stops it early.
func (e *Engine) ProcessBatch(ctx context.Context, job *model.Job, rowIDs []string) model.BatchResult {
	var total model.BatchResult
	for _, id := range rowIDs {
		if ctx.Err() != nil {
			zap.L().Warn("reconcile: batch cancelled",
				zap.String("job_id", job.ID),
				zap.Int64("processed", total.Processed),
				zap.Int("remaining", len(rowIDs)-int(total.Processed)),
			)
			break
		}

		status := e.processSafely(ctx, job, id)

		var delta model.BatchResult
		delta.Count(status)
		total.Add(delta)

		if e.progress != nil {
			if err := e.progress.Increment(ctx, job.ID, delta); err != nil {
				zap.L().Warn("reconcile: progress update failed", zap.String("job_id", job.ID), zap.Error(err))
			}
		}
	}
	return total
}

func (e *Engine) processSafely(ctx context.Context, job *model.Job, rowID string) (status model.RowStatus) {
	defer func() {
		if r := recover(); r != nil {
			status = e.fail(ctx, job, rowID, fmt.Sprintf("panic: %v", r))
		}
	}()

	res, err := e.ProcessRow(ctx, job, rowID)
	if err != nil {
		return e.fail(ctx, job, rowID, err.Error())
	}
	return res.Status
}

func (e *Engine) fail(ctx context.Context, job *model.Job, rowID, msg string) model.RowStatus {
	log := zap.L().With(zap.String("job_id", job.ID), zap.String("row_id", rowID))
	log.Error("reconcile: row failed", zap.String("error", msg))

	res := &model.RowResult{RowID: rowID, Status: model.RowStatusError, Error: msg}
	if err := e.resolver.Save(ctx, rowID, res); err != nil {
		log.Warn("reconcile: failed to record row error", zap.Error(err))
	}
	e.metrics.ObserveRow(string(model.RowStatusError), e.now())
	return model.RowStatusError
}
