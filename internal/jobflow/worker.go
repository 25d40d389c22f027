package jobflow

import (
	"context"

	"github.com/rotisserie/eris"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
	"go.uber.org/zap"
)

// Registrar is the part of a worker that takes registrations.
type Registrar interface {
	RegisterWorkflowWithOptions(w any, options workflow.RegisterOptions)
	RegisterActivityWithOptions(a any, options activity.RegisterOptions)
}

// Register adds the workflow and acts to r under their stable names.
func Register(r Registrar, acts *Activities) {
	r.RegisterWorkflowWithOptions(ReconcileJobWorkflow, workflow.RegisterOptions{Name: WorkflowName})
	r.RegisterActivityWithOptions(acts.PrepareJob, activity.RegisterOptions{Name: ActivityPrepareJob})
	r.RegisterActivityWithOptions(acts.ReconcileBatch, activity.RegisterOptions{Name: ActivityReconcileBatch})
	r.RegisterActivityWithOptions(acts.CompleteJob, activity.RegisterOptions{Name: ActivityCompleteJob})
	r.RegisterActivityWithOptions(acts.FailJob, activity.RegisterOptions{Name: ActivityFailJob})
}

// RunWorker polls taskQueue until ctx is done. concurrency caps the batch
// activities running at once on this worker.
func RunWorker(ctx context.Context, c client.Client, taskQueue string, concurrency int, acts *Activities) error {
	if concurrency < 1 {
		concurrency = 1
	}
	w := worker.New(c, taskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     concurrency,
		MaxConcurrentWorkflowTaskExecutionSize: concurrency,
	})
	Register(w, acts)

	if err := w.Start(); err != nil {
		return eris.Wrap(err, "jobflow: start worker")
	}
	zap.L().Info("jobflow: worker started",
		zap.String("task_queue", taskQueue),
		zap.Int("concurrency", concurrency),
	)

	<-ctx.Done()
	w.Stop()
	zap.L().Info("jobflow: worker stopped", zap.String("task_queue", taskQueue))
	return nil
}
