package jobflow

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/sells-group/datafixer/internal/config"
	"github.com/sells-group/datafixer/internal/model"
)

// ErrAlreadyRunning is returned by Submit when the job already has an open
// workflow.
var ErrAlreadyRunning = eris.New("jobflow: job already running")

// zapLogger adapts zap to the Temporal SDK logger.
type zapLogger struct{ s *zap.SugaredLogger }

func (l zapLogger) Debug(msg string, kv ...any) { l.s.Debugw(msg, kv...) }
func (l zapLogger) Info(msg string, kv ...any)  { l.s.Infow(msg, kv...) }
func (l zapLogger) Warn(msg string, kv ...any)  { l.s.Warnw(msg, kv...) }
func (l zapLogger) Error(msg string, kv ...any) { l.s.Errorw(msg, kv...) }

// Dial connects to Temporal, retrying with backoff for up to maxWait so a
// worker can start before the server is reachable.
func Dial(ctx context.Context, cfg config.TemporalConfig, maxWait time.Duration) (client.Client, error) {
	opts := client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
		Logger:    zapLogger{s: zap.L().Named("temporal").Sugar()},
	}

	deadline := time.Now().Add(maxWait)
	backoff := 250 * time.Millisecond
	for attempt := 1; ; attempt++ {
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		c, err := client.DialContext(dialCtx, opts)
		cancel()
		if err == nil {
			if attempt > 1 {
				zap.L().Info("jobflow: connected to temporal",
					zap.String("host_port", cfg.HostPort),
					zap.Int("attempts", attempt),
				)
			}
			return c, nil
		}
		if ctx.Err() != nil || time.Now().After(deadline) {
			return nil, eris.Wrapf(err, "jobflow: dial temporal %s (namespace %s)", cfg.HostPort, cfg.Namespace)
		}

		zap.L().Warn("jobflow: temporal not reachable, retrying",
			zap.String("host_port", cfg.HostPort),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return nil, eris.Wrap(ctx.Err(), "jobflow: dial temporal")
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, 5*time.Second)
	}
}

// WorkflowID is the workflow ID used for a job. One open run per job.
func WorkflowID(jobID string) string {
	return "reconcile-" + jobID
}

// Submit starts ReconcileJobWorkflow for in.JobID on taskQueue.
func Submit(ctx context.Context, c client.Client, taskQueue string, in JobInput) (client.WorkflowRun, error) {
	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:                       WorkflowID(in.JobID),
		TaskQueue:                taskQueue,
		WorkflowIDReusePolicy:    enums.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowIDConflictPolicy: enums.WORKFLOW_ID_CONFLICT_POLICY_FAIL,
	}, WorkflowName, in)
	if err != nil {
		var started *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &started) {
			return nil, ErrAlreadyRunning
		}
		return nil, eris.Wrapf(err, "jobflow: start workflow for job %s", in.JobID)
	}

	zap.L().Info("jobflow: workflow submitted",
		zap.String("job_id", in.JobID),
		zap.String("workflow_id", run.GetID()),
		zap.String("run_id", run.GetRunID()),
	)
	return run, nil
}

// Wait blocks until run finishes and returns the job totals.
func Wait(ctx context.Context, run client.WorkflowRun) (model.BatchResult, error) {
	var total model.BatchResult
	if err := run.Get(ctx, &total); err != nil {
		return total, eris.Wrapf(err, "jobflow: workflow %s", run.GetID())
	}
	return total, nil
}
