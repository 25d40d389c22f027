package jobflow

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/mocks"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/sells-group/datafixer/internal/model"
	"github.com/sells-group/datafixer/internal/store"
)

type memJobs struct {
	mu       sync.Mutex
	job      model.Job
	ids      []string
	statuses []model.JobStatus
	resets   int
}

func newMemJobs(rows int) *memJobs {
	m := &memJobs{job: model.Job{ID: "job-1", Name: "suppliers.csv", TotalRows: rows}}
	for i := range rows {
		m.ids = append(m.ids, fmt.Sprintf("row-%d", i))
	}
	return m
}

func (m *memJobs) GetJob(_ context.Context, jobID string) (*model.Job, error) {
	if jobID != m.job.ID {
		return nil, store.ErrNotFound
	}
	j := m.job
	return &j, nil
}

func (m *memJobs) ListRowIDs(_ context.Context, _ string) ([]string, error) {
	return append([]string(nil), m.ids...), nil
}

func (m *memJobs) UpdateJobStatus(_ context.Context, _ string, status model.JobStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, status)
	return nil
}

func (m *memJobs) ResetJobCounters(_ context.Context, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets++
	return nil
}

func (m *memJobs) lastStatus() model.JobStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.statuses) == 0 {
		return ""
	}
	return m.statuses[len(m.statuses)-1]
}

// recorder enriches every even row and flags every odd one for review.
type recorder struct {
	mu   sync.Mutex
	seen []string
}

func (r *recorder) ProcessBatch(_ context.Context, _ *model.Job, rowIDs []string) model.BatchResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res model.BatchResult
	for _, id := range rowIDs {
		status := model.RowStatusEnriched
		if len(r.seen)%2 == 1 {
			status = model.RowStatusNeedsReview
		}
		r.seen = append(r.seen, id)
		res.Count(status)
	}
	return res
}

type forgetCounter struct {
	mu    sync.Mutex
	calls []string
}

func (f *forgetCounter) Forget(jobID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, jobID)
}

func TestReconcileJobWorkflow_RunsAllBatches(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()

	jobs := newMemJobs(5)
	rec := &recorder{}
	forget := &forgetCounter{}
	Register(env, &Activities{Jobs: jobs, Engine: rec, Forget: forget})

	env.ExecuteWorkflow(ReconcileJobWorkflow, JobInput{JobID: "job-1", BatchSize: 2, MaxConcurrent: 2})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var total model.BatchResult
	require.NoError(t, env.GetWorkflowResult(&total))
	assert.Equal(t, model.BatchResult{Processed: 5, Enriched: 3, NeedsReview: 2}, total)

	assert.ElementsMatch(t, jobs.ids, rec.seen)
	assert.Equal(t, 1, jobs.resets)
	assert.Equal(t, []model.JobStatus{model.JobStatusRunning, model.JobStatusCompleted}, jobs.statuses)
	assert.Equal(t, []string{"job-1", "job-1"}, forget.calls)
}

func TestReconcileJobWorkflow_EmptyJob(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()

	jobs := newMemJobs(0)
	rec := &recorder{}
	Register(env, &Activities{Jobs: jobs, Engine: rec})

	env.ExecuteWorkflow(ReconcileJobWorkflow, JobInput{JobID: "job-1"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	assert.Empty(t, rec.seen)
	assert.Equal(t, model.JobStatusCompleted, jobs.lastStatus())
}

func TestReconcileJobWorkflow_BatchFailureMarksJobFailed(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()

	jobs := newMemJobs(4)
	Register(env, &Activities{Jobs: jobs, Engine: &recorder{}})
	env.OnActivity(ActivityReconcileBatch, mock.Anything, mock.Anything).
		Return(model.BatchResult{}, temporal.NewNonRetryableApplicationError("store unavailable", "store", nil))

	env.ExecuteWorkflow(ReconcileJobWorkflow, JobInput{JobID: "job-1", BatchSize: 2, MaxConcurrent: 4})
	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
	assert.Contains(t, env.GetWorkflowError().Error(), "store unavailable")
	assert.Equal(t, model.JobStatusFailed, jobs.lastStatus())
}

func TestReconcileBatch_ResumesFromHeartbeat(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestActivityEnvironment()

	jobs := newMemJobs(6)
	rec := &recorder{}
	acts := &Activities{Jobs: jobs, Engine: rec}
	env.RegisterActivity(acts.ReconcileBatch)
	env.SetHeartbeatDetails(batchProgress{Done: 1, Result: model.BatchResult{Processed: 1, Enriched: 1}})

	val, err := env.ExecuteActivity(acts.ReconcileBatch, BatchInput{JobID: "job-1", Offset: 2, Limit: 3})
	require.NoError(t, err)

	var res model.BatchResult
	require.NoError(t, val.Get(&res))
	assert.Equal(t, []string{"row-3", "row-4"}, rec.seen)
	assert.Equal(t, model.BatchResult{Processed: 3, Enriched: 2, NeedsReview: 1}, res)
}

func TestReconcileBatch_OffsetPastEnd(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestActivityEnvironment()

	rec := &recorder{}
	acts := &Activities{Jobs: newMemJobs(2), Engine: rec}
	env.RegisterActivity(acts.ReconcileBatch)

	val, err := env.ExecuteActivity(acts.ReconcileBatch, BatchInput{JobID: "job-1", Offset: 4, Limit: 2})
	require.NoError(t, err)
	var res model.BatchResult
	require.NoError(t, val.Get(&res))
	assert.Zero(t, res)
	assert.Empty(t, rec.seen)
}

func TestReconcileBatch_UnknownJob(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestActivityEnvironment()

	acts := &Activities{Jobs: newMemJobs(1), Engine: &recorder{}}
	env.RegisterActivity(acts.ReconcileBatch)

	_, err := env.ExecuteActivity(acts.ReconcileBatch, BatchInput{JobID: "missing", Limit: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load job")
}

func TestShard(t *testing.T) {
	got := shard(5, 2, "job-1")
	assert.Equal(t, []BatchInput{
		{JobID: "job-1", Offset: 0, Limit: 2},
		{JobID: "job-1", Offset: 2, Limit: 2},
		{JobID: "job-1", Offset: 4, Limit: 1},
	}, got)
	assert.Nil(t, shard(0, 2, "job-1"))
}

func TestSubmit(t *testing.T) {
	c := &mocks.Client{}
	defer c.AssertExpectations(t)
	run := &mocks.WorkflowRun{}
	defer run.AssertExpectations(t)
	run.On("GetID").Return("reconcile-job-1")
	run.On("GetRunID").Return("run-1")

	in := JobInput{JobID: "job-1", BatchSize: 25, MaxConcurrent: 5}
	c.On("ExecuteWorkflow", mock.Anything, mock.MatchedBy(func(o client.StartWorkflowOptions) bool {
		return o.ID == "reconcile-job-1" && o.TaskQueue == "datafixer"
	}), WorkflowName, in).Return(run, nil)

	got, err := Submit(context.Background(), c, "datafixer", in)
	require.NoError(t, err)
	assert.Equal(t, "run-1", got.GetRunID())
}

func TestSubmit_AlreadyRunning(t *testing.T) {
	c := &mocks.Client{}
	defer c.AssertExpectations(t)
	c.On("ExecuteWorkflow", mock.Anything, mock.Anything, WorkflowName, mock.Anything).
		Return(nil, serviceerror.NewWorkflowExecutionAlreadyStarted("started", "req-1", "run-1"))

	_, err := Submit(context.Background(), c, "datafixer", JobInput{JobID: "job-1"})
	require.ErrorIs(t, err, ErrAlreadyRunning)
}
