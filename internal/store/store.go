package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/datafixer/internal/model"
)

// ErrNotFound is returned when a job or row does not exist.
var ErrNotFound = eris.New("store: not found")

// RowFilter narrows ListRows.
type RowFilter struct {
	Status model.RowStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store persists jobs, their rows and the entity cache.
type Store interface {
	// Jobs
	CreateJob(ctx context.Context, name string, schema model.Schema) (*model.Job, error)
	GetJob(ctx context.Context, jobID string) (*model.Job, error)
	ListJobs(ctx context.Context, limit int) ([]model.Job, error)
	UpdateJobStatus(ctx context.Context, jobID string, status model.JobStatus) error
	IncrementJobCounters(ctx context.Context, jobID string, delta model.BatchResult) error
	ResetJobCounters(ctx context.Context, jobID string) error

	// Rows
	InsertRows(ctx context.Context, jobID string, records []model.Record) ([]model.Row, error)
	GetRow(ctx context.Context, rowID string) (*model.Row, error)
	ListRows(ctx context.Context, jobID string, filter RowFilter) ([]model.Row, error)
	ListRowIDs(ctx context.Context, jobID string) ([]string, error)
	UpdateRowStatus(ctx context.Context, rowID string, status model.RowStatus) error
	SaveRowResult(ctx context.Context, rowID string, result *model.RowResult) error

	// Entity cache
	GetEntry(ctx context.Context, key, versionTag string) (*model.CacheEntry, error)
	PutEntry(ctx context.Context, entry model.CacheEntry) error
	DeleteExpiredEntries(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 1000
