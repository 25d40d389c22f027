package reconcile

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/datafixer/internal/model"
	"github.com/sells-group/datafixer/internal/store"
)

// StoreBackend resolves rows and counts progress against a store.Store.
type StoreBackend struct {
	store store.Store
}

// NewStoreBackend wraps st as a RecordResolver and ProgressCounter.
func NewStoreBackend(st store.Store) *StoreBackend {
	return &StoreBackend{store: st}
}

// Get returns the record a row was imported with. Results never replace it,
// so re-running a job recomputes every row from the source data.
func (b *StoreBackend) Get(ctx context.Context, rowID string) (model.Record, error) {
	row, err := b.store.GetRow(ctx, rowID)
	if err != nil {
		return nil, eris.Wrap(err, "reconcile: get row")
	}
	return row.Record, nil
}

func (b *StoreBackend) Save(ctx context.Context, rowID string, result *model.RowResult) error {
	return b.store.SaveRowResult(ctx, rowID, result)
}

func (b *StoreBackend) SaveStatus(ctx context.Context, rowID string, status model.RowStatus) error {
	return b.store.UpdateRowStatus(ctx, rowID, status)
}

func (b *StoreBackend) Increment(ctx context.Context, jobID string, delta model.BatchResult) error {
	return b.store.IncrementJobCounters(ctx, jobID, delta)
}

// SiblingLoader returns the rows of a job for sibling consensus.
func SiblingLoader(st store.Store) func(ctx context.Context, jobID string) ([]model.Row, error) {
	return func(ctx context.Context, jobID string) ([]model.Row, error) {
		var all []model.Row
		for offset := 0; ; offset += siblingPage {
			rows, err := st.ListRows(ctx, jobID, store.RowFilter{Limit: siblingPage, Offset: offset})
			if err != nil {
				return nil, eris.Wrapf(err, "reconcile: load siblings for job %s", jobID)
			}
			all = append(all, rows...)
			if len(rows) < siblingPage {
				return all, nil
			}
		}
	}
}

const siblingPage = 500
