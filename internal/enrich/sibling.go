package enrich

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/datafixer/internal/model"
	"github.com/sells-group/datafixer/internal/textnorm"
	"github.com/sells-group/datafixer/internal/validate"
)

const (
	siblingBase    = 0.6
	siblingSpread  = 0.25
	siblingCeiling = 0.85
)

type siblingRow struct {
	id     string
	record model.Record
}

// SiblingIndex groups the rows of one job by normalized company name.
type SiblingIndex struct {
	groups map[string][]siblingRow
}

// NewSiblingIndex builds an index over rows, which should be in row order.
func NewSiblingIndex(rows []model.Row) *SiblingIndex {
	ix := &SiblingIndex{groups: make(map[string][]siblingRow)}
	for _, r := range rows {
		key := textnorm.Key(r.Record.Get(model.FieldCompanyName))
		if key == "" {
			continue
		}
		ix.groups[key] = append(ix.groups[key], siblingRow{id: r.ID, record: r.Record})
	}
	return ix
}

// siblings returns the rows sharing name, excluding rowID.
func (ix *SiblingIndex) siblings(name, rowID string) []siblingRow {
	if ix == nil {
		return nil
	}
	group := ix.groups[textnorm.Key(name)]
	out := make([]siblingRow, 0, len(group))
	for _, r := range group {
		if r.id != rowID {
			out = append(out, r)
		}
	}
	return out
}

// RowLoader lists the rows of a job in row order.
type RowLoader func(ctx context.Context, jobID string) ([]model.Row, error)

// SiblingIndexes builds and memoizes one SiblingIndex per job.
type SiblingIndexes struct {
	load RowLoader

	mu      sync.Mutex
	indexes map[string]*SiblingIndex
}

// NewSiblingIndexes returns an index cache reading rows with load.
func NewSiblingIndexes(load RowLoader) *SiblingIndexes {
	return &SiblingIndexes{load: load, indexes: make(map[string]*SiblingIndex)}
}

// Get returns the index of jobID, building it on first use.
func (s *SiblingIndexes) Get(ctx context.Context, jobID string) (*SiblingIndex, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ix, ok := s.indexes[jobID]; ok {
		return ix, nil
	}
	rows, err := s.load(ctx, jobID)
	if err != nil {
		return nil, eris.Wrapf(err, "enrich: load rows of job %s", jobID)
	}
	ix := NewSiblingIndex(rows)
	s.indexes[jobID] = ix
	return ix, nil
}

// Forget drops the index of jobID.
func (s *SiblingIndexes) Forget(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.indexes, jobID)
}

// SiblingAdapter fills empty fields from other rows of the same job that
// name the same company.
type SiblingAdapter struct {
	indexes *SiblingIndexes
	now     func() time.Time
}

// NewSiblingAdapter returns an adapter over indexes.
func NewSiblingAdapter(indexes *SiblingIndexes) *SiblingAdapter {
	return &SiblingAdapter{indexes: indexes, now: time.Now}
}

func (a *SiblingAdapter) Name() Source { return SourceSibling }

func (a *SiblingAdapter) Enrich(ctx context.Context, in Input) (Result, error) {
	name := in.Record.Get(model.FieldCompanyName)
	if name == "" || in.JobID == "" {
		return Result{}, nil
	}
	ix, err := a.indexes.Get(ctx, in.JobID)
	if err != nil {
		return Result{}, err
	}
	sibs := ix.siblings(name, in.RowID)
	if len(sibs) == 0 {
		return Result{}, nil
	}

	now := a.now().UTC()
	var res Result
	for _, f := range in.Schema.EnabledFields() {
		if in.Record.Has(f) {
			continue
		}
		if c, ok := siblingConsensus(f, sibs, in.JobID, now); ok {
			res.Changes = append(res.Changes, c)
		}
	}
	return res, nil
}

// siblingConsensus proposes the most frequent sibling value for f. Ties go
// to the value seen first.
func siblingConsensus(f model.Field, sibs []siblingRow, jobID string, now time.Time) (model.FieldChange, bool) {
	type tally struct {
		value string
		count int
		rows  []string
	}
	var (
		order  []string
		counts = make(map[string]*tally)
		having int
	)
	for _, s := range sibs {
		v := normalizedValue(s.record, f)
		if v == "" {
			continue
		}
		having++
		key := strings.ToLower(v)
		t, ok := counts[key]
		if !ok {
			t = &tally{value: v}
			counts[key] = t
			order = append(order, key)
		}
		t.count++
		t.rows = append(t.rows, s.id)
	}
	if having == 0 {
		return model.FieldChange{}, false
	}

	var best *tally
	for _, k := range order {
		if t := counts[k]; best == nil || t.count > best.count {
			best = t
		}
	}

	agreement := float64(best.count) / float64(having)
	conf := min(siblingCeiling, siblingBase+siblingSpread*agreement)

	sources := make([]model.SourceRef, 0, len(best.rows))
	for _, id := range best.rows {
		sources = append(sources, model.SourceRef{
			URL:         fmt.Sprintf("job://%s/rows/%s", jobID, id),
			Type:        model.SourcePublicDatabase,
			RetrievedAt: now,
			Snippet:     best.value,
		})
	}
	return model.FieldChange{
		Field:         f,
		ProposedValue: model.StringPtr(best.value),
		Confidence:    conf,
		Reasoning:     fmt.Sprintf("%d of %d rows for the same company agree", best.count, having),
		Sources:       sources,
		Action:        model.ActionAdded,
	}, true
}

// normalizedValue returns the value of f in rec in the form validation would
// leave it, so differently written siblings count as one value.
func normalizedValue(rec model.Record, f model.Field) string {
	v := strings.TrimSpace(rec.Get(f))
	if v == "" {
		return ""
	}
	switch f {
	case model.FieldCountry:
		if code, ok := validate.ResolveCountry(v); ok {
			return code
		}
	case model.FieldWebsite:
		if u, ok := validate.NormalizeWebsite(v); ok {
			return u
		}
	case model.FieldEmail:
		if e, ok := validate.NormalizeEmail(v); ok {
			return e
		}
	case model.FieldPhone:
		country, _ := validate.ResolveCountry(rec.Get(model.FieldCountry))
		p, _ := validate.NormalizePhone(v, country)
		return p
	case model.FieldVATID:
		return validate.NormalizeVAT(v)
	}
	return v
}
