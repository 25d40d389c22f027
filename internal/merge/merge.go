// Package merge reduces the change proposals of several enrichment sources
// into one change set per row and applies it to a record.
package merge

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/datafixer/internal/model"
	"github.com/sells-group/datafixer/internal/textnorm"
)

// DefaultThreshold is the minimum confidence a change needs to be applied.
const DefaultThreshold = 0.7

// contradictionThreshold is the minimum confidence on both sides for a
// disagreement between sources to be logged.
const contradictionThreshold = 0.5

// DropNoOps removes changes that would not alter the record: empty
// proposals, proposals equal to the current value, and proposals equal to the
// value the source saw when it made the change.
func DropNoOps(changes []model.FieldChange, current model.Record) []model.FieldChange {
	out := make([]model.FieldChange, 0, len(changes))
	for _, c := range changes {
		proposed := c.Proposed()
		if strings.TrimSpace(proposed) == "" {
			continue
		}
		if textnorm.Equal(proposed, current.Get(c.Field)) {
			continue
		}
		if c.OriginalValue != nil && textnorm.Equal(proposed, *c.OriginalValue) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Merge picks one change per field. Sets are passed in descending source
// priority: the first proposal for a field is kept and a later one replaces
// it only with strictly greater confidence. The result is in canonical field
// order.
func Merge(bySource ...[]model.FieldChange) []model.FieldChange {
	best := make(map[model.Field]model.FieldChange)
	rank := make(map[model.Field]int)

	for i, changes := range bySource {
		for _, c := range changes {
			if !c.Field.Valid() {
				continue
			}
			existing, ok := best[c.Field]
			if !ok {
				best[c.Field] = c
				rank[c.Field] = i
				continue
			}

			if rank[c.Field] != i &&
				c.Confidence >= contradictionThreshold &&
				existing.Confidence >= contradictionThreshold &&
				!textnorm.Equal(c.Proposed(), existing.Proposed()) {
				zap.L().Warn("merge: sources disagree",
					zap.String("field", string(c.Field)),
					zap.String("value_a", existing.Proposed()),
					zap.Float64("conf_a", existing.Confidence),
					zap.String("value_b", c.Proposed()),
					zap.Float64("conf_b", c.Confidence),
				)
			}

			if c.Confidence > existing.Confidence {
				best[c.Field] = c
				rank[c.Field] = i
			}
		}
	}

	out := make([]model.FieldChange, 0, len(best))
	for _, c := range best {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Field.Order() < out[j].Field.Order() })
	return out
}

// FilterSchema keeps only changes for fields the schema maps.
func FilterSchema(changes []model.FieldChange, schema model.Schema) []model.FieldChange {
	out := make([]model.FieldChange, 0, len(changes))
	for _, c := range changes {
		if schema.Enabled(c.Field) {
			out = append(out, c)
		}
	}
	return out
}

// Apply returns a copy of rec with the qualifying changes written in, plus
// the changes that were applied. A change qualifies when its confidence
// reaches threshold, it is not VERIFIED, and the field is empty or the change
// is a correction.
func Apply(rec model.Record, changes []model.FieldChange, threshold float64) (model.Record, []model.FieldChange) {
	out := rec.Clone()
	var applied []model.FieldChange
	for _, c := range changes {
		if c.Confidence < threshold || c.Action == model.ActionVerified {
			continue
		}
		if out.Has(c.Field) && c.Action != model.ActionCorrected {
			continue
		}
		out.Set(c.Field, c.Proposed())
		applied = append(applied, c)
	}
	return out, applied
}

// Real reports whether any change actually edits a value.
func Real(changes []model.FieldChange) bool {
	for _, c := range changes {
		if c.Action != model.ActionVerified {
			return true
		}
	}
	return false
}
