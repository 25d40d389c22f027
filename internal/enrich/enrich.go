// Package enrich defines the enrichment source adapters consulted for a row
// and the guard that keeps a failing source from affecting the others.
package enrich

import (
	"context"
	"strings"
	"time"

	"github.com/sells-group/datafixer/internal/model"
)

// Source identifies an enrichment adapter.
type Source string

const (
	SourceVAT      Source = "vat"
	SourceRegistry Source = "registry"
	SourceSibling  Source = "sibling"
	SourceSearch   Source = "search"
	SourceLLM      Source = "llm"
)

// Adapter is one enrichment source. "No data" is an empty Result with a nil
// error; a non-nil error means the call failed.
type Adapter interface {
	Name() Source
	Enrich(ctx context.Context, in Input) (Result, error)
}

// Input is what an adapter sees of a row. Adapters must not mutate Record.
type Input struct {
	RowID    string
	JobID    string
	Record   model.Record
	Issues   []model.Issue
	Schema   model.Schema
	Snippets []Snippet
	VAT      *VATContext
}

// Snippet is a piece of retrieved text handed to the language model.
type Snippet struct {
	URL   string           `json:"url"`
	Title string           `json:"title,omitempty"`
	Text  string           `json:"text"`
	Type  model.SourceType `json:"type"`
}

// VATContext summarizes a registry check for later stages.
type VATContext struct {
	Valid       bool   `json:"valid"`
	Name        string `json:"name,omitempty"`
	Address     string `json:"address,omitempty"`
	CountryCode string `json:"country_code"`
	Number      string `json:"number"`
}

// ReviewRequest asks for a human to look at the row.
type ReviewRequest struct {
	Reason string `json:"reason"`
}

// Result is an adapter's contribution to a row.
type Result struct {
	Changes    []model.FieldChange
	Snippets   []Snippet
	Issues     []model.Issue
	Candidates []model.NameCandidate
	Review     *ReviewRequest
	VAT        *VATContext
}

// Empty reports whether the adapter contributed nothing.
func (r Result) Empty() bool {
	return len(r.Changes) == 0 && len(r.Snippets) == 0 && len(r.Issues) == 0 &&
		len(r.Candidates) == 0 && r.Review == nil && r.VAT == nil
}

// Outcome reports how one guarded adapter call went.
type Outcome struct {
	Source   Source
	Status   string
	Err      error
	Duration time.Duration
}

func newChange(f model.Field, original *string, proposed string, conf float64, action model.ChangeAction, reasoning string, src model.SourceRef) model.FieldChange {
	return model.FieldChange{
		Field:         f,
		OriginalValue: original,
		ProposedValue: model.StringPtr(strings.TrimSpace(proposed)),
		Confidence:    conf,
		Reasoning:     reasoning,
		Sources:       []model.SourceRef{src},
		Action:        action,
	}
}

// addIfAbsent appends an ADDED change for f when the record has no value and
// v is non-blank.
func addIfAbsent(changes []model.FieldChange, rec model.Record, f model.Field, v string, conf float64, reasoning string, src model.SourceRef) []model.FieldChange {
	if rec.Has(f) || strings.TrimSpace(v) == "" {
		return changes
	}
	return append(changes, newChange(f, nil, v, conf, model.ActionAdded, reasoning, src))
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	// Back up to a rune boundary.
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
