package model

import "strings"

// RowStatus is the lifecycle state of a single row.
type RowStatus string

const (
	RowStatusPending     RowStatus = "PENDING"
	RowStatusValidated   RowStatus = "VALIDATED"
	RowStatusEnriched    RowStatus = "ENRICHED"
	RowStatusNeedsReview RowStatus = "NEEDS_REVIEW"
	RowStatusError       RowStatus = "ERROR"
)

// rowTransitions lists the allowed next states for each row state.
var rowTransitions = map[RowStatus][]RowStatus{
	RowStatusPending:   {RowStatusValidated, RowStatusNeedsReview, RowStatusError},
	RowStatusValidated: {RowStatusValidated, RowStatusEnriched, RowStatusNeedsReview, RowStatusError},
	// Terminal states may be re-entered by re-running a job.
	RowStatusEnriched:    {RowStatusPending},
	RowStatusNeedsReview: {RowStatusPending},
	RowStatusError:       {RowStatusPending},
}

// CanTransition reports whether a row may move from one state to another.
func CanTransition(from, to RowStatus) bool {
	for _, s := range rowTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ParseRowStatus resolves a status name, ignoring case.
func ParseRowStatus(v string) (RowStatus, bool) {
	s := RowStatus(strings.ToUpper(strings.TrimSpace(v)))
	if _, ok := rowTransitions[s]; !ok {
		return "", false
	}
	return s, true
}

// Terminal reports whether s ends a row's processing.
func (s RowStatus) Terminal() bool {
	switch s {
	case RowStatusValidated, RowStatusEnriched, RowStatusNeedsReview, RowStatusError:
		return true
	default:
		return false
	}
}

// JobStatus is the lifecycle state of an import job.
type JobStatus string

const (
	JobStatusImported  JobStatus = "imported"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)
