package model

import "time"

// CacheEntry is a merged change set stored per normalized entity key.
type CacheEntry struct {
	Key         string        `json:"key"`
	VersionTag  string        `json:"version_tag"`
	Data        []FieldChange `json:"data"`
	RetrievedAt time.Time     `json:"retrieved_at"`
	TTL         time.Duration `json:"ttl"`
}

// ExpiresAt returns the instant after which the entry is stale.
func (e CacheEntry) ExpiresAt() time.Time {
	return e.RetrievedAt.Add(e.TTL)
}

// RowResult is everything the engine produces for one row.
type RowResult struct {
	RowID          string          `json:"row_id"`
	Record         Record          `json:"record"`
	Issues         []Issue         `json:"issues"`
	Changes        []FieldChange   `json:"changes"`
	Status         RowStatus       `json:"status"`
	Error          string          `json:"error,omitempty"`
	NameCandidates []NameCandidate `json:"name_candidates,omitempty"`
	ReviewReason   string          `json:"review_reason,omitempty"`
	CacheHit       bool            `json:"cache_hit"`
}

// BatchResult tallies the rows handled by one batch.
type BatchResult struct {
	Processed   int64 `json:"processed"`
	Enriched    int64 `json:"enriched"`
	Errored     int64 `json:"errored"`
	NeedsReview int64 `json:"needs_review"`
}

// Add accumulates another batch into b.
func (b *BatchResult) Add(o BatchResult) {
	b.Processed += o.Processed
	b.Enriched += o.Enriched
	b.Errored += o.Errored
	b.NeedsReview += o.NeedsReview
}

// Count records a single row outcome.
func (b *BatchResult) Count(status RowStatus) {
	b.Processed++
	switch status {
	case RowStatusEnriched:
		b.Enriched++
	case RowStatusError:
		b.Errored++
	case RowStatusNeedsReview:
		b.NeedsReview++
	}
}

// Job is one imported file being reconciled.
type Job struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Schema      Schema    `json:"schema"`
	Status      JobStatus `json:"status"`
	TotalRows   int       `json:"total_rows"`
	Processed   int64     `json:"processed"`
	Enriched    int64     `json:"enriched"`
	Errored     int64     `json:"errored"`
	NeedsReview int64     `json:"needs_review"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Row is one record of a job along with its latest result.
type Row struct {
	ID        string     `json:"id"`
	JobID     string     `json:"job_id"`
	Index     int        `json:"index"`
	Record    Record     `json:"record"`
	Status    RowStatus  `json:"status"`
	Result    *RowResult `json:"result,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}
