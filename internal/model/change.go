package model

import "time"

// SourceType describes where a piece of evidence came from.
type SourceType string

const (
	SourceOfficialWebsite  SourceType = "OFFICIAL_WEBSITE"
	SourceBusinessRegistry SourceType = "BUSINESS_REGISTRY"
	SourcePublicDatabase   SourceType = "PUBLIC_DATABASE"
	SourceSearchResult     SourceType = "SEARCH_RESULT"
	SourceLLMKnowledge     SourceType = "LLM_KNOWLEDGE"
)

// ChangeAction is the kind of edit a FieldChange proposes.
type ChangeAction string

const (
	ActionAdded     ChangeAction = "ADDED"
	ActionCorrected ChangeAction = "CORRECTED"
	ActionVerified  ChangeAction = "VERIFIED"
)

// SourceRef is one piece of provenance behind a FieldChange.
type SourceRef struct {
	URL         string     `json:"url"`
	Type        SourceType `json:"type"`
	RetrievedAt time.Time  `json:"retrieved_at"`
	Snippet     string     `json:"snippet,omitempty"`
}

// FieldChange is a proposed value for one canonical field. Changes are
// never edited after creation; merging only selects or discards them.
type FieldChange struct {
	Field         Field        `json:"field"`
	OriginalValue *string      `json:"original_value"`
	ProposedValue *string      `json:"proposed_value"`
	Confidence    float64      `json:"confidence"`
	Reasoning     string       `json:"reasoning"`
	Sources       []SourceRef  `json:"sources"`
	Action        ChangeAction `json:"action"`
}

// Proposed returns the proposed value or "".
func (c FieldChange) Proposed() string {
	return Deref(c.ProposedValue)
}

// NameCandidate is a possible legal name for the entity behind a row.
type NameCandidate struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}
