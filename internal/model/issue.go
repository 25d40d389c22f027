package model

// IssueType classifies a validation finding.
type IssueType string

const (
	IssueMissing     IssueType = "MISSING"
	IssueInvalid     IssueType = "INVALID"
	IssueSuspicious  IssueType = "SUSPICIOUS"
	IssueFormatError IssueType = "FORMAT_ERROR"
)

// Severity ranks how much an issue blocks a clean record.
type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
	SeverityInfo    Severity = "INFO"
)

// Rank orders severities: INFO < WARNING < ERROR.
func (s Severity) Rank() int {
	switch s {
	case SeverityError:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}

// Issue is a single validation finding attached to a row version.
type Issue struct {
	Field          Field     `json:"field"`
	OriginalValue  *string   `json:"original_value"`
	Type           IssueType `json:"issue_type"`
	Severity       Severity  `json:"severity"`
	Message        string    `json:"message"`
	SuggestedValue *string   `json:"suggested_value,omitempty"`
}

// HasSeverity reports whether any issue is at least as severe as min.
func HasSeverity(issues []Issue, min Severity) bool {
	for _, is := range issues {
		if is.Severity.Rank() >= min.Rank() {
			return true
		}
	}
	return false
}
