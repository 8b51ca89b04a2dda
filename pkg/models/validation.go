package models

// Severity ranks how serious a validation issue is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities from low (1) to critical (4). Unknown values rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// IssueType classifies a validation issue.
type IssueType string

const (
	IssueEmptyPlan         IssueType = "empty_plan"
	IssueUnknownTeam       IssueType = "unknown_team"
	IssueUnknownTool       IssueType = "unknown_tool"
	IssueMissingDependency IssueType = "missing_dependency"
	IssueDependencyCycle   IssueType = "dependency_cycle"
	IssueDuplicateStep     IssueType = "duplicate_step"
	IssueEmptyDescription  IssueType = "empty_description"
)

// ValidationIssue is a single problem found in a plan.
type ValidationIssue struct {
	Type     IssueType `json:"type"`
	Severity Severity  `json:"severity"`
	// StepID is the offending step, if the issue is step-scoped.
	StepID     string `json:"step_id,omitempty"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
	// Fixed is set when non-strict validation corrected the issue.
	Fixed bool `json:"fixed,omitempty"`
}

// ValidationReport is the result of checking a plan against the roster.
// An invalid report is routed to the replanner; it is data, not an error.
type ValidationReport struct {
	// Valid is false when at least one blocking issue remains.
	Valid bool `json:"is_valid"`
	// PlanID identifies the plan version that was checked.
	PlanID string `json:"plan_id"`
	// Issues lists every problem found, fixed or not.
	Issues []ValidationIssue `json:"issues,omitempty"`
	// Severity is the highest severity among unfixed issues.
	Severity Severity `json:"severity,omitempty"`
	// Strict records whether strict mode was in effect.
	Strict bool `json:"strict"`
}

// Unfixed returns the issues that were not auto-corrected.
func (r *ValidationReport) Unfixed() []ValidationIssue {
	var out []ValidationIssue
	for _, issue := range r.Issues {
		if !issue.Fixed {
			out = append(out, issue)
		}
	}
	return out
}

// Clone returns a deep copy of the report.
func (r ValidationReport) Clone() ValidationReport {
	r.Issues = append([]ValidationIssue(nil), r.Issues...)
	return r
}
