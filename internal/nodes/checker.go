package nodes

import (
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/ShayCichocki/rise/internal/graph"
	"github.com/ShayCichocki/rise/pkg/models"
)

// Checker validates plans against a roster. It is shared by the validator
// and the replanner so both judge plans the same way.
type Checker struct {
	Roster models.Roster
	// Strict treats every issue as blocking and disables auto-fixing.
	Strict bool
	// AutoFix corrects low-severity issues outside strict mode.
	AutoFix bool
	// NewID names auto-fixed plan versions.
	NewID func() string
}

// Check validates plan. When issues were corrected it also returns the
// corrected plan as a new version; plan itself is never modified.
func (c Checker) Check(plan *models.Plan) (models.ValidationReport, *models.Plan) {
	report := models.ValidationReport{Strict: c.Strict}
	if plan == nil {
		report.Issues = append(report.Issues, models.ValidationIssue{
			Type:     models.IssueEmptyPlan,
			Severity: models.SeverityCritical,
			Message:  "no plan has been produced",
		})
		return c.finish(report), nil
	}
	report.PlanID = plan.ID

	work := plan.Clone()
	fix := !c.Strict && c.AutoFix
	fixed := 0
	add := func(issue models.ValidationIssue, apply func()) {
		if fix && apply != nil && issue.Severity == models.SeverityLow {
			apply()
			issue.Fixed = true
			fixed++
		}
		report.Issues = append(report.Issues, issue)
	}

	if len(work.Steps) == 0 {
		msg := "plan has no steps"
		if plan.Reason != "" {
			msg += ": " + plan.Reason
		}
		add(models.ValidationIssue{
			Type:       models.IssueEmptyPlan,
			Severity:   models.SeverityCritical,
			Message:    msg,
			Suggestion: "assign at least one step to a team",
		}, nil)
		return c.finish(report), nil
	}

	seen := make(map[string]int)
	for i := range work.Steps {
		step := &work.Steps[i]

		if n := seen[step.ID]; n > 0 {
			renamed := fmt.Sprintf("%s-%d", step.ID, n+1)
			add(models.ValidationIssue{
				Type:       models.IssueDuplicateStep,
				Severity:   models.SeverityLow,
				StepID:     step.ID,
				Message:    fmt.Sprintf("step id %q is used more than once", step.ID),
				Suggestion: fmt.Sprintf("rename to %q", renamed),
			}, func() { step.ID = renamed })
		}
		seen[step.ID]++

		if strings.TrimSpace(step.Description) == "" {
			add(models.ValidationIssue{
				Type:       models.IssueEmptyDescription,
				Severity:   models.SeverityLow,
				StepID:     step.ID,
				Message:    "step has no description",
				Suggestion: "describe the step with the plan goal",
			}, func() { step.Description = work.Goal })
		}

		c.checkTeam(step, add)
	}

	c.checkDependencies(&work, add)

	report = c.finish(report)
	if fixed == 0 {
		return report, nil
	}

	work.ID = c.newID()
	work.Version = 0
	work.CreatedAt = plan.CreatedAt
	work.CreatedBy = string(ValidatorName)
	work.Reason = fmt.Sprintf("auto-fixed %d issue(s) in plan %s", fixed, plan.ID)
	report.PlanID = work.ID
	return report, &work
}

func (c Checker) checkTeam(step *models.PlanStep, add func(models.ValidationIssue, func())) {
	if !c.Roster.Has(step.Team) {
		if resolved, ok := c.Roster.Resolve(step.Team); ok {
			add(models.ValidationIssue{
				Type:       models.IssueUnknownTeam,
				Severity:   models.SeverityLow,
				StepID:     step.ID,
				Message:    fmt.Sprintf("team %q is not in the roster", step.Team),
				Suggestion: fmt.Sprintf("use %q", resolved),
			}, func() { step.Team = resolved })
		} else {
			add(models.ValidationIssue{
				Type:       models.IssueUnknownTeam,
				Severity:   models.SeverityHigh,
				StepID:     step.ID,
				Message:    fmt.Sprintf("team %q is not in the roster", step.Team),
				Suggestion: "choose one of: " + strings.Join(c.Roster.Names(), ", "),
			}, nil)
			return
		}
	}

	team, ok := c.Roster.Team(step.Team)
	if !ok {
		// Unresolved team in strict mode or without auto-fix.
		resolved, _ := c.Roster.Resolve(step.Team)
		team, _ = c.Roster.Team(resolved)
	}
	if len(team.Tools) == 0 {
		return
	}
	for _, tool := range slices.Clone(step.Tools) {
		if slices.Contains(team.Tools, tool) {
			continue
		}
		add(models.ValidationIssue{
			Type:       models.IssueUnknownTool,
			Severity:   models.SeverityLow,
			StepID:     step.ID,
			Message:    fmt.Sprintf("team %q has no tool %q", team.Name, tool),
			Suggestion: "drop the tool hint",
		}, func() {
			step.Tools = slices.DeleteFunc(step.Tools, func(t string) bool { return t == tool })
		})
	}
}

func (c Checker) checkDependencies(plan *models.Plan, add func(models.ValidationIssue, func())) {
	g := graph.FromPlan(plan)

	for _, m := range g.Missing() {
		step := plan.Step(m.StepID)
		dep := m.DependsOn
		add(models.ValidationIssue{
			Type:       models.IssueMissingDependency,
			Severity:   models.SeverityLow,
			StepID:     m.StepID,
			Message:    fmt.Sprintf("step depends on unknown step %q", dep),
			Suggestion: "drop the dependency",
		}, func() {
			step.DependsOn = slices.DeleteFunc(step.DependsOn, func(d string) bool { return d == dep })
		})
	}

	if cycle := g.Cycle(); len(cycle) > 0 {
		add(models.ValidationIssue{
			Type:       models.IssueDependencyCycle,
			Severity:   models.SeverityHigh,
			StepID:     cycle[0],
			Message:    "dependency cycle: " + strings.Join(cycle, " -> "),
			Suggestion: "remove one dependency in the cycle",
		}, nil)
	}
}

// finish computes validity and the highest unfixed severity.
func (c Checker) finish(report models.ValidationReport) models.ValidationReport {
	report.Valid = true
	for _, issue := range report.Unfixed() {
		if issue.Severity.Rank() > report.Severity.Rank() {
			report.Severity = issue.Severity
		}
		if c.Strict || issue.Severity.Rank() > models.SeverityLow.Rank() {
			report.Valid = false
		}
	}
	return report
}

func (c Checker) newID() string {
	if c.NewID != nil {
		return c.NewID()
	}
	return uuid.New().String()
}

// DescribeIssues renders the unfixed issues of a report for prompts and turns.
func DescribeIssues(report *models.ValidationReport) string {
	if report == nil {
		return ""
	}
	var b strings.Builder
	for _, issue := range report.Unfixed() {
		fmt.Fprintf(&b, "- [%s] %s", issue.Severity, issue.Message)
		if issue.StepID != "" {
			fmt.Fprintf(&b, " (step %s)", issue.StepID)
		}
		if issue.Suggestion != "" {
			fmt.Fprintf(&b, "; %s", issue.Suggestion)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
