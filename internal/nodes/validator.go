package nodes

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/ShayCichocki/rise/internal/orchestrator"
	"github.com/ShayCichocki/rise/pkg/models"
)

// Validator checks the latest plan against the roster. An invalid plan is
// routed to the replanner as data; a valid one goes to the supervisor.
type Validator struct {
	checker Checker
	log     zerolog.Logger
}

// NewValidator creates a validator using checker.
func NewValidator(checker Checker, opts ...Option) *Validator {
	o := buildOptions(ValidatorName, orchestrator.Supervisor, opts)
	if checker.NewID == nil {
		checker.NewID = o.newID
	}
	return &Validator{checker: checker, log: o.log}
}

// Checker returns the plan checker, so a replanner can judge plans the same way.
func (v *Validator) Checker() Checker {
	return v.checker
}

// Routes implements orchestrator.Component.
func (v *Validator) Routes() []orchestrator.Target {
	return []orchestrator.Target{ReplannerName, orchestrator.Supervisor}
}

// Execute implements orchestrator.Component.
func (v *Validator) Execute(_ context.Context, state models.RunState) (orchestrator.Directive, error) {
	report, fixed := v.checker.Check(state.LatestPlan())
	update := models.StateUpdate{ValidationReport: &report}
	if fixed != nil {
		update.Plan = fixed
		update.Progress = pendingProgress(*fixed)
	}

	event := v.log.Info()
	if !report.Valid {
		event = v.log.Warn()
	}
	event.
		Str("plan_id", report.PlanID).
		Bool("valid", report.Valid).
		Int("issues", len(report.Issues)).
		Str("severity", string(report.Severity)).
		Msg("plan validated")

	if !report.Valid {
		return orchestrator.Goto(ReplannerName, update), nil
	}
	return orchestrator.Goto(orchestrator.Supervisor, update), nil
}
