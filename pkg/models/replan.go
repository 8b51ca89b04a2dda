package models

import "time"

// ReplanTrigger says what caused a replan.
type ReplanTrigger string

const (
	// TriggerValidationFailure means the validator rejected the plan.
	TriggerValidationFailure ReplanTrigger = "validation_failure"
	// TriggerToolFailure means a team reported a tool error at run time.
	TriggerToolFailure ReplanTrigger = "tool_failure"
)

// ReplanStrategy says how the replanner approached the new plan.
type ReplanStrategy string

const (
	// StrategyRevise keeps the plan's shape and fixes the reported problems.
	StrategyRevise ReplanStrategy = "revise"
	// StrategySimplify asks for fewer steps after repeated failures.
	StrategySimplify ReplanStrategy = "simplify"
)

// ReplanEvent records one replanning attempt.
type ReplanEvent struct {
	Attempt  int            `json:"attempt"`
	Trigger  ReplanTrigger  `json:"trigger"`
	Strategy ReplanStrategy `json:"strategy"`
	Reason   string         `json:"reason"`
	// PlanID is the plan produced by the attempt.
	PlanID string `json:"plan_id,omitempty"`
	// Valid reports whether the produced plan passed validation.
	Valid bool      `json:"valid"`
	At    time.Time `json:"at"`
}
