package orchestrator

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrFatalBuild matches every *BuildError.
	ErrFatalBuild = errors.New("fatal build error")
	// ErrStepLimitExceeded ends a run that visits more components than the step limit allows.
	ErrStepLimitExceeded = errors.New("step limit exceeded")
	// ErrReplanLimitExceeded ends a run whose plan is still invalid after the replan cap.
	ErrReplanLimitExceeded = errors.New("replan limit exceeded")
	// ErrUndeclaredRoute aborts a run when a component routes to a target it did not declare.
	ErrUndeclaredRoute = errors.New("undeclared route")
)

// BuildError lists every problem Compile found.
type BuildError struct {
	Problems []string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("%v: %s", ErrFatalBuild, strings.Join(e.Problems, "; "))
}

// Is makes errors.Is(err, ErrFatalBuild) true.
func (e *BuildError) Is(target error) bool {
	return target == ErrFatalBuild
}

// StepError attributes a fatal error to the component that raised it.
type StepError struct {
	Component Target
	Step      int
	Err       error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s): %v", e.Step, e.Component, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// IsTerminal reports whether err is one of the errors that end a run by design.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrStepLimitExceeded) ||
		errors.Is(err, ErrReplanLimitExceeded) ||
		errors.Is(err, ErrFatalBuild)
}
