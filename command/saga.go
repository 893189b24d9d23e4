package command

import (
	"context"
	"slices"

	"github.com/goliatone/go-referrals/pkg/types"
)

// StepStatus is the typed outcome of a single saga step.
type StepStatus int

const (
	// StepSucceeded means the step completed and produced its effect.
	StepSucceeded StepStatus = iota
	// StepWarned means the step failed softly; processing continues.
	StepWarned
	// StepFatal means the step failed and the saga stops.
	StepFatal
	// StepSkipped means the step had nothing to do.
	StepSkipped
)

func (s StepStatus) String() string {
	switch s {
	case StepSucceeded:
		return "succeeded"
	case StepWarned:
		return "warned"
	case StepFatal:
		return "fatal"
	case StepSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// StepResult is returned by every saga step.
type StepResult struct {
	Status   StepStatus
	Warnings []string
	Err      error
}

func stepOK() StepResult {
	return StepResult{Status: StepSucceeded}
}

// stepOKWithWarnings keeps the step's effect but reports soft failures.
func stepOKWithWarnings(warnings ...string) StepResult {
	if len(warnings) == 0 {
		return stepOK()
	}
	return StepResult{Status: StepWarned, Warnings: warnings}
}

func stepWarn(warning string, err error) StepResult {
	return StepResult{Status: StepWarned, Warnings: []string{warning}, Err: err}
}

func stepFatal(err error) StepResult {
	return StepResult{Status: StepFatal, Err: err}
}

func stepSkip() StepResult {
	return StepResult{Status: StepSkipped}
}

// sagaStep is a named unit of work. Soft steps only warn or skip, so they
// still run once the context is cancelled.
type sagaStep[S any] struct {
	Name string
	Soft bool
	Run  func(context.Context, *S) StepResult
}

// compensation undoes the effect of Step when any step named in TriggeredBy
// ends fatally after Step completed.
type compensation[S any] struct {
	Step        string
	TriggeredBy []string
	Run         func(context.Context, *S) error
}

type saga[S any] struct {
	name          string
	steps         []sagaStep[S]
	compensations []compensation[S]
	logger        types.Logger
}

type sagaOutcome struct {
	Warnings    []string
	Completed   []string
	Statuses    map[string]StepStatus
	FatalStep   string
	Err         error
	Compensated []string
}

func (o sagaOutcome) OK() bool {
	return o.Err == nil
}

func newSaga[S any](name string, logger types.Logger) *saga[S] {
	return &saga[S]{name: name, logger: safeLogger(logger)}
}

func (s *saga[S]) step(name string, run func(context.Context, *S) StepResult) *saga[S] {
	s.steps = append(s.steps, sagaStep[S]{Name: name, Run: run})
	return s
}

// softStep registers a best-effort step that runs after the outcome of the
// saga is already decided.
func (s *saga[S]) softStep(name string, run func(context.Context, *S) StepResult) *saga[S] {
	s.steps = append(s.steps, sagaStep[S]{Name: name, Soft: true, Run: run})
	return s
}

func (s *saga[S]) compensate(step string, run func(context.Context, *S) error, triggeredBy ...string) *saga[S] {
	s.compensations = append(s.compensations, compensation[S]{
		Step:        step,
		TriggeredBy: triggeredBy,
		Run:         run,
	})
	return s
}

func (s *saga[S]) run(ctx context.Context, state *S) sagaOutcome {
	outcome := sagaOutcome{
		Warnings: []string{},
		Statuses: make(map[string]StepStatus, len(s.steps)),
	}
	for _, step := range s.steps {
		if err := ctx.Err(); err != nil && !step.Soft {
			outcome.FatalStep = step.Name
			outcome.Err = err
			s.unwind(ctx, state, step.Name, &outcome)
			return outcome
		}
		result := step.Run(ctx, state)
		outcome.Statuses[step.Name] = result.Status
		switch result.Status {
		case StepSucceeded:
			outcome.Completed = append(outcome.Completed, step.Name)
		case StepWarned:
			outcome.Completed = append(outcome.Completed, step.Name)
			outcome.Warnings = append(outcome.Warnings, result.Warnings...)
			if result.Err != nil {
				s.logger.Debug(s.name+" step warned", "step", step.Name, "error", result.Err.Error())
			}
		case StepSkipped:
		case StepFatal:
			outcome.FatalStep = step.Name
			outcome.Err = result.Err
			s.logger.Error(s.name+" step failed", result.Err, "step", step.Name)
			s.unwind(ctx, state, step.Name, &outcome)
			return outcome
		}
	}
	return outcome
}

// unwind runs compensations in reverse completion order. Compensation errors
// are logged and never replace the fatal error.
func (s *saga[S]) unwind(ctx context.Context, state *S, failed string, outcome *sagaOutcome) {
	for i := len(outcome.Completed) - 1; i >= 0; i-- {
		completed := outcome.Completed[i]
		for _, comp := range s.compensations {
			if comp.Step != completed || !slices.Contains(comp.TriggeredBy, failed) {
				continue
			}
			if err := comp.Run(context.WithoutCancel(ctx), state); err != nil {
				s.logger.Error(s.name+" compensation failed", err, "step", completed, "trigger", failed)
				continue
			}
			outcome.Compensated = append(outcome.Compensated, completed)
		}
	}
}
