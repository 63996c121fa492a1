package report

import (
	"errors"

	"github.com/devicelab-dev/appium-compat/pkg/core"
	"github.com/devicelab-dev/appium-compat/pkg/scenario"
	"github.com/devicelab-dev/appium-compat/pkg/session"
)

// BuilderConfig contains configuration for building the index.
type BuilderConfig struct {
	RunnerVersion string
	Scenarios     string
}

// Build turns the outcome of a run into a report index.
func Build(outcome *scenario.Outcome, cfg BuilderConfig) *Index {
	index := &Index{
		Version:   Version,
		RunID:     outcome.RunID,
		StartTime: outcome.StartedAt,
		EndTime:   outcome.StartedAt.Add(outcome.Duration),
		Duration:  outcome.Duration.Milliseconds(),
		Runner: RunnerInfo{
			Version:   cfg.RunnerVersion,
			Scenarios: cfg.Scenarios,
		},
		Scenarios: make([]ScenarioEntry, 0, len(outcome.Entries)),
	}

	for i, e := range outcome.Entries {
		index.Scenarios = append(index.Scenarios, buildEntry(i, e))
	}
	index.Summary = computeSummary(index.Scenarios)
	index.Status = computeRunStatus(index.Summary)
	return index
}

func buildEntry(i int, e scenario.Entry) ScenarioEntry {
	r := e.Result
	entry := ScenarioEntry{
		Index:      i,
		Name:       e.Plan.Name,
		Group:      e.Plan.Group,
		Parallel:   e.Plan.Parallel,
		Axis:       string(e.Plan.Axis),
		Label:      e.Plan.Label,
		Server:     e.Plan.Server,
		SessionID:  r.SessionID,
		Status:     r.Status,
		Duration:   r.Duration.Milliseconds(),
		FailedStep: r.FailedStep,
		Error:      convertError(r.Err),
		Steps:      buildSteps(r.Steps),
		Artifacts:  buildArtifacts(r),
		Output:     r.Output,
	}
	if r.QuitErr != nil {
		entry.QuitError = r.QuitErr.Error()
	}
	return entry
}

func buildSteps(steps []session.StepResult) []Step {
	if len(steps) == 0 {
		return nil
	}
	out := make([]Step, len(steps))
	for i, s := range steps {
		out[i] = Step{Name: s.Name, Duration: s.Duration.Milliseconds(), Error: s.Error}
	}
	return out
}

func buildArtifacts(r *session.Result) Artifacts {
	a := Artifacts{Screenshots: len(r.Screenshots), Sources: len(r.Sources)}
	for _, s := range r.Screenshots {
		a.ScreenshotBytes += int64(len(s))
	}
	for _, s := range r.Sources {
		a.SourceBytes += int64(len(s))
	}
	return a
}

// convertError keeps the category and code of an ExecutionError.
func convertError(err error) *Error {
	if err == nil {
		return nil
	}
	out := &Error{Message: err.Error()}
	var ee *core.ExecutionError
	if errors.As(err, &ee) {
		out.Category = ee.Category.String()
		out.Code = ee.Code
	}
	return out
}

func computeSummary(entries []ScenarioEntry) Summary {
	var s Summary
	for _, e := range entries {
		s.Total++
		switch e.Status {
		case core.StatusPassed:
			s.Passed++
		case core.StatusFailed:
			s.Failed++
		case core.StatusErrored:
			s.Errored++
		case core.StatusSkipped:
			s.Skipped++
		}
	}
	return s
}

// computeRunStatus is failed when any scenario failed or errored.
func computeRunStatus(s Summary) core.Status {
	switch {
	case s.Failed > 0 || s.Errored > 0:
		return core.StatusFailed
	case s.Total > 0 && s.Skipped == s.Total:
		return core.StatusSkipped
	default:
		return core.StatusPassed
	}
}
