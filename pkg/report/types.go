// Package report writes the result of a run.
//
// Layout:
//   - <output>/report.json: the run index with one entry per scenario
//   - a console summary table rendered with go-pretty
//
// Captured screenshots and sources stay in memory; the report records
// their counts and sizes only.
package report

import (
	"time"

	"github.com/devicelab-dev/appium-compat/pkg/core"
)

// Version is the report schema version.
const Version = "1.0.0"

// Index is the report.json file.
type Index struct {
	Version   string          `json:"version"`
	RunID     string          `json:"runId"`
	Status    core.Status     `json:"status"`
	StartTime time.Time       `json:"startTime"`
	EndTime   time.Time       `json:"endTime"`
	Duration  int64           `json:"duration"` // milliseconds
	Runner    RunnerInfo      `json:"runner"`
	Summary   Summary         `json:"summary"`
	Scenarios []ScenarioEntry `json:"scenarios"`
}

// RunnerInfo describes the tool and table that produced the report.
type RunnerInfo struct {
	Version   string `json:"version"`
	Scenarios string `json:"scenarios,omitempty"` // Path to the scenario table
}

// Summary contains aggregated counts.
type Summary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Errored int `json:"errored"`
	Skipped int `json:"skipped"`
}

// ScenarioEntry is the outcome of one scenario.
type ScenarioEntry struct {
	Index      int         `json:"index"`
	Name       string      `json:"name"`
	Group      string      `json:"group"`
	Parallel   string      `json:"parallel,omitempty"`
	Axis       string      `json:"axis"`
	Label      string      `json:"label"`
	Server     string      `json:"server"`
	SessionID  string      `json:"sessionId,omitempty"`
	Status     core.Status `json:"status"`
	Duration   int64       `json:"duration"` // milliseconds
	FailedStep string      `json:"failedStep,omitempty"`
	Error      *Error      `json:"error,omitempty"`
	QuitError  string      `json:"quitError,omitempty"`
	Steps      []Step      `json:"steps,omitempty"`
	Artifacts  Artifacts   `json:"artifacts"`

	// Output holds what hook scripts wrote to their `output` object.
	Output map[string]interface{} `json:"output,omitempty"`
}

// Step is one probe or hook of a scenario.
type Step struct {
	Name     string `json:"name"`
	Duration int64  `json:"duration"` // milliseconds
	Error    string `json:"error,omitempty"`
}

// Error contains error details.
type Error struct {
	Category string `json:"category,omitempty"`
	Code     string `json:"code,omitempty"`
	Message  string `json:"message"`
}

// Artifacts summarises what the probes captured.
type Artifacts struct {
	Screenshots     int   `json:"screenshots"`
	ScreenshotBytes int64 `json:"screenshotBytes"`
	Sources         int   `json:"sources"`
	SourceBytes     int64 `json:"sourceBytes"`
}
