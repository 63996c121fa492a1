package core

import "fmt"

// Status represents the outcome of a scenario or probe
type Status int

const (
	StatusPending Status = iota // Not yet started
	StatusRunning               // Currently executing
	StatusPassed                // Completed successfully
	StatusFailed                // A probe assertion failed
	StatusErrored               // Infrastructure failure (launch, device, session init)
	StatusSkipped               // Filtered out or dependency unavailable
)

// String returns the string representation of Status
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusPassed:
		return "passed"
	case StatusFailed:
		return "failed"
	case StatusErrored:
		return "errored"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// IsTerminal returns true if the status is a final state
func (s Status) IsTerminal() bool {
	switch s {
	case StatusPassed, StatusFailed, StatusErrored, StatusSkipped:
		return true
	default:
		return false
	}
}

// IsSuccess returns true if the status indicates success
func (s Status) IsSuccess() bool {
	return s == StatusPassed
}

// MarshalText lets reports carry the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a status name written by MarshalText.
func (s *Status) UnmarshalText(b []byte) error {
	for candidate := StatusPending; candidate <= StatusSkipped; candidate++ {
		if candidate.String() == string(b) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", b)
}

// ErrorCategory classifies the type of error for triage and reporting
type ErrorCategory int

const (
	ErrCategoryNone      ErrorCategory = iota // No error
	ErrCategoryLaunch                         // Server binary/runtime missing, spawn error
	ErrCategoryDevice                         // No eligible device connected
	ErrCategorySession                        // Session init rejected by the server
	ErrCategoryCapture                        // Screenshot/source flakiness, retried locally
	ErrCategoryTree                           // Source payload has the wrong shape
	ErrCategoryTeardown                       // Quit failed
	ErrCategoryAssertion                      // Probe expectation not met
	ErrCategoryConfig                         // Invalid scenario table or suite config
	ErrCategoryTimeout                        // Scenario ceiling reached
)

// String returns the string representation of ErrorCategory
func (c ErrorCategory) String() string {
	switch c {
	case ErrCategoryNone:
		return "none"
	case ErrCategoryLaunch:
		return "launch"
	case ErrCategoryDevice:
		return "device"
	case ErrCategorySession:
		return "session"
	case ErrCategoryCapture:
		return "capture"
	case ErrCategoryTree:
		return "tree"
	case ErrCategoryTeardown:
		return "teardown"
	case ErrCategoryAssertion:
		return "assertion"
	case ErrCategoryConfig:
		return "config"
	case ErrCategoryTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// IsInfrastructure reports whether failures of this category abort the
// whole run rather than just the current scenario.
func (c ErrorCategory) IsInfrastructure() bool {
	return c == ErrCategoryLaunch
}
