package core

import "testing"

func TestStatus_String(t *testing.T) {
	tests := []struct {
		status   Status
		expected string
	}{
		{StatusPending, "pending"},
		{StatusRunning, "running"},
		{StatusPassed, "passed"},
		{StatusFailed, "failed"},
		{StatusErrored, "errored"},
		{StatusSkipped, "skipped"},
		{Status(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.status.String(); got != tt.expected {
			t.Errorf("Status(%d).String() = %q, want %q", tt.status, got, tt.expected)
		}
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	for _, s := range []Status{StatusPassed, StatusFailed, StatusErrored, StatusSkipped} {
		if !s.IsTerminal() {
			t.Errorf("Status(%s).IsTerminal() = false, want true", s)
		}
	}
	for _, s := range []Status{StatusPending, StatusRunning} {
		if s.IsTerminal() {
			t.Errorf("Status(%s).IsTerminal() = true, want false", s)
		}
	}
}

func TestStatus_MarshalText(t *testing.T) {
	b, err := StatusFailed.MarshalText()
	if err != nil || string(b) != "failed" {
		t.Errorf("MarshalText() = %q, %v", b, err)
	}
}

func TestErrorCategory_String(t *testing.T) {
	tests := []struct {
		cat  ErrorCategory
		want string
	}{
		{ErrCategoryNone, "none"},
		{ErrCategoryLaunch, "launch"},
		{ErrCategoryDevice, "device"},
		{ErrCategorySession, "session"},
		{ErrCategoryCapture, "capture"},
		{ErrCategoryTree, "tree"},
		{ErrCategoryTeardown, "teardown"},
		{ErrCategoryAssertion, "assertion"},
		{ErrCategoryConfig, "config"},
		{ErrCategoryTimeout, "timeout"},
		{ErrorCategory(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.cat.String(); got != tt.want {
			t.Errorf("ErrorCategory(%d).String() = %q, want %q", tt.cat, got, tt.want)
		}
	}
}

func TestErrorCategory_IsInfrastructure(t *testing.T) {
	if !ErrCategoryLaunch.IsInfrastructure() {
		t.Error("launch failures abort the run")
	}
	if ErrCategoryDevice.IsInfrastructure() || ErrCategoryTeardown.IsInfrastructure() {
		t.Error("device and teardown failures are scenario-scoped")
	}
}
