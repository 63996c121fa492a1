package config

import (
	"path/filepath"
	"testing"
)

func TestGetHome_EnvVar(t *testing.T) {
	ResetHome()
	t.Setenv("APPIUM_COMPAT_HOME", "/custom/path")

	got := GetHome()
	if got != "/custom/path" {
		t.Errorf("GetHome() = %q, want %q", got, "/custom/path")
	}
}

func TestGetHome_FallbackNotEmpty(t *testing.T) {
	ResetHome()
	t.Setenv("APPIUM_COMPAT_HOME", "")

	if got := GetHome(); got == "" {
		t.Error("GetHome() returned empty string")
	}
}

func TestGetHome_Cached(t *testing.T) {
	ResetHome()
	t.Setenv("APPIUM_COMPAT_HOME", "/first")

	first := GetHome()

	// Changing the env must not affect the cached value
	t.Setenv("APPIUM_COMPAT_HOME", "/second")
	second := GetHome()

	if first != second {
		t.Errorf("GetHome() not cached: first=%q, second=%q", first, second)
	}
}

func TestGetReportsDir(t *testing.T) {
	ResetHome()
	t.Setenv("APPIUM_COMPAT_HOME", "/test/home")

	if got, want := GetReportsDir(), filepath.Join("/test/home", "reports"); got != want {
		t.Errorf("GetReportsDir() = %q, want %q", got, want)
	}
	if got, want := GetRunDir("abc"), filepath.Join("/test/home", "reports", "abc"); got != want {
		t.Errorf("GetRunDir() = %q, want %q", got, want)
	}
}
