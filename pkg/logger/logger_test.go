package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitAndWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	if err := Init(path); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer Close()

	Info("server %s on port %d", "java8", 4723)
	Debug("raw payload")
	Warn("quit failed")
	Error("launch failed")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	content := string(data)
	for _, want := range []string{
		"[INFO] server java8 on port 4723",
		"[DEBUG] raw payload",
		"[WARN] quit failed",
		"[ERROR] launch failed",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("log missing %q\nGot:\n%s", want, content)
		}
	}
}

func TestConsoleMirror(t *testing.T) {
	var buf bytes.Buffer
	SetConsole(&buf, false)
	defer SetConsole(nil, false)

	Info("visible")
	Debug("hidden")

	out := buf.String()
	if !strings.Contains(out, "[INFO] visible") {
		t.Errorf("console missing info line: %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Errorf("debug line should not be mirrored without verbose: %q", out)
	}

	buf.Reset()
	SetConsole(&buf, true)
	Debug("now shown")
	if !strings.Contains(buf.String(), "[DEBUG] now shown") {
		t.Errorf("verbose console missing debug line: %q", buf.String())
	}
}

func TestGetWriter_NoFile(t *testing.T) {
	Close()
	if w := GetWriter(); w == nil {
		t.Fatal("GetWriter returned nil")
	}
}

func TestInit_BadPath(t *testing.T) {
	err := Init(filepath.Join(t.TempDir(), "missing", "dir", "run.log"))
	if err == nil {
		t.Fatal("expected error for missing directory")
	}
}
