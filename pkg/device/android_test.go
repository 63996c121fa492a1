package device

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/devicelab-dev/appium-compat/pkg/core"
)

const devicesOutput = `List of devices attached
emulator-5554	device
R5CR50ABCDE	device
0123456789ABCDEF	unauthorized

`

func TestParseDevices(t *testing.T) {
	entries := ParseDevices(devicesOutput)
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3: %v", len(entries), entries)
	}
	if entries[0].Serial != "emulator-5554" || entries[0].State != "device" {
		t.Errorf("entries[0] = %+v", entries[0])
	}
	if entries[2].State != "unauthorized" {
		t.Errorf("entries[2] = %+v", entries[2])
	}
}

func TestParseDevices_DaemonNoise(t *testing.T) {
	out := "* daemon not running; starting now at tcp:5037\n* daemon started successfully\nList of devices attached\nR5CR50ABCDE\tdevice\n"
	entries := ParseDevices(out)
	if len(entries) != 1 || entries[0].Serial != "R5CR50ABCDE" {
		t.Errorf("entries = %+v, want only R5CR50ABCDE", entries)
	}
}

func TestSelectRealDevice(t *testing.T) {
	tests := []struct {
		name    string
		entries []Entry
		want    string
		wantErr bool
	}{
		{"skips emulator", ParseDevices(devicesOutput), "R5CR50ABCDE", false},
		{"only emulators", []Entry{{Serial: "emulator-5554"}, {Serial: "emulator-5556"}}, "", true},
		{"empty", nil, "", true},
		{"first real wins", []Entry{{Serial: "AAA"}, {Serial: "BBB"}}, "AAA", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SelectRealDevice(tt.entries)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
			if err != nil && !errors.Is(err, core.ErrDeviceNotFound) {
				t.Errorf("error should match ErrDeviceNotFound: %v", err)
			}
		})
	}
}

func TestEntry_IsEmulator(t *testing.T) {
	if !(Entry{Serial: "emulator-5554"}).IsEmulator() {
		t.Error("emulator-5554 should be an emulator")
	}
	if (Entry{Serial: "R5CR50ABCDE"}).IsEmulator() {
		t.Error("R5CR50ABCDE should be a real device")
	}
}

// fakeSDK writes an sdk root whose platform-tools/adb prints output.
func fakeSDK(t *testing.T, output string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script adb requires unix")
	}
	root := t.TempDir()
	dir := filepath.Join(root, "platform-tools")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	script := "#!/bin/sh\ncat <<'OUT'\n" + output + "OUT\n"
	if err := os.WriteFile(filepath.Join(dir, "adb"), []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
	return root
}

func TestADB_FirstRealDevice(t *testing.T) {
	root := fakeSDK(t, devicesOutput)

	adb, err := NewADB(root)
	if err != nil {
		t.Fatalf("NewADB failed: %v", err)
	}
	if adb.Path != filepath.Join(root, "platform-tools", "adb") {
		t.Errorf("Path = %q, want sdk-root adb", adb.Path)
	}

	serial, err := adb.FirstRealDevice(context.Background())
	if err != nil {
		t.Fatalf("FirstRealDevice failed: %v", err)
	}
	if serial != "R5CR50ABCDE" {
		t.Errorf("serial = %q", serial)
	}
}

func TestADB_NoRealDevice(t *testing.T) {
	root := fakeSDK(t, "List of devices attached\nemulator-5554\tdevice\n")

	adb, err := NewADB(root)
	if err != nil {
		t.Fatalf("NewADB failed: %v", err)
	}
	_, err = adb.FirstRealDevice(context.Background())
	if !errors.Is(err, ErrNoDeviceFound) {
		t.Errorf("expected ErrNoDeviceFound, got %v", err)
	}
}

func TestAndroidHome(t *testing.T) {
	t.Setenv("ANDROID_SDK_ROOT", "/sdk/root")
	t.Setenv("ANDROID_HOME", "/sdk/home")
	if got := AndroidHome(); got != "/sdk/root" {
		t.Errorf("AndroidHome() = %q, want ANDROID_SDK_ROOT", got)
	}

	t.Setenv("ANDROID_SDK_ROOT", "")
	if got := AndroidHome(); got != "/sdk/home" {
		t.Errorf("AndroidHome() = %q, want ANDROID_HOME", got)
	}
}
