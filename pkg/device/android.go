// Package device enumerates Android devices via ADB.
package device

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/devicelab-dev/appium-compat/pkg/core"
	"github.com/devicelab-dev/appium-compat/pkg/logger"
)

// emulatorMarker is the substring adb uses in emulator serials.
const emulatorMarker = "emulator"

// ErrNoDeviceFound is returned when no physical Android device is attached.
var ErrNoDeviceFound = core.ErrDeviceNotFound

// Entry is one row of `adb devices` output.
type Entry struct {
	Serial string
	State  string // device, offline, unauthorized
}

// IsEmulator reports whether the entry is an emulator rather than hardware.
func (e Entry) IsEmulator() bool {
	return strings.Contains(e.Serial, emulatorMarker)
}

// ADB runs the adb binary.
type ADB struct {
	Path string
}

// NewADB locates adb. sdkRoot (usually from ANDROID_SDK_ROOT) takes
// precedence over PATH when it contains platform-tools/adb.
func NewADB(sdkRoot string) (*ADB, error) {
	path, err := findADB(sdkRoot)
	if err != nil {
		return nil, err
	}
	return &ADB{Path: path}, nil
}

// Devices returns every entry listed by `adb devices`.
func (a *ADB) Devices(ctx context.Context) ([]Entry, error) {
	out, err := a.run(ctx, "devices")
	if err != nil {
		return nil, err
	}
	return ParseDevices(out), nil
}

// FirstRealDevice returns the serial of the first listed device that is not
// an emulator.
func (a *ADB) FirstRealDevice(ctx context.Context) (string, error) {
	entries, err := a.Devices(ctx)
	if err != nil {
		return "", err
	}
	serial, err := SelectRealDevice(entries)
	if err != nil {
		return "", err
	}
	logger.Info("Using Android device %s", serial)
	return serial, nil
}

// ParseDevices parses `adb devices` output, skipping the
// "List of devices attached" header and daemon startup noise.
func ParseDevices(out string) []Entry {
	var entries []Entry
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "List of") || strings.HasPrefix(line, "*") {
			continue
		}
		parts := strings.Fields(line)
		e := Entry{Serial: parts[0]}
		if len(parts) > 1 {
			e.State = parts[1]
		}
		entries = append(entries, e)
	}
	return entries
}

// SelectRealDevice picks the first entry that is not an emulator.
func SelectRealDevice(entries []Entry) (string, error) {
	for _, e := range entries {
		if !e.IsEmulator() {
			return e.Serial, nil
		}
	}
	return "", ErrNoDeviceFound.WithDetails(map[string]interface{}{"listed": len(entries)})
}

func (a *ADB) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, a.Path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		errMsg := stderr.String()
		if errMsg == "" {
			errMsg = stdout.String()
		}
		return "", fmt.Errorf("adb %s: %w: %s", strings.Join(args, " "), err, errMsg)
	}

	return stdout.String(), nil
}

// findADB locates the ADB binary.
func findADB(sdkRoot string) (string, error) {
	if sdkRoot == "" {
		sdkRoot = AndroidHome()
	}
	if sdkRoot != "" {
		p := filepath.Join(sdkRoot, "platform-tools", "adb")
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	if path, err := exec.LookPath("adb"); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("adb not found in PATH; ensure Android SDK is installed")
}

// AndroidHome returns the Android SDK root from the environment.
func AndroidHome() string {
	for _, key := range []string{"ANDROID_SDK_ROOT", "ANDROID_HOME"} {
		if home := os.Getenv(key); home != "" {
			return home
		}
	}
	return ""
}
