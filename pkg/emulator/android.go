// Package emulator looks up the Android Virtual Devices on the host.
// Appium boots the emulator itself; this package only checks that the
// images a run asks for exist.
package emulator

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/devicelab-dev/appium-compat/pkg/device"
	"github.com/devicelab-dev/appium-compat/pkg/logger"
)

// FindEmulatorBinary locates the Android emulator binary. sdkRoot falls
// back to ANDROID_SDK_ROOT and ANDROID_HOME.
func FindEmulatorBinary(sdkRoot string) (string, error) {
	if sdkRoot == "" {
		sdkRoot = device.AndroidHome()
	}
	if sdkRoot != "" {
		// New layout first, then the old tools/ layout
		for _, rel := range []string{"emulator/emulator", "tools/emulator"} {
			p := filepath.Join(sdkRoot, filepath.FromSlash(rel))
			if _, err := os.Stat(p); err == nil {
				return p, nil
			}
		}
	}

	if path, err := exec.LookPath("emulator"); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("emulator binary not found. Set ANDROID_SDK_ROOT or add emulator to PATH")
}

// ListAVDs returns the names printed by `emulator -list-avds`.
func ListAVDs(ctx context.Context, sdkRoot string) ([]string, error) {
	emulatorPath, err := FindEmulatorBinary(sdkRoot)
	if err != nil {
		return nil, err
	}

	out, err := exec.CommandContext(ctx, emulatorPath, "-list-avds").Output()
	if err != nil {
		return nil, fmt.Errorf("failed to list AVDs: %w", err)
	}

	avds := ParseAVDList(string(out))
	logger.Debug("Found %d AVDs: %v", len(avds), avds)
	return avds, nil
}

// ParseAVDList parses one AVD name per line. Emulator diagnostics such as
// "INFO    | ..." lines are skipped.
func ParseAVDList(out string) []string {
	var avds []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.Contains(line, "|") {
			continue
		}
		avds = append(avds, line)
	}
	return avds
}

// MissingImages returns the configured images that are not in avds.
// Empty slots are ignored.
func MissingImages(images [2]string, avds []string) []string {
	known := make(map[string]bool, len(avds))
	for _, a := range avds {
		known[a] = true
	}
	var missing []string
	for _, img := range images {
		if img != "" && !known[img] {
			missing = append(missing, img)
		}
	}
	return missing
}
