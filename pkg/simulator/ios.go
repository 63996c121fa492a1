// Package simulator inspects and resets host-side iOS simulator state.
package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"github.com/devicelab-dev/appium-compat/pkg/logger"
)

// Device represents an available iOS simulator from simctl list.
type Device struct {
	Name      string // e.g., "iPhone 8"
	UDID      string
	Runtime   string // e.g., "com.apple.CoreSimulator.SimRuntime.iOS-11-2"
	OSVersion string // e.g., "11.2" (extracted from Runtime)
	State     string // "Shutdown", "Booted", etc.
}

// relatedProcesses are killed before a full-reset scenario so a stale
// simulator or port forwarder cannot leak state into it.
var relatedProcesses = []string{
	"iOS Simulator",
	"Simulator",
	"com.apple.CoreSimulator.CoreSimulatorService",
	"iproxy",
}

// simctlDevicesOutput represents the JSON output from xcrun simctl list devices.
type simctlDevicesOutput struct {
	Devices map[string][]simctlDevice `json:"devices"`
}

type simctlDevice struct {
	Name        string `json:"name"`
	UDID        string `json:"udid"`
	State       string `json:"state"`
	IsAvailable bool   `json:"isAvailable"`
}

// ListSimulators returns all available iOS simulators.
func ListSimulators(ctx context.Context) ([]Device, error) {
	if _, err := exec.LookPath("xcrun"); err != nil {
		return nil, fmt.Errorf("xcrun not found; install Xcode Command Line Tools: xcode-select --install")
	}

	cmd := exec.CommandContext(ctx, "xcrun", "simctl", "list", "devices", "available", "-j")
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("failed to list simulators: %w", err)
	}
	return parseSimctlDevices(output)
}

func parseSimctlDevices(output []byte) ([]Device, error) {
	var data simctlDevicesOutput
	if err := json.Unmarshal(output, &data); err != nil {
		return nil, fmt.Errorf("failed to parse simctl output: %w", err)
	}

	var sims []Device
	for runtime, devices := range data.Devices {
		osVersion := extractOSVersion(runtime)
		for _, dev := range devices {
			if !dev.IsAvailable {
				continue
			}
			sims = append(sims, Device{
				Name:      dev.Name,
				UDID:      dev.UDID,
				Runtime:   runtime,
				OSVersion: osVersion,
				State:     dev.State,
			})
		}
	}
	// map iteration order is random; keep listings stable
	sort.Slice(sims, func(i, j int) bool {
		if sims[i].Runtime != sims[j].Runtime {
			return sims[i].Runtime < sims[j].Runtime
		}
		return sims[i].Name < sims[j].Name
	})

	logger.Debug("Found %d available simulators", len(sims))
	return sims, nil
}

// Find returns the simulator matching deviceName and platformVersion.
func Find(sims []Device, deviceName, platformVersion string) (Device, bool) {
	for _, sim := range sims {
		if sim.Name == deviceName && sim.OSVersion == platformVersion {
			return sim, true
		}
	}
	return Device{}, false
}

// ResetHostState kills simulator and port-forwarding processes left over
// from earlier sessions. Failures are ignored: killall exits non-zero when
// nothing matched.
func ResetHostState(ctx context.Context) {
	logger.Info("clear state: killing iOS simulator related processes")
	for _, name := range relatedProcesses {
		cmd := exec.CommandContext(ctx, "killall", name)
		if out, err := cmd.CombinedOutput(); err != nil {
			logger.Debug("killall %s: %v %s", name, err, strings.TrimSpace(string(out)))
		}
	}
}

// extractOSVersion extracts version from runtime string.
// e.g., "com.apple.CoreSimulator.SimRuntime.iOS-17-2" -> "17.2"
func extractOSVersion(runtime string) string {
	idx := strings.LastIndex(runtime, "iOS-")
	if idx == -1 {
		for _, prefix := range []string{"watchOS-", "tvOS-", "xrOS-"} {
			idx = strings.LastIndex(runtime, prefix)
			if idx != -1 {
				version := runtime[idx+len(prefix):]
				return strings.ReplaceAll(version, "-", ".")
			}
		}
		return ""
	}
	version := runtime[idx+4:] // skip "iOS-"
	return strings.ReplaceAll(version, "-", ".")
}
