package capability

import (
	"context"
	"fmt"
	"os"

	"github.com/devicelab-dev/appium-compat/pkg/core"
	"github.com/devicelab-dev/appium-compat/pkg/device"
	"github.com/devicelab-dev/appium-compat/pkg/logger"
)

// Variant picks the concrete device inside an axis.
type Variant struct {
	PlatformVersion string `yaml:"platformVersion,omitempty" json:"platformVersion,omitempty"`
	DeviceName      string `yaml:"deviceName,omitempty" json:"deviceName,omitempty"`
	WDALocalPort    int    `yaml:"wdaLocalPort,omitempty" json:"wdaLocalPort,omitempty"`
	UDID            string `yaml:"udid,omitempty" json:"udid,omitempty"`
	EmulatorSlot    int    `yaml:"emulatorSlot,omitempty" json:"emulatorSlot,omitempty"`
	DerivedDataPath string `yaml:"derivedDataPath,omitempty" json:"derivedDataPath,omitempty"`
}

// Simulator defaults keyed by platformVersion. Each simulator major gets
// its own WDA port so sessions never talk to another device's agent.
var simulatorDefaults = map[string]Variant{
	"10.3": {PlatformVersion: "10.3", DeviceName: "iPhone 7", WDALocalPort: 8100},
	"11.2": {PlatformVersion: "11.2", DeviceName: "iPhone 8", WDALocalPort: 8101},
}

const (
	defaultRealWDAPort = 8102

	// Real iOS devices ignore these but the server still requires them.
	realDevicePlaceholderVersion = "10.3"
	realDevicePlaceholderName    = "iPhone 5"
)

// Environment variables read by EnvFromOS.
const (
	EnvTeamID             = "APPLE_TEAM_ID"
	EnvUpdatedWDABundleID = "UPDATED_WDA_BUNDLE_ID"
	EnvEmulatorImage1     = "ANDROID_EMULATOR_IMAGE_1"
	EnvEmulatorImage2     = "ANDROID_EMULATOR_IMAGE_2"
)

// Env carries the externally provided identifiers the builders need.
type Env struct {
	TeamID             string
	UpdatedWDABundleID string
	EmulatorImages     [2]string
}

// EnvFromOS reads Env from the process environment.
func EnvFromOS() Env {
	return Env{
		TeamID:             os.Getenv(EnvTeamID),
		UpdatedWDABundleID: os.Getenv(EnvUpdatedWDABundleID),
		EmulatorImages:     [2]string{os.Getenv(EnvEmulatorImage1), os.Getenv(EnvEmulatorImage2)},
	}
}

// DeviceResolver finds the serial of a connected physical Android device.
type DeviceResolver interface {
	FirstRealDevice(ctx context.Context) (string, error)
}

// Builder produces capability sets. Guard must be shared by every build in
// one run; a nil Guard disables useNewWDA entirely.
type Builder struct {
	Env     Env
	Devices DeviceResolver
	Guard   *Guard
}

// NewBuilder creates a builder with its own one-shot guard.
func NewBuilder(env Env, devices DeviceResolver) *Builder {
	return &Builder{Env: env, Devices: devices, Guard: &Guard{}}
}

// Build returns the base record for axis and variant with overrides applied
// on top by key. The returned set is owned by the caller.
func (b *Builder) Build(ctx context.Context, axis Axis, variant Variant, overrides Set) (Set, error) {
	var (
		base Set
		err  error
	)
	switch axis {
	case AxisIOSSimulator:
		base, err = b.iosSimulator(variant)
	case AxisIOSReal:
		base, err = b.iosReal(variant)
	case AxisAndroidReal:
		base, err = b.androidReal(ctx, variant)
	case AxisAndroidEmulator:
		base, err = b.androidEmulator(variant)
	default:
		return nil, core.ErrInvalidConfig.WithMessage(fmt.Sprintf("unknown axis %q", axis))
	}
	if err != nil {
		return nil, err
	}
	if variant.DerivedDataPath != "" {
		base[KeyDerivedDataPath] = variant.DerivedDataPath
	}

	if _, ok := overrides[FlagUseNewWDA]; ok {
		logger.Warn("ignoring %s override, it is set on the first iOS real-device session only", FlagUseNewWDA)
	}
	caps := base.Merge(overrides.Without(FlagUseNewWDA))
	logger.Debug("built %s capabilities: %v", axis, caps)
	return caps, nil
}

// SimulatorDeviceName is the deviceName an ios-simulator variant resolves
// to, empty when the version has no default and none is set.
func SimulatorDeviceName(v Variant) string {
	return firstNonEmpty(v.DeviceName, simulatorDefaults[v.PlatformVersion].DeviceName)
}

func (b *Builder) iosSimulator(v Variant) (Set, error) {
	if v.PlatformVersion == "" {
		return nil, core.ErrInvalidConfig.WithMessage("ios-simulator requires platformVersion")
	}
	if _, err := ParseVersion(v.PlatformVersion); err != nil {
		return nil, err
	}
	def := simulatorDefaults[v.PlatformVersion]
	name := SimulatorDeviceName(v)
	if name == "" {
		return nil, core.ErrInvalidConfig.WithMessage(
			fmt.Sprintf("no default simulator for iOS %s, set deviceName", v.PlatformVersion))
	}
	port := firstNonZero(v.WDALocalPort, def.WDALocalPort)

	caps := Set{
		KeyPlatformName:    "iOS",
		KeyPlatformVersion: v.PlatformVersion,
		KeyDeviceName:      name,
		KeyAutomationName:  "XCUITest",
		FlagShowXcodeLog:   true,
	}
	if port != 0 {
		caps[KeyWDALocalPort] = port
	}
	return caps, nil
}

func (b *Builder) iosReal(v Variant) (Set, error) {
	if b.Env.TeamID == "" {
		logger.Warn("%s is not set, code signing of the WDA will fail", EnvTeamID)
	}
	caps := Set{
		KeyPlatformName:    "iOS",
		KeyPlatformVersion: firstNonEmpty(v.PlatformVersion, realDevicePlaceholderVersion),
		KeyDeviceName:      firstNonEmpty(v.DeviceName, realDevicePlaceholderName),
		KeyUDID:            firstNonEmpty(v.UDID, "auto"),
		KeyAutomationName:  "XCUITest",
		FlagShowXcodeLog:   true,
		KeyXcodeSigningID:  "iPhone Developer",
		KeyXcodeOrgID:      b.Env.TeamID,
		KeyWDALocalPort:    firstNonZero(v.WDALocalPort, defaultRealWDAPort),
	}
	if b.Env.UpdatedWDABundleID != "" {
		caps[KeyUpdatedWDABundleID] = b.Env.UpdatedWDABundleID
	}
	// Repeating useNewWDA makes the server reinstall the agent twice.
	if b.Guard != nil && b.Guard.Take() {
		caps[FlagUseNewWDA] = true
	}
	return caps, nil
}

func (b *Builder) androidReal(ctx context.Context, v Variant) (Set, error) {
	udid := v.UDID
	if udid == "" {
		if b.Devices == nil {
			return nil, device.ErrNoDeviceFound.WithMessage("no device resolver configured")
		}
		serial, err := b.Devices.FirstRealDevice(ctx)
		if err != nil {
			return nil, err
		}
		udid = serial
	}
	caps := Set{
		KeyPlatformName:   "Android",
		KeyDeviceName:     firstNonEmpty(v.DeviceName, "Android"),
		KeyAutomationName: "uiautomator2",
		KeyUDID:           udid,
	}
	if v.PlatformVersion != "" {
		caps[KeyPlatformVersion] = v.PlatformVersion
	}
	return caps, nil
}

func (b *Builder) androidEmulator(v Variant) (Set, error) {
	slot := firstNonZero(v.EmulatorSlot, 1)
	if slot < 1 || slot > len(b.Env.EmulatorImages) {
		return nil, core.ErrInvalidConfig.WithMessage(fmt.Sprintf("emulator slot %d out of range", slot))
	}
	image := b.Env.EmulatorImages[slot-1]
	if image == "" {
		envName := EnvEmulatorImage1
		if slot == 2 {
			envName = EnvEmulatorImage2
		}
		return nil, core.ErrInvalidConfig.WithMessage(fmt.Sprintf("%s is not set", envName))
	}
	caps := Set{
		KeyPlatformName:   "Android",
		KeyDeviceName:     firstNonEmpty(v.DeviceName, "Android Emulator"),
		KeyAutomationName: "uiautomator2",
		KeyAVD:            image,
	}
	if v.PlatformVersion != "" {
		caps[KeyPlatformVersion] = v.PlatformVersion
	}
	return caps, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonZero(values ...int) int {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}
