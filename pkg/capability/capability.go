// Package capability builds the session capability sets for each
// platform and device axis the suite covers.
package capability

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/devicelab-dev/appium-compat/pkg/core"
)

// Axis is one platform/device class.
type Axis string

const (
	AxisIOSSimulator    Axis = "ios-simulator"
	AxisIOSReal         Axis = "ios-real"
	AxisAndroidReal     Axis = "android-real"
	AxisAndroidEmulator Axis = "android-emulator"
)

// Axes lists every supported axis in table order.
var Axes = []Axis{AxisIOSSimulator, AxisIOSReal, AxisAndroidReal, AxisAndroidEmulator}

// ParseAxis validates an axis name from a scenario table or the CLI.
func ParseAxis(s string) (Axis, error) {
	a := Axis(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Axes {
		if a == known {
			return a, nil
		}
	}
	return "", core.ErrInvalidConfig.WithMessage(fmt.Sprintf("unknown axis %q", s))
}

// Platform returns the platformName the axis targets.
func (a Axis) Platform() string {
	if strings.HasPrefix(string(a), "ios") {
		return "iOS"
	}
	return "Android"
}

// IsIOS reports whether the axis drives an iOS target.
func (a Axis) IsIOS() bool {
	return a.Platform() == "iOS"
}

// Capability and feature-flag names.
const (
	KeyPlatformName       = "platformName"
	KeyPlatformVersion    = "platformVersion"
	KeyDeviceName         = "deviceName"
	KeyAutomationName     = "automationName"
	KeyUDID               = "udid"
	KeyApp                = "app"
	KeyBundleID           = "bundleId"
	KeyAppPackage         = "appPackage"
	KeyAppActivity        = "appActivity"
	KeyAVD                = "avd"
	KeyWDALocalPort       = "wdaLocalPort"
	KeyXcodeSigningID     = "xcodeSigningId"
	KeyXcodeOrgID         = "xcodeOrgId"
	KeyUpdatedWDABundleID = "updatedWDABundleId"
	KeyDerivedDataPath    = "derivedDataPath"

	FlagUseJSONSource = "useJSONSource"
	FlagReduceMotion  = "reduceMotion"
	FlagIsHeadless    = "isHeadless"
	FlagShowXcodeLog  = "showXcodeLog"
	FlagFullReset     = "fullReset"
	FlagUseNewWDA     = "useNewWDA"
)

// Flags lists the feature toggles a scenario table may set. useNewWDA is
// left out: only the builder's one-shot guard sets it.
var Flags = []string{
	FlagUseJSONSource, FlagReduceMotion, FlagIsHeadless,
	FlagShowXcodeLog, FlagFullReset,
}

// IsFlag reports whether name is a known feature toggle.
func IsFlag(name string) bool {
	for _, f := range Flags {
		if f == name {
			return true
		}
	}
	return false
}

// Set is a capability record keyed by capability name.
type Set map[string]interface{}

// Clone returns a shallow copy. A nil set clones to an empty one.
func (s Set) Clone() Set {
	cloned := make(Set, len(s))
	for k, v := range s {
		cloned[k] = v
	}
	return cloned
}

// With returns a copy of s with key set to value.
func (s Set) With(key string, value interface{}) Set {
	cloned := s.Clone()
	cloned[key] = value
	return cloned
}

// Without returns a copy of s without key.
func (s Set) Without(key string) Set {
	cloned := s.Clone()
	delete(cloned, key)
	return cloned
}

// Merge returns a copy of s with every key of overrides applied on top.
func (s Set) Merge(overrides Set) Set {
	merged := s.Clone()
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}

// String returns the value of key as a string, or "" when absent.
func (s Set) String(key string) string {
	v, ok := s[key]
	if !ok || v == nil {
		return ""
	}
	if str, ok := v.(string); ok {
		return str
	}
	return fmt.Sprint(v)
}

// Int returns the value of key as an int, accepting the numeric types a
// YAML or JSON decoder produces.
func (s Set) Int(key string) (int, bool) {
	switch v := s[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case uint64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

// Bool reports whether key is set to true.
func (s Set) Bool(key string) bool {
	b, _ := s[key].(bool)
	return b
}

// Platform returns the platformName of the set.
func (s Set) Platform() string {
	return s.String(KeyPlatformName)
}

// Keys returns the capability names in sorted order.
func (s Set) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Map returns the set as a plain map for the session client.
func (s Set) Map() map[string]interface{} {
	return map[string]interface{}(s.Clone())
}

// ParseVersion validates a platformVersion such as "11.2".
func ParseVersion(v string) (*semver.Version, error) {
	ver, err := semver.NewVersion(v)
	if err != nil {
		return nil, core.ErrInvalidConfig.
			WithMessage(fmt.Sprintf("invalid platformVersion %q", v)).
			WithCause(err)
	}
	return ver, nil
}

// AxisLabel is the short axis name used in logs and reports, for example
// "ios11" for an iOS 11.2 simulator.
func AxisLabel(axis Axis, platformVersion string) string {
	base := strings.ToLower(axis.Platform())
	if platformVersion == "" {
		return base
	}
	ver, err := semver.NewVersion(platformVersion)
	if err != nil {
		return base
	}
	return fmt.Sprintf("%s%d", base, ver.Major())
}
