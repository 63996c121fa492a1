// Package config handles the suite configuration of appium-compat.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/devicelab-dev/appium-compat/pkg/capability"
	"github.com/devicelab-dev/appium-compat/pkg/server"
)

// Environment variables that override the file.
const (
	EnvAndroidSDKRoot = "ANDROID_SDK_ROOT"
	EnvTestAppDir     = "TEST_APP_DIR"
)

// Config represents the suite configuration (appium-compat.yaml).
type Config struct {
	// Scenario selection
	Scenarios string   `yaml:"scenarios"` // Scenario table file or directory
	Only      []string `yaml:"only"`      // Name globs to run
	Axes      []string `yaml:"axes"`      // Axes to run

	// Execution settings
	Output       string            `yaml:"output"`       // Report directory
	Timeout      time.Duration     `yaml:"timeout"`      // Per-scenario ceiling
	SettleDelay  time.Duration     `yaml:"settleDelay"`  // Server settle delay override
	ReadyTimeout time.Duration     `yaml:"readyTimeout"` // Poll readiness for this long instead of settling
	Env          map[string]string `yaml:"env"`          // Variables for ${NAME} expansion

	// Host settings
	MainJSPath         string    `yaml:"appiumMainJS"`
	TeamID             string    `yaml:"teamId"`
	UpdatedWDABundleID string    `yaml:"updatedWdaBundleId"`
	EmulatorImages     [2]string `yaml:"emulatorImages"`
	AndroidSDKRoot     string    `yaml:"androidSdkRoot"`
	TestAppDir         string    `yaml:"testAppDir"`
}

// Load loads configuration from a file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- user-provided config file
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadFromDir looks for appium-compat.yaml or appium-compat.yml in the directory.
func LoadFromDir(dir string) (*Config, error) {
	// Try appium-compat.yaml first
	configPath := filepath.Join(dir, "appium-compat.yaml")
	if _, err := os.Stat(configPath); err == nil {
		return Load(configPath)
	}

	// Try appium-compat.yml
	configPath = filepath.Join(dir, "appium-compat.yml")
	if _, err := os.Stat(configPath); err == nil {
		return Load(configPath)
	}

	// No config file found, return empty config
	return &Config{}, nil
}

// ApplyEnv overrides file values with the environment. Unset variables
// leave the file value in place.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	override := func(dst *string, name string) {
		if v := getenv(name); v != "" {
			*dst = v
		}
	}
	override(&c.MainJSPath, server.EnvMainJSPath)
	override(&c.TeamID, capability.EnvTeamID)
	override(&c.UpdatedWDABundleID, capability.EnvUpdatedWDABundleID)
	override(&c.EmulatorImages[0], capability.EnvEmulatorImage1)
	override(&c.EmulatorImages[1], capability.EnvEmulatorImage2)
	override(&c.AndroidSDKRoot, EnvAndroidSDKRoot)
	override(&c.TestAppDir, EnvTestAppDir)
}

// CapabilityEnv returns the identifiers the capability builder needs.
func (c *Config) CapabilityEnv() capability.Env {
	return capability.Env{
		TeamID:             c.TeamID,
		UpdatedWDABundleID: c.UpdatedWDABundleID,
		EmulatorImages:     c.EmulatorImages,
	}
}

// Vars returns the variables for ${NAME} expansion in scenario tables:
// the process environment, then the file's env map, then TEST_APP_DIR.
func (c *Config) Vars() map[string]string {
	vars := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			vars[k] = v
		}
	}
	for k, v := range c.Env {
		vars[k] = v
	}
	if c.TestAppDir != "" {
		vars[EnvTestAppDir] = c.TestAppDir
	}
	return vars
}

// ApplyServer applies the settle and readiness settings to one server of
// a run. Zero values keep the server's own setting.
func (c *Config) ApplyServer(s *server.Config) {
	if c.SettleDelay > 0 {
		s.SettleDelay = c.SettleDelay
	}
	if c.ReadyTimeout > 0 {
		s.ReadyTimeout = c.ReadyTimeout
	}
	if c.MainJSPath != "" && len(s.Binary) == 0 {
		s.Binary = server.DefaultBinary(c.MainJSPath)
	}
}
