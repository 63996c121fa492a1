// Package server launches and terminates automation-server processes.
package server

import (
	"fmt"
	"strconv"
	"time"
)

// EnvMainJSPath overrides the server binary with "node <path>".
const EnvMainJSPath = "APPIUM_MAIN_JS_PATH"

// DefaultSettleDelay is how long AwaitReady sleeps when no readiness
// timeout is configured.
const DefaultSettleDelay = 8 * time.Second

// Config describes one server process.
type Config struct {
	Name            string            `yaml:"name"`
	Binary          []string          `yaml:"binary,omitempty"`
	Port            int               `yaml:"port"`
	LogFile         string            `yaml:"logFile,omitempty"`
	LogLevel        string            `yaml:"logLevel,omitempty"`
	SessionOverride bool              `yaml:"sessionOverride"`
	LocalTimezone   bool              `yaml:"localTimezone"`
	RuntimeVersion  string            `yaml:"runtimeVersion,omitempty"`
	SettleDelay     time.Duration     `yaml:"settleDelay,omitempty"`
	ReadyTimeout    time.Duration     `yaml:"readyTimeout,omitempty"`
	ExtraEnv        map[string]string `yaml:"env,omitempty"`
}

// DefaultConfig returns the flags every suite server runs with.
func DefaultConfig(name string, port int) Config {
	return Config{
		Name:            name,
		Port:            port,
		LogLevel:        "debug",
		SessionOverride: true,
		LocalTimezone:   true,
		SettleDelay:     DefaultSettleDelay,
	}
}

// DefaultBinary is the server command line prefix. A non-empty mainJSPath
// runs that entry point under node instead of the installed binary.
func DefaultBinary(mainJSPath string) []string {
	if mainJSPath != "" {
		return []string{"node", mainJSPath}
	}
	return []string{"appium"}
}

// LogPath is the server log file, appiumServer_<name>.log by default.
func (c Config) LogPath() string {
	if c.LogFile != "" {
		return c.LogFile
	}
	if c.Name != "" {
		return fmt.Sprintf("appiumServer_%s.log", c.Name)
	}
	return fmt.Sprintf("appiumServer_%d.log", c.Port)
}

// Args builds the flags appended to the binary.
func (c Config) Args() []string {
	args := []string{"--log", c.LogPath()}
	if c.SessionOverride {
		args = append(args, "--session-override")
	}
	level := c.LogLevel
	if level == "" {
		level = "debug"
	}
	args = append(args, "--log-level", level)
	if c.LocalTimezone {
		args = append(args, "--local-timezone")
	}
	return append(args, "--port", strconv.Itoa(c.Port))
}

// Validate checks the fields Launch relies on.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("server %q: invalid port %d", c.Name, c.Port)
	}
	return nil
}
