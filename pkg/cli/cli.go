// Package cli provides the command-line interface for appium-compat.
package cli

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

// Version is set at build time.
var Version = "dev"

// GlobalFlags are available to all commands.
var GlobalFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Suite config file (default: ./appium-compat.yaml)",
		EnvVars: []string{"APPIUM_COMPAT_CONFIG"},
	},
	&cli.BoolFlag{
		Name:    "verbose",
		Usage:   "Also mirror debug logging to the console",
		EnvVars: []string{"APPIUM_COMPAT_VERBOSE"},
	},
	&cli.BoolFlag{
		Name:  "no-ansi",
		Usage: "Disable ANSI colors",
	},
}

// selectionFlags pick the scenarios a command works on.
var selectionFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "scenarios",
		Aliases: []string{"s"},
		Usage:   "Scenario table file or directory (default: ./scenarios.yaml)",
		EnvVars: []string{"APPIUM_COMPAT_SCENARIOS"},
	},
	&cli.StringSliceFlag{
		Name:  "only",
		Usage: "Run scenarios whose name, group or parallel group matches the glob (repeatable)",
	},
	&cli.StringSliceFlag{
		Name:  "axis",
		Usage: "Run only these axes: ios-simulator, ios-real, android-real, android-emulator",
	},
}

// Execute runs the CLI.
func Execute() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "appium-compat",
		Usage:   "Appium server compatibility harness",
		Version: Version,
		Description: `appium-compat launches local Appium servers and runs a table of
scenarios against them, one WebDriver session per scenario.

Examples:
  appium-compat run
  appium-compat run --only 'ios11_*' --axis ios-simulator
  appium-compat list --scenarios testdata/scenarios.yaml
  appium-compat wda status --port 8100
  appium-compat report ./out`,
		Flags: GlobalFlags,
		Commands: []*cli.Command{
			runCommand,
			listCommand,
			devicesCommand,
			wdaCommand,
			reportCommand,
		},
	}
}

// colorsEnabled determines if ANSI colors should be used.
var colorsEnabled = true

func init() {
	// Respect NO_COLOR environment variable
	if os.Getenv("NO_COLOR") != "" {
		colorsEnabled = false
		return
	}
	// Check if stdout is a terminal
	if fileInfo, err := os.Stdout.Stat(); err == nil {
		if (fileInfo.Mode() & os.ModeCharDevice) == 0 {
			colorsEnabled = false
		}
	}
}

func noColor(c *cli.Context) bool {
	return !colorsEnabled || c.Bool("no-ansi")
}
