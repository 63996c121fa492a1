package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/appium-compat/pkg/capability"
	"github.com/devicelab-dev/appium-compat/pkg/config"
	"github.com/devicelab-dev/appium-compat/pkg/device"
	"github.com/devicelab-dev/appium-compat/pkg/emulator"
	"github.com/devicelab-dev/appium-compat/pkg/logger"
	"github.com/devicelab-dev/appium-compat/pkg/report"
	"github.com/devicelab-dev/appium-compat/pkg/scenario"
	"github.com/devicelab-dev/appium-compat/pkg/server"
	"github.com/devicelab-dev/appium-compat/pkg/session"
	"github.com/devicelab-dev/appium-compat/pkg/simulator"
)

// logFile is written into the output directory of every run.
const logFile = "appium-compat.log"

var runCommand = &cli.Command{
	Name:  "run",
	Usage: "Launch the servers and run the scenario table",
	Description: `Run every selected scenario. Plain scenarios run one at a time;
members of a parallel group run concurrently. A report.json and a log
are written to the output directory.

Examples:
  appium-compat run
  appium-compat run --only 'android_*' --output ./out --flatten
  appium-compat run --settle 5s --timeout 10m`,
	Flags: append(append([]cli.Flag{}, selectionFlags...),
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Report directory (default: $APPIUM_COMPAT_HOME/reports/<timestamp>)",
		},
		&cli.BoolFlag{
			Name:  "flatten",
			Usage: "Write into --output directly instead of a timestamped subfolder",
		},
		&cli.DurationFlag{
			Name:  "settle",
			Usage: "Fixed delay after launching a server before it is used",
		},
		&cli.DurationFlag{
			Name:  "ready-timeout",
			Usage: "Poll /wd/hub/status for up to this long instead of the settle delay",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Upper bound for one scenario (0 uses the runner default)",
		},
	),
	Action: runRun,
}

// RunConfig holds everything one run needs after flags, file and
// environment have been merged.
type RunConfig struct {
	Suite     *config.Config
	Filter    scenario.Filter
	OutputDir string
	Verbose   bool
	NoColor   bool
	Out       io.Writer
	// Log receives INFO and above, plus DEBUG when Verbose is set.
	// Defaults to stderr.
	Log io.Writer
}

func runRun(c *cli.Context) error {
	suite, err := loadSuite(c)
	if err != nil {
		return err
	}
	filter, err := buildFilter(suite)
	if err != nil {
		return err
	}
	outputDir, err := resolveOutputDir(suite.Output, c.Bool("flatten"))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return executeRun(ctx, &RunConfig{
		Suite:     suite,
		Filter:    filter,
		OutputDir: outputDir,
		Verbose:   c.Bool("verbose"),
		NoColor:   noColor(c),
		Out:       c.App.Writer,
		Log:       c.App.ErrWriter,
	})
}

// loadSuite reads the config named by --config, or appium-compat.yaml in
// the working directory, then applies the environment and the flags.
func loadSuite(c *cli.Context) (*config.Config, error) {
	var (
		suite *config.Config
		err   error
	)
	if path := c.String("config"); path != "" {
		suite, err = config.Load(path)
	} else {
		suite, err = config.LoadFromDir(".")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	suite.ApplyEnv(nil)

	if v := c.String("scenarios"); v != "" {
		suite.Scenarios = v
	}
	if v := c.StringSlice("only"); len(v) > 0 {
		suite.Only = v
	}
	if v := c.StringSlice("axis"); len(v) > 0 {
		suite.Axes = v
	}
	if v := c.String("output"); v != "" {
		suite.Output = v
	}
	if c.IsSet("settle") {
		suite.SettleDelay = c.Duration("settle")
	}
	if c.IsSet("ready-timeout") {
		suite.ReadyTimeout = c.Duration("ready-timeout")
	}
	if c.IsSet("timeout") {
		suite.Timeout = c.Duration("timeout")
	}
	if suite.Scenarios == "" {
		suite.Scenarios = scenario.DefaultFile
	}
	return suite, nil
}

func buildFilter(suite *config.Config) (scenario.Filter, error) {
	f := scenario.Filter{Only: suite.Only}
	for _, s := range suite.Axes {
		axis, err := capability.ParseAxis(s)
		if err != nil {
			return scenario.Filter{}, err
		}
		f.Axes = append(f.Axes, axis)
	}
	return f, nil
}

// resolveOutputDir determines the output directory based on flags.
// - No --output: <home>/reports/<timestamp>/
// - --output given: <output>/<timestamp>/
// - --output + --flatten: <output>/ (error if --output not given)
func resolveOutputDir(output string, flatten bool) (string, error) {
	if flatten && output == "" {
		return "", fmt.Errorf("--flatten requires --output to be specified")
	}

	baseDir := output
	if baseDir == "" {
		baseDir = config.GetReportsDir()
	}

	if flatten {
		return filepath.Clean(baseDir), nil
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	return filepath.Join(baseDir, timestamp), nil
}

func executeRun(ctx context.Context, cfg *RunConfig) error {
	// 1. Create output directory
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	// 2. Initialize logging
	if err := logger.Init(filepath.Join(cfg.OutputDir, logFile)); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to initialize logger: %v\n", err)
	}
	defer logger.Close()
	console := cfg.Log
	if console == nil {
		console = os.Stderr
	}
	logger.SetConsole(console, cfg.Verbose)
	defer logger.SetConsole(nil, false)

	logger.Info("=== Run started ===")
	logger.Info("Output directory: %s", cfg.OutputDir)
	logger.Info("Scenario table: %s", cfg.Suite.Scenarios)

	// 3. Load the scenario table
	table, err := scenario.LoadWithVars(cfg.Suite.Scenarios, cfg.Suite.Vars())
	if err != nil {
		return err
	}
	for i := range table.Servers {
		cfg.Suite.ApplyServer(&table.Servers[i].Config)
	}
	logger.Debug("Loaded %d server(s) and %d group(s)", len(table.Servers), len(table.Groups))

	// 4. Wire the registry
	var devices capability.DeviceResolver
	if adb, err := device.NewADB(cfg.Suite.AndroidSDKRoot); err != nil {
		logger.Warn("adb unavailable, android-real scenarios will fail: %v", err)
	} else {
		devices = adb
	}

	runner := session.NewRunner()
	if cfg.Suite.Timeout > 0 {
		runner.Timeout = cfg.Suite.Timeout
	}

	registry := &scenario.Registry{
		Table:     table,
		Builder:   capability.NewBuilder(cfg.Suite.CapabilityEnv(), devices),
		Servers:   server.NewSupervisor(),
		Sessions:  runner,
		Filter:    cfg.Filter,
		ResetHost: simulator.ResetHostState,
	}

	plans := registry.Plan()
	checkEmulatorImages(ctx, cfg.Suite, plans)
	checkSimulators(ctx, plans)

	// 5. Run and report
	outcome, runErr := registry.Run(ctx)
	if runErr != nil {
		logger.Error("Run aborted: %v", runErr)
	}

	index := report.Build(outcome, report.BuilderConfig{
		RunnerVersion: Version,
		Scenarios:     table.SourcePath,
	})
	path, err := report.Write(cfg.OutputDir, index)
	if err != nil {
		logger.Error("Failed to write report: %v", err)
	} else {
		logger.Info("Report written to %s", path)
	}
	report.PrintSummary(cfg.Out, index, report.SummaryOptions{NoColor: cfg.NoColor})

	switch {
	case runErr != nil:
		return runErr
	case err != nil:
		return fmt.Errorf("failed to write report: %w", err)
	case outcome.Failed():
		return fmt.Errorf("%d scenario(s) failed", index.Summary.Failed+index.Summary.Errored)
	}
	return nil
}

// checkEmulatorImages warns when a selected emulator scenario will ask
// Appium for an AVD the host does not have.
func checkEmulatorImages(ctx context.Context, suite *config.Config, plans []scenario.Planned) {
	for _, p := range plans {
		if p.Axis != capability.AxisAndroidEmulator || p.Skip != "" {
			continue
		}
		avds, err := emulator.ListAVDs(ctx, suite.AndroidSDKRoot)
		if err != nil {
			logger.Warn("Cannot list AVDs: %v", err)
			return
		}
		for _, img := range emulator.MissingImages(suite.EmulatorImages, avds) {
			logger.Warn("Emulator image %q not found, android-emulator scenarios may fail", img)
		}
		return
	}
}

// listSimulators is replaced in tests.
var listSimulators = simulator.ListSimulators

// checkSimulators warns about ios-simulator scenarios whose device and
// iOS version pair is not installed on the host. It returns the names of
// those scenarios.
func checkSimulators(ctx context.Context, plans []scenario.Planned) []string {
	var (
		sims    []simulator.Device
		listed  bool
		missing []string
	)
	for _, p := range plans {
		if p.Axis != capability.AxisIOSSimulator || p.Skip != "" {
			continue
		}
		if !listed {
			var err error
			if sims, err = listSimulators(ctx); err != nil {
				logger.Warn("Cannot list simulators: %v", err)
				return nil
			}
			listed = true
		}
		name := capability.SimulatorDeviceName(p.Variant)
		if _, ok := simulator.Find(sims, name, p.Variant.PlatformVersion); !ok {
			logger.Warn("Simulator %q (iOS %s) not found, scenario %s may fail", name, p.Variant.PlatformVersion, p.Name)
			missing = append(missing, p.Name)
		}
	}
	return missing
}
