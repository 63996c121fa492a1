package cli

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/appium-compat/pkg/device"
	wdadriver "github.com/devicelab-dev/appium-compat/pkg/driver/wda"
	"github.com/devicelab-dev/appium-compat/pkg/emulator"
	"github.com/devicelab-dev/appium-compat/pkg/simulator"
)

var devicesCommand = &cli.Command{
	Name:  "devices",
	Usage: "List attached Android devices, AVDs and iOS simulators",
	Description: `Show what the capability builder can target on this host.

Examples:
  appium-compat devices`,
	Action: runDevices,
}

var wdaCommand = &cli.Command{
	Name:      "wda",
	Usage:     "Query a running WebDriverAgent without a session",
	ArgsUsage: "<status|screenshot|source>",
	Description: `Fetch a session-less endpoint from WebDriverAgent, the same request
the sessionless probe makes.

Examples:
  appium-compat wda status --port 8100
  appium-compat wda screenshot --port 8100 --out screen.png`,
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "port",
			Usage: "WebDriverAgent port on localhost",
			Value: 8100,
		},
		&cli.StringFlag{
			Name:  "url",
			Usage: "WebDriverAgent base URL (overrides --port)",
		},
		&cli.StringFlag{
			Name:  "out",
			Usage: "Write the payload to this file instead of stdout",
		},
	},
	Action: runWDA,
}

func runDevices(c *cli.Context) error {
	suite, err := loadSuite(c)
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(c.App.Writer)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"PLATFORM", "ID", "NAME", "VERSION", "STATE"})

	if adb, err := device.NewADB(suite.AndroidSDKRoot); err != nil {
		fmt.Fprintf(c.App.ErrWriter, "Android: %v\n", err)
	} else if entries, err := adb.Devices(c.Context); err != nil {
		fmt.Fprintf(c.App.ErrWriter, "Android: %v\n", err)
	} else {
		for _, e := range entries {
			kind := "android"
			if e.IsEmulator() {
				kind = "android (emulator)"
			}
			t.AppendRow(table.Row{kind, e.Serial, "", "", e.State})
		}
	}

	if avds, err := emulator.ListAVDs(c.Context, suite.AndroidSDKRoot); err != nil {
		fmt.Fprintf(c.App.ErrWriter, "AVDs: %v\n", err)
	} else {
		for _, name := range avds {
			t.AppendRow(table.Row{"android (avd)", "", name, "", ""})
		}
	}

	if sims, err := simulator.ListSimulators(c.Context); err != nil {
		fmt.Fprintf(c.App.ErrWriter, "iOS: %v\n", err)
	} else {
		for _, s := range sims {
			t.AppendRow(table.Row{"ios (simulator)", s.UDID, s.Name, s.OSVersion, s.State})
		}
	}

	t.Render()
	return nil
}

func runWDA(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected one of status, screenshot, source")
	}
	kind, err := wdadriver.ParseKind(c.Args().First())
	if err != nil {
		return err
	}

	client := wdadriver.NewClient(c.Int("port"))
	if u := c.String("url"); u != "" {
		client = wdadriver.NewClientWithURL(u)
	}

	payload, err := client.Fetch(c.Context, kind)
	if err != nil {
		return fmt.Errorf("wda %s: %w", kind, err)
	}
	if len(payload) == 0 {
		return fmt.Errorf("wda %s: empty payload", kind)
	}

	if out := c.String("out"); out != "" {
		if err := os.WriteFile(out, payload, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "Wrote %d bytes to %s\n", len(payload), out)
		return nil
	}
	if kind == wdadriver.KindScreenshot {
		fmt.Fprintf(c.App.Writer, "screenshot: %d bytes (use --out to save)\n", len(payload))
		return nil
	}
	fmt.Fprintln(c.App.Writer, string(payload))
	return nil
}
