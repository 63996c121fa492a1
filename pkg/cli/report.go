package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/appium-compat/pkg/report"
)

var reportCommand = &cli.Command{
	Name:      "report",
	Usage:     "Print the summary of a previous run",
	ArgsUsage: "<report.json | output dir>",
	Description: `Read a report written by run and print its summary table again.
The exit status is non-zero when the run had failures.

Examples:
  appium-compat report ./out
  appium-compat report ./out/report.json`,
	Action: runReport,
}

func runReport(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected the path of a report or output directory")
	}
	path := c.Args().First()
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, report.IndexFile)
	}

	index, err := report.Read(path)
	if err != nil {
		return fmt.Errorf("failed to read report: %w", err)
	}
	report.PrintSummary(c.App.Writer, index, report.SummaryOptions{NoColor: noColor(c)})

	if n := index.Summary.Failed + index.Summary.Errored; n > 0 {
		return fmt.Errorf("%d scenario(s) failed", n)
	}
	return nil
}
