package cli

import (
	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/appium-compat/pkg/report"
	"github.com/devicelab-dev/appium-compat/pkg/scenario"
)

var listCommand = &cli.Command{
	Name:  "list",
	Usage: "Validate the scenario table and print the scenarios a run would execute",
	Description: `Load and validate the scenario table without launching anything.

Examples:
  appium-compat list
  appium-compat list --axis android-real`,
	Flags:  selectionFlags,
	Action: runList,
}

func runList(c *cli.Context) error {
	suite, err := loadSuite(c)
	if err != nil {
		return err
	}
	filter, err := buildFilter(suite)
	if err != nil {
		return err
	}
	table, err := scenario.LoadWithVars(suite.Scenarios, suite.Vars())
	if err != nil {
		return err
	}
	report.PrintPlan(c.App.Writer, scenario.Select(table.Expand(), filter))
	return nil
}
