package report

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/devicelab-dev/appium-compat/pkg/core"
	"github.com/devicelab-dev/appium-compat/pkg/scenario"
)

const maxErrorWidth = 80

// SummaryOptions control console rendering.
type SummaryOptions struct {
	NoColor bool
}

func createTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.Style().Format.Footer = text.FormatDefault
	return t
}

// PrintSummary renders one row per scenario followed by the totals.
func PrintSummary(w io.Writer, index *Index, opts SummaryOptions) {
	paint := func(c text.Color, v interface{}) string {
		if opts.NoColor {
			return fmt.Sprint(v)
		}
		return c.Sprint(v)
	}

	t := createTable(w)
	t.AppendHeader(table.Row{"#", "SCENARIO", "AXIS", "STATUS", "DURATION", "FAILED STEP", "ERROR"})
	for _, s := range index.Scenarios {
		errMsg := ""
		if s.Error != nil {
			errMsg = truncate(s.Error.Message, maxErrorWidth)
		}
		t.AppendRow(table.Row{
			s.Index + 1,
			s.Name,
			s.Label,
			paint(statusColor(s.Status), s.Status),
			formatDuration(s.Duration),
			s.FailedStep,
			errMsg,
		})
	}
	t.AppendFooter(table.Row{"", "TOTAL", index.Summary.Total,
		fmt.Sprintf("%d passed, %d failed, %d errored, %d skipped",
			index.Summary.Passed, index.Summary.Failed, index.Summary.Errored, index.Summary.Skipped),
		formatDuration(index.Duration), "", ""})
	t.Render()

	fmt.Fprintf(w, "%s %s\n", paint(text.FgHiBlue, "Run:"), index.RunID)
	fmt.Fprintf(w, "%s %s\n", paint(text.FgHiBlue, "Status:"), paint(statusColor(index.Status), index.Status))
}

// PrintPlan renders the scenarios a run would execute.
func PrintPlan(w io.Writer, plans []scenario.Planned) {
	t := createTable(w)
	t.AppendHeader(table.Row{"#", "SCENARIO", "GROUP", "AXIS", "SERVER", "PARALLEL", "SKIP"})
	for i, p := range plans {
		t.AppendRow(table.Row{i + 1, p.Name, p.Group, p.Axis, p.Server, p.Parallel, p.Skip})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d scenario(s)", len(plans)), "", "", "", "", ""})
	t.Render()
}

func statusColor(s core.Status) text.Color {
	switch s {
	case core.StatusPassed:
		return text.FgGreen
	case core.StatusFailed, core.StatusErrored:
		return text.FgRed
	case core.StatusSkipped:
		return text.FgYellow
	default:
		return text.FgWhite
	}
}

func formatDuration(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	if d < time.Second {
		return fmt.Sprintf("%dms", ms)
	}
	return d.Round(100 * time.Millisecond).String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
