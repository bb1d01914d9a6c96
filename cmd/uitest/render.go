package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/copyleftdev/uitest/internal/improve"
	"github.com/copyleftdev/uitest/internal/improvetypes"
	"github.com/copyleftdev/uitest/internal/uierr"
)

var (
	colorRed    = lipgloss.Color("#ff5555")
	colorGreen  = lipgloss.Color("#50fa7b")
	colorYellow = lipgloss.Color("#f1fa8c")
	colorDim    = lipgloss.Color("#6272a4")
	colorBorder = lipgloss.Color("#44475a")

	titleStyle = lipgloss.NewStyle().Bold(true)
	labelStyle = lipgloss.NewStyle().Foreground(colorDim).Width(22)
	goodStyle  = lipgloss.NewStyle().Foreground(colorGreen)
	warnStyle  = lipgloss.NewStyle().Foreground(colorYellow)
	errorStyle = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	hintStyle  = lipgloss.NewStyle().Foreground(colorDim)
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)
)

func row(label string, value string) string {
	return labelStyle.Render(label) + value
}

func count(n int, style lipgloss.Style) string {
	s := fmt.Sprint(n)
	if n == 0 {
		return s
	}
	return style.Render(s)
}

// renderSummary formats the outcome of an improve run for the terminal.
func renderSummary(res *improve.Result) string {
	r := res.Report
	s := r.Summary
	lines := []string{
		titleStyle.Render("uitest improve: " + r.TestFile),
		"",
		row("Selectors improved", count(s.Improved, goodStyle)),
		row("Selectors unchanged", fmt.Sprint(s.Unchanged)),
		row("Fallback targets", count(s.FallbackTargets, warnStyle)),
		row("Assertion candidates", fmt.Sprint(s.AssertionCandidates)),
		row("Assertions applied", count(s.AppliedAssertions, goodStyle)),
		row("Assertions skipped", fmt.Sprint(s.SkippedAssertions)),
		row("Failed steps", count(s.FailedSteps, errorStyle)),
		row("Warnings", count(s.Warnings, warnStyle)),
		"",
		row("Provider", r.ProviderUsed),
		row("Report", res.ReportPath),
	}
	if res.OutputPath != "" {
		lines = append(lines, row("Updated test", goodStyle.Render(res.OutputPath)))
	} else {
		lines = append(lines, row("Updated test", hintStyle.Render("none (review mode)")))
	}
	out := boxStyle.Render(strings.Join(lines, "\n"))

	if warns := warnings(r.Diagnostics); len(warns) > 0 {
		out += "\n" + strings.Join(warns, "\n")
	}
	return out
}

func warnings(diags []improvetypes.Diagnostic) []string {
	var out []string
	for _, d := range diags {
		if d.Level != improvetypes.LevelWarn {
			continue
		}
		out = append(out, warnStyle.Render("! "+d.Code)+" "+d.Message)
	}
	return out
}

func renderChecks(checks []doctorCheck) string {
	lines := make([]string, 0, len(checks))
	for _, c := range checks {
		var mark string
		switch {
		case c.OK:
			mark = goodStyle.Render("ok  ")
		case c.Required:
			mark = errorStyle.Render("FAIL")
		default:
			mark = warnStyle.Render("warn")
		}
		lines = append(lines, mark+" "+labelStyle.Render(c.Name)+c.Detail)
	}
	return strings.Join(lines, "\n")
}

// printError writes err with its hint, if any.
func printError(w io.Writer, err error) {
	msg := err.Error()
	var ue *uierr.UserError
	if errors.As(err, &ue) {
		msg = ue.Message
	}
	fmt.Fprintln(w, errorStyle.Render("Error: ")+msg)
	if hint := uierr.HintOf(err); hint != "" {
		fmt.Fprintln(w, hintStyle.Render("Hint: "+hint))
	}
}
