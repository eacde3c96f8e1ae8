package harness

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"twharness/pkg/textutil"
)

// planDescriptionMaxLen bounds the description column of the plan table
const planDescriptionMaxLen = 48

// Process exit codes decided by the reporter.
const (
	ExitCodeAllPassed  = 0
	ExitCodeSomeFailed = 1
)

// Reporter prints run progress and the final summary
type Reporter struct {
	out     io.Writer
	palette Palette
	verbose bool
	debug   bool
}

// NewReporter creates a reporter writing to stdout
func NewReporter(palette Palette, verbose, debug bool) *Reporter {
	return NewWriterReporter(os.Stdout, palette, verbose, debug)
}

// NewWriterReporter creates a reporter writing to out
func NewWriterReporter(out io.Writer, palette Palette, verbose, debug bool) *Reporter {
	return &Reporter{
		out:     out,
		palette: palette,
		verbose: verbose,
		debug:   debug,
	}
}

// ReportStart is called once before the first unit runs
func (r *Reporter) ReportStart(config HarnessConfig, units []TestUnit) {
	fmt.Fprintf(r.out, "Running %d Tinkwell integration test(s) from %s\n", len(units), config.TestDir)

	if r.verbose {
		fmt.Fprintf(r.out, "\nConfiguration:\n")
		fmt.Fprintf(r.out, "   • Application path: %s\n", config.AppPath)
		fmt.Fprintf(r.out, "   • Trait: %s\n", stringOrDefault(config.Trait, "all"))
		fmt.Fprintf(r.out, "   • Test name: %s\n", stringOrDefault(config.TestName, "all"))
		fmt.Fprintf(r.out, "   • Keep temp dir: %t\n", config.KeepTempDir)
		fmt.Fprintf(r.out, "   • Certificate source: %s\n", config.CertificateSource)
		fmt.Fprintf(r.out, "   • Command timeout: %v\n", config.Timings.CommandTimeout)
		fmt.Fprintf(r.out, "\n")
	}
}

// ReportPlan prints the ordered plan without running it
func (r *Reporter) ReportPlan(units []TestUnit) {
	t := r.newTable()
	t.AppendHeader(table.Row{"#", "Test", "Name", "Trait", "Priority", "Logic", "Description"})
	for i, u := range units {
		t.AppendRow(table.Row{
			i + 1,
			u.Name,
			u.DisplayName(),
			stringOrDefault(u.Trait, "-"),
			u.Priority,
			logicKind(u),
			textutil.OneLine(u.Description, planDescriptionMaxLen),
		})
	}
	t.Render()
}

// ReportRegistered lists the units whose logic is linked into the binary
func (r *Reporter) ReportRegistered(names []string) {
	if len(names) == 0 {
		fmt.Fprintf(r.out, "\nNo Go test logic registered\n")
		return
	}
	fmt.Fprintf(r.out, "\nRegistered Go test logic: %s\n", strings.Join(names, ", "))
}

// ReportUnitStart prints the start banner of a unit
func (r *Reporter) ReportUnitStart(unit TestUnit) {
	r.palette.Header.Fprintf(r.out, "\n--- Running Test: %s ---\n", unit.DisplayName())
	if r.verbose {
		if unit.Description != "" {
			fmt.Fprintf(r.out, "   Description: %s\n", unit.Description)
		}
		fmt.Fprintf(r.out, "   Trait: %s, priority: %d, logic: %s\n", stringOrDefault(unit.Trait, "-"), unit.Priority, logicKind(unit))
	}
}

// ReportUnitResult prints the final line of a unit
func (r *Reporter) ReportUnitResult(outcome TestOutcome) {
	r.palette.Name.Fprint(r.out, outcome.FriendlyName)
	fmt.Fprint(r.out, ": ")
	fmt.Fprintf(r.out, "%s (%s)\n", r.status(outcome.Status), formatDuration(outcome.Duration))
	if outcome.Message != "" {
		r.palette.Failure.Fprintf(r.out, "  %s\n", outcome.Message)
	}
	if outcome.TempDir != "" {
		fmt.Fprintf(r.out, "  Temporary directory: %s\n", r.palette.Path.Sprint(outcome.TempDir))
	}
	if r.debug && outcome.AppLogs != nil && outcome.AppLogs.Combined != "" {
		r.palette.Muted.Fprintf(r.out, "  Application output:\n%s\n", indent(outcome.AppLogs.Combined, "    "))
	}
}

// Report prints the summary of a run and returns the process exit code:
// zero when every outcome passed, one otherwise
func (r *Reporter) Report(result *SuiteResult) int {
	result.Tally()
	elapsed := result.Duration
	if elapsed == 0 {
		elapsed = time.Since(result.StartTime)
	}

	r.palette.Header.Fprintf(r.out, "\n--- Summary ---\n")

	t := r.newTable()
	t.AppendHeader(table.Row{"Test", "Status", "Duration", "Message"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Message", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
	})
	for _, o := range result.Outcomes {
		t.AppendRow(table.Row{
			r.palette.Name.Sprint(o.FriendlyName),
			r.status(o.Status),
			formatDuration(o.Duration),
			textutil.OneLine(o.Message, 0),
		})
	}
	t.AppendFooter(table.Row{"Total", fmt.Sprintf("%d passed, %d failed", result.Passed, result.Failed), formatDuration(elapsed), ""})
	t.Render()

	fmt.Fprintf(r.out, "\nTotal time: %s\n", formatDuration(elapsed))

	if result.AllPassed() {
		r.palette.Success.Fprintf(r.out, "\nAll tests PASSED!\n")
		return ExitCodeAllPassed
	}
	r.palette.Failure.Fprintf(r.out, "\nSome tests FAILED.\n")
	return ExitCodeSomeFailed
}

// WriteReports writes every configured machine-readable report
func (r *Reporter) WriteReports(result *SuiteResult, reports ReportConfig) error {
	result.Tally()
	var errs []error
	if reports.JSONPath != "" {
		if err := WriteJSONReport(reports.JSONPath, result); err != nil {
			errs = append(errs, err)
		} else {
			fmt.Fprintf(r.out, "JSON report saved to %s\n", reports.JSONPath)
		}
	}
	if reports.JUnitPath != "" {
		if err := WriteJUnitReport(reports.JUnitPath, result); err != nil {
			errs = append(errs, err)
		} else {
			fmt.Fprintf(r.out, "JUnit report saved to %s\n", reports.JUnitPath)
		}
	}
	if reports.MetricsPath != "" {
		if err := WriteMetrics(reports.MetricsPath, result); err != nil {
			errs = append(errs, err)
		} else {
			fmt.Fprintf(r.out, "Metrics saved to %s\n", reports.MetricsPath)
		}
	}
	return errors.Join(errs...)
}

func (r *Reporter) newTable() table.Writer {
	style := table.StyleLight
	style.Format.Footer = text.FormatDefault
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetStyle(style)
	return t
}

func (r *Reporter) status(s TestStatus) string {
	if s == StatusPassed {
		return r.palette.Success.Sprint(string(s))
	}
	return r.palette.Failure.Sprint(string(s))
}

func logicKind(u TestUnit) string {
	switch {
	case len(u.Steps) > 0:
		return "steps"
	case u.Logic != nil:
		return "go"
	default:
		return "none"
	}
}

func stringOrDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(10 * time.Millisecond).String()
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
