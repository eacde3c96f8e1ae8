package harness

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"

	"twharness/pkg/logging"
)

// Step is one scripted control-surface invocation with its expectations.
type Step struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description,omitempty"`
	Command     []string      `yaml:"command"`
	Input       string        `yaml:"input,omitempty"`
	Delay       time.Duration `yaml:"delay,omitempty"`
	Expect      Expectation   `yaml:"expect,omitempty"`
	// Failure replaces the generated message when the step fails.
	Failure string `yaml:"failure,omitempty"`
	// SaveAs stores the trimmed stdout under this variable name.
	SaveAs string `yaml:"save_as,omitempty"`
}

// Expectation describes what a step's result must satisfy.
type Expectation struct {
	// ExitCode defaults to 0 when omitted.
	ExitCode     *int     `yaml:"exit_code,omitempty"`
	Contains     []string `yaml:"contains,omitempty"`
	NotContains  []string `yaml:"not_contains,omitempty"`
	Equals       *string  `yaml:"equals,omitempty"`
	NumberEquals *float64 `yaml:"number_equals,omitempty"`
}

// validate checks the step definition without running it
func (s Step) validate() error {
	if len(s.Command) == 0 {
		return fmt.Errorf("step %q has no command", s.Name)
	}
	if s.Delay < 0 {
		return fmt.Errorf("step %q has a negative delay", s.Name)
	}
	for _, arg := range s.Command {
		if _, err := parseStepTemplate(arg); err != nil {
			return fmt.Errorf("step %q: %w", s.Name, err)
		}
	}
	if _, err := parseStepTemplate(s.Input); err != nil {
		return fmt.Errorf("step %q input: %w", s.Name, err)
	}
	return nil
}

func (s Step) displayName(index int) string {
	if s.Name != "" {
		return s.Name
	}
	return fmt.Sprintf("step %d", index+1)
}

// stepData is the data available to step templates
type stepData struct {
	*ExecutionContext
	Vars map[string]string
}

func parseStepTemplate(text string) (*template.Template, error) {
	return template.New("arg").Funcs(sprig.TxtFuncMap()).Option("missingkey=error").Parse(text)
}

func renderArg(text string, data stepData) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}
	tmpl, err := parseStepTemplate(text)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// check evaluates the expectation against a result. It returns an empty
// string when satisfied, otherwise the reason it was not.
func (e Expectation) check(result CommandResult) string {
	wantExit := 0
	if e.ExitCode != nil {
		wantExit = *e.ExitCode
	}
	if result.TimedOut() && wantExit != ExitCodeTimedOut {
		return fmt.Sprintf("command timed out: %s", strings.Join(result.Args, " "))
	}
	if result.ExitCode != wantExit {
		return fmt.Sprintf("expected exit code %d but got %d. Stdout: %s, Stderr: %s",
			wantExit, result.ExitCode, strings.TrimSpace(result.Stdout), strings.TrimSpace(result.Stderr))
	}

	for _, s := range e.Contains {
		if !strings.Contains(result.Stdout, s) {
			return fmt.Sprintf("expected output to contain %q", s)
		}
	}
	for _, s := range e.NotContains {
		if strings.Contains(result.Stdout, s) {
			return fmt.Sprintf("expected output not to contain %q", s)
		}
	}

	out := strings.TrimSpace(result.Stdout)
	if e.Equals != nil && out != *e.Equals {
		return fmt.Sprintf("expected output %q but got %q", *e.Equals, out)
	}
	if e.NumberEquals != nil {
		n, err := strconv.ParseFloat(out, 64)
		if err != nil {
			return fmt.Sprintf("expected a number but got %q", out)
		}
		if n != *e.NumberEquals {
			return fmt.Sprintf("expected %s but got %s", formatNumber(*e.NumberEquals), out)
		}
	}
	return ""
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ScriptedLogic turns manifest steps into unit logic. Steps run in order and
// the first unmet expectation fails the unit.
func ScriptedLogic(steps []Step, vars map[string]string) UnitFunc {
	return func(ctx context.Context, gw Gateway, ec *ExecutionContext) Verdict {
		data := stepData{ExecutionContext: ec, Vars: make(map[string]string, len(vars))}
		for k, v := range vars {
			data.Vars[k] = v
		}

		for i, step := range steps {
			name := step.displayName(i)

			if step.Delay > 0 {
				select {
				case <-ctx.Done():
					return Failf("%s: %v", name, ctx.Err())
				case <-time.After(step.Delay):
				}
			}

			args := make([]string, 0, len(step.Command))
			for _, raw := range step.Command {
				arg, err := renderArg(raw, data)
				if err != nil {
					return InvalidResult{Description: fmt.Sprintf("%s: cannot render argument %q: %v", name, raw, err)}
				}
				args = append(args, arg)
			}

			input, err := renderArg(step.Input, data)
			if err != nil {
				return InvalidResult{Description: fmt.Sprintf("%s: cannot render input: %v", name, err)}
			}

			logging.Debug("Steps", "Running %s: %s", name, strings.Join(args, " "))
			var result CommandResult
			if input != "" {
				result = gw.InvokeWithInput(ctx, input, args...)
			} else {
				result = gw.Invoke(ctx, args...)
			}

			if reason := step.Expect.check(result); reason != "" {
				if step.Failure != "" {
					return Failed{Message: step.Failure}
				}
				return Failf("%s: %s", name, reason)
			}

			if step.SaveAs != "" {
				data.Vars[step.SaveAs] = strings.TrimSpace(result.Stdout)
			}
		}
		return Passed{}
	}
}
