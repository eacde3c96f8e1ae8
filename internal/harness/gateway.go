package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"twharness/pkg/logging"
)

// gatewayWaitDelay bounds how long a finished or cancelled command may keep
// its output pipes open through orphaned children.
const gatewayWaitDelay = 2 * time.Second

// CommandGateway invokes the Tinkwell CLI for one execution context.
type CommandGateway struct {
	launcher string
	cliPath  string
	env      []string
	workDir  string
	timeout  time.Duration
	logger   TestLogger
}

// NewCommandGateway creates a gateway bound to the given execution context
func NewCommandGateway(config HarnessConfig, ec *ExecutionContext, logger TestLogger) *CommandGateway {
	return &CommandGateway{
		launcher: config.Launcher,
		cliPath:  ec.CLIPath,
		env:      append(os.Environ(), ec.Environ()...),
		workDir:  ec.TempDir,
		timeout:  config.Timings.CommandTimeout,
		logger:   logger,
	}
}

// Invoke runs the CLI with the given arguments
func (g *CommandGateway) Invoke(ctx context.Context, args ...string) CommandResult {
	return g.run(ctx, nil, args)
}

// InvokeWithInput runs the CLI feeding input to its standard input
func (g *CommandGateway) InvokeWithInput(ctx context.Context, input string, args ...string) CommandResult {
	return g.run(ctx, strings.NewReader(input), args)
}

func (g *CommandGateway) commandLine(args []string) (string, []string) {
	if g.launcher == "" {
		return g.cliPath, args
	}
	return g.launcher, append([]string{g.cliPath}, args...)
}

func (g *CommandGateway) run(ctx context.Context, stdin *strings.Reader, args []string) CommandResult {
	start := time.Now()
	result := CommandResult{Args: append([]string(nil), args...)}

	runCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	name, argv := g.commandLine(args)
	cmd := exec.CommandContext(runCtx, name, argv...)
	configureProcAttr(cmd)
	cmd.Cancel = func() error {
		return killProcessGroup(cmd.Process.Pid)
	}
	cmd.WaitDelay = gatewayWaitDelay
	cmd.Env = g.env
	if info, err := os.Stat(g.workDir); err == nil && info.IsDir() {
		cmd.Dir = g.workDir
	}
	if stdin != nil {
		cmd.Stdin = stdin
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logging.Debug("Gateway", "Running %s %s", name, strings.Join(argv, " "))
	err := cmd.Run()
	result.Duration = time.Since(start)
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()

	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		result.ExitCode = ExitCodeTimedOut
		result.Stdout = ""
		result.Stderr = TimedOutMessage
		g.logger.Error("Command timed out after %v: %s\n", g.timeout, g.describe(args))
		return result
	case err == nil, errors.Is(err, exec.ErrWaitDelay):
		result.ExitCode = cmd.ProcessState.ExitCode()
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
			result.ExitCode = exitErr.ExitCode()
		} else {
			// Launch failures, cancellation and signal deaths have no real exit code
			result.ExitCode = ExitCodeGatewayError
			result.Stdout = ""
			result.Stderr = gatewayErrorText(ctx, err)
			g.logger.Error("Error running CLI command: %s\n", result.Stderr)
			return result
		}
	}

	if result.ExitCode != 0 {
		g.reportFailure(args, result)
	}
	return result
}

func gatewayErrorText(ctx context.Context, err error) string {
	if ctx.Err() != nil {
		return fmt.Sprintf("command cancelled: %v", ctx.Err())
	}
	return err.Error()
}

func (g *CommandGateway) describe(args []string) string {
	name, argv := g.commandLine(args)
	return strings.TrimSpace(name + " " + strings.Join(argv, " "))
}

// reportFailure prints the diagnostic block of a command with a non-zero exit
func (g *CommandGateway) reportFailure(args []string, result CommandResult) {
	var b strings.Builder
	fmt.Fprintf(&b, "Command: %s\n", g.describe(args))
	fmt.Fprintf(&b, "Exit code: %d\n", result.ExitCode)
	fmt.Fprintf(&b, "stdout:\n%s\n", strings.TrimSpace(result.Stdout))
	if result.Stderr != "" {
		fmt.Fprintf(&b, "stderr:\n%s\n", strings.TrimSpace(result.Stderr))
	}
	g.logger.Error("%s", b.String())
}
