package harness

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"golang.org/x/term"

	"twharness/pkg/logging"
)

// PingStatus is the supervisor state reported by a readiness probe.
type PingStatus string

const (
	PingOK      PingStatus = "OK"
	PingLoading PingStatus = "Loading"
	PingError   PingStatus = "Error"
)

// Control-surface commands used to drive the supervisor.
var (
	pingCommand     = []string{"supervisor", "send", "ping", "-y", "--stdout-format=tooling"}
	shutdownCommand = []string{"supervisor", "send", "shutdown", "-y", "--stdout-format=tooling"}
)

// Ping sends one readiness probe. A non-zero exit or unexpected output is PingError.
func Ping(ctx context.Context, gw Gateway) (PingStatus, CommandResult) {
	result := gw.Invoke(ctx, pingCommand...)
	if result.ExitCode != 0 {
		return PingError, result
	}

	switch strings.TrimSpace(result.Stdout) {
	case string(PingOK):
		return PingOK, result
	case string(PingLoading):
		return PingLoading, result
	default:
		return PingError, result
	}
}

// syncBuffer is a bytes.Buffer safe for concurrent writers and readers
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// logCapture captures stdout and stderr from the application
type logCapture struct {
	stdout syncBuffer
	stderr syncBuffer
}

// getLogs returns the captured logs
func (lc *logCapture) getLogs() *AppLogs {
	stdout := lc.stdout.String()
	stderr := lc.stderr.String()

	combined := ""
	if stdout != "" {
		combined += "=== STDOUT ===\n" + stdout
	}
	if stderr != "" {
		if combined != "" {
			combined += "\n"
		}
		combined += "=== STDERR ===\n" + stderr
	}

	return &AppLogs{
		Stdout:   stdout,
		Stderr:   stderr,
		Combined: combined,
	}
}

// AppProcess is a running instance of the application under test
type AppProcess struct {
	cmd     *exec.Cmd
	capture *logCapture
	done    chan struct{}
	waitErr error
}

// PID returns the process id of the application
func (p *AppProcess) PID() int {
	return p.cmd.Process.Pid
}

// Exited reports whether the application has terminated
func (p *AppProcess) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Done is closed once the application has terminated and been reaped
func (p *AppProcess) Done() <-chan struct{} {
	return p.done
}

// ExitDescription describes how the application terminated
func (p *AppProcess) ExitDescription() string {
	if !p.Exited() {
		return "still running"
	}
	if p.waitErr != nil {
		return p.waitErr.Error()
	}
	return p.cmd.ProcessState.String()
}

// Logs returns the captured output, nil when output was inherited
func (p *AppProcess) Logs() *AppLogs {
	if p.capture == nil {
		return nil
	}
	return p.capture.getLogs()
}

// ApplicationController starts, probes and stops the application under test
type ApplicationController struct {
	config HarnessConfig
	logger TestLogger
	out    io.Writer
}

// NewApplicationController creates a controller writing progress to stdout
func NewApplicationController(config HarnessConfig, logger TestLogger) *ApplicationController {
	return &ApplicationController{
		config: config,
		logger: logger,
		out:    os.Stdout,
	}
}

func (c *ApplicationController) commandLine(ec *ExecutionContext) (string, []string) {
	args := append([]string{ec.StartingPortArg()}, c.config.SupervisorArgs...)
	if c.config.Launcher == "" {
		return ec.SupervisorPath, args
	}
	return c.config.Launcher, append([]string{ec.SupervisorPath}, args...)
}

// Start launches the supervisor for the given context. The process is not
// bound to ctx: it lives until Stop so teardown can always shut it down.
func (c *ApplicationController) Start(ctx context.Context, ec *ExecutionContext) (*AppProcess, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name, args := c.commandLine(ec)
	cmd := exec.Command(name, args...)
	configureProcAttr(cmd)
	cmd.Dir = ec.TempDir
	cmd.Env = append(os.Environ(), ec.Environ()...)
	cmd.WaitDelay = c.config.Timings.ShutdownGrace

	proc := &AppProcess{cmd: cmd, done: make(chan struct{})}
	if c.logger.IsVerboseEnabled() {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	} else {
		proc.capture = &logCapture{}
		cmd.Stdout = &proc.capture.stdout
		cmd.Stderr = &proc.capture.stderr
	}

	c.logger.Info("Starting Tinkwell application %s\n", ec.SupervisorPath)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start application: %w", err)
	}

	go func() {
		proc.waitErr = cmd.Wait()
		close(proc.done)
	}()

	c.logger.Info("Application started with PID %d\n", cmd.Process.Pid)
	logging.Debug("Controller", "Started %s %s (PID %d)", name, strings.Join(args, " "), cmd.Process.Pid)
	return proc, nil
}

// sleep waits for d, returning early with an error if ctx is cancelled or
// the application exits
func (c *ApplicationController) sleep(ctx context.Context, proc *AppProcess, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-proc.Done():
		return fmt.Errorf("%w: %s", ErrProcessExited, proc.ExitDescription())
	case <-timer.C:
		return nil
	}
}

// WaitUntilReady probes the supervisor until it reports OK. Loading is
// retried up to the configured number of attempts; an error aborts at once.
func (c *ApplicationController) WaitUntilReady(ctx context.Context, proc *AppProcess, gw Gateway) error {
	t := c.config.Timings
	stop := c.startSpinner("Waiting for Tinkwell to become ready...")
	defer stop()

	c.logger.Info("Waiting %v for Tinkwell to initialize...\n", t.InitialWait)
	if err := c.sleep(ctx, proc, t.InitialWait); err != nil {
		return err
	}

	for attempt := 1; attempt <= t.MaxPingAttempts; attempt++ {
		if proc.Exited() {
			return fmt.Errorf("%w: %s", ErrProcessExited, proc.ExitDescription())
		}

		c.logger.Info("Pinging Tinkwell supervisor (Attempt %d/%d)...\n", attempt, t.MaxPingAttempts)
		status, result := Ping(ctx, gw)

		switch status {
		case PingOK:
			c.logger.Info("Tinkwell supervisor is OK.\n")
			return nil
		case PingLoading:
			c.logger.Info("Tinkwell supervisor is Loading.\n")
		default:
			return fmt.Errorf("%w: %s", ErrSupervisorError, describePing(result))
		}

		if attempt < t.MaxPingAttempts {
			if err := c.sleep(ctx, proc, t.RetryDelay); err != nil {
				return err
			}
		}
	}

	return fmt.Errorf("%w after %d attempts", ErrNotReady, t.MaxPingAttempts)
}

func describePing(result CommandResult) string {
	if result.ExitCode != 0 {
		msg := strings.TrimSpace(result.Stderr)
		if msg == "" {
			msg = strings.TrimSpace(result.Stdout)
		}
		return fmt.Sprintf("exit code %d: %s", result.ExitCode, msg)
	}
	return fmt.Sprintf("unexpected status %q", strings.TrimSpace(result.Stdout))
}

// Stop shuts the application down: a graceful shutdown command first, then a
// kill of the process group once the grace period elapses. It never blocks
// longer than the grace period plus the command timeout.
func (c *ApplicationController) Stop(ctx context.Context, proc *AppProcess, gw Gateway) (err error) {
	if proc == nil {
		return nil
	}
	if proc.Exited() {
		c.logger.Info("Application (PID: %d) was already stopped.\n", proc.PID())
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Error during graceful shutdown attempt for PID %d: %v. Forcing kill...\n", proc.PID(), r)
			err = c.kill(proc)
		}
	}()

	if gw != nil {
		gw.Invoke(ctx, shutdownCommand...)
	}

	timer := time.NewTimer(c.config.Timings.ShutdownGrace)
	defer timer.Stop()

	select {
	case <-proc.Done():
		c.logger.Info("Application (PID: %d) terminated gracefully.\n", proc.PID())
		return nil
	case <-timer.C:
		c.logger.Info("Application (PID: %d) did not terminate gracefully, killing...\n", proc.PID())
		return c.kill(proc)
	}
}

func (c *ApplicationController) kill(proc *AppProcess) error {
	if err := killProcessGroup(proc.PID()); err != nil {
		logging.Warn("Controller", "Process group kill failed for PID %d: %v", proc.PID(), err)
		if err := proc.cmd.Process.Kill(); err != nil && !proc.Exited() {
			return fmt.Errorf("failed to kill application: %w", err)
		}
	}

	// Reaping is bounded by WaitDelay on the command
	select {
	case <-proc.Done():
		return nil
	case <-time.After(c.config.Timings.ShutdownGrace + gatewayWaitDelay):
		return fmt.Errorf("application (PID: %d) did not exit after kill", proc.PID())
	}
}

// startSpinner shows a spinner on interactive terminals when the
// application output is not streamed. It returns the stop function.
func (c *ApplicationController) startSpinner(message string) func() {
	if c.logger.IsVerboseEnabled() || c.logger.IsDebugEnabled() || !isTerminal(c.out) {
		return func() {}
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(c.out))
	s.Suffix = " " + message
	s.Start()
	return s.Stop
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
