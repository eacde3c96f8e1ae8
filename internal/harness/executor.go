package harness

import (
	"context"
	"fmt"
	"os"
	"time"

	"twharness/pkg/logging"
)

// Executor runs a single unit through its whole lifecycle: provision, start,
// wait for readiness, run the logic and tear everything down.
type Executor struct {
	config      HarnessConfig
	provisioner *Provisioner
	controller  *ApplicationController
	logger      TestLogger

	// newGateway builds the gateway handed to unit logic
	newGateway func(ec *ExecutionContext) Gateway
}

// NewExecutor creates an executor
func NewExecutor(config HarnessConfig, provisioner *Provisioner, controller *ApplicationController, logger TestLogger) *Executor {
	return &Executor{
		config:      config,
		provisioner: provisioner,
		controller:  controller,
		logger:      logger,
		newGateway: func(ec *ExecutionContext) Gateway {
			return NewCommandGateway(config, ec, logger)
		},
	}
}

// Run executes a unit and always returns its outcome. Teardown runs whatever
// happened before it, including panics.
func (e *Executor) Run(ctx context.Context, unit TestUnit) (outcome TestOutcome) {
	start := time.Now()
	outcome = TestOutcome{
		Unit:         unit.Name,
		FriendlyName: unit.DisplayName(),
		Trait:        unit.Trait,
		Priority:     unit.Priority,
		Status:       StatusFailed,
		StartTime:    start,
	}

	var (
		ec   *ExecutionContext
		proc *AppProcess
		gw   Gateway
	)

	defer func() {
		if r := recover(); r != nil {
			outcome.Status = StatusFailed
			outcome.Message = fmt.Sprintf("an unexpected error occurred: %v", r)
			e.logger.Error("%s\n", outcome.Message)
		}
		e.teardown(ctx, ec, proc, gw, &outcome)
		outcome.Duration = time.Since(start)
	}()

	var err error
	ec, err = e.provisioner.Provision(ctx, unit.Name)
	if err != nil {
		outcome.Message = fmt.Sprintf("failed to provision environment: %v", err)
		return outcome
	}
	outcome.Port = ec.Port
	gw = e.newGateway(ec)

	copied, err := copyFixtures(unit.FixtureDir(), ec.TempDir)
	if err != nil {
		outcome.Message = fmt.Sprintf("failed to copy test data: %v", err)
		return outcome
	}
	if copied {
		e.logger.Info("Copied test data from %s to %s\n", unit.FixtureDir(), ec.TempDir)
	}

	proc, err = e.controller.Start(ctx, ec)
	if err != nil {
		outcome.Message = fmt.Sprintf("failed to start Tinkwell application: %v", err)
		return outcome
	}

	err = e.controller.sleep(ctx, proc, e.config.Timings.SettleDelay)
	if err == nil {
		err = e.controller.WaitUntilReady(ctx, proc, gw)
	}
	if err != nil {
		outcome.Message = fmt.Sprintf("Tinkwell application did not become ready: %v", err)
		e.logger.Error("%s\n", outcome.Message)
		return outcome
	}

	if unit.Logic == nil {
		outcome.Message = fmt.Sprintf("test '%s' does not define test logic", unit.Name)
		return outcome
	}

	e.logger.Info("Executing test logic for %s...\n", unit.Name)
	verdict, err := runLogic(ctx, unit.Logic, gw, ec)
	if err != nil {
		outcome.Message = fmt.Sprintf("an unexpected error occurred: %v", err)
		e.logger.Error("%s\n", outcome.Message)
		return outcome
	}

	outcome.Status, outcome.Message = interpretVerdict(verdict)
	return outcome
}

// runLogic calls the unit logic converting a panic into an error
func runLogic(ctx context.Context, logic UnitFunc, gw Gateway, ec *ExecutionContext) (verdict Verdict, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	return logic(ctx, gw, ec), nil
}

// interpretVerdict maps the value returned by unit logic to a status and message
func interpretVerdict(v Verdict) (TestStatus, string) {
	switch v := v.(type) {
	case Passed, *Passed:
		return StatusPassed, ""
	case Failed:
		return StatusFailed, v.Message
	case *Failed:
		return StatusFailed, v.Message
	case InvalidResult:
		return StatusFailed, fmt.Sprintf("invalid result from test logic: %s", v.Description)
	case *InvalidResult:
		return StatusFailed, fmt.Sprintf("invalid result from test logic: %s", v.Description)
	case nil:
		return StatusFailed, "test logic returned no result"
	default:
		return StatusFailed, fmt.Sprintf("invalid result from test logic: %T", v)
	}
}

// teardownTimeout bounds the whole teardown: shutdown command, grace period and reaping
func (e *Executor) teardownTimeout() time.Duration {
	t := e.config.Timings
	return t.CommandTimeout + 2*t.ShutdownGrace + 2*gatewayWaitDelay
}

// teardown stops the application and releases the context. It uses its own
// context so it still runs after the batch was cancelled.
func (e *Executor) teardown(ctx context.Context, ec *ExecutionContext, proc *AppProcess, gw Gateway, outcome *TestOutcome) {
	teardownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.teardownTimeout())
	defer cancel()

	e.logger.Info("Shutting down...\n")
	if proc != nil {
		e.logger.Info("Stopping Tinkwell application...\n")
		if err := e.controller.Stop(teardownCtx, proc, gw); err != nil {
			logging.Error("Executor", err, "Failed to stop application for %s", outcome.Unit)
			e.logger.Error("Failed to stop Tinkwell application: %v\n", err)
		}
		if !outcome.Passed() {
			outcome.AppLogs = proc.Logs()
		}
		time.Sleep(e.config.Timings.PostStopDelay)
	}

	if ec == nil {
		return
	}

	e.logger.Info("Removing the isolated environment...\n")
	if err := e.provisioner.Release(ec); err != nil {
		e.logger.Error("Failed to remove temporary directory %s: %v\n", ec.TempDir, err)
	}
	if e.config.KeepTempDir || dirExists(ec.TempDir) {
		outcome.TempDir = ec.TempDir
	}
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
