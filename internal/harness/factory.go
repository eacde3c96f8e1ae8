package harness

import (
	"context"

	"twharness/pkg/logging"
)

// Harness holds all components needed for a test run
type Harness struct {
	Config      HarnessConfig
	Artifacts   Artifacts
	Logger      TestLogger
	Scout       *Scout
	Provisioner *Provisioner
	Controller  *ApplicationController
	Executor    *Executor
	Runner      *Runner
	Reporter    *Reporter
}

// NewHarness validates the configuration, locates the application
// artifacts and wires every component. Units resolve Go logic from the
// default registry.
func NewHarness(config HarnessConfig, logger TestLogger, reporter *Reporter) (*Harness, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}

	artifacts, err := ResolveArtifacts(config)
	if err != nil {
		return nil, err
	}

	provisioner := NewProvisioner(config, artifacts, logger)
	controller := NewApplicationController(config, logger)
	executor := NewExecutor(config, provisioner, controller, logger)

	return &Harness{
		Config:      config,
		Artifacts:   artifacts,
		Logger:      logger,
		Scout:       NewScout(DefaultRegistry(), logger),
		Provisioner: provisioner,
		Controller:  controller,
		Executor:    executor,
		Runner:      NewRunner(executor, reporter, logger),
		Reporter:    reporter,
	}, nil
}

// Plan discovers the units selected by the configuration. An empty plan
// is reported as a NoTestsError.
func (h *Harness) Plan() ([]TestUnit, error) {
	return PlanUnits(h.Scout, h.Config)
}

// PlanUnits discovers the units selected by config using scout
func PlanUnits(scout *Scout, config HarnessConfig) ([]TestUnit, error) {
	units, err := scout.Discover(config.TestDir, config.Trait, config.TestName)
	if err != nil {
		return nil, err
	}
	if len(units) == 0 {
		return nil, &NoTestsError{Dir: config.TestDir, Trait: config.Trait}
	}
	return units, nil
}

// Execute runs the plan, prints the summary and writes the configured
// reports. It returns a TestFailureError when any unit failed.
func (h *Harness) Execute(ctx context.Context, units []TestUnit) (*SuiteResult, error) {
	if h.Config.CleanupStaleProcesses {
		CleanupStaleSupervisorProcesses(h.Logger, h.Config.TempRoot)
	}

	h.Reporter.ReportStart(h.Config, units)
	result := h.Runner.Run(ctx, units)
	exitCode := h.Reporter.Report(result)

	if err := h.Reporter.WriteReports(result, h.Config.Reports); err != nil {
		logging.Error("Harness", err, "Failed to write reports")
		h.Logger.Error("Failed to write reports: %v\n", err)
	}

	if exitCode != ExitCodeAllPassed {
		return result, &TestFailureError{Failed: result.Failed, Total: len(result.Outcomes)}
	}
	return result, nil
}
