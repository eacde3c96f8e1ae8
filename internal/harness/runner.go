package harness

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"twharness/pkg/logging"
)

// CancelledMessage is the outcome message of units skipped by cancellation.
const CancelledMessage = "run cancelled before this test started"

// UnitExecutor runs one unit and returns its outcome
type UnitExecutor interface {
	Run(ctx context.Context, unit TestUnit) TestOutcome
}

// Runner executes a plan strictly sequentially, one unit at a time
type Runner struct {
	executor UnitExecutor
	reporter *Reporter
	logger   TestLogger
}

// NewRunner creates a runner
func NewRunner(executor UnitExecutor, reporter *Reporter, logger TestLogger) *Runner {
	return &Runner{
		executor: executor,
		reporter: reporter,
		logger:   logger,
	}
}

// Run executes every unit of the plan in order. Every planned unit gets
// exactly one outcome: once ctx is cancelled the remaining units are
// recorded as failed without being started.
func (r *Runner) Run(ctx context.Context, units []TestUnit) *SuiteResult {
	result := &SuiteResult{
		RunID:     strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
		StartTime: time.Now(),
		Outcomes:  make([]TestOutcome, 0, len(units)),
	}

	logging.Info("Runner", "Running %d test(s), run %s", len(units), result.RunID)

	for _, unit := range units {
		if ctx.Err() != nil {
			outcome := TestOutcome{
				Unit:         unit.Name,
				FriendlyName: unit.DisplayName(),
				Trait:        unit.Trait,
				Priority:     unit.Priority,
				Status:       StatusFailed,
				Message:      CancelledMessage,
				StartTime:    time.Now(),
			}
			result.Outcomes = append(result.Outcomes, outcome)
			r.reporter.ReportUnitResult(outcome)
			continue
		}

		r.reporter.ReportUnitStart(unit)
		outcome := r.executor.Run(ctx, unit)
		result.Outcomes = append(result.Outcomes, outcome)
		r.reporter.ReportUnitResult(outcome)
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	result.Tally()

	return result
}
