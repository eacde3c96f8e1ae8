package harness

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"time"
)

// TestLogger provides logging functionality for console output during a run
type TestLogger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Error(format string, args ...interface{})
	IsDebugEnabled() bool
	IsVerboseEnabled() bool
}

// TestStatus represents the outcome of a single test unit
type TestStatus string

const (
	StatusPassed TestStatus = "PASSED"
	StatusFailed TestStatus = "FAILED"
)

// DefaultPriority is assigned to units whose manifest does not declare one.
const DefaultPriority = 100

// TestUnit is a single discoverable test case.
type TestUnit struct {
	// Name is the manifest file stem, e.g. "test_runners_are_loaded".
	Name string

	// SourcePath is the manifest file the unit was discovered from.
	SourcePath string

	// FriendlyName is used in console output and reports.
	FriendlyName string

	Description string

	// Trait is an optional tag used to select units.
	Trait string

	// Priority orders units within a batch, lower runs first.
	Priority int

	// Steps is the scripted logic declared in the manifest, if any.
	Steps []Step

	// Logic is the resolved unit logic. Nil when the unit defines none.
	Logic UnitFunc
}

// DisplayName returns the friendly name, falling back to the unit name.
func (u TestUnit) DisplayName() string {
	if u.FriendlyName != "" {
		return u.FriendlyName
	}
	return u.Name
}

// FixtureDir returns the directory whose contents are copied into the
// unit's working directory before the application starts.
func (u TestUnit) FixtureDir() string {
	return filepath.Join(filepath.Dir(u.SourcePath), u.Name)
}

// Environment variable names understood by the Tinkwell supervisor.
const (
	EnvWorkingDirPath    = "TINKWELL_WORKING_DIR_PATH"
	EnvAppDataPath       = "TINKWELL_APP_DATA_PATH"
	EnvUserDataPath      = "TINKWELL_USER_DATA_PATH"
	EnvCertPath          = "TINKWELL_CERT_PATH"
	EnvCertPass          = "TINKWELL_CERT_PASS"
	EnvClientCertPath    = "TINKWELL_CLIENT_CERT_PATH"
	EnvStartingPort      = "TINKWELL_STARTING_PORT"
	StartingPortArgument = "--Supervisor:StartingPort"
)

// ExecutionContext is the per-unit bundle of provisioned resources.
// A context is created for exactly one unit and never reused.
type ExecutionContext struct {
	RunID string

	AppPath        string
	SupervisorPath string
	CLIPath        string

	TempDir     string
	UserDataDir string
	AppDataDir  string
	CertDir     string

	Port           int
	PortIsFallback bool

	ServerCertificatePath string
	CertificatePassword   string
	ClientCertificatePath string
}

// Environ returns the variables handed to every process started for this context.
func (ec *ExecutionContext) Environ() []string {
	return []string{
		EnvWorkingDirPath + "=" + ec.TempDir,
		EnvAppDataPath + "=" + ec.AppDataDir,
		EnvUserDataPath + "=" + ec.UserDataDir,
		EnvCertPath + "=" + ec.ServerCertificatePath,
		EnvCertPass + "=" + ec.CertificatePassword,
		EnvClientCertPath + "=" + ec.ClientCertificatePath,
		EnvStartingPort + "=" + strconv.Itoa(ec.Port),
	}
}

// StartingPortArg renders the supervisor startup argument carrying the port.
func (ec *ExecutionContext) StartingPortArg() string {
	return fmt.Sprintf("%s=%d", StartingPortArgument, ec.Port)
}

// Sentinel exit codes reported by the command gateway. Real process exit
// codes are never negative.
const (
	ExitCodeTimedOut     = -1
	ExitCodeGatewayError = -2
)

// TimedOutMessage is the stderr text of a timed out command.
const TimedOutMessage = "Command timed out."

// CommandResult is the captured result of a single control-surface invocation.
type CommandResult struct {
	Args     []string      `json:"args"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exitCode"`
	Duration time.Duration `json:"duration"`
}

// Succeeded reports whether the command exited with code zero.
func (r CommandResult) Succeeded() bool {
	return r.ExitCode == 0
}

// TimedOut reports whether the command was killed by the gateway timeout.
func (r CommandResult) TimedOut() bool {
	return r.ExitCode == ExitCodeTimedOut
}

// Gateway drives the Tinkwell command-line control surface.
// Implementations never return errors; failures are encoded in the result.
type Gateway interface {
	Invoke(ctx context.Context, args ...string) CommandResult
	InvokeWithInput(ctx context.Context, input string, args ...string) CommandResult
}

// Verdict is the value returned by unit logic. It is one of Passed, Failed
// or InvalidResult.
type Verdict interface {
	isVerdict()
}

// Passed reports a successful unit.
type Passed struct{}

// Failed reports a failed unit. An empty message is a plain failure.
type Failed struct {
	Message string
}

// InvalidResult reports logic that could not produce a meaningful verdict.
type InvalidResult struct {
	Description string
}

func (Passed) isVerdict()        {}
func (Failed) isVerdict()        {}
func (InvalidResult) isVerdict() {}

// Failf is a convenience for building a Failed verdict.
func Failf(format string, args ...interface{}) Verdict {
	return Failed{Message: fmt.Sprintf(format, args...)}
}

// UnitFunc is the logic of a test unit. It runs against a ready application.
type UnitFunc func(ctx context.Context, gw Gateway, ec *ExecutionContext) Verdict

// AppLogs contains the output captured from the application under test
type AppLogs struct {
	Stdout   string `json:"stdout,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
	Combined string `json:"combined,omitempty"`
}

// TestOutcome is the result of running one unit.
type TestOutcome struct {
	Unit         string        `json:"unit"`
	FriendlyName string        `json:"friendlyName"`
	Trait        string        `json:"trait,omitempty"`
	Priority     int           `json:"priority"`
	Status       TestStatus    `json:"status"`
	Message      string        `json:"message,omitempty"`
	StartTime    time.Time     `json:"startTime"`
	Duration     time.Duration `json:"duration"`
	TempDir      string        `json:"tempDir,omitempty"`
	Port         int           `json:"port,omitempty"`
	AppLogs      *AppLogs      `json:"appLogs,omitempty"`
}

// Passed reports whether the outcome is PASSED.
func (o TestOutcome) Passed() bool {
	return o.Status == StatusPassed
}

// SuiteResult collects the outcomes of a whole batch, in plan order.
type SuiteResult struct {
	RunID     string        `json:"runId"`
	StartTime time.Time     `json:"startTime"`
	EndTime   time.Time     `json:"endTime"`
	Duration  time.Duration `json:"duration"`
	Outcomes  []TestOutcome `json:"outcomes"`
	Passed    int           `json:"passed"`
	Failed    int           `json:"failed"`
}

// Tally recomputes the pass/fail counters from the outcomes.
func (r *SuiteResult) Tally() {
	r.Passed, r.Failed = 0, 0
	for _, o := range r.Outcomes {
		if o.Passed() {
			r.Passed++
		} else {
			r.Failed++
		}
	}
}

// AllPassed reports whether no outcome failed.
func (r *SuiteResult) AllPassed() bool {
	for _, o := range r.Outcomes {
		if !o.Passed() {
			return false
		}
	}
	return true
}
