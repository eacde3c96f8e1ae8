package harness

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady is returned when the supervisor kept reporting Loading.
	ErrNotReady = errors.New("supervisor did not become ready")

	// ErrSupervisorError is returned when a readiness probe reported an error.
	ErrSupervisorError = errors.New("supervisor ping failed with an error")

	// ErrProcessExited is returned when the application exited while waiting for readiness.
	ErrProcessExited = errors.New("application exited before becoming ready")

	// ErrTestNotFound is returned when an explicitly requested unit does not exist.
	ErrTestNotFound = errors.New("test not found")
)

// SetupError is a fatal error raised before any unit runs: missing
// artifacts, a bad test directory, a malformed manifest or an unknown
// test name.
type SetupError struct {
	Op  string
	Err error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

func newSetupError(op string, err error) *SetupError {
	return &SetupError{Op: op, Err: err}
}

// NoTestsError is returned when discovery produced an empty plan.
type NoTestsError struct {
	Dir   string
	Trait string
}

func (e *NoTestsError) Error() string {
	if e.Trait != "" {
		return fmt.Sprintf("no tests with trait %q found in %s", e.Trait, e.Dir)
	}
	return fmt.Sprintf("no tests found in %s", e.Dir)
}

// TestFailureError reports that the batch completed with failed units.
type TestFailureError struct {
	Failed int
	Total  int
}

func (e *TestFailureError) Error() string {
	return fmt.Sprintf("%d of %d test(s) failed", e.Failed, e.Total)
}
