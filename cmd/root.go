package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"twharness/internal/harness"

	// registers the Go test units
	_ "twharness/internal/units"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates that every test passed.
	ExitCodeSuccess = 0
	// ExitCodeTestFailure indicates that at least one test failed.
	ExitCodeTestFailure = 1
	// ExitCodeSetupError indicates the run could not start: missing
	// artifacts, a bad test directory, a malformed manifest or bad arguments.
	ExitCodeSetupError = 2
	// ExitCodeNoTests indicates that discovery found nothing to run.
	ExitCodeNoTests = 3
)

const versionTemplate = `{{printf "twharness version %s\n" .Version}}`

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "twharness",
	Short: "Run integration tests against a live Tinkwell application",
	Long: `twharness runs integration tests against a real Tinkwell installation.

Every test gets a fresh temporary directory, its own TCP port and a
self-signed certificate. The supervisor is started, probed until it is
ready, exercised through the tw command line and shut down again before
the next test starts.`,
	SilenceUsage: true,
}

// SetVersion sets the version for the root command.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute runs the root command and exits with a code describing the result.
func Execute() {
	rootCmd.SetVersionTemplate(versionTemplate)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode maps an error returned by a command to a process exit code.
func getExitCode(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}

	var failure *harness.TestFailureError
	if errors.As(err, &failure) {
		return ExitCodeTestFailure
	}

	var noTests *harness.NoTestsError
	if errors.As(err, &noTests) {
		return ExitCodeNoTests
	}

	// Setup errors and anything cobra rejects before a run starts
	return ExitCodeSetupError
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newListCmd())
}
