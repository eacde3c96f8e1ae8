package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"twharness/internal/harness"
)

func newRunCmd() *cobra.Command {
	opts := &harnessOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the integration tests",
		Long: `Run discovers the test manifests (test_*.yaml) in the test directory,
orders them by priority and runs them one at a time, each against its own
freshly started Tinkwell application.

Example usage:
  twharness run --app-path ./publish                       # Run all tests
  twharness run --app-path ./publish --trait smoke          # Run tests with a trait
  twharness run --app-path ./publish --test-name example    # Run a single test
  twharness run --app-path ./publish --keep-temp-dir        # Keep the environments
  twharness run --app-path ./publish --junit out/junit.xml  # Write a JUnit report`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(cmd, opts)
		},
	}

	opts.addRunFlags(cmd)
	return cmd
}

func runTests(cmd *cobra.Command, opts *harnessOptions) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Remaining tests are marked failed, the running one is torn down
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			fmt.Fprintln(cmd.ErrOrStderr(), "\nReceived interrupt signal, stopping tests gracefully...")
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := opts.initLogging(cmd.ErrOrStderr()); err != nil {
		return err
	}

	config, err := opts.buildConfig(cmd)
	if err != nil {
		return err
	}

	palette := harness.NewPalette(!config.NoColor)
	logger := harness.NewWriterLogger(cmd.OutOrStdout(), cmd.ErrOrStderr(), config.Verbose, config.Debug, palette)
	reporter := harness.NewWriterReporter(cmd.OutOrStdout(), palette, config.Verbose, config.Debug)

	h, err := harness.NewHarness(config, logger, reporter)
	if err != nil {
		return err
	}

	units, err := h.Plan()
	if err != nil {
		var noTests *harness.NoTestsError
		if errors.As(err, &noTests) {
			fmt.Fprintf(cmd.OutOrStdout(), "No tests found in %s\n", config.TestDir)
		}
		return err
	}

	_, err = h.Execute(ctx, units)
	return err
}
