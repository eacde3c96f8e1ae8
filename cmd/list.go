package cmd

import (
	"github.com/spf13/cobra"

	"twharness/internal/harness"
)

func newListCmd() *cobra.Command {
	opts := &harnessOptions{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print the execution plan without running it",
		Long: `List discovers the tests exactly like run does and prints them in
execution order. No application is started.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listTests(cmd, opts)
		},
	}

	opts.addSelectionFlags(cmd)
	return cmd
}

func listTests(cmd *cobra.Command, opts *harnessOptions) error {
	if err := opts.initLogging(cmd.ErrOrStderr()); err != nil {
		return err
	}

	config, err := opts.buildConfig(cmd)
	if err != nil {
		return err
	}

	palette := harness.NewPalette(!config.NoColor)
	logger := harness.NewWriterLogger(cmd.OutOrStdout(), cmd.ErrOrStderr(), config.Verbose, config.Debug, palette)

	units, err := harness.PlanUnits(harness.NewScout(nil, logger), config)
	if err != nil {
		return err
	}

	reporter := harness.NewWriterReporter(cmd.OutOrStdout(), palette, config.Verbose, config.Debug)
	reporter.ReportPlan(units)
	if config.Verbose {
		reporter.ReportRegistered(harness.DefaultRegistry().Names())
	}
	return nil
}
