package cmd

import (
	"io"

	"github.com/spf13/cobra"

	"twharness/internal/harness"
	"twharness/pkg/logging"
)

// harnessOptions holds the flags shared by run and list
type harnessOptions struct {
	configPath  string
	appPath     string
	testDir     string
	trait       string
	testName    string
	keepTempDir bool
	verbose     bool
	debug       bool
	noColor     bool
	logLevel    string
	reportJSON  string
	junit       string
	metricsFile string
}

func (o *harnessOptions) addSelectionFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.configPath, "config", "", "Path to a YAML configuration file")
	cmd.Flags().StringVar(&o.testDir, "test-dir", "tests", "Directory containing the test manifests")
	cmd.Flags().StringVar(&o.trait, "trait", "", "Run only tests with this trait")
	cmd.Flags().StringVar(&o.testName, "test-name", "", "Run a single test by name (with or without the test_ prefix)")
	cmd.Flags().BoolVar(&o.verbose, "verbose", false, "Enable verbose output")
	cmd.Flags().BoolVar(&o.debug, "debug", false, "Enable debug output")
	cmd.Flags().BoolVar(&o.noColor, "no-color", false, "Disable colored output")
	cmd.Flags().StringVar(&o.logLevel, "log-level", "", "Diagnostic log level (debug, info, warn, error), overrides --verbose and --debug")
}

func (o *harnessOptions) addRunFlags(cmd *cobra.Command) {
	o.addSelectionFlags(cmd)
	cmd.Flags().StringVar(&o.appPath, "app-path", "", "Directory containing the Tinkwell supervisor and tw CLI (required)")
	cmd.Flags().BoolVar(&o.keepTempDir, "keep-temp-dir", false, "Keep the temporary directory of each test")
	cmd.Flags().StringVar(&o.reportJSON, "report-json", "", "Write a JSON report to this file")
	cmd.Flags().StringVar(&o.junit, "junit", "", "Write a JUnit XML report to this file")
	cmd.Flags().StringVar(&o.metricsFile, "metrics-file", "", "Write Prometheus metrics in text format to this file")
}

// buildConfig layers the defaults, the optional configuration file and the
// flags explicitly set on the command line
func (o *harnessOptions) buildConfig(cmd *cobra.Command) (harness.HarnessConfig, error) {
	config := harness.DefaultHarnessConfig()
	if o.configPath != "" {
		var err error
		config, err = harness.LoadConfigFile(o.configPath)
		if err != nil {
			return config, err
		}
	}

	flags := cmd.Flags()
	config.AppPath = o.appPath
	config.Trait = o.trait
	config.TestName = o.testName
	config.Verbose = o.verbose
	config.Debug = o.debug

	if flags.Changed("test-dir") || config.TestDir == "" {
		config.TestDir = o.testDir
	}
	if flags.Changed("keep-temp-dir") {
		config.KeepTempDir = o.keepTempDir
	}
	if flags.Changed("no-color") {
		config.NoColor = o.noColor
	}
	if flags.Changed("report-json") {
		config.Reports.JSONPath = o.reportJSON
	}
	if flags.Changed("junit") {
		config.Reports.JUnitPath = o.junit
	}
	if flags.Changed("metrics-file") {
		config.Reports.MetricsPath = o.metricsFile
	}

	return config, nil
}

// initLogging configures the diagnostic logger from the output flags
func (o *harnessOptions) initLogging(w io.Writer) error {
	level := logging.LevelWarn
	switch {
	case o.logLevel != "":
		parsed, err := logging.ParseLogLevel(o.logLevel)
		if err != nil {
			return err
		}
		level = parsed
	case o.debug:
		level = logging.LevelDebug
	case o.verbose:
		level = logging.LevelInfo
	}
	logging.InitForCLI(level, w)
	return nil
}
