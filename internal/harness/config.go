package harness

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"twharness/pkg/logging"
)

// Certificate sources.
const (
	CertificateSourceBuiltin = "builtin"
	CertificateSourceCLI     = "cli"
)

// Timings controls every wait performed during a unit's lifecycle.
type Timings struct {
	// InitialWait is slept once before the first readiness probe.
	InitialWait time.Duration `yaml:"initial_wait"`
	// RetryDelay is slept between readiness probes reporting Loading.
	RetryDelay time.Duration `yaml:"retry_delay"`
	// MaxPingAttempts bounds the number of readiness probes.
	MaxPingAttempts int `yaml:"max_ping_attempts"`
	// SettleDelay is slept after the application starts, before probing.
	SettleDelay time.Duration `yaml:"settle_delay"`
	// ShutdownGrace is how long a graceful shutdown may take before the kill.
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`
	// PostStopDelay is slept after the application stopped.
	PostStopDelay time.Duration `yaml:"post_stop_delay"`
	// CommandTimeout bounds every control-surface invocation.
	CommandTimeout time.Duration `yaml:"command_timeout"`
}

// ReportConfig lists the optional machine-readable report sinks.
type ReportConfig struct {
	JSONPath    string `yaml:"json"`
	JUnitPath   string `yaml:"junit"`
	MetricsPath string `yaml:"metrics"`
}

// HarnessConfig contains the configuration of a test run. Fields tagged
// with "-" only come from command-line flags.
type HarnessConfig struct {
	AppPath  string `yaml:"-"`
	TestDir  string `yaml:"test_dir"`
	Trait    string `yaml:"-"`
	TestName string `yaml:"-"`

	KeepTempDir bool `yaml:"keep_temp_dir"`
	Verbose     bool `yaml:"-"`
	Debug       bool `yaml:"-"`
	NoColor     bool `yaml:"no_color"`

	// Launcher runs the .NET artifacts. Empty executes them directly.
	Launcher           string   `yaml:"launcher"`
	SupervisorArtifact string   `yaml:"supervisor_artifact"`
	CLIArtifact        string   `yaml:"cli_artifact"`
	SupervisorArgs     []string `yaml:"supervisor_args"`

	// TempRoot is the parent of every unit's temp directory. Empty uses os.TempDir.
	TempRoot    string `yaml:"temp_root"`
	DefaultPort int    `yaml:"default_port"`

	CertificateSource     string        `yaml:"certificate_source"`
	CertificateCommonName string        `yaml:"certificate_common_name"`
	CertificatePassword   string        `yaml:"certificate_password"`
	CertificateValidity   time.Duration `yaml:"certificate_validity"`

	CleanupStaleProcesses bool `yaml:"cleanup_stale_processes"`

	Timings Timings      `yaml:"timings"`
	Reports ReportConfig `yaml:"reports"`
}

// DefaultHarnessConfig returns the default configuration
func DefaultHarnessConfig() HarnessConfig {
	return HarnessConfig{
		TestDir:               "tests",
		Launcher:              "dotnet",
		SupervisorArtifact:    "Tinkwell.Supervisor.dll",
		CLIArtifact:           "tw.dll",
		DefaultPort:           5000,
		CertificateSource:     CertificateSourceBuiltin,
		CertificateCommonName: "Tinkwell-Int-Tests",
		CertificatePassword:   "1234",
		CertificateValidity:   24 * time.Hour,
		CleanupStaleProcesses: true,
		Timings: Timings{
			InitialWait:     5 * time.Second,
			RetryDelay:      2 * time.Second,
			MaxPingAttempts: 5,
			SettleDelay:     3 * time.Second,
			ShutdownGrace:   5 * time.Second,
			PostStopDelay:   1 * time.Second,
			CommandTimeout:  30 * time.Second,
		},
	}
}

// LoadConfigFile reads a YAML configuration file on top of the defaults.
// Unknown keys are rejected.
func LoadConfigFile(path string) (HarnessConfig, error) {
	config := DefaultHarnessConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return config, newSetupError("read config file", err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&config); err != nil && !errors.Is(err, io.EOF) {
		return config, newSetupError("parse config file", fmt.Errorf("%s: %w", path, err))
	}

	logging.Debug("Config", "Loaded configuration from %s", path)
	return config, nil
}

// ValidateConfig validates a harness configuration
func ValidateConfig(config HarnessConfig) error {
	if config.AppPath == "" {
		return newSetupError("validate config", errors.New("application path is required"))
	}
	if config.TestDir == "" {
		return newSetupError("validate config", errors.New("test directory is required"))
	}
	if config.SupervisorArtifact == "" || config.CLIArtifact == "" {
		return newSetupError("validate config", errors.New("supervisor and CLI artifact names are required"))
	}
	if config.DefaultPort < 1 || config.DefaultPort > 65535 {
		return newSetupError("validate config", fmt.Errorf("default port must be between 1 and 65535, got %d", config.DefaultPort))
	}
	switch config.CertificateSource {
	case CertificateSourceBuiltin, CertificateSourceCLI:
	default:
		return newSetupError("validate config", fmt.Errorf("unknown certificate source %q", config.CertificateSource))
	}
	if config.CertificateValidity <= 0 {
		return newSetupError("validate config", errors.New("certificate validity must be positive"))
	}

	t := config.Timings
	if t.MaxPingAttempts < 1 {
		return newSetupError("validate config", errors.New("max ping attempts must be at least 1"))
	}
	if t.CommandTimeout <= 0 {
		return newSetupError("validate config", errors.New("command timeout must be positive"))
	}
	if t.ShutdownGrace <= 0 {
		return newSetupError("validate config", errors.New("shutdown grace must be positive"))
	}
	if t.InitialWait < 0 || t.RetryDelay < 0 || t.SettleDelay < 0 || t.PostStopDelay < 0 {
		return newSetupError("validate config", errors.New("delays must not be negative"))
	}

	return nil
}

// Artifacts are the resolved paths of the application under test.
type Artifacts struct {
	AppPath        string
	SupervisorPath string
	CLIPath        string
}

// ResolveArtifacts locates the supervisor and CLI artifacts under the
// application path. Missing artifacts are a setup error.
func ResolveArtifacts(config HarnessConfig) (Artifacts, error) {
	appPath, err := filepath.Abs(config.AppPath)
	if err != nil {
		return Artifacts{}, newSetupError("resolve application path", err)
	}

	artifacts := Artifacts{
		AppPath:        appPath,
		SupervisorPath: filepath.Join(appPath, config.SupervisorArtifact),
		CLIPath:        filepath.Join(appPath, config.CLIArtifact),
	}

	var missing []string
	for _, p := range []string{artifacts.SupervisorPath, artifacts.CLIPath} {
		if info, err := os.Stat(p); err != nil || info.IsDir() {
			missing = append(missing, filepath.Base(p))
		}
	}
	if len(missing) > 0 {
		return Artifacts{}, newSetupError("resolve artifacts",
			fmt.Errorf("required files not found in %s: %v", appPath, missing))
	}

	return artifacts, nil
}
