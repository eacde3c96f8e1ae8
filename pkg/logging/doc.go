// Package logging provides the structured diagnostic logger used by twharness.
//
// It wraps Go's standard slog package with a small package-level API that tags
// every entry with a subsystem name. Diagnostics go to stderr so they never mix
// with the console output of a test run.
//
// # Usage
//
//	logging.InitForCLI(logging.LevelInfo, os.Stderr)
//
//	logging.Info("Runner", "Running %d test(s)", len(units))
//	logging.Debug("Controller", "Started supervisor with PID %d", pid)
//	logging.Warn("Provisioner", "Falling back to default port %d", port)
//	logging.Error("Executor", err, "Failed to remove temp directory %s", dir)
//
// Entries below the configured level are dropped before formatting.
package logging
