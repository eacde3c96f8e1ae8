package harness

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// staleSupervisorPattern matches supervisors started by the harness
const staleSupervisorPattern = `Tinkwell\.Supervisor.*` + StartingPortArgument + `=`

// CleanupStaleSupervisorProcesses terminates supervisors left behind by
// previous runs, e.g. after the harness itself was killed. A process is only
// touched when its working directory is a harness temp directory directly
// under tempRoot (os.TempDir() when empty) whose owner harness is no longer
// running. Platforms without procfs expose no working directory, so nothing
// is terminated there.
//
// Cleanup is best-effort: failures are logged and never block the run.
func CleanupStaleSupervisorProcesses(logger TestLogger, tempRoot string) int {
	return cleanupStaleProcesses(logger, staleSupervisorPattern, tempRoot)
}

func cleanupStaleProcesses(logger TestLogger, pattern, tempRoot string) int {
	currentPID := os.Getpid()
	root := resolveTempRoot(tempRoot)

	output, err := exec.Command("pgrep", "-f", pattern).Output()
	if err != nil {
		// pgrep exits with 1 when nothing matches
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			logger.Debug("No stale Tinkwell processes found\n")
			return 0
		}
		logger.Debug("Could not check for stale processes: %v\n", err)
		return 0
	}

	killed := 0
	for _, line := range strings.Split(strings.TrimSpace(string(output)), "\n") {
		pid, err := strconv.Atoi(strings.TrimSpace(line))
		if err != nil || pid == currentPID {
			continue
		}

		if reason := staleReason(pid, root); reason != "" {
			logger.Debug("Ignoring PID %d: %s\n", pid, reason)
			continue
		}

		process, err := os.FindProcess(pid)
		if err != nil {
			continue
		}
		if err := process.Signal(syscall.SIGTERM); err != nil {
			logger.Debug("Could not send SIGTERM to PID %d: %v\n", pid, err)
			continue
		}

		killed++
		logger.Debug("Terminated stale Tinkwell process PID %d\n", pid)
	}

	if killed > 0 {
		logger.Info("Cleaned up %d stale Tinkwell process(es)\n", killed)
	}
	return killed
}

// staleReason returns why pid is not a stale harness supervisor, or an
// empty string when it is one
func staleReason(pid int, root string) string {
	cwd, ok := processWorkingDir(pid)
	if !ok {
		return "working directory unknown"
	}
	if !strings.HasPrefix(filepath.Base(cwd), tempDirPrefix) || filepath.Dir(cwd) != root {
		return "running in " + cwd
	}

	data, err := os.ReadFile(filepath.Join(cwd, ownerFileName))
	if err != nil {
		return "no owner recorded in " + cwd
	}
	owner, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return "unreadable owner in " + cwd
	}
	if processRunning(owner) {
		return fmt.Sprintf("owned by running harness PID %d", owner)
	}
	return ""
}

func resolveTempRoot(tempRoot string) string {
	if tempRoot == "" {
		tempRoot = os.TempDir()
	}
	if abs, err := filepath.Abs(tempRoot); err == nil {
		tempRoot = abs
	}
	if resolved, err := filepath.EvalSymlinks(tempRoot); err == nil {
		tempRoot = resolved
	}
	return filepath.Clean(tempRoot)
}

func processRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

// processWorkingDir reads the working directory of pid where procfs exists
func processWorkingDir(pid int) (string, bool) {
	cwd, err := os.Readlink(filepath.Join("/proc", strconv.Itoa(pid), "cwd"))
	if err != nil {
		return "", false
	}
	return cwd, true
}
