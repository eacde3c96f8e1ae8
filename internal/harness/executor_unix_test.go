//go:build !windows

package harness

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestExecutor builds an executor whose supervisor is a long running
// script recording its pid, and whose gateway answers probes from gw
func newTestExecutor(t *testing.T, gw *fakeGateway) (*Executor, string) {
	t.Helper()
	config := testConfig(t)
	pidFile := filepath.Join(t.TempDir(), "supervisor.pid")
	t.Setenv("FAKE_SUPERVISOR_PID_FILE", pidFile)
	writeScript(t, config.AppPath, config.SupervisorArtifact, `echo $$ > "$FAKE_SUPERVISOR_PID_FILE"; exec sleep 30`)

	logger := &mockTestLogger{}
	provisioner := newTestProvisioner(t, config)
	executor := NewExecutor(config, provisioner, NewApplicationController(config, logger), logger)
	executor.newGateway = func(ec *ExecutionContext) Gateway { return gw }
	return executor, pidFile
}

func readyGateway() *fakeGateway {
	return &fakeGateway{pings: []CommandResult{pingResult("OK")}}
}

func supervisorPID(t *testing.T, pidFile string) int {
	t.Helper()
	data, err := os.ReadFile(pidFile)
	require.NoError(t, err)
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	require.NoError(t, err)
	return pid
}

func assertEventuallyGone(t *testing.T, pid int) {
	t.Helper()
	assert.Eventually(t, func() bool { return !processAlive(pid) }, 5*time.Second, 20*time.Millisecond)
}

func TestExecutor_RunPassed(t *testing.T) {
	gw := readyGateway()
	executor, pidFile := newTestExecutor(t, gw)

	var seen *ExecutionContext
	unit := TestUnit{
		Name:     "test_passes",
		Priority: DefaultPriority,
		Logic: func(ctx context.Context, gw Gateway, ec *ExecutionContext) Verdict {
			seen = ec
			return Passed{}
		},
	}

	outcome := executor.Run(context.Background(), unit)

	assert.Equal(t, StatusPassed, outcome.Status, outcome.Message)
	assert.Empty(t, outcome.Message)
	assert.Empty(t, outcome.TempDir)
	assert.Nil(t, outcome.AppLogs)
	assert.Greater(t, outcome.Duration, time.Duration(0))
	require.NotNil(t, seen)
	assert.Equal(t, seen.Port, outcome.Port)
	assert.NoDirExists(t, seen.TempDir)
	assert.Equal(t, 1, gw.countCalls(shutdownCommand))
	assertEventuallyGone(t, supervisorPID(t, pidFile))
}

func TestExecutor_RunFailed(t *testing.T) {
	executor, _ := newTestExecutor(t, readyGateway())

	unit := TestUnit{
		Name: "test_fails",
		Logic: func(ctx context.Context, gw Gateway, ec *ExecutionContext) Verdict {
			return Failf("expected %d, got %d", 50, 0)
		},
	}

	outcome := executor.Run(context.Background(), unit)

	assert.Equal(t, StatusFailed, outcome.Status)
	assert.Equal(t, "expected 50, got 0", outcome.Message)
	assert.NotNil(t, outcome.AppLogs)
}

func TestExecutor_RunPanics(t *testing.T) {
	executor, pidFile := newTestExecutor(t, readyGateway())

	var tempDir string
	unit := TestUnit{
		Name: "test_panics",
		Logic: func(ctx context.Context, gw Gateway, ec *ExecutionContext) Verdict {
			tempDir = ec.TempDir
			panic("boom")
		},
	}

	outcome := executor.Run(context.Background(), unit)

	assert.Equal(t, StatusFailed, outcome.Status)
	assert.Equal(t, "an unexpected error occurred: boom", outcome.Message)
	assert.NoDirExists(t, tempDir)
	assertEventuallyGone(t, supervisorPID(t, pidFile))
}

func TestExecutor_RunNotReady(t *testing.T) {
	gw := &fakeGateway{pings: []CommandResult{pingResult("Error")}}
	executor, pidFile := newTestExecutor(t, gw)

	called := false
	unit := TestUnit{
		Name: "test_not_ready",
		Logic: func(ctx context.Context, gw Gateway, ec *ExecutionContext) Verdict {
			called = true
			return Passed{}
		},
	}

	outcome := executor.Run(context.Background(), unit)

	assert.Equal(t, StatusFailed, outcome.Status)
	assert.Contains(t, outcome.Message, "Tinkwell application did not become ready")
	assert.False(t, called)
	assertEventuallyGone(t, supervisorPID(t, pidFile))
}

func TestExecutor_RunWithoutLogic(t *testing.T) {
	executor, _ := newTestExecutor(t, readyGateway())

	outcome := executor.Run(context.Background(), TestUnit{Name: "test_empty"})

	assert.Equal(t, StatusFailed, outcome.Status)
	assert.Equal(t, "test 'test_empty' does not define test logic", outcome.Message)
}

func TestExecutor_RunSupervisorMissing(t *testing.T) {
	executor, _ := newTestExecutor(t, readyGateway())
	require.NoError(t, os.Remove(filepath.Join(executor.config.AppPath, executor.config.SupervisorArtifact)))

	outcome := executor.Run(context.Background(), TestUnit{
		Name:  "test_no_supervisor",
		Logic: func(ctx context.Context, gw Gateway, ec *ExecutionContext) Verdict { return Passed{} },
	})

	assert.Equal(t, StatusFailed, outcome.Status)
	assert.Contains(t, outcome.Message, "failed to start Tinkwell application")
	assert.Empty(t, outcome.TempDir)
}

func TestExecutor_CopiesFixtures(t *testing.T) {
	executor, _ := newTestExecutor(t, readyGateway())

	testDir := t.TempDir()
	fixtures := filepath.Join(testDir, "test_with_data", "App")
	require.NoError(t, os.MkdirAll(fixtures, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(fixtures, "ensamble.tw"), []byte("runners"), 0644))

	var content string
	unit := TestUnit{
		Name:       "test_with_data",
		SourcePath: filepath.Join(testDir, "test_with_data.yaml"),
		Logic: func(ctx context.Context, gw Gateway, ec *ExecutionContext) Verdict {
			data, err := os.ReadFile(filepath.Join(ec.AppDataDir, "ensamble.tw"))
			if err != nil {
				return Failf("fixture not copied: %v", err)
			}
			content = string(data)
			return Passed{}
		},
	}

	outcome := executor.Run(context.Background(), unit)

	assert.Equal(t, StatusPassed, outcome.Status, outcome.Message)
	assert.Equal(t, "runners", content)
}

func TestExecutor_KeepTempDir(t *testing.T) {
	executor, _ := newTestExecutor(t, readyGateway())
	executor.config.KeepTempDir = true
	executor.provisioner.config.KeepTempDir = true

	outcome := executor.Run(context.Background(), TestUnit{
		Name:  "test_keeps_dir",
		Logic: func(ctx context.Context, gw Gateway, ec *ExecutionContext) Verdict { return Passed{} },
	})

	assert.Equal(t, StatusPassed, outcome.Status, outcome.Message)
	require.NotEmpty(t, outcome.TempDir)
	assert.DirExists(t, outcome.TempDir)
}

func TestExecutor_CancelledDuringLogic(t *testing.T) {
	executor, pidFile := newTestExecutor(t, readyGateway())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	outcome := executor.Run(ctx, TestUnit{
		Name: "test_cancelled",
		Logic: func(ctx context.Context, gw Gateway, ec *ExecutionContext) Verdict {
			cancel()
			return Failf("cancelled: %v", ctx.Err())
		},
	})

	assert.Equal(t, StatusFailed, outcome.Status)
	assertEventuallyGone(t, supervisorPID(t, pidFile))
}
