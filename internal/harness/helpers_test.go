package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// mockTestLogger records every line written through it
type mockTestLogger struct {
	mu             sync.Mutex
	lines          []string
	debugEnabled   bool
	verboseEnabled bool
}

func (m *mockTestLogger) record(level, format string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines = append(m.lines, level+": "+fmt.Sprintf(format, args...))
}

func (m *mockTestLogger) Debug(format string, args ...interface{}) {
	m.record("DEBUG", format, args...)
}

func (m *mockTestLogger) Info(format string, args ...interface{}) {
	m.record("INFO", format, args...)
}

func (m *mockTestLogger) Error(format string, args ...interface{}) {
	m.record("ERROR", format, args...)
}

func (m *mockTestLogger) IsDebugEnabled() bool {
	return m.debugEnabled
}

func (m *mockTestLogger) IsVerboseEnabled() bool {
	return m.verboseEnabled
}

func (m *mockTestLogger) output() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return strings.Join(m.lines, "")
}

// fakeGateway answers the readiness probe from a script and records every call
type fakeGateway struct {
	mu        sync.Mutex
	pings     []CommandResult
	responses map[string]CommandResult
	calls     [][]string
	inputs    []string
	onInvoke  func(args []string)
}

func pingResult(stdout string) CommandResult {
	return CommandResult{Stdout: stdout + "\n"}
}

func (g *fakeGateway) Invoke(ctx context.Context, args ...string) CommandResult {
	g.mu.Lock()
	g.calls = append(g.calls, args)
	onInvoke := g.onInvoke
	var result CommandResult
	key := strings.Join(args, " ")
	switch {
	case key == strings.Join(pingCommand, " ") && len(g.pings) > 0:
		result = g.pings[0]
		if len(g.pings) > 1 {
			g.pings = g.pings[1:]
		}
	case g.responses != nil:
		if r, ok := g.responses[key]; ok {
			result = r
		} else {
			result = CommandResult{ExitCode: 1, Stderr: "unexpected command: " + key}
		}
	}
	g.mu.Unlock()

	if onInvoke != nil {
		onInvoke(args)
	}
	result.Args = args
	return result
}

func (g *fakeGateway) InvokeWithInput(ctx context.Context, input string, args ...string) CommandResult {
	g.mu.Lock()
	g.inputs = append(g.inputs, input)
	g.mu.Unlock()
	return g.Invoke(ctx, args...)
}

func (g *fakeGateway) countCalls(args []string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if strings.Join(c, " ") == strings.Join(args, " ") {
			n++
		}
	}
	return n
}

// testConfig returns a configuration with short timings that runs
// artifacts directly
func testConfig(t *testing.T) HarnessConfig {
	t.Helper()
	config := DefaultHarnessConfig()
	config.AppPath = t.TempDir()
	config.TempRoot = t.TempDir()
	config.Launcher = ""
	config.CleanupStaleProcesses = false
	config.Timings = Timings{
		InitialWait:     10 * time.Millisecond,
		RetryDelay:      10 * time.Millisecond,
		MaxPingAttempts: 5,
		SettleDelay:     0,
		ShutdownGrace:   300 * time.Millisecond,
		PostStopDelay:   0,
		CommandTimeout:  2 * time.Second,
	}
	return config
}

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
}

// writeScript writes an executable POSIX shell script
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755))
	return path
}
