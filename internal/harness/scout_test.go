package harness

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const stepsManifest = `
steps:
  - command: [runners, list]
`

func writeUnit(t *testing.T, dir, file, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(content), 0644))
}

func unitNames(units []TestUnit) []string {
	names := make([]string, 0, len(units))
	for _, u := range units {
		names = append(names, u.Name)
	}
	return names
}

func TestScout_Discover(t *testing.T) {
	dir := t.TempDir()
	writeUnit(t, dir, "test_c.yaml", "trait: integration\n"+stepsManifest)
	writeUnit(t, dir, "test_a.yaml", "trait: integration\npriority: 100\n"+stepsManifest)
	writeUnit(t, dir, "test_b.yml", "trait: smoke\npriority: 20\n"+stepsManifest)
	writeUnit(t, dir, "test_d.yaml", "priority: 300\n"+stepsManifest)
	writeUnit(t, dir, "helper.yaml", "not: a unit\n")
	writeUnit(t, dir, "test_notes.txt", "ignored\n")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "test_a"), 0755))

	scout := NewScout(NewRegistry(), &mockTestLogger{})

	t.Run("orders by priority keeping file order for ties", func(t *testing.T) {
		units, err := scout.Discover(dir, "", "")
		require.NoError(t, err)
		assert.Equal(t, []string{"test_b", "test_a", "test_c", "test_d"}, unitNames(units))
		assert.Equal(t, DefaultPriority, units[2].Priority)
	})

	t.Run("filters by trait", func(t *testing.T) {
		units, err := scout.Discover(dir, "integration", "")
		require.NoError(t, err)
		assert.Equal(t, []string{"test_a", "test_c"}, unitNames(units))
	})

	t.Run("trait match is exact", func(t *testing.T) {
		units, err := scout.Discover(dir, "Integration", "")
		require.NoError(t, err)
		assert.Empty(t, units)
	})

	t.Run("explicit name without prefix", func(t *testing.T) {
		units, err := scout.Discover(dir, "", "b")
		require.NoError(t, err)
		assert.Equal(t, []string{"test_b"}, unitNames(units))
		assert.Equal(t, filepath.Join(dir, "test_b.yml"), units[0].SourcePath)
	})

	t.Run("explicit name with prefix", func(t *testing.T) {
		units, err := scout.Discover(dir, "", "test_c")
		require.NoError(t, err)
		assert.Equal(t, []string{"test_c"}, unitNames(units))
	})

	t.Run("explicit name bypasses the trait filter", func(t *testing.T) {
		units, err := scout.Discover(dir, "smoke", "test_c")
		require.NoError(t, err)
		assert.Equal(t, []string{"test_c"}, unitNames(units))
	})

	t.Run("unknown explicit name is fatal", func(t *testing.T) {
		_, err := scout.Discover(dir, "", "missing")
		require.Error(t, err)
		var setupErr *SetupError
		assert.ErrorAs(t, err, &setupErr)
		assert.ErrorIs(t, err, ErrTestNotFound)
		assert.Contains(t, err.Error(), "test_missing")
	})
}

func TestScout_ExplicitNamePrefersExactFile(t *testing.T) {
	dir := t.TempDir()
	writeUnit(t, dir, "smoke.yaml", "name: exact\n"+stepsManifest)
	writeUnit(t, dir, "test_smoke.yaml", "name: prefixed\n"+stepsManifest)

	units, err := NewScout(NewRegistry(), &mockTestLogger{}).Discover(dir, "", "smoke")
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, "exact", units[0].FriendlyName)
	assert.Equal(t, "smoke", units[0].Name)
}

func TestScout_DiscoverErrors(t *testing.T) {
	scout := NewScout(NewRegistry(), &mockTestLogger{})

	t.Run("missing directory", func(t *testing.T) {
		_, err := scout.Discover(filepath.Join(t.TempDir(), "missing"), "", "")
		var setupErr *SetupError
		assert.ErrorAs(t, err, &setupErr)
	})

	t.Run("not a directory", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, nil, 0644))
		_, err := scout.Discover(file, "", "")
		var setupErr *SetupError
		assert.ErrorAs(t, err, &setupErr)
	})

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{name: "invalid yaml", content: "steps: [\n", wantErr: "failed to parse YAML"},
		{name: "unknown field", content: "category: behavioral\n", wantErr: "field category not found"},
		{name: "step without command", content: "steps:\n  - name: empty\n", wantErr: "has no command"},
		{name: "bad template", content: "steps:\n  - command: [\"{{ .Port \"]\n", wantErr: "invalid step 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeUnit(t, dir, "test_broken.yaml", tt.content)

			_, err := scout.Discover(dir, "", "")
			require.Error(t, err)
			var setupErr *SetupError
			assert.ErrorAs(t, err, &setupErr)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestScout_LogicResolution(t *testing.T) {
	dir := t.TempDir()
	writeUnit(t, dir, "test_scripted.yaml", "name: Scripted\ndescription: runs steps\n"+stepsManifest)
	writeUnit(t, dir, "test_registered.yaml", "name: Registered\ntrait: integration\npriority: 20\n")
	writeUnit(t, dir, "test_empty.yaml", "name: Empty\n")

	registry := NewRegistry()
	require.NoError(t, registry.Register("test_registered", func(ctx context.Context, gw Gateway, ec *ExecutionContext) Verdict {
		return Failed{Message: "from go"}
	}))

	units, err := NewScout(registry, &mockTestLogger{}).Discover(dir, "", "")
	require.NoError(t, err)
	require.Equal(t, []string{"test_registered", "test_empty", "test_scripted"}, unitNames(units))

	registered := units[0]
	require.NotNil(t, registered.Logic)
	assert.Equal(t, Failed{Message: "from go"}, registered.Logic(context.Background(), &fakeGateway{}, &ExecutionContext{}))
	assert.Equal(t, "Registered", registered.FriendlyName)
	assert.Equal(t, "integration", registered.Trait)
	assert.Equal(t, 20, registered.Priority)

	assert.Nil(t, units[1].Logic)

	scripted := units[2]
	require.NotNil(t, scripted.Logic)
	assert.Len(t, scripted.Steps, 1)
	assert.Equal(t, "runs steps", scripted.Description)
}

func TestScout_StepsAndRegisteredLogicConflict(t *testing.T) {
	dir := t.TempDir()
	writeUnit(t, dir, "test_both.yaml", stepsManifest)

	registry := NewRegistry()
	require.NoError(t, registry.Register("test_both", func(ctx context.Context, gw Gateway, ec *ExecutionContext) Verdict {
		return Passed{}
	}))

	_, err := NewScout(registry, &mockTestLogger{}).Discover(dir, "", "")
	var setupErr *SetupError
	require.ErrorAs(t, err, &setupErr)
	assert.Contains(t, err.Error(), "also has registered logic")
}

func TestIsUnitManifest(t *testing.T) {
	assert.True(t, isUnitManifest("test_a.yaml"))
	assert.True(t, isUnitManifest("test_a.yml"))
	assert.False(t, isUnitManifest("a.yaml"))
	assert.False(t, isUnitManifest("test_a.json"))
	assert.False(t, isUnitManifest("Test_a.yaml"))
}
