package harness

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const unitFilePrefix = "test_"

var manifestExtensions = []string{".yaml", ".yml"}

// Manifest is the YAML descriptor of a test unit. Loading it never runs
// any unit logic.
type Manifest struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Trait       string            `yaml:"trait"`
	Priority    *int              `yaml:"priority"`
	Vars        map[string]string `yaml:"vars"`
	Steps       []Step            `yaml:"steps"`
}

// Scout discovers test units and produces the execution plan
type Scout struct {
	registry *Registry
	logger   TestLogger
}

// NewScout creates a scout resolving Go logic from the given registry
func NewScout(registry *Registry, logger TestLogger) *Scout {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Scout{registry: registry, logger: logger}
}

// Discover returns the units to run, ordered by priority and then by file
// name. An explicit name selects a single unit and bypasses the trait
// filter; when it matches no file discovery fails.
func (s *Scout) Discover(dir, trait, explicitName string) ([]TestUnit, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, newSetupError("open test directory", err)
	}
	if !info.IsDir() {
		return nil, newSetupError("open test directory", fmt.Errorf("%s is not a directory", dir))
	}

	if explicitName != "" {
		path, err := s.resolveExplicit(dir, explicitName)
		if err != nil {
			return nil, err
		}
		unit, err := s.LoadUnit(path)
		if err != nil {
			return nil, err
		}
		return []TestUnit{unit}, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, newSetupError("read test directory", err)
	}

	// ReadDir returns entries sorted by file name
	var units []TestUnit
	for _, entry := range entries {
		if entry.IsDir() || !isUnitManifest(entry.Name()) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		s.logger.Debug("Loading test manifest: %s\n", path)
		unit, err := s.LoadUnit(path)
		if err != nil {
			return nil, err
		}
		if trait != "" && unit.Trait != trait {
			s.logger.Debug("Skipping %s (trait %q)\n", unit.Name, unit.Trait)
			continue
		}
		units = append(units, unit)
	}

	sortUnits(units)
	return units, nil
}

// resolveExplicit finds "<name>.yaml" first, then "test_<name>.yaml"
func (s *Scout) resolveExplicit(dir, name string) (string, error) {
	base := trimManifestExtension(name)
	candidates := []string{base, unitFilePrefix + base}

	for _, candidate := range candidates {
		for _, ext := range manifestExtensions {
			path := filepath.Join(dir, candidate+ext)
			exists := fileExists(path)
			s.logger.Debug("Checking path: %s (exists: %t)\n", path, exists)
			if exists {
				return path, nil
			}
		}
	}

	return "", newSetupError("find test",
		fmt.Errorf("%w: neither '%s' nor '%s%s' found in '%s'", ErrTestNotFound, base, unitFilePrefix, base, dir))
}

// LoadUnit parses a manifest and resolves its logic
func (s *Scout) LoadUnit(path string) (TestUnit, error) {
	manifest, err := loadManifest(path)
	if err != nil {
		return TestUnit{}, newSetupError("load test manifest", err)
	}

	name := trimManifestExtension(filepath.Base(path))
	unit := TestUnit{
		Name:         name,
		SourcePath:   path,
		FriendlyName: manifest.Name,
		Description:  manifest.Description,
		Trait:        manifest.Trait,
		Priority:     DefaultPriority,
		Steps:        manifest.Steps,
	}
	if manifest.Priority != nil {
		unit.Priority = *manifest.Priority
	}

	registered, hasRegistered := s.registry.Lookup(name)
	switch {
	case len(manifest.Steps) > 0 && hasRegistered:
		return TestUnit{}, newSetupError("load test manifest",
			fmt.Errorf("%s: unit %q declares steps and also has registered logic", path, name))
	case len(manifest.Steps) > 0:
		unit.Logic = ScriptedLogic(manifest.Steps, manifest.Vars)
	case hasRegistered:
		unit.Logic = registered
	}

	return unit, nil
}

func loadManifest(path string) (Manifest, error) {
	var manifest Manifest

	content, err := os.ReadFile(path)
	if err != nil {
		return manifest, fmt.Errorf("failed to read file %s: %w", path, err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(content))
	decoder.KnownFields(true)
	if err := decoder.Decode(&manifest); err != nil && !errors.Is(err, io.EOF) {
		return manifest, fmt.Errorf("failed to parse YAML in %s: %w", path, err)
	}

	for i, step := range manifest.Steps {
		if err := step.validate(); err != nil {
			return manifest, fmt.Errorf("invalid step %d in %s: %w", i+1, path, err)
		}
	}

	return manifest, nil
}

// sortUnits orders units by priority, keeping file name order for ties
func sortUnits(units []TestUnit) {
	sort.SliceStable(units, func(i, j int) bool {
		return units[i].Priority < units[j].Priority
	})
}

func isUnitManifest(fileName string) bool {
	if !strings.HasPrefix(fileName, unitFilePrefix) {
		return false
	}
	for _, ext := range manifestExtensions {
		if strings.HasSuffix(fileName, ext) {
			return true
		}
	}
	return false
}

func trimManifestExtension(name string) string {
	for _, ext := range manifestExtensions {
		if strings.HasSuffix(name, ext) {
			return strings.TrimSuffix(name, ext)
		}
	}
	return name
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
