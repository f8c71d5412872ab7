package declarative

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ScenarioLoader loads scenario definitions from files or raw bytes.
type ScenarioLoader interface {
	// LoadFile reads a file and everything it includes.
	// Format is auto-detected from the file extension (.yaml, .yml, .json).
	LoadFile(path string) (*ScenarioDefinition, error)

	// LoadBytes parses raw bytes. format must be "yaml" or "json".
	// Includes are not followed.
	LoadBytes(data []byte, format string) (*ScenarioDefinition, error)
}

// YAMLLoader implements ScenarioLoader for YAML and JSON formats.
type YAMLLoader struct{}

// NewYAMLLoader creates a new YAMLLoader.
func NewYAMLLoader() *YAMLLoader {
	return &YAMLLoader{}
}

// LoadFile reads a file and merges its includes ahead of its own content.
func (l *YAMLLoader) LoadFile(path string) (*ScenarioDefinition, error) {
	return l.LoadFiles(path)
}

// LoadFiles loads several files into one definition. A file reached twice,
// directly or through includes, is merged once.
func (l *YAMLLoader) LoadFiles(paths ...string) (*ScenarioDefinition, error) {
	merged := &ScenarioDefinition{}
	seen := make(map[string]bool)
	for _, p := range paths {
		if err := l.load(p, merged, seen, nil); err != nil {
			return nil, err
		}
	}
	if len(paths) == 1 {
		merged.Name = firstNonEmpty(merged.Name, strings.TrimSuffix(filepath.Base(paths[0]), filepath.Ext(paths[0])))
	}
	return merged, nil
}

// LoadDir loads every scenario file in dir, sorted by name.
func (l *YAMLLoader) LoadDir(dir string) (*ScenarioDefinition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read scenario directory: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || detectFormat(e.Name()) == "" {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	if len(paths) == 0 {
		return nil, fmt.Errorf("no scenario files in %s", dir)
	}
	return l.LoadFiles(paths...)
}

func (l *YAMLLoader) load(path string, into *ScenarioDefinition, seen map[string]bool, stack []string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	for _, s := range stack {
		if s == abs {
			return fmt.Errorf("include cycle: %s -> %s", strings.Join(stack, " -> "), abs)
		}
	}
	if seen[abs] {
		return nil
	}
	seen[abs] = true

	data, err := os.ReadFile(abs)
	if err != nil {
		return fmt.Errorf("read scenario file: %w", err)
	}
	format := detectFormat(abs)
	if format == "" {
		return fmt.Errorf("unsupported file extension: %s", filepath.Ext(abs))
	}
	def, err := l.LoadBytes(data, format)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	for _, inc := range def.Include {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(filepath.Dir(abs), inc)
		}
		if err := l.load(inc, into, seen, append(stack, abs)); err != nil {
			return err
		}
	}
	merge(into, def)
	into.Sources = append(into.Sources, abs)
	return nil
}

// LoadBytes parses raw bytes in the given format ("yaml" or "json").
func (l *YAMLLoader) LoadBytes(data []byte, format string) (*ScenarioDefinition, error) {
	var def ScenarioDefinition

	switch strings.ToLower(format) {
	case "yaml", "yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&def); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse YAML: %w", err)
		}
	case "json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&def); err != nil {
			return nil, fmt.Errorf("parse JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported format %q, use \"yaml\" or \"json\"", format)
	}

	return &def, nil
}

func merge(into, def *ScenarioDefinition) {
	into.Name = firstNonEmpty(def.Name, into.Name)
	into.Description = firstNonEmpty(def.Description, into.Description)
	into.Agents = append(into.Agents, def.Agents...)
	into.Tasks = append(into.Tasks, def.Tasks...)
	into.Crews = append(into.Crews, def.Crews...)
	into.Fixtures = append(into.Fixtures, def.Fixtures...)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// detectFormat returns "yaml" or "json" based on file extension, or "" if unknown.
func detectFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	case ".json":
		return "json"
	default:
		return ""
	}
}
