package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BaSui01/crewcheck/agent/capability"
	"github.com/BaSui01/crewcheck/agent/crews"
	"github.com/BaSui01/crewcheck/agent/declarative"
	"github.com/BaSui01/crewcheck/config"
	"go.uber.org/zap"
)

// scenarioFiles expands directories into the scenario files they contain.
func scenarioFiles(paths []string) ([]string, error) {
	if len(paths) == 0 {
		return nil, invalidf("no scenario files given (use -f)")
	}
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, withExit(exitInvalid, err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, withExit(exitInvalid, err)
		}
		var inDir []string
		for _, e := range entries {
			switch strings.ToLower(filepath.Ext(e.Name())) {
			case ".yaml", ".yml", ".json":
				if !e.IsDir() {
					inDir = append(inDir, filepath.Join(p, e.Name()))
				}
			}
		}
		if len(inDir) == 0 {
			return nil, invalidf("no scenario files in %s", p)
		}
		slices.Sort(inDir)
		files = append(files, inDir...)
	}
	return files, nil
}

// loadScenario parses and materializes the given files. On a definition error
// the partially built scenario is still returned next to the error.
func loadScenario(paths []string, logger *zap.Logger) (*declarative.ScenarioDefinition, *declarative.Scenario, error) {
	files, err := scenarioFiles(paths)
	if err != nil {
		return nil, nil, err
	}
	def, err := declarative.NewYAMLLoader().LoadFiles(files...)
	if err != nil {
		return nil, nil, withExit(exitInvalid, err)
	}
	scenario, err := declarative.NewScenarioFactory(logger).Materialize(def)
	if err != nil {
		return def, scenario, withExit(exitInvalid, err)
	}
	return def, scenario, nil
}

// flattenErrors unwraps errors.Join trees into a flat list of leaves.
func flattenErrors(err error) []error {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []error
		for _, e := range joined.Unwrap() {
			out = append(out, flattenErrors(e)...)
		}
		return out
	}
	var ee *exitError
	if errors.As(err, &ee) && ee.err != err {
		return flattenErrors(ee.err)
	}
	return []error{err}
}

// selectCrews picks crews by id, keeping the requested order. No ids selects
// every crew.
func selectCrews(scenario *declarative.Scenario, ids []string) ([]*crews.Crew, error) {
	if len(ids) == 0 {
		all := scenario.Crews()
		if len(all) == 0 {
			return nil, invalidf("scenario declares no crews")
		}
		return all, nil
	}
	var (
		out     []*crews.Crew
		unknown []string
	)
	for _, id := range ids {
		crew, ok := scenario.Crew(id)
		if !ok {
			unknown = append(unknown, id)
			continue
		}
		out = append(out, crew)
	}
	if len(unknown) > 0 {
		return nil, invalidf("unknown crew(s): %s", strings.Join(unknown, ", "))
	}
	return out, nil
}

// newCapability builds the configured capability: recorded fixtures or the
// HTTP backend.
func newCapability(cfg *config.Config, scenario *declarative.Scenario, logger *zap.Logger) (crews.Capability, error) {
	switch cfg.Capability.Mode {
	case "replay", "":
		return scenario.Replay(logger), nil
	case "http":
		c, err := capability.NewHTTPCapability(cfg.HTTPCapabilityConfig(), logger)
		if err != nil {
			return nil, withExit(exitInvalid, fmt.Errorf("http capability: %w", err))
		}
		return c, nil
	default:
		return nil, invalidf("unknown capability mode %q", cfg.Capability.Mode)
	}
}
