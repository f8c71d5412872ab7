package declarative

import (
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/crewcheck/agent/capability"
	"github.com/BaSui01/crewcheck/agent/crews"
	"github.com/BaSui01/crewcheck/agent/profiles"
	"github.com/BaSui01/crewcheck/agent/tasks"
	"github.com/BaSui01/crewcheck/types"
	"go.uber.org/zap"
)

// Scenario is a materialized scenario: populated registry and store, built
// crews and replay fixtures.
type Scenario struct {
	Name     string
	Registry *profiles.Registry
	Store    *tasks.Store

	crews    []*crews.Crew
	fixtures map[string]capability.Fixture
}

// Crews returns the built crews in declaration order.
func (s *Scenario) Crews() []*crews.Crew {
	return append([]*crews.Crew(nil), s.crews...)
}

// Crew returns a crew by id.
func (s *Scenario) Crew(id string) (*crews.Crew, bool) {
	for _, c := range s.crews {
		if c.ID() == id {
			return c, true
		}
	}
	return nil, false
}

// Fixtures returns a copy of the replay fixtures keyed by task id.
func (s *Scenario) Fixtures() map[string]capability.Fixture {
	out := make(map[string]capability.Fixture, len(s.fixtures))
	for k, v := range s.fixtures {
		out[k] = v
	}
	return out
}

// Replay returns a replay capability over the scenario fixtures.
func (s *Scenario) Replay(logger *zap.Logger) *capability.Replay {
	return capability.NewReplay(s.fixtures, logger)
}

// ScenarioFactory validates definitions and materializes them.
type ScenarioFactory struct {
	logger *zap.Logger
}

// NewScenarioFactory creates a new ScenarioFactory.
func NewScenarioFactory(logger *zap.Logger) *ScenarioFactory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScenarioFactory{logger: logger.With(zap.String("component", "scenario_factory"))}
}

// Validate checks the structure of a definition without resolving references.
func (f *ScenarioFactory) Validate(def *ScenarioDefinition) error {
	if def == nil {
		return types.NewError(types.ErrInvalidDefinition, "scenario definition is nil")
	}
	var errs []error
	crewIDs := make(map[string]bool)
	for i, c := range def.Crews {
		switch {
		case c.ID == "":
			errs = append(errs, types.Errorf(types.ErrInvalidDefinition, "crews[%d]: id is required", i))
		case crewIDs[c.ID]:
			errs = append(errs, types.Errorf(types.ErrDuplicateIdentity, "crew %q is declared more than once", c.ID).WithSubject(c.ID))
		}
		crewIDs[c.ID] = true
	}
	fixtures := make(map[string]bool)
	for i, fx := range def.Fixtures {
		switch {
		case fx.Task == "":
			errs = append(errs, types.Errorf(types.ErrInvalidDefinition, "fixtures[%d]: task is required", i))
		case fixtures[fx.Task]:
			errs = append(errs, types.Errorf(types.ErrDuplicateIdentity, "fixture for task %q is declared more than once", fx.Task).WithSubject(fx.Task))
		case fx.Outcome == nil && fx.Error == nil:
			errs = append(errs, types.Errorf(types.ErrInvalidDefinition, "fixture for task %q needs an outcome or an error", fx.Task).WithSubject(fx.Task))
		case fx.Outcome != nil && fx.Error != nil:
			errs = append(errs, types.Errorf(types.ErrInvalidDefinition, "fixture for task %q has both an outcome and an error", fx.Task).WithSubject(fx.Task))
		case fx.Error != nil && fx.Error.Code == "":
			errs = append(errs, types.Errorf(types.ErrInvalidDefinition, "fixture error for task %q needs a code", fx.Task).WithSubject(fx.Task))
		case fx.FailTimes < 0 || fx.Delay < 0:
			errs = append(errs, types.Errorf(types.ErrInvalidDefinition, "fixture for task %q has a negative delay or fail_times", fx.Task).WithSubject(fx.Task))
		}
		fixtures[fx.Task] = true
	}
	return errors.Join(errs...)
}

// Materialize registers every agent and task and builds every crew. All
// problems are collected and returned joined, so one pass reports them all.
// The returned scenario holds every part that was valid, even when err is
// non-nil; callers must not execute it in that case.
func (f *ScenarioFactory) Materialize(def *ScenarioDefinition) (*Scenario, error) {
	if def == nil {
		return nil, types.NewError(types.ErrInvalidDefinition, "scenario definition is nil")
	}
	var errs []error
	if err := f.Validate(def); err != nil {
		errs = append(errs, err)
	}

	registry := profiles.NewRegistry(f.logger)
	for _, a := range def.Agents {
		err := registry.Register(profiles.AgentProfile{
			ID:           a.ID,
			Role:         a.Role,
			Objective:    a.Objective,
			Persona:      a.Persona,
			Capabilities: a.Capabilities,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("agent %q: %w", a.ID, err))
		}
	}

	store := tasks.NewStore(registry, f.logger)
	for _, t := range def.Tasks {
		if err := store.Register(t.Spec()); err != nil {
			errs = append(errs, fmt.Errorf("task %q: %w", t.ID, err))
		}
	}

	scenario := &Scenario{
		Name:     def.Name,
		Registry: registry,
		Store:    store,
		fixtures: make(map[string]capability.Fixture, len(def.Fixtures)),
	}

	for _, fx := range def.Fixtures {
		if _, err := store.Get(fx.Task); err != nil {
			errs = append(errs, fmt.Errorf("fixture: %w", err))
			continue
		}
		scenario.fixtures[fx.Task] = toFixture(fx)
	}

	for _, c := range def.Crews {
		crew, err := crews.Build(crews.CrewConfig{
			ID:       c.ID,
			Name:     c.Name,
			Process:  crews.ProcessType(c.Process),
			TaskIDs:  c.Tasks,
			AgentIDs: c.Agents,
		}, registry, store)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		scenario.crews = append(scenario.crews, crew)
	}

	err := errors.Join(errs...)
	if err != nil {
		f.logger.Warn("scenario has errors", zap.String("scenario", def.Name), zap.Int("errors", len(errs)))
	} else {
		f.logger.Debug("scenario materialized",
			zap.String("scenario", def.Name),
			zap.Int("agents", registry.Len()),
			zap.Int("tasks", store.Len()),
			zap.Int("crews", len(scenario.crews)))
	}
	return scenario, err
}

func toFixture(fx FixtureDefinition) capability.Fixture {
	out := capability.Fixture{
		Outcome:   fx.Outcome,
		Delay:     time.Duration(fx.Delay),
		FailTimes: fx.FailTimes,
	}
	if fx.Error != nil {
		out.Err = types.NewError(fx.Error.Code, fx.Error.Message).
			WithRetryable(fx.Error.Retryable).
			WithSubject(fx.Task)
	}
	return out
}
