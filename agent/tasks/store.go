package tasks

import (
	"errors"
	"iter"
	"strings"
	"sync"

	"github.com/BaSui01/crewcheck/agent/profiles"
	"github.com/BaSui01/crewcheck/types"
	"go.uber.org/zap"
)

// Store holds task specs. Every spec is validated against the agent registry
// when it is registered, never at execution time.
type Store struct {
	mu       sync.RWMutex
	specs    map[string]TaskSpec
	order    []string
	resolver profiles.Resolver
	logger   *zap.Logger
}

// NewStore creates a store that validates agent references through resolver.
func NewStore(resolver profiles.Resolver, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		specs:    make(map[string]TaskSpec),
		resolver: resolver,
		logger:   logger.With(zap.String("component", "task_store")),
	}
}

// Register validates and stores a spec.
//
// Errors: INVALID_DEFINITION for malformed specs, DUPLICATE_IDENTITY on id
// collision, UNKNOWN_AGENT when the assigned agent cannot be resolved and
// CAPABILITY_MISMATCH when a required capability is outside the agent's set.
func (s *Store) Register(spec TaskSpec) error {
	spec = spec.clone()
	if spec.ID == "" {
		return types.NewError(types.ErrInvalidDefinition, "task id is empty")
	}
	if spec.AgentID == "" {
		return types.Errorf(types.ErrInvalidDefinition, "task %q has no assigned agent", spec.ID).WithSubject(spec.ID)
	}

	var bad []error
	for i, a := range spec.Expect {
		if err := a.Validate(); err != nil {
			bad = append(bad, types.Errorf(types.ErrInvalidDefinition, "expect[%d]: %v", i, err))
		}
	}
	if len(bad) > 0 {
		return types.Errorf(types.ErrInvalidDefinition, "task %q has malformed assertions", spec.ID).
			WithSubject(spec.ID).WithCause(errors.Join(bad...))
	}

	agent, err := s.resolver.Resolve(spec.AgentID)
	if err != nil {
		return types.Errorf(types.ErrUnknownAgent, "task %q references unknown agent %q", spec.ID, spec.AgentID).
			WithSubject(spec.ID).WithCause(err)
	}
	if missing := agent.MissingCapabilities(spec.RequiredCapabilities); len(missing) > 0 {
		return types.Errorf(types.ErrCapabilityMismatch, "task %q requires capabilities not granted to agent %q: %s",
			spec.ID, agent.ID, strings.Join(missing, ", ")).WithSubject(spec.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.specs[spec.ID]; exists {
		return types.Errorf(types.ErrDuplicateIdentity, "task %q already registered", spec.ID).WithSubject(spec.ID)
	}
	s.specs[spec.ID] = spec
	s.order = append(s.order, spec.ID)

	s.logger.Debug("task spec registered",
		zap.String("task_id", spec.ID),
		zap.String("agent_id", spec.AgentID),
		zap.Int("assertions", len(spec.Expect)))
	return nil
}

// Get returns a copy of the spec. It fails with UNKNOWN_TASK if absent.
func (s *Store) Get(id string) (TaskSpec, error) {
	s.mu.RLock()
	spec, ok := s.specs[id]
	s.mu.RUnlock()
	if !ok {
		return TaskSpec{}, types.Errorf(types.ErrUnknownTask, "task %q is not registered", id).WithSubject(id)
	}
	return spec.clone(), nil
}

// All yields registered specs in insertion order.
func (s *Store) All() iter.Seq[TaskSpec] {
	return func(yield func(TaskSpec) bool) {
		s.mu.RLock()
		ids := make([]string, len(s.order))
		copy(ids, s.order)
		s.mu.RUnlock()

		for _, id := range ids {
			spec, err := s.Get(id)
			if err != nil {
				continue
			}
			if !yield(spec) {
				return
			}
		}
	}
}

// IDs returns all task ids in insertion order.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, len(s.order))
	copy(ids, s.order)
	return ids
}

// Len returns the number of registered specs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}
