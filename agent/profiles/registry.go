package profiles

import (
	"iter"
	"sync"

	"github.com/BaSui01/crewcheck/types"
	"go.uber.org/zap"
)

// Resolver resolves an agent id to a registered profile.
type Resolver interface {
	Resolve(id string) (AgentProfile, error)
}

// Registry holds agent profiles keyed by id, remembering insertion order.
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]AgentProfile
	order    []string
	logger   *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		profiles: make(map[string]AgentProfile),
		logger:   logger.With(zap.String("component", "agent_registry")),
	}
}

// Register adds a profile. It fails with DUPLICATE_IDENTITY if the id is taken.
func (r *Registry) Register(profile AgentProfile) error {
	p := profile.clone()
	if p.ID == "" {
		return types.NewError(types.ErrInvalidDefinition, "agent profile id is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.profiles[p.ID]; exists {
		return types.Errorf(types.ErrDuplicateIdentity, "agent %q already registered", p.ID).WithSubject(p.ID)
	}
	r.profiles[p.ID] = p
	r.order = append(r.order, p.ID)

	r.logger.Debug("agent profile registered",
		zap.String("agent_id", p.ID),
		zap.String("role", p.Role),
		zap.Strings("capabilities", p.Capabilities))
	return nil
}

// Resolve returns a copy of the profile. It fails with UNKNOWN_AGENT if absent.
func (r *Registry) Resolve(id string) (AgentProfile, error) {
	r.mu.RLock()
	p, ok := r.profiles[id]
	r.mu.RUnlock()
	if !ok {
		return AgentProfile{}, types.Errorf(types.ErrUnknownAgent, "agent %q is not registered", id).WithSubject(id)
	}
	return p.clone(), nil
}

// All yields registered profiles in insertion order. The sequence is lazy and
// may be ranged over any number of times; each pass reads the current contents.
func (r *Registry) All() iter.Seq[AgentProfile] {
	return func(yield func(AgentProfile) bool) {
		r.mu.RLock()
		ids := make([]string, len(r.order))
		copy(ids, r.order)
		r.mu.RUnlock()

		for _, id := range ids {
			r.mu.RLock()
			p, ok := r.profiles[id]
			r.mu.RUnlock()
			if !ok {
				continue
			}
			if !yield(p.clone()) {
				return
			}
		}
	}
}

// Len returns the number of registered profiles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
