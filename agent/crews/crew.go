package crews

import (
	"fmt"
	"slices"
	"strings"

	"github.com/BaSui01/crewcheck/agent/profiles"
	"github.com/BaSui01/crewcheck/agent/tasks"
	"github.com/BaSui01/crewcheck/types"
)

// ProcessType定义任务处理方式.
type ProcessType string

const (
	// ProcessSequential runs tasks one at a time in declaration (dependency) order.
	ProcessSequential ProcessType = "sequential"
	// ProcessConcurrent runs independent tasks in parallel workers; tasks
	// that share an agent still serialize against each other.
	ProcessConcurrent ProcessType = "concurrent"
)

// Valid reports whether p is a known process type. Empty means "use the orchestrator default".
func (p ProcessType) Valid() bool {
	switch p {
	case "", ProcessSequential, ProcessConcurrent:
		return true
	}
	return false
}

// CrewConfig配置一个船员.
type CrewConfig struct {
	ID      string
	Name    string
	Process ProcessType
	// TaskIDs are the task references in declaration order.
	TaskIDs []string
	// AgentIDs is the declared participating agent set. When empty, the set is
	// derived from the tasks' assigned agents.
	AgentIDs []string
}

// TaskSource resolves task ids to specs. *tasks.Store satisfies it.
type TaskSource interface {
	Get(id string) (tasks.TaskSpec, error)
}

// 船员代表一组特工一起工作.
// A Crew is only produced by Build and never changes afterwards.
type Crew struct {
	id       string
	name     string
	process  ProcessType
	tasks    []tasks.TaskSpec
	agents   map[string]profiles.AgentProfile
	agentIDs []string
}

// ID returns the crew id.
func (c *Crew) ID() string { return c.id }

// Name returns the display name, falling back to the id.
func (c *Crew) Name() string {
	if c.name == "" {
		return c.id
	}
	return c.name
}

// Process returns the declared process type (possibly empty).
func (c *Crew) Process() ProcessType { return c.process }

// Len returns the number of tasks in the crew.
func (c *Crew) Len() int { return len(c.tasks) }

// Tasks returns the task specs in execution order.
func (c *Crew) Tasks() []tasks.TaskSpec {
	return slices.Clone(c.tasks)
}

// TaskIDs returns task ids in execution order.
func (c *Crew) TaskIDs() []string {
	ids := make([]string, len(c.tasks))
	for i, t := range c.tasks {
		ids[i] = t.ID
	}
	return ids
}

// Agent returns the snapshot of a participating agent.
func (c *Crew) Agent(id string) (profiles.AgentProfile, bool) {
	p, ok := c.agents[id]
	if ok {
		p.Capabilities = slices.Clone(p.Capabilities)
	}
	return p, ok
}

// AgentIDs returns the participating agent ids.
func (c *Crew) AgentIDs() []string {
	return slices.Clone(c.agentIDs)
}

// ViolationKind classifies one referential integrity problem.
type ViolationKind string

const (
	ViolationUnknownTask        ViolationKind = "unknown_task"
	ViolationDuplicateTask      ViolationKind = "duplicate_task"
	ViolationUnknownAgent       ViolationKind = "unknown_agent"
	ViolationAgentNotInCrew     ViolationKind = "agent_not_in_crew"
	ViolationCapabilityMismatch ViolationKind = "capability_mismatch"
	ViolationDependencyOutside  ViolationKind = "dependency_outside_crew"
	ViolationDependencyCycle    ViolationKind = "dependency_cycle"
	ViolationInvalidProcess     ViolationKind = "invalid_process"
	ViolationEmptyCrew          ViolationKind = "empty_crew"
)

// Violation is one broken reference found while building a crew.
type Violation struct {
	Kind    ViolationKind `json:"kind"`
	TaskID  string        `json:"task_id,omitempty"`
	AgentID string        `json:"agent_id,omitempty"`
	Detail  string        `json:"detail"`
}

func (v Violation) String() string {
	var b strings.Builder
	b.WriteString(string(v.Kind))
	if v.TaskID != "" {
		fmt.Fprintf(&b, " task=%s", v.TaskID)
	}
	if v.AgentID != "" {
		fmt.Fprintf(&b, " agent=%s", v.AgentID)
	}
	if v.Detail != "" {
		b.WriteString(": ")
		b.WriteString(v.Detail)
	}
	return b.String()
}

// IntegrityError lists every violation found by Build.
type IntegrityError struct {
	CrewID     string
	Violations []Violation
}

func (e *IntegrityError) Error() string {
	lines := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		lines[i] = "  - " + v.String()
	}
	return fmt.Sprintf("crew %q has %d integrity violation(s):\n%s", e.CrewID, len(e.Violations), strings.Join(lines, "\n"))
}

// Build validates the crew's references in one pass and returns an immutable Crew.
// On failure the returned error has code CREW_INTEGRITY and wraps *IntegrityError
// listing every violation, not only the first.
func Build(cfg CrewConfig, registry profiles.Resolver, store TaskSource) (*Crew, error) {
	var violations []Violation
	add := func(v Violation) { violations = append(violations, v) }

	if !cfg.Process.Valid() {
		add(Violation{Kind: ViolationInvalidProcess, Detail: fmt.Sprintf("unknown process %q", cfg.Process)})
	}
	if len(cfg.TaskIDs) == 0 {
		add(Violation{Kind: ViolationEmptyCrew, Detail: "crew declares no tasks"})
	}

	declared := make(map[string]profiles.AgentProfile, len(cfg.AgentIDs))
	var declaredOrder []string
	for _, id := range cfg.AgentIDs {
		if _, seen := declared[id]; seen {
			continue
		}
		p, err := registry.Resolve(id)
		if err != nil {
			add(Violation{Kind: ViolationUnknownAgent, AgentID: id, Detail: "declared crew agent is not registered"})
			continue
		}
		declared[id] = p
		declaredOrder = append(declaredOrder, id)
	}
	explicitAgents := len(cfg.AgentIDs) > 0

	agents := make(map[string]profiles.AgentProfile)
	var agentOrder []string
	var specs []tasks.TaskSpec
	inCrew := make(map[string]bool, len(cfg.TaskIDs))

	for _, taskID := range cfg.TaskIDs {
		if inCrew[taskID] {
			add(Violation{Kind: ViolationDuplicateTask, TaskID: taskID, Detail: "task referenced more than once"})
			continue
		}
		spec, err := store.Get(taskID)
		if err != nil {
			add(Violation{Kind: ViolationUnknownTask, TaskID: taskID, Detail: "task is not registered"})
			continue
		}
		inCrew[taskID] = true
		specs = append(specs, spec)

		agent, err := registry.Resolve(spec.AgentID)
		if err != nil {
			add(Violation{Kind: ViolationUnknownAgent, TaskID: taskID, AgentID: spec.AgentID, Detail: "assigned agent is not registered"})
			continue
		}
		if explicitAgents {
			if _, ok := declared[spec.AgentID]; !ok {
				add(Violation{Kind: ViolationAgentNotInCrew, TaskID: taskID, AgentID: spec.AgentID, Detail: "assigned agent is not in the crew agent set"})
				continue
			}
		}
		if missing := agent.MissingCapabilities(spec.RequiredCapabilities); len(missing) > 0 {
			add(Violation{Kind: ViolationCapabilityMismatch, TaskID: taskID, AgentID: agent.ID,
				Detail: "missing capabilities: " + strings.Join(missing, ", ")})
		}
		if _, ok := agents[agent.ID]; !ok {
			agents[agent.ID] = agent
			agentOrder = append(agentOrder, agent.ID)
		}
	}

	for _, spec := range specs {
		for _, dep := range spec.DependsOn {
			if !inCrew[dep] {
				add(Violation{Kind: ViolationDependencyOutside, TaskID: spec.ID, Detail: fmt.Sprintf("depends on %q which is not part of the crew", dep)})
			}
		}
	}

	ordered, cyclic := dependencyOrder(specs, inCrew)
	if len(cyclic) > 0 {
		add(Violation{Kind: ViolationDependencyCycle, Detail: "tasks form a dependency cycle: " + strings.Join(cyclic, ", ")})
	}

	if len(violations) > 0 {
		integrity := &IntegrityError{CrewID: cfg.ID, Violations: violations}
		return nil, types.Errorf(types.ErrCrewIntegrity, "crew %q failed validation with %d violation(s)", cfg.ID, len(violations)).
			WithSubject(cfg.ID).WithCause(integrity)
	}

	if explicitAgents {
		agents = declared
		agentOrder = declaredOrder
	}
	return &Crew{
		id:       cfg.ID,
		name:     cfg.Name,
		process:  cfg.Process,
		tasks:    ordered,
		agents:   agents,
		agentIDs: agentOrder,
	}, nil
}

// dependencyOrder returns a stable topological order: at every step the
// earliest declared task whose dependencies are done is emitted. Tasks left
// over form (or depend on) a cycle. Dependencies outside the crew are ignored.
func dependencyOrder(specs []tasks.TaskSpec, inCrew map[string]bool) ([]tasks.TaskSpec, []string) {
	ordered := make([]tasks.TaskSpec, 0, len(specs))
	done := make(map[string]bool, len(specs))
	emitted := make([]bool, len(specs))

	for len(ordered) < len(specs) {
		progressed := false
		for i, spec := range specs {
			if emitted[i] || !depsDone(spec, done, inCrew) {
				continue
			}
			emitted[i] = true
			done[spec.ID] = true
			ordered = append(ordered, spec)
			progressed = true
			break
		}
		if !progressed {
			var rest []string
			for i, spec := range specs {
				if !emitted[i] {
					rest = append(rest, spec.ID)
				}
			}
			return ordered, rest
		}
	}
	return ordered, nil
}

func depsDone(spec tasks.TaskSpec, done, inCrew map[string]bool) bool {
	for _, dep := range spec.DependsOn {
		if inCrew[dep] && !done[dep] {
			return false
		}
	}
	return true
}
