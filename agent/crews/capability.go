package crews

import (
	"context"

	"github.com/BaSui01/crewcheck/agent/profiles"
	"github.com/BaSui01/crewcheck/agent/tasks"
	"github.com/BaSui01/crewcheck/types"
)

// Capability is the external collaborator that actually performs a task.
//
// Implementations must honour ctx cancellation, report timing and side
// effects on the Outcome, and signal transient failures with a
// *types.Error whose Retryable flag is set. Any other error is treated as
// permanent.
type Capability interface {
	Invoke(ctx context.Context, agent profiles.AgentProfile, task tasks.TaskSpec) (*types.Outcome, error)
}

// CapabilityFunc adapts a function to Capability.
type CapabilityFunc func(ctx context.Context, agent profiles.AgentProfile, task tasks.TaskSpec) (*types.Outcome, error)

// Invoke calls f.
func (f CapabilityFunc) Invoke(ctx context.Context, agent profiles.AgentProfile, task tasks.TaskSpec) (*types.Outcome, error) {
	return f(ctx, agent, task)
}
