package declarative

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/BaSui01/crewcheck/agent/tasks"
	"github.com/BaSui01/crewcheck/types"
	"gopkg.in/yaml.v3"
)

// ScenarioDefinition is one scenario file. Files may include other files;
// the loader merges them, includes first.
type ScenarioDefinition struct {
	Name        string   `yaml:"name,omitempty" json:"name,omitempty"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Include     []string `yaml:"include,omitempty" json:"include,omitempty"`

	Agents   []AgentDefinition   `yaml:"agents,omitempty" json:"agents,omitempty"`
	Tasks    []TaskDefinition    `yaml:"tasks,omitempty" json:"tasks,omitempty"`
	Crews    []CrewDefinition    `yaml:"crews,omitempty" json:"crews,omitempty"`
	Fixtures []FixtureDefinition `yaml:"fixtures,omitempty" json:"fixtures,omitempty"`

	// Sources lists the files merged into this definition.
	Sources []string `yaml:"-" json:"-"`
}

// AgentDefinition declares an agent profile.
type AgentDefinition struct {
	ID           string   `yaml:"id" json:"id"`
	Role         string   `yaml:"role" json:"role"`
	Objective    string   `yaml:"objective,omitempty" json:"objective,omitempty"`
	Persona      string   `yaml:"persona,omitempty" json:"persona,omitempty"`
	Capabilities []string `yaml:"capabilities,omitempty" json:"capabilities,omitempty"`
}

// TaskDefinition declares a task spec.
type TaskDefinition struct {
	ID             string            `yaml:"id" json:"id"`
	Agent          string            `yaml:"agent" json:"agent"`
	Description    string            `yaml:"description" json:"description"`
	ExpectedOutput string            `yaml:"expected_output,omitempty" json:"expected_output,omitempty"`
	Requires       []string          `yaml:"requires,omitempty" json:"requires,omitempty"`
	DependsOn      []string          `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
	Timeout        Duration          `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Tags           []string          `yaml:"tags,omitempty" json:"tags,omitempty"`
	Expect         []tasks.Assertion `yaml:"expect,omitempty" json:"expect,omitempty"`
}

// Spec converts the definition into a task spec.
func (d TaskDefinition) Spec() tasks.TaskSpec {
	return tasks.TaskSpec{
		ID:                   d.ID,
		Description:          d.Description,
		ExpectedOutput:       d.ExpectedOutput,
		Expect:               d.Expect,
		AgentID:              d.Agent,
		RequiredCapabilities: d.Requires,
		DependsOn:            d.DependsOn,
		Timeout:              time.Duration(d.Timeout),
		Tags:                 d.Tags,
	}
}

// CrewDefinition declares a crew. Agents is optional; when empty the crew
// uses the agents its tasks name.
type CrewDefinition struct {
	ID      string   `yaml:"id" json:"id"`
	Name    string   `yaml:"name,omitempty" json:"name,omitempty"`
	Process string   `yaml:"process,omitempty" json:"process,omitempty"`
	Agents  []string `yaml:"agents,omitempty" json:"agents,omitempty"`
	Tasks   []string `yaml:"tasks" json:"tasks"`
}

// FixtureDefinition is the replayed answer for one task.
type FixtureDefinition struct {
	Task      string         `yaml:"task" json:"task"`
	Outcome   *types.Outcome `yaml:"outcome,omitempty" json:"outcome,omitempty"`
	Error     *FixtureError  `yaml:"error,omitempty" json:"error,omitempty"`
	Delay     Duration       `yaml:"delay,omitempty" json:"delay,omitempty"`
	FailTimes int            `yaml:"fail_times,omitempty" json:"fail_times,omitempty"`
}

// FixtureError is a replayed capability failure.
type FixtureError struct {
	Code      types.ErrorCode `yaml:"code" json:"code"`
	Message   string          `yaml:"message" json:"message"`
	Retryable bool            `yaml:"retryable,omitempty" json:"retryable,omitempty"`
}

// Duration accepts "30s" style strings in YAML and JSON. A bare JSON number
// is read as nanoseconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Value == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q", node.Line, node.Value)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if s == "" {
			*d = 0
			return nil
		}
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q", s)
		}
		*d = Duration(v)
		return nil
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid duration %s", b)
	}
	*d = Duration(n)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}
