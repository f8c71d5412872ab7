package declarative

import (
	"context"
	"errors"
	"testing"

	"github.com/BaSui01/crewcheck/agent/crews"
	"github.com/BaSui01/crewcheck/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================
// ScenarioFactory tests
// ============================================================

func mustLoad(t *testing.T, yamlText string) *ScenarioDefinition {
	t.Helper()
	def, err := NewYAMLLoader().LoadBytes([]byte(yamlText), "yaml")
	require.NoError(t, err)
	return def
}

// flatten unwraps joined errors into their leaves.
func flatten(err error) []error {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []error
		for _, e := range joined.Unwrap() {
			out = append(out, flatten(e)...)
		}
		return out
	}
	return []error{err}
}

func emptyOutcome() *types.Outcome { return &types.Outcome{} }

func codes(err error) []types.ErrorCode {
	var out []types.ErrorCode
	for _, e := range flatten(err) {
		out = append(out, types.GetErrorCode(e))
	}
	return out
}

func TestScenarioFactory_Materialize(t *testing.T) {
	def := mustLoad(t, "name: expenses\n"+agentsYAML+expensesBody)

	scenario, err := NewScenarioFactory(nil).Materialize(def)
	require.NoError(t, err)

	assert.Equal(t, 2, scenario.Registry.Len())
	assert.Equal(t, 1, scenario.Store.Len())
	require.Len(t, scenario.Crews(), 1)

	crew, ok := scenario.Crew("expenses")
	require.True(t, ok)
	assert.Equal(t, "Expense logging", crew.Name())
	assert.Equal(t, crews.ProcessSequential, crew.Process())
	assert.Equal(t, []string{"text_expense_logging"}, crew.TaskIDs())

	_, ok = scenario.Crew("missing")
	assert.False(t, ok)

	fixtures := scenario.Fixtures()
	require.Contains(t, fixtures, "text_expense_logging")

	replay := scenario.Replay(nil)
	task, err := scenario.Store.Get("text_expense_logging")
	require.NoError(t, err)
	agent, err := scenario.Registry.Resolve(task.AgentID)
	require.NoError(t, err)
	out, err := replay.Invoke(context.Background(), agent, task)
	require.NoError(t, err)
	assert.Equal(t, "Home Depot", out.Fields["vendor"])
}

func TestScenarioFactory_ReportsEveryProblem(t *testing.T) {
	def := mustLoad(t, `
agents:
  - {id: expense_logger_agent, role: Expense Logger, capabilities: [nlu]}
  - {id: expense_logger_agent, role: Duplicate}
tasks:
  - {id: chart_test, agent: chart_creator_agent, description: chart}
  - {id: email_dispatch_test, agent: email_dispatch_agent, description: email}
  - {id: receipt, agent: expense_logger_agent, description: receipt, requires: [vision]}
  - {id: ok, agent: expense_logger_agent, description: ok}
  - id: bad_assertion
    agent: expense_logger_agent
    description: x
    expect: [{kind: numeric, field: amount}]
crews:
  - {id: mega, tasks: [chart_test, email_dispatch_test, ok]}
  - {id: mega, tasks: [ok]}
fixtures:
  - {task: ghost, outcome: {text: boo}}
  - {task: ok}
`)

	scenario, err := NewScenarioFactory(nil).Materialize(def)
	require.Error(t, err)
	require.NotNil(t, scenario)

	got := codes(err)
	for _, want := range []types.ErrorCode{
		types.ErrDuplicateIdentity,  // agent + crew
		types.ErrUnknownAgent,       // chart_creator_agent, email_dispatch_agent
		types.ErrCapabilityMismatch, // receipt needs vision
		types.ErrInvalidDefinition,  // bad assertion, empty fixture
		types.ErrUnknownTask,        // ghost fixture
		types.ErrCrewIntegrity,      // mega references unregistered tasks
	} {
		assert.Contains(t, got, want)
	}

	msg := err.Error()
	assert.Contains(t, msg, "chart_creator_agent")
	assert.Contains(t, msg, "email_dispatch_agent")

	var integrity *crews.IntegrityError
	require.True(t, errors.As(err, &integrity))
	assert.Equal(t, "mega", integrity.CrewID)

	// valid parts are still registered
	assert.Equal(t, 1, scenario.Registry.Len())
	_, getErr := scenario.Store.Get("ok")
	assert.NoError(t, getErr)
}

func TestScenarioFactory_Validate(t *testing.T) {
	f := NewScenarioFactory(nil)

	assert.Error(t, f.Validate(nil))
	assert.NoError(t, f.Validate(&ScenarioDefinition{}))

	tests := []struct {
		name string
		def  ScenarioDefinition
		code types.ErrorCode
	}{
		{"crew without id", ScenarioDefinition{Crews: []CrewDefinition{{Tasks: []string{"a"}}}}, types.ErrInvalidDefinition},
		{"fixture without task", ScenarioDefinition{Fixtures: []FixtureDefinition{{Error: &FixtureError{Code: "X"}}}}, types.ErrInvalidDefinition},
		{"fixture with both", ScenarioDefinition{Fixtures: []FixtureDefinition{{Task: "a", Outcome: emptyOutcome(), Error: &FixtureError{Code: "X"}}}}, types.ErrInvalidDefinition},
		{"fixture error without code", ScenarioDefinition{Fixtures: []FixtureDefinition{{Task: "a", Error: &FixtureError{}}}}, types.ErrInvalidDefinition},
		{"negative fail_times", ScenarioDefinition{Fixtures: []FixtureDefinition{{Task: "a", Outcome: emptyOutcome(), FailTimes: -1}}}, types.ErrInvalidDefinition},
		{"duplicate fixture", ScenarioDefinition{Fixtures: []FixtureDefinition{{Task: "a", Outcome: emptyOutcome()}, {Task: "a", Outcome: emptyOutcome()}}}, types.ErrDuplicateIdentity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.Validate(&tt.def)
			require.Error(t, err)
			assert.Contains(t, codes(err), tt.code)
		})
	}
}

func TestScenarioFactory_FixtureError(t *testing.T) {
	def := mustLoad(t, `
agents: [{id: a, role: A}]
tasks: [{id: t1, agent: a, description: d}]
fixtures:
  - task: t1
    fail_times: 1
    error: {code: UPSTREAM_ERROR, message: ocr down, retryable: true}
`)
	scenario, err := NewScenarioFactory(nil).Materialize(def)
	require.NoError(t, err)

	fx := scenario.Fixtures()["t1"]
	assert.Equal(t, 1, fx.FailTimes)
	require.NotNil(t, fx.Err)
	assert.Equal(t, types.ErrUpstreamError, fx.Err.Code)
	assert.True(t, fx.Err.Retryable)
	assert.Equal(t, "t1", fx.Err.Subject)
}

func TestScenarioFactory_NonFiniteNumbers(t *testing.T) {
	def := mustLoad(t, `
agents: [{id: a, role: A}]
tasks:
  - id: t1
    agent: a
    description: d
    expect:
      - {kind: numeric, field: amount, value: 17.5, tolerance: .inf}
  - id: t2
    agent: a
    description: d
    expect:
      - {kind: numeric, field: amount, value: .nan}
`)
	_, err := NewScenarioFactory(nil).Materialize(def)
	require.Error(t, err)
	assert.Equal(t, []types.ErrorCode{types.ErrInvalidDefinition, types.ErrInvalidDefinition}, codes(err))
	assert.Contains(t, err.Error(), "non-finite tolerance")
	assert.Contains(t, err.Error(), "non-finite value")
}

func TestScenarioFactory_Nil(t *testing.T) {
	_, err := NewScenarioFactory(nil).Materialize(nil)
	assert.True(t, types.IsCode(err, types.ErrInvalidDefinition))
}
