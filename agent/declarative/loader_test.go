package declarative

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BaSui01/crewcheck/agent/tasks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================
// YAMLLoader tests
// ============================================================

const agentsYAML = `
agents:
  - id: expense_logger_agent
    role: Expense Logger
    objective: Ensure all user-submitted expenses are parsed and logged correctly.
    persona: A diligent assistant focused on accurate financial data.
    capabilities: [nlu, vision, spreadsheet]
  - id: voice_parser_agent
    role: Voice Note Interpreter
    capabilities: [speech, nlu, spreadsheet]
`

const expensesYAML = `
name: expenses
include: [agents.yaml]` + expensesBody

const expensesBody = `
tasks:
  - id: text_expense_logging
    agent: expense_logger_agent
    description: "just got $17.50 of nails and glue from Home Depot today"
    expected_output: Row with $17.50, vendor Home Depot
    requires: [nlu, spreadsheet]
    timeout: 30s
    tags: [expenses, text]
    expect:
      - {kind: numeric, field: amount, value: 17.50, tolerance: 0.01}
      - {kind: contains, field: vendor, text: home depot}
      - kind: side_effect
        effect: spreadsheet.row_appended
        fields: {vendor: Home Depot}
crews:
  - id: expenses
    name: Expense logging
    process: sequential
    tasks: [text_expense_logging]
fixtures:
  - task: text_expense_logging
    delay: 5ms
    outcome:
      text: Logged $17.50 at Home Depot
      fields: {amount: 17.5, vendor: Home Depot}
      side_effects:
        - kind: spreadsheet.row_appended
          fields: {vendor: Home Depot}
`

func writeTemp(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestYAMLLoader_LoadFile_WithInclude(t *testing.T) {
	dir := t.TempDir()
	writeTemp(t, dir, "agents.yaml", agentsYAML)
	path := writeTemp(t, dir, "expenses.yaml", expensesYAML)

	def, err := NewYAMLLoader().LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "expenses", def.Name)
	require.Len(t, def.Agents, 2)
	assert.Equal(t, "expense_logger_agent", def.Agents[0].ID)
	assert.Equal(t, []string{"nlu", "vision", "spreadsheet"}, def.Agents[0].Capabilities)
	require.Len(t, def.Sources, 2)
	assert.Equal(t, "agents.yaml", filepath.Base(def.Sources[0]), "includes merge first")

	require.Len(t, def.Tasks, 1)
	task := def.Tasks[0]
	assert.Equal(t, Duration(30*time.Second), task.Timeout)
	require.Len(t, task.Expect, 3)
	assert.Equal(t, tasks.AssertNumeric, task.Expect[0].Kind)
	require.NotNil(t, task.Expect[0].Value)
	assert.InDelta(t, 17.50, *task.Expect[0].Value, 1e-9)
	assert.InDelta(t, 0.01, *task.Expect[0].Tolerance, 1e-9)
	assert.Equal(t, "Home Depot", task.Expect[2].Fields["vendor"])

	spec := task.Spec()
	assert.Equal(t, "expense_logger_agent", spec.AgentID)
	assert.Equal(t, 30*time.Second, spec.Timeout)
	assert.Equal(t, []string{"nlu", "spreadsheet"}, spec.RequiredCapabilities)

	require.Len(t, def.Fixtures, 1)
	fx := def.Fixtures[0]
	assert.Equal(t, Duration(5*time.Millisecond), fx.Delay)
	require.NotNil(t, fx.Outcome)
	assert.Equal(t, 17.5, fx.Outcome.Fields["amount"])
	assert.Equal(t, "spreadsheet.row_appended", fx.Outcome.SideEffects[0].Kind)
}

func TestYAMLLoader_LoadFiles_DeduplicatesIncludes(t *testing.T) {
	dir := t.TempDir()
	agents := writeTemp(t, dir, "agents.yaml", agentsYAML)
	expenses := writeTemp(t, dir, "expenses.yaml", expensesYAML)
	voice := writeTemp(t, dir, "voice.yaml", `
include: [agents.yaml]
tasks:
  - {id: voice_expense, agent: voice_parser_agent, description: "Spent $95 at Roofmart"}
`)

	def, err := NewYAMLLoader().LoadFiles(expenses, voice, agents)
	require.NoError(t, err)
	assert.Len(t, def.Agents, 2, "agents.yaml merged once")
	assert.Len(t, def.Tasks, 2)
	assert.Len(t, def.Sources, 3)
}

func TestYAMLLoader_LoadDir(t *testing.T) {
	dir := t.TempDir()
	writeTemp(t, dir, "b.yaml", `tasks: [{id: b, agent: a, description: b}]`)
	writeTemp(t, dir, "a.json", `{"agents": [{"id": "a", "role": "A"}]}`)
	writeTemp(t, dir, "README.md", "ignored")

	def, err := NewYAMLLoader().LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, def.Agents, 1)
	require.Len(t, def.Tasks, 1)
	assert.Equal(t, "a.json", filepath.Base(def.Sources[0]))

	_, err = NewYAMLLoader().LoadDir(t.TempDir())
	assert.Error(t, err)
}

func TestYAMLLoader_IncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeTemp(t, dir, "a.yaml", `include: [b.yaml]`)
	writeTemp(t, dir, "b.yaml", `include: [a.yaml]`)

	_, err := NewYAMLLoader().LoadFile(filepath.Join(dir, "a.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "include cycle")
}

func TestYAMLLoader_LoadBytes_JSON(t *testing.T) {
	def, err := NewYAMLLoader().LoadBytes([]byte(`{
  "tasks": [{
    "id": "receipt",
    "agent": "expense_logger_agent",
    "description": "RONA receipt",
    "timeout": "1m",
    "expect": [{"kind": "equals", "field": "vendor", "text": "RONA"}]
  }],
  "fixtures": [{"task": "receipt", "delay": 1000000, "error": {"code": "UPSTREAM_ERROR", "message": "ocr down", "retryable": true}}]
}`), "json")
	require.NoError(t, err)
	assert.Equal(t, Duration(time.Minute), def.Tasks[0].Timeout)
	assert.Equal(t, tasks.AssertEquals, def.Tasks[0].Expect[0].Kind)
	assert.Equal(t, Duration(time.Millisecond), def.Fixtures[0].Delay)
	assert.True(t, def.Fixtures[0].Error.Retryable)
}

func TestYAMLLoader_Errors(t *testing.T) {
	loader := NewYAMLLoader()

	_, err := loader.LoadBytes([]byte("tasks: [{id: a, agnet: typo}]"), "yaml")
	assert.Error(t, err, "unknown fields are rejected")

	_, err = loader.LoadBytes([]byte("tasks: [{id: a, timeout: soon}]"), "yaml")
	assert.Error(t, err)

	_, err = loader.LoadBytes([]byte(`{"tasks": [{"id": "a", "timeout": "soon"}]}`), "json")
	assert.Error(t, err)

	_, err = loader.LoadBytes([]byte("{}"), "toml")
	assert.Error(t, err)

	dir := t.TempDir()
	_, err = loader.LoadFile(writeTemp(t, dir, "scenario.txt", "agents: []"))
	assert.Error(t, err)

	_, err = loader.LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestYAMLLoader_EmptyFile(t *testing.T) {
	def, err := NewYAMLLoader().LoadBytes(nil, "yaml")
	require.NoError(t, err)
	assert.Empty(t, def.Agents)
}

func TestDuration_RoundTrip(t *testing.T) {
	d := Duration(90 * time.Second)
	b, err := d.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"1m30s"`, string(b))

	var back Duration
	require.NoError(t, back.UnmarshalJSON(b))
	assert.Equal(t, d, back)

	y, err := d.MarshalYAML()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", y)
}
