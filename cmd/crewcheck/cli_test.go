package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/BaSui01/crewcheck/config"
	"github.com/BaSui01/crewcheck/testutil"
	"github.com/BaSui01/crewcheck/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

const expensesScenario = `
name: expenses
agents:
  - id: expense_logger
    role: Expense Logger
    objective: Log receipts to the expense spreadsheet
    capabilities: [spreadsheet]
tasks:
  - id: log_home_depot
    agent: expense_logger
    description: Log the Home Depot receipt for $45.99
    expect:
      - kind: equals
        field: vendor
        text: Home Depot
      - kind: numeric
        field: amount
        value: 45.99
  - id: log_rona
    agent: expense_logger
    description: Log the RONA receipt for $12.50
    expect:
      - kind: equals
        field: vendor
        text: RONA
crews:
  - id: expenses
    name: Expense crew
    tasks: [log_home_depot, log_rona]
fixtures:
  - task: log_home_depot
    outcome:
      text: Logged $45.99 at Home Depot
      fields:
        vendor: Home Depot
        amount: 45.99
  - task: log_rona
    outcome:
      text: Logged $12.50 at Home Depot
      fields:
        vendor: Home Depot
        amount: 12.50
`

const passingScenario = `
name: passing
agents:
  - id: expense_logger
    role: Expense Logger
tasks:
  - id: log_home_depot
    agent: expense_logger
    description: Log the Home Depot receipt
    expect:
      - kind: contains
        field: text
        text: home depot
crews:
  - id: only_pass
    tasks: [log_home_depot]
fixtures:
  - task: log_home_depot
    outcome:
      text: Logged $45.99 at Home Depot
`

const brokenScenario = `
name: broken
agents:
  - id: expense_logger
    role: Expense Logger
tasks:
  - id: make_chart
    agent: chart_creator
    description: Draw a chart
  - id: send_email
    agent: email_dispatch
    description: Send the summary
crews:
  - id: broken
    tasks: [make_chart, send_email]
`

// =============================================================================
// 🧪 测试辅助
// =============================================================================

type harness struct {
	dir        string
	configPath string
	reportsDir string
}

func newHarness(t *testing.T, extra string) *harness {
	t.Helper()
	dir := t.TempDir()
	h := &harness{
		dir:        dir,
		configPath: filepath.Join(dir, "crewcheck.yaml"),
		reportsDir: filepath.Join(dir, "reports"),
	}
	cfg := fmt.Sprintf(`
run:
  initial_backoff: 1ms
  max_backoff: 5ms
sink:
  type: file
  base_dir: %s
log:
  level: error
  format: json
%s`, h.reportsDir, extra)
	require.NoError(t, os.WriteFile(h.configPath, []byte(cfg), 0o644))
	return h
}

func (h *harness) scenario(t *testing.T, name, content string) string {
	t.Helper()
	return testutil.WriteFile(t, h.dir, name, content)
}

func (h *harness) exec(args ...string) (stdout, stderr string, err error) {
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs(append([]string{"--config", h.configPath}, args...))
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

// =============================================================================
// 🧪 退出码
// =============================================================================

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitOK},
		{"task failures", errTasksFailed, exitFailures},
		{"wrapped task failures", fmt.Errorf("run: %w", errTasksFailed), exitFailures},
		{"persistence", types.NewError(types.ErrPersistence, "disk full"), exitPersistence},
		{"explicit", withExit(exitPersistence, errors.New("sink down")), exitPersistence},
		{"invalid", invalidf("bad flag"), exitInvalid},
		{"plain error", errors.New("unknown flag"), exitInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestWithExit_Nil(t *testing.T) {
	assert.NoError(t, withExit(exitInvalid, nil))
}

func TestInitLogger(t *testing.T) {
	logger := initLogger(config.LogConfig{Level: "debug", Format: "json", OutputPaths: []string{"stderr"}})
	require.NotNil(t, logger)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	logger = initLogger(config.LogConfig{Level: "nonsense", Format: "console"})
	require.NotNil(t, logger)
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
}

func TestFlattenErrors(t *testing.T) {
	a, b, c := errors.New("a"), errors.New("b"), errors.New("c")
	err := withExit(exitInvalid, errors.Join(a, errors.Join(b, c)))
	assert.Equal(t, []error{a, b, c}, flattenErrors(err))
	assert.Nil(t, flattenErrors(nil))
}

// =============================================================================
// 🧪 子命令
// =============================================================================

func TestVersionCmd(t *testing.T) {
	h := newHarness(t, "")
	out, _, err := h.exec("version")
	require.NoError(t, err)
	assert.Contains(t, out, "crewcheck ")
	assert.Contains(t, out, "Git Commit:")
}

func TestValidateCmd(t *testing.T) {
	h := newHarness(t, "")

	t.Run("ok", func(t *testing.T) {
		out, _, err := h.exec("validate", "-f", h.scenario(t, "expenses.yaml", expensesScenario))
		require.NoError(t, err)
		assert.Contains(t, out, "expenses: OK (1 agents, 2 tasks, 1 crews, 2 fixtures, 1 files)")
	})

	t.Run("reports every unregistered agent", func(t *testing.T) {
		_, stderr, err := h.exec("validate", "-f", h.scenario(t, "broken.yaml", brokenScenario))
		require.Error(t, err)
		assert.Equal(t, exitInvalid, exitCode(err))
		assert.Contains(t, stderr, "chart_creator")
		assert.Contains(t, stderr, "email_dispatch")
	})

	t.Run("missing file", func(t *testing.T) {
		_, _, err := h.exec("validate", "-f", filepath.Join(h.dir, "nope.yaml"))
		assert.Equal(t, exitInvalid, exitCode(err))
	})
}

func TestRunCmd_FailingTaskExitsOne(t *testing.T) {
	h := newHarness(t, "")
	out, _, err := h.exec("run", "-f", h.scenario(t, "expenses.yaml", expensesScenario))
	require.Error(t, err)
	assert.Equal(t, exitFailures, exitCode(err))

	assert.Contains(t, out, "Expense crew: 2 tasks, 1 pass, 1 fail")
	assert.Contains(t, out, "log_rona [expense_logger] FAIL")
	assert.NotContains(t, out, "log_home_depot [expense_logger] PASS", "passing verdicts are hidden without --verbose")

	files, err := filepath.Glob(filepath.Join(h.reportsDir, "crew_run_*.json"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	runID := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(files[0]), "crew_run_"), ".json")

	list, _, err := h.exec("reports", "list")
	require.NoError(t, err)
	assert.Contains(t, list, runID)
	assert.Contains(t, list, "expenses")

	show, _, err := h.exec("reports", "show", runID)
	require.NoError(t, err)
	assert.Contains(t, show, "log_home_depot [expense_logger] PASS")

	raw, _, err := h.exec("reports", "show", "--json", runID)
	require.NoError(t, err)
	assert.Contains(t, raw, `"run_id": "`+runID+`"`)

	_, _, err = h.exec("reports", "show", "run_missing")
	assert.Equal(t, exitInvalid, exitCode(err))
}

func TestRunCmd_PassingCrew(t *testing.T) {
	h := newHarness(t, "")
	out, _, err := h.exec("run", "--verbose", "-f", h.scenario(t, "passing.yaml", passingScenario))
	require.NoError(t, err)
	assert.Contains(t, out, "log_home_depot [expense_logger] PASS")
}

func TestRunCmd_SelectCrew(t *testing.T) {
	h := newHarness(t, "")
	dir := filepath.Join(h.dir, "scenarios")
	testutil.WriteFile(t, dir, "expenses.yaml", expensesScenario)

	_, _, err := h.exec("run", "-f", dir, "--crew", "no_such_crew")
	require.Error(t, err)
	assert.Equal(t, exitInvalid, exitCode(err))
	assert.Contains(t, err.Error(), "no_such_crew")

	out, _, err := h.exec("run", "-f", dir, "--crew", "expenses")
	assert.Equal(t, exitFailures, exitCode(err))
	assert.Contains(t, out, "Expense crew")
}

func TestRunCmd_InvalidCapabilityMode(t *testing.T) {
	h := newHarness(t, "")
	_, _, err := h.exec("run", "--capability", "carrier-pigeon", "-f", h.scenario(t, "passing.yaml", passingScenario))
	assert.Equal(t, exitInvalid, exitCode(err))
}

func TestRunCmd_InvalidConfig(t *testing.T) {
	h := newHarness(t, "metrics:\n  enabled: true\n  addr: \"\"\n")
	_, _, err := h.exec("run", "-f", h.scenario(t, "passing.yaml", passingScenario))
	require.Error(t, err)
	assert.Equal(t, exitInvalid, exitCode(err))
	assert.Contains(t, err.Error(), "metrics.addr")
}

func TestMigrateCmd_SQLite(t *testing.T) {
	h := newHarness(t, "")
	dbPath := filepath.Join(h.dir, "crewcheck.db")

	out, _, err := h.exec("migrate", "up", "--driver", "sqlite", "--dsn", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Current version: 1")

	out, _, err = h.exec("migrate", "status", "--driver", "sqlite", "--dsn", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Total: 1, Applied: 1, Pending: 0")

	_, _, err = h.exec("migrate", "steps", "abc", "--driver", "sqlite", "--dsn", dbPath)
	assert.Equal(t, exitInvalid, exitCode(err))
}
