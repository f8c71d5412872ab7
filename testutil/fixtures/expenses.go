// =============================================================================
// 📦 测试数据工厂 - 记账场景
// =============================================================================
// Home Depot 与 RONA 两张收据，RONA 的回放结果故意记错商家
// =============================================================================
package fixtures

import (
	"testing"
	"time"

	"github.com/BaSui01/crewcheck/agent/capability"
	"github.com/BaSui01/crewcheck/agent/crews"
	"github.com/BaSui01/crewcheck/agent/profiles"
	"github.com/BaSui01/crewcheck/agent/tasks"
	"github.com/BaSui01/crewcheck/types"
)

// Task and crew IDs
const (
	HomeDepotTask = "log_home_depot"
	RonaTask      = "log_rona"
	ExpenseCrewID = "expenses"
)

// HomeDepotSpec 返回 $45.99 Home Depot 收据任务
func HomeDepotSpec() tasks.TaskSpec {
	return tasks.TaskSpec{
		ID:                   HomeDepotTask,
		Description:          "Log the Home Depot receipt for $45.99",
		AgentID:              ExpenseLogger,
		RequiredCapabilities: []string{"spreadsheet"},
		Expect: []tasks.Assertion{
			{Kind: tasks.AssertEquals, Field: "vendor", Text: "Home Depot"},
			{Kind: tasks.AssertNumeric, Field: "amount", Value: tasks.Float(45.99), Tolerance: tasks.Float(0.01)},
			{Kind: tasks.AssertSideEffect, Effect: "spreadsheet.row_appended"},
		},
	}
}

// RonaSpec 返回 $12.50 RONA 收据任务
func RonaSpec() tasks.TaskSpec {
	return tasks.TaskSpec{
		ID:          RonaTask,
		Description: "Log the RONA receipt for $12.50",
		AgentID:     ExpenseLogger,
		Expect: []tasks.Assertion{
			{Kind: tasks.AssertEquals, Field: "vendor", Text: "RONA"},
			{Kind: tasks.AssertNumeric, Field: "amount", Value: tasks.Float(12.50)},
		},
	}
}

// HomeDepotOutcome 返回满足 HomeDepotSpec 的结果
func HomeDepotOutcome() *types.Outcome {
	return &types.Outcome{
		Text:   "Logged $45.99 at Home Depot",
		Fields: map[string]any{"vendor": "Home Depot", "amount": 45.99},
		SideEffects: []types.SideEffect{
			{Kind: "spreadsheet.row_appended", Fields: map[string]any{"vendor": "Home Depot"}},
		},
	}
}

// MislabeledRonaOutcome 返回商家被记成 Home Depot 的 RONA 结果
func MislabeledRonaOutcome() *types.Outcome {
	return &types.Outcome{
		Text:   "Logged $12.50 at Home Depot",
		Fields: map[string]any{"vendor": "Home Depot", "amount": 12.50},
	}
}

// ExpenseStore 返回注册了两个记账任务的 Store
func ExpenseStore(t testing.TB, registry *profiles.Registry) *tasks.Store {
	t.Helper()

	store := tasks.NewStore(registry, nil)
	for _, spec := range []tasks.TaskSpec{HomeDepotSpec(), RonaSpec()} {
		if err := store.Register(spec); err != nil {
			t.Fatalf("register %s: %v", spec.ID, err)
		}
	}
	return store
}

// ExpenseCrew 返回顺序执行两个记账任务的船员
func ExpenseCrew(t testing.TB) *crews.Crew {
	t.Helper()

	registry := Registry(t)
	crew, err := crews.Build(crews.CrewConfig{
		ID:      ExpenseCrewID,
		Name:    "Expense crew",
		Process: crews.ProcessSequential,
		TaskIDs: []string{HomeDepotTask, RonaTask},
	}, registry, ExpenseStore(t, registry))
	if err != nil {
		t.Fatalf("build crew: %v", err)
	}
	return crew
}

// ExpenseReplay 返回记账场景的回放夹具
func ExpenseReplay() map[string]capability.Fixture {
	return map[string]capability.Fixture{
		HomeDepotTask: {Outcome: HomeDepotOutcome()},
		RonaTask:      {Outcome: MislabeledRonaOutcome()},
	}
}

// FastRetry 返回毫秒级退避的编排配置
func FastRetry() crews.Config {
	cfg := crews.DefaultConfig()
	cfg.Retry.InitialBackoff = time.Millisecond
	cfg.Retry.MaxBackoff = 5 * time.Millisecond
	return cfg
}
