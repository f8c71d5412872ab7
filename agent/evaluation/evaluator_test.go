package evaluation

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/BaSui01/crewcheck/agent/crews"
	"github.com/BaSui01/crewcheck/agent/profiles"
	"github.com/BaSui01/crewcheck/agent/tasks"
	"github.com/BaSui01/crewcheck/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func nailsTask() tasks.TaskSpec {
	return tasks.TaskSpec{
		ID:          "log_nails_task",
		Description: "just got $17.50 of nails and glue from Home Depot today",
		AgentID:     "expense_logger_agent",
		Expect: []tasks.Assertion{
			{Kind: tasks.AssertNumeric, Field: "amount", Value: tasks.Float(17.50), Tolerance: tasks.Float(0.01)},
			{Kind: tasks.AssertContains, Field: "vendor", Text: "Home Depot"},
		},
	}
}

func newTestEvaluator() *Evaluator {
	return NewEvaluator(DefaultEvaluatorConfig(), zap.NewNop())
}

func TestEvaluate_HomeDepotPasses(t *testing.T) {
	v := newTestEvaluator().Evaluate(nailsTask(), &types.Outcome{
		Fields: map[string]any{"amount": 17.50, "vendor": "Home Depot"},
	})
	assert.Equal(t, StatusPass, v.Status)
	assert.Empty(t, v.Mismatches())
	assert.Len(t, v.Assertions, 2)
}

func TestEvaluate_RONAFailsOnVendorOnly(t *testing.T) {
	v := newTestEvaluator().Evaluate(nailsTask(), &types.Outcome{
		Fields: map[string]any{"amount": 17.50, "vendor": "RONA"},
	})
	require.Equal(t, StatusFail, v.Status)
	mismatches := v.Mismatches()
	require.Len(t, mismatches, 1)
	assert.Equal(t, "vendor", mismatches[0].Assertion.Field)
	assert.Equal(t, `"RONA"`, mismatches[0].Actual)
	assert.Contains(t, v.Explain(), "vendor contains \"Home Depot\"")
}

func TestNumericMatcher_ToleranceExamples(t *testing.T) {
	tests := []struct {
		name      string
		actual    any
		tolerance *float64
		want      Status
	}{
		{"exact without tolerance", 17.50, nil, StatusPass},
		{"off by a cent without tolerance", 17.49, nil, StatusFail},
		{"off by a cent with tolerance", 17.49, tasks.Float(0.01), StatusPass},
		{"off by two cents with tolerance", 17.48, tasks.Float(0.01), StatusFail},
		{"integer actual", 17, tasks.Float(0.5), StatusPass},
		{"money string", "$17.50", nil, StatusPass},
		{"money string with separators", "$1,017.50", tasks.Float(1000), StatusPass},
		{"not a number", "seventeen fifty", tasks.Float(0.01), StatusFail},
		{"NaN actual", math.NaN(), tasks.Float(0.01), StatusFail},
		{"infinite actual", math.Inf(1), nil, StatusFail},
		{"infinite float32 actual", float32(math.Inf(-1)), nil, StatusFail},
		{"int8 actual", int8(17), tasks.Float(0.5), StatusPass},
		{"int16 actual", int16(17), tasks.Float(0.5), StatusPass},
		{"uint8 actual", uint8(17), tasks.Float(0.5), StatusPass},
		{"uint16 actual", uint16(18), tasks.Float(0.5), StatusPass},
		{"uint32 actual", uint32(17), tasks.Float(0.5), StatusPass},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := tasks.Assertion{Kind: tasks.AssertNumeric, Field: "amount", Value: tasks.Float(17.50), Tolerance: tt.tolerance}
			r := numericMatcher(a, &types.Outcome{Fields: map[string]any{"amount": tt.actual}})
			assert.Equal(t, tt.want, r.Status, "detail: %s", r.Detail)
		})
	}
}

func TestNumericMatcher_NonFinite(t *testing.T) {
	a := tasks.Assertion{Kind: tasks.AssertNumeric, Field: "amount", Value: tasks.Float(17.50), Tolerance: tasks.Float(0.01)}
	r := numericMatcher(a, &types.Outcome{Fields: map[string]any{"amount": math.NaN()}})
	assert.Equal(t, StatusFail, r.Status)
	assert.Equal(t, "value is not numeric", r.Detail)

	// assertions built in code skip store validation
	a.Tolerance = tasks.Float(math.Inf(1))
	var v Verdict
	require.NotPanics(t, func() {
		v = newTestEvaluator().Evaluate(tasks.TaskSpec{ID: "t", AgentID: "a", Expect: []tasks.Assertion{a}},
			&types.Outcome{Fields: map[string]any{"amount": 17.50}})
	})
	assert.Equal(t, StatusInconclusive, v.Status)

	a.Tolerance = nil
	a.Value = tasks.Float(math.NaN())
	r = numericMatcher(a, &types.Outcome{Fields: map[string]any{"amount": 17.50}})
	assert.Equal(t, StatusInconclusive, r.Status)
}

func TestContainsMatcher_CaseRules(t *testing.T) {
	out := &types.Outcome{Fields: map[string]any{"vendor": "HOME DEPOT #4021"}}

	r := containsMatcher(tasks.Assertion{Kind: tasks.AssertContains, Field: "vendor", Text: "home depot"}, out)
	assert.Equal(t, StatusPass, r.Status)

	r = containsMatcher(tasks.Assertion{Kind: tasks.AssertContains, Field: "vendor", Text: "Home Depot", CaseSensitive: true}, out)
	assert.Equal(t, StatusFail, r.Status)
}

func TestEqualsMatcher(t *testing.T) {
	out := &types.Outcome{Fields: map[string]any{"status": " Complete ", "amount": 17.5}}
	assert.Equal(t, StatusPass, equalsMatcher(tasks.Assertion{Field: "status", Text: "complete"}, out).Status)
	assert.Equal(t, StatusFail, equalsMatcher(tasks.Assertion{Field: "status", Text: "complete", CaseSensitive: true}, out).Status)
	assert.Equal(t, StatusPass, equalsMatcher(tasks.Assertion{Field: "amount", Text: "17.50"}, out).Status)
}

func TestMissingFieldIsInconclusive(t *testing.T) {
	v := newTestEvaluator().Evaluate(nailsTask(), &types.Outcome{
		Fields: map[string]any{"amount": 17.50},
	})
	assert.Equal(t, StatusInconclusive, v.Status)
	require.Len(t, v.Mismatches(), 1)
	assert.Contains(t, v.Mismatches()[0].Detail, "absent")
}

func TestFailDominatesInconclusive(t *testing.T) {
	v := newTestEvaluator().Evaluate(nailsTask(), &types.Outcome{
		Fields: map[string]any{"amount": 99.0},
	})
	assert.Equal(t, StatusFail, v.Status)
	assert.Len(t, v.Mismatches(), 2, "every non-passing assertion is listed")
}

func TestNestedFieldsAndTextFallback(t *testing.T) {
	spec := tasks.TaskSpec{
		ID:      "t",
		AgentID: "a",
		Expect: []tasks.Assertion{
			{Kind: tasks.AssertContains, Field: "receipt.vendor", Text: "depot"},
			{Kind: tasks.AssertContains, Field: "text", Text: "logged"},
		},
	}
	v := newTestEvaluator().Evaluate(spec, &types.Outcome{
		Text:   "Expense logged.",
		Fields: map[string]any{"receipt": map[string]any{"vendor": "Home Depot"}},
	})
	assert.Equal(t, StatusPass, v.Status)
}

func TestSideEffectMatcher(t *testing.T) {
	a := tasks.Assertion{
		Kind:   tasks.AssertSideEffect,
		Effect: "spreadsheet.row_appended",
		Fields: map[string]string{"vendor": "Home Depot", "amount": "17.50"},
	}

	t.Run("present", func(t *testing.T) {
		out := &types.Outcome{SideEffects: []types.SideEffect{
			{Kind: "email.sent"},
			{Kind: "spreadsheet.row_appended", Fields: map[string]any{"vendor": "home depot", "amount": 17.5, "row": 12}},
		}}
		assert.Equal(t, StatusPass, sideEffectMatcher(a, out).Status)
	})

	t.Run("missing is fail not inconclusive", func(t *testing.T) {
		r := sideEffectMatcher(a, &types.Outcome{})
		assert.Equal(t, StatusFail, r.Status)
		assert.Contains(t, r.Detail, "no side effect")
	})

	t.Run("fields mismatch", func(t *testing.T) {
		out := &types.Outcome{SideEffects: []types.SideEffect{
			{Kind: "spreadsheet.row_appended", Fields: map[string]any{"vendor": "RONA", "amount": 17.5}},
		}}
		r := sideEffectMatcher(a, out)
		assert.Equal(t, StatusFail, r.Status)
		assert.Contains(t, r.Detail, "vendor=RONA")
		assert.NotContains(t, r.Detail, "amount")
	})
}

func TestSemanticMatcher(t *testing.T) {
	e := newTestEvaluator()
	spec := tasks.TaskSpec{ID: "t", AgentID: "a", Expect: []tasks.Assertion{
		{Kind: tasks.AssertSemantic, Text: "Expense for $17.50 logged with vendor Home Depot."},
	}}

	v := e.Evaluate(spec, &types.Outcome{Text: "Logged expense: $17.50, vendor Home Depot"})
	assert.Equal(t, StatusPass, v.Status, v.Explain())

	v = e.Evaluate(spec, &types.Outcome{Text: "The weather is nice today"})
	assert.Equal(t, StatusFail, v.Status)
}

func TestSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, Similarity("Home Depot", "home depot"), 1e-9)
	assert.InDelta(t, 0.0, Similarity("alpha", "beta"), 1e-9)
	assert.Equal(t, 1.0, Similarity("", ""))
	assert.Equal(t, 0.0, Similarity("a", ""))
}

func TestNoAssertionsIsInconclusive(t *testing.T) {
	v := newTestEvaluator().Evaluate(tasks.TaskSpec{ID: "t", AgentID: "a"}, &types.Outcome{Text: "done"})
	assert.Equal(t, StatusInconclusive, v.Status)
	assert.Equal(t, "no assertions declared", v.Detail)
}

func TestCustomMatcher(t *testing.T) {
	e := newTestEvaluator()
	e.RegisterMatcher(tasks.AssertContains, MatcherFunc(func(a tasks.Assertion, _ *types.Outcome) AssertionResult {
		return AssertionResult{Assertion: a, Status: StatusPass}
	}))
	v := e.Evaluate(nailsTask(), &types.Outcome{Fields: map[string]any{"amount": 17.5, "vendor": "RONA"}})
	assert.Equal(t, StatusPass, v.Status)
}

func TestEvaluateRecord_ErrorVerdict(t *testing.T) {
	rec := crews.TaskRecord{
		TaskID:   "log_nails_task",
		AgentID:  "expense_logger_agent",
		Err:      types.NewError(types.ErrTimeout, "task timed out"),
		Started:  true,
		Attempts: 1,
		Duration: 30 * time.Millisecond,
	}
	v := newTestEvaluator().EvaluateRecord(nailsTask(), rec)
	assert.Equal(t, StatusError, v.Status)
	require.NotNil(t, v.Error)
	assert.Equal(t, types.ErrTimeout, v.Error.Code)
	assert.Empty(t, v.Assertions)
	assert.True(t, strings.HasPrefix(v.Explain(), "log_nails_task [expense_logger_agent] ERROR"))
}

func TestEvaluateExecution_CrewOrder(t *testing.T) {
	reg := profiles.NewRegistry(nil)
	require.NoError(t, reg.Register(profiles.AgentProfile{ID: "expense_logger_agent"}))
	store := tasks.NewStore(reg, nil)
	first := nailsTask()
	second := nailsTask()
	second.ID = "log_rona_task"
	require.NoError(t, store.Register(first))
	require.NoError(t, store.Register(second))

	crew, err := crews.Build(crews.CrewConfig{ID: "c", TaskIDs: []string{first.ID, second.ID}}, reg, store)
	require.NoError(t, err)

	exec := &crews.Execution{CrewID: "c", Records: []crews.TaskRecord{
		{TaskID: first.ID, Started: true, Outcome: &types.Outcome{Fields: map[string]any{"amount": 17.5, "vendor": "Home Depot"}}},
		{TaskID: second.ID, Started: true, Outcome: &types.Outcome{Fields: map[string]any{"amount": 17.5, "vendor": "RONA"}}},
	}}
	verdicts, err := newTestEvaluator().EvaluateExecution(context.Background(), crew, exec)
	require.NoError(t, err)
	require.Len(t, verdicts, 2)
	assert.Equal(t, first.ID, verdicts[0].TaskID)
	assert.Equal(t, StatusPass, verdicts[0].Status)
	assert.Equal(t, StatusFail, verdicts[1].Status)

	exec.Records = append(exec.Records, crews.TaskRecord{TaskID: "stranger"})
	_, err = newTestEvaluator().EvaluateExecution(context.Background(), crew, exec)
	assert.True(t, types.IsCode(err, types.ErrUnknownTask))
}
