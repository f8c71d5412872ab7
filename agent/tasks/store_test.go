package tasks

import (
	"math"
	"testing"

	"github.com/BaSui01/crewcheck/agent/profiles"
	"github.com/BaSui01/crewcheck/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRegistry(t *testing.T) *profiles.Registry {
	t.Helper()
	r := profiles.NewRegistry(zap.NewNop())
	require.NoError(t, r.Register(profiles.AgentProfile{
		ID:           "expense_logger_agent",
		Role:         "Expense Logger",
		Objective:    "Log expenses to the spreadsheet.",
		Capabilities: []string{"spreadsheet.append", "file_read"},
	}))
	return r
}

func receiptTask() TaskSpec {
	return TaskSpec{
		ID:                   "log_receipt_task",
		Description:          "Log the attached receipt for $1,017.50 from Home Depot.",
		ExpectedOutput:       "Expense for $1,017.50 logged with vendor Home Depot.",
		AgentID:              "expense_logger_agent",
		RequiredCapabilities: []string{"spreadsheet.append"},
		Expect: []Assertion{
			{Kind: AssertNumeric, Field: "amount", Value: Float(1017.50), Tolerance: Float(0.01)},
			{Kind: AssertContains, Field: "vendor", Text: "Home Depot"},
		},
	}
}

func TestStore_RegisterAndGet(t *testing.T) {
	s := NewStore(newRegistry(t), zap.NewNop())
	require.NoError(t, s.Register(receiptTask()))

	spec, err := s.Get("log_receipt_task")
	require.NoError(t, err)
	assert.Equal(t, "expense_logger_agent", spec.AgentID)
	assert.Len(t, spec.Expect, 2)
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, []string{"log_receipt_task"}, s.IDs())
}

func TestStore_Duplicate(t *testing.T) {
	s := NewStore(newRegistry(t), nil)
	require.NoError(t, s.Register(receiptTask()))
	err := s.Register(receiptTask())
	assert.True(t, types.IsCode(err, types.ErrDuplicateIdentity))
}

func TestStore_UnknownAgent(t *testing.T) {
	s := NewStore(newRegistry(t), nil)
	spec := receiptTask()
	spec.AgentID = "ghost_agent"

	err := s.Register(spec)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrUnknownAgent))
	assert.Equal(t, 0, s.Len())
}

func TestStore_CapabilityMismatchListsAllMissing(t *testing.T) {
	s := NewStore(newRegistry(t), nil)
	spec := receiptTask()
	spec.RequiredCapabilities = []string{"spreadsheet.append", "email.send", "calendar.write"}

	err := s.Register(spec)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrCapabilityMismatch))
	assert.Contains(t, err.Error(), "email.send")
	assert.Contains(t, err.Error(), "calendar.write")
	assert.NotContains(t, err.Error(), "spreadsheet.append,")
}

func TestStore_UnknownTask(t *testing.T) {
	s := NewStore(newRegistry(t), nil)
	_, err := s.Get("nope")
	assert.True(t, types.IsCode(err, types.ErrUnknownTask))
}

func TestStore_MalformedAssertions(t *testing.T) {
	tests := []struct {
		name   string
		assert Assertion
	}{
		{"negative tolerance", Assertion{Kind: AssertNumeric, Field: "amount", Value: Float(1), Tolerance: Float(-0.5)}},
		{"numeric without value", Assertion{Kind: AssertNumeric, Field: "amount"}},
		{"contains without field", Assertion{Kind: AssertContains, Text: "x"}},
		{"unknown kind", Assertion{Kind: "regex", Field: "vendor", Text: ".*"}},
		{"empty kind", Assertion{Field: "vendor"}},
		{"side effect without kind", Assertion{Kind: AssertSideEffect}},
		{"semantic threshold out of range", Assertion{Kind: AssertSemantic, Text: "x", Threshold: 1.5}},
		{"semantic threshold NaN", Assertion{Kind: AssertSemantic, Text: "x", Threshold: math.NaN()}},
		{"NaN value", Assertion{Kind: AssertNumeric, Field: "amount", Value: Float(math.NaN())}},
		{"infinite value", Assertion{Kind: AssertNumeric, Field: "amount", Value: Float(math.Inf(-1))}},
		{"infinite tolerance", Assertion{Kind: AssertNumeric, Field: "amount", Value: Float(1), Tolerance: Float(math.Inf(1))}},
		{"NaN tolerance", Assertion{Kind: AssertNumeric, Field: "amount", Value: Float(1), Tolerance: Float(math.NaN())}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore(newRegistry(t), nil)
			spec := receiptTask()
			spec.Expect = []Assertion{tt.assert}
			err := s.Register(spec)
			require.Error(t, err)
			assert.True(t, types.IsCode(err, types.ErrInvalidDefinition))
		})
	}
}

func TestStore_SpecsAreCopied(t *testing.T) {
	s := NewStore(newRegistry(t), nil)
	spec := receiptTask()
	require.NoError(t, s.Register(spec))

	*spec.Expect[0].Value = 1
	spec.Expect[1].Text = "RONA"

	got, err := s.Get(spec.ID)
	require.NoError(t, err)
	assert.Equal(t, 1017.50, *got.Expect[0].Value)
	assert.Equal(t, "Home Depot", got.Expect[1].Text)
}

func TestStore_AllInOrder(t *testing.T) {
	s := NewStore(newRegistry(t), nil)
	for _, id := range []string{"b", "a", "c"} {
		spec := receiptTask()
		spec.ID = id
		require.NoError(t, s.Register(spec))
	}
	var ids []string
	for spec := range s.All() {
		ids = append(ids, spec.ID)
	}
	assert.Equal(t, []string{"b", "a", "c"}, ids)
}

func TestAssertion_Label(t *testing.T) {
	a := Assertion{Kind: AssertNumeric, Field: "amount", Value: Float(17.5), Tolerance: Float(0.01)}
	assert.Equal(t, "amount ≈ 17.5 (±0.01)", a.Label())

	a = Assertion{Kind: AssertContains, Field: "vendor", Text: "RONA", Description: "vendor is RONA"}
	assert.Equal(t, "vendor is RONA", a.Label())
}
