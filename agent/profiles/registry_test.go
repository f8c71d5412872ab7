package profiles

import (
	"testing"

	"github.com/BaSui01/crewcheck/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func expenseLogger() AgentProfile {
	return AgentProfile{
		ID:           "expense_logger_agent",
		Role:         "Expense Logger",
		Objective:    "Ensure all user-submitted expenses are parsed and logged correctly to the spreadsheet.",
		Persona:      "A diligent assistant focused on logging accurate financial data for users.",
		Capabilities: []string{"spreadsheet.append", "file_read"},
	}
}

func TestRegistry_RegisterAndResolve(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	require.NoError(t, r.Register(expenseLogger()))

	p, err := r.Resolve("expense_logger_agent")
	require.NoError(t, err)
	assert.Equal(t, "Expense Logger", p.Role)
	assert.True(t, p.HasCapability("file_read"))
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_DuplicateIdentity(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(expenseLogger()))

	err := r.Register(expenseLogger())
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrDuplicateIdentity))
}

func TestRegistry_UnknownAgent(t *testing.T) {
	r := NewRegistry(nil)

	_, err := r.Resolve("chart_creator_agent")
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrUnknownAgent))
}

func TestRegistry_EmptyID(t *testing.T) {
	r := NewRegistry(nil)
	err := r.Register(AgentProfile{ID: "  "})
	assert.True(t, types.IsCode(err, types.ErrInvalidDefinition))
}

func TestRegistry_ProfilesAreImmutable(t *testing.T) {
	r := NewRegistry(nil)
	p := expenseLogger()
	require.NoError(t, r.Register(p))

	// Mutating the caller's copy must not leak into the registry.
	p.Capabilities[0] = "email.send"

	resolved, err := r.Resolve(p.ID)
	require.NoError(t, err)
	assert.Equal(t, "spreadsheet.append", resolved.Capabilities[0])

	resolved.Capabilities[0] = "pdf.render"
	again, err := r.Resolve(p.ID)
	require.NoError(t, err)
	assert.Equal(t, "spreadsheet.append", again.Capabilities[0])
}

func TestRegistry_AllInsertionOrderAndRestartable(t *testing.T) {
	r := NewRegistry(nil)
	ids := []string{"voice_parser_agent", "expense_logger_agent", "quote_agent"}
	for _, id := range ids {
		require.NoError(t, r.Register(AgentProfile{ID: id}))
	}

	collect := func() []string {
		var got []string
		for p := range r.All() {
			got = append(got, p.ID)
		}
		return got
	}

	assert.Equal(t, ids, collect())
	assert.Equal(t, ids, collect(), "sequence must be restartable")

	// Early termination stops the iteration.
	var first []string
	for p := range r.All() {
		first = append(first, p.ID)
		break
	}
	assert.Equal(t, []string{"voice_parser_agent"}, first)
}

func TestAgentProfile_MissingCapabilities(t *testing.T) {
	p := expenseLogger()
	assert.Empty(t, p.MissingCapabilities([]string{"file_read"}))
	assert.Equal(t, []string{"pdf.render", "email.send"},
		p.MissingCapabilities([]string{"pdf.render", "file_read", "email.send", "pdf.render"}))
}
