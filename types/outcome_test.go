package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOutcome_Lookup(t *testing.T) {
	t.Parallel()

	o := &Outcome{
		Text: "Logged $17.50 from Home Depot",
		Fields: map[string]any{
			"amount": 17.50,
			"receipt": map[string]any{
				"vendor": "Home Depot",
			},
			"row.count": 1,
		},
	}

	v, ok := o.Lookup("amount")
	assert.True(t, ok)
	assert.Equal(t, 17.50, v)

	v, ok = o.Lookup("receipt.vendor")
	assert.True(t, ok)
	assert.Equal(t, "Home Depot", v)

	v, ok = o.Lookup("row.count")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	v, ok = o.Lookup("text")
	assert.True(t, ok)
	assert.Equal(t, "Logged $17.50 from Home Depot", v)

	_, ok = o.Lookup("receipt.date")
	assert.False(t, ok)

	var nilOutcome *Outcome
	_, ok = nilOutcome.Lookup("amount")
	assert.False(t, ok)
}

func TestOutcome_HasTimestamps(t *testing.T) {
	t.Parallel()

	now := time.Now()
	assert.False(t, (&Outcome{}).HasTimestamps())
	assert.False(t, (&Outcome{StartedAt: now}).HasTimestamps())
	assert.True(t, (&Outcome{StartedAt: now, EndedAt: now.Add(time.Second)}).HasTimestamps())
}
