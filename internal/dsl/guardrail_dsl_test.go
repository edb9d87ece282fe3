package dsl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperator_Breached(t *testing.T) {
	tests := []struct {
		name      string
		op        Operator
		value     float64
		threshold float64
		breached  bool
	}{
		{"gte below threshold", GreaterOrEqual, 85, 90, true},
		{"gte above threshold", GreaterOrEqual, 95, 90, false},
		{"gte at threshold", GreaterOrEqual, 90, 90, false},
		{"lte above threshold", LessOrEqual, 15, 10, true},
		{"lte below threshold", LessOrEqual, 5, 10, false},
		{"lte at threshold", LessOrEqual, 10, 10, false},
		{"unknown operator", Operator("between"), 1000, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.breached, tt.op.Breached(tt.value, tt.threshold))
		})
	}
}

func TestAction_RankAndSeverity(t *testing.T) {
	assert.Greater(t, ActionRollback.Rank(), ActionAbort.Rank())
	assert.Greater(t, ActionAbort.Rank(), ActionWarn.Rank())
	assert.Greater(t, ActionWarn.Rank(), ActionNone.Rank())

	assert.Equal(t, Critical, ActionAbort.Severity())
	assert.Equal(t, Critical, ActionRollback.Severity())
	assert.Equal(t, Warning, ActionWarn.Severity())

	assert.True(t, ActionWarn.Valid())
	assert.False(t, Action("explode").Valid())
}

func TestSeverity_AtLeast(t *testing.T) {
	assert.True(t, Critical.AtLeast(High))
	assert.True(t, High.AtLeast(High))
	assert.False(t, Warning.AtLeast(High))

	sev, err := ParseSeverity(" HIGH ")
	require.NoError(t, err)
	assert.Equal(t, High, sev)

	_, err = ParseSeverity("catastrophic")
	assert.Error(t, err)
}

func TestParseCriterion(t *testing.T) {
	tests := []struct {
		expr   string
		cmp    Comparator
		value  float64
		actual float64
		ok     bool
	}{
		{">=95", AtLeast, 95, 96, true},
		{">=95", AtLeast, 95, 80, false},
		{"<= 10", AtMost, 10, 10, true},
		{">0", Above, 0, 0, false},
		{"<5", Below, 5, 4.9, true},
		{"==0", Equal, 0, 0, true},
		{"!=0", NotEqual, 0, 1, true},
		{"99.5%", Equal, 99.5, 99.5, true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			c, err := ParseCriterion(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.cmp, c.Comparator)
			assert.Equal(t, tt.value, c.Value)
			assert.Equal(t, tt.ok, c.Satisfied(tt.actual))
		})
	}
}

func TestParseCriterion_Invalid(t *testing.T) {
	for _, expr := range []string{"", ">=", "fast", ">=NaN"} {
		_, err := ParseCriterion(expr)
		assert.Error(t, err, "expected %q to be rejected", expr)
	}
}
