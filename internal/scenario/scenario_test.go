package scenario_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/gatecheck/internal/config"
	"github.com/xkilldash9x/gatecheck/internal/scenario"
)

func TestFromConfig(t *testing.T) {
	t.Run("defaults compile", func(t *testing.T) {
		scs, err := scenario.FromConfig(config.NewDefaultConfig().Scenarios())
		require.NoError(t, err)
		require.Len(t, scs, 5)
		assert.Equal(t, scenario.ExpectAuthenticated, scs[0].Expect)
		assert.Nil(t, scs[0].ErrorPattern)
		require.NotNil(t, scs[2].ErrorPattern)
		assert.True(t, scs[2].ErrorPattern.MatchString("Epic sadface: Sorry, this user has been LOCKED OUT."))
	})

	t.Run("invalid pattern", func(t *testing.T) {
		_, err := scenario.FromConfig([]config.ScenarioConfig{{Name: "bad", Expect: "error", ErrorPattern: "("}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid error_pattern")
	})

	t.Run("invalid definition", func(t *testing.T) {
		_, err := scenario.FromConfig([]config.ScenarioConfig{{Name: "x", Expect: "maybe"}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "scenarios[0]")
	})
}

func TestSummaryOK(t *testing.T) {
	assert.True(t, scenario.Summary{Passed: 3}.OK())
	assert.False(t, scenario.Summary{Passed: 2, Failed: 1}.OK())
}
