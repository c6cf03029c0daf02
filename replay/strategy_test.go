package replay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGoalSelectionStrategy(t *testing.T) {
	cases := map[string]GoalSelectionStrategy{
		"final":                        Final,
		"future":                       Future,
		"episode":                      Episode,
		"episode_past_desired":         PastDesired,
		"episode_past_desired_success": PastDesiredSuccess,
	}
	for name, want := range cases {
		got, err := ParseGoalSelectionStrategy(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.Equal(t, name, got.String())
	}

	_, err := ParseGoalSelectionStrategy("nearest")
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}

func TestStrategyClassification(t *testing.T) {
	assert.True(t, PastDesired.historyBased())
	assert.True(t, PastDesiredSuccess.historyBased())
	assert.False(t, Final.historyBased())
	assert.False(t, Future.historyBased())
	assert.False(t, Episode.historyBased())

	assert.False(t, GoalSelectionStrategy(99).valid())
}
