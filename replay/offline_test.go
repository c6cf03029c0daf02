package replay

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeu5/her-replay/core"
)

// recordingEnv reports the desired goal value as the reward, so replicate
// sums are directly controlled by the goals drawn, and records every reward
// callback invocation.
type recordingEnv struct {
	spec  core.GoalEnvSpec
	calls []float64
}

var _ core.GoalEnv = &recordingEnv{}

func (e *recordingEnv) Spec() core.GoalEnvSpec { return e.spec }

func (e *recordingEnv) ComputeReward(_, desiredGoal []float64, _ core.Info) float64 {
	e.calls = append(e.calls, desiredGoal[0])
	return desiredGoal[0]
}

func newOfflineBuffer(t *testing.T, env core.GoalEnv, strategy GoalSelectionStrategy, nSampledGoal, preselection int) (*HerReplayBuffer, *ReplayBuffer) {
	t.Helper()
	downstream := NewReplayBuffer(1000, env.Spec(), 7)
	b, err := NewHerReplayBuffer(env, HerParams{
		NSampledGoal:             nSampledGoal,
		NSampledGoalPreselection: preselection,
		Strategy:                 strategy,
		ReplayBuffer:             downstream,
		Seed:                     42,
	})
	require.NoError(t, err)
	return b, downstream
}

func TestOfflineMaterializesVirtualTransitions(t *testing.T) {
	env := newStubEnv(5)
	b, downstream := newOfflineBuffer(t, env, Final, 4, 0)

	addEpisode(t, b, 0, 3)

	// 3 real transitions forwarded at add time, 3*4 virtual at episode end
	assert.Equal(t, 15, downstream.Size())

	// the staging slot was recycled
	assert.Equal(t, 0, b.Size())
	assert.Equal(t, 0, b.pos)
	assert.Equal(t, 0, b.currentIdx)

	finalGoal := stepValue(0, 2)
	for i := 3; i < 15; i++ {
		assert.Equal(t, finalGoal, downstream.desiredGoal[i])
		assert.Equal(t, finalGoal, downstream.nextDesiredGoal[i])
		// virtual transitions are stored non-terminal with empty info
		assert.Equal(t, float64(0), downstream.done[i])
		assert.Empty(t, downstream.infos[i])
		// recomputed, never the stored sentinel
		assert.NotEqual(t, originalReward, downstream.reward[i])
	}
	// the real terminal transition keeps its done flag and reward
	assert.Equal(t, float64(1), downstream.done[2])
	assert.Equal(t, originalReward, downstream.reward[2])
}

func TestOfflineFutureSkipsSingleStepEpisode(t *testing.T) {
	env := newStubEnv(5)
	b, downstream := newOfflineBuffer(t, env, Future, 4, 0)

	addEpisode(t, b, 0, 1)

	// only the real transition; nothing to relabel
	assert.Equal(t, 1, downstream.Size())
	assert.Equal(t, 0, b.Size())
}

func TestOfflineFutureTransitionCount(t *testing.T) {
	env := newStubEnv(5)
	b, downstream := newOfflineBuffer(t, env, Future, 2, 0)

	addEpisode(t, b, 0, 4)

	// 4 real + (4-1)*2 virtual: the last step has no future goal
	require.Equal(t, 10, downstream.Size())
	for i := 4; i < 10; i++ {
		step := (i - 4) % 3
		// the substitute goal was achieved strictly after the step
		assert.Greater(t, downstream.desiredGoal[i], stepValue(0, step))
	}
}

func TestOfflinePastDesiredUsesGoalHistory(t *testing.T) {
	env := newStubEnv(5)
	b, downstream := newOfflineBuffer(t, env, PastDesired, 4, 0)

	addEpisode(t, b, 0, 3)

	// the episode's own desired goal enters the history before relabeling,
	// so with a single entry every virtual goal is that goal
	require.Equal(t, 1, b.desiredGoalStore.Size())
	require.Equal(t, 15, downstream.Size())
	for i := 3; i < 15; i++ {
		assert.Equal(t, originalGoal, downstream.desiredGoal[i])
	}
}

func TestOfflinePastDesiredSuccessKeepsTopReplicates(t *testing.T) {
	env := &recordingEnv{spec: newStubEnv(5).Spec()}
	b, downstream := newOfflineBuffer(t, env, PastDesiredSuccess, 2, 5)

	// seed the goal history with distinct values before any episode closes
	for _, g := range []float64{1, 2, 3, 4, 5} {
		b.desiredGoalStore.Add([]float64{g})
	}

	addEpisode(t, b, 0, 3)

	// 3 real + 3*2 kept virtual out of 3*5 candidates
	require.Equal(t, 9, downstream.Size())
	require.Len(t, env.calls, 15)

	// reconstruct the candidate replicate sums from the recorded callbacks
	sums := make([]float64, 5)
	for r := 0; r < 5; r++ {
		for s := 0; s < 3; s++ {
			sums[r] += env.calls[r*3+s]
		}
	}
	distinct := map[float64]bool{}
	for _, s := range sums {
		distinct[s] = true
	}
	ordered := make([]float64, 0, len(distinct))
	for s := range distinct {
		ordered = append(ordered, s)
	}
	sort.Float64s(ordered)
	var wantSums []float64
	if len(ordered) >= 2 {
		wantSums = ordered[len(ordered)-2:]
	} else {
		// every candidate tied; two duplicates survive
		wantSums = []float64{ordered[0], ordered[0]}
	}

	// each kept replicate shares one goal across all of its steps
	assert.Equal(t, downstream.desiredGoal[3], downstream.desiredGoal[4])
	assert.Equal(t, downstream.desiredGoal[3], downstream.desiredGoal[5])
	assert.Equal(t, downstream.desiredGoal[6], downstream.desiredGoal[7])
	assert.Equal(t, downstream.desiredGoal[6], downstream.desiredGoal[8])

	keptSums := []float64{
		downstream.reward[3] + downstream.reward[4] + downstream.reward[5],
		downstream.reward[6] + downstream.reward[7] + downstream.reward[8],
	}
	assert.ElementsMatch(t, wantSums, keptSums)
}

func TestOfflineSampleDelegatesDownstream(t *testing.T) {
	env := newStubEnv(5)
	b, downstream := newOfflineBuffer(t, env, Final, 4, 0)

	addEpisode(t, b, 0, 3)

	batch, err := b.Sample(8, nil)
	require.NoError(t, err)
	assert.Equal(t, 8, batch.Len())
	assert.Equal(t, 15, downstream.Size())
}

func TestTopReplicates(t *testing.T) {
	t.Run("distinct values win by first occurrence", func(t *testing.T) {
		winners := topReplicates([]float64{1, 3, 3, 2}, 2)
		assert.ElementsMatch(t, []int{1, 3}, winners)
	})
	t.Run("largest distinct values", func(t *testing.T) {
		winners := topReplicates([]float64{4, 1, 9}, 2)
		assert.ElementsMatch(t, []int{0, 2}, winners)
	})
	t.Run("falls back on too few distinct values", func(t *testing.T) {
		winners := topReplicates([]float64{5, 5, 5}, 2)
		require.Len(t, winners, 2)
		assert.NotEqual(t, winners[0], winners[1])
		for _, w := range winners {
			assert.Contains(t, []int{0, 1, 2}, w)
		}
	})
}

func TestGoalStoreWraps(t *testing.T) {
	g := newGoalStore(2, 1)
	g.Add([]float64{1})
	assert.Equal(t, 1, g.Size())
	g.Add([]float64{2})
	g.Add([]float64{3})
	assert.Equal(t, 2, g.Size())
	// oldest entry was overwritten
	assert.Equal(t, []float64{3, 2}, g.goals)
}
