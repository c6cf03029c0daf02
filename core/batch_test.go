package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInfoTimeLimitTruncated(t *testing.T) {
	assert.False(t, Info(nil).TimeLimitTruncated())
	assert.False(t, Info{}.TimeLimitTruncated())
	assert.False(t, Info{InfoTimeLimitTruncated: 0}.TimeLimitTruncated())
	assert.True(t, Info{InfoTimeLimitTruncated: 1}.TimeLimitTruncated())
}

func TestInfoCopyIsIndependent(t *testing.T) {
	orig := Info{"success": 1}
	cp := orig.Copy()
	cp["success"] = 0
	assert.Equal(t, float64(1), orig["success"])

	assert.Nil(t, Info(nil).Copy())
}

func TestDictObsCopyIsIndependent(t *testing.T) {
	orig := DictObs{
		Observation:  []float64{1, 2},
		AchievedGoal: []float64{3},
		DesiredGoal:  []float64{4},
	}
	cp := orig.Copy()
	cp.Observation[0] = 9
	assert.Equal(t, float64(1), orig.Observation[0])
}

func TestConcatBatches(t *testing.T) {
	a := &Batch{
		Observations:     DictBatch{Observation: [][]float64{{1}}, AchievedGoal: [][]float64{{1}}, DesiredGoal: [][]float64{{1}}},
		NextObservations: DictBatch{Observation: [][]float64{{2}}, AchievedGoal: [][]float64{{2}}, DesiredGoal: [][]float64{{2}}},
		Actions:          [][]float64{{0}},
		Dones:            []float64{0},
		Rewards:          []float64{-1},
	}
	b := &Batch{
		Observations:     DictBatch{Observation: [][]float64{{3}, {4}}, AchievedGoal: [][]float64{{3}, {4}}, DesiredGoal: [][]float64{{3}, {4}}},
		NextObservations: DictBatch{Observation: [][]float64{{5}, {6}}, AchievedGoal: [][]float64{{5}, {6}}, DesiredGoal: [][]float64{{5}, {6}}},
		Actions:          [][]float64{{1}, {2}},
		Dones:            []float64{0, 1},
		Rewards:          []float64{-1, 0},
	}

	out := ConcatBatches([]*Batch{a, b})
	assert.Equal(t, 3, out.Len())
	assert.Equal(t, [][]float64{{1}, {3}, {4}}, out.Observations.Observation)
	assert.Equal(t, []float64{-1, -1, 0}, out.Rewards)
	assert.Equal(t, []float64{0, 0, 1}, out.Dones)

	empty := ConcatBatches(nil)
	assert.Equal(t, 0, empty.Len())
}
