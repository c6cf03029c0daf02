package replay

import (
	erand "golang.org/x/exp/rand"
)

// goalStore is a bounded ring of desired goals recorded at episode
// completion. Its lifecycle is independent of the episode arena: goals
// survive arena resets so history-based strategies can relabel against
// earlier episodes.
type goalStore struct {
	goals    []float64
	goalDim  int
	capacity int
	pos      int
	full     bool
}

func newGoalStore(capacity, goalDim int) *goalStore {
	if capacity < 1 {
		capacity = 1
	}
	return &goalStore{
		goals:    make([]float64, capacity*goalDim),
		goalDim:  goalDim,
		capacity: capacity,
	}
}

func (g *goalStore) Add(goal []float64) {
	copy(g.goals[g.pos*g.goalDim:(g.pos+1)*g.goalDim], goal)
	g.pos++
	if g.pos == g.capacity {
		g.full = true
		g.pos = 0
	}
}

func (g *goalStore) Size() int {
	if g.full {
		return g.capacity
	}
	return g.pos
}

func (g *goalStore) Sample(rng *erand.Rand) []float64 {
	idx := rng.Intn(g.Size())
	return copyRow(g.goals, idx, g.goalDim)
}
