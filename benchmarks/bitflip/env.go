package bitflip

import (
	"time"

	erand "golang.org/x/exp/rand"

	"github.com/zeu5/her-replay/core"
)

// Environment is the bit-flipping task: the state is a vector of n bits,
// each action flips one bit, and an episode succeeds when the state matches
// the goal vector. The reward is sparse, 0 on match and -1 otherwise, which
// makes the task near impossible to learn without relabeling for larger n.
type Environment struct {
	n     int
	state []float64
	goal  []float64
	steps int
	rand  *erand.Rand
}

var _ core.GoalEnv = &Environment{}

func New(n int, seed uint64) *Environment {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Environment{
		n:     n,
		state: make([]float64, n),
		goal:  make([]float64, n),
		rand:  erand.New(erand.NewSource(seed)),
	}
}

func (e *Environment) Spec() core.GoalEnvSpec {
	return core.GoalEnvSpec{
		ObsDim:          e.n,
		GoalDim:         e.n,
		ActionDim:       1,
		NumEnvs:         1,
		MaxEpisodeSteps: e.n,
	}
}

func (e *Environment) Reset() core.DictObs {
	for i := 0; i < e.n; i++ {
		e.state[i] = float64(e.rand.Intn(2))
		e.goal[i] = float64(e.rand.Intn(2))
	}
	// a solved start would make a zero-length episode
	if e.matched() {
		i := e.rand.Intn(e.n)
		e.goal[i] = 1 - e.goal[i]
	}
	e.steps = 0
	return e.obs()
}

// Step flips the given bit and returns the resulting observation, reward,
// done flag and step info. Hitting the step limit terminates the episode
// with the time-limit marker set.
func (e *Environment) Step(bit int) (core.DictObs, float64, bool, core.Info) {
	e.state[bit] = 1 - e.state[bit]
	e.steps++

	info := core.Info{}
	reward := e.ComputeReward(e.state, e.goal, info)
	done := e.matched()
	if !done && e.steps >= e.n {
		done = true
		info[core.InfoTimeLimitTruncated] = 1
	}
	return e.obs(), reward, done, info
}

func (e *Environment) ComputeReward(achievedGoal, desiredGoal []float64, _ core.Info) float64 {
	for i := range achievedGoal {
		if achievedGoal[i] != desiredGoal[i] {
			return -1
		}
	}
	return 0
}

func (e *Environment) matched() bool {
	return e.ComputeReward(e.state, e.goal, nil) == 0
}

func (e *Environment) obs() core.DictObs {
	return core.DictObs{
		Observation:  copyBits(e.state),
		AchievedGoal: copyBits(e.state),
		DesiredGoal:  copyBits(e.goal),
	}
}

func copyBits(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}
