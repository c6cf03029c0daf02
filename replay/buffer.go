package replay

import (
	"errors"
	"time"

	erand "golang.org/x/exp/rand"

	"github.com/zeu5/her-replay/core"
)

var ErrEmptyBuffer = errors.New("replay buffer is empty")

// ReplayBuffer is a plain fixed-capacity circular store of single
// transitions. It is the persistence target for offline HER sampling: real
// transitions are forwarded to it at add time and virtual transitions are
// materialized into it at episode end.
type ReplayBuffer struct {
	obs              []float64
	achievedGoal     []float64
	desiredGoal      []float64
	nextObs          []float64
	nextAchievedGoal []float64
	nextDesiredGoal  []float64
	action           []float64
	reward           []float64
	done             []float64
	infos            []core.Info

	capacity  int
	obsDim    int
	goalDim   int
	actionDim int

	pos  int
	full bool

	rand *erand.Rand
}

// NewReplayBuffer creates a buffer holding up to capacity transitions shaped
// per the environment spec. A zero seed seeds from the clock.
func NewReplayBuffer(capacity int, spec core.GoalEnvSpec, seed uint64) *ReplayBuffer {
	if capacity < 1 {
		capacity = 1
	}
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &ReplayBuffer{
		obs:              make([]float64, capacity*spec.ObsDim),
		achievedGoal:     make([]float64, capacity*spec.GoalDim),
		desiredGoal:      make([]float64, capacity*spec.GoalDim),
		nextObs:          make([]float64, capacity*spec.ObsDim),
		nextAchievedGoal: make([]float64, capacity*spec.GoalDim),
		nextDesiredGoal:  make([]float64, capacity*spec.GoalDim),
		action:           make([]float64, capacity*spec.ActionDim),
		reward:           make([]float64, capacity),
		done:             make([]float64, capacity),
		infos:            make([]core.Info, capacity),

		capacity:  capacity,
		obsDim:    spec.ObsDim,
		goalDim:   spec.GoalDim,
		actionDim: spec.ActionDim,

		rand: erand.New(erand.NewSource(seed)),
	}
}

func (b *ReplayBuffer) Add(obs, nextObs core.DictObs, action []float64, reward float64, done bool, info core.Info) {
	i := b.pos
	copy(b.obs[i*b.obsDim:(i+1)*b.obsDim], obs.Observation)
	copy(b.achievedGoal[i*b.goalDim:(i+1)*b.goalDim], obs.AchievedGoal)
	copy(b.desiredGoal[i*b.goalDim:(i+1)*b.goalDim], obs.DesiredGoal)
	copy(b.nextObs[i*b.obsDim:(i+1)*b.obsDim], nextObs.Observation)
	copy(b.nextAchievedGoal[i*b.goalDim:(i+1)*b.goalDim], nextObs.AchievedGoal)
	copy(b.nextDesiredGoal[i*b.goalDim:(i+1)*b.goalDim], nextObs.DesiredGoal)
	copy(b.action[i*b.actionDim:(i+1)*b.actionDim], action)
	b.reward[i] = reward
	if done {
		b.done[i] = 1
	} else {
		b.done[i] = 0
	}
	b.infos[i] = info.Copy()

	b.pos++
	if b.pos == b.capacity {
		b.full = true
		b.pos = 0
	}
}

// Sample draws batchSize transitions uniformly. When the buffer is full the
// slot at pos was just overwritten and remains valid, but the draw is offset
// past it so the most recent write is never paired with stale neighbours.
func (b *ReplayBuffer) Sample(batchSize int, normalizer core.Normalizer) (*core.Batch, error) {
	size := b.Size()
	if size == 0 {
		return nil, ErrEmptyBuffer
	}

	batch := newBatch(batchSize)
	for i := 0; i < batchSize; i++ {
		var idx int
		if b.full {
			idx = (b.rand.Intn(b.capacity-1) + 1 + b.pos) % b.capacity
		} else {
			idx = b.rand.Intn(b.pos)
		}
		batch.Observations.Observation[i] = copyRow(b.obs, idx, b.obsDim)
		batch.Observations.AchievedGoal[i] = copyRow(b.achievedGoal, idx, b.goalDim)
		batch.Observations.DesiredGoal[i] = copyRow(b.desiredGoal, idx, b.goalDim)
		batch.NextObservations.Observation[i] = copyRow(b.nextObs, idx, b.obsDim)
		batch.NextObservations.AchievedGoal[i] = copyRow(b.nextAchievedGoal, idx, b.goalDim)
		batch.NextObservations.DesiredGoal[i] = copyRow(b.nextDesiredGoal, idx, b.goalDim)
		batch.Actions[i] = copyRow(b.action, idx, b.actionDim)
		batch.Rewards[i] = b.reward[idx]
		batch.Dones[i] = b.done[idx]
	}
	return normalizeBatch(batch, normalizer), nil
}

func (b *ReplayBuffer) Size() int {
	if b.full {
		return b.capacity
	}
	return b.pos
}

func (b *ReplayBuffer) Capacity() int {
	return b.capacity
}

func (b *ReplayBuffer) Reset() {
	b.pos = 0
	b.full = false
}

// Seed replaces the sampling source, for deterministic tests.
func (b *ReplayBuffer) Seed(seed uint64) {
	b.rand = erand.New(erand.NewSource(seed))
}

func newBatch(n int) *core.Batch {
	return &core.Batch{
		Observations: core.DictBatch{
			Observation:  make([][]float64, n),
			AchievedGoal: make([][]float64, n),
			DesiredGoal:  make([][]float64, n),
		},
		NextObservations: core.DictBatch{
			Observation:  make([][]float64, n),
			AchievedGoal: make([][]float64, n),
			DesiredGoal:  make([][]float64, n),
		},
		Actions: make([][]float64, n),
		Dones:   make([]float64, n),
		Rewards: make([]float64, n),
	}
}

func normalizeBatch(batch *core.Batch, normalizer core.Normalizer) *core.Batch {
	if normalizer == nil {
		return batch
	}
	batch.Observations = normalizer.NormalizeObs(batch.Observations)
	batch.NextObservations = normalizer.NormalizeObs(batch.NextObservations)
	batch.Rewards = normalizer.NormalizeReward(batch.Rewards)
	return batch
}
