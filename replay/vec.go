package replay

import (
	"fmt"

	"github.com/zeu5/her-replay/core"
)

// VecHerReplayBuffer routes transitions from parallel environment instances
// to one independent HerReplayBuffer each and merges sampled batches across
// them. Capacity and batch sizes divide as evenly as possible: instance i
// receives (size + i) / nEnvs.
type VecHerReplayBuffer struct {
	buffers []*HerReplayBuffer
	nEnvs   int
}

func NewVecHerReplayBuffer(env core.GoalEnv, params HerParams) (*VecHerReplayBuffer, error) {
	nEnvs := env.Spec().NumEnvs
	if nEnvs < 1 {
		return nil, fmt.Errorf("environment declares %d instances", nEnvs)
	}

	buffers := make([]*HerReplayBuffer, nEnvs)
	for i := 0; i < nEnvs; i++ {
		p := params
		p.BufferSize = (params.BufferSize + i) / nEnvs
		if params.Seed != 0 {
			p.Seed = params.Seed + uint64(i)
		}
		buffer, err := NewHerReplayBuffer(env, p)
		if err != nil {
			return nil, err
		}
		buffers[i] = buffer
	}
	return &VecHerReplayBuffer{buffers: buffers, nEnvs: nEnvs}, nil
}

// NumEnvs returns the number of per-instance buffers.
func (v *VecHerReplayBuffer) NumEnvs() int {
	return v.nEnvs
}

// Add demultiplexes a batched transition by instance index.
func (v *VecHerReplayBuffer) Add(obs, nextObs []core.DictObs, actions [][]float64, rewards []float64, dones []bool, infos []core.Info) error {
	if len(obs) != v.nEnvs {
		return fmt.Errorf("have %d observations for %d instances", len(obs), v.nEnvs)
	}
	for i := 0; i < v.nEnvs; i++ {
		if err := v.buffers[i].Add(obs[i], nextObs[i], actions[i], rewards[i], dones[i], infos[i]); err != nil {
			return err
		}
	}
	return nil
}

// Sample splits the batch across instances, skipping zero-size splits, and
// concatenates the per-instance batches along the batch axis.
func (v *VecHerReplayBuffer) Sample(batchSize int, normalizer core.Normalizer) (*core.Batch, error) {
	batches := make([]*core.Batch, 0, v.nEnvs)
	for i := 0; i < v.nEnvs; i++ {
		n := (batchSize + i) / v.nEnvs
		if n == 0 {
			continue
		}
		batch, err := v.buffers[i].Sample(n, normalizer)
		if err != nil {
			return nil, err
		}
		batches = append(batches, batch)
	}
	return core.ConcatBatches(batches), nil
}

// Size returns the total transitions held across all instances.
func (v *VecHerReplayBuffer) Size() int {
	total := 0
	for _, b := range v.buffers {
		total += b.Size()
	}
	return total
}

func (v *VecHerReplayBuffer) Reset() {
	for _, b := range v.buffers {
		b.Reset()
	}
}

func (v *VecHerReplayBuffer) SetEnv(env core.GoalEnv) error {
	for _, b := range v.buffers {
		if err := b.SetEnv(env); err != nil {
			return err
		}
	}
	return nil
}

func (v *VecHerReplayBuffer) TruncateLastTrajectory() {
	for _, b := range v.buffers {
		b.TruncateLastTrajectory()
	}
}
