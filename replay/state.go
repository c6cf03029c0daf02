package replay

import (
	"bytes"
	"encoding/gob"
	"time"

	"github.com/rs/zerolog"
	erand "golang.org/x/exp/rand"

	"github.com/zeu5/her-replay/core"
)

// Persistence covers all array storage, bookkeeping and configuration as one
// opaque gob blob. The environment handle is deliberately excluded: restored
// buffers hold no environment and must be reattached via SetEnv before use.

type replayBufferState struct {
	Obs              []float64
	AchievedGoal     []float64
	DesiredGoal      []float64
	NextObs          []float64
	NextAchievedGoal []float64
	NextDesiredGoal  []float64
	Action           []float64
	Reward           []float64
	Done             []float64
	Infos            []core.Info

	Capacity  int
	ObsDim    int
	GoalDim   int
	ActionDim int
	Pos       int
	Full      bool
}

func (b *ReplayBuffer) state() *replayBufferState {
	return &replayBufferState{
		Obs:              b.obs,
		AchievedGoal:     b.achievedGoal,
		DesiredGoal:      b.desiredGoal,
		NextObs:          b.nextObs,
		NextAchievedGoal: b.nextAchievedGoal,
		NextDesiredGoal:  b.nextDesiredGoal,
		Action:           b.action,
		Reward:           b.reward,
		Done:             b.done,
		Infos:            b.infos,

		Capacity:  b.capacity,
		ObsDim:    b.obsDim,
		GoalDim:   b.goalDim,
		ActionDim: b.actionDim,
		Pos:       b.pos,
		Full:      b.full,
	}
}

func (b *ReplayBuffer) restore(s *replayBufferState) {
	b.obs = s.Obs
	b.achievedGoal = s.AchievedGoal
	b.desiredGoal = s.DesiredGoal
	b.nextObs = s.NextObs
	b.nextAchievedGoal = s.NextAchievedGoal
	b.nextDesiredGoal = s.NextDesiredGoal
	b.action = s.Action
	b.reward = s.Reward
	b.done = s.Done
	b.infos = s.Infos

	b.capacity = s.Capacity
	b.obsDim = s.ObsDim
	b.goalDim = s.GoalDim
	b.actionDim = s.ActionDim
	b.pos = s.Pos
	b.full = s.Full

	b.rand = erand.New(erand.NewSource(uint64(time.Now().UnixNano())))
}

func (b *ReplayBuffer) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(b.state()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (b *ReplayBuffer) UnmarshalBinary(data []byte) error {
	s := &replayBufferState{}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(s); err != nil {
		return err
	}
	b.restore(s)
	return nil
}

type goalStoreState struct {
	Goals    []float64
	GoalDim  int
	Capacity int
	Pos      int
	Full     bool
}

type herState struct {
	BufferSize               int
	MaxEpisodeLength         int
	MaxEpisodeStored         int
	NSampledGoal             int
	NSampledGoalPreselection int
	DesiredGoalBufferSize    int
	Strategy                 int
	OnlineSampling           bool
	HandleTimeoutTermination bool
	ModifyGoal               bool
	Seed                     uint64
	Spec                     core.GoalEnvSpec

	Obs              []float64
	AchievedGoal     []float64
	DesiredGoal      []float64
	NextObs          []float64
	NextAchievedGoal []float64
	NextDesiredGoal  []float64
	Action           []float64
	Reward           []float64
	Done             []float64
	Infos            [][]core.Info
	EpisodeLengths   []int

	Pos          int
	CurrentIdx   int
	EpisodeSteps int
	Full         bool

	GoalStore  *goalStoreState
	Downstream *replayBufferState
}

func (b *HerReplayBuffer) MarshalBinary() ([]byte, error) {
	s := &herState{
		BufferSize:               b.params.BufferSize,
		MaxEpisodeLength:         b.maxEpisodeLength,
		MaxEpisodeStored:         b.maxEpisodeStored,
		NSampledGoal:             b.params.NSampledGoal,
		NSampledGoalPreselection: b.params.NSampledGoalPreselection,
		DesiredGoalBufferSize:    b.params.DesiredGoalBufferSize,
		Strategy:                 int(b.params.Strategy),
		OnlineSampling:           b.params.OnlineSampling,
		HandleTimeoutTermination: b.params.HandleTimeoutTermination,
		ModifyGoal:               b.params.ModifyGoal,
		Seed:                     b.params.Seed,
		Spec:                     b.spec,

		Obs:              b.arena.obs,
		AchievedGoal:     b.arena.achievedGoal,
		DesiredGoal:      b.arena.desiredGoal,
		NextObs:          b.arena.nextObs,
		NextAchievedGoal: b.arena.nextAchievedGoal,
		NextDesiredGoal:  b.arena.nextDesiredGoal,
		Action:           b.arena.action,
		Reward:           b.arena.reward,
		Done:             b.arena.done,
		Infos:            b.arena.infos,
		EpisodeLengths:   b.arena.episodeLengths,

		Pos:          b.pos,
		CurrentIdx:   b.currentIdx,
		EpisodeSteps: b.episodeSteps,
		Full:         b.full,
	}
	if b.desiredGoalStore != nil {
		g := b.desiredGoalStore
		s.GoalStore = &goalStoreState{
			Goals:    g.goals,
			GoalDim:  g.goalDim,
			Capacity: g.capacity,
			Pos:      g.pos,
			Full:     g.full,
		}
	}
	if b.replayBuffer != nil {
		s.Downstream = b.replayBuffer.state()
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (b *HerReplayBuffer) UnmarshalBinary(data []byte) error {
	s := &herState{}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(s); err != nil {
		return err
	}

	b.params = HerParams{
		BufferSize:               s.BufferSize,
		MaxEpisodeLength:         s.MaxEpisodeLength,
		NSampledGoal:             s.NSampledGoal,
		NSampledGoalPreselection: s.NSampledGoalPreselection,
		DesiredGoalBufferSize:    s.DesiredGoalBufferSize,
		Strategy:                 GoalSelectionStrategy(s.Strategy),
		OnlineSampling:           s.OnlineSampling,
		HandleTimeoutTermination: s.HandleTimeoutTermination,
		ModifyGoal:               s.ModifyGoal,
		Seed:                     s.Seed,
	}
	b.env = nil
	b.spec = s.Spec
	b.maxEpisodeLength = s.MaxEpisodeLength
	b.maxEpisodeStored = s.MaxEpisodeStored
	b.herRatio = float64(s.NSampledGoal) / float64(s.NSampledGoal+1)
	b.pos = s.Pos
	b.currentIdx = s.CurrentIdx
	b.episodeSteps = s.EpisodeSteps
	b.full = s.Full
	b.logger = zerolog.Nop()

	b.arena = &episodeArena{
		obs:              s.Obs,
		achievedGoal:     s.AchievedGoal,
		desiredGoal:      s.DesiredGoal,
		nextObs:          s.NextObs,
		nextAchievedGoal: s.NextAchievedGoal,
		nextDesiredGoal:  s.NextDesiredGoal,
		action:           s.Action,
		reward:           s.Reward,
		done:             s.Done,
		infos:            s.Infos,
		episodeLengths:   s.EpisodeLengths,

		maxEpisodeStored: s.MaxEpisodeStored,
		maxEpisodeLength: s.MaxEpisodeLength,
		obsDim:           s.Spec.ObsDim,
		goalDim:          s.Spec.GoalDim,
		actionDim:        s.Spec.ActionDim,
	}

	b.desiredGoalStore = nil
	if s.GoalStore != nil {
		b.desiredGoalStore = &goalStore{
			goals:    s.GoalStore.Goals,
			goalDim:  s.GoalStore.GoalDim,
			capacity: s.GoalStore.Capacity,
			pos:      s.GoalStore.Pos,
			full:     s.GoalStore.Full,
		}
	}
	b.replayBuffer = nil
	if s.Downstream != nil {
		b.replayBuffer = &ReplayBuffer{}
		b.replayBuffer.restore(s.Downstream)
		b.params.ReplayBuffer = b.replayBuffer
	}

	seed := s.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	b.rand = erand.New(erand.NewSource(seed))
	return nil
}

type vecState struct {
	NEnvs   int
	Buffers [][]byte
}

func (v *VecHerReplayBuffer) MarshalBinary() ([]byte, error) {
	s := &vecState{NEnvs: v.nEnvs, Buffers: make([][]byte, v.nEnvs)}
	for i, b := range v.buffers {
		bs, err := b.MarshalBinary()
		if err != nil {
			return nil, err
		}
		s.Buffers[i] = bs
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v *VecHerReplayBuffer) UnmarshalBinary(data []byte) error {
	s := &vecState{}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(s); err != nil {
		return err
	}
	v.nEnvs = s.NEnvs
	v.buffers = make([]*HerReplayBuffer, s.NEnvs)
	for i, bs := range s.Buffers {
		v.buffers[i] = &HerReplayBuffer{}
		if err := v.buffers[i].UnmarshalBinary(bs); err != nil {
			return err
		}
	}
	return nil
}
