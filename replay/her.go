package replay

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	erand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/zeu5/her-replay/core"
)

var (
	ErrNoEpisodeLength    = errors.New("max episode length could not be inferred")
	ErrOnlineStrategy     = errors.New("goal selection strategy requires offline sampling")
	ErrPreselection       = errors.New("invalid preselection count")
	ErrNoDownstreamBuffer = errors.New("offline sampling requires a downstream replay buffer")
	ErrEnvAlreadySet      = errors.New("environment already set")
	ErrEnvNotSet          = errors.New("environment not set")
	ErrEnvSpecMismatch    = errors.New("environment spec does not match buffer shapes")
	ErrModifyGoal         = errors.New("environment does not support goal modification")
	ErrTransitionCount    = errors.New("relabeled transition count mismatch")
)

const defaultDesiredGoalBufferSize = 100_000

// HerParams configures a HerReplayBuffer.
type HerParams struct {
	// BufferSize is the total transition capacity. In offline mode the buffer
	// stages only a single episode and BufferSize is ignored.
	BufferSize int
	// MaxEpisodeLength caps episode length. Zero infers the limit from the
	// environment spec; construction fails when neither is available.
	MaxEpisodeLength int
	// NSampledGoal is the number of virtual goals per real transition.
	// Defaults to 4.
	NSampledGoal int
	// NSampledGoalPreselection is the number of candidate relabelings ranked
	// by the PastDesiredSuccess strategy. Required (and > NSampledGoal) for
	// that strategy, forbidden otherwise.
	NSampledGoalPreselection int
	// DesiredGoalBufferSize bounds the desired-goal history used by the
	// history-based strategies. Defaults to 100000.
	DesiredGoalBufferSize int

	Strategy GoalSelectionStrategy
	// OnlineSampling relabels at training-sample time without storing virtual
	// transitions. When false, relabeling happens once at episode end and the
	// results are materialized into ReplayBuffer.
	OnlineSampling bool
	// HandleTimeoutTermination treats time-limit terminations as non-terminal
	// for bootstrapping: the stored done flag is cleared when the step info
	// carries the truncation marker.
	HandleTimeoutTermination bool
	// ModifyGoal lets the environment overwrite the desired goal of relabeled
	// entries after reward computation; requires a core.GoalModifierEnv.
	ModifyGoal bool

	// ReplayBuffer is the downstream store for offline mode. Ignored when
	// sampling online.
	ReplayBuffer *ReplayBuffer

	// Seed for episode, step and goal selection. Zero seeds from the clock.
	Seed uint64

	Logger *zerolog.Logger
}

// HerReplayBuffer stores multi-step episodes keyed by (slot, step) and
// produces batches where a fraction of the transitions have been relabeled
// with substitute goals and recomputed rewards.
type HerReplayBuffer struct {
	params HerParams
	env    core.GoalEnv
	spec   core.GoalEnvSpec

	arena            *episodeArena
	desiredGoalStore *goalStore
	replayBuffer     *ReplayBuffer

	maxEpisodeLength int
	maxEpisodeStored int
	herRatio         float64

	pos          int
	full         bool
	currentIdx   int
	episodeSteps int

	rand   *erand.Rand
	logger zerolog.Logger
}

// NewHerReplayBuffer validates params against the environment and allocates
// the episode storage. All configuration errors surface here, not at first
// use.
func NewHerReplayBuffer(env core.GoalEnv, params HerParams) (*HerReplayBuffer, error) {
	if env == nil {
		return nil, ErrEnvNotSet
	}
	if !params.Strategy.valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownStrategy, int(params.Strategy))
	}
	if params.Strategy.historyBased() && params.OnlineSampling {
		return nil, fmt.Errorf("%w: %s", ErrOnlineStrategy, params.Strategy)
	}
	if params.NSampledGoal == 0 {
		params.NSampledGoal = 4
	}
	if params.Strategy == PastDesiredSuccess {
		if params.NSampledGoalPreselection <= params.NSampledGoal {
			return nil, fmt.Errorf("%w: preselection must exceed n sampled goals for %s", ErrPreselection, params.Strategy)
		}
	} else if params.NSampledGoalPreselection != 0 {
		return nil, fmt.Errorf("%w: preselection is only valid for %s", ErrPreselection, PastDesiredSuccess)
	}
	if params.ModifyGoal {
		if _, ok := env.(core.GoalModifierEnv); !ok {
			return nil, ErrModifyGoal
		}
	}
	if params.DesiredGoalBufferSize == 0 {
		params.DesiredGoalBufferSize = defaultDesiredGoalBufferSize
	}

	spec := env.Spec()
	maxEpisodeLength := params.MaxEpisodeLength
	if maxEpisodeLength == 0 {
		maxEpisodeLength = spec.MaxEpisodeSteps
	}
	if maxEpisodeLength <= 0 {
		return nil, ErrNoEpisodeLength
	}

	// Offline mode stages exactly one episode at a time; the ring capacity is
	// only meaningful for online sampling.
	bufferSize := params.BufferSize
	if !params.OnlineSampling {
		bufferSize = maxEpisodeLength
		if params.ReplayBuffer == nil {
			return nil, ErrNoDownstreamBuffer
		}
	}
	maxEpisodeStored := bufferSize / maxEpisodeLength
	if maxEpisodeStored < 1 {
		maxEpisodeStored = 1
	}

	seed := params.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	logger := zerolog.Nop()
	if params.Logger != nil {
		logger = *params.Logger
	}

	b := &HerReplayBuffer{
		params: params,
		env:    env,
		spec:   spec,

		arena: newEpisodeArena(maxEpisodeStored, maxEpisodeLength, spec.ObsDim, spec.GoalDim, spec.ActionDim),

		maxEpisodeLength: maxEpisodeLength,
		maxEpisodeStored: maxEpisodeStored,
		herRatio:         float64(params.NSampledGoal) / float64(params.NSampledGoal+1),

		rand:   erand.New(erand.NewSource(seed)),
		logger: logger,
	}
	if params.Strategy.historyBased() {
		b.desiredGoalStore = newGoalStore(params.DesiredGoalBufferSize, spec.GoalDim)
	}
	if !params.OnlineSampling {
		b.replayBuffer = params.ReplayBuffer
	}
	return b, nil
}

// SetEnv reattaches an environment after restoring persisted state. The
// handle is settable exactly once; buffers constructed with an environment
// refuse a second one.
func (b *HerReplayBuffer) SetEnv(env core.GoalEnv) error {
	if b.env != nil {
		return ErrEnvAlreadySet
	}
	spec := env.Spec()
	if spec.ObsDim != b.spec.ObsDim || spec.GoalDim != b.spec.GoalDim || spec.ActionDim != b.spec.ActionDim {
		return fmt.Errorf("%w: have (%d,%d,%d), env declares (%d,%d,%d)",
			ErrEnvSpecMismatch, b.spec.ObsDim, b.spec.GoalDim, b.spec.ActionDim,
			spec.ObsDim, spec.GoalDim, spec.ActionDim)
	}
	if b.params.ModifyGoal {
		if _, ok := env.(core.GoalModifierEnv); !ok {
			return ErrModifyGoal
		}
	}
	b.env = env
	return nil
}

// Add records one transition of the in-progress episode. A terminal condition
// (native done or reaching the episode length cap) closes the episode; in
// offline mode that also triggers relabeling into the downstream buffer.
func (b *HerReplayBuffer) Add(obs, nextObs core.DictObs, action []float64, reward float64, done bool, info core.Info) error {
	if b.env == nil {
		return ErrEnvNotSet
	}

	if b.currentIdx == 0 && b.full {
		// first write into a recycled slot drops its stale info queue
		b.arena.clearInfos(b.pos)
	}

	storedDone := float64(0)
	if done {
		storedDone = 1
	}
	if b.params.HandleTimeoutTermination && info.TimeLimitTruncated() {
		storedDone = 0
	}

	b.arena.setStep(b.pos, b.currentIdx, obs, nextObs, action, reward, storedDone)
	b.arena.appendInfo(b.pos, info)

	if b.replayBuffer != nil {
		// offline mode: real transitions go straight to the downstream buffer
		b.replayBuffer.Add(obs, nextObs, action, reward, done, info)
	}

	b.currentIdx++
	b.episodeSteps++

	if done || b.episodeSteps >= b.maxEpisodeLength {
		b.storeEpisode()
		if !b.params.OnlineSampling {
			if b.params.Strategy.historyBased() {
				b.desiredGoalStore.Add(nextObs.DesiredGoal)
			}
			if err := b.sampleHerTransitions(); err != nil {
				return err
			}
			// recycle the single-episode staging storage
			b.Reset()
		}
		b.episodeSteps = 0
	}
	return nil
}

// storeEpisode freezes the length of the active slot and advances the ring.
func (b *HerReplayBuffer) storeEpisode() {
	b.arena.episodeLengths[b.pos] = b.currentIdx
	b.pos++
	if b.pos == b.maxEpisodeStored {
		b.full = true
		b.pos = 0
	}
	b.currentIdx = 0
}

// Sample draws a batch for training. Online mode relabels a her-ratio
// fraction fresh on every call; offline mode delegates to the downstream
// buffer, which already holds the materialized virtual transitions.
func (b *HerReplayBuffer) Sample(batchSize int, normalizer core.Normalizer) (*core.Batch, error) {
	if b.replayBuffer != nil {
		return b.replayBuffer.Sample(batchSize, normalizer)
	}
	if b.env == nil {
		return nil, ErrEnvNotSet
	}
	return b.sampleOnline(batchSize, normalizer)
}

func (b *HerReplayBuffer) sampleOnline(batchSize int, normalizer core.Normalizer) (*core.Batch, error) {
	nStored := b.episodesStored()
	if nStored == 0 || (b.full && nStored == 1) {
		return nil, ErrEmptyBuffer
	}

	episodeIndices := make([]int, batchSize)
	for i := range episodeIndices {
		if b.full {
			// the slot at pos is mid-overwrite; offset the draw past it
			episodeIndices[i] = (b.rand.Intn(nStored-1) + 1 + b.pos) % nStored
		} else {
			episodeIndices[i] = b.rand.Intn(nStored)
		}
	}

	herCount := int(b.herRatio * float64(batchSize))
	isHer := make([]bool, batchSize)
	epLens := make([]int, batchSize)
	for i, ep := range episodeIndices {
		isHer[i] = i < herCount
		epLens[i] = b.arena.episodeLengths[ep]
	}
	if b.params.Strategy == Future {
		// leave room for a later step; length-1 episodes cannot be relabeled
		for i := 0; i < herCount; i++ {
			if epLens[i] > 1 {
				epLens[i]--
			} else {
				isHer[i] = false
			}
		}
	}

	stepIndices := make([]int, batchSize)
	for i := range stepIndices {
		stepIndices[i] = b.rand.Intn(epLens[i])
	}

	newGoals, err := b.sampleGoals(episodeIndices, stepIndices, isHer)
	if err != nil {
		return nil, err
	}

	batch := newBatch(batchSize)
	for i := 0; i < batchSize; i++ {
		ep, step := episodeIndices[i], stepIndices[i]

		desired := b.arena.desiredGoalAt(ep, step)
		reward := b.arena.rewardAt(ep, step)
		if isHer[i] {
			desired = newGoals[i]
			reward, desired = b.recomputeReward(b.arena.nextAchievedGoalAt(ep, step), desired, b.arena.infoAt(ep, step))
		}

		batch.Observations.Observation[i] = b.arena.obsAt(ep, step)
		batch.Observations.AchievedGoal[i] = b.arena.achievedGoalAt(ep, step)
		batch.Observations.DesiredGoal[i] = desired
		batch.NextObservations.Observation[i] = b.arena.nextObsAt(ep, step)
		batch.NextObservations.AchievedGoal[i] = b.arena.nextAchievedGoalAt(ep, step)
		// the desired goal carries over to the next observation
		batch.NextObservations.DesiredGoal[i] = desired
		batch.Actions[i] = b.arena.actionAt(ep, step)
		batch.Dones[i] = b.arena.doneAt(ep, step)
		batch.Rewards[i] = reward
	}
	return normalizeBatch(batch, normalizer), nil
}

// sampleGoals resolves substitute goals for all relabeled indices in one
// pass. History-based strategies never reach here online; their goals are
// drawn from the history store in the offline pipeline.
func (b *HerReplayBuffer) sampleGoals(episodeIndices, stepIndices []int, isHer []bool) ([][]float64, error) {
	goals := make([][]float64, len(episodeIndices))
	for i, ep := range episodeIndices {
		if !isHer[i] {
			continue
		}
		goal, err := b.substituteGoal(ep, stepIndices[i])
		if err != nil {
			return nil, err
		}
		goals[i] = goal
	}
	return goals, nil
}

func (b *HerReplayBuffer) substituteGoal(episode, step int) ([]float64, error) {
	epLen := b.arena.episodeLengths[episode]
	switch b.params.Strategy {
	case Final:
		return b.arena.achievedGoalAt(episode, epLen-1), nil
	case Future:
		// uniform over (step, epLen); callers guarantee step < epLen-1
		return b.arena.achievedGoalAt(episode, step+1+b.rand.Intn(epLen-step-1)), nil
	case Episode:
		return b.arena.achievedGoalAt(episode, b.rand.Intn(epLen)), nil
	default:
		return nil, fmt.Errorf("%w: %s cannot sample goals from an episode", ErrUnknownStrategy, b.params.Strategy)
	}
}

// recomputeReward invokes the environment reward callback for a relabeled
// transition. With ModifyGoal the callback may also override the goal the
// strategy selected; the observed upstream order (strategy goal first,
// callback override second) is preserved.
func (b *HerReplayBuffer) recomputeReward(nextAchievedGoal, desiredGoal []float64, info core.Info) (float64, []float64) {
	if b.params.ModifyGoal {
		return b.env.(core.GoalModifierEnv).ComputeRewardAndGoal(nextAchievedGoal, desiredGoal, info)
	}
	return b.env.ComputeReward(nextAchievedGoal, desiredGoal, info), desiredGoal
}

// virtualTransition is one relabeled transition headed for the downstream
// buffer.
type virtualTransition struct {
	obs     core.DictObs
	nextObs core.DictObs
	action  []float64
	reward  float64
}

// sampleHerTransitions relabels the most recently closed episode and appends
// the surviving virtual transitions to the downstream buffer. Virtual
// transitions are stored non-terminal with an empty info payload.
func (b *HerReplayBuffer) sampleHerTransitions() error {
	transitions, err := b.sampleOffline(b.params.NSampledGoal)
	if err != nil {
		return err
	}
	for _, tr := range transitions {
		b.replayBuffer.Add(tr.obs, tr.nextObs, tr.action, tr.reward, false, core.Info{})
	}
	return nil
}

// sampleOffline builds nSampledGoal full-episode relabelings of the single
// staged episode (slot 0). PastDesiredSuccess oversamples
// NSampledGoalPreselection candidates and keeps the top nSampledGoal by
// summed episode reward. A FUTURE episode of length 1 yields an explicit
// empty result.
func (b *HerReplayBuffer) sampleOffline(nSampledGoal int) ([]virtualTransition, error) {
	preselection := nSampledGoal
	if b.params.Strategy == PastDesiredSuccess {
		preselection = b.params.NSampledGoalPreselection
	}

	episodeLength := b.arena.episodeLengths[0]
	effLen := episodeLength
	if b.params.Strategy == Future {
		if episodeLength <= 1 {
			// not enough steps to pick a later goal; no virtual transitions
			return nil, nil
		}
		effLen = episodeLength - 1
	}
	total := effLen * preselection

	goals, err := b.offlineGoals(effLen, preselection)
	if err != nil {
		return nil, err
	}

	transitions := make([]virtualTransition, 0, total)
	rewards := make([]float64, 0, total)
	for i := 0; i < total; i++ {
		step := i % effLen
		desired := goals[i]
		reward, desired := b.recomputeReward(b.arena.nextAchievedGoalAt(0, step), desired, b.arena.infoAt(0, step))

		transitions = append(transitions, virtualTransition{
			obs: core.DictObs{
				Observation:  b.arena.obsAt(0, step),
				AchievedGoal: b.arena.achievedGoalAt(0, step),
				DesiredGoal:  desired,
			},
			nextObs: core.DictObs{
				Observation:  b.arena.nextObsAt(0, step),
				AchievedGoal: b.arena.nextAchievedGoalAt(0, step),
				DesiredGoal:  desired,
			},
			action: b.arena.actionAt(0, step),
			reward: reward,
		})
		rewards = append(rewards, reward)
	}
	if len(transitions) != total {
		return nil, fmt.Errorf("%w: have %d, want %d", ErrTransitionCount, len(transitions), total)
	}

	if b.params.Strategy == PastDesiredSuccess {
		transitions = b.selectSuccessReplicates(transitions, rewards, effLen, preselection, nSampledGoal)
	}
	if want := effLen * nSampledGoal; len(transitions) != want {
		return nil, fmt.Errorf("%w: have %d after selection, want %d", ErrTransitionCount, len(transitions), want)
	}
	return transitions, nil
}

// offlineGoals draws one substitute goal per (replicate, step) pair.
// PastDesiredSuccess applies a single history goal across a whole replicate
// so replicates can be ranked as candidate episodes; PastDesired draws
// independently per transition.
func (b *HerReplayBuffer) offlineGoals(effLen, preselection int) ([][]float64, error) {
	goals := make([][]float64, effLen*preselection)
	switch {
	case b.params.Strategy == PastDesiredSuccess:
		for r := 0; r < preselection; r++ {
			goal := b.desiredGoalStore.Sample(b.rand)
			for s := 0; s < effLen; s++ {
				goals[r*effLen+s] = goal
			}
		}
	case b.params.Strategy == PastDesired:
		for i := range goals {
			goals[i] = b.desiredGoalStore.Sample(b.rand)
		}
	default:
		for r := 0; r < preselection; r++ {
			for s := 0; s < effLen; s++ {
				goal, err := b.substituteGoal(0, s)
				if err != nil {
					return nil, err
				}
				goals[r*effLen+s] = goal
			}
		}
	}
	return goals, nil
}

// selectSuccessReplicates keeps the nSampledGoal replicate-episodes with the
// highest summed reward, preferring distinct totals over duplicates.
func (b *HerReplayBuffer) selectSuccessReplicates(transitions []virtualTransition, rewards []float64, effLen, preselection, nSampledGoal int) []virtualTransition {
	sums := make([]float64, preselection)
	for r := 0; r < preselection; r++ {
		sums[r] = floats.Sum(rewards[r*effLen : (r+1)*effLen])
	}
	winners := topReplicates(sums, nSampledGoal)

	b.logger.Debug().
		Int("preselection", preselection).
		Int("kept", nSampledGoal).
		Float64("mean_episode_reward", stat.Mean(sums, nil)).
		Msg("ranked relabeled episodes by summed reward")

	kept := make([]virtualTransition, 0, effLen*nSampledGoal)
	for _, r := range winners {
		kept = append(kept, transitions[r*effLen:(r+1)*effLen]...)
	}
	return kept
}

// topReplicates returns the indices of the n largest sums. When at least n
// distinct values exist, the first replicate per distinct value is chosen;
// otherwise it falls back to the n largest including duplicates.
func topReplicates(sums []float64, n int) []int {
	first := make(map[float64]int, len(sums))
	uniques := make([]float64, 0, len(sums))
	for i, s := range sums {
		if _, ok := first[s]; !ok {
			first[s] = i
			uniques = append(uniques, s)
		}
	}
	if len(uniques) >= n {
		sort.Float64s(uniques)
		winners := make([]int, 0, n)
		for _, v := range uniques[len(uniques)-n:] {
			winners = append(winners, first[v])
		}
		return winners
	}

	order := argsortIndices(len(sums))
	tmp := make([]float64, len(sums))
	copy(tmp, sums)
	floats.Argsort(tmp, order)
	return order[len(order)-n:]
}

func argsortIndices(n int) []int {
	inds := make([]int, n)
	for i := range inds {
		inds[i] = i
	}
	return inds
}

func (b *HerReplayBuffer) episodesStored() int {
	if b.full {
		return b.maxEpisodeStored
	}
	return b.pos
}

// Size returns the number of transitions held across closed episodes.
func (b *HerReplayBuffer) Size() int {
	total := 0
	for _, l := range b.arena.episodeLengths {
		total += l
	}
	return total
}

// Reset zeroes the bookkeeping without deallocating storage.
func (b *HerReplayBuffer) Reset() {
	b.pos = 0
	b.currentIdx = 0
	b.full = false
	b.arena.resetLengths()
}

// TruncateLastTrajectory closes an interrupted episode left over from a
// previous session. Call it after restoring persisted state when the prior
// run ended mid-episode; the most recent step is forcibly marked terminal.
func (b *HerReplayBuffer) TruncateLastTrajectory() {
	if b.currentIdx == 0 {
		return
	}
	b.logger.Warn().
		Int("episode_length", b.currentIdx).
		Msg("truncating interrupted trajectory; skip truncation if resuming the same episode")

	b.arena.episodeLengths[b.pos] = b.currentIdx
	b.arena.done[b.arena.at(b.pos, b.currentIdx-1)] = 1
	b.currentIdx = 0
	b.episodeSteps = 0
	b.pos = (b.pos + 1) % b.maxEpisodeStored
	b.full = b.full || b.pos == 0
}

// Seed replaces the selection source, for deterministic tests.
func (b *HerReplayBuffer) Seed(seed uint64) {
	b.rand = erand.New(erand.NewSource(seed))
}
