package replay

import (
	"github.com/zeu5/her-replay/core"
)

// episodeArena is the flat storage for episodes keyed by (slot, step). All
// vector fields live in contiguous float64 arenas so arbitrary index sets can
// be sliced out during relabeling without chasing pointers. Steps at index
// >= episodeLengths[slot] hold stale data and must never be read.
type episodeArena struct {
	obs              []float64
	achievedGoal     []float64
	desiredGoal      []float64
	nextObs          []float64
	nextAchievedGoal []float64
	nextDesiredGoal  []float64
	action           []float64
	reward           []float64
	done             []float64

	// infos is the out-of-band auxiliary payload, one bounded queue per slot.
	infos [][]core.Info

	episodeLengths []int

	maxEpisodeStored int
	maxEpisodeLength int
	obsDim           int
	goalDim          int
	actionDim        int
}

func newEpisodeArena(maxEpisodeStored, maxEpisodeLength, obsDim, goalDim, actionDim int) *episodeArena {
	steps := maxEpisodeStored * maxEpisodeLength
	return &episodeArena{
		obs:              make([]float64, steps*obsDim),
		achievedGoal:     make([]float64, steps*goalDim),
		desiredGoal:      make([]float64, steps*goalDim),
		nextObs:          make([]float64, steps*obsDim),
		nextAchievedGoal: make([]float64, steps*goalDim),
		nextDesiredGoal:  make([]float64, steps*goalDim),
		action:           make([]float64, steps*actionDim),
		reward:           make([]float64, steps),
		done:             make([]float64, steps),

		infos:          make([][]core.Info, maxEpisodeStored),
		episodeLengths: make([]int, maxEpisodeStored),

		maxEpisodeStored: maxEpisodeStored,
		maxEpisodeLength: maxEpisodeLength,
		obsDim:           obsDim,
		goalDim:          goalDim,
		actionDim:        actionDim,
	}
}

func (a *episodeArena) at(slot, step int) int {
	return slot*a.maxEpisodeLength + step
}

func (a *episodeArena) setStep(slot, step int, obs, nextObs core.DictObs, action []float64, reward, done float64) {
	i := a.at(slot, step)
	copy(a.obs[i*a.obsDim:(i+1)*a.obsDim], obs.Observation)
	copy(a.achievedGoal[i*a.goalDim:(i+1)*a.goalDim], obs.AchievedGoal)
	copy(a.desiredGoal[i*a.goalDim:(i+1)*a.goalDim], obs.DesiredGoal)
	copy(a.nextObs[i*a.obsDim:(i+1)*a.obsDim], nextObs.Observation)
	copy(a.nextAchievedGoal[i*a.goalDim:(i+1)*a.goalDim], nextObs.AchievedGoal)
	copy(a.nextDesiredGoal[i*a.goalDim:(i+1)*a.goalDim], nextObs.DesiredGoal)
	copy(a.action[i*a.actionDim:(i+1)*a.actionDim], action)
	a.reward[i] = reward
	a.done[i] = done
}

// The *At accessors return copies so callers can mutate rows during
// relabeling without touching the arena.

func (a *episodeArena) obsAt(slot, step int) []float64 {
	i := a.at(slot, step)
	return copyRow(a.obs, i, a.obsDim)
}

func (a *episodeArena) nextObsAt(slot, step int) []float64 {
	i := a.at(slot, step)
	return copyRow(a.nextObs, i, a.obsDim)
}

func (a *episodeArena) achievedGoalAt(slot, step int) []float64 {
	i := a.at(slot, step)
	return copyRow(a.achievedGoal, i, a.goalDim)
}

func (a *episodeArena) desiredGoalAt(slot, step int) []float64 {
	i := a.at(slot, step)
	return copyRow(a.desiredGoal, i, a.goalDim)
}

func (a *episodeArena) nextAchievedGoalAt(slot, step int) []float64 {
	i := a.at(slot, step)
	return copyRow(a.nextAchievedGoal, i, a.goalDim)
}

func (a *episodeArena) actionAt(slot, step int) []float64 {
	i := a.at(slot, step)
	return copyRow(a.action, i, a.actionDim)
}

func (a *episodeArena) rewardAt(slot, step int) float64 {
	return a.reward[a.at(slot, step)]
}

func (a *episodeArena) doneAt(slot, step int) float64 {
	return a.done[a.at(slot, step)]
}

func (a *episodeArena) infoAt(slot, step int) core.Info {
	if step < len(a.infos[slot]) {
		return a.infos[slot][step]
	}
	return nil
}

func (a *episodeArena) appendInfo(slot int, info core.Info) {
	if len(a.infos[slot]) >= a.maxEpisodeLength {
		a.infos[slot] = a.infos[slot][1:]
	}
	a.infos[slot] = append(a.infos[slot], info.Copy())
}

func (a *episodeArena) clearInfos(slot int) {
	a.infos[slot] = nil
}

func (a *episodeArena) resetLengths() {
	for i := range a.episodeLengths {
		a.episodeLengths[i] = 0
	}
}

func copyRow(arena []float64, row, dim int) []float64 {
	out := make([]float64, dim)
	copy(out, arena[row*dim:(row+1)*dim])
	return out
}
