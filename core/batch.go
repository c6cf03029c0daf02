package core

// DictObs is a single goal-conditioned observation.
type DictObs struct {
	Observation  []float64
	AchievedGoal []float64
	DesiredGoal  []float64
}

func (d DictObs) Copy() DictObs {
	return DictObs{
		Observation:  copyVec(d.Observation),
		AchievedGoal: copyVec(d.AchievedGoal),
		DesiredGoal:  copyVec(d.DesiredGoal),
	}
}

// DictBatch is a batch of goal-conditioned observations, one row per entry.
type DictBatch struct {
	Observation  [][]float64
	AchievedGoal [][]float64
	DesiredGoal  [][]float64
}

// Batch is the container handed to the training loop. Dones are stored as
// 0/1 floats so they can be consumed directly as bootstrap masks.
type Batch struct {
	Observations     DictBatch
	Actions          [][]float64
	NextObservations DictBatch
	Dones            []float64
	Rewards          []float64
}

func (b *Batch) Len() int {
	return len(b.Rewards)
}

// ConcatBatches merges batches along the batch axis, in order.
func ConcatBatches(batches []*Batch) *Batch {
	out := &Batch{}
	for _, b := range batches {
		out.Observations.Observation = append(out.Observations.Observation, b.Observations.Observation...)
		out.Observations.AchievedGoal = append(out.Observations.AchievedGoal, b.Observations.AchievedGoal...)
		out.Observations.DesiredGoal = append(out.Observations.DesiredGoal, b.Observations.DesiredGoal...)
		out.NextObservations.Observation = append(out.NextObservations.Observation, b.NextObservations.Observation...)
		out.NextObservations.AchievedGoal = append(out.NextObservations.AchievedGoal, b.NextObservations.AchievedGoal...)
		out.NextObservations.DesiredGoal = append(out.NextObservations.DesiredGoal, b.NextObservations.DesiredGoal...)
		out.Actions = append(out.Actions, b.Actions...)
		out.Dones = append(out.Dones, b.Dones...)
		out.Rewards = append(out.Rewards, b.Rewards...)
	}
	return out
}

func copyVec(v []float64) []float64 {
	if v == nil {
		return nil
	}
	out := make([]float64, len(v))
	copy(out, v)
	return out
}
