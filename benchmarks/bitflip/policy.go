package bitflip

import (
	"math"
	"time"

	erand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/sampleuv"

	"github.com/zeu5/her-replay/core"
	"github.com/zeu5/her-replay/util"
)

// SoftMaxPolicy is a tabular Q policy over (observation, desired goal) keys.
// The next action is chosen according to the softmax function with a
// temperature.
type SoftMaxPolicy struct {
	QTable      map[string][]float64
	Alpha       float64
	Gamma       float64
	Temperature float64

	n    int
	rand erand.Source
}

func NewSoftMaxPolicy(n int, alpha, gamma, temperature float64, seed uint64) *SoftMaxPolicy {
	if seed == 0 {
		seed = uint64(time.Now().UnixMilli())
	}
	return &SoftMaxPolicy{
		QTable:      make(map[string][]float64),
		Alpha:       alpha,
		Gamma:       gamma,
		Temperature: temperature,
		n:           n,
		rand:        erand.NewSource(seed),
	}
}

func (p *SoftMaxPolicy) key(obs, goal []float64) string {
	return util.JsonHash([2][]float64{obs, goal})
}

func (p *SoftMaxPolicy) values(key string) []float64 {
	if _, ok := p.QTable[key]; !ok {
		p.QTable[key] = make([]float64, p.n)
	}
	return p.QTable[key]
}

// PickAction samples a bit to flip, softmax-weighted by the Q values.
func (p *SoftMaxPolicy) PickAction(obs core.DictObs) int {
	vals := p.values(p.key(obs.Observation, obs.DesiredGoal))

	largest := vals[0]
	for _, v := range vals {
		if v > largest {
			largest = v
		}
	}
	sum := float64(0)
	weights := make([]float64, p.n)
	for i, v := range vals {
		weights[i] = math.Exp((v - largest) / p.Temperature)
		sum += weights[i]
	}
	for i := range weights {
		weights[i] /= sum
	}

	i, ok := sampleuv.NewWeighted(weights, p.rand).Take()
	if !ok {
		return 0
	}
	return i
}

// Update runs one Q-learning step per batch row. Dones gate bootstrapping,
// so relabeled batches with recomputed rewards train directly.
func (p *SoftMaxPolicy) Update(batch *core.Batch) {
	for i := 0; i < batch.Len(); i++ {
		key := p.key(batch.Observations.Observation[i], batch.Observations.DesiredGoal[i])
		nextKey := p.key(batch.NextObservations.Observation[i], batch.NextObservations.DesiredGoal[i])
		action := int(batch.Actions[i][0])

		nextMax := float64(0)
		for j, v := range p.values(nextKey) {
			if j == 0 || v > nextMax {
				nextMax = v
			}
		}

		target := batch.Rewards[i] + p.Gamma*(1-batch.Dones[i])*nextMax
		vals := p.values(key)
		vals[action] = (1-p.Alpha)*vals[action] + p.Alpha*target
	}
}
