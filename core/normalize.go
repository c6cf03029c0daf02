package core

// Normalizer is applied to assembled observation dictionaries and rewards at
// sample time. Buffers store raw values; a nil Normalizer means identity.
type Normalizer interface {
	NormalizeObs(DictBatch) DictBatch
	NormalizeReward([]float64) []float64
}
