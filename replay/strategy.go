package replay

import (
	"math/rand"
	"sync"
)

// Built-in sample method names.
const (
	MethodRandomUnique = "random_unique"
	MethodRandom       = "random"
	MethodAll          = "all"
)

// Strategy selects a subset of resident transitions for a batch. It
// must not mutate items; the returned slice may alias items' elements
// but never items itself. The second result is the realized batch size.
type Strategy func(rng *rand.Rand, items []*Transition, batchSize int) ([]*Transition, int, error)

var (
	strategyMu sync.RWMutex
	strategies = map[string]Strategy{
		MethodRandomUnique: sampleRandomUnique,
		MethodRandom:       sampleRandom,
		MethodAll:          sampleAll,
	}
)

// RegisterStrategy makes a strategy selectable by name in SampleBatch.
// Registering an already-known name replaces the previous strategy.
func RegisterStrategy(name string, s Strategy) {
	if name == "" || s == nil {
		return
	}
	strategyMu.Lock()
	strategies[name] = s
	strategyMu.Unlock()
}

func lookupStrategy(name string) (Strategy, error) {
	strategyMu.RLock()
	s, ok := strategies[name]
	strategyMu.RUnlock()
	if !ok {
		return nil, &UnknownStrategyError{Name: name}
	}
	return s, nil
}

// sampleRandomUnique draws without replacement. When batchSize meets or
// exceeds the buffer occupancy it returns every item in randomized order.
func sampleRandomUnique(rng *rand.Rand, items []*Transition, batchSize int) ([]*Transition, int, error) {
	if batchSize < 0 {
		batchSize = 0
	}
	n := batchSize
	if n > len(items) {
		n = len(items)
	}

	// Fisher-Yates over an index permutation, take the first n.
	indices := make([]int, len(items))
	for i := range indices {
		indices[i] = i
	}
	for i := len(indices) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		indices[i], indices[j] = indices[j], indices[i]
	}

	batch := make([]*Transition, n)
	for i := 0; i < n; i++ {
		batch[i] = items[indices[i]]
	}
	return batch, n, nil
}

// sampleRandom draws batchSize independent uniform indices with
// replacement. Sampling an empty buffer fails with ErrEmptySample.
func sampleRandom(rng *rand.Rand, items []*Transition, batchSize int) ([]*Transition, int, error) {
	if len(items) == 0 {
		return nil, 0, ErrEmptySample
	}
	if batchSize < 0 {
		batchSize = 0
	}
	batch := make([]*Transition, batchSize)
	for i := range batch {
		batch[i] = items[rng.Intn(len(items))]
	}
	return batch, batchSize, nil
}

// sampleAll ignores batchSize and returns every item in storage order.
func sampleAll(_ *rand.Rand, items []*Transition, _ int) ([]*Transition, int, error) {
	batch := make([]*Transition, len(items))
	copy(batch, items)
	return batch, len(batch), nil
}
