package classifier

import (
	"math"
	"math/rand/v2"
	"sort"
)

// DefaultSeed keeps train/test splits reproducible across runs.
const DefaultSeed = 42

// StratifiedSplit partitions sample indices into train and test sets so that
// each label keeps its share of the test fraction. A label with at least two
// samples always contributes to both sides.
func StratifiedSplit(labels []int, testFraction float64, seed uint64) (train, test []int) {
	byLabel := make(map[int][]int)
	for i, y := range labels {
		byLabel[y] = append(byLabel[y], i)
	}
	keys := make([]int, 0, len(byLabel))
	for k := range byLabel {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	rng := rand.New(rand.NewPCG(seed, seed))
	for _, k := range keys {
		idx := byLabel[k]
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })

		nTest := int(math.Round(testFraction * float64(len(idx))))
		if len(idx) >= 2 {
			nTest = max(1, min(nTest, len(idx)-1))
		}
		test = append(test, idx[:nTest]...)
		train = append(train, idx[nTest:]...)
	}
	rng.Shuffle(len(train), func(i, j int) { train[i], train[j] = train[j], train[i] })
	rng.Shuffle(len(test), func(i, j int) { test[i], test[j] = test[j], test[i] })
	return train, test
}
