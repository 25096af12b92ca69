package data

import (
	"math"
	"math/rand"
	"time"

	"houseprice/errs"
)

// NewRand returns a source that makes Split reproducible for a given seed.
func NewRand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

// Split shuffles the row indices of table and cuts them at
// ceil(N * (1 - testFraction)). A nil rnd uses a time-seeded source.
//
// testFraction must lie in [0, 1]. Fractions that leave either side empty
// are legal; training on an empty side fails later in the trainer.
func Split(table *Table, testFraction float64, rnd *rand.Rand) (train, test *Table, err error) {
	const op = "split"
	if table == nil {
		return nil, nil, errs.Ef(errs.Invalid, op, "nil table")
	}
	if math.IsNaN(testFraction) || testFraction < 0 || testFraction > 1 {
		return nil, nil, errs.Ef(errs.Invalid, op, "test fraction %v outside [0, 1]", testFraction)
	}
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	n := table.Len()
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	rnd.Shuffle(n, func(i, j int) {
		indices[i], indices[j] = indices[j], indices[i]
	})

	splitIdx := SplitIndex(n, testFraction)
	return table.Take(indices[:splitIdx]), table.Take(indices[splitIdx:]), nil
}

// SplitIndex is the number of training rows for n rows and testFraction.
func SplitIndex(n int, testFraction float64) int {
	idx := int(math.Ceil(float64(n) * (1 - testFraction)))
	if idx < 0 {
		return 0
	}
	if idx > n {
		return n
	}
	return idx
}
