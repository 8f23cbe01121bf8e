package model

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// Partition holds row indices for each split, sorted ascending.
type Partition struct {
	Train      []int
	Validation []int
	Test       []int
}

// StratifiedSplit partitions the rows of y into train, validation and test sets
// preserving the class ratio in each. testSize is a fraction of the whole and
// valSize a fraction of the whole taken from what remains after the test split.
// Any class with at least three rows contributes at least one row to every split.
func StratifiedSplit(y []int, testSize, valSize float64, seed int64) (Partition, error) {
	if testSize <= 0 || valSize <= 0 || testSize+valSize >= 1 {
		return Partition{}, fmt.Errorf("invalid split sizes test=%v validation=%v", testSize, valSize)
	}
	valOfRest := valSize / (1 - testSize)

	byClass := map[int][]int{}
	for i, label := range y {
		byClass[label] = append(byClass[label], i)
	}

	rng := rand.New(rand.NewSource(seed))
	var part Partition
	for _, class := range []int{0, 1} {
		idx := byClass[class]
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })

		n := len(idx)
		nTest := int(math.Round(float64(n) * testSize))
		nVal := int(math.Round(float64(n-nTest) * valOfRest))
		if n >= 3 {
			nTest = max(nTest, 1)
			nVal = max(nVal, 1)
			for n-nTest-nVal < 1 {
				if nTest >= nVal {
					nTest--
				} else {
					nVal--
				}
			}
		}

		part.Test = append(part.Test, idx[:nTest]...)
		part.Validation = append(part.Validation, idx[nTest:nTest+nVal]...)
		part.Train = append(part.Train, idx[nTest+nVal:]...)
	}
	sort.Ints(part.Train)
	sort.Ints(part.Validation)
	sort.Ints(part.Test)
	return part, nil
}

// StratifiedFolds assigns every row of y to one of k folds, dealing each class
// round-robin after a seeded shuffle.
func StratifiedFolds(y []int, k int, seed int64) ([][]int, error) {
	if k < 2 {
		return nil, fmt.Errorf("need at least 2 folds, got %d", k)
	}
	byClass := map[int][]int{}
	for i, label := range y {
		byClass[label] = append(byClass[label], i)
	}
	rng := rand.New(rand.NewSource(seed))
	folds := make([][]int, k)
	next := 0
	for _, class := range []int{0, 1} {
		idx := byClass[class]
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		for _, i := range idx {
			folds[next%k] = append(folds[next%k], i)
			next++
		}
	}
	for _, f := range folds {
		sort.Ints(f)
	}
	return folds, nil
}

func rows(x [][]float64, idx []int) [][]float64 {
	out := make([][]float64, len(idx))
	for i, k := range idx {
		out[i] = x[k]
	}
	return out
}

func labels(y []int, idx []int) []int {
	out := make([]int, len(idx))
	for i, k := range idx {
		out[i] = y[k]
	}
	return out
}
