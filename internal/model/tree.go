package model

import (
	"math/rand"
	"sort"
)

// Node is one node of a fitted decision tree. Leaves have Feature == -1.
// Value is the class-weighted fraction of positive samples that reached the node.
type Node struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Value     float64 `json:"value"`
}

// Tree is a binary classification tree stored as a flat node list rooted at 0.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Proba returns the positive-class probability of the leaf x falls into.
func (t Tree) Proba(x []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Feature < 0 {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// TreeParams bounds tree growth.
type TreeParams struct {
	MaxDepth        int `json:"max_depth"`
	MinSamplesSplit int `json:"min_samples_split"`
	MinSamplesLeaf  int `json:"min_samples_leaf"`
	MaxFeatures     int `json:"max_features"`
}

type treeBuilder struct {
	x          [][]float64
	y          []int
	w          []float64
	params     TreeParams
	rng        *rand.Rand
	nodes      []Node
	importance []float64
	sorted     []int
}

type split struct {
	feature   int
	threshold float64
	gain      float64
}

// fitTree grows a Gini tree over the samples listed in idx (repeats allowed).
// w holds a weight per sample of x. The returned importance is the total
// weighted impurity decrease per feature.
func fitTree(x [][]float64, y []int, w []float64, idx []int, p TreeParams, rng *rand.Rand) (Tree, []float64) {
	b := &treeBuilder{
		x:          x,
		y:          y,
		w:          w,
		params:     p,
		rng:        rng,
		importance: make([]float64, len(x[0])),
		sorted:     make([]int, len(idx)),
	}
	b.build(idx, 0)
	return Tree{Nodes: b.nodes}, b.importance
}

func (b *treeBuilder) build(idx []int, depth int) int {
	var pos, total float64
	positives := 0
	for _, k := range idx {
		total += b.w[k]
		if b.y[k] == 1 {
			pos += b.w[k]
			positives++
		}
	}

	id := len(b.nodes)
	b.nodes = append(b.nodes, Node{Feature: -1, Value: fraction(pos, total)})

	if (b.params.MaxDepth > 0 && depth >= b.params.MaxDepth) ||
		len(idx) < b.params.MinSamplesSplit ||
		len(idx) < 2*b.params.MinSamplesLeaf ||
		positives == 0 || positives == len(idx) {
		return id
	}

	s, ok := b.bestSplit(idx, pos, total)
	if !ok {
		return id
	}

	var left, right []int
	for _, k := range idx {
		if b.x[k][s.feature] <= s.threshold {
			left = append(left, k)
		} else {
			right = append(right, k)
		}
	}
	b.importance[s.feature] += s.gain

	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	b.nodes[id].Feature = s.feature
	b.nodes[id].Threshold = s.threshold
	b.nodes[id].Left = l
	b.nodes[id].Right = r
	return id
}

// bestSplit scans features in random order and stops after MaxFeatures
// non-constant ones have been evaluated.
func (b *treeBuilder) bestSplit(idx []int, pos, total float64) (split, bool) {
	parent := gini(pos, total)
	minLeaf := max(b.params.MinSamplesLeaf, 1)
	sorted := b.sorted[:len(idx)]

	var best split
	found := false
	visited := 0
	for _, f := range b.rng.Perm(len(b.importance)) {
		if visited >= b.params.MaxFeatures {
			break
		}
		copy(sorted, idx)
		sort.SliceStable(sorted, func(i, j int) bool { return b.x[sorted[i]][f] < b.x[sorted[j]][f] })
		if b.x[sorted[0]][f] == b.x[sorted[len(sorted)-1]][f] {
			continue
		}
		visited++

		var lPos, lTotal float64
		for i := 0; i < len(sorted)-1; i++ {
			k := sorted[i]
			lTotal += b.w[k]
			if b.y[k] == 1 {
				lPos += b.w[k]
			}
			v, next := b.x[k][f], b.x[sorted[i+1]][f]
			if v == next {
				continue
			}
			nLeft := i + 1
			if nLeft < minLeaf || len(sorted)-nLeft < minLeaf {
				continue
			}
			rPos, rTotal := pos-lPos, total-lTotal
			gain := total*parent - lTotal*gini(lPos, lTotal) - rTotal*gini(rPos, rTotal)
			if gain > best.gain+1e-12 {
				threshold := v + (next-v)/2
				if threshold >= next {
					threshold = v
				}
				best = split{feature: f, threshold: threshold, gain: gain}
				found = true
			}
		}
	}
	return best, found
}

func gini(pos, total float64) float64 {
	if total <= 0 {
		return 0
	}
	p := min(max(pos/total, 0), 1)
	return 2 * p * (1 - p)
}

func fraction(pos, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return pos / total
}
