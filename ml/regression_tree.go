package ml

import (
	"errors"
	"sort"
)

// RegressionTree is a binary tree stored as a flat node array; node 0 is the
// root. Splits send features[FeatureIdx] <= Threshold to the left child.
type RegressionTree struct {
	MaxDepth       int        `json:"max_depth"`
	MinSamplesLeaf int        `json:"min_samples_leaf"`
	NumFeatures    int        `json:"num_features"`
	Nodes          []TreeNode `json:"nodes"`
}

type TreeNode struct {
	FeatureIdx int     `json:"feature_idx"`
	Threshold  float64 `json:"threshold"`
	LeftChild  int     `json:"left_child"`
	RightChild int     `json:"right_child"`
	Value      float64 `json:"value"`
	IsLeaf     bool    `json:"is_leaf"`
}

func NewRegressionTree(maxDepth, minSamplesLeaf int) *RegressionTree {
	if maxDepth <= 0 {
		maxDepth = 6
	}
	if minSamplesLeaf <= 0 {
		minSamplesLeaf = 1
	}
	return &RegressionTree{MaxDepth: maxDepth, MinSamplesLeaf: minSamplesLeaf}
}

func (rt *RegressionTree) Type() string { return "tree" }

// Fit grows the tree greedily, choosing at each node the split with the
// largest reduction in squared error.
func (rt *RegressionTree) Fit(features [][]float64, targets []float64) error {
	width, err := checkInput(features, targets)
	if err != nil {
		return err
	}
	rt.NumFeatures = width
	rt.Nodes = rt.Nodes[:0]

	idx := make([]int, len(features))
	for i := range idx {
		idx[i] = i
	}
	rt.grow(features, targets, idx, 0)
	return nil
}

func (rt *RegressionTree) Predict(features []float64) (float64, error) {
	if len(rt.Nodes) == 0 {
		return 0, errors.New("model not trained")
	}
	if err := checkVector(features, rt.NumFeatures); err != nil {
		return 0, err
	}
	idx := 0
	for steps := 0; steps <= len(rt.Nodes); steps++ {
		node := rt.Nodes[idx]
		if node.IsLeaf {
			return node.Value, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return 0, errors.New("feature index out of range")
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx < 0 || idx >= len(rt.Nodes) {
			return 0, errors.New("invalid tree state")
		}
	}
	return 0, errors.New("invalid tree state: cycle")
}

// grow appends the subtree for rows idx and returns the index of its root.
func (rt *RegressionTree) grow(features [][]float64, targets []float64, idx []int, depth int) int {
	pos := len(rt.Nodes)
	rt.Nodes = append(rt.Nodes, leaf(mean(targets, idx)))

	if depth >= rt.MaxDepth || len(idx) < 2*rt.MinSamplesLeaf || isConstant(targets, idx) {
		return pos
	}
	feature, threshold, ok := rt.findBestSplit(features, targets, idx)
	if !ok {
		return pos
	}

	left, right := partition(features, idx, feature, threshold)
	if len(left) == 0 || len(right) == 0 {
		return pos
	}
	l := rt.grow(features, targets, left, depth+1)
	r := rt.grow(features, targets, right, depth+1)

	rt.Nodes[pos] = TreeNode{
		FeatureIdx: feature,
		Threshold:  threshold,
		LeftChild:  l,
		RightChild: r,
		Value:      rt.Nodes[pos].Value,
	}
	return pos
}

func (rt *RegressionTree) findBestSplit(features [][]float64, targets []float64, idx []int) (int, float64, bool) {
	n := len(idx)
	var total, totalSq float64
	for _, i := range idx {
		total += targets[i]
		totalSq += targets[i] * targets[i]
	}
	parentSSE := totalSq - total*total/float64(n)

	bestFeature := -1
	bestThreshold := 0.0
	bestGain := 1e-12
	order := make([]int, n)

	for f := 0; f < rt.NumFeatures; f++ {
		copy(order, idx)
		sort.Slice(order, func(a, b int) bool {
			va, vb := features[order[a]][f], features[order[b]][f]
			if va != vb {
				return va < vb
			}
			return order[a] < order[b]
		})

		var leftSum, leftSq float64
		for k := 0; k < n-1; k++ {
			y := targets[order[k]]
			leftSum += y
			leftSq += y * y

			nl := k + 1
			nr := n - nl
			if nl < rt.MinSamplesLeaf || nr < rt.MinSamplesLeaf {
				continue
			}
			cur, next := features[order[k]][f], features[order[k+1]][f]
			if cur == next {
				continue
			}
			rightSum := total - leftSum
			rightSq := totalSq - leftSq
			sse := (leftSq - leftSum*leftSum/float64(nl)) + (rightSq - rightSum*rightSum/float64(nr))
			if gain := parentSSE - sse; gain > bestGain {
				bestGain = gain
				bestFeature = f
				bestThreshold = cur + (next-cur)/2
			}
		}
	}
	if bestFeature == -1 {
		return -1, 0, false
	}
	return bestFeature, bestThreshold, true
}

func partition(features [][]float64, idx []int, feature int, threshold float64) (left, right []int) {
	for _, i := range idx {
		if features[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return left, right
}

func leaf(value float64) TreeNode {
	return TreeNode{
		FeatureIdx: -1,
		LeftChild:  -1,
		RightChild: -1,
		Value:      value,
		IsLeaf:     true,
	}
}

func mean(values []float64, idx []int) float64 {
	if len(idx) == 0 {
		return 0
	}
	var sum float64
	for _, i := range idx {
		sum += values[i]
	}
	return sum / float64(len(idx))
}

func isConstant(values []float64, idx []int) bool {
	for _, i := range idx[1:] {
		if values[i] != values[idx[0]] {
			return false
		}
	}
	return true
}
