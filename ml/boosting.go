package ml

import (
	"errors"
)

// GradientBoosting fits an additive ensemble of regression trees to the
// residuals of squared-error loss.
type GradientBoosting struct {
	Rounds         int               `json:"rounds"`
	LearningRate   float64           `json:"learning_rate"`
	MaxDepth       int               `json:"max_depth"`
	MinSamplesLeaf int               `json:"min_samples_leaf"`
	NumFeatures    int               `json:"num_features"`
	BaseScore      float64           `json:"base_score"`
	Trees          []*RegressionTree `json:"trees"`
}

// NewGradientBoosting reads rounds, learning_rate, max_depth and
// min_samples_leaf from params.
func NewGradientBoosting(params Params) *GradientBoosting {
	gb := &GradientBoosting{
		Rounds:         int(params.Get("rounds", 100)),
		LearningRate:   params.Get("learning_rate", 0.3),
		MaxDepth:       int(params.Get("max_depth", 6)),
		MinSamplesLeaf: int(params.Get("min_samples_leaf", 1)),
	}
	if gb.Rounds <= 0 {
		gb.Rounds = 100
	}
	if gb.LearningRate <= 0 || gb.LearningRate > 1 {
		gb.LearningRate = 0.3
	}
	return gb
}

func (gb *GradientBoosting) Type() string { return TypeGradientBoosting }

func (gb *GradientBoosting) Fit(features [][]float64, targets []float64) error {
	width, err := checkInput(features, targets)
	if err != nil {
		return err
	}
	gb.NumFeatures = width

	all := make([]int, len(targets))
	for i := range all {
		all[i] = i
	}
	gb.BaseScore = mean(targets, all)

	predictions := make([]float64, len(targets))
	for i := range predictions {
		predictions[i] = gb.BaseScore
	}
	residuals := make([]float64, len(targets))

	gb.Trees = make([]*RegressionTree, 0, gb.Rounds)
	for round := 0; round < gb.Rounds; round++ {
		for i, y := range targets {
			residuals[i] = y - predictions[i]
		}
		tree := NewRegressionTree(gb.MaxDepth, gb.MinSamplesLeaf)
		if err := tree.Fit(features, residuals); err != nil {
			return err
		}
		gb.Trees = append(gb.Trees, tree)

		for i, row := range features {
			step, err := tree.Predict(row)
			if err != nil {
				return err
			}
			predictions[i] += gb.LearningRate * step
		}
	}
	return nil
}

func (gb *GradientBoosting) Predict(features []float64) (float64, error) {
	if len(gb.Trees) == 0 {
		return 0, errors.New("model not trained")
	}
	if err := checkVector(features, gb.NumFeatures); err != nil {
		return 0, err
	}
	out := gb.BaseScore
	for _, tree := range gb.Trees {
		step, err := tree.Predict(features)
		if err != nil {
			return 0, err
		}
		out += gb.LearningRate * step
	}
	return out, nil
}
