package ml

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Metrics are the evaluation scalars reported after a training run. None of
// them is part of the artifact contract.
type Metrics struct {
	TrainRows int     `json:"train_rows"`
	TestRows  int     `json:"test_rows"`
	TrainRMSE float64 `json:"train_rmse"`
	TestRMSE  float64 `json:"test_rmse"`
	TestMAE   float64 `json:"test_mae"`
	TestR2    float64 `json:"test_r2"`
}

// PredictAll runs model over every row.
func PredictAll(model Regressor, features [][]float64) ([]float64, error) {
	out := make([]float64, len(features))
	for i, row := range features {
		v, err := model.Predict(row)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func RMSE(predicted, actual []float64) float64 {
	if len(actual) == 0 {
		return 0
	}
	var sum float64
	for i, y := range actual {
		d := predicted[i] - y
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(actual)))
}

func MAE(predicted, actual []float64) float64 {
	if len(actual) == 0 {
		return 0
	}
	var sum float64
	for i, y := range actual {
		sum += math.Abs(predicted[i] - y)
	}
	return sum / float64(len(actual))
}

// R2 is the coefficient of determination. It is 0 when undefined (fewer
// than two rows or a constant target).
func R2(predicted, actual []float64) float64 {
	if len(actual) < 2 {
		return 0
	}
	r2 := stat.RSquaredFrom(predicted, actual, nil)
	if math.IsNaN(r2) || math.IsInf(r2, 0) {
		return 0
	}
	return r2
}
