package ml

import (
	"fmt"

	"houseprice/errs"
)

// Regressor is a model that maps one feature vector to one scalar.
// After Fit returns, Predict must not mutate the receiver, so a fitted
// Regressor can be shared by concurrent callers without locking.
type Regressor interface {
	Fit(features [][]float64, targets []float64) error
	Predict(features []float64) (float64, error)
	Type() string
}

const (
	TypeGradientBoosting = "gbrt"
	TypeLinear           = "linear"
)

// Params is a set of named hyper-parameters.
type Params map[string]float64

// Get returns the value of name if present and dflt otherwise.
func (p Params) Get(name string, dflt float64) float64 {
	if v, ok := p[name]; ok {
		return v
	}
	return dflt
}

// NewModel returns an unfitted Regressor of modelType.
func NewModel(modelType string, params Params) (Regressor, error) {
	switch modelType {
	case TypeGradientBoosting, "":
		return NewGradientBoosting(params), nil
	case TypeLinear:
		return NewLinearRegression(params), nil
	default:
		return nil, errs.E(errs.Invalid, "new model", fmt.Errorf("unsupported model type %q", modelType))
	}
}

func checkInput(features [][]float64, targets []float64) (int, error) {
	const op = "fit"
	if len(features) == 0 {
		return 0, errs.Ef(errs.EmptyDataset, op, "no training rows")
	}
	if len(features) != len(targets) {
		return 0, errs.Ef(errs.DimensionMismatch, op, "%d feature rows, %d targets", len(features), len(targets))
	}
	width := len(features[0])
	if width == 0 {
		return 0, errs.Ef(errs.DimensionMismatch, op, "rows have no features")
	}
	for i, row := range features {
		if len(row) != width {
			return 0, errs.Ef(errs.DimensionMismatch, op, "row %d has %d features, want %d", i, len(row), width)
		}
	}
	return width, nil
}

func checkVector(features []float64, width int) error {
	if len(features) != width {
		return errs.Ef(errs.DimensionMismatch, "predict", "got %d features, want %d", len(features), width)
	}
	return nil
}
