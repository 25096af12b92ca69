package ml

import (
	"errors"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// LinearRegression is least squares with a small ridge term on the
// coefficients, which keeps the normal equations positive definite when a
// column is constant.
type LinearRegression struct {
	Ridge        float64   `json:"ridge"`
	Intercept    float64   `json:"intercept"`
	Coefficients []float64 `json:"coefficients"`
}

func NewLinearRegression(params Params) *LinearRegression {
	ridge := params.Get("ridge", 1e-6)
	if ridge < 0 {
		ridge = 0
	}
	return &LinearRegression{Ridge: ridge}
}

func (lr *LinearRegression) Type() string { return TypeLinear }

// Fit solves (XᵀX + λI)β = Xᵀy with a leading column of ones in X.
func (lr *LinearRegression) Fit(features [][]float64, targets []float64) error {
	width, err := checkInput(features, targets)
	if err != nil {
		return err
	}
	n, p := len(features), width+1

	x := mat.NewDense(n, p, nil)
	for i, row := range features {
		x.Set(i, 0, 1)
		for j, v := range row {
			x.Set(i, j+1, v)
		}
	}

	xtx := mat.NewSymDense(p, nil)
	xtx.SymOuterK(1, x.T())
	for j := 1; j < p; j++ {
		xtx.SetSym(j, j, xtx.At(j, j)+lr.Ridge)
	}

	var xty mat.VecDense
	xty.MulVec(x.T(), mat.NewVecDense(n, append([]float64(nil), targets...)))

	var chol mat.Cholesky
	if ok := chol.Factorize(xtx); !ok {
		return errors.New("normal equations are not positive definite; increase ridge")
	}
	var beta mat.VecDense
	if err := chol.SolveVecTo(&beta, &xty); err != nil {
		// A Condition error still carries a usable solution.
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return err
		}
	}

	lr.Intercept = beta.AtVec(0)
	lr.Coefficients = make([]float64, width)
	for j := range lr.Coefficients {
		lr.Coefficients[j] = beta.AtVec(j + 1)
	}
	return nil
}

func (lr *LinearRegression) Predict(features []float64) (float64, error) {
	if len(lr.Coefficients) == 0 {
		return 0, errors.New("model not trained")
	}
	if err := checkVector(features, len(lr.Coefficients)); err != nil {
		return 0, err
	}
	return lr.Intercept + floats.Dot(lr.Coefficients, features), nil
}
