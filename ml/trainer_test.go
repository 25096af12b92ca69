package ml

import (
	"errors"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"houseprice/data"
	"houseprice/errs"
)

// synthetic builds rows with one value per BostonHousing feature and a
// target that is a fixed linear combination of them.
func synthetic(n int, seed int64) ([][]float64, []float64) {
	rnd := rand.New(rand.NewSource(seed))
	width := len(data.BostonHousing.Features)
	features := make([][]float64, n)
	targets := make([]float64, n)
	for i := range features {
		row := make([]float64, width)
		y := 5.0
		for j := range row {
			row[j] = rnd.Float64() * 10
			y += float64(j%4-1) * row[j]
		}
		features[i] = row
		targets[i] = y
	}
	return features, targets
}

func TestLinearRegressionRecoversCoefficients(t *testing.T) {
	features, targets := synthetic(200, 1)
	model := NewLinearRegression(Params{"ridge": 0})
	if err := model.Fit(features, targets); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(model.Intercept-5) > 1e-6 {
		t.Fatalf("expected intercept 5, got %v", model.Intercept)
	}
	for j, c := range model.Coefficients {
		want := float64(j%4 - 1)
		if math.Abs(c-want) > 1e-6 {
			t.Fatalf("coefficient %d: expected %v, got %v", j, want, c)
		}
	}
}

func TestLinearRegressionConstantColumn(t *testing.T) {
	features, targets := synthetic(50, 2)
	for _, row := range features {
		row[3] = 0 // chas is often all zero in small samples
	}
	model := NewLinearRegression(nil)
	if err := model.Fit(features, targets); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := model.Predict(features[0]); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTrainerPreconditions(t *testing.T) {
	trainer := NewTrainer(TrainerConfig{ModelType: TypeLinear}, data.BostonHousing, nil)
	x, y := synthetic(10, 3)

	tests := []struct {
		name string
		xTr  [][]float64
		yTr  []float64
		xTe  [][]float64
		yTe  []float64
		want error
	}{
		{"empty train", nil, nil, x[:2], y[:2], errs.EmptyDataset},
		{"train mismatch", x[:5], y[:4], x[5:], y[5:], errs.DimensionMismatch},
		{"test mismatch", x[:5], y[:5], x[5:], y[6:], errs.DimensionMismatch},
		{"empty test", x, y, nil, nil, errs.EmptyDataset},
		{"narrow rows", [][]float64{{1, 2}}, []float64{1}, [][]float64{{1, 2}}, []float64{1}, errs.DimensionMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := trainer.Train(tt.xTr, tt.yTr, tt.xTe, tt.yTe)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestTrainerUnknownModelType(t *testing.T) {
	trainer := NewTrainer(TrainerConfig{ModelType: "xgboost-gpu"}, data.BostonHousing, nil)
	x, y := synthetic(10, 4)
	if _, err := trainer.Train(x[:8], y[:8], x[8:], y[8:]); !errors.Is(err, errs.Invalid) {
		t.Fatalf("expected Invalid, got %v", err)
	}
}

func TestTrainerArtifactReproducesPredictions(t *testing.T) {
	x, y := synthetic(120, 5)
	for _, modelType := range []string{TypeGradientBoosting, TypeLinear} {
		for _, compress := range []bool{true, false} {
			trainer := NewTrainer(TrainerConfig{
				ModelType: modelType,
				Params:    Params{"rounds": 20, "max_depth": 3},
				Compress:  compress,
			}, data.BostonHousing, nil)

			result, err := trainer.Train(x[:96], y[:96], x[96:], y[96:])
			if err != nil {
				t.Fatalf("%s: unexpected error: %v", modelType, err)
			}
			if result.Metrics.TrainRows != 96 || result.Metrics.TestRows != 24 {
				t.Fatalf("%s: unexpected row counts %+v", modelType, result.Metrics)
			}

			artifact, err := DecodeArtifact(result.Artifact)
			if err != nil {
				t.Fatalf("%s: decode failed: %v", modelType, err)
			}
			if artifact.ModelType != modelType {
				t.Fatalf("expected model type %s, got %s", modelType, artifact.ModelType)
			}
			if len(artifact.Schema.Features) != 13 || artifact.Schema.Target != "medv" {
				t.Fatalf("unexpected schema %+v", artifact.Schema)
			}
			for i, row := range x[96:] {
				want, _ := result.Model.Predict(row)
				got, err := artifact.Model.Predict(row)
				if err != nil {
					t.Fatalf("%s: predict failed: %v", modelType, err)
				}
				if got != want {
					t.Fatalf("%s row %d: decoded model predicts %v, in-process %v", modelType, i, got, want)
				}
			}
		}
	}
}

func TestTrainerWritesLocalArtifact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models", "boston_housing_model.bin")
	trainer := NewTrainer(TrainerConfig{ModelType: TypeLinear, ArtifactPath: path, Compress: true}, data.BostonHousing, nil)
	x, y := synthetic(30, 6)
	result, err := trainer.Train(x[:24], y[:24], x[24:], y[24:])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	saved, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("artifact not written: %v", err)
	}
	if string(saved) != string(result.Artifact) {
		t.Fatal("local artifact differs from returned bytes")
	}
}

func TestDecodeArtifactRejectsGarbage(t *testing.T) {
	inputs := [][]byte{
		nil,
		[]byte("not json"),
		append(append([]byte(nil), xzMagic...), 1, 2, 3),
		[]byte(`{"format_version":99,"model_type":"linear","features":["a"],"target":"y","model":{}}`),
		[]byte(`{"format_version":1,"model_type":"forest","features":["a"],"target":"y","model":{}}`),
		[]byte(`{"format_version":1,"model_type":"linear","features":["a"],"target":"y","model":{}}`),
		[]byte(`{"format_version":1,"model_type":"linear","features":[],"target":"y","model":{"coefficients":[1]}}`),
	}
	for i, b := range inputs {
		if _, err := DecodeArtifact(b); !errors.Is(err, errs.Decode) {
			t.Fatalf("input %d: expected Decode error, got %v", i, err)
		}
	}
}

func TestMetrics(t *testing.T) {
	predicted := []float64{1, 2, 3}
	actual := []float64{1, 2, 5}
	if got := MAE(predicted, actual); math.Abs(got-2.0/3) > 1e-12 {
		t.Fatalf("unexpected MAE %v", got)
	}
	if got := RMSE(predicted, actual); math.Abs(got-math.Sqrt(4.0/3)) > 1e-12 {
		t.Fatalf("unexpected RMSE %v", got)
	}
	if got := R2(actual, actual); got != 1 {
		t.Fatalf("expected perfect R2, got %v", got)
	}
	if got := R2([]float64{1}, []float64{2}); got != 0 {
		t.Fatalf("expected R2 0 for a single row, got %v", got)
	}
}
