package ml

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"houseprice/data"
	"houseprice/errs"
)

// TrainerConfig selects the model and how its artifact is produced.
type TrainerConfig struct {
	ModelType    string
	Params       Params
	Compress     bool
	ArtifactPath string
}

// TrainResult is the outcome of one Train call.
type TrainResult struct {
	Artifact []byte
	Metrics  Metrics
	Model    Regressor
}

// Trainer fits a model on a train split and evaluates it on a test split.
type Trainer struct {
	config TrainerConfig
	schema data.Schema
	logger *zap.Logger
	now    func() time.Time
}

func NewTrainer(config TrainerConfig, schema data.Schema, logger *zap.Logger) *Trainer {
	if config.ModelType == "" {
		config.ModelType = TypeGradientBoosting
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Trainer{
		config: config,
		schema: schema,
		logger: logger,
		now:    time.Now,
	}
}

// Train fits the configured model. The train set must be non-empty, the
// evaluation set must be non-empty, and every row must have one value per
// schema feature.
func (t *Trainer) Train(xTrain [][]float64, yTrain []float64, xTest [][]float64, yTest []float64) (*TrainResult, error) {
	const op = "train"
	if len(xTrain) == 0 {
		return nil, errs.Ef(errs.EmptyDataset, op, "training set is empty")
	}
	if len(xTrain) != len(yTrain) {
		return nil, errs.Ef(errs.DimensionMismatch, op, "training set has %d feature rows and %d targets", len(xTrain), len(yTrain))
	}
	if len(xTest) != len(yTest) {
		return nil, errs.Ef(errs.DimensionMismatch, op, "evaluation set has %d feature rows and %d targets", len(xTest), len(yTest))
	}
	if len(xTest) == 0 {
		return nil, errs.Ef(errs.EmptyDataset, op, "evaluation set is empty")
	}
	width := len(t.schema.Features)
	for _, set := range []struct {
		name string
		rows [][]float64
	}{{"training", xTrain}, {"evaluation", xTest}} {
		for i, row := range set.rows {
			if len(row) != width {
				return nil, errs.Ef(errs.DimensionMismatch, op, "%s row %d has %d features, want %d", set.name, i, len(row), width)
			}
		}
	}

	model, err := NewModel(t.config.ModelType, t.config.Params)
	if err != nil {
		return nil, err
	}

	start := t.now()
	if err := model.Fit(xTrain, yTrain); err != nil {
		return nil, fmt.Errorf("fit %s model: %w", model.Type(), err)
	}

	trainPred, err := PredictAll(model, xTrain)
	if err != nil {
		return nil, fmt.Errorf("evaluate training set: %w", err)
	}
	testPred, err := PredictAll(model, xTest)
	if err != nil {
		return nil, fmt.Errorf("evaluate test set: %w", err)
	}
	metrics := Metrics{
		TrainRows: len(xTrain),
		TestRows:  len(xTest),
		TrainRMSE: RMSE(trainPred, yTrain),
		TestRMSE:  RMSE(testPred, yTest),
		TestMAE:   MAE(testPred, yTest),
		TestR2:    R2(testPred, yTest),
	}

	artifact, err := EncodeArtifact(model, t.schema, t.now(), t.config.Compress)
	if err != nil {
		return nil, err
	}
	t.logger.Info("model trained",
		zap.String("model_type", model.Type()),
		zap.Duration("elapsed", t.now().Sub(start)),
		zap.Int("artifact_bytes", len(artifact)),
		zap.Int("train_rows", metrics.TrainRows),
		zap.Int("test_rows", metrics.TestRows),
		zap.Float64("train_rmse", metrics.TrainRMSE),
		zap.Float64("test_rmse", metrics.TestRMSE),
		zap.Float64("test_mae", metrics.TestMAE),
		zap.Float64("test_r2", metrics.TestR2))

	if t.config.ArtifactPath != "" {
		if err := os.MkdirAll(filepath.Dir(t.config.ArtifactPath), 0o755); err != nil {
			return nil, fmt.Errorf("create artifact dir: %w", err)
		}
		if err := os.WriteFile(t.config.ArtifactPath, artifact, 0o600); err != nil {
			return nil, fmt.Errorf("save artifact: %w", err)
		}
		t.logger.Info("artifact saved", zap.String("path", t.config.ArtifactPath))
	}

	return &TrainResult{Artifact: artifact, Metrics: metrics, Model: model}, nil
}
