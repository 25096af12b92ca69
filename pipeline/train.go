// Package pipeline runs the training stages in order: fetch, split,
// project, train, upload, record.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"houseprice/data"
	"houseprice/db"
	"houseprice/errs"
	"houseprice/ml"
	"houseprice/storage"
)

// DefaultTestFraction is the share of rows held out for evaluation.
const DefaultTestFraction = 0.2

// Fetcher supplies a fresh dataset for every run.
type Fetcher interface {
	Fetch(ctx context.Context) (*data.Table, error)
}

// RunLog records completed runs.
type RunLog interface {
	SaveTrainingRun(ctx context.Context, entry db.TrainingLog) error
}

// TrainPipeline wires the stages of one training run. Log and Logger are
// optional; a nil Rand makes the split non-reproducible.
type TrainPipeline struct {
	Fetcher      Fetcher
	Trainer      *ml.Trainer
	Store        storage.Store
	Log          RunLog
	Schema       data.Schema
	TestFraction float64
	Rand         *rand.Rand
	Logger       *zap.Logger
}

// RunResult summarizes a successful run.
type RunResult struct {
	RunID          string
	ModelType      string
	Metrics        ml.Metrics
	ArtifactSize   int
	ArtifactSHA256 string
	TrainedAt      time.Time
}

// Run executes every stage once and stops at the first failure. Nothing is
// uploaded unless training succeeded. Once the artifact is uploaded the run
// succeeds; a failure to record it in Log is only logged.
func (p *TrainPipeline) Run(ctx context.Context, bucket, key string) (*RunResult, error) {
	if bucket == "" || key == "" {
		return nil, errs.Ef(errs.Invalid, "train pipeline", "bucket and key are required")
	}
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	runID := uuid.NewString()
	logger = logger.With(zap.String("run_id", runID))

	logger.Info("fetching dataset")
	table, err := p.Fetcher.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch dataset: %w", err)
	}

	train, test, err := data.Split(table, p.TestFraction, p.Rand)
	if err != nil {
		return nil, fmt.Errorf("split dataset: %w", err)
	}
	logger.Info("dataset split",
		zap.Int("rows", table.Len()),
		zap.Int("train_rows", train.Len()),
		zap.Int("test_rows", test.Len()),
		zap.Float64("test_fraction", p.TestFraction))

	xTrain, yTrain, err := data.SelectFeaturesAndTarget(train, p.Schema)
	if err != nil {
		return nil, fmt.Errorf("select training columns: %w", err)
	}
	xTest, yTest, err := data.SelectFeaturesAndTarget(test, p.Schema)
	if err != nil {
		return nil, fmt.Errorf("select evaluation columns: %w", err)
	}

	result, err := p.Trainer.Train(xTrain, yTrain, xTest, yTest)
	if err != nil {
		return nil, fmt.Errorf("train model: %w", err)
	}

	if err := p.Store.Upload(ctx, bucket, key, result.Artifact); err != nil {
		return nil, fmt.Errorf("upload artifact: %w", err)
	}
	sum := sha256.Sum256(result.Artifact)
	run := &RunResult{
		RunID:          runID,
		ModelType:      result.Model.Type(),
		Metrics:        result.Metrics,
		ArtifactSize:   len(result.Artifact),
		ArtifactSHA256: hex.EncodeToString(sum[:]),
		TrainedAt:      time.Now().UTC(),
	}
	logger.Info("artifact uploaded",
		zap.String("bucket", bucket),
		zap.String("key", key),
		zap.Int("bytes", run.ArtifactSize),
		zap.String("sha256", run.ArtifactSHA256))

	if p.Log != nil {
		err := p.Log.SaveTrainingRun(ctx, db.TrainingLog{
			RunID:          runID,
			ModelType:      run.ModelType,
			Bucket:         bucket,
			Key:            key,
			Metrics:        run.Metrics,
			ArtifactSHA256: run.ArtifactSHA256,
			TrainedAt:      run.TrainedAt,
		})
		if err != nil {
			logger.Warn("training run not recorded", zap.Error(err))
		}
	}
	return run, nil
}
