// Command train fetches the Boston Housing dataset, trains a regressor and
// uploads the model artifact to bucket/key.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"houseprice/config"
	"houseprice/data"
	"houseprice/db"
	"houseprice/errs"
	"houseprice/logging"
	"houseprice/ml"
	"houseprice/pipeline"
	"houseprice/storage"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	bucket := fs.String("bucket", "", "destination bucket (required)")
	key := fs.String("key", "", "destination object key (required)")
	configPath := fs.String("config", "", "path to YAML config")
	seed := fs.Int64("seed", 0, "split seed; unset means non-reproducible")
	testFraction := fs.Float64("test-fraction", pipeline.DefaultTestFraction, "share of rows held out for evaluation")
	history := fs.Int("history", 0, "print the N most recent recorded runs and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *history > 0 {
		return printHistory(*configPath, *history)
	}
	if *bucket == "" || *key == "" {
		fmt.Fprintln(os.Stderr, "train: -bucket and -key are required")
		fs.Usage()
		return 2
	}
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "train: load config: %v\n", err)
		return 1
	}
	if set["seed"] {
		cfg.Dataset.Seed = seed
	}
	if set["test-fraction"] {
		cfg.Dataset.TestFraction = *testFraction
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "train: init logger: %v\n", err)
		return 1
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := train(ctx, cfg, *bucket, *key, logger.Logger); err != nil {
		logger.Error("training failed", zap.String("kind", errs.Name(errs.KindOf(err))), zap.Error(err))
		return 1
	}
	return 0
}

func train(ctx context.Context, cfg *config.Config, bucket, key string, logger *zap.Logger) error {
	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open artifact store: %w", err)
	}
	defer store.Close()

	p := &pipeline.TrainPipeline{
		Fetcher: data.NewProvider(data.ProviderConfig{
			URL:          cfg.Dataset.URL,
			Encoding:     cfg.Dataset.Encoding,
			Timeout:      cfg.Dataset.Timeout,
			Retries:      cfg.Dataset.Retries,
			RetryBackoff: cfg.Dataset.RetryBackoff,
			RawPath:      cfg.Dataset.RawPath,
		}, data.BostonHousing, logger),
		Trainer: ml.NewTrainer(ml.TrainerConfig{
			ModelType:    cfg.Model.Type,
			Params:       cfg.Model.Params,
			Compress:     cfg.Model.Compress,
			ArtifactPath: cfg.Model.ArtifactPath,
		}, data.BostonHousing, logger),
		Store:        store,
		Schema:       data.BostonHousing,
		TestFraction: cfg.Dataset.TestFraction,
		Logger:       logger,
	}
	if cfg.Dataset.Seed != nil {
		p.Rand = data.NewRand(*cfg.Dataset.Seed)
	}
	if cfg.TrainingLog.Path != "" {
		runLog, err := db.Open(cfg.TrainingLog.Path)
		if err != nil {
			return fmt.Errorf("open training log: %w", err)
		}
		defer runLog.Close()
		p.Log = runLog
	}

	run, err := p.Run(ctx, bucket, key)
	if err != nil {
		return err
	}
	logger.Info("training complete",
		zap.String("run_id", run.RunID),
		zap.String("model_type", run.ModelType),
		zap.String("bucket", bucket),
		zap.String("key", key),
		zap.Int("train_rows", run.Metrics.TrainRows),
		zap.Int("test_rows", run.Metrics.TestRows),
		zap.Float64("test_rmse", run.Metrics.TestRMSE),
		zap.Float64("test_mae", run.Metrics.TestMAE),
		zap.Float64("test_r2", run.Metrics.TestR2))
	return nil
}

func printHistory(configPath string, limit int) int {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "train: load config: %v\n", err)
		return 1
	}
	if cfg.TrainingLog.Path == "" {
		fmt.Fprintln(os.Stderr, "train: training_log.path is not configured")
		return 1
	}
	runLog, err := db.Open(cfg.TrainingLog.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "train: open training log: %v\n", err)
		return 1
	}
	defer runLog.Close()

	runs, err := runLog.LoadTrainingLog(context.Background(), limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "train: read training log: %v\n", err)
		return 1
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TRAINED\tRUN\tMODEL\tOBJECT\tROWS\tTEST_RMSE\tTEST_R2")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s/%s\t%d/%d\t%.4f\t%.4f\n",
			r.TrainedAt.Format(time.RFC3339), r.RunID, r.ModelType, r.Bucket, r.Key,
			r.Metrics.TrainRows, r.Metrics.TestRows, r.Metrics.TestRMSE, r.Metrics.TestR2)
	}
	tw.Flush()
	return 0
}
