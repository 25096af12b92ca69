// Command serve loads a model artifact from bucket/key and serves
// predictions over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"houseprice/config"
	httpserver "houseprice/http"
	"houseprice/logging"
	"houseprice/serving"
	"houseprice/storage"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	bucket := fs.String("bucket", "", "artifact bucket (required)")
	key := fs.String("key", "", "artifact object key (required)")
	port := fs.Int("port", 8080, "listen port")
	configPath := fs.String("config", "", "path to YAML config")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *bucket == "" || *key == "" {
		fmt.Fprintln(os.Stderr, "serve: -bucket and -key are required")
		fs.Usage()
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "serve: load config: %v\n", err)
		return 1
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "port" {
			cfg.HTTP.Port = *port
		}
	})

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "serve: init logger: %v\n", err)
		return 1
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	predictor, err := load(ctx, cfg, *bucket, *key, logger.Logger)
	if err != nil {
		logger.Error("model load failed", zap.Error(err))
		return 1
	}

	// Only the log level follows the file; the model is never reloaded.
	if *configPath != "" {
		err := config.Watch(ctx, *configPath, func(next *config.Config) {
			if err := logger.SetLevel(next.Log.Level); err != nil {
				logger.Warn("ignoring log level change", zap.Error(err))
				return
			}
			logger.Info("log level changed", zap.String("level", next.Log.Level))
		}, func(err error) {
			logger.Warn("config reload failed", zap.Error(err))
		})
		if err != nil {
			logger.Warn("config watch disabled", zap.Error(err))
		}
	}

	server := httpserver.NewServer(cfg.HTTP.ServerConfig, predictor, logger.Logger)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("HTTP server failed", zap.Error(err))
			return 1
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		if err := server.Stop(); err != nil {
			logger.Error("shutdown", zap.Error(err))
			return 1
		}
	}
	logger.Info("exiting")
	return 0
}

func load(ctx context.Context, cfg *config.Config, bucket, key string, logger *zap.Logger) (*serving.Predictor, error) {
	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open artifact store: %w", err)
	}
	defer store.Close()

	predictor, err := serving.NewPredictor(cfg.HTTP.CacheSize, logger)
	if err != nil {
		return nil, err
	}
	if err := predictor.Load(ctx, store, bucket, key); err != nil {
		return nil, err
	}
	return predictor, nil
}
