// Package config loads the YAML configuration shared by the commands.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v2"

	"houseprice/data"
	httpserver "houseprice/http"
	"houseprice/logging"
	"houseprice/ml"
	"houseprice/pipeline"
	"houseprice/storage"
)

// SearchPaths are tried in order when Load is given an empty path.
var SearchPaths = []string{"config.yaml", "configs/houseprice.yaml"}

type Config struct {
	Dataset     DatasetConfig     `yaml:"dataset"`
	Model       ModelConfig       `yaml:"model"`
	Storage     storage.Config    `yaml:"storage"`
	HTTP        HTTPConfig        `yaml:"http"`
	Log         logging.Config    `yaml:"log"`
	TrainingLog TrainingLogConfig `yaml:"training_log"`
}

type DatasetConfig struct {
	URL          string        `yaml:"url"`
	Encoding     string        `yaml:"encoding"`
	Timeout      time.Duration `yaml:"timeout"`
	Retries      int           `yaml:"retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	RawPath      string        `yaml:"raw_path"`
	TestFraction float64       `yaml:"test_fraction"`
	Seed         *int64        `yaml:"seed"`
}

type ModelConfig struct {
	Type         string    `yaml:"type"`
	Params       ml.Params `yaml:"params"`
	Compress     bool      `yaml:"compress"`
	ArtifactPath string    `yaml:"artifact_path"`
}

type HTTPConfig struct {
	httpserver.ServerConfig `yaml:",inline"`
	CacheSize               int `yaml:"cache_size"`
}

type TrainingLogConfig struct {
	Path string `yaml:"path"`
}

// Default returns the configuration used when no file overrides it.
func Default() *Config {
	return &Config{
		Dataset: DatasetConfig{
			URL:          data.DefaultURL,
			Encoding:     "utf-8",
			Timeout:      30 * time.Second,
			Retries:      1,
			RetryBackoff: time.Second,
			TestFraction: pipeline.DefaultTestFraction,
		},
		Model: ModelConfig{
			Type:     ml.TypeGradientBoosting,
			Compress: true,
		},
		Storage: storage.DefaultConfig(),
		HTTP: HTTPConfig{
			ServerConfig: httpserver.DefaultServerConfig(),
			CacheSize:    1024,
		},
		Log: logging.DefaultConfig(),
	}
}

// Load reads path over the defaults. An empty path searches SearchPaths and
// falls back to the defaults when none exists; an explicit path must exist.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		for _, p := range SearchPaths {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
		if path == "" {
			return cfg, nil
		}
	}

	body, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(body, cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	applyDefaults(cfg)
	return cfg, cfg.Validate()
}

func applyDefaults(cfg *Config) {
	d := Default()
	if cfg.Dataset.URL == "" {
		cfg.Dataset.URL = d.Dataset.URL
	}
	if cfg.Dataset.Timeout <= 0 {
		cfg.Dataset.Timeout = d.Dataset.Timeout
	}
	if cfg.Model.Type == "" {
		cfg.Model.Type = d.Model.Type
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = d.Storage.Backend
	}
	if cfg.HTTP.Port <= 0 {
		cfg.HTTP.Port = d.HTTP.Port
	}
	if cfg.HTTP.Timeout <= 0 {
		cfg.HTTP.Timeout = d.HTTP.Timeout
	}
	if cfg.HTTP.MaxBodyBytes <= 0 {
		cfg.HTTP.MaxBodyBytes = d.HTTP.MaxBodyBytes
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = d.Log.Level
	}
}

// Validate rejects values no component can work with.
func (c *Config) Validate() error {
	var problems []error
	if f := c.Dataset.TestFraction; f < 0 || f > 1 {
		problems = append(problems, fmt.Errorf("dataset.test_fraction %v outside [0, 1]", f))
	}
	if c.Dataset.Retries < 0 {
		problems = append(problems, fmt.Errorf("dataset.retries must not be negative"))
	}
	if c.HTTP.Port > 65535 {
		problems = append(problems, fmt.Errorf("http.port %d out of range", c.HTTP.Port))
	}
	if c.HTTP.CacheSize < 0 {
		problems = append(problems, fmt.Errorf("http.cache_size must not be negative"))
	}
	switch c.Storage.Backend {
	case storage.BackendS3, storage.BackendSQLite, storage.BackendFile:
	default:
		problems = append(problems, fmt.Errorf("storage.backend %q is not one of s3, sqlite, file", c.Storage.Backend))
	}
	return errors.Join(problems...)
}

// Watch calls fn with the freshly loaded configuration every time path is
// written, until ctx is done. Files that fail to load are reported through
// onError and skipped.
func Watch(ctx context.Context, path string, fn func(*Config), onError func(error)) error {
	if path == "" {
		return errors.New("watch: config path is required")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Watch the directory so editors that replace the file are seen too.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return err
	}

	target := filepath.Clean(path)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := Load(path)
				if err != nil {
					if onError != nil {
						onError(err)
					}
					continue
				}
				fn(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				if onError != nil {
					onError(err)
				}
			}
		}
	}()
	return nil
}
