package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"houseprice/storage"
)

func TestLoadDefaults(t *testing.T) {
	if _, err := Load("/nonexistent/path/houseprice.yaml"); err == nil {
		t.Fatal("expected error for nonexistent path")
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Port != 8080 {
		t.Errorf("default port: got %d", cfg.HTTP.Port)
	}
	if cfg.Dataset.TestFraction != 0.2 {
		t.Errorf("default test_fraction: got %v", cfg.Dataset.TestFraction)
	}
	if cfg.Dataset.Retries != 1 {
		t.Errorf("default retries: got %d", cfg.Dataset.Retries)
	}
	if cfg.Storage.Backend != storage.BackendS3 {
		t.Errorf("default backend: got %s", cfg.Storage.Backend)
	}
	if cfg.Dataset.Seed != nil {
		t.Errorf("default seed should be unset")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "houseprice.yaml")
	content := `
dataset:
  url: "http://localhost:9999/boston.csv"
  retries: 0
  test_fraction: 0.25
  seed: 42
  timeout: 5s
model:
  type: linear
  params:
    ridge: 0.01
storage:
  backend: sqlite
  path: /tmp/artifacts.db
http:
  port: 9090
  cache_size: 0
  max_body_bytes: 4096
log:
  level: debug
  encoding: json
training_log:
  path: /tmp/training.db
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Dataset.URL != "http://localhost:9999/boston.csv" || cfg.Dataset.Retries != 0 {
		t.Errorf("dataset: got %+v", cfg.Dataset)
	}
	if cfg.Dataset.Seed == nil || *cfg.Dataset.Seed != 42 {
		t.Errorf("seed: got %v", cfg.Dataset.Seed)
	}
	if cfg.Dataset.Timeout != 5*time.Second {
		t.Errorf("timeout: got %v", cfg.Dataset.Timeout)
	}
	if cfg.Model.Type != "linear" || cfg.Model.Params["ridge"] != 0.01 {
		t.Errorf("model: got %+v", cfg.Model)
	}
	if !cfg.Model.Compress {
		t.Errorf("compress default lost")
	}
	if cfg.Storage.Backend != storage.BackendSQLite || cfg.Storage.Path != "/tmp/artifacts.db" {
		t.Errorf("storage: got %+v", cfg.Storage)
	}
	if cfg.HTTP.Port != 9090 || cfg.HTTP.CacheSize != 0 || cfg.HTTP.MaxBodyBytes != 4096 {
		t.Errorf("http: got %+v", cfg.HTTP)
	}
	if cfg.HTTP.Timeout != 30*time.Second {
		t.Errorf("http timeout default lost: got %v", cfg.HTTP.Timeout)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Encoding != "json" {
		t.Errorf("log: got %+v", cfg.Log)
	}
	if cfg.TrainingLog.Path != "/tmp/training.db" {
		t.Errorf("training_log: got %+v", cfg.TrainingLog)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	content := `
dataset:
  test_fraction: 1.5
storage:
  backend: ftp
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"test_fraction", "storage.backend"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("http: [port"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestWatchReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "houseprice.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: info\n"), 0644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	levels := make(chan string, 8)
	err := Watch(ctx, path, func(cfg *Config) { levels <- cfg.Log.Level }, nil)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	if err := os.WriteFile(path, []byte("log:\n  level: debug\n"), 0644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case level := <-levels:
			if level == "debug" {
				return
			}
		case <-deadline:
			t.Fatal("no reload observed")
		}
	}
}
