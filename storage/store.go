// Package storage moves model artifacts to and from an object store
// addressed by (bucket, key).
package storage

import (
	"context"
	"fmt"
	"strings"

	"houseprice/errs"
)

// Store is a bucket/key object store. Transfers are whole-object and
// single-shot; a second Upload to the same address replaces the first.
type Store interface {
	Upload(ctx context.Context, bucket, key string, data []byte) error
	Download(ctx context.Context, bucket, key string) ([]byte, error)
	Close() error
}

const (
	BackendS3     = "s3"
	BackendSQLite = "sqlite"
	BackendFile   = "file"
)

// Config selects and configures a backend.
type Config struct {
	Backend string `yaml:"backend"`

	// s3
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`

	// sqlite
	Path string `yaml:"path"`

	// file
	Root string `yaml:"root"`
}

// DefaultConfig targets AWS S3.
func DefaultConfig() Config {
	return Config{
		Backend: BackendS3,
		Path:    "data/artifacts.db",
		Root:    "data/artifacts",
	}
}

// Open returns the backend named by cfg.Backend.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case BackendS3, "":
		return NewS3Store(ctx, cfg)
	case BackendSQLite:
		return NewSQLiteStore(cfg.Path)
	case BackendFile:
		return NewFileStore(cfg.Root)
	default:
		return nil, errs.E(errs.Invalid, "open store", fmt.Errorf("unknown backend %q", cfg.Backend))
	}
}

func validate(op, bucket, key string) error {
	if bucket == "" {
		return errs.Ef(errs.Invalid, op, "bucket is required")
	}
	if key == "" {
		return errs.Ef(errs.Invalid, op, "key is required")
	}
	return nil
}
