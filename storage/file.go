package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"houseprice/errs"
)

// FileStore keeps objects at <root>/<bucket>/<key>.
type FileStore struct {
	root string
}

func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		return nil, errs.Ef(errs.Invalid, "open file store", "root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errs.E(errs.Transfer, "open file store", err)
	}
	return &FileStore{root: root}, nil
}

func (s *FileStore) path(op, bucket, key string) (string, error) {
	if err := validate(op, bucket, key); err != nil {
		return "", err
	}
	if strings.ContainsAny(bucket, `/\`) || !filepath.IsLocal(bucket) {
		return "", errs.Ef(errs.Invalid, op, "invalid bucket name %q", bucket)
	}
	if !filepath.IsLocal(filepath.FromSlash(key)) {
		return "", errs.Ef(errs.Invalid, op, "invalid key %q", key)
	}
	return filepath.Join(s.root, bucket, filepath.FromSlash(key)), nil
}

// Upload writes to a temp file beside the target and renames it into
// place, so a reader sees either the old object or the new one.
func (s *FileStore) Upload(ctx context.Context, bucket, key string, data []byte) error {
	const op = "upload"
	target, err := s.path(op, bucket, key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return errs.E(errs.Transfer, op, err)
	}

	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.E(errs.Transfer, op, err)
	}
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return errs.E(errs.Transfer, op, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errs.E(errs.Transfer, op, err)
	}
	if err := tmp.Close(); err != nil {
		return errs.E(errs.Transfer, op, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return errs.E(errs.Transfer, op, fmt.Errorf("publish %s/%s: %w", bucket, key, err))
	}
	return nil
}

func (s *FileStore) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	const op = "download"
	target, err := s.path(op, bucket, key)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errs.E(errs.Transfer, op, err)
	}
	data, err := os.ReadFile(target)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errs.Ef(errs.NotFound, op, "no object at %s/%s", bucket, key)
	}
	if err != nil {
		return nil, errs.E(errs.Transfer, op, err)
	}
	return data, nil
}

func (s *FileStore) Close() error { return nil }
