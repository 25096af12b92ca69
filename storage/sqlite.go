package storage

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"houseprice/errs"
)

// SQLiteStore keeps every object as one row of the artifacts table.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	const op = "open sqlite store"
	if path == "" {
		return nil, errs.Ef(errs.Invalid, op, "database path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errs.E(errs.Transfer, op, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errs.E(errs.Transfer, op, err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(time.Hour)

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS artifacts (
        bucket TEXT NOT NULL,
        key TEXT NOT NULL,
        body BLOB NOT NULL,
        size INTEGER NOT NULL,
        sha256 TEXT NOT NULL,
        updated_at INTEGER NOT NULL,
        PRIMARY KEY (bucket, key)
    )`)
	if err != nil {
		db.Close()
		return nil, errs.E(errs.Transfer, op, fmt.Errorf("create artifacts table: %w", err))
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Upload(ctx context.Context, bucket, key string, data []byte) error {
	const op = "upload"
	if err := validate(op, bucket, key); err != nil {
		return err
	}
	if data == nil {
		data = []byte{}
	}
	sum := sha256.Sum256(data)
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO artifacts
        (bucket, key, body, size, sha256, updated_at)
        VALUES (?, ?, ?, ?, ?, ?)`,
		bucket, key, data, len(data), hex.EncodeToString(sum[:]), time.Now().UnixNano())
	if err != nil {
		return errs.E(errs.Transfer, op, err)
	}
	return nil
}

func (s *SQLiteStore) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	const op = "download"
	if err := validate(op, bucket, key); err != nil {
		return nil, err
	}
	var (
		body   []byte
		digest string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT body, sha256 FROM artifacts WHERE bucket = ? AND key = ?`,
		bucket, key).Scan(&body, &digest)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.Ef(errs.NotFound, op, "no object at %s/%s", bucket, key)
	}
	if err != nil {
		return nil, errs.E(errs.Transfer, op, err)
	}
	sum := sha256.Sum256(body)
	if hex.EncodeToString(sum[:]) != digest {
		return nil, errs.Ef(errs.Transfer, op, "checksum mismatch for %s/%s", bucket, key)
	}
	if body == nil {
		body = []byte{}
	}
	return body, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
