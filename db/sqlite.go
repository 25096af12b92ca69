package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"houseprice/ml"
)

// DB records training runs in SQLite.
type DB struct {
	conn *sql.DB
}

// Open creates the database file and the training_log table if needed.
func Open(path string) (*DB, error) {
	if path == "" {
		return nil, errors.New("training log path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create training log dir: %w", err)
		}
	}
	conn, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	query := `
    CREATE TABLE IF NOT EXISTS training_log (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        run_id TEXT NOT NULL UNIQUE,
        model_type VARCHAR(50),
        bucket TEXT NOT NULL,
        key TEXT NOT NULL,
        train_rows INTEGER,
        test_rows INTEGER,
        metrics TEXT,
        artifact_sha256 TEXT,
        trained_at DATETIME
    );
    CREATE INDEX IF NOT EXISTS idx_training_log_trained_at ON training_log(trained_at);
    `
	if _, err := conn.Exec(query); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create training_log: %w", err)
	}
	return &DB{conn: conn}, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

type TrainingLog struct {
	RunID          string     `json:"run_id"`
	ModelType      string     `json:"model_type"`
	Bucket         string     `json:"bucket"`
	Key            string     `json:"key"`
	Metrics        ml.Metrics `json:"metrics"`
	ArtifactSHA256 string     `json:"artifact_sha256"`
	TrainedAt      time.Time  `json:"trained_at"`
}

// SaveTrainingRun appends one run. Row counts are stored in their own
// columns as well as inside the metrics document.
func (d *DB) SaveTrainingRun(ctx context.Context, entry TrainingLog) error {
	metrics, err := json.Marshal(entry.Metrics)
	if err != nil {
		return err
	}
	_, err = d.conn.ExecContext(ctx, `
        INSERT INTO training_log (
            run_id, model_type, bucket, key, train_rows, test_rows,
            metrics, artifact_sha256, trained_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RunID,
		entry.ModelType,
		entry.Bucket,
		entry.Key,
		entry.Metrics.TrainRows,
		entry.Metrics.TestRows,
		string(metrics),
		entry.ArtifactSHA256,
		entry.TrainedAt.UTC(),
	)
	return err
}

// LoadTrainingLog returns up to limit runs, newest first. limit <= 0
// returns every run.
func (d *DB) LoadTrainingLog(ctx context.Context, limit int) ([]TrainingLog, error) {
	query := `
        SELECT run_id, model_type, bucket, key, metrics, artifact_sha256, trained_at
        FROM training_log
        ORDER BY trained_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := d.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]TrainingLog, 0)
	for rows.Next() {
		var (
			log     TrainingLog
			metrics string
		)
		if err := rows.Scan(&log.RunID, &log.ModelType, &log.Bucket, &log.Key, &metrics, &log.ArtifactSHA256, &log.TrainedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(metrics), &log.Metrics); err != nil {
			return nil, fmt.Errorf("run %s: decode metrics: %w", log.RunID, err)
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}
