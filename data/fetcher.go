package data

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"

	"houseprice/errs"
)

// DefaultURL is the public Boston Housing CSV.
const DefaultURL = "https://raw.githubusercontent.com/selva86/datasets/master/BostonHousing.csv"

// ProviderConfig controls where and how the dataset is fetched.
type ProviderConfig struct {
	URL          string
	Encoding     string
	Timeout      time.Duration
	Retries      int
	RetryBackoff time.Duration
	RawPath      string
}

// Provider downloads the dataset and parses it into a Table.
type Provider struct {
	config ProviderConfig
	schema Schema
	client *http.Client
	logger *zap.Logger
}

// NewProvider creates a Provider for schema.
func NewProvider(config ProviderConfig, schema Schema, logger *zap.Logger) *Provider {
	if config.URL == "" {
		config.URL = DefaultURL
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.Retries < 0 {
		config.Retries = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		config: config,
		schema: schema,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		logger: logger,
	}
}

// Fetch downloads a fresh copy of the dataset. Transfer failures are retried
// config.Retries times; parse failures are not.
func (p *Provider) Fetch(ctx context.Context) (*Table, error) {
	var body []byte
	var lastErr error
	for attempt := 0; attempt <= p.config.Retries; attempt++ {
		if attempt > 0 {
			wait := p.config.RetryBackoff * time.Duration(attempt)
			p.logger.Warn("retrying dataset download",
				zap.Int("attempt", attempt),
				zap.Int("retries", p.config.Retries),
				zap.Duration("backoff", wait),
				zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return nil, errs.E(errs.Transfer, "fetch dataset", ctx.Err())
			case <-time.After(wait):
			}
		}
		body, lastErr = p.download(ctx)
		if lastErr == nil {
			break
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}

	if p.config.RawPath != "" {
		if err := writeRaw(p.config.RawPath, body); err != nil {
			return nil, fmt.Errorf("write raw dataset: %w", err)
		}
	}

	reader, err := p.decoder(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	table, err := ParseCSV(reader, p.schema)
	if err != nil {
		return nil, err
	}
	p.logger.Info("dataset loaded",
		zap.String("url", p.config.URL),
		zap.Int("rows", table.Len()),
		zap.Int("columns", len(table.Columns)))
	return table, nil
}

func (p *Provider) download(ctx context.Context) ([]byte, error) {
	const op = "fetch dataset"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.URL, nil)
	if err != nil {
		return nil, errs.E(errs.Transfer, op, err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errs.E(errs.Transfer, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errs.Ef(errs.Transfer, op, "unexpected status %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.E(errs.Transfer, op, err)
	}
	return body, nil
}

func (p *Provider) decoder(r io.Reader) (io.Reader, error) {
	name := strings.ToLower(strings.TrimSpace(p.config.Encoding))
	if name == "" || name == "utf-8" || name == "utf8" {
		return r, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, errs.Ef(errs.Parse, "decode dataset", "unknown encoding %q", p.config.Encoding)
	}
	return transform.NewReader(r, enc.NewDecoder()), nil
}

// ParseCSV reads a headed CSV and keeps the schema columns, features first.
// Header names are compared case-insensitively; other columns are ignored.
func ParseCSV(r io.Reader, schema Schema) (*Table, error) {
	const op = "parse dataset"
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errs.Ef(errs.Parse, op, "empty content")
	}
	if err != nil {
		return nil, errs.E(errs.Parse, op, err)
	}

	positions := make(map[string]int, len(header))
	for i, h := range header {
		positions[normalizeHeader(h)] = i
	}
	columns := schema.Columns()
	source := make([]int, len(columns))
	for i, name := range columns {
		idx, ok := positions[normalizeHeader(name)]
		if !ok {
			return nil, errs.Ef(errs.Parse, op, "missing column %q", name)
		}
		source[i] = idx
	}

	table := &Table{Columns: columns}
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errs.E(errs.Parse, op, err)
		}
		row := make([]float64, len(columns))
		for i, idx := range source {
			cell := strings.TrimSpace(record[idx])
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, errs.Ef(errs.Parse, op, "line %d column %q: %q is not a number", line, columns[i], cell)
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, errs.Ef(errs.Parse, op, "line %d column %q: non-finite value", line, columns[i])
			}
			row[i] = v
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

func normalizeHeader(s string) string {
	s = strings.TrimPrefix(s, "\ufeff")
	return strings.ToLower(strings.Trim(strings.TrimSpace(s), `"`))
}

func writeRaw(path string, body []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, body, 0o644)
}
