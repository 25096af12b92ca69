// Package serving holds the loaded model and answers prediction requests.
package serving

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"houseprice/errs"
	"houseprice/ml"
	"houseprice/storage"
)

// Downloader is the part of storage.Store the predictor needs.
type Downloader interface {
	Download(ctx context.Context, bucket, key string) ([]byte, error)
}

var _ Downloader = (storage.Store)(nil)

// Info describes the loaded model.
type Info struct {
	ModelType      string    `json:"model_type"`
	Features       []string  `json:"features"`
	Target         string    `json:"target"`
	Bucket         string    `json:"bucket"`
	Key            string    `json:"key"`
	ArtifactBytes  int       `json:"artifact_bytes"`
	ArtifactSHA256 string    `json:"artifact_sha256"`
	TrainedAt      time.Time `json:"trained_at"`
	LoadedAt       time.Time `json:"loaded_at"`
}

type loaded struct {
	artifact *ml.Artifact
	info     Info
}

// Predictor starts Unloaded and becomes Ready after one successful Load.
// The loaded model is never mutated, so Predict is safe for concurrent use.
type Predictor struct {
	state  atomic.Pointer[loaded]
	cache  *lru.Cache[string, float64]
	logger *zap.Logger
}

// NewPredictor returns an Unloaded predictor. cacheSize > 0 enables an LRU
// of recent predictions.
func NewPredictor(cacheSize int, logger *zap.Logger) (*Predictor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Predictor{logger: logger}
	if cacheSize > 0 {
		cache, err := lru.New[string, float64](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("create prediction cache: %w", err)
		}
		p.cache = cache
	}
	return p, nil
}

// Ready reports whether a model has been loaded.
func (p *Predictor) Ready() bool {
	return p.state.Load() != nil
}

// Load downloads and decodes the artifact at (bucket, key). It succeeds at
// most once; later calls fail with errs.Invalid.
func (p *Predictor) Load(ctx context.Context, store Downloader, bucket, key string) error {
	const op = "load model"
	if p.Ready() {
		return errs.Ef(errs.Invalid, op, "model already loaded")
	}

	body, err := store.Download(ctx, bucket, key)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	artifact, err := ml.DecodeArtifact(body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	sum := sha256.Sum256(body)
	next := &loaded{
		artifact: artifact,
		info: Info{
			ModelType:      artifact.ModelType,
			Features:       append([]string(nil), artifact.Schema.Features...),
			Target:         artifact.Schema.Target,
			Bucket:         bucket,
			Key:            key,
			ArtifactBytes:  len(body),
			ArtifactSHA256: hex.EncodeToString(sum[:]),
			TrainedAt:      artifact.TrainedAt,
			LoadedAt:       time.Now().UTC(),
		},
	}
	if !p.state.CompareAndSwap(nil, next) {
		return errs.Ef(errs.Invalid, op, "model already loaded")
	}
	p.logger.Info("model loaded",
		zap.String("bucket", bucket),
		zap.String("key", key),
		zap.String("model_type", artifact.ModelType),
		zap.Int("features", len(artifact.Schema.Features)),
		zap.Int("bytes", len(body)))
	return nil
}

// Info returns metadata about the loaded model.
func (p *Predictor) Info() (Info, error) {
	s := p.state.Load()
	if s == nil {
		return Info{}, errs.Ef(errs.NotReady, "info", "no model loaded")
	}
	return s.info, nil
}

// Predict scores one observation. features must hold exactly the model's
// feature names.
func (p *Predictor) Predict(features map[string]float64) (float64, error) {
	const op = "predict"
	s := p.state.Load()
	if s == nil {
		return 0, errs.Ef(errs.NotReady, op, "no model loaded")
	}

	names := s.artifact.Schema.Features
	if len(features) != len(names) {
		return 0, errs.Ef(errs.Validation, op, "expected %d features, got %d", len(names), len(features))
	}
	row := make([]float64, len(names))
	for i, name := range names {
		v, ok := features[name]
		if !ok {
			return 0, errs.Ef(errs.Validation, op, "missing feature %q", name)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, errs.Ef(errs.Validation, op, "feature %q is not finite", name)
		}
		row[i] = v
	}
	return p.predictRow(s, row)
}

// PredictJSON validates a raw request body and scores it. The body must be a
// JSON object whose keys are exactly the model's features and whose values
// are all numbers.
func (p *Predictor) PredictJSON(body []byte) (float64, error) {
	const op = "predict"
	s := p.state.Load()
	if s == nil {
		return 0, errs.Ef(errs.NotReady, op, "no model loaded")
	}

	raw, err := decodeObject(body)
	if err != nil {
		return 0, errs.E(errs.Validation, op, err)
	}

	names := s.artifact.Schema.Features
	known := make(map[string]struct{}, len(names))
	row := make([]float64, len(names))
	for i, name := range names {
		known[name] = struct{}{}
		msg, ok := raw[name]
		if !ok {
			return 0, errs.Ef(errs.Validation, op, "missing feature %q", name)
		}
		v, err := number(msg)
		if err != nil {
			return 0, errs.Ef(errs.Validation, op, "feature %q: %v", name, err)
		}
		row[i] = v
	}
	for name := range raw {
		if _, ok := known[name]; !ok {
			return 0, errs.Ef(errs.Validation, op, "unknown feature %q", name)
		}
	}
	return p.predictRow(s, row)
}

// decodeObject parses body as exactly one JSON object with unique keys.
// Values are left raw.
func decodeObject(body []byte) (map[string]json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("invalid JSON object: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("request body must be a JSON object")
	}

	raw := make(map[string]json.RawMessage)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("invalid JSON object: %w", err)
		}
		name, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("invalid JSON object: unexpected %v", tok)
		}
		var msg json.RawMessage
		if err := dec.Decode(&msg); err != nil {
			return nil, fmt.Errorf("invalid JSON object: %w", err)
		}
		if _, dup := raw[name]; dup {
			return nil, fmt.Errorf("duplicate key %q", name)
		}
		raw[name] = msg
	}
	if tok, err := dec.Token(); err != nil || tok != json.Delim('}') {
		return nil, fmt.Errorf("invalid JSON object: unterminated object")
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("unexpected data after JSON object")
	}
	return raw, nil
}

// number accepts only a JSON number literal; strings, booleans and null are
// rejected even when they look numeric.
func number(msg json.RawMessage) (float64, error) {
	trimmed := bytes.TrimSpace(msg)
	if len(trimmed) == 0 || !(trimmed[0] == '-' || (trimmed[0] >= '0' && trimmed[0] <= '9')) {
		return 0, fmt.Errorf("value %s is not a number", string(trimmed))
	}
	var v float64
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return 0, fmt.Errorf("value %s is not a number", string(trimmed))
	}
	return v, nil
}

func (p *Predictor) predictRow(s *loaded, row []float64) (float64, error) {
	var key string
	if p.cache != nil {
		key = cacheKey(row)
		if v, ok := p.cache.Get(key); ok {
			return v, nil
		}
	}
	v, err := s.artifact.Model.Predict(row)
	if err != nil {
		return 0, fmt.Errorf("predict: %w", err)
	}
	// Finite inputs can still overflow the model, e.g. 1e308 through a
	// linear model.
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errs.Ef(errs.Validation, "predict", "inputs are out of range: prediction is not finite")
	}
	if p.cache != nil {
		p.cache.Add(key, v)
	}
	return v, nil
}

func cacheKey(row []float64) string {
	var b strings.Builder
	for i, v := range row {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%x", math.Float64bits(v))
	}
	return b.String()
}
