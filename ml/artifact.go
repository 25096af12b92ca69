package ml

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/ulikunitz/xz"

	"houseprice/data"
	"houseprice/errs"
)

// FormatVersion is bumped whenever the envelope layout changes.
const FormatVersion = 1

var xzMagic = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}

// Artifact is a decoded model artifact.
type Artifact struct {
	FormatVersion int
	ModelType     string
	Schema        data.Schema
	TrainedAt     time.Time
	Model         Regressor
}

type envelope struct {
	FormatVersion int             `json:"format_version"`
	ModelType     string          `json:"model_type"`
	Features      []string        `json:"features"`
	Target        string          `json:"target"`
	TrainedAt     time.Time       `json:"trained_at"`
	Model         json.RawMessage `json:"model"`
}

// EncodeArtifact serializes a fitted model together with the schema it was
// trained on. With compress set the JSON envelope is xz-compressed.
func EncodeArtifact(model Regressor, schema data.Schema, trainedAt time.Time, compress bool) ([]byte, error) {
	body, err := json.Marshal(model)
	if err != nil {
		return nil, fmt.Errorf("encode model: %w", err)
	}
	payload, err := json.Marshal(envelope{
		FormatVersion: FormatVersion,
		ModelType:     model.Type(),
		Features:      schema.Features,
		Target:        schema.Target,
		TrainedAt:     trainedAt.UTC(),
		Model:         body,
	})
	if err != nil {
		return nil, fmt.Errorf("encode artifact: %w", err)
	}
	if !compress {
		return payload, nil
	}

	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("compress artifact: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return nil, fmt.Errorf("compress artifact: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("compress artifact: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeArtifact rebuilds a model from bytes produced by EncodeArtifact.
// Compressed and plain envelopes are both accepted.
func DecodeArtifact(b []byte) (*Artifact, error) {
	const op = "decode artifact"
	if len(b) == 0 {
		return nil, errs.Ef(errs.Decode, op, "empty artifact")
	}

	payload := b
	if bytes.HasPrefix(b, xzMagic) {
		r, err := xz.NewReader(bytes.NewReader(b))
		if err != nil {
			return nil, errs.E(errs.Decode, op, err)
		}
		payload, err = io.ReadAll(r)
		if err != nil {
			return nil, errs.E(errs.Decode, op, err)
		}
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, errs.E(errs.Decode, op, err)
	}
	if env.FormatVersion != FormatVersion {
		return nil, errs.Ef(errs.Decode, op, "unsupported format version %d", env.FormatVersion)
	}
	if len(env.Features) == 0 || env.Target == "" {
		return nil, errs.Ef(errs.Decode, op, "artifact has no schema")
	}

	model, err := NewModel(env.ModelType, nil)
	if err != nil || env.ModelType == "" {
		return nil, errs.Ef(errs.Decode, op, "unknown model type %q", env.ModelType)
	}
	if err := json.Unmarshal(env.Model, model); err != nil {
		return nil, errs.E(errs.Decode, op, err)
	}
	probe := make([]float64, len(env.Features))
	if _, err := model.Predict(probe); err != nil {
		return nil, errs.E(errs.Decode, op, err)
	}

	return &Artifact{
		FormatVersion: env.FormatVersion,
		ModelType:     env.ModelType,
		Schema:        data.Schema{Features: env.Features, Target: env.Target},
		TrainedAt:     env.TrainedAt,
		Model:         model,
	}, nil
}
