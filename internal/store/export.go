package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rcliao/brick-matrix/internal/model"
)

// ExportDateLayout is the ISO-8601 form used for Matrix.ExportDate.
const ExportDateLayout = "2006-01-02T15:04:05.000Z07:00"

// Matrix is the transportable document holding a whole collection.
// The collection field is always named "matrix".
type Matrix struct {
	Matrix      []model.Brick `json:"matrix"`
	Version     int           `json:"version"`
	ExportDate  string        `json:"exportDate"`
	Environment string        `json:"environment"`
}

// Encode renders the matrix as indented JSON.
func (m *Matrix) Encode() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// ImportResult reports the outcome of ImportAll. Callers check Success;
// Err carries the underlying error for errors.Is.
type ImportResult struct {
	Success     bool   `json:"success"`
	Count       int    `json:"count"`
	Added       int    `json:"added"`
	Overwritten int    `json:"overwritten"`
	Message     string `json:"message,omitempty"`
	Err         error  `json:"-"`
}

// DecodeMatrix parses an import document. Unknown top-level fields are
// ignored; a missing, non-array or empty "matrix" field is rejected.
func DecodeMatrix(data []byte) (*Matrix, error) {
	var envelope struct {
		Matrix      json.RawMessage `json:"matrix"`
		Version     int             `json:"version"`
		ExportDate  string          `json:"exportDate"`
		Environment string          `json:"environment"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	raw := bytes.TrimSpace(envelope.Matrix)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, fmt.Errorf("%w: missing \"matrix\" collection", ErrMalformedPayload)
	}
	if raw[0] != '[' {
		return nil, fmt.Errorf("%w: \"matrix\" must be an array", ErrMalformedPayload)
	}
	m := &Matrix{
		Version:     envelope.Version,
		ExportDate:  envelope.ExportDate,
		Environment: envelope.Environment,
	}
	if err := json.Unmarshal(raw, &m.Matrix); err != nil {
		return nil, fmt.Errorf("%w: decode bricks: %v", ErrMalformedPayload, err)
	}
	if len(m.Matrix) == 0 {
		return nil, fmt.Errorf("%w: \"matrix\" is empty", ErrMalformedPayload)
	}
	return m, nil
}

// ExportAll snapshots the collection with store-level metadata. It does
// not modify the store.
func (s *KnowledgeStore) ExportAll(ctx context.Context) (*Matrix, error) {
	bricks, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return &Matrix{
		Matrix:      bricks,
		Version:     s.opts.SchemaVersion,
		ExportDate:  s.now().Format(ExportDateLayout),
		Environment: s.opts.Environment,
	}, nil
}

// ExportOne serializes a single brick as a standalone document.
func (s *KnowledgeStore) ExportOne(ctx context.Context, id string) ([]byte, error) {
	b, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(b, "", "  ")
}

// ImportAll merges a matrix document into the collection. Incoming bricks
// overwrite local ones with the same id regardless of timestamps or
// versions. Failures are reported in the result rather than returned.
func (s *KnowledgeStore) ImportAll(ctx context.Context, data []byte) ImportResult {
	res, _ := s.importMatrix(ctx, data, false)
	return res
}

// SeedIfEmpty imports data only when the collection is empty. The emptiness
// check and the import happen under one write.
func (s *KnowledgeStore) SeedIfEmpty(ctx context.Context, data []byte) (ImportResult, bool) {
	return s.importMatrix(ctx, data, true)
}

func (s *KnowledgeStore) importMatrix(ctx context.Context, data []byte, onlyIfEmpty bool) (ImportResult, bool) {
	m, err := DecodeMatrix(data)
	if err != nil {
		return failedImport(err), false
	}

	var res ImportResult
	seeded := false
	err = s.mutate(ctx, OpImportAll, func(local []model.Brick) ([]model.Brick, []string, error) {
		if onlyIfEmpty && len(local) > 0 {
			return nil, nil, nil
		}
		incoming := make([]model.Brick, 0, len(m.Matrix))
		now := s.now()
		for i, b := range m.Matrix {
			nb, err := s.normalizeIncoming(b, now)
			if err != nil {
				return nil, nil, fmt.Errorf("%w: brick %d: %w", ErrMalformedPayload, i, err)
			}
			incoming = append(incoming, nb)
		}

		merged, added, overwritten := merge(local, incoming)
		ids := make([]string, 0, len(incoming))
		for _, b := range incoming {
			ids = append(ids, b.ID)
		}
		res = ImportResult{
			Success:     true,
			Count:       len(incoming),
			Added:       added,
			Overwritten: overwritten,
			Message:     fmt.Sprintf("merged %d bricks (%d new, %d overwritten)", len(incoming), added, overwritten),
		}
		seeded = true
		return merged, ids, nil
	})
	if err != nil {
		s.log.Warn("import failed", zap.Error(err))
		return failedImport(err), false
	}
	if !seeded {
		return ImportResult{Success: true, Message: "store not empty, nothing imported"}, false
	}
	s.log.Info("matrix imported",
		zap.Int("count", res.Count),
		zap.Int("added", res.Added),
		zap.Int("overwritten", res.Overwritten),
		zap.String("source_environment", m.Environment))
	return res, true
}

func failedImport(err error) ImportResult {
	return ImportResult{Success: false, Message: err.Error(), Err: err}
}

// ImportOne parses a single brick document and upserts it by id.
func (s *KnowledgeStore) ImportOne(ctx context.Context, data []byte) (*model.Brick, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: %w: expected a brick object", ErrMalformedPayload, model.ErrValidation)
	}
	var in model.Brick
	if err := json.Unmarshal(trimmed, &in); err != nil {
		return nil, fmt.Errorf("%w: %w: %v", ErrMalformedPayload, model.ErrValidation, err)
	}

	var out model.Brick
	err := s.mutate(ctx, OpImportOne, func(bricks []model.Brick) ([]model.Brick, []string, error) {
		b, err := s.normalizeIncoming(in, s.now())
		if err != nil {
			return nil, nil, err
		}
		merged, _, _ := merge(bricks, []model.Brick{b})
		out = b.Clone()
		return merged, []string{b.ID}, nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// normalizeIncoming fills defaults for missing metadata, synthesizes an id
// when absent and validates the result. Must be called with mu held.
func (s *KnowledgeStore) normalizeIncoming(b model.Brick, now time.Time) (model.Brick, error) {
	b = b.Clone()
	if b.ID == "" {
		b.ID = s.newID()
	}
	b.Tags = model.NormalizeTags(b.Tags)
	b.Content = model.CanonicalContent(b.Content)
	b.Metadata.SynapticWeight = model.ClampWeight(b.Metadata.SynapticWeight)
	if b.Metadata.CreatedAt.IsZero() {
		b.Metadata.CreatedAt = now
	}
	if b.Metadata.LastValidated.IsZero() {
		b.Metadata.LastValidated = b.Metadata.CreatedAt
	}
	if b.Metadata.Version <= 0 {
		b.Metadata.Version = s.opts.SchemaVersion
	}
	if err := b.Validate(); err != nil {
		return b, err
	}
	return b, nil
}

// merge overlays incoming onto local keyed by id. Local bricks keep their
// position, overwritten ones are replaced in place and new ids are appended
// in incoming order. The last occurrence of an id in incoming wins.
func merge(local, incoming []model.Brick) (merged []model.Brick, added, overwritten int) {
	merged = make([]model.Brick, len(local), len(local)+len(incoming))
	copy(merged, local)

	pos := make(map[string]int, len(merged)+len(incoming))
	for i, b := range merged {
		pos[b.ID] = i
	}
	fromLocal := make(map[string]bool, len(local))
	for _, b := range local {
		fromLocal[b.ID] = true
	}

	for _, r := range incoming {
		if i, ok := pos[r.ID]; ok {
			merged[i] = r
			if fromLocal[r.ID] {
				overwritten++
				delete(fromLocal, r.ID)
			}
			continue
		}
		pos[r.ID] = len(merged)
		merged = append(merged, r)
		added++
	}
	return merged, added, overwritten
}

// IsMalformed reports whether err came from a structurally invalid payload.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedPayload)
}
