package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/rcliao/brick-matrix/internal/model"
)

// CopySuffix marks the title of a duplicated brick.
const CopySuffix = " (copy)"

// List returns every brick in insertion order.
func (s *KnowledgeStore) List(ctx context.Context) ([]model.Brick, error) {
	bricks, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if bricks == nil {
		return []model.Brick{}, nil
	}
	return bricks, nil
}

// Get returns the brick with the given id.
func (s *KnowledgeStore) Get(ctx context.Context, id string) (*model.Brick, error) {
	bricks, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	i := indexOf(bricks, id)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	b := bricks[i]
	return &b, nil
}

// Create stores a new brick built from d. The store assigns the id, the
// timestamps, the attribution token and the schema version.
func (s *KnowledgeStore) Create(ctx context.Context, actor string, d model.Draft) (*model.Brick, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	var created model.Brick
	err := s.mutate(ctx, OpCreate, func(bricks []model.Brick) ([]model.Brick, []string, error) {
		now := s.now()
		authorized := true
		if d.IsAuthorized != nil {
			authorized = *d.IsAuthorized
		}
		created = model.Brick{
			ID:      s.newID(),
			Type:    d.Type,
			Title:   strings.TrimSpace(d.Title),
			Tags:    model.NormalizeTags(d.Tags),
			Content: model.CanonicalContent(d.Content),
			Metadata: model.Metadata{
				CreatedAt:          now,
				LastValidated:      now,
				IsAuthorized:       authorized,
				Version:            s.opts.SchemaVersion,
				SynapticWeight:     model.ClampWeight(d.SynapticWeight),
				ResponsibilityHash: uuid.NewString(),
			},
		}
		if authorized {
			created.Metadata.AuthorizedBy = s.actor(actor)
		}
		created = created.Clone()
		return append(bricks, created), []string{created.ID}, nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// Update merges the fields set in p into the brick and re-stamps
// lastValidated.
func (s *KnowledgeStore) Update(ctx context.Context, actor, id string, p model.Patch) (*model.Brick, error) {
	var updated model.Brick
	err := s.mutate(ctx, OpUpdate, func(bricks []model.Brick) ([]model.Brick, []string, error) {
		i := indexOf(bricks, id)
		if i < 0 {
			return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		b := bricks[i].Clone()
		if p.Type != nil {
			b.Type = *p.Type
		}
		if p.Title != nil {
			b.Title = strings.TrimSpace(*p.Title)
		}
		if p.Tags != nil {
			b.Tags = model.NormalizeTags(*p.Tags)
		}
		if p.Content != nil {
			b.Content = model.CanonicalContent(p.Content)
		}
		if p.SynapticWeight != nil {
			b.Metadata.SynapticWeight = model.ClampWeight(*p.SynapticWeight)
		}
		if p.IsAuthorized != nil {
			b.Metadata.IsAuthorized = *p.IsAuthorized
			if *p.IsAuthorized && p.AuthorizedBy == nil {
				b.Metadata.AuthorizedBy = s.actor(actor)
			}
		}
		if p.AuthorizedBy != nil {
			b.Metadata.AuthorizedBy = *p.AuthorizedBy
		}
		if err := b.Validate(); err != nil {
			return nil, nil, err
		}
		b.Metadata.LastValidated = s.now()

		bricks[i] = b
		updated = b.Clone()
		return bricks, []string{id}, nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Delete removes the brick. Deleting a missing id is not an error and does
// not notify subscribers.
func (s *KnowledgeStore) Delete(ctx context.Context, id string) error {
	return s.mutate(ctx, OpDelete, func(bricks []model.Brick) ([]model.Brick, []string, error) {
		i := indexOf(bricks, id)
		if i < 0 {
			return nil, nil, nil
		}
		out := make([]model.Brick, 0, len(bricks)-1)
		out = append(out, bricks[:i]...)
		out = append(out, bricks[i+1:]...)
		return out, []string{id}, nil
	})
}

// Duplicate copies a brick under a fresh id. The copy starts over at
// version 1 with new timestamps.
func (s *KnowledgeStore) Duplicate(ctx context.Context, actor, id string) (*model.Brick, error) {
	var dup model.Brick
	err := s.mutate(ctx, OpDuplicate, func(bricks []model.Brick) ([]model.Brick, []string, error) {
		i := indexOf(bricks, id)
		if i < 0 {
			return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		now := s.now()
		dup = bricks[i].Clone()
		dup.ID = s.newID()
		dup.Title += CopySuffix
		dup.Metadata.CreatedAt = now
		dup.Metadata.LastValidated = now
		dup.Metadata.LastAccessed = nil
		dup.Metadata.AccessCount = 0
		dup.Metadata.Version = 1
		dup.Metadata.ResponsibilityHash = uuid.NewString()
		if dup.Metadata.IsAuthorized {
			dup.Metadata.AuthorizedBy = s.actor(actor)
		}
		return append(bricks, dup.Clone()), []string{dup.ID}, nil
	})
	if err != nil {
		return nil, err
	}
	return &dup, nil
}
