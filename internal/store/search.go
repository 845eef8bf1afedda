package store

import (
	"context"
	"sort"
	"strings"

	"github.com/rcliao/brick-matrix/internal/model"
)

// SearchParams holds filters for Filter and Search. Zero values match
// everything.
type SearchParams struct {
	Query          string
	Type           model.BrickType
	Tags           []string
	AuthorizedOnly bool
	// Pending keeps only bricks awaiting authorization.
	Pending bool
	Limit   int
}

// Filter returns the bricks matching p in insertion order.
func (s *KnowledgeStore) Filter(ctx context.Context, p SearchParams) ([]model.Brick, error) {
	bricks, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	q := strings.ToLower(strings.TrimSpace(p.Query))
	results := make([]model.Brick, 0, len(bricks))
	for _, b := range bricks {
		if p.Type != "" && b.Type != p.Type {
			continue
		}
		if p.AuthorizedOnly && !b.Metadata.IsAuthorized {
			continue
		}
		if p.Pending && b.Metadata.IsAuthorized {
			continue
		}
		if !hasAllTags(b, p.Tags) {
			continue
		}
		if q != "" && !matchesQuery(b, q) {
			continue
		}
		results = append(results, b)
	}

	if p.Limit > 0 && len(results) > p.Limit {
		results = results[:p.Limit]
	}
	return results, nil
}

// Search filters the collection by substring (title, tags and content),
// type and tags, and orders the hits by synaptic weight, heaviest first.
// Ties keep insertion order.
func (s *KnowledgeStore) Search(ctx context.Context, p SearchParams) ([]model.Brick, error) {
	limit := p.Limit
	p.Limit = 0
	results, err := s.Filter(ctx, p)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Metadata.SynapticWeight > results[j].Metadata.SynapticWeight
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func hasAllTags(b model.Brick, tags []string) bool {
	for _, t := range tags {
		if !b.HasTag(t) {
			return false
		}
	}
	return true
}

func matchesQuery(b model.Brick, q string) bool {
	if strings.Contains(strings.ToLower(b.Title), q) {
		return true
	}
	for _, t := range b.Tags {
		if strings.Contains(strings.ToLower(t), q) {
			return true
		}
	}
	return strings.Contains(strings.ToLower(model.ContentText(b.Content)), q)
}
