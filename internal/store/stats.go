package store

import (
	"context"
	"sort"

	"github.com/rcliao/brick-matrix/internal/model"
)

// Stats holds collection statistics.
type Stats struct {
	Total         int         `json:"total"`
	Authorized    int         `json:"authorized"`
	Unauthorized  int         `json:"unauthorized"`
	SchemaVersion int         `json:"schema_version"`
	Environment   string      `json:"environment"`
	Types         []TypeStats `json:"types"`
}

// TypeStats holds per-type counts.
type TypeStats struct {
	Type          model.BrickType `json:"type"`
	Count         int             `json:"count"`
	AverageWeight float64         `json:"average_weight"`
}

// Stats returns collection statistics.
func (s *KnowledgeStore) Stats(ctx context.Context) (*Stats, error) {
	bricks, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	st := &Stats{
		Total:         len(bricks),
		SchemaVersion: s.opts.SchemaVersion,
		Environment:   s.opts.Environment,
		Types:         []TypeStats{},
	}
	counts := map[model.BrickType]int{}
	weights := map[model.BrickType]int{}
	for _, b := range bricks {
		if b.Metadata.IsAuthorized {
			st.Authorized++
		} else {
			st.Unauthorized++
		}
		counts[b.Type]++
		weights[b.Type] += b.Metadata.SynapticWeight
	}
	for t, n := range counts {
		st.Types = append(st.Types, TypeStats{
			Type:          t,
			Count:         n,
			AverageWeight: float64(weights[t]) / float64(n),
		})
	}
	sort.Slice(st.Types, func(i, j int) bool {
		if st.Types[i].Count != st.Types[j].Count {
			return st.Types[i].Count > st.Types[j].Count
		}
		return st.Types[i].Type < st.Types[j].Type
	})
	return st, nil
}
