// Package recommend implements the two-stage retrieval-then-synthesis
// recommendation pipeline: a metadata-scoped vector search followed by a
// generative step that turns the retrieved context into structured
// recommendations.
package recommend

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/careerhub/ai-pipeline/internal/filter"
	"github.com/careerhub/ai-pipeline/internal/task"
	"github.com/careerhub/ai-pipeline/internal/vectorstore"
)

// Item is one retrieved context entry. SimilarityScore is normalized so 1.0
// means identical and 0.0 unrelated, regardless of the backing store's
// native score semantics.
type Item struct {
	ID              string         `json:"id"`
	SimilarityScore float64        `json:"similarity_score"`
	Metadata        map[string]any `json:"metadata"`
	SourceText      string         `json:"source_text"`
}

// Searcher is the slice of the vector store the retriever needs
type Searcher interface {
	Search(ctx context.Context, vector []float32, predicate *filter.Compiled, limit int) ([]vectorstore.Hit, error)
}

// Retriever issues similarity queries and normalizes results into a ranked
// item list: descending by similarity, ties broken by ascending ID.
type Retriever struct {
	store Searcher

	// scoresAreDistances converts raw scores as similarity = 1 - distance
	// for stores that report distances instead of similarities
	scoresAreDistances bool

	logger *slog.Logger
}

// NewRetriever creates a retriever over the given store
func NewRetriever(store Searcher, scoresAreDistances bool, logger *slog.Logger) *Retriever {
	return &Retriever{
		store:              store,
		scoresAreDistances: scoresAreDistances,
		logger:             logger,
	}
}

// Retrieve runs the similarity query and returns at most limit items. An
// unreachable store is a transient error; an empty result set is a valid
// outcome, not an error.
func (r *Retriever) Retrieve(ctx context.Context, vector []float32, predicate *filter.Compiled, limit int) ([]Item, error) {
	if limit <= 0 {
		return []Item{}, nil
	}

	hits, err := r.store.Search(ctx, vector, predicate, limit)
	if err != nil {
		return nil, task.NewTransientError(fmt.Errorf("vector search failed: %w", err))
	}

	items := make([]Item, 0, len(hits))
	for _, hit := range hits {
		items = append(items, Item{
			ID:              hit.DocumentID,
			SimilarityScore: r.normalizeScore(hit.Score),
			Metadata:        hit.Metadata,
			SourceText:      hit.SourceText,
		})
	}

	sortItems(items)

	if len(items) > limit {
		items = items[:limit]
	}

	r.logger.Debug("Retrieved context items",
		slog.Int("count", len(items)),
		slog.Int("limit", limit),
	)

	return items, nil
}

func (r *Retriever) normalizeScore(raw float32) float64 {
	score := float64(raw)
	if r.scoresAreDistances {
		score = 1 - score
	}
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// sortItems orders descending by similarity score, ascending by ID on ties
func sortItems(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].SimilarityScore != items[j].SimilarityScore {
			return items[i].SimilarityScore > items[j].SimilarityScore
		}
		return items[i].ID < items[j].ID
	})
}
