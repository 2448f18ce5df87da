package retrieval

import (
	"context"
	"math"
	"sort"

	"github.com/XiaoConstantine/clara-go/pkg/core"
	"github.com/XiaoConstantine/clara-go/pkg/errors"
	"github.com/XiaoConstantine/clara-go/pkg/logging"
)

// Engine answers nearest-neighbor queries against registered corpora.
type Engine struct {
	registry *Registry
	logger   *logging.Logger
}

// NewEngine creates an engine over the given registry.
func NewEngine(registry *Registry) *Engine {
	return &Engine{registry: registry, logger: logging.GetLogger()}
}

// Query returns the k most similar cases from the named corpus,
// ordered by descending similarity with ties broken by ascending case
// id. k larger than the corpus is clamped; a query vector whose
// dimension differs from the corpus dimension is a DimensionMismatch
// error and nothing is returned.
func (e *Engine) Query(ctx context.Context, corpus string, query []float64, k int) ([]core.Neighbor, error) {
	c, err := e.registry.Get(corpus)
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, errors.WithFields(
			errors.New(errors.InvalidInput, "retrieval k must be positive"),
			errors.Fields{"corpus": corpus, "k": k},
		)
	}
	if c.Size() == 0 {
		return []core.Neighbor{}, nil
	}
	if len(query) != c.Dimension() {
		return nil, errors.WithFields(
			errors.New(errors.DimensionMismatch, "query dimension does not match corpus"),
			errors.Fields{"corpus": corpus, "expected": c.Dimension(), "got": len(query)},
		)
	}

	neighbors := make([]core.Neighbor, 0, c.Size())
	for _, entry := range c.cases {
		neighbors = append(neighbors, core.Neighbor{
			CaseID:     entry.ID,
			Similarity: cosineSimilarity(query, entry.Embedding),
			Metadata:   entry.Metadata,
		})
	}

	sort.Slice(neighbors, func(i, j int) bool {
		if neighbors[i].Similarity != neighbors[j].Similarity {
			return neighbors[i].Similarity > neighbors[j].Similarity
		}
		return neighbors[i].CaseID < neighbors[j].CaseID
	})

	if k > len(neighbors) {
		k = len(neighbors)
	}
	e.logger.Debug(ctx, "retrieved %d neighbors from corpus %s (top similarity %.4f)",
		k, corpus, neighbors[0].Similarity)
	return neighbors[:k], nil
}

// cosineSimilarity computes the cosine similarity between two vectors.
// A zero vector on either side yields 0.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
