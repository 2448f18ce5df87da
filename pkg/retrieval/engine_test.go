package retrieval

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XiaoConstantine/clara-go/pkg/errors"
)

func newTestEngine(t *testing.T, cases []Case) *Engine {
	t.Helper()
	corpus, err := NewCorpus(CorpusSyntheticUsers, cases)
	require.NoError(t, err)
	reg := NewRegistry()
	reg.Register(corpus)
	return NewEngine(reg)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float64{1, 0}, []float64{2, 0}), 0.001)
	assert.InDelta(t, 0.0, cosineSimilarity([]float64{1, 0}, []float64{0, 1}), 0.001)
	assert.InDelta(t, -1.0, cosineSimilarity([]float64{1, 0}, []float64{-1, 0}), 0.001)
	assert.Equal(t, 0.0, cosineSimilarity([]float64{0, 0}, []float64{1, 1}))
	assert.Equal(t, 0.0, cosineSimilarity([]float64{}, []float64{}))
	assert.Equal(t, 0.0, cosineSimilarity([]float64{1}, []float64{1, 2}))
}

func TestQueryOrdering(t *testing.T) {
	engine := newTestEngine(t, []Case{
		{ID: "c", Embedding: []float64{1, 0}},
		{ID: "a", Embedding: []float64{1, 0}},
		{ID: "b", Embedding: []float64{0, 1}},
	})

	neighbors, err := engine.Query(context.Background(), CorpusSyntheticUsers, []float64{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, neighbors, 3)

	// Equal similarities break ties by ascending case id.
	assert.Equal(t, "a", neighbors[0].CaseID)
	assert.Equal(t, "c", neighbors[1].CaseID)
	assert.Equal(t, "b", neighbors[2].CaseID)
	assert.GreaterOrEqual(t, neighbors[0].Similarity, neighbors[2].Similarity)
}

func TestQueryTopKExcludesLowerSimilarity(t *testing.T) {
	// Two cases tied near 0.9 similarity and one near 0.7: k=2 keeps
	// the tied pair ordered by ascending id and drops the third.
	engine := newTestEngine(t, []Case{
		{ID: "far", Embedding: []float64{1, 1}},
		{ID: "near-2", Embedding: []float64{1, 0.48}},
		{ID: "near-1", Embedding: []float64{1, 0.48}},
	})

	neighbors, err := engine.Query(context.Background(), CorpusSyntheticUsers, []float64{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, neighbors, 2)
	assert.Equal(t, "near-1", neighbors[0].CaseID)
	assert.Equal(t, "near-2", neighbors[1].CaseID)
	for _, n := range neighbors {
		assert.NotEqual(t, "far", n.CaseID)
	}
}

func TestQueryClampsK(t *testing.T) {
	engine := newTestEngine(t, []Case{
		{ID: "a", Embedding: []float64{1, 0}},
		{ID: "b", Embedding: []float64{0, 1}},
	})

	neighbors, err := engine.Query(context.Background(), CorpusSyntheticUsers, []float64{1, 1}, 10)
	require.NoError(t, err)
	assert.Len(t, neighbors, 2)
}

func TestQueryDimensionMismatch(t *testing.T) {
	engine := newTestEngine(t, []Case{
		{ID: "a", Embedding: []float64{1, 0, 0}},
	})

	neighbors, err := engine.Query(context.Background(), CorpusSyntheticUsers, []float64{1, 0}, 1)
	require.Error(t, err)
	assert.Nil(t, neighbors)
	assert.Equal(t, errors.DimensionMismatch, errors.Code(err))
}

func TestQueryUnknownCorpus(t *testing.T) {
	engine := NewEngine(NewRegistry())
	_, err := engine.Query(context.Background(), "nonexistent", []float64{1}, 1)
	require.Error(t, err)
	assert.Equal(t, errors.ResourceNotFound, errors.Code(err))
}

func TestQueryEmptyCorpus(t *testing.T) {
	engine := newTestEngine(t, nil)
	neighbors, err := engine.Query(context.Background(), CorpusSyntheticUsers, []float64{1}, 5)
	require.NoError(t, err)
	assert.Empty(t, neighbors)
}

func TestQueryInvalidK(t *testing.T) {
	engine := newTestEngine(t, []Case{{ID: "a", Embedding: []float64{1}}})
	_, err := engine.Query(context.Background(), CorpusSyntheticUsers, []float64{1}, 0)
	require.Error(t, err)
	assert.Equal(t, errors.InvalidInput, errors.Code(err))
}

func TestNewCorpusRejectsMixedDimensions(t *testing.T) {
	_, err := NewCorpus("mixed", []Case{
		{ID: "a", Embedding: []float64{1, 2}},
		{ID: "b", Embedding: []float64{1, 2, 3}},
	})
	require.Error(t, err)
	assert.Equal(t, errors.DimensionMismatch, errors.Code(err))
}

func TestLoadJSON(t *testing.T) {
	cases := []Case{
		{ID: "u-1", Embedding: []float64{0.1, 0.2}, Metadata: map[string]string{"segment": "steady"}},
		{ID: "u-2", Embedding: []float64{0.3, 0.4}},
	}
	data, err := json.Marshal(cases)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "corpus.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	corpus, err := LoadJSON(CorpusHistoricalLoans, path)
	require.NoError(t, err)
	assert.Equal(t, CorpusHistoricalLoans, corpus.Name())
	assert.Equal(t, 2, corpus.Size())
	assert.Equal(t, 2, corpus.Dimension())
}

func TestLoadJSONMissingFile(t *testing.T) {
	_, err := LoadJSON("missing", filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.Equal(t, errors.ResourceNotFound, errors.Code(err))
}
