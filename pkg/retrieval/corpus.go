package retrieval

import (
	"context"
	"encoding/json"
	"os"
	"sync"

	"github.com/apache/arrow/go/v13/arrow/array"
	"github.com/apache/arrow/go/v13/arrow/memory"
	"github.com/apache/arrow/go/v13/parquet/file"
	"github.com/apache/arrow/go/v13/parquet/pqarrow"

	"github.com/XiaoConstantine/clara-go/pkg/errors"
)

// Named corpora consulted by the pipeline stages.
const (
	CorpusSyntheticUsers  = "synthetic-users"
	CorpusHistoricalLoans = "historical-loans"
)

// Case is one reference entry in a corpus: an embedding vector plus
// arbitrary string metadata describing the case.
type Case struct {
	ID        string            `json:"id"`
	Embedding []float64         `json:"embedding"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Corpus is an immutable named collection of cases sharing one
// embedding dimension.
type Corpus struct {
	name  string
	dim   int
	cases []Case
}

// NewCorpus builds a corpus from cases, enforcing a uniform embedding
// dimension across all entries.
func NewCorpus(name string, cases []Case) (*Corpus, error) {
	if len(cases) == 0 {
		return &Corpus{name: name}, nil
	}
	dim := len(cases[0].Embedding)
	for _, c := range cases {
		if len(c.Embedding) != dim {
			return nil, errors.WithFields(
				errors.New(errors.DimensionMismatch, "corpus cases have inconsistent embedding dimensions"),
				errors.Fields{"corpus": name, "case_id": c.ID, "expected": dim, "got": len(c.Embedding)},
			)
		}
	}
	out := make([]Case, len(cases))
	copy(out, cases)
	return &Corpus{name: name, dim: dim, cases: out}, nil
}

// Name returns the corpus name.
func (c *Corpus) Name() string { return c.name }

// Dimension returns the embedding dimension shared by all cases. Zero
// for an empty corpus.
func (c *Corpus) Dimension() int { return c.dim }

// Size returns the number of cases.
func (c *Corpus) Size() int { return len(c.cases) }

// LoadJSON reads a corpus from a JSON file holding an array of cases.
func LoadJSON(name, path string) (*Corpus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.ResourceNotFound, "failed to read corpus file"),
			errors.Fields{"corpus": name, "path": path},
		)
	}
	var cases []Case
	if err := json.Unmarshal(data, &cases); err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.InvalidInput, "failed to parse corpus file"),
			errors.Fields{"corpus": name, "path": path},
		)
	}
	return NewCorpus(name, cases)
}

// LoadParquet reads a corpus from a Parquet file with columns "id"
// (string), "embedding" (list<double>) and optionally "metadata"
// (string-encoded JSON object).
func LoadParquet(ctx context.Context, name, path string) (*Corpus, error) {
	reader, err := file.OpenParquetFile(path, false)
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.ResourceNotFound, "failed to open corpus parquet file"),
			errors.Fields{"corpus": name, "path": path},
		)
	}
	defer reader.Close()

	arrowReader, err := pqarrow.NewFileReader(reader, pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	if err != nil {
		return nil, errors.Wrap(err, errors.InvalidInput, "failed to create arrow reader")
	}

	schema, err := arrowReader.Schema()
	if err != nil {
		return nil, errors.Wrap(err, errors.InvalidInput, "failed to read corpus schema")
	}
	idIndices := schema.FieldIndices("id")
	embIndices := schema.FieldIndices("embedding")
	if len(idIndices) == 0 || len(embIndices) == 0 {
		return nil, errors.WithFields(
			errors.New(errors.InvalidInput, "corpus parquet missing required columns 'id' and 'embedding'"),
			errors.Fields{"corpus": name, "path": path},
		)
	}
	metaIndices := schema.FieldIndices("metadata")

	table, err := arrowReader.ReadTable(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.InvalidInput, "failed to read corpus table")
	}
	defer table.Release()

	cases := make([]Case, 0, int(table.NumRows()))

	// A file with several row groups yields multi-chunk columns; the
	// table reader realigns them into row-wise record batches.
	tr := array.NewTableReader(table, 1024)
	defer tr.Release()
	for tr.Next() {
		batch := tr.Record()
		ids := batch.Column(idIndices[0]).(*array.String)
		embs := batch.Column(embIndices[0]).(*array.List)
		values := embs.ListValues().(*array.Float64)

		var metas *array.String
		if len(metaIndices) > 0 {
			metas = batch.Column(metaIndices[0]).(*array.String)
		}

		for i := 0; i < int(batch.NumRows()); i++ {
			start, end := embs.ValueOffsets(i)
			embedding := make([]float64, 0, end-start)
			for j := start; j < end; j++ {
				embedding = append(embedding, values.Value(int(j)))
			}
			entry := Case{ID: ids.Value(i), Embedding: embedding}
			if metas != nil && !metas.IsNull(i) {
				var meta map[string]string
				if err := json.Unmarshal([]byte(metas.Value(i)), &meta); err == nil {
					entry.Metadata = meta
				}
			}
			cases = append(cases, entry)
		}
	}
	return NewCorpus(name, cases)
}

// Registry holds named corpora for lookup by the retrieval engine.
type Registry struct {
	mu      sync.RWMutex
	corpora map[string]*Corpus
}

// NewRegistry creates an empty corpus registry.
func NewRegistry() *Registry {
	return &Registry{corpora: make(map[string]*Corpus)}
}

// Register adds or replaces a corpus under its name.
func (r *Registry) Register(c *Corpus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.corpora[c.Name()] = c
}

// Get returns the named corpus, or a ResourceNotFound error.
func (r *Registry) Get(name string) (*Corpus, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.corpora[name]
	if !ok {
		return nil, errors.WithFields(
			errors.New(errors.ResourceNotFound, "unknown corpus"),
			errors.Fields{"corpus": name},
		)
	}
	return c, nil
}

// Names returns the registered corpus names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.corpora))
	for name := range r.corpora {
		names = append(names, name)
	}
	return names
}
