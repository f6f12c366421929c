package store

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/coder/hnsw"

	ragerr "github.com/ba3ai/Clarus-Updated-sub000/internal/errors"
)

// VectorIndex is an HNSW index over chunk embeddings, keyed by chunk
// position in the chunk store. Because the chunk store is append-only,
// positions are stable and the index never needs deletion: a prune
// invalidates the count invariant and the maintainer rebuilds from
// scratch.
type VectorIndex struct {
	dir   string
	graph *hnsw.Graph[uint64]
	meta  vectorMeta
}

// vectorMeta is the JSON sidecar persisted next to the graph. Count is
// the source of truth for the index/store consistency check; Dimension
// guards against embedding model changes.
type vectorMeta struct {
	Dimension int `json:"dimension"`
	Count     int `json:"count"`
}

// OpenVectorIndex opens the index in dir, loading the persisted graph
// if one exists. Corrupt or partially written state is discarded and
// the index starts empty; the maintainer notices the count mismatch and
// rebuilds.
func OpenVectorIndex(dir string) *VectorIndex {
	idx := &VectorIndex{
		dir:   dir,
		graph: newGraph(),
	}

	metaData, err := os.ReadFile(idx.metaPath())
	if err != nil {
		return idx
	}
	if err := json.Unmarshal(metaData, &idx.meta); err != nil {
		slog.Warn("vector index sidecar corrupt, starting empty", slog.String("error", err.Error()))
		idx.meta = vectorMeta{}
		return idx
	}

	if err := idx.load(); err != nil {
		slog.Warn("vector index graph unreadable, starting empty", slog.String("error", err.Error()))
		idx.graph = newGraph()
		idx.meta = vectorMeta{}
	}
	return idx
}

func newGraph() *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = 16
	g.EfSearch = 20
	g.Ml = 0.25
	return g
}

func (v *VectorIndex) graphPath() string { return filepath.Join(v.dir, VectorsFileName) }
func (v *VectorIndex) metaPath() string  { return filepath.Join(v.dir, VectorsSidecar) }

// Count returns the number of indexed vectors.
func (v *VectorIndex) Count() int { return v.meta.Count }

// Dimension returns the embedding dimension, or 0 for an empty index.
func (v *VectorIndex) Dimension() int { return v.meta.Dimension }

// Append inserts vectors for the chunks starting at position startPos.
// Vectors must all share one dimension, and that dimension must match
// any vectors already in the index.
func (v *VectorIndex) Append(startPos int, vectors [][]float32) error {
	for i, vec := range vectors {
		if len(vec) == 0 {
			return ragerr.Newf(ragerr.KindInvalidInput, "vector.append", "empty vector at offset %d", i)
		}
		if v.meta.Dimension == 0 {
			v.meta.Dimension = len(vec)
		}
		if len(vec) != v.meta.Dimension {
			return ragerr.Newf(ragerr.KindDimensionMismatch, "vector.append",
				"expected dimension %d, got %d", v.meta.Dimension, len(vec))
		}

		normalized := make([]float32, len(vec))
		copy(normalized, vec)
		normalizeInPlace(normalized)

		v.graph.Add(hnsw.MakeNode(uint64(startPos+i), normalized))
		v.meta.Count++
	}
	return nil
}

// Search returns up to k nearest chunks by cosine similarity. Scores
// map cosine distance into [0,1], higher is closer.
func (v *VectorIndex) Search(query []float32, k int) ([]VectorResult, error) {
	if v.meta.Count == 0 {
		return []VectorResult{}, nil
	}
	if len(query) != v.meta.Dimension {
		return nil, ragerr.Newf(ragerr.KindDimensionMismatch, "vector.search",
			"expected dimension %d, got %d", v.meta.Dimension, len(query))
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	normalizeInPlace(normalized)

	nodes := v.graph.Search(normalized, k)
	results := make([]VectorResult, 0, len(nodes))
	for _, node := range nodes {
		distance := v.graph.Distance(normalized, node.Value)
		results = append(results, VectorResult{
			Pos:   int(node.Key),
			Score: 1.0 - distance/2.0,
		})
	}
	return results, nil
}

// Reset drops all vectors and removes the persisted files.
func (v *VectorIndex) Reset() error {
	v.graph = newGraph()
	v.meta = vectorMeta{}

	for _, path := range []string{v.graphPath(), v.metaPath()} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// Save persists the graph and sidecar atomically via temp file rename.
// The sidecar is written last so a crash mid-save leaves a stale count,
// which the maintainer treats as a rebuild signal.
func (v *VectorIndex) Save() error {
	tmpPath := v.graphPath() + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	if err := v.graph.Export(file); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, v.graphPath()); err != nil {
		os.Remove(tmpPath)
		return err
	}

	metaData, err := json.Marshal(v.meta)
	if err != nil {
		return err
	}
	metaTmp := v.metaPath() + ".tmp"
	if err := os.WriteFile(metaTmp, metaData, 0o644); err != nil {
		return err
	}
	return os.Rename(metaTmp, v.metaPath())
}

func (v *VectorIndex) load() error {
	file, err := os.Open(v.graphPath())
	if err != nil {
		return err
	}
	defer file.Close()

	// Import requires an io.ByteReader.
	return v.graph.Import(bufio.NewReader(file))
}

func normalizeInPlace(vec []float32) {
	var sumSquares float64
	for _, val := range vec {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range vec {
		vec[i] *= inv
	}
}
