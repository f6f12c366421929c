// Package store is the persistence layer for one tenant's index state:
// the append-only chunk store with its fingerprint manifest, the BM25
// lexical cache, and the HNSW vector index.
//
// Layout inside a tenant's index directory:
//
//	chunks.jsonl   one JSON chunk per line, identified by line position
//	manifest.json  file path -> {fingerprint, chunk positions}
//	lexical.json   persisted BM25 cache
//	vectors.hnsw   opaque HNSW graph export
//	vectors.json   sidecar {dimension, count}
package store

const (
	ChunksFileName   = "chunks.jsonl"
	ManifestFileName = "manifest.json"
	LexicalFileName  = "lexical.json"
	VectorsFileName  = "vectors.hnsw"
	VectorsSidecar   = "vectors.json"
)

// LexicalResult is one ranked hit from the BM25 index.
type LexicalResult struct {
	Pos   int // chunk position in the store
	Score float64
}

// VectorResult is one ranked hit from the vector index.
type VectorResult struct {
	Pos   int
	Score float32 // normalized similarity in [0,1], higher is closer
}

// SyncResult reports what one ChunkStore sync did.
type SyncResult struct {
	AddedChunks  int
	FilesScanned int
	// Pruned is true when stale chunks of changed files were removed;
	// the vector index is then behind and must be rebuilt.
	Pruned bool
}
