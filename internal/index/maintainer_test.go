package index

import (
	"context"
	"crypto/sha256"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbedder derives a deterministic unit-ish vector from each text and
// counts how many texts it was asked to embed.
type fakeEmbedder struct {
	mu       sync.Mutex
	embedded []string
	dims     int
}

func newFakeEmbedder(dims int) *fakeEmbedder {
	return &fakeEmbedder{dims: dims}
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		f.embedded = append(f.embedded, text)
		sum := sha256.Sum256([]byte(text))
		vec := make([]float32, f.dims)
		for d := range vec {
			vec[d] = float32(sum[d%len(sum)]) / 255.0
		}
		vecs[i] = vec
	}
	return vecs, nil
}

func (f *fakeEmbedder) Model() string { return "fake-embed" }

func (f *fakeEmbedder) embedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.embedded)
}

func writeTenantDoc(t *testing.T, tenantDir, name, content string) {
	t.Helper()
	docsDir := filepath.Join(tenantDir, docsDirName)
	require.NoError(t, os.MkdirAll(docsDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(docsDir, name), []byte(content), 0o644))
}

func TestEnsureBuilt_FreshTenant(t *testing.T) {
	// Given: a tenant with two documents and no index state
	tenantDir := t.TempDir()
	writeTenantDoc(t, tenantDir, "fees.csv", "service,fee\nwire,25\nach,0\n")
	writeTenantDoc(t, tenantDir, "terms.txt", "Interest accrues daily.")

	embedder := newFakeEmbedder(8)
	m, err := NewMaintainer(tenantDir, embedder, true)
	require.NoError(t, err)

	// When: building
	snap, report, err := m.EnsureBuilt(context.Background())

	// Then: all three structures agree on the chunk count
	require.NoError(t, err)
	assert.Equal(t, 3, report.ChunkCount)
	assert.Equal(t, 3, report.Embedded)
	assert.Len(t, snap.Chunks, 3)
	assert.Equal(t, 3, snap.Lexical.Count())
	assert.Equal(t, 3, snap.Vectors.Count())
}

func TestEnsureBuilt_SecondPassIsNoOp(t *testing.T) {
	tenantDir := t.TempDir()
	writeTenantDoc(t, tenantDir, "a.txt", "stable content")

	embedder := newFakeEmbedder(8)
	m, err := NewMaintainer(tenantDir, embedder, true)
	require.NoError(t, err)

	_, _, err = m.EnsureBuilt(context.Background())
	require.NoError(t, err)
	firstCount := embedder.embedCount()

	// When: building again without document changes
	_, report, err := m.EnsureBuilt(context.Background())

	// Then: nothing re-embeds
	require.NoError(t, err)
	assert.Equal(t, 0, report.Embedded)
	assert.False(t, report.Rebuilt)
	assert.Equal(t, firstCount, embedder.embedCount())
}

func TestEnsureBuilt_EmbedsOnlyAppendedSuffix(t *testing.T) {
	tenantDir := t.TempDir()
	writeTenantDoc(t, tenantDir, "a.txt", "first document")

	embedder := newFakeEmbedder(8)
	m, err := NewMaintainer(tenantDir, embedder, true)
	require.NoError(t, err)
	_, _, err = m.EnsureBuilt(context.Background())
	require.NoError(t, err)

	// When: a new document arrives
	writeTenantDoc(t, tenantDir, "b.txt", "second document")
	snap, report, err := m.EnsureBuilt(context.Background())

	// Then: only the new chunk embeds, the index was not rebuilt
	require.NoError(t, err)
	assert.Equal(t, 1, report.Embedded)
	assert.False(t, report.Rebuilt)
	assert.Equal(t, 2, snap.Vectors.Count())
	assert.Equal(t, 2, snap.Lexical.Count())
}

func TestEnsureBuilt_PruneTriggersRebuild(t *testing.T) {
	tenantDir := t.TempDir()
	writeTenantDoc(t, tenantDir, "a.csv", "k,v\none,1\ntwo,2\n")
	writeTenantDoc(t, tenantDir, "b.txt", "untouched document")

	embedder := newFakeEmbedder(8)
	m, err := NewMaintainer(tenantDir, embedder, true)
	require.NoError(t, err)
	_, _, err = m.EnsureBuilt(context.Background())
	require.NoError(t, err)

	// When: a.csv shrinks to one row
	writeTenantDoc(t, tenantDir, "a.csv", "k,v\nthree,3\n")
	snap, report, err := m.EnsureBuilt(context.Background())

	// Then: pruning forces a full rebuild and the counts line up again
	require.NoError(t, err)
	assert.True(t, report.Sync.Pruned)
	assert.True(t, report.Rebuilt)
	assert.Equal(t, 2, report.ChunkCount)
	assert.Equal(t, 2, snap.Vectors.Count())
	assert.Equal(t, 2, snap.Lexical.Count())
}

func TestEnsureBuilt_StaleVectorIndexRebuilds(t *testing.T) {
	tenantDir := t.TempDir()
	writeTenantDoc(t, tenantDir, "a.txt", "some content")

	embedder := newFakeEmbedder(8)
	m, err := NewMaintainer(tenantDir, embedder, true)
	require.NoError(t, err)
	_, _, err = m.EnsureBuilt(context.Background())
	require.NoError(t, err)

	// Given: the chunk file is truncated behind the index's back while
	// the manifest still claims the document is ingested
	chunksPath := filepath.Join(tenantDir, indexDirName, "chunks.jsonl")
	require.NoError(t, os.WriteFile(chunksPath, nil, 0o644))

	// When: maintenance runs
	snap, report, err := m.EnsureBuilt(context.Background())

	// Then: the vector count exceeded the store and derived state rebuilt
	require.NoError(t, err)
	assert.True(t, report.Rebuilt)
	assert.Equal(t, 0, report.ChunkCount)
	assert.Equal(t, 0, snap.Vectors.Count())
	assert.Equal(t, 0, snap.Lexical.Count())
}

func TestEnsureBuilt_DimensionDriftRebuilds(t *testing.T) {
	tenantDir := t.TempDir()
	writeTenantDoc(t, tenantDir, "a.txt", "indexed before the model changed")

	m, err := NewMaintainer(tenantDir, newFakeEmbedder(3), true)
	require.NoError(t, err)
	_, _, err = m.EnsureBuilt(context.Background())
	require.NoError(t, err)

	// Given: the embedding model now produces wider vectors
	wider := newFakeEmbedder(4)
	m2, err := NewMaintainer(tenantDir, wider, true)
	require.NoError(t, err)

	// When: a new document would append to the 3-dim index
	writeTenantDoc(t, tenantDir, "b.txt", "indexed after the model changed")
	snap, report, err := m2.EnsureBuilt(context.Background())

	// Then: the append is abandoned and the whole corpus re-embeds at
	// the new dimension, restoring the count invariant
	require.NoError(t, err)
	assert.True(t, report.Rebuilt)
	assert.Equal(t, 2, report.ChunkCount)
	assert.Equal(t, 4, snap.Vectors.Dimension())
	assert.Equal(t, len(snap.Chunks), snap.Vectors.Count())
	assert.Equal(t, len(snap.Chunks), snap.Lexical.Count())
}

func TestEnsureBuilt_ConcurrentSameTenant(t *testing.T) {
	tenantDir := t.TempDir()
	writeTenantDoc(t, tenantDir, "a.csv", "k,v\none,1\ntwo,2\n")
	writeTenantDoc(t, tenantDir, "b.txt", "a freeform document")

	embedder := newFakeEmbedder(8)
	m, err := NewMaintainer(tenantDir, embedder, true)
	require.NoError(t, err)

	// When: two maintenance passes race on the same tenant
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, errs[i] = m.EnsureBuilt(context.Background())
		}()
	}
	wg.Wait()

	// Then: both succeed and serialize, so the corpus embeds exactly once
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, 3, embedder.embedCount())

	snap, report, err := m.EnsureBuilt(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Embedded)
	assert.Equal(t, 3, report.ChunkCount)
	assert.Equal(t, len(snap.Chunks), snap.Vectors.Count())
	assert.Equal(t, len(snap.Chunks), snap.Lexical.Count())
}

func TestRebuild_ReEmbedsEverything(t *testing.T) {
	tenantDir := t.TempDir()
	writeTenantDoc(t, tenantDir, "a.txt", "alpha")
	writeTenantDoc(t, tenantDir, "b.txt", "beta")

	embedder := newFakeEmbedder(8)
	m, err := NewMaintainer(tenantDir, embedder, true)
	require.NoError(t, err)
	_, _, err = m.EnsureBuilt(context.Background())
	require.NoError(t, err)

	// When: forcing a rebuild
	snap, report, err := m.Rebuild(context.Background())

	// Then: both chunks embed again
	require.NoError(t, err)
	assert.True(t, report.Rebuilt)
	assert.Equal(t, 2, report.Embedded)
	assert.Equal(t, 4, embedder.embedCount())
	assert.Equal(t, 2, snap.Vectors.Count())
}

func TestEnsureBuilt_EmptyTenant(t *testing.T) {
	tenantDir := t.TempDir()

	m, err := NewMaintainer(tenantDir, newFakeEmbedder(8), true)
	require.NoError(t, err)

	snap, report, err := m.EnsureBuilt(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 0, report.ChunkCount)
	assert.Empty(t, snap.Chunks)
	assert.Equal(t, 0, snap.Vectors.Count())
}
