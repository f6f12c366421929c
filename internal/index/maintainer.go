// Package index keeps one tenant's chunk store, lexical cache and vector
// index mutually consistent.
//
// The consistency contract is a single count invariant: after any
// successful maintenance pass, the vector index and the lexical cache
// each hold exactly one entry per chunk store line. Any disagreement
// marks the derived state stale and forces a rebuild, so the engine can
// trust positions across all three structures.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"github.com/ba3ai/Clarus-Updated-sub000/internal/chunk"
	"github.com/ba3ai/Clarus-Updated-sub000/internal/errors"
	"github.com/ba3ai/Clarus-Updated-sub000/internal/provider"
	"github.com/ba3ai/Clarus-Updated-sub000/internal/store"
)

const (
	docsDirName  = "docs"
	indexDirName = "index"
	lockFileName = "tenant.lock"
)

// tenantMutexes serializes maintenance per tenant dir inside this
// process; the flock below covers other processes.
var tenantMutexes sync.Map

// Maintainer owns the index lifecycle for one tenant directory.
type Maintainer struct {
	tenantDir string
	embedder  provider.Embedder
	prune     bool
}

// Snapshot is a consistent view of one tenant's index state, valid until
// the next maintenance pass.
type Snapshot struct {
	Chunks  []chunk.Chunk
	Lexical *store.LexicalIndex
	Vectors *store.VectorIndex
}

// BuildReport describes what one EnsureBuilt pass did.
type BuildReport struct {
	Sync       store.SyncResult
	Embedded   int  // chunks embedded during this pass
	Rebuilt    bool // true when the vector index was discarded and redone
	ChunkCount int
}

// NewMaintainer creates the maintainer for a tenant directory, creating
// the docs/ and index/ subdirectories as needed.
func NewMaintainer(tenantDir string, embedder provider.Embedder, prune bool) (*Maintainer, error) {
	for _, sub := range []string{docsDirName, indexDirName} {
		if err := os.MkdirAll(filepath.Join(tenantDir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create tenant dir: %w", err)
		}
	}
	return &Maintainer{tenantDir: tenantDir, embedder: embedder, prune: prune}, nil
}

// DocsDir returns where this tenant's raw documents live.
func (m *Maintainer) DocsDir() string { return filepath.Join(m.tenantDir, docsDirName) }

func (m *Maintainer) indexDir() string { return filepath.Join(m.tenantDir, indexDirName) }

// lock takes the per-tenant in-process mutex and the cross-process file
// lock, in that order. The returned func releases both.
func (m *Maintainer) lock(ctx context.Context) (func(), error) {
	muIface, _ := tenantMutexes.LoadOrStore(m.tenantDir, &sync.Mutex{})
	mu := muIface.(*sync.Mutex)
	mu.Lock()

	fl := flock.New(filepath.Join(m.tenantDir, lockFileName))
	if err := fl.Lock(); err != nil {
		mu.Unlock()
		return nil, fmt.Errorf("acquire tenant lock: %w", err)
	}
	if err := ctx.Err(); err != nil {
		_ = fl.Unlock()
		mu.Unlock()
		return nil, err
	}

	return func() {
		if err := fl.Unlock(); err != nil {
			slog.Warn("release tenant lock", slog.String("error", err.Error()))
		}
		mu.Unlock()
	}, nil
}

// EnsureBuilt syncs documents into the chunk store and brings both
// derived indexes up to date, embedding only the appended suffix when
// the store merely grew. Pruned or inconsistent state triggers a full
// rebuild. The returned snapshot reflects the post-maintenance state.
func (m *Maintainer) EnsureBuilt(ctx context.Context) (*Snapshot, BuildReport, error) {
	var report BuildReport

	unlock, err := m.lock(ctx)
	if err != nil {
		return nil, report, err
	}
	defer unlock()

	chunkStore, err := store.NewChunkStore(m.indexDir())
	if err != nil {
		return nil, report, err
	}

	report.Sync, err = chunkStore.Sync(m.DocsDir(), m.prune)
	if err != nil {
		return nil, report, err
	}

	chunks, err := chunkStore.ReadAll()
	if err != nil {
		return nil, report, err
	}
	report.ChunkCount = len(chunks)

	lexical := store.NewLexicalIndex(m.indexDir())
	vectors := store.OpenVectorIndex(m.indexDir())

	// A prune shifted positions, so every derived entry is suspect.
	// A vector count ahead of the store means the same thing.
	if report.Sync.Pruned || vectors.Count() > len(chunks) {
		if err := m.rebuildLocked(ctx, chunks, lexical, vectors, &report); err != nil {
			return nil, report, err
		}
		return &Snapshot{Chunks: chunks, Lexical: lexical, Vectors: vectors}, report, nil
	}

	if lexical.Count() != len(chunks) {
		if err := lexical.Build(chunks); err != nil {
			return nil, report, err
		}
	}

	if vectors.Count() < len(chunks) {
		suffix := chunks[vectors.Count():]
		added, err := m.embedAndAppend(ctx, vectors.Count(), suffix, vectors)
		if errors.HasKind(err, errors.KindDimensionMismatch) {
			// The embedding model changed shape under us.
			slog.Warn("embedding dimension drift, rebuilding vector index",
				slog.String("model", m.embedder.Model()))
			if err := m.rebuildLocked(ctx, chunks, lexical, vectors, &report); err != nil {
				return nil, report, err
			}
			return &Snapshot{Chunks: chunks, Lexical: lexical, Vectors: vectors}, report, nil
		}
		if err != nil {
			return nil, report, err
		}
		report.Embedded += added
		if err := vectors.Save(); err != nil {
			return nil, report, err
		}
	}

	if vectors.Count() != len(chunks) {
		return nil, report, errors.Newf(errors.KindInternal, "index.ensure",
			"vector count %d does not match chunk count %d after maintenance",
			vectors.Count(), len(chunks))
	}

	return &Snapshot{Chunks: chunks, Lexical: lexical, Vectors: vectors}, report, nil
}

// Rebuild discards all derived state and re-embeds the entire corpus.
func (m *Maintainer) Rebuild(ctx context.Context) (*Snapshot, BuildReport, error) {
	var report BuildReport

	unlock, err := m.lock(ctx)
	if err != nil {
		return nil, report, err
	}
	defer unlock()

	chunkStore, err := store.NewChunkStore(m.indexDir())
	if err != nil {
		return nil, report, err
	}
	report.Sync, err = chunkStore.Sync(m.DocsDir(), m.prune)
	if err != nil {
		return nil, report, err
	}

	chunks, err := chunkStore.ReadAll()
	if err != nil {
		return nil, report, err
	}
	report.ChunkCount = len(chunks)

	lexical := store.NewLexicalIndex(m.indexDir())
	vectors := store.OpenVectorIndex(m.indexDir())
	if err := m.rebuildLocked(ctx, chunks, lexical, vectors, &report); err != nil {
		return nil, report, err
	}
	return &Snapshot{Chunks: chunks, Lexical: lexical, Vectors: vectors}, report, nil
}

func (m *Maintainer) rebuildLocked(ctx context.Context, chunks []chunk.Chunk,
	lexical *store.LexicalIndex, vectors *store.VectorIndex, report *BuildReport) error {

	report.Rebuilt = true

	if err := lexical.Build(chunks); err != nil {
		return err
	}
	if err := vectors.Reset(); err != nil {
		return err
	}
	if len(chunks) > 0 {
		added, err := m.embedAndAppend(ctx, 0, chunks, vectors)
		if err != nil {
			return err
		}
		report.Embedded += added
	}
	if err := vectors.Save(); err != nil {
		return err
	}

	if vectors.Count() != len(chunks) {
		return errors.Newf(errors.KindInternal, "index.rebuild",
			"vector count %d does not match chunk count %d after rebuild",
			vectors.Count(), len(chunks))
	}

	slog.Info("vector index rebuilt",
		slog.Int("chunks", len(chunks)), slog.Int("dimension", vectors.Dimension()))
	return nil
}

func (m *Maintainer) embedAndAppend(ctx context.Context, startPos int,
	chunks []chunk.Chunk, vectors *store.VectorIndex) (int, error) {

	if len(chunks) == 0 {
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vecs, err := m.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, err
	}
	if len(vecs) != len(texts) {
		return 0, errors.Newf(errors.KindInternal, "index.embed",
			"embedder returned %d vectors for %d texts", len(vecs), len(texts))
	}

	if err := vectors.Append(startPos, vecs); err != nil {
		return 0, err
	}
	return len(vecs), nil
}
