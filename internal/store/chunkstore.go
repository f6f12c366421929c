package store

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/ba3ai/Clarus-Updated-sub000/internal/chunk"
	"github.com/ba3ai/Clarus-Updated-sub000/internal/errors"
)

// ChunkStore is the append-only line-oriented chunk file for one tenant,
// paired with the fingerprint manifest that makes re-ingestion idempotent.
// Chunks are identified positionally by line offset and never mutated;
// removal happens only through the prune/rebuild path.
type ChunkStore struct {
	dir string
}

// manifestEntry records what one ingested file contributed.
type manifestEntry struct {
	Fingerprint string `json:"fingerprint"`
	Positions   []int  `json:"positions"`
}

// NewChunkStore opens (or lazily creates) the store in dir.
func NewChunkStore(dir string) (*ChunkStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &ChunkStore{dir: dir}, nil
}

func (s *ChunkStore) chunksPath() string   { return filepath.Join(s.dir, ChunksFileName) }
func (s *ChunkStore) manifestPath() string { return filepath.Join(s.dir, ManifestFileName) }

// Sync reconciles the store with the raw documents under docsDir.
// A file is re-ingested iff its content fingerprint changed; fingerprint
// equality is the sole de-duplication mechanism, there is no chunk-level
// diffing. Parse failures skip the file and continue. With prune enabled,
// a changed file's previous chunks are removed before the new version is
// appended; the caller must then rebuild the derived indexes.
func (s *ChunkStore) Sync(docsDir string, prune bool) (SyncResult, error) {
	var result SyncResult

	manifest, err := s.loadManifest()
	if err != nil {
		return result, err
	}

	var stale []int
	type pending struct {
		relPath     string
		fingerprint string
		chunks      []chunk.Chunk
	}
	var toAppend []pending

	err = filepath.WalkDir(docsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == docsDir {
				return filepath.SkipAll // no documents uploaded yet
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		result.FilesScanned++

		relPath, err := filepath.Rel(docsDir, path)
		if err != nil {
			return err
		}

		fingerprint, err := fingerprintFile(path)
		if err != nil {
			slog.Warn("skipping unreadable file",
				slog.String("path", relPath), slog.String("error", err.Error()))
			return nil
		}

		prior, known := manifest[relPath]
		if known && prior.Fingerprint == fingerprint {
			return nil
		}

		chunks, err := chunk.ParseFile(path)
		if err != nil {
			// One bad file never aborts the sync, and nothing partial is
			// written for it: the manifest keeps the old entry.
			slog.Warn("skipping unparseable file",
				slog.String("path", relPath), slog.String("error", err.Error()))
			return nil
		}

		if known && prune {
			stale = append(stale, prior.Positions...)
		}
		toAppend = append(toAppend, pending{relPath: relPath, fingerprint: fingerprint, chunks: chunks})
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("walk documents: %w", err)
	}

	// Prune first: removal shifts positions, so it must happen before new
	// positions are assigned and recorded.
	if len(stale) > 0 {
		if err := s.pruneAndRemap(manifest, stale); err != nil {
			return result, err
		}
		result.Pruned = true
	}

	for _, p := range toAppend {
		positions, err := s.append(p.chunks)
		if err != nil {
			return result, err
		}
		manifest[p.relPath] = manifestEntry{Fingerprint: p.fingerprint, Positions: positions}
		if err := s.saveManifest(manifest); err != nil {
			return result, err
		}
		result.AddedChunks += len(p.chunks)
	}

	return result, nil
}

// Count returns the number of chunk lines in the store.
func (s *ChunkStore) Count() (int, error) {
	f, err := os.Open(s.chunksPath())
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()

	count := 0
	scanner := newLineScanner(f)
	for scanner.Scan() {
		count++
	}
	return count, scanner.Err()
}

// ReadAll returns every chunk in position order.
func (s *ChunkStore) ReadAll() ([]chunk.Chunk, error) {
	return s.ReadFrom(0)
}

// ReadFrom returns chunks at positions >= from, in position order.
// Used by the maintainer to embed only the new suffix.
func (s *ChunkStore) ReadFrom(from int) ([]chunk.Chunk, error) {
	f, err := os.Open(s.chunksPath())
	if os.IsNotExist(err) {
		return []chunk.Chunk{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var chunks []chunk.Chunk
	pos := 0
	scanner := newLineScanner(f)
	for scanner.Scan() {
		if pos >= from {
			var c chunk.Chunk
			if err := json.Unmarshal(scanner.Bytes(), &c); err != nil {
				return nil, errors.Newf(errors.KindInternal, "store.read",
					"corrupt chunk line %d: %v", pos, err)
			}
			chunks = append(chunks, c)
		}
		pos++
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if chunks == nil {
		chunks = []chunk.Chunk{}
	}
	return chunks, nil
}

// append writes chunks as JSON lines and returns their positions.
func (s *ChunkStore) append(chunks []chunk.Chunk) ([]int, error) {
	start, err := s.Count()
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(s.chunksPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	w := bufio.NewWriter(f)
	positions := make([]int, len(chunks))
	for i, c := range chunks {
		line, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(line); err != nil {
			return nil, err
		}
		if err := w.WriteByte('\n'); err != nil {
			return nil, err
		}
		positions[i] = start + i
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}
	return positions, f.Sync()
}

// pruneAndRemap rewrites the chunk file without the stale positions and
// shifts every manifest entry's recorded positions accordingly.
func (s *ChunkStore) pruneAndRemap(manifest map[string]manifestEntry, stale []int) error {
	staleSet := make(map[int]bool, len(stale))
	for _, p := range stale {
		staleSet[p] = true
	}

	all, err := s.ReadAll()
	if err != nil {
		return err
	}

	// newPos[old] = position after the rewrite, -1 for removed lines.
	newPos := make([]int, len(all))
	kept := make([]chunk.Chunk, 0, len(all))
	for old := range all {
		if staleSet[old] {
			newPos[old] = -1
			continue
		}
		newPos[old] = len(kept)
		kept = append(kept, all[old])
	}

	tmpPath := s.chunksPath() + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, c := range kept {
		line, err := json.Marshal(c)
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmpPath)
			return err
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			_ = f.Close()
			_ = os.Remove(tmpPath)
			return err
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, s.chunksPath()); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	for path, entry := range manifest {
		remapped := entry.Positions[:0]
		for _, old := range entry.Positions {
			if old < len(newPos) && newPos[old] >= 0 {
				remapped = append(remapped, newPos[old])
			}
		}
		sort.Ints(remapped)
		entry.Positions = remapped
		manifest[path] = entry
	}

	slog.Info("pruned stale chunks",
		slog.Int("removed", len(stale)), slog.Int("remaining", len(kept)))
	return nil
}

func (s *ChunkStore) loadManifest() (map[string]manifestEntry, error) {
	data, err := os.ReadFile(s.manifestPath())
	if os.IsNotExist(err) {
		return map[string]manifestEntry{}, nil
	}
	if err != nil {
		return nil, err
	}

	var manifest map[string]manifestEntry
	if err := json.Unmarshal(data, &manifest); err != nil {
		// A corrupt manifest forfeits idempotence but not correctness:
		// everything re-ingests on the next sync.
		slog.Warn("manifest corrupt, starting fresh", slog.String("error", err.Error()))
		return map[string]manifestEntry{}, nil
	}
	return manifest, nil
}

func (s *ChunkStore) saveManifest(manifest map[string]manifestEntry) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	tmpPath := s.manifestPath() + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpPath, s.manifestPath())
}

// fingerprintFile hashes the full byte stream of one file.
func fingerprintFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// newLineScanner builds a scanner sized for large chunk lines.
func newLineScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return scanner
}
