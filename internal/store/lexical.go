package store

import (
	"encoding/json"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/ba3ai/Clarus-Updated-sub000/internal/chunk"
)

// BM25 scoring constants. Changing these invalidates persisted caches.
const (
	BM25K1 = 1.5
	BM25B  = 0.75
)

// LexicalIndex is a BM25 index over the chunk store, backed by a persisted
// cache so repeated queries don't retokenize the corpus. The cache is
// derived state: it is rebuilt whenever the maintainer detects a chunk
// store change and never mutated independently.
type LexicalIndex struct {
	dir   string
	cache lexicalCache
}

type lexicalCache struct {
	Docs      [][]string         `json:"tokenized_docs"`
	DF        map[string]int     `json:"document_frequency"`
	IDF       map[string]float64 `json:"inverse_document_frequency"`
	AvgDocLen float64            `json:"average_doc_length"`
}

// NewLexicalIndex opens the index in dir, loading the persisted cache if
// one exists. A corrupt cache is discarded; the maintainer rebuilds it.
func NewLexicalIndex(dir string) *LexicalIndex {
	idx := &LexicalIndex{dir: dir}

	data, err := os.ReadFile(idx.path())
	if err != nil {
		return idx
	}
	if err := json.Unmarshal(data, &idx.cache); err != nil {
		slog.Warn("lexical cache corrupt, will rebuild", slog.String("error", err.Error()))
		idx.cache = lexicalCache{}
	}
	return idx
}

func (l *LexicalIndex) path() string { return filepath.Join(l.dir, LexicalFileName) }

// Count returns the number of indexed documents.
func (l *LexicalIndex) Count() int { return len(l.cache.Docs) }

// Build tokenizes every chunk and recomputes the document-frequency,
// inverse-document-frequency and average-length statistics, then persists
// the cache.
func (l *LexicalIndex) Build(chunks []chunk.Chunk) error {
	cache := lexicalCache{
		Docs: make([][]string, len(chunks)),
		DF:   make(map[string]int),
		IDF:  make(map[string]float64),
	}

	totalLen := 0
	for i, c := range chunks {
		tokens := Tokenize(c.Text)
		cache.Docs[i] = tokens
		totalLen += len(tokens)

		seen := make(map[string]bool, len(tokens))
		for _, t := range tokens {
			if !seen[t] {
				seen[t] = true
				cache.DF[t]++
			}
		}
	}
	if len(chunks) > 0 {
		cache.AvgDocLen = float64(totalLen) / float64(len(chunks))
	}

	n := float64(len(chunks))
	for term, df := range cache.DF {
		cache.IDF[term] = math.Log((n-float64(df)+0.5)/(float64(df)+0.5) + 1)
	}

	l.cache = cache
	return l.save()
}

// Search returns up to topK chunks ranked by BM25 score. Chunks with zero
// token overlap with the query are excluded. topK <= 0 returns the full
// ranked list, which the progressive scanner uses for priority ordering.
func (l *LexicalIndex) Search(query string, topK int) []LexicalResult {
	queryTokens := Tokenize(query)
	if len(queryTokens) == 0 || len(l.cache.Docs) == 0 {
		return []LexicalResult{}
	}

	// Dedupe query terms; terms absent from the corpus contribute zero.
	terms := make(map[string]bool, len(queryTokens))
	for _, t := range queryTokens {
		terms[t] = true
	}

	results := make([]LexicalResult, 0)
	for pos, doc := range l.cache.Docs {
		score := l.scoreDoc(terms, doc)
		if score > 0 {
			results = append(results, LexicalResult{Pos: pos, Score: score})
		}
	}

	// Stable sort keeps storage order among equal scores.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results
}

func (l *LexicalIndex) scoreDoc(queryTerms map[string]bool, doc []string) float64 {
	if len(doc) == 0 {
		return 0
	}

	tf := make(map[string]int)
	for _, t := range doc {
		if queryTerms[t] {
			tf[t]++
		}
	}
	if len(tf) == 0 {
		return 0
	}

	docLen := float64(len(doc))
	norm := BM25K1 * (1 - BM25B + BM25B*docLen/l.cache.AvgDocLen)

	score := 0.0
	for term, freq := range tf {
		idf := l.cache.IDF[term]
		f := float64(freq)
		score += idf * (f * (BM25K1 + 1)) / (f + norm)
	}
	return score
}

func (l *LexicalIndex) save() error {
	data, err := json.Marshal(l.cache)
	if err != nil {
		return err
	}
	tmpPath := l.path() + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpPath, l.path())
}
