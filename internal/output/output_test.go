package output

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ba3ai/Clarus-Updated-sub000/internal/chunk"
	"github.com/ba3ai/Clarus-Updated-sub000/internal/engine"
	"github.com/ba3ai/Clarus-Updated-sub000/internal/telemetry"
)

func TestRenderer_AnswerPlain(t *testing.T) {
	var buf bytes.Buffer
	r := NewPlainRenderer(&buf)

	r.Answer(&engine.Answer{
		Answer: "the fee is 25 dollars [1]",
		Mode:   engine.ModeHybrid,
		Context: []engine.ContextChunk{
			{
				Text:     "wire,25",
				Metadata: chunk.Metadata{SourceID: "fees.csv", Section: "fees", Position: 3, Kind: chunk.SourceTabular},
				Score:    0.0321,
			},
		},
	})

	out := buf.String()
	assert.Contains(t, out, "[hybrid]")
	assert.Contains(t, out, "the fee is 25 dollars [1]")
	assert.Contains(t, out, "[1] fees.csv (fees, row 3)")
	assert.Contains(t, out, "score 0.0321")
	// Plain output carries no ANSI escapes.
	assert.NotContains(t, out, "\x1b[")
}

func TestRenderer_AnswerMissHasNoSources(t *testing.T) {
	var buf bytes.Buffer
	r := NewPlainRenderer(&buf)

	r.Answer(&engine.Answer{Answer: "No documents are indexed", Mode: engine.ModeMiss})

	assert.Contains(t, buf.String(), "[miss]")
	assert.NotContains(t, buf.String(), "Sources")
}

func TestRenderer_Sync(t *testing.T) {
	var buf bytes.Buffer
	r := NewPlainRenderer(&buf)

	r.Sync(engine.SyncReport{FilesScanned: 2, AddedChunks: 51, TotalChunks: 51, Rebuilt: true})

	out := buf.String()
	assert.Contains(t, out, "files scanned: 2")
	assert.Contains(t, out, "chunks added:  51")
	assert.Contains(t, out, "index rebuilt")
}

func TestRenderer_Stats(t *testing.T) {
	var buf bytes.Buffer
	r := NewPlainRenderer(&buf)

	r.Stats(
		[]telemetry.ModeStat{{Mode: "hybrid", Count: 12, AvgLatencyMS: 340}},
		[]telemetry.Event{{Mode: "hybrid", Confidence: 0.82, Chunks: 5, CreatedAt: time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)}},
	)

	out := buf.String()
	assert.Contains(t, out, "hybrid")
	assert.Contains(t, out, "12 asks")
	assert.Contains(t, out, "2026-03-01 10:30")
}

func TestRenderer_StatsEmpty(t *testing.T) {
	var buf bytes.Buffer
	r := NewPlainRenderer(&buf)

	r.Stats(nil, nil)

	assert.Contains(t, buf.String(), "no questions recorded")
}
