// Package output renders engine results for the terminal. Styled output
// is used on a TTY; anything piped gets plain text.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/ba3ai/Clarus-Updated-sub000/internal/engine"
	"github.com/ba3ai/Clarus-Updated-sub000/internal/telemetry"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	modeStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	missModeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	citationStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	scoreStyle    = lipgloss.NewStyle().Faint(true)
)

// Renderer writes engine results to one destination.
type Renderer struct {
	w      io.Writer
	styled bool
}

// NewRenderer auto-detects whether w is a terminal.
func NewRenderer(w io.Writer) *Renderer {
	styled := false
	if f, ok := w.(*os.File); ok {
		styled = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &Renderer{w: w, styled: styled}
}

// NewPlainRenderer never styles, regardless of destination.
func NewPlainRenderer(w io.Writer) *Renderer {
	return &Renderer{w: w}
}

// Answer prints the answer, its mode and the supporting context.
func (r *Renderer) Answer(a *engine.Answer) {
	mode := string(a.Mode)
	if r.styled {
		style := modeStyle
		if a.Mode == engine.ModeMiss {
			style = missModeStyle
		}
		mode = style.Render(mode)
	}
	fmt.Fprintf(r.w, "%s  [%s]\n\n", r.title("Answer"), mode)
	fmt.Fprintln(r.w, a.Answer)

	if len(a.Context) == 0 {
		return
	}
	fmt.Fprintf(r.w, "\n%s\n", r.title("Sources"))
	for i, c := range a.Context {
		citation := c.Metadata.Citation()
		score := fmt.Sprintf("score %.4f", c.Score)
		if r.styled {
			citation = citationStyle.Render(citation)
			score = scoreStyle.Render(score)
		}
		fmt.Fprintf(r.w, "  [%d] %s  %s\n", i+1, citation, score)
	}
}

// Sync prints a sync or rebuild report.
func (r *Renderer) Sync(report engine.SyncReport) {
	fmt.Fprintf(r.w, "%s\n", r.title("Sync complete"))
	fmt.Fprintf(r.w, "  files scanned: %d\n", report.FilesScanned)
	fmt.Fprintf(r.w, "  chunks added:  %d\n", report.AddedChunks)
	fmt.Fprintf(r.w, "  total chunks:  %d\n", report.TotalChunks)
	if report.Rebuilt {
		fmt.Fprintln(r.w, "  index rebuilt")
	}
}

// Stats prints per-mode aggregates and recent questions.
func (r *Renderer) Stats(stats []telemetry.ModeStat, recent []telemetry.Event) {
	fmt.Fprintf(r.w, "%s\n", r.title("Answer modes"))
	if len(stats) == 0 {
		fmt.Fprintln(r.w, "  no questions recorded")
		return
	}
	for _, s := range stats {
		fmt.Fprintf(r.w, "  %-16s %6d asks  avg %.0f ms\n", s.Mode, s.Count, s.AvgLatencyMS)
	}

	if len(recent) == 0 {
		return
	}
	fmt.Fprintf(r.w, "\n%s\n", r.title("Recent"))
	for _, e := range recent {
		fmt.Fprintf(r.w, "  %s  %-16s conf %.2f  %d chunks\n",
			e.CreatedAt.Format("2006-01-02 15:04"), e.Mode, e.Confidence, e.Chunks)
	}
}

func (r *Renderer) title(s string) string {
	if r.styled {
		return titleStyle.Render(s)
	}
	return s
}

// Errorf writes an error line to the renderer's destination.
func (r *Renderer) Errorf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if r.styled {
		msg = missModeStyle.Render(msg)
	}
	fmt.Fprintln(r.w, strings.TrimRight(msg, "\n"))
}
