package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/fyrsmithlabs/policyrag/internal/access"
	"github.com/fyrsmithlabs/policyrag/internal/ingest"
	"github.com/fyrsmithlabs/policyrag/internal/retrieval"
)

// previewLength is how many characters of a result's content are shown.
const previewLength = 200

// palette renders for one writer; colours drop out when it is not a terminal.
type palette struct {
	header lipgloss.Style
	label  lipgloss.Style
	dim    lipgloss.Style
	ok     lipgloss.Style
	warn   lipgloss.Style
	err    lipgloss.Style
	admin  lipgloss.Style
}

func newPalette(w io.Writer) palette {
	r := lipgloss.NewRenderer(w)
	return palette{
		header: r.NewStyle().Bold(true).Foreground(lipgloss.Color("51")),
		label:  r.NewStyle().Foreground(lipgloss.Color("45")),
		dim:    r.NewStyle().Foreground(lipgloss.Color("245")),
		ok:     r.NewStyle().Foreground(lipgloss.Color("46")),
		warn:   r.NewStyle().Foreground(lipgloss.Color("226")),
		err:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		admin:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("208")),
	}
}

// preview cuts content to previewLength characters, marking the cut.
func preview(content string) string {
	content = strings.Join(strings.Fields(content), " ")
	runes := []rune(content)
	if len(runes) <= previewLength {
		return content
	}
	return string(runes[:previewLength]) + "..."
}

func (p palette) level(l access.Level) string {
	if l == access.LevelAdmin {
		return p.admin.Render(l.String())
	}
	return l.String()
}

func printResults(w io.Writer, resp *retrieval.Response) {
	p := newPalette(w)
	if resp.Diagnostic != nil {
		fmt.Fprintln(w, p.err.Render("Search failed: ")+resp.Diagnostic.Error())
		return
	}
	if len(resp.Results) == 0 {
		fmt.Fprintln(w, "No relevant documents found.")
		fmt.Fprintln(w, p.dim.Render(fmt.Sprintf("(%s, %s)", resp.Backend, resp.Elapsed.Round(time.Millisecond))))
		return
	}

	fmt.Fprintf(w, "Found %d relevant documents in %s (%s):\n",
		len(resp.Results), resp.Elapsed.Round(time.Millisecond), resp.Backend)
	for i, r := range resp.Results {
		fmt.Fprintln(w)
		fmt.Fprintln(w, p.header.Render(fmt.Sprintf("--- Result %d ---", i+1)))
		fmt.Fprintf(w, "%s %s (chunk %d)\n", p.label.Render("Source:"), r.Filename, r.SequenceID)
		fmt.Fprintf(w, "%s %s\n", p.label.Render("Document type:"), r.DocumentType)
		fmt.Fprintf(w, "%s %s\n", p.label.Render("Access level:"), p.level(r.AccessLevel))
		fmt.Fprintf(w, "%s %.3f\n", p.label.Render("Relevance:"), r.Score)
		fmt.Fprintf(w, "%s %s\n", p.label.Render("Preview:"), preview(r.Content))
	}
}

func printReport(w io.Writer, r *ingest.Report) {
	p := newPalette(w)
	fmt.Fprintln(w, p.header.Render("Ingestion report"))
	for _, f := range r.Files {
		status := p.ok.Render("ok")
		switch {
		case f.Error != "":
			status = p.err.Render("failed: " + f.Error)
		case f.Failed > 0:
			status = p.warn.Render(fmt.Sprintf("%d chunks failed", f.Failed))
		}
		fmt.Fprintf(w, "  %-40s %3d/%-3d %s\n", f.Filename, f.Stored, f.Chunks, status)
		if len(f.UnrecognizedMarkers) > 0 {
			fmt.Fprintln(w, p.warn.Render("    unrecognized markers: "+strings.Join(f.UnrecognizedMarkers, ", ")))
		}
	}

	levels := make([]string, 0, len(r.ByLevel))
	for l := range r.ByLevel {
		levels = append(levels, string(l))
	}
	sort.Strings(levels)
	for _, l := range levels {
		fmt.Fprintf(w, "  %s %d\n", p.label.Render(l+" chunks:"), r.ByLevel[access.Level(l)])
	}

	fmt.Fprintf(w, "Files: %d  Chunks: %d  Stored: %d  Failed: %d\n",
		len(r.Files), r.Chunks, r.Stored, r.Failed)
	fmt.Fprintln(w, p.dim.Render(fmt.Sprintf("%s, %.1f chunks/s",
		r.Elapsed.Round(time.Millisecond), r.Throughput())))
}

func printStats(w io.Writer, s *ingest.Stats) {
	p := newPalette(w)
	fmt.Fprintln(w, p.header.Render("Document statistics"))
	fmt.Fprintf(w, "%s %d\n", p.label.Render("Total chunks:"), s.TotalChunks)
	if !s.LastIngest.IsZero() {
		fmt.Fprintf(w, "%s %d\n", p.label.Render("User-accessible chunks:"), s.UserChunks)
		fmt.Fprintf(w, "%s %d\n", p.label.Render("Admin-only chunks:"), s.AdminChunks)
	}
	fmt.Fprintf(w, "%s %s (dimension %d)\n", p.label.Render("Store:"), s.Store, s.Dimension)
}
