// Package segment splits raw policy documents into access-scoped, size-bounded
// chunks.
//
// A document is a sequence of sections introduced by marker lines:
//
//	=== ACCESS: user ===
//	Vacation: 20 days.
//
//	=== ACCESS: admin ===
//	Salary band: X.
//
// Each section is chunked on blank-line paragraph boundaries. Paragraphs are
// never split, so a single oversized paragraph becomes an oversized chunk.
// Segmentation is pure and never fails: malformed input degrades to plain
// user-level content.
package segment

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/fyrsmithlabs/policyrag/internal/access"
	"github.com/fyrsmithlabs/policyrag/internal/document"
)

// DefaultChunkSize is the chunk size threshold in characters.
const DefaultChunkSize = 300

const paragraphSeparator = "\n\n"

var (
	markerPattern = regexp.MustCompile(`=== ACCESS: (user|admin) ===`)

	// anyMarkerPattern also matches markers whose level is not recognized.
	anyMarkerPattern = regexp.MustCompile(`=== ACCESS: ([^=\n]*?) ===`)
)

// Segmenter turns raw text into chunk records.
type Segmenter struct {
	// ChunkSize bounds chunk length in characters (runes).
	ChunkSize int
}

// New returns a Segmenter. Non-positive sizes select DefaultChunkSize.
func New(chunkSize int) *Segmenter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Segmenter{ChunkSize: chunkSize}
}

type section struct {
	level access.Level
	text  string
}

// Segment splits raw into chunks for filename, in document order.
//
// Sequence ids count from 0 per access level within the file. When a file has
// several sections with the same level the count carries over, so ids stay
// unique and gap-free within (filename, access level).
func (s *Segmenter) Segment(raw, filename string) []document.Chunk {
	docType := document.InferType(filename)
	next := map[access.Level]int{}

	var chunks []document.Chunk
	for _, sec := range splitSections(normalizeNewlines(raw)) {
		for _, content := range s.chunkText(sec.text) {
			chunks = append(chunks, document.Chunk{
				Content:      content,
				Filename:     filename,
				AccessLevel:  sec.level,
				SequenceID:   next[sec.level],
				DocumentType: docType,
			})
			next[sec.level]++
		}
	}
	return chunks
}

// splitSections cuts raw at recognized markers. Text before the first marker,
// or the whole text when there is no marker, is user-level.
func splitSections(raw string) []section {
	locs := markerPattern.FindAllStringSubmatchIndex(raw, -1)
	if len(locs) == 0 {
		return []section{{level: access.LevelUser, text: raw}}
	}

	sections := make([]section, 0, len(locs)+1)
	if pre := raw[:locs[0][0]]; strings.TrimSpace(pre) != "" {
		sections = append(sections, section{level: access.LevelUser, text: pre})
	}
	for i, loc := range locs {
		end := len(raw)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		// The capture group only admits valid level tokens.
		level, _ := access.ParseLevel(raw[loc[2]:loc[3]])
		sections = append(sections, section{level: level, text: raw[loc[1]:end]})
	}
	return sections
}

// chunkText packs paragraphs into chunks. The size check compares the buffer
// length, separators included, plus the incoming paragraph against ChunkSize.
func (s *Segmenter) chunkText(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var (
		chunks []string
		buf    strings.Builder
		bufLen int
	)
	flush := func() {
		if c := strings.TrimSpace(buf.String()); c != "" {
			chunks = append(chunks, c)
		}
		buf.Reset()
		bufLen = 0
	}

	for _, p := range paragraphs(text) {
		pLen := utf8.RuneCountInString(p)
		if bufLen > 0 && bufLen+pLen > s.ChunkSize {
			flush()
		}
		buf.WriteString(p)
		buf.WriteString(paragraphSeparator)
		bufLen += pLen + len(paragraphSeparator)
	}
	flush()
	return chunks
}

func paragraphs(text string) []string {
	parts := strings.Split(text, paragraphSeparator)
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func normalizeNewlines(s string) string {
	if !strings.Contains(s, "\r") {
		return s
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// UnrecognizedMarkers returns the level tokens of marker-shaped lines that are
// not valid markers, e.g. "manager" in "=== ACCESS: manager ===". Such lines
// stay in the chunk content as literal text.
func UnrecognizedMarkers(raw string) []string {
	var out []string
	for _, m := range anyMarkerPattern.FindAllStringSubmatch(raw, -1) {
		if _, ok := access.ParseLevel(m[1]); !ok {
			out = append(out, m[1])
		}
	}
	return out
}
