package retrieval

import (
	"context"
	"errors"
	"strings"

	"github.com/fyrsmithlabs/policyrag/internal/access"
	"github.com/fyrsmithlabs/policyrag/internal/document"
	"github.com/fyrsmithlabs/policyrag/internal/vectorstore"
)

// fakeStore returns canned candidates in order. With native set it reports
// index-side filtering and, when honourFilter is also set, applies it.
type fakeStore struct {
	candidates   []vectorstore.Candidate
	native       bool
	honourFilter bool
	err          error

	lastFilter *vectorstore.LevelFilter
	lastFetch  int
	queries    int
}

func (s *fakeStore) Reset(context.Context) error                        { return nil }
func (s *fakeStore) Upsert(context.Context, []vectorstore.Record) error { return nil }
func (s *fakeStore) DeleteByFilename(context.Context, string) error     { return nil }
func (s *fakeStore) Count(context.Context) (int, error)                 { return len(s.candidates), nil }
func (s *fakeStore) NativeFilter() bool                                 { return s.native }
func (s *fakeStore) Close() error                                       { return nil }

func (s *fakeStore) Name() string {
	if s.native {
		return "fake-native"
	}
	return "fake"
}

func (s *fakeStore) Query(_ context.Context, _ []float32, filter *vectorstore.LevelFilter, fetch int) ([]vectorstore.Candidate, error) {
	s.queries++
	s.lastFilter = filter
	s.lastFetch = fetch
	if s.err != nil {
		return nil, s.err
	}
	if filter != nil && !s.native {
		return nil, vectorstore.ErrFilterUnsupported
	}
	out := make([]vectorstore.Candidate, 0, fetch)
	for _, c := range s.candidates {
		if len(out) == fetch {
			break
		}
		if s.honourFilter && !filter.Matches(c.Chunk.AccessLevel) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func candidate(level access.Level, seq int, score float32) vectorstore.Candidate {
	return vectorstore.Candidate{
		Chunk: document.Chunk{
			Content:      string(level) + " chunk",
			Filename:     "employee_handbook.txt",
			AccessLevel:  level,
			SequenceID:   seq,
			DocumentType: document.TypeHandbook,
		},
		Score: score,
	}
}

// keywordEmbedder maps text to keyword occurrence counts plus a small bias
// dimension so no vector is zero.
type keywordEmbedder struct {
	vocab []string
	err   error
	calls int
}

func newKeywordEmbedder(vocab ...string) *keywordEmbedder {
	return &keywordEmbedder{vocab: vocab}
}

func (e *keywordEmbedder) vector(text string) []float32 {
	lower := strings.ToLower(text)
	v := make([]float32, len(e.vocab)+1)
	for i, w := range e.vocab {
		v[i] = float32(strings.Count(lower, w))
	}
	v[len(e.vocab)] = 0.01
	return v
}

func (e *keywordEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *keywordEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return e.vector(text), nil
}

func (e *keywordEmbedder) Dimension() int { return len(e.vocab) + 1 }
func (e *keywordEmbedder) Close() error   { return nil }

// fakeBackend returns canned results and records the requested limit.
type fakeBackend struct {
	results   []Result
	err       error
	lastLimit int
	lastRole  access.Role
	calls     int
}

func (b *fakeBackend) Name() string { return "fake/backend" }

func (b *fakeBackend) Search(_ context.Context, _ []float32, role access.Role, limit int) ([]Result, error) {
	b.calls++
	b.lastLimit = limit
	b.lastRole = role
	if b.err != nil {
		return nil, b.err
	}
	out := make([]Result, len(b.results))
	copy(out, b.results)
	return out, nil
}

var errStoreDown = errors.New("store down")
