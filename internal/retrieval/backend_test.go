package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/policyrag/internal/access"
	"github.com/fyrsmithlabs/policyrag/internal/vectorstore"
)

func mixedCandidates() []vectorstore.Candidate {
	return []vectorstore.Candidate{
		candidate(access.LevelAdmin, 0, 0.99),
		candidate(access.LevelUser, 0, 0.95),
		candidate(access.LevelAdmin, 1, 0.90),
		candidate(access.LevelUser, 1, 0.85),
		candidate(access.LevelAdmin, 2, 0.80),
		candidate(access.LevelUser, 2, 0.75),
	}
}

func TestNewBackend_SelectsStrategy(t *testing.T) {
	exact := NewBackend(&fakeStore{native: true}, 3)
	assert.IsType(t, &ExactFilter{}, exact)
	assert.Equal(t, "fake-native/exact_filter", exact.Name())

	post := NewBackend(&fakeStore{}, 3)
	assert.IsType(t, &PostFilter{}, post)
	assert.Equal(t, "fake/post_filter", post.Name())
}

func TestExactFilter_PushesAdmissibleLevels(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{native: true, honourFilter: true, candidates: mixedCandidates()}
	b := NewExactFilter(store)

	got, err := b.Search(ctx, []float32{1}, access.RoleUser, 2)
	require.NoError(t, err)
	require.NotNil(t, store.lastFilter)
	assert.Equal(t, []access.Level{access.LevelUser}, store.lastFilter.Levels)
	assert.Equal(t, 2, store.lastFetch, "exact filter fetches exactly limit")
	require.Len(t, got, 2)
	for _, r := range got {
		assert.Equal(t, access.LevelUser, r.AccessLevel)
	}

	got, err = b.Search(ctx, []float32{1}, access.RoleAdmin, 3)
	require.NoError(t, err)
	assert.ElementsMatch(t, []access.Level{access.LevelUser, access.LevelAdmin}, store.lastFilter.Levels)
	require.Len(t, got, 3)
	assert.Equal(t, access.LevelAdmin, got[0].AccessLevel)
}

func TestExactFilter_RechecksRowsFromIndex(t *testing.T) {
	// The index ignores the filter; admin rows must still be dropped.
	store := &fakeStore{native: true, honourFilter: false, candidates: mixedCandidates()}

	got, err := NewExactFilter(store).Search(context.Background(), []float32{1}, access.RoleUser, 3)
	require.NoError(t, err)
	for _, r := range got {
		assert.Equal(t, access.LevelUser, r.AccessLevel)
	}
}

func TestPostFilter_OverFetchesAndAdmitsInRankOrder(t *testing.T) {
	store := &fakeStore{candidates: mixedCandidates()}
	b := NewPostFilter(store, 2)

	got, err := b.Search(context.Background(), []float32{1}, access.RoleUser, 2)
	require.NoError(t, err)
	assert.Nil(t, store.lastFilter, "post filter never sends an index filter")
	assert.Equal(t, 4, store.lastFetch)
	require.Len(t, got, 2)
	assert.Equal(t, 0, got[0].SequenceID)
	assert.Equal(t, 1, got[1].SequenceID)
	assert.InDelta(t, 0.95, got[0].Score, 1e-6)
}

func TestPostFilter_UndershootsWithoutPadding(t *testing.T) {
	var candidates []vectorstore.Candidate
	for i := 0; i < 8; i++ {
		candidates = append(candidates, candidate(access.LevelAdmin, i, 0.9))
	}
	candidates = append(candidates,
		candidate(access.LevelUser, 0, 0.5),
		candidate(access.LevelUser, 1, 0.4),
		candidate(access.LevelUser, 2, 0.3),
	)
	store := &fakeStore{candidates: candidates}

	got, err := NewPostFilter(store, 3).Search(context.Background(), []float32{1}, access.RoleUser, 3)
	require.NoError(t, err)
	assert.Equal(t, 9, store.lastFetch)
	require.Len(t, got, 1, "only one admissible row among the fetched candidates")
	assert.Equal(t, access.LevelUser, got[0].AccessLevel)
	assert.Equal(t, 1, store.queries, "no second query to pad results")
}

func TestPostFilter_DefaultOverFetch(t *testing.T) {
	store := &fakeStore{candidates: mixedCandidates()}
	_, err := NewPostFilter(store, 0).Search(context.Background(), []float32{1}, access.RoleAdmin, 2)
	require.NoError(t, err)
	assert.Equal(t, 2*DefaultOverFetch, store.lastFetch)
}

func TestBackends_UserNeverSeesAdmin(t *testing.T) {
	backends := map[string]Backend{
		"exact":             NewExactFilter(&fakeStore{native: true, honourFilter: true, candidates: mixedCandidates()}),
		"exact-leaky-index": NewExactFilter(&fakeStore{native: true, candidates: mixedCandidates()}),
		"post":              NewPostFilter(&fakeStore{candidates: mixedCandidates()}, 3),
	}
	for name, b := range backends {
		t.Run(name, func(t *testing.T) {
			for limit := 1; limit <= 8; limit++ {
				for _, role := range []access.Role{access.RoleUser, "", "guest", "Admin "} {
					got, err := b.Search(context.Background(), []float32{1}, role, limit)
					require.NoError(t, err)
					assert.LessOrEqual(t, len(got), limit)
					for _, r := range got {
						assert.True(t, access.Admits(r.AccessLevel, role),
							"role %q got %s chunk", role, r.AccessLevel)
					}
				}
			}
		})
	}
}

func TestBackends_PropagateStoreErrors(t *testing.T) {
	for _, b := range []Backend{
		NewExactFilter(&fakeStore{native: true, err: errStoreDown}),
		NewPostFilter(&fakeStore{err: errStoreDown}, 3),
	} {
		_, err := b.Search(context.Background(), []float32{1}, access.RoleAdmin, 3)
		assert.ErrorIs(t, err, errStoreDown)
	}
}

func TestBackends_RejectNonPositiveLimit(t *testing.T) {
	_, err := NewExactFilter(&fakeStore{native: true}).Search(context.Background(), []float32{1}, access.RoleUser, 0)
	assert.Error(t, err)
	_, err = NewPostFilter(&fakeStore{}, 3).Search(context.Background(), []float32{1}, access.RoleUser, -1)
	assert.Error(t, err)
}
