package ann

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docchat/internal/domain"
)

func entry(id string, vec []float32, doc string) domain.IndexEntry {
	return domain.IndexEntry{ID: id, Embedding: vec, Document: doc}
}

func TestSearchRanksNearestFirst(t *testing.T) {
	s := New(t.TempDir(), "docs")
	ctx := context.Background()

	err := s.Add(ctx, []domain.IndexEntry{
		entry("a", []float32{1, 0, 0, 0}, "exact"),
		entry("b", []float32{0, 1, 0, 0}, "orthogonal"),
		entry("c", []float32{0.9, 0.1, 0, 0}, "near"),
	})
	require.NoError(t, err)

	results, err := s.Search(ctx, []float32{1, 0, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "a", results[0].Entry.ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.Equal(t, "c", results[1].Entry.ID)
	assert.Equal(t, "near", results[1].Entry.Document)
}

func TestSearchEmptyStore(t *testing.T) {
	s := New(t.TempDir(), "docs")

	results, err := s.Search(context.Background(), []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestAddSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s := New(dir, "docs")
	require.NoError(t, s.Add(ctx, []domain.IndexEntry{
		entry("a", []float32{1, 0, 0, 0}, "persisted"),
		entry("b", []float32{0, 1, 0, 0}, "other"),
	}))
	require.NoError(t, s.Close())

	reopened := New(dir, "docs")
	n, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	results, err := reopened.Search(ctx, []float32{1, 0, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "persisted", results[0].Entry.Document)
}

func TestAddOverwriteOrphansOldNode(t *testing.T) {
	s := New(t.TempDir(), "docs")
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, []domain.IndexEntry{
		entry("a", []float32{1, 0}, "old"),
		entry("b", []float32{0, 1}, "other"),
	}))
	require.NoError(t, s.Add(ctx, []domain.IndexEntry{
		entry("a", []float32{1, 0}, "new"),
	}))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	results, err := s.Search(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Entry.ID)
	assert.Equal(t, "new", results[0].Entry.Document)
}

func TestAddRejectsDimensionMismatch(t *testing.T) {
	s := New(t.TempDir(), "docs")
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, []domain.IndexEntry{entry("a", []float32{1, 0}, "d")}))

	err := s.Add(ctx, []domain.IndexEntry{entry("b", []float32{1, 0, 0}, "d")})
	assert.Error(t, err)
}
