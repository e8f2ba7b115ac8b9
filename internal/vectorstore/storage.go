// Package vectorstore defines the persistent vector index contract and
// similarity helpers shared by its backends.
package vectorstore

import (
	"context"
	"math"

	"docchat/internal/domain"
)

// Storage persists index entries durably and answers nearest-neighbour
// queries. Implementations load lazily on first access and survive
// process restarts. Writers to one collection are serialized; readers may
// run concurrently.
type Storage interface {
	// Add appends entries to the collection, creating it on first use.
	// How a duplicate ID is handled is backend-specific and documented
	// on each implementation.
	Add(ctx context.Context, entries []domain.IndexEntry) error
	// Search returns up to k entries ranked by descending cosine
	// similarity. Fewer than k stored entries returns all of them; an
	// empty store returns an empty result, not an error.
	Search(ctx context.Context, vector []float32, k int) ([]domain.SearchResult, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// Cosine returns the cosine similarity of a and b. Vectors are not
// assumed to be pre-normalized.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
