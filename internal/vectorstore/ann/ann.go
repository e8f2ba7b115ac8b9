// Package ann is an approximate vector store backend built on the
// coder/hnsw graph. It trades the exact ranking of the local backend for
// sub-linear search on large collections.
package ann

import (
	"bufio"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"

	"docchat/internal/domain"
	"docchat/internal/vectorstore"
)

// metadata is the gob sidecar next to the exported graph. The graph file
// only holds keys and vectors; documents and the string IDs live here.
type metadata struct {
	IDMap     map[string]uint64
	Docs      map[string]string
	NextKey   uint64
	Dimension int
}

// Storage persists an HNSW graph per collection: <collection>.hnsw for
// the graph, <collection>.meta for ID mappings and documents. Re-adding
// an existing ID orphans the old graph node rather than deleting it
// (lazy deletion); orphans are skipped at query time. Ranking is
// approximate, so equal-score ties follow graph order, not insertion
// order.
type Storage struct {
	dir        string
	collection string

	mu        sync.RWMutex
	loaded    bool
	graph     *hnsw.Graph[uint64]
	idMap     map[string]uint64
	keyMap    map[uint64]string
	docs      map[string]string
	nextKey   uint64
	dimension int
}

// New creates a store for the named collection under dir. The graph is
// loaded lazily on first access.
func New(dir, collection string) *Storage {
	return &Storage{dir: dir, collection: collection}
}

func (s *Storage) graphPath() string {
	return filepath.Join(s.dir, s.collection+".hnsw")
}

func (s *Storage) metaPath() string {
	return filepath.Join(s.dir, s.collection+".meta")
}

func newGraph() *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = 16
	g.EfSearch = 20
	g.Ml = 0.25
	return g
}

// load reads the graph and sidecar once. Callers hold the write lock.
func (s *Storage) load() error {
	if s.loaded {
		return nil
	}
	s.graph = newGraph()
	s.idMap = make(map[string]uint64)
	s.keyMap = make(map[uint64]string)
	s.docs = make(map[string]string)

	f, err := os.Open(s.graphPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.loaded = true
			return nil
		}
		return fmt.Errorf("open graph %s: %w", s.collection, err)
	}
	defer f.Close()
	if err := s.graph.Import(bufio.NewReader(f)); err != nil {
		return fmt.Errorf("import graph %s: %w", s.collection, err)
	}

	mf, err := os.Open(s.metaPath())
	if err != nil {
		return fmt.Errorf("open graph metadata %s: %w", s.collection, err)
	}
	defer mf.Close()
	var meta metadata
	if err := gob.NewDecoder(mf).Decode(&meta); err != nil {
		return fmt.Errorf("decode graph metadata %s: %w", s.collection, err)
	}
	s.idMap = meta.IDMap
	s.docs = meta.Docs
	s.nextKey = meta.NextKey
	s.dimension = meta.Dimension
	for id, key := range meta.IDMap {
		s.keyMap[key] = id
	}
	s.loaded = true
	return nil
}

// persist writes graph and sidecar atomically. Callers hold the write lock.
func (s *Storage) persist() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}

	tmp := s.graphPath() + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := s.graph.Export(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, s.graphPath()); err != nil {
		os.Remove(tmp)
		return err
	}

	meta := metadata{IDMap: s.idMap, Docs: s.docs, NextKey: s.nextKey, Dimension: s.dimension}
	mtmp := s.metaPath() + ".tmp"
	mf, err := os.Create(mtmp)
	if err != nil {
		return err
	}
	if err := gob.NewEncoder(mf).Encode(&meta); err != nil {
		mf.Close()
		os.Remove(mtmp)
		return err
	}
	if err := mf.Close(); err != nil {
		os.Remove(mtmp)
		return err
	}
	return os.Rename(mtmp, s.metaPath())
}

func (s *Storage) Add(ctx context.Context, entries []domain.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return err
	}

	dim := s.dimension
	if dim == 0 {
		dim = len(entries[0].Embedding)
	}
	for _, e := range entries {
		if len(e.Embedding) != dim {
			return fmt.Errorf("entry %s has dimension %d, collection %s expects %d",
				e.ID, len(e.Embedding), s.collection, dim)
		}
	}
	s.dimension = dim

	for _, e := range entries {
		if oldKey, ok := s.idMap[e.ID]; ok {
			// Lazy deletion: orphan the old node instead of removing it.
			delete(s.keyMap, oldKey)
		}
		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(e.Embedding))
		copy(vec, e.Embedding)
		normalize(vec)

		s.graph.Add(hnsw.MakeNode(key, vec))
		s.idMap[e.ID] = key
		s.keyMap[key] = e.ID
		s.docs[e.ID] = e.Document
	}
	return s.persist()
}

func (s *Storage) Search(ctx context.Context, vector []float32, k int) ([]domain.SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	s.mu.Lock()
	if err := s.load(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.mu.Unlock()

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.idMap) == 0 {
		return nil, nil
	}
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("query has dimension %d, collection %s expects %d",
			len(vector), s.collection, s.dimension)
	}

	query := make([]float32, len(vector))
	copy(query, vector)
	normalize(query)

	// Over-fetch to compensate for orphaned nodes left by overwrites.
	orphans := s.graph.Len() - len(s.idMap)
	nodes := s.graph.Search(query, k+orphans)

	results := make([]domain.SearchResult, 0, k)
	for _, node := range nodes {
		id, ok := s.keyMap[node.Key]
		if !ok {
			continue
		}
		results = append(results, domain.SearchResult{
			Entry: domain.IndexEntry{ID: id, Embedding: node.Value, Document: s.docs[id]},
			Score: vectorstore.Cosine(query, node.Value),
		})
		if len(results) == k {
			break
		}
	}
	return results, nil
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return 0, err
	}
	return len(s.idMap), nil
}

// Close is a no-op: Add persists synchronously.
func (s *Storage) Close() error { return nil }

func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}
