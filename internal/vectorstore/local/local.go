// Package local is the default vector store backend: exact brute-force
// cosine ranking over entries held in memory and persisted as a gob file
// per collection.
package local

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/gofrs/flock"

	"docchat/internal/domain"
	"docchat/internal/vectorstore"
)

// snapshot is the on-disk layout of one collection.
type snapshot struct {
	Dimension int
	Entries   []domain.IndexEntry
}

// Storage is an exact, durable vector store. Ranking is deterministic:
// ties are broken by insertion order, earlier entries first. Re-adding an
// existing ID overwrites the entry in place, keeping its original
// insertion position. Cross-process writers are serialized with a file
// lock; in-process readers share an RWMutex.
type Storage struct {
	dir        string
	collection string
	lock       *flock.Flock

	mu        sync.RWMutex
	loaded    bool
	dimension int
	entries   []domain.IndexEntry
	byID      map[string]int
}

// New creates a store for the named collection under dir. Nothing is read
// from disk until the first Add, Search or Count.
func New(dir, collection string) *Storage {
	return &Storage{
		dir:        dir,
		collection: collection,
		lock:       flock.New(filepath.Join(dir, collection+".lock")),
		byID:       make(map[string]int),
	}
}

func (s *Storage) path() string {
	return filepath.Join(s.dir, s.collection+".gob")
}

// load reads the snapshot once. Callers hold the write lock.
func (s *Storage) load() error {
	if s.loaded {
		return nil
	}
	f, err := os.Open(s.path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.loaded = true
			return nil
		}
		return fmt.Errorf("open collection %s: %w", s.collection, err)
	}
	defer f.Close()

	var snap snapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return fmt.Errorf("decode collection %s: %w", s.collection, err)
	}
	s.dimension = snap.Dimension
	s.entries = snap.Entries
	s.byID = make(map[string]int, len(snap.Entries))
	for i, e := range snap.Entries {
		s.byID[e.ID] = i
	}
	s.loaded = true
	return nil
}

// persist writes the snapshot atomically (tmp file + rename). Callers
// hold the write lock.
func (s *Storage) persist() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	tmp := s.path() + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	snap := snapshot{Dimension: s.dimension, Entries: s.entries}
	if err := gob.NewEncoder(f).Encode(&snap); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, s.path())
}

func (s *Storage) Add(ctx context.Context, entries []domain.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	// One writer per collection across processes.
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("lock collection %s: %w", s.collection, err)
	}
	defer s.lock.Unlock()

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
		if len(e.Embedding) == 0 {
			return fmt.Errorf("entry %s has an empty embedding", e.ID)
		}
		if len(e.Embedding) != dim {
			return fmt.Errorf("entry %s has dimension %d, collection %s expects %d",
				e.ID, len(e.Embedding), s.collection, dim)
		}
	}
	s.dimension = dim

	for _, e := range entries {
		if i, ok := s.byID[e.ID]; ok {
			s.entries[i] = e
			continue
		}
		s.byID[e.ID] = len(s.entries)
		s.entries = append(s.entries, e)
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

	if len(s.entries) == 0 {
		return nil, nil
	}
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("query has dimension %d, collection %s expects %d",
			len(vector), s.collection, s.dimension)
	}

	results := make([]domain.SearchResult, len(s.entries))
	for i, e := range s.entries {
		results[i] = domain.SearchResult{Entry: e, Score: vectorstore.Cosine(vector, e.Embedding)}
	}
	// Stable sort keeps insertion order on equal scores.
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	if k > len(results) {
		k = len(results)
	}
	return results[:k], nil
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return 0, err
	}
	return len(s.entries), nil
}

// Close is a no-op: Add persists synchronously.
func (s *Storage) Close() error { return nil }
