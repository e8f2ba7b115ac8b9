package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"docchat/internal/chunker"
	"docchat/internal/domain"
)

// IngestResult reports what an ingestion batch actually achieved.
type IngestResult struct {
	ChunksAdded  int
	ChunksFailed int
}

// Ingest chunks the document, embeds each chunk and stores the surviving
// entries in one batch. Ingestion is best-effort: a chunk whose embedding
// call fails is dropped and the rest proceed, so occasional transient
// failures do not abort the document. Only a batch where nothing could be
// embedded is an IngestError.
//
// progress, when non-nil, is called after every chunk attempt (success or
// failure) with the cumulative fraction complete in (0, 1].
func (s *Service) Ingest(ctx context.Context, source, text string, progress func(float64)) (IngestResult, error) {
	emb, _ := s.clients()
	if emb == nil {
		return IngestResult{}, domain.ErrNotConfigured
	}
	if strings.TrimSpace(text) == "" {
		return IngestResult{}, &domain.IngestError{Err: errors.New("document text is empty")}
	}

	chunks, err := chunker.Split(text, s.opts.ChunkSize, s.opts.Overlap)
	if err != nil {
		return IngestResult{}, err
	}

	entries := make([]domain.IndexEntry, 0, len(chunks))
	failed := 0
	for i, ch := range chunks {
		// Whitespace-only windows are skipped, never embedded.
		if strings.TrimSpace(ch.Text) == "" {
			if progress != nil {
				progress(float64(i+1) / float64(len(chunks)))
			}
			continue
		}

		vec, err := emb.Embed(ctx, ch.Text)
		if err != nil {
			failed++
			s.log.Warn("chunk embedding failed", "source", source, "chunk", ch.ID, "error", err)
		} else {
			entries = append(entries, domain.IndexEntry{
				ID:        entryID(source, ch.ID),
				Embedding: vec,
				Document:  ch.Text,
			})
		}
		if progress != nil {
			progress(float64(i+1) / float64(len(chunks)))
		}
	}

	if len(entries) == 0 {
		return IngestResult{}, &domain.IngestError{
			Attempted: len(chunks),
			Added:     0,
			Err:       errors.New("no chunk could be embedded"),
		}
	}

	if err := s.store.Add(ctx, entries); err != nil {
		return IngestResult{}, &domain.IngestError{
			Attempted: len(chunks),
			Added:     0,
			Err:       fmt.Errorf("store entries: %w", err),
		}
	}

	s.log.Info("document ingested",
		"source", source,
		"chunks", len(chunks),
		"added", len(entries),
		"failed", failed)
	return IngestResult{ChunksAdded: len(entries), ChunksFailed: failed}, nil
}

// entryID keys a chunk within the collection. The plain id<index> form
// matches batches with no source name; named sources are prefixed so two
// documents never collide.
func entryID(source, chunkID string) string {
	if source == "" {
		return "id" + chunkID
	}
	return source + ":" + chunkID
}
