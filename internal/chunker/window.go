package chunker

import (
	"fmt"
	"strconv"

	"docchat/internal/domain"
)

// Default window parameters for document ingestion.
const (
	DefaultChunkSize = 500
	DefaultOverlap   = 50
)

// Split cuts text into windows of chunkSize runes, each window starting
// chunkSize-overlap runes after the previous one, so consecutive chunks
// share overlap runes. The overlap keeps sentences that fall on a window
// edge retrievable from at least one chunk. The final chunk is clipped to
// the end of the text.
//
// Split is pure: identical arguments always produce identical output.
// Empty text yields an empty slice. chunkSize must be positive and
// overlap must satisfy 0 <= overlap < chunkSize; anything else would
// produce a non-advancing window and is rejected as a ConfigError.
func Split(text string, chunkSize, overlap int) ([]domain.Chunk, error) {
	if chunkSize <= 0 {
		return nil, &domain.ConfigError{Msg: fmt.Sprintf("chunk size must be positive, got %d", chunkSize)}
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, &domain.ConfigError{Msg: fmt.Sprintf("overlap must be in [0, %d), got %d", chunkSize, overlap)}
	}

	runes := []rune(text)
	step := chunkSize - overlap
	var chunks []domain.Chunk
	for start, idx := 0, 0; start < len(runes); start, idx = start+step, idx+1 {
		end := start + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, domain.Chunk{
			ID:           strconv.Itoa(idx),
			Text:         string(runes[start:end]),
			SourceOffset: start,
		})
	}
	return chunks, nil
}
