package domain

// Chunk is a bounded window of a source document, the unit of embedding
// and retrieval. Chunks are immutable once created; the ID is the decimal
// window index, unique within one ingestion batch.
type Chunk struct {
	ID           string
	Text         string
	SourceOffset int
}

// IndexEntry is what the vector store persists for one chunk. Every
// embedding stored in one collection must have the same dimensionality.
type IndexEntry struct {
	ID        string
	Embedding []float32
	Document  string
}

// SearchResult is a retrieved entry together with its cosine similarity
// to the query vector. Higher is closer.
type SearchResult struct {
	Entry IndexEntry
	Score float64
}

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single conversation exchange half: one user question or one
// assistant answer.
type Turn struct {
	Role    Role
	Content string
}
