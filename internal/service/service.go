// Package service orchestrates the retrieval-augmented answering core:
// document ingestion into the vector store and query answering with
// streamed generation.
package service

import (
	"log/slog"
	"strings"
	"sync"

	"docchat/internal/chunker"
	"docchat/internal/domain"
	"docchat/internal/vectorstore"
)

// ContextDelimiter separates retrieved passages inside the prompt so
// passage boundaries stay visible to the model and to anyone inspecting
// the context.
const ContextDelimiter = "\n\n=======\n\n"

// DefaultTopK is the number of passages retrieved per question.
const DefaultTopK = 5

// Options tune chunking and retrieval.
type Options struct {
	ChunkSize int
	Overlap   int
	TopK      int
}

func (o *Options) fillDefaults() {
	if o.ChunkSize == 0 {
		o.ChunkSize = chunker.DefaultChunkSize
		if o.Overlap == 0 {
			o.Overlap = chunker.DefaultOverlap
		}
	}
	if o.TopK == 0 {
		o.TopK = DefaultTopK
	}
}

// ClientFactory builds the embedding and generation clients from a
// credential. Keeping construction behind a factory lets the session host
// collect the credential interactively while the service stays decoupled
// from client configuration.
type ClientFactory func(apiKey string) (domain.Embedder, domain.Generator, error)

// Service is the application core behind the interactive shell. One
// instance serves one session: it owns the conversation history and
// shares a single durable vector store.
type Service struct {
	opts    Options
	store   vectorstore.Storage
	history *History
	factory ClientFactory
	log     *slog.Logger

	mu          sync.RWMutex
	embedder    domain.Embedder
	generator   domain.Generator
	lastContext string
}

// New creates a service over the given store. The service starts
// unconfigured; Answer and Ingest fail until Configure succeeds.
func New(store vectorstore.Storage, factory ClientFactory, opts Options, log *slog.Logger) *Service {
	opts.fillDefaults()
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		opts:    opts,
		store:   store,
		history: NewHistory(),
		factory: factory,
		log:     log,
	}
}

// Configure constructs the embedding and generation clients from the
// credential. It may be called again with a new credential; the previous
// clients are discarded.
func (s *Service) Configure(apiKey string) error {
	if strings.TrimSpace(apiKey) == "" {
		return &domain.ConfigError{Msg: "API key is empty"}
	}
	emb, gen, err := s.factory(apiKey)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.embedder = emb
	s.generator = gen
	s.mu.Unlock()
	s.log.Info("clients configured",
		"embedding_model", emb.ModelName(),
		"generation_model", gen.ModelName())
	return nil
}

// Configured reports whether the remote clients exist. Callers check this
// instead of calling and catching.
func (s *Service) Configured() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.embedder != nil && s.generator != nil
}

func (s *Service) clients() (domain.Embedder, domain.Generator) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.embedder, s.generator
}

// History exposes the session's conversation log.
func (s *Service) History() *History { return s.history }

// LastContext returns the context block assembled for the most recent
// answered question, for inspection in the shell.
func (s *Service) LastContext() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastContext
}

func (s *Service) setLastContext(ctx string) {
	s.mu.Lock()
	s.lastContext = ctx
	s.mu.Unlock()
}
