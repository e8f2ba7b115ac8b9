package domain

import "context"

// Embedder converts free text into a numeric vector representation by
// calling a remote embedding model.
type Embedder interface {
	// Embed returns the embedding for text. Empty text is rejected before
	// any network call is made.
	Embed(ctx context.Context, text string) ([]float32, error)
	// Dimension is the output dimensionality, 0 until the first
	// successful Embed.
	Dimension() int
	ModelName() string
}

// GenerationStream delivers a generated answer as an incremental sequence
// of text fragments. Recv returns io.EOF when the stream is complete. The
// stream is finite and not restartable.
type GenerationStream interface {
	Recv() (string, error)
	Close() error
}

// Generator drives a streaming chat-completion call against a remote
// generative model.
type Generator interface {
	Stream(ctx context.Context, turns []Turn) (GenerationStream, error)
	ModelName() string
}
