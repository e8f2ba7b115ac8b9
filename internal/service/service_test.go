package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docchat/internal/domain"
	"docchat/internal/vectorstore/local"
)

// fakeEmbedder is deterministic: identical text always yields an
// identical vector, and distinct texts generally point in distinct
// directions. failOn makes embedding fail for chunks with that prefix.
type fakeEmbedder struct {
	failOn string
	calls  int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.failOn != "" && strings.HasPrefix(text, f.failOn) {
		return nil, &domain.ServiceError{Service: "embedding", Err: errors.New("injected failure")}
	}
	v := make([]float32, 4)
	for i, r := range text {
		v[i%4] += float32((int(r)+i)%31 + 1)
	}
	return v, nil
}

func (f *fakeEmbedder) Dimension() int { return 4 }

func (f *fakeEmbedder) ModelName() string { return "fake-embedder" }

// brokenEmbedder always fails.
type brokenEmbedder struct{}

func (brokenEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, &domain.ServiceError{Service: "embedding", Err: errors.New("down")}
}

func (brokenEmbedder) Dimension() int { return 0 }

func (brokenEmbedder) ModelName() string { return "broken" }

// fakeGenerator replays scripted fragments, optionally ending with an
// error instead of a clean end of stream. It records the turns of the
// last request.
type fakeGenerator struct {
	fragments []string
	finalErr  error
	lastTurns []domain.Turn
}

func (g *fakeGenerator) Stream(ctx context.Context, turns []domain.Turn) (domain.GenerationStream, error) {
	g.lastTurns = turns
	return &scriptedStream{fragments: g.fragments, finalErr: g.finalErr}, nil
}

func (g *fakeGenerator) ModelName() string { return "fake-generator" }

type scriptedStream struct {
	fragments []string
	finalErr  error
	pos       int
}

func (s *scriptedStream) Recv() (string, error) {
	if s.pos >= len(s.fragments) {
		if s.finalErr != nil {
			return "", s.finalErr
		}
		return "", io.EOF
	}
	frag := s.fragments[s.pos]
	s.pos++
	return frag, nil
}

func (s *scriptedStream) Close() error { return nil }

func newTestService(t *testing.T, emb domain.Embedder, gen domain.Generator, opts Options) *Service {
	t.Helper()
	store := local.New(t.TempDir(), "test")
	svc := New(store, func(string) (domain.Embedder, domain.Generator, error) {
		return emb, gen, nil
	}, opts, nil)
	require.NoError(t, svc.Configure("test-key"))
	return svc
}

func drain(t *testing.T, stream *AnswerStream) string {
	t.Helper()
	var b strings.Builder
	for frag := range stream.Fragments() {
		b.WriteString(frag)
	}
	return b.String()
}

// tenChunkText produces exactly ten 10-rune chunks with no overlap, each
// starting with its index digit.
func tenChunkText() string {
	var b strings.Builder
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&b, "%d%s", i, strings.Repeat("x", 9))
	}
	return b.String()
}

func TestIngestPartialFailureKeepsGoing(t *testing.T) {
	emb := &fakeEmbedder{failOn: "3"}
	svc := newTestService(t, emb, &fakeGenerator{}, Options{ChunkSize: 10, Overlap: 0})

	res, err := svc.Ingest(context.Background(), "doc", tenChunkText(), nil)
	require.NoError(t, err)
	assert.Equal(t, 9, res.ChunksAdded)
	assert.Equal(t, 1, res.ChunksFailed)
}

func TestIngestAllChunksFailing(t *testing.T) {
	svc := newTestService(t, brokenEmbedder{}, &fakeGenerator{}, Options{ChunkSize: 10, Overlap: 0})

	_, err := svc.Ingest(context.Background(), "doc", tenChunkText(), nil)
	require.Error(t, err)
	var ingErr *domain.IngestError
	require.ErrorAs(t, err, &ingErr)
	assert.Equal(t, 10, ingErr.Attempted)
	assert.Equal(t, 0, ingErr.Added)
}

func TestIngestEmptyDocument(t *testing.T) {
	svc := newTestService(t, &fakeEmbedder{}, &fakeGenerator{}, Options{})

	_, err := svc.Ingest(context.Background(), "doc", "   \n  ", nil)
	require.Error(t, err)
	var ingErr *domain.IngestError
	assert.ErrorAs(t, err, &ingErr)
}

func TestIngestUnconfigured(t *testing.T) {
	store := local.New(t.TempDir(), "test")
	svc := New(store, func(string) (domain.Embedder, domain.Generator, error) {
		return &fakeEmbedder{}, &fakeGenerator{}, nil
	}, Options{}, nil)

	_, err := svc.Ingest(context.Background(), "doc", "text", nil)
	assert.ErrorIs(t, err, domain.ErrNotConfigured)
}

func TestIngestReportsProgressPerChunk(t *testing.T) {
	emb := &fakeEmbedder{failOn: "7"}
	svc := newTestService(t, emb, &fakeGenerator{}, Options{ChunkSize: 10, Overlap: 0})

	var fractions []float64
	_, err := svc.Ingest(context.Background(), "doc", tenChunkText(), func(f float64) {
		fractions = append(fractions, f)
	})
	require.NoError(t, err)

	// One callback per chunk attempt, failures included, ending at 1.0.
	require.Len(t, fractions, 10)
	for i := 1; i < len(fractions); i++ {
		assert.GreaterOrEqual(t, fractions[i], fractions[i-1])
	}
	assert.InDelta(t, 1.0, fractions[len(fractions)-1], 1e-9)
}

func TestAnswerEmptyQuery(t *testing.T) {
	svc := newTestService(t, &fakeEmbedder{}, &fakeGenerator{}, Options{})

	_, err := svc.Answer(context.Background(), "  ")
	require.Error(t, err)
	var cfgErr *domain.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, 0, svc.History().Len())
}

func TestAnswerUnconfigured(t *testing.T) {
	store := local.New(t.TempDir(), "test")
	svc := New(store, func(string) (domain.Embedder, domain.Generator, error) {
		return &fakeEmbedder{}, &fakeGenerator{}, nil
	}, Options{}, nil)

	_, err := svc.Answer(context.Background(), "question")
	assert.ErrorIs(t, err, domain.ErrNotConfigured)
}

func TestAnswerEmptyIndexIsNotAnError(t *testing.T) {
	svc := newTestService(t, &fakeEmbedder{}, &fakeGenerator{}, Options{})

	_, err := svc.Answer(context.Background(), "anything in there?")
	assert.ErrorIs(t, err, domain.ErrNoRelevantContent)
	assert.Equal(t, 0, svc.History().Len())
}

func TestAnswerQueryEmbeddingFailure(t *testing.T) {
	svc := newTestService(t, brokenEmbedder{}, &fakeGenerator{}, Options{})

	_, err := svc.Answer(context.Background(), "question")
	require.Error(t, err)
	var retErr *domain.RetrievalError
	assert.ErrorAs(t, err, &retErr)
	assert.Equal(t, 0, svc.History().Len())
}

func TestAnswerStreamsAndCommitsHistory(t *testing.T) {
	gen := &fakeGenerator{fragments: []string{"It ", "works", "."}}
	svc := newTestService(t, &fakeEmbedder{}, gen, Options{ChunkSize: 20, Overlap: 0})

	_, err := svc.Ingest(context.Background(), "doc", "the sky is blue and the grass is green", nil)
	require.NoError(t, err)

	stream, err := svc.Answer(context.Background(), "what color is the sky?")
	require.NoError(t, err)

	answer := drain(t, stream)
	require.NoError(t, stream.Err())
	assert.Equal(t, "It works.", answer)

	// History records the raw question and the full answer, in order.
	turns := svc.History().Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, domain.RoleUser, turns[0].Role)
	assert.Equal(t, "what color is the sky?", turns[0].Content)
	assert.Equal(t, domain.RoleAssistant, turns[1].Role)
	assert.Equal(t, "It works.", turns[1].Content)

	// The generation request carries the context block and the literal
	// question in its final turn.
	last := gen.lastTurns[len(gen.lastTurns)-1]
	assert.Equal(t, domain.RoleUser, last.Role)
	assert.Contains(t, last.Content, "the sky is blue")
	assert.Contains(t, last.Content, "what color is the sky?")
	assert.NotEmpty(t, svc.LastContext())
}

func TestAnswerSecondTurnSeesHistory(t *testing.T) {
	gen := &fakeGenerator{fragments: []string{"answer"}}
	svc := newTestService(t, &fakeEmbedder{}, gen, Options{ChunkSize: 20, Overlap: 0})

	_, err := svc.Ingest(context.Background(), "doc", "facts about chunking and retrieval", nil)
	require.NoError(t, err)

	stream, err := svc.Answer(context.Background(), "first question")
	require.NoError(t, err)
	drain(t, stream)

	stream, err = svc.Answer(context.Background(), "second question")
	require.NoError(t, err)
	drain(t, stream)

	// The second request starts with the two committed turns of the
	// first exchange.
	require.GreaterOrEqual(t, len(gen.lastTurns), 3)
	assert.Equal(t, "first question", gen.lastTurns[0].Content)
	assert.Equal(t, "answer", gen.lastTurns[1].Content)
	assert.Equal(t, 4, svc.History().Len())
}

func TestAnswerMidStreamFailureCommitsPartial(t *testing.T) {
	gen := &fakeGenerator{
		fragments: []string{"partial ", "answer"},
		finalErr:  &domain.ServiceError{Service: "generation", Err: errors.New("connection reset")},
	}
	svc := newTestService(t, &fakeEmbedder{}, gen, Options{ChunkSize: 20, Overlap: 0})

	_, err := svc.Ingest(context.Background(), "doc", "something worth retrieving here", nil)
	require.NoError(t, err)

	stream, err := svc.Answer(context.Background(), "question")
	require.NoError(t, err)

	answer := drain(t, stream)
	assert.Equal(t, "partial answer", answer)
	require.Error(t, stream.Err())

	// Best-effort policy: the truncated exchange is still recorded.
	turns := svc.History().Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, "partial answer", turns[1].Content)
}

func TestAnswerCancelCommitsPartial(t *testing.T) {
	// Many more fragments than the stream buffers: a consumer that never
	// drains leaves the pump parked on the channel send until Cancel.
	frags := make([]string, 40)
	for i := range frags {
		frags[i] = "x "
	}
	gen := &fakeGenerator{fragments: frags}
	svc := newTestService(t, &fakeEmbedder{}, gen, Options{ChunkSize: 20, Overlap: 0})

	_, err := svc.Ingest(context.Background(), "doc", "something worth retrieving here", nil)
	require.NoError(t, err)

	stream, err := svc.Answer(context.Background(), "question")
	require.NoError(t, err)

	stream.Cancel()
	// The channel closes once the pump has committed; draining after
	// Cancel therefore synchronizes with the history write.
	drained := drain(t, stream)
	require.NoError(t, stream.Err())

	turns := svc.History().Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, "question", turns[0].Content)
	assert.NotEmpty(t, turns[1].Content)
	assert.Less(t, len(turns[1].Content), len(strings.Join(frags, "")))
	assert.True(t, strings.HasPrefix(turns[1].Content, drained))
}

func TestAnswerCancelAfterCompletionIsHarmless(t *testing.T) {
	gen := &fakeGenerator{fragments: []string{"full ", "answer"}}
	svc := newTestService(t, &fakeEmbedder{}, gen, Options{ChunkSize: 20, Overlap: 0})

	_, err := svc.Ingest(context.Background(), "doc", "something worth retrieving here", nil)
	require.NoError(t, err)

	stream, err := svc.Answer(context.Background(), "question")
	require.NoError(t, err)
	answer := drain(t, stream)

	stream.Cancel()
	stream.Cancel()

	assert.Equal(t, "full answer", answer)
	require.Len(t, svc.History().Turns(), 2)
	assert.Equal(t, "full answer", svc.History().Turns()[1].Content)
}

func TestAnswerImmediateStreamFailureLeavesHistoryAlone(t *testing.T) {
	gen := &fakeGenerator{
		finalErr: &domain.ServiceError{Service: "generation", Err: errors.New("boom")},
	}
	svc := newTestService(t, &fakeEmbedder{}, gen, Options{ChunkSize: 20, Overlap: 0})

	_, err := svc.Ingest(context.Background(), "doc", "something worth retrieving here", nil)
	require.NoError(t, err)

	stream, err := svc.Answer(context.Background(), "question")
	require.NoError(t, err)

	answer := drain(t, stream)
	assert.Empty(t, answer)
	require.Error(t, stream.Err())
	assert.Equal(t, 0, svc.History().Len())
}

func TestEndToEndIngestThenRetrieve(t *testing.T) {
	// A 1000-character document with the default-style 500/50 window
	// yields three chunks; querying with text identical to a stored
	// chunk must return that chunk first with similarity 1.0.
	gen := &fakeGenerator{fragments: []string{"done"}}
	emb := &fakeEmbedder{}
	store := local.New(t.TempDir(), "e2e")
	svc := New(store, func(string) (domain.Embedder, domain.Generator, error) {
		return emb, gen, nil
	}, Options{ChunkSize: 500, Overlap: 50}, nil)
	require.NoError(t, svc.Configure("test-key"))

	text := strings.Repeat("A", 1000)
	res, err := svc.Ingest(context.Background(), "", text, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, res.ChunksAdded)

	// Same text, same deterministic embedding as the first chunk.
	qvec, err := emb.Embed(context.Background(), strings.Repeat("A", 500))
	require.NoError(t, err)
	results, err := store.Search(context.Background(), qvec, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "id0", results[0].Entry.ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.Equal(t, strings.Repeat("A", 500), results[0].Entry.Document)
}
