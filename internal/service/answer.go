package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"docchat/internal/domain"
)

// AnswerStream delivers a generated answer incrementally. It is finite
// and not restartable: drain Fragments, then check Err. Each fragment is
// forwarded as soon as the model produces it.
type AnswerStream struct {
	fragments chan string
	done      chan struct{}
	cancel    sync.Once

	mu  sync.Mutex
	err error
}

// Fragments is closed when the stream ends, whether normally, on error
// or on cancellation.
func (a *AnswerStream) Fragments() <-chan string { return a.fragments }

// Cancel abandons the stream. The pump stops forwarding, commits
// whatever partial answer it has accumulated and closes Fragments. A
// consumer that stops draining must call Cancel or the pump stays
// parked on the channel send. Safe to call more than once.
func (a *AnswerStream) Cancel() {
	a.cancel.Do(func() { close(a.done) })
}

// Err reports the stream failure, if any. Valid once Fragments is closed.
func (a *AnswerStream) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

func (a *AnswerStream) setErr(err error) {
	a.mu.Lock()
	a.err = err
	a.mu.Unlock()
}

// Answer embeds the question, retrieves the top-k closest passages and
// streams a generated answer conditioned on them.
//
// Errors before generation starts leave the conversation history
// untouched. ErrNoRelevantContent is a normal terminal outcome, not a
// failure: the index had nothing for this question and no generation
// call is made. Once fragments have been received, a mid-stream failure
// or cancellation commits the partial answer to history; losing the
// exchange entirely would be worse than storing a truncated reply.
func (s *Service) Answer(ctx context.Context, query string) (*AnswerStream, error) {
	if strings.TrimSpace(query) == "" {
		return nil, &domain.ConfigError{Msg: "query is empty"}
	}
	emb, gen := s.clients()
	if emb == nil || gen == nil {
		return nil, domain.ErrNotConfigured
	}

	qvec, err := emb.Embed(ctx, query)
	if err != nil {
		return nil, &domain.RetrievalError{Err: err}
	}

	results, err := s.store.Search(ctx, qvec, s.opts.TopK)
	if err != nil {
		return nil, &domain.RetrievalError{Err: err}
	}
	if len(results) == 0 {
		s.log.Info("no relevant content", "query_len", len(query))
		return nil, domain.ErrNoRelevantContent
	}

	docs := make([]string, len(results))
	for i, r := range results {
		docs[i] = r.Entry.Document
	}
	contextBlock := strings.Join(docs, ContextDelimiter)
	s.setLastContext(contextBlock)

	turns := append(s.history.Turns(), domain.Turn{
		Role:    domain.RoleUser,
		Content: buildPrompt(contextBlock, query),
	})

	gs, err := gen.Stream(ctx, turns)
	if err != nil {
		return nil, err
	}

	stream := &AnswerStream{
		fragments: make(chan string, 16),
		done:      make(chan struct{}),
	}
	go s.pump(gs, stream, query)
	return stream, nil
}

// pump forwards fragments to the caller while accumulating the answer,
// then commits the exchange: the user turn first, the assistant turn
// second.
func (s *Service) pump(gs domain.GenerationStream, stream *AnswerStream, query string) {
	defer close(stream.fragments)
	defer gs.Close()

	var buf strings.Builder
loop:
	for {
		frag, err := gs.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			stream.setErr(err)
			s.log.Warn("generation stream interrupted", "error", err, "partial_len", buf.Len())
			break
		}
		buf.WriteString(frag)
		select {
		case stream.fragments <- frag:
		case <-stream.done:
			s.log.Info("answer stream canceled", "partial_len", buf.Len())
			break loop
		}
	}

	if buf.Len() == 0 {
		return
	}
	s.history.Append(domain.Turn{Role: domain.RoleUser, Content: query})
	s.history.Append(domain.Turn{Role: domain.RoleAssistant, Content: buf.String()})
}

func buildPrompt(contextBlock, question string) string {
	var b strings.Builder
	b.WriteString("Answer the question using only the context below.\n\nContext:\n")
	b.WriteString(contextBlock)
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	return b.String()
}
