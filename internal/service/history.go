package service

import (
	"sync"

	"docchat/internal/domain"
)

// History is the ordered, append-only conversation log for one session.
// It only ever contains turns for completed exchanges (modulo the
// documented partial-stream policy in Answer) and grows without bound;
// capping or summarizing it is left to the session owner.
type History struct {
	mu    sync.RWMutex
	turns []domain.Turn
}

func NewHistory() *History { return &History{} }

func (h *History) Append(t domain.Turn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns, t)
}

// Turns returns a copy of the log in order.
func (h *History) Turns() []domain.Turn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]domain.Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.turns)
}
