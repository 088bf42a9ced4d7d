package compaction

import (
	"fmt"

	"parley/internal/provider"
	"parley/internal/transcript"
)

// Window enforces n_past + len(batch) <= capacity before every evaluation.
type Window struct {
	capacity int
	nPrev    int
}

// Result is the batch to evaluate and the cursor to evaluate it at.
type Result struct {
	Batch      []provider.Token
	NPast      int
	Compacted  bool
	Resurfaced int // conversation tokens moved back into the batch
}

// NewWindow creates a Window. A non-positive capacity falls back to the
// default.
func NewWindow(cfg Config) *Window {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultConfig().Capacity
	}
	return &Window{capacity: cfg.Capacity, nPrev: max(0, cfg.NPrev)}
}

// Capacity returns the context size.
func (w *Window) Capacity() int { return w.capacity }

// EnsureCapacity returns batch unchanged when it fits. Otherwise it compacts
// t down to its preamble, rewinds the cursor to n_keep and prepends the last
// n_prev conversation tokens to batch. The resurfaced tail is shortened when
// needed so the result always fits; the incoming batch never is.
func (w *Window) EnsureCapacity(t *transcript.Transcript, nPast int, batch []provider.Token) (Result, error) {
	if t.Len() != nPast {
		return Result{}, fmt.Errorf("%w: transcript %d, n_past %d", ErrCursorMismatch, t.Len(), nPast)
	}
	if nPast+len(batch) <= w.capacity {
		return Result{Batch: batch, NPast: nPast}, nil
	}

	nKeep := t.NKeep()
	room := w.capacity - nKeep
	if len(batch) > room {
		return Result{}, fmt.Errorf("%w: %d tokens, %d free after %d preamble tokens",
			ErrBatchTooLarge, len(batch), max(0, room), nKeep)
	}

	tail := t.Compact(min(w.nPrev, room-len(batch)))
	out := make([]provider.Token, 0, len(tail)+len(batch))
	out = append(out, tail...)
	out = append(out, batch...)

	return Result{
		Batch:      out,
		NPast:      nKeep,
		Compacted:  true,
		Resurfaced: len(tail),
	}, nil
}
