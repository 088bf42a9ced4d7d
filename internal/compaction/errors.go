// Package compaction keeps evaluation batches inside the model's context
// window by discarding conversation history past the preamble.
package compaction

import "errors"

// Compaction errors.
var (
	// ErrBatchTooLarge indicates that a single batch cannot fit next to the
	// preamble even with an empty conversation.
	ErrBatchTooLarge = errors.New("compaction: batch larger than context window")

	// ErrCursorMismatch indicates that the transcript and evaluation cursor
	// have diverged.
	ErrCursorMismatch = errors.New("compaction: transcript length differs from n_past")
)
