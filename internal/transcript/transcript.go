// Package transcript holds the token-level conversation transcript. The first
// NKeep tokens are the rendered preamble and survive every compaction.
package transcript

import "parley/internal/provider"

// Transcript is not safe for concurrent use; the dialogue runner owns it.
type Transcript struct {
	tokens []provider.Token
	nKeep  int
}

// New creates a transcript whose preamble is preamble.
func New(preamble []provider.Token) *Transcript {
	t := &Transcript{
		tokens: make([]provider.Token, len(preamble), len(preamble)+256),
		nKeep:  len(preamble),
	}
	copy(t.tokens, preamble)
	return t
}

// Len returns the number of tokens.
func (t *Transcript) Len() int { return len(t.tokens) }

// NKeep returns the preamble length.
func (t *Transcript) NKeep() int { return t.nKeep }

// Append adds evaluated tokens.
func (t *Transcript) Append(toks ...provider.Token) {
	t.tokens = append(t.tokens, toks...)
}

// Preamble returns a copy of the preamble tokens.
func (t *Transcript) Preamble() []provider.Token {
	return t.Slice(0, t.nKeep)
}

// Tokens returns a copy of the whole transcript.
func (t *Transcript) Tokens() []provider.Token {
	return t.Slice(0, len(t.tokens))
}

// Slice returns a copy of tokens[from:to], clamped to the transcript bounds.
func (t *Transcript) Slice(from, to int) []provider.Token {
	from = max(0, min(from, len(t.tokens)))
	to = max(from, min(to, len(t.tokens)))
	out := make([]provider.Token, to-from)
	copy(out, t.tokens[from:to])
	return out
}

// Tail returns a copy of the last n tokens (fewer if the transcript is shorter).
func (t *Transcript) Tail(n int) []provider.Token {
	return t.Slice(len(t.tokens)-n, len(t.tokens))
}

// Compact drops everything after the preamble and returns the last nPrev
// conversation tokens that were dropped, so the caller can re-evaluate them.
// Preamble tokens are never returned or removed.
func (t *Transcript) Compact(nPrev int) []provider.Token {
	conv := len(t.tokens) - t.nKeep
	n := max(0, min(nPrev, conv))
	tail := t.Slice(len(t.tokens)-n, len(t.tokens))
	t.tokens = t.tokens[:t.nKeep]
	return tail
}
