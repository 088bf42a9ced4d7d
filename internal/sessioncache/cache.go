package sessioncache

import (
	"fmt"

	"parley/internal/provider"
)

// Cache tracks how much of a loaded token sequence has been matched against
// what is being evaluated now. Not safe for concurrent use.
type Cache struct {
	tokens   []provider.Token
	consumed int
	enabled  bool
}

// NewCache wraps the tokens of rec. A nil rec is an empty cache; enabled
// controls whether newly evaluated tokens are recorded and reuse is allowed.
func NewCache(rec *Record, enabled bool) *Cache {
	c := &Cache{enabled: enabled}
	if rec != nil {
		c.tokens = append([]provider.Token(nil), rec.Tokens...)
	}
	return c
}

// Enabled reports whether reuse and recording are active.
func (c *Cache) Enabled() bool { return c.enabled }

// Disable stops reuse and recording for the rest of the run.
func (c *Cache) Disable() { c.enabled = false }

// Len returns the number of cached tokens.
func (c *Cache) Len() int { return len(c.tokens) }

// Consumed returns how many cached tokens have been matched or recorded.
func (c *Cache) Consumed() int { return c.consumed }

// Tokens returns a copy of the cached sequence.
func (c *Cache) Tokens() []provider.Token {
	return append([]provider.Token(nil), c.tokens...)
}

// Reuse matches batch against the cache from the consumed position and
// returns how many leading batch tokens are already evaluated. Matching stops
// at the end of the batch or the end of the cache, whichever comes first. On
// the first mismatch the cache is truncated there.
func (c *Cache) Reuse(batch []provider.Token) int {
	if !c.enabled {
		return 0
	}
	i := 0
	for ; i < len(batch) && c.consumed < len(c.tokens); i++ {
		if batch[i] != c.tokens[c.consumed] {
			c.tokens = c.tokens[:c.consumed]
			break
		}
		c.consumed++
	}
	return i
}

// Rewind un-consumes the last n matched tokens so they get evaluated again.
func (c *Cache) Rewind(n int) {
	c.consumed = max(0, c.consumed-n)
}

// Record truncates the cache at the consumed position and appends tokens
// that were just evaluated.
func (c *Cache) Record(toks ...provider.Token) {
	if !c.enabled || len(toks) == 0 {
		return
	}
	c.tokens = append(c.tokens[:c.consumed], toks...)
	c.consumed = len(c.tokens)
}

// SimilarityKind classifies how much of a prompt the cache covered.
type SimilarityKind int

const (
	SimilarityPartial SimilarityKind = iota
	SimilarityExact
	SimilarityLow
)

func (k SimilarityKind) String() string {
	switch k {
	case SimilarityExact:
		return "exact"
	case SimilarityLow:
		return "low"
	default:
		return "partial"
	}
}

// Similarity is the longest common prefix between a prompt and the cache.
type Similarity struct {
	Matched int
	Total   int
}

// Similarity measures the common prefix of prompt and the cached tokens
// without consuming anything.
func (c *Cache) Similarity(prompt []provider.Token) Similarity {
	n := 0
	for n < len(prompt) && n < len(c.tokens) && prompt[n] == c.tokens[n] {
		n++
	}
	return Similarity{Matched: n, Total: len(prompt)}
}

// Kind classifies s: exact when the whole prompt matched, low when less than
// half did.
func (s Similarity) Kind() SimilarityKind {
	switch {
	case s.Matched >= s.Total:
		return SimilarityExact
	case s.Matched < s.Total/2:
		return SimilarityLow
	default:
		return SimilarityPartial
	}
}

// NeedsSave reports whether the match is poor enough (under three quarters of
// the prompt) that the cache should be rewritten.
func (s Similarity) NeedsSave() bool {
	return s.Matched < s.Total*3/4
}

func (s Similarity) String() string {
	return fmt.Sprintf("%d/%d (%s)", s.Matched, s.Total, s.Kind())
}
