// Package scripted is a deterministic byte-level model. It replays canned
// replies whenever the evaluated history ends with a trigger string, which is
// enough to drive the dialogue runner end to end without a real model.
package scripted

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"parley/internal/provider"
)

// Special tokens. Byte b maps to Token(b) + byteOffset.
const (
	BOS        provider.Token = 1
	EOS        provider.Token = 2
	byteOffset                = 3
	vocabSize                 = 256 + byteOffset
)

const name = "scripted"

// Call records one Evaluate invocation.
type Call struct {
	Tokens []provider.Token
	NPast  int
}

// Model is safe for concurrent use.
type Model struct {
	mu sync.Mutex

	ctxSize int
	trigger string
	replies [][]provider.Token

	kv      []provider.Token
	pending []provider.Token
	calls   []Call
	evalErr error
}

// New builds a model with a context window of ctxSize tokens. A reply is
// dequeued each time the evaluated history ends with trigger.
func New(ctxSize int, trigger string, replies ...string) *Model {
	m := &Model{ctxSize: ctxSize, trigger: trigger}
	for _, r := range replies {
		m.replies = append(m.replies, Encode(r))
	}
	return m
}

// Encode maps text to byte tokens.
func Encode(text string) []provider.Token {
	toks := make([]provider.Token, 0, len(text))
	for i := 0; i < len(text); i++ {
		toks = append(toks, provider.Token(text[i])+byteOffset)
	}
	return toks
}

func (m *Model) Name() string { return name }

func (m *Model) Info(ctx context.Context) (provider.ModelInfo, error) {
	return provider.ModelInfo{
		Model:       name,
		VocabSize:   vocabSize,
		ContextSize: m.ctxSize,
		BOS:         BOS,
		EOS:         EOS,
		Newline:     provider.Token('\n') + byteOffset,
	}, nil
}

func (m *Model) Tokenize(ctx context.Context, text string, addBOS bool) ([]provider.Token, error) {
	toks := Encode(text)
	if addBOS {
		toks = append([]provider.Token{BOS}, toks...)
	}
	return toks, nil
}

func (m *Model) TokenToPiece(ctx context.Context, tok provider.Token) (string, error) {
	if tok < byteOffset || tok >= vocabSize {
		return "", nil
	}
	return string([]byte{byte(tok - byteOffset)}), nil
}

// Evaluate appends tokens at nPast and returns logits peaked on the next
// scripted token, or on EOS when no reply is in progress. Every other logit
// is strongly negative so EOS still wins when its logit is reset to zero.
func (m *Model) Evaluate(ctx context.Context, tokens []provider.Token, nPast int) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.evalErr != nil {
		return nil, m.evalErr
	}
	if nPast < 0 || nPast > len(m.kv) {
		return nil, provider.NewProviderError(provider.ErrCodeInvalidRequest,
			fmt.Sprintf("n_past %d beyond cached %d tokens", nPast, len(m.kv)), name, false)
	}
	if nPast+len(tokens) > m.ctxSize {
		return nil, provider.NewProviderError(provider.ErrCodeContextWindowExceeded,
			fmt.Sprintf("n_past %d + %d tokens > %d", nPast, len(tokens), m.ctxSize), name, false)
	}

	m.calls = append(m.calls, Call{Tokens: append([]provider.Token(nil), tokens...), NPast: nPast})
	m.kv = append(m.kv[:nPast], tokens...)

	// A batch ending in the expected token continues the reply; this also
	// holds after the caller re-evaluates recent history ahead of it.
	if n := len(tokens); n > 0 && len(m.pending) > 0 && tokens[n-1] == m.pending[0] {
		m.pending = m.pending[1:]
	} else {
		m.pending = nil
	}
	if len(m.pending) == 0 && len(m.replies) > 0 && m.endsWithTrigger() {
		m.pending = m.replies[0]
		m.replies = m.replies[1:]
	}

	next := EOS
	if len(m.pending) > 0 {
		next = m.pending[0]
	}
	logits := make([]float32, vocabSize)
	for i := range logits {
		logits[i] = -100
	}
	logits[next] = 100
	return logits, nil
}

func (m *Model) endsWithTrigger() bool {
	if m.trigger == "" {
		return false
	}
	var b strings.Builder
	n := len(m.trigger)
	start := max(0, len(m.kv)-n)
	for _, tok := range m.kv[start:] {
		if tok >= byteOffset {
			b.WriteByte(byte(tok - byteOffset))
		}
	}
	return strings.HasSuffix(b.String(), m.trigger)
}

type snapshot struct {
	KV      []provider.Token `cbor:"1,keyasint"`
	Pending []provider.Token `cbor:"2,keyasint"`
}

// Snapshot serializes the key/value history.
func (m *Model) Snapshot(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cbor.Marshal(snapshot{KV: m.kv, Pending: m.pending})
}

// Restore replaces the key/value history.
func (m *Model) Restore(ctx context.Context, state []byte) error {
	var s snapshot
	if err := cbor.Unmarshal(state, &s); err != nil {
		return provider.NewProviderError(provider.ErrCodeStateMismatch, err.Error(), name, false)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kv = s.KV
	m.pending = s.Pending
	return nil
}

// Calls returns a copy of the recorded Evaluate calls.
func (m *Model) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// EvaluatedTokens returns the total number of tokens passed to Evaluate.
func (m *Model) EvaluatedTokens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		n += len(c.Tokens)
	}
	return n
}

// History returns the current key/value contents.
func (m *Model) History() []provider.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]provider.Token(nil), m.kv...)
}

// FailEvaluate makes every subsequent Evaluate return err.
func (m *Model) FailEvaluate(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evalErr = err
}

// AddReplies queues more replies.
func (m *Model) AddReplies(replies ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range replies {
		m.replies = append(m.replies, Encode(r))
	}
}
