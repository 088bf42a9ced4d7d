// Package provider defines the language model interface the dialogue runner
// drives: tokenization, incremental evaluation against a key/value cache, and
// optional state snapshots for the session cache.
package provider

import "context"

// Token is a vocabulary index.
type Token int32

// ModelInfo describes the loaded model.
type ModelInfo struct {
	Model       string `cbor:"model" json:"model"`
	VocabSize   int    `cbor:"vocab_size" json:"vocab_size"`
	ContextSize int    `cbor:"context_size" json:"context_size"`
	BOS         Token  `cbor:"bos" json:"bos"`
	EOS         Token  `cbor:"eos" json:"eos"`
	Newline     Token  `cbor:"newline" json:"newline"`
}

// Provider is a stateful model session. Evaluate appends tokens to the
// model's key/value cache at position nPast, discarding anything at or after
// nPast, and returns the logits for the token following the batch.
type Provider interface {
	// Name returns the provider name.
	Name() string

	// Info returns model metadata.
	Info(ctx context.Context) (ModelInfo, error)

	// Tokenize converts text to tokens, optionally prefixed with BOS.
	Tokenize(ctx context.Context, text string, addBOS bool) ([]Token, error)

	// TokenToPiece returns the text of a single token.
	TokenToPiece(ctx context.Context, tok Token) (string, error)

	// Evaluate runs tokens through the model starting at position nPast.
	Evaluate(ctx context.Context, tokens []Token, nPast int) ([]float32, error)
}

// Snapshotter is implemented by providers that can serialize their key/value
// state so a later process can resume without re-evaluating the prompt.
type Snapshotter interface {
	Snapshot(ctx context.Context) ([]byte, error)
	Restore(ctx context.Context, state []byte) error
}

// Closer is implemented by providers holding a connection.
type Closer interface {
	Close() error
}

// Detokenize concatenates the pieces of toks.
func Detokenize(ctx context.Context, p Provider, toks []Token) (string, error) {
	var out []byte
	for _, tok := range toks {
		piece, err := p.TokenToPiece(ctx, tok)
		if err != nil {
			return "", err
		}
		out = append(out, piece...)
	}
	return string(out), nil
}
