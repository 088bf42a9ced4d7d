package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubProvider is a minimal provider for testing.
type stubProvider struct {
	name     string
	endpoint string
	opts     Options
	pieces   map[Token]string
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Info(ctx context.Context) (ModelInfo, error) {
	return ModelInfo{Model: "stub", ContextSize: s.opts.ContextSize}, nil
}

func (s *stubProvider) Tokenize(ctx context.Context, text string, addBOS bool) ([]Token, error) {
	return nil, nil
}

func (s *stubProvider) TokenToPiece(ctx context.Context, tok Token) (string, error) {
	return s.pieces[tok], nil
}

func (s *stubProvider) Evaluate(ctx context.Context, tokens []Token, nPast int) ([]float32, error) {
	return nil, nil
}

func TestRegisterAndOpen(t *testing.T) {
	Reset()
	defer Reset()

	Register("stub", func(endpoint string, opts Options) (Provider, error) {
		return &stubProvider{name: "stub", endpoint: endpoint, opts: opts}, nil
	})

	p, err := Open("stub://localhost/model", Options{ContextSize: 512})
	require.NoError(t, err)
	assert.Equal(t, "stub", p.Name())
	assert.Equal(t, "stub://localhost/model", p.(*stubProvider).endpoint)

	info, err := p.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 512, info.ContextSize)
}

func TestOpenErrors(t *testing.T) {
	Reset()
	defer Reset()

	_, err := Open("localhost:8765", Options{})
	assert.Error(t, err)

	_, err = Open("ws://127.0.0.1:8765", Options{})
	assert.ErrorContains(t, err, `no provider registered for scheme "ws"`)
}

func TestList(t *testing.T) {
	Reset()
	defer Reset()

	f := func(string, Options) (Provider, error) { return &stubProvider{}, nil }
	Register("wss", f)
	Register("ws", f)

	assert.Equal(t, []string{"ws", "wss"}, List())
}

func TestDetokenize(t *testing.T) {
	p := &stubProvider{pieces: map[Token]string{1: "Hel", 2: "lo", 3: "!"}}

	text, err := Detokenize(context.Background(), p, []Token{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, "Hello!", text)
}
