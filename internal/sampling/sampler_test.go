package sampling

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parley/internal/provider"
)

const (
	testEOS provider.Token = 2
	testNL  provider.Token = 13
)

func flatLogits(n int) []float32 {
	return make([]float32, n)
}

func TestGreedy_PicksArgmax(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Temperature = 0
	s := New(cfg, testEOS, testNL)

	logits := flatLogits(32)
	logits[7] = 3
	logits[9] = 5

	assert.Equal(t, provider.Token(9), s.Sample(logits, nil))
}

func TestGreedy_TiesGoToLowestID(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Temperature = 0
	s := New(cfg, testEOS, testNL)

	logits := flatLogits(32)
	logits[20] = 4
	logits[11] = 4

	assert.Equal(t, provider.Token(11), s.Sample(logits, nil))
}

func TestSample_EOSLogitOverridden(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Temperature = 0
	s := New(cfg, testEOS, testNL)

	logits := flatLogits(32)
	for i := range logits {
		logits[i] = -1
	}
	logits[testEOS] = 50

	// EOS is pinned to 0, which still beats every -1
	assert.Equal(t, testEOS, s.Sample(logits, nil))

	logits[5] = 0.5
	assert.Equal(t, provider.Token(5), s.Sample(logits, nil))
}

func TestSample_DoesNotModifyInput(t *testing.T) {
	s := New(DefaultConfig(), testEOS, testNL)
	logits := []float32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14}
	orig := append([]float32(nil), logits...)

	s.Sample(logits, []provider.Token{3, 4, 5})
	assert.Equal(t, orig, logits)
}

func TestSample_SeedDeterminism(t *testing.T) {
	logits := flatLogits(64)
	for i := range logits {
		logits[i] = float32(i%8) * 0.1
	}
	recent := []provider.Token{1, 5, 5, 7}

	a := New(DefaultConfig(), testEOS, testNL)
	b := New(DefaultConfig(), testEOS, testNL)
	for i := 0; i < 50; i++ {
		require.Equal(t, a.Sample(logits, recent), b.Sample(logits, recent), "step %d", i)
	}
}

func TestSample_RestrictedToTopK(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TopK = 2
	cfg.TopP = 1
	cfg.Temperature = 1
	s := New(cfg, testEOS, testNL)

	logits := flatLogits(40)
	logits[30] = 10
	logits[31] = 9.5
	logits[32] = 9

	for i := 0; i < 100; i++ {
		tok := s.Sample(logits, nil)
		assert.Contains(t, []provider.Token{30, 31}, tok)
	}
}

func TestPenalize(t *testing.T) {
	c := NewCandidates([]float32{2, -2, 4, 1})

	c.Penalize([]provider.Token{0, 1, 2, 2}, 2, 0.5, 0.25)

	assert.InDelta(t, 2.0/2-0.5-0.25, c[0].Logit, 1e-6)
	assert.InDelta(t, -2.0*2-0.5-0.25, c[1].Logit, 1e-6)
	assert.InDelta(t, 4.0/2-1.0-0.25, c[2].Logit, 1e-6)
	assert.InDelta(t, 1.0, c[3].Logit, 1e-6)
}

func TestPenalize_SkipsListedTokens(t *testing.T) {
	c := NewCandidates([]float32{2, 2, 2})

	c.Penalize([]provider.Token{0, 2, 2, 99}, 2, 0, 0, 2)

	assert.InDelta(t, 1.0, c[0].Logit, 1e-6)
	assert.InDelta(t, 2.0, c[2].Logit, 1e-6)
}

func TestSample_NewlineExemptFromPenalty(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Temperature = 0
	cfg.RepeatPenalty = 100
	s := New(cfg, testEOS, testNL)

	logits := flatLogits(32)
	logits[testNL] = 5
	logits[20] = 4

	recent := []provider.Token{testNL, testNL, testNL}
	assert.Equal(t, testNL, s.Sample(logits, recent))

	cfg.PenalizeNewline = true
	s = New(cfg, testEOS, testNL)
	assert.Equal(t, provider.Token(20), s.Sample(logits, recent))
}

func TestSample_RepeatWindow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Temperature = 0
	cfg.RepeatPenalty = 100
	cfg.RepeatLastN = 2
	s := New(cfg, testEOS, testNL)

	logits := flatLogits(32)
	logits[20] = 5
	logits[21] = 4

	// token 20 fell out of the two-token window
	assert.Equal(t, provider.Token(20), s.Sample(logits, []provider.Token{20, 7, 8}))
	assert.Equal(t, provider.Token(21), s.Sample(logits, []provider.Token{7, 20}))
}

func TestTopK(t *testing.T) {
	c := NewCandidates([]float32{1, 5, 3, 5})

	kept := c.TopK(2)
	require.Len(t, kept, 2)
	assert.Equal(t, provider.Token(1), kept[0].ID)
	assert.Equal(t, provider.Token(3), kept[1].ID)

	assert.Len(t, NewCandidates([]float32{1, 2}).TopK(0), 2)
	assert.Len(t, NewCandidates([]float32{1, 2}).TopK(10), 2)
}

func TestTopP(t *testing.T) {
	// probabilities after softmax are roughly 0.64, 0.24, 0.09, 0.03
	c := NewCandidates([]float32{3, 2, 1, 0})

	assert.Len(t, c.TopP(0.5), 1)
	assert.Len(t, NewCandidates([]float32{3, 2, 1, 0}).TopP(0.8), 2)
	assert.Len(t, NewCandidates([]float32{3, 2, 1, 0}).TopP(1), 4)
	assert.Len(t, NewCandidates([]float32{3, 2, 1, 0}).TopP(0), 1)
}

func TestSoftmax(t *testing.T) {
	c := NewCandidates([]float32{0, 0, 0, 0})
	c.Softmax()

	var sum float32
	for _, cand := range c {
		assert.InDelta(t, 0.25, cand.P, 1e-6)
		sum += cand.P
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
}

func TestSample_EmptyLogits(t *testing.T) {
	s := New(DefaultConfig(), testEOS, testNL)
	assert.Equal(t, testEOS, s.Sample(nil, nil))
}
