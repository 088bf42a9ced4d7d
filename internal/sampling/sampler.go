package sampling

import (
	"math/rand/v2"

	"parley/internal/provider"
)

// Sampler is deterministic for a given seed and input sequence. Not safe for
// concurrent use.
type Sampler struct {
	cfg     Config
	eos     provider.Token
	newline provider.Token
	rng     *rand.Rand
}

// New creates a sampler for a model with the given end-of-turn and newline
// tokens.
func New(cfg Config, eos, newline provider.Token) *Sampler {
	return &Sampler{
		cfg:     cfg,
		eos:     eos,
		newline: newline,
		rng:     rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
	}
}

// Config returns the sampler configuration.
func (s *Sampler) Config() Config { return s.cfg }

// Sample picks the next token. recent is the transcript so far; only its
// last RepeatLastN tokens are penalized. logits is not modified.
func (s *Sampler) Sample(logits []float32, recent []provider.Token) provider.Token {
	c := NewCandidates(logits)
	if len(c) == 0 {
		return s.eos
	}

	if s.inVocab(s.eos, c) {
		c[s.eos].Logit = float32(s.cfg.EOSLogit)
	}

	var nlLogit float32
	hasNL := s.inVocab(s.newline, c)
	if hasNL {
		nlLogit = c[s.newline].Logit
	}

	window := recent
	if n := s.cfg.RepeatLastN; n >= 0 && len(window) > n {
		window = window[len(window)-n:]
	}
	c.Penalize(window,
		float32(s.cfg.RepeatPenalty),
		float32(s.cfg.FrequencyPenalty),
		float32(s.cfg.PresencePenalty),
		s.eos)

	if hasNL && !s.cfg.PenalizeNewline {
		c[s.newline].Logit = nlLogit
	}

	if s.cfg.Temperature <= 0 {
		return c.Greedy()
	}

	c = c.TopK(s.cfg.TopK)
	c = c.TopP(s.cfg.TopP)
	c.Temperature(s.cfg.Temperature)
	c.Softmax()
	return s.draw(c)
}

func (s *Sampler) draw(c Candidates) provider.Token {
	r := s.rng.Float64()
	var cum float64
	for _, cand := range c {
		cum += float64(cand.P)
		if r < cum {
			return cand.ID
		}
	}
	return c[len(c)-1].ID
}

func (s *Sampler) inVocab(tok provider.Token, c Candidates) bool {
	return tok >= 0 && int(tok) < len(c)
}
