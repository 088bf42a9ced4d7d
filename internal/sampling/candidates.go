package sampling

import (
	"math"
	"sort"

	"parley/internal/provider"
)

// Candidate is one vocabulary entry under consideration.
type Candidate struct {
	ID    provider.Token
	Logit float32
	P     float32
}

// Candidates is the per-step candidate set. Methods that narrow it return the
// kept prefix; order is by descending logit once sorted.
type Candidates []Candidate

// NewCandidates copies logits into a candidate set indexed by token id.
func NewCandidates(logits []float32) Candidates {
	c := make(Candidates, len(logits))
	for i, l := range logits {
		c[i] = Candidate{ID: provider.Token(i), Logit: l}
	}
	return c
}

// Penalize applies the repetition, frequency and presence penalties for every
// token occurring in recent. Tokens listed in skip are left alone. c must
// still be indexed by token id.
func (c Candidates) Penalize(recent []provider.Token, repeat, frequency, presence float32, skip ...provider.Token) {
	counts := make(map[provider.Token]int, len(recent))
outer:
	for _, tok := range recent {
		for _, s := range skip {
			if tok == s {
				continue outer
			}
		}
		counts[tok]++
	}

	for tok, n := range counts {
		if int(tok) < 0 || int(tok) >= len(c) {
			continue
		}
		l := c[tok].Logit
		if repeat != 0 {
			if l <= 0 {
				l *= repeat
			} else {
				l /= repeat
			}
		}
		l -= float32(n)*frequency + presence
		c[tok].Logit = l
	}
}

// Greedy returns the highest-logit id; ties go to the lowest id.
func (c Candidates) Greedy() provider.Token {
	best := 0
	for i := 1; i < len(c); i++ {
		if c[i].Logit > c[best].Logit || (c[i].Logit == c[best].Logit && c[i].ID < c[best].ID) {
			best = i
		}
	}
	return c[best].ID
}

func (c Candidates) sortByLogit() {
	sort.SliceStable(c, func(i, j int) bool {
		if c[i].Logit != c[j].Logit {
			return c[i].Logit > c[j].Logit
		}
		return c[i].ID < c[j].ID
	})
}

// TopK keeps the k best candidates. k <= 0 keeps everything; at least one
// candidate always survives.
func (c Candidates) TopK(k int) Candidates {
	c.sortByLogit()
	if k <= 0 || k > len(c) {
		k = len(c)
	}
	return c[:max(k, 1)]
}

// Softmax fills P from the logits.
func (c Candidates) Softmax() {
	if len(c) == 0 {
		return
	}
	maxLogit := c[0].Logit
	for _, cand := range c[1:] {
		maxLogit = max(maxLogit, cand.Logit)
	}
	var sum float64
	for i := range c {
		p := math.Exp(float64(c[i].Logit - maxLogit))
		c[i].P = float32(p)
		sum += p
	}
	for i := range c {
		c[i].P = float32(float64(c[i].P) / sum)
	}
}

// TopP keeps the smallest prefix whose probability mass reaches p, and at
// least one candidate.
func (c Candidates) TopP(p float64) Candidates {
	if p >= 1 || len(c) == 0 {
		return c
	}
	c.sortByLogit()
	c.Softmax()

	var cum float64
	for i := range c {
		cum += float64(c[i].P)
		if cum >= p {
			return c[:i+1]
		}
	}
	return c
}

// Temperature divides every logit by t.
func (c Candidates) Temperature(t float64) {
	for i := range c {
		c[i].Logit = float32(float64(c[i].Logit) / t)
	}
}
